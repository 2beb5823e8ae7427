package task

import "testing"

func TestVerifyWeightedScoreAndStatus(t *testing.T) {
	h := NewHandler()
	deliverables := []Deliverable{
		{Type: "code", Path: "main.go", Criteria: []string{"has_tests"}},
		{Type: "documentation", Path: "README.md"},
	}
	rules := []Rule{
		{ID: "r1", Type: FileExists, Criteria: map[string]string{"path": "main.go"}, Weight: 0.5, Required: true},
		{ID: "r2", Type: Documentation, Weight: 0.3, Required: false},
		{ID: "r3", Type: CodeQuality, Weight: 0.2, Required: false},
	}
	verdict, err := Verify(h, rules, deliverables)
	if err != nil {
		t.Fatal(err)
	}
	if verdict.Status != RulePassed {
		t.Fatalf("expected PASSED verdict, got %s (score %.1f)", verdict.Status, verdict.WeightedScore)
	}
	if verdict.Quality != Excellent {
		t.Fatalf("expected excellent quality, got %s", verdict.Quality)
	}
}

func TestVerifyFailsWhenRequiredRuleFails(t *testing.T) {
	h := NewHandler()
	rules := []Rule{
		{ID: "r1", Type: FileExists, Criteria: map[string]string{"path": "missing.go"}, Weight: 0.5, Required: true},
		{ID: "r2", Type: Documentation, Weight: 0.5, Required: false},
	}
	deliverables := []Deliverable{{Type: "documentation", Path: "README.md"}}
	verdict, err := Verify(h, rules, deliverables)
	if err != nil {
		t.Fatal(err)
	}
	if verdict.Status != RuleFailed {
		t.Fatalf("expected FAILED verdict when a required rule fails, got %s", verdict.Status)
	}
}

func TestVerifyPartialBand(t *testing.T) {
	h := NewHandler()
	rules := []Rule{
		{ID: "r1", Type: FileExists, Criteria: map[string]string{"path": "present.go"}, Weight: 0.7, Required: false},
		{ID: "r2", Type: FileExists, Criteria: map[string]string{"path": "absent.go"}, Weight: 0.3, Required: false},
	}
	deliverables := []Deliverable{{Type: "code", Path: "present.go"}}
	verdict, err := Verify(h, rules, deliverables)
	if err != nil {
		t.Fatal(err)
	}
	if verdict.WeightedScore != 70 {
		t.Fatalf("expected weighted score 70, got %.1f", verdict.WeightedScore)
	}
	if verdict.Status != RulePartial {
		t.Fatalf("expected PARTIAL verdict at score 70, got %s", verdict.Status)
	}
}

func TestVerifyRejectsEmptyRuleSet(t *testing.T) {
	h := NewHandler()
	if _, err := Verify(h, nil, nil); err == nil {
		t.Fatal("expected error for empty rule set")
	}
}

func TestCustomRuleTypeCanBeRegistered(t *testing.T) {
	h := NewHandler()
	h.Register("CUSTOM_CHECK", func(rule Rule, deliverables []Deliverable) RuleResult {
		return RuleResult{RuleID: rule.ID, Status: RulePassed, Score: 100}
	})
	rules := []Rule{{ID: "r1", Type: "CUSTOM_CHECK", Weight: 1, Required: true}}
	verdict, err := Verify(h, rules, nil)
	if err != nil {
		t.Fatal(err)
	}
	if verdict.Status != RulePassed {
		t.Fatalf("expected custom rule to pass, got %s", verdict.Status)
	}
}
