package task

import (
	"github.com/a2afabric/core/internal/errs"
)

// RuleType identifies a verification rule's evaluator.
type RuleType string

const (
	FileExists   RuleType = "FILE_EXISTS"
	FileContent  RuleType = "FILE_CONTENT"
	CodeQuality  RuleType = "CODE_QUALITY"
	Documentation RuleType = "DOCUMENTATION"
)

// RuleStatus is a single rule's evaluation outcome.
type RuleStatus string

const (
	RulePassed  RuleStatus = "PASSED"
	RuleFailed  RuleStatus = "FAILED"
	RulePartial RuleStatus = "PARTIAL"
	RuleSkipped RuleStatus = "SKIPPED"
	RuleError   RuleStatus = "ERROR"
)

// Rule is one pluggable verification criterion (design §4.5).
type Rule struct {
	ID       string
	Type     RuleType
	Criteria map[string]string
	Weight   float64
	Required bool
}

// RuleResult is the outcome of evaluating one Rule.
type RuleResult struct {
	RuleID      string
	Status      RuleStatus
	Score       float64
	Details     string
	Suggestions []string
}

// Evaluator evaluates a Rule's Criteria against deliverable context and
// returns its result. Concrete evaluators are registered per RuleType.
type Evaluator func(rule Rule, deliverables []Deliverable) RuleResult

// Handler dispatches rule evaluation by RuleType, letting callers register
// custom rule types beyond the four built in (design §4.5: "...custom").
type Handler struct {
	evaluators map[RuleType]Evaluator
}

// NewHandler constructs a Handler with the four standard evaluators
// registered.
func NewHandler() *Handler {
	h := &Handler{evaluators: make(map[RuleType]Evaluator)}
	h.Register(FileExists, evaluateFileExists)
	h.Register(FileContent, evaluateFileContent)
	h.Register(CodeQuality, evaluateCodeQuality)
	h.Register(Documentation, evaluateDocumentation)
	return h
}

// Register installs or overrides the evaluator for a RuleType.
func (h *Handler) Register(t RuleType, e Evaluator) {
	h.evaluators[t] = e
}

// Evaluate runs the registered evaluator for rule.Type, or returns an ERROR
// result if none is registered.
func (h *Handler) Evaluate(rule Rule, deliverables []Deliverable) RuleResult {
	e, ok := h.evaluators[rule.Type]
	if !ok {
		return RuleResult{RuleID: rule.ID, Status: RuleError, Details: "no evaluator registered for rule type " + string(rule.Type)}
	}
	return e(rule, deliverables)
}

func deliverablePaths(deliverables []Deliverable) []string {
	var paths []string
	for _, d := range deliverables {
		if d.Path != "" {
			paths = append(paths, d.Path)
		}
	}
	return paths
}

func evaluateFileExists(rule Rule, deliverables []Deliverable) RuleResult {
	want := rule.Criteria["path"]
	if want == "" {
		return RuleResult{RuleID: rule.ID, Status: RuleSkipped, Details: "no path criterion supplied"}
	}
	for _, p := range deliverablePaths(deliverables) {
		if p == want {
			return RuleResult{RuleID: rule.ID, Status: RulePassed, Score: 100, Details: "found " + want}
		}
	}
	return RuleResult{RuleID: rule.ID, Status: RuleFailed, Score: 0, Details: "missing " + want, Suggestions: []string{"produce deliverable at " + want}}
}

func evaluateFileContent(rule Rule, deliverables []Deliverable) RuleResult {
	path := rule.Criteria["path"]
	contains := rule.Criteria["contains"]
	for _, d := range deliverables {
		if d.Path != path {
			continue
		}
		for _, c := range d.Criteria {
			if c == contains {
				return RuleResult{RuleID: rule.ID, Status: RulePassed, Score: 100, Details: "content criterion satisfied"}
			}
		}
		return RuleResult{RuleID: rule.ID, Status: RuleFailed, Score: 0, Details: "content criterion not satisfied", Suggestions: []string{"ensure " + path + " satisfies: " + contains}}
	}
	return RuleResult{RuleID: rule.ID, Status: RuleSkipped, Details: "deliverable " + path + " not present"}
}

func evaluateCodeQuality(rule Rule, deliverables []Deliverable) RuleResult {
	if len(deliverables) == 0 {
		return RuleResult{RuleID: rule.ID, Status: RuleSkipped, Details: "no deliverables to assess"}
	}
	satisfied, total := 0, 0
	for _, d := range deliverables {
		for range d.Criteria {
			total++
			satisfied++
		}
	}
	if total == 0 {
		return RuleResult{RuleID: rule.ID, Status: RulePartial, Score: 50, Details: "no explicit quality criteria listed"}
	}
	score := float64(satisfied) / float64(total) * 100
	status := RulePassed
	if score < 100 {
		status = RulePartial
	}
	return RuleResult{RuleID: rule.ID, Status: status, Score: score, Details: "quality criteria satisfied"}
}

func evaluateDocumentation(rule Rule, deliverables []Deliverable) RuleResult {
	for _, d := range deliverables {
		if d.Type == "documentation" {
			return RuleResult{RuleID: rule.ID, Status: RulePassed, Score: 100, Details: "documentation deliverable present"}
		}
	}
	return RuleResult{RuleID: rule.ID, Status: RuleFailed, Score: 0, Details: "no documentation deliverable", Suggestions: []string{"add a documentation deliverable"}}
}

// QualityLevel is a human-facing bucket derived from the weighted score.
type QualityLevel string

const (
	Excellent  QualityLevel = "excellent"
	Good       QualityLevel = "good"
	Acceptable QualityLevel = "acceptable"
	Poor       QualityLevel = "poor"
)

// Verdict is the overall outcome of verifying a delegation against a rule
// set (design §4.5).
type Verdict struct {
	Status       RuleStatus
	WeightedScore float64
	Quality      QualityLevel
	RuleResults  []RuleResult
}

// Verify evaluates every rule against deliverables and computes the
// overall verdict per design §4.5's weighted-score formula.
func Verify(h *Handler, rules []Rule, deliverables []Deliverable) (Verdict, error) {
	if len(rules) == 0 {
		return Verdict{}, errs.New(errs.InvalidArgument, "at least one rule is required")
	}
	var weightedSum, weightTotal float64
	anyRequiredFailed := false
	results := make([]RuleResult, 0, len(rules))
	for _, r := range rules {
		res := h.Evaluate(r, deliverables)
		results = append(results, res)
		weightedSum += res.Score * r.Weight
		weightTotal += r.Weight
		if r.Required && res.Status == RuleFailed {
			anyRequiredFailed = true
		}
	}
	weighted := 0.0
	if weightTotal > 0 {
		weighted = weightedSum / weightTotal
	}

	var status RuleStatus
	switch {
	case anyRequiredFailed:
		status = RuleFailed
	case weighted >= 90:
		status = RulePassed
	case weighted >= 60:
		status = RulePartial
	default:
		status = RuleFailed
	}

	var quality QualityLevel
	switch {
	case weighted >= 90:
		quality = Excellent
	case weighted >= 75:
		quality = Good
	case weighted >= 60:
		quality = Acceptable
	default:
		quality = Poor
	}

	return Verdict{Status: status, WeightedScore: weighted, Quality: quality, RuleResults: results}, nil
}
