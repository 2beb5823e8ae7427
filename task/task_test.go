package task

import "testing"

func newDelegation(id string) Delegation {
	return Delegation{
		TaskID:      id,
		DelegatorID: "client-1",
		DelegateeID: "provider-1",
		TaskType:    "build",
		RewardAmount: 100,
		RewardToken:  "AGT",
	}
}

func TestCreateStartsPending(t *testing.T) {
	tr := NewTracker()
	d, err := tr.Create(newDelegation("t-1"))
	if err != nil {
		t.Fatal(err)
	}
	if d.Status != Pending {
		t.Fatalf("expected PENDING, got %s", d.Status)
	}
}

func TestHappyPathTransitions(t *testing.T) {
	tr := NewTracker()
	tr.Create(newDelegation("t-1"))

	for _, to := range []Status{Assigned, InProgress, Completed} {
		d, err := tr.Transition("t-1", to, "progress")
		if err != nil {
			t.Fatalf("transition to %s: %v", to, err)
		}
		if d.Status != to {
			t.Fatalf("expected %s, got %s", to, d.Status)
		}
	}
	final, err := tr.Get("t-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(final.History()) != 4 {
		t.Fatalf("expected 4 history entries (create + 3 transitions), got %d", len(final.History()))
	}
}

func TestPendingRejectedIsTerminal(t *testing.T) {
	tr := NewTracker()
	tr.Create(newDelegation("t-1"))
	d, err := tr.Transition("t-1", Rejected, "declined")
	if err != nil {
		t.Fatal(err)
	}
	if d.Status != Rejected {
		t.Fatalf("expected REJECTED, got %s", d.Status)
	}
	if _, err := tr.Transition("t-1", Assigned, "too late"); err == nil {
		t.Fatal("expected transition out of REJECTED to fail")
	}
}

func TestFailedReachableFromAnyActiveState(t *testing.T) {
	tr := NewTracker()
	tr.Create(newDelegation("t-1"))
	tr.Transition("t-1", Assigned, "accept")
	d, err := tr.Transition("t-1", Failed, "provider errored")
	if err != nil {
		t.Fatal(err)
	}
	if d.Status != Failed {
		t.Fatalf("expected FAILED, got %s", d.Status)
	}
}

func TestCancelledReachableFromAnyNonTerminalState(t *testing.T) {
	tr := NewTracker()
	tr.Create(newDelegation("t-1"))
	d, err := tr.Transition("t-1", Cancelled, "client cancelled")
	if err != nil {
		t.Fatal(err)
	}
	if d.Status != Cancelled {
		t.Fatalf("expected CANCELLED, got %s", d.Status)
	}
}

func TestInvalidTransitionRejected(t *testing.T) {
	tr := NewTracker()
	tr.Create(newDelegation("t-1"))
	if _, err := tr.Transition("t-1", Completed, "skip ahead"); err == nil {
		t.Fatal("expected PENDING -> COMPLETED to be rejected")
	}
}
