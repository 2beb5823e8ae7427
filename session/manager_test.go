package session

import (
	"testing"
	"time"
)

func newTestManager() *Manager {
	return NewManager(time.Hour, 64, 5*time.Minute)
}

func TestCreateAndValidateSession(t *testing.T) {
	m := newTestManager()
	id, err := m.CreateSession("alpha", "beta", [32]byte{1})
	if err != nil {
		t.Fatal(err)
	}
	if !m.Validate(id, "beta") {
		t.Fatal("expected session to validate against correct peer")
	}
	if m.Validate(id, "gamma") {
		t.Fatal("expected validate to fail for wrong peer")
	}
	s, err := m.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	if s.State != Ready {
		t.Fatalf("expected READY session, got %s", s.State)
	}
}

func TestSequenceWindowRejectsDuplicates(t *testing.T) {
	m := newTestManager()
	id, _ := m.CreateSession("alpha", "beta", [32]byte{1})

	ok, err := m.ValidateSequence(id, 1)
	if err != nil || !ok {
		t.Fatalf("expected first seq to be accepted: %v %v", ok, err)
	}
	ok, _ = m.ValidateSequence(id, 1)
	if ok {
		t.Fatal("expected duplicate sequence to be rejected")
	}
}

func TestSequenceWindowToleratesReorderingWithinWindow(t *testing.T) {
	m := NewManager(time.Hour, 64, 5*time.Minute)
	id, _ := m.CreateSession("alpha", "beta", [32]byte{1})

	for _, seq := range []uint64{5, 3, 4} {
		ok, err := m.ValidateSequence(id, seq)
		if err != nil || !ok {
			t.Fatalf("expected seq %d to be accepted (benign reordering): %v %v", seq, ok, err)
		}
	}
	ok, _ := m.ValidateSequence(id, 3)
	if ok {
		t.Fatal("expected re-delivery of seq 3 to be rejected")
	}
}

func TestSequenceWindowRejectsTooFarOutOfWindow(t *testing.T) {
	m := NewManager(time.Hour, 64, 5*time.Minute)
	id, _ := m.CreateSession("alpha", "beta", [32]byte{1})

	m.ValidateSequence(id, 1000)
	// low-side boundary: a sequence exactly W behind highest_recv_seq is
	// already outside the window.
	ok, _ := m.ValidateSequence(id, 1000-64)
	if ok {
		t.Fatal("expected sequence exactly W behind highest to be rejected")
	}
	ok, _ = m.ValidateSequence(id, 1000-63)
	if !ok {
		t.Fatal("expected sequence W-1 behind highest to be accepted")
	}
}

func TestSequenceWindowRejectsForwardJumpPastWindow(t *testing.T) {
	m := NewManager(time.Hour, 3, 5*time.Minute)
	id, _ := m.CreateSession("alpha", "beta", [32]byte{1})

	ok, err := m.ValidateSequence(id, 1)
	if err != nil || !ok {
		t.Fatalf("expected first seq to be accepted: %v %v", ok, err)
	}
	// highest_recv_seq(1) + W(3) + 1 = 5 is the named reject boundary.
	ok, _ = m.ValidateSequence(id, 5)
	if ok {
		t.Fatal("expected a forward jump past highest_recv_seq+W+1 to be rejected")
	}
	ok, _ = m.ValidateSequence(id, 4)
	if !ok {
		t.Fatal("expected a forward jump of exactly W to be accepted")
	}
}

func TestNextSequenceIsMonotonic(t *testing.T) {
	m := newTestManager()
	id, _ := m.CreateSession("alpha", "beta", [32]byte{1})
	seq1, _ := m.NextSequence(id)
	seq2, _ := m.NextSequence(id)
	if seq2 != seq1+1 {
		t.Fatalf("expected monotonic increase, got %d then %d", seq1, seq2)
	}
}

func TestReapRemovesExpiredSessions(t *testing.T) {
	m := NewManager(time.Millisecond, 64, 5*time.Minute)
	id, _ := m.CreateSession("alpha", "beta", [32]byte{1})
	time.Sleep(5 * time.Millisecond)
	removed := m.Reap()
	if removed != 1 {
		t.Fatalf("expected 1 session reaped, got %d", removed)
	}
	if _, err := m.Get(id); err == nil {
		t.Fatal("expected session to be gone after reap")
	}
	// idempotent
	if removed2 := m.Reap(); removed2 != 0 {
		t.Fatalf("expected second reap to be a no-op, got %d", removed2)
	}
}

func TestErrorStateIsAbsorbing(t *testing.T) {
	m := newTestManager()
	id, _ := m.CreateSession("alpha", "beta", [32]byte{1})
	if err := m.SetState(id, Error); err != nil {
		t.Fatal(err)
	}
	if err := m.SetState(id, Ready); err == nil {
		t.Fatal("expected transition out of ERROR to fail")
	}
}

func TestCheckReplayRejectsDuplicateNonceAndStaleTimestamp(t *testing.T) {
	m := newTestManager()
	now := time.Now().UTC()
	if err := m.CheckReplay("alpha", "nonce-1", now, 30*time.Second, 5*time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := m.CheckReplay("alpha", "nonce-1", now, 30*time.Second, 5*time.Minute); err == nil {
		t.Fatal("expected replay of the same nonce to be rejected")
	}
	stale := now.Add(-time.Minute)
	if err := m.CheckReplay("alpha", "nonce-2", stale, 30*time.Second, 5*time.Minute); err == nil {
		t.Fatal("expected stale timestamp to be rejected")
	}
}

func TestCheckReplayAcceptsAtToleranceBoundary(t *testing.T) {
	m := newTestManager()
	now := time.Now().UTC()
	atBoundary := now.Add(-30 * time.Second)
	if err := m.CheckReplay("alpha", "nonce-b", atBoundary, 30*time.Second, 5*time.Minute); err != nil {
		t.Fatalf("expected timestamp exactly at tolerance boundary to be accepted: %v", err)
	}
}
