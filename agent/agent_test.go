package agent

import (
	"testing"
	"time"

	agentcrypto "github.com/a2afabric/core/crypto"
	"github.com/a2afabric/core/escrow"
	"github.com/a2afabric/core/storage"
	"github.com/a2afabric/core/task"
)

func newTestAgent(t *testing.T, id string) *Agent {
	t.Helper()
	kp, err := agentcrypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	a, err := NewAgent(Config{AgentID: id, Identity: kp, Store: storage.NewMemoryStore()})
	if err != nil {
		t.Fatal(err)
	}
	return a
}

// TestAgentsCompleteHandshakeAndShareSessionKey wires two Agent instances
// together and runs the full six-step handshake between their embedded
// Engines, the same scenario validated at the package level but now
// exercised through the top-level wiring.
func TestAgentsCompleteHandshakeAndShareSessionKey(t *testing.T) {
	alpha := newTestAgent(t, "alpha")
	beta := newTestAgent(t, "beta")

	step1, err := alpha.Handshake.InitiateHandshake("beta")
	if err != nil {
		t.Fatal(err)
	}
	step2, err := beta.Handshake.HandleInit(step1)
	if err != nil {
		t.Fatal(err)
	}
	step3, err := alpha.Handshake.HandleAck(step2)
	if err != nil {
		t.Fatal(err)
	}
	step4, err := beta.Handshake.HandleChallengeResponse(step3)
	if err != nil {
		t.Fatal(err)
	}
	step5, err := alpha.Handshake.HandleEstablished(step4)
	if err != nil {
		t.Fatal(err)
	}
	step6, err := beta.Handshake.HandleConfirm(step5)
	if err != nil {
		t.Fatal(err)
	}
	aSessID, err := alpha.Handshake.HandleReady(step6)
	if err != nil {
		t.Fatal(err)
	}
	bSessID := step6.SessionID

	aSess, err := alpha.Sessions.Get(aSessID)
	if err != nil {
		t.Fatal(err)
	}
	bSess, err := beta.Sessions.Get(bSessID)
	if err != nil {
		t.Fatal(err)
	}
	if aSess.SessionKey != bSess.SessionKey {
		t.Fatal("expected both agents to derive the identical session key")
	}
}

// TestAgentRegistersAndTracksTaskEscrowLifecycle exercises the registry,
// ledger, task tracker, and escrow manager wired into a single Agent.
func TestAgentRegistersAndTracksTaskEscrowLifecycle(t *testing.T) {
	a := newTestAgent(t, "alpha")

	if _, err := a.Registry.RegisterLocal("svc-1", "Storage Service", "tcp://svc-1", []string{"store"}, time.Now().UnixMilli()); err != nil {
		t.Fatal(err)
	}
	entry, err := a.Registry.Get("svc-1")
	if err != nil {
		t.Fatal(err)
	}
	if entry.DisplayName != "Storage Service" {
		t.Fatalf("unexpected entry: %+v", entry)
	}

	a.Ledger.Credit("client-1", "AGT", 1000)

	if _, err := a.Escrow.Create(escrow.Escrow{
		EscrowID:   "esc-1",
		ClientID:   "client-1",
		ProviderID: "provider-1",
		Token:      "AGT",
		Amount:     100,
		Deadline:   time.Now().UTC().Add(time.Hour),
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Escrow.Lock("esc-1"); err != nil {
		t.Fatal(err)
	}
	bal, _ := a.Ledger.Balance("client-1", "AGT")
	if bal != 900 {
		t.Fatalf("expected client balance 900 after lock, got %d", bal)
	}

	if _, err := a.Tasks.Create(task.Delegation{
		TaskID:      "t-1",
		DelegatorID: "client-1",
		DelegateeID: "provider-1",
		EscrowID:    "esc-1",
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Tasks.Transition("t-1", task.Assigned, "escrow locked"); err != nil {
		t.Fatal(err)
	}
}
