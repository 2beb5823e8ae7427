package registry

import (
	"testing"
	"time"

	"github.com/a2afabric/core/storage"
)

func newTestRegistry(t *testing.T, nodeID string) *Registry {
	t.Helper()
	r, err := New(nodeID, storage.NewMemoryStore(), time.Hour, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestRegisterLocalAndGet(t *testing.T) {
	r := newTestRegistry(t, "node-1")
	e, err := r.RegisterLocal("svc-1", "Service One", "tcp://svc1", []string{"store"}, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if e.Status != Active || e.Version != 1 {
		t.Fatalf("unexpected entry after register: %+v", e)
	}
	got, err := r.Get("svc-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Endpoint != "tcp://svc1" {
		t.Fatalf("unexpected endpoint: %s", got.Endpoint)
	}
}

func TestHeartbeatDoesNotBumpVersion(t *testing.T) {
	r := newTestRegistry(t, "node-1")
	e, _ := r.RegisterLocal("svc-1", "Service One", "tcp://svc1", nil, 1000)
	if err := r.UpdateHeartbeat("svc-1"); err != nil {
		t.Fatal(err)
	}
	got, _ := r.Get("svc-1")
	if got.Version != e.Version {
		t.Fatalf("expected version unchanged by heartbeat, got %d want %d", got.Version, e.Version)
	}
}

func TestUnregisterLocalTombstones(t *testing.T) {
	r := newTestRegistry(t, "node-1")
	r.RegisterLocal("svc-1", "Service One", "tcp://svc1", nil, 1000)
	if err := r.UnregisterLocal("svc-1", 2000); err != nil {
		t.Fatal(err)
	}
	got, _ := r.Get("svc-1")
	if got.Status != Tombstone {
		t.Fatalf("expected TOMBSTONE, got %s", got.Status)
	}
}

// TestRegistryConvergenceAfterTwoGossipRounds implements design §8 scenario
// 3: concurrent registrations of the same entity on two nodes converge to
// the higher-HLC writer's capabilities after one round, and agree on
// version after a second round following a heartbeat bump.
func TestRegistryConvergenceAfterTwoGossipRounds(t *testing.T) {
	n1 := newTestRegistry(t, "N1")
	n2 := newTestRegistry(t, "N2")

	e1, err := n1.RegisterLocal("svc-1", "Service One", "tcp://n1", []string{"store"}, 1000)
	if err != nil {
		t.Fatal(err)
	}
	e2, err := n2.RegisterLocal("svc-1", "Service One", "tcp://n2", []string{"search"}, 1001)
	if err != nil {
		t.Fatal(err)
	}
	if e1.HLC.Compare(e2.HLC) >= 0 {
		t.Fatalf("test setup expects N2's write to have the higher HLC: %+v vs %+v", e1.HLC, e2.HLC)
	}

	// Round 1: N1 merges N2's entry and vice versa.
	adopted1, err := n1.MergeEntry(e2)
	if err != nil {
		t.Fatal(err)
	}
	if !adopted1 {
		t.Fatal("expected N1 to adopt N2's higher-HLC concurrent write")
	}
	adopted2, err := n2.MergeEntry(e1)
	if err != nil {
		t.Fatal(err)
	}
	if adopted2 {
		t.Fatal("expected N2 to reject N1's lower-HLC concurrent write")
	}

	merged1, _ := n1.Get("svc-1")
	merged2, _ := n2.Get("svc-1")
	if len(merged1.Capabilities) != 1 || merged1.Capabilities[0] != "search" {
		t.Fatalf("expected N1's merged capabilities to come from the higher-HLC writer, got %v", merged1.Capabilities)
	}
	if len(merged2.Capabilities) != 1 || merged2.Capabilities[0] != "search" {
		t.Fatalf("expected N2's capabilities unchanged at 'search', got %v", merged2.Capabilities)
	}

	// Round 2: N1 heartbeat-bumps its version (a fresh register_local call);
	// after exchanging again, both nodes agree on that version.
	bumped, err := n1.RegisterLocal("svc-1", "Service One", "tcp://n1", []string{"search", "store"}, 2000)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := n2.MergeEntry(bumped); err != nil {
		t.Fatal(err)
	}
	final1, _ := n1.Get("svc-1")
	final2, _ := n2.Get("svc-1")
	if final1.VectorClock.Compare(final2.VectorClock) != 0 {
		t.Fatalf("expected both nodes to agree on vector clock after round 2: %v vs %v", final1.VectorClock, final2.VectorClock)
	}
}

func TestMergeEntryTombstoneShadowsConcurrentActive(t *testing.T) {
	n1 := newTestRegistry(t, "N1")
	n2 := newTestRegistry(t, "N2")

	n1.RegisterLocal("svc-1", "Service One", "tcp://n1", []string{"store"}, 1000)
	e1, _ := n1.Get("svc-1")

	n2.RegisterLocal("svc-1", "Service One", "tcp://n2", []string{"store"}, 1000)
	n2.UnregisterLocal("svc-1", 2000)
	tombstoned, _ := n2.Get("svc-1")

	adopted, err := n1.MergeEntry(tombstoned)
	if err != nil {
		t.Fatal(err)
	}
	if !adopted {
		t.Fatal("expected tombstone to shadow concurrent active entry")
	}
	got, _ := n1.Get("svc-1")
	if got.Status != Tombstone {
		t.Fatalf("expected N1's entry to become TOMBSTONE, got %s", got.Status)
	}
	_ = e1
}

func TestMergeEntryNoOpWhenLocalStrictlyAhead(t *testing.T) {
	r := newTestRegistry(t, "N1")
	r.RegisterLocal("svc-1", "Service One", "tcp://n1", []string{"store"}, 1000)
	stale, _ := r.Get("svc-1")
	r.RegisterLocal("svc-1", "Service One", "tcp://n1", []string{"store"}, 2000)

	adopted, err := r.MergeEntry(stale)
	if err != nil {
		t.Fatal(err)
	}
	if adopted {
		t.Fatal("merging a strict ancestor should be a no-op")
	}
}

func TestFindByCapabilityOnlyMatchesActive(t *testing.T) {
	r := newTestRegistry(t, "N1")
	r.RegisterLocal("svc-1", "One", "tcp://a", []string{"store"}, 1000)
	r.RegisterLocal("svc-2", "Two", "tcp://b", []string{"store"}, 1000)
	r.UnregisterLocal("svc-2", 2000)

	found := r.FindByCapability("store")
	if len(found) != 1 || found[0].EntityID != "svc-1" {
		t.Fatalf("expected only svc-1 to match, got %+v", found)
	}
}

func TestGCTombstonesRemovesOnlyExpired(t *testing.T) {
	r := newTestRegistry(t, "N1")
	r.RegisterLocal("svc-1", "One", "tcp://a", nil, 1000)
	r.UnregisterLocal("svc-1", 2000)

	removed, err := r.GCTombstones(time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if removed != 0 {
		t.Fatal("expected tombstone within TTL to survive GC")
	}

	removed, err = r.GCTombstones(time.Now().UTC().Add(2 * time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Fatalf("expected tombstone past TTL to be collected, got %d", removed)
	}
}

func TestAliveReportReflectsLivenessTimeout(t *testing.T) {
	r, err := New("N1", storage.NewMemoryStore(), time.Hour, 10*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	r.RegisterLocal("svc-1", "One", "tcp://a", nil, 1000)
	time.Sleep(20 * time.Millisecond)
	report := r.AliveReport(time.Now().UTC())
	if report["svc-1"] {
		t.Fatal("expected svc-1 to be reported not-alive after the liveness timeout")
	}
}
