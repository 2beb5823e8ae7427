// Package registry implements the eventually-consistent agent directory of
// design §4.4: CRDT last-writer-wins entries merged via vector clocks with
// an HLC tie-break, persisted through storage.KVStore, and disseminated by
// push-pull gossip. The merge and tombstone-GC shape is grounded on this
// codebase's peer table (networks/p2p/discover/table.go): bucket-local
// liveness bookkeeping plus periodic eviction of stale entries, generalized
// here to CRDT merge instead of simple LRU replacement.
package registry

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/a2afabric/core/clock"
	"github.com/a2afabric/core/internal/errs"
	"github.com/a2afabric/core/internal/log"
	"github.com/a2afabric/core/internal/metrics"
	"github.com/a2afabric/core/storage"
)

var logger = log.NewModuleLogger("registry")

// Status is an entry's lifecycle position.
type Status string

const (
	Active    Status = "ACTIVE"
	Suspended Status = "SUSPENDED"
	Tombstone Status = "TOMBSTONE"
)

// Entry is one agent's directory record (design §3).
type Entry struct {
	EntityID      string            `json:"entity_id"`
	DisplayName   string            `json:"display_name"`
	Endpoint      string            `json:"endpoint"`
	Capabilities  []string          `json:"capabilities"`
	RegisteredAt  time.Time         `json:"registered_at"`
	LastHeartbeat time.Time         `json:"last_heartbeat"`
	Version       uint64            `json:"version"`
	OriginNodeID  string            `json:"origin_node_id"`
	VectorClock   clock.VectorClock `json:"vector_clock"`
	HLC           clock.HLC         `json:"hlc"`
	Status        Status            `json:"status"`
}

func (e Entry) clone() Entry {
	e.Capabilities = append([]string(nil), e.Capabilities...)
	e.VectorClock = e.VectorClock.Clone()
	return e
}

const keyPrefix = "registry/entry/"

func entryKey(entityID string) []byte { return []byte(keyPrefix + entityID) }

// Registry owns one node's view of the directory.
type Registry struct {
	mu          sync.RWMutex
	nodeID      string
	store       storage.KVStore
	tombstoneTTL time.Duration
	livenessTimeout time.Duration

	entries map[string]Entry
}

// New constructs a Registry for nodeID backed by store, loading any entries
// already persisted there.
func New(nodeID string, store storage.KVStore, tombstoneTTL, livenessTimeout time.Duration) (*Registry, error) {
	if tombstoneTTL <= 0 {
		tombstoneTTL = 24 * time.Hour
	}
	if livenessTimeout <= 0 {
		livenessTimeout = 120 * time.Second
	}
	r := &Registry{
		nodeID:          nodeID,
		store:           store,
		tombstoneTTL:    tombstoneTTL,
		livenessTimeout: livenessTimeout,
		entries:         make(map[string]Entry),
	}
	raw, err := store.PrefixScan([]byte(keyPrefix))
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "load registry entries")
	}
	for _, v := range raw {
		var e Entry
		if err := json.Unmarshal(v, &e); err != nil {
			return nil, errs.Wrap(errs.Internal, err, "decode persisted registry entry")
		}
		r.entries[e.EntityID] = e
	}
	return r, nil
}

func (r *Registry) persist(e Entry) error {
	blob, err := json.Marshal(e)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "marshal registry entry")
	}
	return r.store.Put(entryKey(e.EntityID), blob)
}

// RegisterLocal creates or updates entityID's entry locally, bumping this
// node's vector clock component and HLC.
func (r *Registry) RegisterLocal(entityID, displayName, endpoint string, capabilities []string, nowMS int64) (Entry, error) {
	if entityID == "" {
		return Entry{}, errs.New(errs.InvalidArgument, "entity_id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	existing, had := r.entries[entityID]

	vc := clock.VectorClock{}
	hlc := clock.HLC{}
	registeredAt := now
	if had {
		vc = existing.VectorClock.Clone()
		hlc = existing.HLC
		registeredAt = existing.RegisteredAt
	}
	vc.Increment(r.nodeID)
	hlc = clock.Tick(hlc, nowMS)

	e := Entry{
		EntityID:      entityID,
		DisplayName:   displayName,
		Endpoint:      endpoint,
		Capabilities:  append([]string(nil), capabilities...),
		RegisteredAt:  registeredAt,
		LastHeartbeat: now,
		Version:       vc[r.nodeID],
		OriginNodeID:  r.nodeID,
		VectorClock:   vc,
		HLC:           hlc,
		Status:        Active,
	}
	r.entries[entityID] = e
	if err := r.persist(e); err != nil {
		return Entry{}, err
	}
	metrics.RegistryEntries.WithLabelValues(string(Active)).Inc()
	return e.clone(), nil
}

// UpdateHeartbeat refreshes last_heartbeat without bumping version, per
// design §4.4 ("does not bump version").
func (r *Registry) UpdateHeartbeat(entityID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[entityID]
	if !ok {
		return errs.New(errs.NotFound, "entity %s not registered", entityID)
	}
	e.LastHeartbeat = time.Now().UTC()
	r.entries[entityID] = e
	return r.persist(e)
}

// UnregisterLocal marks entityID as TOMBSTONE, bumping its clock; it is
// retained until the tombstone TTL elapses.
func (r *Registry) UnregisterLocal(entityID string, nowMS int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[entityID]
	if !ok {
		return errs.New(errs.NotFound, "entity %s not registered", entityID)
	}
	e.VectorClock = e.VectorClock.Clone().Increment(r.nodeID)
	e.Version = e.VectorClock[r.nodeID]
	e.HLC = clock.Tick(e.HLC, nowMS)
	e.Status = Tombstone
	e.LastHeartbeat = time.Now().UTC()
	r.entries[entityID] = e
	if err := r.persist(e); err != nil {
		return err
	}
	metrics.RegistryEntries.WithLabelValues(string(Tombstone)).Inc()
	return nil
}

// MergeEntry applies design §4.4's remote-merge rule, returning whether the
// remote entry was adopted (wholly or via tie-break).
func (r *Registry) MergeEntry(remote Entry) (adopted bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	local, had := r.entries[remote.EntityID]
	if !had {
		r.entries[remote.EntityID] = remote.clone()
		if err := r.persist(remote); err != nil {
			return false, err
		}
		return true, nil
	}

	switch local.VectorClock.Compare(remote.VectorClock) {
	case clock.Equal:
		return false, nil
	case clock.Before:
		// remote happens-after local: adopt remote outright.
		r.entries[remote.EntityID] = remote.clone()
		return true, r.persist(remote)
	case clock.After:
		// remote happens-before local: reject.
		return false, nil
	default:
		// concurrent: tombstones always shadow; otherwise tie-break by
		// higher HLC, then lexicographically lower origin_node_id loses
		// (higher origin_node_id wins) to make the rule total.
		merged := local
		winner := local
		adoptRemote := false
		switch {
		case remote.Status == Tombstone && local.Status != Tombstone:
			adoptRemote = true
		case local.Status == Tombstone && remote.Status != Tombstone:
			adoptRemote = false
		default:
			switch remote.HLC.Compare(local.HLC) {
			case 1:
				adoptRemote = true
			case -1:
				adoptRemote = false
			default:
				adoptRemote = remote.OriginNodeID > local.OriginNodeID
			}
		}
		if adoptRemote {
			winner = remote
		}
		merged = winner
		merged.VectorClock = clock.Join(local.VectorClock, remote.VectorClock)
		r.entries[remote.EntityID] = merged.clone()
		if err := r.persist(merged); err != nil {
			return false, err
		}
		return adoptRemote, nil
	}
}

// Get returns entityID's current locally-known state.
func (r *Registry) Get(entityID string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[entityID]
	if !ok {
		return Entry{}, errs.New(errs.NotFound, "entity %s not registered", entityID)
	}
	return e.clone(), nil
}

// FindByCapability linear-scans ACTIVE entries exposing cap. Results are
// best-effort consistent with this node's local view only.
func (r *Registry) FindByCapability(cap string) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Entry
	for _, e := range r.entries {
		if e.Status != Active {
			continue
		}
		for _, c := range e.Capabilities {
			if c == cap {
				out = append(out, e.clone())
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}

// Digest builds the push-pull gossip digest: entity_id -> max(vector_clock
// values), design §4.4.
func (r *Registry) Digest() map[string]uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]uint64, len(r.entries))
	for id, e := range r.entries {
		var max uint64
		for _, v := range e.VectorClock {
			if v > max {
				max = v
			}
		}
		out[id] = max
	}
	return out
}

// EntriesNewerThan returns, for a peer's digest, the locally-held entries
// whose max vector-clock component exceeds the peer's advertised value —
// the responder side of push-pull gossip.
func (r *Registry) EntriesNewerThan(peerDigest map[string]uint64) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Entry
	for id, e := range r.entries {
		var localMax uint64
		for _, v := range e.VectorClock {
			if v > localMax {
				localMax = v
			}
		}
		if localMax > peerDigest[id] {
			out = append(out, e.clone())
		}
	}
	return out
}

// AliveReport classifies every ACTIVE entry as alive or not based on the
// liveness timeout, without removing anything (design §4.4: "reported as
// not-alive but not removed").
func (r *Registry) AliveReport(now time.Time) map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]bool, len(r.entries))
	for id, e := range r.entries {
		if e.Status != Active {
			continue
		}
		out[id] = now.Sub(e.LastHeartbeat) <= r.livenessTimeout
	}
	return out
}

// GCTombstones deletes tombstoned entries past their TTL, returning how
// many were removed.
func (r *Registry) GCTombstones(now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, e := range r.entries {
		if e.Status != Tombstone {
			continue
		}
		if now.Sub(e.LastHeartbeat) <= r.tombstoneTTL {
			continue
		}
		delete(r.entries, id)
		if err := r.store.Delete(entryKey(id)); err != nil {
			return removed, errs.Wrap(errs.Internal, err, "delete tombstoned entry")
		}
		removed++
	}
	if removed > 0 {
		logger.Debug("garbage collected tombstones", "count", removed)
	}
	return removed, nil
}

// Count returns the number of entries currently tracked, any status.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
