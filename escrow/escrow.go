// Package escrow implements fund locking and conditional release over
// design §4.6, grounded on this codebase's service-chain bridge manager
// (node/sc/bridge_manager.go): a tracked map of in-flight transfers, each
// advancing through a fixed state graph with the underlying value movement
// applied atomically alongside the status change, rolled back on failure.
package escrow

import (
	"sync"
	"time"

	"github.com/a2afabric/core/internal/errs"
	"github.com/a2afabric/core/internal/log"
	"github.com/a2afabric/core/internal/metrics"
	"github.com/a2afabric/core/ledger"
)

var logger = log.NewModuleLogger("escrow")

// Status is an escrow's position in its state graph.
type Status string

const (
	Created   Status = "CREATED"
	Locked    Status = "LOCKED"
	Completed Status = "COMPLETED"
	Released  Status = "RELEASED"
	Cancelled Status = "CANCELLED"
	Disputed  Status = "DISPUTED"
	Expired   Status = "EXPIRED"
)

func (s Status) terminal() bool {
	return s == Released || s == Cancelled || s == Expired
}

// Resolution is a dispute's outcome.
type Resolution string

const (
	ResolutionPending      Resolution = "PENDING"
	ResolutionClientWins   Resolution = "CLIENT_WINS"
	ResolutionProviderWins Resolution = "PROVIDER_WINS"
	ResolutionSplit        Resolution = "SPLIT"
)

// Escrow is a holding account conditionally disbursing funds between a
// client and a provider (design §3).
type Escrow struct {
	EscrowID         string     `json:"escrow_id"`
	TaskID           string     `json:"task_id"`
	ClientID         string     `json:"client_id"`
	ProviderID       string     `json:"provider_id"`
	Token            string     `json:"token"`
	Amount           uint64     `json:"amount"`
	Status           Status     `json:"status"`
	CreatedAt        time.Time  `json:"created_at"`
	Deadline         time.Time  `json:"deadline"`
	ReleasedAt       *time.Time `json:"released_at,omitempty"`
	DisputeReason    string     `json:"dispute_reason,omitempty"`
	Resolution       Resolution `json:"resolution"`
	ResolutionAmount uint64     `json:"resolution_amount,omitempty"`
}

// Manager owns the set of escrows created on this node, applying ledger
// movements atomically with each status transition.
type Manager struct {
	mu     sync.Mutex
	ledger *ledger.Ledger
	byID   map[string]*Escrow
}

// NewManager constructs a Manager over ledger l.
func NewManager(l *ledger.Ledger) *Manager {
	return &Manager{ledger: l, byID: make(map[string]*Escrow)}
}

// Create registers a new CREATED escrow. Amount must be positive, and at
// most one non-terminal escrow may exist per task_id at a time (design §3).
func (m *Manager) Create(e Escrow) (*Escrow, error) {
	if e.EscrowID == "" || e.ClientID == "" || e.ProviderID == "" {
		return nil, errs.New(errs.InvalidArgument, "escrow_id, client_id, provider_id required")
	}
	if e.Amount == 0 {
		return nil, errs.New(errs.InvalidArgument, "escrow amount must be positive")
	}
	e.Status = Created
	e.Resolution = ResolutionPending
	e.CreatedAt = time.Now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byID[e.EscrowID]; exists {
		return nil, errs.New(errs.InvalidArgument, "escrow %s already exists", e.EscrowID)
	}
	if e.TaskID != "" {
		for _, existing := range m.byID {
			if existing.TaskID == e.TaskID && !existing.Status.terminal() {
				return nil, errs.New(errs.InvalidArgument, "task %s already has an active escrow %s", e.TaskID, existing.EscrowID)
			}
		}
	}
	stored := e
	m.byID[e.EscrowID] = &stored
	out := stored
	return &out, nil
}

// Get returns a copy of the escrow by id.
func (m *Manager) Get(escrowID string) (*Escrow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[escrowID]
	if !ok {
		return nil, errs.New(errs.NotFound, "escrow %s not found", escrowID)
	}
	out := *e
	return &out, nil
}

func (m *Manager) setStatus(e *Escrow, to Status) {
	e.Status = to
	metrics.EscrowTransitions.WithLabelValues(string(to)).Inc()
	logger.Debug("escrow transition", "escrow_id", e.EscrowID, "to", to)
}

// Lock transitions CREATED -> LOCKED, debiting the client's balance. If the
// debit fails (insufficient funds), the escrow's status is left unchanged.
func (m *Manager) Lock(escrowID string) (*Escrow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[escrowID]
	if !ok {
		return nil, errs.New(errs.NotFound, "escrow %s not found", escrowID)
	}
	if e.Status != Created {
		return nil, errs.New(errs.PreconditionFailed, "escrow %s is %s, expected CREATED", escrowID, e.Status)
	}
	if err := m.ledger.Debit(e.ClientID, e.Token, e.Amount); err != nil {
		return nil, err
	}
	m.setStatus(e, Locked)
	out := *e
	return &out, nil
}

// MarkComplete transitions LOCKED -> COMPLETED: the provider asserts the
// deliverable is done, pending verification before release.
func (m *Manager) MarkComplete(escrowID string) (*Escrow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[escrowID]
	if !ok {
		return nil, errs.New(errs.NotFound, "escrow %s not found", escrowID)
	}
	if e.Status != Locked {
		return nil, errs.New(errs.PreconditionFailed, "escrow %s is %s, expected LOCKED", escrowID, e.Status)
	}
	m.setStatus(e, Completed)
	out := *e
	return &out, nil
}

// Release transitions COMPLETED -> RELEASED, crediting the provider the
// full amount. Called once verification reports PASSED.
func (m *Manager) Release(escrowID string) (*Escrow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[escrowID]
	if !ok {
		return nil, errs.New(errs.NotFound, "escrow %s not found", escrowID)
	}
	if e.Status != Completed {
		return nil, errs.New(errs.PreconditionFailed, "escrow %s is %s, expected COMPLETED", escrowID, e.Status)
	}
	if err := m.ledger.Credit(e.ProviderID, e.Token, e.Amount); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	e.ReleasedAt = &now
	m.setStatus(e, Released)
	out := *e
	return &out, nil
}

// Dispute transitions LOCKED -> DISPUTED, opened by either party.
func (m *Manager) Dispute(escrowID, reason string) (*Escrow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[escrowID]
	if !ok {
		return nil, errs.New(errs.NotFound, "escrow %s not found", escrowID)
	}
	if e.Status != Locked {
		return nil, errs.New(errs.PreconditionFailed, "escrow %s is %s, expected LOCKED", escrowID, e.Status)
	}
	e.DisputeReason = reason
	m.setStatus(e, Disputed)
	out := *e
	return &out, nil
}

// Resolve transitions DISPUTED -> COMPLETED per the named resolution,
// crediting/refunding funds atomically with the status change:
//   - CLIENT_WINS: refund full amount to client, 0 to provider.
//   - PROVIDER_WINS: credit full amount to provider.
//   - SPLIT: credit resolutionAmount to provider, refund the remainder to
//     the client.
func (m *Manager) Resolve(escrowID string, resolution Resolution, resolutionAmount uint64) (*Escrow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[escrowID]
	if !ok {
		return nil, errs.New(errs.NotFound, "escrow %s not found", escrowID)
	}
	if e.Status != Disputed {
		return nil, errs.New(errs.PreconditionFailed, "escrow %s is %s, expected DISPUTED", escrowID, e.Status)
	}

	var toProvider, toClient uint64
	switch resolution {
	case ResolutionClientWins:
		toClient = e.Amount
	case ResolutionProviderWins:
		toProvider = e.Amount
	case ResolutionSplit:
		if resolutionAmount > e.Amount {
			return nil, errs.New(errs.InvalidArgument, "resolution amount %d exceeds escrow amount %d", resolutionAmount, e.Amount)
		}
		toProvider = resolutionAmount
		toClient = e.Amount - resolutionAmount
	default:
		return nil, errs.New(errs.InvalidArgument, "unknown resolution %q", resolution)
	}

	if toProvider > 0 {
		if err := m.ledger.Credit(e.ProviderID, e.Token, toProvider); err != nil {
			return nil, err
		}
	}
	if toClient > 0 {
		if err := m.ledger.Credit(e.ClientID, e.Token, toClient); err != nil {
			if toProvider > 0 {
				if rbErr := m.ledger.Debit(e.ProviderID, e.Token, toProvider); rbErr != nil {
					return nil, errs.Wrap(errs.Internal, rbErr, "rollback provider credit after failed client refund")
				}
			}
			return nil, err
		}
	}

	e.Resolution = resolution
	e.ResolutionAmount = resolutionAmount
	m.setStatus(e, Completed)
	out := *e
	return &out, nil
}

// Cancel transitions CREATED|LOCKED -> CANCELLED, refunding any locked
// funds to the client.
func (m *Manager) Cancel(escrowID string) (*Escrow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[escrowID]
	if !ok {
		return nil, errs.New(errs.NotFound, "escrow %s not found", escrowID)
	}
	if e.Status != Created && e.Status != Locked {
		return nil, errs.New(errs.PreconditionFailed, "escrow %s is %s, cannot cancel", escrowID, e.Status)
	}
	if e.Status == Locked {
		if err := m.ledger.Credit(e.ClientID, e.Token, e.Amount); err != nil {
			return nil, err
		}
	}
	m.setStatus(e, Cancelled)
	out := *e
	return &out, nil
}

// expire transitions LOCKED -> EXPIRED, refunding the client. Unexported:
// only the sweeper (expiry.go) is expected to call it on deadline.
func (m *Manager) expire(escrowID string) (*Escrow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[escrowID]
	if !ok {
		return nil, errs.New(errs.NotFound, "escrow %s not found", escrowID)
	}
	if e.Status != Locked {
		return nil, errs.New(errs.PreconditionFailed, "escrow %s is %s, expected LOCKED", escrowID, e.Status)
	}
	if !time.Now().UTC().After(e.Deadline) {
		return nil, errs.New(errs.PreconditionFailed, "escrow %s deadline not yet passed", escrowID)
	}
	if err := m.ledger.Credit(e.ClientID, e.Token, e.Amount); err != nil {
		return nil, err
	}
	m.setStatus(e, Expired)
	out := *e
	return &out, nil
}

// lockedSnapshot returns the ids of all currently LOCKED escrows, used by
// the sweeper to find expiry candidates without holding the lock while
// calling back into expire.
func (m *Manager) lockedSnapshot() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, e := range m.byID {
		if e.Status == Locked {
			ids = append(ids, id)
		}
	}
	return ids
}
