package governance

import (
	"sync"
	"time"

	"github.com/a2afabric/core/internal/errs"
	"github.com/a2afabric/core/internal/log"
)

var timelockLogger = log.NewModuleLogger("governance.timelock")

// QueuedTx is a timelock entry created by queueing a SUCCEEDED proposal
// (design §4.7.3).
type QueuedTx struct {
	ID           string    `json:"id"`
	ProposalID   string    `json:"proposal_id"`
	QueuedAt     time.Time `json:"queued_at"`
	ExecutableAt time.Time `json:"executable_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	Cancelled    bool      `json:"cancelled"`
	CancelReason string    `json:"cancel_reason,omitempty"`
}

// Timelock gates proposal execution behind a delay, with guardian
// authority: pausing takes M-of-N concurring guardians, while unpause and
// cancel take any single configured guardian (SPEC_FULL.md §4 supplement,
// grounded on this codebase's weighted multi-signature account key:
// accountkey/account_key_weighted_multi_sig.go — a threshold of named
// signers must concur before an authorization-gated action proceeds).
type Timelock struct {
	mu        sync.Mutex
	delay     time.Duration
	emergency time.Duration
	grace     time.Duration

	guardians map[string]bool
	threshold int

	paused        bool
	pauseApprovals map[string]bool

	byID map[string]*QueuedTx
}

// NewTimelock constructs a Timelock with the given delays, grace period,
// and guardian set; threshold concurring guardians are needed to pause,
// and any one guardian may unpause or cancel a queued entry.
func NewTimelock(delay, emergency, grace time.Duration, guardians []string, threshold int) *Timelock {
	g := make(map[string]bool, len(guardians))
	for _, id := range guardians {
		g[id] = true
	}
	if threshold <= 0 {
		threshold = 1
	}
	return &Timelock{
		delay:          delay,
		emergency:      emergency,
		grace:          grace,
		guardians:      g,
		threshold:      threshold,
		pauseApprovals: make(map[string]bool),
		byID:           make(map[string]*QueuedTx),
	}
}

// Queue creates a timelock entry for a SUCCEEDED proposal.
func (tl *Timelock) Queue(queuedTxID, proposalID string, now time.Time, emergency bool) (*QueuedTx, error) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	if _, exists := tl.byID[queuedTxID]; exists {
		return nil, errs.New(errs.InvalidArgument, "queued tx %s already exists", queuedTxID)
	}
	delay := tl.delay
	if emergency {
		delay = tl.emergency
	}
	qt := &QueuedTx{
		ID:           queuedTxID,
		ProposalID:   proposalID,
		QueuedAt:     now,
		ExecutableAt: now.Add(delay),
		ExpiresAt:    now.Add(delay).Add(tl.grace),
	}
	tl.byID[queuedTxID] = qt
	out := *qt
	return &out, nil
}

func (tl *Timelock) isGuardian(id string) bool {
	return tl.guardians[id]
}

// Pause requests a guardian-approved pause; once threshold distinct
// guardians have called Pause without an intervening Unpause, execution is
// blocked.
func (tl *Timelock) Pause(guardianID string) error {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	if !tl.isGuardian(guardianID) {
		return errs.New(errs.InvalidArgument, "%s is not a configured guardian", guardianID)
	}
	tl.pauseApprovals[guardianID] = true
	if len(tl.pauseApprovals) >= tl.threshold {
		tl.paused = true
		timelockLogger.Warn("timelock paused", "approvals", len(tl.pauseApprovals), "threshold", tl.threshold)
	}
	return nil
}

// Unpause clears the pause state and any accumulated approvals; any single
// configured guardian may call this (matching the spec's unpause prose),
// distinct from the M-of-N pause gate.
func (tl *Timelock) Unpause(guardianID string) error {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	if !tl.isGuardian(guardianID) {
		return errs.New(errs.InvalidArgument, "%s is not a configured guardian", guardianID)
	}
	tl.paused = false
	tl.pauseApprovals = make(map[string]bool)
	return nil
}

// Paused reports whether execution is currently blocked.
func (tl *Timelock) Paused() bool {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return tl.paused
}

// Cancel is guardian-only and must occur before execution.
func (tl *Timelock) Cancel(guardianID, queuedTxID, reason string) error {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	if !tl.isGuardian(guardianID) {
		return errs.New(errs.InvalidArgument, "%s is not a configured guardian", guardianID)
	}
	qt, ok := tl.byID[queuedTxID]
	if !ok {
		return errs.New(errs.NotFound, "queued tx %s not found", queuedTxID)
	}
	qt.Cancelled = true
	qt.CancelReason = reason
	return nil
}

// Ready reports whether queuedTxID may execute now: not paused, not
// cancelled, past executable_at, and not past expires_at.
func (tl *Timelock) Ready(queuedTxID string, now time.Time) (*QueuedTx, error) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	qt, ok := tl.byID[queuedTxID]
	if !ok {
		return nil, errs.New(errs.NotFound, "queued tx %s not found", queuedTxID)
	}
	if qt.Cancelled {
		return nil, errs.New(errs.PreconditionFailed, "queued tx %s was cancelled", queuedTxID)
	}
	if now.After(qt.ExpiresAt) {
		return nil, errs.New(errs.Expired, "queued tx %s expired", queuedTxID)
	}
	if tl.paused {
		return nil, errs.New(errs.TimelockPaused, "timelock is paused")
	}
	if now.Before(qt.ExecutableAt) {
		return nil, errs.New(errs.TimelockNotElapsed, "queued tx %s not yet executable", queuedTxID)
	}
	out := *qt
	return &out, nil
}

// Remove deletes a queued entry, e.g. after successful execution.
func (tl *Timelock) Remove(queuedTxID string) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	delete(tl.byID, queuedTxID)
}

// Get returns a copy of the queued entry.
func (tl *Timelock) Get(queuedTxID string) (*QueuedTx, error) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	qt, ok := tl.byID[queuedTxID]
	if !ok {
		return nil, errs.New(errs.NotFound, "queued tx %s not found", queuedTxID)
	}
	out := *qt
	return &out, nil
}
