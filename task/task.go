// Package task implements the delegation state machine of design §4.5,
// grounded on this codebase's bridge transaction pool (node/sc/bridge_tx_pool.go):
// a tracked collection of in-flight units of work keyed by id, each
// advancing through a fixed set of permitted status transitions under a
// single mutex, with history retained for audit.
package task

import (
	"sync"
	"time"

	"github.com/a2afabric/core/internal/errs"
	"github.com/a2afabric/core/internal/log"
)

var logger = log.NewModuleLogger("task")

// Priority is a delegation's urgency tier.
type Priority string

const (
	Low      Priority = "LOW"
	Normal   Priority = "NORMAL"
	High     Priority = "HIGH"
	Urgent   Priority = "URGENT"
	Emergency Priority = "EMERGENCY"
)

// Status is a delegation's position in its lifecycle.
type Status string

const (
	Pending     Status = "PENDING"
	Assigned    Status = "ASSIGNED"
	InProgress  Status = "IN_PROGRESS"
	Completed   Status = "COMPLETED"
	Failed      Status = "FAILED"
	Cancelled   Status = "CANCELLED"
	Timeout     Status = "TIMEOUT"
	Rejected    Status = "REJECTED"
)

func (s Status) terminal() bool {
	switch s {
	case Completed, Failed, Cancelled, Timeout, Rejected:
		return true
	default:
		return false
	}
}

func (s Status) active() bool {
	return s == Assigned || s == InProgress
}

// Deliverable is one concrete artifact a delegatee must produce.
type Deliverable struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Path        string   `json:"path,omitempty"`
	Criteria    []string `json:"criteria"`
}

// Delegation is the unit of tracked work (design §3).
type Delegation struct {
	TaskID               string        `json:"task_id"`
	ParentTaskID         string        `json:"parent_task_id,omitempty"`
	DelegatorID          string        `json:"delegator_id"`
	DelegateeID          string        `json:"delegatee_id"`
	TaskType             string        `json:"task_type"`
	Title                string        `json:"title"`
	Description          string        `json:"description"`
	Requirements         []string      `json:"requirements"`
	Deliverables         []Deliverable `json:"deliverables"`
	Priority             Priority      `json:"priority"`
	Status               Status        `json:"status"`
	CreatedAt            time.Time     `json:"created_at"`
	Deadline             *time.Time    `json:"deadline,omitempty"`
	RewardAmount         uint64        `json:"reward_amount"`
	RewardToken          string        `json:"reward_token"`
	EscrowID             string        `json:"escrow_id,omitempty"`
	Context              map[string]string `json:"context,omitempty"`
	Dependencies         []string      `json:"dependencies"`
	RequiredCapabilities []string      `json:"required_capabilities"`

	history []Transition
}

// Transition records one state change for audit history.
type Transition struct {
	From   Status    `json:"from"`
	To     Status    `json:"to"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

func (d Delegation) clone() Delegation {
	d.Requirements = append([]string(nil), d.Requirements...)
	d.Deliverables = append([]Deliverable(nil), d.Deliverables...)
	d.Dependencies = append([]string(nil), d.Dependencies...)
	d.RequiredCapabilities = append([]string(nil), d.RequiredCapabilities...)
	d.history = append([]Transition(nil), d.history...)
	return d
}

// History returns a copy of d's recorded transitions.
func (d Delegation) History() []Transition {
	return append([]Transition(nil), d.history...)
}

// permitted encodes the transition table from design §4.5.
var permitted = map[Status]map[Status]bool{
	Pending:    {Assigned: true, Rejected: true, Cancelled: true},
	Assigned:   {InProgress: true, Failed: true, Cancelled: true, Timeout: true},
	InProgress: {Completed: true, Failed: true, Cancelled: true, Timeout: true},
}

// Tracker owns the set of delegations created on this node.
type Tracker struct {
	mu  sync.Mutex
	byID map[string]*Delegation
}

// NewTracker constructs an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{byID: make(map[string]*Delegation)}
}

// Create registers a new PENDING delegation.
func (t *Tracker) Create(d Delegation) (*Delegation, error) {
	if d.TaskID == "" {
		return nil, errs.New(errs.InvalidArgument, "task_id required")
	}
	if d.DelegatorID == "" || d.DelegateeID == "" {
		return nil, errs.New(errs.InvalidArgument, "delegator_id and delegatee_id required")
	}
	d.Status = Pending
	d.CreatedAt = time.Now().UTC()
	d.history = []Transition{{To: Pending, At: d.CreatedAt, Reason: "created"}}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.byID[d.TaskID]; exists {
		return nil, errs.New(errs.InvalidArgument, "task %s already exists", d.TaskID)
	}
	stored := d
	t.byID[d.TaskID] = &stored
	out := stored.clone()
	return &out, nil
}

// Get returns a copy of the delegation by id.
func (t *Tracker) Get(taskID string) (*Delegation, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.byID[taskID]
	if !ok {
		return nil, errs.New(errs.NotFound, "task %s not found", taskID)
	}
	out := d.clone()
	return &out, nil
}

// Transition applies a status change to taskID if permitted, recording
// history. "any-active -> FAILED" and "any-non-terminal -> CANCELLED/TIMEOUT"
// are allowed from every non-terminal state regardless of the specific
// table entry above.
func (t *Tracker) Transition(taskID string, to Status, reason string) (*Delegation, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.byID[taskID]
	if !ok {
		return nil, errs.New(errs.NotFound, "task %s not found", taskID)
	}
	if d.Status.terminal() {
		return nil, errs.New(errs.PreconditionFailed, "task %s already in terminal state %s", taskID, d.Status)
	}

	allowed := permitted[d.Status][to]
	if !allowed {
		switch to {
		case Failed:
			allowed = d.Status.active()
		case Cancelled, Timeout:
			allowed = !d.Status.terminal()
		}
	}
	if !allowed {
		return nil, errs.New(errs.PreconditionFailed, "transition %s -> %s not permitted", d.Status, to)
	}

	from := d.Status
	d.Status = to
	d.history = append(d.history, Transition{From: from, To: to, Reason: reason, At: time.Now().UTC()})
	logger.Debug("task transition", "task_id", taskID, "from", from, "to", to, "reason", reason)

	out := d.clone()
	return &out, nil
}

// SetEscrowID attaches an escrow id to a delegation once one is created for
// its reward.
func (t *Tracker) SetEscrowID(taskID, escrowID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.byID[taskID]
	if !ok {
		return errs.New(errs.NotFound, "task %s not found", taskID)
	}
	d.EscrowID = escrowID
	return nil
}

// Count returns the number of tracked delegations.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byID)
}
