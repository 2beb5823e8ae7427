package governance

import (
	"sync"
	"time"

	"github.com/a2afabric/core/internal/errs"
	"github.com/a2afabric/core/internal/metrics"
)

// ActionHandler applies one Action's effect against its target namespace's
// live state (ledger, registry, parameter store), returning an error on
// failure.
type ActionHandler func(a Action) error

// RollbackHandler undoes a previously applied Action, invoked during
// reverse-order compensation after a later action in the same proposal
// fails.
type RollbackHandler func(a Action) error

// Result is the outcome of one execution attempt.
type Result string

const (
	ResultExecuted       Result = "executed"
	ResultPartialFailure Result = "partial_failure"
	ResultExpired        Result = "expired"
	ResultRolledBack     Result = "rolled_back"
)

// Engine dispatches proposal actions to per-namespace handlers and performs
// reverse-order compensation on failure (design §4.7.4).
type Engine struct {
	mu        sync.Mutex
	handlers  map[string]ActionHandler
	rollbacks map[string]RollbackHandler
}

// NewEngine constructs an empty Engine; register namespace handlers with
// RegisterHandler before executing any proposal.
func NewEngine() *Engine {
	return &Engine{
		handlers:  make(map[string]ActionHandler),
		rollbacks: make(map[string]RollbackHandler),
	}
}

// RegisterHandler installs the action/rollback pair for a target namespace
// (ledger, registry, parameter store, ...).
func (e *Engine) RegisterHandler(namespace string, apply ActionHandler, rollback RollbackHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[namespace] = apply
	e.rollbacks[namespace] = rollback
}

// Execute runs a queued proposal's actions against the Timelock's readiness
// gate (Ready must have already been checked by the caller), strictly
// serialized in order, compensating in reverse on the first failure.
func (e *Engine) Execute(p *Proposal) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	executed := make([]Action, 0, len(p.Actions))
	for _, a := range p.Actions {
		handler, ok := e.handlers[a.TargetNamespace]
		if !ok {
			return e.compensate(p, executed, errs.New(errs.InvalidArgument, "no handler registered for namespace %s", a.TargetNamespace))
		}
		if err := handler(a); err != nil {
			return e.compensate(p, executed, err)
		}
		executed = append(executed, a)
	}

	now := time.Now().UTC()
	p.ExecutedAt = &now
	p.Status = Executed
	metrics.ProposalExecutions.WithLabelValues(string(ResultExecuted)).Inc()
	return ResultExecuted, nil
}

// compensate rolls back executed actions in reverse order after a failure.
// If any rollback itself fails, the proposal is marked EXECUTED with a
// partial_failure marker for operator attention, per design §4.7.4 and the
// governance-rollback-contract resolution in the grounding ledger.
func (e *Engine) compensate(p *Proposal, executed []Action, cause error) (Result, error) {
	for i := len(executed) - 1; i >= 0; i-- {
		a := executed[i]
		rollback, ok := e.rollbacks[a.TargetNamespace]
		if !ok {
			logger.Crit("no rollback handler registered during compensation", "namespace", a.TargetNamespace, "cause", cause)
			return e.markPartialFailure(p, cause), cause
		}
		if err := rollback(a); err != nil {
			logger.Crit("compensation rollback failed", "namespace", a.TargetNamespace, "cause", cause, "rollback_err", err)
			return e.markPartialFailure(p, cause), cause
		}
	}
	return ResultRolledBack, cause
}

// markPartialFailure records that compensation itself failed: the proposal
// is left EXECUTED (its actions partially applied) with an explicit marker,
// rather than reverted to its pre-execution status, so an operator can find
// it.
func (e *Engine) markPartialFailure(p *Proposal, cause error) Result {
	now := time.Now().UTC()
	p.ExecutedAt = &now
	p.Status = Executed
	p.PartialFailure = true
	metrics.ProposalExecutions.WithLabelValues(string(ResultPartialFailure)).Inc()
	return ResultPartialFailure
}

// ExecuteIfExpired marks p EXPIRED without dispatching when called past
// the timelock entry's expires_at (design §4.7.4's final clause); callers
// should check Timelock.Ready first and call this when it returns Expired.
func ExecuteIfExpired(p *Proposal) Result {
	p.Status = Expired
	metrics.ProposalExecutions.WithLabelValues(string(ResultExpired)).Inc()
	return ResultExpired
}
