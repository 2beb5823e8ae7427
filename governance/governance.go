// Package governance implements the proposal lifecycle, voting, timelock,
// and execution pipeline of design §4.7, grounded on this codebase's
// Istanbul weighted-validator voting (consensus/istanbul/validator/weighted.go):
// token-weighted tallying with a capped per-voter weight and a quorum/
// approval-threshold pass condition, generalized here from block validator
// voting to on-chain proposal voting.
package governance

import (
	"sync"
	"time"

	"github.com/a2afabric/core/internal/errs"
	"github.com/a2afabric/core/internal/log"
)

var logger = log.NewModuleLogger("governance")

// ProposalType categorizes what a proposal's actions affect.
type ProposalType string

const (
	ParameterChange ProposalType = "PARAMETER_CHANGE"
	Upgrade         ProposalType = "UPGRADE"
	TokenAllocation ProposalType = "TOKEN_ALLOCATION"
	EmergencyType   ProposalType = "EMERGENCY"
)

// Status is a proposal's lifecycle position.
type Status string

const (
	Pending   Status = "PENDING"
	Active    Status = "ACTIVE"
	Canceled  Status = "CANCELED"
	Defeated  Status = "DEFEATED"
	Succeeded Status = "SUCCEEDED"
	Queued    Status = "QUEUED"
	Expired   Status = "EXPIRED"
	Executed  Status = "EXECUTED"
)

// Choice is a vote's direction.
type Choice string

const (
	For     Choice = "FOR"
	Against Choice = "AGAINST"
	Abstain Choice = "ABSTAIN"
)

// Action is one effect a proposal applies on execution (design §3).
type Action struct {
	TargetNamespace string                 `json:"target_namespace"`
	FunctionName    string                 `json:"function_name"`
	Parameters      map[string]interface{} `json:"parameters"`
	Value           float64                `json:"value"`
}

// Tallies accumulates vote weight by choice.
type Tallies struct {
	For     float64 `json:"for"`
	Against float64 `json:"against"`
	Abstain float64 `json:"abstain"`
}

// Proposal is a governance proposal and its running vote tally (design §3).
type Proposal struct {
	ID            string       `json:"id"`
	Proposer      string       `json:"proposer"`
	Title         string       `json:"title"`
	Description   string       `json:"description"`
	Type          ProposalType `json:"type"`
	Actions       []Action     `json:"actions"`
	Status        Status       `json:"status"`
	CreatedAt     time.Time    `json:"created_at"`
	DiscussionEnd time.Time    `json:"discussion_end"`
	VotingStart   time.Time    `json:"voting_start"`
	VotingEnd     time.Time    `json:"voting_end"`
	QueuedAt      *time.Time   `json:"queued_at,omitempty"`
	ExecutedAt    *time.Time   `json:"executed_at,omitempty"`
	Tallies       Tallies      `json:"tallies"`
	Voters        map[string]bool `json:"voters"`
	Emergency     bool         `json:"emergency"`
	PartialFailure bool        `json:"partial_failure,omitempty"`
}

func (p Proposal) clone() Proposal {
	p.Actions = append([]Action(nil), p.Actions...)
	voters := make(map[string]bool, len(p.Voters))
	for k, v := range p.Voters {
		voters[k] = v
	}
	p.Voters = voters
	return p
}

// Vote records one cast ballot (design §3).
type Vote struct {
	Voter      string    `json:"voter"`
	ProposalID string    `json:"proposal_id"`
	Choice     Choice    `json:"choice"`
	VotingPower float64  `json:"voting_power"`
	Timestamp  time.Time `json:"timestamp"`
}

// Params collects the governance tunables named in design §6.
type Params struct {
	MinTokensToPropose float64
	MinTokensToVote     float64
	DiscussionPeriod    time.Duration
	VotingPeriod        time.Duration
	TimelockDelay       time.Duration
	EmergencyDelay      time.Duration
	GracePeriod         time.Duration
	QuorumPercentage    float64
	ApprovalThreshold   float64
	MaxVotingPower      float64
}

// Manager owns the proposal set, vote records, and tallying for one node.
type Manager struct {
	mu     sync.Mutex
	params Params
	nextID int
	byID   map[string]*Proposal
	votes  map[string]map[string]Vote // proposalID -> voter -> Vote
}

// NewManager constructs a Manager with the given parameters.
func NewManager(params Params) *Manager {
	return &Manager{
		params: params,
		byID:   make(map[string]*Proposal),
		votes:  make(map[string]map[string]Vote),
	}
}

// CreateProposal requires proposerBalance >= MinTokensToPropose. Emergency
// proposals skip the discussion period and use a voting period one-third
// the normal length (design §4.7.1).
func (m *Manager) CreateProposal(id, proposer, title, description string, ptype ProposalType, actions []Action, proposerBalance float64, emergency bool, now time.Time) (*Proposal, error) {
	if proposerBalance < m.params.MinTokensToPropose {
		return nil, errs.New(errs.InvalidArgument, "proposer balance %.0f below minimum %.0f", proposerBalance, m.params.MinTokensToPropose)
	}
	if id == "" {
		return nil, errs.New(errs.InvalidArgument, "proposal id required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byID[id]; exists {
		return nil, errs.New(errs.InvalidArgument, "proposal %s already exists", id)
	}

	var discussionEnd, votingStart, votingEnd time.Time
	if emergency {
		discussionEnd = now
		votingStart = now
		votingEnd = now.Add(m.params.VotingPeriod / 3)
	} else {
		discussionEnd = now.Add(m.params.DiscussionPeriod)
		votingStart = discussionEnd
		votingEnd = votingStart.Add(m.params.VotingPeriod)
	}

	p := &Proposal{
		ID:            id,
		Proposer:      proposer,
		Title:         title,
		Description:   description,
		Type:          ptype,
		Actions:       append([]Action(nil), actions...),
		Status:        Pending,
		CreatedAt:     now,
		DiscussionEnd: discussionEnd,
		VotingStart:   votingStart,
		VotingEnd:     votingEnd,
		Voters:        make(map[string]bool),
		Emergency:     emergency,
	}
	m.byID[id] = p
	m.votes[id] = make(map[string]Vote)
	out := p.clone()
	return &out, nil
}

// Get returns a copy of the proposal, refreshing its wall-time-driven
// status (PENDING->ACTIVE, ACTIVE->SUCCEEDED/DEFEATED) as of now.
func (m *Manager) Get(id string, now time.Time, totalSupply float64) (*Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, errs.New(errs.ProposalNotFound, "proposal %s not found", id)
	}
	m.refreshStatus(p, now, totalSupply)
	out := p.clone()
	return &out, nil
}

// refreshStatus advances p's status based on wall time; must be called
// with m.mu held.
func (m *Manager) refreshStatus(p *Proposal, now time.Time, totalSupply float64) {
	switch p.Status {
	case Pending:
		if !now.Before(p.VotingStart) {
			p.Status = Active
		}
	case Active:
		if now.After(p.VotingEnd) {
			if m.passes(p.Tallies, totalSupply) {
				p.Status = Succeeded
			} else {
				p.Status = Defeated
			}
		}
	}
}

func (m *Manager) passes(t Tallies, totalSupply float64) bool {
	total := t.For + t.Against + t.Abstain
	if totalSupply <= 0 {
		return false
	}
	quorumMet := total >= (m.params.QuorumPercentage/100)*totalSupply
	if !quorumMet {
		return false
	}
	if t.For <= t.Against {
		return false
	}
	if total == 0 {
		return false
	}
	approval := t.For / total
	return approval >= m.params.ApprovalThreshold/100
}

// Cancel cancels a proposal; only the proposer may do so, and only before
// voting_start.
func (m *Manager) Cancel(id, caller string, now time.Time) (*Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, errs.New(errs.ProposalNotFound, "proposal %s not found", id)
	}
	if p.Proposer != caller {
		return nil, errs.New(errs.InvalidArgument, "only the proposer may cancel")
	}
	if !now.Before(p.VotingStart) {
		return nil, errs.New(errs.PreconditionFailed, "cannot cancel after voting has started")
	}
	p.Status = Canceled
	out := p.clone()
	return &out, nil
}

// Queue transitions a SUCCEEDED proposal to QUEUED and stamps QueuedAt,
// mirroring the timelock entry created alongside it (design §4.7.1's named
// queue transition, §4.7.3's QueuedTx).
func (m *Manager) Queue(id string, now time.Time) (*Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, errs.New(errs.ProposalNotFound, "proposal %s not found", id)
	}
	if p.Status != Succeeded {
		return nil, errs.New(errs.PreconditionFailed, "proposal %s is %s, not SUCCEEDED", id, p.Status)
	}
	p.Status = Queued
	p.QueuedAt = &now
	out := p.clone()
	return &out, nil
}

// CastVote records voter's ballot on proposalID at votingPower (the
// voter's balance, capped at MaxVotingPower), design §4.7.2. A voter may
// vote at most once; double-vote attempts fail.
func (m *Manager) CastVote(proposalID, voter string, choice Choice, balance float64, now time.Time, totalSupply float64) (*Proposal, error) {
	if balance < m.params.MinTokensToVote {
		return nil, errs.New(errs.InvalidArgument, "voter balance %.0f below minimum %.0f", balance, m.params.MinTokensToVote)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[proposalID]
	if !ok {
		return nil, errs.New(errs.ProposalNotFound, "proposal %s not found", proposalID)
	}
	m.refreshStatus(p, now, totalSupply)
	if p.Status != Active {
		return nil, errs.New(errs.VotingClosed, "proposal %s is %s, not ACTIVE", proposalID, p.Status)
	}
	if now.After(p.VotingEnd) {
		return nil, errs.New(errs.VotingClosed, "voting period for %s has ended", proposalID)
	}
	if p.Voters[voter] {
		return nil, errs.New(errs.InvalidArgument, "voter %s has already voted on %s", voter, proposalID)
	}

	power := balance
	if power > m.params.MaxVotingPower {
		power = m.params.MaxVotingPower
	}

	switch choice {
	case For:
		p.Tallies.For += power
	case Against:
		p.Tallies.Against += power
	case Abstain:
		p.Tallies.Abstain += power
	default:
		return nil, errs.New(errs.InvalidArgument, "unknown vote choice %q", choice)
	}
	p.Voters[voter] = true
	m.votes[proposalID][voter] = Vote{Voter: voter, ProposalID: proposalID, Choice: choice, VotingPower: power, Timestamp: now}

	out := p.clone()
	return &out, nil
}

// VoteOf returns the recorded vote for (proposalID, voter), if any.
func (m *Manager) VoteOf(proposalID, voter string) (Vote, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.votes[proposalID][voter]
	return v, ok
}
