// Package agent wires every subsystem together into one running node,
// grounded on this codebase's node/service.go convention: construction
// wires dependencies and may initialize state, but no background
// goroutine starts until Start is called, and Stop blocks until every
// goroutine it started has exited.
package agent

import (
	"context"
	"sync"
	"time"

	"github.com/a2afabric/core/chunked"
	agentcrypto "github.com/a2afabric/core/crypto"
	"github.com/a2afabric/core/escrow"
	"github.com/a2afabric/core/governance"
	"github.com/a2afabric/core/handshake"
	"github.com/a2afabric/core/internal/errs"
	"github.com/a2afabric/core/internal/log"
	"github.com/a2afabric/core/ledger"
	"github.com/a2afabric/core/ratelimit"
	"github.com/a2afabric/core/registry"
	"github.com/a2afabric/core/session"
	"github.com/a2afabric/core/storage"
	"github.com/a2afabric/core/task"
	"github.com/a2afabric/core/transport"
)

var logger = log.NewModuleLogger("agent")

// Config collects every tunable needed to assemble an Agent.
type Config struct {
	AgentID  string
	Identity *agentcrypto.KeyPair
	Store    storage.KVStore

	SessionTTL           time.Duration
	SequenceWindow       int
	ReplayWindow         time.Duration
	HandshakeTimeout     time.Duration
	RegistryTombstoneTTL time.Duration
	RegistryLiveness     time.Duration
	GossipMaxPeers       int
	GossipInterval       time.Duration
	EscrowSweepInterval  time.Duration
	SessionReapInterval  time.Duration
	RateLimitPerSecond   float64
	RateLimitBurst       int
	GovernanceParams     governance.Params
	ChunkReassemblyTTL   time.Duration
}

func (c *Config) applyDefaults() {
	if c.SessionTTL <= 0 {
		c.SessionTTL = time.Hour
	}
	if c.SequenceWindow <= 0 {
		c.SequenceWindow = 64
	}
	if c.ReplayWindow <= 0 {
		c.ReplayWindow = 5 * time.Minute
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 60 * time.Second
	}
	if c.RegistryTombstoneTTL <= 0 {
		c.RegistryTombstoneTTL = 24 * time.Hour
	}
	if c.RegistryLiveness <= 0 {
		c.RegistryLiveness = 90 * time.Second
	}
	if c.GossipMaxPeers <= 0 {
		c.GossipMaxPeers = 3
	}
	if c.GossipInterval <= 0 {
		c.GossipInterval = 10 * time.Second
	}
	if c.EscrowSweepInterval <= 0 {
		c.EscrowSweepInterval = 30 * time.Second
	}
	if c.SessionReapInterval <= 0 {
		c.SessionReapInterval = time.Minute
	}
	if c.RateLimitPerSecond <= 0 {
		c.RateLimitPerSecond = 50
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = 100
	}
	if c.ChunkReassemblyTTL <= 0 {
		c.ChunkReassemblyTTL = 5 * time.Minute
	}
}

// Agent is one running fabric node: every subsystem constructed in
// NewAgent, every background loop started by Start and stopped by Stop.
type Agent struct {
	id     string
	config Config

	Sessions   *session.Manager
	Handshake  *handshake.Engine
	Registry   *registry.Registry
	Gossip     *registry.Gossiper
	Ledger     *ledger.Ledger
	Escrow     *escrow.Manager
	Tasks      *task.Tracker
	Verify     *task.Handler
	Governance *governance.Manager
	Timelock   *governance.Timelock
	Execution  *governance.Engine
	RateLimit  *ratelimit.Limiter
	Peers      *transport.Set
	Reassembly *chunked.Reassembler

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewAgent constructs every subsystem for cfg.AgentID but starts no
// goroutines.
func NewAgent(cfg Config) (*Agent, error) {
	if cfg.AgentID == "" {
		return nil, errs.New(errs.InvalidArgument, "agent id required")
	}
	if cfg.Identity == nil {
		return nil, errs.New(errs.InvalidArgument, "identity key pair required")
	}
	if cfg.Store == nil {
		cfg.Store = storage.NewMemoryStore()
	}
	cfg.applyDefaults()

	sessions := session.NewManager(cfg.SessionTTL, cfg.SequenceWindow, cfg.ReplayWindow)
	hs := handshake.NewEngine(cfg.AgentID, cfg.Identity, sessions, cfg.HandshakeTimeout)

	reg, err := registry.New(cfg.AgentID, cfg.Store, cfg.RegistryTombstoneTTL, cfg.RegistryLiveness)
	if err != nil {
		return nil, err
	}
	gossiper := registry.NewGossiper(reg, cfg.GossipMaxPeers)

	l := ledger.New(cfg.Store)
	esc := escrow.NewManager(l)
	tasks := task.NewTracker()
	verifier := task.NewHandler()

	gov := governance.NewManager(cfg.GovernanceParams)
	tl := governance.NewTimelock(cfg.GovernanceParams.TimelockDelay, cfg.GovernanceParams.EmergencyDelay, cfg.GovernanceParams.GracePeriod, nil, 1)
	exec := governance.NewEngine()

	limiter := ratelimit.New(cfg.RateLimitPerSecond, cfg.RateLimitBurst)
	reassembler := chunked.NewReassembler(cfg.ChunkReassemblyTTL)

	a := &Agent{
		id:         cfg.AgentID,
		config:     cfg,
		Sessions:   sessions,
		Handshake:  hs,
		Registry:   reg,
		Gossip:     gossiper,
		Ledger:     l,
		Escrow:     esc,
		Tasks:      tasks,
		Verify:     verifier,
		Governance: gov,
		Timelock:   tl,
		Execution:  exec,
		RateLimit:  limiter,
		Peers:      transport.NewSet(),
		Reassembly: reassembler,
		stop:       make(chan struct{}),
	}
	return a, nil
}

// SetGuardians replaces the Timelock's guardian set and pause threshold.
// Separate from NewAgent because the guardian roster is typically loaded
// from governance configuration resolved after construction.
func (a *Agent) SetGuardians(guardians []string, threshold int) {
	a.Timelock = governance.NewTimelock(a.config.GovernanceParams.TimelockDelay, a.config.GovernanceParams.EmergencyDelay, a.config.GovernanceParams.GracePeriod, guardians, threshold)
}

// Start launches the background loops: session reaping, the escrow expiry
// sweeper, the chunk reassembly sweep, and, when livePeers is non-nil,
// registry gossip. It keeps no started flag, so each call launches another
// set of loops.
func (a *Agent) Start(livePeers func() []registry.Peer) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(a.config.SessionReapInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.Sessions.Reap()
			case <-a.stop:
				return
			}
		}
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		escrow.RunSweeperPeriodically(a.Escrow, a.config.EscrowSweepInterval, a.stop)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(a.config.ChunkReassemblyTTL)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.Reassembly.Sweep()
			case <-a.stop:
				return
			}
		}
	}()

	if livePeers != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			registry.RunPeriodically(a.Gossip, livePeers, a.config.GossipInterval, a.stop)
		}()
	}

	logger.Info("agent started", "agent_id", a.id)
}

// Stop signals every background loop to exit and blocks until they have.
func (a *Agent) Stop() {
	a.stopOnce.Do(func() {
		close(a.stop)
	})
	a.wg.Wait()
	a.Peers.Close()
	logger.Info("agent stopped", "agent_id", a.id)
}

// ID returns the agent's logical identifier.
func (a *Agent) ID() string { return a.id }

// Context helper kept for callers that want a bounded-lifetime context tied
// to this agent's stop signal.
func (a *Agent) Context() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-a.stop:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
