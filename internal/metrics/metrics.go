// Package metrics exposes the fabric's Prometheus counters and gauges.
// All of them are package-level values registered once with the default
// Prometheus registry in init; subsystems update them directly.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HandshakeOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "a2afabric",
		Subsystem: "handshake",
		Name:      "outcomes_total",
		Help:      "Handshake attempts by outcome (ready, error).",
	}, []string{"outcome"})

	ReplayRejections = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "a2afabric",
		Subsystem: "session",
		Name:      "replay_rejections_total",
		Help:      "Messages rejected as replays (duplicate nonce or out-of-window sequence).",
	})

	GossipRounds = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "a2afabric",
		Subsystem: "registry",
		Name:      "gossip_rounds_total",
		Help:      "Completed push-pull gossip rounds.",
	})

	RegistryEntries = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "a2afabric",
		Subsystem: "registry",
		Name:      "entries",
		Help:      "Local registry entry count by status.",
	}, []string{"status"})

	EscrowTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "a2afabric",
		Subsystem: "escrow",
		Name:      "transitions_total",
		Help:      "Escrow state transitions by target status.",
	}, []string{"status"})

	ProposalExecutions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "a2afabric",
		Subsystem: "governance",
		Name:      "executions_total",
		Help:      "Proposal execution attempts by result (executed, partial_failure, expired).",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(
		HandshakeOutcomes,
		ReplayRejections,
		GossipRounds,
		RegistryEntries,
		EscrowTransitions,
		ProposalExecutions,
	)
}
