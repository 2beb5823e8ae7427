// Package config holds the fabric's startup configuration: the set of
// options recognized per design §6. Options are read once at construction
// time; there is no hot-reload, matching this codebase's own
// read-once-at-boot convention for node configuration.
package config

import (
	"os"
	"time"

	"github.com/naoina/toml"
)

// Config collects every option named in design §6. All fields have
// conservative defaults returned by Default().
type Config struct {
	SessionTTLSeconds           int `toml:"session_ttl_seconds"`
	HandshakeTimeoutSeconds     int `toml:"handshake_timeout_seconds"`
	ReplayWindowSeconds         int `toml:"replay_window_seconds"`
	TimestampToleranceSeconds   int `toml:"timestamp_tolerance_seconds"`
	SequenceWindow              int `toml:"sequence_window"`

	GossipIntervalSeconds int `toml:"gossip_interval_seconds"`
	MaxGossipPeers        int `toml:"max_gossip_peers"`
	LivenessTimeoutSeconds int `toml:"liveness_timeout_seconds"`
	TombstoneTTLSeconds    int `toml:"tombstone_ttl_seconds"`

	MinTokensToPropose int64 `toml:"min_tokens_to_propose"`
	MinTokensToVote    int64 `toml:"min_tokens_to_vote"`

	DiscussionPeriodSeconds int `toml:"discussion_period_seconds"`
	VotingPeriodSeconds     int `toml:"voting_period_seconds"`
	TimelockDelaySeconds    int `toml:"timelock_delay_seconds"`
	EmergencyDelaySeconds   int `toml:"emergency_delay_seconds"`
	GracePeriodSeconds      int `toml:"grace_period_seconds"`

	QuorumPercentage            float64 `toml:"quorum_percentage"`
	ApprovalThresholdPercentage float64 `toml:"approval_threshold_percentage"`
	MaxVotingPower              int64   `toml:"max_voting_power"`

	GuardianAddresses []string `toml:"guardian_addresses"`
	GuardianThreshold int      `toml:"guardian_threshold"`

	EscrowExpiryPollSeconds int `toml:"escrow_expiry_poll_seconds"`
	RateLimitSteady         int `toml:"rate_limit_steady"`
	RateLimitBurst          int `toml:"rate_limit_burst"`

	DBType    string `toml:"db_type"`
	DataDir   string `toml:"data_dir"`
}

// Default returns the documented §6 defaults.
func Default() Config {
	return Config{
		SessionTTLSeconds:         3600,
		HandshakeTimeoutSeconds:   60,
		ReplayWindowSeconds:       300,
		TimestampToleranceSeconds: 30,
		SequenceWindow:            64,

		GossipIntervalSeconds:  30,
		MaxGossipPeers:         3,
		LivenessTimeoutSeconds: 120,
		TombstoneTTLSeconds:    86400,

		MinTokensToPropose: 1000,
		MinTokensToVote:    100,

		DiscussionPeriodSeconds: 2 * 24 * 3600,
		VotingPeriodSeconds:     3 * 24 * 3600,
		TimelockDelaySeconds:    2 * 24 * 3600,
		EmergencyDelaySeconds:   4 * 3600,
		GracePeriodSeconds:      14 * 24 * 3600,

		QuorumPercentage:            10,
		ApprovalThresholdPercentage: 51,
		MaxVotingPower:              1_000_000,

		GuardianAddresses: nil,
		GuardianThreshold: 2,

		EscrowExpiryPollSeconds: 60,
		RateLimitSteady:         5,
		RateLimitBurst:          10,

		DBType:  "memory",
		DataDir: "",
	}
}

func (c Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLSeconds) * time.Second
}

func (c Config) HandshakeTimeout() time.Duration {
	return time.Duration(c.HandshakeTimeoutSeconds) * time.Second
}

func (c Config) ReplayWindow() time.Duration {
	return time.Duration(c.ReplayWindowSeconds) * time.Second
}

func (c Config) TimestampTolerance() time.Duration {
	return time.Duration(c.TimestampToleranceSeconds) * time.Second
}

func (c Config) GossipInterval() time.Duration {
	return time.Duration(c.GossipIntervalSeconds) * time.Second
}

func (c Config) LivenessTimeout() time.Duration {
	return time.Duration(c.LivenessTimeoutSeconds) * time.Second
}

func (c Config) TombstoneTTL() time.Duration {
	return time.Duration(c.TombstoneTTLSeconds) * time.Second
}

func (c Config) DiscussionPeriod() time.Duration {
	return time.Duration(c.DiscussionPeriodSeconds) * time.Second
}

func (c Config) VotingPeriod() time.Duration {
	return time.Duration(c.VotingPeriodSeconds) * time.Second
}

func (c Config) TimelockDelay() time.Duration {
	return time.Duration(c.TimelockDelaySeconds) * time.Second
}

func (c Config) EmergencyDelay() time.Duration {
	return time.Duration(c.EmergencyDelaySeconds) * time.Second
}

func (c Config) GracePeriod() time.Duration {
	return time.Duration(c.GracePeriodSeconds) * time.Second
}

func (c Config) EscrowExpiryPoll() time.Duration {
	return time.Duration(c.EscrowExpiryPollSeconds) * time.Second
}

// Load decodes a TOML configuration file on top of the documented defaults.
// Fields absent from the file keep their default value.
func Load(path string) (Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	if err := toml.NewDecoder(f).Decode(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
