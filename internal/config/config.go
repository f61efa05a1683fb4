// Package config loads the node's TOML configuration into a flat struct
// decoded in one pass rather than a layered viper-style merge.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"

	"github.com/nodeforge/l2chain/internal/clock"
	"github.com/nodeforge/l2chain/internal/queue"
)

// Config is the full node configuration, covering both leader and
// follower roles; a given process uses whichever sections apply to its
// Role.
type Config struct {
	// Role is "leader" or "follower".
	Role string `toml:"role"`

	TickPeriodMs     int64  `toml:"tick_period_ms"`
	QueueCapacity    int    `toml:"queue_capacity"`
	MaxTxsPerSlot    int    `toml:"max_txs_per_slot"`
	MaxAccountDataLen int   `toml:"max_account_data_len"`
	PersistencePath  string `toml:"persistence_path"`
	CacheSize        int    `toml:"cache_size"`

	SnapshotIntervalMs int64 `toml:"snapshot_interval_ms"`

	Broadcast BroadcastConfig `toml:"broadcast"`
	Follower  FollowerConfig  `toml:"follower"`
	Metrics   MetricsConfig   `toml:"metrics"`
}

// BroadcastConfig configures the leader's broadcast server.
type BroadcastConfig struct {
	ListenAddr           string `toml:"listen_addr"`
	SessionBufferSize    int    `toml:"session_buffer_size"`
	HeartbeatEverySlots  int    `toml:"heartbeat_every_slots"`
}

// FollowerConfig configures a follower node's connection to its leader.
type FollowerConfig struct {
	LeaderAddr string `toml:"leader_addr"`
	FromSlot   uint64 `toml:"from_slot"`
}

// MetricsConfig configures the Prometheus exporter.
type MetricsConfig struct {
	Enabled    bool   `toml:"enabled"`
	ListenAddr string `toml:"listen_addr"`
}

// Default returns a Config populated with sane defaults for tick period,
// queue capacity, read-through cache size, and heartbeat cadence.
func Default() Config {
	return Config{
		Role:              "leader",
		TickPeriodMs:      clock.DefaultPeriod.Milliseconds(),
		QueueCapacity:     queue.DefaultCapacity,
		MaxTxsPerSlot:     4096,
		MaxAccountDataLen: 0,
		PersistencePath:   "./data/l2chain",
		CacheSize:         65536,
		SnapshotIntervalMs: 5000,
		Broadcast: BroadcastConfig{
			ListenAddr:          ":7070",
			SessionBufferSize:   256,
			HeartbeatEverySlots: 30,
		},
		Metrics: MetricsConfig{
			Enabled:    true,
			ListenAddr: ":9090",
		},
	}
}

// Load reads and decodes a TOML config file at path, starting from
// Default() so unset fields keep their defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "config: read %s", path)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "config: parse %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the subset of invariants that would otherwise surface as
// confusing runtime failures: a known role, a sane tick period, and a
// follower address when role=follower.
func (c Config) Validate() error {
	if c.Role != "leader" && c.Role != "follower" {
		return fmt.Errorf("config: role must be \"leader\" or \"follower\", got %q", c.Role)
	}
	if c.TickPeriodMs <= 0 {
		return fmt.Errorf("config: tick_period_ms must be positive")
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("config: queue_capacity must be positive")
	}
	if c.Role == "follower" && c.Follower.LeaderAddr == "" {
		return fmt.Errorf("config: follower.leader_addr is required when role=follower")
	}
	return nil
}

// TickPeriod returns TickPeriodMs as a time.Duration.
func (c Config) TickPeriod() time.Duration {
	return time.Duration(c.TickPeriodMs) * time.Millisecond
}

// SnapshotInterval returns SnapshotIntervalMs as a time.Duration.
func (c Config) SnapshotInterval() time.Duration {
	return time.Duration(c.SnapshotIntervalMs) * time.Millisecond
}
