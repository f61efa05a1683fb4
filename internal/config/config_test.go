package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidateRejectsBadRole(t *testing.T) {
	cfg := Default()
	cfg.Role = "observer"
	require.Error(t, cfg.Validate())
}

func TestValidateRequiresLeaderAddrForFollower(t *testing.T) {
	cfg := Default()
	cfg.Role = "follower"
	require.Error(t, cfg.Validate())
	cfg.Follower.LeaderAddr = "127.0.0.1:7070"
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveTickPeriod(t *testing.T) {
	cfg := Default()
	cfg.TickPeriodMs = 0
	require.Error(t, cfg.Validate())
}

func TestLoadOverridesDefaultsFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	const body = `
role = "follower"
tick_period_ms = 250
queue_capacity = 2048

[follower]
leader_addr = "10.0.0.1:7070"
from_slot = 10
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "follower", cfg.Role)
	require.Equal(t, int64(250), cfg.TickPeriodMs)
	require.Equal(t, 2048, cfg.QueueCapacity)
	require.Equal(t, "10.0.0.1:7070", cfg.Follower.LeaderAddr)
	require.Equal(t, uint64(10), cfg.Follower.FromSlot)
	require.Equal(t, 250*time.Millisecond, cfg.TickPeriod())

	require.Equal(t, 65536, cfg.CacheSize, "unset fields keep Default()'s values")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestLoadInvalidConfigFailsValidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`role = "bogus"`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
