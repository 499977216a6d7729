package main

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiterExhaustsAndRefills(t *testing.T) {
	rl := NewRateLimiter(2, 1, 10*time.Millisecond)
	require.True(t, rl.Allow())
	require.True(t, rl.Allow())
	require.False(t, rl.Allow())

	time.Sleep(25 * time.Millisecond)
	require.True(t, rl.Allow())
}

func TestAccountRateLimiterIsolatesAccounts(t *testing.T) {
	arl := NewAccountRateLimiter(1, 1, time.Minute)
	require.True(t, arl.Allow("0x01"))
	require.False(t, arl.Allow("0x01"))
	require.True(t, arl.Allow("0x02"))
}

func TestHealthCheckerAggregates(t *testing.T) {
	hc := NewHealthChecker("test")
	hc.RegisterComponent("up", func() error { return nil })
	hc.RegisterComponent("down", func() error { return errors.New("unreachable") })

	health := hc.CheckHealth()
	require.Equal(t, Unhealthy, health.OverallStatus)
	require.Equal(t, "test", health.Version)
	require.Len(t, health.Components, 2)
	require.Equal(t, Healthy, health.Components[0].Status)
	require.Equal(t, Unhealthy, health.Components[1].Status)
	require.Equal(t, "unreachable", health.Components[1].Message)
}

func TestHealthCheckerAllUp(t *testing.T) {
	hc := NewHealthChecker("test")
	hc.RegisterComponent("a", func() error { return nil })
	require.Equal(t, Healthy, hc.CheckHealth().OverallStatus)
}

func TestStatsCollectorSummary(t *testing.T) {
	sc := NewStatsCollector()
	sc.OperationStarted("deposit")
	sc.OperationStarted("deposit")
	sc.OperationConfirmed("deposit", 10*time.Millisecond)
	sc.OperationStarted("swap")
	sc.OperationFailed("swap")

	summary := sc.Summary()
	require.Equal(t, int64(2), summary.Started["deposit"])
	require.Equal(t, int64(1), summary.Confirmed["deposit"])
	require.Equal(t, int64(1), summary.Failed["swap"])
	require.Equal(t, 1, summary.Durations["deposit"].Count)
	require.InDelta(t, 10, summary.Durations["deposit"].AvgMS, 0.5)
	require.NotContains(t, summary.Durations, "swap")
}

func TestConfigValidation(t *testing.T) {
	config := DefaultConfig()
	require.NoError(t, config.Validate())

	config.RateLimitBurst = 0
	require.Error(t, config.Validate())
}

func TestConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shroudd.json")

	// first load writes the defaults
	created, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, created.Validate())

	created.ListenAddr = ":9999"
	require.NoError(t, SaveConfig(created, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, ":9999", loaded.ListenAddr)
}
