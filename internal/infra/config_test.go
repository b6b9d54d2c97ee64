package infra

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logger.Level)

	assert.Equal(t, 30*time.Second, cfg.Gateway.CallTimeout)
	assert.Equal(t, 2, cfg.Gateway.RetryAttempts)

	assert.Equal(t, 30*time.Second, cfg.Realtime.HealthInterval)
	assert.Equal(t, 60*time.Second, cfg.Realtime.MetricsInterval)
	assert.Equal(t, 45*time.Second, cfg.Realtime.ActivityInterval)
	assert.Equal(t, time.Second, cfg.Realtime.ReconnectBaseDelay)
	assert.Equal(t, 5, cfg.Realtime.MaxReconnectAttempts)

	assert.Equal(t, 30*time.Second, cfg.Store.CacheWindow)
	assert.Equal(t, 10, cfg.Store.MaxAlerts)
	assert.Equal(t, 10, cfg.Store.MaxActivity)

	assert.False(t, cfg.History.Enabled)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("REALTIME_HEALTH_INTERVAL", "10s")
	t.Setenv("GATEWAY_DEFAULT_DOMAIN", "shop.io")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.Realtime.HealthInterval)
	assert.Equal(t, "shop.io", cfg.Gateway.DefaultDomain)
}
