package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Uplink.WatchdogTimeout)
	assert.Equal(t, 5, cfg.Uplink.MaxErrorCount)
	assert.Equal(t, 250, cfg.Uplink.ResendBatchSize)
	assert.Equal(t, "NetworkModule", cfg.Uplink.ModuleName)
	assert.Equal(t, 5*time.Second, cfg.Dedup.Visibility)
	assert.Equal(t, 60*time.Second, cfg.Dedup.HighCountVisibility)
	assert.Equal(t, 250, cfg.Dedup.HighCountThreshold)
	assert.Equal(t, 35*time.Second, cfg.Health.UnresponsiveAfter)
	assert.Equal(t, 5*time.Millisecond, cfg.Health.DebounceWindow)
	assert.Empty(t, cfg.Health.OutputModules)
}

func TestNewConfig_EnvOverrides(t *testing.T) {
	t.Setenv("UPLINK_MAX_ERROR_COUNT", "9")
	t.Setenv("HEALTH_OUTPUT_MODULES", "DMXModule, SocketModule,")

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, 9, cfg.Uplink.MaxErrorCount)
	assert.Equal(t, []string{"DMXModule", "SocketModule"}, cfg.Health.OutputModules)
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"a", "b"}, splitList(" a ,,b "))
}
