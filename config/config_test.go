package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "sqlite3", cfg.DBDriver)
	assert.Equal(t, 10.0, cfg.RewardRadiusMiles)
	assert.Equal(t, 100, cfg.PoolSize)
	assert.Equal(t, 5*time.Minute, cfg.SchedulerInterval)
	assert.True(t, cfg.SchedulerEnabled)
	assert.Equal(t, "tourguide/locations/+", cfg.MQTTTopic)
	assert.Empty(t, cfg.MQTTBroker)
}

func TestParse_Overrides(t *testing.T) {
	t.Setenv("REWARD_RADIUS_MILES", "25.5")
	t.Setenv("POOL_SIZE", "8")
	t.Setenv("SCHEDULER_INTERVAL", "30s")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("TRACING_ENABLED", "true")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, 25.5, cfg.RewardRadiusMiles)
	assert.Equal(t, 8, cfg.PoolSize)
	assert.Equal(t, 30*time.Second, cfg.SchedulerInterval)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.True(t, cfg.TracingEnabled)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"negative radius", "REWARD_RADIUS_MILES", "-1"},
		{"unknown driver", "DB_DRIVER", "postgres"},
		{"zero interval", "SCHEDULER_INTERVAL", "0s"},
		{"not a number", "POOL_SIZE", "many"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Parse()
			assert.Error(t, err)
		})
	}
}
