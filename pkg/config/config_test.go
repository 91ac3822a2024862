package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAreValid(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.NoError(t, cfg.Validate())

	assert.Equal(t, "pgflex-controller", cfg.App.Name)
	assert.Equal(t, 2*time.Second, cfg.Monitor.Interval)
	assert.Equal(t, 60, cfg.Monitor.WindowSize)
	assert.Equal(t, 6*time.Second, cfg.Monitor.StaleAfter)
	assert.Equal(t, 3, cfg.Decision.ScaleUpSamples)
	assert.Equal(t, 6, cfg.Decision.ScaleDownSamples)
	assert.Equal(t, 2*time.Minute, cfg.Decision.CooldownPeriod)
	assert.Equal(t, 1, cfg.Pool.TierUnits["small"])
	assert.Equal(t, 2, cfg.Pool.TierUnits["medium"])
	assert.Equal(t, 4, cfg.Pool.TierUnits["large"])
	assert.Equal(t, 30*time.Second, cfg.Pool.DrainDeadline)
	assert.Equal(t, "least_loaded", cfg.Router.Policy)
}

func TestConfig_Validate(t *testing.T) {
	base := func(t *testing.T) *Config {
		t.Helper()
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{
			name:    "valid defaults",
			mutate:  func(cfg *Config) {},
			wantErr: "",
		},
		{
			name: "scale-down streak must exceed scale-up streak",
			mutate: func(cfg *Config) {
				cfg.Decision.ScaleDownSamples = cfg.Decision.ScaleUpSamples
			},
			wantErr: "scale_down_samples",
		},
		{
			name: "thresholds must not invert",
			mutate: func(cfg *Config) {
				cfg.Decision.Thresholds["small"] = TierThreshold{Upper: 30, Lower: 80}
			},
			wantErr: "thresholds.small.upper",
		},
		{
			name: "tier units must not shrink up the ladder",
			mutate: func(cfg *Config) {
				cfg.Pool.TierUnits["large"] = 1
			},
			wantErr: "tier_units.large",
		},
		{
			name: "min active units floor",
			mutate: func(cfg *Config) {
				cfg.Pool.MinActiveUnits = 0
			},
			wantErr: "min_active_units",
		},
		{
			name: "stale bound shorter than the sampling interval",
			mutate: func(cfg *Config) {
				cfg.Monitor.StaleAfter = time.Second
			},
			wantErr: "stale_after",
		},
		{
			name: "unknown router policy",
			mutate: func(cfg *Config) {
				cfg.Router.Policy = "sticky"
			},
			wantErr: "router.policy",
		},
		{
			name: "duplicate pool ids",
			mutate: func(cfg *Config) {
				cfg.Pools = []PoolSpec{
					{ID: "pool-1", InitialTier: "small"},
					{ID: "pool-1", InitialTier: "small"},
				}
			},
			wantErr: "duplicated",
		},
		{
			name: "invalid initial tier",
			mutate: func(cfg *Config) {
				cfg.Pools = []PoolSpec{{ID: "pool-1", InitialTier: "xlarge"}}
			},
			wantErr: "initial_tier",
		},
		{
			name: "default jwt secret rejected in production",
			mutate: func(cfg *Config) {
				cfg.App.Mode = "production"
			},
			wantErr: "jwt_secret",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base(t)
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
