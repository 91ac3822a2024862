package controller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgflex/pgflex/internal/fabric"
	"github.com/pgflex/pgflex/internal/monitor"
	"github.com/pgflex/pgflex/pkg/config"
	"github.com/pgflex/pgflex/pkg/models"
)

func testConfig() *config.Config {
	return &config.Config{
		Monitor: config.MonitorConfig{
			Interval:   50 * time.Millisecond,
			Timeout:    20 * time.Millisecond,
			WindowSize: 10,
			StaleAfter: time.Second,
		},
		Decision: config.DecisionConfig{
			ScaleUpSamples:   3,
			ScaleDownSamples: 6,
			CooldownPeriod:   time.Hour,
			MinTier:          "small",
			MaxTier:          "large",
			Thresholds: map[string]config.TierThreshold{
				"small":  {Upper: 80, Lower: 30},
				"medium": {Upper: 80, Lower: 30},
				"large":  {Upper: 85, Lower: 25},
			},
		},
		Pool: config.PoolConfig{
			TierUnits:          map[string]int{"small": 1, "medium": 2, "large": 4},
			HealthCheckTimeout: 100 * time.Millisecond,
			ProvisionRetries:   3,
			RetryDelay:         10 * time.Millisecond,
			DrainDeadline:      200 * time.Millisecond,
			MinActiveUnits:     1,
		},
		Router: config.RouterConfig{
			ListenAddr:       "127.0.0.1:0",
			Policy:           "least_loaded",
			AdmissionTimeout: 100 * time.Millisecond,
			DialTimeout:      time.Second,
		},
		Events: config.EventsConfig{BufferSize: 100},
	}
}

func TestController_ScalesUpUnderSustainedLoad(t *testing.T) {
	ctrl := New(testConfig(), nil)
	require.NoError(t, ctrl.Start())
	defer ctrl.Stop()

	src := monitor.NewMockSource(monitor.MockSourceConfig{BaseCPU: 95.0, Variance: 3.0})
	src.AddPool("pool-hot")
	fab := fabric.NewSimulatedFabric(fabric.SimulatedConfig{})

	spec := config.PoolSpec{ID: "pool-hot", InitialTier: "small"}
	require.NoError(t, ctrl.StartPool(spec, src, fab))

	running, err := ctrl.IsPoolRunning("pool-hot")
	require.NoError(t, err)
	assert.True(t, running)

	// Sustained high CPU walks the pool up one tier.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		state, err := ctrl.PoolState("pool-hot")
		require.NoError(t, err)
		if state.Tier == models.TierMedium && state.ActiveUnits == 2 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	state, err := ctrl.PoolState("pool-hot")
	require.NoError(t, err)
	assert.Equal(t, models.TierMedium, state.Tier)
	assert.Equal(t, 2, state.ActiveUnits)

	units, err := ctrl.PoolUnits("pool-hot")
	require.NoError(t, err)
	assert.NotEmpty(t, units)

	agg, err := ctrl.PoolAggregate("pool-hot")
	require.NoError(t, err)
	assert.Greater(t, agg.AvgCPU, 80.0)
}

func TestController_StartPoolTwiceFails(t *testing.T) {
	ctrl := New(testConfig(), nil)
	require.NoError(t, ctrl.Start())
	defer ctrl.Stop()

	src := monitor.NewMockSource(monitor.MockSourceConfig{BaseCPU: 50.0})
	src.AddPool("pool-dup")
	fab := fabric.NewSimulatedFabric(fabric.SimulatedConfig{})

	spec := config.PoolSpec{ID: "pool-dup", InitialTier: "small"}
	require.NoError(t, ctrl.StartPool(spec, src, fab))
	assert.Error(t, ctrl.StartPool(spec, src, fab))
}

func TestController_UnknownPoolLookups(t *testing.T) {
	ctrl := New(testConfig(), nil)
	require.NoError(t, ctrl.Start())
	defer ctrl.Stop()

	_, err := ctrl.PoolState("nope")
	assert.Error(t, err)
	_, err = ctrl.PoolUnits("nope")
	assert.Error(t, err)
	assert.Error(t, ctrl.StopPool("nope"))
	assert.Empty(t, ctrl.ListPools())
}
