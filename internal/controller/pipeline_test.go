package controller

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgflex/pgflex/internal/decision"
	"github.com/pgflex/pgflex/internal/events"
	"github.com/pgflex/pgflex/internal/fabric"
	"github.com/pgflex/pgflex/internal/monitor"
	"github.com/pgflex/pgflex/internal/pool"
	"github.com/pgflex/pgflex/internal/router"
	"github.com/pgflex/pgflex/pkg/models"
)

func feedSample(mon *monitor.Monitor, poolID string, cpu float64) {
	mon.Window().Add(models.LoadSample{
		PoolID:      poolID,
		Timestamp:   time.Now(),
		ActiveConns: 10,
		CPUPercent:  cpu,
	})
}

func TestPipeline_CancelsSupersededScaleUp(t *testing.T) {
	poolID := "pool-supersede"

	bus := events.NewEventBus(100)
	defer bus.Close()
	publisher := events.NewPublisher(bus)

	fab := fabric.NewSimulatedFabric(fabric.SimulatedConfig{})
	rtr := router.New(router.Config{AdmissionTimeout: 100 * time.Millisecond})

	mgr := pool.NewManager(pool.Config{
		PoolID:             poolID,
		InitialTier:        models.TierSmall,
		HealthCheckTimeout: 50 * time.Millisecond,
		ProvisionRetries:   1000,
		RetryDelay:         50 * time.Millisecond,
		DrainDeadline:      200 * time.Millisecond,
	}, fab, rtr, publisher)
	defer mgr.Stop()
	require.NoError(t, mgr.Initialize(context.Background()))

	// Units provisioned from here on never turn healthy, so a scale-up
	// stays in flight until it is cancelled.
	fab.FailNextHealthChecks(1000)

	src := monitor.NewMockSource(monitor.MockSourceConfig{})
	src.AddPool(poolID)
	mon := monitor.New(monitor.Config{
		PoolID:     poolID,
		Source:     src,
		WindowSize: 3,
		StaleAfter: time.Minute,
	})

	eng := decision.NewEngine(decision.Config{
		ScaleUpSamples:   3,
		ScaleDownSamples: 6,
		CooldownPeriod:   time.Hour,
		Thresholds: map[models.Tier]decision.Threshold{
			models.TierSmall:  {Upper: 80.0, Lower: 30.0},
			models.TierMedium: {Upper: 80.0, Lower: 30.0},
			models.TierLarge:  {Upper: 85.0, Lower: 25.0},
		},
	})

	p := NewPipeline(PipelineConfig{
		PoolID:         poolID,
		Monitor:        mon,
		DecisionEngine: eng,
		Manager:        mgr,
		EventPublisher: publisher,
	})

	// Three high samples arm and fire the scale-up.
	for i := 0; i < 3; i++ {
		feedSample(mon, poolID, 95.0)
		p.runCycle()
	}
	require.True(t, mgr.State().ScaleUpInFlight)

	// The load collapses while the new unit is still provisioning. The
	// window is small enough that the low samples evict the high ones.
	for i := 0; i < 3; i++ {
		feedSample(mon, poolID, 5.0)
	}
	for i := 0; i < 3; i++ {
		p.runCycle()
	}

	deadline := time.Now().Add(3 * time.Second)
	for mgr.State().ScaleUpInFlight && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}

	// The superseded scale-up unwound: prior tier, original unit only.
	state := mgr.State()
	assert.False(t, state.ScaleUpInFlight)
	assert.Equal(t, models.TierSmall, state.Tier)
	assert.Equal(t, 1, state.ActiveUnits)
	assert.Equal(t, 1, fab.UnitCount())
}
