package pool

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgflex/pgflex/internal/events"
	"github.com/pgflex/pgflex/internal/fabric"
	"github.com/pgflex/pgflex/pkg/models"
)

// stubRouter tracks router calls and lets tests pin per-unit connection
// counts to exercise drain behavior.
type stubRouter struct {
	mu         sync.Mutex
	registered map[string]bool
	draining   map[string]bool
	conns      map[string]int
	forced     []string
}

func newStubRouter() *stubRouter {
	return &stubRouter{
		registered: make(map[string]bool),
		draining:   make(map[string]bool),
		conns:      make(map[string]int),
	}
}

func (r *stubRouter) RegisterUnit(unit *models.ComputeUnit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registered[unit.ID] = true
}

func (r *stubRouter) MarkDraining(unitID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.draining[unitID] = true
	return nil
}

func (r *stubRouter) RemoveUnit(unitID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.registered, unitID)
}

func (r *stubRouter) ForceCloseUnit(unitID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := r.conns[unitID]
	r.conns[unitID] = 0
	r.forced = append(r.forced, unitID)

	connIDs := make([]string, 0, count)
	for i := 0; i < count; i++ {
		connIDs = append(connIDs, fmt.Sprintf("%s-conn-%d", unitID, i))
	}
	return connIDs
}

func (r *stubRouter) ConnCount(unitID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conns[unitID]
}

func (r *stubRouter) TotalConns() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := 0
	for _, n := range r.conns {
		total += n
	}
	return total
}

func (r *stubRouter) setConns(unitID string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[unitID] = n
}

func (r *stubRouter) forcedUnits() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.forced...)
}

func testManager(t *testing.T, poolID string, cfg Config) (*Manager, *fabric.SimulatedFabric, *stubRouter, *events.EventBus) {
	t.Helper()

	cfg.PoolID = poolID
	if cfg.HealthCheckTimeout == 0 {
		cfg.HealthCheckTimeout = 100 * time.Millisecond
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 10 * time.Millisecond
	}
	if cfg.DrainDeadline == 0 {
		cfg.DrainDeadline = 300 * time.Millisecond
	}

	fab := fabric.NewSimulatedFabric(fabric.SimulatedConfig{})
	rtr := newStubRouter()
	bus := events.NewEventBus(100)

	m := NewManager(cfg, fab, rtr, events.NewPublisher(bus))
	t.Cleanup(func() {
		m.Stop()
		bus.Close()
	})

	return m, fab, rtr, bus
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func scaleDecision(poolID string, action models.ScalingAction, from, to models.Tier) *models.ScalingDecision {
	return &models.ScalingDecision{
		PoolID:      poolID,
		Timestamp:   time.Now(),
		Action:      action,
		CurrentTier: from,
		TargetTier:  to,
		Reason:      "sustained_high_load",
	}
}

func TestManager_Initialize(t *testing.T) {
	m, fab, rtr, _ := testManager(t, "pool-init", Config{InitialTier: models.TierMedium})

	require.NoError(t, m.Initialize(context.Background()))

	state := m.State()
	assert.Equal(t, models.TierMedium, state.Tier)
	assert.Equal(t, 2, state.ActiveUnits)
	assert.Equal(t, 2, fab.UnitCount())
	assert.Len(t, rtr.registered, 2)
}

func TestManager_ScaleUp(t *testing.T) {
	m, fab, _, _ := testManager(t, "pool-up", Config{InitialTier: models.TierSmall})
	require.NoError(t, m.Initialize(context.Background()))

	decision := scaleDecision("pool-up", models.ActionScaleUp, models.TierSmall, models.TierMedium)
	require.NoError(t, m.Apply(decision))

	waitFor(t, 2*time.Second, func() bool {
		state := m.State()
		return !state.ScaleUpInFlight && state.ActiveUnits == 2
	})

	state := m.State()
	assert.Equal(t, models.TierMedium, state.Tier)
	assert.Equal(t, 2, fab.UnitCount())
	assert.NotNil(t, state.LastScaleTime)
}

func TestManager_ScaleUpHealthCheckBudgetExhausted(t *testing.T) {
	m, fab, _, bus := testManager(t, "pool-fail", Config{
		InitialTier:      models.TierSmall,
		ProvisionRetries: 3,
	})
	require.NoError(t, m.Initialize(context.Background()))

	failures := bus.Subscribe(models.EventTypeScaleFailed)

	// The new unit never passes a health check.
	fab.FailNextHealthChecks(3)

	decision := scaleDecision("pool-fail", models.ActionScaleUp, models.TierSmall, models.TierMedium)
	require.NoError(t, m.Apply(decision))

	waitFor(t, 2*time.Second, func() bool {
		return !m.State().ScaleUpInFlight
	})

	// The pool keeps serving at its prior tier and the sick unit is gone.
	state := m.State()
	assert.Equal(t, models.TierSmall, state.Tier)
	assert.Equal(t, 1, state.ActiveUnits)
	assert.Equal(t, 1, fab.UnitCount())
	assert.Nil(t, state.LastScaleTime)

	select {
	case event := <-failures:
		assert.Equal(t, models.EventTypeScaleFailed, event.Type)
	case <-time.After(time.Second):
		t.Fatal("expected a scale_failed event")
	}
}

func TestManager_ScaleDownDrainsCleanly(t *testing.T) {
	m, fab, rtr, _ := testManager(t, "pool-down", Config{InitialTier: models.TierMedium})
	require.NoError(t, m.Initialize(context.Background()))

	decision := scaleDecision("pool-down", models.ActionScaleDown, models.TierMedium, models.TierSmall)
	require.NoError(t, m.Apply(decision))

	waitFor(t, 2*time.Second, func() bool {
		state := m.State()
		return !state.ScaleDownInFlight && state.ActiveUnits == 1
	})

	state := m.State()
	assert.Equal(t, models.TierSmall, state.Tier)
	assert.Equal(t, 1, fab.UnitCount())
	assert.Empty(t, rtr.forcedUnits(), "idle units should not be force closed")
}

func TestManager_ScaleDownPrefersLeastLoadedVictim(t *testing.T) {
	m, _, rtr, _ := testManager(t, "pool-victim", Config{InitialTier: models.TierMedium})
	require.NoError(t, m.Initialize(context.Background()))

	units := m.Units()
	require.Len(t, units, 2)
	busy, idle := units[0], units[1]
	rtr.setConns(busy.ID, 5)

	decision := scaleDecision("pool-victim", models.ActionScaleDown, models.TierMedium, models.TierSmall)
	require.NoError(t, m.Apply(decision))

	waitFor(t, 2*time.Second, func() bool {
		return !m.State().ScaleDownInFlight
	})

	// The idle unit drained, the busy one survived.
	busyUnit, ok := m.registry.Unit(busy.ID)
	require.True(t, ok)
	assert.Equal(t, models.UnitStateActive, busyUnit.State)

	idleUnit, ok := m.registry.Unit(idle.ID)
	require.True(t, ok)
	assert.Equal(t, models.UnitStateTerminated, idleUnit.State)
}

func TestManager_ScaleDownForceClosesAfterDeadline(t *testing.T) {
	m, _, rtr, bus := testManager(t, "pool-force", Config{
		InitialTier:   models.TierMedium,
		DrainDeadline: 200 * time.Millisecond,
	})
	require.NoError(t, m.Initialize(context.Background()))

	resets := bus.Subscribe(models.EventTypeConnectionReset)
	degraded := bus.Subscribe(models.EventTypeDrainDegraded)

	// Every unit holds connections that never finish on their own.
	for _, unit := range m.Units() {
		rtr.setConns(unit.ID, 2)
	}

	decision := scaleDecision("pool-force", models.ActionScaleDown, models.TierMedium, models.TierSmall)
	require.NoError(t, m.Apply(decision))

	waitFor(t, 2*time.Second, func() bool {
		state := m.State()
		return !state.ScaleDownInFlight && state.ActiveUnits == 1
	})

	assert.Len(t, rtr.forcedUnits(), 1)

	select {
	case event := <-resets:
		assert.Equal(t, models.EventTypeConnectionReset, event.Type)
	case <-time.After(time.Second):
		t.Fatal("expected a connection_reset event")
	}

	select {
	case event := <-degraded:
		assert.Equal(t, models.EventTypeDrainDegraded, event.Type)
	case <-time.After(time.Second):
		t.Fatal("expected a drain_degraded event")
	}
}

func TestManager_ScaleDownRespectsFloor(t *testing.T) {
	m, _, _, _ := testManager(t, "pool-floor", Config{
		InitialTier:    models.TierMedium,
		MinActiveUnits: 2,
	})
	require.NoError(t, m.Initialize(context.Background()))

	decision := scaleDecision("pool-floor", models.ActionScaleDown, models.TierMedium, models.TierSmall)
	require.NoError(t, m.Apply(decision))

	waitFor(t, 2*time.Second, func() bool {
		return !m.State().ScaleDownInFlight
	})

	// The tier label moves but no unit drains below the floor.
	state := m.State()
	assert.Equal(t, models.TierSmall, state.Tier)
	assert.Equal(t, 2, state.ActiveUnits)
}

func TestManager_CancelScaleUp(t *testing.T) {
	m, fab, _, _ := testManager(t, "pool-cancel", Config{
		InitialTier:      models.TierSmall,
		ProvisionRetries: 100,
		RetryDelay:       50 * time.Millisecond,
	})
	require.NoError(t, m.Initialize(context.Background()))

	// New units stay unhealthy long enough for the cancel to land.
	fab.FailNextHealthChecks(100)

	decision := scaleDecision("pool-cancel", models.ActionScaleUp, models.TierSmall, models.TierMedium)
	require.NoError(t, m.Apply(decision))

	waitFor(t, time.Second, func() bool {
		return m.State().ScaleUpInFlight
	})
	require.NoError(t, m.CancelScaleUp())

	waitFor(t, 2*time.Second, func() bool {
		return !m.State().ScaleUpInFlight
	})

	state := m.State()
	assert.Equal(t, models.TierSmall, state.Tier)
	assert.Equal(t, 1, state.ActiveUnits)
	assert.Equal(t, 1, fab.UnitCount())

	assert.ErrorIs(t, m.CancelScaleUp(), ErrNoScaleUpInFlight)
}

func TestManager_RollbackGivesActiveUnitsADrainWindow(t *testing.T) {
	m, _, rtr, bus := testManager(t, "pool-rollback", Config{
		InitialTier:   models.TierMedium,
		DrainDeadline: 200 * time.Millisecond,
	})
	require.NoError(t, m.Initialize(context.Background()))

	degraded := bus.Subscribe(models.EventTypeDrainDegraded)

	units := m.Units()
	require.Len(t, units, 2)
	victim := units[0]
	rtr.setConns(victim.ID, 3)

	m.rollbackUnits([]string{victim.ID})

	// The connections never finished, so the victim was drained up to the
	// deadline and only then forced.
	assert.True(t, rtr.draining[victim.ID])
	assert.Contains(t, rtr.forcedUnits(), victim.ID)
	assert.NotContains(t, rtr.registered, victim.ID)

	rolled, ok := m.registry.Unit(victim.ID)
	require.True(t, ok)
	assert.Equal(t, models.UnitStateTerminated, rolled.State)

	select {
	case event := <-degraded:
		assert.Equal(t, models.EventTypeDrainDegraded, event.Type)
	case <-time.After(time.Second):
		t.Fatal("expected a drain_degraded event")
	}
}

func TestManager_RollbackDrainsIdleUnitsWithoutForce(t *testing.T) {
	m, _, rtr, _ := testManager(t, "pool-rollback-idle", Config{InitialTier: models.TierMedium})
	require.NoError(t, m.Initialize(context.Background()))

	victim := m.Units()[0]
	m.rollbackUnits([]string{victim.ID})

	assert.Empty(t, rtr.forcedUnits(), "idle rollback victims should not be force closed")

	rolled, ok := m.registry.Unit(victim.ID)
	require.True(t, ok)
	assert.Equal(t, models.UnitStateTerminated, rolled.State)
}

func TestManager_ApplyIgnoresNonExecutableDecisions(t *testing.T) {
	m, _, _, _ := testManager(t, "pool-hold", Config{InitialTier: models.TierSmall})
	require.NoError(t, m.Initialize(context.Background()))

	hold := scaleDecision("pool-hold", models.ActionHold, models.TierSmall, models.TierSmall)
	require.NoError(t, m.Apply(hold))

	cooled := scaleDecision("pool-hold", models.ActionScaleUp, models.TierSmall, models.TierMedium)
	cooled.CooldownActive = true
	require.NoError(t, m.Apply(cooled))

	state := m.State()
	assert.False(t, state.ScaleUpInFlight)
	assert.Equal(t, 1, state.ActiveUnits)
}
