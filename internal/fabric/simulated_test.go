package fabric

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgflex/pgflex/pkg/models"
)

func TestSimulatedFabric_ProvisionAndHealth(t *testing.T) {
	fab := NewSimulatedFabric(SimulatedConfig{})
	ctx := context.Background()

	unit, err := fab.Provision(ctx, "pool-1", models.TierSmall)
	require.NoError(t, err)
	assert.Equal(t, "pool-1", unit.PoolID)
	assert.Equal(t, models.TierSmall, unit.Tier)
	assert.Equal(t, models.UnitStateProvisioning, unit.State)
	assert.NotEmpty(t, unit.Addr)
	assert.Equal(t, 1, fab.UnitCount())

	// ReadyAfter zero means immediately healthy.
	assert.NoError(t, fab.HealthCheck(ctx, unit.ID))
}

func TestSimulatedFabric_ReadyAfterDelay(t *testing.T) {
	fab := NewSimulatedFabric(SimulatedConfig{ReadyAfter: 100 * time.Millisecond})
	ctx := context.Background()

	unit, err := fab.Provision(ctx, "pool-1", models.TierSmall)
	require.NoError(t, err)

	assert.ErrorIs(t, fab.HealthCheck(ctx, unit.ID), ErrUnhealthy)

	time.Sleep(150 * time.Millisecond)
	assert.NoError(t, fab.HealthCheck(ctx, unit.ID))
}

func TestSimulatedFabric_InjectedFailures(t *testing.T) {
	fab := NewSimulatedFabric(SimulatedConfig{})
	ctx := context.Background()

	fab.FailNextProvisions(1)
	_, err := fab.Provision(ctx, "pool-1", models.TierSmall)
	assert.ErrorIs(t, err, ErrProvisionFailed)

	unit, err := fab.Provision(ctx, "pool-1", models.TierSmall)
	require.NoError(t, err)

	fab.FailNextHealthChecks(2)
	assert.ErrorIs(t, fab.HealthCheck(ctx, unit.ID), ErrUnhealthy)
	assert.ErrorIs(t, fab.HealthCheck(ctx, unit.ID), ErrUnhealthy)
	assert.NoError(t, fab.HealthCheck(ctx, unit.ID))
}

func TestSimulatedFabric_Terminate(t *testing.T) {
	fab := NewSimulatedFabric(SimulatedConfig{})
	ctx := context.Background()

	unit, err := fab.Provision(ctx, "pool-1", models.TierSmall)
	require.NoError(t, err)

	require.NoError(t, fab.Terminate(ctx, unit.ID))
	assert.Equal(t, 0, fab.UnitCount())

	assert.ErrorIs(t, fab.Terminate(ctx, unit.ID), ErrUnitNotFound)
	assert.ErrorIs(t, fab.HealthCheck(ctx, unit.ID), ErrUnitNotFound)
}

func TestSimulatedFabric_ProvisionHonorsContext(t *testing.T) {
	fab := NewSimulatedFabric(SimulatedConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fab.Provision(ctx, "pool-1", models.TierSmall)
	assert.ErrorIs(t, err, context.Canceled)
}
