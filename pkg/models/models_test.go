package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTier_Ladder(t *testing.T) {
	up, ok := TierSmall.Above()
	assert.True(t, ok)
	assert.Equal(t, TierMedium, up)

	up, ok = TierMedium.Above()
	assert.True(t, ok)
	assert.Equal(t, TierLarge, up)

	_, ok = TierLarge.Above()
	assert.False(t, ok)

	down, ok := TierLarge.Below()
	assert.True(t, ok)
	assert.Equal(t, TierMedium, down)

	_, ok = TierSmall.Below()
	assert.False(t, ok)

	assert.True(t, TierSmall.LessThan(TierLarge))
	assert.False(t, TierLarge.LessThan(TierSmall))

	assert.True(t, TierMedium.IsValid())
	assert.False(t, Tier("xlarge").IsValid())
}

func TestComputeUnit_Lifecycle(t *testing.T) {
	unit := NewComputeUnit("pool-1", TierSmall, "10.0.0.1:5432")

	assert.NotEmpty(t, unit.ID)
	assert.Equal(t, UnitStateProvisioning, unit.State)
	assert.False(t, unit.IsActive())
	assert.True(t, unit.IsRunning())

	unit.Activate()
	assert.Equal(t, UnitStateActive, unit.State)
	assert.True(t, unit.IsActive())
	assert.NotNil(t, unit.ActivatedAt)

	unit.Drain()
	assert.Equal(t, UnitStateDraining, unit.State)
	assert.False(t, unit.IsActive())
	assert.True(t, unit.IsRunning())

	unit.Terminate()
	assert.Equal(t, UnitStateTerminated, unit.State)
	assert.False(t, unit.IsRunning())
	assert.NotNil(t, unit.TerminatedAt)
}

func TestScalingDecision_ShouldExecute(t *testing.T) {
	tests := []struct {
		name     string
		decision ScalingDecision
		expected bool
	}{
		{
			name:     "executable scale up",
			decision: ScalingDecision{Action: ActionScaleUp},
			expected: true,
		},
		{
			name:     "hold never executes",
			decision: ScalingDecision{Action: ActionHold},
			expected: false,
		},
		{
			name:     "cooldown blocks execution",
			decision: ScalingDecision{Action: ActionScaleUp, CooldownActive: true},
			expected: false,
		},
		{
			name:     "stale data blocks execution",
			decision: ScalingDecision{Action: ActionScaleDown, StaleData: true},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.decision.ShouldExecute())
		})
	}
}

func TestPoolState_DecisionInFlight(t *testing.T) {
	state := &PoolState{PoolID: "pool-1"}
	assert.False(t, state.DecisionInFlight())

	state.ScaleUpInFlight = true
	assert.True(t, state.DecisionInFlight())

	state.ScaleUpInFlight = false
	state.ScaleDownInFlight = true
	assert.True(t, state.DecisionInFlight())
}

func TestNewScaleEvent(t *testing.T) {
	decision := ScalingDecision{
		PoolID:      "pool-1",
		Action:      ActionScaleUp,
		CurrentTier: TierSmall,
		TargetTier:  TierMedium,
		Reason:      "sustained_high_load",
	}

	event := NewScaleEvent(decision, ScaleEventDegraded)

	assert.Equal(t, "pool-1", event.PoolID)
	assert.Equal(t, ActionScaleUp, event.Action)
	assert.Equal(t, TierSmall, event.TierBefore)
	assert.Equal(t, TierMedium, event.TierAfter)
	assert.Equal(t, "sustained_high_load", event.TriggerReason)
	assert.Equal(t, ScaleEventDegraded, event.Status)
}
