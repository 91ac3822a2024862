package models

import "time"

type ScalingAction string

const (
	ActionScaleUp   ScalingAction = "SCALE_UP"
	ActionScaleDown ScalingAction = "SCALE_DOWN"
	ActionHold      ScalingAction = "HOLD"
)

// ScalingDecision is produced by the decision engine and drives pool
// transitions. Only one decision may be in flight per pool at a time.
type ScalingDecision struct {
	PoolID         string        `json:"pool_id"`
	Timestamp      time.Time     `json:"timestamp"`
	Action         ScalingAction `json:"action"`
	CurrentTier    Tier          `json:"current_tier"`
	TargetTier     Tier          `json:"target_tier"`
	Reason         string        `json:"reason"`
	CooldownActive bool          `json:"cooldown_active"`
	StaleData      bool          `json:"stale_data"`
}

func (d *ScalingDecision) ShouldExecute() bool {
	return d.Action != ActionHold && !d.CooldownActive && !d.StaleData
}

type ScaleEventStatus string

const (
	ScaleEventSuccess  ScaleEventStatus = "success"
	ScaleEventFailed   ScaleEventStatus = "failed"
	ScaleEventDegraded ScaleEventStatus = "degraded"
)

// ScaleEvent records an executed (or attempted) scale operation.
type ScaleEvent struct {
	ID            int              `json:"id"`
	PoolID        string           `json:"pool_id"`
	Timestamp     time.Time        `json:"timestamp"`
	Action        ScalingAction    `json:"action"`
	TierBefore    Tier             `json:"tier_before"`
	TierAfter     Tier             `json:"tier_after"`
	TriggerReason string           `json:"trigger_reason"`
	Status        ScaleEventStatus `json:"status"`
}

func NewScaleEvent(decision ScalingDecision, status ScaleEventStatus) *ScaleEvent {
	return &ScaleEvent{
		PoolID:        decision.PoolID,
		Timestamp:     decision.Timestamp,
		Action:        decision.Action,
		TierBefore:    decision.CurrentTier,
		TierAfter:     decision.TargetTier,
		TriggerReason: decision.Reason,
		Status:        status,
	}
}
