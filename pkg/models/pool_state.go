package models

import "time"

// PoolState is a point-in-time snapshot of a compute pool, passed into each
// decision evaluation so the control loop stays free of shared mutable state.
type PoolState struct {
	PoolID            string     `json:"pool_id"`
	Tier              Tier       `json:"tier"`
	TotalUnits        int        `json:"total_units"`
	ActiveUnits       int        `json:"active_units"`
	ProvisioningUnits int        `json:"provisioning_units"`
	DrainingUnits     int        `json:"draining_units"`
	RoutedConns       int        `json:"routed_conns"`
	ScaleUpInFlight   bool       `json:"scale_up_in_flight"`
	ScaleDownInFlight bool       `json:"scale_down_in_flight"`
	LastScaleTime     *time.Time `json:"last_scale_time,omitempty"`
}

// DecisionInFlight reports whether a previous decision is still being applied.
func (ps *PoolState) DecisionInFlight() bool {
	return ps.ScaleUpInFlight || ps.ScaleDownInFlight
}
