package models

import "time"

type UnitState string

const (
	UnitStateProvisioning UnitState = "PROVISIONING"
	UnitStateActive       UnitState = "ACTIVE"
	UnitStateDraining     UnitState = "DRAINING"
	UnitStateTerminated   UnitState = "TERMINATED"
)

// ComputeUnit is an allocatable slice of serving capacity for the
// database engine, provisioned and terminated through the compute fabric.
type ComputeUnit struct {
	ID           string     `json:"id"`
	PoolID       string     `json:"pool_id"`
	Tier         Tier       `json:"tier"`
	State        UnitState  `json:"state"`
	Addr         string     `json:"addr"`
	CreatedAt    time.Time  `json:"created_at"`
	ActivatedAt  *time.Time `json:"activated_at,omitempty"`
	TerminatedAt *time.Time `json:"terminated_at,omitempty"`
}

func NewComputeUnit(poolID string, tier Tier, addr string) *ComputeUnit {
	return &ComputeUnit{
		ID:        NewUUID(),
		PoolID:    poolID,
		Tier:      tier,
		State:     UnitStateProvisioning,
		Addr:      addr,
		CreatedAt: time.Now(),
	}
}

func (u *ComputeUnit) Activate() {
	now := time.Now()
	u.State = UnitStateActive
	u.ActivatedAt = &now
}

func (u *ComputeUnit) Drain() {
	u.State = UnitStateDraining
}

func (u *ComputeUnit) Terminate() {
	now := time.Now()
	u.State = UnitStateTerminated
	u.TerminatedAt = &now
}

func (u *ComputeUnit) IsActive() bool {
	return u.State == UnitStateActive
}

// IsRunning reports whether the unit still occupies fabric capacity.
func (u *ComputeUnit) IsRunning() bool {
	return u.State == UnitStateProvisioning || u.State == UnitStateActive || u.State == UnitStateDraining
}
