package pool

import (
	"errors"
	"sync"

	"github.com/pgflex/pgflex/internal/logger"
	"github.com/pgflex/pgflex/pkg/models"
)

var (
	ErrPoolNotFound = errors.New("pool not found")
	ErrUnitNotFound = errors.New("compute unit not found")
)

// Registry tracks every compute unit a pool has ever launched and enforces
// the state transitions. All reads return copies.
type Registry struct {
	units     map[string]*models.ComputeUnit
	pools     map[string][]string // poolID -> []unitID
	mu        sync.RWMutex
	callbacks Callbacks
}

type Callbacks struct {
	OnUnitActivated  func(unit *models.ComputeUnit)
	OnUnitTerminated func(unit *models.ComputeUnit)
	OnStateChanged   func(unit *models.ComputeUnit, oldState, newState models.UnitState)
}

func NewRegistry(callbacks Callbacks) *Registry {
	return &Registry{
		units:     make(map[string]*models.ComputeUnit),
		pools:     make(map[string][]string),
		callbacks: callbacks,
	}
}

func (r *Registry) AddUnit(unit *models.ComputeUnit) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.units[unit.ID] = unit
	r.pools[unit.PoolID] = append(r.pools[unit.PoolID], unit.ID)

	logger.WithPool(unit.PoolID).Infof(
		"Unit %s added with state %s", unit.ID[:8], unit.State,
	)
}

func (r *Registry) UpdateState(unitID string, newState models.UnitState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	unit, exists := r.units[unitID]
	if !exists {
		return ErrUnitNotFound
	}

	oldState := unit.State

	switch newState {
	case models.UnitStateActive:
		unit.Activate()
		if r.callbacks.OnUnitActivated != nil {
			go r.callbacks.OnUnitActivated(unit)
		}
	case models.UnitStateDraining:
		unit.Drain()
	case models.UnitStateTerminated:
		unit.Terminate()
		if r.callbacks.OnUnitTerminated != nil {
			go r.callbacks.OnUnitTerminated(unit)
		}
	default:
		unit.State = newState
	}

	if r.callbacks.OnStateChanged != nil {
		go r.callbacks.OnStateChanged(unit, oldState, newState)
	}

	logger.WithPool(unit.PoolID).Infof(
		"Unit %s state changed: %s -> %s", unitID[:8], oldState, newState,
	)

	return nil
}

func (r *Registry) Unit(unitID string) (*models.ComputeUnit, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	unit, exists := r.units[unitID]
	if !exists {
		return nil, false
	}

	// Return a copy
	unitCopy := *unit
	return &unitCopy, true
}

func (r *Registry) PoolUnits(poolID string) []*models.ComputeUnit {
	r.mu.RLock()
	defer r.mu.RUnlock()

	unitIDs := r.pools[poolID]
	units := make([]*models.ComputeUnit, 0, len(unitIDs))

	for _, id := range unitIDs {
		if unit, exists := r.units[id]; exists {
			unitCopy := *unit
			units = append(units, &unitCopy)
		}
	}

	return units
}

func (r *Registry) ActiveUnits(poolID string) []*models.ComputeUnit {
	r.mu.RLock()
	defer r.mu.RUnlock()

	unitIDs := r.pools[poolID]
	units := make([]*models.ComputeUnit, 0)

	for _, id := range unitIDs {
		unit, exists := r.units[id]
		if exists && unit.State == models.UnitStateActive {
			unitCopy := *unit
			units = append(units, &unitCopy)
		}
	}

	return units
}

// Counts tallies the pool's units per state. Terminated units are not counted.
func (r *Registry) Counts(poolID string) (total, active, provisioning, draining int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.pools[poolID] {
		unit, exists := r.units[id]
		if !exists {
			continue
		}

		switch unit.State {
		case models.UnitStateProvisioning:
			provisioning++
			total++
		case models.UnitStateActive:
			active++
			total++
		case models.UnitStateDraining:
			draining++
			total++
		case models.UnitStateTerminated:
		}
	}

	return total, active, provisioning, draining
}

func (r *Registry) RemoveUnit(unitID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	unit, exists := r.units[unitID]
	if !exists {
		return
	}

	poolID := unit.PoolID
	delete(r.units, unitID)

	unitIDs := r.pools[poolID]
	for i, id := range unitIDs {
		if id == unitID {
			r.pools[poolID] = append(unitIDs[:i], unitIDs[i+1:]...)
			break
		}
	}
}

func (r *Registry) CleanupTerminated(poolID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int
	unitIDs := r.pools[poolID]
	keptIDs := make([]string, 0, len(unitIDs))

	for _, id := range unitIDs {
		unit, exists := r.units[id]
		if !exists {
			continue
		}

		if unit.State == models.UnitStateTerminated {
			delete(r.units, id)
			removed++
		} else {
			keptIDs = append(keptIDs, id)
		}
	}

	r.pools[poolID] = keptIDs
	return removed
}
