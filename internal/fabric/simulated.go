package fabric

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pgflex/pgflex/internal/logger"
	"github.com/pgflex/pgflex/pkg/models"
)

// SimulatedFabric fakes a compute fabric for tests and the demo run mode.
// Units become healthy ReadyAfter after provisioning; failure modes are
// injectable per call site.
type SimulatedFabric struct {
	mu             sync.Mutex
	units          map[string]*simUnit
	readyAfter     time.Duration
	nextHost       int
	failProvisions int
	failHealth     int
}

type simUnit struct {
	unit          *models.ComputeUnit
	provisionedAt time.Time
}

type SimulatedConfig struct {
	// ReadyAfter is how long a unit stays unhealthy after Provision.
	ReadyAfter time.Duration
}

func NewSimulatedFabric(cfg SimulatedConfig) *SimulatedFabric {
	return &SimulatedFabric{
		units:      make(map[string]*simUnit),
		readyAfter: cfg.ReadyAfter,
	}
}

// FailNextProvisions makes the next n Provision calls fail.
func (f *SimulatedFabric) FailNextProvisions(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failProvisions = n
}

// FailNextHealthChecks makes the next n HealthCheck calls fail regardless of
// unit readiness.
func (f *SimulatedFabric) FailNextHealthChecks(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failHealth = n
}

func (f *SimulatedFabric) Provision(ctx context.Context, poolID string, tier models.Tier) (*models.ComputeUnit, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failProvisions > 0 {
		f.failProvisions--
		return nil, ErrProvisionFailed
	}

	f.nextHost++
	addr := fmt.Sprintf("10.0.0.%d:5432", f.nextHost)

	unit := models.NewComputeUnit(poolID, tier, addr)
	f.units[unit.ID] = &simUnit{
		unit:          unit,
		provisionedAt: time.Now(),
	}

	logger.WithUnit(unit.ID).Debugf("Simulated fabric provisioned %s unit at %s", tier, addr)

	return unit, nil
}

func (f *SimulatedFabric) Terminate(ctx context.Context, unitID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.units[unitID]; !exists {
		return ErrUnitNotFound
	}

	delete(f.units, unitID)
	logger.WithUnit(unitID).Debug("Simulated fabric terminated unit")
	return nil
}

func (f *SimulatedFabric) HealthCheck(ctx context.Context, unitID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failHealth > 0 {
		f.failHealth--
		return ErrUnhealthy
	}

	su, exists := f.units[unitID]
	if !exists {
		return ErrUnitNotFound
	}

	if time.Since(su.provisionedAt) < f.readyAfter {
		return ErrUnhealthy
	}

	return nil
}

func (f *SimulatedFabric) Close() error {
	return nil
}

// UnitCount reports how many units currently hold fabric capacity.
func (f *SimulatedFabric) UnitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.units)
}
