package fabric

import (
	"context"
	"errors"

	"github.com/pgflex/pgflex/pkg/models"
)

var (
	ErrProvisionFailed = errors.New("compute unit provisioning failed")
	ErrTerminateFailed = errors.New("compute unit termination failed")
	ErrUnitNotFound    = errors.New("compute unit not found")
	ErrUnhealthy       = errors.New("compute unit unhealthy")
)

// Fabric is the external compute-fabric collaborator. The controller only
// asks for capacity; everything behind Provision is someone else's machinery.
type Fabric interface {
	// Provision allocates a new compute unit at the given tier. The unit
	// starts in Provisioning state and must pass HealthCheck before use.
	Provision(ctx context.Context, poolID string, tier models.Tier) (*models.ComputeUnit, error)

	// Terminate releases a unit's capacity
	Terminate(ctx context.Context, unitID string) error

	// HealthCheck reports whether a unit is ready to serve
	HealthCheck(ctx context.Context, unitID string) error

	// Close releases resources
	Close() error
}
