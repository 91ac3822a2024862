package monitor

import (
	"context"
	"errors"

	"github.com/pgflex/pgflex/pkg/models"
)

var (
	ErrSampleFailed    = errors.New("load sampling failed")
	ErrTimeout         = errors.New("sampling timeout")
	ErrPoolNotFound    = errors.New("pool not found")
	ErrInvalidResponse = errors.New("invalid response from telemetry source")
)

// Source defines where load telemetry comes from.
type Source interface {
	// Sample fetches one load observation for a pool
	Sample(ctx context.Context, poolID string) (*models.LoadSample, error)

	// HealthCheck verifies the source can reach its telemetry endpoint
	HealthCheck(ctx context.Context) error

	// Close releases any resources held by the source
	Close() error
}
