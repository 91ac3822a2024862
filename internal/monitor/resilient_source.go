package monitor

import (
	"context"
	"time"

	"github.com/pgflex/pgflex/internal/logger"
	"github.com/pgflex/pgflex/internal/resilience"
	"github.com/pgflex/pgflex/pkg/models"
)

// ResilientSource wraps a Source with bounded retries and a circuit breaker.
type ResilientSource struct {
	source         Source
	circuitBreaker *resilience.CircuitBreaker
	retryAttempts  int
	retryDelay     time.Duration
}

type ResilientSourceConfig struct {
	Source        Source
	MaxFailures   int
	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	OnStateChange func(name string, from, to resilience.State)
}

func NewResilientSource(cfg ResilientSourceConfig) *ResilientSource {
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 250 * time.Millisecond
	}

	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:          "telemetry-source",
		MaxFailures:   cfg.MaxFailures,
		Timeout:       cfg.Timeout,
		OnStateChange: cfg.OnStateChange,
	})

	return &ResilientSource{
		source:         cfg.Source,
		circuitBreaker: cb,
		retryAttempts:  cfg.RetryAttempts,
		retryDelay:     cfg.RetryDelay,
	}
}

func (s *ResilientSource) Sample(ctx context.Context, poolID string) (*models.LoadSample, error) {
	var sample *models.LoadSample
	var lastErr error

	err := s.circuitBreaker.Execute(func() error {
		for attempt := 1; attempt <= s.retryAttempts; attempt++ {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			var err error
			sample, err = s.source.Sample(ctx, poolID)
			if err == nil {
				return nil
			}

			lastErr = err
			logger.WithPool(poolID).Warnf(
				"Sample attempt %d/%d failed: %v",
				attempt, s.retryAttempts, err,
			)

			if attempt < s.retryAttempts {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(s.retryDelay):
				}
			}
		}
		return lastErr
	})

	if err != nil {
		return nil, err
	}

	return sample, nil
}

func (s *ResilientSource) HealthCheck(ctx context.Context) error {
	return s.source.HealthCheck(ctx)
}

func (s *ResilientSource) Close() error {
	return s.source.Close()
}

func (s *ResilientSource) CircuitState() resilience.State {
	return s.circuitBreaker.State()
}

func (s *ResilientSource) ResetCircuit() {
	s.circuitBreaker.Reset()
}
