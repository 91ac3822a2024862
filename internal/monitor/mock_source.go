package monitor

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/pgflex/pgflex/pkg/models"
)

// MockSource produces synthetic load for tests and the demo run mode.
type MockSource struct {
	mu           sync.Mutex
	pools        map[string]bool
	baseCPU      float64
	baseConns    int
	variance     float64
	shouldFail   bool
	failureError error
}

type MockSourceConfig struct {
	BaseCPU   float64
	BaseConns int
	Variance  float64
}

func NewMockSource(cfg MockSourceConfig) *MockSource {
	baseCPU := cfg.BaseCPU
	if baseCPU == 0 {
		baseCPU = 50.0
	}

	baseConns := cfg.BaseConns
	if baseConns == 0 {
		baseConns = 40
	}

	variance := cfg.Variance
	if variance == 0 {
		variance = 10.0
	}

	return &MockSource{
		pools:     make(map[string]bool),
		baseCPU:   baseCPU,
		baseConns: baseConns,
		variance:  variance,
	}
}

func (s *MockSource) AddPool(poolID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pools[poolID] = true
}

func (s *MockSource) SetBaseCPU(cpu float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseCPU = cpu
}

func (s *MockSource) SetShouldFail(shouldFail bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shouldFail = shouldFail
	s.failureError = err
}

func (s *MockSource) Sample(ctx context.Context, poolID string) (*models.LoadSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shouldFail {
		if s.failureError != nil {
			return nil, s.failureError
		}
		return nil, ErrSampleFailed
	}

	if !s.pools[poolID] {
		return nil, ErrPoolNotFound
	}

	return &models.LoadSample{
		PoolID:      poolID,
		Timestamp:   time.Now(),
		ActiveConns: s.baseConns + rand.Intn(10),
		CPUPercent:  s.randomValue(s.baseCPU, s.variance),
		IOPS:        s.randomValue(500, 100),
		QueueDepth:  rand.Intn(5),
	}, nil
}

func (s *MockSource) randomValue(base, variance float64) float64 {
	value := base + (rand.Float64()*2-1)*variance
	if value < 0 {
		value = 0
	}
	return value
}

func (s *MockSource) HealthCheck(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shouldFail {
		return ErrSampleFailed
	}
	return nil
}

func (s *MockSource) Close() error {
	return nil
}
