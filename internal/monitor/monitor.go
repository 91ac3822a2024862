package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/pgflex/pgflex/internal/logger"
	"github.com/pgflex/pgflex/pkg/models"
)

// Monitor samples one pool's load on a fixed interval and feeds the rolling
// window. A failed sample is logged and skipped; the window ages toward
// staleness instead of the monitor blocking or guessing.
type Monitor struct {
	poolID   string
	source   Source
	window   *Window
	interval time.Duration
	timeout  time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

type Config struct {
	PoolID     string
	Source     Source
	Interval   time.Duration
	Timeout    time.Duration
	WindowSize int
	StaleAfter time.Duration
}

func New(cfg Config) *Monitor {
	if cfg.Interval == 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.Timeout == 0 || cfg.Timeout >= cfg.Interval {
		cfg.Timeout = cfg.Interval / 2
	}
	if cfg.StaleAfter == 0 {
		cfg.StaleAfter = 3 * cfg.Interval
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Monitor{
		poolID:   cfg.PoolID,
		source:   cfg.Source,
		window:   NewWindow(cfg.PoolID, cfg.WindowSize, cfg.StaleAfter),
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}
	m.running = true

	m.wg.Add(1)
	go m.run()

	logger.WithPool(m.poolID).Info("Load monitor started")
	return nil
}

func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()

	logger.WithPool(m.poolID).Info("Load monitor stopped")
}

// Aggregate exposes the current window aggregate on demand.
func (m *Monitor) Aggregate() *models.LoadAggregate {
	return m.window.Aggregate()
}

// Window exposes the underlying window, for tests and direct feeding.
func (m *Monitor) Window() *Window {
	return m.window
}

func (m *Monitor) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	// Sample immediately on start
	m.sampleOnce()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.sampleOnce()
		}
	}
}

func (m *Monitor) sampleOnce() {
	ctx, cancel := context.WithTimeout(m.ctx, m.timeout)
	defer cancel()

	sample, err := m.source.Sample(ctx, m.poolID)
	if err != nil {
		logger.WithPool(m.poolID).Warnf("Load sample failed: %v", err)
		return
	}

	m.window.Add(*sample)
}
