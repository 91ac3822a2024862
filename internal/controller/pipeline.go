package controller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pgflex/pgflex/internal/decision"
	"github.com/pgflex/pgflex/internal/events"
	"github.com/pgflex/pgflex/internal/logger"
	"github.com/pgflex/pgflex/internal/metrics"
	"github.com/pgflex/pgflex/internal/monitor"
	"github.com/pgflex/pgflex/internal/pool"
	"github.com/pgflex/pgflex/pkg/models"
)

type PipelineConfig struct {
	PoolID         string
	EvalInterval   time.Duration
	Monitor        *monitor.Monitor
	DecisionEngine *decision.Engine
	Manager        *pool.Manager
	EventPublisher *events.Publisher
}

// Pipeline drives one pool's control loop: aggregate the load window, ask the
// decision engine, hand executable decisions to the pool manager.
type Pipeline struct {
	config  PipelineConfig
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.EvalInterval == 0 {
		cfg.EvalInterval = 2 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pipeline{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}

	p.running = true
	p.wg.Add(1)
	go p.run()

	logger.WithPool(p.config.PoolID).Info("Pipeline started")
	return nil
}

func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()

	logger.WithPool(p.config.PoolID).Info("Pipeline stopped")
}

func (p *Pipeline) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Pipeline) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.EvalInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.runCycle()
		}
	}
}

func (p *Pipeline) runCycle() {
	poolID := p.config.PoolID
	started := time.Now()

	// Step 1: Aggregate the load window
	agg := p.config.Monitor.Aggregate()
	p.config.EventPublisher.LoadAnalyzed(poolID, agg)

	// Step 2: Snapshot the pool
	state := p.config.Manager.State()
	p.observe(agg, state)

	// Step 3: Make the scaling decision
	scalingDecision := p.config.DecisionEngine.Decide(agg, state)
	p.config.EventPublisher.DecisionMade(poolID, scalingDecision)
	metrics.Get().IncDecision(poolID, string(scalingDecision.Action))

	// Step 4: Execute if the decision survived all the gates
	if scalingDecision.ShouldExecute() {
		metrics.Get().IncScaleEvent(poolID, string(scalingDecision.Action))
		if err := p.config.Manager.Apply(scalingDecision); err != nil {
			logger.WithPool(poolID).Errorf("Failed to apply decision: %v", err)
			p.config.EventPublisher.Error(poolID, "Failed to apply scaling decision", err)
		}
	} else if scalingDecision.Reason == "scale_up_superseded" {
		logger.WithPool(poolID).Warn("Sustained low load during scale-up, cancelling in-flight provisioning")
		if err := p.config.Manager.CancelScaleUp(); err != nil && !errors.Is(err, pool.ErrNoScaleUpInFlight) {
			logger.WithPool(poolID).Errorf("Failed to cancel scale-up: %v", err)
		}
	}

	metrics.Get().SetDecisionLatency(poolID, time.Since(started))
}

func (p *Pipeline) observe(agg *models.LoadAggregate, state *models.PoolState) {
	m := metrics.Get()
	poolID := p.config.PoolID

	if !agg.Stale {
		m.SetAvgCPU(poolID, agg.AvgCPU)

		if agg.AvgCPU > 90.0 {
			p.config.EventPublisher.Alert(
				poolID,
				models.SeverityCritical,
				"Pool CPU critical",
				agg,
			)
		}
	}

	m.SetTier(poolID, tierRank(state.Tier))
	m.SetRoutedConns(poolID, state.RoutedConns)
	m.SetUnitCount(poolID, string(models.UnitStateActive), state.ActiveUnits)
	m.SetUnitCount(poolID, string(models.UnitStateProvisioning), state.ProvisioningUnits)
	m.SetUnitCount(poolID, string(models.UnitStateDraining), state.DrainingUnits)
}

func tierRank(tier models.Tier) int {
	for i, t := range models.Tiers() {
		if t == tier {
			return i
		}
	}
	return 0
}
