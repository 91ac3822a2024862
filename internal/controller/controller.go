package controller

import (
	"context"
	"fmt"
	"sync"

	"github.com/pgflex/pgflex/internal/decision"
	"github.com/pgflex/pgflex/internal/events"
	"github.com/pgflex/pgflex/internal/fabric"
	"github.com/pgflex/pgflex/internal/logger"
	"github.com/pgflex/pgflex/internal/metrics"
	"github.com/pgflex/pgflex/internal/monitor"
	"github.com/pgflex/pgflex/internal/pool"
	"github.com/pgflex/pgflex/internal/router"
	"github.com/pgflex/pgflex/pkg/config"
	"github.com/pgflex/pgflex/pkg/database"
	"github.com/pgflex/pgflex/pkg/database/queries"
	"github.com/pgflex/pgflex/pkg/models"
)

// Controller wires one control loop per configured pool and owns the shared
// pieces: the event bus, the decision engine and the persistence sink.
type Controller struct {
	config      *config.Config
	db          *database.DB
	eventBus    *events.EventBus
	eventLogger *events.EventLogger
	engine      *decision.Engine
	pools       map[string]*poolRuntime
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

type poolRuntime struct {
	spec     config.PoolSpec
	monitor  *monitor.Monitor
	manager  *pool.Manager
	router   *router.Router
	proxy    *router.Proxy
	pipeline *Pipeline
}

func New(cfg *config.Config, db *database.DB) *Controller {
	ctx, cancel := context.WithCancel(context.Background())

	eventBus := events.NewEventBus(cfg.Events.BufferSize)

	var eventLogger *events.EventLogger
	if db != nil {
		eventLogger = events.NewEventLogger(
			eventBus,
			queries.NewDecisionRepository(db.DB),
			queries.NewScaleEventRepository(db.DB),
		)
	}

	engine := decision.NewEngine(decisionConfig(cfg))

	return &Controller{
		config:      cfg,
		db:          db,
		eventBus:    eventBus,
		eventLogger: eventLogger,
		engine:      engine,
		pools:       make(map[string]*poolRuntime),
		ctx:         ctx,
		cancel:      cancel,
	}
}

func decisionConfig(cfg *config.Config) decision.Config {
	thresholds := make(map[models.Tier]decision.Threshold, len(cfg.Decision.Thresholds))
	for tier, th := range cfg.Decision.Thresholds {
		thresholds[models.Tier(tier)] = decision.Threshold{Upper: th.Upper, Lower: th.Lower}
	}

	return decision.Config{
		ScaleUpSamples:   cfg.Decision.ScaleUpSamples,
		ScaleDownSamples: cfg.Decision.ScaleDownSamples,
		CooldownPeriod:   cfg.Decision.CooldownPeriod,
		MinTier:          models.Tier(cfg.Decision.MinTier),
		MaxTier:          models.Tier(cfg.Decision.MaxTier),
		Thresholds:       thresholds,
	}
}

func (c *Controller) poolConfig(spec config.PoolSpec) pool.Config {
	tierUnits := make(map[models.Tier]int, len(c.config.Pool.TierUnits))
	for tier, n := range c.config.Pool.TierUnits {
		tierUnits[models.Tier(tier)] = n
	}

	return pool.Config{
		PoolID:             spec.ID,
		InitialTier:        models.Tier(spec.InitialTier),
		TierUnits:          tierUnits,
		HealthCheckTimeout: c.config.Pool.HealthCheckTimeout,
		ProvisionRetries:   c.config.Pool.ProvisionRetries,
		RetryDelay:         c.config.Pool.RetryDelay,
		DrainDeadline:      c.config.Pool.DrainDeadline,
		MinActiveUnits:     c.config.Pool.MinActiveUnits,
	}
}

func (c *Controller) Start() error {
	logger.Info("Controller starting")

	if c.eventLogger != nil {
		c.eventLogger.Start()
	}
	c.startMetricsSink()

	return nil
}

// StartPool brings up the full runtime for one pool: initial units, the
// connection proxy, the load monitor and the control loop.
func (c *Controller) StartPool(spec config.PoolSpec, src monitor.Source, fab fabric.Fabric) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.pools[spec.ID]; exists {
		return fmt.Errorf("pool %s already started", spec.ID)
	}

	publisher := events.NewPublisher(c.eventBus)

	rtr := router.New(router.Config{
		Policy:           router.Policy(c.config.Router.Policy),
		AdmissionTimeout: c.config.Router.AdmissionTimeout,
	})

	manager := pool.NewManager(c.poolConfig(spec), fab, rtr, publisher)
	if err := manager.Initialize(c.ctx); err != nil {
		return err
	}

	listenAddr := spec.ListenAddr
	if listenAddr == "" {
		listenAddr = c.config.Router.ListenAddr
	}
	proxy := router.NewProxy(listenAddr, rtr, &router.TCPDialer{
		Timeout: c.config.Router.DialTimeout,
	})
	if err := proxy.Start(); err != nil {
		manager.Stop()
		return fmt.Errorf("failed to start proxy for pool %s: %w", spec.ID, err)
	}

	mon := monitor.New(monitor.Config{
		PoolID:     spec.ID,
		Source:     src,
		Interval:   c.config.Monitor.Interval,
		Timeout:    c.config.Monitor.Timeout,
		WindowSize: c.config.Monitor.WindowSize,
		StaleAfter: c.config.Monitor.StaleAfter,
	})
	if err := mon.Start(); err != nil {
		proxy.Stop()
		manager.Stop()
		return fmt.Errorf("failed to start monitor for pool %s: %w", spec.ID, err)
	}

	pipeline := NewPipeline(PipelineConfig{
		PoolID:         spec.ID,
		EvalInterval:   c.config.Monitor.Interval,
		Monitor:        mon,
		DecisionEngine: c.engine,
		Manager:        manager,
		EventPublisher: publisher,
	})

	if err := pipeline.Start(); err != nil {
		mon.Stop()
		proxy.Stop()
		manager.Stop()
		return fmt.Errorf("failed to start pipeline: %w", err)
	}

	c.pools[spec.ID] = &poolRuntime{
		spec:     spec,
		monitor:  mon,
		manager:  manager,
		router:   rtr,
		proxy:    proxy,
		pipeline: pipeline,
	}

	logger.WithPool(spec.ID).Info("Pool runtime started")
	return nil
}

func (c *Controller) StopPool(poolID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rt, exists := c.pools[poolID]
	if !exists {
		return fmt.Errorf("no runtime found for pool %s", poolID)
	}

	rt.pipeline.Stop()
	rt.monitor.Stop()
	rt.proxy.Stop()
	rt.manager.Stop()
	delete(c.pools, poolID)

	logger.WithPool(poolID).Info("Pool runtime stopped")
	return nil
}

func (c *Controller) Stop() {
	logger.Info("Controller stopping")

	c.mu.Lock()
	ids := make([]string, 0, len(c.pools))
	for poolID := range c.pools {
		ids = append(ids, poolID)
	}
	c.mu.Unlock()

	for _, poolID := range ids {
		if err := c.StopPool(poolID); err != nil {
			logger.Errorf("Failed to stop pool %s: %v", poolID, err)
		}
	}

	c.cancel()
	c.eventBus.Close()
	if c.eventLogger != nil {
		c.eventLogger.Stop()
	}
	c.wg.Wait()

	logger.Info("Controller stopped")
}

// startMetricsSink keeps the failure counters in sync off the event bus.
func (c *Controller) startMetricsSink() {
	drainCh := c.eventBus.Subscribe(models.EventTypeDrainDegraded)
	resetCh := c.eventBus.Subscribe(models.EventTypeConnectionReset)
	failCh := c.eventBus.Subscribe(models.EventTypeScaleFailed)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case event, ok := <-drainCh:
				if !ok {
					return
				}
				metrics.Get().IncDrainsDegraded(event.PoolID)
			case event, ok := <-resetCh:
				if !ok {
					return
				}
				metrics.Get().AddConnectionResets(event.PoolID, 1)
			case event, ok := <-failCh:
				if !ok {
					return
				}
				metrics.Get().IncProvisionFailures(event.PoolID)
			}
		}
	}()
}

func (c *Controller) ListPools() []*models.PoolState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	states := make([]*models.PoolState, 0, len(c.pools))
	for _, rt := range c.pools {
		states = append(states, rt.manager.State())
	}
	return states
}

func (c *Controller) PoolState(poolID string) (*models.PoolState, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rt, exists := c.pools[poolID]
	if !exists {
		return nil, fmt.Errorf("no runtime found for pool %s", poolID)
	}
	return rt.manager.State(), nil
}

func (c *Controller) PoolUnits(poolID string) ([]*models.ComputeUnit, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rt, exists := c.pools[poolID]
	if !exists {
		return nil, fmt.Errorf("no runtime found for pool %s", poolID)
	}
	return rt.manager.Units(), nil
}

func (c *Controller) PoolAggregate(poolID string) (*models.LoadAggregate, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rt, exists := c.pools[poolID]
	if !exists {
		return nil, fmt.Errorf("no runtime found for pool %s", poolID)
	}
	return rt.monitor.Aggregate(), nil
}

func (c *Controller) IsPoolRunning(poolID string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rt, exists := c.pools[poolID]
	if !exists {
		return false, fmt.Errorf("no runtime found for pool %s", poolID)
	}
	return rt.pipeline.IsRunning(), nil
}

// Engine exposes the decision engine for streak and cooldown introspection.
func (c *Controller) Engine() *decision.Engine {
	return c.engine
}

func (c *Controller) SubscribeEvents(eventType models.EventType) <-chan *models.Event {
	return c.eventBus.Subscribe(eventType)
}

func (c *Controller) SubscribeAllEvents() <-chan *models.Event {
	return c.eventBus.SubscribeAll()
}
