package pool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pgflex/pgflex/internal/events"
	"github.com/pgflex/pgflex/internal/fabric"
	"github.com/pgflex/pgflex/internal/logger"
	"github.com/pgflex/pgflex/pkg/models"
)

var (
	ErrNoScaleUpInFlight = errors.New("no scale-up in flight")
	ErrManagerStopped    = errors.New("pool manager stopped")
)

// ConnRouter is the slice of the connection router the pool manager drives
// during transitions.
type ConnRouter interface {
	RegisterUnit(unit *models.ComputeUnit)
	MarkDraining(unitID string) error
	RemoveUnit(unitID string)
	ForceCloseUnit(unitID string) []string
	ConnCount(unitID string) int
	TotalConns() int
}

type Config struct {
	PoolID      string
	InitialTier models.Tier

	// TierUnits maps each tier to its unit count. Tiers higher on the
	// ladder must not map to fewer units.
	TierUnits map[models.Tier]int

	HealthCheckTimeout time.Duration

	// ProvisionRetries is the health-check budget for a freshly provisioned
	// unit. Exhausting it fails the whole scale-up.
	ProvisionRetries int
	RetryDelay       time.Duration

	// DrainDeadline bounds how long a draining unit may hold on to its
	// connections before they are forcibly reset.
	DrainDeadline time.Duration

	// MinActiveUnits is the pool floor. Scale-down never drains below it.
	MinActiveUnits int
}

// Manager executes scaling decisions for a single pool. At most one scale-up
// and one scale-down run at a time; a decision arriving while its direction
// is busy replaces any queued one (latest wins).
type Manager struct {
	cfg       Config
	fabric    fabric.Fabric
	router    ConnRouter
	registry  *Registry
	publisher *events.Publisher

	mu          sync.Mutex
	tier        models.Tier
	lastScale   *time.Time
	upTask      *task
	downTask    *task
	pendingUp   *models.ScalingDecision
	pendingDown *models.ScalingDecision

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type task struct {
	decision *models.ScalingDecision
	cancel   context.CancelFunc
}

func NewManager(cfg Config, fab fabric.Fabric, router ConnRouter, publisher *events.Publisher) *Manager {
	if cfg.InitialTier == "" {
		cfg.InitialTier = models.TierSmall
	}
	if cfg.TierUnits == nil {
		cfg.TierUnits = map[models.Tier]int{
			models.TierSmall:  1,
			models.TierMedium: 2,
			models.TierLarge:  4,
		}
	}
	if cfg.HealthCheckTimeout == 0 {
		cfg.HealthCheckTimeout = 2 * time.Second
	}
	if cfg.ProvisionRetries == 0 {
		cfg.ProvisionRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.DrainDeadline == 0 {
		cfg.DrainDeadline = 30 * time.Second
	}
	if cfg.MinActiveUnits == 0 {
		cfg.MinActiveUnits = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		cfg:       cfg,
		fabric:    fab,
		router:    router,
		publisher: publisher,
		tier:      cfg.InitialTier,
		ctx:       ctx,
		cancel:    cancel,
	}

	m.registry = NewRegistry(Callbacks{
		OnUnitActivated:  func(u *models.ComputeUnit) { publisher.UnitActivated(u) },
		OnUnitTerminated: func(u *models.ComputeUnit) { publisher.UnitTerminated(u) },
	})

	return m
}

// Initialize brings the pool up to its initial tier's unit count. Called once
// before the control loop starts.
func (m *Manager) Initialize(ctx context.Context) error {
	target := m.unitTarget(m.cfg.InitialTier)

	logger.WithPool(m.cfg.PoolID).Infof(
		"Initializing pool at tier %s with %d units", m.cfg.InitialTier, target,
	)

	for i := 0; i < target; i++ {
		if _, err := m.provisionUnit(ctx, m.cfg.InitialTier); err != nil {
			return fmt.Errorf("pool %s initialization: %w", m.cfg.PoolID, err)
		}
	}

	return nil
}

// Apply schedules the execution of a scaling decision. HOLD decisions and
// decisions blocked by cooldown or stale data are ignored.
func (m *Manager) Apply(decision *models.ScalingDecision) error {
	if decision == nil || !decision.ShouldExecute() {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	select {
	case <-m.ctx.Done():
		return ErrManagerStopped
	default:
	}

	switch decision.Action {
	case models.ActionScaleUp:
		if m.upTask != nil {
			m.pendingUp = decision
			return nil
		}
		m.startScaleUpLocked(decision)
	case models.ActionScaleDown:
		if m.downTask != nil {
			m.pendingDown = decision
			return nil
		}
		m.startScaleDownLocked(decision)
	}

	return nil
}

// CancelScaleUp aborts an in-flight scale-up. Provisioning units are
// terminated outright, units that already reached Active drain first; the
// pool keeps its prior tier.
func (m *Manager) CancelScaleUp() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.upTask == nil {
		return ErrNoScaleUpInFlight
	}

	logger.WithPool(m.cfg.PoolID).Warn("Cancelling in-flight scale-up")
	m.upTask.cancel()
	return nil
}

func (m *Manager) startScaleUpLocked(decision *models.ScalingDecision) {
	ctx, cancel := context.WithCancel(m.ctx)
	m.upTask = &task{decision: decision, cancel: cancel}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()

		success := m.runScaleUp(ctx, decision)
		m.finishScaleUp(success)
	}()
}

func (m *Manager) startScaleDownLocked(decision *models.ScalingDecision) {
	ctx, cancel := context.WithCancel(m.ctx)
	m.downTask = &task{decision: decision, cancel: cancel}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()

		success := m.runScaleDown(ctx, decision)
		m.finishScaleDown(success)
	}()
}

func (m *Manager) runScaleUp(ctx context.Context, decision *models.ScalingDecision) bool {
	m.publisher.ScaleStarted(decision.PoolID, decision)

	target := m.unitTarget(decision.TargetTier)
	_, active, provisioning, _ := m.registry.Counts(m.cfg.PoolID)
	delta := target - active - provisioning

	logger.WithPool(m.cfg.PoolID).Infof(
		"Scaling up %s -> %s: adding %d units", decision.CurrentTier, decision.TargetTier, delta,
	)

	added := make([]string, 0, delta)
	for i := 0; i < delta; i++ {
		unit, err := m.provisionUnit(ctx, decision.TargetTier)
		if err != nil {
			m.rollbackUnits(added)

			if errors.Is(err, context.Canceled) {
				m.publisher.ScaleFailed(decision.PoolID, "scale_up_cancelled", err)
			} else {
				m.publisher.ScaleFailed(decision.PoolID, "provision_failed", err)
				m.publisher.Alert(decision.PoolID, models.SeverityCritical,
					"Scale-up aborted, pool remains at tier "+string(decision.CurrentTier), nil)
			}

			m.publisher.ScaleComplete(decision.PoolID,
				models.NewScaleEvent(*decision, models.ScaleEventFailed))
			return false
		}
		added = append(added, unit.ID)
	}

	m.setTier(decision.TargetTier)
	m.publisher.ScaleComplete(decision.PoolID,
		models.NewScaleEvent(*decision, models.ScaleEventSuccess))

	logger.WithPool(m.cfg.PoolID).Infof("Scale-up to %s complete", decision.TargetTier)
	return true
}

func (m *Manager) runScaleDown(ctx context.Context, decision *models.ScalingDecision) bool {
	m.publisher.ScaleStarted(decision.PoolID, decision)

	target := m.unitTarget(decision.TargetTier)
	if target < m.cfg.MinActiveUnits {
		target = m.cfg.MinActiveUnits
	}

	actives := m.registry.ActiveUnits(m.cfg.PoolID)
	remove := len(actives) - target
	if remove <= 0 {
		// Already at or below the target count. The tier label still moves.
		m.setTier(decision.TargetTier)
		m.publisher.ScaleComplete(decision.PoolID,
			models.NewScaleEvent(*decision, models.ScaleEventSuccess))
		return true
	}

	// Least-loaded units drain first.
	sort.Slice(actives, func(i, j int) bool {
		return m.router.ConnCount(actives[i].ID) < m.router.ConnCount(actives[j].ID)
	})
	victims := actives[:remove]

	logger.WithPool(m.cfg.PoolID).Infof(
		"Scaling down %s -> %s: draining %d units", decision.CurrentTier, decision.TargetTier, remove,
	)

	for _, victim := range victims {
		m.registry.UpdateState(victim.ID, models.UnitStateDraining)
		m.router.MarkDraining(victim.ID)

		if unit, ok := m.registry.Unit(victim.ID); ok {
			m.publisher.UnitDraining(unit)
		}
	}

	status := models.ScaleEventSuccess
	if !m.awaitDrained(ctx, victims) {
		status = models.ScaleEventDegraded
		m.forceCloseVictims(decision.PoolID, victims)
	}

	for _, victim := range victims {
		if err := m.fabric.Terminate(context.Background(), victim.ID); err != nil {
			logger.WithUnit(victim.ID).Errorf("Terminate failed: %v", err)
		}
		m.registry.UpdateState(victim.ID, models.UnitStateTerminated)
		m.router.RemoveUnit(victim.ID)
	}

	m.setTier(decision.TargetTier)
	m.publisher.ScaleComplete(decision.PoolID, models.NewScaleEvent(*decision, status))

	logger.WithPool(m.cfg.PoolID).Infof(
		"Scale-down to %s complete (status: %s)", decision.TargetTier, status,
	)
	return true
}

// awaitDrained waits until every victim has zero routed connections or the
// drain deadline passes. Returns false when stragglers must be forced.
func (m *Manager) awaitDrained(ctx context.Context, victims []*models.ComputeUnit) bool {
	deadline := time.NewTimer(m.cfg.DrainDeadline)
	defer deadline.Stop()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		drained := true
		for _, victim := range victims {
			if m.router.ConnCount(victim.ID) > 0 {
				drained = false
				break
			}
		}
		if drained {
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return false
		case <-ticker.C:
		}
	}
}

func (m *Manager) forceCloseVictims(poolID string, victims []*models.ComputeUnit) {
	for _, victim := range victims {
		connIDs := m.router.ForceCloseUnit(victim.ID)
		if len(connIDs) == 0 {
			continue
		}

		for _, connID := range connIDs {
			m.publisher.ConnectionReset(poolID, victim.ID, connID)
		}
		m.publisher.DrainDegraded(poolID, victim.ID, len(connIDs))

		logger.WithUnit(victim.ID).Warnf(
			"Drain deadline exceeded, %d connections reset", len(connIDs),
		)
	}
}

// provisionUnit allocates one unit and walks it to Active, spending the
// health-check retry budget. A unit that never turns healthy is terminated
// and the error wraps ErrProvisionFailed.
func (m *Manager) provisionUnit(ctx context.Context, tier models.Tier) (*models.ComputeUnit, error) {
	unit, err := m.fabric.Provision(ctx, m.cfg.PoolID, tier)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", fabric.ErrProvisionFailed, err)
	}

	m.registry.AddUnit(unit)
	m.publisher.UnitProvisioned(unit)

	if err := m.awaitHealthy(ctx, unit.ID); err != nil {
		m.registry.UpdateState(unit.ID, models.UnitStateTerminated)
		if terr := m.fabric.Terminate(context.Background(), unit.ID); terr != nil {
			logger.WithUnit(unit.ID).Errorf("Cleanup terminate failed: %v", terr)
		}
		return nil, err
	}

	m.registry.UpdateState(unit.ID, models.UnitStateActive)

	activated, _ := m.registry.Unit(unit.ID)
	m.router.RegisterUnit(activated)

	return activated, nil
}

func (m *Manager) awaitHealthy(ctx context.Context, unitID string) error {
	for attempt := 1; attempt <= m.cfg.ProvisionRetries; attempt++ {
		hctx, hcancel := context.WithTimeout(ctx, m.cfg.HealthCheckTimeout)
		err := m.fabric.HealthCheck(hctx, unitID)
		hcancel()

		if err == nil {
			return nil
		}

		logger.WithUnit(unitID).Debugf(
			"Health check %d/%d failed: %v", attempt, m.cfg.ProvisionRetries, err,
		)

		if attempt == m.cfg.ProvisionRetries {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.cfg.RetryDelay):
		}
	}

	return fmt.Errorf("unit %s failed %d health checks: %w",
		unitID[:8], m.cfg.ProvisionRetries, fabric.ErrProvisionFailed)
}

// rollbackUnits tears down units added by an aborted scale-up. The units
// already reached Active and may hold routed connections, so they get the
// same drain deadline as scale-down victims before anything is forced.
func (m *Manager) rollbackUnits(unitIDs []string) {
	victims := make([]*models.ComputeUnit, 0, len(unitIDs))
	for _, unitID := range unitIDs {
		m.registry.UpdateState(unitID, models.UnitStateDraining)
		m.router.MarkDraining(unitID)

		if unit, ok := m.registry.Unit(unitID); ok {
			m.publisher.UnitDraining(unit)
			victims = append(victims, unit)
		}
	}

	if !m.awaitDrained(m.ctx, victims) {
		m.forceCloseVictims(m.cfg.PoolID, victims)
	}

	for _, unitID := range unitIDs {
		if err := m.fabric.Terminate(context.Background(), unitID); err != nil {
			logger.WithUnit(unitID).Errorf("Rollback terminate failed: %v", err)
		}
		m.registry.UpdateState(unitID, models.UnitStateTerminated)
		m.router.RemoveUnit(unitID)
	}
}

func (m *Manager) finishScaleUp(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.upTask = nil
	if success {
		now := time.Now()
		m.lastScale = &now
	}

	if pending := m.pendingUp; pending != nil {
		m.pendingUp = nil
		m.startScaleUpLocked(pending)
	}
}

func (m *Manager) finishScaleDown(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.downTask = nil
	if success {
		now := time.Now()
		m.lastScale = &now
	}

	if pending := m.pendingDown; pending != nil {
		m.pendingDown = nil
		m.startScaleDownLocked(pending)
	}
}

func (m *Manager) setTier(tier models.Tier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tier = tier
}

// State snapshots the pool for the decision engine and the API.
func (m *Manager) State() *models.PoolState {
	m.mu.Lock()
	tier := m.tier
	upInFlight := m.upTask != nil
	downInFlight := m.downTask != nil
	lastScale := m.lastScale
	m.mu.Unlock()

	total, active, provisioning, draining := m.registry.Counts(m.cfg.PoolID)

	return &models.PoolState{
		PoolID:            m.cfg.PoolID,
		Tier:              tier,
		TotalUnits:        total,
		ActiveUnits:       active,
		ProvisioningUnits: provisioning,
		DrainingUnits:     draining,
		RoutedConns:       m.router.TotalConns(),
		ScaleUpInFlight:   upInFlight,
		ScaleDownInFlight: downInFlight,
		LastScaleTime:     lastScale,
	}
}

func (m *Manager) Tier() models.Tier {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tier
}

func (m *Manager) Units() []*models.ComputeUnit {
	return m.registry.PoolUnits(m.cfg.PoolID)
}

func (m *Manager) unitTarget(tier models.Tier) int {
	if n, ok := m.cfg.TierUnits[tier]; ok && n > 0 {
		return n
	}
	return 1
}

// Stop cancels in-flight tasks and waits for them to unwind.
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()
}
