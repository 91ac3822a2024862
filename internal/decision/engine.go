package decision

import (
	"sync"
	"time"

	"github.com/pgflex/pgflex/internal/logger"
	"github.com/pgflex/pgflex/pkg/models"
)

// Threshold holds the utilization band for one tier. Load above Upper pushes
// toward scale-up, below Lower toward scale-down, in between resets both
// streaks.
type Threshold struct {
	Upper float64
	Lower float64
}

type Config struct {
	// ScaleUpSamples is the number of consecutive samples above Upper
	// required before a scale-up is emitted.
	ScaleUpSamples int

	// ScaleDownSamples is the number of consecutive samples below Lower
	// required before a scale-down is emitted. Must exceed ScaleUpSamples:
	// shrinking is biased toward stability.
	ScaleDownSamples int

	CooldownPeriod time.Duration
	MinTier        models.Tier
	MaxTier        models.Tier
	Thresholds     map[models.Tier]Threshold
}

// Engine maps the observed load aggregate to a target tier, applying
// streak-based hysteresis and a cooldown window between decisions.
type Engine struct {
	config        Config
	mu            sync.RWMutex
	lastDecisions map[string]time.Time
	streaks       map[string]*streak
}

type streak struct {
	high int
	low  int
}

func NewEngine(cfg Config) *Engine {
	if cfg.ScaleUpSamples == 0 {
		cfg.ScaleUpSamples = 3
	}
	if cfg.ScaleDownSamples == 0 {
		cfg.ScaleDownSamples = 2 * cfg.ScaleUpSamples
	}
	if cfg.CooldownPeriod == 0 {
		cfg.CooldownPeriod = 2 * time.Minute
	}
	if cfg.MinTier == "" {
		cfg.MinTier = models.TierSmall
	}
	if cfg.MaxTier == "" {
		cfg.MaxTier = models.TierLarge
	}
	if cfg.Thresholds == nil {
		cfg.Thresholds = map[models.Tier]Threshold{}
	}
	for _, tier := range models.Tiers() {
		if _, ok := cfg.Thresholds[tier]; !ok {
			cfg.Thresholds[tier] = Threshold{Upper: 80.0, Lower: 30.0}
		}
	}

	return &Engine{
		config:        cfg,
		lastDecisions: make(map[string]time.Time),
		streaks:       make(map[string]*streak),
	}
}

// Decide evaluates one aggregate against the pool's current state. It returns
// a HOLD decision unless the hysteresis, cooldown, in-flight and tier-bound
// conditions all allow a transition. Exactly one Decide runs per pool at a
// time; the caller drives it from a single evaluation loop.
func (e *Engine) Decide(agg *models.LoadAggregate, state *models.PoolState) *models.ScalingDecision {
	decision := &models.ScalingDecision{
		PoolID:      state.PoolID,
		Timestamp:   time.Now(),
		Action:      models.ActionHold,
		CurrentTier: state.Tier,
		TargetTier:  state.Tier,
	}

	// Stale telemetry freezes the engine at the current tier. Streaks are
	// neither advanced nor reset, so a brief telemetry gap does not erase
	// accumulated evidence.
	if agg.Stale {
		decision.StaleData = true
		decision.Reason = "stale_load_data"
		logger.WithPool(state.PoolID).Debug("Decision: hold (stale load data)")
		return decision
	}

	s := e.advanceStreaks(state.PoolID, state.Tier, agg.AvgCPU)

	if state.DecisionInFlight() {
		decision.Reason = "decision_in_flight"
		// Sustained low load while a scale-up is still provisioning means
		// the extra capacity is no longer wanted. The reason tells the
		// control loop to cancel the in-flight task.
		if state.ScaleUpInFlight && s.low >= e.config.ScaleUpSamples {
			decision.Reason = "scale_up_superseded"
		}
		logger.WithPool(state.PoolID).Debug("Decision: hold (previous decision in flight)")
		return decision
	}

	if e.isInCooldown(state.PoolID) {
		decision.CooldownActive = true
		decision.Reason = "in_cooldown"
		logger.WithPool(state.PoolID).Debug("Decision: hold (cooldown active)")
		return decision
	}

	if s.high >= e.config.ScaleUpSamples {
		if target, ok := e.tierAbove(state.Tier); ok {
			return e.emit(decision, models.ActionScaleUp, target, "sustained_high_load")
		}
		decision.Reason = "at_max_tier"
		logger.WithPool(state.PoolID).Warnf(
			"Sustained high load (%.1f%%) but already at max tier %s", agg.AvgCPU, state.Tier,
		)
		return decision
	}

	if s.low >= e.config.ScaleDownSamples {
		if target, ok := e.tierBelow(state.Tier); ok {
			return e.emit(decision, models.ActionScaleDown, target, "sustained_low_load")
		}
		decision.Reason = "at_min_tier"
		return decision
	}

	decision.Reason = "within_normal_parameters"
	return decision
}

func (e *Engine) advanceStreaks(poolID string, tier models.Tier, avgCPU float64) streak {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.streaks[poolID]
	if !ok {
		s = &streak{}
		e.streaks[poolID] = s
	}

	th := e.config.Thresholds[tier]
	switch {
	case avgCPU > th.Upper:
		s.high++
		s.low = 0
	case avgCPU < th.Lower:
		s.low++
		s.high = 0
	default:
		s.high = 0
		s.low = 0
	}

	return *s
}

func (e *Engine) emit(
	decision *models.ScalingDecision,
	action models.ScalingAction,
	target models.Tier,
	reason string,
) *models.ScalingDecision {
	decision.Action = action
	decision.TargetTier = target
	decision.Reason = reason

	e.mu.Lock()
	e.lastDecisions[decision.PoolID] = decision.Timestamp
	if s, ok := e.streaks[decision.PoolID]; ok {
		s.high = 0
		s.low = 0
	}
	e.mu.Unlock()

	logger.WithPool(decision.PoolID).Infof(
		"Decision: %s %s -> %s (reason: %s)",
		action, decision.CurrentTier, target, reason,
	)

	return decision
}

// tierAbove clamps the ladder to the configured max tier.
func (e *Engine) tierAbove(tier models.Tier) (models.Tier, bool) {
	if tier == e.config.MaxTier {
		return tier, false
	}
	return tier.Above()
}

func (e *Engine) tierBelow(tier models.Tier) (models.Tier, bool) {
	if tier == e.config.MinTier {
		return tier, false
	}
	return tier.Below()
}

func (e *Engine) isInCooldown(poolID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	last, exists := e.lastDecisions[poolID]
	if !exists {
		return false
	}

	return time.Since(last) < e.config.CooldownPeriod
}

func (e *Engine) ResetCooldown(poolID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.lastDecisions, poolID)
}

func (e *Engine) CooldownRemaining(poolID string) time.Duration {
	e.mu.RLock()
	defer e.mu.RUnlock()

	last, exists := e.lastDecisions[poolID]
	if !exists {
		return 0
	}

	elapsed := time.Since(last)
	if elapsed >= e.config.CooldownPeriod {
		return 0
	}

	return e.config.CooldownPeriod - elapsed
}

// Streaks returns the current high/low streak counters, for observability.
func (e *Engine) Streaks(poolID string) (high, low int) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if s, ok := e.streaks[poolID]; ok {
		return s.high, s.low
	}
	return 0, 0
}
