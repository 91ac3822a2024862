package config

import (
	"errors"
	"fmt"

	"github.com/pgflex/pgflex/pkg/models"
)

func (c *Config) Validate() error {
	var errs []error

	// App validation
	if c.App.Name == "" {
		errs = append(errs, errors.New("app.name is required"))
	}

	validModes := map[string]bool{"development": true, "production": true, "test": true}
	if !validModes[c.App.Mode] {
		errs = append(errs, errors.New("app.mode must be one of: development, production, test"))
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.App.LogLevel] {
		errs = append(errs, errors.New("app.log_level must be one of: debug, info, warn, error"))
	}

	// Database validation
	if c.Database.Host == "" {
		errs = append(errs, errors.New("database.host is required"))
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, errors.New("database.port must be between 1 and 65535"))
	}

	// Monitor validation
	if c.Monitor.Interval <= 0 {
		errs = append(errs, errors.New("monitor.interval must be positive"))
	}
	if c.Monitor.Timeout <= 0 {
		errs = append(errs, errors.New("monitor.timeout must be positive"))
	}
	if c.Monitor.Timeout >= c.Monitor.Interval {
		errs = append(errs, errors.New("monitor.timeout must be less than monitor.interval"))
	}
	if c.Monitor.WindowSize <= 0 {
		errs = append(errs, errors.New("monitor.window_size must be positive"))
	}
	if c.Monitor.StaleAfter < c.Monitor.Interval {
		errs = append(errs, errors.New("monitor.stale_after must be at least monitor.interval"))
	}

	// Decision validation
	if c.Decision.ScaleUpSamples <= 0 {
		errs = append(errs, errors.New("decision.scale_up_samples must be positive"))
	}
	if c.Decision.ScaleDownSamples <= c.Decision.ScaleUpSamples {
		errs = append(errs, errors.New("decision.scale_down_samples must be greater than scale_up_samples"))
	}
	if c.Decision.CooldownPeriod <= 0 {
		errs = append(errs, errors.New("decision.cooldown_period must be positive"))
	}
	for _, tier := range models.Tiers() {
		th, ok := c.Decision.Thresholds[string(tier)]
		if !ok {
			errs = append(errs, fmt.Errorf("decision.thresholds.%s is required", tier))
			continue
		}
		if th.Upper <= th.Lower {
			errs = append(errs, fmt.Errorf("decision.thresholds.%s.upper must be greater than lower", tier))
		}
		if th.Upper <= 0 || th.Upper > 100 {
			errs = append(errs, fmt.Errorf("decision.thresholds.%s.upper must be between 0 and 100", tier))
		}
		if th.Lower < 0 || th.Lower >= 100 {
			errs = append(errs, fmt.Errorf("decision.thresholds.%s.lower must be between 0 and 100", tier))
		}
	}
	if !models.Tier(c.Decision.MinTier).IsValid() {
		errs = append(errs, errors.New("decision.min_tier must be a valid tier"))
	}
	if !models.Tier(c.Decision.MaxTier).IsValid() {
		errs = append(errs, errors.New("decision.max_tier must be a valid tier"))
	}

	// Pool validation
	if c.Pool.MinActiveUnits < 1 {
		errs = append(errs, errors.New("pool.min_active_units must be at least 1"))
	}
	if c.Pool.ProvisionRetries <= 0 {
		errs = append(errs, errors.New("pool.provision_retries must be positive"))
	}
	if c.Pool.DrainDeadline <= 0 {
		errs = append(errs, errors.New("pool.drain_deadline must be positive"))
	}
	prev := 0
	for _, tier := range models.Tiers() {
		units, ok := c.Pool.TierUnits[string(tier)]
		if !ok || units < 1 {
			errs = append(errs, fmt.Errorf("pool.tier_units.%s must be at least 1", tier))
			continue
		}
		if units < prev {
			errs = append(errs, fmt.Errorf("pool.tier_units.%s must not shrink below the previous tier", tier))
		}
		prev = units
	}

	// Router validation
	validPolicies := map[string]bool{"least_loaded": true, "round_robin": true}
	if !validPolicies[c.Router.Policy] {
		errs = append(errs, errors.New("router.policy must be one of: least_loaded, round_robin"))
	}
	if c.Router.AdmissionTimeout <= 0 {
		errs = append(errs, errors.New("router.admission_timeout must be positive"))
	}

	// Pool spec validation
	seen := make(map[string]bool)
	for i, spec := range c.Pools {
		if spec.ID == "" {
			errs = append(errs, fmt.Errorf("pools[%d].id is required", i))
		}
		if seen[spec.ID] {
			errs = append(errs, fmt.Errorf("pools[%d].id %q is duplicated", i, spec.ID))
		}
		seen[spec.ID] = true
		if spec.InitialTier != "" && !models.Tier(spec.InitialTier).IsValid() {
			errs = append(errs, fmt.Errorf("pools[%d].initial_tier must be a valid tier", i))
		}
	}

	// API validation
	if c.API.Port <= 0 || c.API.Port > 65535 {
		errs = append(errs, errors.New("api.port must be between 1 and 65535"))
	}
	if c.App.Mode == "production" && c.API.JWTSecret == "change-me-in-production" {
		errs = append(errs, errors.New("api.jwt_secret must be changed in production"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
