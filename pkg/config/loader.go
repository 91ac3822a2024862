package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/pgflex")
	}

	v.SetEnvPrefix("PGFLEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "pgflex-controller")
	v.SetDefault("app.mode", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.shutdown_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "pgflex")
	v.SetDefault("database.user", "pgflex")
	v.SetDefault("database.password", "pgflex")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.ssl_mode", "disable")

	// Monitor defaults
	v.SetDefault("monitor.type", "http")
	v.SetDefault("monitor.endpoint", "http://localhost:9000/telemetry")
	v.SetDefault("monitor.interval", "2s")
	v.SetDefault("monitor.timeout", "1s")
	v.SetDefault("monitor.window_size", 60)
	v.SetDefault("monitor.stale_after", "6s")
	v.SetDefault("monitor.retry_attempts", 3)
	v.SetDefault("monitor.retry_delay", "250ms")
	v.SetDefault("monitor.circuit_breaker.max_failures", 5)
	v.SetDefault("monitor.circuit_breaker.timeout", "30s")

	// Decision defaults
	v.SetDefault("decision.scale_up_samples", 3)
	v.SetDefault("decision.scale_down_samples", 6)
	v.SetDefault("decision.cooldown_period", "2m")
	v.SetDefault("decision.min_tier", "small")
	v.SetDefault("decision.max_tier", "large")
	v.SetDefault("decision.thresholds.small.upper", 80.0)
	v.SetDefault("decision.thresholds.small.lower", 30.0)
	v.SetDefault("decision.thresholds.medium.upper", 80.0)
	v.SetDefault("decision.thresholds.medium.lower", 30.0)
	v.SetDefault("decision.thresholds.large.upper", 85.0)
	v.SetDefault("decision.thresholds.large.lower", 25.0)

	// Pool defaults
	v.SetDefault("pool.tier_units.small", 1)
	v.SetDefault("pool.tier_units.medium", 2)
	v.SetDefault("pool.tier_units.large", 4)
	v.SetDefault("pool.health_check_interval", "500ms")
	v.SetDefault("pool.health_check_timeout", "5s")
	v.SetDefault("pool.provision_retries", 3)
	v.SetDefault("pool.retry_delay", "1s")
	v.SetDefault("pool.drain_deadline", "30s")
	v.SetDefault("pool.min_active_units", 1)

	// Router defaults
	v.SetDefault("router.listen_addr", ":6432")
	v.SetDefault("router.policy", "least_loaded")
	v.SetDefault("router.admission_timeout", "5s")
	v.SetDefault("router.dial_timeout", "3s")

	// API defaults
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.read_timeout", "15s")
	v.SetDefault("api.write_timeout", "15s")
	v.SetDefault("api.rate_limit", 100)
	v.SetDefault("api.jwt_secret", "change-me-in-production")
	v.SetDefault("api.jwt_duration", "24h")
	v.SetDefault("api.default_limit", 50)
	v.SetDefault("api.max_limit", 500)

	// WebSocket defaults
	v.SetDefault("websocket.max_connections", 1000)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.broadcast_buffer", 256)
	v.SetDefault("websocket.client_buffer", 256)

	// Prometheus defaults
	v.SetDefault("prometheus.enabled", true)
	v.SetDefault("prometheus.port", 9090)

	// Events defaults
	v.SetDefault("events.buffer_size", 100)
}
