package config

import (
	"time"
)

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Monitor    MonitorConfig    `mapstructure:"monitor"`
	Decision   DecisionConfig   `mapstructure:"decision"`
	Pool       PoolConfig       `mapstructure:"pool"`
	Router     RouterConfig     `mapstructure:"router"`
	Pools      []PoolSpec       `mapstructure:"pools"`
	API        APIConfig        `mapstructure:"api"`
	WebSocket  WebSocketConfig  `mapstructure:"websocket"`
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Events     EventsConfig     `mapstructure:"events"`
}

type AppConfig struct {
	Name            string        `mapstructure:"name"`
	Mode            string        `mapstructure:"mode"`
	LogLevel        string        `mapstructure:"log_level"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	MaxConnections  int           `mapstructure:"max_connections"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

type MonitorConfig struct {
	Type           string               `mapstructure:"type"`
	Endpoint       string               `mapstructure:"endpoint"`
	Interval       time.Duration        `mapstructure:"interval"`
	Timeout        time.Duration        `mapstructure:"timeout"`
	WindowSize     int                  `mapstructure:"window_size"`
	StaleAfter     time.Duration        `mapstructure:"stale_after"`
	RetryAttempts  int                  `mapstructure:"retry_attempts"`
	RetryDelay     time.Duration        `mapstructure:"retry_delay"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

type CircuitBreakerConfig struct {
	MaxFailures int           `mapstructure:"max_failures"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type DecisionConfig struct {
	ScaleUpSamples   int                      `mapstructure:"scale_up_samples"`
	ScaleDownSamples int                      `mapstructure:"scale_down_samples"`
	CooldownPeriod   time.Duration            `mapstructure:"cooldown_period"`
	MinTier          string                   `mapstructure:"min_tier"`
	MaxTier          string                   `mapstructure:"max_tier"`
	Thresholds       map[string]TierThreshold `mapstructure:"thresholds"`
}

type TierThreshold struct {
	Upper float64 `mapstructure:"upper"`
	Lower float64 `mapstructure:"lower"`
}

type PoolConfig struct {
	TierUnits           map[string]int `mapstructure:"tier_units"`
	HealthCheckInterval time.Duration  `mapstructure:"health_check_interval"`
	HealthCheckTimeout  time.Duration  `mapstructure:"health_check_timeout"`
	ProvisionRetries    int            `mapstructure:"provision_retries"`
	RetryDelay          time.Duration  `mapstructure:"retry_delay"`
	DrainDeadline       time.Duration  `mapstructure:"drain_deadline"`
	MinActiveUnits      int            `mapstructure:"min_active_units"`
}

type RouterConfig struct {
	ListenAddr       string        `mapstructure:"listen_addr"`
	Policy           string        `mapstructure:"policy"`
	AdmissionTimeout time.Duration `mapstructure:"admission_timeout"`
	DialTimeout      time.Duration `mapstructure:"dial_timeout"`
}

// PoolSpec declares one managed compute pool. Pools are declared in
// configuration, not created through the API.
type PoolSpec struct {
	ID          string `mapstructure:"id"`
	Name        string `mapstructure:"name"`
	InitialTier string `mapstructure:"initial_tier"`
	ListenAddr  string `mapstructure:"listen_addr"`
}

type APIConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	RateLimit    int           `mapstructure:"rate_limit"`
	JWTSecret    string        `mapstructure:"jwt_secret"`
	JWTDuration  time.Duration `mapstructure:"jwt_duration"`
	DefaultLimit int           `mapstructure:"default_limit"`
	MaxLimit     int           `mapstructure:"max_limit"`
	CORS         CORSConfig    `mapstructure:"cors"`
}

type WebSocketConfig struct {
	MaxConnections  int           `mapstructure:"max_connections"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	PongTimeout     time.Duration `mapstructure:"pong_timeout"`
	MaxMessageSize  int64         `mapstructure:"max_message_size"`
	BroadcastBuffer int           `mapstructure:"broadcast_buffer"`
	ClientBuffer    int           `mapstructure:"client_buffer"`
}

type PrometheusConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type EventsConfig struct {
	BufferSize int `mapstructure:"buffer_size"`
}
