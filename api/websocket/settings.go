package websocket

import (
	"time"

	"github.com/pgflex/pgflex/pkg/config"
)

const (
	defaultWriteWait      = 10 * time.Second
	defaultPongWait       = 60 * time.Second
	defaultMaxMessageSize = 512
	defaultClientBuffer   = 256
)

// WebSocketSettings carries the per-connection tuning knobs, with sane
// defaults when no configuration is provided.
type WebSocketSettings struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
	ClientBuffer   int
	MaxConnections int
}

func NewWebSocketSettings(cfg *config.WebSocketConfig) *WebSocketSettings {
	s := &WebSocketSettings{
		WriteWait:      defaultWriteWait,
		PongWait:       defaultPongWait,
		MaxMessageSize: defaultMaxMessageSize,
		ClientBuffer:   defaultClientBuffer,
	}

	if cfg != nil {
		if cfg.WriteTimeout > 0 {
			s.WriteWait = cfg.WriteTimeout
		}
		if cfg.PongTimeout > 0 {
			s.PongWait = cfg.PongTimeout
		}
		if cfg.MaxMessageSize > 0 {
			s.MaxMessageSize = cfg.MaxMessageSize
		}
		if cfg.ClientBuffer > 0 {
			s.ClientBuffer = cfg.ClientBuffer
		}
		s.MaxConnections = cfg.MaxConnections
	}

	// Pings must fire before the pong deadline expires.
	s.PingPeriod = (s.PongWait * 9) / 10
	if cfg != nil && cfg.PingInterval > 0 && cfg.PingInterval < s.PongWait {
		s.PingPeriod = cfg.PingInterval
	}

	return s
}
