package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pgflex/pgflex/internal/logger"
	"github.com/pgflex/pgflex/pkg/models"
)

// EventBridge bridges controller events to WebSocket clients
type EventBridge struct {
	hub        *Hub
	eventsChan <-chan *models.Event
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewEventBridge creates a new bridge between controller events and WebSocket
func NewEventBridge(hub *Hub, eventsChan <-chan *models.Event) *EventBridge {
	ctx, cancel := context.WithCancel(context.Background())
	return &EventBridge{
		hub:        hub,
		eventsChan: eventsChan,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start begins listening for events and forwarding to WebSocket clients
func (b *EventBridge) Start() {
	go b.run()
	logger.Info("WebSocket event bridge started")
}

// Stop stops the event bridge
func (b *EventBridge) Stop() {
	b.cancel()
	logger.Info("WebSocket event bridge stopped")
}

func (b *EventBridge) run() {
	for {
		select {
		case <-b.ctx.Done():
			return
		case event, ok := <-b.eventsChan:
			if !ok {
				logger.Info("Event channel closed, stopping bridge")
				return
			}
			b.forwardEvent(event)
		}
	}
}

func (b *EventBridge) forwardEvent(event *models.Event) {
	wsMessage := b.convertToWSMessage(event)
	if wsMessage == nil {
		return
	}

	data, err := json.Marshal(wsMessage)
	if err != nil {
		logger.Errorf("Failed to marshal WebSocket message: %v", err)
		return
	}

	// Broadcast to all clients subscribed to this pool
	b.hub.BroadcastToPool(event.PoolID, data)
}

// WebSocketEvent is the message format sent to WebSocket clients
type WebSocketEvent struct {
	Type      string      `json:"type"`
	PoolID    string      `json:"pool_id"`
	Timestamp time.Time   `json:"timestamp"`
	Severity  string      `json:"severity,omitempty"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

func (b *EventBridge) convertToWSMessage(event *models.Event) *WebSocketEvent {
	wsType := mapEventType(event.Type)
	if wsType == "" {
		return nil // Skip events we don't want to broadcast
	}

	return &WebSocketEvent{
		Type:      wsType,
		PoolID:    event.PoolID,
		Timestamp: event.Timestamp,
		Severity:  string(event.Severity),
		Message:   event.Message,
		Data:      event.Data,
	}
}

func mapEventType(eventType models.EventType) string {
	switch eventType {
	case models.EventTypeLoadAnalyzed:
		return "load"
	case models.EventTypeScaleStarted:
		return "scale_started"
	case models.EventTypeScaleComplete:
		return "scale_event"
	case models.EventTypeScaleFailed:
		return "scale_failed"
	case models.EventTypeAlert:
		return "alert"
	case models.EventTypeUnitProvisioned, models.EventTypeUnitActivated,
		models.EventTypeUnitDraining, models.EventTypeUnitTerminated:
		return "unit_update"
	case models.EventTypeDrainDegraded:
		return "drain_degraded"
	case models.EventTypeConnectionReset:
		return "connection_reset"
	case models.EventTypeDecisionMade:
		return "decision"
	case models.EventTypeError:
		return "error"
	default:
		// Skip sample_collected and other internal events
		return ""
	}
}
