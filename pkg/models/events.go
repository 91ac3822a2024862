package models

import "time"

type EventType string

const (
	EventTypeSampleCollected EventType = "sample_collected"
	EventTypeLoadAnalyzed    EventType = "load_analyzed"
	EventTypeDecisionMade    EventType = "decision_made"
	EventTypeScaleStarted    EventType = "scale_started"
	EventTypeScaleComplete   EventType = "scale_complete"
	EventTypeScaleFailed     EventType = "scale_failed"
	EventTypeUnitProvisioned EventType = "unit_provisioned"
	EventTypeUnitActivated   EventType = "unit_activated"
	EventTypeUnitDraining    EventType = "unit_draining"
	EventTypeUnitTerminated  EventType = "unit_terminated"
	EventTypeDrainDegraded   EventType = "drain_degraded"
	EventTypeConnectionReset EventType = "connection_reset"
	EventTypeAlert           EventType = "alert"
	EventTypeError           EventType = "error"
)

type EventSeverity string

const (
	SeverityInfo     EventSeverity = "info"
	SeverityWarning  EventSeverity = "warning"
	SeverityCritical EventSeverity = "critical"
)

// Event represents an internal system event
type Event struct {
	ID        string        `json:"id"`
	Type      EventType     `json:"type"`
	Severity  EventSeverity `json:"severity"`
	PoolID    string        `json:"pool_id,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Message   string        `json:"message"`
	Data      interface{}   `json:"data,omitempty"`
	TraceID   string        `json:"trace_id,omitempty"`
}

func NewEvent(eventType EventType, poolID, message string) *Event {
	return &Event{
		ID:        NewUUID(),
		Type:      eventType,
		Severity:  SeverityInfo,
		PoolID:    poolID,
		Timestamp: time.Now(),
		Message:   message,
	}
}

func (e *Event) WithSeverity(severity EventSeverity) *Event {
	e.Severity = severity
	return e
}

func (e *Event) WithData(data interface{}) *Event {
	e.Data = data
	return e
}

func (e *Event) WithTraceID(traceID string) *Event {
	e.TraceID = traceID
	return e
}
