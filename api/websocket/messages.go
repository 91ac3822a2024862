package websocket

import (
	"encoding/json"
	"time"

	"github.com/pgflex/pgflex/pkg/models"
)

type MessageType string

const (
	MessageTypeLoad       MessageType = "load"
	MessageTypeScaleEvent MessageType = "scale_event"
	MessageTypeAlert      MessageType = "alert"
	MessageTypeUnitUpdate MessageType = "unit_update"
	MessageTypePoolState  MessageType = "pool_state"
)

type OutgoingMessage struct {
	Type      MessageType `json:"type"`
	PoolID    string      `json:"pool_id"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

func NewMessage(msgType MessageType, poolID string, data interface{}) *OutgoingMessage {
	return &OutgoingMessage{
		Type:      msgType,
		PoolID:    poolID,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func (m *OutgoingMessage) JSON() []byte {
	data, _ := json.Marshal(m)
	return data
}

type LoadData struct {
	AvgCPU   float64 `json:"avg_cpu"`
	PeakCPU  float64 `json:"peak_cpu"`
	AvgConns float64 `json:"avg_conns"`
	Stale    bool    `json:"stale"`
}

type ScaleEventData struct {
	Action     string `json:"action"`
	TierBefore string `json:"tier_before"`
	TierAfter  string `json:"tier_after"`
	Reason     string `json:"reason"`
	Status     string `json:"status"`
}

type AlertData struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

type PoolStateData struct {
	Tier         string `json:"tier"`
	TotalUnits   int    `json:"total_units"`
	ActiveUnits  int    `json:"active_units"`
	Provisioning int    `json:"provisioning"`
	Draining     int    `json:"draining"`
	RoutedConns  int    `json:"routed_conns"`
}

func BroadcastLoad(hub *Hub, poolID string, agg *models.LoadAggregate) {
	data := LoadData{
		AvgCPU:   agg.AvgCPU,
		PeakCPU:  agg.PeakCPU,
		AvgConns: agg.AvgConns,
		Stale:    agg.Stale,
	}
	msg := NewMessage(MessageTypeLoad, poolID, data)
	hub.BroadcastToPool(poolID, msg.JSON())
}

func BroadcastScaleEvent(hub *Hub, event *models.ScaleEvent) {
	data := ScaleEventData{
		Action:     string(event.Action),
		TierBefore: string(event.TierBefore),
		TierAfter:  string(event.TierAfter),
		Reason:     event.TriggerReason,
		Status:     string(event.Status),
	}
	msg := NewMessage(MessageTypeScaleEvent, event.PoolID, data)
	hub.BroadcastToPool(event.PoolID, msg.JSON())
}

func BroadcastAlert(hub *Hub, poolID string, severity, message string) {
	data := AlertData{
		Severity: severity,
		Message:  message,
	}
	msg := NewMessage(MessageTypeAlert, poolID, data)
	hub.BroadcastToPool(poolID, msg.JSON())
}

func BroadcastPoolState(hub *Hub, state *models.PoolState) {
	data := PoolStateData{
		Tier:         string(state.Tier),
		TotalUnits:   state.TotalUnits,
		ActiveUnits:  state.ActiveUnits,
		Provisioning: state.ProvisioningUnits,
		Draining:     state.DrainingUnits,
		RoutedConns:  state.RoutedConns,
	}
	msg := NewMessage(MessageTypePoolState, state.PoolID, data)
	hub.BroadcastToPool(state.PoolID, msg.JSON())
}
