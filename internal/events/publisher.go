package events

import (
	"github.com/pgflex/pgflex/pkg/models"
)

type Publisher struct {
	bus     *EventBus
	traceID string
}

func NewPublisher(bus *EventBus) *Publisher {
	return &Publisher{bus: bus}
}

func (p *Publisher) WithTraceID(traceID string) *Publisher {
	return &Publisher{
		bus:     p.bus,
		traceID: traceID,
	}
}

func (p *Publisher) publish(event *models.Event) {
	if p.traceID != "" {
		event.TraceID = p.traceID
	}
	p.bus.Publish(event)
}

func (p *Publisher) SampleCollected(poolID string, sample *models.LoadSample) {
	event := models.NewEvent(models.EventTypeSampleCollected, poolID, "Load sample collected").
		WithData(sample)
	p.publish(event)
}

func (p *Publisher) LoadAnalyzed(poolID string, agg *models.LoadAggregate) {
	event := models.NewEvent(models.EventTypeLoadAnalyzed, poolID, "Load window analyzed").
		WithData(agg)

	if agg.Stale {
		event.WithSeverity(models.SeverityWarning)
	}

	p.publish(event)
}

func (p *Publisher) DecisionMade(poolID string, decision *models.ScalingDecision) {
	msg := "Scaling decision: " + string(decision.Action)
	event := models.NewEvent(models.EventTypeDecisionMade, poolID, msg).
		WithData(decision)
	p.publish(event)
}

func (p *Publisher) ScaleStarted(poolID string, decision *models.ScalingDecision) {
	msg := "Scale started: " + string(decision.Action)
	event := models.NewEvent(models.EventTypeScaleStarted, poolID, msg).
		WithData(decision)
	p.publish(event)
}

func (p *Publisher) ScaleComplete(poolID string, scaleEvent *models.ScaleEvent) {
	msg := "Scale complete: " + string(scaleEvent.Action)
	event := models.NewEvent(models.EventTypeScaleComplete, poolID, msg).
		WithData(scaleEvent)

	if scaleEvent.Status == models.ScaleEventDegraded {
		event.WithSeverity(models.SeverityWarning)
	}

	p.publish(event)
}

func (p *Publisher) ScaleFailed(poolID string, reason string, err error) {
	msg := "Scale failed: " + reason
	event := models.NewEvent(models.EventTypeScaleFailed, poolID, msg).
		WithSeverity(models.SeverityCritical).
		WithData(map[string]interface{}{
			"reason": reason,
			"error":  err.Error(),
		})
	p.publish(event)
}

func (p *Publisher) UnitProvisioned(unit *models.ComputeUnit) {
	event := models.NewEvent(models.EventTypeUnitProvisioned, unit.PoolID, "Compute unit provisioned").
		WithData(unit)
	p.publish(event)
}

func (p *Publisher) UnitActivated(unit *models.ComputeUnit) {
	event := models.NewEvent(models.EventTypeUnitActivated, unit.PoolID, "Compute unit activated").
		WithData(unit)
	p.publish(event)
}

func (p *Publisher) UnitDraining(unit *models.ComputeUnit) {
	event := models.NewEvent(models.EventTypeUnitDraining, unit.PoolID, "Compute unit draining").
		WithData(unit)
	p.publish(event)
}

func (p *Publisher) UnitTerminated(unit *models.ComputeUnit) {
	event := models.NewEvent(models.EventTypeUnitTerminated, unit.PoolID, "Compute unit terminated").
		WithData(unit)
	p.publish(event)
}

func (p *Publisher) DrainDegraded(poolID, unitID string, resetConns int) {
	event := models.NewEvent(models.EventTypeDrainDegraded, poolID, "Drain deadline exceeded, connections reset").
		WithSeverity(models.SeverityWarning).
		WithData(map[string]interface{}{
			"unit_id":     unitID,
			"reset_conns": resetConns,
		})
	p.publish(event)
}

func (p *Publisher) ConnectionReset(poolID, unitID, connID string) {
	event := models.NewEvent(models.EventTypeConnectionReset, poolID, "Connection forcibly reset").
		WithSeverity(models.SeverityWarning).
		WithData(map[string]interface{}{
			"unit_id": unitID,
			"conn_id": connID,
		})
	p.publish(event)
}

func (p *Publisher) Alert(poolID string, severity models.EventSeverity, message string, data interface{}) {
	event := models.NewEvent(models.EventTypeAlert, poolID, message).
		WithSeverity(severity).
		WithData(data)
	p.publish(event)
}

func (p *Publisher) Error(poolID string, message string, err error) {
	event := models.NewEvent(models.EventTypeError, poolID, message).
		WithSeverity(models.SeverityCritical).
		WithData(map[string]interface{}{
			"error": err.Error(),
		})
	p.publish(event)
}
