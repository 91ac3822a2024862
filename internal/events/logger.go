package events

import (
	"context"
	"sync"
	"time"

	"github.com/pgflex/pgflex/internal/logger"
	"github.com/pgflex/pgflex/pkg/database/queries"
	"github.com/pgflex/pgflex/pkg/models"
)

// EventLogger drains decision and scale events off the bus into Postgres.
// Persistence failures are logged and dropped; the control loop never blocks
// on the database.
type EventLogger struct {
	decisions   *queries.DecisionRepository
	scaleEvents *queries.ScaleEventRepository
	bus         *EventBus
	wg          sync.WaitGroup
}

func NewEventLogger(bus *EventBus, decisions *queries.DecisionRepository, scaleEvents *queries.ScaleEventRepository) *EventLogger {
	return &EventLogger{
		decisions:   decisions,
		scaleEvents: scaleEvents,
		bus:         bus,
	}
}

func (l *EventLogger) Start() {
	decisionCh := l.bus.Subscribe(models.EventTypeDecisionMade)
	scaleCh := l.bus.Subscribe(models.EventTypeScaleComplete)

	l.wg.Add(2)
	go l.drainDecisions(decisionCh)
	go l.drainScaleEvents(scaleCh)
}

func (l *EventLogger) drainDecisions(ch <-chan *models.Event) {
	defer l.wg.Done()

	for event := range ch {
		decision, ok := event.Data.(*models.ScalingDecision)
		if !ok {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := l.decisions.Insert(ctx, decision); err != nil {
			logger.WithPool(event.PoolID).Errorf("Failed to persist decision: %v", err)
		}
		cancel()
	}
}

func (l *EventLogger) drainScaleEvents(ch <-chan *models.Event) {
	defer l.wg.Done()

	for event := range ch {
		scaleEvent, ok := event.Data.(*models.ScaleEvent)
		if !ok {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := l.scaleEvents.Insert(ctx, scaleEvent); err != nil {
			logger.WithPool(event.PoolID).Errorf("Failed to persist scale event: %v", err)
		}
		cancel()
	}
}

// Stop blocks until the bus is closed and both drains have finished.
func (l *EventLogger) Stop() {
	l.wg.Wait()
}
