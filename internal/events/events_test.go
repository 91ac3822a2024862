package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgflex/pgflex/pkg/models"
)

func TestEventBus_SubscribePublish(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	alerts := bus.Subscribe(models.EventTypeAlert)
	other := bus.Subscribe(models.EventTypeScaleStarted)

	bus.Publish(models.NewEvent(models.EventTypeAlert, "pool-1", "cpu above limit"))

	select {
	case event := <-alerts:
		assert.Equal(t, models.EventTypeAlert, event.Type)
		assert.Equal(t, "pool-1", event.PoolID)
	case <-time.After(time.Second):
		t.Fatal("expected alert event")
	}

	select {
	case <-other:
		t.Fatal("scale_started subscriber should not receive alerts")
	default:
	}
}

func TestEventBus_SubscribeAllReceivesEveryType(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	all := bus.SubscribeAll()

	bus.Publish(models.NewEvent(models.EventTypeScaleStarted, "pool-1", "scaling up"))
	bus.Publish(models.NewEvent(models.EventTypeUnitDraining, "pool-1", "unit draining"))

	for _, want := range []models.EventType{models.EventTypeScaleStarted, models.EventTypeUnitDraining} {
		select {
		case event := <-all:
			assert.Equal(t, want, event.Type)
		case <-time.After(time.Second):
			t.Fatalf("expected %s event", want)
		}
	}
}

func TestEventBus_DropsWhenSubscriberFull(t *testing.T) {
	bus := NewEventBus(1)
	defer bus.Close()

	ch := bus.Subscribe(models.EventTypeAlert)

	// Buffer holds one; the second publish is dropped, not blocked.
	bus.Publish(models.NewEvent(models.EventTypeAlert, "pool-1", "first"))
	bus.Publish(models.NewEvent(models.EventTypeAlert, "pool-1", "second"))

	event := <-ch
	assert.Equal(t, "first", event.Message)

	select {
	case <-ch:
		t.Fatal("second event should have been dropped")
	default:
	}
}

func TestEventBus_CloseClosesChannels(t *testing.T) {
	bus := NewEventBus(10)

	typed := bus.Subscribe(models.EventTypeAlert)
	all := bus.SubscribeAll()

	bus.Close()

	_, ok := <-typed
	assert.False(t, ok)
	_, ok = <-all
	assert.False(t, ok)

	// Publishing after close is a no-op.
	bus.Publish(models.NewEvent(models.EventTypeAlert, "pool-1", "late"))
	bus.Close()
}

func TestPublisher_ScaleFailedCarriesReason(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	ch := bus.Subscribe(models.EventTypeScaleFailed)
	pub := NewPublisher(bus)

	pub.ScaleFailed("pool-1", "provision_failed", assert.AnError)

	select {
	case event := <-ch:
		require.Equal(t, models.EventTypeScaleFailed, event.Type)
		assert.Equal(t, "pool-1", event.PoolID)
		assert.Equal(t, models.SeverityCritical, event.Severity)
	case <-time.After(time.Second):
		t.Fatal("expected scale_failed event")
	}
}
