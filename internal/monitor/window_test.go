package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pgflex/pgflex/pkg/models"
)

func windowSample(cpu float64, conns int) models.LoadSample {
	return models.LoadSample{
		PoolID:      "pool-1",
		Timestamp:   time.Now(),
		CPUPercent:  cpu,
		ActiveConns: conns,
		IOPS:        400,
		QueueDepth:  2,
	}
}

func TestWindow_Aggregate(t *testing.T) {
	w := NewWindow("pool-1", 60, 6*time.Second)

	w.Add(windowSample(40, 10))
	w.Add(windowSample(60, 20))
	w.Add(windowSample(80, 30))

	agg := w.Aggregate()

	assert.Equal(t, "pool-1", agg.PoolID)
	assert.Equal(t, 3, agg.SampleCount)
	assert.InDelta(t, 60.0, agg.AvgCPU, 0.001)
	assert.InDelta(t, 80.0, agg.PeakCPU, 0.001)
	assert.InDelta(t, 20.0, agg.AvgConns, 0.001)
	assert.Equal(t, 30, agg.PeakConns)
	assert.False(t, agg.Stale)
}

func TestWindow_EmptyIsStale(t *testing.T) {
	w := NewWindow("pool-1", 60, 6*time.Second)

	agg := w.Aggregate()

	assert.True(t, agg.Stale)
	assert.Equal(t, 0, agg.SampleCount)
}

func TestWindow_StaleAfterGap(t *testing.T) {
	w := NewWindow("pool-1", 60, 6*time.Second)
	w.Add(windowSample(50, 10))

	fresh := w.aggregateAt(time.Now())
	assert.False(t, fresh.Stale)

	// No samples for longer than the staleness bound.
	stale := w.aggregateAt(time.Now().Add(10 * time.Second))
	assert.True(t, stale.Stale)

	// Averages are still reported alongside the flag.
	assert.InDelta(t, 50.0, stale.AvgCPU, 0.001)
}

func TestWindow_EvictsOldestBeyondCapacity(t *testing.T) {
	w := NewWindow("pool-1", 3, 0)

	w.Add(windowSample(10, 1))
	w.Add(windowSample(20, 2))
	w.Add(windowSample(30, 3))
	w.Add(windowSample(40, 4))

	assert.Equal(t, 3, w.Len())

	agg := w.Aggregate()
	assert.InDelta(t, 30.0, agg.AvgCPU, 0.001)
	assert.InDelta(t, 40.0, agg.PeakCPU, 0.001)
}
