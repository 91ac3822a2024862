package monitor

import (
	"sync"
	"time"

	"github.com/pgflex/pgflex/pkg/models"
)

// Window is a fixed-capacity rolling window of load samples. Writers and
// readers may be on different goroutines; aggregation never blocks sampling.
type Window struct {
	mu         sync.RWMutex
	poolID     string
	capacity   int
	staleAfter time.Duration
	samples    []models.LoadSample
	lastAdd    time.Time
}

func NewWindow(poolID string, capacity int, staleAfter time.Duration) *Window {
	if capacity <= 0 {
		capacity = 60
	}

	return &Window{
		poolID:     poolID,
		capacity:   capacity,
		staleAfter: staleAfter,
		samples:    make([]models.LoadSample, 0, capacity),
	}
}

func (w *Window) Add(sample models.LoadSample) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.samples = append(w.samples, sample)
	if len(w.samples) > w.capacity {
		w.samples = w.samples[len(w.samples)-w.capacity:]
	}
	w.lastAdd = time.Now()
}

func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.samples)
}

// Aggregate computes moving averages and peaks over the window. The Stale
// flag is set when the window is empty or no sample has landed within the
// staleness bound; callers must treat a stale aggregate as a freeze signal.
func (w *Window) Aggregate() *models.LoadAggregate {
	return w.aggregateAt(time.Now())
}

func (w *Window) aggregateAt(now time.Time) *models.LoadAggregate {
	w.mu.RLock()
	defer w.mu.RUnlock()

	agg := &models.LoadAggregate{
		PoolID:       w.poolID,
		SampleCount:  len(w.samples),
		LastSampleAt: w.lastAdd,
	}

	if len(w.samples) == 0 {
		agg.Stale = true
		return agg
	}

	if w.staleAfter > 0 && now.Sub(w.lastAdd) > w.staleAfter {
		agg.Stale = true
	}

	var totalCPU, totalConns, totalIOPS, totalQueue float64
	peakCPU := w.samples[0].CPUPercent
	peakConns := w.samples[0].ActiveConns

	for _, s := range w.samples {
		totalCPU += s.CPUPercent
		totalConns += float64(s.ActiveConns)
		totalIOPS += s.IOPS
		totalQueue += float64(s.QueueDepth)

		if s.CPUPercent > peakCPU {
			peakCPU = s.CPUPercent
		}
		if s.ActiveConns > peakConns {
			peakConns = s.ActiveConns
		}
	}

	count := float64(len(w.samples))
	agg.AvgCPU = totalCPU / count
	agg.PeakCPU = peakCPU
	agg.AvgConns = totalConns / count
	agg.PeakConns = peakConns
	agg.AvgIOPS = totalIOPS / count
	agg.AvgQueueDepth = totalQueue / count

	return agg
}
