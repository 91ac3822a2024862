package monitor

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_SamplesIntoWindow(t *testing.T) {
	src := NewMockSource(MockSourceConfig{BaseCPU: 60.0})
	src.AddPool("pool-1")

	m := New(Config{
		PoolID:     "pool-1",
		Source:     src,
		Interval:   50 * time.Millisecond,
		WindowSize: 10,
		StaleAfter: time.Second,
	})

	require.NoError(t, m.Start())
	defer m.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for m.Window().Len() < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	agg := m.Aggregate()
	assert.False(t, agg.Stale)
	assert.GreaterOrEqual(t, agg.SampleCount, 3)
	assert.Greater(t, agg.AvgCPU, 0.0)
}

func TestMonitor_FailedSamplesAgeTheWindow(t *testing.T) {
	src := NewMockSource(MockSourceConfig{BaseCPU: 60.0})
	src.AddPool("pool-1")

	m := New(Config{
		PoolID:     "pool-1",
		Source:     src,
		Interval:   20 * time.Millisecond,
		WindowSize: 10,
		StaleAfter: 100 * time.Millisecond,
	})

	require.NoError(t, m.Start())
	defer m.Stop()

	deadline := time.Now().Add(time.Second)
	for m.Window().Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	// The source goes dark; no new samples land and the aggregate turns
	// stale once the bound passes.
	src.SetShouldFail(true, errors.New("telemetry endpoint down"))

	time.Sleep(200 * time.Millisecond)

	agg := m.Aggregate()
	assert.True(t, agg.Stale)
	assert.Greater(t, agg.SampleCount, 0, "old samples are kept, only the flag flips")
}

func TestMonitor_StartStopIdempotent(t *testing.T) {
	src := NewMockSource(MockSourceConfig{})
	src.AddPool("pool-1")

	m := New(Config{PoolID: "pool-1", Source: src, Interval: 50 * time.Millisecond})

	require.NoError(t, m.Start())
	require.NoError(t, m.Start())
	m.Stop()
	m.Stop()
}
