package router

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgflex/pgflex/pkg/models"
)

type fakeConn struct {
	mu     sync.Mutex
	closed bool
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func activeUnit(poolID string) *models.ComputeUnit {
	unit := models.NewComputeUnit(poolID, models.TierSmall, "10.0.0.1:5432")
	unit.Activate()
	return unit
}

func TestRouter_AdmitRoutesToActiveUnit(t *testing.T) {
	r := New(Config{AdmissionTimeout: time.Second})
	unit := activeUnit("pool-1")
	r.RegisterUnit(unit)

	routed, connID, err := r.Admit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, unit.ID, routed.ID)
	assert.NotEmpty(t, connID)
	assert.Equal(t, 1, r.ConnCount(unit.ID))
	assert.Equal(t, 1, r.TotalConns())

	r.Release(connID)
	assert.Equal(t, 0, r.ConnCount(unit.ID))
}

func TestRouter_AdmitTimesOutWithNoUnits(t *testing.T) {
	r := New(Config{AdmissionTimeout: 150 * time.Millisecond})

	start := time.Now()
	_, _, err := r.Admit(context.Background())

	assert.ErrorIs(t, err, ErrNoActiveUnits)
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestRouter_AdmitRetriesUntilUnitAppears(t *testing.T) {
	r := New(Config{AdmissionTimeout: time.Second})

	// A unit becomes routable mid admission, as during a scale transition.
	go func() {
		time.Sleep(100 * time.Millisecond)
		r.RegisterUnit(activeUnit("pool-1"))
	}()

	_, _, err := r.Admit(context.Background())
	assert.NoError(t, err)
}

func TestRouter_DrainingUnitNeverPicked(t *testing.T) {
	r := New(Config{AdmissionTimeout: 100 * time.Millisecond})
	draining := activeUnit("pool-1")
	healthy := activeUnit("pool-1")
	r.RegisterUnit(draining)
	r.RegisterUnit(healthy)

	require.NoError(t, r.MarkDraining(draining.ID))

	for i := 0; i < 10; i++ {
		routed, _, err := r.Admit(context.Background())
		require.NoError(t, err)
		assert.Equal(t, healthy.ID, routed.ID)
	}

	assert.ErrorIs(t, r.MarkDraining("no-such-unit"), ErrUnitNotFound)
}

func TestRouter_LeastLoadedSpreadsConnections(t *testing.T) {
	r := New(Config{Policy: PolicyLeastLoaded})
	a := activeUnit("pool-1")
	b := activeUnit("pool-1")
	r.RegisterUnit(a)
	r.RegisterUnit(b)

	counts := make(map[string]int)
	for i := 0; i < 10; i++ {
		routed, _, err := r.Admit(context.Background())
		require.NoError(t, err)
		counts[routed.ID]++
	}

	assert.Equal(t, 5, counts[a.ID])
	assert.Equal(t, 5, counts[b.ID])
}

func TestRouter_RoundRobinAlternates(t *testing.T) {
	r := New(Config{Policy: PolicyRoundRobin})
	a := activeUnit("pool-1")
	b := activeUnit("pool-1")
	r.RegisterUnit(a)
	r.RegisterUnit(b)

	first, _, err := r.Admit(context.Background())
	require.NoError(t, err)
	second, _, err := r.Admit(context.Background())
	require.NoError(t, err)
	third, _, err := r.Admit(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.ID, third.ID)
}

func TestRouter_ForceCloseUnit(t *testing.T) {
	r := New(Config{})
	unit := activeUnit("pool-1")
	r.RegisterUnit(unit)

	conns := make([]*fakeConn, 3)
	for i := range conns {
		_, connID, err := r.Admit(context.Background())
		require.NoError(t, err)

		conns[i] = &fakeConn{}
		r.Bind(connID, conns[i])
	}

	closed := r.ForceCloseUnit(unit.ID)

	assert.Len(t, closed, 3)
	assert.Equal(t, 0, r.ConnCount(unit.ID))
	for _, conn := range conns {
		assert.True(t, conn.isClosed())
	}

	// A second pass finds nothing left to reset.
	assert.Empty(t, r.ForceCloseUnit(unit.ID))
}

func TestRouter_RemoveUnitDropsFromRotation(t *testing.T) {
	r := New(Config{AdmissionTimeout: 100 * time.Millisecond, Policy: PolicyRoundRobin})
	unit := activeUnit("pool-1")
	r.RegisterUnit(unit)
	r.RemoveUnit(unit.ID)

	_, _, err := r.Admit(context.Background())
	assert.ErrorIs(t, err, ErrNoActiveUnits)
}
