package router

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/pgflex/pgflex/internal/logger"
	"github.com/pgflex/pgflex/pkg/models"
)

var (
	ErrNoActiveUnits = errors.New("no active compute units available")
	ErrUnitNotFound  = errors.New("compute unit not registered")

	// ErrConnectionReset is the one user-visible failure mode of scaling:
	// a connection forcibly closed because its unit exceeded the drain
	// deadline.
	ErrConnectionReset = errors.New("connection reset by compute scale-down")
)

type Policy string

const (
	PolicyLeastLoaded Policy = "least_loaded"
	PolicyRoundRobin  Policy = "round_robin"
)

// Router admits client connections onto Active compute units and owns the
// routing table. Units in Draining or Terminated state never receive new
// routes; during a scale transition admission retries briefly instead of
// failing fast.
type Router struct {
	mu               sync.RWMutex
	units            map[string]*routedUnit
	order            []string // registration order, for round-robin
	table            *Table
	closers          map[string]io.Closer
	policy           Policy
	admissionTimeout time.Duration
	rrNext           int
}

type routedUnit struct {
	unit       models.ComputeUnit
	acceptable bool
}

type Config struct {
	Policy           Policy
	AdmissionTimeout time.Duration
}

func New(cfg Config) *Router {
	if cfg.Policy == "" {
		cfg.Policy = PolicyLeastLoaded
	}
	if cfg.AdmissionTimeout == 0 {
		cfg.AdmissionTimeout = 5 * time.Second
	}

	return &Router{
		units:            make(map[string]*routedUnit),
		table:            NewTable(),
		closers:          make(map[string]io.Closer),
		policy:           cfg.Policy,
		admissionTimeout: cfg.AdmissionTimeout,
	}
}

// RegisterUnit makes an Active unit routable.
func (r *Router) RegisterUnit(unit *models.ComputeUnit) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.units[unit.ID]; !exists {
		r.order = append(r.order, unit.ID)
	}
	r.units[unit.ID] = &routedUnit{unit: *unit, acceptable: true}

	logger.WithUnit(unit.ID).Info("Unit registered with router")
}

// MarkDraining stops new routing to a unit. Existing connections are left to
// finish; the pool manager decides when to force the stragglers.
func (r *Router) MarkDraining(unitID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ru, exists := r.units[unitID]
	if !exists {
		return ErrUnitNotFound
	}

	ru.acceptable = false
	ru.unit.Drain()

	logger.WithUnit(unitID).Info("Unit marked draining, no new routes")
	return nil
}

// RemoveUnit drops a terminated unit from the router entirely.
func (r *Router) RemoveUnit(unitID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.units, unitID)
	for i, id := range r.order {
		if id == unitID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Admit selects a unit for a new client connection and registers it in the
// routing table. When no Active unit is momentarily available (mid
// transition) it retries until the admission timeout elapses.
func (r *Router) Admit(ctx context.Context) (*models.ComputeUnit, string, error) {
	deadline := time.Now().Add(r.admissionTimeout)

	for {
		if unit := r.pick(); unit != nil {
			connID := models.NewUUID()
			r.table.Assign(connID, unit.ID)
			return unit, connID, nil
		}

		if time.Now().After(deadline) {
			return nil, "", ErrNoActiveUnits
		}

		select {
		case <-ctx.Done():
			return nil, "", ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (r *Router) pick() *models.ComputeUnit {
	r.mu.RLock()
	defer r.mu.RUnlock()

	switch r.policy {
	case PolicyRoundRobin:
		return r.pickRoundRobin()
	default:
		return r.pickLeastLoaded()
	}
}

func (r *Router) pickLeastLoaded() *models.ComputeUnit {
	var best *routedUnit
	bestCount := 0

	for _, ru := range r.units {
		if !ru.acceptable {
			continue
		}
		count := r.table.CountForUnit(ru.unit.ID)
		if best == nil || count < bestCount {
			best = ru
			bestCount = count
		}
	}

	if best == nil {
		return nil
	}
	unit := best.unit
	return &unit
}

func (r *Router) pickRoundRobin() *models.ComputeUnit {
	if len(r.order) == 0 {
		return nil
	}

	for i := 0; i < len(r.order); i++ {
		id := r.order[(r.rrNext+i)%len(r.order)]
		ru, exists := r.units[id]
		if exists && ru.acceptable {
			r.rrNext = (r.rrNext + i + 1) % len(r.order)
			unit := ru.unit
			return &unit
		}
	}
	return nil
}

// Bind attaches the client-side closer for a routed connection so a forced
// drain can reset it.
func (r *Router) Bind(connID string, closer io.Closer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closers[connID] = closer
}

// Release removes a finished connection from the table.
func (r *Router) Release(connID string) {
	r.mu.Lock()
	delete(r.closers, connID)
	r.mu.Unlock()

	r.table.Remove(connID)
}

// ConnCount reports routed connections for one unit.
func (r *Router) ConnCount(unitID string) int {
	return r.table.CountForUnit(unitID)
}

// TotalConns reports all routed connections.
func (r *Router) TotalConns() int {
	return r.table.Len()
}

// ForceCloseUnit forcibly closes every connection still routed to a unit and
// returns their IDs. Clients observe a connection reset.
func (r *Router) ForceCloseUnit(unitID string) []string {
	connIDs := r.table.ConnsForUnit(unitID)

	for _, connID := range connIDs {
		r.mu.Lock()
		closer := r.closers[connID]
		delete(r.closers, connID)
		r.mu.Unlock()

		if closer != nil {
			closer.Close()
		}
		r.table.Remove(connID)

		logger.WithUnit(unitID).Warnf("Connection %s forcibly reset", connID[:8])
	}

	return connIDs
}
