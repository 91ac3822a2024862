package router

import "sync"

// Table maps connection IDs to their owning compute unit. Writers take the
// exclusive lock; lookups never observe a half-updated entry.
type Table struct {
	mu        sync.RWMutex
	conns     map[string]string // connID -> unitID
	unitConns map[string]map[string]struct{}
}

func NewTable() *Table {
	return &Table{
		conns:     make(map[string]string),
		unitConns: make(map[string]map[string]struct{}),
	}
}

func (t *Table) Assign(connID, unitID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.conns[connID] = unitID
	if t.unitConns[unitID] == nil {
		t.unitConns[unitID] = make(map[string]struct{})
	}
	t.unitConns[unitID][connID] = struct{}{}
}

func (t *Table) Remove(connID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	unitID, exists := t.conns[connID]
	if !exists {
		return "", false
	}

	delete(t.conns, connID)
	if set := t.unitConns[unitID]; set != nil {
		delete(set, connID)
		if len(set) == 0 {
			delete(t.unitConns, unitID)
		}
	}

	return unitID, true
}

func (t *Table) Owner(connID string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	unitID, exists := t.conns[connID]
	return unitID, exists
}

func (t *Table) CountForUnit(unitID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.unitConns[unitID])
}

func (t *Table) ConnsForUnit(unitID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	conns := make([]string, 0, len(t.unitConns[unitID]))
	for connID := range t.unitConns[unitID] {
		conns = append(conns, connID)
	}
	return conns
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.conns)
}
