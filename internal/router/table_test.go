package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTable_AssignAndRemove(t *testing.T) {
	table := NewTable()

	table.Assign("conn-1", "unit-a")
	table.Assign("conn-2", "unit-a")
	table.Assign("conn-3", "unit-b")

	assert.Equal(t, 3, table.Len())
	assert.Equal(t, 2, table.CountForUnit("unit-a"))
	assert.Equal(t, 1, table.CountForUnit("unit-b"))

	owner, ok := table.Owner("conn-1")
	assert.True(t, ok)
	assert.Equal(t, "unit-a", owner)

	unitID, ok := table.Remove("conn-1")
	assert.True(t, ok)
	assert.Equal(t, "unit-a", unitID)
	assert.Equal(t, 1, table.CountForUnit("unit-a"))

	_, ok = table.Remove("conn-1")
	assert.False(t, ok)
}

func TestTable_ConnsForUnit(t *testing.T) {
	table := NewTable()

	table.Assign("conn-1", "unit-a")
	table.Assign("conn-2", "unit-a")

	conns := table.ConnsForUnit("unit-a")
	assert.ElementsMatch(t, []string{"conn-1", "conn-2"}, conns)

	assert.Empty(t, table.ConnsForUnit("unit-missing"))
}
