package algo

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/elektrokombinacija/mapf-fleet/internal/core"
	"github.com/elektrokombinacija/mapf-fleet/internal/reservation"
)

func TestDeadlockHandler_HopsToFreeNeighbor(t *testing.T) {
	g := createLine(3, 1)
	b := NewBase(g, DefaultOptions(), nil)
	a := newTestAgent(0, 1, 2, 0)
	ctx := b.begin(0, []*core.Agent{a})
	table := reservation.NewTable()

	moved := b.Deadlock.Handle(ctx, a, table)

	assert.True(t, moved)
	assert.Equal(t, 2, a.Path.Len())
	assert.Equal(t, core.NodeID(1), a.Path.First().Node)
	_, ok := g.Edge(1, a.Path.Last().Node)
	assert.True(t, ok, "hop %v is not along an edge", a.Path.Nodes())
	assert.NotZero(t, table.Len())
	assert.Equal(t, 1, b.Deadlock.Hops)
}

func TestDeadlockHandler_NoFreeNeighbor(t *testing.T) {
	g := createLine(3, 1)
	b := NewBase(g, DefaultOptions(), nil)
	a := newTestAgent(0, 1, 2, 0)
	ctx := b.begin(0, []*core.Agent{a})
	table := reservation.NewTable()
	table.Add(nodeInterval(0, 0, infinity), 5)
	table.Add(nodeInterval(2, 0, infinity), 6)

	moved := b.Deadlock.Handle(ctx, a, table)

	assert.False(t, moved)
	assert.Equal(t, []core.NodeID{1}, a.Path.Nodes())
	assert.Zero(t, b.Deadlock.Hops)
}

func TestDeadlockHandler_IgnoresSettledAgents(t *testing.T) {
	g := createLine(3, 1)
	b := NewBase(g, DefaultOptions(), nil)

	atGoal := core.NewAgent(0, 1)
	fixed := newTestAgent(1, 0, 2, 0)
	fixed.FixedPosition = true
	moving := newTestAgent(2, 2, 0, 0)
	moving.Path = core.NewPath(core.Action{Node: 2, StopAtNode: true}, core.Action{Node: 1, StopAtNode: true})

	ctx := b.begin(0, []*core.Agent{atGoal, fixed, moving})
	for _, a := range []*core.Agent{atGoal, fixed, moving} {
		assert.False(t, b.Deadlock.Handle(ctx, a, reservation.NewTable()), "agent %d", a.ID)
	}
}
