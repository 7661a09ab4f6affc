package core

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathDequeWrapAround(t *testing.T) {
	p := NewPath()
	for i := 0; i < 3; i++ {
		p.AddLast(Action{Node: NodeID(i)})
	}
	p.RemoveFirst()
	p.RemoveFirst()
	// Head has moved; these fill the buffer across its end.
	for i := 3; i < 8; i++ {
		p.AddLast(Action{Node: NodeID(i)})
	}
	p.AddFirst(Action{Node: 1})

	require.Equal(t, 7, p.Len())
	assert.Equal(t, []NodeID{1, 2, 3, 4, 5, 6, 7}, p.Nodes())
	assert.Equal(t, NodeID(1), p.First().Node)
	assert.Equal(t, NodeID(7), p.Last().Node)

	last := p.RemoveLast()
	assert.Equal(t, NodeID(7), last.Node)
	assert.Equal(t, NodeID(6), p.Last().Node)
}

func TestPathClone(t *testing.T) {
	p := NewPath(Action{Node: 1, StopAtNode: true}, Action{Node: 2, StopAtNode: true})
	c := p.Clone()
	c.Set(0, Action{Node: 9})
	assert.Equal(t, NodeID(1), p.First().Node)
	assert.Equal(t, NodeID(9), c.First().Node)
	assert.True(t, p.Contains(2))
	assert.False(t, p.Contains(9))
}

func TestPathConsistency(t *testing.T) {
	assert.True(t, NewPath().IsConsistent())
	assert.True(t, StayPath(3).IsConsistent())

	p := NewPath(Action{Node: 0, StopAtNode: true}, Action{Node: 1})
	assert.False(t, p.IsConsistent(), "agent would be left mid-edge")
}

func TestPathNextOrientation(t *testing.T) {
	g := NewGraph()
	a := g.AddNode(0, 0)
	b := g.AddNode(0, 1)
	p := NewPath(Action{Node: a, StopAtNode: true}, Action{Node: b, StopAtNode: true})

	o, ok := p.NextOrientation(g)
	require.True(t, ok)
	assert.InDelta(t, math.Pi/2, o, 1e-9)

	_, ok = StayPath(a).NextOrientation(g)
	assert.False(t, ok)
}

func TestPathAtOutOfRangePanics(t *testing.T) {
	assert.Panics(t, func() { NewPath().At(0) })
}
