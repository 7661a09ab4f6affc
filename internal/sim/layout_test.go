package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGridLayout_Build(t *testing.T) {
	l := GridLayout{Width: 4, Height: 3, Spacing: 1.5, Tiers: 2, ElevatorTravelTime: 8}

	g, err := l.Build()
	require.NoError(t, err)

	assert.Equal(t, 24, g.NodeCount())
	assert.Equal(t, []int{0, 1}, g.Tiers())
	assert.Equal(t, 1, g.TierOf(l.Node(0, 0, 1)))

	e, ok := g.Edge(l.Node(0, 0, 0), l.Node(1, 0, 0))
	require.True(t, ok)
	assert.InDelta(t, 1.5, e.Distance, 1e-9)
	_, ok = g.Edge(l.Node(0, 0, 0), l.Node(1, 1, 0))
	assert.False(t, ok, "grid is 4-connected")

	// two lifts, each usable in both directions
	assert.Len(t, g.ElevatorEdges(), 4)
	up, ok := g.ElevatorEdge(l.Node(3, 2, 0), l.Node(3, 2, 1))
	require.True(t, ok)
	assert.Equal(t, "lift-3-2", up.Elevator)
	assert.Equal(t, 8.0, up.TravelTime)
	_, ok = g.ElevatorEdge(l.Node(0, 0, 1), l.Node(0, 0, 0))
	assert.True(t, ok)
}

func TestGridLayout_SingleTierHasNoLifts(t *testing.T) {
	g, err := DefaultLayout().Build()
	require.NoError(t, err)
	assert.Equal(t, 64, g.NodeCount())
	assert.Empty(t, g.ElevatorEdges())
}

func TestGridLayout_Validate(t *testing.T) {
	tests := []struct {
		name   string
		layout GridLayout
	}{
		{"empty", GridLayout{Width: 0, Height: 3, Spacing: 1, Tiers: 1}},
		{"spacing", GridLayout{Width: 3, Height: 3, Spacing: 0, Tiers: 1}},
		{"tiers", GridLayout{Width: 3, Height: 3, Spacing: 1, Tiers: 0}},
		{"lift", GridLayout{Width: 3, Height: 3, Spacing: 1, Tiers: 2}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.layout.Build()
			assert.Error(t, err)
		})
	}
}
