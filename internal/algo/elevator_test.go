package algo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elektrokombinacija/mapf-fleet/internal/core"
	"github.com/elektrokombinacija/mapf-fleet/internal/physics"
)

// createTwoTiers creates two three-node rows, nodes 0-2 on tier 0 and 3-5 on tier 1,
// joined by a fast lift at the east end and a slow one at the west end.
func createTwoTiers() *core.Graph {
	g := core.NewGraph()
	for tier := 0; tier < 2; tier++ {
		for x := 0; x < 3; x++ {
			g.AddTierNode(float64(x), 0, tier)
		}
		base := core.NodeID(tier * 3)
		g.AddBidirectionalEdge(base, base+1)
		g.AddBidirectionalEdge(base+1, base+2)
	}
	g.AddElevatorEdge(2, 5, 10, "lift-A")
	g.AddElevatorEdge(5, 2, 10, "lift-A")
	g.AddElevatorEdge(0, 3, 30, "lift-B")
	g.AddElevatorEdge(3, 0, 30, "lift-B")
	return g
}

func TestElevatorSequencer_PicksFastestLift(t *testing.T) {
	seq, err := NewElevatorSequencer(createTwoTiers())
	require.NoError(t, err)

	route, ok := seq.Find(1, 4, physics.Default())

	require.True(t, ok)
	require.Len(t, route.Hops, 1)
	assert.Equal(t, ElevatorHop{Elevator: "lift-A", Entry: 2, Exit: 5, TravelTime: 10}, route.Hops[0])
	assert.InDelta(t, 2.0, route.Distance, 1e-6)
	assert.Greater(t, route.Time, 10.0)
	assert.Less(t, route.Time, 30.0)
}

func TestElevatorSequencer_SameTier(t *testing.T) {
	seq, err := NewElevatorSequencer(createTwoTiers())
	require.NoError(t, err)

	route, ok := seq.Find(0, 2, physics.Default())

	require.True(t, ok)
	assert.Empty(t, route.Hops)
	assert.InDelta(t, 2.0, route.Distance, 1e-6)
}

func TestElevatorSequencer_UnconnectedTier(t *testing.T) {
	g := createTwoTiers()
	island := g.AddTierNode(0, 0, 2)
	seq, err := NewElevatorSequencer(g)
	require.NoError(t, err)

	_, ok := seq.Find(1, island, physics.Default())

	assert.False(t, ok)
}

func TestStrategiesHeadForElevatorEntry(t *testing.T) {
	for _, name := range []string{"CBS", "WHCA", "ODID"} {
		t.Run(name, func(t *testing.T) {
			g := createTwoTiers()
			finder := strategyByName(g, name)
			a := newTestAgent(0, 1, 4, 0)

			finder.FindPaths(0, []*core.Agent{a})

			assert.Equal(t, core.NodeID(2), a.Path.Last().Node, "path %v", a.Path.Nodes())
		})
	}
}
