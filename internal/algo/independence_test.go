package algo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elektrokombinacija/mapf-fleet/internal/core"
	"github.com/elektrokombinacija/mapf-fleet/internal/reservation"
)

// createCross creates a plus-shaped junction: west, centre, east, north, south.
func createCross() *core.Graph {
	g := core.NewGraph()
	w := g.AddNode(-1, 0)
	c := g.AddNode(0, 0)
	e := g.AddNode(1, 0)
	n := g.AddNode(0, -1)
	s := g.AddNode(0, 1)
	g.AddBidirectionalEdge(w, c)
	g.AddBidirectionalEdge(c, e)
	g.AddBidirectionalEdge(n, c)
	g.AddBidirectionalEdge(c, s)
	return g
}

func TestODID_MergesCrossingAgents(t *testing.T) {
	g := createCross()
	odid := NewODID(g, DefaultOptions(), nil)
	agents := []*core.Agent{
		newTestAgent(0, 0, 2, 0),         // west to east
		newTestAgent(1, 3, 4, math.Pi/2), // north to south
	}

	odid.FindPaths(0, agents)

	merges, groups := odid.Stats()
	assert.Equal(t, 1, merges)
	require.Len(t, groups, 1)
	assert.Equal(t, []core.AgentID{0, 1}, groups[0])
	assert.Empty(t, FindConflicts(g, agents, 0, reservation.EdgesOff))
	for _, a := range agents {
		assert.Equal(t, a.DestinationNode, a.Path.Last().Node, "agent %d path %v", a.ID, a.Path.Nodes())
	}
}

func TestODID_IndependentAgentsStaySingletons(t *testing.T) {
	g := core.NewGraph()
	var agents []*core.Agent
	for i := 0; i < 3; i++ {
		from := g.AddNode(0, float64(i)*5)
		to := g.AddNode(1, float64(i)*5)
		g.AddBidirectionalEdge(from, to)
		agents = append(agents, newTestAgent(core.AgentID(i), from, to, 0))
	}
	odid := NewODID(g, DefaultOptions(), nil)

	odid.FindPaths(0, agents)

	merges, groups := odid.Stats()
	assert.Zero(t, merges)
	assert.Len(t, groups, 3)
	for _, group := range groups {
		assert.Len(t, group, 1)
	}
	for _, a := range agents {
		assert.Equal(t, a.DestinationNode, a.Path.Last().Node)
	}
}

func TestODID_WindowedWithoutFinalReservations(t *testing.T) {
	g := createLine(10, 1)
	odid := NewODID(g, DefaultOptions(), nil)
	odid.LengthOfAWindow = 5
	odid.UseFinalReservations = false
	a := newTestAgent(0, 0, 9, 0)

	odid.FindPaths(0, []*core.Agent{a})

	assert.Greater(t, a.Path.Len(), 1)
	assert.NotEqual(t, core.NodeID(9), a.Path.Last().Node)
}

func TestMergeGroups(t *testing.T) {
	a := &agentGroup{id: 4, agents: []*core.Agent{core.NewAgent(4, 0), core.NewAgent(6, 1)}}
	b := &agentGroup{id: 2, agents: []*core.Agent{core.NewAgent(2, 2)}}

	merged := mergeGroups(a, b)

	assert.Equal(t, core.AgentID(2), merged.id)
	ids := make([]core.AgentID, 0, len(merged.agents))
	for _, ag := range merged.agents {
		ids = append(ids, ag.ID)
	}
	assert.Equal(t, []core.AgentID{2, 4, 6}, ids)
}

func TestOperatorDecomposition_CrossingGroup(t *testing.T) {
	g := createCross()
	b := NewBase(g, DefaultOptions(), nil)
	agents := []*core.Agent{
		newTestAgent(0, 0, 2, 0),
		newTestAgent(1, 3, 4, math.Pi/2),
	}
	ctx := b.begin(0, agents)

	plans := b.odSearch(ctx, agents, ctx.static, unwindowed(), 5000)

	require.NotNil(t, plans)
	table := reservation.NewTable()
	for _, id := range sortedAgentIDs(plans) {
		p := plans[id]
		assert.True(t, p.reached, "agent %d", id)
		free, hit := table.IntersectionFree(p.intervals)
		assert.True(t, free, "agent %d overlaps %v", id, hit)
		table.AddAll(p.intervals, id)
	}
}
