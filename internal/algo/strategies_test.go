package algo

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elektrokombinacija/mapf-fleet/internal/core"
	"github.com/elektrokombinacija/mapf-fleet/internal/physics"
	"github.com/elektrokombinacija/mapf-fleet/internal/reservation"
)

// exhausted returns a stopwatch of which the given share of a one second budget is
// already used.
func exhausted(fraction float64) stopwatch {
	elapsed := time.Duration(fraction * float64(time.Second))
	return stopwatch{started: time.Now().Add(-elapsed), limit: time.Second}
}

// Two agents that want to swap ends of a dead-end corridor can not both move.
func TestAllStrategies_TwoNodeCorridor(t *testing.T) {
	for _, name := range []string{"CBS", "WHCA", "PAS", "FAR", "ODID"} {
		t.Run(name, func(t *testing.T) {
			g := createLine(2, 1)
			finder := strategyByName(g, name)
			agents := []*core.Agent{
				newTestAgent(0, 0, 1, 0),
				newTestAgent(1, 1, 0, math.Pi),
			}

			finder.FindPaths(0, agents)

			for _, a := range agents {
				require.NotZero(t, a.Path.Len())
				assert.Equal(t, a.NextNode, a.Path.First().Node)
			}
			assert.Empty(t, FindConflicts(g, agents, 0, reservation.EdgesOff))
		})
	}
}

func TestAllStrategies_OpposingCorridor(t *testing.T) {
	for _, name := range []string{"CBS", "WHCA", "PAS", "FAR", "ODID"} {
		t.Run(name, func(t *testing.T) {
			g := createLine(4, 1)
			finder := strategyByName(g, name)
			agents := []*core.Agent{
				newTestAgent(0, 0, 3, 0),
				newTestAgent(1, 2, 1, math.Pi),
			}

			for call := 0; call < 3; call++ {
				finder.FindPaths(0, agents)
				assert.Empty(t, FindConflicts(g, agents, 0, reservation.EdgesOff), "call %d", call)
			}
		})
	}
}

func TestSettle_ResolvesConflictsWithoutTimeLeft(t *testing.T) {
	g := createCross()
	b := NewBase(g, DefaultOptions(), nil)
	west := newTestAgent(0, 0, 2, 0)
	north := newTestAgent(1, 3, 4, math.Pi/2)
	ctx := b.begin(0, []*core.Agent{west, north})

	plans := map[core.AgentID]*plan{
		0: b.newPlan(ctx, west, core.NewPath(
			core.Action{Node: 0, StopAtNode: true},
			core.Action{Node: 1, StopAtNode: true},
			core.Action{Node: 2, StopAtNode: true},
		), infinity),
		1: b.newPlan(ctx, north, core.NewPath(
			core.Action{Node: 3, StopAtNode: true},
			core.Action{Node: 1, StopAtNode: true},
			core.Action{Node: 4, StopAtNode: true},
		), infinity),
	}
	b.watch = exhausted(1)

	table := b.settle(ctx, plans, nil, unwindowed())
	b.finalize(ctx, plans, table, nil)

	assert.Empty(t, FindConflicts(g, ctx.agents, 0, reservation.EdgesOff))
	assert.Equal(t, []core.NodeID{0, 1, 2}, west.Path.Nodes())
	assert.Equal(t, []core.NodeID{3}, north.Path.Nodes())
}

// An agent that has to stand takes its node back from a plan committed through it.
func TestSettle_StandingAgentEvictsCommittedPlan(t *testing.T) {
	g := createLine(4, 1)
	b := NewBase(g, DefaultOptions(), nil)
	mover := newTestAgent(0, 0, 3, 0)
	stuck := newTestAgent(1, 2, 0, math.Pi)
	ctx := b.begin(0, []*core.Agent{mover, stuck})

	plans := map[core.AgentID]*plan{
		0: b.newPlan(ctx, mover, core.NewPath(
			core.Action{Node: 0, StopAtNode: true},
			core.Action{Node: 1, StopAtNode: true},
			core.Action{Node: 2, StopAtNode: true},
			core.Action{Node: 3, StopAtNode: true},
		), infinity),
		1: b.newPlan(ctx, stuck, core.NewPath(
			core.Action{Node: 2, StopAtNode: true},
			core.Action{Node: 1, StopAtNode: true},
			core.Action{Node: 0, StopAtNode: true},
		), infinity),
	}

	table := b.settle(ctx, plans, []core.AgentID{0, 1}, unwindowed())

	assert.Equal(t, []core.NodeID{2}, plans[1].path.Nodes())
	assert.Equal(t, []core.NodeID{0}, plans[0].path.Nodes())
	for id, p := range plans {
		free, hit := table.IntersectionFree(p.intervals)
		assert.True(t, free, "agent %d overlaps agent %d", id, hit.Agent)
	}
}

func TestWHCA_UseBiasFollowsPreviousRoute(t *testing.T) {
	routes := [][]core.NodeID{
		{0, 3, 6, 7, 8},
		{0, 1, 2, 5, 8},
	}
	for _, route := range routes {
		g := createGrid(3)
		w := NewWHCA(g, DefaultOptions(), nil)
		w.UseBias = true
		a := newTestAgent(0, 0, 8, math.Pi/4)
		a.Path = core.NewPath()
		for _, n := range route {
			a.Path.AddLast(core.Action{Node: n, StopAtNode: true})
		}

		w.FindPaths(0, []*core.Agent{a})

		assert.Equal(t, route, a.Path.Nodes())
	}
}

func TestPAS_PromoteIsCapped(t *testing.T) {
	p := NewPAS(createLine(3, 1), DefaultOptions(), nil)
	p.MaxPriorities = 2

	p.promote([]core.AgentID{4})
	assert.Equal(t, 1, p.Priority(4))
	p.promote([]core.AgentID{4, 4, 4})
	assert.Equal(t, 2, p.Priority(4))
	assert.Zero(t, p.Priority(5))
}

func TestPAS_PriorityDropsAfterSuccess(t *testing.T) {
	g := createGrid(5)
	p := NewPAS(g, DefaultOptions(), nil)
	p.promote([]core.AgentID{0, 0})
	agents := []*core.Agent{newTestAgent(0, 0, 4, 0)}

	p.FindPaths(0, agents)

	assert.Equal(t, core.NodeID(4), agents[0].Path.Last().Node)
	assert.Zero(t, p.Priority(0))
}

func TestPAS_BlockedAgentIsPromoted(t *testing.T) {
	g := createLine(2, 1)
	p := NewPAS(g, DefaultOptions(), nil)
	agents := []*core.Agent{
		newTestAgent(0, 0, 1, 0),
		newTestAgent(1, 1, 0, math.Pi),
	}

	p.FindPaths(0, agents)

	promoted := 0
	for _, a := range agents {
		if lvl := p.Priority(a.ID); lvl > 0 {
			promoted++
			assert.LessOrEqual(t, lvl, p.MaxPriorities)
		}
	}
	assert.Equal(t, 1, promoted)
	assert.Empty(t, FindConflicts(g, agents, 0, reservation.EdgesOff))
}

func TestFAR_BrakingWaitCoversHeldNode(t *testing.T) {
	g := createLine(3, 1)
	f := NewFAR(g, DefaultOptions(), nil)
	a := newTestAgent(0, 0, 2, 0)
	ctx := f.begin(0, []*core.Agent{a})

	table := ctx.static.Clone()
	assert.InDelta(t, 2, f.brakingWait(ctx, a, 2, table, 1), 1e-9)

	table.Add(nodeInterval(1, 0, 10), 9)
	assert.InDelta(t, 10, f.brakingWait(ctx, a, 2, table, 1), 1e-9)

	// the second node is claimed once the agent leaves the first one
	table = ctx.static.Clone()
	table.Add(nodeInterval(2, 0, 10), 9)
	leave := 1 / a.PhysicsOrDefault().MaxSpeedToBreakWithinDistance(2)
	assert.InDelta(t, 10-leave, f.brakingWait(ctx, a, 2, table, 1), 1e-9)

	table = ctx.static.Clone()
	table.Add(nodeInterval(1, 0, infinity), 9)
	assert.InDelta(t, 4, f.brakingWait(ctx, a, 2, table, 2), 1e-9)
}

func TestFAR_BrakesBehindLeavingAgent(t *testing.T) {
	g := createLine(3, 1)
	f := NewFAR(g, DefaultOptions(), nil)
	follower := newTestAgent(0, 0, 1, 0)
	leader := newTestAgent(1, 1, 2, 0)
	leader.Path = core.NewPath(core.Action{Node: 1, StopAtNode: true}, core.Action{Node: 2, StopAtNode: true})
	agents := []*core.Agent{follower, leader}

	f.FindPaths(0, agents)

	phys := physics.Default()
	edge, _ := phys.TimeNeededToMove(0, 1)
	assert.Equal(t, []core.NodeID{1, 2}, leader.Path.Nodes())
	assert.Equal(t, []core.NodeID{0, 1}, follower.Path.Nodes())
	assert.InDelta(t, edge+phys.TurnSpeed/2, follower.Path.First().WaitTimeAfterStop, 1e-6)
	assert.Empty(t, FindConflicts(g, agents, 0, reservation.EdgesOff))
}

func TestFAR_Evade(t *testing.T) {
	for _, preventBack := range []bool{true, false} {
		g := createLine(3, 1)
		f := NewFAR(g, DefaultOptions(), nil)
		f.PreventBackEvading = preventBack
		blocker := core.NewAgent(0, 2)
		blocker.FixedPosition = true
		a := newTestAgent(1, 1, 2, 0)
		ctx := f.begin(0, []*core.Agent{blocker, a})
		f.cameFrom[a.ID] = 0

		p := f.evade(ctx, a, ctx.static.Clone())

		if preventBack {
			assert.Nil(t, p, "evaded back to the node it came from")
			continue
		}
		require.NotNil(t, p)
		assert.Equal(t, []core.NodeID{1, 0}, p.path.Nodes())
		assert.Equal(t, core.NodeID(1), f.cameFrom[a.ID])
	}
}

func TestIndependenceDetection_StopsNearBudget(t *testing.T) {
	g := createCross()
	signals := 0
	b := NewBase(g, DefaultOptions(), &Communicator{SignalTimeout: func() { signals++ }})
	routes := map[core.AgentID][]core.NodeID{0: {0, 1, 2}, 1: {3, 1, 4}}
	id := &IndependenceDetection{base: b}
	id.plan = func(ctx *planContext, group []*core.Agent) map[core.AgentID]*plan {
		plans := make(map[core.AgentID]*plan, len(group))
		for _, a := range group {
			path := core.NewPath()
			for _, n := range routes[a.ID] {
				path.AddLast(core.Action{Node: n, StopAtNode: true})
			}
			plans[a.ID] = b.newPlan(ctx, a, path, infinity)
		}
		return plans
	}
	agents := []*core.Agent{newTestAgent(0, 0, 2, 0), newTestAgent(1, 3, 4, math.Pi/2)}
	ctx := b.begin(0, agents)
	b.watch = exhausted(0.95)

	plans := id.run(ctx, agents)

	assert.Len(t, plans, 2)
	assert.Zero(t, id.Merges)
	assert.Len(t, id.Groups, 2)
	assert.Equal(t, 1, signals)
}
