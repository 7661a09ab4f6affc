package core

import (
	"math"
	"testing"
)

// createLine creates n nodes one metre apart along the x axis without edges.
func createLine(n int) *Graph {
	g := NewGraph()
	for i := 0; i < n; i++ {
		g.AddNode(float64(i), 0)
	}
	return g
}

func TestBuildBackwardEdges(t *testing.T) {
	g := createLine(3)
	g.Edges[0] = []Edge{{From: 0, To: 1, Distance: 1}}
	g.Edges[1] = []Edge{{From: 1, To: 2, Distance: 1}}
	g.BuildBackwardEdges()

	if len(g.BackwardEdges[0]) != 0 {
		t.Errorf("backwardEdges[0] = %v, want empty", g.BackwardEdges[0])
	}
	if len(g.BackwardEdges[1]) != 1 || g.BackwardEdges[1][0].From != 0 || g.BackwardEdges[1][0].To != 1 {
		t.Errorf("backwardEdges[1] = %v, want [(0->1)]", g.BackwardEdges[1])
	}
	if len(g.BackwardEdges[2]) != 1 || g.BackwardEdges[2][0].From != 1 || g.BackwardEdges[2][0].To != 2 {
		t.Errorf("backwardEdges[2] = %v, want [(1->2)]", g.BackwardEdges[2])
	}
}

func TestAddEdgeKeepsBackwardEdges(t *testing.T) {
	g := createLine(3)
	g.AddBidirectionalEdge(0, 1)
	g.AddEdge(1, 2)

	before := len(g.BackwardEdges[1]) + len(g.BackwardEdges[2]) + len(g.BackwardEdges[0])
	g.BuildBackwardEdges()
	after := len(g.BackwardEdges[1]) + len(g.BackwardEdges[2]) + len(g.BackwardEdges[0])
	if before != after || after != 3 {
		t.Errorf("backward edge count: incremental %d, rebuilt %d, want 3", before, after)
	}
}

func TestDistanceAndAngle(t *testing.T) {
	g := NewGraph()
	a := g.AddNode(0, 0)
	b := g.AddNode(3, 4)
	c := g.AddNode(0, 2)
	d := g.AddNode(-1, 0)

	if got := g.Distance(a, b); math.Abs(got-5) > 1e-9 {
		t.Errorf("Distance = %v, want 5", got)
	}
	if got := g.SquaredDistance(a, b); math.Abs(got-25) > 1e-9 {
		t.Errorf("SquaredDistance = %v, want 25", got)
	}

	tests := []struct {
		from, to NodeID
		want     float64
	}{
		{a, c, 90},
		{c, a, 270},
		{a, d, 180},
		{d, a, 0},
	}
	for _, tt := range tests {
		if got := g.Angle(tt.from, tt.to); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Angle(%d, %d) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestIntermediateNodes(t *testing.T) {
	// 0 - 1 - 2
	//     |
	//     3
	g := NewGraph()
	n0 := g.AddNode(0, 0)
	n1 := g.AddNode(1, 0)
	n2 := g.AddNode(2, 0)
	n3 := g.AddNode(1, 1)
	g.AddBidirectionalEdge(n0, n1)
	g.AddBidirectionalEdge(n1, n2)
	g.AddBidirectionalEdge(n1, n3)

	route, ok := g.IntermediateNodes(n0, n2)
	if !ok || len(route) != 2 || route[0] != n1 || route[1] != n2 {
		t.Errorf("IntermediateNodes(0, 2) = %v, %v; want [1 2], true", route, ok)
	}

	// No edge points diagonally towards node 3.
	if route, ok := g.IntermediateNodes(n0, n3); ok {
		t.Errorf("IntermediateNodes(0, 3) = %v, want unknown route", route)
	}

	route, ok = g.IntermediateNodes(n2, n2)
	if !ok || len(route) != 0 {
		t.Errorf("IntermediateNodes(2, 2) = %v, %v; want empty, true", route, ok)
	}
}

func TestSnapshotIsolatesFlags(t *testing.T) {
	g := createLine(2)
	g.SetLocked(0, true)
	snap := g.Snapshot()
	g.SetLocked(0, false)
	g.SetObstacle(1, true)

	if !snap.Locked(0) {
		t.Error("snapshot lost locked flag")
	}
	if snap.Obstacle(1) {
		t.Error("snapshot picked up later obstacle flag")
	}
}

func TestTiersAndElevators(t *testing.T) {
	g := NewGraph()
	a := g.AddTierNode(0, 0, 0)
	b := g.AddTierNode(0, 0, 1)
	g.AddTierNode(1, 0, 1)
	g.AddElevatorEdge(a, b, 5, "lift-1")

	if tiers := g.Tiers(); len(tiers) != 2 || tiers[0] != 0 || tiers[1] != 1 {
		t.Errorf("Tiers = %v", tiers)
	}
	if e, ok := g.ElevatorEdge(a, b); !ok || e.Elevator != "lift-1" || e.TravelTime != 5 {
		t.Errorf("ElevatorEdge = %+v, %v", e, ok)
	}
	if entries := g.ElevatorEntries(0); len(entries) != 1 || entries[0] != a {
		t.Errorf("ElevatorEntries(0) = %v", entries)
	}
	if len(g.NodesOnTier(1)) != 2 {
		t.Errorf("NodesOnTier(1) = %v", g.NodesOnTier(1))
	}
}

func TestFleetValidate(t *testing.T) {
	g := createLine(3)
	f := NewFleet(g)
	f.Agents = []*Agent{NewAgent(0, 0), NewAgent(1, 2)}
	if err := f.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	f.Agents = append(f.Agents, NewAgent(2, 2))
	if err := f.Validate(); err == nil {
		t.Error("expected error for shared start node")
	}

	f.Agents = []*Agent{NewAgent(0, 7)}
	if err := f.Validate(); err == nil {
		t.Error("expected error for unknown node")
	}
}
