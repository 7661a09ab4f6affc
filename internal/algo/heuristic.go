package algo

import (
	"math"

	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/elektrokombinacija/mapf-fleet/internal/core"
	"github.com/elektrokombinacija/mapf-fleet/internal/physics"
)

// DistanceTable answers true driving distances to goal nodes. One Dijkstra run on the
// reversed graph is cached per goal.
type DistanceTable struct {
	reversed *simple.WeightedDirectedGraph
	cache    map[core.NodeID]path.Shortest
}

// NewDistanceTable indexes the edges of g. Elevator edges are not part of it.
func NewDistanceTable(g *core.Graph) *DistanceTable {
	reversed := simple.NewWeightedDirectedGraph(0, math.Inf(1))
	for i := 0; i < g.NodeCount(); i++ {
		reversed.AddNode(simple.Node(i))
	}
	for _, out := range g.Edges {
		for _, e := range out {
			if e.From == e.To {
				continue
			}
			reversed.SetWeightedEdge(reversed.NewWeightedEdge(simple.Node(e.To), simple.Node(e.From), e.Distance))
		}
	}
	return &DistanceTable{reversed: reversed, cache: make(map[core.NodeID]path.Shortest)}
}

// Distance returns the shortest driving distance from -> to, +Inf when to cannot be
// reached.
func (d *DistanceTable) Distance(from, to core.NodeID) float64 {
	if from == to {
		return 0
	}
	tree, ok := d.cache[to]
	if !ok {
		tree = path.DijkstraFrom(simple.Node(to), d.reversed)
		d.cache[to] = tree
	}
	return tree.WeightTo(int64(from))
}

// heuristic is a lower bound of the driving time to goal.
func (b *Base) heuristic(phys *physics.Physics, goal core.NodeID) func(core.NodeID) float64 {
	speed := phys.MaxSpeed
	if speed <= 0 {
		speed = physics.Default().MaxSpeed
	}
	return func(n core.NodeID) float64 {
		return b.Distances.Distance(n, goal) / speed
	}
}
