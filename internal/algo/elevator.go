package algo

import (
	"github.com/LdDl/ch"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/elektrokombinacija/mapf-fleet/internal/core"
	"github.com/elektrokombinacija/mapf-fleet/internal/physics"
)

// ElevatorHop is one ride: drive to Entry, take Elevator, leave at Exit.
type ElevatorHop struct {
	Elevator   string
	Entry      core.NodeID
	Exit       core.NodeID
	TravelTime float64
}

// Sequence is a route across tiers.
type Sequence struct {
	Hops     []ElevatorHop
	Distance float64 // driven on the tiers, metres
	Time     float64 // driving plus riding, seconds
}

// ElevatorSequencer finds the fastest order of elevator rides between two nodes.
// Driving distances on the tiers come from a contraction hierarchy; the rides are
// chosen by a shortest-path search over the elevator portals.
type ElevatorSequencer struct {
	graph *core.Graph
	hier  *ch.Graph
}

// NewElevatorSequencer contracts the driving edges of g.
func NewElevatorSequencer(g *core.Graph) (*ElevatorSequencer, error) {
	hier := &ch.Graph{}
	for i := 0; i < g.NodeCount(); i++ {
		if err := hier.CreateVertex(int64(i)); err != nil {
			return nil, errors.Wrapf(err, "can not create vertex %d", i)
		}
	}
	for _, out := range g.Edges {
		for _, e := range out {
			if e.From == e.To {
				continue
			}
			if err := hier.AddEdge(int64(e.From), int64(e.To), e.Distance); err != nil {
				return nil, errors.Wrapf(err, "can not add edge %d -> %d", e.From, e.To)
			}
		}
	}
	hier.PrepareContractionHierarchies()
	return &ElevatorSequencer{graph: g, hier: hier}, nil
}

// driveDistance is the shortest driving distance on one tier, negative when there is
// none.
func (s *ElevatorSequencer) driveDistance(from, to core.NodeID) float64 {
	if from == to {
		return 0
	}
	if !s.graph.SameTier(from, to) {
		return -1
	}
	dist, _ := s.hier.ShortestPath(int64(from), int64(to))
	return dist
}

// Find returns the minimum-time sequence of elevator rides from start to end for an
// agent with the given kinematics. Nodes on the same tier yield an empty sequence.
// It reports false when the tiers are not connected.
func (s *ElevatorSequencer) Find(start, end core.NodeID, phys *physics.Physics) (Sequence, bool) {
	if s.graph.SameTier(start, end) {
		d := s.driveDistance(start, end)
		if d < 0 {
			return Sequence{}, false
		}
		t, _ := phys.TimeNeededToMove(0, d)
		return Sequence{Distance: d, Time: t}, true
	}

	portals := []core.NodeID{start}
	seen := map[core.NodeID]bool{start: true}
	lifts := s.graph.ElevatorEdges()
	for _, e := range lifts {
		for _, n := range []core.NodeID{e.From, e.To} {
			if !seen[n] {
				seen[n] = true
				portals = append(portals, n)
			}
		}
	}
	if !seen[end] {
		portals = append(portals, end)
	}

	dists := make(map[[2]core.NodeID]float64)
	search := simple.NewWeightedDirectedGraph(0, infinity)
	for _, n := range portals {
		search.AddNode(simple.Node(n))
	}
	for _, u := range portals {
		for _, v := range portals {
			if u == v || u == end || v == start {
				continue
			}
			d := s.driveDistance(u, v)
			if d < 0 {
				continue
			}
			t, _ := phys.TimeNeededToMove(0, d)
			dists[[2]core.NodeID{u, v}] = d
			search.SetWeightedEdge(search.NewWeightedEdge(simple.Node(u), simple.Node(v), t))
		}
	}
	for _, e := range lifts {
		if e.From == end || e.To == start {
			continue
		}
		if _, ok := dists[[2]core.NodeID{e.From, e.To}]; ok {
			continue
		}
		search.SetWeightedEdge(search.NewWeightedEdge(simple.Node(e.From), simple.Node(e.To), e.TravelTime))
	}

	nodes, total := path.DijkstraFrom(simple.Node(start), search).To(int64(end))
	if len(nodes) == 0 {
		return Sequence{}, false
	}
	seq := Sequence{Time: total}
	for i := 0; i+1 < len(nodes); i++ {
		u, v := core.NodeID(nodes[i].ID()), core.NodeID(nodes[i+1].ID())
		if d, ok := dists[[2]core.NodeID{u, v}]; ok {
			seq.Distance += d
			continue
		}
		lift, _ := s.graph.ElevatorEdge(u, v)
		seq.Hops = append(seq.Hops, ElevatorHop{Elevator: lift.Elevator, Entry: u, Exit: v, TravelTime: lift.TravelTime})
	}
	return seq, true
}
