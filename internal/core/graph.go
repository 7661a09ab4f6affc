package core

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// intermediateTolerance is the largest deviation, in degrees, between an edge and the
// straight-line bearing that IntermediateNodes still follows.
const intermediateTolerance = 10.0

// Graph is the navigable network of the facility. It is immutable after
// construction except for the locked and obstacle flags.
type Graph struct {
	Positions     []orb.Point
	Infos         []NodeInfo
	Edges         [][]Edge
	BackwardEdges [][]Edge
	Elevators     map[NodeID][]ElevatorEdge
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		Elevators: make(map[NodeID][]ElevatorEdge),
	}
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	return len(g.Positions)
}

// AddNode adds a node on tier 0 and returns its id.
func (g *Graph) AddNode(x, y float64) NodeID {
	return g.AddTierNode(x, y, 0)
}

// AddTierNode adds a node on the given tier and returns its id.
func (g *Graph) AddTierNode(x, y float64, tier int) NodeID {
	id := NodeID(len(g.Positions))
	g.Positions = append(g.Positions, orb.Point{x, y})
	g.Infos = append(g.Infos, NodeInfo{ID: id, QueueTerminalID: NoNode, Tier: tier})
	g.Edges = append(g.Edges, nil)
	g.BackwardEdges = append(g.BackwardEdges, nil)
	return id
}

// Valid reports whether n is a node of g.
func (g *Graph) Valid(n NodeID) bool {
	return n >= 0 && int(n) < len(g.Positions)
}

// AddEdge adds a directed edge whose distance and angle follow from the node
// positions.
func (g *Graph) AddEdge(from, to NodeID) Edge {
	e := Edge{From: from, To: to, Distance: g.Distance(from, to), Angle: g.Angle(from, to)}
	g.Edges[from] = append(g.Edges[from], e)
	g.BackwardEdges[to] = append(g.BackwardEdges[to], e)
	return e
}

// AddBidirectionalEdge adds edges in both directions.
func (g *Graph) AddBidirectionalEdge(a, b NodeID) {
	g.AddEdge(a, b)
	g.AddEdge(b, a)
}

// AddElevatorEdge connects two nodes, usually on different tiers, through an
// elevator.
func (g *Graph) AddElevatorEdge(from, to NodeID, travelTime float64, elevator string) {
	e := ElevatorEdge{
		Edge:       Edge{From: from, To: to, Distance: g.Distance(from, to), Angle: g.Angle(from, to)},
		TravelTime: travelTime,
		Elevator:   elevator,
	}
	g.Elevators[from] = append(g.Elevators[from], e)
}

// BuildBackwardEdges recomputes the backward adjacency as the transpose of Edges. It
// must be called after Edges was modified directly.
func (g *Graph) BuildBackwardEdges() {
	g.BackwardEdges = make([][]Edge, len(g.Edges))
	for _, out := range g.Edges {
		for _, e := range out {
			g.BackwardEdges[e.To] = append(g.BackwardEdges[e.To], e)
		}
	}
}

// Edge returns the edge from -> to.
func (g *Graph) Edge(from, to NodeID) (Edge, bool) {
	for _, e := range g.Edges[from] {
		if e.To == to {
			return e, true
		}
	}
	return Edge{}, false
}

// Neighbors returns the targets of the outgoing edges of n.
func (g *Graph) Neighbors(n NodeID) []NodeID {
	edges := g.Edges[n]
	neighbors := make([]NodeID, len(edges))
	for i, e := range edges {
		neighbors[i] = e.To
	}
	return neighbors
}

// Distance is the Euclidean distance between two nodes.
func (g *Graph) Distance(n1, n2 NodeID) float64 {
	return planar.Distance(g.Positions[n1], g.Positions[n2])
}

// SquaredDistance is the squared Euclidean distance between two nodes.
func (g *Graph) SquaredDistance(n1, n2 NodeID) float64 {
	return planar.DistanceSquared(g.Positions[n1], g.Positions[n2])
}

// Angle returns the bearing from n1 to n2 in degrees within [0,360). With the y axis
// pointing down the angle grows clockwise.
func (g *Graph) Angle(n1, n2 NodeID) float64 {
	p1, p2 := g.Positions[n1], g.Positions[n2]
	return normalizeDegrees(math.Atan2(p2.Y()-p1.Y(), p2.X()-p1.X()) * 180 / math.Pi)
}

// IntermediateNodes walks from n1 towards n2, always following the outgoing edge that
// points along the straight-line bearing, and returns the visited nodes ending with
// n2. It reports false when no such edge exists at some step, meaning the route
// between the nodes is unknown.
func (g *Graph) IntermediateNodes(n1, n2 NodeID) ([]NodeID, bool) {
	if n1 == n2 {
		return []NodeID{}, true
	}
	bearing := g.Angle(n1, n2)
	var route []NodeID
	current := n1
	for steps := 0; steps < g.NodeCount(); steps++ {
		next := NoNode
		for _, e := range g.Edges[current] {
			if angleDiffDegrees(e.Angle, bearing) <= intermediateTolerance {
				next = e.To
				break
			}
		}
		if next == NoNode {
			return nil, false
		}
		route = append(route, next)
		if next == n2 {
			return route, true
		}
		current = next
	}
	return nil, false
}

// SetLocked toggles the locked flag. Only the host calls this, between planning calls.
func (g *Graph) SetLocked(n NodeID, locked bool) {
	g.Infos[n].IsLocked = locked
}

// SetObstacle toggles the obstacle flag. Only the host calls this, between planning
// calls.
func (g *Graph) SetObstacle(n NodeID, obstacle bool) {
	g.Infos[n].IsObstacle = obstacle
}

// SetQueue marks n as a queue node leading to terminal.
func (g *Graph) SetQueue(n, terminal NodeID) {
	g.Infos[n].IsQueue = true
	g.Infos[n].QueueTerminalID = terminal
}

// NodeState is a snapshot of the transient node flags taken at the start of a
// planning call.
type NodeState struct {
	locked   []bool
	obstacle []bool
}

// Snapshot captures the current locked and obstacle flags.
func (g *Graph) Snapshot() NodeState {
	s := NodeState{
		locked:   make([]bool, len(g.Infos)),
		obstacle: make([]bool, len(g.Infos)),
	}
	for i, info := range g.Infos {
		s.locked[i] = info.IsLocked
		s.obstacle[i] = info.IsObstacle
	}
	return s
}

// Locked reports the snapshot's locked flag of n.
func (s NodeState) Locked(n NodeID) bool {
	return int(n) < len(s.locked) && s.locked[n]
}

// Obstacle reports the snapshot's obstacle flag of n.
func (s NodeState) Obstacle(n NodeID) bool {
	return int(n) < len(s.obstacle) && s.obstacle[n]
}

func normalizeDegrees(a float64) float64 {
	a = math.Mod(a, 360)
	if a < 0 {
		a += 360
	}
	return a
}

func angleDiffDegrees(a, b float64) float64 {
	d := math.Abs(normalizeDegrees(a) - normalizeDegrees(b))
	if d > 180 {
		d = 360 - d
	}
	return d
}
