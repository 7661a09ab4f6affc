package algo

import (
	"math"
	"math/rand"

	"github.com/elektrokombinacija/mapf-fleet/internal/core"
	"github.com/elektrokombinacija/mapf-fleet/internal/reservation"
)

// DeadlockHandler frees agents that are stuck without a usable path by sending them
// to a random free neighbor.
type DeadlockHandler struct {
	graph *core.Graph
	rng   *rand.Rand
	mode  reservation.EdgeMode
	comm  *Communicator

	// Hops counts the successful evasions.
	Hops int
}

// NewDeadlockHandler creates a handler drawing from rng.
func NewDeadlockHandler(g *core.Graph, rng *rand.Rand, mode reservation.EdgeMode, comm *Communicator) *DeadlockHandler {
	return &DeadlockHandler{graph: g, rng: rng, mode: mode, comm: comm}
}

// Handle gives a stuck agent, one not at its destination with at most one action,
// a hop to a random adjacent node reachable by an edge whose reservation is free in
// table. The hop is added to table. It reports whether the agent was moved.
func (h *DeadlockHandler) Handle(ctx *planContext, a *core.Agent, table *reservation.Table) bool {
	if a.FixedPosition || a.AtDestination() || a.Path.Len() > 1 {
		return false
	}
	edges := h.graph.Edges[a.NextNode]
	for _, i := range h.rng.Perm(len(edges)) {
		n := edges[i].To
		if n == a.NextNode || ctx.nodes.Locked(n) || (ctx.nodes.Obstacle(n) && !a.CanGoThroughObstacles) {
			continue
		}
		path := core.NewPath(
			core.Action{Node: a.NextNode, StopAtNode: true},
			core.Action{Node: n, StopAtNode: true},
		)
		steps, _ := timeline(h.graph, a.PhysicsOrDefault(), path, math.Max(ctx.now, a.ArrivalTime), a.Orientation)
		ivs := pathIntervals(a, steps, ctx.now, infinity, h.mode)
		if free, _ := table.IntersectionFree(ivs); !free {
			continue
		}
		table.AddAll(ivs, a.ID)
		a.Path = path
		h.Hops++
		h.comm.info("agent %d: deadlock evasion from node %d to node %d", a.ID, a.NextNode, n)
		return true
	}
	h.comm.verbose("agent %d: no free neighbor to evade to", a.ID)
	return false
}
