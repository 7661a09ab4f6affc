package algo

import (
	"container/heap"
	"math"
	"time"

	"github.com/elektrokombinacija/mapf-fleet/internal/core"
	"github.com/elektrokombinacija/mapf-fleet/internal/physics"
	"github.com/elektrokombinacija/mapf-fleet/internal/reservation"
)

const (
	// queuePenalty is added, in seconds, when an agent that is not queueing drives
	// into a queue node it does not need.
	queuePenalty = 10.0
	// biasFactor scales the cost of moves along the previously planned route.
	biasFactor = 0.8
)

// searchOptions tune one low-level search.
type searchOptions struct {
	windowEnd   float64 // a state at or beyond this time ends the search; +Inf disables
	restUntil   float64 // the final node must stay free until then
	allowWaits  bool
	initialWait float64 // forced wait at the start node
	bias        map[core.NodeID]bool
	edgePenalty func(from, to core.NodeID) float64
}

func unwindowed() searchOptions {
	return searchOptions{windowEnd: math.Inf(1), restUntil: math.Inf(1), allowWaits: true}
}

func windowed(now, length float64) searchOptions {
	opts := unwindowed()
	if length > 0 {
		opts.windowEnd = now + length
	}
	return opts
}

// astarNode is a timed state of the space-time search.
type astarNode struct {
	node    core.NodeID
	t       float64 // arrival time at node
	heading float64
	g       float64 // cost so far
	f       float64 // g + h
	wait    float64 // >0 when reached by waiting
	parent  *astarNode
	index   int // heap index
}

// astarHeap implements heap.Interface.
type astarHeap []*astarNode

func (h astarHeap) Len() int { return len(h) }
func (h astarHeap) Less(i, j int) bool {
	if h[i].f != h[j].f {
		return h[i].f < h[j].f
	}
	return h[i].g > h[j].g
}
func (h astarHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *astarHeap) Push(x any) {
	n := x.(*astarNode)
	n.index = len(*h)
	*h = append(*h, n)
}
func (h *astarHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[0 : n-1]
	return x
}

// stateKey identifies a state in the closed set: millisecond time and whole
// degrees of heading.
type stateKey struct {
	node    core.NodeID
	t       int64
	heading int
}

func keyOf(n *astarNode) stateKey {
	deg := int(math.Round(physics.NormalizeOrientation(n.heading)*180/math.Pi)) % 360
	return stateKey{node: n.node, t: int64(math.Round(n.t * 1000)), heading: deg}
}

// freeIn reports whether iv overlaps no reservation of another agent in any table.
func freeIn(tables []*reservation.Table, iv reservation.Interval) bool {
	for _, t := range tables {
		if !t.Free(iv) {
			return false
		}
	}
	return true
}

// passable reports whether agent a may drive into n on its way to goal.
func (b *Base) passable(ctx *planContext, a *core.Agent, n, goal core.NodeID) bool {
	if n == goal || n == a.NextNode {
		return true
	}
	if ctx.nodes.Locked(n) {
		return false
	}
	return !ctx.nodes.Obstacle(n) || a.CanGoThroughObstacles
}

// spaceTimeAStar finds a timed path for a from its next node to goal that keeps
// clear of every reservation in tables. Moves stop at each node and take the time
// the kinematic model predicts, including turning. The second result reports
// whether goal was reached; otherwise the path ends at the window. A nil path means
// no path was found within the budget.
func (b *Base) spaceTimeAStar(ctx *planContext, a *core.Agent, goal core.NodeID, tables []*reservation.Table, opts searchOptions) (*core.Path, bool) {
	phys := a.PhysicsOrDefault()
	h := b.heuristic(phys, goal)
	start := a.NextNode
	if math.IsInf(h(start), 1) {
		return nil, false
	}
	free := func(loc reservation.Location, from, to float64) bool {
		return freeIn(tables, reservation.Interval{Location: loc, Agent: a.ID, Start: from, End: to})
	}
	restEnd := func(t float64) float64 {
		return math.Max(opts.restUntil, t+b.LengthOfAWaitStep)
	}

	t0 := b.startTime(ctx.now, a)
	if opts.initialWait > 0 {
		if !free(reservation.NodeLocation(start), t0, t0+opts.initialWait) {
			return nil, false
		}
		t0 += opts.initialWait
	}
	horizon := t0 + b.PlanningHorizon
	deadline := b.searchDeadline()

	open := &astarHeap{}
	heap.Init(open)
	root := &astarNode{node: start, t: t0, heading: a.Orientation, f: h(start)}
	heap.Push(open, root)
	closed := make(map[stateKey]bool)

	for expansions := 0; open.Len() > 0; expansions++ {
		cur := heap.Pop(open).(*astarNode)
		key := keyOf(cur)
		if closed[key] {
			continue
		}
		closed[key] = true

		here := reservation.NodeLocation(cur.node)
		if cur.node == goal && free(here, cur.t, restEnd(cur.t)) {
			return reconstructPath(cur, opts.initialWait), true
		}
		if cur.t >= opts.windowEnd && free(here, cur.t, restEnd(cur.t)) {
			return reconstructPath(cur, opts.initialWait), false
		}
		if expansions >= b.MaxExpansions {
			b.Comm.verbose("agent %d: search budget of %d expansions used up", a.ID, b.MaxExpansions)
			break
		}
		if expansions%64 == 63 && !deadline.IsZero() && time.Now().After(deadline) {
			b.Comm.verbose("agent %d: search deadline reached", a.ID)
			break
		}
		if cur.t > horizon {
			continue
		}

		if opts.allowWaits {
			w := b.LengthOfAWaitStep
			if free(here, cur.t, cur.t+w) {
				heap.Push(open, &astarNode{
					node:    cur.node,
					t:       cur.t + w,
					heading: cur.heading,
					g:       cur.g + w,
					f:       cur.g + w + h(cur.node),
					wait:    w,
					parent:  cur,
				})
			}
		}

		for _, e := range b.Graph.Edges[cur.node] {
			if e.To == cur.node || !b.passable(ctx, a, e.To, goal) {
				continue
			}
			hn := h(e.To)
			if math.IsInf(hn, 1) {
				continue
			}
			heading := bearing(b.Graph, cur.node, e.To)
			td := cur.t + phys.TimeNeededToTurn(cur.heading, heading)
			drive, _ := phys.TimeNeededToMove(0, e.Distance)
			t1 := td + drive
			if !free(here, cur.t, t1) || !free(reservation.NodeLocation(e.To), td, t1) {
				continue
			}
			if b.EdgeMode != reservation.EdgesOff && !free(reservation.EdgeLocation(cur.node, e.To, b.EdgeMode), td, t1) {
				continue
			}

			step := t1 - cur.t
			if opts.bias[e.To] {
				step *= biasFactor
			}
			if b.Graph.Infos[e.To].IsQueue && !a.Queueing && e.To != goal {
				step += queuePenalty
			}
			if opts.edgePenalty != nil {
				step += opts.edgePenalty(cur.node, e.To)
			}
			heap.Push(open, &astarNode{
				node:    e.To,
				t:       t1,
				heading: heading,
				g:       cur.g + step,
				f:       cur.g + step + hn,
				parent:  cur,
			})
		}
	}
	return nil, false
}

// reconstructPath walks back from the final state. Waits extend the stop of the
// action they happen at.
func reconstructPath(node *astarNode, initialWait float64) *core.Path {
	var chain []*astarNode
	for n := node; n != nil; n = n.parent {
		chain = append(chain, n)
	}
	path := core.NewPath()
	for i := len(chain) - 1; i >= 0; i-- {
		n := chain[i]
		switch {
		case n.parent == nil:
			path.AddLast(core.Action{Node: n.node, StopAtNode: true, WaitTimeAfterStop: initialWait})
		case n.wait > 0:
			last := path.Last()
			last.WaitTimeAfterStop += n.wait
			path.Set(path.Len()-1, last)
		default:
			path.AddLast(core.Action{Node: n.node, StopAtNode: true})
		}
	}
	return path
}
