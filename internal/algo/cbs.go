package algo

import (
	"container/heap"
	"math"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/elektrokombinacija/mapf-fleet/internal/core"
	"github.com/elektrokombinacija/mapf-fleet/internal/reservation"
)

// constraintOwner owns constraint intervals so they block every real agent.
const constraintOwner core.AgentID = -1

// SearchMethod selects the order in which CBS expands its constraint tree.
type SearchMethod int

const (
	BestFirst SearchMethod = iota
	DepthFirst
	BreadthFirst
)

func (m SearchMethod) String() string {
	switch m {
	case DepthFirst:
		return "depth-first"
	case BreadthFirst:
		return "breadth-first"
	default:
		return "best-first"
	}
}

// ParseSearchMethod reads a method name as used in configuration files.
func ParseSearchMethod(s string) (SearchMethod, error) {
	switch strings.ToLower(strings.ReplaceAll(s, "_", "-")) {
	case "", "best-first", "bestfirst":
		return BestFirst, nil
	case "depth-first", "depthfirst":
		return DepthFirst, nil
	case "breadth-first", "breadthfirst":
		return BreadthFirst, nil
	}
	return BestFirst, errors.Errorf("unknown CBS search method %q", s)
}

// CBS implements Conflict-Based Search on top of the reservation-aware low level.
type CBS struct {
	*Base
	SearchMethod    SearchMethod
	LengthOfAWindow float64 // seconds; 0 plans complete paths
	MaxNodes        int     // constraint tree nodes expanded per call
}

// NewCBS creates a CBS strategy.
func NewCBS(g *core.Graph, opts Options, comm *Communicator) *CBS {
	return &CBS{Base: NewBase(g, opts, comm), SearchMethod: BestFirst, MaxNodes: 500}
}

func (c *CBS) Name() string { return "CBS" }

// constraint forbids an agent from a location during a time range.
type constraint struct {
	agent    core.AgentID
	interval reservation.Interval
}

// cbsNode represents a node in the CBS constraint tree.
type cbsNode struct {
	constraints []constraint
	plans       map[core.AgentID]*plan
	cost        float64
	conflicts   int
	depth       int
	seq         int
	index       int
}

type cbsHeap struct {
	nodes []*cbsNode
	less  func(a, b *cbsNode) bool
}

func (h cbsHeap) Len() int           { return len(h.nodes) }
func (h cbsHeap) Less(i, j int) bool { return h.less(h.nodes[i], h.nodes[j]) }
func (h cbsHeap) Swap(i, j int) {
	h.nodes[i], h.nodes[j] = h.nodes[j], h.nodes[i]
	h.nodes[i].index = i
	h.nodes[j].index = j
}
func (h *cbsHeap) Push(x any) {
	n := x.(*cbsNode)
	n.index = len(h.nodes)
	h.nodes = append(h.nodes, n)
}
func (h *cbsHeap) Pop() any {
	old := h.nodes
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	h.nodes = old[0 : n-1]
	return x
}

// comparator returns the expansion order of m. Ties fall back to fewer conflicts
// and then to creation order.
func (m SearchMethod) comparator() func(a, b *cbsNode) bool {
	tie := func(a, b *cbsNode) bool {
		if a.conflicts != b.conflicts {
			return a.conflicts < b.conflicts
		}
		return a.seq < b.seq
	}
	switch m {
	case DepthFirst:
		return func(a, b *cbsNode) bool {
			if a.depth != b.depth {
				return a.depth > b.depth
			}
			if a.cost != b.cost {
				return a.cost < b.cost
			}
			return tie(a, b)
		}
	case BreadthFirst:
		return func(a, b *cbsNode) bool {
			if a.depth != b.depth {
				return a.depth < b.depth
			}
			if a.cost != b.cost {
				return a.cost < b.cost
			}
			return tie(a, b)
		}
	default:
		return func(a, b *cbsNode) bool {
			if a.cost != b.cost {
				return a.cost < b.cost
			}
			return tie(a, b)
		}
	}
}

// FindPaths implements the CBS algorithm.
func (c *CBS) FindPaths(currentTime float64, agents []*core.Agent) {
	ctx := c.begin(currentTime, agents)
	movable := plannable(agents)
	opts := windowed(ctx.now, c.LengthOfAWindow)

	root := &cbsNode{plans: make(map[core.AgentID]*plan, len(movable))}
	for _, a := range movable {
		p := c.planConstrained(ctx, a, nil, opts)
		if p == nil {
			c.Comm.info("agent %d has no individual path, keeping it in place", a.ID)
			p = c.stayPlan(ctx, a)
		}
		root.plans[a.ID] = p
	}
	c.evaluate(ctx, root)

	best := root
	open := &cbsHeap{less: c.SearchMethod.comparator()}
	heap.Init(open)
	heap.Push(open, root)
	seq := 0
	solved := false

	for expanded := 0; open.Len() > 0; expanded++ {
		if c.outOfTime() || (c.MaxNodes > 0 && expanded >= c.MaxNodes) {
			break
		}
		node := heap.Pop(open).(*cbsNode)
		if node.conflicts < best.conflicts {
			best = node
		}

		conflict := earliestConflict(node.plans)
		if conflict == nil {
			best = node
			solved = true
			break
		}

		// Branch: forbid each of the two agents the conflicting place and time.
		for _, agentID := range []core.AgentID{conflict.Agent1, conflict.Agent2} {
			child := &cbsNode{
				constraints: append(append([]constraint{}, node.constraints...), constraint{
					agent: agentID,
					interval: reservation.Interval{
						Location: conflict.Location,
						Agent:    constraintOwner,
						Start:    conflict.Start,
						End:      conflict.End,
					},
				}),
				plans: make(map[core.AgentID]*plan, len(node.plans)),
				depth: node.depth + 1,
			}
			for id, p := range node.plans {
				child.plans[id] = p
			}

			// Re-plan only the constrained agent.
			a := node.plans[agentID].agent
			p := c.planConstrained(ctx, a, child.constraints, opts)
			if p == nil {
				continue
			}
			child.plans[agentID] = p
			c.evaluate(ctx, child)
			seq++
			child.seq = seq
			heap.Push(open, child)
		}
	}

	plans := best.plans
	var order []core.AgentID
	if !solved {
		c.Comm.info("no conflict-free constraint set found (%d conflicts left), repairing by priority", best.conflicts)
		plans, order = c.repair(ctx, best, movable, ctx.static.Clone(), opts)
	}
	table := c.settle(ctx, plans, order, opts)
	c.finalize(ctx, plans, table, alwaysHandle)
}

// repair turns the best constraint tree node into plans by priority, cheapest
// first, and returns them with that order. With time left the agents are replanned;
// otherwise each keeps its plan from the node when that is still free and stands
// still when not.
func (c *CBS) repair(ctx *planContext, best *cbsNode, movable []*core.Agent, table *reservation.Table, opts searchOptions) (map[core.AgentID]*plan, []core.AgentID) {
	cost := func(a *core.Agent) float64 {
		if p, ok := best.plans[a.ID]; ok {
			return p.cost(ctx.now)
		}
		return math.Inf(1)
	}
	order := byID(movable)
	sort.SliceStable(order, func(i, j int) bool { return cost(order[i]) < cost(order[j]) })

	ids := make([]core.AgentID, len(order))
	for i, a := range order {
		ids[i] = a.ID
	}
	if !c.outOfTime() {
		plans, _ := c.planPrioritized(ctx, order, table, opts)
		return plans, ids
	}
	plans := make(map[core.AgentID]*plan, len(order))
	for _, a := range order {
		p, ok := best.plans[a.ID]
		if !ok {
			p = c.stayPlan(ctx, a)
		} else if free, _ := table.IntersectionFree(p.intervals); !free {
			p = c.stayPlan(ctx, a)
		}
		table.AddAll(p.intervals, a.ID)
		plans[a.ID] = p
	}
	return plans, ids
}

// planConstrained runs the low level for one agent under its constraints.
func (c *CBS) planConstrained(ctx *planContext, a *core.Agent, constraints []constraint, opts searchOptions) *plan {
	own := reservation.NewTable()
	for _, con := range constraints {
		if con.agent == a.ID {
			own.Add(con.interval, constraintOwner)
		}
	}
	path, _ := c.spaceTimeAStar(ctx, a, c.goalFor(a), []*reservation.Table{ctx.static, own}, opts)
	if path == nil {
		return nil
	}
	return c.newPlan(ctx, a, path, opts.restUntil)
}

// evaluate computes the sum of costs and the number of conflicts of node.
func (c *CBS) evaluate(ctx *planContext, node *cbsNode) {
	node.cost = 0
	for _, p := range node.plans {
		node.cost += p.cost(ctx.now)
	}
	node.conflicts = countConflicts(node.plans)
}
