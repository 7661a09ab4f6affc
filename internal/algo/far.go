package algo

import (
	"math"

	"github.com/elektrokombinacija/mapf-fleet/internal/core"
	"github.com/elektrokombinacija/mapf-fleet/internal/reservation"
)

// flowKey is a directed edge of the flow annotation.
type flowKey struct {
	from, to core.NodeID
}

// FAR implements flow-annotated replanning. Agents keep their paths until they ask
// for a new one or their path runs into another agent. New paths follow the
// traffic flow: driving against the planned direction of other agents costs extra.
// An agent that cannot drive off at once brakes for a few wait steps, and failing
// that evades to a free neighbor.
type FAR struct {
	*Base
	MaximumNumberOfBreakingManeuverTries int
	UseDeadlockHandler                   bool
	PreventBackEvading                   bool    // never evade to the node the agent came from
	FlowPenalty                          float64 // seconds per opposing path using an edge

	flow     map[flowKey]int
	cameFrom map[core.AgentID]core.NodeID
}

// NewFAR creates a FAR strategy.
func NewFAR(g *core.Graph, opts Options, comm *Communicator) *FAR {
	return &FAR{
		Base:                                 NewBase(g, opts, comm),
		MaximumNumberOfBreakingManeuverTries: 2,
		UseDeadlockHandler:                   true,
		PreventBackEvading:                   true,
		FlowPenalty:                          2,
		cameFrom:                             make(map[core.AgentID]core.NodeID),
	}
}

func (f *FAR) Name() string { return "FAR" }

// FindPaths keeps valid paths and replans the rest.
func (f *FAR) FindPaths(currentTime float64, agents []*core.Agent) {
	ctx := f.begin(currentTime, agents)
	table := ctx.static.Clone()
	plans := make(map[core.AgentID]*plan)
	f.flow = make(map[flowKey]int)

	var replan []*core.Agent
	var order []core.AgentID
	for _, a := range byID(plannable(agents)) {
		if a.Driving(ctx.now) {
			f.cameFrom[a.ID] = a.PreviousNode
		}
		if f.needsPlan(a) {
			replan = append(replan, a)
			continue
		}
		p := f.newPlan(ctx, a, a.Path, infinity)
		if free, hit := table.IntersectionFree(p.intervals); !free {
			f.Comm.verbose("agent %d: path runs into agent %d at %v, replanning", a.ID, hit.Agent, hit.Location)
			replan = append(replan, a)
			continue
		}
		table.AddAll(p.intervals, a.ID)
		plans[a.ID] = p
		order = append(order, a.ID)
		f.annotate(p.path)
	}

	for _, a := range replan {
		p := f.planAgent(ctx, a, table)
		table.AddAll(p.intervals, a.ID)
		plans[a.ID] = p
		order = append(order, a.ID)
		f.annotate(p.path)
	}
	table = f.settle(ctx, plans, order, f.flowOptions())

	var handle func(*core.Agent) bool
	if f.UseDeadlockHandler {
		handle = alwaysHandle
	}
	f.finalize(ctx, plans, table, handle)
}

// needsPlan reports whether an agent's current path cannot simply be continued.
func (f *FAR) needsPlan(a *core.Agent) bool {
	switch {
	case a.RequestReoptimization:
		return true
	case a.Path.Len() == 0 || a.Path.First().Node != a.NextNode || !a.Path.IsConsistent():
		return true
	case a.Path.Len() == 1:
		return a.NextNode != f.goalFor(a)
	default:
		return a.Path.Last().Node != f.goalFor(a)
	}
}

// planAgent tries the shortest flow-following path, then braking, then evasion.
func (f *FAR) planAgent(ctx *planContext, a *core.Agent, table *reservation.Table) *plan {
	goal := f.goalFor(a)
	tables := []*reservation.Table{table}
	opts := f.flowOptions()
	opts.allowWaits = false

	if !f.outOfTime() {
		for try := 0; try <= f.MaximumNumberOfBreakingManeuverTries; try++ {
			if try > 0 {
				opts.initialWait = f.brakingWait(ctx, a, goal, table, try)
			}
			if path, _ := f.spaceTimeAStar(ctx, a, goal, tables, opts); path != nil {
				if try > 0 {
					f.Comm.verbose("agent %d: braking for %.1fs", a.ID, opts.initialWait)
				}
				return f.newPlan(ctx, a, path, opts.restUntil)
			}
		}
	}
	if p := f.evade(ctx, a, table); p != nil {
		return p
	}
	return f.stayPlan(ctx, a)
}

func (f *FAR) flowOptions() searchOptions {
	opts := unwindowed()
	opts.edgePenalty = f.penalty
	return opts
}

// brakingWait is how long the agent stands before braking try number try. Besides
// the wait steps it covers the first node on the straight route to goal that
// another agent still holds when the agent would claim it. The agent claims a node
// when it leaves the one before, driving no faster than it can stop within the
// distance covered.
func (f *FAR) brakingWait(ctx *planContext, a *core.Agent, goal core.NodeID, table *reservation.Table, try int) float64 {
	wait := float64(try) * f.LengthOfAWaitStep
	route, ok := f.Graph.IntermediateNodes(a.NextNode, goal)
	if !ok {
		return wait
	}
	phys := a.PhysicsOrDefault()
	depart := f.startTime(ctx.now, a) + wait
	prev, prevDist, dist := a.NextNode, 0.0, 0.0
	for _, n := range route {
		dist += f.Graph.Distance(prev, n)
		claim := depart
		if prevDist > 0 {
			v := phys.MaxSpeedToBreakWithinDistance(dist)
			if v <= 0 {
				return wait
			}
			claim += prevDist / v
		}
		if until := f.heldUntil(table, a.ID, n, claim); until > claim {
			return wait + until - claim
		}
		prev, prevDist = n, dist
	}
	return wait
}

// heldUntil follows the reservations of other agents at n that cover t and returns
// when the last of them ends. It returns t when n is free at t or held forever.
func (f *FAR) heldUntil(table *reservation.Table, self core.AgentID, n core.NodeID, t float64) float64 {
	until := t
	for changed := true; changed; {
		changed = false
		for _, iv := range table.Reservations(reservation.NodeLocation(n)) {
			if iv.Agent == self || iv.Start > until || iv.End <= until {
				continue
			}
			if math.IsInf(iv.End, 1) {
				return t
			}
			until, changed = iv.End, true
		}
	}
	return until
}

// evade moves the agent one node aside, preferring neighbors against which no flow
// runs. With PreventBackEvading the node it came from is excluded.
func (f *FAR) evade(ctx *planContext, a *core.Agent, table *reservation.Table) *plan {
	if a.AtDestination() {
		return nil
	}
	var best *plan
	bestFlow := 0
	for _, e := range f.Graph.Edges[a.NextNode] {
		n := e.To
		if n == a.NextNode || !f.passable(ctx, a, n, core.NoNode) {
			continue
		}
		if prev, ok := f.cameFrom[a.ID]; ok && f.PreventBackEvading && prev == n {
			continue
		}
		path := core.NewPath(
			core.Action{Node: a.NextNode, StopAtNode: true},
			core.Action{Node: n, StopAtNode: true},
		)
		p := f.newPlan(ctx, a, path, infinity)
		if free, _ := table.IntersectionFree(p.intervals); !free {
			continue
		}
		flow := f.flow[flowKey{from: n, to: a.NextNode}]
		if best == nil || flow < bestFlow {
			best, bestFlow = p, flow
		}
	}
	if best != nil {
		f.Comm.verbose("agent %d: evading to node %d", a.ID, best.path.Last().Node)
		f.cameFrom[a.ID] = a.NextNode
	}
	return best
}

// annotate records the driving direction of every edge on path.
func (f *FAR) annotate(path *core.Path) {
	for i := 0; i+1 < path.Len(); i++ {
		from, to := path.At(i).Node, path.At(i+1).Node
		if from != to {
			f.flow[flowKey{from: from, to: to}]++
		}
	}
}

// penalty charges driving from -> to against the annotated flow.
func (f *FAR) penalty(from, to core.NodeID) float64 {
	return f.FlowPenalty * float64(f.flow[flowKey{from: to, to: from}])
}
