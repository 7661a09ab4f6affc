// Package algo implements the cooperative path-finding strategies of the fleet.
package algo

import (
	"math"
	"math/rand"
	"time"

	"github.com/elektrokombinacija/mapf-fleet/internal/core"
	"github.com/elektrokombinacija/mapf-fleet/internal/reservation"
)

var infinity = math.Inf(1)

// PathFinder is the interface for fleet planning strategies.
type PathFinder interface {
	// FindPaths replans agents at simulation time currentTime and writes the result
	// to each agent's Path. It is not re-entrant.
	FindPaths(currentTime float64, agents []*core.Agent)

	// Name returns the strategy name.
	Name() string
}

// Options are the settings shared by all strategies.
type Options struct {
	Seed                 int64
	LengthOfAWaitStep    float64 // seconds
	RuntimeLimitPerAgent time.Duration
	RuntimeLimitOverall  time.Duration
	PlanningHorizon      float64 // seconds beyond the start the low level keeps searching
	MaxExpansions        int     // low-level node budget per search
	EdgeMode             reservation.EdgeMode
}

// DefaultOptions returns the settings used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Seed:                 0,
		LengthOfAWaitStep:    2,
		RuntimeLimitPerAgent: 100 * time.Millisecond,
		RuntimeLimitOverall:  time.Second,
		PlanningHorizon:      120,
		MaxExpansions:        10000,
		EdgeMode:             reservation.EdgesOff,
	}
}

// Base carries what every strategy shares. Strategies embed it.
type Base struct {
	Graph *core.Graph
	Comm  *Communicator
	Options

	Distances *DistanceTable
	Deadlock  *DeadlockHandler

	elevators *ElevatorSequencer
	rng       *rand.Rand
	watch     stopwatch
	signaled  bool
}

// NewBase prepares the shared state of a strategy on g. A nil comm logs nowhere.
func NewBase(g *core.Graph, opts Options, comm *Communicator) *Base {
	if comm == nil {
		comm = NopCommunicator
	}
	if opts.LengthOfAWaitStep <= 0 {
		opts.LengthOfAWaitStep = DefaultOptions().LengthOfAWaitStep
	}
	if opts.PlanningHorizon <= 0 {
		opts.PlanningHorizon = DefaultOptions().PlanningHorizon
	}
	if opts.MaxExpansions <= 0 {
		opts.MaxExpansions = DefaultOptions().MaxExpansions
	}
	b := &Base{
		Graph:     g,
		Comm:      comm,
		Options:   opts,
		Distances: NewDistanceTable(g),
		rng:       rand.New(rand.NewSource(opts.Seed)),
	}
	b.Deadlock = NewDeadlockHandler(g, b.rng, opts.EdgeMode, comm)
	return b
}

// ElevatorSequencer returns the sequencer of the graph, building it on first use.
// It returns nil when the graph cannot be contracted.
func (b *Base) ElevatorSequencer() *ElevatorSequencer {
	if b.elevators == nil {
		seq, err := NewElevatorSequencer(b.Graph)
		if err != nil {
			b.Comm.severe("elevator sequencing unavailable: %v", err)
			return nil
		}
		b.elevators = seq
	}
	return b.elevators
}

// stopwatch measures the wall-clock budget of one planning call.
type stopwatch struct {
	started time.Time
	limit   time.Duration
}

func startStopwatch(limit time.Duration) stopwatch {
	return stopwatch{started: time.Now(), limit: limit}
}

func (s stopwatch) elapsed() time.Duration {
	return time.Since(s.started)
}

// exceeded reports whether fraction of the budget is used up.
func (s stopwatch) exceeded(fraction float64) bool {
	return s.limit > 0 && s.elapsed() >= time.Duration(float64(s.limit)*fraction)
}

func (s stopwatch) deadline() time.Time {
	if s.limit <= 0 {
		return time.Time{}
	}
	return s.started.Add(s.limit)
}

// planContext is the state of one FindPaths call.
type planContext struct {
	now    float64
	nodes  core.NodeState
	agents []*core.Agent
	static *reservation.Table // fixed agents and committed moves
	holds  map[core.AgentID][]reservation.Interval
}

// begin starts a planning call: it resets the stopwatch, snapshots the node flags
// and reserves what the agents are already committed to.
func (b *Base) begin(now float64, agents []*core.Agent) *planContext {
	b.watch = startStopwatch(b.RuntimeLimitOverall)
	b.signaled = false
	ctx := &planContext{
		now:    now,
		nodes:  b.Graph.Snapshot(),
		agents: agents,
		static: reservation.NewTable(),
		holds:  make(map[core.AgentID][]reservation.Interval, len(agents)),
	}
	for _, a := range agents {
		var holds []reservation.Interval
		if a.FixedPosition {
			holds = append(holds, nodeInterval(a.NextNode, now, infinity))
		} else {
			start := b.startTime(now, a)
			holds = append(holds, nodeInterval(a.NextNode, now, start+b.minLeave(a)))
			if a.Driving(now) {
				holds = append(holds, nodeInterval(a.PreviousNode, now, a.ArrivalTime))
			}
		}
		ctx.static.AddAll(holds, a.ID)
		ctx.holds[a.ID] = holds
	}
	return ctx
}

// outOfTime reports whether the overall budget is used up. The first time it is,
// the host is notified.
func (b *Base) outOfTime() bool {
	return b.outOfTimeFraction(1)
}

func (b *Base) outOfTimeFraction(fraction float64) bool {
	if !b.watch.exceeded(fraction) {
		return false
	}
	if !b.signaled {
		b.signaled = true
		b.Comm.info("runtime limit of %v exceeded after %v", b.RuntimeLimitOverall, b.watch.elapsed())
		b.Comm.timeout()
	}
	return true
}

// searchDeadline is the wall-clock limit of one low-level search.
func (b *Base) searchDeadline() time.Time {
	overall := b.watch.deadline()
	if b.RuntimeLimitPerAgent <= 0 {
		return overall
	}
	perAgent := time.Now().Add(b.RuntimeLimitPerAgent)
	if overall.IsZero() || perAgent.Before(overall) {
		return perAgent
	}
	return overall
}

// startTime is when the agent stands at its next node.
func (b *Base) startTime(now float64, a *core.Agent) float64 {
	return math.Max(now, a.ArrivalTime)
}

// minLeave is the shortest time an agent needs to turn around and clear its next
// node.
func (b *Base) minLeave(a *core.Agent) float64 {
	phys := a.PhysicsOrDefault()
	best := math.Inf(1)
	for _, e := range b.Graph.Edges[a.NextNode] {
		t, _ := phys.TimeNeededToMove(0, e.Distance)
		best = math.Min(best, t)
	}
	if math.IsInf(best, 1) {
		return b.LengthOfAWaitStep
	}
	return best + phys.TurnSpeed/2
}

// goalFor is the node the agent heads to in this call: its destination, or the
// entry of the first elevator when the destination lies on another tier.
func (b *Base) goalFor(a *core.Agent) core.NodeID {
	dest := a.DestinationNode
	if !b.Graph.Valid(dest) {
		return a.NextNode
	}
	if b.Graph.SameTier(a.NextNode, dest) {
		return dest
	}
	sequencer := b.ElevatorSequencer()
	if sequencer == nil {
		return a.NextNode
	}
	seq, ok := sequencer.Find(a.NextNode, dest, a.PhysicsOrDefault())
	if !ok || len(seq.Hops) == 0 {
		b.Comm.info("agent %d: no elevator sequence from node %d to node %d", a.ID, a.NextNode, dest)
		return a.NextNode
	}
	return seq.Hops[0].Entry
}

// plan is the outcome of planning one agent.
type plan struct {
	agent     *core.Agent
	path      *core.Path
	intervals []reservation.Interval
	end       float64 // arrival at the last node
	reached   bool    // the path ends at the goal of this call
}

// cost is the time from now until the agent has arrived.
func (p *plan) cost(now float64) float64 {
	return p.end - now
}

// degenerate reports whether the plan leaves the agent where it is although it has
// somewhere to go.
func (p *plan) degenerate() bool {
	return p.path.Len() <= 1 && !p.reached
}

func (b *Base) newPlan(ctx *planContext, a *core.Agent, path *core.Path, restUntil float64) *plan {
	steps, _ := timeline(b.Graph, a.PhysicsOrDefault(), path, b.startTime(ctx.now, a), a.Orientation)
	return &plan{
		agent:     a,
		path:      path,
		intervals: pathIntervals(a, steps, ctx.now, restUntil, b.EdgeMode),
		end:       steps[len(steps)-1].arrive,
		reached:   path.Last().Node == b.goalFor(a),
	}
}

func (b *Base) stayPlan(ctx *planContext, a *core.Agent) *plan {
	return b.newPlan(ctx, a, core.StayPath(a.NextNode), infinity)
}

// finalize hands the plans to the agents. Agents for which handleDeadlock returns
// true and whose plan is degenerate get a hop from the deadlock handler. table must
// hold the reservations of all plans.
func (b *Base) finalize(ctx *planContext, plans map[core.AgentID]*plan, table *reservation.Table, handleDeadlock func(*core.Agent) bool) {
	for _, a := range ctx.agents {
		if a.FixedPosition {
			if a.Path.Len() == 0 || a.Path.First().Node != a.NextNode || !a.Path.IsConsistent() {
				a.Path = core.StayPath(a.NextNode)
			}
			continue
		}
		p, ok := plans[a.ID]
		if !ok {
			b.Comm.severe("agent %d left without a plan", a.ID)
			p = b.stayPlan(ctx, a)
			table.AddAll(p.intervals, a.ID)
		}
		a.Path = p.path
		a.RequestReoptimization = false
		if handleDeadlock != nil && p.degenerate() && handleDeadlock(a) {
			table.RemoveAgent(a.ID)
			if !b.Deadlock.Handle(ctx, a, table) {
				table.AddAll(p.intervals, a.ID)
			}
		}
	}
}

// plannable returns the agents a strategy may move.
func plannable(agents []*core.Agent) []*core.Agent {
	out := make([]*core.Agent, 0, len(agents))
	for _, a := range agents {
		if !a.FixedPosition {
			out = append(out, a)
		}
	}
	return out
}

func nodeInterval(n core.NodeID, start, end float64) reservation.Interval {
	return reservation.Interval{Location: reservation.NodeLocation(n), Start: start, End: end}
}

func alwaysHandle(*core.Agent) bool { return true }
