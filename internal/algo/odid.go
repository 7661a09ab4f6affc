package algo

import (
	"github.com/elektrokombinacija/mapf-fleet/internal/core"
)

// ODID combines independence detection with an operator-decomposition group search.
type ODID struct {
	*Base
	LengthOfAWindow      float64 // seconds; 0 plans complete paths
	MaxNodeCountPerAgent int
	// UseFinalReservations holds every final node indefinitely instead of only until
	// the end of the window.
	UseFinalReservations bool

	id *IndependenceDetection
}

// NewODID creates an ODID strategy.
func NewODID(g *core.Graph, opts Options, comm *Communicator) *ODID {
	o := &ODID{
		Base:                 NewBase(g, opts, comm),
		LengthOfAWindow:      0,
		MaxNodeCountPerAgent: 1000,
		UseFinalReservations: true,
	}
	o.id = &IndependenceDetection{base: o.Base}
	return o
}

func (o *ODID) Name() string { return "ODID" }

// Stats returns the number of merges and the final groups of the last call.
func (o *ODID) Stats() (int, [][]core.AgentID) {
	return o.id.Merges, o.id.Groups
}

// FindPaths runs independence detection over all movable agents.
func (o *ODID) FindPaths(currentTime float64, agents []*core.Agent) {
	ctx := o.begin(currentTime, agents)
	opts := windowed(ctx.now, o.LengthOfAWindow)
	if !o.UseFinalReservations {
		opts.restUntil = opts.windowEnd
	}
	o.id.plan = func(ctx *planContext, group []*core.Agent) map[core.AgentID]*plan {
		return o.planGroup(ctx, group, opts)
	}

	plans := o.id.run(ctx, plannable(agents))
	var order []core.AgentID
	for _, group := range o.id.Groups {
		order = append(order, group...)
	}
	table := o.settle(ctx, plans, order, opts)
	o.finalize(ctx, plans, table, alwaysHandle)
}

// planGroup uses the single-agent search for singletons and operator decomposition
// for larger groups, falling back to prioritized planning inside the group.
func (o *ODID) planGroup(ctx *planContext, group []*core.Agent, opts searchOptions) map[core.AgentID]*plan {
	if len(group) > 1 && !o.outOfTime() {
		if plans := o.odSearch(ctx, group, ctx.static, opts, o.MaxNodeCountPerAgent*len(group)); plans != nil {
			return plans
		}
		o.Comm.verbose("group of %d: joint search failed, planning by priority", len(group))
	}
	plans, _ := o.planPrioritized(ctx, group, ctx.static.Clone(), opts)
	return plans
}
