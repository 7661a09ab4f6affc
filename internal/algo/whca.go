package algo

import (
	"github.com/elektrokombinacija/mapf-fleet/internal/core"
)

// WHCA implements Windowed Hierarchical Cooperative A*: agents are planned one by
// one within a bounded window, each reserving its path before the next one plans.
type WHCA struct {
	*Base
	LengthOfAWindow float64 // seconds
	UseBias         bool    // prefer the route planned in the previous call
	// DeadlockAfterFailures is how many calls in a row an agent may stay stuck before
	// the deadlock handler moves it.
	DeadlockAfterFailures int

	failures map[core.AgentID]int
}

// NewWHCA creates a WHCA* strategy.
func NewWHCA(g *core.Graph, opts Options, comm *Communicator) *WHCA {
	return &WHCA{
		Base:                  NewBase(g, opts, comm),
		LengthOfAWindow:       20,
		DeadlockAfterFailures: 3,
		failures:              make(map[core.AgentID]int),
	}
}

func (w *WHCA) Name() string { return "WHCA" }

// FindPaths plans every movable agent, farthest from its goal first.
func (w *WHCA) FindPaths(currentTime float64, agents []*core.Agent) {
	ctx := w.begin(currentTime, agents)
	table := ctx.static.Clone()
	opts := windowed(ctx.now, w.LengthOfAWindow)

	plans := make(map[core.AgentID]*plan)
	var order []core.AgentID
	for _, a := range w.byRemainingDistance(plannable(agents)) {
		order = append(order, a.ID)
		agentOpts := opts
		if w.UseBias && a.Path.Len() > 1 {
			agentOpts.bias = make(map[core.NodeID]bool, a.Path.Len())
			for _, n := range a.Path.Nodes() {
				agentOpts.bias[n] = true
			}
		}
		single, _ := w.planPrioritized(ctx, []*core.Agent{a}, table, agentOpts)
		plans[a.ID] = single[a.ID]
	}
	table = w.settle(ctx, plans, order, opts)

	for id, p := range plans {
		if p.degenerate() {
			w.failures[id]++
		} else {
			delete(w.failures, id)
		}
	}
	w.finalize(ctx, plans, table, func(a *core.Agent) bool {
		if w.failures[a.ID] < w.DeadlockAfterFailures {
			return false
		}
		w.Comm.info("agent %d stuck for %d calls, evading", a.ID, w.failures[a.ID])
		delete(w.failures, a.ID)
		return true
	})
}
