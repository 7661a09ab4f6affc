package algo

import (
	"sort"

	"github.com/elektrokombinacija/mapf-fleet/internal/core"
)

// PAS implements priority/window-based search. Agents carry a priority level that
// rises each time they fail to find a path and drops back once they succeed, so
// that agents blocked by others get planned earlier over time.
type PAS struct {
	*Base
	LengthOfAWindow float64 // seconds
	MaxPriorities   int     // highest priority level and replanning rounds per call

	priorities map[core.AgentID]int
}

// NewPAS creates a PAS strategy.
func NewPAS(g *core.Graph, opts Options, comm *Communicator) *PAS {
	return &PAS{
		Base:            NewBase(g, opts, comm),
		LengthOfAWindow: 20,
		MaxPriorities:   3,
		priorities:      make(map[core.AgentID]int),
	}
}

func (p *PAS) Name() string { return "PAS" }

// Priority returns the current priority level of an agent.
func (p *PAS) Priority(id core.AgentID) int {
	return p.priorities[id]
}

// FindPaths plans in priority order. Failed agents are promoted and the round is
// repeated, up to MaxPriorities rounds; the round with the fewest failures wins.
func (p *PAS) FindPaths(currentTime float64, agents []*core.Agent) {
	ctx := p.begin(currentTime, agents)
	movable := plannable(agents)
	opts := windowed(ctx.now, p.LengthOfAWindow)

	rounds := p.MaxPriorities
	if rounds < 1 {
		rounds = 1
	}
	var bestPlans map[core.AgentID]*plan
	var bestOrder, bestFailed []core.AgentID
	for round := 0; round < rounds; round++ {
		order := p.order(movable)
		plans, failed := p.planPrioritized(ctx, order, ctx.static.Clone(), opts)
		failed = append(failed, p.stuck(plans, failed)...)
		if bestPlans == nil || len(failed) < len(bestFailed) {
			bestPlans, bestFailed = plans, failed
			bestOrder = bestOrder[:0]
			for _, a := range order {
				bestOrder = append(bestOrder, a.ID)
			}
		}
		if len(failed) == 0 || p.outOfTime() {
			break
		}
		p.promote(failed)
		p.Comm.verbose("round %d: %d agents failed, promoting them", round, len(failed))
	}

	failedSet := make(map[core.AgentID]bool, len(bestFailed))
	for _, id := range bestFailed {
		failedSet[id] = true
	}
	for _, a := range movable {
		if !failedSet[a.ID] {
			delete(p.priorities, a.ID)
		}
	}
	table := p.settle(ctx, bestPlans, bestOrder, opts)
	p.finalize(ctx, bestPlans, table, alwaysHandle)
}

// order sorts agents by priority, highest first. Agents of equal priority are
// shuffled with the seeded generator.
func (p *PAS) order(agents []*core.Agent) []*core.Agent {
	order := byID(agents)
	p.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	sort.SliceStable(order, func(i, j int) bool {
		return p.priorities[order[i].ID] > p.priorities[order[j].ID]
	})
	return order
}

// stuck returns the agents that found a path that does not move them.
func (p *PAS) stuck(plans map[core.AgentID]*plan, failed []core.AgentID) []core.AgentID {
	seen := make(map[core.AgentID]bool, len(failed))
	for _, id := range failed {
		seen[id] = true
	}
	var out []core.AgentID
	for _, id := range sortedAgentIDs(plans) {
		if !seen[id] && plans[id].degenerate() {
			out = append(out, id)
		}
	}
	return out
}

func (p *PAS) promote(ids []core.AgentID) {
	for _, id := range ids {
		if p.priorities[id] < p.MaxPriorities {
			p.priorities[id]++
		}
	}
}
