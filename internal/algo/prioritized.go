package algo

import (
	"sort"

	"github.com/elektrokombinacija/mapf-fleet/internal/core"
	"github.com/elektrokombinacija/mapf-fleet/internal/reservation"
)

// planPrioritized plans agents one after another in the given order. Each agent
// avoids the reservations already in table, and its own plan is added to table
// before the next agent is planned. Agents without a path keep standing and are
// reported as failed.
func (b *Base) planPrioritized(ctx *planContext, order []*core.Agent, table *reservation.Table, opts searchOptions) (map[core.AgentID]*plan, []core.AgentID) {
	plans := make(map[core.AgentID]*plan, len(order))
	var failed []core.AgentID
	tables := []*reservation.Table{table}

	for _, a := range order {
		var p *plan
		if !b.outOfTime() {
			if path, _ := b.spaceTimeAStar(ctx, a, b.goalFor(a), tables, opts); path != nil {
				p = b.newPlan(ctx, a, path, opts.restUntil)
			}
		}
		if p == nil {
			failed = append(failed, a.ID)
			p = b.stayPlan(ctx, a)
		}
		table.AddAll(p.intervals, a.ID)
		plans[a.ID] = p
	}
	return plans, failed
}

// settle makes plans conflict-free before they are handed out and returns the table
// holding them. Plans that leave their agent in place are committed first and hold
// the node for good. The other plans follow in order; one that overlaps what is
// already committed is searched again around it. An agent left without a path
// stands still, and plans committed through its node are taken back and searched
// again. Agents missing from order follow by ID.
func (b *Base) settle(ctx *planContext, plans map[core.AgentID]*plan, order []core.AgentID, opts searchOptions) *reservation.Table {
	table := ctx.static.Clone()
	seen := make(map[core.AgentID]bool, len(plans))
	var ids []core.AgentID
	for _, id := range append(append([]core.AgentID(nil), order...), sortedAgentIDs(plans)...) {
		if _, ok := plans[id]; ok && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	var queue []core.AgentID
	for _, id := range ids {
		if plans[id].path.Len() <= 1 {
			queue = append(queue, id)
		}
	}
	for _, id := range ids {
		if plans[id].path.Len() > 1 {
			queue = append(queue, id)
		}
	}

	agents := make(map[core.AgentID]*core.Agent, len(plans))
	proposed := make(map[core.AgentID]*plan, len(plans))
	for id, p := range plans {
		agents[id] = p.agent
		proposed[id] = p
	}
	committed := make(map[core.AgentID]bool, len(plans))
	standing := make(map[core.AgentID]bool)

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		a := agents[id]

		p := proposed[id]
		if p != nil && p.path.Len() > 1 {
			if free, hit := table.IntersectionFree(p.intervals); !free {
				b.Comm.verbose("agent %d: plan runs into agent %d at %v, searching again", id, hit.Agent, hit.Location)
				p = nil
			}
		}
		if p == nil && !b.outOfTime() {
			if path, _ := b.spaceTimeAStar(ctx, a, b.goalFor(a), []*reservation.Table{table}, opts); path != nil {
				p = b.newPlan(ctx, a, path, opts.restUntil)
			}
		}
		if p == nil || p.path.Len() <= 1 {
			if p == nil {
				p = b.stayPlan(ctx, a)
			}
			standing[id] = true
			for _, iv := range p.intervals {
				for _, other := range table.Conflicts(iv) {
					if !committed[other.Agent] || standing[other.Agent] {
						continue
					}
					b.Comm.verbose("agent %d stands at %v, replanning agent %d", id, iv.Location, other.Agent)
					table.RemoveAgent(other.Agent)
					table.AddAll(ctx.holds[other.Agent], other.Agent)
					committed[other.Agent] = false
					proposed[other.Agent] = nil
					queue = append(queue, other.Agent)
				}
			}
		}
		table.AddAll(p.intervals, id)
		committed[id] = true
		plans[id] = p
	}
	return table
}

// byRemainingDistance orders agents farthest from their goal first, ties by ID.
func (b *Base) byRemainingDistance(agents []*core.Agent) []*core.Agent {
	dist := make(map[core.AgentID]float64, len(agents))
	for _, a := range agents {
		dist[a.ID] = b.Distances.Distance(a.NextNode, b.goalFor(a))
	}
	order := append([]*core.Agent(nil), agents...)
	sort.SliceStable(order, func(i, j int) bool {
		di, dj := dist[order[i].ID], dist[order[j].ID]
		if di != dj {
			return di > dj
		}
		return order[i].ID < order[j].ID
	})
	return order
}

// byID orders agents by ascending ID.
func byID(agents []*core.Agent) []*core.Agent {
	order := append([]*core.Agent(nil), agents...)
	sort.Slice(order, func(i, j int) bool { return order[i].ID < order[j].ID })
	return order
}
