package algo

import (
	"sort"

	"github.com/elektrokombinacija/mapf-fleet/internal/core"
	"github.com/elektrokombinacija/mapf-fleet/internal/reservation"
)

// idSafetyMargin is the share of the overall budget after which independence
// detection stops merging and accepts the current plans.
const idSafetyMargin = 0.9

// groupPlanner plans the members of one group jointly.
type groupPlanner func(ctx *planContext, group []*core.Agent) map[core.AgentID]*plan

// agentGroup is a set of agents planned together. Its id is the smallest member ID.
type agentGroup struct {
	id     core.AgentID
	agents []*core.Agent
	plans  map[core.AgentID]*plan
}

// IndependenceDetection plans agents in independent groups and merges two groups
// whenever their plans conflict.
type IndependenceDetection struct {
	base *Base
	plan groupPlanner

	// Statistics of the last run.
	Merges int
	Groups [][]core.AgentID
}

// run starts from singleton groups, plans each, and then repeatedly replays the
// group plans in order through a shared table. The first overlap between two groups
// merges them and the merged group is replanned. It stops when no conflict is left,
// when a single group remains or when the safety margin of the budget is reached.
func (id *IndependenceDetection) run(ctx *planContext, agents []*core.Agent) map[core.AgentID]*plan {
	id.Merges = 0
	groups := make([]*agentGroup, 0, len(agents))
	for _, a := range byID(agents) {
		groups = append(groups, &agentGroup{id: a.ID, agents: []*core.Agent{a}})
	}
	for _, g := range groups {
		g.plans = id.plan(ctx, g.agents)
	}

	for len(groups) > 1 {
		if id.base.outOfTimeFraction(idSafetyMargin) {
			id.base.Comm.info("independence detection stopped with %d groups after %d merges", len(groups), id.Merges)
			break
		}
		i, j, ok := firstGroupConflict(groups)
		if !ok {
			break
		}
		merged := mergeGroups(groups[i], groups[j])
		id.base.Comm.verbose("merging groups %d and %d", groups[i].id, groups[j].id)
		groups[i] = merged
		groups = append(groups[:j], groups[j+1:]...)
		id.Merges++
		merged.plans = id.plan(ctx, merged.agents)
	}

	id.Groups = id.Groups[:0]
	plans := make(map[core.AgentID]*plan, len(agents))
	for _, g := range groups {
		members := make([]core.AgentID, 0, len(g.agents))
		for _, a := range g.agents {
			members = append(members, a.ID)
			plans[a.ID] = g.plans[a.ID]
		}
		id.Groups = append(id.Groups, members)
	}
	return plans
}

// firstGroupConflict replays the plans of all groups in order and returns the
// indices i < j of the first two groups whose reservations overlap.
func firstGroupConflict(groups []*agentGroup) (int, int, bool) {
	shared := reservation.NewTable()
	owner := make(map[core.AgentID]int)
	for gi, g := range groups {
		for _, a := range g.agents {
			p := g.plans[a.ID]
			for _, iv := range p.intervals {
				for _, other := range shared.Conflicts(iv) {
					if og, ok := owner[other.Agent]; ok && og != gi {
						return og, gi, true
					}
				}
			}
			shared.AddAll(p.intervals, a.ID)
			owner[a.ID] = gi
		}
	}
	return 0, 0, false
}

// mergeGroups unites two groups; the result is identified by the smaller id.
func mergeGroups(a, b *agentGroup) *agentGroup {
	agents := append(append([]*core.Agent(nil), a.agents...), b.agents...)
	sort.Slice(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })
	id := a.id
	if b.id < id {
		id = b.id
	}
	return &agentGroup{id: id, agents: agents}
}
