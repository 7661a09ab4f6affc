package algo

import (
	"math"
	"sort"

	"github.com/elektrokombinacija/mapf-fleet/internal/core"
	"github.com/elektrokombinacija/mapf-fleet/internal/reservation"
)

// Conflict is an overlap of two agents' reservations.
type Conflict struct {
	Agent1, Agent2 core.AgentID // Agent2 was replayed first
	Location       reservation.Location
	Start, End     float64 // the overlapping time range
}

func newConflict(iv, other reservation.Interval) Conflict {
	return Conflict{
		Agent1:   iv.Agent,
		Agent2:   other.Agent,
		Location: iv.Location,
		Start:    math.Max(iv.Start, other.Start),
		End:      math.Min(iv.End, other.End),
	}
}

// replayConflicts adds the reservations of each agent in turn to an empty table and
// collects every overlap with an agent added before. With stopAtFirst it returns
// after the first one.
func replayConflicts(order []core.AgentID, intervals map[core.AgentID][]reservation.Interval, stopAtFirst bool) []Conflict {
	table := reservation.NewTable()
	var conflicts []Conflict
	for _, id := range order {
		for _, iv := range intervals[id] {
			iv.Agent = id
			for _, other := range table.Conflicts(iv) {
				conflicts = append(conflicts, newConflict(iv, other))
				if stopAtFirst {
					return conflicts
				}
			}
		}
		table.AddAll(intervals[id], id)
	}
	return conflicts
}

// earliestConflict returns the conflict among plans that starts first, or nil.
func earliestConflict(plans map[core.AgentID]*plan) *Conflict {
	conflicts := replayConflicts(sortedAgentIDs(plans), planIntervalMap(plans), false)
	if len(conflicts) == 0 {
		return nil
	}
	best := conflicts[0]
	for _, c := range conflicts[1:] {
		if c.Start < best.Start {
			best = c
		}
	}
	return &best
}

// countConflicts counts the overlapping reservation pairs among plans.
func countConflicts(plans map[core.AgentID]*plan) int {
	return len(replayConflicts(sortedAgentIDs(plans), planIntervalMap(plans), false))
}

// FindConflicts checks the current paths of agents against each other, holding each
// final node indefinitely. An empty result means the paths can be executed without
// two agents ever claiming the same place at the same time.
func FindConflicts(g *core.Graph, agents []*core.Agent, now float64, mode reservation.EdgeMode) []Conflict {
	intervals := make(map[core.AgentID][]reservation.Interval, len(agents))
	order := make([]core.AgentID, 0, len(agents))
	for _, a := range agents {
		intervals[a.ID] = PathReservations(g, a, now, mode)
		order = append(order, a.ID)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	return replayConflicts(order, intervals, false)
}

func planIntervalMap(plans map[core.AgentID]*plan) map[core.AgentID][]reservation.Interval {
	m := make(map[core.AgentID][]reservation.Interval, len(plans))
	for id, p := range plans {
		m[id] = p.intervals
	}
	return m
}

// sortedAgentIDs returns the agent IDs of plans in ascending order.
func sortedAgentIDs(plans map[core.AgentID]*plan) []core.AgentID {
	ids := make([]core.AgentID, 0, len(plans))
	for id := range plans {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
