package core

import "sort"

// Tiers returns the distinct tiers of the graph in ascending order.
func (g *Graph) Tiers() []int {
	seen := make(map[int]bool)
	var tiers []int
	for _, info := range g.Infos {
		if !seen[info.Tier] {
			seen[info.Tier] = true
			tiers = append(tiers, info.Tier)
		}
	}
	sort.Ints(tiers)
	return tiers
}

// TierOf returns the tier of n.
func (g *Graph) TierOf(n NodeID) int {
	return g.Infos[n].Tier
}

// SameTier reports whether both nodes are on one tier.
func (g *Graph) SameTier(a, b NodeID) bool {
	return g.Infos[a].Tier == g.Infos[b].Tier
}

// NodesOnTier lists the nodes of a tier.
func (g *Graph) NodesOnTier(tier int) []NodeID {
	var nodes []NodeID
	for _, info := range g.Infos {
		if info.Tier == tier {
			nodes = append(nodes, info.ID)
		}
	}
	return nodes
}

// ElevatorEdges returns all elevator edges ordered by source node.
func (g *Graph) ElevatorEdges() []ElevatorEdge {
	sources := make([]NodeID, 0, len(g.Elevators))
	for n := range g.Elevators {
		sources = append(sources, n)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })

	var edges []ElevatorEdge
	for _, n := range sources {
		edges = append(edges, g.Elevators[n]...)
	}
	return edges
}

// ElevatorEdge returns the elevator edge from -> to.
func (g *Graph) ElevatorEdge(from, to NodeID) (ElevatorEdge, bool) {
	for _, e := range g.Elevators[from] {
		if e.To == to {
			return e, true
		}
	}
	return ElevatorEdge{}, false
}

// ElevatorEntries returns the elevator entry nodes on a tier.
func (g *Graph) ElevatorEntries(tier int) []NodeID {
	var entries []NodeID
	for _, e := range g.ElevatorEdges() {
		if g.TierOf(e.From) == tier {
			entries = append(entries, e.From)
		}
	}
	return entries
}
