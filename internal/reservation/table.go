// Package reservation tracks which agent owns which location of the graph during
// which time interval.
package reservation

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/elektrokombinacija/mapf-fleet/internal/core"
)

// Tolerance is the overlap, in seconds, below which two intervals are considered
// touching rather than overlapping.
const Tolerance = 1e-6

// LocationKind distinguishes node from edge reservations.
type LocationKind int

const (
	KindNode LocationKind = iota
	KindEdge
)

// Location is a reservable part of the graph. Nodes use From == To.
type Location struct {
	Kind     LocationKind
	From, To core.NodeID
}

// NodeLocation is the location of node n.
func NodeLocation(n core.NodeID) Location {
	return Location{Kind: KindNode, From: n, To: n}
}

// EdgeLocation is the location of the edge from -> to under mode. Undirected edges
// are keyed by their smaller endpoint first so that opposite traversals collide.
func EdgeLocation(from, to core.NodeID, mode EdgeMode) Location {
	if mode == EdgesUndirected && to < from {
		from, to = to, from
	}
	return Location{Kind: KindEdge, From: from, To: to}
}

func (l Location) String() string {
	if l.Kind == KindNode {
		return fmt.Sprintf("node %d", l.From)
	}
	return fmt.Sprintf("edge %d-%d", l.From, l.To)
}

// EdgeMode selects how edges are reserved.
type EdgeMode int

const (
	EdgesOff        EdgeMode = iota // node reservations only
	EdgesDirected                   // nodes plus directed edges
	EdgesUndirected                 // nodes plus edges shared by both directions (swap checks)
)

// ParseEdgeMode maps a configuration name to an EdgeMode.
func ParseEdgeMode(s string) (EdgeMode, error) {
	switch s {
	case "", "off", "nodes":
		return EdgesOff, nil
	case "directed":
		return EdgesDirected, nil
	case "undirected", "swap":
		return EdgesUndirected, nil
	default:
		return EdgesOff, errors.Errorf("unknown edge reservation mode %q", s)
	}
}

// Interval is a half-open time range [Start, End) during which Agent owns Location.
type Interval struct {
	Location Location
	Agent    core.AgentID
	Start    float64
	End      float64
}

// Overlaps reports whether both intervals claim the same location at the same time.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Location == other.Location &&
		iv.Start < other.End-Tolerance &&
		other.Start < iv.End-Tolerance
}

// Table holds all reservations of one planning pass. It is not safe for concurrent
// use.
type Table struct {
	byLocation map[Location][]Interval // sorted by Start
	count      int
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{byLocation: make(map[Location][]Interval)}
}

// Add reserves iv for agent.
func (t *Table) Add(iv Interval, agent core.AgentID) {
	iv.Agent = agent
	list := t.byLocation[iv.Location]
	i := sort.Search(len(list), func(i int) bool { return list[i].Start > iv.Start })
	list = append(list, Interval{})
	copy(list[i+1:], list[i:])
	list[i] = iv
	t.byLocation[iv.Location] = list
	t.count++
}

// AddAll reserves every interval for agent.
func (t *Table) AddAll(ivs []Interval, agent core.AgentID) {
	for _, iv := range ivs {
		t.Add(iv, agent)
	}
}

// Clear drops all reservations.
func (t *Table) Clear() {
	t.byLocation = make(map[Location][]Interval)
	t.count = 0
}

// RemoveAgent drops all reservations of agent.
func (t *Table) RemoveAgent(agent core.AgentID) {
	for loc, list := range t.byLocation {
		kept := list[:0]
		for _, iv := range list {
			if iv.Agent != agent {
				kept = append(kept, iv)
			}
		}
		t.count -= len(list) - len(kept)
		if len(kept) == 0 {
			delete(t.byLocation, loc)
		} else {
			t.byLocation[loc] = kept
		}
	}
}

// Clone returns an independent copy of the table.
func (t *Table) Clone() *Table {
	c := &Table{byLocation: make(map[Location][]Interval, len(t.byLocation)), count: t.count}
	for loc, list := range t.byLocation {
		c.byLocation[loc] = append([]Interval(nil), list...)
	}
	return c
}

// Len returns the number of stored intervals.
func (t *Table) Len() int {
	return t.count
}

// Reservations returns the intervals held at loc, ordered by start time.
func (t *Table) Reservations(loc Location) []Interval {
	return append([]Interval(nil), t.byLocation[loc]...)
}

// Conflicts returns the intervals of other agents that overlap iv.
func (t *Table) Conflicts(iv Interval) []Interval {
	var out []Interval
	t.scan(iv, func(other Interval) bool {
		out = append(out, other)
		return true
	})
	return out
}

// Free reports whether iv overlaps no interval of another agent.
func (t *Table) Free(iv Interval) bool {
	free := true
	t.scan(iv, func(Interval) bool {
		free = false
		return false
	})
	return free
}

// IntersectionFree reports whether none of ivs overlaps an interval of another agent.
// Otherwise it returns the first conflicting reservation, which names the location
// and the owning agent.
func (t *Table) IntersectionFree(ivs []Interval) (bool, Interval) {
	for _, iv := range ivs {
		var hit Interval
		found := false
		t.scan(iv, func(other Interval) bool {
			hit = other
			found = true
			return false
		})
		if found {
			return false, hit
		}
	}
	return true, Interval{}
}

// scan calls fn for every conflicting interval until fn returns false.
func (t *Table) scan(iv Interval, fn func(Interval) bool) {
	if t == nil {
		return
	}
	list := t.byLocation[iv.Location]
	// Intervals starting at or after iv.End cannot overlap.
	upper := sort.Search(len(list), func(i int) bool { return list[i].Start >= iv.End-Tolerance })
	for i := 0; i < upper; i++ {
		other := list[i]
		if other.Agent == iv.Agent {
			continue
		}
		if other.Overlaps(iv) && !fn(other) {
			return
		}
	}
}
