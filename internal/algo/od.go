package algo

import (
	"container/heap"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/elektrokombinacija/mapf-fleet/internal/core"
	"github.com/elektrokombinacija/mapf-fleet/internal/physics"
	"github.com/elektrokombinacija/mapf-fleet/internal/reservation"
)

type odOpKind int

const (
	odStart odOpKind = iota
	odWait
	odMove
	odFinish
)

// odOp is the operator one group member applied to reach a state.
type odOp struct {
	member int
	kind   odOpKind
	node   core.NodeID
	wait   float64
}

// odState is a node of the operator-decomposition search. Only one member acts per
// step: the one that is ready first.
type odState struct {
	nodes     []core.NodeID
	times     []float64 // when each member is ready for its next operator
	headings  []float64
	done      []bool
	g, f      float64
	op        odOp
	intervals []reservation.Interval // reserved by op
	parent    *odState
	index     int
}

type odHeap []*odState

func (h odHeap) Len() int { return len(h) }
func (h odHeap) Less(i, j int) bool {
	if h[i].f != h[j].f {
		return h[i].f < h[j].f
	}
	return h[i].g > h[j].g
}
func (h odHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *odHeap) Push(x any) {
	n := x.(*odState)
	n.index = len(*h)
	*h = append(*h, n)
}
func (h *odHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[0 : n-1]
	return x
}

type odMember struct {
	agent *core.Agent
	goal  core.NodeID
	phys  *physics.Physics
	h     func(core.NodeID) float64
	start float64
}

// odSearch plans a group of agents jointly with operator decomposition. Members
// avoid the reservations in static and each other. It returns nil when the node
// budget or the deadline runs out first.
func (b *Base) odSearch(ctx *planContext, group []*core.Agent, static *reservation.Table, opts searchOptions, maxNodes int) map[core.AgentID]*plan {
	members := make([]odMember, len(group))
	root := &odState{
		nodes:    make([]core.NodeID, len(group)),
		times:    make([]float64, len(group)),
		headings: make([]float64, len(group)),
		done:     make([]bool, len(group)),
		op:       odOp{kind: odStart},
	}
	for i, a := range group {
		phys := a.PhysicsOrDefault()
		goal := b.goalFor(a)
		members[i] = odMember{agent: a, goal: goal, phys: phys, h: b.heuristic(phys, goal), start: b.startTime(ctx.now, a)}
		if math.IsInf(members[i].h(a.NextNode), 1) {
			return nil
		}
		root.nodes[i] = a.NextNode
		root.times[i] = members[i].start
		root.headings[i] = a.Orientation
		root.f += members[i].h(a.NextNode)
	}

	free := func(s *odState, iv reservation.Interval) bool {
		if !static.Free(iv) {
			return false
		}
		for x := s; x != nil; x = x.parent {
			for _, other := range x.intervals {
				if other.Agent != iv.Agent && other.Overlaps(iv) {
					return false
				}
			}
		}
		return true
	}
	restEnd := func(t float64) float64 {
		return math.Max(opts.restUntil, t+b.LengthOfAWaitStep)
	}
	deadline := b.searchDeadline()

	open := &odHeap{}
	heap.Init(open)
	heap.Push(open, root)
	closed := make(map[string]bool)

	for expansions := 0; open.Len() > 0; expansions++ {
		if expansions >= maxNodes {
			b.Comm.verbose("group of %d: node budget of %d used up", len(group), maxNodes)
			return nil
		}
		if expansions%64 == 63 && !deadline.IsZero() && time.Now().After(deadline) {
			b.Comm.verbose("group of %d: search deadline reached", len(group))
			return nil
		}
		s := heap.Pop(open).(*odState)
		i := s.nextMember()
		if i < 0 {
			return b.odPlans(ctx, members, s, opts.restUntil)
		}
		key := s.key()
		if closed[key] {
			continue
		}
		closed[key] = true

		m := members[i]
		id := m.agent.ID
		node, t := s.nodes[i], s.times[i]
		here := reservation.NodeLocation(node)

		if node == m.goal || t >= opts.windowEnd {
			iv := reservation.Interval{Location: here, Agent: id, Start: t, End: restEnd(t)}
			if free(s, iv) {
				child := s.child(i, odOp{member: i, kind: odFinish, node: node}, iv)
				child.done[i] = true
				child.f = child.g + child.heuristic(members)
				heap.Push(open, child)
			}
		}
		if t > m.start+b.PlanningHorizon {
			continue
		}

		if opts.allowWaits {
			w := b.LengthOfAWaitStep
			iv := reservation.Interval{Location: here, Agent: id, Start: t, End: t + w}
			if free(s, iv) {
				child := s.child(i, odOp{member: i, kind: odWait, node: node, wait: w}, iv)
				child.times[i] = t + w
				child.g += w
				child.f = child.g + child.heuristic(members)
				heap.Push(open, child)
			}
		}

		for _, e := range b.Graph.Edges[node] {
			if e.To == node || !b.passable(ctx, m.agent, e.To, m.goal) || math.IsInf(m.h(e.To), 1) {
				continue
			}
			heading := bearing(b.Graph, node, e.To)
			td := t + m.phys.TimeNeededToTurn(s.headings[i], heading)
			drive, _ := m.phys.TimeNeededToMove(0, e.Distance)
			t1 := td + drive
			ivs := []reservation.Interval{
				{Location: here, Agent: id, Start: t, End: t1},
				{Location: reservation.NodeLocation(e.To), Agent: id, Start: td, End: t1},
			}
			if b.EdgeMode != reservation.EdgesOff {
				ivs = append(ivs, reservation.Interval{Location: reservation.EdgeLocation(node, e.To, b.EdgeMode), Agent: id, Start: td, End: t1})
			}
			ok := true
			for _, iv := range ivs {
				if !free(s, iv) {
					ok = false
					break
				}
			}
			if !ok {
				continue
			}
			step := t1 - t
			if b.Graph.Infos[e.To].IsQueue && !m.agent.Queueing && e.To != m.goal {
				step += queuePenalty
			}
			child := s.child(i, odOp{member: i, kind: odMove, node: e.To}, ivs...)
			child.nodes[i] = e.To
			child.times[i] = t1
			child.headings[i] = heading
			child.g += step
			child.f = child.g + child.heuristic(members)
			heap.Push(open, child)
		}
	}
	return nil
}

// nextMember is the unfinished member that is ready first, or -1 when all are done.
func (s *odState) nextMember() int {
	best := -1
	for i := range s.nodes {
		if s.done[i] {
			continue
		}
		if best < 0 || s.times[i] < s.times[best] {
			best = i
		}
	}
	return best
}

func (s *odState) child(member int, op odOp, ivs ...reservation.Interval) *odState {
	return &odState{
		nodes:     append([]core.NodeID(nil), s.nodes...),
		times:     append([]float64(nil), s.times...),
		headings:  append([]float64(nil), s.headings...),
		done:      append([]bool(nil), s.done...),
		g:         s.g,
		op:        op,
		intervals: ivs,
		parent:    s,
	}
}

func (s *odState) heuristic(members []odMember) float64 {
	h := 0.0
	for i, m := range members {
		if !s.done[i] {
			h += m.h(s.nodes[i])
		}
	}
	return h
}

func (s *odState) key() string {
	var sb strings.Builder
	for i := range s.nodes {
		sb.WriteString(strconv.Itoa(int(s.nodes[i])))
		sb.WriteByte(':')
		sb.WriteString(strconv.FormatInt(int64(math.Round(s.times[i]*1000)), 10))
		sb.WriteByte(':')
		sb.WriteString(strconv.Itoa(int(math.Round(physics.NormalizeOrientation(s.headings[i]) * 180 / math.Pi))))
		if s.done[i] {
			sb.WriteByte('d')
		}
		sb.WriteByte('|')
	}
	return sb.String()
}

// odPlans turns the operator chain ending in final into one plan per member.
func (b *Base) odPlans(ctx *planContext, members []odMember, final *odState, restUntil float64) map[core.AgentID]*plan {
	var chain []*odState
	for s := final; s.parent != nil; s = s.parent {
		chain = append(chain, s)
	}
	paths := make([]*core.Path, len(members))
	for i, m := range members {
		paths[i] = core.NewPath(core.Action{Node: m.agent.NextNode, StopAtNode: true})
	}
	for k := len(chain) - 1; k >= 0; k-- {
		op := chain[k].op
		path := paths[op.member]
		switch op.kind {
		case odWait:
			last := path.Last()
			last.WaitTimeAfterStop += op.wait
			path.Set(path.Len()-1, last)
		case odMove:
			path.AddLast(core.Action{Node: op.node, StopAtNode: true})
		}
	}
	plans := make(map[core.AgentID]*plan, len(members))
	for i, m := range members {
		plans[m.agent.ID] = b.newPlan(ctx, m.agent, paths[i], restUntil)
	}
	return plans
}
