package algo

import (
	"math"

	"github.com/elektrokombinacija/mapf-fleet/internal/core"
	"github.com/elektrokombinacija/mapf-fleet/internal/physics"
	"github.com/elektrokombinacija/mapf-fleet/internal/reservation"
)

// timedStep is one action of a path with the times its node is reached and left.
type timedStep struct {
	node   core.NodeID
	arrive float64
	leave  float64
}

// edgeDistance is the length of u -> v, falling back to the straight line.
func edgeDistance(g *core.Graph, u, v core.NodeID) float64 {
	if e, ok := g.Edge(u, v); ok {
		return e.Distance
	}
	return g.Distance(u, v)
}

// bearing is the heading, in radians, from u to v.
func bearing(g *core.Graph, u, v core.NodeID) float64 {
	return physics.DegreesToRadians(g.Angle(u, v))
}

// timeline replays path with the agent's kinematics, starting at its first node at
// time start with the given heading. At every stop the agent waits, then turns, then
// drives; runs of non-stopping actions are driven in one motion.
func timeline(g *core.Graph, phys *physics.Physics, path *core.Path, start, heading float64) ([]timedStep, float64) {
	n := path.Len()
	steps := make([]timedStep, n)
	if n == 0 {
		return steps, heading
	}
	steps[0] = timedStep{node: path.At(0).Node, arrive: start}
	for i := 0; i < n-1; {
		cur, next := path.At(i), path.At(i+1)
		t := steps[i].arrive + cur.WaitTimeAfterStop
		if next.Node == cur.Node {
			steps[i].leave = t
			steps[i+1] = timedStep{node: next.Node, arrive: t}
			i++
			continue
		}
		t += phys.TimeNeededToTurn(heading, bearing(g, cur.Node, next.Node))
		steps[i].leave = t

		end := i + 1
		for end < n-1 && !path.At(end).StopAtNode {
			end++
		}
		var checkpoints []float64
		dist := 0.0
		prev := cur.Node
		for k := i + 1; k <= end; k++ {
			node := path.At(k).Node
			if node != prev {
				dist += edgeDistance(g, prev, node)
				heading = bearing(g, prev, node)
			}
			if k < end {
				checkpoints = append(checkpoints, dist)
			}
			prev = node
		}
		total, times := phys.TimeNeededToMoveCheckpoints(0, dist, checkpoints)
		for k := i + 1; k < end; k++ {
			at := t + times[k-i-1]
			steps[k] = timedStep{node: path.At(k).Node, arrive: at, leave: at}
		}
		steps[end] = timedStep{node: path.At(end).Node, arrive: t + total}
		i = end
	}
	last := &steps[n-1]
	last.leave = last.arrive + path.At(n-1).WaitTimeAfterStop
	return steps, heading
}

// pathIntervals turns a timeline into reservations. A node is held from the moment
// the agent starts driving towards it until it has arrived at the following node;
// the last node is held until restUntil. The node being left while driving is held
// until arrival.
func pathIntervals(a *core.Agent, steps []timedStep, now, restUntil float64, mode reservation.EdgeMode) []reservation.Interval {
	var ivs []reservation.Interval
	if a.Driving(now) {
		ivs = append(ivs, reservation.Interval{
			Location: reservation.NodeLocation(a.PreviousNode),
			Agent:    a.ID,
			Start:    now,
			End:      a.ArrivalTime,
		})
	}
	lastNode := -1
	for j, s := range steps {
		start := now
		if j > 0 {
			start = steps[j-1].leave
		}
		end := math.Max(s.leave, restUntil)
		if j < len(steps)-1 {
			end = steps[j+1].arrive
		}
		loc := reservation.NodeLocation(s.node)
		if lastNode >= 0 && ivs[lastNode].Location == loc && ivs[lastNode].End >= start-reservation.Tolerance {
			ivs[lastNode].End = math.Max(ivs[lastNode].End, end)
		} else {
			ivs = append(ivs, reservation.Interval{Location: loc, Agent: a.ID, Start: start, End: end})
			lastNode = len(ivs) - 1
		}
		if mode != reservation.EdgesOff && j < len(steps)-1 && steps[j+1].node != s.node {
			ivs = append(ivs, reservation.Interval{
				Location: reservation.EdgeLocation(s.node, steps[j+1].node, mode),
				Agent:    a.ID,
				Start:    s.leave,
				End:      steps[j+1].arrive,
			})
		}
	}
	return ivs
}

// PathReservations returns what the agent's current path claims when executed from
// now, holding the final node indefinitely.
func PathReservations(g *core.Graph, a *core.Agent, now float64, mode reservation.EdgeMode) []reservation.Interval {
	if a.Path.Len() == 0 {
		return []reservation.Interval{{
			Location: reservation.NodeLocation(a.NextNode),
			Agent:    a.ID,
			Start:    now,
			End:      math.Inf(1),
		}}
	}
	steps, _ := timeline(g, a.PhysicsOrDefault(), a.Path, math.Max(now, a.ArrivalTime), a.Orientation)
	return pathIntervals(a, steps, now, math.Inf(1), mode)
}
