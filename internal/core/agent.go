package core

import "github.com/elektrokombinacija/mapf-fleet/internal/physics"

// Agent is a simulated robot. The host overwrites its state every tick and reads
// Path back after planning.
type Agent struct {
	ID AgentID

	NextNode     NodeID  // node the agent is at or driving to
	PreviousNode NodeID  // node being left while driving to NextNode, NoNode when standing
	ArrivalTime  float64 // when NextNode is reached
	Orientation  float64 // heading at NextNode, radians

	DestinationNode      NodeID
	FinalDestinationNode NodeID // differs from DestinationNode while routed through a queue

	FixedPosition         bool // never moves; other agents plan around it
	Resting               bool
	CanGoThroughObstacles bool
	Queueing              bool

	Physics *physics.Physics
	Path    *Path

	RequestReoptimization bool
}

// NewAgent creates an agent standing at start with the default physics.
func NewAgent(id AgentID, start NodeID) *Agent {
	return &Agent{
		ID:                   id,
		NextNode:             start,
		PreviousNode:         NoNode,
		DestinationNode:      start,
		FinalDestinationNode: start,
		Physics:              physics.Default(),
		Path:                 StayPath(start),
	}
}

// AtDestination reports whether the agent is at (or driving to) its destination.
func (a *Agent) AtDestination() bool {
	return a.NextNode == a.DestinationNode
}

// SetDestination routes the agent to n.
func (a *Agent) SetDestination(n NodeID) {
	a.DestinationNode = n
	a.FinalDestinationNode = n
	a.Resting = false
	a.RequestReoptimization = true
}

// Driving reports whether the agent is still on the edge towards NextNode at time now.
func (a *Agent) Driving(now float64) bool {
	return a.PreviousNode != NoNode && a.ArrivalTime > now
}

// PhysicsOrDefault never returns nil.
func (a *Agent) PhysicsOrDefault() *physics.Physics {
	if a.Physics == nil {
		return physics.Default()
	}
	return a.Physics
}
