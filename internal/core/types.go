// Package core defines the domain model of the fleet: the navigable graph, agents and
// their paths.
package core

// NodeID is a unique node identifier; nodes are numbered densely from 0.
type NodeID int

// NoNode marks an unset node reference.
const NoNode NodeID = -1

// AgentID is a unique agent identifier.
type AgentID int

// NodeInfo carries the per-node flags of the facility.
type NodeInfo struct {
	ID              NodeID
	IsLocked        bool   // temporarily closed by the host
	IsObstacle      bool   // blocked unless the agent can go through obstacles
	IsQueue         bool   // part of a station queue
	QueueTerminalID NodeID // head of the queue this node belongs to
	Tier            int    // level of the facility
}

// Edge is a directed connection between two nodes.
type Edge struct {
	From, To NodeID
	Distance float64 // metres
	Angle    float64 // degrees in [0,360), 0 = east, clockwise
}

// ElevatorEdge connects nodes of different tiers.
type ElevatorEdge struct {
	Edge
	TravelTime float64 // seconds
	Elevator   string  // opaque reference owned by the host
}
