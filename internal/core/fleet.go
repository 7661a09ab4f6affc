package core

import "github.com/pkg/errors"

// Fleet is a planning scenario: the facility graph and the agents on it.
type Fleet struct {
	Graph  *Graph
	Agents []*Agent
	Tasks  []*Task
}

// NewFleet creates an empty fleet on g.
func NewFleet(g *Graph) *Fleet {
	return &Fleet{Graph: g}
}

// Validate checks that every agent references existing nodes and that no two agents
// start on the same node.
func (f *Fleet) Validate() error {
	if f.Graph == nil {
		return errors.New("fleet has no graph")
	}
	occupied := make(map[NodeID]AgentID)
	for _, a := range f.Agents {
		if !f.Graph.Valid(a.NextNode) {
			return errors.Errorf("agent %d starts on unknown node %d", a.ID, a.NextNode)
		}
		if !f.Graph.Valid(a.DestinationNode) {
			return errors.Errorf("agent %d heads to unknown node %d", a.ID, a.DestinationNode)
		}
		if other, ok := occupied[a.NextNode]; ok {
			return errors.Errorf("agents %d and %d share start node %d", other, a.ID, a.NextNode)
		}
		occupied[a.NextNode] = a.ID
	}
	for _, t := range f.Tasks {
		if !f.Graph.Valid(t.Node) {
			return errors.Errorf("task %d references unknown node %d", t.ID, t.Node)
		}
	}
	return nil
}

// AgentByID finds an agent by ID.
func (f *Fleet) AgentByID(id AgentID) *Agent {
	for _, a := range f.Agents {
		if a.ID == id {
			return a
		}
	}
	return nil
}
