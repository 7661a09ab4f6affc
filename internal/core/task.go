package core

// TaskID is a unique task identifier.
type TaskID int

// TaskKind classifies what an agent does at a task's node.
type TaskKind int

const (
	TaskStore    TaskKind = iota // bring a pod back to storage
	TaskRetrieve                 // fetch a pod for a station
	TaskRest                     // park out of the way
)

func (k TaskKind) String() string {
	return [...]string{"Store", "Retrieve", "Rest"}[k]
}

// Task sends an agent to a node.
type Task struct {
	ID       TaskID
	Kind     TaskKind
	Node     NodeID
	Duration float64 // handling time at the node, seconds
	Agent    AgentID // assigned agent, -1 when open
}

// NominalDuration returns the default handling time of a task kind.
func NominalDuration(k TaskKind) float64 {
	switch k {
	case TaskStore, TaskRetrieve:
		return 2.0
	default:
		return 0
	}
}

// NewTask creates an unassigned task with nominal duration.
func NewTask(id TaskID, kind TaskKind, node NodeID) *Task {
	return &Task{
		ID:       id,
		Kind:     kind,
		Node:     node,
		Duration: NominalDuration(kind),
		Agent:    -1,
	}
}

// Open reports whether no agent took the task yet.
func (t *Task) Open() bool {
	return t.Agent < 0
}
