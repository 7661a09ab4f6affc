package core

import "math"

// Action is one step of a path: drive to Node, optionally stop there and wait.
type Action struct {
	Node              NodeID
	StopAtNode        bool
	WaitTimeAfterStop float64 // seconds
}

// Path is a double-ended queue of actions backed by a ring buffer. The first action
// is the node the agent is currently at or heading to.
type Path struct {
	buf  []Action
	head int
	n    int
}

// NewPath creates a path holding the given actions.
func NewPath(actions ...Action) *Path {
	p := &Path{}
	for _, a := range actions {
		p.AddLast(a)
	}
	return p
}

// StayPath is the single-action path that keeps an agent at n.
func StayPath(n NodeID) *Path {
	return NewPath(Action{Node: n, StopAtNode: true})
}

// Len returns the number of actions.
func (p *Path) Len() int {
	if p == nil {
		return 0
	}
	return p.n
}

// At returns the i-th action.
func (p *Path) At(i int) Action {
	if i < 0 || i >= p.n {
		panic("core: path index out of range")
	}
	return p.buf[(p.head+i)%len(p.buf)]
}

// Set replaces the i-th action.
func (p *Path) Set(i int, a Action) {
	if i < 0 || i >= p.n {
		panic("core: path index out of range")
	}
	p.buf[(p.head+i)%len(p.buf)] = a
}

// First returns the first action.
func (p *Path) First() Action { return p.At(0) }

// Last returns the last action.
func (p *Path) Last() Action { return p.At(p.n - 1) }

func (p *Path) grow() {
	size := len(p.buf) * 2
	if size == 0 {
		size = 4
	}
	buf := make([]Action, size)
	for i := 0; i < p.n; i++ {
		buf[i] = p.buf[(p.head+i)%len(p.buf)]
	}
	p.buf = buf
	p.head = 0
}

// AddLast appends an action.
func (p *Path) AddLast(a Action) {
	if p.n == len(p.buf) {
		p.grow()
	}
	p.buf[(p.head+p.n)%len(p.buf)] = a
	p.n++
}

// AddFirst prepends an action.
func (p *Path) AddFirst(a Action) {
	if p.n == len(p.buf) {
		p.grow()
	}
	p.head = (p.head - 1 + len(p.buf)) % len(p.buf)
	p.buf[p.head] = a
	p.n++
}

// RemoveFirst drops and returns the first action.
func (p *Path) RemoveFirst() Action {
	a := p.At(0)
	p.buf[p.head] = Action{}
	p.head = (p.head + 1) % len(p.buf)
	p.n--
	return a
}

// RemoveLast drops and returns the last action.
func (p *Path) RemoveLast() Action {
	a := p.At(p.n - 1)
	p.n--
	return a
}

// Clone returns an independent copy.
func (p *Path) Clone() *Path {
	c := &Path{}
	for i := 0; i < p.Len(); i++ {
		c.AddLast(p.At(i))
	}
	return c
}

// Nodes lists the nodes of all actions.
func (p *Path) Nodes() []NodeID {
	nodes := make([]NodeID, p.Len())
	for i := range nodes {
		nodes[i] = p.At(i).Node
	}
	return nodes
}

// Contains reports whether the path visits n.
func (p *Path) Contains(n NodeID) bool {
	for i := 0; i < p.Len(); i++ {
		if p.At(i).Node == n {
			return true
		}
	}
	return false
}

// IsConsistent reports whether the path leaves the agent standing: it is empty or
// its last action stops.
func (p *Path) IsConsistent() bool {
	return p.Len() == 0 || p.Last().StopAtNode
}

// NextOrientation returns the heading, in radians, the agent should face after
// stopping at the first action, when a following action exists.
func (p *Path) NextOrientation(g *Graph) (float64, bool) {
	if p.Len() < 2 || !p.First().StopAtNode {
		return 0, false
	}
	from, to := p.At(0).Node, p.At(1).Node
	if from == to {
		return 0, false
	}
	return g.Angle(from, to) * math.Pi / 180, true
}
