package algo

import "github.com/elektrokombinacija/mapf-fleet/internal/core"

// Dummy does no planning: every agent stays where it is. It serves manual control
// and tests.
type Dummy struct{}

// NewDummy creates a Dummy strategy.
func NewDummy() *Dummy { return &Dummy{} }

func (d *Dummy) Name() string { return "Dummy" }

// FindPaths gives every agent the stay action.
func (d *Dummy) FindPaths(currentTime float64, agents []*core.Agent) {
	for _, a := range agents {
		a.Path = core.StayPath(a.NextNode)
		a.RequestReoptimization = false
	}
}
