package sim

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/elektrokombinacija/mapf-fleet/internal/core"
)

// GridLayout describes a rectangular storage floor repeated on every tier. Tiers are
// joined by two lifts, one in the north-west and one in the south-east corner.
type GridLayout struct {
	Width, Height      int
	Spacing            float64 // metres between neighbouring nodes
	Tiers              int
	ElevatorTravelTime float64 // seconds per tier
}

// DefaultLayout returns a single-tier 8 x 8 floor.
func DefaultLayout() GridLayout {
	return GridLayout{Width: 8, Height: 8, Spacing: 1, Tiers: 1, ElevatorTravelTime: 10}
}

// Node returns the id of the node at column x, row y on tier.
func (l GridLayout) Node(x, y, tier int) core.NodeID {
	return core.NodeID(tier*l.Width*l.Height + y*l.Width + x)
}

// Validate checks the dimensions.
func (l GridLayout) Validate() error {
	switch {
	case l.Width < 1 || l.Height < 1:
		return errors.Errorf("layout must be at least 1x1, got %dx%d", l.Width, l.Height)
	case l.Spacing <= 0:
		return errors.Errorf("node spacing must be positive, got %g", l.Spacing)
	case l.Tiers < 1:
		return errors.Errorf("layout needs at least one tier, got %d", l.Tiers)
	case l.Tiers > 1 && l.ElevatorTravelTime <= 0:
		return errors.Errorf("elevator travel time must be positive, got %g", l.ElevatorTravelTime)
	}
	return nil
}

// Build creates the graph: a 4-connected grid per tier plus the lifts.
func (l GridLayout) Build() (*core.Graph, error) {
	if err := l.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid layout")
	}
	g := core.NewGraph()
	for tier := 0; tier < l.Tiers; tier++ {
		for y := 0; y < l.Height; y++ {
			for x := 0; x < l.Width; x++ {
				g.AddTierNode(float64(x)*l.Spacing, float64(y)*l.Spacing, tier)
			}
		}
		for y := 0; y < l.Height; y++ {
			for x := 0; x < l.Width; x++ {
				if x < l.Width-1 {
					g.AddBidirectionalEdge(l.Node(x, y, tier), l.Node(x+1, y, tier))
				}
				if y < l.Height-1 {
					g.AddBidirectionalEdge(l.Node(x, y, tier), l.Node(x, y+1, tier))
				}
			}
		}
	}

	corners := [][2]int{{0, 0}, {l.Width - 1, l.Height - 1}}
	if l.Width*l.Height == 1 {
		corners = corners[:1]
	}
	for tier := 0; tier+1 < l.Tiers; tier++ {
		for _, c := range corners {
			name := fmt.Sprintf("lift-%d-%d", c[0], c[1])
			lower, upper := l.Node(c[0], c[1], tier), l.Node(c[0], c[1], tier+1)
			g.AddElevatorEdge(lower, upper, l.ElevatorTravelTime, name)
			g.AddElevatorEdge(upper, lower, l.ElevatorTravelTime, name)
		}
	}
	return g, nil
}
