package physics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPhysics() *Physics {
	return &Physics{Acceleration: 1, Deceleration: 1, MaxSpeed: 2, TurnSpeed: 4}
}

func TestTimeNeededToMove_ProfileSelection(t *testing.T) {
	p := testPhysics()

	// Reaching 2 m/s and stopping again needs 2 m + 2 m.
	_, short := p.TimeNeededToMove(0, 3)
	assert.Equal(t, 0.0, short.FullSpeedDuration, "short move must not cruise")
	assert.Less(t, short.TopSpeed, p.MaxSpeed)

	_, long := p.TimeNeededToMove(0, 6)
	assert.Greater(t, long.FullSpeedDuration, 0.0, "long move must cruise")
	assert.InDelta(t, p.MaxSpeed, long.TopSpeed, 1e-9)
}

func TestTimeNeededToMove_Cases(t *testing.T) {
	p := testPhysics()
	tests := []struct {
		name     string
		speed    float64
		distance float64
		want     float64
		endSpeed float64
	}{
		{"trapezoid from rest", 0, 6, 2 + 1 + 2, 0},
		{"triangle from rest", 0, 1, 2, 0},
		{"cruise then brake", 2, 4, 1 + 2, 0},
		{"brake to stop", 2, 2, 2, 0},
		{"brake only, arrive moving", 2, 1.5, 2 - 1, 1},
		{"zero distance", 0, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, mp := p.TimeNeededToMove(tt.speed, tt.distance)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.InDelta(t, tt.endSpeed, mp.EndSpeed, 1e-9)
			assert.InDelta(t, tt.distance, mp.Distance(), 1e-9)
		})
	}
}

func TestDistanceTraveledAfterTimeStep_RoundTrip(t *testing.T) {
	p := &Physics{Acceleration: 0.7, Deceleration: 1.3, MaxSpeed: 1.8}
	for _, speed := range []float64{0, 0.5, 1.8} {
		for _, distance := range []float64{0, 0.2, 1, 2.5, 10} {
			total, mp := p.TimeNeededToMove(speed, distance)
			steps := 7
			var covered, v float64
			for i := 0; i < steps; i++ {
				d, s := p.DistanceTraveledAfterTimeStep(mp, total/float64(steps))
				covered += d
				v = s
			}
			if total == 0 {
				v = mp.EndSpeed
			}
			if math.Abs(covered-distance) > 1e-6 {
				t.Errorf("speed=%.1f distance=%.1f: covered %.6f", speed, distance, covered)
			}
			if math.Abs(v-mp.EndSpeed) > 1e-6 {
				t.Errorf("speed=%.1f distance=%.1f: final speed %.6f, want %.6f", speed, distance, v, mp.EndSpeed)
			}
		}
	}
}

func TestAdvance_BeyondProfileStaysStopped(t *testing.T) {
	p := testPhysics()
	total, mp := p.TimeNeededToMove(0, 6)
	d, v := mp.Advance(total + 10)
	assert.InDelta(t, 6, d, 1e-9)
	assert.Equal(t, 0.0, v)
	d, v = mp.Advance(1)
	assert.Equal(t, 0.0, d)
	assert.Equal(t, 0.0, v)
	assert.Equal(t, 0.0, mp.Remaining())
}

func TestAdvance_WithoutPlanningPanics(t *testing.T) {
	p := testPhysics()
	assert.PanicsWithValue(t, ErrProfileNotPlanned, func() {
		p.DistanceTraveledAfterTimeStep(&MotionProfile{}, 1)
	})
	var mp *MotionProfile
	assert.Panics(t, func() { mp.Advance(1) })
}

func TestTimeNeededToMoveCheckpoints(t *testing.T) {
	p := testPhysics()
	total, times := p.TimeNeededToMoveCheckpoints(0, 6, []float64{1, 2, 4, 5, 9})
	require.Len(t, times, 5)
	assert.InDelta(t, 5, total, 1e-9)
	assert.InDelta(t, math.Sqrt(2), times[0], 1e-9) // s = t²/2
	assert.InDelta(t, 2, times[1], 1e-9)             // end of acceleration
	assert.InDelta(t, 3, times[2], 1e-9)             // cruising 2 m at 2 m/s
	assert.InDelta(t, 3+(2-math.Sqrt(2)), times[3], 1e-9)
	assert.InDelta(t, total, times[4], 1e-9)
	for i := 1; i < len(times); i++ {
		assert.GreaterOrEqual(t, times[i], times[i-1])
	}
}

func TestTurning(t *testing.T) {
	p := testPhysics()
	assert.InDelta(t, 1, p.TimeNeededToTurn(0, math.Pi/2), 1e-9)
	// Shorter way round: 350° to 10° is a 20° turn.
	assert.InDelta(t, 4*20.0/360, p.TimeNeededToTurn(DegreesToRadians(350), DegreesToRadians(10)), 1e-9)

	o := p.OrientationAfterTimeStep(0, math.Pi, 1)
	assert.InDelta(t, math.Pi/2, o, 1e-9)
	o = p.OrientationAfterTimeStep(0, -math.Pi/2, 0.5)
	assert.InDelta(t, 2*math.Pi-math.Pi/4, o, 1e-9)
	o = p.OrientationAfterTimeStep(0, math.Pi/4, 10)
	assert.InDelta(t, math.Pi/4, o, 1e-9)

	assert.InDelta(t, math.Pi, NormalizeAngle(-math.Pi), 1e-12)
	assert.InDelta(t, -math.Pi/2, NormalizeAngle(3*math.Pi/2), 1e-12)
}

func TestBrakingHelpers(t *testing.T) {
	p := testPhysics()
	assert.InDelta(t, 2, p.DistanceToStop(2), 1e-9)
	assert.InDelta(t, 1.5, p.DistanceToFullSpeed(1), 1e-9)
	assert.Equal(t, 0.0, p.DistanceToFullSpeed(3))
	assert.InDelta(t, math.Sqrt(2), p.MaxSpeedToBreakWithinDistance(1), 1e-9)
	assert.Equal(t, p.MaxSpeed, p.MaxSpeedToBreakWithinDistance(100))
	assert.Equal(t, 0.0, p.MaxSpeedToBreakWithinDistance(0))
}
