// Package physics models the acceleration, cruising, braking and turning of an agent.
//
// All distances are in metres, speeds in m/s, times in seconds and orientations in
// radians.
package physics

import (
	"math"

	"github.com/pkg/errors"
)

// ErrProfileNotPlanned is raised when a motion profile is advanced before it was
// produced by TimeNeededToMove.
var ErrProfileNotPlanned = errors.New("physics: motion profile advanced before TimeNeededToMove")

// epsilon absorbs rounding in the phase bookkeeping.
const epsilon = 1e-9

// Physics holds the immutable kinematic constants of one agent.
type Physics struct {
	Acceleration float64 // m/s²
	Deceleration float64 // m/s²
	MaxSpeed     float64 // m/s
	TurnSpeed    float64 // seconds per full revolution; 0 turns instantly
}

// Default returns the constants of a standard storage robot.
func Default() *Physics {
	return &Physics{
		Acceleration: 0.5,
		Deceleration: 0.5,
		MaxSpeed:     1.5,
		TurnSpeed:    2.5,
	}
}

// MotionProfile is the speed profile of a single move. It is returned by
// TimeNeededToMove and consumed step by step by Advance.
type MotionProfile struct {
	AccelerationDuration float64
	AccelerationDistance float64
	FullSpeedDuration    float64
	FullSpeedDistance    float64
	DecelerationDuration float64
	DecelerationDistance float64
	TopSpeed             float64
	StartSpeed           float64
	EndSpeed             float64

	acceleration  float64
	deceleration  float64
	speed         float64
	remainingAcc  float64
	remainingFull float64
	remainingDec  float64
	planned       bool
}

func (mp *MotionProfile) reset() {
	mp.remainingAcc = mp.AccelerationDuration
	mp.remainingFull = mp.FullSpeedDuration
	mp.remainingDec = mp.DecelerationDuration
	mp.speed = mp.StartSpeed
}

// Duration returns the total time of the profile.
func (mp *MotionProfile) Duration() float64 {
	return mp.AccelerationDuration + mp.FullSpeedDuration + mp.DecelerationDuration
}

// Distance returns the total distance of the profile.
func (mp *MotionProfile) Distance() float64 {
	return mp.AccelerationDistance + mp.FullSpeedDistance + mp.DecelerationDistance
}

// Remaining returns the time left in the profile.
func (mp *MotionProfile) Remaining() float64 {
	if mp == nil || !mp.planned {
		return 0
	}
	return mp.remainingAcc + mp.remainingFull + mp.remainingDec
}

// TimeNeededToMove computes the time to cover distance starting at currentSpeed and
// stopping at its end. The returned profile describes the phases.
func (p *Physics) TimeNeededToMove(currentSpeed, distance float64) (float64, *MotionProfile) {
	mp := &MotionProfile{
		StartSpeed:   currentSpeed,
		acceleration: p.Acceleration,
		deceleration: p.Deceleration,
		speed:        currentSpeed,
		planned:      true,
	}
	if distance <= 0 {
		mp.TopSpeed = currentSpeed
		mp.EndSpeed = currentSpeed
		mp.reset()
		return 0, mp
	}

	stopDistance := p.DistanceToStop(currentSpeed)
	switch {
	case distance <= stopDistance+epsilon:
		// Only braking fits; the agent arrives with whatever speed is left.
		rest := math.Max(0, currentSpeed*currentSpeed-2*p.Deceleration*distance)
		mp.TopSpeed = currentSpeed
		mp.EndSpeed = math.Sqrt(rest)
		mp.DecelerationDuration = (currentSpeed - mp.EndSpeed) / p.Deceleration
		mp.DecelerationDistance = distance

	case currentSpeed >= p.MaxSpeed:
		mp.TopSpeed = currentSpeed
		mp.DecelerationDistance = stopDistance
		mp.DecelerationDuration = currentSpeed / p.Deceleration
		mp.FullSpeedDistance = distance - stopDistance
		mp.FullSpeedDuration = mp.FullSpeedDistance / currentSpeed

	case p.DistanceToFullSpeed(currentSpeed)+p.DistanceToStop(p.MaxSpeed) <= distance:
		mp.TopSpeed = p.MaxSpeed
		mp.AccelerationDistance = p.DistanceToFullSpeed(currentSpeed)
		mp.AccelerationDuration = (p.MaxSpeed - currentSpeed) / p.Acceleration
		mp.DecelerationDistance = p.DistanceToStop(p.MaxSpeed)
		mp.DecelerationDuration = p.MaxSpeed / p.Deceleration
		mp.FullSpeedDistance = distance - mp.AccelerationDistance - mp.DecelerationDistance
		mp.FullSpeedDuration = mp.FullSpeedDistance / p.MaxSpeed

	default:
		// Triangular profile: accelerating and braking distances add up to distance.
		inv := 1/(2*p.Acceleration) + 1/(2*p.Deceleration)
		peak := math.Sqrt((distance + currentSpeed*currentSpeed/(2*p.Acceleration)) / inv)
		peak = math.Max(peak, currentSpeed)
		mp.TopSpeed = peak
		mp.AccelerationDistance = (peak*peak - currentSpeed*currentSpeed) / (2 * p.Acceleration)
		mp.AccelerationDuration = (peak - currentSpeed) / p.Acceleration
		mp.DecelerationDistance = distance - mp.AccelerationDistance
		mp.DecelerationDuration = peak / p.Deceleration
	}
	mp.reset()
	return mp.Duration(), mp
}

// TimeNeededToMoveCheckpoints is TimeNeededToMove that additionally reports the
// arrival time at each checkpoint distance along the move. Checkpoints beyond
// distance are reported at the total time.
func (p *Physics) TimeNeededToMoveCheckpoints(currentSpeed, distance float64, checkpoints []float64) (float64, []float64) {
	total, mp := p.TimeNeededToMove(currentSpeed, distance)
	times := make([]float64, len(checkpoints))
	for i, c := range checkpoints {
		times[i] = mp.timeAt(c, total)
	}
	return total, times
}

// timeAt inverts the profile: the time at which position s is reached.
func (mp *MotionProfile) timeAt(s, total float64) float64 {
	switch {
	case s <= 0:
		return 0
	case s >= mp.Distance():
		return total
	case s <= mp.AccelerationDistance:
		v0 := mp.StartSpeed
		if mp.acceleration <= 0 {
			return s / v0
		}
		return (-v0 + math.Sqrt(v0*v0+2*mp.acceleration*s)) / mp.acceleration
	case s <= mp.AccelerationDistance+mp.FullSpeedDistance:
		return mp.AccelerationDuration + (s-mp.AccelerationDistance)/mp.TopSpeed
	default:
		r := s - mp.AccelerationDistance - mp.FullSpeedDistance
		v := mp.TopSpeed
		disc := math.Max(0, v*v-2*mp.deceleration*r)
		return mp.AccelerationDuration + mp.FullSpeedDuration + (v-math.Sqrt(disc))/mp.deceleration
	}
}

// DistanceTraveledAfterTimeStep advances mp by timeSpan and returns the distance
// covered and the resulting speed.
func (p *Physics) DistanceTraveledAfterTimeStep(mp *MotionProfile, timeSpan float64) (float64, float64) {
	return mp.Advance(timeSpan)
}

// Advance consumes timeSpan from the remaining phases in order and returns the
// distance covered and the speed afterwards.
func (mp *MotionProfile) Advance(timeSpan float64) (float64, float64) {
	if mp == nil || !mp.planned {
		panic(ErrProfileNotPlanned)
	}
	return mp.advance(timeSpan)
}

func (mp *MotionProfile) advance(timeSpan float64) (float64, float64) {
	if timeSpan <= epsilon {
		return 0, mp.speed
	}
	var step, dist float64
	switch {
	case mp.remainingAcc > epsilon:
		step = math.Min(timeSpan, mp.remainingAcc)
		dist = mp.speed*step + 0.5*mp.acceleration*step*step
		mp.speed = math.Min(mp.TopSpeed, mp.speed+mp.acceleration*step)
		mp.remainingAcc -= step
		if mp.remainingAcc <= epsilon {
			mp.speed = mp.TopSpeed
		}
	case mp.remainingFull > epsilon:
		step = math.Min(timeSpan, mp.remainingFull)
		dist = mp.speed * step
		mp.remainingFull -= step
	case mp.remainingDec > epsilon:
		step = math.Min(timeSpan, mp.remainingDec)
		dist = mp.speed*step - 0.5*mp.deceleration*step*step
		mp.speed = math.Max(mp.EndSpeed, mp.speed-mp.deceleration*step)
		mp.remainingDec -= step
		if mp.remainingDec <= epsilon {
			mp.speed = mp.EndSpeed
		}
	default:
		return 0, mp.speed
	}
	more, speed := mp.advance(timeSpan - step)
	return dist + more, speed
}
