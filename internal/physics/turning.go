package physics

import "math"

// NormalizeAngle maps a signed angular difference into (−π, π].
func NormalizeAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a <= -math.Pi {
		a += 2 * math.Pi
	} else if a > math.Pi {
		a -= 2 * math.Pi
	}
	return a
}

// NormalizeOrientation maps an orientation into [0, 2π).
func NormalizeOrientation(o float64) float64 {
	o = math.Mod(o, 2*math.Pi)
	if o < 0 {
		o += 2 * math.Pi
	}
	return o
}

// DegreesToRadians converts an edge angle.
func DegreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// TimeNeededToTurn returns the time to rotate from one orientation to another,
// turning the shorter way.
func (p *Physics) TimeNeededToTurn(from, to float64) float64 {
	if p.TurnSpeed <= 0 {
		return 0
	}
	return math.Abs(NormalizeAngle(to-from)) / (2 * math.Pi) * p.TurnSpeed
}

// OrientationAfterTimeStep rotates current towards target for timeSpan seconds.
func (p *Physics) OrientationAfterTimeStep(current, target, timeSpan float64) float64 {
	diff := NormalizeAngle(target - current)
	if p.TurnSpeed <= 0 {
		return NormalizeOrientation(target)
	}
	step := 2 * math.Pi * timeSpan / p.TurnSpeed
	if step >= math.Abs(diff) {
		return NormalizeOrientation(target)
	}
	return NormalizeOrientation(current + math.Copysign(step, diff))
}

// DistanceToStop is the braking distance from speed.
func (p *Physics) DistanceToStop(speed float64) float64 {
	if p.Deceleration <= 0 {
		return math.Inf(1)
	}
	return speed * speed / (2 * p.Deceleration)
}

// DistanceToFullSpeed is the distance needed to accelerate from speed to MaxSpeed.
func (p *Physics) DistanceToFullSpeed(speed float64) float64 {
	if speed >= p.MaxSpeed {
		return 0
	}
	return (p.MaxSpeed*p.MaxSpeed - speed*speed) / (2 * p.Acceleration)
}

// MaxSpeedToBreakWithinDistance is the highest speed from which the agent can still
// stop within distance.
func (p *Physics) MaxSpeedToBreakWithinDistance(distance float64) float64 {
	if distance <= 0 {
		return 0
	}
	return math.Min(p.MaxSpeed, math.Sqrt(2*p.Deceleration*distance))
}
