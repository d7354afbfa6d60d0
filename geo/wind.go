// geo/wind.go
// Copyright(c) 2023-2026 flytrace contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package geo

import gomath "math"

// WindCorrectionAngle returns the crab angle in degrees required to hold
// the given track at the given true airspeed with the given wind.  Wind
// direction follows the aviation convention of being the direction the
// wind is blowing from.  Positive corrections are to the right.
func WindCorrectionAngle(track, tas, windSpeed, windDirection float64) float64 {
	if tas == 0 {
		return 0
	}
	rel := Radians(windDirection - track)
	s := windSpeed / tas * gomath.Sin(rel)
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	return Degrees(gomath.Asin(s))
}

// GroundSpeed returns the resulting speed over the ground in knots for an
// aircraft holding the given track at the given true airspeed with the
// given wind (direction-from convention).
func GroundSpeed(track, tas, windSpeed, windDirection float64) float64 {
	wca := Radians(WindCorrectionAngle(track, tas, windSpeed, windDirection))
	rel := Radians(windDirection - track)
	return tas*gomath.Cos(wca) - windSpeed*gomath.Cos(rel)
}

// ProjectPosition dead-reckons the position after the given number of
// seconds starting from p on the given course at the given speed,
// integrating a constant turn rate in one second steps.
func ProjectPosition(p Point, course, turnRateDegSec, speedKn, seconds float64) Point {
	pos, hdg := p, course
	nmPerSecond := speedKn / 3600

	whole := int(seconds)
	for i := 0; i < whole; i++ {
		hdg = NormalizeHeading(hdg + turnRateDegSec)
		pos = Offset(pos, hdg, nmPerSecond)
	}
	if frac := seconds - float64(whole); frac > 0 {
		hdg = NormalizeHeading(hdg + turnRateDegSec*frac)
		pos = Offset(pos, hdg, nmPerSecond*frac)
	}
	return pos
}
