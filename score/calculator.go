// score/calculator.go
// Copyright(c) 2023-2026 flytrace contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package score

import (
	"github.com/mmorken/flytrace/contest"
	"github.com/mmorken/flytrace/route"
)

// Calculator is one independent track evaluator.  The gatekeeper calls
// exactly one of the three methods per tick; all calculators share the
// contestant's reducer and communicate through nothing else.
//
// tail is the contestant's recent position list in device-time order,
// newest last.  lastGate is the most recently resolved waypoint gate, or
// nil before the first.
type Calculator interface {
	Name() string

	// CalculateEnroute is called while the contestant is on the route
	// (a starting gate has been resolved and the finish has not).
	CalculateEnroute(tail []contest.Position, lastGate *route.Gate, inRangeOfGate bool)

	// CalculateOutsideRoute is called before the route has been started.
	CalculateOutsideRoute(tail []contest.Position, lastGate *route.Gate)

	// PassedFinishpoint is called once the finish gate has been
	// resolved; calculators close any running entries here.
	PassedFinishpoint(tail []contest.Position, lastGate *route.Gate)
}

// latestSegment returns the two most recent positions of the tail, in
// order, and false if fewer than two are available.
func latestSegment(tail []contest.Position) (contest.Position, contest.Position, bool) {
	if len(tail) < 2 {
		return contest.Position{}, contest.Position{}, false
	}
	return tail[len(tail)-2], tail[len(tail)-1], true
}
