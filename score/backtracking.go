// score/backtracking.go
// Copyright(c) 2023-2026 flytrace contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package score

import (
	"fmt"
	"time"

	"github.com/mmorken/flytrace/contest"
	"github.com/mmorken/flytrace/geo"
	"github.com/mmorken/flytrace/route"
)

const backtrackingScoreType = "backtracking"
const procedureTurnScoreType = "procedure turn"

// backtrackingState tracks an ongoing heading excursion.
type backtrackingState struct {
	since time.Time
	entry *contest.ScoreLogEntry
}

// procedureTurnState follows one procedure-turn waypoint: armed once the
// extended gate line is crossed, accumulating the signed turn until the
// finite gate line is crossed again.
type procedureTurnState struct {
	armed       bool
	accumulated float64 // signed degrees, positive right
	lastCourse  float64
	evaluated   bool
}

// BacktrackingCalculator penalises flying against the current leg and
// validates procedure turns.
type BacktrackingCalculator struct {
	rt      *route.Route
	sc      *route.Scorecard
	reducer *Reducer

	excursion *backtrackingState
	turns     map[string]*procedureTurnState
}

func NewBacktrackingCalculator(rt *route.Route, sc *route.Scorecard, reducer *Reducer) *BacktrackingCalculator {
	c := &BacktrackingCalculator{
		rt:      rt,
		sc:      sc,
		reducer: reducer,
		turns:   make(map[string]*procedureTurnState),
	}
	for _, wp := range rt.Waypoints {
		if wp.IsProcedureTurn {
			c.turns[wp.Name] = &procedureTurnState{}
		}
	}
	return c
}

func (c *BacktrackingCalculator) Name() string { return "backtracking" }

func (c *BacktrackingCalculator) CalculateEnroute(tail []contest.Position, lastGate *route.Gate, inRangeOfGate bool) {
	p1, p2, ok := latestSegment(tail)
	if !ok {
		return
	}

	c.checkBacktracking(p1, p2, lastGate, inRangeOfGate)
	c.followProcedureTurns(p1, p2, lastGate)
}

func (c *BacktrackingCalculator) CalculateOutsideRoute(tail []contest.Position, lastGate *route.Gate) {
	// Heading is unconstrained before the start; just keep procedure
	// turn bookkeeping warm in case the start gate is a turn.
	if p1, p2, ok := latestSegment(tail); ok {
		c.followProcedureTurns(p1, p2, lastGate)
	}
}

func (c *BacktrackingCalculator) PassedFinishpoint(tail []contest.Position, lastGate *route.Gate) {
	c.excursion = nil
}

// legBearing returns the bearing of the leg the contestant is currently
// flying, from the last resolved waypoint to the next.
func (c *BacktrackingCalculator) legBearing(lastGate *route.Gate) (float64, bool) {
	if lastGate == nil {
		return 0, false
	}
	idx := -1
	for i, wp := range c.rt.Waypoints {
		if wp == lastGate.Waypoint {
			idx = i
			break
		}
	}
	if idx < 0 || idx+1 >= len(c.rt.Waypoints) {
		return 0, false
	}
	return geo.Bearing(c.rt.Waypoints[idx].Point(), c.rt.Waypoints[idx+1].Point()), true
}

func (c *BacktrackingCalculator) checkBacktracking(p1, p2 contest.Position, lastGate *route.Gate, inRangeOfGate bool) {
	leg, ok := c.legBearing(lastGate)
	if !ok {
		c.excursion = nil
		return
	}

	track := geo.Bearing(p1.Point(), p2.Point())
	deviating := geo.HeadingDifference(track, leg) > 90

	// Near a turning point large heading changes are legitimate.
	if inRangeOfGate {
		deviating = false
	}

	if !deviating {
		c.excursion = nil
		return
	}

	if c.excursion == nil {
		c.excursion = &backtrackingState{since: p2.DeviceTime}
		return
	}

	elapsed := p2.DeviceTime.Sub(c.excursion.since).Seconds()
	if elapsed < c.sc.BacktrackingGraceSeconds {
		return
	}

	gate := ""
	if lastGate != nil {
		gate = lastGate.Name()
	}

	if c.excursion.entry == nil {
		c.excursion.entry = c.reducer.UpdateScore(ScoreUpdate{
			Gate:        gate,
			Points:      c.sc.BacktrackingPenalty,
			Message:     fmt.Sprintf("backtracking for %.0f seconds", elapsed),
			Kind:        contest.EntryAnomaly,
			ScoreType:   backtrackingScoreType,
			Maximum:     c.sc.BacktrackingMaximumPenalty,
			Time:        p2.DeviceTime,
			Latitude:    p2.Latitude,
			Longitude:   p2.Longitude,
			HasPosition: true,
		})
	} else {
		// The condition persists; refresh the running entry's message
		// without changing its points.
		c.reducer.UpdateScore(ScoreUpdate{
			Existing:  c.excursion.entry,
			Points:    c.excursion.entry.Points,
			Message:   fmt.Sprintf("backtracking for %.0f seconds", elapsed),
			ScoreType: backtrackingScoreType,
			Maximum:   c.sc.BacktrackingMaximumPenalty,
			Time:      p2.DeviceTime,
		})
	}
}

// followProcedureTurns advances all pending procedure turn states with
// the latest segment and applies the miss penalty when a turn completes
// incorrectly.
func (c *BacktrackingCalculator) followProcedureTurns(p1, p2 contest.Position, lastGate *route.Gate) {
	course := geo.Bearing(p1.Point(), p2.Point())

	for name, st := range c.turns {
		if st.evaluated {
			continue
		}
		wp := c.rt.WaypointNamed(name)
		if wp == nil {
			continue
		}

		g := route.NewGate(wp, time.Time{})
		if !st.armed {
			if _, ok := g.IntersectExtended(p1.Point(), p2.Point(), p1.DeviceTime, p2.DeviceTime); ok {
				st.armed = true
				st.lastCourse = course
			}
			continue
		}

		// Accumulate the signed turn since the previous sample; positive
		// is to the right.
		st.accumulated += geo.HeadingSignedTurn(st.lastCourse, course)
		st.lastCourse = course

		if _, ok := g.Intersect(p1.Point(), p2.Point(), p1.DeviceTime, p2.DeviceTime); !ok {
			continue
		}

		// Crossed the gate line; the turn is complete and can be judged.
		st.evaluated = true
		valid := false
		switch wp.TurnDirection {
		case route.TurnLeft:
			valid = st.accumulated < -180
		case route.TurnRight:
			valid = st.accumulated > 180
		}

		if !valid {
			gs := c.sc.GateScoreFor(wp.Kind)
			c.reducer.UpdateScore(ScoreUpdate{
				Gate:        wp.Name,
				GateType:    wp.Kind,
				Points:      gs.MissedProcedureTurnPenalty,
				Message:     fmt.Sprintf("missing procedure turn at %s", wp.Name),
				Kind:        contest.EntryAnomaly,
				ScoreType:   procedureTurnScoreType,
				Time:        p2.DeviceTime,
				Latitude:    p2.Latitude,
				Longitude:   p2.Longitude,
				HasPosition: true,
			})
		}
	}
}
