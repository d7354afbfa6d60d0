// score/landing.go
// Copyright(c) 2023-2026 flytrace contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package score

import (
	"fmt"
	"time"

	"github.com/mmorken/flytrace/contest"
	"github.com/mmorken/flytrace/route"
)

// landingDebounce suppresses duplicate crossing credit while the aircraft
// manoeuvres around the landing lines.
const landingDebounce = 30 * time.Second

// LandingCalculator detects crossings of the route's landing gates.  The
// first crossing transitions the contestant to Tracking and records an
// informational entry; later crossings within the debounce window are
// ignored.
type LandingCalculator struct {
	reducer *Reducer
	gates   *route.MultiGate

	lastCrossing time.Time
}

func NewLandingCalculator(rt *route.Route, sc *route.Scorecard, reducer *Reducer) *LandingCalculator {
	var gates []*route.Gate
	for _, wp := range rt.LandingGates {
		gates = append(gates, route.NewGate(wp, time.Time{}))
	}
	return &LandingCalculator{
		reducer: reducer,
		gates:   route.NewMultiGate(gates),
	}
}

func (c *LandingCalculator) Name() string { return "landing" }

func (c *LandingCalculator) CalculateEnroute(tail []contest.Position, lastGate *route.Gate, inRangeOfGate bool) {
	c.check(tail)
}

func (c *LandingCalculator) CalculateOutsideRoute(tail []contest.Position, lastGate *route.Gate) {
	c.check(tail)
}

func (c *LandingCalculator) PassedFinishpoint(tail []contest.Position, lastGate *route.Gate) {
	c.check(tail)
}

func (c *LandingCalculator) check(tail []contest.Position) {
	p1, p2, ok := latestSegment(tail)
	if !ok {
		return
	}

	g, x, ok := c.gates.Intersect(p1.Point(), p2.Point(), p1.DeviceTime, p2.DeviceTime)
	if !ok {
		return
	}
	if !c.lastCrossing.IsZero() && x.PassingTime.Sub(c.lastCrossing) < landingDebounce {
		return
	}

	first := c.lastCrossing.IsZero()
	c.lastCrossing = x.PassingTime

	if first {
		c.reducer.SetState(contest.StateTracking)
	}
	c.reducer.UpdateScore(ScoreUpdate{
		Gate:        g.Name(),
		GateType:    g.Waypoint.Kind,
		Points:      0,
		Message:     fmt.Sprintf("crossed landing gate %s", g.Name()),
		Kind:        contest.EntryInformation,
		Time:        x.PassingTime,
		ActualTime:  x.PassingTime,
		Latitude:    x.Position.Latitude(),
		Longitude:   x.Position.Longitude(),
		HasPosition: true,
	})
}
