// score/corridor.go
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

const corridorScoreType = "outside corridor"

// CorridorCalculator accrues a per-second penalty while the contestant is
// outside the route corridor longer than the grace time.  Each excursion
// is one running entry; re-entry closes it and a later excursion starts a
// new one.
type CorridorCalculator struct {
	sc      *route.Scorecard
	reducer *Reducer
	helper  *geo.PolygonHelper

	outsideSince time.Time
	entry        *contest.ScoreLogEntry
}

func NewCorridorCalculator(rt *route.Route, sc *route.Scorecard, reducer *Reducer) *CorridorCalculator {
	return &CorridorCalculator{
		sc:      sc,
		reducer: reducer,
		helper:  rt.CorridorPolygonHelper(),
	}
}

func (c *CorridorCalculator) Name() string { return "corridor" }

func (c *CorridorCalculator) CalculateEnroute(tail []contest.Position, lastGate *route.Gate, inRangeOfGate bool) {
	if c.helper == nil || len(tail) == 0 {
		return
	}
	p := tail[len(tail)-1]

	inside := len(c.helper.CheckInside(p.Latitude, p.Longitude)) > 0
	if inside {
		c.close(p)
		return
	}

	if c.outsideSince.IsZero() {
		c.outsideSince = p.DeviceTime
		return
	}

	elapsed := p.DeviceTime.Sub(c.outsideSince).Seconds()
	if elapsed <= c.sc.CorridorGraceTime {
		return
	}

	points := c.sc.CorridorOutsidePenalty * elapsed
	msg := fmt.Sprintf("outside corridor for %.0f seconds", elapsed)
	if c.entry == nil {
		c.entry = c.reducer.UpdateScore(ScoreUpdate{
			Points:      points,
			Message:     msg,
			Kind:        contest.EntryAnomaly,
			ScoreType:   corridorScoreType,
			Maximum:     c.sc.CorridorMaximumPenalty,
			Time:        p.DeviceTime,
			Latitude:    p.Latitude,
			Longitude:   p.Longitude,
			HasPosition: true,
		})
	} else {
		c.reducer.UpdateScore(ScoreUpdate{
			Existing:  c.entry,
			Points:    points,
			Message:   msg,
			ScoreType: corridorScoreType,
			Maximum:   c.sc.CorridorMaximumPenalty,
			Time:      p.DeviceTime,
		})
	}
}

func (c *CorridorCalculator) CalculateOutsideRoute(tail []contest.Position, lastGate *route.Gate) {
	// The corridor only applies between the start and finish gates.
}

func (c *CorridorCalculator) PassedFinishpoint(tail []contest.Position, lastGate *route.Gate) {
	if len(tail) > 0 {
		c.close(tail[len(tail)-1])
	}
}

func (c *CorridorCalculator) close(p contest.Position) {
	if c.entry != nil {
		c.reducer.UpdateScore(ScoreUpdate{
			Points:      0,
			Message:     "back inside the corridor",
			Kind:        contest.EntryInformation,
			Time:        p.DeviceTime,
			Latitude:    p.Latitude,
			Longitude:   p.Longitude,
			HasPosition: true,
		})
	}
	c.outsideSince = time.Time{}
	c.entry = nil
}
