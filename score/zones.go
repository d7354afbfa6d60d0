// score/zones.go
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

const prohibitedScoreType = "prohibited zone"
const penaltyZoneScoreType = "penalty zone"

// zoneStay tracks one continuous stay inside a zone.
type zoneStay struct {
	since     time.Time
	penalised bool
	entry     *contest.ScoreLogEntry
}

// ProhibitedZoneCalculator applies a one-shot penalty for each entry into
// a prohibited zone that outlasts the grace time.
type ProhibitedZoneCalculator struct {
	sc      *route.Scorecard
	reducer *Reducer
	helper  *geo.PolygonHelper
	stays   map[string]*zoneStay
}

func NewProhibitedZoneCalculator(rt *route.Route, sc *route.Scorecard, reducer *Reducer) *ProhibitedZoneCalculator {
	return &ProhibitedZoneCalculator{
		sc:      sc,
		reducer: reducer,
		helper:  rt.ZonePolygonHelper(route.ZoneProhibited),
		stays:   make(map[string]*zoneStay),
	}
}

func (c *ProhibitedZoneCalculator) Name() string { return "prohibited zone" }

func (c *ProhibitedZoneCalculator) CalculateEnroute(tail []contest.Position, lastGate *route.Gate, inRangeOfGate bool) {
	c.check(tail)
}

func (c *ProhibitedZoneCalculator) CalculateOutsideRoute(tail []contest.Position, lastGate *route.Gate) {
	c.check(tail)
}

func (c *ProhibitedZoneCalculator) PassedFinishpoint(tail []contest.Position, lastGate *route.Gate) {
	c.check(tail)
}

func (c *ProhibitedZoneCalculator) check(tail []contest.Position) {
	if len(tail) == 0 {
		return
	}
	p := tail[len(tail)-1]
	inside := make(map[string]bool)
	for _, name := range c.helper.CheckInside(p.Latitude, p.Longitude) {
		inside[name] = true
	}

	for name := range inside {
		st, ok := c.stays[name]
		if !ok {
			st = &zoneStay{since: p.DeviceTime}
			c.stays[name] = st
		}

		if !st.penalised && p.DeviceTime.Sub(st.since).Seconds() >= c.sc.ProhibitedZoneGraceTime {
			st.penalised = true
			c.reducer.UpdateScore(ScoreUpdate{
				Points:      c.sc.ProhibitedZonePenalty,
				Message:     fmt.Sprintf("entered prohibited zone %s", name),
				Kind:        contest.EntryAnomaly,
				ScoreType:   prohibitedScoreType,
				Time:        p.DeviceTime,
				Latitude:    p.Latitude,
				Longitude:   p.Longitude,
				HasPosition: true,
			})
		}
	}

	for name, st := range c.stays {
		if inside[name] {
			continue
		}
		if st.penalised {
			c.reducer.UpdateScore(ScoreUpdate{
				Points:      0,
				Message:     fmt.Sprintf("exited prohibited zone %s", name),
				Kind:        contest.EntryInformation,
				Time:        p.DeviceTime,
				Latitude:    p.Latitude,
				Longitude:   p.Longitude,
				HasPosition: true,
			})
		}
		// Leaving resets the stay; re-entering re-applies the penalty.
		delete(c.stays, name)
	}
}

///////////////////////////////////////////////////////////////////////////
// penalty zones

// PenaltyZoneCalculator accrues a per-second penalty while inside a
// penalty zone longer than the grace time; the running entry is updated
// in place until exit.
type PenaltyZoneCalculator struct {
	sc      *route.Scorecard
	reducer *Reducer
	helper  *geo.PolygonHelper
	stays   map[string]*zoneStay
}

func NewPenaltyZoneCalculator(rt *route.Route, sc *route.Scorecard, reducer *Reducer) *PenaltyZoneCalculator {
	return &PenaltyZoneCalculator{
		sc:      sc,
		reducer: reducer,
		helper:  rt.ZonePolygonHelper(route.ZonePenalty),
		stays:   make(map[string]*zoneStay),
	}
}

func (c *PenaltyZoneCalculator) Name() string { return "penalty zone" }

func (c *PenaltyZoneCalculator) CalculateEnroute(tail []contest.Position, lastGate *route.Gate, inRangeOfGate bool) {
	c.check(tail)
}

func (c *PenaltyZoneCalculator) CalculateOutsideRoute(tail []contest.Position, lastGate *route.Gate) {
	c.check(tail)
}

func (c *PenaltyZoneCalculator) PassedFinishpoint(tail []contest.Position, lastGate *route.Gate) {
	c.check(tail)
}

func (c *PenaltyZoneCalculator) check(tail []contest.Position) {
	if len(tail) == 0 {
		return
	}
	p := tail[len(tail)-1]
	inside := make(map[string]bool)
	for _, name := range c.helper.CheckInside(p.Latitude, p.Longitude) {
		inside[name] = true
	}

	for name := range inside {
		st, ok := c.stays[name]
		if !ok {
			st = &zoneStay{since: p.DeviceTime}
			c.stays[name] = st
		}

		elapsed := p.DeviceTime.Sub(st.since).Seconds()
		if elapsed < c.sc.PenaltyZoneGraceTime {
			continue
		}

		points := c.sc.PenaltyZonePenaltyPerSecond * elapsed
		msg := fmt.Sprintf("inside penalty zone %s for %.0f seconds", name, elapsed)
		if st.entry == nil {
			st.entry = c.reducer.UpdateScore(ScoreUpdate{
				Points:      points,
				Message:     msg,
				Kind:        contest.EntryAnomaly,
				ScoreType:   penaltyZoneScoreType,
				Maximum:     c.sc.PenaltyZoneMaximum,
				Time:        p.DeviceTime,
				Latitude:    p.Latitude,
				Longitude:   p.Longitude,
				HasPosition: true,
			})
		} else {
			c.reducer.UpdateScore(ScoreUpdate{
				Existing:  st.entry,
				Points:    points,
				Message:   msg,
				ScoreType: penaltyZoneScoreType,
				Maximum:   c.sc.PenaltyZoneMaximum,
				Time:      p.DeviceTime,
			})
		}
	}

	for name, st := range c.stays {
		if inside[name] {
			continue
		}
		if st.entry != nil {
			c.reducer.UpdateScore(ScoreUpdate{
				Points:      0,
				Message:     fmt.Sprintf("exited penalty zone %s", name),
				Kind:        contest.EntryInformation,
				Time:        p.DeviceTime,
				Latitude:    p.Latitude,
				Longitude:   p.Longitude,
				HasPosition: true,
			})
		}
		delete(c.stays, name)
	}
}
