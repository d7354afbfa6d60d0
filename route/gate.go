// route/gate.go
// Copyright(c) 2023-2026 flytrace contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package route

import (
	"time"

	"github.com/mmorken/flytrace/geo"
)

// Gate is the runtime evaluation state for one waypoint during a
// calculator run.  Exactly one of PassingTime or Missed is eventually set;
// the gate is terminal once either happens.
type Gate struct {
	Waypoint *Waypoint

	ExpectedTime    time.Time
	PassingTime     time.Time // zero until passed
	Missed          bool
	MaybeMissedTime time.Time // zero until a miss is first suspected
}

func NewGate(wp *Waypoint, expected time.Time) *Gate {
	return &Gate{Waypoint: wp, ExpectedTime: expected}
}

func (g *Gate) Name() string {
	return g.Waypoint.Name
}

// Terminal reports whether the gate has been resolved either way.
func (g *Gate) Terminal() bool {
	return g.Missed || !g.PassingTime.IsZero()
}

// Intersection is the result of testing a track segment against a gate.
type Intersection struct {
	Position    geo.Point
	PassingTime time.Time
	Fraction    float64
}

// intersectLine tests the segment from p1 (at t1) to p2 (at t2) against
// the given gate line, applying the waypoint's along-leg projection
// window.  The passing time is interpolated by fraction along the
// segment.
func (g *Gate) intersectLine(line [2]geo.Point, p1, p2 geo.Point, t1, t2 time.Time) (Intersection, bool) {
	x, ok := geo.SegmentIntersection(p1, p2, line[0], line[1])
	if !ok {
		return Intersection{}, false
	}

	// The along-leg offset of the crossing from the waypoint must fall in
	// the inside/outside window.  Distance from the gate line measured
	// along the incoming leg is what the window bounds; the crossing sits
	// on the line itself, so test the segment's far end instead, which is
	// where the aircraft ends up once the crossing registers.
	if g.Waypoint.InsideDistanceNM > 0 || g.Waypoint.OutsideDistanceNM > 0 {
		d := geo.CrossTrackDistanceNM(line[0], line[1], p2)
		// Positive cross-track distance is on the outbound side given the
		// left-to-right endpoint ordering from gate construction.
		if d > g.Waypoint.InsideDistanceNM || -d > g.Waypoint.OutsideDistanceNM {
			return Intersection{}, false
		}
	}

	f := geo.SegmentFraction(p1, p2, x)
	dt := t2.Sub(t1)
	return Intersection{
		Position:    x,
		PassingTime: t1.Add(time.Duration(float64(dt) * f)),
		Fraction:    f,
	}, true
}

// Intersect tests the latest track segment against the finite gate line.
func (g *Gate) Intersect(p1, p2 geo.Point, t1, t2 time.Time) (Intersection, bool) {
	return g.intersectLine(g.Waypoint.GateLine, p1, p2, t1, t2)
}

// IntersectExtended tests the latest track segment against the extended
// gate line.
func (g *Gate) IntersectExtended(p1, p2 geo.Point, t1, t2 time.Time) (Intersection, bool) {
	return g.intersectLine(g.Waypoint.ExtendedGateLine, p1, p2, t1, t2)
}

///////////////////////////////////////////////////////////////////////////
// MultiGate

// MultiGate is a disjunction of parallel gates (multiple landing lines,
// for example); the earliest intersection wins.
type MultiGate struct {
	Gates []*Gate
}

func NewMultiGate(gates []*Gate) *MultiGate {
	return &MultiGate{Gates: gates}
}

// Intersect tests the segment against every member gate and returns the
// earliest crossing, along with the gate that was crossed.
func (m *MultiGate) Intersect(p1, p2 geo.Point, t1, t2 time.Time) (*Gate, Intersection, bool) {
	var best *Gate
	var bestX Intersection

	for _, g := range m.Gates {
		if x, ok := g.Intersect(p1, p2, t1, t2); ok {
			if best == nil || x.PassingTime.Before(bestX.PassingTime) {
				best, bestX = g, x
			}
		}
	}
	return best, bestX, best != nil
}
