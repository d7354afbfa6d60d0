// route/route.go
// Copyright(c) 2023-2026 flytrace contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package route

import (
	"github.com/mmorken/flytrace/geo"
)

type ZoneKind int

const (
	ZoneProhibited ZoneKind = iota
	ZonePenalty
	ZoneInformation
	ZoneGate
)

func (k ZoneKind) String() string {
	return [...]string{"prohibited", "penalty", "information", "gate"}[k]
}

// Zone is a named closed polygon with a kind.
type Zone struct {
	Name    string
	Kind    ZoneKind
	Polygon []geo.Point // ordered vertices, first not repeated
}

// Route is an ordered waypoint sequence plus optional takeoff/landing
// gates and zones.
type Route struct {
	Name      string
	Waypoints []*Waypoint

	// Separate gate sets for takeoff and landing lines; either may be
	// empty.
	TakeoffGates []*Waypoint
	LandingGates []*Waypoint

	UseProcedureTurns bool
	CorridorWidthNM   float64
	Zones             []Zone

	// Corridor edges, one vertex per waypoint, built for corridor-scored
	// tasks.
	CorridorLeft  []geo.Point
	CorridorRight []geo.Point
}

// ZonesOfKind returns the route's zones of the given kind.
func (r *Route) ZonesOfKind(kind ZoneKind) []Zone {
	var zones []Zone
	for _, z := range r.Zones {
		if z.Kind == kind {
			zones = append(zones, z)
		}
	}
	return zones
}

// WaypointNamed returns the waypoint with the given name, or nil.
func (r *Route) WaypointNamed(name string) *Waypoint {
	for _, wp := range r.Waypoints {
		if wp.Name == name {
			return wp
		}
	}
	return nil
}

// BuildCorridor computes the left and right corridor edges at the given
// width, one vertex per waypoint, each offset half the width from the
// waypoint along its gate line direction.
func (r *Route) BuildCorridor(widthNM float64) {
	r.CorridorWidthNM = widthNM
	r.CorridorLeft = r.CorridorLeft[:0]
	r.CorridorRight = r.CorridorRight[:0]

	for i, wp := range r.Waypoints {
		b := gateBearing(r.Waypoints, i)
		r.CorridorLeft = append(r.CorridorLeft, geo.Offset(wp.Point(), geo.NormalizeHeading(b-90), widthNM/2))
		r.CorridorRight = append(r.CorridorRight, geo.Offset(wp.Point(), geo.NormalizeHeading(b+90), widthNM/2))
	}
}

// CorridorPolygonHelper returns a containment tester for the corridor
// area; nil if no corridor has been built.
func (r *Route) CorridorPolygonHelper() *geo.PolygonHelper {
	if len(r.CorridorLeft) < 2 {
		return nil
	}

	ring := make([]geo.Point, 0, 2*len(r.CorridorLeft))
	ring = append(ring, r.CorridorLeft...)
	for i := len(r.CorridorRight) - 1; i >= 0; i-- {
		ring = append(ring, r.CorridorRight[i])
	}
	return geo.NewPolygonHelper([]string{"corridor"}, [][]geo.Point{ring})
}

// ZonePolygonHelper returns a containment tester over all zones of the
// given kind.
func (r *Route) ZonePolygonHelper(kind ZoneKind) *geo.PolygonHelper {
	zones := r.ZonesOfKind(kind)
	names := make([]string, len(zones))
	rings := make([][]geo.Point, len(zones))
	for i, z := range zones {
		names[i] = z.Name
		rings[i] = z.Polygon
	}
	return geo.NewPolygonHelper(names, rings)
}
