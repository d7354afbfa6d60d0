// route/waypoint.go
// Copyright(c) 2023-2026 flytrace contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package route

import (
	"github.com/mmorken/flytrace/geo"
)

type WaypointKind int

const (
	KindUnknown WaypointKind = iota
	KindTurningPoint
	KindStarting
	KindFinish
	KindSecret
	KindTakeoff
	KindLanding
	KindIntermediaryStart
	KindIntermediaryFinish
	KindDummy
)

var kindNames = [...]string{
	"unknown", "tp", "sp", "fp", "secret", "to", "ldg", "isp", "ifp", "dummy",
}

func (k WaypointKind) String() string {
	return kindNames[k]
}

func ParseWaypointKind(s string) WaypointKind {
	for i, n := range kindNames {
		if s == n {
			return WaypointKind(i)
		}
	}
	return KindUnknown
}

type TurnDirection int

const (
	TurnNone TurnDirection = iota
	TurnLeft
	TurnRight
)

// Waypoint is a named point on a route together with its gate geometry.
// GateLine is the finite crossing segment perpendicular to the bisector of
// the incoming and outgoing legs; ExtendedGateLine is the same line at the
// extended width used for procedure turn and extended-gate tests.
type Waypoint struct {
	Name      string
	Latitude  float64
	Longitude float64
	Kind      WaypointKind

	WidthNM          float64
	GateLine         [2]geo.Point
	ExtendedGateLine [2]geo.Point

	// Projection bounds along the incoming leg; a crossing only counts if
	// it happens within this window around the waypoint.
	InsideDistanceNM  float64
	OutsideDistanceNM float64

	// Bearing and distance from the previous waypoint, filled in when the
	// route is built.
	BearingFromPrevious  float64
	DistanceFromPrevious float64 // NM

	IsProcedureTurn bool
	TurnDirection   TurnDirection

	TimeCheck bool
}

func (w *Waypoint) Point() geo.Point {
	return geo.MakePoint(w.Latitude, w.Longitude)
}

// signedTurn returns the signed turn in degrees from heading a to heading
// b, in (-180, 180] with positive values for right turns.
func signedTurn(a, b float64) float64 {
	d := geo.NormalizeHeading(b - a + 180)
	return d - 180
}

// gateBearing returns the direction of the bisector of the incoming and
// outgoing legs at waypoint i; the gate line runs perpendicular to it.
func gateBearing(waypoints []*Waypoint, i int) float64 {
	wp := waypoints[i]

	var in, out float64
	haveIn, haveOut := i > 0, i < len(waypoints)-1
	if haveIn {
		in = geo.Bearing(waypoints[i-1].Point(), wp.Point())
	}
	if haveOut {
		out = geo.Bearing(wp.Point(), waypoints[i+1].Point())
	}

	switch {
	case haveIn && haveOut:
		return geo.NormalizeHeading(in + signedTurn(in, out)/2)
	case haveIn:
		return in
	case haveOut:
		return out
	default:
		return 0
	}
}

// computeGates fills in the gate lines for every waypoint in the slice.
// extendedWidth gives the extended gate width in NM per waypoint kind.
func computeGates(waypoints []*Waypoint, extendedWidth func(WaypointKind) float64) {
	for i, wp := range waypoints {
		b := gateBearing(waypoints, i)

		half := wp.WidthNM / 2
		wp.GateLine = [2]geo.Point{
			geo.Offset(wp.Point(), geo.NormalizeHeading(b-90), half),
			geo.Offset(wp.Point(), geo.NormalizeHeading(b+90), half),
		}

		ext := wp.WidthNM
		if extendedWidth != nil {
			if w := extendedWidth(wp.Kind); w > 0 {
				ext = w
			}
		}
		wp.ExtendedGateLine = [2]geo.Point{
			geo.Offset(wp.Point(), geo.NormalizeHeading(b-90), ext/2),
			geo.Offset(wp.Point(), geo.NormalizeHeading(b+90), ext/2),
		}

		if i > 0 {
			prev := waypoints[i-1]
			wp.BearingFromPrevious = geo.Bearing(prev.Point(), wp.Point())
			wp.DistanceFromPrevious = geo.DistanceNM(prev.Point(), wp.Point())
		}
	}
}
