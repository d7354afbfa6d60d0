// geo/geo.go
// Copyright(c) 2023-2026 flytrace contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package geo

import (
	"fmt"
	gomath "math"
)

const EarthRadiusMeters = 6371000

const NMPerLatitude = 60
const MetersPerNM = 1852

// Point represents a 2D point on the Earth in latitude-longitude.
// Important: 0 (x) is longitude, 1 (y) is latitude.
type Point [2]float64

func MakePoint(lat, lon float64) Point {
	return Point{lon, lat}
}

func (p Point) Longitude() float64 {
	return p[0]
}

func (p Point) Latitude() float64 {
	return p[1]
}

func (p Point) IsZero() bool {
	return p[0] == 0 && p[1] == 0
}

// DDString returns the position in decimal degrees, e.g.:
// (59.944, 10.720)
func (p Point) DDString() string {
	return fmt.Sprintf("(%f, %f)", p[1], p[0]) // latitude, longitude
}

func Radians(d float64) float64 {
	return d / 180 * gomath.Pi
}

func Degrees(r float64) float64 {
	return r * 180 / gomath.Pi
}

func Sqr(v float64) float64 { return v * v }

// Distance returns the great-circle distance between two points in
// kilometres via the haversine formula.
func Distance(p, q Point) float64 {
	// https://www.movable-type.co.uk/scripts/latlong.html
	lat1, lon1 := Radians(p[1]), Radians(p[0])
	lat2, lon2 := Radians(q[1]), Radians(q[0])
	dlat, dlon := lat2-lat1, lon2-lon1

	x := Sqr(gomath.Sin(dlat/2)) + gomath.Cos(lat1)*gomath.Cos(lat2)*Sqr(gomath.Sin(dlon/2))
	c := 2 * gomath.Atan2(gomath.Sqrt(x), gomath.Sqrt(1-x))
	return EarthRadiusMeters * c / 1000
}

// DistanceNM is Distance converted to nautical miles.
func DistanceNM(p, q Point) float64 {
	return Distance(p, q) * 1000 / MetersPerNM
}

// Bearing returns the initial great-circle bearing from p to q in degrees
// true, normalised to [0,360).
func Bearing(p, q Point) float64 {
	lat1, lon1 := Radians(p[1]), Radians(p[0])
	lat2, lon2 := Radians(q[1]), Radians(q[0])
	dlon := lon2 - lon1

	y := gomath.Sin(dlon) * gomath.Cos(lat2)
	x := gomath.Cos(lat1)*gomath.Sin(lat2) - gomath.Sin(lat1)*gomath.Cos(lat2)*gomath.Cos(dlon)
	return NormalizeHeading(Degrees(gomath.Atan2(y, x)))
}

// FractionalPoint returns the point at fraction f along the great circle
// from p to q; f==0 corresponds to p, f==1 to q.
func FractionalPoint(p, q Point, f float64) Point {
	lat1, lon1 := Radians(p[1]), Radians(p[0])
	lat2, lon2 := Radians(q[1]), Radians(q[0])

	d := Distance(p, q) * 1000 / EarthRadiusMeters // angular distance
	if d == 0 {
		return p
	}

	a := gomath.Sin((1-f)*d) / gomath.Sin(d)
	b := gomath.Sin(f*d) / gomath.Sin(d)
	x := a*gomath.Cos(lat1)*gomath.Cos(lon1) + b*gomath.Cos(lat2)*gomath.Cos(lon2)
	y := a*gomath.Cos(lat1)*gomath.Sin(lon1) + b*gomath.Cos(lat2)*gomath.Sin(lon2)
	z := a*gomath.Sin(lat1) + b*gomath.Sin(lat2)

	lat := gomath.Atan2(z, gomath.Sqrt(x*x+y*y))
	lon := gomath.Atan2(y, x)
	return Point{Degrees(lon), Degrees(lat)}
}

// Offset returns the point at distance dist nautical miles along the
// vector with heading hdg degrees from the given point. It assumes a
// (locally) flat earth.
func Offset(p Point, hdg float64, dist float64) Point {
	nmPerLongitude := NMPerLatitude * gomath.Cos(Radians(p[1]))
	h := Radians(hdg)
	return Point{
		p[0] + dist*gomath.Sin(h)/nmPerLongitude,
		p[1] + dist*gomath.Cos(h)/NMPerLatitude,
	}
}

// LL2NM converts a point expressed in latitude-longitude coordinates to
// nautical mile coordinates; this is useful for example for reasoning
// about distances, since both axes then have the same measure.
func LL2NM(p Point, nmPerLongitude float64) [2]float64 {
	return [2]float64{p[0] * nmPerLongitude, p[1] * NMPerLatitude}
}

// NM2LL converts a point expressed in nautical mile coordinates to
// lat-long.
func NM2LL(p [2]float64, nmPerLongitude float64) Point {
	return Point{p[0] / nmPerLongitude, p[1] / NMPerLatitude}
}

// NMPerLongitude returns the length of one degree of longitude, in
// nautical miles, at the latitude of the given point.
func NMPerLongitude(p Point) float64 {
	return NMPerLatitude * gomath.Cos(Radians(p[1]))
}

///////////////////////////////////////////////////////////////////////////
// headings

// NormalizeHeading reduces a heading to [0,360).
func NormalizeHeading(h float64) float64 {
	if h < 0 {
		return 360 - NormalizeHeading(-h)
	}
	return gomath.Mod(h, 360)
}

// HeadingDifference returns the minimum difference between two
// headings. (i.e., the result is always in the range [0,180].)
func HeadingDifference(a float64, b float64) float64 {
	var d float64
	if a > b {
		d = a - b
	} else {
		d = b - a
	}
	if d > 180 {
		d = 360 - d
	}
	return d
}

// HeadingSignedTurn returns the signed turn from cur to target where
// positive values are turns to the right.  First find the angle to
// rotate the target heading by so that it's aligned with 180 degrees;
// this lets us not worry about the complexities of the wrap around at
// 0/360..
func HeadingSignedTurn(cur, target float64) float64 {
	rot := NormalizeHeading(180 - target)
	return 180 - NormalizeHeading(cur+rot) // w.r.t. 180 target
}

func OppositeHeading(h float64) float64 {
	return NormalizeHeading(h + 180)
}

///////////////////////////////////////////////////////////////////////////
// segment intersection

// lineLineIntersect returns the intersection point of the two lines
// specified by the vertices (p1, p2) and (p3, p4).  An additional
// returned Boolean value indicates whether a valid intersection was found.
// (There's no intersection for parallel lines, and none may be found in
// cases with tricky numerics.)
func lineLineIntersect(p1, p2, p3, p4 [2]float64) ([2]float64, bool) {
	d12 := [2]float64{p1[0] - p2[0], p1[1] - p2[1]}
	d34 := [2]float64{p3[0] - p4[0], p3[1] - p4[1]}
	denom := d12[0]*d34[1] - d12[1]*d34[0]
	if gomath.Abs(denom) < 1e-12 {
		return [2]float64{}, false
	}
	numx := (p1[0]*p2[1]-p1[1]*p2[0])*(p3[0]-p4[0]) - (p1[0]-p2[0])*(p3[0]*p4[1]-p3[1]*p4[0])
	numy := (p1[0]*p2[1]-p1[1]*p2[0])*(p3[1]-p4[1]) - (p1[1]-p2[1])*(p3[0]*p4[1]-p3[1]*p4[0])

	return [2]float64{numx / denom, numy / denom}, true
}

func insideBounds(p, a, b [2]float64) bool {
	const eps = 1e-9
	return p[0] >= gomath.Min(a[0], b[0])-eps && p[0] <= gomath.Max(a[0], b[0])+eps &&
		p[1] >= gomath.Min(a[1], b[1])-eps && p[1] <= gomath.Max(a[1], b[1])+eps
}

// SegmentIntersection returns the intersection of the two lat-long
// segments a->b and c->d, evaluated on a local flat-earth plane anchored
// at a.  The Boolean result indicates whether the segments intersect.
func SegmentIntersection(a, b, c, d Point) (Point, bool) {
	nmPerLongitude := NMPerLongitude(a)
	pa, pb := LL2NM(a, nmPerLongitude), LL2NM(b, nmPerLongitude)
	pc, pd := LL2NM(c, nmPerLongitude), LL2NM(d, nmPerLongitude)

	p, ok := lineLineIntersect(pa, pb, pc, pd)
	if !ok {
		return Point{}, false
	}
	if !insideBounds(p, pa, pb) || !insideBounds(p, pc, pd) {
		return Point{}, false
	}
	return NM2LL(p, nmPerLongitude), true
}

// SegmentFraction returns the fraction along a->b at which the point p
// lies; p is assumed to be (close to) on the segment.
func SegmentFraction(a, b, p Point) float64 {
	nmPerLongitude := NMPerLongitude(a)
	pa, pb := LL2NM(a, nmPerLongitude), LL2NM(b, nmPerLongitude)
	pp := LL2NM(p, nmPerLongitude)

	d := [2]float64{pb[0] - pa[0], pb[1] - pa[1]}
	l2 := d[0]*d[0] + d[1]*d[1]
	if l2 == 0 {
		return 0
	}
	t := ((pp[0]-pa[0])*d[0] + (pp[1]-pa[1])*d[1]) / l2
	return gomath.Max(0, gomath.Min(1, t))
}

// CrossTrackDistanceNM returns the signed distance in nautical miles from
// the point p to the infinite line through a and b, where points to the
// left of the line (looking from a to b) have positive distances.
func CrossTrackDistanceNM(a, b, p Point) float64 {
	nmPerLongitude := NMPerLongitude(a)
	pa, pb := LL2NM(a, nmPerLongitude), LL2NM(b, nmPerLongitude)
	pp := LL2NM(p, nmPerLongitude)

	dx, dy := pb[0]-pa[0], pb[1]-pa[1]
	sq := dx*dx + dy*dy
	if sq == 0 {
		return gomath.Inf(1)
	}
	return (dx*(pa[1]-pp[1]) - dy*(pa[0]-pp[0])) / gomath.Sqrt(sq)
}
