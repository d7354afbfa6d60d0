// geo/polygon.go
// Copyright(c) 2023-2026 flytrace contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package geo

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/project"
)

// PolygonHelper performs point-in-polygon tests for a set of named
// polygons.  The polygons are projected once at construction onto a
// Mercator plane so that repeated containment tests are cheap; tests
// project only the query point.
type PolygonHelper struct {
	names    []string
	polygons []orb.Polygon
}

// NewPolygonHelper builds a helper for the given named rings, each an
// ordered list of lat-long vertices.  The rings need not repeat their
// first vertex.
func NewPolygonHelper(names []string, rings [][]Point) *PolygonHelper {
	h := &PolygonHelper{}
	for i, r := range rings {
		if len(r) < 3 {
			continue
		}
		ring := make(orb.Ring, 0, len(r)+1)
		for _, p := range r {
			ring = append(ring, orb.Point{p[0], p[1]})
		}
		if ring[0] != ring[len(ring)-1] {
			ring = append(ring, ring[0])
		}

		poly := orb.Polygon{project.Ring(ring, project.WGS84.ToMercator)}
		h.names = append(h.names, names[i])
		h.polygons = append(h.polygons, poly)
	}
	return h
}

// CheckInside returns the names of all polygons containing the given
// position.
func (h *PolygonHelper) CheckInside(lat, lon float64) []string {
	pt := project.Point(orb.Point{lon, lat}, project.WGS84.ToMercator)

	var inside []string
	for i, poly := range h.polygons {
		if planar.PolygonContains(poly, pt) {
			inside = append(inside, h.names[i])
		}
	}
	return inside
}

// Inside reports whether the given position is inside the named polygon.
func (h *PolygonHelper) Inside(name string, lat, lon float64) bool {
	pt := project.Point(orb.Point{lon, lat}, project.WGS84.ToMercator)
	for i, poly := range h.polygons {
		if h.names[i] == name && planar.PolygonContains(poly, pt) {
			return true
		}
	}
	return false
}
