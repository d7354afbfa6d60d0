// route/import.go
// Copyright(c) 2023-2026 flytrace contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package route

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// WaypointDef is one row of an imported waypoint sequence.  Gate lines
// are computed here, never provided by the importer.
type WaypointDef struct {
	Name    string
	Lat     float64
	Lon     float64
	Kind    string
	WidthNM float64
}

// Build constructs a Route from imported waypoint definitions, computing
// the gate geometry for each waypoint.  The scorecard supplies the
// per-kind extended gate widths.
func Build(name string, defs []WaypointDef, sc *Scorecard) (*Route, error) {
	if len(defs) < 2 {
		return nil, fmt.Errorf("route %s: need at least two waypoints, got %d", name, len(defs))
	}

	r := &Route{Name: name}
	for _, d := range defs {
		if d.Lat < -90 || d.Lat > 90 || d.Lon < -180 || d.Lon > 180 {
			return nil, fmt.Errorf("route %s waypoint %s: bad coordinates (%f, %f)",
				name, d.Name, d.Lat, d.Lon)
		}
		width := d.WidthNM
		if width <= 0 {
			width = 1
		}
		r.Waypoints = append(r.Waypoints, &Waypoint{
			Name:      d.Name,
			Latitude:  d.Lat,
			Longitude: d.Lon,
			Kind:      ParseWaypointKind(d.Kind),
			WidthNM:   width,
		})
	}

	extended := func(kind WaypointKind) float64 {
		if sc == nil {
			return 0
		}
		return sc.GateScoreFor(kind).ExtendedGateWidthNM
	}
	computeGates(r.Waypoints, extended)

	return r, nil
}

// ReadDefs parses a waypoint sequence in the import format, one
// waypoint per line: <name>,<lat>,<lon>,<kind>,<width-NM>.  Blank lines
// and lines starting with # are skipped.
func ReadDefs(r io.Reader) ([]WaypointDef, error) {
	var defs []WaypointDef

	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		fields := strings.Split(text, ",")
		if len(fields) != 5 {
			return nil, fmt.Errorf("line %d: want 5 fields, got %d", line, len(fields))
		}

		lat, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad latitude: %w", line, err)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad longitude: %w", line, err)
		}
		width, err := strconv.ParseFloat(strings.TrimSpace(fields[4]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad width: %w", line, err)
		}

		defs = append(defs, WaypointDef{
			Name:    strings.TrimSpace(fields[0]),
			Lat:     lat,
			Lon:     lon,
			Kind:    strings.TrimSpace(fields[3]),
			WidthNM: width,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return defs, nil
}
