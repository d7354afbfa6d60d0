// ingest/flymaster.go
// Copyright(c) 2023-2026 flytrace contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package ingest

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mmorken/flytrace/contest"
)

const (
	metersToFeet = 3.281
	kmhToKnots   = 1.852
)

// ParseFlymaster reads a Flymaster bulk upload: the first line carries
// the tracker identifier, every following line is
// <start>,<unix-time>,<lat>,<lon>,<alt-meters>,<speed-kmh>,<heading>.
// Altitude is converted to feet and speed to knots.  Bad lines are
// skipped and counted, never fatal.
func ParseFlymaster(r io.Reader) (string, []contest.Position, int, error) {
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		return "", nil, 0, fmt.Errorf("empty upload")
	}
	identifier := strings.TrimSpace(strings.Split(sc.Text(), ",")[0])
	if identifier == "" {
		return "", nil, 0, fmt.Errorf("missing identifier")
	}

	var positions []contest.Position
	skipped := 0
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		p, err := parseFlymasterLine(line)
		if err != nil {
			skipped++
			continue
		}
		p.TrackerID = identifier
		p.TrackerKind = contest.TrackerHardwareDevice
		positions = append(positions, p)
	}
	return identifier, positions, skipped, sc.Err()
}

func parseFlymasterLine(line string) (contest.Position, error) {
	fields := strings.Split(line, ",")
	if len(fields) < 7 {
		return contest.Position{}, fmt.Errorf("want 7 fields, got %d", len(fields))
	}

	ts, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return contest.Position{}, err
	}
	lat, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return contest.Position{}, err
	}
	lon, err := strconv.ParseFloat(fields[3], 64)
	if err != nil {
		return contest.Position{}, err
	}
	altM, err := strconv.ParseFloat(fields[4], 64)
	if err != nil {
		return contest.Position{}, err
	}
	speedKmh, err := strconv.ParseFloat(fields[5], 64)
	if err != nil {
		return contest.Position{}, err
	}
	heading, err := strconv.ParseFloat(fields[6], 64)
	if err != nil {
		return contest.Position{}, err
	}

	return contest.Position{
		DeviceTime: time.Unix(ts, 0).UTC(),
		Latitude:   lat,
		Longitude:  lon,
		Altitude:   altM * metersToFeet,
		Speed:      speedKmh / kmhToKnots,
		Course:     heading,
	}, nil
}

// BulkHandler accepts a Flymaster CSV upload and routes every parsed
// position through the intake.
func BulkHandler(intake *Intake) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}

		_, positions, skipped, err := ParseFlymaster(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for _, p := range positions {
			intake.Process(p)
		}
		fmt.Fprintf(w, "accepted %d positions, skipped %d\n", len(positions), skipped)
	}
}
