// ingest/http.go
// Copyright(c) 2023-2026 flytrace contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package ingest

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/mmorken/flytrace/contest"
)

var errMissingField = errors.New("missing required field")

// FallbackHandler accepts single positions over HTTP from phone clients
// and simulators: POST /?id=<tracker>&timestamp=<unix-seconds>&lat=<deg>&lon=<deg>&speed=<knots>.
func FallbackHandler(intake *Intake, kind contest.TrackerKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}

		q := r.URL.Query()
		id := q.Get("id")
		if id == "" {
			http.Error(w, "missing id", http.StatusBadRequest)
			return
		}

		ts, err := strconv.ParseInt(q.Get("timestamp"), 10, 64)
		if err != nil {
			http.Error(w, "bad timestamp", http.StatusBadRequest)
			return
		}
		lat, err := strconv.ParseFloat(q.Get("lat"), 64)
		if err != nil {
			http.Error(w, "bad lat", http.StatusBadRequest)
			return
		}
		lon, err := strconv.ParseFloat(q.Get("lon"), 64)
		if err != nil {
			http.Error(w, "bad lon", http.StatusBadRequest)
			return
		}
		speed, _ := strconv.ParseFloat(q.Get("speed"), 64)
		course, _ := strconv.ParseFloat(q.Get("course"), 64)
		altitude, _ := strconv.ParseFloat(q.Get("altitude"), 64)

		intake.Process(contest.Position{
			DeviceTime:  time.Unix(ts, 0).UTC(),
			Latitude:    lat,
			Longitude:   lon,
			Speed:       speed,
			Course:      course,
			Altitude:    altitude,
			TrackerID:   id,
			TrackerKind: kind,
		})
		w.WriteHeader(http.StatusOK)
	}
}
