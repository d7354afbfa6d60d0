// contest/source.go
// Copyright(c) 2023-2026 flytrace contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package contest

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mmorken/flytrace/route"
)

// contestantDef is the JSON form of one contestant entry.
type contestantDef struct {
	ID               int               `json:"id"`
	NavigationTaskID int               `json:"navigationTaskId"`
	Registration     string            `json:"registration"`
	TeamName         string            `json:"teamName"`
	TakeoffTime      time.Time         `json:"takeoffTime"`
	TrackerStartTime time.Time         `json:"trackerStartTime"`
	FinishedByTime   time.Time         `json:"finishedByTime"`
	TrackerKind      string            `json:"trackerKind"`
	TrackerID        string            `json:"trackerId"`
	WindSpeed        float64           `json:"windSpeed"`
	WindDirection    float64           `json:"windDirection"`
	Airspeed         float64           `json:"airspeed"`
	MinutesToSP      float64           `json:"minutesToStartingPoint"`
	GateTimes        map[string]string `json:"gateTimes,omitempty"`
}

// FileSource serves contestant lookups from a JSON file, for running
// without the admin data layer.
type FileSource struct {
	contestants []*Contestant
}

// LoadFileSource reads contestant definitions, computes planned gate
// times for entries that omit them and validates every contestant
// against the route.
func LoadFileSource(path string, rt *route.Route) (*FileSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var defs []contestantDef
	if err := json.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	s := &FileSource{}
	for _, d := range defs {
		c := &Contestant{
			ID:                     d.ID,
			NavigationTaskID:       d.NavigationTaskID,
			Registration:           d.Registration,
			TeamName:               d.TeamName,
			TakeoffTime:            d.TakeoffTime,
			TrackerStartTime:       d.TrackerStartTime,
			FinishedByTime:         d.FinishedByTime,
			TrackerKind:            ParseTrackerKind(d.TrackerKind),
			TrackerID:              d.TrackerID,
			WindSpeed:              d.WindSpeed,
			WindDirection:          d.WindDirection,
			Airspeed:               d.Airspeed,
			MinutesToStartingPoint: d.MinutesToSP,
		}

		if len(d.GateTimes) > 0 {
			c.GateTimes = make(map[string]time.Time)
			for gate, ts := range d.GateTimes {
				gt, err := time.Parse(time.RFC3339, ts)
				if err != nil {
					return nil, fmt.Errorf("contestant %d gate %s: %w", d.ID, gate, err)
				}
				c.GateTimes[gate] = gt
			}
		} else {
			c.CalculateGateTimes(rt)
		}

		if err := c.Validate(rt); err != nil {
			return nil, err
		}
		s.contestants = append(s.contestants, c)
	}
	return s, nil
}

func (s *FileSource) ContestantAt(kind TrackerKind, trackerID string, t time.Time) (*Contestant, error) {
	for _, c := range s.contestants {
		if c.TrackerKind == kind && c.TrackerID == trackerID && c.Tracking(t) {
			return c, nil
		}
	}
	return nil, nil
}

// Contestants returns every loaded contestant; the supervisor warm-start
// path iterates it.
func (s *FileSource) Contestants() []*Contestant {
	return s.contestants
}
