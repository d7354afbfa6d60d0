// contest/contest.go
// Copyright(c) 2023-2026 flytrace contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package contest

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmorken/flytrace/geo"
	"github.com/mmorken/flytrace/route"
)

///////////////////////////////////////////////////////////////////////////
// trackers

type TrackerKind int

const (
	TrackerUnknown TrackerKind = iota
	TrackerHardwareDevice
	TrackerPilotApp
	TrackerCopilotApp
	TrackerExternalFeed
)

func (k TrackerKind) String() string {
	return [...]string{"unknown", "hardware-device", "pilot-app", "copilot-app", "external-feed"}[k]
}

func ParseTrackerKind(s string) TrackerKind {
	switch s {
	case "hardware-device":
		return TrackerHardwareDevice
	case "pilot-app":
		return TrackerPilotApp
	case "copilot-app":
		return TrackerCopilotApp
	case "external-feed":
		return TrackerExternalFeed
	}
	return TrackerUnknown
}

///////////////////////////////////////////////////////////////////////////
// positions

// Position is a single timestamped observation from a tracker.  It is
// immutable after creation.
type Position struct {
	DeviceTime   time.Time
	ServerTime   time.Time
	ReceivedTime time.Time
	Latitude     float64 // WGS84 degrees
	Longitude    float64
	Altitude     float64 // feet
	Speed        float64 // knots
	Course       float64 // degrees true
	BatteryLevel float64
	TrackerID    string
	TrackerKind  TrackerKind
	Simulator    bool
}

func (p Position) Point() geo.Point {
	return geo.MakePoint(p.Latitude, p.Longitude)
}

///////////////////////////////////////////////////////////////////////////
// contestants

type ContestantState int

const (
	StateWaiting ContestantState = iota
	StateTracking
	StateFinished
)

func (s ContestantState) String() string {
	return [...]string{"Waiting", "Tracking", "Finished"}[s]
}

// Contestant is a team assigned to one navigation task, bound to a
// tracker for a time window.
type Contestant struct {
	ID               int
	NavigationTaskID int
	Registration     string
	TeamName         string

	TakeoffTime      time.Time
	TrackerStartTime time.Time
	FinishedByTime   time.Time

	TrackerKind TrackerKind
	TrackerID   string

	WindSpeed     float64 // knots
	WindDirection float64 // degrees, direction from
	Airspeed      float64 // knots TAS

	MinutesToStartingPoint float64

	// GateTimes holds the planned crossing time for each waypoint,
	// derived from takeoff time, airspeed and wind.
	GateTimes map[string]time.Time
}

var (
	ErrInvalidWindow    = errors.New("tracker window does not contain takeoff time")
	ErrGateTimesNotMono = errors.New("planned gate times are not monotonic")
)

// Validate checks the contestant's timing invariants.
func (c *Contestant) Validate(rt *route.Route) error {
	if c.TakeoffTime.Before(c.TrackerStartTime) || c.FinishedByTime.Before(c.TakeoffTime) {
		return fmt.Errorf("contestant %d: %w", c.ID, ErrInvalidWindow)
	}

	var prev time.Time
	for _, wp := range rt.Waypoints {
		gt, ok := c.GateTimes[wp.Name]
		if !ok {
			continue
		}
		if !prev.IsZero() && gt.Before(prev) {
			return fmt.Errorf("contestant %d gate %s: %w", c.ID, wp.Name, ErrGateTimesNotMono)
		}
		prev = gt
	}

	if len(rt.Waypoints) > 0 {
		first, ok := c.GateTimes[rt.Waypoints[0].Name]
		earliest := c.TakeoffTime.Add(time.Duration(c.MinutesToStartingPoint * float64(time.Minute)))
		if ok && first.Before(earliest) {
			return fmt.Errorf("contestant %d: first gate time before takeoff plus transit", c.ID)
		}
	}
	return nil
}

// CalculateGateTimes fills in the planned crossing time of each waypoint
// from the takeoff time, the planned airspeed and the contestant's wind,
// accumulating ground-speed leg times along the route.
func (c *Contestant) CalculateGateTimes(rt *route.Route) {
	c.GateTimes = make(map[string]time.Time)
	if len(rt.Waypoints) == 0 {
		return
	}

	t := c.TakeoffTime.Add(time.Duration(c.MinutesToStartingPoint * float64(time.Minute)))
	c.GateTimes[rt.Waypoints[0].Name] = t

	for i := 1; i < len(rt.Waypoints); i++ {
		prev, cur := rt.Waypoints[i-1], rt.Waypoints[i]
		track := geo.Bearing(prev.Point(), cur.Point())
		gs := geo.GroundSpeed(track, c.Airspeed, c.WindSpeed, c.WindDirection)
		if gs <= 0 {
			// The wind is stronger than the aircraft; fall back to TAS so
			// planned times stay monotonic.
			gs = c.Airspeed
		}
		dist := geo.DistanceNM(prev.Point(), cur.Point())
		t = t.Add(time.Duration(dist / gs * float64(time.Hour)))
		c.GateTimes[cur.Name] = t
	}
}

// Tracking reports whether the contestant's tracker window contains t.
func (c *Contestant) Tracking(t time.Time) bool {
	return !t.Before(c.TrackerStartTime) && !t.After(c.FinishedByTime)
}

///////////////////////////////////////////////////////////////////////////
// per-contestant scoring state

// ContestantTrack is the mutable scoring state for one contestant; the
// scoring worker is its single writer.
type ContestantTrack struct {
	ContestantID       int
	Score              float64
	GateScores         map[string]float64
	State              ContestantState
	CurrentLeg         string
	LastGate           string
	LastGateTimeOffset float64 // seconds, actual - planned
	PassedStarting     bool
	PassedFinish       bool
	CalculatorStarted  bool
	CalculatorFinished bool
}

func NewContestantTrack(contestantID int) *ContestantTrack {
	return &ContestantTrack{
		ContestantID: contestantID,
		GateScores:   make(map[string]float64),
		State:        StateWaiting,
	}
}

///////////////////////////////////////////////////////////////////////////
// score log

type EntryKind int

const (
	EntryAnomaly EntryKind = iota
	EntryInformation
	EntryDebug
)

func (k EntryKind) String() string {
	return [...]string{"anomaly", "information", "debug"}[k]
}

// ScoreLogEntry is an immutable, append-only record of one scoring
// decision for a contestant.
type ScoreLogEntry struct {
	ID           uuid.UUID
	Time         time.Time
	ContestantID int
	Gate         string
	Message      string
	Points       float64
	PlannedTime  time.Time
	ActualTime   time.Time
	Kind         EntryKind
	ScoreType    string
}

// TrackAnnotation is a geo-tagged scoring marker linked to a log entry.
type TrackAnnotation struct {
	ID           uuid.UUID
	ContestantID int
	Latitude     float64
	Longitude    float64
	Time         time.Time
	Kind         EntryKind
	Gate         string
	GateType     route.WaypointKind
	Message      string
	EntryID      uuid.UUID
}

// PlayingCard records a card awarded at a poker run waypoint.
type PlayingCard struct {
	ContestantID int
	Card         string
	Waypoint     string
	Index        int
}
