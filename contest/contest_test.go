// contest/contest_test.go
// Copyright(c) 2023-2026 flytrace contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package contest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmorken/flytrace/route"
)

func testRoute(t *testing.T) *route.Route {
	t.Helper()
	r, err := route.Build("test", []route.WaypointDef{
		{Name: "SP", Lat: 60, Lon: 10, Kind: "sp", WidthNM: 1},
		{Name: "TP1", Lat: 60.5, Lon: 10, Kind: "tp", WidthNM: 1},
		{Name: "FP", Lat: 60.5, Lon: 11, Kind: "fp", WidthNM: 1},
	}, route.DefaultScorecard())
	require.NoError(t, err)
	return r
}

func testContestant(takeoff time.Time) *Contestant {
	return &Contestant{
		ID:                     7,
		TakeoffTime:            takeoff,
		TrackerStartTime:       takeoff.Add(-10 * time.Minute),
		FinishedByTime:         takeoff.Add(2 * time.Hour),
		TrackerKind:            TrackerPilotApp,
		TrackerID:              "tracker-7",
		Airspeed:               70,
		MinutesToStartingPoint: 6,
	}
}

func TestCalculateGateTimes(t *testing.T) {
	rt := testRoute(t)
	takeoff := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	c := testContestant(takeoff)

	c.CalculateGateTimes(rt)
	require.Len(t, c.GateTimes, 3)

	// First gate at takeoff plus transit time.
	assert.Equal(t, takeoff.Add(6*time.Minute), c.GateTimes["SP"])

	// 30nm leg at 70kt TAS, no wind: just under 26 minutes.
	leg := c.GateTimes["TP1"].Sub(c.GateTimes["SP"])
	assert.InDelta(t, (30.0 / 70.0 * 3600), leg.Seconds(), 15)

	// Monotonic.
	assert.True(t, c.GateTimes["TP1"].After(c.GateTimes["SP"]))
	assert.True(t, c.GateTimes["FP"].After(c.GateTimes["TP1"]))

	assert.NoError(t, c.Validate(rt))
}

func TestCalculateGateTimesWithWind(t *testing.T) {
	rt := testRoute(t)
	takeoff := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	calm := testContestant(takeoff)
	calm.CalculateGateTimes(rt)

	headwind := testContestant(takeoff)
	headwind.WindSpeed = 20
	headwind.WindDirection = 360 // from the north, against the first leg
	headwind.CalculateGateTimes(rt)

	// The northbound leg takes longer into a headwind.
	assert.Greater(t,
		headwind.GateTimes["TP1"].Sub(headwind.GateTimes["SP"]),
		calm.GateTimes["TP1"].Sub(calm.GateTimes["SP"]))
}

func TestValidate(t *testing.T) {
	rt := testRoute(t)
	takeoff := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	c := testContestant(takeoff)
	c.CalculateGateTimes(rt)
	assert.NoError(t, c.Validate(rt))

	// Tracker window must contain the takeoff time.
	bad := testContestant(takeoff)
	bad.TrackerStartTime = takeoff.Add(time.Minute)
	bad.CalculateGateTimes(rt)
	assert.ErrorIs(t, bad.Validate(rt), ErrInvalidWindow)

	// Out-of-order gate times.
	bad = testContestant(takeoff)
	bad.CalculateGateTimes(rt)
	bad.GateTimes["FP"] = bad.GateTimes["SP"].Add(-time.Minute)
	assert.ErrorIs(t, bad.Validate(rt), ErrGateTimesNotMono)
}

///////////////////////////////////////////////////////////////////////////
// resolver

type fakeSource struct {
	contestants []*Contestant
	lookups     int
}

func (s *fakeSource) ContestantAt(kind TrackerKind, id string, t time.Time) (*Contestant, error) {
	s.lookups++
	for _, c := range s.contestants {
		if c.TrackerKind == kind && c.TrackerID == id && c.Tracking(t) {
			return c, nil
		}
	}
	return nil, nil
}

func TestResolver(t *testing.T) {
	takeoff := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	c := testContestant(takeoff)
	src := &fakeSource{contestants: []*Contestant{c}}
	r := NewResolver(src, time.Minute, nil)

	during := takeoff.Add(30 * time.Minute)

	got, sim, err := r.Resolve(TrackerPilotApp, "tracker-7", during)
	require.NoError(t, err)
	assert.False(t, sim)
	require.NotNil(t, got)
	assert.Equal(t, c.ID, got.ID)

	// Second resolve in the same minute is served from the cache.
	before := src.lookups
	_, _, err = r.Resolve(TrackerPilotApp, "tracker-7", during.Add(10*time.Second))
	require.NoError(t, err)
	assert.Equal(t, before, src.lookups)

	// Outside the window: no contestant.
	got, _, err = r.Resolve(TrackerPilotApp, "tracker-7", takeoff.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Nil(t, got)

	// Unknown tracker.
	got, _, err = r.Resolve(TrackerHardwareDevice, "nope", during)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestResolverSimulator(t *testing.T) {
	takeoff := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	c := testContestant(takeoff)
	src := &fakeSource{contestants: []*Contestant{c}}
	r := NewResolver(src, time.Minute, nil)

	got, sim, err := r.Resolve(TrackerPilotApp, "tracker-7"+SimulatorSuffix, takeoff.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, sim)
	require.NotNil(t, got)
	assert.Equal(t, c.ID, got.ID)
}

func TestResolverInvalidate(t *testing.T) {
	takeoff := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	src := &fakeSource{contestants: []*Contestant{testContestant(takeoff)}}
	r := NewResolver(src, time.Minute, nil)

	during := takeoff.Add(time.Minute)
	_, _, _ = r.Resolve(TrackerPilotApp, "tracker-7", during)

	r.Invalidate()
	before := src.lookups
	_, _, _ = r.Resolve(TrackerPilotApp, "tracker-7", during)
	assert.Equal(t, before+1, src.lookups, "expected a fresh lookup after Invalidate")
}
