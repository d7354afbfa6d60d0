// sched/sched_test.go
// Copyright(c) 2023-2026 flytrace contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sched

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var horizonStart = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func TestSharedAircraftSpacing(t *testing.T) {
	teams := []Team{
		{PK: 2, ID: "b", FlightMinutes: 5, AircraftID: "LN-ABC"},
		{PK: 1, ID: "a", FlightMinutes: 5, AircraftID: "LN-ABC"},
	}

	out, err := Schedule(context.Background(), teams, Constraints{}, horizonStart, 60)
	require.NoError(t, err)
	require.Len(t, out, 2)

	// Stable (pk, id) ordering.
	assert.Equal(t, 1, out[0].Team.PK)
	assert.Equal(t, 2, out[1].Team.PK)

	// Back to back with no switch time: starts exactly five minutes
	// apart, both within the horizon.
	gap := out[1].Slot - out[0].Slot
	if gap < 0 {
		gap = -gap
	}
	assert.Equal(t, 5, gap)
	assert.Equal(t, out[0].StartTime.Add(time.Duration(gap)*time.Minute), out[1].StartTime)
}

func TestIndependentTeamsStartTogether(t *testing.T) {
	teams := []Team{
		{PK: 1, ID: "a", FlightMinutes: 10, AircraftID: "LN-AAA", TrackerID: "t1"},
		{PK: 2, ID: "b", FlightMinutes: 10, AircraftID: "LN-BBB", TrackerID: "t2"},
	}

	out, err := Schedule(context.Background(), teams, Constraints{}, horizonStart, 60)
	require.NoError(t, err)
	assert.Equal(t, 0, out[0].Slot)
	assert.Equal(t, 0, out[1].Slot)
}

func TestMinimumStartInterval(t *testing.T) {
	teams := []Team{
		{PK: 1, ID: "a", FlightMinutes: 10, AircraftID: "LN-AAA"},
		{PK: 2, ID: "b", FlightMinutes: 10, AircraftID: "LN-BBB"},
	}

	out, err := Schedule(context.Background(), teams, Constraints{MinimumStartInterval: 2}, horizonStart, 60)
	require.NoError(t, err)
	gap := out[1].Slot - out[0].Slot
	if gap < 0 {
		gap = -gap
	}
	assert.GreaterOrEqual(t, gap, 2)
}

func TestConstraintsHold(t *testing.T) {
	teams := []Team{
		{PK: 1, ID: "a", FlightMinutes: 7, AircraftID: "LN-AAA", TrackerID: "t1", CrewIDs: []string{"p1", "n1"}},
		{PK: 2, ID: "b", FlightMinutes: 9, AircraftID: "LN-BBB", TrackerID: "t1", CrewIDs: []string{"p2", "n2"}},
		{PK: 3, ID: "c", FlightMinutes: 5, AircraftID: "LN-AAA", TrackerID: "t2", CrewIDs: []string{"p1"}},
		{PK: 4, ID: "d", FlightMinutes: 6, AircraftID: "LN-CCC", TrackerID: "t3", CrewIDs: []string{"p3"}},
	}
	cons := Constraints{
		AircraftSwitchTime:   3,
		TrackerSwitchTime:    2,
		TrackerStartLeadTime: 1,
		CrewSwitchTime:       2,
		MinimumStartInterval: 1,
	}
	horizon := 120

	out, err := Schedule(context.Background(), teams, cons, horizonStart, horizon)
	require.NoError(t, err)
	require.Len(t, out, 4)

	overlap := func(alo, ahi, blo, bhi int) bool { return alo < bhi && blo < ahi }

	makespan := 0
	for i, a := range out {
		if end := a.Slot + a.Team.FlightMinutes; end > makespan {
			makespan = end
		}
		for j, b := range out {
			if j <= i {
				continue
			}
			gap := a.Slot - b.Slot
			if gap < 0 {
				gap = -gap
			}
			assert.GreaterOrEqual(t, gap, cons.MinimumStartInterval)

			if a.Team.AircraftID == b.Team.AircraftID {
				assert.False(t, overlap(
					a.Slot, a.Slot+a.Team.FlightMinutes+cons.AircraftSwitchTime,
					b.Slot, b.Slot+b.Team.FlightMinutes+cons.AircraftSwitchTime),
					"aircraft %s double booked", a.Team.AircraftID)
			}
			if a.Team.TrackerID == b.Team.TrackerID {
				assert.False(t, overlap(
					a.Slot-cons.TrackerStartLeadTime, a.Slot+a.Team.FlightMinutes+cons.TrackerSwitchTime,
					b.Slot-cons.TrackerStartLeadTime, b.Slot+b.Team.FlightMinutes+cons.TrackerSwitchTime),
					"tracker %s double booked", a.Team.TrackerID)
			}
			if sharesCrew(a.Team, b.Team) {
				assert.False(t, overlap(
					a.Slot, a.Slot+a.Team.FlightMinutes+cons.CrewSwitchTime,
					b.Slot, b.Slot+b.Team.FlightMinutes+cons.CrewSwitchTime),
					"crew shared between %s and %s", a.Team.ID, b.Team.ID)
			}
		}
	}
	assert.LessOrEqual(t, makespan, horizon)
}

func TestInfeasibleSchedule(t *testing.T) {
	teams := []Team{
		{PK: 1, ID: "a", FlightMinutes: 30, AircraftID: "LN-AAA"},
		{PK: 2, ID: "b", FlightMinutes: 30, AircraftID: "LN-AAA"},
	}

	_, err := Schedule(context.Background(), teams, Constraints{}, horizonStart, 40)
	assert.Error(t, err)
}

func TestEmptyInput(t *testing.T) {
	out, err := Schedule(context.Background(), nil, Constraints{}, horizonStart, 60)
	require.NoError(t, err)
	assert.Empty(t, out)
}
