// score/reducer_test.go
// Copyright(c) 2023-2026 flytrace contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package score

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmorken/flytrace/contest"
	"github.com/mmorken/flytrace/events"
)

func newTestReducer() *Reducer {
	c := &contest.Contestant{ID: 7, NavigationTaskID: 3, Registration: "LN-ABC"}
	return NewReducer(c, events.NewStream(nil), nil)
}

func TestReducerTotalMatchesEntries(t *testing.T) {
	r := newTestReducer()
	t0 := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	r.UpdateScore(ScoreUpdate{Gate: "SP", Points: 9, Kind: contest.EntryAnomaly,
		ScoreType: "gate", Time: t0})
	r.UpdateScore(ScoreUpdate{Gate: "TP1", Points: 0, Kind: contest.EntryInformation,
		ScoreType: "gate", Time: t0.Add(time.Minute)})
	e := r.UpdateScore(ScoreUpdate{Points: 30, Kind: contest.EntryAnomaly,
		ScoreType: "penalty zone", Maximum: 100, Time: t0.Add(2 * time.Minute)})
	r.UpdateScore(ScoreUpdate{Existing: e, Points: 45, ScoreType: "penalty zone",
		Maximum: 100, Time: t0.Add(3 * time.Minute)})

	sum := 0.0
	for _, entry := range r.Entries() {
		sum += entry.Points
	}
	assert.Equal(t, sum, r.Track().Score)
	assert.Equal(t, 54.0, r.Track().Score)
	assert.Equal(t, 9.0, r.Track().GateScores["SP"])
}

func TestReducerScoreTypeCap(t *testing.T) {
	r := newTestReducer()
	t0 := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	e := r.UpdateScore(ScoreUpdate{Points: 60, Kind: contest.EntryAnomaly,
		ScoreType: "penalty zone", Maximum: 100, Time: t0})
	require.Equal(t, 60.0, e.Points)

	// Raising the running total past the cap only applies the headroom.
	r.UpdateScore(ScoreUpdate{Existing: e, Points: 150, ScoreType: "penalty zone",
		Maximum: 100, Time: t0.Add(time.Second)})
	assert.Equal(t, 100.0, e.Points)
	assert.Equal(t, 100.0, r.Track().Score)

	// A second excursion of the same type is fully absorbed by the cap.
	e2 := r.UpdateScore(ScoreUpdate{Points: 50, Kind: contest.EntryAnomaly,
		ScoreType: "penalty zone", Maximum: 100, Time: t0.Add(2 * time.Second)})
	assert.Equal(t, 0.0, e2.Points)
	assert.Equal(t, 100.0, r.Track().Score)
}

func TestReducerFoldsDuplicates(t *testing.T) {
	r := newTestReducer()
	t0 := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	u := ScoreUpdate{Gate: "SP", Points: 3, Message: "bad crossing",
		Kind: contest.EntryAnomaly, ScoreType: "gate",
		Latitude: 60, Longitude: 10, HasPosition: true, Time: t0}
	first := r.UpdateScore(u)

	u.Time = t0.Add(500 * time.Millisecond)
	second := r.UpdateScore(u)
	assert.Same(t, first, second)
	assert.Len(t, r.Entries(), 1)
	assert.Equal(t, 3.0, r.Track().Score)

	// Outside the window the same update is a new entry.
	u.Time = t0.Add(2 * time.Second)
	third := r.UpdateScore(u)
	assert.NotSame(t, first, third)
	assert.Len(t, r.Entries(), 2)
}

func TestReducerAnnotations(t *testing.T) {
	r := newTestReducer()

	r.UpdateScore(ScoreUpdate{Gate: "TP1", Points: 200, Message: "entered prohibited zone bravo",
		Kind: contest.EntryAnomaly, ScoreType: "prohibited zone",
		Latitude: 60.1, Longitude: 10.2, HasPosition: true,
		Time: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)})
	r.UpdateScore(ScoreUpdate{Points: 5, Kind: contest.EntryAnomaly,
		Time: time.Date(2024, 6, 1, 10, 1, 0, 0, time.UTC)})

	anns := r.Annotations()
	require.Len(t, anns, 1)
	assert.Equal(t, 60.1, anns[0].Latitude)
	assert.Equal(t, r.Entries()[0].ID, anns[0].EntryID)
}

func TestReducerStateChangeOnce(t *testing.T) {
	r := newTestReducer()

	r.SetState(contest.StateTracking)
	r.SetState(contest.StateTracking)
	assert.Equal(t, contest.StateTracking, r.Track().State)
}
