// score/gatekeeper_test.go
// Copyright(c) 2023-2026 flytrace contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package score

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmorken/flytrace/contest"
	"github.com/mmorken/flytrace/events"
	"github.com/mmorken/flytrace/route"
	"github.com/mmorken/flytrace/util"
)

func buildContestant(t0 time.Time) *contest.Contestant {
	return &contest.Contestant{
		ID:               1,
		NavigationTaskID: 1,
		Registration:     "LN-ABC",
		TakeoffTime:      t0.Add(-10 * time.Minute),
		TrackerStartTime: t0.Add(-20 * time.Minute),
		FinishedByTime:   t0.Add(2 * time.Hour),
		TrackerKind:      contest.TrackerHardwareDevice,
		TrackerID:        "dev-1",
		Airspeed:         70,
		GateTimes: map[string]time.Time{
			"SP":  t0,
			"TP1": t0.Add(10 * time.Minute),
			"FP":  t0.Add(20 * time.Minute),
		},
	}
}

// runGatekeeper replays the positions through a gatekeeper and returns
// its reducer and every event posted during the run.
func runGatekeeper(t *testing.T, rt *route.Route, sc *route.Scorecard, c *contest.Contestant, positions []contest.Position) (*Reducer, []events.Event) {
	t.Helper()

	stream := events.NewStream(nil)
	defer stream.Destroy()
	sub := stream.Subscribe()

	gk := NewGatekeeper(rt, sc, c, stream, nil, false)
	in := gk.In()
	for _, p := range positions {
		in <- p
	}
	close(in)
	require.NoError(t, gk.Run(context.Background()))
	return gk.Reducer(), sub.Get()
}

func gateEntries(r *Reducer) []*contest.ScoreLogEntry {
	var out []*contest.ScoreLogEntry
	for _, e := range r.Entries() {
		if e.ScoreType == gateScoreType {
			out = append(out, e)
		}
	}
	return out
}

func stateChanges(evs []events.Event) []string {
	var out []string
	for _, e := range evs {
		if e.Type == events.ContestantStateEvent && e.State != "" {
			out = append(out, e.State)
		}
	}
	return out
}

func TestGatekeeperExactPassage(t *testing.T) {
	t0 := testBase
	sc := route.DefaultScorecard()
	rt := buildRoute(t, sc)
	c := buildContestant(t0)

	track := []contest.Position{
		pos(59.998, 10.0, t0.Add(-2*time.Second)),
		pos(60.002, 10.0, t0.Add(2*time.Second)),
		pos(60.198, 10.0, t0.Add(10*time.Minute-2*time.Second)),
		pos(60.202, 10.0, t0.Add(10*time.Minute+2*time.Second)),
		pos(60.398, 10.0, t0.Add(20*time.Minute-2*time.Second)),
		pos(60.402, 10.0, t0.Add(20*time.Minute+2*time.Second)),
	}

	r, evs := runGatekeeper(t, rt, sc, c, track)

	entries := gateEntries(r)
	require.Len(t, entries, 3)
	for _, e := range entries {
		assert.Equal(t, 0.0, e.Points, "gate %s", e.Gate)
		assert.Contains(t, e.Message, "on time")
		assert.Equal(t, contest.EntryInformation, e.Kind)
	}
	assert.Equal(t, 0.0, r.Track().Score)

	// The starting gate switches the contestant to Tracking; route
	// completion finishes the run.
	states := stateChanges(evs)
	assert.Contains(t, states, "Tracking")
	assert.Equal(t, "Finished", states[len(states)-1])
	assert.Equal(t, contest.StateFinished, r.Track().State)
}

func TestGatekeeperEarlyCrossing(t *testing.T) {
	t0 := testBase
	sc := route.DefaultScorecard()
	rt := buildRoute(t, sc)
	c := buildContestant(t0)

	// Crossing interpolates to 5 seconds before the expected time; with
	// 2 s grace and 3 points per second that is 9 points.
	track := []contest.Position{
		pos(59.998, 10.0, t0.Add(-7*time.Second)),
		pos(60.002, 10.0, t0.Add(-3*time.Second)),
	}

	r, _ := runGatekeeper(t, rt, sc, c, track)

	entries := gateEntries(r)
	require.Len(t, entries, 1)
	assert.Equal(t, "SP", entries[0].Gate)
	assert.InDelta(t, 9.0, entries[0].Points, 0.01)
	assert.Contains(t, entries[0].Message, "5 s early")
	assert.Equal(t, contest.EntryAnomaly, entries[0].Kind)
	assert.InDelta(t, 9.0, r.Track().Score, 0.01)
}

func TestGatekeeperMissedGateByDeadline(t *testing.T) {
	t0 := testBase
	sc := route.DefaultScorecard()
	rt := buildRoute(t, sc)
	c := buildContestant(t0)

	// Fly east of every gate until well past the starting point's miss
	// deadline, then cross the remaining gates on time.
	track := []contest.Position{
		pos(59.9, 10.2, t0.Add(-time.Minute)),
		pos(60.5, 10.2, t0.Add(400*time.Second)),
		pos(60.21, 10.0, t0.Add(10*time.Minute-2*time.Second)),
		pos(60.19, 10.0, t0.Add(10*time.Minute+2*time.Second)),
		pos(60.398, 10.0, t0.Add(20*time.Minute-2*time.Second)),
		pos(60.402, 10.0, t0.Add(20*time.Minute+2*time.Second)),
	}

	r, _ := runGatekeeper(t, rt, sc, c, track)

	entries := gateEntries(r)
	require.Len(t, entries, 3)
	assert.Equal(t, "SP", entries[0].Gate)
	assert.Equal(t, 100.0, entries[0].Points)
	assert.Contains(t, entries[0].Message, "missed gate SP")

	// Later gates are still evaluated on their own merits.
	assert.Equal(t, "TP1", entries[1].Gate)
	assert.Equal(t, 0.0, entries[1].Points)
	assert.Equal(t, "FP", entries[2].Gate)
	assert.Equal(t, 0.0, entries[2].Points)
	assert.Equal(t, 100.0, r.Track().Score)
}

func TestGatekeeperSkippedGatesMissed(t *testing.T) {
	t0 := testBase
	sc := route.DefaultScorecard()
	rt := buildRoute(t, sc)
	c := buildContestant(t0)

	// Reach TP1 without ever crossing SP: SP is declared missed the
	// moment the later gate resolves.
	track := []contest.Position{
		pos(60.5, 10.2, t0.Add(time.Minute)),
		pos(60.21, 10.0, t0.Add(2*time.Minute)),
		pos(60.19, 10.0, t0.Add(2*time.Minute+4*time.Second)),
	}

	r, _ := runGatekeeper(t, rt, sc, c, track)

	entries := gateEntries(r)
	require.Len(t, entries, 2)
	assert.Equal(t, "SP", entries[0].Gate)
	assert.Contains(t, entries[0].Message, "missed gate SP")
	assert.Equal(t, "TP1", entries[1].Gate)
}

func TestGatekeeperMissedStaysMissed(t *testing.T) {
	t0 := testBase
	sc := route.DefaultScorecard()
	rt := buildRoute(t, sc)
	c := buildContestant(t0)

	track := []contest.Position{
		pos(60.5, 10.2, t0.Add(time.Minute)),
		pos(60.21, 10.0, t0.Add(10*time.Minute-2*time.Second)),
		pos(60.19, 10.0, t0.Add(10*time.Minute+2*time.Second)),
		// Back south across the starting gate after it was declared
		// missed; the crossing must not resurrect it.
		pos(60.01, 10.0, t0.Add(11*time.Minute)),
		pos(59.99, 10.0, t0.Add(11*time.Minute+2*time.Second)),
	}

	r, _ := runGatekeeper(t, rt, sc, c, track)

	var spEntries []*contest.ScoreLogEntry
	for _, e := range gateEntries(r) {
		if e.Gate == "SP" {
			spEntries = append(spEntries, e)
		}
	}
	require.Len(t, spEntries, 1)
	assert.Contains(t, spEntries[0].Message, "missed gate SP")
	assert.Equal(t, 100.0, r.Track().GateScores["SP"])
}

func TestGatekeeperMissedProcedureTurn(t *testing.T) {
	t0 := testBase
	sc := route.DefaultScorecard()
	rt := buildRoute(t, sc)
	rt.Waypoints[1].IsProcedureTurn = true
	rt.Waypoints[1].TurnDirection = route.TurnLeft
	c := buildContestant(t0)

	// Never cross TP1; its deadline expires on the way to the finish.
	track := []contest.Position{
		pos(59.998, 10.0, t0.Add(-2*time.Second)),
		pos(60.002, 10.0, t0.Add(2*time.Second)),
		pos(60.398, 10.3, t0.Add(20*time.Minute-2*time.Second)),
		pos(60.398, 10.0, t0.Add(20*time.Minute+time.Second)),
		pos(60.402, 10.0, t0.Add(20*time.Minute+3*time.Second)),
	}

	r, _ := runGatekeeper(t, rt, sc, c, track)

	var ptPoints float64
	for _, e := range r.Entries() {
		if e.ScoreType == procedureTurnScoreType {
			ptPoints += e.Points
		}
	}
	assert.Equal(t, 200.0, ptPoints)
	// Missed penalty plus the procedure turn penalty on top.
	assert.Equal(t, 300.0, r.Track().GateScores["TP1"])
}

func TestGatekeeperPokerRun(t *testing.T) {
	t0 := testBase
	sc := route.DefaultScorecard()
	sc.Calculator = route.CalculatorPoker
	rt := buildRoute(t, sc)
	c := buildContestant(t0)

	track := []contest.Position{
		pos(60.0, 10.0, t0),
		pos(60.2, 10.0, t0.Add(time.Minute)),
		pos(60.4, 10.0, t0.Add(2*time.Minute)),
	}

	r, evs := runGatekeeper(t, rt, sc, c, track)

	cards := r.Cards()
	require.Len(t, cards, 3)
	seen := make(map[string]bool)
	for _, card := range cards {
		assert.False(t, seen[card.Card], "duplicate card %s", card.Card)
		seen[card.Card] = true
	}
	assert.Equal(t, []string{"SP", "TP1", "FP"},
		[]string{cards[0].Waypoint, cards[1].Waypoint, cards[2].Waypoint})

	var awards int
	for _, e := range evs {
		if e.Type == events.CardAwardedEvent {
			awards++
			assert.Greater(t, e.CardScore, 0.0)
		}
	}
	assert.Equal(t, 3, awards)

	// No waypoint gate scoring happens on a poker run.
	assert.Empty(t, gateEntries(r))
	assert.Equal(t, contest.StateFinished, r.Track().State)
}

func TestGatekeeperIdleSweepEndsRun(t *testing.T) {
	t0 := testBase
	sc := route.DefaultScorecard()
	rt := buildRoute(t, sc)
	c := buildContestant(t0)
	c.FinishedByTime = time.Now().Add(time.Hour)

	stream := events.NewStream(nil)
	defer stream.Destroy()

	// Live run, every gate deadline long past, and not a single position
	// arrives.  The idle sweep alone must resolve the gates by miss
	// deadline and end the run well before the finished-by time.
	gk := NewGatekeeper(rt, sc, c, stream, nil, true)
	done := make(chan error, 1)
	go func() { done <- gk.Run(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run kept waiting for positions")
	}

	r := gk.Reducer()
	entries := gateEntries(r)
	require.Len(t, entries, 3)
	for _, e := range entries {
		assert.Contains(t, e.Message, "missed gate")
	}
	assert.Equal(t, contest.StateFinished, r.Track().State)
}

func TestGatekeeperStateSurvivesRestart(t *testing.T) {
	t0 := testBase
	sc := route.DefaultScorecard()
	rt := buildRoute(t, sc)
	c := buildContestant(t0)

	stream := events.NewStream(nil)
	defer stream.Destroy()

	// The first gatekeeper scores an early starting-gate crossing worth 9
	// points and is then interrupted mid-run.
	first := NewGatekeeper(rt, sc, c, stream, nil, false)
	for _, p := range []contest.Position{
		pos(59.998, 10.0, t0.Add(-7*time.Second)),
		pos(60.002, 10.0, t0.Add(-3*time.Second)),
	} {
		first.append(p)
		first.checkMissDeadlines()
		first.checkGates()
		first.runCalculators()
	}
	require.InDelta(t, 9.0, first.Reducer().Track().Score, 0.01)

	snapshots := util.NewSnapshotStore(t.TempDir())
	require.NoError(t, snapshots.Store("contestant-1-state", first.saveState()))

	var st runState
	_, err := snapshots.Retrieve("contestant-1-state", &st)
	require.NoError(t, err)

	second := NewGatekeeper(rt, sc, c, stream, nil, false)
	second.restoreState(st)

	rest := []contest.Position{
		pos(60.198, 10.0, t0.Add(10*time.Minute-2*time.Second)),
		pos(60.202, 10.0, t0.Add(10*time.Minute+2*time.Second)),
		pos(60.398, 10.0, t0.Add(20*time.Minute-2*time.Second)),
		pos(60.402, 10.0, t0.Add(20*time.Minute+2*time.Second)),
	}
	in := second.In()
	for _, p := range rest {
		in <- p
	}
	close(in)
	require.NoError(t, second.Run(context.Background()))

	// The starting gate stays resolved across the restart: one entry,
	// charged once, with the carried score intact.
	r := second.Reducer()
	entries := gateEntries(r)
	require.Len(t, entries, 3)
	assert.Equal(t, "SP", entries[0].Gate)
	assert.InDelta(t, 9.0, entries[0].Points, 0.01)
	assert.Equal(t, "TP1", entries[1].Gate)
	assert.Equal(t, "FP", entries[2].Gate)
	assert.InDelta(t, 9.0, r.Track().Score, 0.01)
	assert.Equal(t, contest.StateFinished, r.Track().State)
}

func TestGatekeeperGatePassingTimesMonotone(t *testing.T) {
	t0 := testBase
	sc := route.DefaultScorecard()
	rt := buildRoute(t, sc)
	c := buildContestant(t0)

	track := []contest.Position{
		pos(59.998, 10.0, t0.Add(-2*time.Second)),
		pos(60.002, 10.0, t0.Add(2*time.Second)),
		pos(60.198, 10.0, t0.Add(9*time.Minute)),
		pos(60.202, 10.0, t0.Add(9*time.Minute+4*time.Second)),
		pos(60.398, 10.0, t0.Add(21*time.Minute)),
		pos(60.402, 10.0, t0.Add(21*time.Minute+4*time.Second)),
	}

	r, _ := runGatekeeper(t, rt, sc, c, track)

	entries := gateEntries(r)
	require.Len(t, entries, 3)
	var prev time.Time
	for _, e := range entries {
		require.False(t, e.ActualTime.IsZero())
		assert.False(t, e.ActualTime.Before(prev))
		prev = e.ActualTime
	}
}
