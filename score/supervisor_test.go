// score/supervisor_test.go
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

func TestSupervisorRunsContestantToCompletion(t *testing.T) {
	t0 := testBase
	sc := route.DefaultScorecard()
	rt := buildRoute(t, sc)
	c := buildContestant(t0)

	snapshots := util.NewSnapshotStore(t.TempDir())
	stream := events.NewStream(nil)
	defer stream.Destroy()

	s := NewSupervisor(rt, sc, stream, snapshots, nil, false)
	s.Start(context.Background())

	track := []contest.Position{
		pos(59.998, 10.0, t0.Add(-2*time.Second)),
		pos(60.002, 10.0, t0.Add(2*time.Second)),
		pos(60.198, 10.0, t0.Add(10*time.Minute-2*time.Second)),
		pos(60.202, 10.0, t0.Add(10*time.Minute+2*time.Second)),
		pos(60.398, 10.0, t0.Add(20*time.Minute-2*time.Second)),
		pos(60.402, 10.0, t0.Add(20*time.Minute+2*time.Second)),
	}
	for _, p := range track {
		s.Dispatch(c, p)
	}

	require.NoError(t, s.Wait())

	r := s.Tracker(c.ID)
	require.NotNil(t, r)
	assert.Equal(t, contest.StateFinished, r.Track().State)
	assert.Equal(t, 0.0, r.Track().Score)
	assert.True(t, snapshots.Exists(s.terminatedFlag(c.ID), time.Hour))
	assert.False(t, snapshots.Exists(s.runningFlag(c.ID), time.Hour))
}

func TestSupervisorHonorsTerminatedFlag(t *testing.T) {
	t0 := testBase
	sc := route.DefaultScorecard()
	rt := buildRoute(t, sc)
	c := buildContestant(t0)

	dir := t.TempDir()
	snapshots := util.NewSnapshotStore(dir)
	stream := events.NewStream(nil)
	defer stream.Destroy()

	s := NewSupervisor(rt, sc, stream, snapshots, nil, false)
	require.NoError(t, snapshots.Store(s.terminatedFlag(c.ID), time.Now()))

	s.Start(context.Background())
	s.Dispatch(c, pos(60.0, 10.0, t0))

	// The prior run already terminated; no worker may be spawned.
	assert.Nil(t, s.Tracker(c.ID))
	require.NoError(t, s.Wait())
}

func TestSendDroppingOldestKeepsNewest(t *testing.T) {
	t0 := testBase
	in := make(chan contest.Position, 2)

	assert.Equal(t, 0, sendDroppingOldest(in, pos(60.0, 10.0, t0)))
	assert.Equal(t, 0, sendDroppingOldest(in, pos(60.1, 10.0, t0.Add(time.Second))))

	// The channel is full; the oldest queued position makes room for the
	// newcomer, never the other way around.
	assert.Equal(t, 1, sendDroppingOldest(in, pos(60.2, 10.0, t0.Add(2*time.Second))))

	first, second := <-in, <-in
	assert.Equal(t, t0.Add(time.Second), first.DeviceTime)
	assert.Equal(t, t0.Add(2*time.Second), second.DeviceTime)
}

func TestSupervisorIgnoresPositionsOutsideWindow(t *testing.T) {
	t0 := testBase
	sc := route.DefaultScorecard()
	rt := buildRoute(t, sc)
	c := buildContestant(t0)

	s := NewSupervisor(rt, sc, events.NewStream(nil), nil, nil, false)
	s.Start(context.Background())

	s.Dispatch(c, pos(60.0, 10.0, c.FinishedByTime.Add(time.Hour)))
	assert.Nil(t, s.Tracker(c.ID))
}
