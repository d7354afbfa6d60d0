// ingest/intake.go
// Copyright(c) 2023-2026 flytrace contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package ingest receives tracker positions from the upstream websocket,
// the HTTP fallback endpoint and Flymaster bulk uploads, resolves them
// to contestants and hands them to the scoring supervisor.
package ingest

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mmorken/flytrace/contest"
	"github.com/mmorken/flytrace/events"
	"github.com/mmorken/flytrace/log"
	"github.com/mmorken/flytrace/util"
)

// notLiveAfter is how long the intake may go without a frame before it
// reports not-live.
const notLiveAfter = 5 * time.Minute

// Dispatcher receives resolved positions; the scoring supervisor
// implements it.
type Dispatcher interface {
	Dispatch(c *contest.Contestant, p contest.Position)
}

// Intake is the shared funnel behind every ingestion path.  It resolves
// tracker ids to contestants, forwards positions to the dispatcher and
// publishes live positions to the fan-out stream.
type Intake struct {
	resolver   *contest.Resolver
	dispatcher Dispatcher
	stream     *events.Stream
	lg         *log.Logger

	mu   sync.Mutex
	seen *util.TransientMap[dedupKey, struct{}]

	lastFrame atomic.Int64 // unix nanos of the last accepted record
	malformed atomic.Int64
}

type dedupKey struct {
	tracker string
	nanos   int64
}

func NewIntake(resolver *contest.Resolver, dispatcher Dispatcher, stream *events.Stream, lg *log.Logger) *Intake {
	return &Intake{
		resolver:   resolver,
		dispatcher: dispatcher,
		stream:     stream,
		lg:         lg,
		seen:       util.NewTransientMap[dedupKey, struct{}](),
	}
}

// duplicate reports whether the same tracker already reported this
// device time; the upstream batches overlap after reconnects.
func (in *Intake) duplicate(p contest.Position) bool {
	key := dedupKey{tracker: p.TrackerID, nanos: p.DeviceTime.UnixNano()}

	in.mu.Lock()
	defer in.mu.Unlock()
	if _, ok := in.seen.Get(key); ok {
		return true
	}
	in.seen.Add(key, struct{}{}, notLiveAfter)
	return false
}

// Process resolves and routes one position.  A position whose tracker
// belongs to no active contestant still reaches the global map; it just
// carries no scoring identity.
func (in *Intake) Process(p contest.Position) {
	in.lastFrame.Store(time.Now().UnixNano())

	if in.duplicate(p) {
		return
	}

	c, simulator, err := in.resolver.Resolve(p.TrackerKind, p.TrackerID, p.DeviceTime)
	if err != nil {
		in.lg.Warn("resolving tracker", slog.String("tracker", p.TrackerID), slog.Any("error", err))
		return
	}
	p.Simulator = simulator
	p.ReceivedTime = time.Now()

	if c == nil {
		// No contestant is bound to the tracker right now; forward to
		// the map only, labeled by tracker id.
		if !simulator {
			in.postPosition(p, 0, 0, p.TrackerID)
		}
		return
	}

	in.dispatcher.Dispatch(c, p)

	// Simulator traffic is scored but never shown on the public map.
	if !simulator {
		in.postPosition(p, c.NavigationTaskID, c.ID, c.Registration)
	}
}

func (in *Intake) postPosition(p contest.Position, taskID, contestantID int, registration string) {
	in.stream.Post(events.Event{
		Type:             events.PositionEvent,
		NavigationTaskID: taskID,
		ContestantID:     contestantID,
		Registration:     registration,
		Latitude:         p.Latitude,
		Longitude:        p.Longitude,
		Altitude:         p.Altitude,
		Speed:            p.Speed,
		Course:           p.Course,
		Time:             p.DeviceTime,
	})
}

// Live reports whether a record has been accepted recently enough for
// the intake to be considered healthy.
func (in *Intake) Live() bool {
	last := in.lastFrame.Load()
	return last != 0 && time.Since(time.Unix(0, last)) < notLiveAfter
}

// Malformed returns the number of records dropped as unparseable.
func (in *Intake) Malformed() int64 {
	return in.malformed.Load()
}

func (in *Intake) recordMalformed(what string, err error) {
	in.malformed.Add(1)
	in.lg.Debug("dropping malformed record", slog.String("source", what), slog.Any("error", err))
}
