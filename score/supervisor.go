// score/supervisor.go
// Copyright(c) 2023-2026 flytrace contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package score

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mmorken/flytrace/contest"
	"github.com/mmorken/flytrace/events"
	"github.com/mmorken/flytrace/log"
	"github.com/mmorken/flytrace/route"
	"github.com/mmorken/flytrace/util"
)

const (
	maxRestarts   = 3
	restartWindow = 10 * time.Minute
	workerFlagTTL = 6 * time.Hour
)

// Supervisor spawns one gatekeeper worker per contestant in its tracking
// window, restarts crashed workers and persists running/terminated flags
// so that a process restart can tell finished runs from interrupted
// ones.
type Supervisor struct {
	rt        *route.Route
	sc        *route.Scorecard
	stream    *events.Stream
	snapshots *util.SnapshotStore
	lg        *log.Logger
	live      bool

	mu      sync.Mutex
	ctx     context.Context
	group   *errgroup.Group
	workers map[int]*worker
}

type worker struct {
	gk       *Gatekeeper
	cancel   context.CancelFunc
	restarts []time.Time
	fatal    bool
}

func NewSupervisor(rt *route.Route, sc *route.Scorecard, stream *events.Stream, snapshots *util.SnapshotStore, lg *log.Logger, live bool) *Supervisor {
	return &Supervisor{
		rt:        rt,
		sc:        sc,
		stream:    stream,
		snapshots: snapshots,
		lg:        lg,
		live:      live,
		workers:   make(map[int]*worker),
	}
}

// Start binds the supervisor's worker group to the given context; it
// must be called before Dispatch.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.group, s.ctx = errgroup.WithContext(ctx)
}

// Dispatch routes one position to its contestant's worker, spawning the
// worker if the contestant just entered its tracking window.  Positions
// for contestants whose run already terminated are dropped.
func (s *Supervisor) Dispatch(c *contest.Contestant, p contest.Position) {
	if !c.Tracking(p.DeviceTime) {
		return
	}

	s.mu.Lock()
	w, ok := s.workers[c.ID]
	if !ok {
		if s.snapshots != nil && s.snapshots.Exists(s.terminatedFlag(c.ID), workerFlagTTL) {
			s.mu.Unlock()
			return
		}
		w = s.spawn(c)
	}
	fatal, in := w.fatal, w.gk.in
	s.mu.Unlock()

	if fatal {
		return
	}
	if dropped := sendDroppingOldest(in, p); dropped > 0 {
		s.lg.Warn("contestant channel full, dropped oldest positions",
			slog.Int("contestant", c.ID), slog.Int("dropped", dropped))
	}
}

// sendDroppingOldest delivers p on in, discarding queued positions from
// the head when the channel is full.  The newest fix carries the segment
// the gate tests need, so it is the one worth keeping.  The dispatcher
// is the only sender, so freeing one slot always makes room.
func sendDroppingOldest(in chan contest.Position, p contest.Position) int {
	dropped := 0
	for {
		select {
		case in <- p:
			return dropped
		default:
		}
		select {
		case <-in:
			dropped++
		default:
		}
	}
}

// Tracker returns the live scoring state for a contestant, or nil if no
// worker exists.
func (s *Supervisor) Tracker(contestantID int) *Reducer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.workers[contestantID]; ok {
		return w.gk.Reducer()
	}
	return nil
}

// Trackers returns the live scoring state of every active worker; the
// fan-out server uses it to build connect-time snapshots.
func (s *Supervisor) Trackers() []*Reducer {
	s.mu.Lock()
	defer s.mu.Unlock()
	trackers := make([]*Reducer, 0, len(s.workers))
	for _, w := range s.workers {
		trackers = append(trackers, w.gk.Reducer())
	}
	return trackers
}

// StopWorker requests clean termination of one contestant's worker.
func (s *Supervisor) StopWorker(contestantID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.workers[contestantID]; ok {
		w.cancel()
	}
}

// Wait blocks until every worker has exited.
func (s *Supervisor) Wait() error {
	s.mu.Lock()
	g := s.group
	s.mu.Unlock()
	if g == nil {
		return nil
	}
	return g.Wait()
}

// spawn must be called with the mutex held.
func (s *Supervisor) spawn(c *contest.Contestant) *worker {
	ctx, cancel := context.WithCancel(s.ctx)
	w := &worker{
		gk:     NewGatekeeper(s.rt, s.sc, c, s.stream, s.lg, s.live),
		cancel: cancel,
	}
	s.workers[c.ID] = w

	if s.snapshots != nil {
		// A leftover running flag means the previous process was
		// interrupted mid-run; pick up its persisted state.
		if s.snapshots.Exists(s.runningFlag(c.ID), workerFlagTTL) {
			s.restoreState(c, w.gk)
		}
		if err := s.snapshots.Store(s.runningFlag(c.ID), time.Now()); err != nil {
			s.lg.Warn("storing running flag", slog.Any("error", err))
		}
	}

	s.group.Go(func() error {
		s.supervise(ctx, c, w)
		return nil
	})
	return w
}

// supervise runs the worker's gatekeeper, restarting after crashes until
// the restart budget is exhausted.
func (s *Supervisor) supervise(ctx context.Context, c *contest.Contestant, w *worker) {
	for {
		err := s.runOnce(ctx, w)
		if err == nil || ctx.Err() != nil {
			s.finish(c, w)
			return
		}

		s.lg.Error("gatekeeper crashed",
			slog.Int("contestant", c.ID), slog.Any("error", err))

		now := time.Now()
		s.mu.Lock()
		w.restarts = append(w.restarts, now)
		w.restarts = util.FilterSliceInPlace(w.restarts,
			func(t time.Time) bool { return now.Sub(t) <= restartWindow })
		if len(w.restarts) > maxRestarts {
			w.fatal = true
			s.mu.Unlock()
			s.fail(c, w, err)
			return
		}
		// Queued positions on the old channel are lost with the crash;
		// the scoring state carries over through the snapshot store.
		s.persistState(c, w.gk)
		w.gk = NewGatekeeper(s.rt, s.sc, c, s.stream, s.lg, s.live)
		s.restoreState(c, w.gk)
		s.mu.Unlock()
	}
}

func (s *Supervisor) persistState(c *contest.Contestant, gk *Gatekeeper) {
	if s.snapshots == nil {
		return
	}
	if err := s.snapshots.Store(s.stateName(c.ID), gk.saveState()); err != nil {
		s.lg.Warn("persisting run state",
			slog.Int("contestant", c.ID), slog.Any("error", err))
	}
}

// restoreState rehydrates a fresh gatekeeper from the persisted state of
// an interrupted run, so a restart neither loses the score so far nor
// re-penalises gates that were already resolved.
func (s *Supervisor) restoreState(c *contest.Contestant, gk *Gatekeeper) {
	if s.snapshots == nil {
		return
	}
	var st runState
	stored, err := s.snapshots.Retrieve(s.stateName(c.ID), &st)
	if err != nil || time.Since(stored) > workerFlagTTL {
		return
	}
	gk.restoreState(st)
	s.lg.Info("resumed interrupted run",
		slog.Int("contestant", c.ID),
		slog.Float64("score", gk.Reducer().Track().Score))
}

func (s *Supervisor) runOnce(ctx context.Context, w *worker) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("gatekeeper panic: %v", r)
		}
	}()

	s.mu.Lock()
	gk := w.gk
	s.mu.Unlock()

	err = gk.Run(ctx)
	if err == context.Canceled || err == context.DeadlineExceeded {
		err = nil
	}
	return err
}

func (s *Supervisor) finish(c *contest.Contestant, w *worker) {
	if s.snapshots != nil {
		if err := s.snapshots.Store(s.terminatedFlag(c.ID), time.Now()); err != nil {
			s.lg.Warn("storing terminated flag", slog.Any("error", err))
		}
		if err := s.snapshots.Delete(s.runningFlag(c.ID)); err != nil {
			s.lg.Debug("deleting running flag", slog.Any("error", err))
		}
		if err := s.snapshots.Delete(s.stateName(c.ID)); err != nil {
			s.lg.Debug("deleting run state", slog.Any("error", err))
		}
	}
}

// fail marks the contestant finished with a diagnostic entry after the
// restart budget is spent.
func (s *Supervisor) fail(c *contest.Contestant, w *worker, err error) {
	r := w.gk.Reducer()
	r.UpdateScore(ScoreUpdate{
		Message: fmt.Sprintf("scoring stopped after repeated failures: %v", err),
		Kind:    contest.EntryDebug,
		Time:    time.Now(),
	})
	r.SetState(contest.StateFinished)
	s.finish(c, w)
}

func (s *Supervisor) runningFlag(id int) string {
	return fmt.Sprintf("contestant-%d-running", id)
}

func (s *Supervisor) terminatedFlag(id int) string {
	return fmt.Sprintf("contestant-%d-terminated", id)
}

func (s *Supervisor) stateName(id int) string {
	return fmt.Sprintf("contestant-%d-state", id)
}
