// score/gatekeeper.go
// Copyright(c) 2023-2026 flytrace contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package score

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/mmorken/flytrace/contest"
	"github.com/mmorken/flytrace/events"
	"github.com/mmorken/flytrace/geo"
	"github.com/mmorken/flytrace/log"
	"github.com/mmorken/flytrace/route"
	"github.com/mmorken/flytrace/util"
)

const (
	// tailLength bounds the position history kept for dwell timing.
	tailLength = 128

	// reorderWindow is how far out of device-time order a position may
	// arrive and still be slotted into the tail.
	reorderWindow = 3 * time.Second

	// gateRangeNM is how close to the next pending waypoint the
	// contestant must be for turns to stop counting as backtracking.
	gateRangeNM = 2.0

	gateScoreType = "gate"
)

// errInputClosed ends a replay run once every queued position has been
// scored.
var errInputClosed = errors.New("position channel closed")

// Gatekeeper owns one contestant's scoring run: the gate state machine
// and the ordered calculator list.  It is single-threaded; everything
// runs on the goroutine that calls Run.
type Gatekeeper struct {
	rt         *route.Route
	sc         *route.Scorecard
	contestant *contest.Contestant
	reducer    *Reducer
	lg         *log.Logger

	in   chan contest.Position
	live bool
	now  func() time.Time

	gates        []*route.Gate
	takeoffGates *route.MultiGate
	calculators  []Calculator
	poker        *PokerCalculator

	tail          *util.RingBuffer[contest.Position]
	lastGate      *route.Gate
	started       bool
	finished      bool
	passedTakeoff bool
	missDeadlines *util.TimedQueue[int]
	dropped       int
}

// NewGatekeeper builds the gatekeeper variant selected by the
// scorecard's calculator tag.  live selects wall-clock enforcement of
// the finished-by time; replayed tracks run on device time alone.
func NewGatekeeper(rt *route.Route, sc *route.Scorecard, c *contest.Contestant, stream *events.Stream, lg *log.Logger, live bool) *Gatekeeper {
	g := &Gatekeeper{
		rt:            rt,
		sc:            sc,
		contestant:    c,
		reducer:       NewReducer(c, stream, lg),
		lg:            lg,
		in:            make(chan contest.Position, 256),
		live:          live,
		now:           time.Now,
		tail:          util.NewRingBuffer[contest.Position](tailLength),
		missDeadlines: util.NewTimedQueue[int](),
	}

	g.gates = util.MapSlice(rt.Waypoints, func(wp *route.Waypoint) *route.Gate {
		return route.NewGate(wp, c.GateTimes[wp.Name])
	})
	if len(rt.TakeoffGates) > 0 {
		g.takeoffGates = route.NewMultiGate(util.MapSlice(rt.TakeoffGates,
			func(wp *route.Waypoint) *route.Gate { return route.NewGate(wp, c.TakeoffTime) }))
	}

	for i, gate := range g.gates {
		gs := sc.GateScoreFor(gate.Waypoint.Kind)
		if gs.MissDeadlineSeconds > 0 && !gate.ExpectedTime.IsZero() {
			deadline := gate.ExpectedTime.Add(time.Duration(gs.MissDeadlineSeconds * float64(time.Second)))
			g.missDeadlines.Put(i, deadline)
		}
	}

	switch sc.Calculator {
	case route.CalculatorPoker:
		seed := int64(c.ID)<<32 ^ c.TakeoffTime.Unix()
		g.poker = NewPokerCalculator(rt, sc, g.reducer, seed)
		g.calculators = []Calculator{
			NewProhibitedZoneCalculator(rt, sc, g.reducer),
			g.poker,
		}
	case route.CalculatorLanding:
		g.calculators = []Calculator{
			NewLandingCalculator(rt, sc, g.reducer),
			NewBacktrackingCalculator(rt, sc, g.reducer),
			NewProhibitedZoneCalculator(rt, sc, g.reducer),
		}
	case route.CalculatorANRCorridor, route.CalculatorAirsports:
		g.calculators = []Calculator{
			NewBacktrackingCalculator(rt, sc, g.reducer),
			NewCorridorCalculator(rt, sc, g.reducer),
			NewProhibitedZoneCalculator(rt, sc, g.reducer),
			NewPenaltyZoneCalculator(rt, sc, g.reducer),
		}
	default: // precision
		g.calculators = []Calculator{
			NewBacktrackingCalculator(rt, sc, g.reducer),
			NewProhibitedZoneCalculator(rt, sc, g.reducer),
			NewPenaltyZoneCalculator(rt, sc, g.reducer),
		}
	}
	return g
}

// In is the contestant's position input channel.
func (g *Gatekeeper) In() chan<- contest.Position { return g.in }

// Reducer exposes the contestant's scoring state for fan-out snapshots.
func (g *Gatekeeper) Reducer() *Reducer { return g.reducer }

// Run drives the scoring loop until the run terminates or the context is
// cancelled.
func (g *Gatekeeper) Run(ctx context.Context) error {
	defer g.missDeadlines.Close()

	g.reducer.Track().CalculatorStarted = true
	g.lg.Info("gatekeeper started",
		slog.Int("contestant", g.contestant.ID),
		slog.String("calculator", g.sc.Calculator.String()))

	for {
		batch, err := g.drainInput(ctx)
		if err != nil && !errors.Is(err, errInputClosed) {
			return err
		}

		if g.live && g.now().After(g.contestant.FinishedByTime) {
			g.terminate("finished-by time reached")
			return nil
		}

		// Each position gets its own evaluation pass so that a batched
		// arrival scores the same as a live trickle.
		for _, p := range batch {
			g.append(p)
			g.checkMissDeadlines()
			g.checkGates()
			g.runCalculators()

			if g.terminated() {
				g.terminate("route complete")
				return nil
			}
		}
		if len(batch) == 0 {
			// An idle tick can resolve the last pending gates by miss
			// deadline; the run must end then, not at finished-by time.
			g.checkMissDeadlines()
			if g.terminated() {
				g.terminate("route complete")
				return nil
			}
		}

		if errors.Is(err, errInputClosed) {
			g.terminate("input closed")
			return nil
		}
	}
}

// drainInput blocks up to a second for the first position, then takes
// whatever else is already queued.
func (g *Gatekeeper) drainInput(ctx context.Context) ([]contest.Position, error) {
	timer := time.NewTimer(time.Second)
	defer timer.Stop()

	var batch []contest.Position
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case p, ok := <-g.in:
		if !ok {
			return nil, errInputClosed
		}
		batch = append(batch, p)
	case <-timer.C:
		return nil, nil
	}

	for {
		select {
		case p, ok := <-g.in:
			if !ok {
				return batch, errInputClosed
			}
			batch = append(batch, p)
		default:
			return batch, nil
		}
	}
}

// append slots a position into the tail in device-time order, tolerating
// arrivals up to the reorder window late; anything older is dropped.
func (g *Gatekeeper) append(p contest.Position) {
	if n := g.tail.Size(); n > 0 {
		newest := g.tail.Get(n - 1)
		if p.DeviceTime.Before(newest.DeviceTime) {
			if newest.DeviceTime.Sub(p.DeviceTime) > reorderWindow {
				g.dropped++
				g.lg.Debug("dropped stale position",
					slog.Int("contestant", g.contestant.ID),
					slog.Time("deviceTime", p.DeviceTime))
				return
			}
			// Late but inside the window: reinsert in device-time order.
			s := g.tail.Slice()
			i := sort.Search(len(s), func(i int) bool { return s[i].DeviceTime.After(p.DeviceTime) })
			s = append(s, contest.Position{})
			copy(s[i+1:], s[i:])
			s[i] = p
			g.tail = util.NewRingBuffer[contest.Position](tailLength)
			g.tail.Add(s...)
			return
		}
	}
	g.tail.Add(p)
}

// deviceNow is the scoring clock: the newest position's device time, or
// the wall clock before any position has arrived.
func (g *Gatekeeper) deviceNow() time.Time {
	if n := g.tail.Size(); n > 0 {
		return g.tail.Get(n - 1).DeviceTime
	}
	return g.now()
}

func (g *Gatekeeper) checkMissDeadlines() {
	if g.sc.Calculator == route.CalculatorPoker {
		return
	}
	now := g.deviceNow()

	for {
		i, err := g.missDeadlines.Get(time.Millisecond)
		if err != nil {
			break
		}
		// The wall clock fired; only declare the miss once the scoring
		// clock agrees, otherwise requeue for later.
		gate := g.gates[i]
		gs := g.sc.GateScoreFor(gate.Waypoint.Kind)
		deadline := gate.ExpectedTime.Add(time.Duration(gs.MissDeadlineSeconds * float64(time.Second)))
		if g.live || !now.Before(deadline) {
			g.declareMissed(i, "no crossing before deadline")
		} else if !gate.Terminal() {
			g.missDeadlines.Put(i, time.Now().Add(time.Duration(gs.MissDeadlineSeconds*float64(time.Second))))
		}
	}

	// Replayed tracks advance on device time alone.
	for i, gate := range g.gates {
		if gate.Terminal() || gate.ExpectedTime.IsZero() {
			continue
		}
		gs := g.sc.GateScoreFor(gate.Waypoint.Kind)
		if gs.MissDeadlineSeconds <= 0 {
			continue
		}
		deadline := gate.ExpectedTime.Add(time.Duration(gs.MissDeadlineSeconds * float64(time.Second)))
		if now.After(deadline) {
			g.declareMissed(i, "no crossing before deadline")
		}
	}
}

// checkGates tests the latest segment against every pending gate in
// route order; crossing a later gate first declares the skipped gates
// missed.
func (g *Gatekeeper) checkGates() {
	// Poker runs consume waypoint polygons instead of gate lines.
	if g.sc.Calculator == route.CalculatorPoker {
		return
	}

	n := g.tail.Size()
	if n < 2 {
		return
	}
	p1, p2 := g.tail.Get(n-2), g.tail.Get(n-1)

	if g.takeoffGates != nil && !g.passedTakeoff {
		if tg, x, ok := g.takeoffGates.Intersect(p1.Point(), p2.Point(), p1.DeviceTime, p2.DeviceTime); ok {
			g.passedTakeoff = true
			g.reducer.UpdateScore(ScoreUpdate{
				Gate:        tg.Name(),
				GateType:    tg.Waypoint.Kind,
				Message:     fmt.Sprintf("passed takeoff gate %s", tg.Name()),
				Kind:        contest.EntryInformation,
				Time:        x.PassingTime,
				ActualTime:  x.PassingTime,
				Latitude:    x.Position.Latitude(),
				Longitude:   x.Position.Longitude(),
				HasPosition: true,
			})
		}
	}

	for i, gate := range g.gates {
		if gate.Terminal() {
			continue
		}
		x, ok := gate.Intersect(p1.Point(), p2.Point(), p1.DeviceTime, p2.DeviceTime)
		if !ok {
			continue
		}

		// Reaching a later gate first means the ones before it were
		// skipped.
		for j := 0; j < i; j++ {
			if !g.gates[j].Terminal() {
				g.declareMissed(j, "skipped")
			}
		}
		g.declarePassed(i, x)
	}
}

func (g *Gatekeeper) declarePassed(i int, x route.Intersection) {
	gate := g.gates[i]
	gate.PassingTime = x.PassingTime

	wp := gate.Waypoint
	gs := g.sc.GateScoreFor(wp.Kind)

	var offset, over float64
	if !gate.ExpectedTime.IsZero() {
		offset = x.PassingTime.Sub(gate.ExpectedTime).Seconds()
		if offset < 0 {
			over = -offset - gs.GraceperiodBefore
		} else {
			over = offset - gs.GraceperiodAfter
		}
		if over < 0 {
			over = 0
		}
	}

	penalty := gs.PenaltyPerSecond * over
	if gs.MaximumPenalty > 0 {
		penalty = util.Clamp(penalty, 0, gs.MaximumPenalty)
	}

	var msg string
	switch {
	case over == 0:
		msg = fmt.Sprintf("passed gate %s on time", wp.Name)
	case offset < 0:
		msg = fmt.Sprintf("passed gate %s %.0f s early", wp.Name, -offset)
	default:
		msg = fmt.Sprintf("passed gate %s %.0f s late", wp.Name, offset)
	}

	kind := contest.EntryInformation
	if penalty > 0 {
		kind = contest.EntryAnomaly
	}
	g.reducer.UpdateScore(ScoreUpdate{
		Gate:        wp.Name,
		GateType:    wp.Kind,
		Points:      penalty,
		Message:     msg,
		Kind:        kind,
		ScoreType:   gateScoreType,
		PlannedTime: gate.ExpectedTime,
		ActualTime:  x.PassingTime,
		Time:        x.PassingTime,
		Latitude:    x.Position.Latitude(),
		Longitude:   x.Position.Longitude(),
		HasPosition: true,
	})

	if wp.Kind == route.KindStarting && !g.started {
		g.started = true
		g.reducer.SetState(contest.StateTracking)
	}
	if wp.Kind == route.KindFinish {
		g.finished = true
	}
	g.advance(i, x.PassingTime)
}

func (g *Gatekeeper) declareMissed(i int, reason string) {
	gate := g.gates[i]
	if gate.Terminal() {
		return
	}
	gate.Missed = true

	wp := gate.Waypoint
	gs := g.sc.GateScoreFor(wp.Kind)

	g.reducer.UpdateScore(ScoreUpdate{
		Gate:        wp.Name,
		GateType:    wp.Kind,
		Points:      gs.MissedPenalty,
		Message:     fmt.Sprintf("missed gate %s (%s)", wp.Name, reason),
		Kind:        contest.EntryAnomaly,
		ScoreType:   gateScoreType,
		PlannedTime: gate.ExpectedTime,
		Time:        g.deviceNow(),
	})
	if wp.IsProcedureTurn {
		g.reducer.UpdateScore(ScoreUpdate{
			Gate:      wp.Name,
			GateType:  wp.Kind,
			Points:    gs.MissedProcedureTurnPenalty,
			Message:   fmt.Sprintf("missing procedure turn at %s", wp.Name),
			Kind:      contest.EntryAnomaly,
			ScoreType: procedureTurnScoreType,
			Time:      g.deviceNow(),
		})
	}
	if wp.Kind == route.KindFinish {
		g.finished = true
	}
	g.advance(i, time.Time{})
}

// advance moves the last-gate pointer forward and publishes the state
// change; earlier gates never move it backwards.
func (g *Gatekeeper) advance(i int, passed time.Time) {
	gate := g.gates[i]
	if g.lastGate != nil {
		cur := g.gateIndex(g.lastGate)
		if cur >= i {
			return
		}
	}
	g.lastGate = gate

	var offset float64
	if !passed.IsZero() && !gate.ExpectedTime.IsZero() {
		offset = passed.Sub(gate.ExpectedTime).Seconds()
	}
	leg := ""
	if i+1 < len(g.gates) {
		leg = fmt.Sprintf("%s - %s", gate.Waypoint.Name, g.gates[i+1].Waypoint.Name)
	}
	g.reducer.SetLastGate(gate.Waypoint.Name, offset, leg)
}

func (g *Gatekeeper) gateIndex(gate *route.Gate) int {
	for i, x := range g.gates {
		if x == gate {
			return i
		}
	}
	return -1
}

// inRangeOfGate reports whether the newest position is close to the next
// pending waypoint or the one just resolved.
func (g *Gatekeeper) inRangeOfGate() bool {
	n := g.tail.Size()
	if n == 0 {
		return false
	}
	p := g.tail.Get(n - 1).Point()

	if g.lastGate != nil && geo.DistanceNM(p, g.lastGate.Waypoint.Point()) < gateRangeNM {
		return true
	}
	for _, gate := range g.gates {
		if !gate.Terminal() {
			return geo.DistanceNM(p, gate.Waypoint.Point()) < gateRangeNM
		}
	}
	return false
}

func (g *Gatekeeper) runCalculators() {
	inRange := g.inRangeOfGate()
	tail := g.tail.Slice()

	for _, c := range g.calculators {
		g.runCalculator(c, func() {
			switch {
			case g.finished:
				c.PassedFinishpoint(tail, g.lastGate)
			case g.started:
				c.CalculateEnroute(tail, g.lastGate, inRange)
			default:
				c.CalculateOutsideRoute(tail, g.lastGate)
			}
		})
	}
}

// runCalculator isolates one calculator tick; a panic skips the tick for
// that calculator only.
func (g *Gatekeeper) runCalculator(c Calculator, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			g.lg.Error("calculator failed",
				slog.String("calculator", c.Name()),
				slog.Int("contestant", g.contestant.ID),
				slog.Any("error", r))
			g.reducer.UpdateScore(ScoreUpdate{
				Message: fmt.Sprintf("calculator %s failed: %v", c.Name(), r),
				Kind:    contest.EntryDebug,
				Time:    g.deviceNow(),
			})
		}
	}()
	fn()
}

// terminated reports whether the run is complete under the variant's
// termination rule.
func (g *Gatekeeper) terminated() bool {
	switch g.sc.Calculator {
	case route.CalculatorPoker:
		return g.poker.Finished()
	case route.CalculatorLanding:
		return false // runs until the finished-by time
	default:
		for _, gate := range g.gates {
			if !gate.Terminal() {
				return false
			}
		}
		return len(g.gates) > 0
	}
}

// runState is the persisted form of a scoring run, written by the
// supervisor before a restart and restored into the replacement
// gatekeeper so resolved gates stay resolved and the score carries over.
type runState struct {
	Track         *contest.ContestantTrack
	Entries       []*contest.ScoreLogEntry
	Cards         []contest.PlayingCard
	Passed        map[string]time.Time
	Missed        []string
	Started       bool
	Finished      bool
	PassedTakeoff bool
}

func (g *Gatekeeper) saveState() runState {
	st := runState{
		Track:         g.reducer.Track(),
		Entries:       g.reducer.Entries(),
		Cards:         g.reducer.Cards(),
		Passed:        make(map[string]time.Time),
		Started:       g.started,
		Finished:      g.finished,
		PassedTakeoff: g.passedTakeoff,
	}
	for _, gate := range g.gates {
		switch {
		case !gate.PassingTime.IsZero():
			st.Passed[gate.Name()] = gate.PassingTime
		case gate.Missed:
			st.Missed = append(st.Missed, gate.Name())
		}
	}
	return st
}

func (g *Gatekeeper) restoreState(st runState) {
	if st.Track != nil && st.Track.GateScores == nil {
		st.Track.GateScores = make(map[string]float64)
	}
	g.reducer.Restore(st.Track, st.Entries, st.Cards)

	g.started = st.Started
	g.finished = st.Finished
	g.passedTakeoff = st.PassedTakeoff

	missed := make(map[string]bool, len(st.Missed))
	for _, name := range st.Missed {
		missed[name] = true
	}
	for i, gate := range g.gates {
		if t, ok := st.Passed[gate.Name()]; ok {
			gate.PassingTime = t
		} else if missed[gate.Name()] {
			gate.Missed = true
		}
		// Queued miss deadlines for terminal gates fire into
		// declareMissed, which ignores them.
		if gate.Terminal() {
			g.lastGate = g.gates[i]
		}
	}
}

func (g *Gatekeeper) terminate(reason string) {
	tail := g.tail.Slice()
	for _, c := range g.calculators {
		g.runCalculator(c, func() { c.PassedFinishpoint(tail, g.lastGate) })
	}
	g.reducer.SetState(contest.StateFinished)
	g.reducer.Track().CalculatorFinished = true
	g.lg.Info("gatekeeper terminated",
		slog.Int("contestant", g.contestant.ID),
		slog.String("reason", reason),
		slog.Float64("score", g.reducer.Track().Score))
}
