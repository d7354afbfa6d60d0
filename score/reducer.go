// score/reducer.go
// Copyright(c) 2023-2026 flytrace contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package score

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mmorken/flytrace/contest"
	"github.com/mmorken/flytrace/events"
	"github.com/mmorken/flytrace/log"
	"github.com/mmorken/flytrace/route"
)

// ScoreUpdate describes one scoring decision to apply.
type ScoreUpdate struct {
	Gate     string
	GateType route.WaypointKind
	Points   float64
	Message  string
	Kind     contest.EntryKind

	// ScoreType groups entries for per-type penalty caps.
	ScoreType string
	// Maximum caps the cumulative penalty for this score type; zero
	// means uncapped, negative explicitly uncapped.
	Maximum float64

	// Existing, when non-nil, updates that entry in place rather than
	// appending a new one (running totals for zones and corridors).
	Existing *contest.ScoreLogEntry

	Time        time.Time
	PlannedTime time.Time
	ActualTime  time.Time

	Latitude    float64
	Longitude   float64
	HasPosition bool
}

// Reducer accumulates the score for one contestant.  The scoring worker
// is the single writer; the mutex only guards concurrent snapshot reads
// from the fan-out path.
type Reducer struct {
	mu sync.Mutex

	contestant  *contest.Contestant
	track       *contest.ContestantTrack
	entries     []*contest.ScoreLogEntry
	annotations []*contest.TrackAnnotation
	cards       []contest.PlayingCard

	// cumulative penalty per score type, for caps
	typeTotals map[string]float64

	// fold window bookkeeping
	lastEntry    *contest.ScoreLogEntry
	lastPosition [2]float64

	stream *events.Stream
	lg     *log.Logger
}

func NewReducer(c *contest.Contestant, stream *events.Stream, lg *log.Logger) *Reducer {
	return &Reducer{
		contestant: c,
		track:      contest.NewContestantTrack(c.ID),
		typeTotals: make(map[string]float64),
		stream:     stream,
		lg:         lg,
	}
}

func (r *Reducer) Track() *contest.ContestantTrack {
	return r.track
}

func (r *Reducer) Contestant() *contest.Contestant {
	return r.contestant
}

// Entries returns a copy of the contestant's score log.
func (r *Reducer) Entries() []*contest.ScoreLogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*contest.ScoreLogEntry(nil), r.entries...)
}

func (r *Reducer) Annotations() []*contest.TrackAnnotation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*contest.TrackAnnotation(nil), r.annotations...)
}

func (r *Reducer) Cards() []contest.PlayingCard {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]contest.PlayingCard(nil), r.cards...)
}

// Restore rehydrates state persisted from an earlier run of the same
// contestant, rebuilding the per-type totals the caps depend on.
func (r *Reducer) Restore(track *contest.ContestantTrack, entries []*contest.ScoreLogEntry, cards []contest.PlayingCard) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if track != nil {
		r.track = track
	}
	r.entries = entries
	r.cards = cards
	r.typeTotals = make(map[string]float64)
	for _, e := range entries {
		if e.ScoreType != "" {
			r.typeTotals[e.ScoreType] += e.Points
		}
	}
	if n := len(entries); n > 0 {
		r.lastEntry = entries[n-1]
	}
}

// UpdateScore applies one scoring decision and returns the affected log
// entry so that callers can later update running totals in place.
func (r *Reducer) UpdateScore(u ScoreUpdate) *contest.ScoreLogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u.Time.IsZero() {
		u.Time = time.Now()
	}

	if u.Existing != nil {
		return r.updateExisting(u)
	}

	// Fold duplicate updates: same gate, type and message at the same
	// position within one second of the previous entry.
	if r.lastEntry != nil && u.HasPosition &&
		r.lastEntry.Gate == u.Gate && r.lastEntry.ScoreType == u.ScoreType &&
		r.lastEntry.Message == u.Message &&
		r.lastPosition == [2]float64{u.Latitude, u.Longitude} &&
		u.Time.Sub(r.lastEntry.Time) < time.Second {
		r.lg.Debug("folded duplicate score update",
			slog.String("gate", u.Gate), slog.String("message", u.Message))
		return r.lastEntry
	}

	points := r.capPoints(u.ScoreType, u.Points, u.Maximum)

	entry := &contest.ScoreLogEntry{
		ID:           uuid.New(),
		Time:         u.Time,
		ContestantID: r.contestant.ID,
		Gate:         u.Gate,
		Message:      u.Message,
		Points:       points,
		PlannedTime:  u.PlannedTime,
		ActualTime:   u.ActualTime,
		Kind:         u.Kind,
		ScoreType:    u.ScoreType,
	}
	r.entries = append(r.entries, entry)
	r.lastEntry = entry
	if u.HasPosition {
		r.lastPosition = [2]float64{u.Latitude, u.Longitude}
	}

	r.track.Score += points
	if u.Gate != "" {
		r.track.GateScores[u.Gate] += points
	}

	if u.HasPosition {
		r.annotations = append(r.annotations, &contest.TrackAnnotation{
			ID:           uuid.New(),
			ContestantID: r.contestant.ID,
			Latitude:     u.Latitude,
			Longitude:    u.Longitude,
			Time:         u.Time,
			Kind:         u.Kind,
			Gate:         u.Gate,
			GateType:     u.GateType,
			Message:      u.Message,
			EntryID:      entry.ID,
		})
		r.postAnnotation(u)
	}

	r.postScore(entry)
	return entry
}

// updateExisting adjusts a prior running entry to the new total for its
// score type, respecting the cap.
func (r *Reducer) updateExisting(u ScoreUpdate) *contest.ScoreLogEntry {
	e := u.Existing
	delta := u.Points - e.Points
	delta = r.capPoints(u.ScoreType, delta, u.Maximum)
	if delta == 0 && u.Message == e.Message {
		return e
	}

	e.Points += delta
	e.Time = u.Time
	if u.Message != "" {
		e.Message = u.Message
	}

	r.track.Score += delta
	if e.Gate != "" {
		r.track.GateScores[e.Gate] += delta
	}

	r.postScore(e)
	return e
}

// capPoints clips the delta so the cumulative total for the score type
// stays within the maximum, and records the applied amount.
func (r *Reducer) capPoints(scoreType string, delta, maximum float64) float64 {
	if scoreType == "" || maximum <= 0 {
		if scoreType != "" {
			r.typeTotals[scoreType] += delta
		}
		return delta
	}

	total := r.typeTotals[scoreType]
	if total+delta > maximum {
		delta = maximum - total
		if delta < 0 {
			delta = 0
		}
	}
	r.typeTotals[scoreType] += delta
	return delta
}

func (r *Reducer) postScore(e *contest.ScoreLogEntry) {
	gateScores := make(map[string]float64, len(r.track.GateScores))
	for k, v := range r.track.GateScores {
		gateScores[k] = v
	}

	r.stream.Post(events.Event{
		Type:             events.ScoreChangedEvent,
		NavigationTaskID: r.contestant.NavigationTaskID,
		ContestantID:     r.contestant.ID,
		TotalScore:       r.track.Score,
		GateScores:       gateScores,
		Gate:             e.Gate,
		Message:          e.Message,
		Points:           e.Points,
		EntryKind:        e.Kind.String(),
		LogTime:          e.Time,
	})
}

func (r *Reducer) postAnnotation(u ScoreUpdate) {
	r.stream.Post(events.Event{
		Type:             events.AnnotationEvent,
		NavigationTaskID: r.contestant.NavigationTaskID,
		ContestantID:     r.contestant.ID,
		Latitude:         u.Latitude,
		Longitude:        u.Longitude,
		Time:             u.Time,
		Message:          u.Message,
		EntryKind:        u.Kind.String(),
		Gate:             u.Gate,
		GateType:         u.GateType.String(),
	})
}

///////////////////////////////////////////////////////////////////////////
// state changes

// SetState transitions the contestant's tracking state and publishes the
// change.
func (r *Reducer) SetState(s contest.ContestantState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.track.State == s {
		return
	}
	r.track.State = s
	r.postState()
}

// SetLastGate records the most recent resolved gate and the current leg.
func (r *Reducer) SetLastGate(gate string, timeOffset float64, currentLeg string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.track.LastGate = gate
	r.track.LastGateTimeOffset = timeOffset
	r.track.CurrentLeg = currentLeg
	r.postState()
}

func (r *Reducer) postState() {
	r.stream.Post(events.Event{
		Type:               events.ContestantStateEvent,
		NavigationTaskID:   r.contestant.NavigationTaskID,
		ContestantID:       r.contestant.ID,
		State:              r.track.State.String(),
		CurrentLeg:         r.track.CurrentLeg,
		LastGate:           r.track.LastGate,
		LastGateTimeOffset: r.track.LastGateTimeOffset,
	})
}

// AwardCard records a playing card won at a poker run waypoint and
// publishes the new hand score.
func (r *Reducer) AwardCard(card, waypoint string, handScore float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cards = append(r.cards, contest.PlayingCard{
		ContestantID: r.contestant.ID,
		Card:         card,
		Waypoint:     waypoint,
		Index:        len(r.cards),
	})

	r.stream.Post(events.Event{
		Type:             events.CardAwardedEvent,
		NavigationTaskID: r.contestant.NavigationTaskID,
		ContestantID:     r.contestant.ID,
		Gate:             waypoint,
		Card:             card,
		CardScore:        handScore,
	})
}
