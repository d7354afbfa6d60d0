// sched/sched.go
// Copyright(c) 2023-2026 flytrace contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package sched assigns start slots to teams before a navigation task.
// The assignment is a constraint satisfaction search over one-minute
// slots: aircraft, trackers and crew may not be double-booked, starts
// must be spaced, and the makespan is minimised.
package sched

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

var ErrTimeout = errors.New("scheduling timed out")

// Team is one scheduling request.
type Team struct {
	PK int
	ID string

	FlightMinutes int
	AircraftID    string
	TrackerID     string
	TrackerKind   string
	CrewIDs       []string
}

// Constraints are the spacing rules applied between the teams' intervals,
// all in minutes.
type Constraints struct {
	AircraftSwitchTime   int
	TrackerSwitchTime    int
	TrackerStartLeadTime int
	CrewSwitchTime       int
	MinimumStartInterval int
}

// Assignment is the scheduled slot for one team.
type Assignment struct {
	Team      Team
	Slot      int // minutes from the horizon start
	StartTime time.Time
}

// Budget is the search budget per batch.
const Budget = 60 * time.Second

type interval struct{ lo, hi int }

func (a interval) overlaps(b interval) bool {
	return a.lo < b.hi && b.lo < a.hi
}

type solver struct {
	teams       []Team
	cons        Constraints
	horizon     int
	deadline    time.Time
	assignments []int // slot per team, -1 unassigned

	best     []int
	bestSpan int
}

// Schedule assigns every team a start slot within the horizon (in
// minutes), minimising the makespan.  Teams are processed and returned
// in (pk, id) order so results are stable.  The search gives up with
// ErrTimeout when the budget is exhausted and no solution was found.
func Schedule(ctx context.Context, teams []Team, cons Constraints, horizonStart time.Time, horizonMinutes int) ([]Assignment, error) {
	if len(teams) == 0 {
		return nil, nil
	}

	ordered := append([]Team(nil), teams...)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].PK != ordered[j].PK {
			return ordered[i].PK < ordered[j].PK
		}
		return ordered[i].ID < ordered[j].ID
	})

	s := &solver{
		teams:       ordered,
		cons:        cons,
		horizon:     horizonMinutes,
		deadline:    time.Now().Add(Budget),
		assignments: make([]int, len(ordered)),
		bestSpan:    horizonMinutes + 1,
	}
	for i := range s.assignments {
		s.assignments[i] = -1
	}

	if err := s.search(ctx, 0); err != nil {
		return nil, err
	}
	if s.best == nil {
		return nil, fmt.Errorf("no feasible schedule for %d teams in %d minutes", len(ordered), horizonMinutes)
	}

	out := make([]Assignment, len(ordered))
	for i, team := range ordered {
		out[i] = Assignment{
			Team:      team,
			Slot:      s.best[i],
			StartTime: horizonStart.Add(time.Duration(s.best[i]) * time.Minute),
		}
	}
	return out, nil
}

// search extends the partial assignment team by team, chronologically
// trying each feasible slot.  Completed solutions tighten the makespan
// bound used to prune the rest of the search.
func (s *solver) search(ctx context.Context, i int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if time.Now().After(s.deadline) {
		if s.best != nil {
			return nil
		}
		return ErrTimeout
	}

	if i == len(s.teams) {
		span := s.makespan()
		if span < s.bestSpan {
			s.bestSpan = span
			s.best = append([]int(nil), s.assignments...)
		}
		return nil
	}

	for slot := 0; slot <= s.horizon-s.teams[i].FlightMinutes; slot++ {
		// A slot that cannot beat the best finished schedule is dead.
		if slot+s.teams[i].FlightMinutes >= s.bestSpan {
			break
		}
		if !s.feasible(i, slot) {
			continue
		}
		s.assignments[i] = slot
		if err := s.search(ctx, i+1); err != nil {
			s.assignments[i] = -1
			return err
		}
		s.assignments[i] = -1
	}
	return nil
}

func (s *solver) makespan() int {
	span := 0
	for i, slot := range s.assignments {
		if end := slot + s.teams[i].FlightMinutes; end > span {
			span = end
		}
	}
	return span
}

// feasible checks team i at the candidate slot against every already
// assigned team.
func (s *solver) feasible(i, slot int) bool {
	a := s.teams[i]

	for j, other := range s.assignments {
		if j == i || other < 0 {
			continue
		}
		b := s.teams[j]

		if abs(slot-other) < s.cons.MinimumStartInterval {
			return false
		}

		if a.AircraftID != "" && a.AircraftID == b.AircraftID {
			ia := interval{slot, slot + a.FlightMinutes + s.cons.AircraftSwitchTime}
			ib := interval{other, other + b.FlightMinutes + s.cons.AircraftSwitchTime}
			if ia.overlaps(ib) {
				return false
			}
		}

		if a.TrackerID != "" && a.TrackerID == b.TrackerID && a.TrackerKind == b.TrackerKind {
			ia := interval{slot - s.cons.TrackerStartLeadTime, slot + a.FlightMinutes + s.cons.TrackerSwitchTime}
			ib := interval{other - s.cons.TrackerStartLeadTime, other + b.FlightMinutes + s.cons.TrackerSwitchTime}
			if ia.overlaps(ib) {
				return false
			}
		}

		if sharesCrew(a, b) {
			ia := interval{slot, slot + a.FlightMinutes + s.cons.CrewSwitchTime}
			ib := interval{other, other + b.FlightMinutes + s.cons.CrewSwitchTime}
			if ia.overlaps(ib) {
				return false
			}
		}
	}
	return true
}

func sharesCrew(a, b Team) bool {
	for _, ca := range a.CrewIDs {
		for _, cb := range b.CrewIDs {
			if ca == cb {
				return true
			}
		}
	}
	return false
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
