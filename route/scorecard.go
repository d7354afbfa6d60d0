// route/scorecard.go
// Copyright(c) 2023-2026 flytrace contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package route

import (
	"github.com/brunoga/deep"
)

// CalculatorType selects which gatekeeper variant and calculator set a
// navigation task uses.
type CalculatorType int

const (
	CalculatorPrecision CalculatorType = iota
	CalculatorANRCorridor
	CalculatorAirsports
	CalculatorPoker
	CalculatorLanding
)

func (c CalculatorType) String() string {
	return [...]string{"precision", "anr-corridor", "airsports", "poker", "landing"}[c]
}

// GateScore is the per-gate-kind penalty configuration.
type GateScore struct {
	GraceperiodBefore float64 // seconds
	GraceperiodAfter  float64 // seconds
	PenaltyPerSecond  float64
	MaximumPenalty    float64 // 0 means no cap
	MissedPenalty     float64

	MissedProcedureTurnPenalty float64
	ExtendedGateWidthNM        float64
	BadCrossingPenalty         float64

	BacktrackingAfterSteepGraceSeconds float64
	MissDeadlineSeconds                float64 // seconds after expected time before the gate is declared missed
}

// Scorecard is the penalty-and-grace configuration set; scoring workers
// receive it by value and never share child tables with other scorecards.
type Scorecard struct {
	Name       string
	Calculator CalculatorType

	GateScores map[WaypointKind]*GateScore

	BacktrackingPenalty        float64
	BacktrackingGraceSeconds   float64
	BacktrackingMaximumPenalty float64 // negative means unlimited

	ProhibitedZonePenalty   float64
	ProhibitedZoneGraceTime float64 // seconds

	PenaltyZonePenaltyPerSecond float64
	PenaltyZoneGraceTime        float64
	PenaltyZoneMaximum          float64 // negative means unlimited

	CorridorOutsidePenalty float64 // per second
	CorridorGraceTime      float64
	CorridorMaximumPenalty float64 // negative means unlimited

	BelowMinimumAltitudePenalty float64
	BelowMinimumAltitudeMaximum float64
	MinimumAltitudeFeet         float64
}

// GateScoreFor returns the penalty configuration for the given waypoint
// kind, falling back to the turning point entry when the kind has no
// entry of its own.
func (s *Scorecard) GateScoreFor(kind WaypointKind) *GateScore {
	if gs, ok := s.GateScores[kind]; ok {
		return gs
	}
	if gs, ok := s.GateScores[KindTurningPoint]; ok {
		return gs
	}
	return &GateScore{}
}

// Clone returns a deep copy of the scorecard so that contest-specific
// overrides never mutate shared penalty tables.
func (s *Scorecard) Clone() *Scorecard {
	c := deep.MustCopy(*s)
	return &c
}

// DefaultScorecard returns a precision flying scorecard with the standard
// FAI-style penalties.
func DefaultScorecard() *Scorecard {
	gate := &GateScore{
		GraceperiodBefore:          2,
		GraceperiodAfter:           2,
		PenaltyPerSecond:           3,
		MaximumPenalty:             100,
		MissedPenalty:              100,
		MissedProcedureTurnPenalty: 200,
		ExtendedGateWidthNM:        6,
		BadCrossingPenalty:         0,
		MissDeadlineSeconds:        300,
	}
	secret := &GateScore{
		GraceperiodBefore:   2,
		GraceperiodAfter:    2,
		PenaltyPerSecond:    3,
		MaximumPenalty:      100,
		MissedPenalty:       100,
		MissDeadlineSeconds: 300,
	}

	return &Scorecard{
		Name:       "precision default",
		Calculator: CalculatorPrecision,
		GateScores: map[WaypointKind]*GateScore{
			KindTurningPoint:       gate,
			KindStarting:           gate,
			KindFinish:             gate,
			KindSecret:             secret,
			KindIntermediaryStart:  secret,
			KindIntermediaryFinish: secret,
		},
		BacktrackingPenalty:         200,
		BacktrackingGraceSeconds:    5,
		BacktrackingMaximumPenalty:  400,
		ProhibitedZonePenalty:       200,
		ProhibitedZoneGraceTime:     0,
		PenaltyZonePenaltyPerSecond: 3,
		PenaltyZoneGraceTime:        3,
		PenaltyZoneMaximum:          100,
		CorridorOutsidePenalty:      3,
		CorridorGraceTime:           5,
		CorridorMaximumPenalty:      -1,
	}
}
