// events/events.go
// Copyright(c) 2023-2026 flytrace contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package events

import (
	"fmt"
	"log/slog"
	"time"
)

type EventType int

const (
	ScoreChangedEvent EventType = iota
	AnnotationEvent
	ContestantStateEvent
	PositionEvent
	CardAwardedEvent
	NumEventTypes
)

func (t EventType) String() string {
	return []string{"ScoreChanged", "Annotation", "ContestantState", "Position",
		"CardAwarded"}[t]
}

// Event carries one change through the stream; which fields are relevant
// depends on Type.
type Event struct {
	Type             EventType
	NavigationTaskID int
	ContestantID     int

	// ScoreChangedEvent
	TotalScore float64
	GateScores map[string]float64
	Gate       string
	Message    string
	Points     float64
	EntryKind  string
	LogTime    time.Time

	// ContestantStateEvent
	State              string
	CurrentLeg         string
	LastGate           string
	LastGateTimeOffset float64

	// AnnotationEvent / PositionEvent
	Latitude     float64
	Longitude    float64
	Time         time.Time
	GateType     string
	Registration string
	Course       float64
	Speed        float64
	Altitude     float64

	// CardAwardedEvent
	Card      string
	CardScore float64
}

func (e *Event) String() string {
	return fmt.Sprintf("%s: contestant %d gate %q message %q points %.1f",
		e.Type, e.ContestantID, e.Gate, e.Message, e.Points)
}

func (e Event) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("type", e.Type.String()),
		slog.Int("contestant", e.ContestantID),
	}
	if e.Gate != "" {
		attrs = append(attrs, slog.String("gate", e.Gate))
	}
	if e.Message != "" {
		attrs = append(attrs, slog.String("message", e.Message))
	}
	if e.Points != 0 {
		attrs = append(attrs, slog.Float64("points", e.Points))
	}
	return slog.GroupValue(attrs...)
}
