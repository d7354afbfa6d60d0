// events/eventstream_test.go
// Copyright(c) 2023-2026 flytrace contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package events

import (
	"testing"
)

func TestEventStream(t *testing.T) {
	s := NewStream(nil)
	defer s.Destroy()

	// No subscribers: posts are dropped.
	s.Post(Event{Type: ScoreChangedEvent, ContestantID: 1})

	sub := s.Subscribe()
	if e := sub.Get(); len(e) != 0 {
		t.Errorf("got %d events before any were posted", len(e))
	}

	s.Post(Event{Type: ScoreChangedEvent, ContestantID: 1, Points: 9})
	s.Post(Event{Type: ContestantStateEvent, ContestantID: 1, State: "Tracking"})

	e := sub.Get()
	if len(e) != 2 {
		t.Fatalf("got %d events, expected 2", len(e))
	}
	if e[0].Type != ScoreChangedEvent || e[0].Points != 9 {
		t.Errorf("first event %+v", e[0])
	}
	if e[1].Type != ContestantStateEvent {
		t.Errorf("second event %+v", e[1])
	}

	// Get again without new posts returns nothing.
	if e := sub.Get(); len(e) != 0 {
		t.Errorf("got %d events on second Get", len(e))
	}
}

func TestEventStreamMultipleSubscribers(t *testing.T) {
	s := NewStream(nil)
	defer s.Destroy()

	a := s.Subscribe()
	s.Post(Event{Type: PositionEvent, ContestantID: 3})

	// A subscription only sees events posted after it was created.
	b := s.Subscribe()
	s.Post(Event{Type: AnnotationEvent, ContestantID: 3})

	if e := a.Get(); len(e) != 2 {
		t.Errorf("a got %d events, expected 2", len(e))
	}
	if e := b.Get(); len(e) != 1 || e[0].Type != AnnotationEvent {
		t.Errorf("b got %v", e)
	}

	b.Unsubscribe()
	s.Post(Event{Type: PositionEvent, ContestantID: 3})
	if e := a.Get(); len(e) != 1 {
		t.Errorf("a got %d events after b unsubscribed, expected 1", len(e))
	}
}
