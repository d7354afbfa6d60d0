// events/eventstream.go
// Copyright(c) 2023-2026 flytrace contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package events

import (
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/mmorken/flytrace/log"
)

// Stream provides a basic pub/sub event interface that allows any part of
// the system to post an event to the stream and other parts to subscribe
// and receive messages from the stream.  It is the backbone for
// communicating score updates, annotations, state changes and live
// positions from the scoring workers to the subscriber fan-out.
type Stream struct {
	mu            sync.Mutex
	events        []Event
	subscriptions map[*Subscription]interface{}
	lastPost      time.Time
	warnedLong    bool
	done          chan struct{}
	lg            *log.Logger
}

type Subscription struct {
	stream *Stream
	// offset is the offset in the Stream event array up to which the
	// subscriber has consumed events so far.
	offset      int
	source      string
	lastGet     time.Time
	warnedNoGet bool
}

func NewStream(lg *log.Logger) *Stream {
	s := &Stream{
		subscriptions: make(map[*Subscription]interface{}),
		lastPost:      time.Now(),
		done:          make(chan struct{}),
		lg:            lg,
	}
	go s.monitor()
	return s
}

// Subscribe registers a new subscriber to the stream.
func (s *Stream) Subscribe() *Subscription {
	// Record the subscriber's callsite, so that we can more easily debug
	// subscribers that aren't consuming events.
	_, fn, line, _ := runtime.Caller(1)
	source := fmt.Sprintf("%s:%d", fn, line)

	sub := &Subscription{
		stream:  s,
		offset:  len(s.events),
		source:  source,
		lastGet: time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscriptions[sub] = nil
	return sub
}

func (s *Stream) monitor() {
	tick := time.Tick(5 * time.Second)

	for {
		<-tick

		select {
		case <-s.done:
			return
		default:
		}

		s.mu.Lock()

		s.compact()

		if len(s.events) > 1000 && !s.warnedLong {
			// It's likely that one of the subscribers is out to lunch if
			// the stream has grown this long.
			s.lg.Warn("Long event stream", slog.Int("length", len(s.events)))
			s.warnedLong = true
		}

		// Check if any of the subscribers haven't been consuming events,
		// though only if events are being posted to the stream so we
		// don't complain between contests.
		if time.Since(s.lastPost) < 5*time.Second {
			for sub := range s.subscriptions {
				if d := time.Since(sub.lastGet); d > 10*time.Second && !sub.warnedNoGet {
					s.lg.Warn("Subscriber has not called Get() recently",
						slog.Duration("duration", d), slog.String("source", sub.source))
					sub.warnedNoGet = true
				}
			}
		}

		s.mu.Unlock()
	}
}

// Unsubscribe removes a subscriber from the subscriber list.
func (sub *Subscription) Unsubscribe() {
	sub.stream.mu.Lock()
	defer sub.stream.mu.Unlock()

	if _, ok := sub.stream.subscriptions[sub]; !ok {
		sub.stream.lg.Errorf("Attempted to unsubscribe invalid subscription: %+v", sub)
	}
	delete(sub.stream.subscriptions, sub)
	sub.stream = nil
}

// Post adds an event to the event stream.
func (s *Stream) Post(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lg.Debug("posted event", slog.Any("event", event))

	// Ignore the event if no one's paying attention.
	if len(s.subscriptions) > 0 {
		s.lastPost = time.Now()
		s.events = append(s.events, event)
	}
}

// Get returns all of the events from the stream since the last time Get
// was called for this subscription.  Note that events before a
// subscription was created are never reported for it.
func (sub *Subscription) Get() []Event {
	sub.stream.mu.Lock()
	defer sub.stream.mu.Unlock()

	if _, ok := sub.stream.subscriptions[sub]; !ok {
		sub.stream.lg.Errorf("Attempted to get with unregistered subscription: %+v", sub)
		return nil
	}

	events := slices.Clone(sub.stream.events[sub.offset:])
	sub.offset = len(sub.stream.events)
	sub.lastGet = time.Now()
	sub.warnedNoGet = false

	return events
}

func (s *Stream) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case s.done <- struct{}{}:
	default:
	}

	close(s.done)
	clear(s.subscriptions)
}

// compact reclaims storage for events that all subscribers have seen; it
// is called periodically so that the stream's memory usage doesn't grow
// without bound.
func (s *Stream) compact() {
	minOffset := len(s.events)
	for sub := range s.subscriptions {
		if sub.offset < minOffset {
			minOffset = sub.offset
		}
	}

	if minOffset > cap(s.events)/2 {
		n := len(s.events) - minOffset

		copy(s.events, s.events[minOffset:])
		s.events = s.events[:n]

		for sub := range s.subscriptions {
			sub.offset -= minOffset
		}

		s.warnedLong = false // reset this after a successful compact.
	}
}
