// server/server.go
// Copyright(c) 2023-2026 flytrace contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package server fans live scoring out to map clients over websockets.
// Each subscriber gets a full snapshot of every tracked contestant on
// connect and deltas from the event stream after that.
package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mmorken/flytrace/events"
	"github.com/mmorken/flytrace/log"
	"github.com/mmorken/flytrace/score"
)

const pollInterval = 250 * time.Millisecond

// TrackSource provides the current scoring state of every active
// contestant; the supervisor implements it.
type TrackSource interface {
	Trackers() []*score.Reducer
}

// Server owns the subscriber table and the HTTP surface.
type Server struct {
	stream *events.Stream
	tracks TrackSource
	live   func() bool
	lg     *log.Logger

	register   chan *subscriber
	unregister chan *subscriber
	done       chan struct{}
}

func New(stream *events.Stream, tracks TrackSource, live func() bool, lg *log.Logger) *Server {
	return &Server{
		stream:     stream,
		tracks:     tracks,
		live:       live,
		lg:         lg,
		register:   make(chan *subscriber),
		unregister: make(chan *subscriber),
		done:       make(chan struct{}),
	}
}

// Handler returns the HTTP routes: the subscriber websocket, the health
// endpoint and nothing else.  Ingestion endpoints are mounted by the
// caller so the fan-out process can run without them.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/socket", s.serveSocket)
	mux.HandleFunc("/api/health", s.serveHealth)
	return mux
}

// Run pumps stream events to every connected subscriber until the
// context given to the subscribers' requests is irrelevant; it exits
// when the stream is destroyed or stop is closed.
func (s *Server) Run(stop <-chan struct{}) {
	sub := s.stream.Subscribe()
	defer sub.Unsubscribe()

	subscribers := make(map[*subscriber]struct{})
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			close(s.done)
			for c := range subscribers {
				c.close()
			}
			return
		case c := <-s.register:
			subscribers[c] = struct{}{}
		case c := <-s.unregister:
			delete(subscribers, c)
		case <-ticker.C:
			for _, ev := range sub.Get() {
				frame, ok := frameFor(ev)
				if !ok {
					continue
				}
				for c := range subscribers {
					if !c.wants(ev.NavigationTaskID) {
						continue
					}
					if !c.send(frame) {
						// The outbound buffer is full; a subscriber
						// that cannot keep up is disconnected.
						s.lg.Warn("disconnecting slow subscriber",
							slog.String("remote", c.remote))
						c.close()
						delete(subscribers, c)
					}
				}
			}
		}
	}
}

func (s *Server) serveSocket(w http.ResponseWriter, r *http.Request) {
	task := 0
	if v := r.URL.Query().Get("task"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "bad task", http.StatusBadRequest)
			return
		}
		task = n
	}

	upgrader := websocket.Upgrader{EnableCompression: false}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.lg.Warn("upgrading subscriber socket", slog.Any("error", err))
		return
	}

	c := newSubscriber(conn, task, s)
	for _, frame := range s.snapshot(task) {
		c.send(frame)
	}
	select {
	case s.register <- c:
	case <-s.done:
		conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	if s.live == nil || !s.live() {
		http.Error(w, "not live", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// snapshot renders the current state of every tracked contestant in the
// requested navigation task as a frame sequence: state first, then the
// full score log.
func (s *Server) snapshot(task int) []frame {
	if s.tracks == nil {
		return nil
	}

	var frames []frame
	for _, r := range s.tracks.Trackers() {
		c := r.Contestant()
		if task != 0 && c.NavigationTaskID != task {
			continue
		}
		tr := r.Track()

		frames = append(frames, frame{
			Type: "state",
			Data: stateFrame{
				ContestantID:       c.ID,
				CurrentState:       tr.State.String(),
				CurrentLeg:         tr.CurrentLeg,
				LastGate:           tr.LastGate,
				LastGateTimeOffset: tr.LastGateTimeOffset,
			},
		})
		for _, e := range r.Entries() {
			frames = append(frames, frame{
				Type: "score",
				Data: scoreFrame{
					ContestantID: c.ID,
					Total:        tr.Score,
					PerGate:      tr.GateScores,
					LogEntry: &logEntryFrame{
						Time:    e.Time,
						Gate:    e.Gate,
						Message: e.Message,
						Points:  e.Points,
						Kind:    e.Kind.String(),
					},
				},
			})
		}
	}
	return frames
}
