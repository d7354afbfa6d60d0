// server/subscriber.go
// Copyright(c) 2023-2026 flytrace contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package server

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mmorken/flytrace/events"
)

const (
	outboundBuffer = 256
	writeWait      = 10 * time.Second
	pingPeriod     = 30 * time.Second
)

// frame is the envelope every subscriber message travels in.
type frame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type scoreFrame struct {
	ContestantID int                `json:"contestant_id"`
	Total        float64            `json:"total"`
	PerGate      map[string]float64 `json:"per_gate"`
	LogEntry     *logEntryFrame     `json:"log_entry,omitempty"`
}

type logEntryFrame struct {
	Time    time.Time `json:"time"`
	Gate    string    `json:"gate,omitempty"`
	Message string    `json:"message"`
	Points  float64   `json:"points"`
	Kind    string    `json:"kind"`
}

type annotationFrame struct {
	ContestantID int       `json:"contestant_id"`
	Time         time.Time `json:"time"`
	Latitude     float64   `json:"lat"`
	Longitude    float64   `json:"lon"`
	Message      string    `json:"message"`
	Kind         string    `json:"kind"`
	Gate         string    `json:"gate,omitempty"`
	GateType     string    `json:"gate_type,omitempty"`
}

type stateFrame struct {
	ContestantID       int     `json:"contestant_id"`
	CurrentState       string  `json:"current_state"`
	CurrentLeg         string  `json:"current_leg"`
	LastGate           string  `json:"last_gate"`
	LastGateTimeOffset float64 `json:"last_gate_time_offset"`
}

type positionFrame struct {
	Registration     string    `json:"registration"`
	Latitude         float64   `json:"lat"`
	Longitude        float64   `json:"lon"`
	Time             time.Time `json:"time"`
	Course           float64   `json:"course"`
	Speed            float64   `json:"speed"`
	Altitude         float64   `json:"altitude"`
	NavigationTaskID int       `json:"navigation_task_id,omitempty"`
}

type cardFrame struct {
	ContestantID int     `json:"contestant_id"`
	Card         string  `json:"card"`
	Gate         string  `json:"gate"`
	Score        float64 `json:"score"`
}

// frameFor converts a stream event into its outbound frame.
func frameFor(ev events.Event) (frame, bool) {
	switch ev.Type {
	case events.ScoreChangedEvent:
		return frame{Type: "score", Data: scoreFrame{
			ContestantID: ev.ContestantID,
			Total:        ev.TotalScore,
			PerGate:      ev.GateScores,
			LogEntry: &logEntryFrame{
				Time:    ev.LogTime,
				Gate:    ev.Gate,
				Message: ev.Message,
				Points:  ev.Points,
				Kind:    ev.EntryKind,
			},
		}}, true
	case events.AnnotationEvent:
		return frame{Type: "annotation", Data: annotationFrame{
			ContestantID: ev.ContestantID,
			Time:         ev.Time,
			Latitude:     ev.Latitude,
			Longitude:    ev.Longitude,
			Message:      ev.Message,
			Kind:         ev.EntryKind,
			Gate:         ev.Gate,
			GateType:     ev.GateType,
		}}, true
	case events.ContestantStateEvent:
		return frame{Type: "state", Data: stateFrame{
			ContestantID:       ev.ContestantID,
			CurrentState:       ev.State,
			CurrentLeg:         ev.CurrentLeg,
			LastGate:           ev.LastGate,
			LastGateTimeOffset: ev.LastGateTimeOffset,
		}}, true
	case events.PositionEvent:
		return frame{Type: "position", Data: positionFrame{
			Registration:     ev.Registration,
			Latitude:         ev.Latitude,
			Longitude:        ev.Longitude,
			Time:             ev.Time,
			Course:           ev.Course,
			Speed:            ev.Speed,
			Altitude:         ev.Altitude,
			NavigationTaskID: ev.NavigationTaskID,
		}}, true
	case events.CardAwardedEvent:
		return frame{Type: "card", Data: cardFrame{
			ContestantID: ev.ContestantID,
			Card:         ev.Card,
			Gate:         ev.Gate,
			Score:        ev.CardScore,
		}}, true
	}
	return frame{}, false
}

// subscriber is one connected map client.
type subscriber struct {
	conn   *websocket.Conn
	task   int // 0 subscribes to every navigation task
	out    chan frame
	server *Server
	remote string

	closeOnce sync.Once
}

func newSubscriber(conn *websocket.Conn, task int, s *Server) *subscriber {
	return &subscriber{
		conn:   conn,
		task:   task,
		out:    make(chan frame, outboundBuffer),
		server: s,
		remote: conn.RemoteAddr().String(),
	}
}

func (c *subscriber) wants(task int) bool {
	return c.task == 0 || task == 0 || c.task == task
}

// send queues a frame; it reports false when the outbound buffer is
// full, which is the caller's signal to disconnect the subscriber.
func (c *subscriber) send(f frame) bool {
	select {
	case c.out <- f:
		return true
	default:
		return false
	}
}

func (c *subscriber) close() {
	c.closeOnce.Do(func() { close(c.out) })
}

func (c *subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.conn.Close()

	for {
		select {
		case f, ok := <-c.out:
			if !ok {
				c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeWait))
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(f); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound messages; its job is noticing disconnects.
func (c *subscriber) readPump() {
	defer func() {
		select {
		case c.server.unregister <- c:
		case <-c.server.done:
		}
		c.close()
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
