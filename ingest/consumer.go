// ingest/consumer.go
// Copyright(c) 2023-2026 flytrace contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mmorken/flytrace/contest"
	"github.com/mmorken/flytrace/log"
)

const (
	readTimeout      = 30 * time.Second
	initialBackoff   = 5 * time.Second
	maxBackoff       = 60 * time.Second
	pulseInterval    = 10 * time.Second
	unreachableLimit = 10 * time.Minute
)

// ErrUpstreamUnreachable means no connection to the position provider
// succeeded for unreachableLimit; the process exits on it.
var ErrUpstreamUnreachable = errors.New("upstream websocket unreachable")

// positionRecord is one entry of an upstream websocket frame.  The
// device time is authoritative; the server time is informational.
type positionRecord struct {
	ID         int64   `json:"id"`
	DeviceID   string  `json:"deviceId"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Altitude   float64 `json:"altitude"`
	Speed      float64 `json:"speed"`
	Course     float64 `json:"course"`
	Attributes struct {
		BatteryLevel float64 `json:"batteryLevel"`
	} `json:"attributes"`
	DeviceTime time.Time `json:"deviceTime"`
	ServerTime time.Time `json:"serverTime"`
}

type positionFrame struct {
	Positions []positionRecord `json:"positions"`
}

// Consumer drives the upstream position websocket: it dials with capped
// exponential backoff, reads JSON batch frames and feeds each record to
// the intake.  A single bad record never stops the loop.
type Consumer struct {
	url    string
	kind   contest.TrackerKind
	intake *Intake
	lg     *log.Logger
}

func NewConsumer(url string, kind contest.TrackerKind, intake *Intake, lg *log.Logger) *Consumer {
	return &Consumer{url: url, kind: kind, intake: intake, lg: lg}
}

// Run dials and reads until the context is cancelled, reconnecting after
// any failure.
func (c *Consumer) Run(ctx context.Context) error {
	go c.pulse(ctx)

	backoff := initialBackoff
	var firstFailure time.Time
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		if err != nil {
			if firstFailure.IsZero() {
				firstFailure = time.Now()
			} else if time.Since(firstFailure) > unreachableLimit {
				return fmt.Errorf("%w: %s", ErrUpstreamUnreachable, c.url)
			}
			c.lg.Warn("dialing upstream", slog.String("url", c.url),
				slog.Any("error", err), slog.Duration("retry", backoff))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			if backoff *= 2; backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		c.lg.Info("connected to upstream", slog.String("url", c.url))
		backoff = initialBackoff
		firstFailure = time.Time{}
		c.readLoop(ctx, conn)
		conn.Close()
	}
}

func (c *Consumer) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		if ctx.Err() != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		_, data, err := conn.ReadMessage()
		if err != nil {
			c.lg.Warn("reading upstream frame", slog.Any("error", err))
			return
		}
		c.handleFrame(data)
	}
}

func (c *Consumer) handleFrame(data []byte) {
	var frame positionFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		c.intake.recordMalformed("websocket", err)
		return
	}

	for _, rec := range frame.Positions {
		if rec.DeviceID == "" || rec.DeviceTime.IsZero() {
			c.intake.recordMalformed("websocket", errMissingField)
			continue
		}
		c.intake.Process(contest.Position{
			DeviceTime:   rec.DeviceTime,
			ServerTime:   rec.ServerTime,
			Latitude:     rec.Latitude,
			Longitude:    rec.Longitude,
			Altitude:     rec.Altitude,
			Speed:        rec.Speed,
			Course:       rec.Course,
			BatteryLevel: rec.Attributes.BatteryLevel,
			TrackerID:    rec.DeviceID,
			TrackerKind:  c.kind,
		})
	}
}

// pulse logs a liveness heartbeat so operators can tell a quiet feed
// from a dead one.
func (c *Consumer) pulse(ctx context.Context) {
	ticker := time.NewTicker(pulseInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.intake.Live() {
				c.lg.Debug("intake live")
			} else {
				c.lg.Warn("intake not live",
					slog.Int64("malformed", c.intake.Malformed()))
			}
		}
	}
}
