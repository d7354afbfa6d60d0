// cmd/flytrace/main.go
// Copyright(c) 2023-2026 flytrace contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// flytrace scores live air-sports competition flying: it consumes
// tracker positions from an upstream websocket, runs one scoring worker
// per contestant and fans results out to map subscribers.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mmorken/flytrace/config"
	"github.com/mmorken/flytrace/contest"
	"github.com/mmorken/flytrace/events"
	"github.com/mmorken/flytrace/ingest"
	"github.com/mmorken/flytrace/log"
	"github.com/mmorken/flytrace/route"
	"github.com/mmorken/flytrace/sched"
	"github.com/mmorken/flytrace/score"
	"github.com/mmorken/flytrace/server"
	"github.com/mmorken/flytrace/util"
)

var (
	scheduleFile = flag.String("schedule", "", "compute takeoff slots for the teams in the given JSON file and exit")
	replay       = flag.Bool("replay", false, "score recorded tracks; gate miss deadlines follow device time")
)

func main() {
	flag.Parse()

	if *scheduleFile != "" {
		os.Exit(runSchedule(*scheduleFile))
	}
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "flytrace: %v\n", err)
		return 1
	}

	lg := log.New(cfg.LogLevel, cfg.LogDir)

	rt, err := loadRoute(cfg.RouteFile)
	if err != nil {
		lg.Errorf("loading route: %v", err)
		return 1
	}
	sc := route.DefaultScorecard()

	source, err := contest.LoadFileSource(cfg.ContestantsFile, rt)
	if err != nil {
		lg.Errorf("loading contestants: %v", err)
		return 1
	}
	lg.Infof("loaded route %s with %d waypoints, %d contestants",
		rt.Name, len(rt.Waypoints), len(source.Contestants()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stream := events.NewStream(lg)
	defer stream.Destroy()

	resolver := contest.NewResolver(source, cfg.ResolverTTL, lg)
	snapshots := util.NewSnapshotStore(cfg.SnapshotDir)

	supervisor := score.NewSupervisor(rt, sc, stream, snapshots, lg, !*replay)
	supervisor.Start(ctx)

	intake := ingest.NewIntake(resolver, supervisor, stream, lg)
	consumer := ingest.NewConsumer(cfg.UpstreamURL, contest.TrackerHardwareDevice, intake, lg)
	fanout := server.New(stream, supervisor, intake.Live, lg)

	mux := http.NewServeMux()
	mux.Handle("/", fanout.Handler())
	mux.HandleFunc("/api/position", ingest.FallbackHandler(intake, contest.TrackerPilotApp))
	mux.HandleFunc("/api/upload", ingest.BulkHandler(intake))
	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return consumer.Run(ctx) })
	g.Go(func() error {
		fanout.Run(ctx.Done())
		return nil
	})
	g.Go(func() error {
		lg.Infof("listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	supervisor.Wait()

	switch {
	case err == nil, errors.Is(err, context.Canceled):
		lg.Infof("clean shutdown")
		return 0
	case errors.Is(err, ingest.ErrUpstreamUnreachable):
		lg.Errorf("%v", err)
		return 1
	default:
		lg.Errorf("shutdown: %v", err)
		return 1
	}
}

func loadRoute(path string) (*route.Route, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	defs, err := route.ReadDefs(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return route.Build(name, defs, route.DefaultScorecard())
}

// scheduleInput is the batch scheduling request format.
type scheduleInput struct {
	HorizonStart   time.Time         `json:"horizonStart"`
	HorizonMinutes int               `json:"horizonMinutes"`
	Constraints    sched.Constraints `json:"constraints"`
	Teams          []sched.Team      `json:"teams"`
}

func runSchedule(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "flytrace: %v\n", err)
		return 2
	}
	var in scheduleInput
	if err := json.Unmarshal(data, &in); err != nil {
		fmt.Fprintf(os.Stderr, "flytrace: %s: %v\n", path, err)
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), sched.Budget)
	defer cancel()

	assignments, err := sched.Schedule(ctx, in.Teams, in.Constraints, in.HorizonStart, in.HorizonMinutes)
	if err != nil {
		fmt.Fprintf(os.Stderr, "flytrace: scheduling: %v\n", err)
		return 2
	}
	for _, a := range assignments {
		fmt.Printf("%s\t%d\t%s\n", a.Team.ID, a.Slot, a.StartTime.Format(time.RFC3339))
	}
	return 0
}
