// config/config.go
// Copyright(c) 2023-2026 flytrace contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package config reads process configuration from the environment, with
// an optional .env file for development setups.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config contains everything the flytrace process needs to start.
type Config struct {
	// UpstreamURL is the position provider websocket.
	UpstreamURL string
	// ListenAddr serves the subscriber fan-out, the health endpoint and
	// the ingestion fallbacks.
	ListenAddr string

	// RouteFile is the waypoint sequence to score against.
	RouteFile string
	// ContestantsFile holds the contestant definitions when no admin
	// data layer is wired in.
	ContestantsFile string

	SnapshotDir string
	LogLevel    string
	LogDir      string

	ResolverTTL time.Duration
}

// Load reads configuration from environment variables and .env.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		UpstreamURL:     os.Getenv("FLYTRACE_UPSTREAM_URL"),
		ListenAddr:      getenv("FLYTRACE_LISTEN_ADDR", ":8080"),
		RouteFile:       os.Getenv("FLYTRACE_ROUTE_FILE"),
		ContestantsFile: os.Getenv("FLYTRACE_CONTESTANTS_FILE"),
		SnapshotDir:     getenv("FLYTRACE_SNAPSHOT_DIR", os.TempDir()),
		LogLevel:        getenv("FLYTRACE_LOG_LEVEL", "info"),
		LogDir:          os.Getenv("FLYTRACE_LOG_DIR"),
		ResolverTTL:     time.Minute,
	}

	if cfg.UpstreamURL == "" {
		return Config{}, fmt.Errorf("FLYTRACE_UPSTREAM_URL is required")
	}
	if cfg.RouteFile == "" {
		return Config{}, fmt.Errorf("FLYTRACE_ROUTE_FILE is required")
	}
	if cfg.ContestantsFile == "" {
		return Config{}, fmt.Errorf("FLYTRACE_CONTESTANTS_FILE is required")
	}

	if v := os.Getenv("FLYTRACE_RESOLVER_TTL_SECONDS"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("FLYTRACE_RESOLVER_TTL_SECONDS: %w", err)
		}
		cfg.ResolverTTL = time.Duration(secs) * time.Second
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
