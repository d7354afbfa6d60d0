// config/config_test.go
// Copyright(c) 2023-2026 flytrace contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Setenv("FLYTRACE_UPSTREAM_URL", "ws://tracker.example/api/socket")
	t.Setenv("FLYTRACE_ROUTE_FILE", "route.csv")
	t.Setenv("FLYTRACE_CONTESTANTS_FILE", "contestants.json")
	t.Setenv("FLYTRACE_RESOLVER_TTL_SECONDS", "120")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "ws://tracker.example/api/socket", cfg.UpstreamURL)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 2*time.Minute, cfg.ResolverTTL)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadMissingUpstream(t *testing.T) {
	t.Setenv("FLYTRACE_UPSTREAM_URL", "")
	t.Setenv("FLYTRACE_ROUTE_FILE", "route.csv")
	t.Setenv("FLYTRACE_CONTESTANTS_FILE", "contestants.json")

	_, err := Load()
	assert.Error(t, err)
}
