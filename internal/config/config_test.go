// Parkview - Real-Time Parking Availability Map Engine
// Copyright 2026 Mass Transit Company Limited
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/masstransitco/parkview

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8094 {
		t.Errorf("Server.Port = %d, want 8094", cfg.Server.Port)
	}
	if cfg.Engine.MaxConcurrentLoads != 4 {
		t.Errorf("Engine.MaxConcurrentLoads = %d, want 4", cfg.Engine.MaxConcurrentLoads)
	}
	if cfg.Engine.MaxCachedTiles != 50 {
		t.Errorf("Engine.MaxCachedTiles = %d, want 50", cfg.Engine.MaxCachedTiles)
	}
	if cfg.Engine.BufferPercentage != 0.15 {
		t.Errorf("Engine.BufferPercentage = %v, want 0.15", cfg.Engine.BufferPercentage)
	}
	if cfg.Archive.Backend != "badger" {
		t.Errorf("Archive.Backend = %q, want badger", cfg.Archive.Backend)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v, want info/json", cfg.Logging)
	}
}

func TestLoad_ConfigFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
server:
  port: 9001
engine:
  max_cached_tiles: 12
  buildings:
    min_zoom: 15
feed:
  poll_interval: 5s
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9001 {
		t.Errorf("Server.Port = %d, want 9001", cfg.Server.Port)
	}
	if cfg.Engine.MaxCachedTiles != 12 {
		t.Errorf("Engine.MaxCachedTiles = %d, want 12", cfg.Engine.MaxCachedTiles)
	}
	if cfg.Engine.Buildings.MinZoom != 15 {
		t.Errorf("Engine.Buildings.MinZoom = %v, want 15", cfg.Engine.Buildings.MinZoom)
	}
	if cfg.Feed.PollInterval != 5*time.Second {
		t.Errorf("Feed.PollInterval = %v, want 5s", cfg.Feed.PollInterval)
	}
	// Untouched keys keep their defaults.
	if cfg.Engine.MaxConcurrentLoads != 4 {
		t.Errorf("Engine.MaxConcurrentLoads = %d, want default 4", cfg.Engine.MaxConcurrentLoads)
	}
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9001\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("PARKVIEW_SERVER_PORT", "9500")
	t.Setenv("PARKVIEW_ENGINE_MAX_CONCURRENT_LOADS", "8")
	t.Setenv("PARKVIEW_ENGINE_BUILDINGS_MIN_ZOOM", "17")
	t.Setenv("PARKVIEW_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9500 {
		t.Errorf("Server.Port = %d, want 9500", cfg.Server.Port)
	}
	if cfg.Engine.MaxConcurrentLoads != 8 {
		t.Errorf("Engine.MaxConcurrentLoads = %d, want 8", cfg.Engine.MaxConcurrentLoads)
	}
	if cfg.Engine.Buildings.MinZoom != 17 {
		t.Errorf("Engine.Buildings.MinZoom = %v, want 17", cfg.Engine.Buildings.MinZoom)
	}
	want := []string{"https://a.example", "https://b.example"}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[0] != want[0] || cfg.Server.CORSOrigins[1] != want[1] {
		t.Errorf("Server.CORSOrigins = %v, want %v", cfg.Server.CORSOrigins, want)
	}
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"port out of range", "PARKVIEW_SERVER_PORT", "70000"},
		{"zero concurrent loads", "PARKVIEW_ENGINE_MAX_CONCURRENT_LOADS", "0"},
		{"buffer above one", "PARKVIEW_ENGINE_BUFFER_PERCENTAGE", "1.5"},
		{"unknown backend", "PARKVIEW_ARCHIVE_BACKEND", "s3"},
		{"unknown log level", "PARKVIEW_LOGGING_LEVEL", "verbose"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load accepted %s=%s", tc.key, tc.value)
			}
		})
	}
}

func TestEnvTransform(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"PARKVIEW_SERVER_PORT", "server.port"},
		{"PARKVIEW_SERVER_RATE_LIMIT_REQS", "server.rate_limit_reqs"},
		{"PARKVIEW_ENGINE_MAX_CACHED_TILES", "engine.max_cached_tiles"},
		{"PARKVIEW_ENGINE_BUILDINGS_MIN_ZOOM", "engine.buildings.min_zoom"},
		{"PARKVIEW_ENGINE_MARKERS_MAX_ZOOM", "engine.markers.max_zoom"},
		{"PARKVIEW_FEED_URL", "feed.url"},
	}
	for _, tc := range tests {
		if got := envTransform(tc.in); got != tc.want {
			t.Errorf("envTransform(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestServerConfig_Addr(t *testing.T) {
	s := ServerConfig{Host: "127.0.0.1", Port: 8094}
	if got := s.Addr(); got != "127.0.0.1:8094" {
		t.Fatalf("Addr = %q", got)
	}
}
