// Parkview - Real-Time Parking Availability Map Engine
// Copyright 2026 Mass Transit Company Limited
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/masstransitco/parkview

// Package main is the entry point for the Parkview server.
//
// Parkview streams a live parking availability map to web and mobile
// clients: extruded building tiles loaded on demand from a tile archive,
// plus carpark vacancy markers refreshed from the government feed. Each
// websocket client gets its own streaming pipeline (tile cache, bounded
// load scheduler, decode workers, scene engine) so a slow connection never
// stalls another.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: layered Koanf v2 (defaults, YAML file, PARKVIEW_* env)
//  2. Tile archive: local Badger store or remote HTTP range archive
//  3. Vacancy feed poller: periodic refresh with circuit breaker
//  4. WebSocket hub: per-session map pipelines
//  5. HTTP server: health, stats, metrics, and the /ws mount
//
// All long-running services run under a suture supervision tree; a
// crashing feed poller restarts without dropping connected sessions.
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger a graceful shutdown: the HTTP server drains
// in-flight requests, sessions are closed, and the archive is released.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/masstransitco/parkview/internal/api"
	"github.com/masstransitco/parkview/internal/config"
	"github.com/masstransitco/parkview/internal/feed"
	"github.com/masstransitco/parkview/internal/logging"
	"github.com/masstransitco/parkview/internal/scene"
	"github.com/masstransitco/parkview/internal/supervisor"
	"github.com/masstransitco/parkview/internal/supervisor/services"
	ws "github.com/masstransitco/parkview/internal/websocket"
)

// version is injected at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("version", version).
		Str("addr", cfg.Server.Addr()).
		Str("archive_backend", cfg.Archive.Backend).
		Str("feed_url", cfg.Feed.URL).
		Msg("starting parkview")

	source, cleanup, err := initArchive(cfg.Archive)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to initialize tile archive")
	}
	defer cleanup()

	poller := feed.NewPoller(feed.Config{
		URL:            cfg.Feed.URL,
		PollInterval:   cfg.Feed.PollInterval,
		RequestTimeout: cfg.Feed.RequestTimeout,
	}, nil)

	hub := ws.NewHub(ws.SessionDeps{
		Engine: scene.EngineConfig{
			BufferPct: cfg.Engine.BufferPercentage,
			TileZoom:  cfg.Engine.TileZoom,
			Buildings: scene.LayerGate{
				MinZoom: cfg.Engine.Buildings.MinZoom,
				MaxZoom: cfg.Engine.Buildings.MaxZoom,
			},
			Markers: scene.LayerGate{
				MinZoom: cfg.Engine.Markers.MinZoom,
				MaxZoom: cfg.Engine.Markers.MaxZoom,
			},
			DebounceInterval: cfg.Engine.DebounceInterval,
		},
		MaxConcurrentLoads: cfg.Engine.MaxConcurrentLoads,
		MaxCachedTiles:     cfg.Engine.MaxCachedTiles,
		DecodeWorkers:      cfg.Engine.DecodeWorkers,
		Source:             source,
		Feed:               poller,
	})

	router := api.NewRouter(cfg.Server, version, hub, poller, hub)
	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router.Handler(),
		ReadHeaderTimeout: cfg.Server.Timeout,
		// No WriteTimeout: the /ws route holds connections open.
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddIngestService(poller)
	tree.AddSessionService(hub)
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("service failed to stop within timeout")
	}

	logging.Info().Msg("parkview stopped gracefully")
}
