// Parkview - Real-Time Parking Availability Map Engine
// Copyright 2026 Mass Transit Company Limited
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/masstransitco/parkview

package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"

	"github.com/masstransitco/parkview/internal/config"
	"github.com/masstransitco/parkview/internal/logging"
	"github.com/masstransitco/parkview/internal/tiles"
)

// initArchive opens the configured tile archive backend. The returned
// cleanup releases backend resources and must run after the supervisor
// tree has stopped.
func initArchive(cfg config.ArchiveConfig) (tiles.ArchiveSource, func(), error) {
	switch cfg.Backend {
	case "badger":
		opts := badger.DefaultOptions(cfg.Path).
			WithLogger(nil).
			WithReadOnly(false)
		db, err := badger.Open(opts)
		if err != nil {
			return nil, nil, fmt.Errorf("open badger archive at %s: %w", cfg.Path, err)
		}
		logging.Info().Str("path", cfg.Path).Msg("badger tile archive opened")
		cleanup := func() {
			if err := db.Close(); err != nil {
				logging.Error().Err(err).Msg("error closing badger archive")
			}
		}
		return tiles.NewBadgerArchive(db), cleanup, nil

	case "http":
		directory, err := loadTileDirectory(cfg.DirectoryPath)
		if err != nil {
			return nil, nil, err
		}
		breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:        "tile-archive",
			MaxRequests: 2,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
		})
		client := &http.Client{Timeout: 30 * time.Second}
		logging.Info().
			Str("url", cfg.URL).
			Int("tiles", len(directory)).
			Msg("http range tile archive configured")
		return tiles.NewHTTPRangeArchive(client, cfg.URL, directory, breaker), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown archive backend %q", cfg.Backend)
	}
}

// loadTileDirectory reads the JSON directory mapping tile keys ("z/x/y") to
// byte ranges within the remote archive blob.
func loadTileDirectory(path string) (map[string]tiles.TileRange, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tile directory %s: %w", path, err)
	}
	directory := make(map[string]tiles.TileRange)
	if err := json.Unmarshal(raw, &directory); err != nil {
		return nil, fmt.Errorf("parse tile directory %s: %w", path, err)
	}
	return directory, nil
}
