// Parkview - Real-Time Parking Availability Map Engine
// Copyright 2026 Mass Transit Company Limited
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/masstransitco/parkview

// Package config loads the server configuration from layered sources:
// built-in defaults, an optional YAML file, and PARKVIEW_* environment
// variables, in increasing precedence.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the full server configuration tree.
type Config struct {
	Server  ServerConfig  `koanf:"server" validate:"required"`
	Engine  EngineConfig  `koanf:"engine" validate:"required"`
	Archive ArchiveConfig `koanf:"archive" validate:"required"`
	Feed    FeedConfig    `koanf:"feed" validate:"required"`
	Logging LoggingConfig `koanf:"logging"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host            string        `koanf:"host" validate:"required"`
	Port            int           `koanf:"port" validate:"gte=1,lte=65535"`
	Timeout         time.Duration `koanf:"timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"gte=0"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window" validate:"gt=0"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LayerConfig is one layer's zoom gate.
type LayerConfig struct {
	MinZoom float64 `koanf:"min_zoom" validate:"gte=0,lte=22"`
	MaxZoom float64 `koanf:"max_zoom" validate:"gte=0,lte=22,gtefield=MinZoom"`
}

// EngineConfig holds the per-session streaming tunables.
type EngineConfig struct {
	MaxConcurrentLoads int           `koanf:"max_concurrent_loads" validate:"gte=1,lte=64"`
	MaxCachedTiles     int           `koanf:"max_cached_tiles" validate:"gte=1"`
	DecodeWorkers      int           `koanf:"decode_workers" validate:"gte=1,lte=64"`
	BufferPercentage   float64       `koanf:"buffer_percentage" validate:"gte=0,lte=1"`
	TileZoom           uint32        `koanf:"tile_zoom" validate:"gte=1,lte=22"`
	DebounceInterval   time.Duration `koanf:"debounce_interval" validate:"gt=0"`
	Buildings          LayerConfig   `koanf:"buildings"`
	Markers            LayerConfig   `koanf:"markers"`
}

// ArchiveConfig selects and configures the tile archive backend.
type ArchiveConfig struct {
	// Backend is "badger" for a local store or "http" for a remote
	// range-request archive.
	Backend string `koanf:"backend" validate:"oneof=badger http"`

	// Path of the badger directory; required for the badger backend.
	Path string `koanf:"path" validate:"required_if=Backend badger"`

	// URL of the remote archive blob; required for the http backend.
	URL string `koanf:"url" validate:"required_if=Backend http,omitempty,url"`

	// DirectoryPath is the local JSON tile directory for the http backend.
	DirectoryPath string `koanf:"directory_path" validate:"required_if=Backend http"`
}

// FeedConfig holds the vacancy feed poller settings.
type FeedConfig struct {
	URL            string        `koanf:"url" validate:"required,url"`
	PollInterval   time.Duration `koanf:"poll_interval" validate:"gt=0"`
	RequestTimeout time.Duration `koanf:"request_timeout" validate:"gt=0"`
}

// LoggingConfig mirrors the logging package settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal panic"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// Validate checks the configuration tree against its struct tags.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	return nil
}
