// Parkview - Real-Time Parking Availability Map Engine
// Copyright 2026 Mass Transit Company Limited
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/masstransitco/parkview

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/parkview/config.yaml",
	"/etc/parkview/config.yml",
}

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "PARKVIEW_CONFIG_PATH"

// envPrefix namespaces the override environment variables:
// PARKVIEW_SERVER_PORT -> server.port.
const envPrefix = "PARKVIEW_"

// defaultConfig returns the built-in defaults, applied before the config
// file and environment layers.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8094,
			Timeout:         30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Engine: EngineConfig{
			MaxConcurrentLoads: 4,
			MaxCachedTiles:     50,
			DecodeWorkers:      4,
			BufferPercentage:   0.15,
			TileZoom:           15,
			DebounceInterval:   150 * time.Millisecond,
			Buildings:          LayerConfig{MinZoom: 16, MaxZoom: 22},
			Markers:            LayerConfig{MinZoom: 14, MaxZoom: 22},
		},
		Archive: ArchiveConfig{
			Backend: "badger",
			Path:    "/data/tiles",
		},
		Feed: FeedConfig{
			URL:            "https://resource.data.one.gov.hk/td/carpark/vacancy_all.json",
			PollInterval:   30 * time.Second,
			RequestTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load builds the configuration with layered sources:
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. PARKVIEW_* environment variables (highest priority)
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider(envPrefix, ".", envTransform)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envTransform maps PARKVIEW_SERVER_RATE_LIMIT_REQS to
// server.rate_limit_reqs: the first underscore separates the section, the
// rest stay as the key.
func envTransform(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	section, key, found := strings.Cut(s, "_")
	if !found {
		return s
	}
	// Nested layer gates keep their second level:
	// engine_buildings_min_zoom -> engine.buildings.min_zoom.
	for _, nested := range []string{"buildings_", "markers_"} {
		if strings.HasPrefix(key, nested) {
			return section + "." + strings.TrimSuffix(nested, "_") + "." + strings.TrimPrefix(key, nested)
		}
	}
	return section + "." + key
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are the keys parsed as comma-separated slices when they
// arrive as strings from the environment layer.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		if !k.Exists(path) {
			continue
		}
		raw, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := strings.Split(raw, ",")
		values := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				values = append(values, trimmed)
			}
		}
		if err := k.Set(path, values); err != nil {
			return fmt.Errorf("set %s: %w", path, err)
		}
	}
	return nil
}
