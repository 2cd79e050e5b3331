// Parkview - Real-Time Parking Availability Map Engine
// Copyright 2026 Mass Transit Company Limited
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/masstransitco/parkview

// Package tiles implements the concurrency and caching heart of the
// streaming engine: a bounded-concurrency load scheduler, a worker-pool
// decode channel correlated by tile key, and an LRU tile cache with
// viewport-relevance pruning.
package tiles

import (
	"bytes"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"

	"github.com/masstransitco/parkview/internal/geo"
)

// RGB is a building extrusion color.
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// BuildingRecord is one decoded building footprint: an extruded polygon
// outline with height, color, and centroid. Coordinates are [lng, lat]
// pairs, matching the archive's GeoJSON-style ordering.
type BuildingRecord struct {
	Coordinates [][2]float64 `json:"coordinates"`
	Height      float64      `json:"height"`
	Color       RGB          `json:"color"`
	CenterLat   float64      `json:"centerLat"`
	CenterLng   float64      `json:"centerLng"`
}

// CachedTile is a decoded tile result. The cache exclusively owns it until
// eviction, at which point ownership transfers to the caller for disposal
// of any downstream scene resources referenced by GroupID.
type CachedTile struct {
	Key     geo.TileKey
	Records []BuildingRecord

	// GroupID is the handle of the visual group built from this tile, set
	// by the lifecycle manager once the tile is attached to the scene.
	// Empty until then.
	GroupID string
}

// CacheStats is the observability snapshot for the tile pipeline.
// TilesLoaded and TilesEvicted are monotonic within a session.
type CacheStats struct {
	CacheSize        int   `json:"cacheSize"`
	CurrentlyLoading int   `json:"currentlyLoading"`
	QueueSize        int   `json:"queueSize"`
	TilesLoaded      int64 `json:"tilesLoaded"`
	TilesEvicted     int64 `json:"tilesEvicted"`
}

// DecodeFunc turns a raw tile payload into building records. It must be a
// pure function of its input: same bytes in, same records out, no shared
// mutable state, so it can run on any worker.
type DecodeFunc func(key geo.TileKey, raw []byte) ([]BuildingRecord, error)

var gzipMagic = []byte{0x1f, 0x8b}

// DecodeBuildingTile is the production decoder: an optionally gzip-
// compressed JSON array of building records. Malformed payloads map to
// ErrDecode.
func DecodeBuildingTile(key geo.TileKey, raw []byte) ([]BuildingRecord, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	data := raw
	if bytes.HasPrefix(raw, gzipMagic) {
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: tile %s: %v", ErrDecode, key, err)
		}
		defer zr.Close()
		data, err = io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("%w: tile %s: %v", ErrDecode, key, err)
		}
	}

	var records []BuildingRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: tile %s: %v", ErrDecode, key, err)
	}
	return records, nil
}

// EncodeBuildingTile is the inverse of DecodeBuildingTile, used by the
// archive import tooling. Output is always gzip-compressed.
func EncodeBuildingTile(records []BuildingRecord) ([]byte, error) {
	data, err := json.Marshal(records)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
