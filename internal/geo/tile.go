// Parkview - Real-Time Parking Availability Map Engine
// Copyright 2026 Mass Transit Company Limited
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/masstransitco/parkview

package geo

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// TileKey identifies one tile of the building archive by zoom level and
// x/y grid coordinates. X and Y are in [0, 2^Z). The canonical string form
// is "z/x/y" and is used as the cache and scheduler key.
type TileKey struct {
	Z uint32 `json:"z"`
	X uint32 `json:"x"`
	Y uint32 `json:"y"`
}

// String returns the canonical "z/x/y" form.
func (k TileKey) String() string {
	return fmt.Sprintf("%d/%d/%d", k.Z, k.X, k.Y)
}

// ParseTileKey parses a "z/x/y" string. Coordinates outside [0, 2^z) are
// rejected.
func ParseTileKey(s string) (TileKey, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return TileKey{}, fmt.Errorf("tile key %q: want z/x/y", s)
	}
	vals := make([]uint32, 3)
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return TileKey{}, fmt.Errorf("tile key %q: %w", s, err)
		}
		vals[i] = uint32(v)
	}
	k := TileKey{Z: vals[0], X: vals[1], Y: vals[2]}
	if max := uint32(1) << k.Z; k.X >= max || k.Y >= max {
		return TileKey{}, fmt.Errorf("tile key %q: x/y out of range for zoom %d", s, k.Z)
	}
	return k, nil
}

// MapTile converts the key to an orb maptile.Tile.
func (k TileKey) MapTile() maptile.Tile {
	return maptile.New(k.X, k.Y, maptile.Zoom(k.Z))
}

// TileAt returns the tile containing the coordinate at the given zoom. The
// result is always on the grid: coordinates at the +180 edge land in the
// last column, not one past it.
func TileAt(lat, lng float64, zoom uint32) TileKey {
	t := maptile.At(orb.Point{NormalizeLng(lng), lat}, maptile.Zoom(zoom))
	last := uint32(1)<<zoom - 1
	x, y := t.X, t.Y
	if x > last {
		x = last
	}
	if y > last {
		y = last
	}
	return TileKey{Z: uint32(t.Z), X: x, Y: y}
}

// TileBounds returns the geographic bounds of a tile under the Web Mercator
// projection (EPSG:3857).
func TileBounds(k TileKey) Bounds {
	n := math.Pow(2, float64(k.Z))

	minLng := float64(k.X)/n*360.0 - 180.0
	maxLng := float64(k.X+1)/n*360.0 - 180.0

	minLatRad := math.Atan(math.Sinh(math.Pi * (1 - 2*float64(k.Y+1)/n)))
	maxLatRad := math.Atan(math.Sinh(math.Pi * (1 - 2*float64(k.Y)/n)))

	return Bounds{
		MinLat: minLatRad * 180.0 / math.Pi,
		MinLng: minLng,
		MaxLat: maxLatRad * 180.0 / math.Pi,
		MaxLng: maxLng,
	}
}

// CoveringTiles enumerates all tiles at a zoom level that intersect the
// rectangle. Wrapping rectangles are split at the antimeridian first, so
// the result never contains out-of-range coordinates.
func CoveringTiles(b Bounds, zoom uint32) []TileKey {
	var keys []TileKey
	seen := make(map[TileKey]struct{})

	last := uint32(1)<<zoom - 1

	for _, part := range b.SplitAntimeridian() {
		minTile := maptile.At(orb.Point{part.MinLng, part.MaxLat}, maptile.Zoom(zoom))
		maxTile := maptile.At(orb.Point{part.MaxLng, part.MinLat}, maptile.Zoom(zoom))

		minX, maxX := minTile.X, maxTile.X
		if minX > maxX {
			minX, maxX = maxX, minX
		}
		minY, maxY := minTile.Y, maxTile.Y
		if minY > maxY {
			minY, maxY = maxY, minY
		}

		// maptile.At maps longitude 180 (and latitudes past the Mercator
		// limit) to index 2^z, one past the grid; keep every index on the
		// grid so keys honor x, y in [0, 2^z).
		if minX > last {
			minX = last
		}
		if maxX > last {
			maxX = last
		}
		if minY > last {
			minY = last
		}
		if maxY > last {
			maxY = last
		}

		for x := minX; x <= maxX; x++ {
			for y := minY; y <= maxY; y++ {
				k := TileKey{Z: zoom, X: x, Y: y}
				if _, dup := seen[k]; dup {
					continue
				}
				seen[k] = struct{}{}
				keys = append(keys, k)
			}
		}
	}
	return keys
}

// TilePriority returns the load priority for a tile given the viewport
// center: the squared tile-grid distance from the center, so nearby tiles
// load first. Lower values load sooner.
func TilePriority(k TileKey, centerLat, centerLng float64) float64 {
	c := TileAt(centerLat, centerLng, k.Z)
	dx := float64(k.X) - float64(c.X)
	dy := float64(k.Y) - float64(c.Y)
	return dx*dx + dy*dy
}
