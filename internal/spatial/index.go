// Parkview - Real-Time Parking Availability Map Engine
// Copyright 2026 Mass Transit Company Limited
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/masstransitco/parkview

// Package spatial provides a bulk-rebuildable 2D point index that answers
// "which ids fall inside this rectangle" queries against sets sized in the
// thousands.
//
// The index divides geographic space into fixed-degree grid cells. A bounds
// query only walks the cells overlapping the query rectangle, so cost is
// proportional to the candidates near the viewport rather than the full
// dataset.
//
// The dataset is replaced wholesale on every upstream refresh via Rebuild;
// there is no incremental mutation contract. The engine is the only writer,
// but the index is internally guarded so concurrent readers are safe.
package spatial

import (
	"math"
	"sync"

	"github.com/masstransitco/parkview/internal/geo"
)

// DefaultCellSizeDeg is roughly 1.1 km at the equator, sized for
// city-scale viewports over thousands of parking assets.
const DefaultCellSizeDeg = 0.01

type cellKey struct {
	x, y int
}

// Index is a grid-bucketed point index.
type Index struct {
	mu       sync.RWMutex
	cellSize float64
	cells    map[cellKey][]geo.Point
	count    int
}

// NewIndex creates an empty index. cellSizeDeg <= 0 selects the default.
func NewIndex(cellSizeDeg float64) *Index {
	if cellSizeDeg <= 0 {
		cellSizeDeg = DefaultCellSizeDeg
	}
	return &Index{
		cellSize: cellSizeDeg,
		cells:    make(map[cellKey][]geo.Point),
	}
}

func (ix *Index) cellFor(lat, lng float64) cellKey {
	return cellKey{
		x: int(math.Floor(lng / ix.cellSize)),
		y: int(math.Floor(lat / ix.cellSize)),
	}
}

// Rebuild replaces the entire index with the given points. Longitudes are
// normalized into [-180, 180] on insert. Previous structures are released
// for garbage collection; Rebuild is safe to call on every data refresh.
func (ix *Index) Rebuild(points []geo.Point) {
	cells := make(map[cellKey][]geo.Point, len(points)/4+1)
	for _, p := range points {
		p.Lng = geo.NormalizeLng(p.Lng)
		k := ix.cellFor(p.Lat, p.Lng)
		cells[k] = append(cells[k], p)
	}

	ix.mu.Lock()
	ix.cells = cells
	ix.count = len(points)
	ix.mu.Unlock()
}

// QueryBounds returns all points whose coordinates fall within the bounds,
// inclusive of edges. Degenerate (zero-area) bounds yield an empty result,
// never an error; so does an empty index. Rectangles wrapping the
// antimeridian are split and queried per half.
func (ix *Index) QueryBounds(b geo.Bounds) []geo.Point {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var results []geo.Point
	for _, part := range b.SplitAntimeridian() {
		results = ix.queryPart(part, results)
	}
	return results
}

// queryPart walks the cells overlapping a non-wrapping rectangle.
// Caller must hold the read lock.
func (ix *Index) queryPart(b geo.Bounds, results []geo.Point) []geo.Point {
	minCell := ix.cellFor(b.MinLat, b.MinLng)
	maxCell := ix.cellFor(b.MaxLat, b.MaxLng)

	for x := minCell.x; x <= maxCell.x; x++ {
		for y := minCell.y; y <= maxCell.y; y++ {
			for _, p := range ix.cells[cellKey{x: x, y: y}] {
				if b.Contains(p.Lat, p.Lng) {
					results = append(results, p)
				}
			}
		}
	}
	return results
}

// Size returns the number of indexed points.
func (ix *Index) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.count
}

// NumCells returns the number of non-empty grid cells.
func (ix *Index) NumCells() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.cells)
}
