// Parkview - Real-Time Parking Availability Map Engine
// Copyright 2026 Mass Transit Company Limited
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/masstransitco/parkview

// Package geo provides the geographic primitives shared by the streaming
// engine: points, axis-aligned lat/lng rectangles, and tile coordinate math.
package geo

import "math"

// Point is a geo-located item: a parking marker or a tile centroid.
// The ID must be stable and unique within one spatial index generation.
type Point struct {
	ID  string  `json:"id"`
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Bounds is an axis-aligned lat/lng rectangle.
//
// A Bounds may wrap the antimeridian: MinLng > MaxLng means the rectangle
// crosses ±180°. Callers that cannot handle wrapping should use
// SplitAntimeridian to obtain non-wrapping rectangles first.
type Bounds struct {
	MinLat float64 `json:"minLat"`
	MinLng float64 `json:"minLng"`
	MaxLat float64 `json:"maxLat"`
	MaxLng float64 `json:"maxLng"`
}

// NewBounds returns a Bounds with latitude ordering normalized so that
// MinLat <= MaxLat. Longitudes are kept as given because MinLng > MaxLng is
// the legitimate encoding of an antimeridian-wrapping rectangle.
func NewBounds(minLat, minLng, maxLat, maxLng float64) Bounds {
	if minLat > maxLat {
		minLat, maxLat = maxLat, minLat
	}
	return Bounds{MinLat: minLat, MinLng: minLng, MaxLat: maxLat, MaxLng: maxLng}
}

// NormalizeLng wraps a longitude into [-180, 180]. A single math.Mod keeps
// the result exact for any input magnitude; repeated subtraction would
// accumulate float error.
func NormalizeLng(lng float64) float64 {
	lng = math.Mod(lng, 360)
	switch {
	case lng > 180:
		lng -= 360
	case lng < -180:
		lng += 360
	}
	return lng
}

// Wraps reports whether the rectangle crosses the antimeridian.
func (b Bounds) Wraps() bool {
	return b.MinLng > b.MaxLng
}

// IsZero reports whether the rectangle has zero area on either axis.
func (b Bounds) IsZero() bool {
	return b.MinLat == b.MaxLat || (b.MinLng == b.MaxLng && !b.Wraps())
}

// Width returns the longitudinal extent in degrees, accounting for wrapping.
func (b Bounds) Width() float64 {
	if b.Wraps() {
		return (180 - b.MinLng) + (b.MaxLng + 180)
	}
	return b.MaxLng - b.MinLng
}

// Height returns the latitudinal extent in degrees.
func (b Bounds) Height() float64 {
	return b.MaxLat - b.MinLat
}

// Center returns the midpoint of the rectangle.
func (b Bounds) Center() (lat, lng float64) {
	lat = (b.MinLat + b.MaxLat) / 2
	if b.Wraps() {
		lng = NormalizeLng(b.MinLng + b.Width()/2)
	} else {
		lng = (b.MinLng + b.MaxLng) / 2
	}
	return lat, lng
}

// Contains reports whether the coordinate falls within the rectangle,
// inclusive of edges.
func (b Bounds) Contains(lat, lng float64) bool {
	if lat < b.MinLat || lat > b.MaxLat {
		return false
	}
	if b.Wraps() {
		return lng >= b.MinLng || lng <= b.MaxLng
	}
	return lng >= b.MinLng && lng <= b.MaxLng
}

// Expand grows the rectangle symmetrically by ratio of its width and height.
// The result is clamped to valid latitudes and never inverts min > max.
// A ratio of 0.15 is used to pre-load just outside the visible frame so
// small pans do not pop in.
func (b Bounds) Expand(ratio float64) Bounds {
	if ratio <= 0 {
		return b
	}
	dLat := b.Height() * ratio
	dLng := b.Width() * ratio

	out := b
	out.MinLat = math.Max(b.MinLat-dLat, -90)
	out.MaxLat = math.Min(b.MaxLat+dLat, 90)

	// Expanding past a full revolution degenerates to the whole globe.
	if b.Width()+2*dLng >= 360 {
		out.MinLng = -180
		out.MaxLng = 180
		return out
	}
	out.MinLng = NormalizeLng(b.MinLng - dLng)
	out.MaxLng = NormalizeLng(b.MaxLng + dLng)
	return out
}

// SplitAntimeridian returns the rectangle as one or two non-wrapping
// rectangles. Non-wrapping input is returned unchanged as a single element.
func (b Bounds) SplitAntimeridian() []Bounds {
	if !b.Wraps() {
		return []Bounds{b}
	}
	return []Bounds{
		{MinLat: b.MinLat, MinLng: b.MinLng, MaxLat: b.MaxLat, MaxLng: 180},
		{MinLat: b.MinLat, MinLng: -180, MaxLat: b.MaxLat, MaxLng: b.MaxLng},
	}
}

// Intersects reports whether two rectangles share any area or edge.
// Wrapping rectangles are compared after antimeridian splitting.
func (b Bounds) Intersects(o Bounds) bool {
	for _, bb := range b.SplitAntimeridian() {
		for _, oo := range o.SplitAntimeridian() {
			if bb.MinLat <= oo.MaxLat && bb.MaxLat >= oo.MinLat &&
				bb.MinLng <= oo.MaxLng && bb.MaxLng >= oo.MinLng {
				return true
			}
		}
	}
	return false
}
