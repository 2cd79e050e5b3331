// Parkview - Real-Time Parking Availability Map Engine
// Copyright 2026 Mass Transit Company Limited
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/masstransitco/parkview

package geo

import (
	"math"
	"testing"
)

func TestBounds_ContainsInclusiveEdges(t *testing.T) {
	b := NewBounds(22.25, 114.05, 22.35, 114.15)

	tests := []struct {
		name     string
		lat, lng float64
		want     bool
	}{
		{"interior", 22.30, 114.10, true},
		{"min corner", 22.25, 114.05, true},
		{"max corner", 22.35, 114.15, true},
		{"north edge", 22.35, 114.10, true},
		{"outside east", 22.30, 114.16, false},
		{"outside south", 22.24, 114.10, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := b.Contains(tt.lat, tt.lng); got != tt.want {
				t.Errorf("Contains(%v, %v) = %v, want %v", tt.lat, tt.lng, got, tt.want)
			}
		})
	}
}

func TestBounds_OrderingNormalized(t *testing.T) {
	b := NewBounds(22.35, 114.05, 22.25, 114.15)
	if b.MinLat > b.MaxLat {
		t.Errorf("NewBounds did not normalize latitude ordering: %+v", b)
	}
}

func TestBounds_ExpandNeverInverts(t *testing.T) {
	b := NewBounds(22.25, 114.05, 22.35, 114.15)
	e := b.Expand(0.15)

	if e.MinLat > e.MaxLat {
		t.Errorf("Expand inverted latitude: %+v", e)
	}
	if e.MinLat >= b.MinLat || e.MaxLat <= b.MaxLat {
		t.Errorf("Expand did not grow latitude: %+v -> %+v", b, e)
	}
	wantDLng := (114.15 - 114.05) * 0.15
	if math.Abs((b.MinLng-e.MinLng)-wantDLng) > 1e-9 {
		t.Errorf("Expand west growth = %v, want %v", b.MinLng-e.MinLng, wantDLng)
	}
}

func TestBounds_ExpandClampsPoles(t *testing.T) {
	b := NewBounds(80, -10, 89, 10)
	e := b.Expand(0.5)
	if e.MaxLat > 90 {
		t.Errorf("Expand exceeded north pole: %v", e.MaxLat)
	}
}

func TestBounds_ExpandZeroRatio(t *testing.T) {
	b := NewBounds(22.25, 114.05, 22.35, 114.15)
	if e := b.Expand(0); e != b {
		t.Errorf("Expand(0) changed bounds: %+v", e)
	}
}

func TestBounds_AntimeridianWrap(t *testing.T) {
	// Crosses ±180: from 170°E to -170°E (i.e. 190°E).
	b := NewBounds(-10, 170, 10, -170)

	if !b.Wraps() {
		t.Fatal("expected wrapping bounds")
	}
	if math.Abs(b.Width()-20) > 1e-9 {
		t.Errorf("Width() = %v, want 20", b.Width())
	}
	if !b.Contains(0, 175) || !b.Contains(0, -175) || !b.Contains(0, 180) {
		t.Error("wrapping bounds should contain longitudes either side of ±180")
	}
	if b.Contains(0, 0) {
		t.Error("wrapping bounds should not contain lng 0")
	}

	parts := b.SplitAntimeridian()
	if len(parts) != 2 {
		t.Fatalf("SplitAntimeridian returned %d parts, want 2", len(parts))
	}
	for _, p := range parts {
		if p.Wraps() {
			t.Errorf("split part still wraps: %+v", p)
		}
	}

	_, lng := b.Center()
	if math.Abs(NormalizeLng(lng)-180) > 1e-9 && math.Abs(NormalizeLng(lng)+180) > 1e-9 {
		t.Errorf("Center lng = %v, want ±180", lng)
	}
}

func TestBounds_IsZero(t *testing.T) {
	if !NewBounds(22.3, 114.1, 22.3, 114.2).IsZero() {
		t.Error("zero-height bounds should be zero")
	}
	if !NewBounds(22.2, 114.1, 22.3, 114.1).IsZero() {
		t.Error("zero-width bounds should be zero")
	}
	if NewBounds(22.2, 114.1, 22.3, 114.2).IsZero() {
		t.Error("proper bounds should not be zero")
	}
}

func TestNormalizeLng(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{190, -170},
		{-190, 170},
		{360, 0},
		{540, 180},
		{474.10, 114.10},
		{-474.10, -114.10},
	}
	for _, tt := range tests {
		if got := NormalizeLng(tt.in); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("NormalizeLng(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestBounds_Intersects(t *testing.T) {
	a := NewBounds(22.2, 114.0, 22.4, 114.2)
	if !a.Intersects(NewBounds(22.3, 114.1, 22.5, 114.3)) {
		t.Error("overlapping bounds should intersect")
	}
	if a.Intersects(NewBounds(23.0, 115.0, 23.1, 115.1)) {
		t.Error("disjoint bounds should not intersect")
	}
	// Shared edge counts as intersection.
	if !a.Intersects(NewBounds(22.4, 114.0, 22.6, 114.2)) {
		t.Error("edge-touching bounds should intersect")
	}
}
