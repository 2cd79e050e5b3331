// Parkview - Real-Time Parking Availability Map Engine
// Copyright 2026 Mass Transit Company Limited
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/masstransitco/parkview

package spatial

import (
	"fmt"
	"testing"

	"github.com/masstransitco/parkview/internal/geo"
)

func TestIndex_QueryBounds(t *testing.T) {
	ix := NewIndex(0)
	ix.Rebuild([]geo.Point{
		{ID: "p1", Lat: 22.30, Lng: 114.10},
		{ID: "p2", Lat: 22.40, Lng: 114.30},
	})

	got := ix.QueryBounds(geo.NewBounds(22.25, 114.05, 22.35, 114.15))
	if len(got) != 1 || got[0].ID != "p1" {
		t.Fatalf("QueryBounds = %+v, want [p1]", got)
	}
}

func TestIndex_QueryInclusiveEdges(t *testing.T) {
	ix := NewIndex(0)
	ix.Rebuild([]geo.Point{{ID: "edge", Lat: 22.35, Lng: 114.15}})

	got := ix.QueryBounds(geo.NewBounds(22.25, 114.05, 22.35, 114.15))
	if len(got) != 1 {
		t.Errorf("point on max corner not returned: %+v", got)
	}
}

func TestIndex_EmptyAndDegenerate(t *testing.T) {
	ix := NewIndex(0)

	if got := ix.QueryBounds(geo.NewBounds(22, 114, 23, 115)); len(got) != 0 {
		t.Errorf("empty index returned %+v", got)
	}

	ix.Rebuild([]geo.Point{{ID: "p1", Lat: 22.30, Lng: 114.10}})

	// Zero-area bounds away from any point: empty set, no error.
	if got := ix.QueryBounds(geo.NewBounds(22.5, 114.5, 22.5, 114.5)); len(got) != 0 {
		t.Errorf("degenerate bounds returned %+v", got)
	}
	// Zero-area bounds exactly on a point still matches (inclusive edges).
	if got := ix.QueryBounds(geo.NewBounds(22.30, 114.10, 22.30, 114.10)); len(got) != 1 {
		t.Errorf("degenerate bounds on point returned %+v", got)
	}
}

func TestIndex_RebuildReplacesWholesale(t *testing.T) {
	ix := NewIndex(0)
	ix.Rebuild([]geo.Point{{ID: "old", Lat: 22.30, Lng: 114.10}})
	ix.Rebuild([]geo.Point{{ID: "new", Lat: 22.31, Lng: 114.11}})

	got := ix.QueryBounds(geo.NewBounds(22.0, 114.0, 23.0, 115.0))
	if len(got) != 1 || got[0].ID != "new" {
		t.Errorf("after rebuild: %+v, want only [new]", got)
	}
	if ix.Size() != 1 {
		t.Errorf("Size() = %d, want 1", ix.Size())
	}
}

func TestIndex_NormalizesLongitude(t *testing.T) {
	ix := NewIndex(0)
	// 474.10 wraps to 114.10.
	ix.Rebuild([]geo.Point{{ID: "wrapped", Lat: 22.30, Lng: 474.10}})

	got := ix.QueryBounds(geo.NewBounds(22.25, 114.05, 22.35, 114.15))
	if len(got) != 1 || got[0].ID != "wrapped" {
		t.Errorf("out-of-range longitude not normalized: %+v", got)
	}
}

func TestIndex_AntimeridianQuery(t *testing.T) {
	ix := NewIndex(0)
	ix.Rebuild([]geo.Point{
		{ID: "east", Lat: 0, Lng: 179.5},
		{ID: "west", Lat: 0, Lng: -179.5},
		{ID: "greenwich", Lat: 0, Lng: 0},
	})

	got := ix.QueryBounds(geo.NewBounds(-1, 179, 1, -179))
	if len(got) != 2 {
		t.Fatalf("wrapping query returned %d points, want 2: %+v", len(got), got)
	}
	for _, p := range got {
		if p.ID == "greenwich" {
			t.Error("wrapping query must not include lng 0")
		}
	}
}

func TestIndex_ThousandsOfPoints(t *testing.T) {
	points := make([]geo.Point, 0, 5000)
	for i := 0; i < 5000; i++ {
		points = append(points, geo.Point{
			ID:  fmt.Sprintf("p%d", i),
			Lat: 22.2 + float64(i%100)*0.002,
			Lng: 114.0 + float64(i/100)*0.004,
		})
	}
	ix := NewIndex(0)
	ix.Rebuild(points)

	if ix.Size() != 5000 {
		t.Fatalf("Size() = %d", ix.Size())
	}

	got := ix.QueryBounds(geo.NewBounds(22.2, 114.0, 22.3, 114.1))
	for _, p := range got {
		if p.Lat < 22.2 || p.Lat > 22.3 || p.Lng < 114.0 || p.Lng > 114.1 {
			t.Fatalf("point %s (%v, %v) outside query bounds", p.ID, p.Lat, p.Lng)
		}
	}
	if len(got) == 0 {
		t.Fatal("expected matches in dense region")
	}
}

func BenchmarkIndex_QueryBounds(b *testing.B) {
	points := make([]geo.Point, 0, 10000)
	for i := 0; i < 10000; i++ {
		points = append(points, geo.Point{
			ID:  fmt.Sprintf("p%d", i),
			Lat: 22.1 + float64(i%200)*0.003,
			Lng: 113.8 + float64(i/200)*0.012,
		})
	}
	ix := NewIndex(0)
	ix.Rebuild(points)
	bounds := geo.NewBounds(22.25, 114.05, 22.35, 114.20)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ix.QueryBounds(bounds)
	}
}
