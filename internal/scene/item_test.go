// Parkview - Real-Time Parking Availability Map Engine
// Copyright 2026 Mass Transit Company Limited
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/masstransitco/parkview

package scene

import (
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/masstransitco/parkview/internal/geo"
)

func TestVisualItem_WireCarriesKindDiscriminator(t *testing.T) {
	items := []VisualItem{
		{
			ID: "tile/15/26834/14342", Lat: 22.30, Lng: 114.10, ZIndex: 5,
			Payload: TileGroupPayload{TileKey: geo.TileKey{Z: 15, X: 26834, Y: 14342}, RecordCount: 7},
		},
		{
			ID: "cp-1", Lat: 22.28, Lng: 114.18, Priority: PriorityRequired, ZIndex: MaxZIndex,
			Payload: IndoorMarkerPayload{CarparkID: "cp-1", Name: "Harbour Centre", Vacancy: 42},
		},
		{
			ID: "lot-3", Lat: 22.30, Lng: 114.16,
			Payload: ConnectedMarkerPayload{LotID: "lot-3", Vacancy: 5, Total: 60},
		},
	}

	for _, item := range items {
		raw, err := json.Marshal(item)
		if err != nil {
			t.Fatalf("marshal %s: %v", item.ID, err)
		}

		var envelope struct {
			Kind string `json:"kind"`
		}
		if err := json.Unmarshal(raw, &envelope); err != nil {
			t.Fatalf("unmarshal envelope for %s: %v", item.ID, err)
		}
		if want := item.Payload.Kind().String(); envelope.Kind != want {
			t.Errorf("%s: wire kind = %q, want %q", item.ID, envelope.Kind, want)
		}

		var decoded VisualItem
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("unmarshal %s: %v", item.ID, err)
		}
		if decoded.Payload != item.Payload {
			t.Errorf("%s: payload = %#v, want %#v", item.ID, decoded.Payload, item.Payload)
		}
		if decoded.ID != item.ID || decoded.Priority != item.Priority || decoded.ZIndex != item.ZIndex {
			t.Errorf("%s: decoded envelope fields drifted: %+v", item.ID, decoded)
		}
	}
}

func TestVisualItem_TileKeyWireCasing(t *testing.T) {
	item := VisualItem{
		ID:      "tile/15/1/2",
		Payload: TileGroupPayload{TileKey: geo.TileKey{Z: 15, X: 1, Y: 2}},
	}
	raw, err := json.Marshal(item)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if s := string(raw); !strings.Contains(s, `"tileKey":{"z":15,"x":1,"y":2}`) {
		t.Errorf("tile key not lower-cased on the wire: %s", s)
	}
}

func TestVisualItem_UnknownKindRejected(t *testing.T) {
	var item VisualItem
	err := json.Unmarshal([]byte(`{"id":"x","kind":"heliport","payload":{}}`), &item)
	if err == nil {
		t.Fatal("unknown kind accepted")
	}
}

func TestVisualItem_NoPayloadOmitsKind(t *testing.T) {
	raw, err := json.Marshal(VisualItem{ID: "bare"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(raw), `"kind"`) {
		t.Errorf("payload-less item should omit kind: %s", raw)
	}

	var decoded VisualItem
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Payload != nil {
		t.Errorf("payload = %#v, want nil", decoded.Payload)
	}
}
