// Parkview - Real-Time Parking Availability Map Engine
// Copyright 2026 Mass Transit Company Limited
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/masstransitco/parkview

// Package scene reconciles candidate visual object sets against the live
// set for each map session: creating, updating, attaching, detaching, and
// destroying markers and building tile groups with minimal churn, and
// assigning the collision-avoidance priority hints consumed by the map
// renderer.
package scene

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/masstransitco/parkview/internal/geo"
)

// ItemKind discriminates the visual-item payload union.
type ItemKind int

const (
	KindTileGroup ItemKind = iota + 1
	KindIndoorMarker
	KindMeteredMarker
	KindConnectedMarker
	KindDispatchMarker
	KindUserLocation
	KindSearchPin
)

// String returns the wire name of the kind.
func (k ItemKind) String() string {
	switch k {
	case KindTileGroup:
		return "tile_group"
	case KindIndoorMarker:
		return "indoor_marker"
	case KindMeteredMarker:
		return "metered_marker"
	case KindConnectedMarker:
		return "connected_marker"
	case KindDispatchMarker:
		return "dispatch_marker"
	case KindUserLocation:
		return "user_location"
	case KindSearchPin:
		return "search_pin"
	default:
		return "unknown"
	}
}

// ItemPayload is the strongly-typed content of a visual item. Each kind
// carries its own payload type; there is no untyped data threading through
// the lifecycle callbacks.
type ItemPayload interface {
	Kind() ItemKind
}

// TileGroupPayload is the content of one attached building tile: the handle
// of the decoded geometry group.
type TileGroupPayload struct {
	TileKey     geo.TileKey `json:"tileKey"`
	RecordCount int         `json:"recordCount"`
}

func (TileGroupPayload) Kind() ItemKind { return KindTileGroup }

// IndoorMarkerPayload is a multi-storey carpark with live vacancy.
type IndoorMarkerPayload struct {
	CarparkID string `json:"carparkId"`
	Name      string `json:"name"`
	Vacancy   int    `json:"vacancy"`
}

func (IndoorMarkerPayload) Kind() ItemKind { return KindIndoorMarker }

// MeteredMarkerPayload is an on-street metered space.
type MeteredMarkerPayload struct {
	MeterID  string `json:"meterId"`
	Occupied bool   `json:"occupied"`
}

func (MeteredMarkerPayload) Kind() ItemKind { return KindMeteredMarker }

// ConnectedMarkerPayload is a sensor-connected lot reporting exact counts.
type ConnectedMarkerPayload struct {
	LotID   string `json:"lotId"`
	Vacancy int    `json:"vacancy"`
	Total   int    `json:"total"`
}

func (ConnectedMarkerPayload) Kind() ItemKind { return KindConnectedMarker }

// DispatchMarkerPayload is a valet/dispatch pickup point.
type DispatchMarkerPayload struct {
	StationID string `json:"stationId"`
	Active    bool   `json:"active"`
}

func (DispatchMarkerPayload) Kind() ItemKind { return KindDispatchMarker }

// UserLocationPayload is the session's own position puck.
type UserLocationPayload struct {
	AccuracyM float64 `json:"accuracyM"`
}

func (UserLocationPayload) Kind() ItemKind { return KindUserLocation }

// SearchPinPayload is a dropped search result pin.
type SearchPinPayload struct {
	Label string `json:"label"`
}

func (SearchPinPayload) Kind() ItemKind { return KindSearchPin }

// Priority is the collision-avoidance hint for the renderer: Required items
// are always drawn; Optional items may be hidden when space is constrained.
type Priority int

const (
	PriorityOptional Priority = iota
	PriorityRequired
)

// String returns the wire name of the priority.
func (p Priority) String() string {
	if p == PriorityRequired {
		return "required"
	}
	return "optional"
}

// MaxZIndex is the stacking order assigned to selected items so they are
// never hidden by collision avoidance among optional items.
const MaxZIndex = 1 << 20

// VisualItem is one on-screen object: a marker or an extruded tile group.
type VisualItem struct {
	ID       string
	Lat      float64
	Lng      float64
	Priority Priority
	ZIndex   int
	Payload  ItemPayload
}

// visualItemWire is the JSON envelope for VisualItem. The payload union is
// discriminated by a kind field carrying the ItemKind wire name, so clients
// can tell an indoor payload from a connected one.
type visualItemWire struct {
	ID       string          `json:"id"`
	Lat      float64         `json:"lat"`
	Lng      float64         `json:"lng"`
	Priority Priority        `json:"priority"`
	ZIndex   int             `json:"zIndex"`
	Kind     string          `json:"kind,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (v VisualItem) MarshalJSON() ([]byte, error) {
	w := visualItemWire{ID: v.ID, Lat: v.Lat, Lng: v.Lng, Priority: v.Priority, ZIndex: v.ZIndex}
	if v.Payload != nil {
		raw, err := json.Marshal(v.Payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", v.Payload.Kind(), err)
		}
		w.Kind = v.Payload.Kind().String()
		w.Payload = raw
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler, rebuilding the concrete payload
// type named by the kind field.
func (v *VisualItem) UnmarshalJSON(data []byte) error {
	var w visualItemWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	v.ID, v.Lat, v.Lng = w.ID, w.Lat, w.Lng
	v.Priority, v.ZIndex = w.Priority, w.ZIndex
	v.Payload = nil
	if w.Kind == "" {
		return nil
	}
	payload, err := decodePayload(w.Kind, w.Payload)
	if err != nil {
		return err
	}
	v.Payload = payload
	return nil
}

func decodePayload(kind string, raw json.RawMessage) (ItemPayload, error) {
	var payload ItemPayload
	switch kind {
	case KindTileGroup.String():
		payload = &TileGroupPayload{}
	case KindIndoorMarker.String():
		payload = &IndoorMarkerPayload{}
	case KindMeteredMarker.String():
		payload = &MeteredMarkerPayload{}
	case KindConnectedMarker.String():
		payload = &ConnectedMarkerPayload{}
	case KindDispatchMarker.String():
		payload = &DispatchMarkerPayload{}
	case KindUserLocation.String():
		payload = &UserLocationPayload{}
	case KindSearchPin.String():
		payload = &SearchPinPayload{}
	default:
		return nil, fmt.Errorf("unknown item kind %q", kind)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, payload); err != nil {
			return nil, fmt.Errorf("unmarshal %s payload: %w", kind, err)
		}
	}
	return derefPayload(payload), nil
}

// derefPayload returns the payload by value so decoded items compare equal
// to locally built ones.
func derefPayload(p ItemPayload) ItemPayload {
	switch v := p.(type) {
	case *TileGroupPayload:
		return *v
	case *IndoorMarkerPayload:
		return *v
	case *MeteredMarkerPayload:
		return *v
	case *ConnectedMarkerPayload:
		return *v
	case *DispatchMarkerPayload:
		return *v
	case *UserLocationPayload:
		return *v
	case *SearchPinPayload:
		return *v
	default:
		return p
	}
}

// ItemState tracks an item through its lifecycle. Absent items have no
// entry in the live set; Destroyed is terminal.
type ItemState int

const (
	StateAttached ItemState = iota + 1
	StateDetached
)
