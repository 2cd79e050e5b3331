// Parkview - Real-Time Parking Availability Map Engine
// Copyright 2026 Mass Transit Company Limited
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/masstransitco/parkview

package websocket

import (
	"github.com/goccy/go-json"

	"github.com/masstransitco/parkview/internal/scene"
)

// Inbound message types (client -> server).
const (
	MessageTypeViewport     = "viewport"
	MessageTypeSelect       = "select"
	MessageTypeVisualParams = "visual_params"
	MessageTypeUserLocation = "user_location"
	MessageTypeSearchPin    = "search_pin"
	MessageTypeVisibility   = "visibility"
	MessageTypePing         = "ping"
)

// Outbound message types (server -> client).
const (
	MessageTypeSceneDiff = "scene_diff"
	MessageTypeMaterial  = "material"
	MessageTypeRedraw    = "redraw"
	MessageTypeStats     = "stats"
	MessageTypePong      = "pong"
)

// Message is the websocket envelope in both directions. Inbound data stays
// raw until the type is known; outbound data is the typed payload.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// inboundMessage defers payload decoding until the type switch.
type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// SceneDiffData is the payload of a scene_diff message.
type SceneDiffData struct {
	Layer   string          `json:"layer"`
	Changes scene.ChangeSet `json:"changes"`
}

// selectData is the payload of a select message. An empty id clears the
// selection.
type selectData struct {
	ID string `json:"id"`
}

// userLocationData is the payload of a user_location message. Clear drops
// the puck.
type userLocationData struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	AccuracyM float64 `json:"accuracyM"`
	Clear     bool    `json:"clear,omitempty"`
}

// searchPinData is the payload of a search_pin message. Clear drops the pin.
type searchPinData struct {
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Label string  `json:"label"`
	Clear bool    `json:"clear,omitempty"`
}

// visibilityData is the payload of a visibility message.
type visibilityData struct {
	Visible bool `json:"visible"`
}
