// Parkview - Real-Time Parking Availability Map Engine
// Copyright 2026 Mass Transit Company Limited
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/masstransitco/parkview

package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	gorilla "github.com/gorilla/websocket"

	"github.com/masstransitco/parkview/internal/geo"
	"github.com/masstransitco/parkview/internal/scene"
	"github.com/masstransitco/parkview/internal/tiles"
)

type stubSource struct {
	payload []byte
	err     error
}

func (s *stubSource) ReadTile(context.Context, geo.TileKey) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.payload, nil
}

func testDeps(src tiles.ArchiveSource) SessionDeps {
	return SessionDeps{
		Engine: scene.EngineConfig{
			BufferPct:        0.1,
			TileZoom:         15,
			Buildings:        scene.LayerGate{MinZoom: 16, MaxZoom: 22},
			Markers:          scene.LayerGate{MinZoom: 14, MaxZoom: 22},
			DebounceInterval: 5 * time.Millisecond,
		},
		MaxConcurrentLoads: 4,
		MaxCachedTiles:     50,
		DecodeWorkers:      2,
		Source:             src,
	}
}

// startHub runs a hub and an httptest server mounting it, returning a
// dialer URL.
func startHub(t *testing.T, deps SessionDeps) (*Hub, string, context.CancelFunc) {
	t.Helper()
	hub := NewHub(deps)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	return hub, url, cancel
}

func dial(t *testing.T, url string) *gorilla.Conn {
	t.Helper()
	var conn *gorilla.Conn
	var err error
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, _, err = gorilla.DefaultDialer.Dial(url, nil)
		if err == nil {
			t.Cleanup(func() { conn.Close() })
			return conn
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("dial %s: %v", url, err)
	return nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func sendMessage(t *testing.T, conn *gorilla.Conn, msgType string, data interface{}) {
	t.Helper()
	if err := conn.WriteJSON(Message{Type: msgType, Data: data}); err != nil {
		t.Fatalf("write %s: %v", msgType, err)
	}
}

// readUntil reads messages until pred accepts one or the deadline passes.
func readUntil(t *testing.T, conn *gorilla.Conn, what string, pred func(inboundMessage) bool) inboundMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %s: %v", what, err)
		}
		if pred(msg) {
			return msg
		}
	}
}

func TestHub_SessionLifecycle(t *testing.T) {
	hub, url, _ := startHub(t, testDeps(&stubSource{err: tiles.ErrTileNotFound}))

	conn := dial(t, url)
	waitFor(t, "session registered", func() bool { return hub.SessionCount() == 1 })

	conn.Close()
	waitFor(t, "session unregistered", func() bool { return hub.SessionCount() == 0 })
}

func TestSession_PingPong(t *testing.T) {
	_, url, _ := startHub(t, testDeps(&stubSource{err: tiles.ErrTileNotFound}))
	conn := dial(t, url)

	sendMessage(t, conn, MessageTypePing, nil)
	readUntil(t, conn, "pong", func(m inboundMessage) bool {
		return m.Type == MessageTypePong
	})
}

func TestSession_ViewportStreamsTileDiffs(t *testing.T) {
	records := []tiles.BuildingRecord{{Height: 30, CenterLat: 22.3, CenterLng: 114.1}}
	raw, err := tiles.EncodeBuildingTile(records)
	if err != nil {
		t.Fatalf("EncodeBuildingTile: %v", err)
	}
	_, url, _ := startHub(t, testDeps(&stubSource{payload: raw}))
	conn := dial(t, url)

	sendMessage(t, conn, MessageTypeViewport, scene.Viewport{
		Bounds: geo.NewBounds(22.29, 114.09, 22.31, 114.11),
		Zoom:   17,
	})

	msg := readUntil(t, conn, "buildings scene_diff", func(m inboundMessage) bool {
		if m.Type != MessageTypeSceneDiff {
			return false
		}
		var data SceneDiffData
		if err := json.Unmarshal(m.Data, &data); err != nil {
			t.Fatalf("decode scene_diff: %v", err)
		}
		return data.Layer == scene.LayerBuildings && len(data.Changes.Created) > 0
	})

	// The diff decodes back into the typed payload union.
	var diff SceneDiffData
	if err := json.Unmarshal(msg.Data, &diff); err != nil {
		t.Fatalf("decode scene_diff: %v", err)
	}
	group, ok := diff.Changes.Created[0].Payload.(scene.TileGroupPayload)
	if !ok {
		t.Fatalf("created payload = %#v, want TileGroupPayload", diff.Changes.Created[0].Payload)
	}
	if group.RecordCount != 1 {
		t.Errorf("record count = %d, want 1", group.RecordCount)
	}

	// A redraw follows the diff.
	readUntil(t, conn, "redraw", func(m inboundMessage) bool {
		return m.Type == MessageTypeRedraw
	})
}

func TestSession_MalformedPayloadDoesNotKillSession(t *testing.T) {
	_, url, _ := startHub(t, testDeps(&stubSource{err: tiles.ErrTileNotFound}))
	conn := dial(t, url)

	if err := conn.WriteMessage(gorilla.TextMessage, []byte(`{"type":"viewport","data":"not-an-object"}`)); err != nil {
		t.Fatalf("write malformed: %v", err)
	}

	sendMessage(t, conn, MessageTypePing, nil)
	readUntil(t, conn, "pong after malformed message", func(m inboundMessage) bool {
		return m.Type == MessageTypePong
	})
}

func TestSession_VisualParamsEchoMaterial(t *testing.T) {
	_, url, _ := startHub(t, testDeps(&stubSource{err: tiles.ErrTileNotFound}))
	conn := dial(t, url)

	sendMessage(t, conn, MessageTypeVisualParams, scene.VisualParams{Opacity: 0.4, Theme: "night"})

	readUntil(t, conn, "material message", func(m inboundMessage) bool {
		if m.Type != MessageTypeMaterial {
			return false
		}
		var p scene.VisualParams
		if err := json.Unmarshal(m.Data, &p); err != nil {
			return false
		}
		return p.Opacity == 0.4 && p.Theme == "night"
	})
}

func TestHub_ShutdownClosesSessions(t *testing.T) {
	hub, url, cancel := startHub(t, testDeps(&stubSource{err: tiles.ErrTileNotFound}))
	conn := dial(t, url)
	waitFor(t, "session registered", func() bool { return hub.SessionCount() == 1 })

	cancel()
	waitFor(t, "registry drained", func() bool { return hub.SessionCount() == 0 })

	// The server side stops serving; the client read eventually errors.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func TestHub_RejectsUpgradeWhenNotRunning(t *testing.T) {
	hub := NewHub(testDeps(&stubSource{err: tiles.ErrTileNotFound}))
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
}
