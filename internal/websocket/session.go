// Parkview - Real-Time Parking Availability Map Engine
// Copyright 2026 Mass Transit Company Limited
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/masstransitco/parkview

package websocket

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/masstransitco/parkview/internal/logging"
	"github.com/masstransitco/parkview/internal/scene"
	"github.com/masstransitco/parkview/internal/tiles"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024 // viewport and selection messages are tiny

	statsInterval = 10 * time.Second
)

// Session is one connected map client: the websocket connection plus its
// private streaming pipeline (decode channel, load scheduler, tile cache,
// scene engine). Sessions share nothing but the archive source and the
// vacancy feed, so one slow client never stalls another.
type Session struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan Message

	engine    *scene.Engine
	scheduler *tiles.LoadScheduler
	decode    *tiles.DecodeChannel

	cancel      context.CancelFunc
	unsubscribe func()
}

func newSession(hub *Hub, conn *websocket.Conn) *Session {
	s := &Session{
		id:   uuid.NewString(),
		hub:  hub,
		conn: conn,
		send: make(chan Message, 256),
	}

	deps := hub.deps
	cache := tiles.NewTileCache(deps.MaxCachedTiles)
	s.decode = tiles.NewDecodeChannel(deps.DecodeWorkers, nil)
	s.scheduler = tiles.NewLoadScheduler(deps.Source, s.decode, cache, deps.MaxConcurrentLoads,
		func(tile *tiles.CachedTile, evicted []*tiles.CachedTile) {
			s.engine.TileReady(tile, evicted)
		})
	s.engine = scene.NewEngine(deps.Engine, cache, s.scheduler, scene.NewSelection(), s)
	return s
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string { return s.id }

// start launches the pipeline goroutines and the read/write pumps. ctx is
// the hub's run context; closing the connection or cancelling ctx tears the
// whole session down.
func (s *Session) start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.scheduler.Run(ctx)
	go s.engine.Run(ctx)
	if s.hub.deps.Feed != nil {
		s.unsubscribe = s.hub.deps.Feed.Subscribe(s.engine)
	}
	go s.writePump(ctx)
	go s.readPump()
	logging.Info().Str("session_id", s.id).Msg("map session started")
}

// stop releases the session's pipeline. Safe to call more than once.
func (s *Session) stop() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.decode.Close()
}

// SceneDiff implements scene.EventSink.
func (s *Session) SceneDiff(layer string, cs scene.ChangeSet) {
	s.enqueue(Message{Type: MessageTypeSceneDiff, Data: SceneDiffData{Layer: layer, Changes: cs}})
}

// Material implements scene.EventSink.
func (s *Session) Material(p scene.VisualParams) {
	s.enqueue(Message{Type: MessageTypeMaterial, Data: p})
}

// Redraw implements scene.EventSink.
func (s *Session) Redraw() {
	s.enqueue(Message{Type: MessageTypeRedraw})
}

func (s *Session) enqueue(msg Message) {
	select {
	case s.send <- msg:
	default:
		// The client is not keeping up. Dropping a diff would desync its
		// scene, so drop the whole session instead; it reconnects with a
		// fresh state.
		logging.Warn().Str("session_id", s.id).Str("type", msg.Type).
			Msg("session send buffer full, closing")
		select {
		case s.hub.Unregister <- s:
		default:
		}
	}
}

// readPump pumps client messages into the engine until the connection dies.
func (s *Session) readPump() {
	defer func() {
		s.hub.Unregister <- s
		_ = s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg inboundMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Error().Err(err).Str("session_id", s.id).Msg("unexpected websocket close error")
			}
			return
		}
		s.dispatch(msg)
	}
}

// dispatch routes one inbound message. Malformed payloads are logged and
// dropped; they never terminate the session.
func (s *Session) dispatch(msg inboundMessage) {
	switch msg.Type {
	case MessageTypeViewport:
		var vp scene.Viewport
		if s.decodeData(msg, &vp) {
			s.engine.UpdateViewport(vp)
		}
	case MessageTypeSelect:
		var data selectData
		if s.decodeData(msg, &data) {
			s.engine.Select(data.ID)
		}
	case MessageTypeVisualParams:
		var params scene.VisualParams
		if s.decodeData(msg, &params) {
			s.engine.SetVisualParams(params)
		}
	case MessageTypeUserLocation:
		var data userLocationData
		if s.decodeData(msg, &data) {
			if data.Clear {
				s.engine.ClearUserLocation()
			} else {
				s.engine.SetUserLocation(data.Lat, data.Lng, data.AccuracyM)
			}
		}
	case MessageTypeSearchPin:
		var data searchPinData
		if s.decodeData(msg, &data) {
			if data.Clear {
				s.engine.ClearSearchPin()
			} else {
				s.engine.DropSearchPin(data.Lat, data.Lng, data.Label)
			}
		}
	case MessageTypeVisibility:
		var data visibilityData
		if s.decodeData(msg, &data) {
			s.engine.SetVisible(data.Visible)
		}
	case MessageTypePing:
		s.enqueue(Message{Type: MessageTypePong})
	default:
		logging.Debug().Str("session_id", s.id).Str("type", msg.Type).Msg("ignoring unknown message type")
	}
}

func (s *Session) decodeData(msg inboundMessage, v interface{}) bool {
	if err := json.Unmarshal(msg.Data, v); err != nil {
		logging.Warn().Err(err).Str("session_id", s.id).Str("type", msg.Type).
			Msg("malformed message payload")
		return false
	}
	return true
}

// writePump drains the send queue to the connection, interleaving pings and
// periodic tile pipeline stats.
func (s *Session) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	stats := time.NewTicker(statsInterval)
	defer func() {
		ticker.Stop()
		stats.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.send:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline")
				return
			}
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteJSON(message); err != nil {
				logging.Error().Err(err).Str("session_id", s.id).Msg("failed to write JSON message")
				return
			}

		case <-stats.C:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := s.conn.WriteJSON(Message{Type: MessageTypeStats, Data: s.engine.Stats()}); err != nil {
				return
			}

		case <-ticker.C:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-ctx.Done():
			return
		}
	}
}
