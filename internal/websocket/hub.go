// Parkview - Real-Time Parking Availability Map Engine
// Copyright 2026 Mass Transit Company Limited
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/masstransitco/parkview

// Package websocket serves the map client protocol: each connection gets a
// private session with its own tile pipeline and scene engine; the hub
// tracks session lifecycle for supervision and shutdown.
package websocket

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/masstransitco/parkview/internal/feed"
	"github.com/masstransitco/parkview/internal/logging"
	"github.com/masstransitco/parkview/internal/metrics"
	"github.com/masstransitco/parkview/internal/scene"
	"github.com/masstransitco/parkview/internal/tiles"
)

// SessionDeps is everything a new session's pipeline needs. Source and Feed
// are shared across sessions; the rest are per-session tunables.
type SessionDeps struct {
	Engine             scene.EngineConfig
	MaxConcurrentLoads int
	MaxCachedTiles     int
	DecodeWorkers      int
	Source             tiles.ArchiveSource
	Feed               *feed.Poller
}

// Hub maintains the set of active sessions. It is the single owner of the
// session registry; registration and teardown flow through its run loop.
type Hub struct {
	deps SessionDeps

	sessions   map[*Session]bool
	Register   chan *Session
	Unregister chan *Session
	mu         sync.RWMutex

	runCtx context.Context
}

// NewHub creates a hub that builds sessions from deps.
func NewHub(deps SessionDeps) *Hub {
	if deps.MaxConcurrentLoads <= 0 {
		deps.MaxConcurrentLoads = tiles.DefaultMaxConcurrentLoads
	}
	if deps.MaxCachedTiles <= 0 {
		deps.MaxCachedTiles = tiles.DefaultMaxCachedTiles
	}
	return &Hub{
		deps:       deps,
		sessions:   make(map[*Session]bool),
		Register:   make(chan *Session),
		Unregister: make(chan *Session),
	}
}

// Run owns the session registry until ctx is cancelled, then tears down
// every session. Designed for suture supervision.
//
// Lifecycle events take priority over shutdown polling so a session that
// disconnects during shutdown is still cleaned up exactly once.
func (h *Hub) Run(ctx context.Context) error {
	h.mu.Lock()
	h.runCtx = ctx
	h.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			h.closeAllSessions()
			logging.Info().Str("component", "websocket-hub").Msg("websocket hub stopped")
			return ctx.Err()

		case s := <-h.Register:
			h.mu.Lock()
			h.sessions[s] = true
			total := len(h.sessions)
			h.mu.Unlock()
			metrics.ActiveSessions.Set(float64(total))
			s.start(ctx)
			logging.Info().Int("total_sessions", total).Msg("websocket session connected")

		case s := <-h.Unregister:
			h.mu.Lock()
			_, ok := h.sessions[s]
			if ok {
				delete(h.sessions, s)
			}
			total := len(h.sessions)
			h.mu.Unlock()
			if ok {
				s.stop()
				metrics.ActiveSessions.Set(float64(total))
				logging.Info().Int("total_sessions", total).Msg("websocket session disconnected")
			}
		}
	}
}

// Serve implements suture.Service.
func (h *Hub) Serve(ctx context.Context) error { return h.Run(ctx) }

// String implements fmt.Stringer for supervisor logs.
func (h *Hub) String() string { return "websocket-hub" }

// SessionCount returns the number of connected sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func (h *Hub) closeAllSessions() {
	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.sessions = make(map[*Session]bool)
	h.mu.Unlock()

	for _, s := range sessions {
		s.stop()
	}
	metrics.ActiveSessions.Set(0)
	logging.Info().Int("sessions_closed", len(sessions)).Msg("closed all websocket sessions during shutdown")
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Cross-origin policy is enforced by the router's CORS middleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// ServeHTTP upgrades the connection and registers a new session. Mount it
// on the router's /ws route.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	running := h.runCtx != nil && h.runCtx.Err() == nil
	h.mu.RUnlock()
	if !running {
		http.Error(w, "hub not running", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	h.Register <- newSession(h, conn)
}
