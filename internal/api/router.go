// Parkview - Real-Time Parking Availability Map Engine
// Copyright 2026 Mass Transit Company Limited
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/masstransitco/parkview

// Package api provides HTTP routing using the Chi router: health and stats
// endpoints, Prometheus metrics, and the websocket mount.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/masstransitco/parkview/internal/config"
	"github.com/masstransitco/parkview/internal/feed"
)

// SessionCounter reports the number of connected map sessions; the
// websocket hub satisfies it.
type SessionCounter interface {
	SessionCount() int
}

// Router wires the HTTP surface of the server.
type Router struct {
	cfg     config.ServerConfig
	version string
	started time.Time

	sessions SessionCounter
	poller   *feed.Poller
	ws       http.Handler
}

// NewRouter creates a router. ws is mounted at /ws; poller may be nil in
// tests, which leaves the carparks endpoint serving an empty dataset.
func NewRouter(cfg config.ServerConfig, version string, sessions SessionCounter, poller *feed.Poller, ws http.Handler) *Router {
	return &Router{
		cfg:      cfg,
		version:  version,
		started:  time.Now(),
		sessions: sessions,
		poller:   poller,
		ws:       ws,
	}
}

// Handler assembles the middleware stack and routes.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: rt.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		if rt.cfg.RateLimitReqs > 0 {
			r.Use(httprate.Limit(
				rt.cfg.RateLimitReqs,
				rt.cfg.RateLimitWindow,
				httprate.WithKeyFuncs(httprate.KeyByIP),
			))
		}
		r.Get("/health", rt.handleHealth)
		r.Get("/stats", rt.handleStats)
		r.Get("/carparks", rt.handleCarparks)
	})

	r.Handle("/metrics", promhttp.Handler())
	if rt.ws != nil {
		r.Handle("/ws", rt.ws)
	}
	return r
}
