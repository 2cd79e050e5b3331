// Parkview - Real-Time Parking Availability Map Engine
// Copyright 2026 Mass Transit Company Limited
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/masstransitco/parkview

package api

import (
	"net/http"
	"sort"
	"time"

	"github.com/goccy/go-json"

	"github.com/masstransitco/parkview/internal/logging"
	"github.com/masstransitco/parkview/internal/scene"
)

// HealthResponse is the health endpoint payload.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// StatsResponse is the stats endpoint payload.
type StatsResponse struct {
	UptimeSeconds  float64 `json:"uptimeSeconds"`
	ActiveSessions int     `json:"activeSessions"`
	FeedLoaded     bool    `json:"feedLoaded"`
	FeedPoints     int     `json:"feedPoints"`
}

// CarparkEntry is one row of the carparks endpoint.
type CarparkEntry struct {
	ID      string            `json:"id"`
	Lat     float64           `json:"lat"`
	Lng     float64           `json:"lng"`
	Kind    string            `json:"kind"`
	Payload scene.ItemPayload `json:"payload"`
}

func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Version: rt.version})
}

func (rt *Router) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		UptimeSeconds: time.Since(rt.started).Seconds(),
	}
	if rt.sessions != nil {
		resp.ActiveSessions = rt.sessions.SessionCount()
	}
	if rt.poller != nil {
		ds, ok := rt.poller.Current()
		resp.FeedLoaded = ok
		resp.FeedPoints = len(ds.Points)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCarparks dumps the current dataset, sorted by id for a stable
// response body.
func (rt *Router) handleCarparks(w http.ResponseWriter, r *http.Request) {
	entries := []CarparkEntry{}
	if rt.poller != nil {
		if ds, ok := rt.poller.Current(); ok {
			for _, pt := range ds.Points {
				payload, ok := ds.Payloads[pt.ID]
				if !ok {
					continue
				}
				entries = append(entries, CarparkEntry{
					ID:      pt.ID,
					Lat:     pt.Lat,
					Lng:     pt.Lng,
					Kind:    payload.Kind().String(),
					Payload: payload,
				})
			}
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("failed to encode JSON response")
	}
}
