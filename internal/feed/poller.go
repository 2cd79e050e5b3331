// Parkview - Real-Time Parking Availability Map Engine
// Copyright 2026 Mass Transit Company Limited
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/masstransitco/parkview

// Package feed polls the upstream carpark vacancy service and publishes
// point datasets to subscribed map sessions. The poller is the only writer
// of the current dataset; sessions receive immutable snapshots.
package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/masstransitco/parkview/internal/geo"
	"github.com/masstransitco/parkview/internal/logging"
	"github.com/masstransitco/parkview/internal/metrics"
	"github.com/masstransitco/parkview/internal/scene"
)

// ErrFeedUnavailable is returned when the upstream request fails or the
// circuit breaker is open.
var ErrFeedUnavailable = errors.New("feed: upstream unavailable")

const maxFeedBody = 32 << 20 // upstream document cap

// Config carries the poller tunables.
type Config struct {
	// URL of the vacancy document.
	URL string

	// PollInterval between refreshes.
	PollInterval time.Duration

	// RequestTimeout bounds a single upstream request.
	RequestTimeout time.Duration
}

// Subscriber receives each successfully refreshed dataset. The session
// engine satisfies this.
type Subscriber interface {
	PublishDataset(ds scene.Dataset)
}

// carparkRecord is one entry of the upstream vacancy document.
type carparkRecord struct {
	ID       string  `json:"park_id"`
	Name     string  `json:"name"`
	Lat      float64 `json:"latitude"`
	Lng      float64 `json:"longitude"`
	Type     string  `json:"type"`
	Vacancy  int     `json:"vacancy"`
	Total    int     `json:"total"`
	Occupied bool    `json:"occupied"`
	Active   bool    `json:"active"`
}

type feedDocument struct {
	Carparks []carparkRecord `json:"carparks"`
}

// Poller refreshes the carpark dataset on a fixed interval. Upstream
// failures trip a circuit breaker so a dead feed does not burn the poll
// budget on guaranteed failures; the last good dataset keeps serving.
type Poller struct {
	cfg     Config
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	limiter *rate.Limiter

	mu      sync.RWMutex
	subs    map[int]Subscriber
	nextSub int
	current scene.Dataset
	hasData bool
}

// NewPoller returns a poller for the configured feed. A nil client uses a
// default with the configured request timeout.
func NewPoller(cfg Config, client *http.Client) *Poller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.RequestTimeout}
	}
	return &Poller{
		cfg:    cfg,
		client: client,
		breaker: gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:        "vacancy-feed",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     2 * cfg.PollInterval,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 3
			},
		}),
		limiter: rate.NewLimiter(rate.Every(cfg.PollInterval/2), 1),
		subs:    make(map[int]Subscriber),
	}
}

// Subscribe registers a dataset consumer and immediately delivers the
// current dataset when one exists. The returned function unsubscribes.
func (p *Poller) Subscribe(sub Subscriber) func() {
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = sub
	current, hasData := p.current, p.hasData
	p.mu.Unlock()

	if hasData {
		sub.PublishDataset(current)
	}
	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

// Current returns the latest dataset and whether one has been loaded yet.
func (p *Poller) Current() (scene.Dataset, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current, p.hasData
}

// Run polls until ctx is cancelled. The first refresh happens immediately.
func (p *Poller) Run(ctx context.Context) error {
	if err := p.RefreshNow(ctx); err != nil {
		logging.Warn().Err(err).Msg("initial feed refresh failed")
	}
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.RefreshNow(ctx); err != nil {
				logging.Warn().Err(err).Msg("feed refresh failed")
			}
		}
	}
}

// Serve implements suture.Service.
func (p *Poller) Serve(ctx context.Context) error { return p.Run(ctx) }

// String implements fmt.Stringer for supervisor logs.
func (p *Poller) String() string { return "vacancy-feed" }

// RefreshNow fetches and publishes one refresh, subject to the rate
// limiter and circuit breaker.
func (p *Poller) RefreshNow(ctx context.Context) error {
	if !p.limiter.Allow() {
		// The previous refresh is recent enough.
		return nil
	}
	body, err := p.breaker.Execute(func() ([]byte, error) {
		return p.fetch(ctx)
	})
	if err != nil {
		metrics.FeedRefreshes.WithLabelValues("error").Inc()
		return fmt.Errorf("%w: %w", ErrFeedUnavailable, err)
	}

	var doc feedDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		metrics.FeedRefreshes.WithLabelValues("error").Inc()
		return fmt.Errorf("feed: decode document: %w", err)
	}

	ds := buildDataset(doc.Carparks)
	p.publish(ds)

	metrics.FeedRefreshes.WithLabelValues("ok").Inc()
	metrics.FeedPoints.Set(float64(len(ds.Points)))
	logging.Debug().Int("points", len(ds.Points)).Msg("feed refreshed")
	return nil
}

func (p *Poller) fetch(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("feed: status %d from upstream", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxFeedBody))
}

func (p *Poller) publish(ds scene.Dataset) {
	p.mu.Lock()
	p.current = ds
	p.hasData = true
	subs := make([]Subscriber, 0, len(p.subs))
	for _, s := range p.subs {
		subs = append(subs, s)
	}
	p.mu.Unlock()

	for _, s := range subs {
		s.PublishDataset(ds)
	}
}

// buildDataset converts upstream records into index points plus typed
// marker payloads. Records with an unknown type or no id are dropped;
// longitudes are normalized so the spatial index and viewport queries
// agree near the antimeridian.
func buildDataset(records []carparkRecord) scene.Dataset {
	ds := scene.Dataset{
		Points:   make([]geo.Point, 0, len(records)),
		Payloads: make(map[string]scene.ItemPayload, len(records)),
	}
	for _, rec := range records {
		if rec.ID == "" {
			continue
		}
		var payload scene.ItemPayload
		switch rec.Type {
		case "indoor":
			payload = scene.IndoorMarkerPayload{CarparkID: rec.ID, Name: rec.Name, Vacancy: rec.Vacancy}
		case "metered":
			payload = scene.MeteredMarkerPayload{MeterID: rec.ID, Occupied: rec.Occupied}
		case "connected":
			payload = scene.ConnectedMarkerPayload{LotID: rec.ID, Vacancy: rec.Vacancy, Total: rec.Total}
		case "dispatch":
			payload = scene.DispatchMarkerPayload{StationID: rec.ID, Active: rec.Active}
		default:
			logging.Debug().Str("type", rec.Type).Str("id", rec.ID).Msg("dropping carpark with unknown type")
			continue
		}
		ds.Points = append(ds.Points, geo.Point{
			ID:  rec.ID,
			Lat: rec.Lat,
			Lng: geo.NormalizeLng(rec.Lng),
		})
		ds.Payloads[rec.ID] = payload
	}
	return ds
}
