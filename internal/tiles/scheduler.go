// Parkview - Real-Time Parking Availability Map Engine
// Copyright 2026 Mass Transit Company Limited
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/masstransitco/parkview

package tiles

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/masstransitco/parkview/internal/geo"
	"github.com/masstransitco/parkview/internal/logging"
	"github.com/masstransitco/parkview/internal/metrics"
)

// TileState tracks a key through the load pipeline. Absent keys are Idle;
// Ready keys live in the cache; Failed keys are dropped so a later request
// is treated as new.
type TileState int

const (
	// StateQueued means the key is waiting for a load slot.
	StateQueued TileState = iota + 1
	// StateLoading means the key holds a load slot: fetch or decode is in
	// flight.
	StateLoading
)

// DefaultMaxConcurrentLoads bounds parallel fetch+decode jobs when no limit
// is configured.
const DefaultMaxConcurrentLoads = 4

// OnTileReady is invoked after a tile completes fetch+decode and enters the
// cache. evicted carries entries displaced by the insertion; the receiver
// owns their disposal.
type OnTileReady func(tile *CachedTile, evicted []*CachedTile)

// LoadScheduler drives tile fetches through a bounded-concurrency gate.
//
// Per-key state machine: Idle -> Queued -> Loading -> {Ready | Failed}.
// Exactly one in-flight job exists per key at any time. The queue drains by
// priority with a stable tie-break on request order. Relevance is checked
// at completion time, not request time: a result for a key pruned from the
// required set in the meantime is discarded, never cached.
type LoadScheduler struct {
	mu sync.Mutex

	source ArchiveSource
	decode *DecodeChannel
	cache  *TileCache

	maxLoads int
	states   map[geo.TileKey]TileState
	queue    requestQueue
	loading  int
	seq      uint64

	// required is the set of keys still wanted by the viewport. nil means
	// everything is wanted (no prune has happened yet).
	required map[geo.TileKey]struct{}

	// startedAt records load-slot acquisition for duration metrics.
	startedAt map[geo.TileKey]time.Time

	onReady OnTileReady

	// ctx is installed by Run. Until then nothing is dispatched, so every
	// fetch goroutine lives under the session context and dies with it.
	ctx context.Context
}

// NewLoadScheduler creates a scheduler over the given archive source,
// decode channel, and cache. onReady may be nil.
func NewLoadScheduler(source ArchiveSource, decode *DecodeChannel, cache *TileCache, maxConcurrentLoads int, onReady OnTileReady) *LoadScheduler {
	if maxConcurrentLoads <= 0 {
		maxConcurrentLoads = DefaultMaxConcurrentLoads
	}
	return &LoadScheduler{
		source:    source,
		decode:    decode,
		cache:     cache,
		maxLoads:  maxConcurrentLoads,
		states:    make(map[geo.TileKey]TileState),
		startedAt: make(map[geo.TileKey]time.Time),
		onReady:   onReady,
	}
}

// Run consumes decode results until the context is canceled. It implements
// suture.Service so the scheduler restarts under supervision.
func (s *LoadScheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	// Requests accepted before Run are queued; drain them now that fetches
	// have a context to run under.
	s.dispatchLocked()
	s.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res, ok := <-s.decode.Results():
			if !ok {
				return nil
			}
			s.complete(res)
		}
	}
}

// Serve implements suture.Service.
func (s *LoadScheduler) Serve(ctx context.Context) error {
	return s.Run(ctx)
}

// String implements fmt.Stringer for supervisor logging.
func (s *LoadScheduler) String() string {
	return "tile-scheduler"
}

// RequestTiles enqueues every key that is neither queued, loading, nor
// cached. Re-requesting a cached key is a no-op that still refreshes its
// last-needed timestamp for LRU purposes. Dispatch happens after the whole
// batch is enqueued so priorities within one call are honored.
func (s *LoadScheduler) RequestTiles(reqs []TileRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, req := range reqs {
		if s.cache.Touch(req.Key) {
			continue
		}
		if _, pending := s.states[req.Key]; pending {
			continue
		}
		s.seq++
		s.states[req.Key] = StateQueued
		s.queue.Push(queuedRequest{TileRequest: req, seq: s.seq})
	}

	s.dispatchLocked()
	metrics.TileQueueSize.Set(float64(s.queue.Len()))
}

// SetRequired replaces the viewport-relevance set. Queued keys outside the
// set are dropped immediately; Loading keys are checked when their result
// arrives. A nil set means everything is wanted.
func (s *LoadScheduler) SetRequired(required map[geo.TileKey]struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.required = required
	if required == nil {
		return
	}

	for key, state := range s.states {
		if state != StateQueued {
			continue
		}
		if _, keep := required[key]; !keep {
			s.queue.Remove(key)
			delete(s.states, key)
		}
	}
	metrics.TileQueueSize.Set(float64(s.queue.Len()))
}

// State returns the pipeline state of a key. ok is false for Idle keys.
func (s *LoadScheduler) State(key geo.TileKey) (TileState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[key]
	return st, ok
}

// Loading returns the number of keys currently holding a load slot.
func (s *LoadScheduler) Loading() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Stats returns the observability snapshot for the tile pipeline.
func (s *LoadScheduler) Stats() CacheStats {
	loaded, evicted := s.cache.Counters()

	s.mu.Lock()
	defer s.mu.Unlock()
	return CacheStats{
		CacheSize:        s.cache.Len(),
		CurrentlyLoading: s.loading,
		QueueSize:        s.queue.Len(),
		TilesLoaded:      loaded,
		TilesEvicted:     evicted,
	}
}

// dispatchLocked fills free load slots from the queue. Caller holds mu.
// No-op before Run installs the context.
func (s *LoadScheduler) dispatchLocked() {
	if s.ctx == nil {
		return
	}
	for s.loading < s.maxLoads {
		req, ok := s.queue.Pop()
		if !ok {
			break
		}
		if s.states[req.Key] != StateQueued {
			continue
		}
		s.states[req.Key] = StateLoading
		s.loading++
		s.startedAt[req.Key] = time.Now()
		metrics.TilesLoading.Set(float64(s.loading))

		go s.fetch(s.ctx, req.Key)
	}
	metrics.TileQueueSize.Set(float64(s.queue.Len()))
}

// fetch performs the archive read for one key and hands the payload to the
// decode pool. Runs on its own goroutine; completion is funneled back
// through complete().
func (s *LoadScheduler) fetch(ctx context.Context, key geo.TileKey) {
	raw, err := s.source.ReadTile(ctx, key)
	switch {
	case errors.Is(err, ErrTileNotFound):
		// Missing tile is "zero records", not a failure. Skip decode and
		// cache the empty result so the key is not re-fetched every pass.
		s.complete(DecodeResult{Key: key})
	case err != nil:
		s.complete(DecodeResult{Key: key, Err: err})
	case len(raw) == 0:
		s.complete(DecodeResult{Key: key})
	default:
		if err := s.decode.Submit(ctx, key, raw); err != nil {
			s.complete(DecodeResult{Key: key, Err: err})
		}
	}
}

// complete finishes the state machine for one key: Ready on success (tile
// enters the cache, onReady fires), Failed on error (key dropped), or a
// silent discard when the key is no longer required.
func (s *LoadScheduler) complete(res DecodeResult) {
	s.mu.Lock()

	if s.states[res.Key] != StateLoading {
		// A result for a key we are not loading: late duplicate. Drop.
		s.mu.Unlock()
		return
	}
	delete(s.states, res.Key)
	s.loading--
	metrics.TilesLoading.Set(float64(s.loading))

	if started, ok := s.startedAt[res.Key]; ok {
		metrics.TileLoadDuration.Observe(time.Since(started).Seconds())
		delete(s.startedAt, res.Key)
	}

	stale := false
	if s.required != nil {
		_, wanted := s.required[res.Key]
		stale = !wanted
	}

	var tile *CachedTile
	var evicted []*CachedTile

	switch {
	case stale:
		metrics.StaleResponsesDropped.Inc()
		logging.Debug().Str("tile", res.Key.String()).Msg("stale tile result dropped")
	case res.Err != nil:
		kind := "transport"
		if errors.Is(res.Err, ErrDecode) {
			kind = "decode"
		}
		metrics.TileLoadFailures.WithLabelValues(kind).Inc()
		logging.Warn().Err(res.Err).Str("tile", res.Key.String()).Msg("tile load failed")
	default:
		tile = &CachedTile{Key: res.Key, Records: res.Records}
		evicted = s.cache.AddToCache(res.Key, tile)
	}

	s.dispatchLocked()
	onReady := s.onReady
	s.mu.Unlock()

	if tile != nil && onReady != nil {
		onReady(tile, evicted)
	}
}
