// Parkview - Real-Time Parking Availability Map Engine
// Copyright 2026 Mass Transit Company Limited
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/masstransitco/parkview

package scene

import (
	"context"
	"sync"
	"time"

	"github.com/masstransitco/parkview/internal/geo"
	"github.com/masstransitco/parkview/internal/logging"
	"github.com/masstransitco/parkview/internal/spatial"
	"github.com/masstransitco/parkview/internal/tiles"
)

// LayerGate is the zoom range in which a layer is active.
type LayerGate struct {
	MinZoom float64
	MaxZoom float64
}

// Active reports whether the gate is open at the given zoom level.
func (g LayerGate) Active(zoom float64) bool {
	return zoom >= g.MinZoom && zoom <= g.MaxZoom
}

// EngineConfig carries the per-session tunables.
type EngineConfig struct {
	// BufferPct expands the viewport before querying so objects just
	// outside the edge are already live when the user pans.
	BufferPct float64

	// TileZoom is the fixed zoom level of the building tile pyramid.
	TileZoom uint32

	Buildings LayerGate
	Markers   LayerGate

	// DebounceInterval coalesces viewport events during continuous pans.
	DebounceInterval time.Duration
}

// Viewport is the client's current camera: visible bounds plus zoom.
type Viewport struct {
	Bounds geo.Bounds `json:"bounds"`
	Zoom   float64    `json:"zoom"`
}

// VisualParams are material-only rendering knobs. Changing them never
// rebuilds geometry; the renderer restyles what is already attached.
type VisualParams struct {
	Opacity float64 `json:"opacity"`
	Theme   string  `json:"theme"`
}

// Dataset is one published point-data snapshot: the spatial index input
// plus the typed marker content keyed by point id.
type Dataset struct {
	Points   []geo.Point
	Payloads map[string]ItemPayload
}

// EventSink receives the engine's outbound stream. The websocket session
// implements it; tests use an in-memory recorder. Calls arrive from the
// engine goroutine only.
type EventSink interface {
	SceneDiff(layer string, cs ChangeSet)
	Material(p VisualParams)
	Redraw()
}

// Layer names used in diffs and metrics labels.
const (
	LayerBuildings = "buildings"
	LayerMarkers   = "markers"
)

type controlMsg struct {
	selectID   *string
	visible    *bool
	params     *VisualParams
	userLoc    *VisualItem
	searchPin  *VisualItem
	clearPin   bool
	clearedLoc bool
}

// Engine coordinates one map session. A single goroutine (Run) owns the
// spatial index, the two lifecycle managers, and the viewport state;
// everything else communicates with it through channels, so no
// reconciliation ever races another.
type Engine struct {
	cfg       EngineConfig
	index     *spatial.Index
	cache     *tiles.TileCache
	scheduler *tiles.LoadScheduler
	buildings *Manager
	markers   *Manager
	selection *Selection
	sink      EventSink
	debounce  *Debouncer

	// Owned by the Run goroutine.
	viewport   Viewport
	hasView    bool
	visible    bool
	params     VisualParams
	dataset    Dataset
	userLoc    *VisualItem
	searchPin  *VisualItem

	pendingMu sync.Mutex
	pending   Viewport
	hasPend   bool

	settled    chan struct{}
	tilesDirty chan struct{}
	datasets   chan Dataset
	control    chan controlMsg
}

// NewEngine wires a session engine. The caller owns running the scheduler
// and decode channel; the engine only talks to them through their APIs.
// TileReady must be installed as the scheduler's OnTileReady callback.
func NewEngine(cfg EngineConfig, cache *tiles.TileCache, scheduler *tiles.LoadScheduler, selection *Selection, sink EventSink) *Engine {
	if selection == nil {
		selection = NewSelection()
	}
	e := &Engine{
		cfg:        cfg,
		index:      spatial.NewIndex(spatial.DefaultCellSizeDeg),
		cache:      cache,
		scheduler:  scheduler,
		selection:  selection,
		sink:       sink,
		visible:    true,
		params:     VisualParams{Opacity: 1.0, Theme: "day"},
		settled:    make(chan struct{}, 1),
		tilesDirty: make(chan struct{}, 1),
		datasets:   make(chan Dataset, 1),
		control:    make(chan controlMsg, 16),
	}
	e.buildings = NewManager(LayerBuildings, buildingHooks(), selection)
	e.markers = NewManager(LayerMarkers, markerHooks(), selection)
	e.debounce = NewDebouncer(cfg.DebounceInterval, func() { nudge(e.settled) })
	return e
}

// buildingHooks compare tile content by record count: a cached tile is
// immutable once decoded, so a count match means identical geometry.
func buildingHooks() Hooks {
	return Hooks{
		ShouldUpdate: func(next, prev VisualItem) bool {
			np, _ := next.Payload.(TileGroupPayload)
			pp, _ := prev.Payload.(TileGroupPayload)
			return np != pp
		},
		GetPriority: func(VisualItem) Priority { return PriorityOptional },
	}
}

// markerHooks compare the typed payloads directly; all marker payload
// structs are comparable. Vacancy markers stack above occupied ones so a
// cluttered view still shows where free spaces are.
func markerHooks() Hooks {
	return Hooks{
		ShouldUpdate: func(next, prev VisualItem) bool {
			return next.Payload != prev.Payload ||
				next.Lat != prev.Lat || next.Lng != prev.Lng
		},
		GetPriority: func(item VisualItem) Priority {
			switch item.Payload.(type) {
			case UserLocationPayload, SearchPinPayload:
				return PriorityRequired
			default:
				return PriorityOptional
			}
		},
		GetZIndex: func(item VisualItem) int {
			switch p := item.Payload.(type) {
			case IndoorMarkerPayload:
				if p.Vacancy > 0 {
					return 10
				}
			case ConnectedMarkerPayload:
				if p.Vacancy > 0 {
					return 10
				}
			case MeteredMarkerPayload:
				if !p.Occupied {
					return 10
				}
			case UserLocationPayload:
				return 100
			case SearchPinPayload:
				return 90
			}
			return 0
		},
	}
}

// UpdateViewport records the latest camera and arms the debounce window.
// Safe to call from any goroutine.
func (e *Engine) UpdateViewport(vp Viewport) {
	e.pendingMu.Lock()
	e.pending = vp
	e.hasPend = true
	e.pendingMu.Unlock()
	e.debounce.Trigger()
}

// TileReady is the scheduler completion callback. It only nudges the
// engine goroutine; the diff against the cache happens there.
func (e *Engine) TileReady(_ *tiles.CachedTile, _ []*tiles.CachedTile) {
	nudge(e.tilesDirty)
}

// PublishDataset hands a fresh point snapshot to the engine, replacing any
// snapshot still waiting to be applied.
func (e *Engine) PublishDataset(ds Dataset) {
	for {
		select {
		case e.datasets <- ds:
			return
		default:
			select {
			case <-e.datasets:
			default:
			}
		}
	}
}

// Select sets the session selection; an empty id clears it.
func (e *Engine) Select(id string) {
	e.send(controlMsg{selectID: &id})
}

// SetVisible toggles the whole scene, e.g. when the map view is hidden
// behind another panel. Hiding detaches-by-clearing both layers.
func (e *Engine) SetVisible(v bool) {
	e.send(controlMsg{visible: &v})
}

// SetVisualParams applies material-only changes.
func (e *Engine) SetVisualParams(p VisualParams) {
	e.send(controlMsg{params: &p})
}

// SetUserLocation places or moves the session's position puck.
func (e *Engine) SetUserLocation(lat, lng, accuracyM float64) {
	item := VisualItem{
		ID:      "user-location",
		Lat:     lat,
		Lng:     geo.NormalizeLng(lng),
		Payload: UserLocationPayload{AccuracyM: accuracyM},
	}
	e.send(controlMsg{userLoc: &item})
}

// ClearUserLocation removes the position puck.
func (e *Engine) ClearUserLocation() {
	e.send(controlMsg{clearedLoc: true})
}

// DropSearchPin places the search result pin, replacing any previous one.
func (e *Engine) DropSearchPin(lat, lng float64, label string) {
	item := VisualItem{
		ID:      "search-pin",
		Lat:     lat,
		Lng:     geo.NormalizeLng(lng),
		Payload: SearchPinPayload{Label: label},
	}
	e.send(controlMsg{searchPin: &item})
}

// ClearSearchPin removes the search pin.
func (e *Engine) ClearSearchPin() {
	e.send(controlMsg{clearPin: true})
}

// Stats returns the tile pipeline snapshot for the stats endpoint.
func (e *Engine) Stats() tiles.CacheStats {
	return e.scheduler.Stats()
}

func (e *Engine) send(cmd controlMsg) {
	select {
	case e.control <- cmd:
	default:
		// Control channel full: the session is flooding faster than the
		// engine reconciles. Drop and log; state converges on the next
		// accepted message.
		logging.Warn().Msg("engine control channel full, dropping message")
	}
}

// Run is the engine loop. It exits when ctx is cancelled, clearing both
// layers so the sink sees a clean teardown.
func (e *Engine) Run(ctx context.Context) error {
	defer e.debounce.Stop()
	for {
		select {
		case <-ctx.Done():
			e.teardown()
			return ctx.Err()
		case <-e.settled:
			e.applyPendingViewport()
			e.reconcileAll()
		case <-e.tilesDirty:
			e.flush(e.reconcileBuildings())
		case ds := <-e.datasets:
			e.applyDataset(ds)
			e.flush(e.reconcileMarkers())
		case cmd := <-e.control:
			e.handle(cmd)
		}
	}
}

// Serve implements suture.Service.
func (e *Engine) Serve(ctx context.Context) error { return e.Run(ctx) }

// String implements fmt.Stringer for supervisor logs.
func (e *Engine) String() string { return "scene-engine" }

func (e *Engine) applyPendingViewport() {
	e.pendingMu.Lock()
	if e.hasPend {
		e.viewport = e.pending
		e.hasView = true
		e.hasPend = false
	}
	e.pendingMu.Unlock()
}

func (e *Engine) applyDataset(ds Dataset) {
	e.dataset = ds
	e.index.Rebuild(ds.Points)
	logging.Debug().
		Int("points", len(ds.Points)).
		Msg("dataset applied, spatial index rebuilt")
}

func (e *Engine) handle(cmd controlMsg) {
	switch {
	case cmd.selectID != nil:
		if e.selection.Select(*cmd.selectID) {
			e.reconcileAll()
		}
	case cmd.visible != nil:
		if e.visible != *cmd.visible {
			e.visible = *cmd.visible
			e.reconcileAll()
		}
	case cmd.params != nil:
		e.params = *cmd.params
		e.sink.Material(e.params)
		e.sink.Redraw()
	case cmd.userLoc != nil:
		e.userLoc = cmd.userLoc
		e.flush(e.reconcileMarkers())
	case cmd.clearedLoc:
		e.userLoc = nil
		e.flush(e.reconcileMarkers())
	case cmd.searchPin != nil:
		e.searchPin = cmd.searchPin
		e.flush(e.reconcileMarkers())
	case cmd.clearPin:
		e.searchPin = nil
		e.flush(e.reconcileMarkers())
	}
}

func (e *Engine) reconcileAll() {
	changed := e.reconcileMarkers()
	if e.reconcileBuildings() {
		changed = true
	}
	if changed {
		e.sink.Redraw()
	}
}

func (e *Engine) flush(changed bool) {
	if changed {
		e.sink.Redraw()
	}
}

// reconcileMarkers diffs the marker layer against the current viewport and
// dataset. Returns true when the sink received a diff.
func (e *Engine) reconcileMarkers() bool {
	if !e.hasView || !e.visible || !e.cfg.Markers.Active(e.viewport.Zoom) {
		cs := e.markers.Clear()
		if cs.Empty() {
			return false
		}
		e.sink.SceneDiff(LayerMarkers, cs)
		return true
	}

	expanded := e.viewport.Bounds.Expand(e.cfg.BufferPct)
	pts := e.index.QueryBounds(expanded)

	candidates := make([]VisualItem, 0, len(pts)+2)
	for _, pt := range pts {
		payload, ok := e.dataset.Payloads[pt.ID]
		if !ok {
			continue
		}
		candidates = append(candidates, VisualItem{
			ID:      pt.ID,
			Lat:     pt.Lat,
			Lng:     pt.Lng,
			Payload: payload,
		})
	}

	sourceIDs := make(map[string]struct{}, len(e.dataset.Payloads)+2)
	for id := range e.dataset.Payloads {
		sourceIDs[id] = struct{}{}
	}

	// Session-local items ride the marker layer but ignore the viewport:
	// the puck and pin stay live wherever the camera goes.
	for _, extra := range []*VisualItem{e.userLoc, e.searchPin} {
		if extra != nil {
			candidates = append(candidates, *extra)
			sourceIDs[extra.ID] = struct{}{}
		}
	}

	cs := e.markers.Reconcile(candidates, sourceIDs)
	if cs.Empty() {
		return false
	}
	e.sink.SceneDiff(LayerMarkers, cs)
	return true
}

// reconcileBuildings recomputes the required tile set for the viewport,
// prunes and requests through the scheduler, then diffs the tile groups
// that are already decoded. Returns true when the sink received a diff.
func (e *Engine) reconcileBuildings() bool {
	if !e.hasView || !e.visible || !e.cfg.Buildings.Active(e.viewport.Zoom) {
		e.scheduler.SetRequired(map[geo.TileKey]struct{}{})
		cs := e.buildings.Clear()
		if cs.Empty() {
			return false
		}
		e.sink.SceneDiff(LayerBuildings, cs)
		return true
	}

	expanded := e.viewport.Bounds.Expand(e.cfg.BufferPct)
	keys := geo.CoveringTiles(expanded, e.cfg.TileZoom)

	required := make(map[geo.TileKey]struct{}, len(keys))
	sourceIDs := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		required[k] = struct{}{}
		sourceIDs[tileItemID(k)] = struct{}{}
	}

	e.scheduler.SetRequired(required)
	e.cache.PruneToKeys(required)

	centerLat, centerLng := e.viewport.Bounds.Center()
	var reqs []tiles.TileRequest
	candidates := make([]VisualItem, 0, len(keys))
	for _, k := range keys {
		tile, ok := e.cache.Get(k)
		if !ok {
			reqs = append(reqs, tiles.TileRequest{
				Key:      k,
				Priority: geo.TilePriority(k, centerLat, centerLng),
			})
			continue
		}
		id := tileItemID(k)
		tile.GroupID = id
		tb := geo.TileBounds(k)
		lat, lng := tb.Center()
		candidates = append(candidates, VisualItem{
			ID:  id,
			Lat: lat,
			Lng: lng,
			Payload: TileGroupPayload{
				TileKey:     k,
				RecordCount: len(tile.Records),
			},
		})
	}
	if len(reqs) > 0 {
		e.scheduler.RequestTiles(reqs)
	}

	cs := e.buildings.Reconcile(candidates, sourceIDs)
	if cs.Empty() {
		return false
	}
	e.sink.SceneDiff(LayerBuildings, cs)
	return true
}

func (e *Engine) teardown() {
	if cs := e.markers.Clear(); !cs.Empty() {
		e.sink.SceneDiff(LayerMarkers, cs)
	}
	if cs := e.buildings.Clear(); !cs.Empty() {
		e.sink.SceneDiff(LayerBuildings, cs)
	}
}

func tileItemID(k geo.TileKey) string { return "tile/" + k.String() }

func nudge(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
