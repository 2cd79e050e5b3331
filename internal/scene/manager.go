// Parkview - Real-Time Parking Availability Map Engine
// Copyright 2026 Mass Transit Company Limited
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/masstransitco/parkview

package scene

import (
	"time"

	"github.com/masstransitco/parkview/internal/metrics"
)

// Hooks customize reconciliation per layer. Every hook is optional; nil
// hooks fall back to conservative defaults (always update, optional
// priority, zero z-index).
type Hooks struct {
	// ShouldUpdate reports whether the live item's content must be replaced
	// by the candidate's. Returning false skips the update op entirely.
	ShouldUpdate func(next, prev VisualItem) bool

	// GetPriority returns the natural collision priority of an item.
	// Selection escalation is applied on top of this and cannot be
	// overridden by the hook.
	GetPriority func(item VisualItem) Priority

	// GetZIndex returns the natural stacking order of an item.
	GetZIndex func(item VisualItem) int
}

// ChangeSet is the minimal diff produced by one Reconcile pass, in the
// order a renderer should apply it.
type ChangeSet struct {
	Created   []VisualItem `json:"created,omitempty"`
	Updated   []VisualItem `json:"updated,omitempty"`
	Attached  []VisualItem `json:"attached,omitempty"`
	Detached  []string     `json:"detached,omitempty"`
	Destroyed []string     `json:"destroyed,omitempty"`
}

// Empty reports whether the pass produced no operations.
func (c ChangeSet) Empty() bool {
	return len(c.Created) == 0 && len(c.Updated) == 0 && len(c.Attached) == 0 &&
		len(c.Detached) == 0 && len(c.Destroyed) == 0
}

type liveObject struct {
	item  VisualItem
	state ItemState
}

// Manager owns the live visual objects of one layer for one session and
// reconciles them against candidate sets. It is not safe for concurrent
// use; the session engine is its single caller.
type Manager struct {
	layer     string
	hooks     Hooks
	selection *Selection
	live      map[string]*liveObject
}

// NewManager returns an empty lifecycle manager for the named layer.
// The layer name is only used as a metrics label.
func NewManager(layer string, hooks Hooks, selection *Selection) *Manager {
	if selection == nil {
		selection = NewSelection()
	}
	return &Manager{
		layer:     layer,
		hooks:     hooks,
		selection: selection,
		live:      make(map[string]*liveObject),
	}
}

// Reconcile diffs the candidate set against the live set. Candidates are
// the items that should currently be visible; sourceIDs is the full id set
// of the backing data. Items that left the viewport but remain in the data
// are detached and kept; items whose backing data disappeared are
// destroyed. Selected items are escalated to required priority and maximum
// z-index regardless of their natural values.
func (m *Manager) Reconcile(candidates []VisualItem, sourceIDs map[string]struct{}) ChangeSet {
	start := time.Now()
	var cs ChangeSet

	visible := make(map[string]struct{}, len(candidates))
	for _, cand := range candidates {
		visible[cand.ID] = struct{}{}
		cand = m.assign(cand)

		obj, ok := m.live[cand.ID]
		if !ok {
			m.live[cand.ID] = &liveObject{item: cand, state: StateAttached}
			cs.Created = append(cs.Created, cand)
			continue
		}
		if m.shouldUpdate(cand, obj.item) {
			obj.item = cand
			cs.Updated = append(cs.Updated, cand)
		} else if cand.Priority != obj.item.Priority || cand.ZIndex != obj.item.ZIndex {
			// Selection moved on or off this item; the content is
			// unchanged but the renderer hints are not.
			obj.item.Priority = cand.Priority
			obj.item.ZIndex = cand.ZIndex
			cs.Updated = append(cs.Updated, obj.item)
		}
		if obj.state == StateDetached {
			obj.state = StateAttached
			cs.Attached = append(cs.Attached, obj.item)
		}
	}

	for id, obj := range m.live {
		if _, ok := visible[id]; ok {
			continue
		}
		if _, inSource := sourceIDs[id]; inSource {
			if obj.state == StateAttached {
				obj.state = StateDetached
				cs.Detached = append(cs.Detached, id)
			}
			continue
		}
		delete(m.live, id)
		cs.Destroyed = append(cs.Destroyed, id)
	}

	m.observe(cs, start)
	return cs
}

// Clear destroys every live object, attached or detached. Used on session
// teardown and when a layer's zoom gate closes with no replacement data.
func (m *Manager) Clear() ChangeSet {
	start := time.Now()
	var cs ChangeSet
	for id := range m.live {
		cs.Destroyed = append(cs.Destroyed, id)
	}
	m.live = make(map[string]*liveObject)
	m.observe(cs, start)
	return cs
}

// Item returns the live item and true when id exists in any state.
func (m *Manager) Item(id string) (VisualItem, bool) {
	obj, ok := m.live[id]
	if !ok {
		return VisualItem{}, false
	}
	return obj.item, true
}

// State returns the lifecycle state of id; ok is false for absent items.
func (m *Manager) State(id string) (ItemState, bool) {
	obj, ok := m.live[id]
	if !ok {
		return 0, false
	}
	return obj.state, true
}

// Len returns the number of live objects, attached and detached.
func (m *Manager) Len() int { return len(m.live) }

// assign applies the natural priority and z-index hooks, then the selection
// escalation.
func (m *Manager) assign(item VisualItem) VisualItem {
	if m.hooks.GetPriority != nil {
		item.Priority = m.hooks.GetPriority(item)
	}
	if m.hooks.GetZIndex != nil {
		item.ZIndex = m.hooks.GetZIndex(item)
	}
	if m.selection.IsSelected(item.ID) {
		item.Priority = PriorityRequired
		item.ZIndex = MaxZIndex
	}
	return item
}

func (m *Manager) shouldUpdate(next, prev VisualItem) bool {
	if m.hooks.ShouldUpdate != nil {
		return m.hooks.ShouldUpdate(next, prev)
	}
	return true
}

func (m *Manager) observe(cs ChangeSet, start time.Time) {
	metrics.ReconciliationDuration.WithLabelValues(m.layer).Observe(time.Since(start).Seconds())
	metrics.VisualObjectsLive.WithLabelValues(m.layer).Set(float64(len(m.live)))
	count := func(op string, n int) {
		if n > 0 {
			metrics.VisualObjectChanges.WithLabelValues(m.layer, op).Add(float64(n))
		}
	}
	count("create", len(cs.Created))
	count("update", len(cs.Updated))
	count("attach", len(cs.Attached))
	count("detach", len(cs.Detached))
	count("destroy", len(cs.Destroyed))
}
