// Parkview - Real-Time Parking Availability Map Engine
// Copyright 2026 Mass Transit Company Limited
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/masstransitco/parkview

package scene

import "sync"

// Selection holds the single selected visual item for one session. It is an
// explicit dependency handed to every component that needs it rather than
// process-global state, so concurrent sessions never observe each other's
// selection.
type Selection struct {
	mu sync.RWMutex
	id string
}

// NewSelection returns an empty selection.
func NewSelection() *Selection {
	return &Selection{}
}

// Select replaces the current selection. An empty id clears it.
// It returns true when the selection actually changed.
func (s *Selection) Select(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.id == id {
		return false
	}
	s.id = id
	return true
}

// Clear removes the selection and reports whether one was set.
func (s *Selection) Clear() bool {
	return s.Select("")
}

// Current returns the selected item id, or "" when nothing is selected.
func (s *Selection) Current() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// IsSelected reports whether id is the current selection.
func (s *Selection) IsSelected(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return id != "" && s.id == id
}
