// Parkview - Real-Time Parking Availability Map Engine
// Copyright 2026 Mass Transit Company Limited
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/masstransitco/parkview

package scene

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncer_BurstFiresOnce(t *testing.T) {
	var fires atomic.Int64
	d := NewDebouncer(20*time.Millisecond, func() { fires.Add(1) })
	defer d.Stop()

	for i := 0; i < 10; i++ {
		d.Trigger()
		time.Sleep(2 * time.Millisecond)
	}

	deadline := time.Now().Add(2 * time.Second)
	for fires.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := fires.Load(); got != 1 {
		t.Fatalf("fires = %d, want 1", got)
	}

	// The window is spent; no delayed second fire.
	time.Sleep(60 * time.Millisecond)
	if got := fires.Load(); got != 1 {
		t.Fatalf("fires = %d after settle, want 1", got)
	}
}

func TestDebouncer_StopCancelsPending(t *testing.T) {
	var fires atomic.Int64
	d := NewDebouncer(20*time.Millisecond, func() { fires.Add(1) })

	d.Trigger()
	d.Stop()

	time.Sleep(60 * time.Millisecond)
	if got := fires.Load(); got != 0 {
		t.Fatalf("fires = %d after Stop, want 0", got)
	}

	// Re-arming after Stop is a no-op.
	d.Trigger()
	time.Sleep(60 * time.Millisecond)
	if got := fires.Load(); got != 0 {
		t.Fatalf("fires = %d after Trigger-after-Stop, want 0", got)
	}
}

func TestDebouncer_FlushFiresImmediately(t *testing.T) {
	var fires atomic.Int64
	d := NewDebouncer(time.Hour, func() { fires.Add(1) })
	defer d.Stop()

	d.Trigger()
	d.Flush()
	if got := fires.Load(); got != 1 {
		t.Fatalf("fires = %d after Flush, want 1", got)
	}

	// Flush with nothing pending does nothing.
	d.Flush()
	if got := fires.Load(); got != 1 {
		t.Fatalf("fires = %d after idle Flush, want 1", got)
	}
}

func TestSelection_Basics(t *testing.T) {
	s := NewSelection()
	if s.Current() != "" || s.IsSelected("") {
		t.Fatal("new selection should be empty and never match empty id")
	}
	if !s.Select("a") {
		t.Fatal("Select(a) should report a change")
	}
	if s.Select("a") {
		t.Fatal("re-selecting the same id should not report a change")
	}
	if !s.IsSelected("a") || s.IsSelected("b") {
		t.Fatalf("IsSelected mismatch, current=%q", s.Current())
	}
	if !s.Clear() {
		t.Fatal("Clear should report a change")
	}
	if s.Current() != "" {
		t.Fatalf("Current = %q after Clear, want empty", s.Current())
	}
	if s.Clear() {
		t.Fatal("Clear of empty selection should not report a change")
	}
}
