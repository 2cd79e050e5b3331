// Parkview - Real-Time Parking Availability Map Engine
// Copyright 2026 Mass Transit Company Limited
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/masstransitco/parkview

package scene

import (
	"sync"
	"time"
)

// Debouncer coalesces bursts of trigger calls into a single callback that
// fires once the burst has been quiet for the configured interval. Each
// Trigger issues a new generation token and invalidates the pending one, so
// a stale timer that races a fresh Trigger never fires the callback.
type Debouncer struct {
	mu       sync.Mutex
	interval time.Duration
	fire     func()
	timer    *time.Timer
	gen      uint64
	stopped  bool
}

// NewDebouncer returns a debouncer that invokes fire on its own timer
// goroutine interval after the last Trigger.
func NewDebouncer(interval time.Duration, fire func()) *Debouncer {
	return &Debouncer{interval: interval, fire: fire}
}

// Trigger arms (or re-arms) the debounce window.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.gen++
	gen := d.gen
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, func() {
		d.expire(gen)
	})
}

// Flush fires immediately if a window is pending, bypassing the interval.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.stopped || d.timer == nil {
		d.mu.Unlock()
		return
	}
	d.timer.Stop()
	d.timer = nil
	d.gen++
	d.mu.Unlock()
	d.fire()
}

// Stop cancels any pending window. The debouncer cannot be re-armed after
// Stop returns.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}

func (d *Debouncer) expire(gen uint64) {
	d.mu.Lock()
	if d.stopped || gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.mu.Unlock()
	d.fire()
}
