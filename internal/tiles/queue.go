// Parkview - Real-Time Parking Availability Map Engine
// Copyright 2026 Mass Transit Company Limited
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/masstransitco/parkview

package tiles

import "github.com/masstransitco/parkview/internal/geo"

// TileRequest is a pending fetch+decode job. Lower Priority loads sooner;
// the scheduler assigns squared viewport-center distance, so nearby tiles
// win.
type TileRequest struct {
	Key      geo.TileKey
	Priority float64
}

// queuedRequest carries the request sequence number used as a stable
// tie-break: equal priorities drain in original request order, so no key
// starves behind later arrivals.
type queuedRequest struct {
	TileRequest
	seq uint64
}

// requestQueue is a binary min-heap over (priority, seq). It is not
// goroutine-safe; the scheduler guards it with its own mutex.
type requestQueue struct {
	heap []queuedRequest
}

func (q *requestQueue) Len() int {
	return len(q.heap)
}

func (q *requestQueue) Push(r queuedRequest) {
	q.heap = append(q.heap, r)
	q.bubbleUp(len(q.heap) - 1)
}

// Pop removes and returns the lowest-priority-value request.
func (q *requestQueue) Pop() (queuedRequest, bool) {
	if len(q.heap) == 0 {
		return queuedRequest{}, false
	}
	top := q.heap[0]
	n := len(q.heap) - 1
	q.heap[0] = q.heap[n]
	q.heap = q.heap[:n]
	if n > 0 {
		q.bubbleDown(0)
	}
	return top, true
}

// Remove deletes a queued request by key. Used when the viewport moves on
// before a queued tile ever got a load slot.
func (q *requestQueue) Remove(key geo.TileKey) bool {
	for i, r := range q.heap {
		if r.Key != key {
			continue
		}
		n := len(q.heap) - 1
		q.heap[i] = q.heap[n]
		q.heap = q.heap[:n]
		if i < n {
			q.fix(i)
		}
		return true
	}
	return false
}

func (q *requestQueue) less(i, j int) bool {
	if q.heap[i].Priority != q.heap[j].Priority {
		return q.heap[i].Priority < q.heap[j].Priority
	}
	return q.heap[i].seq < q.heap[j].seq
}

func (q *requestQueue) fix(i int) {
	if !q.bubbleUpMoved(i) {
		q.bubbleDown(i)
	}
}

func (q *requestQueue) bubbleUp(i int) {
	q.bubbleUpMoved(i)
}

func (q *requestQueue) bubbleUpMoved(i int) bool {
	moved := false
	for i > 0 {
		parent := (i - 1) / 2
		if !q.less(i, parent) {
			break
		}
		q.heap[i], q.heap[parent] = q.heap[parent], q.heap[i]
		i = parent
		moved = true
	}
	return moved
}

func (q *requestQueue) bubbleDown(i int) {
	n := len(q.heap)
	for {
		smallest := i
		if l := 2*i + 1; l < n && q.less(l, smallest) {
			smallest = l
		}
		if r := 2*i + 2; r < n && q.less(r, smallest) {
			smallest = r
		}
		if smallest == i {
			return
		}
		q.heap[i], q.heap[smallest] = q.heap[smallest], q.heap[i]
		i = smallest
	}
}
