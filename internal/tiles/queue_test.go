// Parkview - Real-Time Parking Availability Map Engine
// Copyright 2026 Mass Transit Company Limited
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/masstransitco/parkview

package tiles

import "testing"

func TestRequestQueue_PriorityOrder(t *testing.T) {
	var q requestQueue
	q.Push(queuedRequest{TileRequest: TileRequest{Key: tk(16, 1, 0), Priority: 4}, seq: 1})
	q.Push(queuedRequest{TileRequest: TileRequest{Key: tk(16, 2, 0), Priority: 1}, seq: 2})
	q.Push(queuedRequest{TileRequest: TileRequest{Key: tk(16, 3, 0), Priority: 9}, seq: 3})
	q.Push(queuedRequest{TileRequest: TileRequest{Key: tk(16, 4, 0), Priority: 0}, seq: 4})

	want := []uint32{4, 2, 1, 3} // by ascending priority
	for i, x := range want {
		r, ok := q.Pop()
		if !ok {
			t.Fatalf("pop %d: queue empty", i)
		}
		if r.Key.X != x {
			t.Errorf("pop %d: got x=%d, want %d", i, r.Key.X, x)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Error("queue should be empty")
	}
}

func TestRequestQueue_StableTieBreak(t *testing.T) {
	var q requestQueue
	// Equal priorities drain in original request order.
	for i := uint32(0); i < 8; i++ {
		q.Push(queuedRequest{TileRequest: TileRequest{Key: tk(16, i, 0), Priority: 2}, seq: uint64(i)})
	}
	for i := uint32(0); i < 8; i++ {
		r, _ := q.Pop()
		if r.Key.X != i {
			t.Fatalf("tie-break broken: pop %d returned x=%d", i, r.Key.X)
		}
	}
}

func TestRequestQueue_Remove(t *testing.T) {
	var q requestQueue
	for i := uint32(0); i < 5; i++ {
		q.Push(queuedRequest{TileRequest: TileRequest{Key: tk(16, i, 0), Priority: float64(i)}, seq: uint64(i)})
	}

	if !q.Remove(tk(16, 2, 0)) {
		t.Fatal("Remove returned false for queued key")
	}
	if q.Remove(tk(16, 99, 0)) {
		t.Fatal("Remove returned true for absent key")
	}
	if q.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", q.Len())
	}

	// Heap order still holds after removal.
	prev := -1.0
	for {
		r, ok := q.Pop()
		if !ok {
			break
		}
		if r.Priority < prev {
			t.Fatalf("heap order violated: %v after %v", r.Priority, prev)
		}
		prev = r.Priority
	}
}
