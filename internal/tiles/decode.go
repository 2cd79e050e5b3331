// Parkview - Real-Time Parking Availability Map Engine
// Copyright 2026 Mass Transit Company Limited
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/masstransitco/parkview

package tiles

import (
	"context"
	"sync"

	"github.com/masstransitco/parkview/internal/geo"
	"github.com/masstransitco/parkview/internal/logging"
)

// DecodeResult is the response half of the decode protocol. Results arrive
// on a single channel, possibly out of submission order, and are correlated
// by Key, never by arrival order.
type DecodeResult struct {
	Key     geo.TileKey
	Records []BuildingRecord
	Err     error
}

// DecodeChannel offloads CPU-bound tile parsing to a fixed pool of worker
// goroutines so the coordinating loop never blocks on decode. Multiple
// submissions may be in flight concurrently. The channel itself never
// retries; retry policy belongs to the caller.
type DecodeChannel struct {
	decode   DecodeFunc
	requests chan decodeRequest
	results  chan DecodeResult

	closeOnce sync.Once
	closed    chan struct{}
	wg        sync.WaitGroup
}

type decodeRequest struct {
	key geo.TileKey
	raw []byte
}

// NewDecodeChannel starts workers goroutines running decode. workers <= 0
// defaults to 4, matching the scheduler's default concurrency.
func NewDecodeChannel(workers int, decode DecodeFunc) *DecodeChannel {
	if workers <= 0 {
		workers = 4
	}
	if decode == nil {
		decode = DecodeBuildingTile
	}

	c := &DecodeChannel{
		decode:   decode,
		requests: make(chan decodeRequest, workers*4),
		results:  make(chan DecodeResult, workers*4),
		closed:   make(chan struct{}),
	}

	c.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go c.worker()
	}
	return c
}

func (c *DecodeChannel) worker() {
	defer c.wg.Done()
	for {
		select {
		case <-c.closed:
			return
		case req := <-c.requests:
			records, err := c.decode(req.key, req.raw)
			select {
			case c.results <- DecodeResult{Key: req.key, Records: records, Err: err}:
			case <-c.closed:
				return
			}
		}
	}
}

// Submit hands a raw payload to the worker pool. It blocks only if the
// request buffer is full, and unblocks on ctx cancellation or shutdown.
func (c *DecodeChannel) Submit(ctx context.Context, key geo.TileKey, raw []byte) error {
	select {
	case <-c.closed:
		return ErrChannelClosed
	default:
	}

	req := decodeRequest{key: key, raw: raw}
	select {
	case c.requests <- req:
		return nil
	case <-c.closed:
		return ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Results returns the response stream. The consumer correlates each result
// with its request by Key.
func (c *DecodeChannel) Results() <-chan DecodeResult {
	return c.results
}

// Close stops the workers. In-flight decodes finish; requests still queued
// at shutdown are dropped. Safe to call multiple times.
func (c *DecodeChannel) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.wg.Wait()
		close(c.results)
		logging.Debug().Msg("decode channel closed")
	})
}
