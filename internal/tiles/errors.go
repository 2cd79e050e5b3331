// Parkview - Real-Time Parking Availability Map Engine
// Copyright 2026 Mass Transit Company Limited
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/masstransitco/parkview

package tiles

import "errors"

// Error taxonomy for the tile pipeline. None of these propagate as hard
// failures to the host UI; the engine degrades by not rendering the
// affected tile and the failure rate stays observable through counters.
var (
	// ErrTileNotFound means the archive has no tile at the key. Treated as
	// "zero records", not a failure: the empty result is cached so the key
	// is not re-fetched on every pass.
	ErrTileNotFound = errors.New("tiles: tile not found")

	// ErrTransport is a fetch failure. The key is dropped, not auto-retried;
	// a later request for the same key is treated as new.
	ErrTransport = errors.New("tiles: transport failure")

	// ErrDecode is a malformed payload. The result is discarded and never
	// cached.
	ErrDecode = errors.New("tiles: decode failure")

	// ErrStaleResponse means a decode completed for a tile that is no longer
	// required. The result is silently dropped; this is not a failure.
	ErrStaleResponse = errors.New("tiles: stale response")

	// ErrChannelClosed is returned by Submit after the decode channel has
	// shut down.
	ErrChannelClosed = errors.New("tiles: decode channel closed")
)
