// Parkview - Real-Time Parking Availability Map Engine
// Copyright 2026 Mass Transit Company Limited
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/masstransitco/parkview

package tiles

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/masstransitco/parkview/internal/geo"
	"github.com/masstransitco/parkview/internal/logging"
)

// ArchiveSource is a byte-addressable store of tiled building data keyed by
// (z, x, y). A missing tile returns ErrTileNotFound (rendered as zero
// records); any other error is a transport failure, eligible for a fresh
// request later.
type ArchiveSource interface {
	ReadTile(ctx context.Context, key geo.TileKey) ([]byte, error)
}

// badgerTilePrefix namespaces tile payloads inside the store so the same
// badger instance can host other keyspaces.
const badgerTilePrefix = "tile/"

// BadgerArchive serves tile payloads from a local badger store. Payloads
// are written by the import tooling as gzip-compressed record arrays under
// "tile/z/x/y".
type BadgerArchive struct {
	db *badger.DB
}

// NewBadgerArchive wraps an open badger DB. The caller owns the DB
// lifecycle.
func NewBadgerArchive(db *badger.DB) *BadgerArchive {
	return &BadgerArchive{db: db}
}

// ReadTile fetches one tile payload.
func (a *BadgerArchive) ReadTile(_ context.Context, key geo.TileKey) ([]byte, error) {
	var raw []byte
	err := a.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerTilePrefix + key.String()))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTileNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTransport, key, err)
	}
	return raw, nil
}

// WriteTile stores one tile payload. Used by the archive import tooling.
func (a *BadgerArchive) WriteTile(key geo.TileKey, raw []byte) error {
	return a.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(badgerTilePrefix+key.String()), raw)
	})
}

// TileRange describes one tile's byte extent inside a remote archive file.
type TileRange struct {
	Offset int64 `json:"offset"`
	Length int64 `json:"length"`
}

// Breaker is the circuit breaker surface used by HTTPRangeArchive. It is
// satisfied by *gobreaker.CircuitBreaker[[]byte].
type Breaker interface {
	Execute(fn func() ([]byte, error)) ([]byte, error)
}

// HTTPRangeArchive issues byte-range reads against a single remote archive
// file, using a directory of per-tile offsets. Reads go through a circuit
// breaker so a failing archive host degrades to "tiles missing" instead of
// hammering the remote.
type HTTPRangeArchive struct {
	client    *http.Client
	url       string
	directory map[string]TileRange
	breaker   Breaker
}

// NewHTTPRangeArchive creates a range-reading source. directory maps
// canonical "z/x/y" keys to byte ranges; tiles absent from the directory
// are NotFound without a network round trip. breaker may be nil for tests.
func NewHTTPRangeArchive(client *http.Client, url string, directory map[string]TileRange, breaker Breaker) *HTTPRangeArchive {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPRangeArchive{
		client:    client,
		url:       url,
		directory: directory,
		breaker:   breaker,
	}
}

// ReadTile fetches one tile's byte range.
func (a *HTTPRangeArchive) ReadTile(ctx context.Context, key geo.TileKey) ([]byte, error) {
	rng, ok := a.directory[key.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTileNotFound, key)
	}

	fetch := func() ([]byte, error) {
		return a.fetchRange(ctx, key, rng)
	}

	var raw []byte
	var err error
	if a.breaker != nil {
		raw, err = a.breaker.Execute(fetch)
	} else {
		raw, err = fetch()
	}
	if err != nil {
		if errors.Is(err, ErrTileNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrTransport, key, err)
	}
	return raw, nil
}

func (a *HTTPRangeArchive) fetchRange(ctx context.Context, key geo.TileKey, rng TileRange) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", rng.Offset, rng.Offset+rng.Length-1))

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent, http.StatusOK:
		raw, err := io.ReadAll(io.LimitReader(resp.Body, rng.Length))
		if err != nil {
			return nil, err
		}
		return raw, nil
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrTileNotFound, key)
	default:
		logging.Warn().Int("status", resp.StatusCode).Str("tile", key.String()).Msg("archive range read rejected")
		return nil, fmt.Errorf("archive returned status %d", resp.StatusCode)
	}
}
