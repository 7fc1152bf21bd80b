// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package pebbledb implements the engine interfaces on top of pebble.
// Importing it registers the "pebble" backend.
package pebbledb

import (
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/bloom"
	"github.com/divitproject/mnd/database/engine"
)

var (
	ErrDbClosed         = errors.New("pebbledb: closed")
	ErrTxClosed         = errors.New("pebbledb: transaction already closed")
	ErrSnapshotReleased = errors.New("pebbledb: snapshot released")
)

const (
	// DbType is the name the backend registers under.
	DbType = "pebble"

	// DefaultCache is the block cache size in MiB.
	DefaultCache = 16

	// DefaultHandles is the open file limit.
	DefaultHandles = 16
)

// NewDB opens the pebble store at dbPath with a cache of the given size in
// MiB and the given open file limit.  Non-positive values select the
// defaults.
func NewDB(dbPath string, create bool, cache, handles int) (engine.Engine, error) {
	if cache <= 0 {
		cache = DefaultCache
	}
	if handles <= 0 {
		handles = DefaultHandles
	}

	blockCache := pebble.NewCache(int64(cache * 1024 * 1024))
	defer blockCache.Unref()

	opts := &pebble.Options{
		Cache:                    blockCache,
		ErrorIfExists:            create,
		MaxOpenFiles:             handles,
		MaxConcurrentCompactions: runtime.NumCPU,
		Levels: []pebble.LevelOptions{
			{TargetFileSize: 2 * 1024 * 1024, FilterPolicy: bloom.FilterPolicy(10)},
			{TargetFileSize: 4 * 1024 * 1024, FilterPolicy: bloom.FilterPolicy(10)},
			{TargetFileSize: 8 * 1024 * 1024, FilterPolicy: bloom.FilterPolicy(10)},
		},
	}
	opts.Experimental.ReadSamplingMultiplier = -1
	dbEngine, err := pebble.Open(dbPath, opts)
	if err != nil {
		return nil, err
	}

	return &DB{DB: dbEngine}, nil
}

// DB wraps an open pebble handle.
type DB struct {
	*pebble.DB

	closed atomic.Bool
}

// Transaction returns a write batch.
func (d *DB) Transaction() (engine.Transaction, error) {
	if d.closed.Load() {
		return nil, ErrDbClosed
	}
	return NewTransaction(d.DB.NewBatch()), nil
}

// Snapshot returns a read view of the committed state.
func (d *DB) Snapshot() (engine.Snapshot, error) {
	if d.closed.Load() {
		return nil, ErrDbClosed
	}
	return NewSnapshot(d.DB.NewSnapshot()), nil
}

// Close closes the store.  Closing twice returns ErrDbClosed.
func (d *DB) Close() error {
	if d.closed.Swap(true) {
		return ErrDbClosed
	}
	return d.DB.Close()
}

func init() {
	open := func(path string, create bool) (engine.Engine, error) {
		return NewDB(path, create, 0, 0)
	}
	driver := engine.Driver{Type: DbType, Open: open}
	if err := engine.Register(driver); err != nil {
		panic(fmt.Sprintf("failed to register database driver '%s': %v",
			DbType, err))
	}
}
