// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package engine defines the small key/value storage abstraction used for
// node-local state such as the spork table.  Backends live in the leveldb and
// pebbledb subpackages and register themselves with Register when imported.
package engine

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrNotFound is returned by Snapshot.Get when the key does not exist.
	ErrNotFound = errors.New("engine: key not found")

	// ErrUnknownType is returned by Open for an unregistered backend.
	ErrUnknownType = errors.New("engine: unknown backend type")
)

// Engine is an open key/value store.
type Engine interface {
	Transaction() (Transaction, error)
	Snapshot() (Snapshot, error)
	Close() error
}

// Transaction batches writes that become visible atomically on Commit.
type Transaction interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	Commit() error
	Discard()
}

// Snapshot is a consistent read view of the store.
type Snapshot interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	NewIterator(*Range) Iterator
	Releaser
}

// Releaser is implemented by resources that must be released after use.
// Release is idempotent.
type Releaser interface {
	Release()
}

// Driver describes a registered storage backend.
type Driver struct {
	// Type is the name the backend is selected by, for example "leveldb".
	Type string

	// Open opens the store at path, creating it when create is set.
	Open func(path string, create bool) (Engine, error)
}

var (
	driversMtx sync.RWMutex
	drivers    = make(map[string]Driver)
)

// Register makes a backend available to Open.  Registering the same type
// twice returns an error.
func Register(driver Driver) error {
	driversMtx.Lock()
	defer driversMtx.Unlock()

	if _, exists := drivers[driver.Type]; exists {
		return fmt.Errorf("engine: driver %q is already registered",
			driver.Type)
	}
	drivers[driver.Type] = driver
	return nil
}

// Open opens a store using the named backend.
func Open(dbType, path string, create bool) (Engine, error) {
	driversMtx.RLock()
	driver, ok := drivers[dbType]
	driversMtx.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, dbType)
	}
	return driver.Open(path, create)
}

// SupportedTypes returns the sorted names of all registered backends.
func SupportedTypes() []string {
	driversMtx.RLock()
	types := make([]string, 0, len(drivers))
	for t := range drivers {
		types = append(types, t)
	}
	driversMtx.RUnlock()
	sort.Strings(types)
	return types
}

// Get is a convenience wrapper that reads a single key through a short lived
// snapshot.
func Get(e Engine, key []byte) ([]byte, error) {
	snap, err := e.Snapshot()
	if err != nil {
		return nil, err
	}
	defer snap.Release()
	return snap.Get(key)
}

// Update runs fn inside a transaction and commits it when fn succeeds.
func Update(e Engine, fn func(tx Transaction) error) error {
	tx, err := e.Transaction()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Discard()
		return err
	}
	return tx.Commit()
}

// ForEach calls fn for each key/value pair in rng in key order.  The slices
// passed to fn are only valid for the duration of the call.
func ForEach(e Engine, rng *Range, fn func(key, value []byte) error) error {
	snap, err := e.Snapshot()
	if err != nil {
		return err
	}
	defer snap.Release()

	iter := snap.NewIterator(rng)
	if iter == nil {
		return ErrIterReleased
	}
	defer iter.Release()
	for iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}
