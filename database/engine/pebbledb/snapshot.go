// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pebbledb

import (
	"errors"

	"github.com/cockroachdb/pebble"
	"github.com/divitproject/mnd/database/engine"
)

// NewSnapshot wraps a pebble snapshot.
func NewSnapshot(snapshot *pebble.Snapshot) engine.Snapshot {
	return &Snapshot{Snapshot: snapshot}
}

// Snapshot implements engine.Snapshot.
type Snapshot struct {
	*pebble.Snapshot
	released bool
}

// Has reports whether key exists.
func (s *Snapshot) Has(key []byte) (bool, error) {
	_, err := s.Get(key)
	switch {
	case errors.Is(err, engine.ErrNotFound):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

// Get returns a copy of the value stored under key or engine.ErrNotFound.
func (s *Snapshot) Get(key []byte) ([]byte, error) {
	if s.released {
		return nil, ErrSnapshotReleased
	}

	ori, closer, err := s.Snapshot.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, engine.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	val := make([]byte, len(ori))
	copy(val, ori)
	return val, nil
}

// Release releases the snapshot.
func (s *Snapshot) Release() {
	if !s.released {
		s.released = true
		s.Close()
	}
}

// NewIterator returns an iterator over slice, or nil once released.
func (s *Snapshot) NewIterator(slice *engine.Range) engine.Iterator {
	if s.released {
		return nil
	}

	iter, err := s.Snapshot.NewIter(&pebble.IterOptions{
		LowerBound: slice.Start,
		UpperBound: slice.Limit,
	})
	if err != nil {
		return nil
	}
	// Position before the first key so the first Next lands on it.
	iter.SeekLT(slice.Start)
	return NewIterator(iter)
}
