// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pebbledb

import (
	"github.com/cockroachdb/pebble"
	"github.com/divitproject/mnd/database/engine"
)

// NewIterator wraps a pebble iterator.
func NewIterator(iter *pebble.Iterator) engine.Iterator {
	return &Iterator{Iterator: iter}
}

// Iterator implements engine.Iterator.
type Iterator struct {
	*pebble.Iterator
	released bool
}

func (i *Iterator) Seek(key []byte) bool {
	return i.Iterator.SeekGE(key)
}

// Key returns nil once the iterator is exhausted.
func (i *Iterator) Key() []byte {
	if i.released || !i.Iterator.Valid() {
		return nil
	}
	return i.Iterator.Key()
}

// Value returns nil once the iterator is exhausted.
func (i *Iterator) Value() []byte {
	if i.released || !i.Iterator.Valid() {
		return nil
	}
	return i.Iterator.Value()
}

func (i *Iterator) Release() {
	if !i.released {
		i.released = true
		i.Iterator.Close()
	}
}

func (i *Iterator) Error() error {
	if i.released {
		return engine.ErrIterReleased
	}
	return i.Iterator.Error()
}
