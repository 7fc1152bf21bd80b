// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package leveldb implements the engine interfaces on top of goleveldb.
// Importing it registers the "leveldb" backend.
package leveldb

import (
	"fmt"

	"github.com/divitproject/mnd/database/engine"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// DbType is the name the backend registers under.
const DbType = "leveldb"

// NewDB opens the leveldb store at dbPath.  When create is set the call fails
// if a store already exists there.
func NewDB(dbPath string, create bool) (engine.Engine, error) {
	opts := opt.Options{
		ErrorIfExist: create,
		Strict:       opt.DefaultStrict,
		Compression:  opt.NoCompression,
		Filter:       filter.NewBloomFilter(10),
	}
	ldb, err := leveldb.OpenFile(dbPath, &opts)
	if err != nil {
		return nil, err
	}
	return &DB{DB: ldb}, nil
}

// DB wraps an open goleveldb handle.
type DB struct {
	*leveldb.DB
}

// Transaction opens a write transaction.  goleveldb allows one open
// transaction per store at a time.
func (d *DB) Transaction() (engine.Transaction, error) {
	tx, err := d.DB.OpenTransaction()
	if err != nil {
		return nil, err
	}
	return NewTransaction(tx), nil
}

// Snapshot returns a read view of the committed state.
func (d *DB) Snapshot() (engine.Snapshot, error) {
	snapshot, err := d.DB.GetSnapshot()
	if err != nil {
		return nil, err
	}
	return NewSnapshot(snapshot), nil
}

// Close closes the store.  Closing twice returns an error.
func (d *DB) Close() error {
	return d.DB.Close()
}

func init() {
	driver := engine.Driver{Type: DbType, Open: NewDB}
	if err := engine.Register(driver); err != nil {
		panic(fmt.Sprintf("failed to register database driver '%s': %v",
			DbType, err))
	}
}
