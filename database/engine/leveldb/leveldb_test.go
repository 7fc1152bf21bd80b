// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package leveldb

import (
	"path/filepath"
	"testing"

	"github.com/divitproject/mnd/database/engine"
	"github.com/stretchr/testify/require"
)

func TestSuiteLevelDB(t *testing.T) {
	engine.TestSuiteEngine(t, func() engine.Engine {
		dbPath := filepath.Join(t.TempDir(), "leveldb-testsuite")

		leveldb, err := NewDB(dbPath, true)
		require.NoErrorf(t, err, "failed to create leveldb")
		return leveldb
	})
}

func TestRegistered(t *testing.T) {
	require.Contains(t, engine.SupportedTypes(), DbType)

	db, err := engine.Open(DbType, filepath.Join(t.TempDir(), "sporks"), false)
	require.NoError(t, err)
	require.NoError(t, db.Close())
}
