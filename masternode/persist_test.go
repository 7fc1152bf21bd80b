// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package masternode

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/divitproject/mnd/flatdb"
	"github.com/divitproject/mnd/netparams"
	"github.com/stretchr/testify/require"
)

// TestCacheRoundTrip dumps a populated list and reads it back into a fresh
// manager.
func TestCacheRoundTrip(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	node := newTestNode("10.0.0.1:51476")
	first := h.newMasternode(1)
	b := h.announce(first, node)
	second := h.newMasternode(2)
	h.announce(second, node)

	h.now += MinMNPSeconds + 10
	p := h.ping(first, h.now, h.anchor(1))
	h.m.ProcessMessage(node, &p.MsgMNPing)

	path := filepath.Join(t.TempDir(), CacheFileName)
	require.NoError(t, DumpManager(path, h.m))
	// A second dump verifies and replaces the first.
	require.NoError(t, DumpManager(path, h.m))

	loaded := New(&h.m.cfg)
	result, err := LoadManager(path, loaded, true)
	require.NoError(t, err)
	require.Equal(t, flatdb.Ok, result)
	require.Equal(t, h.m.Size(), loaded.Size())

	want := h.m.Snapshot()
	got := loaded.Snapshot()
	require.Len(t, got, len(want))
	for i := range want {
		require.Equal(t, want[i].OutPoint(), got[i].OutPoint())
		require.Equal(t, want[i].Addr, got[i].Addr)
		require.Equal(t, want[i].PubKeyCollateral, got[i].PubKeyCollateral)
		require.Equal(t, want[i].PubKeyOperator, got[i].PubKeyOperator)
		require.Equal(t, want[i].SigTime, got[i].SigTime)
		require.Equal(t, want[i].State, got[i].State)
		require.Equal(t, want[i].LastPing.Hash(), got[i].LastPing.Hash())
	}

	hash := b.Hash()
	_, ok := loaded.LookupBroadcast(&hash)
	require.True(t, ok)
	pingHash := p.Hash()
	_, ok = loaded.LookupPing(&pingHash)
	require.True(t, ok)
}

func TestCacheLoadFailures(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.addRecord(1, 3600)
	dir := t.TempDir()
	path := filepath.Join(dir, CacheFileName)

	_, err := LoadManager(path, New(&h.m.cfg), true)
	require.Error(t, err)

	require.NoError(t, DumpManager(path, h.m))

	// A dump from another network is rejected.
	mainnet := netparams.MainNetParams
	other := newHarnessWithParams(t, &mainnet)
	result, err := LoadManager(path, other.m, true)
	require.Error(t, err)
	require.Equal(t, flatdb.IncorrectMagicNumber, result)
	require.Zero(t, other.m.Size())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)/2] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0600))

	loaded := New(&h.m.cfg)
	result, err = LoadManager(path, loaded, true)
	require.Error(t, err)
	require.Equal(t, flatdb.IncorrectHash, result)
	require.Zero(t, loaded.Size())

	// A corrupt file is left alone rather than overwritten.
	require.Error(t, DumpManager(path, h.m))
}

// TestCacheLoadRemovesStale checks that a normal load drops entries that
// expired while the node was down.
func TestCacheLoadRemovesStale(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	tm := h.addRecord(1, 3600)
	path := filepath.Join(t.TempDir(), CacheFileName)
	require.NoError(t, DumpManager(path, h.m))

	h.now += RemovalSeconds + 1
	loaded := New(&h.m.cfg)
	result, err := LoadManager(path, loaded, false)
	require.NoError(t, err)
	require.Equal(t, flatdb.Ok, result)
	_, ok := loaded.Find(tm.op)
	require.False(t, ok)
}
