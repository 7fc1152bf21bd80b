// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mnpayments

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/divitproject/mnd/flatdb"
	"github.com/stretchr/testify/require"
)

func TestPaymentsRoundTrip(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	tms := h.addMasternodes(4, testAge)
	tip := h.tip()
	votes := []*Winner{
		h.vote(tms[0], tip+1, tms[3].payee),
		h.vote(tms[1], tip+1, tms[3].payee),
		h.vote(tms[2], tip+1, tms[0].payee),
		h.vote(tms[0], tip-4, tms[1].payee),
	}
	for _, w := range votes {
		require.NoError(t, h.p.AddWinningMasternode(w))
	}

	path := filepath.Join(t.TempDir(), PaymentsFileName)
	require.NoError(t, DumpPayments(path, h.p))
	require.NoError(t, DumpPayments(path, h.p))

	loaded := New(&h.cfg)
	result, err := LoadPayments(path, loaded, true)
	require.NoError(t, err)
	require.Equal(t, flatdb.Ok, result)
	require.Equal(t, h.p.String(), loaded.String())

	for _, height := range []int32{tip + 1, tip - 4} {
		want, ok := h.p.BlockPayees(height)
		require.True(t, ok)
		got, ok := loaded.BlockPayees(height)
		require.True(t, ok)
		require.Equal(t, want, got)
	}
	for _, w := range votes {
		hash := w.Hash()
		msg, ok := loaded.LookupWinner(&hash)
		require.True(t, ok)
		require.Equal(t, w.voter(), msg.VinMasternode.PreviousOutPoint)
		require.Equal(t, w.BlockHeight, msg.BlockHeight)
		require.Equal(t, w.Payee, msg.Payee)
		require.Equal(t, w.Sig, msg.Sig)
	}

	// The one-vote-per-height index comes back with the votes.
	require.False(t, loaded.CanVote(tms[0].op, tip+1))
	require.False(t, loaded.CanVote(tms[2].op, tip+1))
	require.True(t, loaded.CanVote(tms[3].op, tip+1))
}

func TestPaymentsLoadCleans(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	tms := h.addMasternodes(2, testAge)
	require.NoError(t, h.p.AddWinningMasternode(h.vote(tms[0], h.tip()-1,
		tms[1].payee)))
	path := filepath.Join(t.TempDir(), PaymentsFileName)
	require.NoError(t, DumpPayments(path, h.p))

	last, err := h.chain.BlockTime(h.tip())
	require.NoError(t, err)
	for i := 1; i <= minCleanLimit+1; i++ {
		h.chain.AddBlock(last.Add(time.Duration(i) * time.Minute))
	}

	dry := New(&h.cfg)
	_, err = LoadPayments(path, dry, true)
	require.NoError(t, err)
	require.Equal(t, "Votes: 1, Blocks: 1", dry.String())

	loaded := New(&h.cfg)
	_, err = LoadPayments(path, loaded, false)
	require.NoError(t, err)
	require.Equal(t, "Votes: 0, Blocks: 0", loaded.String())
}

func TestPaymentsLoadFailures(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	tms := h.addMasternodes(2, testAge)
	require.NoError(t, h.p.AddWinningMasternode(h.vote(tms[0], h.tip(),
		tms[1].payee)))
	path := filepath.Join(t.TempDir(), PaymentsFileName)

	result, err := LoadPayments(path, New(&h.cfg), true)
	require.Error(t, err)
	require.Equal(t, flatdb.FileError, result)

	require.NoError(t, DumpPayments(path, h.p))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)/2] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0o600))

	loaded := New(&h.cfg)
	result, err = LoadPayments(path, loaded, true)
	require.Error(t, err)
	require.Equal(t, flatdb.IncorrectHash, result)
	require.Equal(t, "Votes: 0, Blocks: 0", loaded.String())

	// A corrupt file is not overwritten.
	require.Error(t, DumpPayments(path, h.p))
}
