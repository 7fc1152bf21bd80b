// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/divitproject/mnd/chainview"
	"github.com/divitproject/mnd/masternode"
	"github.com/divitproject/mnd/mnconf"
	"github.com/divitproject/mnd/mnpayments"
	"github.com/divitproject/mnd/msgsign"
	"github.com/divitproject/mnd/netparams"
	"github.com/stretchr/testify/require"
)

func TestGenKey(t *testing.T) {
	t.Parallel()

	for _, compress := range []bool{true, false} {
		var buf bytes.Buffer
		require.NoError(t, genKey(&buf, &netparams.RegTestParams, compress))

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 3)
		wif := strings.TrimSpace(strings.TrimPrefix(lines[0], "privkey:"))
		key, err := msgsign.DecodeKey(wif)
		require.NoError(t, err)
		require.Equal(t, compress, key.Compressed)
		require.True(t, strings.HasPrefix(lines[1], "pubkey:"))
		require.True(t, strings.HasPrefix(lines[2], "address:"))
	}
}

func TestCreateAndDecodeBroadcast(t *testing.T) {
	t.Parallel()

	params := &netparams.RegTestParams
	now := time.Unix(1600000000, 0)
	chain := chainview.NewMemChain()
	for i := 0; i < 30; i++ {
		chain.AddBlock(now.Add(time.Duration(i-30) * time.Minute))
	}

	collateralKey, err := msgsign.NewKey()
	require.NoError(t, err)
	operatorKey, err := msgsign.NewKey()
	require.NoError(t, err)
	operatorWIF, err := btcutil.NewWIF(operatorKey.Priv, &params.Chain, true)
	require.NoError(t, err)

	op := wire.OutPoint{Hash: chainhash.Hash{0x42}, Index: 1}
	script, err := msgsign.PayToPubKeyHashScript(collateralKey.PubKey())
	require.NoError(t, err)
	chain.AddUtxo(op, params.CollateralAmount, script, 1)

	entry := &mnconf.Entry{
		Alias:       "mn1",
		Addr:        "10.0.0.1:51476",
		PrivKey:     operatorWIF.String(),
		TxHash:      op.Hash.String(),
		OutputIndex: op.Index,
	}
	fixed := func() time.Time { return now }
	b, err := createBroadcast(params, chain, entry, collateralKey, fixed)
	require.NoError(t, err)
	require.Equal(t, op, b.Vin.PreviousOutPoint)
	require.Equal(t, operatorKey.PubKey(), b.PubKeyOperator)

	encoded, err := b.EncodeHex()
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, decodeBroadcast(&buf, params, encoded, now.Unix()))
	out := buf.String()
	require.Contains(t, out, b.Hash().String())
	require.Contains(t, out, "address:    10.0.0.1:51476")
	require.Contains(t, out, "signature:  valid")
	require.Contains(t, out, "ping:       valid")

	// A key that does not own the collateral is refused.
	otherKey, err := msgsign.NewKey()
	require.NoError(t, err)
	_, err = createBroadcast(params, chain, entry, otherKey, fixed)
	require.Error(t, err)

	// So is an address off the network port.
	entry.Addr = "10.0.0.1:1234"
	_, err = createBroadcast(params, chain, entry, collateralKey, fixed)
	require.Error(t, err)
}

func TestDumpCache(t *testing.T) {
	t.Parallel()

	params := &netparams.RegTestParams
	dir := t.TempDir()

	mnPath := filepath.Join(dir, mnCacheFilename)
	m := masternode.New(&masternode.Config{Params: params})
	require.NoError(t, masternode.DumpManager(mnPath, m))
	payPath := filepath.Join(dir, mnPaymentsFilename)
	p := mnpayments.New(&mnpayments.Config{Params: params})
	require.NoError(t, mnpayments.DumpPayments(payPath, p))

	var buf bytes.Buffer
	require.NoError(t, dumpCache(&buf, params, mnPath))
	require.Contains(t, buf.String(), m.String())

	buf.Reset()
	require.NoError(t, dumpCache(&buf, params, payPath))
	require.Contains(t, buf.String(), p.String())

	// Dumping leaves the files untouched.
	before, err := os.ReadFile(mnPath)
	require.NoError(t, err)
	require.NoError(t, dumpCache(&buf, params, mnPath))
	after, err := os.ReadFile(mnPath)
	require.NoError(t, err)
	require.Equal(t, before, after)

	require.ErrorIs(t, dumpCache(&buf, params, filepath.Join(dir, "x.dat")),
		errUnknownCache)

	// A cache of another network is rejected.
	require.Error(t, dumpCache(&buf, &netparams.TestNetParams, mnPath))
}
