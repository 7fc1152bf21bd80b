// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chainview

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func TestMemChain(t *testing.T) {
	t.Parallel()

	c := NewMemChain()
	_, err := c.BestHeight()
	require.ErrorIs(t, err, ErrUnknownBlock)

	base := time.Unix(1600000000, 0)
	var hashes []chainhash.Hash
	for i := 0; i < 20; i++ {
		hashes = append(hashes, c.AddBlock(base.Add(time.Duration(i)*time.Minute)))
	}

	height, err := c.BestHeight()
	require.NoError(t, err)
	require.EqualValues(t, 19, height)

	hash, err := c.BlockHash(5)
	require.NoError(t, err)
	require.Equal(t, hashes[5], hash)
	require.NotEqual(t, hashes[4], hashes[5])

	h, err := c.BlockHeight(&hashes[7])
	require.NoError(t, err)
	require.EqualValues(t, 7, h)
	_, err = c.BlockHeight(&chainhash.Hash{0x01})
	require.ErrorIs(t, err, ErrUnknownBlock)
	_, err = c.BlockHash(20)
	require.ErrorIs(t, err, ErrUnknownBlock)

	tipHeight, tipTime, err := TipTime(c)
	require.NoError(t, err)
	require.EqualValues(t, 19, tipHeight)
	require.Equal(t, base.Add(19*time.Minute), tipTime)

	op := wire.OutPoint{Hash: chainhash.Hash{0xaa}, Index: 1}
	c.AddUtxo(op, 10000, []byte{0x51}, 5)
	utxo, err := c.UtxoEntry(op)
	require.NoError(t, err)
	require.EqualValues(t, 15, utxo.Confirmations)
	age, err := InputAge(c, op)
	require.NoError(t, err)
	require.EqualValues(t, 15, age)

	c.SetBusy(true)
	_, err = c.UtxoEntry(op)
	require.ErrorIs(t, err, ErrChainBusy)
	_, err = InputAge(c, op)
	require.ErrorIs(t, err, ErrChainBusy)
	c.SetBusy(false)

	c.Spend(op)
	_, err = c.UtxoEntry(op)
	require.ErrorIs(t, err, ErrUtxoNotFound)
	age, err = InputAge(c, op)
	require.NoError(t, err)
	require.Zero(t, age)
}
