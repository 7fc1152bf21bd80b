// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chainrpc

import (
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/divitproject/mnd/chainview"
	"github.com/stretchr/testify/require"
)

// fakeNode answers RPCs from a fixed chain.
type fakeNode struct {
	hashes      []chainhash.Hash
	times       []int64
	utxos       map[wire.OutPoint]*btcjson.GetTxOutResult
	down        bool
	headerCalls int
}

var errDown = errors.New("connection refused")

func newFakeNode(n int) *fakeNode {
	f := &fakeNode{utxos: make(map[wire.OutPoint]*btcjson.GetTxOutResult)}
	for i := 0; i < n; i++ {
		f.hashes = append(f.hashes, chainhash.Hash{byte(i), 0xaa})
		f.times = append(f.times, 1_600_000_000+int64(i)*60)
	}
	return f
}

func (f *fakeNode) GetBlockCount() (int64, error) {
	if f.down {
		return 0, errDown
	}
	return int64(len(f.hashes) - 1), nil
}

func (f *fakeNode) GetBlockHash(height int64) (*chainhash.Hash, error) {
	if f.down {
		return nil, errDown
	}
	if height >= int64(len(f.hashes)) {
		return nil, &btcjson.RPCError{Code: btcjson.ErrRPCOutOfRange,
			Message: "Block number out of range"}
	}
	h := f.hashes[height]
	return &h, nil
}

func (f *fakeNode) GetBlockHeaderVerbose(hash *chainhash.Hash) (*btcjson.GetBlockHeaderVerboseResult, error) {
	f.headerCalls++
	for i, h := range f.hashes {
		if h == *hash {
			return &btcjson.GetBlockHeaderVerboseResult{
				Hash:   h.String(),
				Height: int32(i),
				Time:   f.times[i],
			}, nil
		}
	}
	return nil, &btcjson.RPCError{Code: btcjson.ErrRPCBlockNotFound,
		Message: "Block not found"}
}

func (f *fakeNode) GetTxOut(txHash *chainhash.Hash, index uint32, mempool bool) (*btcjson.GetTxOutResult, error) {
	if f.down {
		return nil, errDown
	}
	return f.utxos[wire.OutPoint{Hash: *txHash, Index: index}], nil
}

func (f *fakeNode) Shutdown() {}

func TestBlocks(t *testing.T) {
	t.Parallel()

	node := newFakeNode(10)
	c := newChain(node)

	best, err := c.BestHeight()
	require.NoError(t, err)
	require.Equal(t, int32(9), best)

	hash, err := c.BlockHash(4)
	require.NoError(t, err)
	require.Equal(t, node.hashes[4], hash)

	_, err = c.BlockHash(10)
	require.ErrorIs(t, err, chainview.ErrUnknownBlock)
	_, err = c.BlockHash(-1)
	require.ErrorIs(t, err, chainview.ErrUnknownBlock)

	height, err := c.BlockHeight(&node.hashes[7])
	require.NoError(t, err)
	require.Equal(t, int32(7), height)

	_, err = c.BlockHeight(&chainhash.Hash{0xff})
	require.ErrorIs(t, err, chainview.ErrUnknownBlock)

	tm, err := c.BlockTime(3)
	require.NoError(t, err)
	require.Equal(t, time.Unix(node.times[3], 0), tm)

	// Headers come from the cache the second time.
	calls := node.headerCalls
	_, err = c.BlockTime(3)
	require.NoError(t, err)
	require.Equal(t, calls, node.headerCalls)
}

func TestBlockHeightAfterReorg(t *testing.T) {
	t.Parallel()

	node := newFakeNode(5)
	c := newChain(node)

	stale := node.hashes[4]
	_, err := c.BlockHeight(&stale)
	require.NoError(t, err)

	// The cached header still says height 4 but the main chain moved on.
	node.hashes[4] = chainhash.Hash{0x44}
	_, err = c.BlockHeight(&stale)
	require.ErrorIs(t, err, chainview.ErrUnknownBlock)
}

func TestUtxoEntry(t *testing.T) {
	t.Parallel()

	node := newFakeNode(20)
	c := newChain(node)

	script := []byte{0x76, 0xa9, 0x14}
	op := wire.OutPoint{Hash: chainhash.Hash{0x01}, Index: 1}
	node.utxos[op] = &btcjson.GetTxOutResult{
		BestBlock:     node.hashes[19].String(),
		Confirmations: 15,
		Value:         10000,
		ScriptPubKey:  btcjson.ScriptPubKeyResult{Hex: hex.EncodeToString(script)},
	}

	utxo, err := c.UtxoEntry(op)
	require.NoError(t, err)
	require.Equal(t, int32(15), utxo.Confirmations)
	require.Equal(t, int32(5), utxo.Height)
	require.Equal(t, script, utxo.PkScript)
	require.Equal(t, float64(10000), utxo.Value.ToBTC())

	age, err := chainview.InputAge(c, op)
	require.NoError(t, err)
	require.Equal(t, int32(15), age)

	_, err = c.UtxoEntry(wire.OutPoint{Index: 9})
	require.ErrorIs(t, err, chainview.ErrUtxoNotFound)

	node.utxos[op].Confirmations = 0
	_, err = c.UtxoEntry(op)
	require.ErrorIs(t, err, chainview.ErrUtxoNotFound)
}

func TestNodeDownIsBusy(t *testing.T) {
	t.Parallel()

	node := newFakeNode(3)
	node.down = true
	c := newChain(node)

	_, err := c.BestHeight()
	require.ErrorIs(t, err, chainview.ErrChainBusy)
	_, err = c.BlockHash(1)
	require.ErrorIs(t, err, chainview.ErrChainBusy)
	_, err = c.UtxoEntry(wire.OutPoint{})
	require.ErrorIs(t, err, chainview.ErrChainBusy)
	_, _, err = chainview.TipTime(c)
	require.ErrorIs(t, err, chainview.ErrChainBusy)
}
