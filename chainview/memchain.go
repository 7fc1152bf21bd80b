// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chainview

import (
	"bytes"
	"encoding/binary"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

type memBlock struct {
	hash      chainhash.Hash
	timestamp time.Time
}

type memUtxo struct {
	value    btcutil.Amount
	pkScript []byte
	height   int32
}

// MemChain is an in-memory Chain.  It backs regtest runs and tests: blocks
// are appended with synthetic hashes and outputs are registered directly.
type MemChain struct {
	mtx     sync.RWMutex
	blocks  []memBlock
	heights map[chainhash.Hash]int32
	utxos   map[wire.OutPoint]memUtxo
	busy    bool
}

// Ensure MemChain implements the Chain interface.
var _ Chain = (*MemChain)(nil)

// NewMemChain returns an empty chain.
func NewMemChain() *MemChain {
	return &MemChain{
		heights: make(map[chainhash.Hash]int32),
		utxos:   make(map[wire.OutPoint]memUtxo),
	}
}

// AddBlock appends a block with the given timestamp and returns its hash.
// The hash commits to the height, the timestamp and the previous hash.
func (c *MemChain) AddBlock(timestamp time.Time) chainhash.Hash {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	height := int32(len(c.blocks))
	var buf bytes.Buffer
	if height > 0 {
		buf.Write(c.blocks[height-1].hash[:])
	}
	var scratch [12]byte
	binary.LittleEndian.PutUint32(scratch[:4], uint32(height))
	binary.LittleEndian.PutUint64(scratch[4:], uint64(timestamp.Unix()))
	buf.Write(scratch[:])

	hash := chainhash.DoubleHashH(buf.Bytes())
	c.blocks = append(c.blocks, memBlock{hash: hash, timestamp: timestamp})
	c.heights[hash] = height
	return hash
}

// AddUtxo registers an unspent output created at height.
func (c *MemChain) AddUtxo(op wire.OutPoint, value btcutil.Amount, pkScript []byte, height int32) {
	c.mtx.Lock()
	c.utxos[op] = memUtxo{value: value, pkScript: pkScript, height: height}
	c.mtx.Unlock()
}

// Spend removes an output.
func (c *MemChain) Spend(op wire.OutPoint) {
	c.mtx.Lock()
	delete(c.utxos, op)
	c.mtx.Unlock()
}

// SetBusy makes every query fail with ErrChainBusy while set.
func (c *MemChain) SetBusy(busy bool) {
	c.mtx.Lock()
	c.busy = busy
	c.mtx.Unlock()
}

// BestHeight returns the tip height, or ErrUnknownBlock for an empty chain.
func (c *MemChain) BestHeight() (int32, error) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()

	if c.busy {
		return 0, ErrChainBusy
	}
	if len(c.blocks) == 0 {
		return 0, ErrUnknownBlock
	}
	return int32(len(c.blocks)) - 1, nil
}

func (c *MemChain) block(height int32) (memBlock, error) {
	if c.busy {
		return memBlock{}, ErrChainBusy
	}
	if height < 0 || int(height) >= len(c.blocks) {
		return memBlock{}, ErrUnknownBlock
	}
	return c.blocks[height], nil
}

// BlockHash returns the hash of the block at height.
func (c *MemChain) BlockHash(height int32) (chainhash.Hash, error) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()

	b, err := c.block(height)
	return b.hash, err
}

// BlockTime returns the timestamp of the block at height.
func (c *MemChain) BlockTime(height int32) (time.Time, error) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()

	b, err := c.block(height)
	return b.timestamp, err
}

// BlockHeight returns the height of the block with the given hash.
func (c *MemChain) BlockHeight(hash *chainhash.Hash) (int32, error) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()

	if c.busy {
		return 0, ErrChainBusy
	}
	height, ok := c.heights[*hash]
	if !ok {
		return 0, ErrUnknownBlock
	}
	return height, nil
}

// UtxoEntry returns the output at op.  An output registered above the tip
// has zero confirmations.
func (c *MemChain) UtxoEntry(op wire.OutPoint) (*Utxo, error) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()

	if c.busy {
		return nil, ErrChainBusy
	}
	u, ok := c.utxos[op]
	if !ok {
		return nil, ErrUtxoNotFound
	}
	confs := int32(len(c.blocks)) - u.height
	if confs < 0 {
		confs = 0
	}
	return &Utxo{
		Value:         u.value,
		PkScript:      u.pkScript,
		Height:        u.height,
		Confirmations: confs,
	}, nil
}
