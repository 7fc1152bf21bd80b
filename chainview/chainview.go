// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chainview defines the read-only view of the block chain that the
// masternode subsystem consumes.  The subsystem never validates blocks; it
// only needs block hashes and times by height and the state of collateral
// outputs.
package chainview

import (
	"errors"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

var (
	// ErrChainBusy is returned when the chain backend can not answer
	// without blocking, for example while it is connecting a block.
	// Callers treat it as transient and retry later.
	ErrChainBusy = errors.New("chain is busy")

	// ErrUnknownBlock is returned for a height or hash outside the main
	// chain, including when the chain has no tip yet.
	ErrUnknownBlock = errors.New("unknown block")

	// ErrUtxoNotFound is returned when an output does not exist or has
	// been spent.
	ErrUtxoNotFound = errors.New("unspent output not found")
)

// Utxo describes an unspent transaction output.
type Utxo struct {
	Value    btcutil.Amount
	PkScript []byte

	// Height is the height of the block that included the output.
	Height int32

	// Confirmations is the number of blocks from Height to the tip,
	// inclusive.
	Confirmations int32
}

// Chain is the block chain collaborator.  Implementations must be safe for
// concurrent use and must return ErrChainBusy rather than block.
type Chain interface {
	// BestHeight returns the height of the main chain tip.
	BestHeight() (int32, error)

	// BlockHash returns the hash of the main chain block at height.
	BlockHash(height int32) (chainhash.Hash, error)

	// BlockHeight returns the height of a main chain block.
	BlockHeight(hash *chainhash.Hash) (int32, error)

	// BlockTime returns the timestamp of the main chain block at height.
	BlockTime(height int32) (time.Time, error)

	// UtxoEntry returns the unspent output at op.
	UtxoEntry(op wire.OutPoint) (*Utxo, error)
}

// InputAge returns the number of confirmations of op, or zero when the
// output is unknown.  ErrChainBusy is passed through.
func InputAge(c Chain, op wire.OutPoint) (int32, error) {
	utxo, err := c.UtxoEntry(op)
	switch {
	case errors.Is(err, ErrUtxoNotFound):
		return 0, nil
	case err != nil:
		return 0, err
	}
	return utxo.Confirmations, nil
}

// TipTime returns the height and timestamp of the current tip.
func TipTime(c Chain) (int32, time.Time, error) {
	height, err := c.BestHeight()
	if err != nil {
		return 0, time.Time{}, err
	}
	t, err := c.BlockTime(height)
	if err != nil {
		return 0, time.Time{}, err
	}
	return height, t, nil
}
