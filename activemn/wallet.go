// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package activemn

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/divitproject/mnd/chainview"
	"github.com/divitproject/mnd/mnwire"
	"github.com/divitproject/mnd/msgsign"
	"github.com/divitproject/mnd/netparams"
)

// ErrNoCollateral is returned when the wallet holds no output usable as
// masternode collateral.
var ErrNoCollateral = errors.New("could not find suitable coins")

// Wallet is the part of a wallet the local masternode needs.
type Wallet interface {
	// IsLocked reports whether the keys are encrypted and unavailable.
	IsLocked() bool

	// Balance returns the spendable balance.
	Balance() (btcutil.Amount, error)

	// Collateral returns an unspent output of exactly the collateral
	// amount together with the key that spends it.  A nil op selects the
	// first suitable output.
	Collateral(op *wire.OutPoint) (wire.OutPoint, *msgsign.Key, error)

	// LockCoin keeps op from being spent by the wallet.
	LockCoin(op wire.OutPoint)
}

// KeyWallet is a Wallet made of the single collateral key and output of a
// masternode, as given in the configuration.  A KeyWallet without a key is a
// hot node waiting for a remote activation.
type KeyWallet struct {
	params   *netparams.Params
	chain    chainview.Chain
	key      *msgsign.Key
	outPoint wire.OutPoint

	mtx    sync.Mutex
	locked map[wire.OutPoint]struct{}
}

// NewKeyWallet returns a wallet for the collateral op spendable by key.  key
// may be nil.
func NewKeyWallet(params *netparams.Params, chain chainview.Chain,
	key *msgsign.Key, op wire.OutPoint) *KeyWallet {

	return &KeyWallet{
		params:   params,
		chain:    chain,
		key:      key,
		outPoint: op,
		locked:   make(map[wire.OutPoint]struct{}),
	}
}

// IsLocked always returns false; the key is held unencrypted.
func (w *KeyWallet) IsLocked() bool {
	return false
}

// Balance returns the value of the collateral output when it is unspent.
func (w *KeyWallet) Balance() (btcutil.Amount, error) {
	if w.key == nil {
		return 0, nil
	}
	utxo, err := w.chain.UtxoEntry(w.outPoint)
	switch {
	case errors.Is(err, chainview.ErrUtxoNotFound):
		return 0, nil
	case err != nil:
		return 0, err
	}
	return utxo.Value, nil
}

// Collateral returns the configured output after checking that it holds the
// collateral amount and pays the key.
func (w *KeyWallet) Collateral(op *wire.OutPoint) (wire.OutPoint, *msgsign.Key, error) {
	if w.key == nil || (op != nil && *op != w.outPoint) {
		return wire.OutPoint{}, nil, ErrNoCollateral
	}

	utxo, err := w.chain.UtxoEntry(w.outPoint)
	switch {
	case errors.Is(err, chainview.ErrUtxoNotFound):
		return wire.OutPoint{}, nil, fmt.Errorf("%w: %s is spent or unknown",
			ErrNoCollateral, mnwire.OutPointShort(&w.outPoint))
	case err != nil:
		return wire.OutPoint{}, nil, err
	}
	if utxo.Value != w.params.CollateralAmount {
		return wire.OutPoint{}, nil, fmt.Errorf("%w: %s holds %v, not %v",
			ErrNoCollateral, mnwire.OutPointShort(&w.outPoint), utxo.Value,
			w.params.CollateralAmount)
	}
	script, err := msgsign.PayToPubKeyHashScript(w.key.PubKey())
	if err != nil {
		return wire.OutPoint{}, nil, err
	}
	if !bytes.Equal(script, utxo.PkScript) {
		return wire.OutPoint{}, nil, fmt.Errorf("%w: private key for %s "+
			"is not known", ErrNoCollateral, mnwire.OutPointShort(&w.outPoint))
	}
	return w.outPoint, w.key, nil
}

// LockCoin marks op as locked.
func (w *KeyWallet) LockCoin(op wire.OutPoint) {
	w.mtx.Lock()
	w.locked[op] = struct{}{}
	w.mtx.Unlock()
}

// IsLockedCoin reports whether op was locked.
func (w *KeyWallet) IsLockedCoin(op wire.OutPoint) bool {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	_, ok := w.locked[op]
	return ok
}
