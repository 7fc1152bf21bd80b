// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/divitproject/mnd/netparams"
)

// genKeyCommand generates an operator key.
type genKeyCommand struct {
	Uncompressed bool `long:"uncompressed" description:"Use the uncompressed public key form"`
}

// Execute satisfies the go-flags Commander interface.
func (c *genKeyCommand) Execute(args []string) error {
	params, err := activeParams()
	if err != nil {
		return err
	}
	return genKey(os.Stdout, params, !c.Uncompressed)
}

// genKey writes a fresh key in wallet import format followed by its public
// key and pay-to-pubkey-hash address.
func genKey(w io.Writer, params *netparams.Params, compress bool) error {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return err
	}
	defer priv.Zero()

	wif, err := btcutil.NewWIF(priv, &params.Chain, compress)
	if err != nil {
		return err
	}
	pubKey := wif.SerializePubKey()
	addr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(pubKey),
		&params.Chain)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "privkey: %s\n", wif)
	fmt.Fprintf(w, "pubkey:  %s\n", hex.EncodeToString(pubKey))
	fmt.Fprintf(w, "address: %s\n", addr.EncodeAddress())
	return nil
}
