// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package msgsign implements the compact secp256k1 message signatures used by
// masternode announcements, pings, payment votes and sporks.
//
// A message is hashed as the double sha256 of the network's signing magic and
// the message text, each serialized as a variable length string.  Signatures
// are 65 byte recoverable compact signatures; verification recovers the
// public key and compares key ids, so a signature made by the compressed or
// uncompressed form of a key verifies against that same form only.
package msgsign

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// ErrSignatureMismatch is returned by Verify when the recovered key does not
// match the expected one.
var ErrSignatureMismatch = errors.New("signature does not match public key")

// MessageHash returns the digest that is signed for message under magic.
func MessageHash(magic, message string) []byte {
	var buf bytes.Buffer
	wire.WriteVarString(&buf, 0, magic)
	wire.WriteVarString(&buf, 0, message)
	return chainhash.DoubleHashB(buf.Bytes())
}

// Sign produces a compact signature of message with key.  compressed selects
// the public key form the signature commits to and must match the form the
// verifier holds.
func Sign(key *btcec.PrivateKey, compressed bool, magic, message string) ([]byte, error) {
	return ecdsa.SignCompact(key, MessageHash(magic, message), compressed), nil
}

// IsCompressedPubKey reports whether pubKey is in compressed form.
func IsCompressedPubKey(pubKey []byte) bool {
	return len(pubKey) == btcec.PubKeyBytesLenCompressed
}

// Verify checks that sig is a signature of message by the serialized public
// key pubKey.
func Verify(pubKey, sig []byte, magic, message string) error {
	recovered, compressed, err := ecdsa.RecoverCompact(sig,
		MessageHash(magic, message))
	if err != nil {
		return fmt.Errorf("malformed signature: %w", err)
	}

	var serialized []byte
	if compressed {
		serialized = recovered.SerializeCompressed()
	} else {
		serialized = recovered.SerializeUncompressed()
	}
	if !bytes.Equal(btcutil.Hash160(serialized), btcutil.Hash160(pubKey)) {
		return ErrSignatureMismatch
	}
	return nil
}

// KeyID returns the hex form of the key id (hash160) of pubKey, printed in
// the reversed byte order used for 160-bit identifiers.
func KeyID(pubKey []byte) string {
	id := btcutil.Hash160(pubKey)
	for i, j := 0, len(id)-1; i < j; i, j = i+1, j-1 {
		id[i], id[j] = id[j], id[i]
	}
	return hex.EncodeToString(id)
}

// PayToPubKeyHashScript returns the standard pay-to-pubkey-hash script that
// pays the key id of pubKey.
func PayToPubKeyHashScript(pubKey []byte) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_DUP).
		AddOp(txscript.OP_HASH160).
		AddData(btcutil.Hash160(pubKey)).
		AddOp(txscript.OP_EQUALVERIFY).
		AddOp(txscript.OP_CHECKSIG).
		Script()
}

// KeyFromWIF decodes a wallet import format private key and returns it along
// with the serialized public key in the form the WIF designates.
func KeyFromWIF(wif string) (*btcec.PrivateKey, []byte, error) {
	decoded, err := btcutil.DecodeWIF(wif)
	if err != nil {
		return nil, nil, err
	}
	return decoded.PrivKey, decoded.SerializePubKey(), nil
}

// ParsePubKey validates a serialized public key.
func ParsePubKey(pubKey []byte) (*btcec.PublicKey, error) {
	return btcec.ParsePubKey(pubKey)
}

// Key is a private key together with the public key form it signs for.
type Key struct {
	Priv       *btcec.PrivateKey
	Compressed bool
}

// NewKey generates a new compressed key.
func NewKey() (*Key, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	return &Key{Priv: priv, Compressed: true}, nil
}

// DecodeKey decodes a wallet import format private key.
func DecodeKey(wif string) (*Key, error) {
	decoded, err := btcutil.DecodeWIF(wif)
	if err != nil {
		return nil, err
	}
	return &Key{Priv: decoded.PrivKey, Compressed: decoded.CompressPubKey}, nil
}

// PubKey returns the serialized public key in the key's form.
func (k *Key) PubKey() []byte {
	if k.Compressed {
		return k.Priv.PubKey().SerializeCompressed()
	}
	return k.Priv.PubKey().SerializeUncompressed()
}

// Sign signs message under magic and checks the result against the key's
// own public key.
func (k *Key) Sign(magic, message string) ([]byte, error) {
	sig, err := Sign(k.Priv, k.Compressed, magic, message)
	if err != nil {
		return nil, err
	}
	if err := Verify(k.PubKey(), sig, magic, message); err != nil {
		return nil, err
	}
	return sig, nil
}
