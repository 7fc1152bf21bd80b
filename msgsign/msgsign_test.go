// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package msgsign

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"
)

const testMagic = "DarkNet Signed Message:\n"

func testKey(t *testing.T, b byte) *btcec.PrivateKey {
	t.Helper()
	var raw [32]byte
	for i := range raw {
		raw[i] = b
	}
	key, _ := btcec.PrivKeyFromBytes(raw[:])
	return key
}

func TestSignVerify(t *testing.T) {
	t.Parallel()

	key := testKey(t, 0x01)
	other := testKey(t, 0x02)
	pub := key.PubKey().SerializeCompressed()

	sig, err := Sign(key, true, testMagic, "hello")
	require.NoError(t, err)
	require.Len(t, sig, 65)

	tests := []struct {
		name    string
		pub     []byte
		magic   string
		message string
		wantErr bool
	}{
		{"valid", pub, testMagic, "hello", false},
		{"other message", pub, testMagic, "hellO", true},
		{"other magic", pub, "Bitcoin Signed Message:\n", "hello", true},
		{"other key", other.PubKey().SerializeCompressed(), testMagic, "hello", true},
		{"uncompressed form", key.PubKey().SerializeUncompressed(), testMagic, "hello", true},
	}
	for _, test := range tests {
		err := Verify(test.pub, sig, test.magic, test.message)
		if test.wantErr {
			require.Error(t, err, test.name)
		} else {
			require.NoError(t, err, test.name)
		}
	}

	require.Error(t, Verify(pub, []byte{0x01, 0x02}, testMagic, "hello"))

	// Uncompressed keys sign and verify in their own form.
	uncompressed := key.PubKey().SerializeUncompressed()
	require.False(t, IsCompressedPubKey(uncompressed))
	sig, err = Sign(key, false, testMagic, "hello")
	require.NoError(t, err)
	require.NoError(t, Verify(uncompressed, sig, testMagic, "hello"))
	require.Error(t, Verify(pub, sig, testMagic, "hello"))
}

func TestKeyHelpers(t *testing.T) {
	t.Parallel()

	key := testKey(t, 0x03)
	pub := key.PubKey().SerializeCompressed()

	script, err := PayToPubKeyHashScript(pub)
	require.NoError(t, err)
	require.Len(t, script, 25)
	require.Equal(t, byte(0x76), script[0])
	require.Equal(t, btcutil.Hash160(pub), script[3:23])

	id := KeyID(pub)
	require.Len(t, id, 40)
	hash := btcutil.Hash160(pub)
	require.Equal(t, id[:2], hexByte(hash[19]))
	require.Equal(t, id[38:], hexByte(hash[0]))

	wif, err := btcutil.NewWIF(key, &chaincfg.MainNetParams, true)
	require.NoError(t, err)
	decoded, decodedPub, err := KeyFromWIF(wif.String())
	require.NoError(t, err)
	require.Equal(t, key.Serialize(), decoded.Serialize())
	require.Equal(t, pub, decodedPub)

	_, _, err = KeyFromWIF("not a key")
	require.Error(t, err)

	_, err = ParsePubKey(pub)
	require.NoError(t, err)
	_, err = ParsePubKey(pub[:10])
	require.Error(t, err)
}

func hexByte(b byte) string {
	const digits = "0123456789abcdef"
	return string([]byte{digits[b>>4], digits[b&0x0f]})
}

func TestKey(t *testing.T) {
	t.Parallel()

	for _, compressed := range []bool{true, false} {
		key := &Key{Priv: testKey(t, 0x07), Compressed: compressed}
		wif, err := btcutil.NewWIF(key.Priv, &chaincfg.MainNetParams, compressed)
		require.NoError(t, err)

		decoded, err := DecodeKey(wif.String())
		require.NoError(t, err)
		require.Equal(t, key.PubKey(), decoded.PubKey())
		require.Equal(t, compressed, IsCompressedPubKey(decoded.PubKey()))

		sig, err := decoded.Sign(testMagic, "ping")
		require.NoError(t, err)
		require.NoError(t, Verify(key.PubKey(), sig, testMagic, "ping"))
	}

	_, err := DecodeKey("not a key")
	require.Error(t, err)

	key, err := NewKey()
	require.NoError(t, err)
	require.True(t, IsCompressedPubKey(key.PubKey()))
}
