// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mnpayments

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/divitproject/mnd/msgsign"
	"github.com/divitproject/mnd/netparams"
	"github.com/stretchr/testify/require"
)

func TestWinnerSignature(t *testing.T) {
	t.Parallel()

	magic := netparams.RegTestParams.MessageMagic
	key, err := msgsign.NewKey()
	require.NoError(t, err)
	other, err := msgsign.NewKey()
	require.NoError(t, err)

	op := wire.OutPoint{Hash: chainhash.HashH([]byte("voter")), Index: 1}
	w := NewWinner(op, 120, testScript(t))
	require.NoError(t, w.Sign(key, magic))
	require.NoError(t, w.VerifySignature(key.PubKey(), magic))

	err = w.VerifySignature(other.PubKey(), magic)
	require.True(t, IsErrorCode(err, ErrBadSignature), "got %v", err)

	w.BlockHeight++
	err = w.VerifySignature(key.PubKey(), magic)
	require.True(t, IsErrorCode(err, ErrBadSignature), "got %v", err)

	// The signature is not part of the vote hash.
	hash := w.Hash()
	w.Sig = nil
	require.Equal(t, hash, w.Hash())
}

func TestBlockPayees(t *testing.T) {
	t.Parallel()

	a, b := []byte{0x51}, []byte{0x52}
	var payees BlockPayees
	_, ok := payees.Payee()
	require.False(t, ok)

	payees.AddPayee(a, 1)
	payees.AddPayee(b, 2)
	payees.AddPayee(a, 1)
	require.Equal(t, []Payee{{Script: a, Votes: 2}, {Script: b, Votes: 2}},
		payees.Payees)

	// The first payee to reach the top count keeps it.
	got, ok := payees.Payee()
	require.True(t, ok)
	require.Equal(t, a, got)

	payees.AddPayee(b, 1)
	got, _ = payees.Payee()
	require.Equal(t, b, got)

	require.True(t, payees.HasPayeeWithVotes(b, 3))
	require.False(t, payees.HasPayeeWithVotes(a, 3))
	require.False(t, payees.HasPayeeWithVotes([]byte{0x53}, 0))

	c := payees.copy()
	c.Payees[0].Votes = 100
	require.Equal(t, 2, payees.Payees[0].Votes)
}

func TestBlockPayeesIsTransactionValid(t *testing.T) {
	t.Parallel()

	chain := &netparams.RegTestParams.Chain
	payee := testScript(t)
	other := testScript(t)
	required := btcutil.Amount(15 * btcutil.SatoshiPerBitcoin)

	tests := []struct {
		name   string
		payees []Payee
		tx     *wire.MsgTx
		want   bool
	}{{
		name: "no votes",
		tx:   payTx(other, required),
		want: true,
	}, {
		name:   "below quorum",
		payees: []Payee{{payee, SignaturesRequired - 1}},
		tx:     payTx(other, required),
		want:   true,
	}, {
		name:   "pays quorum payee",
		payees: []Payee{{payee, SignaturesRequired}},
		tx:     payTx(payee, required),
		want:   true,
	}, {
		name:   "pays more than required",
		payees: []Payee{{payee, SignaturesRequired}},
		tx:     payTx(payee, required+1),
		want:   true,
	}, {
		name:   "underpays quorum payee",
		payees: []Payee{{payee, SignaturesRequired}},
		tx:     payTx(payee, required-1),
		want:   false,
	}, {
		name:   "pays someone else",
		payees: []Payee{{payee, SignaturesRequired}},
		tx:     payTx(other, required),
		want:   false,
	}, {
		name: "pays the payee below quorum",
		payees: []Payee{
			{payee, SignaturesRequired},
			{other, SignaturesRequired - 1},
		},
		tx:   payTx(other, required),
		want: false,
	}, {
		name: "either quorum payee",
		payees: []Payee{
			{payee, SignaturesRequired},
			{other, SignaturesRequired + 1},
		},
		tx:   payTx(payee, required),
		want: true,
	}}

	for _, test := range tests {
		b := BlockPayees{Height: 10, Payees: test.payees}
		got := b.IsTransactionValid(test.tx, required, chain)
		require.Equal(t, test.want, got, test.name)
	}
}

func TestPayeeString(t *testing.T) {
	t.Parallel()

	chain := &netparams.RegTestParams.Chain
	key, err := msgsign.NewKey()
	require.NoError(t, err)
	script, err := msgsign.PayToPubKeyHashScript(key.PubKey())
	require.NoError(t, err)

	addr, err := btcutil.NewAddressPubKeyHash(
		btcutil.Hash160(key.PubKey()), chain)
	require.NoError(t, err)
	require.Equal(t, addr.EncodeAddress(), PayeeString(script, chain))
	require.Equal(t, "51", PayeeString([]byte{0x51}, chain))

	b := BlockPayees{Payees: []Payee{{script, 3}, {[]byte{0x51}, 1}}}
	require.Equal(t, addr.EncodeAddress()+":3, 51:1",
		b.RequiredPaymentsString(chain))
	require.Equal(t, "Unknown", (&BlockPayees{}).RequiredPaymentsString(chain))
}
