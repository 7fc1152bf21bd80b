// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mnwire

import (
	"bytes"
	"io"
	"net"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/require"
)

const testNet = wire.BitcoinNet(0x13fdc403)

func testOutPoint(b byte, index uint32) wire.OutPoint {
	var hash chainhash.Hash
	for i := range hash {
		hash[i] = b
	}
	return wire.OutPoint{Hash: hash, Index: index}
}

func testPing() MsgMNPing {
	return MsgMNPing{
		Vin:       NewTxIn(testOutPoint(0x11, 1)),
		BlockHash: chainhash.Hash{0x01, 0x02},
		SigTime:   1600000000,
		Sig:       bytes.Repeat([]byte{0xaa}, 65),
	}
}

// TestMessageFraming writes every masternode message with the btcd framing
// and reads it back with ReadMessage.
func TestMessageFraming(t *testing.T) {
	t.Parallel()

	tests := []wire.Message{
		&MsgMNBroadcast{
			Vin:              NewTxIn(testOutPoint(0x11, 1)),
			Addr:             ServiceAddr{IP: net.ParseIP("8.8.8.8"), Port: 9765},
			PubKeyCollateral: bytes.Repeat([]byte{0x02}, 33),
			PubKeyOperator:   bytes.Repeat([]byte{0x03}, 33),
			Sig:              bytes.Repeat([]byte{0xbb}, 65),
			SigTime:          1600000100,
			Protocol:         70920,
			LastPing:         testPing(),
			LastDsq:          7,
		},
		func() wire.Message { p := testPing(); return &p }(),
		NewMsgDseg(EmptyTxIn()),
		&MsgMNWinner{
			VinMasternode: NewTxIn(testOutPoint(0x22, 0)),
			BlockHeight:   1000,
			Payee:         []byte{0x76, 0xa9, 0x14},
			Sig:           []byte{0x01},
		},
		&MsgMNGet{CountNeeded: 125},
		NewMsgSyncStatusCount(2, 40),
		&MsgGetSporks{},
		&MsgSpork{SporkID: 10007, Value: 1, TimeSigned: 5, Sig: []byte{0x09}},
		&MsgBudgetVoteSync{},
		&MsgDsee{
			Vin:                NewTxIn(testOutPoint(0x33, 2)),
			Addr:               ServiceAddr{IP: net.ParseIP("1.2.3.4"), Port: 9765},
			Sig:                []byte{0x01},
			SigTime:            5,
			PubKeyCollateral:   []byte{0x02},
			PubKeyOperator:     []byte{0x03},
			Count:              -1,
			LastUpdated:        6,
			Protocol:           70918,
			DonationScript:     []byte{0x51},
			DonationPercentage: 3,
		},
		&MsgDseep{Vin: NewTxIn(testOutPoint(0x44, 3)), Sig: []byte{0x01},
			SigTime: 9, Stop: true},
	}

	for _, msg := range tests {
		var buf bytes.Buffer
		err := WriteMessage(&buf, msg, 70920, testNet)
		require.NoError(t, err, msg.Command())
		written := append([]byte(nil), buf.Bytes()...)

		got, payload, err := ReadMessage(&buf, 70920, testNet)
		require.NoError(t, err, msg.Command())
		require.Equal(t, msg.Command(), got.Command())
		require.Equal(t, written[wire.MessageHeaderSize:], payload)

		// Re-encoding the decoded message must reproduce the payload.
		var again bytes.Buffer
		require.NoError(t, got.BtcEncode(&again, 70920, wire.BaseEncoding))
		require.Equal(t, payload, again.Bytes(), spew.Sdump(got))
	}
}

func TestReadMessageErrors(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, &MsgMNGet{CountNeeded: 1}, 1, testNet))
	raw := buf.Bytes()

	// Wrong network.
	_, _, err := ReadMessage(bytes.NewReader(raw), 1, wire.BitcoinNet(1))
	var msgErr *wire.MessageError
	require.ErrorAs(t, err, &msgErr)
	require.False(t, IsUnknownCommand(err))

	// Corrupt checksum.
	bad := append([]byte(nil), raw...)
	bad[len(bad)-1] ^= 0xff
	_, _, err = ReadMessage(bytes.NewReader(bad), 1, testNet)
	require.ErrorAs(t, err, &msgErr)

	// Unknown command.
	unknown := append([]byte(nil), raw...)
	copy(unknown[4:16], []byte("bogus\x00\x00\x00\x00\x00\x00\x00"))
	_, _, err = ReadMessage(bytes.NewReader(unknown), 1, testNet)
	require.ErrorAs(t, err, &msgErr)
	require.True(t, IsUnknownCommand(err))

	// Truncated payload.
	_, _, err = ReadMessage(bytes.NewReader(raw[:len(raw)-1]), 1, testNet)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestHashesIgnoreUncoveredFields(t *testing.T) {
	t.Parallel()

	mnb := MsgMNBroadcast{PubKeyCollateral: []byte{0x02, 0x03}, SigTime: 10}
	h := mnb.Hash()
	mnb.Addr = ServiceAddr{IP: net.ParseIP("9.9.9.9"), Port: 1}
	mnb.Sig = []byte{0x01}
	require.Equal(t, h, mnb.Hash())
	mnb.SigTime++
	require.NotEqual(t, h, mnb.Hash())

	ping := testPing()
	ph := ping.Hash()
	ping.Sig = nil
	ping.BlockHash = chainhash.Hash{}
	require.Equal(t, ph, ping.Hash())

	w := MsgMNWinner{VinMasternode: NewTxIn(testOutPoint(1, 0)), BlockHeight: 5,
		Payee: []byte{0x51}}
	wh := w.Hash()
	w.Sig = []byte{0x01}
	require.Equal(t, wh, w.Hash())
	w.BlockHeight = 6
	require.NotEqual(t, wh, w.Hash())
}

func TestTxInString(t *testing.T) {
	t.Parallel()

	vin := NewTxIn(testOutPoint(0xab, 7))
	require.Equal(t, "CTxIn(COutPoint(ababababab, 7), scriptSig=)",
		TxInString(&vin))

	vin.Sequence = 5
	require.Equal(t, "CTxIn(COutPoint(ababababab, 7), scriptSig=, nSequence=5)",
		TxInString(&vin))

	op := testOutPoint(0xab, 7)
	require.Equal(t, op.Hash.String()+"-7", OutPointShort(&op))

	empty := EmptyTxIn()
	require.True(t, IsEmptyTxIn(&empty))
	require.False(t, IsEmptyTxIn(&vin))
}

func TestServiceAddr(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in       string
		rfc1918  bool
		local    bool
		routable bool
	}{
		{"8.8.8.8:9765", false, false, true},
		{"10.1.2.3:9765", true, false, false},
		{"172.20.0.1:1", true, false, false},
		{"192.168.1.1:1", true, false, false},
		{"127.0.0.1:9765", false, true, false},
		{"[::1]:9765", false, true, false},
		{"[2001:db8::1]:9765", false, false, true},
	}
	for _, test := range tests {
		addr, err := ParseServiceAddr(test.in)
		require.NoError(t, err, test.in)
		require.Equal(t, test.in, addr.String())
		require.Equal(t, test.rfc1918, addr.IsRFC1918(), test.in)
		require.Equal(t, test.local, addr.IsLocal(), test.in)
		require.Equal(t, test.routable, addr.IsRoutable(), test.in)

		var buf bytes.Buffer
		require.NoError(t, WriteServiceAddr(&buf, &addr))
		require.Equal(t, 18, buf.Len())
		var decoded ServiceAddr
		require.NoError(t, ReadServiceAddr(&buf, &decoded))
		require.True(t, addr.Equal(decoded))
	}

	_, err := ParseServiceAddr("example.com:80")
	require.Error(t, err)
	_, err = ParseServiceAddr("1.2.3.4")
	require.Error(t, err)
}
