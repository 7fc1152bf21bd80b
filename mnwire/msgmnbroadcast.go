// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mnwire

import (
	"bytes"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// MsgMNBroadcast implements the wire.Message interface and represents a
// masternode announcement (fnb).  It binds a collateral outpoint to a network
// address and an operator key, signed by the collateral key.
type MsgMNBroadcast struct {
	Vin              wire.TxIn
	Addr             ServiceAddr
	PubKeyCollateral []byte
	PubKeyOperator   []byte
	Sig              []byte
	SigTime          int64
	Protocol         uint32
	LastPing         MsgMNPing
	LastDsq          int64
}

// Hash returns the announcement identity: double sha256 of the signing time
// and the collateral key.  The address is not covered.
func (msg *MsgMNBroadcast) Hash() chainhash.Hash {
	var buf bytes.Buffer
	WriteInt64(&buf, msg.SigTime)
	wire.WriteVarBytes(&buf, 0, msg.PubKeyCollateral)
	return chainhash.DoubleHashH(buf.Bytes())
}

// BtcDecode decodes r using the protocol encoding into the receiver.
// This is part of the wire.Message interface implementation.
func (msg *MsgMNBroadcast) BtcDecode(r io.Reader, pver uint32, enc wire.MessageEncoding) error {
	if err := ReadTxIn(r, pver, &msg.Vin); err != nil {
		return err
	}
	if err := ReadServiceAddr(r, &msg.Addr); err != nil {
		return err
	}
	var err error
	msg.PubKeyCollateral, err = wire.ReadVarBytes(r, pver, MaxPubKeySize,
		"collateral pubkey")
	if err != nil {
		return err
	}
	msg.PubKeyOperator, err = wire.ReadVarBytes(r, pver, MaxPubKeySize,
		"operator pubkey")
	if err != nil {
		return err
	}
	msg.Sig, err = wire.ReadVarBytes(r, pver, MaxSigSize, "broadcast signature")
	if err != nil {
		return err
	}
	if msg.SigTime, err = ReadInt64(r); err != nil {
		return err
	}
	protocol, err := ReadInt32(r)
	if err != nil {
		return err
	}
	msg.Protocol = uint32(protocol)
	if err := msg.LastPing.BtcDecode(r, pver, enc); err != nil {
		return err
	}
	msg.LastDsq, err = ReadInt64(r)
	return err
}

// BtcEncode encodes the receiver to w using the protocol encoding.
// This is part of the wire.Message interface implementation.
func (msg *MsgMNBroadcast) BtcEncode(w io.Writer, pver uint32, enc wire.MessageEncoding) error {
	if err := WriteTxIn(w, pver, &msg.Vin); err != nil {
		return err
	}
	if err := WriteServiceAddr(w, &msg.Addr); err != nil {
		return err
	}
	if err := wire.WriteVarBytes(w, pver, msg.PubKeyCollateral); err != nil {
		return err
	}
	if err := wire.WriteVarBytes(w, pver, msg.PubKeyOperator); err != nil {
		return err
	}
	if err := wire.WriteVarBytes(w, pver, msg.Sig); err != nil {
		return err
	}
	if err := WriteInt64(w, msg.SigTime); err != nil {
		return err
	}
	if err := WriteInt32(w, int32(msg.Protocol)); err != nil {
		return err
	}
	if err := msg.LastPing.BtcEncode(w, pver, enc); err != nil {
		return err
	}
	return WriteInt64(w, msg.LastDsq)
}

// Command returns the protocol command string for the message.  This is part
// of the wire.Message interface implementation.
func (msg *MsgMNBroadcast) Command() string {
	return CmdMNBroadcast
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the wire.Message interface implementation.
func (msg *MsgMNBroadcast) MaxPayloadLength(pver uint32) uint32 {
	return maxMasternodePayload
}
