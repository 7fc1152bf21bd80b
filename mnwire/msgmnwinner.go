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

// MsgMNWinner implements the wire.Message interface and represents a payment
// vote (fnw): a top ranked masternode naming the payee for a block height.
type MsgMNWinner struct {
	VinMasternode wire.TxIn
	BlockHeight   int32
	Payee         []byte
	Sig           []byte
}

// Hash returns the double sha256 of payee, height and voter outpoint.
func (msg *MsgMNWinner) Hash() chainhash.Hash {
	var buf bytes.Buffer
	wire.WriteVarBytes(&buf, 0, msg.Payee)
	WriteInt32(&buf, msg.BlockHeight)
	WriteOutPoint(&buf, &msg.VinMasternode.PreviousOutPoint)
	return chainhash.DoubleHashH(buf.Bytes())
}

// BtcDecode decodes r using the protocol encoding into the receiver.
// This is part of the wire.Message interface implementation.
func (msg *MsgMNWinner) BtcDecode(r io.Reader, pver uint32, _ wire.MessageEncoding) error {
	if err := ReadTxIn(r, pver, &msg.VinMasternode); err != nil {
		return err
	}
	var err error
	if msg.BlockHeight, err = ReadInt32(r); err != nil {
		return err
	}
	msg.Payee, err = wire.ReadVarBytes(r, pver, MaxScriptSize, "payee")
	if err != nil {
		return err
	}
	msg.Sig, err = wire.ReadVarBytes(r, pver, MaxSigSize, "winner signature")
	return err
}

// BtcEncode encodes the receiver to w using the protocol encoding.
// This is part of the wire.Message interface implementation.
func (msg *MsgMNWinner) BtcEncode(w io.Writer, pver uint32, _ wire.MessageEncoding) error {
	if err := WriteTxIn(w, pver, &msg.VinMasternode); err != nil {
		return err
	}
	if err := WriteInt32(w, msg.BlockHeight); err != nil {
		return err
	}
	if err := wire.WriteVarBytes(w, pver, msg.Payee); err != nil {
		return err
	}
	return wire.WriteVarBytes(w, pver, msg.Sig)
}

// Command returns the protocol command string for the message.  This is part
// of the wire.Message interface implementation.
func (msg *MsgMNWinner) Command() string {
	return CmdMNWinner
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the wire.Message interface implementation.
func (msg *MsgMNWinner) MaxPayloadLength(pver uint32) uint32 {
	return maxMasternodePayload
}
