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

// MsgMNPing implements the wire.Message interface and represents a masternode
// ping (fnp).  The operator signs it periodically to prove liveness, anchoring
// it to a recent block.
type MsgMNPing struct {
	Vin       wire.TxIn
	BlockHash chainhash.Hash
	SigTime   int64
	Sig       []byte
}

// IsZero reports whether the ping is the empty placeholder carried by an
// announcement that has never been pinged.
func (msg *MsgMNPing) IsZero() bool {
	return msg.SigTime == 0 && len(msg.Sig) == 0 &&
		msg.BlockHash == (chainhash.Hash{})
}

// Hash returns the double sha256 of the serialized input and signing time.
func (msg *MsgMNPing) Hash() chainhash.Hash {
	var buf bytes.Buffer
	WriteTxIn(&buf, 0, &msg.Vin)
	WriteInt64(&buf, msg.SigTime)
	return chainhash.DoubleHashH(buf.Bytes())
}

// BtcDecode decodes r using the protocol encoding into the receiver.
// This is part of the wire.Message interface implementation.
func (msg *MsgMNPing) BtcDecode(r io.Reader, pver uint32, _ wire.MessageEncoding) error {
	if err := ReadTxIn(r, pver, &msg.Vin); err != nil {
		return err
	}
	if _, err := io.ReadFull(r, msg.BlockHash[:]); err != nil {
		return err
	}
	sigTime, err := ReadInt64(r)
	if err != nil {
		return err
	}
	msg.SigTime = sigTime
	msg.Sig, err = wire.ReadVarBytes(r, pver, MaxSigSize, "ping signature")
	return err
}

// BtcEncode encodes the receiver to w using the protocol encoding.
// This is part of the wire.Message interface implementation.
func (msg *MsgMNPing) BtcEncode(w io.Writer, pver uint32, _ wire.MessageEncoding) error {
	if err := WriteTxIn(w, pver, &msg.Vin); err != nil {
		return err
	}
	if _, err := w.Write(msg.BlockHash[:]); err != nil {
		return err
	}
	if err := WriteInt64(w, msg.SigTime); err != nil {
		return err
	}
	return wire.WriteVarBytes(w, pver, msg.Sig)
}

// Command returns the protocol command string for the message.  This is part
// of the wire.Message interface implementation.
func (msg *MsgMNPing) Command() string {
	return CmdMNPing
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the wire.Message interface implementation.
func (msg *MsgMNPing) MaxPayloadLength(pver uint32) uint32 {
	return maxMasternodePayload
}
