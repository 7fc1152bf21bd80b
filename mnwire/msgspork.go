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

// MsgSpork implements the wire.Message interface and carries a signed
// network parameter update.
type MsgSpork struct {
	SporkID    int32
	Value      int64
	TimeSigned int64
	Sig        []byte
}

// Hash returns the double sha256 of id, value and signing time.
func (msg *MsgSpork) Hash() chainhash.Hash {
	var buf bytes.Buffer
	WriteInt32(&buf, msg.SporkID)
	WriteInt64(&buf, msg.Value)
	WriteInt64(&buf, msg.TimeSigned)
	return chainhash.DoubleHashH(buf.Bytes())
}

// BtcDecode decodes r using the protocol encoding into the receiver.
// This is part of the wire.Message interface implementation.
func (msg *MsgSpork) BtcDecode(r io.Reader, pver uint32, _ wire.MessageEncoding) error {
	var err error
	if msg.SporkID, err = ReadInt32(r); err != nil {
		return err
	}
	if msg.Value, err = ReadInt64(r); err != nil {
		return err
	}
	if msg.TimeSigned, err = ReadInt64(r); err != nil {
		return err
	}
	msg.Sig, err = wire.ReadVarBytes(r, pver, MaxSigSize, "spork signature")
	return err
}

// BtcEncode encodes the receiver to w using the protocol encoding.
// This is part of the wire.Message interface implementation.
func (msg *MsgSpork) BtcEncode(w io.Writer, pver uint32, _ wire.MessageEncoding) error {
	if err := WriteInt32(w, msg.SporkID); err != nil {
		return err
	}
	if err := WriteInt64(w, msg.Value); err != nil {
		return err
	}
	if err := WriteInt64(w, msg.TimeSigned); err != nil {
		return err
	}
	return wire.WriteVarBytes(w, pver, msg.Sig)
}

// Command returns the protocol command string for the message.  This is part
// of the wire.Message interface implementation.
func (msg *MsgSpork) Command() string {
	return CmdSpork
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the wire.Message interface implementation.
func (msg *MsgSpork) MaxPayloadLength(pver uint32) uint32 {
	// id + value + time + varint + signature.
	return 4 + 8 + 8 + 9 + MaxSigSize
}

// MsgGetSporks implements the wire.Message interface and asks a peer for all
// of its active sporks.  It has no payload.
type MsgGetSporks struct{}

// BtcDecode decodes r using the protocol encoding into the receiver.
// This is part of the wire.Message interface implementation.
func (msg *MsgGetSporks) BtcDecode(r io.Reader, pver uint32, _ wire.MessageEncoding) error {
	return nil
}

// BtcEncode encodes the receiver to w using the protocol encoding.
// This is part of the wire.Message interface implementation.
func (msg *MsgGetSporks) BtcEncode(w io.Writer, pver uint32, _ wire.MessageEncoding) error {
	return nil
}

// Command returns the protocol command string for the message.  This is part
// of the wire.Message interface implementation.
func (msg *MsgGetSporks) Command() string {
	return CmdGetSporks
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the wire.Message interface implementation.
func (msg *MsgGetSporks) MaxPayloadLength(pver uint32) uint32 {
	return 0
}
