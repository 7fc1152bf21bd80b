// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mnwire

import (
	"io"

	"github.com/btcsuite/btcd/wire"
)

// MsgDseg implements the wire.Message interface and represents a request for
// the masternode list (obseg).  An EmptyTxIn asks for every entry; any other
// input asks for that single entry.
type MsgDseg struct {
	Vin wire.TxIn
}

// NewMsgDseg returns a dseg for vin.
func NewMsgDseg(vin wire.TxIn) *MsgDseg {
	return &MsgDseg{Vin: vin}
}

// BtcDecode decodes r using the protocol encoding into the receiver.
// This is part of the wire.Message interface implementation.
func (msg *MsgDseg) BtcDecode(r io.Reader, pver uint32, _ wire.MessageEncoding) error {
	return ReadTxIn(r, pver, &msg.Vin)
}

// BtcEncode encodes the receiver to w using the protocol encoding.
// This is part of the wire.Message interface implementation.
func (msg *MsgDseg) BtcEncode(w io.Writer, pver uint32, _ wire.MessageEncoding) error {
	return WriteTxIn(w, pver, &msg.Vin)
}

// Command returns the protocol command string for the message.  This is part
// of the wire.Message interface implementation.
func (msg *MsgDseg) Command() string {
	return CmdDseg
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the wire.Message interface implementation.
func (msg *MsgDseg) MaxPayloadLength(pver uint32) uint32 {
	return maxMasternodePayload
}
