// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mnwire

import (
	"io"

	"github.com/btcsuite/btcd/wire"
)

// MsgMNGet implements the wire.Message interface and asks a peer for the
// payment votes of the last CountNeeded blocks (fnget).
type MsgMNGet struct {
	CountNeeded int32
}

// BtcDecode decodes r using the protocol encoding into the receiver.
// This is part of the wire.Message interface implementation.
func (msg *MsgMNGet) BtcDecode(r io.Reader, pver uint32, _ wire.MessageEncoding) error {
	var err error
	msg.CountNeeded, err = ReadInt32(r)
	return err
}

// BtcEncode encodes the receiver to w using the protocol encoding.
// This is part of the wire.Message interface implementation.
func (msg *MsgMNGet) BtcEncode(w io.Writer, pver uint32, _ wire.MessageEncoding) error {
	return WriteInt32(w, msg.CountNeeded)
}

// Command returns the protocol command string for the message.  This is part
// of the wire.Message interface implementation.
func (msg *MsgMNGet) Command() string {
	return CmdMNGet
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the wire.Message interface implementation.
func (msg *MsgMNGet) MaxPayloadLength(pver uint32) uint32 {
	return 4
}
