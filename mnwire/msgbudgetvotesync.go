// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mnwire

import (
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// MsgBudgetVoteSync implements the wire.Message interface and asks a peer for
// budget items (fnvs).  A zero hash requests everything.  Budget handling
// itself lives outside this module; only the request is issued.
type MsgBudgetVoteSync struct {
	Hash chainhash.Hash
}

// BtcDecode decodes r using the protocol encoding into the receiver.
// This is part of the wire.Message interface implementation.
func (msg *MsgBudgetVoteSync) BtcDecode(r io.Reader, pver uint32, _ wire.MessageEncoding) error {
	_, err := io.ReadFull(r, msg.Hash[:])
	return err
}

// BtcEncode encodes the receiver to w using the protocol encoding.
// This is part of the wire.Message interface implementation.
func (msg *MsgBudgetVoteSync) BtcEncode(w io.Writer, pver uint32, _ wire.MessageEncoding) error {
	_, err := w.Write(msg.Hash[:])
	return err
}

// Command returns the protocol command string for the message.  This is part
// of the wire.Message interface implementation.
func (msg *MsgBudgetVoteSync) Command() string {
	return CmdBudgetVoteSync
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the wire.Message interface implementation.
func (msg *MsgBudgetVoteSync) MaxPayloadLength(pver uint32) uint32 {
	return chainhash.HashSize
}
