// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mnwire

import (
	"io"

	"github.com/btcsuite/btcd/wire"
)

// Sync stage identifiers carried in ItemID.
const (
	SyncInitial    int32 = 0
	SyncSporks     int32 = 1
	SyncList       int32 = 2
	SyncMNW        int32 = 3
	SyncBudget     int32 = 4
	SyncBudgetProp int32 = 10
	SyncBudgetFin  int32 = 11
	SyncFailed     int32 = 998
	SyncFinished   int32 = 999
)

// MsgSyncStatusCount implements the wire.Message interface and reports how
// many items of a sync stage a peer just sent (ssc).
type MsgSyncStatusCount struct {
	ItemID int32
	Count  int32
}

// NewMsgSyncStatusCount returns an ssc message for the stage and count.
func NewMsgSyncStatusCount(itemID, count int32) *MsgSyncStatusCount {
	return &MsgSyncStatusCount{ItemID: itemID, Count: count}
}

// BtcDecode decodes r using the protocol encoding into the receiver.
// This is part of the wire.Message interface implementation.
func (msg *MsgSyncStatusCount) BtcDecode(r io.Reader, pver uint32, _ wire.MessageEncoding) error {
	var err error
	if msg.ItemID, err = ReadInt32(r); err != nil {
		return err
	}
	msg.Count, err = ReadInt32(r)
	return err
}

// BtcEncode encodes the receiver to w using the protocol encoding.
// This is part of the wire.Message interface implementation.
func (msg *MsgSyncStatusCount) BtcEncode(w io.Writer, pver uint32, _ wire.MessageEncoding) error {
	if err := WriteInt32(w, msg.ItemID); err != nil {
		return err
	}
	return WriteInt32(w, msg.Count)
}

// Command returns the protocol command string for the message.  This is part
// of the wire.Message interface implementation.
func (msg *MsgSyncStatusCount) Command() string {
	return CmdSyncStatusCount
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the wire.Message interface implementation.
func (msg *MsgSyncStatusCount) MaxPayloadLength(pver uint32) uint32 {
	return 8
}
