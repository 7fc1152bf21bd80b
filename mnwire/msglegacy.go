// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mnwire

import (
	"io"

	"github.com/btcsuite/btcd/wire"
)

// MsgDsee implements the wire.Message interface and represents the legacy
// election entry (obsee) still sent by old-protocol masternodes.  Nodes only
// honour it while the pay-updated-nodes spork is off.
type MsgDsee struct {
	Vin                wire.TxIn
	Addr               ServiceAddr
	Sig                []byte
	SigTime            int64
	PubKeyCollateral   []byte
	PubKeyOperator     []byte
	Count              int32
	Current            int32
	LastUpdated        int64
	Protocol           int32
	DonationScript     []byte
	DonationPercentage int32
}

// BtcDecode decodes r using the protocol encoding into the receiver.
// This is part of the wire.Message interface implementation.
func (msg *MsgDsee) BtcDecode(r io.Reader, pver uint32, _ wire.MessageEncoding) error {
	if err := ReadTxIn(r, pver, &msg.Vin); err != nil {
		return err
	}
	if err := ReadServiceAddr(r, &msg.Addr); err != nil {
		return err
	}
	var err error
	if msg.Sig, err = wire.ReadVarBytes(r, pver, MaxSigSize, "dsee signature"); err != nil {
		return err
	}
	if msg.SigTime, err = ReadInt64(r); err != nil {
		return err
	}
	if msg.PubKeyCollateral, err = wire.ReadVarBytes(r, pver, MaxPubKeySize, "pubkey"); err != nil {
		return err
	}
	if msg.PubKeyOperator, err = wire.ReadVarBytes(r, pver, MaxPubKeySize, "pubkey2"); err != nil {
		return err
	}
	if msg.Count, err = ReadInt32(r); err != nil {
		return err
	}
	if msg.Current, err = ReadInt32(r); err != nil {
		return err
	}
	if msg.LastUpdated, err = ReadInt64(r); err != nil {
		return err
	}
	if msg.Protocol, err = ReadInt32(r); err != nil {
		return err
	}
	if msg.DonationScript, err = wire.ReadVarBytes(r, pver, MaxScriptSize, "donation script"); err != nil {
		return err
	}
	msg.DonationPercentage, err = ReadInt32(r)
	return err
}

// BtcEncode encodes the receiver to w using the protocol encoding.
// This is part of the wire.Message interface implementation.
func (msg *MsgDsee) BtcEncode(w io.Writer, pver uint32, _ wire.MessageEncoding) error {
	if err := WriteTxIn(w, pver, &msg.Vin); err != nil {
		return err
	}
	if err := WriteServiceAddr(w, &msg.Addr); err != nil {
		return err
	}
	if err := wire.WriteVarBytes(w, pver, msg.Sig); err != nil {
		return err
	}
	if err := WriteInt64(w, msg.SigTime); err != nil {
		return err
	}
	if err := wire.WriteVarBytes(w, pver, msg.PubKeyCollateral); err != nil {
		return err
	}
	if err := wire.WriteVarBytes(w, pver, msg.PubKeyOperator); err != nil {
		return err
	}
	if err := WriteInt32(w, msg.Count); err != nil {
		return err
	}
	if err := WriteInt32(w, msg.Current); err != nil {
		return err
	}
	if err := WriteInt64(w, msg.LastUpdated); err != nil {
		return err
	}
	if err := WriteInt32(w, msg.Protocol); err != nil {
		return err
	}
	if err := wire.WriteVarBytes(w, pver, msg.DonationScript); err != nil {
		return err
	}
	return WriteInt32(w, msg.DonationPercentage)
}

// Command returns the protocol command string for the message.  This is part
// of the wire.Message interface implementation.
func (msg *MsgDsee) Command() string {
	return CmdDsee
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the wire.Message interface implementation.
func (msg *MsgDsee) MaxPayloadLength(pver uint32) uint32 {
	return maxMasternodePayload
}

// MsgDseep implements the wire.Message interface and represents the legacy
// election entry ping (obseep).
type MsgDseep struct {
	Vin     wire.TxIn
	Sig     []byte
	SigTime int64
	Stop    bool
}

// BtcDecode decodes r using the protocol encoding into the receiver.
// This is part of the wire.Message interface implementation.
func (msg *MsgDseep) BtcDecode(r io.Reader, pver uint32, _ wire.MessageEncoding) error {
	if err := ReadTxIn(r, pver, &msg.Vin); err != nil {
		return err
	}
	var err error
	if msg.Sig, err = wire.ReadVarBytes(r, pver, MaxSigSize, "dseep signature"); err != nil {
		return err
	}
	if msg.SigTime, err = ReadInt64(r); err != nil {
		return err
	}
	msg.Stop, err = ReadBool(r)
	return err
}

// BtcEncode encodes the receiver to w using the protocol encoding.
// This is part of the wire.Message interface implementation.
func (msg *MsgDseep) BtcEncode(w io.Writer, pver uint32, _ wire.MessageEncoding) error {
	if err := WriteTxIn(w, pver, &msg.Vin); err != nil {
		return err
	}
	if err := wire.WriteVarBytes(w, pver, msg.Sig); err != nil {
		return err
	}
	if err := WriteInt64(w, msg.SigTime); err != nil {
		return err
	}
	return WriteBool(w, msg.Stop)
}

// Command returns the protocol command string for the message.  This is part
// of the wire.Message interface implementation.
func (msg *MsgDseep) Command() string {
	return CmdDseep
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the wire.Message interface implementation.
func (msg *MsgDseep) MaxPayloadLength(pver uint32) uint32 {
	return maxMasternodePayload
}
