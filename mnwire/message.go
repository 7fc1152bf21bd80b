// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mnwire

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Commands used in masternode message headers which describe the type of
// message.
const (
	CmdMNBroadcast     = "fnb"
	CmdMNPing          = "fnp"
	CmdDseg            = "obseg"
	CmdMNWinner        = "fnw"
	CmdMNGet           = "fnget"
	CmdSyncStatusCount = "ssc"
	CmdGetSporks       = "getsporks"
	CmdSpork           = "spork"
	CmdBudgetVoteSync  = "fnvs"
	CmdDsee            = "obsee"
	CmdDseep           = "obseep"
)

// Inventory types for masternode data.
const (
	InvTypeSpork              wire.InvType = 6
	InvTypeMasternodeWinner   wire.InvType = 7
	InvTypeMasternodeAnnounce wire.InvType = 14
	InvTypeMasternodePing     wire.InvType = 15
)

// InvTypeString returns a human readable name for the masternode inventory
// types and defers to btcd for the rest.
func InvTypeString(t wire.InvType) string {
	switch t {
	case InvTypeSpork:
		return "MSG_SPORK"
	case InvTypeMasternodeWinner:
		return "MSG_MASTERNODE_WINNER"
	case InvTypeMasternodeAnnounce:
		return "MSG_MASTERNODE_ANNOUNCE"
	case InvTypeMasternodePing:
		return "MSG_MASTERNODE_PING"
	}
	return t.String()
}

// makeEmptyMessage creates a message of the appropriate concrete type based
// on the command.
func makeEmptyMessage(command string) (wire.Message, error) {
	var msg wire.Message
	switch command {
	case wire.CmdVersion:
		msg = &wire.MsgVersion{}
	case wire.CmdVerAck:
		msg = &wire.MsgVerAck{}
	case wire.CmdInv:
		msg = &wire.MsgInv{}
	case wire.CmdGetData:
		msg = &wire.MsgGetData{}
	case wire.CmdNotFound:
		msg = &wire.MsgNotFound{}
	case wire.CmdPing:
		msg = &wire.MsgPing{}
	case wire.CmdPong:
		msg = &wire.MsgPong{}
	case CmdMNBroadcast:
		msg = &MsgMNBroadcast{}
	case CmdMNPing:
		msg = &MsgMNPing{}
	case CmdDseg:
		msg = &MsgDseg{}
	case CmdMNWinner:
		msg = &MsgMNWinner{}
	case CmdMNGet:
		msg = &MsgMNGet{}
	case CmdSyncStatusCount:
		msg = &MsgSyncStatusCount{}
	case CmdGetSporks:
		msg = &MsgGetSporks{}
	case CmdSpork:
		msg = &MsgSpork{}
	case CmdBudgetVoteSync:
		msg = &MsgBudgetVoteSync{}
	case CmdDsee:
		msg = &MsgDsee{}
	case CmdDseep:
		msg = &MsgDseep{}
	default:
		return nil, fmt.Errorf("unhandled command [%s]", command)
	}
	return msg, nil
}

// messageHeader defines the header structure for all protocol messages.
type messageHeader struct {
	magic    wire.BitcoinNet
	command  string
	length   uint32
	checksum [4]byte
}

// readMessageHeader reads a message header from r.
func readMessageHeader(r io.Reader) (int, *messageHeader, error) {
	var headerBytes [wire.MessageHeaderSize]byte
	n, err := io.ReadFull(r, headerBytes[:])
	if err != nil {
		return n, nil, err
	}

	hdr := messageHeader{}
	hdr.magic = wire.BitcoinNet(littleEndian.Uint32(headerBytes[0:4]))
	command := headerBytes[4 : 4+wire.CommandSize]
	hdr.length = littleEndian.Uint32(headerBytes[16:20])
	copy(hdr.checksum[:], headerBytes[20:24])

	// Strip trailing zeros from command string.
	hdr.command = string(bytes.TrimRight(command, "\x00"))

	return n, &hdr, nil
}

// discardInput reads n bytes from reader r in chunks and discards the read
// bytes.  This is used to skip payloads when various errors occur and helps
// prevent rogue nodes from causing massive memory allocation through forging
// header length.
func discardInput(r io.Reader, n uint32) {
	maxSize := uint32(10 * 1024) // 10k at a time
	numReads := n / maxSize
	bytesRemaining := n % maxSize
	if n > 0 {
		buf := make([]byte, maxSize)
		for i := uint32(0); i < numReads; i++ {
			io.ReadFull(r, buf)
		}
	}
	if bytesRemaining > 0 {
		buf := make([]byte, bytesRemaining)
		io.ReadFull(r, buf)
	}
}

// unknownCommandFunc marks message errors for commands this package does not
// decode.  Full nodes relay many of those and they are skipped, not punished.
const unknownCommandFunc = "makeEmptyMessage"

// IsUnknownCommand reports whether err was returned by ReadMessageN for a
// well framed message with a command it does not decode.
func IsUnknownCommand(err error) bool {
	var msgErr *wire.MessageError
	return errors.As(err, &msgErr) && msgErr.Func == unknownCommandFunc
}

func messageError(f, desc string) *wire.MessageError {
	return &wire.MessageError{Func: f, Description: desc}
}

// ReadMessageN reads, validates, and parses the next message from r for the
// provided protocol version and network.  It returns the number of bytes
// read in addition to the parsed Message and raw bytes which comprise the
// message.  Unlike wire.ReadMessageN it understands the masternode commands.
func ReadMessageN(r io.Reader, pver uint32, net wire.BitcoinNet) (int, wire.Message, []byte, error) {
	totalBytes := 0
	n, hdr, err := readMessageHeader(r)
	totalBytes += n
	if err != nil {
		return totalBytes, nil, nil, err
	}

	// Enforce maximum message payload.
	if hdr.length > wire.MaxMessagePayload {
		str := fmt.Sprintf("message payload is too large - header "+
			"indicates %d bytes, but max message payload is %d "+
			"bytes.", hdr.length, wire.MaxMessagePayload)
		return totalBytes, nil, nil, messageError("ReadMessage", str)
	}

	// Check for messages from the wrong network.
	if hdr.magic != net {
		discardInput(r, hdr.length)
		str := fmt.Sprintf("message from other network [%v]", hdr.magic)
		return totalBytes, nil, nil, messageError("ReadMessage", str)
	}

	// Check for malformed commands.
	command := hdr.command
	if !utf8.ValidString(command) {
		discardInput(r, hdr.length)
		str := fmt.Sprintf("invalid command %v", []byte(command))
		return totalBytes, nil, nil, messageError("ReadMessage", str)
	}

	// Create struct of appropriate message type based on the command.
	msg, err := makeEmptyMessage(command)
	if err != nil {
		discardInput(r, hdr.length)
		return totalBytes, nil, nil, messageError(unknownCommandFunc,
			err.Error())
	}

	// Check for maximum length based on the message type as a malicious
	// client could otherwise create a well-formed header and set the
	// length to max numbers in order to exhaust the machine's memory.
	mpl := msg.MaxPayloadLength(pver)
	if hdr.length > mpl {
		discardInput(r, hdr.length)
		str := fmt.Sprintf("payload exceeds max length - header "+
			"indicates %v bytes, but max payload size for "+
			"messages of type [%v] is %v.", hdr.length, command, mpl)
		return totalBytes, nil, nil, messageError("ReadMessage", str)
	}

	// Read payload.
	payload := make([]byte, hdr.length)
	n, err = io.ReadFull(r, payload)
	totalBytes += n
	if err != nil {
		return totalBytes, nil, nil, err
	}

	// Test checksum.
	checksum := chainhash.DoubleHashB(payload)[0:4]
	if !bytes.Equal(checksum, hdr.checksum[:]) {
		str := fmt.Sprintf("payload checksum failed - header "+
			"indicates %v, but actual checksum is %v.",
			hdr.checksum, checksum)
		return totalBytes, nil, nil, messageError("ReadMessage", str)
	}

	// Unmarshal message.
	pr := bytes.NewBuffer(payload)
	err = msg.BtcDecode(pr, pver, wire.BaseEncoding)
	if err != nil {
		return totalBytes, nil, nil, err
	}

	return totalBytes, msg, payload, nil
}

// ReadMessage is ReadMessageN without the byte count.
func ReadMessage(r io.Reader, pver uint32, net wire.BitcoinNet) (wire.Message, []byte, error) {
	_, msg, buf, err := ReadMessageN(r, pver, net)
	return msg, buf, err
}

// WriteMessageN writes msg to w including the necessary header information
// and returns the number of bytes written.  Framing is identical to btcd, so
// this defers to wire.
func WriteMessageN(w io.Writer, msg wire.Message, pver uint32, net wire.BitcoinNet) (int, error) {
	return wire.WriteMessageN(w, msg, pver, net)
}

// WriteMessage is WriteMessageN without the byte count.
func WriteMessage(w io.Writer, msg wire.Message, pver uint32, net wire.BitcoinNet) error {
	_, err := WriteMessageN(w, msg, pver, net)
	return err
}
