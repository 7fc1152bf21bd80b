// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mnwire

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"net"
	"strconv"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

const (
	// MaxPubKeySize is the largest serialized public key accepted on the
	// wire (uncompressed secp256k1).
	MaxPubKeySize = 65

	// MaxSigSize bounds the compact and DER signatures carried by
	// masternode messages.
	MaxSigSize = 128

	// MaxScriptSize bounds payee and signature scripts.
	MaxScriptSize = 10000

	// maxMasternodePayload is the largest payload any masternode message
	// may carry.
	maxMasternodePayload = 1 << 16
)

var littleEndian = binary.LittleEndian

// ReadOutPoint reads the next sequence of bytes from r as an OutPoint.
func ReadOutPoint(r io.Reader, op *wire.OutPoint) error {
	if _, err := io.ReadFull(r, op.Hash[:]); err != nil {
		return err
	}
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return err
	}
	op.Index = littleEndian.Uint32(buf[:])
	return nil
}

// WriteOutPoint encodes op to w as hash followed by little-endian index.
func WriteOutPoint(w io.Writer, op *wire.OutPoint) error {
	if _, err := w.Write(op.Hash[:]); err != nil {
		return err
	}
	var buf [4]byte
	littleEndian.PutUint32(buf[:], op.Index)
	_, err := w.Write(buf[:])
	return err
}

// ReadTxIn decodes a transaction input: previous outpoint, signature script
// and sequence number.
func ReadTxIn(r io.Reader, pver uint32, ti *wire.TxIn) error {
	if err := ReadOutPoint(r, &ti.PreviousOutPoint); err != nil {
		return err
	}
	script, err := wire.ReadVarBytes(r, pver, MaxScriptSize, "signature script")
	if err != nil {
		return err
	}
	ti.SignatureScript = script
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return err
	}
	ti.Sequence = littleEndian.Uint32(buf[:])
	return nil
}

// WriteTxIn encodes ti to w.
func WriteTxIn(w io.Writer, pver uint32, ti *wire.TxIn) error {
	if err := WriteOutPoint(w, &ti.PreviousOutPoint); err != nil {
		return err
	}
	if err := wire.WriteVarBytes(w, pver, ti.SignatureScript); err != nil {
		return err
	}
	var buf [4]byte
	littleEndian.PutUint32(buf[:], ti.Sequence)
	_, err := w.Write(buf[:])
	return err
}

// NewTxIn returns an input spending op with an empty signature script and
// the final sequence number, the form masternode messages carry.
func NewTxIn(op wire.OutPoint) wire.TxIn {
	return wire.TxIn{
		PreviousOutPoint: op,
		Sequence:         wire.MaxTxInSequenceNum,
	}
}

// TxInString renders an input the way the signed ping message expects:
// CTxIn(COutPoint(<first 10 hash chars>, n), scriptSig=<first 24 asm chars>)
// with a trailing nSequence only when it is not final.
func TxInString(ti *wire.TxIn) string {
	hash := ti.PreviousOutPoint.Hash.String()
	str := fmt.Sprintf("CTxIn(COutPoint(%s, %d)", hash[:10],
		ti.PreviousOutPoint.Index)
	if IsNullOutPoint(&ti.PreviousOutPoint) {
		str += fmt.Sprintf(", coinbase %x", ti.SignatureScript)
	} else {
		asm, _ := txscript.DisasmString(ti.SignatureScript)
		if len(asm) > 24 {
			asm = asm[:24]
		}
		str += ", scriptSig=" + asm
	}
	if ti.Sequence != wire.MaxTxInSequenceNum {
		str += fmt.Sprintf(", nSequence=%d", ti.Sequence)
	}
	return str + ")"
}

// OutPointShort renders op as hash-index.
func OutPointShort(op *wire.OutPoint) string {
	return op.Hash.String() + "-" + strconv.FormatUint(uint64(op.Index), 10)
}

// IsNullOutPoint reports whether op is the null outpoint (zero hash, max
// index).
func IsNullOutPoint(op *wire.OutPoint) bool {
	return op.Index == math.MaxUint32 && op.Hash == (chainhash.Hash{})
}

// EmptyTxIn returns the input with a null outpoint, no script and the final
// sequence.  A dseg carrying it asks for the whole list.
func EmptyTxIn() wire.TxIn {
	return wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Index: math.MaxUint32},
		Sequence:         wire.MaxTxInSequenceNum,
	}
}

// IsEmptyTxIn reports whether ti equals EmptyTxIn.
func IsEmptyTxIn(ti *wire.TxIn) bool {
	return IsNullOutPoint(&ti.PreviousOutPoint) &&
		len(ti.SignatureScript) == 0 && ti.Sequence == wire.MaxTxInSequenceNum
}

// ServiceAddr is a network endpoint as carried by announcements: a 16 byte
// IPv6 (or IPv4-mapped) address and a big-endian port.
type ServiceAddr struct {
	IP   net.IP
	Port uint16
}

// ParseServiceAddr parses host:port into a ServiceAddr.  The host must be a
// literal IP.
func ParseServiceAddr(s string) (ServiceAddr, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return ServiceAddr{}, err
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return ServiceAddr{}, fmt.Errorf("invalid IP address %q", host)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return ServiceAddr{}, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	return ServiceAddr{IP: ip, Port: uint16(port)}, nil
}

// String returns host:port.
func (a ServiceAddr) String() string {
	ip := a.IP
	if ip == nil {
		ip = net.IPv6zero
	}
	return net.JoinHostPort(ip.String(), strconv.Itoa(int(a.Port)))
}

// Equal reports whether both address and port match.
func (a ServiceAddr) Equal(b ServiceAddr) bool {
	return a.Port == b.Port && a.IP.Equal(b.IP)
}

var rfc1918Nets = []net.IPNet{
	ipNet("10.0.0.0", 8, 32),
	ipNet("172.16.0.0", 12, 32),
	ipNet("192.168.0.0", 16, 32),
}

func ipNet(ip string, ones, bits int) net.IPNet {
	return net.IPNet{IP: net.ParseIP(ip), Mask: net.CIDRMask(ones, bits)}
}

// IsRFC1918 reports whether the address is in a private IPv4 range.
func (a ServiceAddr) IsRFC1918() bool {
	for _, n := range rfc1918Nets {
		if n.Contains(a.IP) {
			return true
		}
	}
	return false
}

// IsLocal reports whether the address is a loopback or unspecified address.
func (a ServiceAddr) IsLocal() bool {
	if a.IP == nil {
		return true
	}
	if ip4 := a.IP.To4(); ip4 != nil && ip4[0] == 0 {
		return true
	}
	return a.IP.IsLoopback() || a.IP.IsUnspecified()
}

// IsRoutable reports whether the address may be announced publicly.
func (a ServiceAddr) IsRoutable() bool {
	return !a.IsLocal() && !a.IsRFC1918()
}

// ReadServiceAddr decodes an address written by WriteServiceAddr.
func ReadServiceAddr(r io.Reader, a *ServiceAddr) error {
	var ip [16]byte
	if _, err := io.ReadFull(r, ip[:]); err != nil {
		return err
	}
	var port [2]byte
	if _, err := io.ReadFull(r, port[:]); err != nil {
		return err
	}
	a.IP = net.IP(ip[:])
	a.Port = binary.BigEndian.Uint16(port[:])
	return nil
}

// WriteServiceAddr encodes a as 16 address bytes and a big-endian port.
func WriteServiceAddr(w io.Writer, a *ServiceAddr) error {
	var ip [16]byte
	if a.IP != nil {
		copy(ip[:], a.IP.To16())
	}
	if _, err := w.Write(ip[:]); err != nil {
		return err
	}
	var port [2]byte
	binary.BigEndian.PutUint16(port[:], a.Port)
	_, err := w.Write(port[:])
	return err
}

// Fixed width little-endian helpers, shared with the hash preimages built by
// other packages.

// ReadInt32 decodes 4 little-endian bytes.
func ReadInt32(r io.Reader) (int32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return int32(littleEndian.Uint32(buf[:])), nil
}

// WriteInt32 encodes v as 4 little-endian bytes.
func WriteInt32(w io.Writer, v int32) error {
	var buf [4]byte
	littleEndian.PutUint32(buf[:], uint32(v))
	_, err := w.Write(buf[:])
	return err
}

// ReadInt64 decodes 8 little-endian bytes.
func ReadInt64(r io.Reader) (int64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return int64(littleEndian.Uint64(buf[:])), nil
}

// WriteInt64 encodes v as 8 little-endian bytes.
func WriteInt64(w io.Writer, v int64) error {
	var buf [8]byte
	littleEndian.PutUint64(buf[:], uint64(v))
	_, err := w.Write(buf[:])
	return err
}

// ReadBool decodes a single byte boolean.
func ReadBool(r io.Reader) (bool, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return false, err
	}
	return buf[0] != 0, nil
}

// WriteBool encodes v as a single byte.
func WriteBool(w io.Writer, v bool) error {
	var buf [1]byte
	if v {
		buf[0] = 1
	}
	_, err := w.Write(buf[:])
	return err
}
