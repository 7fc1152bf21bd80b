// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package flatdb stores a single serialized object in a checksummed file.
//
// The file layout is:
//
//	varstr  magic message (identifies the kind of object)
//	[4]byte network magic (little endian wire.BitcoinNet)
//	...     object body
//	[32]byte double sha256 of everything above
//
// The masternode list cache and the payment vote cache are both kept this
// way so a restarted node does not have to resync them from peers.
package flatdb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// ReadResult describes the outcome of reading a store.
type ReadResult int

// These constants define the possible read outcomes.
const (
	Ok ReadResult = iota
	FileError
	HashReadError
	IncorrectHash
	IncorrectMagicMessage
	IncorrectMagicNumber
	IncorrectFormat
)

var readResultStrings = map[ReadResult]string{
	Ok:                    "Ok",
	FileError:             "FileError",
	HashReadError:         "HashReadError",
	IncorrectHash:         "IncorrectHash",
	IncorrectMagicMessage: "IncorrectMagicMessage",
	IncorrectMagicNumber:  "IncorrectMagicNumber",
	IncorrectFormat:       "IncorrectFormat",
}

// String returns the ReadResult as a human-readable name.
func (r ReadResult) String() string {
	if s := readResultStrings[r]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ReadResult (%d)", int(r))
}

// Serializer is implemented by objects that can be written to a store.
type Serializer interface {
	Serialize(w io.Writer) error
}

// Deserializer is implemented by objects that can be loaded from a store.
type Deserializer interface {
	Deserialize(r io.Reader) error
}

// clearer is implemented by objects that must be reset after a partial
// decode.
type clearer interface {
	Clear()
}

// maxMagicLen bounds the magic message read from disk.
const maxMagicLen = 256

// Store is a checksummed single object file.
type Store struct {
	path  string
	magic string
	net   wire.BitcoinNet
}

// New returns a store for the file at path.  magic identifies the object kind
// and net the network the data belongs to.
func New(path, magic string, net wire.BitcoinNet) *Store {
	return &Store{path: path, magic: magic, net: net}
}

// Path returns the file path of the store.
func (s *Store) Path() string {
	return s.path
}

// Write serializes obj and replaces the file contents.  The new file is
// written next to the old one and renamed into place.
func (s *Store) Write(obj Serializer) error {
	start := time.Now()

	var buf bytes.Buffer
	if err := wire.WriteVarString(&buf, 0, s.magic); err != nil {
		return err
	}
	var netBytes [4]byte
	binary.LittleEndian.PutUint32(netBytes[:], uint32(s.net))
	buf.Write(netBytes[:])
	if err := obj.Serialize(&buf); err != nil {
		return fmt.Errorf("serialize %s: %w", s.magic, err)
	}
	hash := chainhash.DoubleHashH(buf.Bytes())
	buf.Write(hash[:])

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return err
	}
	tmp := s.path + ".new"
	if err := os.WriteFile(tmp, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return err
	}

	log.Debugf("Written info to %s %v", filepath.Base(s.path),
		time.Since(start))
	return nil
}

// Read verifies the file and decodes its body into obj.  The returned error
// carries the detail for any result other than Ok.
func (s *Store) Read(obj Deserializer) (ReadResult, error) {
	start := time.Now()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return FileError, fmt.Errorf("failed to open file %s: %w", s.path, err)
	}
	if len(data) < chainhash.HashSize {
		return HashReadError, fmt.Errorf("%s is too short to hold a "+
			"checksum", s.path)
	}

	body := data[:len(data)-chainhash.HashSize]
	var hashIn chainhash.Hash
	copy(hashIn[:], data[len(body):])
	if hashIn != chainhash.DoubleHashH(body) {
		return IncorrectHash, fmt.Errorf("checksum mismatch, %s is "+
			"corrupted", s.path)
	}

	r := bytes.NewReader(body)
	magic, err := wire.ReadVarString(r, 0)
	if err != nil || len(magic) > maxMagicLen || magic != s.magic {
		return IncorrectMagicMessage, fmt.Errorf("invalid magic message "+
			"in %s", s.path)
	}
	var netBytes [4]byte
	if _, err := io.ReadFull(r, netBytes[:]); err != nil ||
		wire.BitcoinNet(binary.LittleEndian.Uint32(netBytes[:])) != s.net {

		return IncorrectMagicNumber, fmt.Errorf("invalid network magic "+
			"number in %s", s.path)
	}
	if err := obj.Deserialize(r); err != nil {
		if c, ok := obj.(clearer); ok {
			c.Clear()
		}
		return IncorrectFormat, fmt.Errorf("deserialize %s: %w", s.path, err)
	}

	log.Debugf("Loaded info from %s %v", filepath.Base(s.path),
		time.Since(start))
	return Ok, nil
}

// Dump writes obj after verifying that the existing file, if any, is one of
// ours.  scratch receives the dry-run decode of the old contents.  A missing
// file or one with a valid header but an undecodable body is recreated; any
// other problem aborts the dump so a foreign or corrupt file is not
// overwritten.
func (s *Store) Dump(obj Serializer, scratch Deserializer) error {
	start := time.Now()
	name := filepath.Base(s.path)

	log.Debugf("Verifying %s format...", name)
	result, err := s.Read(scratch)
	switch result {
	case Ok:
	case FileError:
		log.Debugf("Missing cache file %s, will try to recreate", name)
	case IncorrectFormat:
		log.Debugf("Error reading %s: magic is ok but data has invalid "+
			"format, will try to recreate", name)
	default:
		return fmt.Errorf("%s: file format is unknown or invalid, "+
			"please fix it manually: %w", result, err)
	}

	log.Debugf("Writing info to %s...", name)
	if err := s.Write(obj); err != nil {
		return err
	}
	log.Debugf("%s dump finished %v", name, time.Since(start))
	return nil
}
