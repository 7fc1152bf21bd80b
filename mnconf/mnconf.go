// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package mnconf reads the masternode.conf file which lists the remote
// masternodes controlled by a collateral wallet.
//
// Each non-comment line has the form
//
//	alias ip:port operatorWIF collateralTxid outputIndex [donationAddress[:percent]]
//
// and lines starting with # are ignored.
package mnconf

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/divitproject/mnd/mnwire"
	"github.com/divitproject/mnd/msgsign"
	"github.com/divitproject/mnd/netparams"
)

// DefaultFilename is the name of the file in the data directory.
const DefaultFilename = "masternode.conf"

// sampleConfig is written when no file exists.
const sampleConfig = `# Masternode config file
# Format: alias IP:port masternodeprivkey collateral_output_txid collateral_output_index
# Example: mn1 127.0.0.2:9765 93HaYBVUCYjEMeeH1Y4sBGLALQZE1Yc1K64xiqgX37tGBDQL8Xg 2bcd3c84c84f87eaa86e4e56834c92927a07f9e18718810b92e0d0324456a67c 0
`

// ErrDuplicateAlias is returned when two entries share an alias.
var ErrDuplicateAlias = errors.New("duplicate alias")

// LineError describes a malformed line.
type LineError struct {
	Line int
	Text string
	Err  error
}

// Error satisfies the error interface and prints human-readable errors.
func (e *LineError) Error() string {
	return fmt.Sprintf("could not parse masternode.conf line %d %q: %v",
		e.Line, e.Text, e.Err)
}

// Unwrap returns the underlying error.
func (e *LineError) Unwrap() error {
	return e.Err
}

// Entry is one configured masternode.
type Entry struct {
	Alias           string
	Addr            string
	PrivKey         string
	TxHash          string
	OutputIndex     uint32
	DonationAddress string
	DonationPercent int
}

// OutPoint returns the collateral output of the entry.
func (e *Entry) OutPoint() (wire.OutPoint, error) {
	hash, err := chainhash.NewHashFromStr(e.TxHash)
	if err != nil {
		return wire.OutPoint{}, err
	}
	return wire.OutPoint{Hash: *hash, Index: e.OutputIndex}, nil
}

// OperatorKey decodes the operator private key of the entry.
func (e *Entry) OperatorKey() (*msgsign.Key, error) {
	return msgsign.DecodeKey(e.PrivKey)
}

// ServiceAddr parses the address of the entry.
func (e *Entry) ServiceAddr() (mnwire.ServiceAddr, error) {
	return mnwire.ParseServiceAddr(e.Addr)
}

// String returns the entry in file form.
func (e *Entry) String() string {
	line := fmt.Sprintf("%s %s %s %s %d", e.Alias, e.Addr, e.PrivKey,
		e.TxHash, e.OutputIndex)
	if e.DonationAddress != "" {
		line += fmt.Sprintf(" %s:%d", e.DonationAddress, e.DonationPercent)
	}
	return line
}

// Config holds the entries of a masternode.conf file.
type Config struct {
	entries []Entry
}

// Add appends an entry.  Aliases must be unique.
func (c *Config) Add(e Entry) error {
	if _, ok := c.Find(e.Alias); ok {
		return fmt.Errorf("%w: %s", ErrDuplicateAlias, e.Alias)
	}
	c.entries = append(c.entries, e)
	return nil
}

// Entries returns the entries in file order.
func (c *Config) Entries() []Entry {
	return c.entries
}

// Count returns the number of entries.
func (c *Config) Count() int {
	return len(c.entries)
}

// Find returns the entry with the given alias.
func (c *Config) Find(alias string) (*Entry, bool) {
	for i := range c.entries {
		if c.entries[i].Alias == alias {
			return &c.entries[i], true
		}
	}
	return nil, false
}

// parseDonation parses "address[:percent]".  A missing percent means all of
// the reward.
func parseDonation(field string) (string, int, error) {
	addr, pct, ok := strings.Cut(field, ":")
	if !ok {
		return addr, 100, nil
	}
	percent, err := strconv.Atoi(pct)
	if err != nil || percent < 0 || percent > 100 {
		return "", 0, fmt.Errorf("invalid donation percentage %q", pct)
	}
	return addr, percent, nil
}

// parseLine parses a single non-comment line.
func parseLine(params *netparams.Params, fields []string) (Entry, error) {
	if len(fields) < 5 || len(fields) > 6 {
		return Entry{}, fmt.Errorf("expected 5 or 6 fields, got %d",
			len(fields))
	}

	e := Entry{
		Alias:   fields[0],
		Addr:    fields[1],
		PrivKey: fields[2],
		TxHash:  fields[3],
	}
	index, err := strconv.ParseUint(fields[4], 10, 32)
	if err != nil {
		return Entry{}, fmt.Errorf("invalid output index %q", fields[4])
	}
	e.OutputIndex = uint32(index)
	if len(fields) == 6 {
		e.DonationAddress, e.DonationPercent, err = parseDonation(fields[5])
		if err != nil {
			return Entry{}, err
		}
	}

	addr, err := e.ServiceAddr()
	if err != nil {
		return Entry{}, err
	}
	if params.IsMainNet {
		if addr.Port != netparams.MainnetDefaultPort {
			return Entry{}, fmt.Errorf("invalid port %d, only %d is "+
				"supported on mainnet", addr.Port,
				netparams.MainnetDefaultPort)
		}
	} else if addr.Port == netparams.MainnetDefaultPort {
		return Entry{}, fmt.Errorf("invalid port %d, it is only "+
			"supported on mainnet", addr.Port)
	}
	if _, err := e.OutPoint(); err != nil {
		return Entry{}, fmt.Errorf("invalid collateral txid: %w", err)
	}
	return e, nil
}

// Read loads the file at path.  A missing file is created with a commented
// sample and yields an empty config.
func Read(path string, params *netparams.Params) (*Config, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, []byte(sampleConfig), 0600); err != nil {
			return nil, err
		}
		return &Config{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg := &Config{}
	scanner := bufio.NewScanner(f)
	for lineNum := 1; scanner.Scan(); lineNum++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		e, err := parseLine(params, strings.Fields(line))
		if err != nil {
			return nil, &LineError{Line: lineNum, Text: line, Err: err}
		}
		if err := cfg.Add(e); err != nil {
			return nil, &LineError{Line: lineNum, Text: line, Err: err}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cfg, nil
}
