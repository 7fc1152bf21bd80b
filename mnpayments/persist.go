// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mnpayments

import (
	"fmt"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/divitproject/mnd/flatdb"
	"github.com/divitproject/mnd/mnwire"
)

const (
	// PaymentsFileName is the file the votes are dumped to in the data
	// directory.
	PaymentsFileName = "mnpayments.dat"

	// PaymentsMagic identifies payment vote dumps.
	PaymentsMagic = "MasternodePayments"

	// maxDumpEntries bounds every collection read from a dump.
	maxDumpEntries = 1 << 20
)

func readCount(r io.Reader, what string) (uint64, error) {
	n, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return 0, err
	}
	if n > maxDumpEntries {
		return 0, fmt.Errorf("too many %s entries: %d", what, n)
	}
	return n, nil
}

// Serialize writes the votes and the per-height tallies to w.
func (p *Payments) Serialize(w io.Writer) error {
	p.votesMtx.Lock()
	defer p.votesMtx.Unlock()

	if err := wire.WriteVarInt(w, 0, uint64(len(p.votes))); err != nil {
		return err
	}
	for _, v := range p.votes {
		if err := v.BtcEncode(w, 0, wire.BaseEncoding); err != nil {
			return err
		}
	}

	if err := wire.WriteVarInt(w, 0, uint64(len(p.blocks))); err != nil {
		return err
	}
	for _, b := range p.blocks {
		if err := mnwire.WriteInt32(w, b.Height); err != nil {
			return err
		}
		if err := wire.WriteVarInt(w, 0, uint64(len(b.Payees))); err != nil {
			return err
		}
		for _, payee := range b.Payees {
			if err := wire.WriteVarBytes(w, 0, payee.Script); err != nil {
				return err
			}
			if err := mnwire.WriteInt32(w, int32(payee.Votes)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Deserialize replaces the votes and tallies with the contents read from r.
// The one-vote-per-height index is rebuilt from the votes.  On error the
// ledger is left unchanged.
func (p *Payments) Deserialize(r io.Reader) error {
	n, err := readCount(r, "vote")
	if err != nil {
		return err
	}
	votes := make(map[chainhash.Hash]*Winner, n)
	lastVotes := make(map[wire.OutPoint]int32, n)
	for i := uint64(0); i < n; i++ {
		var w Winner
		if err := w.BtcDecode(r, 0, wire.BaseEncoding); err != nil {
			return err
		}
		votes[w.Hash()] = &w
		if last, ok := lastVotes[w.voter()]; !ok || w.BlockHeight > last {
			lastVotes[w.voter()] = w.BlockHeight
		}
	}

	n, err = readCount(r, "block")
	if err != nil {
		return err
	}
	blocks := make(map[int32]*BlockPayees, n)
	for i := uint64(0); i < n; i++ {
		height, err := mnwire.ReadInt32(r)
		if err != nil {
			return err
		}
		count, err := readCount(r, "payee")
		if err != nil {
			return err
		}
		b := &BlockPayees{Height: height, Payees: make([]Payee, 0, count)}
		for j := uint64(0); j < count; j++ {
			script, err := wire.ReadVarBytes(r, 0, mnwire.MaxScriptSize,
				"payee script")
			if err != nil {
				return err
			}
			votes, err := mnwire.ReadInt32(r)
			if err != nil {
				return err
			}
			b.Payees = append(b.Payees, Payee{Script: script, Votes: int(votes)})
		}
		blocks[height] = b
	}

	p.votesMtx.Lock()
	p.votes = votes
	p.blocks = blocks
	p.lastVotes = lastVotes
	p.votesMtx.Unlock()
	return nil
}

func newPaymentsStore(path string, net wire.BitcoinNet) *flatdb.Store {
	return flatdb.New(path, PaymentsMagic, net)
}

// DumpPayments writes the votes to the dump file at path.
func DumpPayments(path string, p *Payments) error {
	scratch := New(&p.cfg)
	return newPaymentsStore(path, p.cfg.Params.Net).Dump(p, scratch)
}

// LoadPayments reads the dump file at path into p.  Unless dryRun is set,
// votes for old heights are dropped after loading.
func LoadPayments(path string, p *Payments, dryRun bool) (flatdb.ReadResult, error) {
	result, err := newPaymentsStore(path, p.cfg.Params.Net).Read(p)
	if err != nil {
		return result, err
	}
	if !dryRun {
		p.CleanPaymentList()
	}
	log.Debugf("Masternode payments loaded: %v", p)
	return result, nil
}
