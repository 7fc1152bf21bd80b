// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mnpayments

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/divitproject/mnd/mnpeer"
	"github.com/divitproject/mnd/mnwire"
	"github.com/divitproject/mnd/msgsign"
)

const (
	// SignaturesRequired is the number of votes a payee needs before
	// blocks are required to pay it.
	SignaturesRequired = 6

	// SignaturesTotal is the number of top ranked masternodes allowed to
	// vote for a height.
	SignaturesTotal = 10
)

// Winner is a vote by a masternode for the payee of a block.
type Winner struct {
	mnwire.MsgMNWinner
}

// NewWinner returns an unsigned vote by the masternode with collateral op.
func NewWinner(op wire.OutPoint, height int32, payee []byte) *Winner {
	return &Winner{MsgMNWinner: mnwire.MsgMNWinner{
		VinMasternode: mnwire.NewTxIn(op),
		BlockHeight:   height,
		Payee:         payee,
	}}
}

// voter returns the collateral of the voting masternode.
func (w *Winner) voter() wire.OutPoint {
	return w.VinMasternode.PreviousOutPoint
}

func (w *Winner) signatureMessage() string {
	// Unparseable scripts still sign their partial disassembly.
	payee, _ := txscript.DisasmString(w.Payee)
	return mnwire.OutPointShort(&w.VinMasternode.PreviousOutPoint) +
		strconv.FormatInt(int64(w.BlockHeight), 10) + payee
}

// Sign signs the vote with the operator key.
func (w *Winner) Sign(key *msgsign.Key, magic string) error {
	sig, err := key.Sign(magic, w.signatureMessage())
	if err != nil {
		return fmt.Errorf("failed to sign winner: %w", err)
	}
	w.Sig = sig
	return nil
}

// VerifySignature checks the vote against the voter's operator key.
func (w *Winner) VerifySignature(pubKeyOperator []byte, magic string) error {
	err := msgsign.Verify(pubKeyOperator, w.Sig, magic, w.signatureMessage())
	if err != nil {
		return ruleError(ErrBadSignature, fmt.Sprintf("bad masternode "+
			"winner signature %s: %v", w.VinMasternode.PreviousOutPoint.Hash,
			err))
	}
	return nil
}

// Relay announces the vote to the network.
func (w *Winner) Relay(network mnpeer.Network) {
	if network == nil {
		return
	}
	hash := w.Hash()
	network.RelayInventory(wire.NewInvVect(mnwire.InvTypeMasternodeWinner, &hash))
}

// String returns the vote as vin, height, payee and signature length.
func (w *Winner) String() string {
	payee, _ := txscript.DisasmString(w.Payee)
	return fmt.Sprintf("%s, %d, %s, %d", mnwire.TxInString(&w.VinMasternode),
		w.BlockHeight, payee, len(w.Sig))
}

// Payee is a payment script and the number of votes it received.
type Payee struct {
	Script []byte
	Votes  int
}

// BlockPayees is the vote tally for a block height.
type BlockPayees struct {
	Height int32
	Payees []Payee
}

// AddPayee adds increment votes to script.
func (b *BlockPayees) AddPayee(script []byte, increment int) {
	for i := range b.Payees {
		if bytes.Equal(b.Payees[i].Script, script) {
			b.Payees[i].Votes += increment
			return
		}
	}
	b.Payees = append(b.Payees, Payee{Script: script, Votes: increment})
}

// Payee returns the script with the most votes.  The earliest payee wins a
// tie.
func (b *BlockPayees) Payee() ([]byte, bool) {
	votes := -1
	var script []byte
	for _, p := range b.Payees {
		if p.Votes > votes {
			script = p.Script
			votes = p.Votes
		}
	}
	return script, votes > -1
}

// HasPayeeWithVotes reports whether script received at least votes votes.
func (b *BlockPayees) HasPayeeWithVotes(script []byte, votes int) bool {
	for _, p := range b.Payees {
		if p.Votes >= votes && bytes.Equal(p.Script, script) {
			return true
		}
	}
	return false
}

// IsTransactionValid reports whether tx pays required to a payee that
// reached SignaturesRequired votes.  Without such a payee every transaction
// is valid.
func (b *BlockPayees) IsTransactionValid(tx *wire.MsgTx, required btcutil.Amount,
	chain *chaincfg.Params) bool {

	var maxSignatures int
	for _, p := range b.Payees {
		if p.Votes >= maxSignatures && p.Votes >= SignaturesRequired {
			maxSignatures = p.Votes
		}
	}

	// Not enough signatures on any payee, approve whichever is the longest
	// chain.
	if maxSignatures < SignaturesRequired {
		return true
	}

	var possible []string
	for _, p := range b.Payees {
		var found bool
		for _, out := range tx.TxOut {
			if !bytes.Equal(p.Script, out.PkScript) {
				continue
			}
			if btcutil.Amount(out.Value) >= required {
				found = true
			} else {
				log.Debugf("Masternode payment is out of drift range. "+
					"Paid=%v Min=%v", btcutil.Amount(out.Value), required)
			}
		}
		if p.Votes < SignaturesRequired {
			continue
		}
		if found {
			return true
		}
		possible = append(possible, PayeeString(p.Script, chain))
	}

	log.Debugf("Missing required payment of %v to %s", required,
		strings.Join(possible, ","))
	return false
}

// RequiredPaymentsString lists the payees as "address:votes".
func (b *BlockPayees) RequiredPaymentsString(chain *chaincfg.Params) string {
	if len(b.Payees) == 0 {
		return "Unknown"
	}
	parts := make([]string, 0, len(b.Payees))
	for _, p := range b.Payees {
		parts = append(parts, PayeeString(p.Script, chain)+":"+
			strconv.Itoa(p.Votes))
	}
	return strings.Join(parts, ", ")
}

// copy returns a deep copy of the tally.
func (b *BlockPayees) copy() BlockPayees {
	payees := make([]Payee, len(b.Payees))
	copy(payees, b.Payees)
	return BlockPayees{Height: b.Height, Payees: payees}
}

// PayeeString returns the address paid by script, or its hex form when the
// script pays no single standard address.
func PayeeString(script []byte, chain *chaincfg.Params) string {
	_, addrs, _, err := txscript.ExtractPkScriptAddrs(script, chain)
	if err != nil || len(addrs) != 1 {
		return fmt.Sprintf("%x", script)
	}
	return addrs[0].EncodeAddress()
}
