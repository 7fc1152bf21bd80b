// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mnpayments

import (
	"errors"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/divitproject/mnd/msgsign"
	"github.com/divitproject/mnd/spork"
)

// ErrNoTip is returned by FillBlockPayee when the chain has no tip to build
// on.
var ErrNoTip = errors.New("no chain tip")

// payeeKind selects one of the payments a block can carry.
type payeeKind int

const (
	payPrimary payeeKind = iota
	paySecondary
)

// fillRule maps the available payees and the block type to the payments
// added to the reward transaction.
type fillRule struct {
	hasPrimary   bool
	hasSecondary bool
	proofOfStake bool
	pays         []payeeKind
}

// fillRules covers every combination of inputs.  Proof-of-stake blocks
// append the payments and take them from the last output already present.
// Proof-of-work blocks keep the reward output, set it to the block value
// less the payments and follow it with the payments.
var fillRules = []fillRule{
	{true, true, true, []payeeKind{payPrimary, paySecondary}},
	{true, true, false, []payeeKind{payPrimary, paySecondary}},
	{true, false, true, []payeeKind{payPrimary}},
	{true, false, false, []payeeKind{payPrimary}},
	{false, true, true, []payeeKind{paySecondary}},
	{false, true, false, []payeeKind{paySecondary}},
	{false, false, true, nil},
	{false, false, false, nil},
}

func lookupFillRule(hasPrimary, hasSecondary, proofOfStake bool) fillRule {
	for _, r := range fillRules {
		if r.hasPrimary == hasPrimary && r.hasSecondary == hasSecondary &&
			r.proofOfStake == proofOfStake {

			return r
		}
	}
	panic("fill rule table is incomplete")
}

// allocation is a payment to add to the reward transaction.
type allocation struct {
	script []byte
	amount btcutil.Amount
}

// applyFill adds the allocations to tx.  The reward transaction must carry
// at least one output.
func applyFill(tx *wire.MsgTx, proofOfStake bool, blockValue btcutil.Amount,
	allocs []allocation) {

	var total btcutil.Amount
	for _, a := range allocs {
		total += a.amount
	}

	if proofOfStake {
		// The stake reward may be split across several outputs, so the
		// payments come out of the last one.
		if len(allocs) == 0 {
			return
		}
		last := len(tx.TxOut) - 1
		for _, a := range allocs {
			tx.AddTxOut(wire.NewTxOut(int64(a.amount), a.script))
		}
		tx.TxOut[last].Value -= int64(total)
		return
	}

	if len(allocs) > 0 {
		tx.TxOut = tx.TxOut[:1]
		for _, a := range allocs {
			tx.AddTxOut(wire.NewTxOut(int64(a.amount), a.script))
		}
	}
	tx.TxOut[0].Value = int64(blockValue - total)
}

// FillBlockPayee adds the masternode payment for the block after the tip to
// the reward transaction tx: the coinbase of a proof-of-work block or the
// coinstake of a proof-of-stake block.  The payee is the one with the most
// votes, or the current winner when nobody voted.  When dualReward is set
// and secondary is not empty, secondary receives the secondary payment as
// well.  Fees are added to the proof-of-work reward.
func (p *Payments) FillBlockPayee(tx *wire.MsgTx, fees btcutil.Amount,
	proofOfStake, dualReward bool, secondary []byte) error {

	if len(tx.TxOut) == 0 {
		return errors.New("reward transaction has no outputs")
	}
	tip, err := p.cfg.Chain.BestHeight()
	if err != nil {
		return ErrNoTip
	}
	height := tip + 1
	blockValue := p.cfg.Reward.BlockValue(height) + fees

	if !proofOfStake && p.cfg.Params.IsTestNet() {
		tx.TxOut[0].Value = int64(blockValue)
		return nil
	}

	primary, hasPrimary := p.GetBlockPayee(height)
	if !hasPrimary {
		winner, ok := p.cfg.Registry.GetCurrentMasternode(1, 0, 0)
		if ok {
			primary, err = msgsign.PayToPubKeyHashScript(winner.PubKeyCollateral)
			hasPrimary = err == nil
		}
		if !hasPrimary {
			log.Debugf("Failed to detect masternode to pay")
		}
	}
	hasSecondary := dualReward && len(secondary) > 0

	rule := lookupFillRule(hasPrimary, hasSecondary, proofOfStake)
	allocs := make([]allocation, 0, len(rule.pays))
	for _, kind := range rule.pays {
		switch kind {
		case payPrimary:
			amount := p.cfg.Reward.MasternodePayment(height, blockValue, 0)
			allocs = append(allocs, allocation{primary, amount})
			log.Debugf("Masternode payment of %v to %s", amount,
				PayeeString(primary, &p.cfg.Params.Chain))
		case paySecondary:
			amount := p.cfg.Reward.SecondaryPayment(height, blockValue)
			allocs = append(allocs, allocation{secondary, amount})
			log.Debugf("Secondary payment of %v to %s", amount,
				PayeeString(secondary, &p.cfg.Params.Chain))
		}
	}
	applyFill(tx, proofOfStake, blockValue, allocs)
	return nil
}

// requiredPayment returns the least amount the winner of height must be
// paid.  The registry size is padded by the network's count drift since
// peers do not all see the same list, and the payment grows with it.
func (p *Payments) requiredPayment(height int32) btcutil.Amount {
	var count int
	if p.sporkActive(spork.MasternodePaymentEnforcement) {
		// Newly activated masternodes are left out of the stable count.
		count = p.cfg.Registry.StableSize()
	} else {
		count = p.cfg.Registry.Size()
	}
	count += p.cfg.Params.MasternodeCountDrift

	reward := p.cfg.Reward.BlockValue(height)
	return p.cfg.Reward.MasternodePayment(height, reward, count)
}

// IsTransactionValid reports whether tx pays the payee voted for height.  A
// height without a payee at SignaturesRequired votes accepts any
// transaction.
func (p *Payments) IsTransactionValid(tx *wire.MsgTx, height int32) bool {
	required := p.requiredPayment(height)

	p.votesMtx.Lock()
	defer p.votesMtx.Unlock()
	payees, ok := p.blocks[height]
	if !ok {
		return true
	}
	return payees.IsTransactionValid(tx, required, &p.cfg.Params.Chain)
}

// IsBlockPayeeValid checks the masternode payment of block at height.  The
// reward transaction is the coinstake after the last proof-of-work block
// and the coinbase before.  Blocks are accepted while the masternode data
// is not synced or payment enforcement is off.
func (p *Payments) IsBlockPayeeValid(block *wire.MsgBlock, height int32) bool {
	if !p.synced() {
		log.Debugf("Client not synced, skipping block payee checks")
		return true
	}
	if len(block.Transactions) == 0 {
		return false
	}

	tx := block.Transactions[0]
	if height > p.cfg.Params.LastPoWBlock && len(block.Transactions) > 1 {
		tx = block.Transactions[1]
	}
	if p.IsTransactionValid(tx, height) {
		return true
	}
	log.Debugf("Invalid mn payment detected %v at height %d (block time %v)",
		tx.TxHash(), height, block.Header.Timestamp)

	if p.sporkActive(spork.MasternodePaymentEnforcement) {
		return false
	}
	log.Debugf("Masternode payment enforcement is disabled, accepting block")
	return true
}
