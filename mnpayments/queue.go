// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mnpayments

import (
	"bytes"
	"math/big"
	"sort"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/divitproject/mnd/chainview"
	"github.com/divitproject/mnd/masternode"
	"github.com/divitproject/mnd/mnwire"
	"github.com/divitproject/mnd/msgsign"
)

const (
	// scheduleLookahead is how many blocks above the tip are checked for
	// an already scheduled payment.  It leaves room for the latest two
	// winners to propagate.
	scheduleLookahead = 8

	// month is the payment age assumed for masternodes never seen paid.
	month = 60 * 60 * 24 * 30

	// lastPaidOffsetRange spreads masternodes paid in the same block over
	// two and a half minutes.
	lastPaidOffsetRange = 150
)

// tieBreaker returns the compact form of the hash of vin and sigTime, a
// deterministic per-masternode value.
func tieBreaker(info *masternode.Info) int64 {
	var buf bytes.Buffer
	_ = mnwire.WriteTxIn(&buf, 0, &info.Vin)
	_ = mnwire.WriteInt64(&buf, info.SigTime)
	hash := chainhash.DoubleHashH(buf.Bytes())
	return int64(blockchain.BigToCompact(blockchain.HashToBig(&hash)))
}

// IsScheduled reports whether the payee of info already has the most votes
// for a height between the tip and scheduleLookahead blocks above it, other
// than notHeight.
func (p *Payments) IsScheduled(info *masternode.Info, notHeight int32) bool {
	tip, err := p.cfg.Chain.BestHeight()
	if err != nil {
		return false
	}
	payee, err := msgsign.PayToPubKeyHashScript(info.PubKeyCollateral)
	if err != nil {
		return false
	}

	p.votesMtx.Lock()
	defer p.votesMtx.Unlock()
	for h := tip; h <= tip+scheduleLookahead; h++ {
		if h == notHeight {
			continue
		}
		if script, ok := p.blockPayee(h); ok && bytes.Equal(script, payee) {
			return true
		}
	}
	return false
}

// GetLastPaid returns the time the masternode was last paid, offset by a
// deterministic amount to break ties, or zero when no payment is found in
// the last 1.25 payment cycles.
func (p *Payments) GetLastPaid(info *masternode.Info) int64 {
	return p.lastPaid(info, p.windowSize())
}

func (p *Payments) lastPaid(info *masternode.Info, window int32) int64 {
	tip, err := p.cfg.Chain.BestHeight()
	if err != nil {
		return 0
	}
	payee, err := msgsign.PayToPubKeyHashScript(info.PubKeyCollateral)
	if err != nil {
		return 0
	}
	offset := tieBreaker(info) % lastPaidOffsetRange

	var n int32
	for h := tip; h > 0; h-- {
		if n >= window {
			return 0
		}
		n++

		// A payee with at least two votes is enough for the network to
		// converge on the same schedule quickly.
		p.votesMtx.Lock()
		payees, ok := p.blocks[h]
		paid := ok && payees.HasPayeeWithVotes(payee, 2)
		p.votesMtx.Unlock()
		if !paid {
			continue
		}
		blockTime, err := p.cfg.Chain.BlockTime(h)
		if err != nil {
			return 0
		}
		return blockTime.Unix() + offset
	}
	return 0
}

// SecondsSincePayment returns how long ago the masternode was paid.  A
// masternode not paid for a month or more gets a month plus a
// deterministic amount.
func (p *Payments) SecondsSincePayment(info *masternode.Info) int64 {
	return p.secondsSincePayment(info, p.windowSize())
}

func (p *Payments) secondsSincePayment(info *masternode.Info, window int32) int64 {
	sec := p.now() - p.lastPaid(info, window)
	if sec < month {
		return sec
	}
	return month + tieBreaker(info)
}

type queueEntry struct {
	secondsSincePayment int64
	info                masternode.Info
}

// GetNextMasternodeInQueueForPayment picks the masternode to vote for at
// height.  Among the eligible masternodes, the tenth of the network paid
// longest ago competes on score at height-100.  With filterSigTime,
// masternodes announced less than a payment cycle ago are skipped unless
// that leaves fewer than a third of the network.  It also returns the
// number of eligible masternodes.
func (p *Payments) GetNextMasternodeInQueueForPayment(height int32, filterSigTime bool) (masternode.Info, int, bool) {
	reg := p.cfg.Registry
	mnCount := reg.CountEnabled(-1)
	minProto := reg.MinPaymentsProto()
	window := int32(float64(mnCount) * 1.25)
	now := p.now()

	var queue []queueEntry
	for _, info := range reg.Snapshot() {
		info := info
		if !info.IsEnabled() || info.Protocol < minProto {
			continue
		}

		// Scheduled up to scheduleLookahead blocks ahead, skip it.
		if p.IsScheduled(&info, height) {
			continue
		}

		// Too new, wait for a cycle.
		if filterSigTime && info.SigTime+int64(float64(mnCount)*2.6*60) > now {
			continue
		}

		// The collateral must have as many confirmations as there are
		// masternodes.
		age, err := chainview.InputAge(p.cfg.Chain, info.OutPoint())
		if err != nil {
			if !isRetryable(err) {
				log.Debugf("Input age of %s unavailable: %v",
					info.Vin.PreviousOutPoint.Hash, err)
			}
			continue
		}
		if int(age) < mnCount {
			continue
		}

		queue = append(queue, queueEntry{
			secondsSincePayment: p.secondsSincePayment(&info, window),
			info:                info,
		})
	}

	count := len(queue)

	// While the network upgrades, don't penalize nodes that recently
	// restarted.
	if filterSigTime && count < mnCount/3 {
		return p.GetNextMasternodeInQueueForPayment(height, false)
	}

	sort.SliceStable(queue, func(i, j int) bool {
		return queue[i].secondsSincePayment > queue[j].secondsSincePayment
	})

	blockHash, err := masternode.ScoreBlockHash(p.cfg.Chain, height-scoreDepth)
	if err != nil {
		return masternode.Info{}, count, false
	}

	// Look at the tenth of the network paid longest ago and pick the
	// highest score among them.
	tenth := mnCount / 10
	var (
		best *masternode.Info
		high = new(big.Int)
		seen int
	)
	for i := range queue {
		score := masternode.CalculateScore(queue[i].info.OutPoint(), blockHash)
		if score.Cmp(high) > 0 {
			high = score
			best = &queue[i].info
		}
		seen++
		if seen >= tenth {
			break
		}
	}
	if best == nil {
		return masternode.Info{}, count, false
	}
	return *best, count, true
}
