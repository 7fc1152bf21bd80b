// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mnpayments

import (
	"testing"

	"github.com/divitproject/mnd/masternode"
	"github.com/stretchr/testify/require"
)

func (h *harness) info(tm *testMasternode) masternode.Info {
	h.t.Helper()
	info, ok := h.mns.Find(tm.op)
	require.True(h.t, ok)
	return info
}

// TestNextInQueueSkipsScheduled checks that a masternode already voted to
// be paid in the next few blocks is not picked again.
func TestNextInQueueSkipsScheduled(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	tms := h.addMasternodes(12, testAge)
	height := h.tip() + 1

	first, count, ok := h.p.GetNextMasternodeInQueueForPayment(height, true)
	require.True(t, ok)
	require.Equal(t, 12, count)

	// The same inputs give the same pick.
	again, _, ok := h.p.GetNextMasternodeInQueueForPayment(height, true)
	require.True(t, ok)
	require.Equal(t, first.OutPoint(), again.OutPoint())

	payee := h.nodes[first.OutPoint()].payee
	require.NoError(t, h.p.AddWinningMasternode(h.vote(tms[0], h.tip()+3, payee)))
	require.True(t, h.p.IsScheduled(&first, height))
	require.False(t, h.p.IsScheduled(&first, h.tip()+3))

	next, count, ok := h.p.GetNextMasternodeInQueueForPayment(height, true)
	require.True(t, ok)
	require.Equal(t, 11, count)
	require.NotEqual(t, first.OutPoint(), next.OutPoint())
}

func TestNextInQueueFilters(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	tms := h.addMasternodes(12, testAge)
	height := h.tip() + 1

	// Announced recently, skipped while the network has enough others.
	young := h.addMasternode(12, 700)
	_, count, ok := h.p.GetNextMasternodeInQueueForPayment(height, true)
	require.True(t, ok)
	require.Equal(t, 12, count)
	_, count, ok = h.p.GetNextMasternodeInQueueForPayment(height, false)
	require.True(t, ok)
	require.Equal(t, 13, count)

	// Collateral with fewer confirmations than there are masternodes.
	h.chain.AddUtxo(tms[0].op, h.params.CollateralAmount, tms[0].payee,
		h.tip()-5)
	_, count, _ = h.p.GetNextMasternodeInQueueForPayment(height, false)
	require.Equal(t, 12, count)

	h.mns.Remove(young.op)
	h.mns.Remove(tms[1].op)
	_, count, _ = h.p.GetNextMasternodeInQueueForPayment(height, false)
	require.Equal(t, 10, count)
}

// TestNextInQueueYoungNetwork falls back to unfiltered candidates when the
// announcement age filter leaves too few.
func TestNextInQueueYoungNetwork(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.addMasternodes(6, 700)
	next, count, ok := h.p.GetNextMasternodeInQueueForPayment(h.tip()+1, true)
	require.True(t, ok)
	require.Equal(t, 6, count)
	_, listed := h.nodes[next.OutPoint()]
	require.True(t, listed)
}

func TestNextInQueueEmpty(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	_, count, ok := h.p.GetNextMasternodeInQueueForPayment(h.tip()+1, true)
	require.False(t, ok)
	require.Zero(t, count)

	// No score block.
	h.addMasternodes(3, testAge)
	_, _, ok = h.p.GetNextMasternodeInQueueForPayment(h.tip()+scoreDepth+2, true)
	require.False(t, ok)
}

// TestLastPaid finds payments with at least two votes inside the payment
// window.
func TestLastPaid(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	tms := h.addMasternodes(12, testAge)
	target := tms[0]
	info := h.info(target)
	offset := tieBreaker(&info) % lastPaidOffsetRange

	require.Zero(t, h.p.GetLastPaid(&info))
	require.Equal(t, int64(month)+tieBreaker(&info), h.p.SecondsSincePayment(&info))

	// A single vote does not count as paid.
	paidAt := h.tip() - 5
	require.NoError(t, h.p.AddWinningMasternode(h.vote(tms[1], paidAt,
		target.payee)))
	require.Zero(t, h.p.GetLastPaid(&info))

	require.NoError(t, h.p.AddWinningMasternode(h.vote(tms[2], paidAt,
		target.payee)))
	blockTime, err := h.chain.BlockTime(paidAt)
	require.NoError(t, err)
	require.Equal(t, blockTime.Unix()+offset, h.p.GetLastPaid(&info))
	require.Equal(t, h.now-blockTime.Unix()-offset,
		h.p.SecondsSincePayment(&info))

	// Payments older than the window are not looked at.
	other := h.info(tms[3])
	paidLongAgo := h.tip() - h.p.windowSize() - 2
	require.NoError(t, h.p.AddWinningMasternode(h.vote(tms[4], paidLongAgo,
		tms[3].payee)))
	require.NoError(t, h.p.AddWinningMasternode(h.vote(tms[5], paidLongAgo,
		tms[3].payee)))
	require.Zero(t, h.p.GetLastPaid(&other))
}

func TestTieBreakerDeterministic(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	tms := h.addMasternodes(2, testAge)
	a, b := h.info(tms[0]), h.info(tms[1])
	require.Equal(t, tieBreaker(&a), tieBreaker(&a))
	require.NotEqual(t, tieBreaker(&a), tieBreaker(&b))
	require.Positive(t, tieBreaker(&a))

	a.SigTime++
	require.NotEqual(t, tieBreaker(&a), tieBreaker(&b))
}
