// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mnpayments

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/divitproject/mnd/chainview"
	"github.com/divitproject/mnd/masternode"
	"github.com/divitproject/mnd/mnpeer/peertest"
	"github.com/divitproject/mnd/mnwire"
	"github.com/divitproject/mnd/msgsign"
	"github.com/divitproject/mnd/netparams"
	"github.com/divitproject/mnd/spork"
	"github.com/stretchr/testify/require"
)

const (
	// testStart is the adjusted time every harness starts at.
	testStart = 1600000000

	// testChainLen is the number of blocks in the harness chain, enough
	// for votes above the tip to have a score block.
	testChainLen = 150

	// testAge is how long ago harness masternodes were announced.  It is
	// old enough to pass the announcement age filter of the queue.
	testAge = 3000
)

// testReward pays 25 coins per block, 60% to the masternode and 10% to the
// secondary payee.
var testReward = netparams.FlatReward{
	Value:           25 * btcutil.SatoshiPerBitcoin,
	MasternodeShare: 60,
	SecondaryShare:  10,
}

type fakeSporks map[spork.ID]bool

func (s fakeSporks) IsActive(id spork.ID) bool { return s[id] }

type fakeNotifier struct {
	mtx          sync.Mutex
	chainUnsync  bool
	listUnsynced bool
	added        map[chainhash.Hash]int
	forgot       map[chainhash.Hash]int
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{
		added:  make(map[chainhash.Hash]int),
		forgot: make(map[chainhash.Hash]int),
	}
}

func (n *fakeNotifier) IsBlockchainSynced() bool {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	return !n.chainUnsync
}

func (n *fakeNotifier) IsSynced() bool {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	return !n.listUnsynced
}

func (n *fakeNotifier) AddedMasternodeWinner(hash chainhash.Hash) {
	n.mtx.Lock()
	n.added[hash]++
	n.mtx.Unlock()
}

func (n *fakeNotifier) ForgetMasternodeWinner(hash chainhash.Hash) {
	n.mtx.Lock()
	n.forgot[hash]++
	n.mtx.Unlock()
}

func (n *fakeNotifier) addedCount(hash chainhash.Hash) int {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	return n.added[hash]
}

func (n *fakeNotifier) forgotCount(hash chainhash.Hash) int {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	return n.forgot[hash]
}

type fakeAgent struct {
	op      wire.OutPoint
	started bool
}

func (a *fakeAgent) CollateralOutPoint() (wire.OutPoint, bool) {
	return a.op, a.started
}

type testMasternode struct {
	op    wire.OutPoint
	vin   wire.TxIn
	coll  *msgsign.Key
	oper  *msgsign.Key
	payee []byte
}

type harness struct {
	t       *testing.T
	params  *netparams.Params
	chain   *chainview.MemChain
	sporks  fakeSporks
	network *peertest.Network
	notify  *fakeNotifier
	now     int64
	mns     *masternode.Manager
	nodes   map[wire.OutPoint]*testMasternode
	cfg     Config
	p       *Payments
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	params := netparams.RegTestParams
	return newHarnessWithParams(t, &params)
}

func newHarnessWithParams(t *testing.T, params *netparams.Params) *harness {
	t.Helper()

	chain := chainview.NewMemChain()
	for i := 0; i < testChainLen; i++ {
		chain.AddBlock(time.Unix(testStart-int64(testChainLen-i)*60, 0))
	}
	h := &harness{
		t:       t,
		params:  params,
		chain:   chain,
		sporks:  make(fakeSporks),
		network: peertest.NewNetwork(),
		notify:  newFakeNotifier(),
		now:     testStart,
		nodes:   make(map[wire.OutPoint]*testMasternode),
	}
	timeSource := func() time.Time { return time.Unix(h.now, 0) }
	h.mns = masternode.New(&masternode.Config{
		Params:     params,
		Chain:      chain,
		Sporks:     h.sporks,
		TimeSource: timeSource,
	})
	h.cfg = Config{
		Params:     params,
		Chain:      chain,
		Registry:   h.mns,
		Sporks:     h.sporks,
		Network:    h.network,
		Reward:     testReward,
		TimeSource: timeSource,
	}
	h.p = New(&h.cfg)
	h.p.SetSyncNotifier(h.notify)
	return h
}

// tip returns the height of the harness chain tip.
func (h *harness) tip() int32 {
	h.t.Helper()
	tip, err := h.chain.BestHeight()
	require.NoError(h.t, err)
	return tip
}

// addMasternodes lists n enabled masternodes announced age seconds ago.
func (h *harness) addMasternodes(n int, age int64) []*testMasternode {
	h.t.Helper()
	tms := make([]*testMasternode, 0, n)
	for i := 0; i < n; i++ {
		tms = append(tms, h.addMasternode(len(h.nodes), age))
	}
	return tms
}

func (h *harness) addMasternode(i int, age int64) *testMasternode {
	t := h.t
	t.Helper()

	coll, err := msgsign.NewKey()
	require.NoError(t, err)
	oper, err := msgsign.NewKey()
	require.NoError(t, err)
	payee, err := msgsign.PayToPubKeyHashScript(coll.PubKey())
	require.NoError(t, err)

	op := wire.OutPoint{
		Hash:  chainhash.HashH([]byte(fmt.Sprintf("collateral %d", i))),
		Index: uint32(i % 2),
	}
	h.chain.AddUtxo(op, h.params.CollateralAmount, payee, 1)

	addr, err := mnwire.ParseServiceAddr(fmt.Sprintf("9.9.%d.%d:%d", i/250,
		i%250+1, h.params.DefaultPort))
	require.NoError(t, err)

	anchor, err := h.chain.BlockHash(h.tip() - 1)
	require.NoError(t, err)

	tm := &testMasternode{
		op:    op,
		vin:   mnwire.NewTxIn(op),
		coll:  coll,
		oper:  oper,
		payee: payee,
	}
	mn := &masternode.Masternode{
		Vin:              tm.vin,
		Addr:             addr,
		PubKeyCollateral: coll.PubKey(),
		PubKeyOperator:   oper.PubKey(),
		SigTime:          h.now - age,
		LastPing: mnwire.MsgMNPing{
			Vin:       tm.vin,
			BlockHash: anchor,
			SigTime:   h.now - 60,
		},
		ActiveState: masternode.StateEnabled,
		Protocol:    h.params.ProtocolVersion,
		UnitTest:    true,
	}
	require.True(t, h.mns.Add(mn))
	h.nodes[op] = tm
	return tm
}

// ranked returns the listed masternodes in rank order for votes at height.
func (h *harness) ranked(height int32) []*testMasternode {
	h.t.Helper()
	ranks := h.mns.GetRanks(height-scoreDepth, h.params.ActiveProtocol)
	require.NotEmpty(h.t, ranks)
	tms := make([]*testMasternode, 0, len(ranks))
	for _, r := range ranks {
		tm, ok := h.nodes[r.OutPoint()]
		require.True(h.t, ok)
		tms = append(tms, tm)
	}
	return tms
}

// vote returns a vote by voter for payee at height signed with the voter's
// operator key.
func (h *harness) vote(voter *testMasternode, height int32, payee []byte) *Winner {
	h.t.Helper()
	w := NewWinner(voter.op, height, payee)
	require.NoError(h.t, w.Sign(voter.oper, h.params.MessageMagic))
	return w
}

// payTx returns a transaction with a reward output followed by a payment
// of amount to script.
func payTx(script []byte, amount btcutil.Amount) *wire.MsgTx {
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxOut(wire.NewTxOut(int64(10*btcutil.SatoshiPerBitcoin), []byte{0x51}))
	tx.AddTxOut(wire.NewTxOut(int64(amount), script))
	return tx
}

func newTestNode(addr string) *peertest.Node {
	return peertest.NewNode(addr, netparams.RegTestParams.ProtocolVersion)
}
