// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package masternode

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/divitproject/mnd/chainview"
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

	// testChainLen is the number of blocks in the harness chain.  Blocks
	// are a minute apart and the last one is a minute before testStart.
	testChainLen = 30

	// testCollateralHeight is the height collateral outputs are created
	// at.
	testCollateralHeight = 1
)

type fakeSporks map[spork.ID]bool

func (s fakeSporks) IsActive(id spork.ID) bool { return s[id] }

type fakeNotifier struct {
	mtx      sync.Mutex
	unsynced bool
	added    map[chainhash.Hash]int
	forgot   map[chainhash.Hash]int
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
	return !n.unsynced
}

func (n *fakeNotifier) AddedMasternodeList(hash chainhash.Hash) {
	n.mtx.Lock()
	n.added[hash]++
	n.mtx.Unlock()
}

func (n *fakeNotifier) ForgetMasternodeList(hash chainhash.Hash) {
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

type harness struct {
	t       *testing.T
	params  *netparams.Params
	chain   *chainview.MemChain
	sporks  fakeSporks
	network *peertest.Network
	notify  *fakeNotifier
	now     int64
	m       *Manager
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
	}
	h.m = New(&Config{
		Params:     params,
		Chain:      chain,
		Sporks:     h.sporks,
		Network:    h.network,
		TimeSource: func() time.Time { return time.Unix(h.now, 0) },
	})
	h.m.SetSyncNotifier(h.notify)
	return h
}

type testMasternode struct {
	op   wire.OutPoint
	vin  wire.TxIn
	addr mnwire.ServiceAddr
	coll *msgsign.Key
	oper *msgsign.Key
}

// newMasternode creates keys for a masternode and funds its collateral.
func (h *harness) newMasternode(i int) *testMasternode {
	t := h.t
	t.Helper()

	coll, err := msgsign.NewKey()
	require.NoError(t, err)
	oper, err := msgsign.NewKey()
	require.NoError(t, err)

	op := wire.OutPoint{
		Hash:  chainhash.HashH([]byte(fmt.Sprintf("collateral %d", i))),
		Index: uint32(i % 3),
	}
	script, err := msgsign.PayToPubKeyHashScript(coll.PubKey())
	require.NoError(t, err)
	h.chain.AddUtxo(op, h.params.CollateralAmount, script, testCollateralHeight)

	addr, err := mnwire.ParseServiceAddr(fmt.Sprintf("8.8.%d.%d:%d", i/250,
		i%250+1, h.params.DefaultPort))
	require.NoError(t, err)

	return &testMasternode{
		op:   op,
		vin:  mnwire.NewTxIn(op),
		addr: addr,
		coll: coll,
		oper: oper,
	}
}

// anchor returns the hash of the block depth blocks below the tip.
func (h *harness) anchor(depth int32) chainhash.Hash {
	h.t.Helper()
	tip, err := h.chain.BestHeight()
	require.NoError(h.t, err)
	hash, err := h.chain.BlockHash(tip - depth)
	require.NoError(h.t, err)
	return hash
}

func (h *harness) broadcast(tm *testMasternode, sigTime int64) *Broadcast {
	h.t.Helper()
	b, err := CreateBroadcast(h.params, tm.vin, tm.addr, tm.coll, tm.oper,
		h.anchor(12), sigTime)
	require.NoError(h.t, err)
	return b
}

func (h *harness) ping(tm *testMasternode, sigTime int64, anchor chainhash.Hash) *Ping {
	h.t.Helper()
	p := NewPing(tm.vin, anchor, sigTime)
	require.NoError(h.t, p.Sign(tm.oper, h.params.MessageMagic, sigTime))
	return p
}

// announce feeds a fresh announcement through the message handler and
// requires it to be listed.
func (h *harness) announce(tm *testMasternode, node *peertest.Node) *Broadcast {
	h.t.Helper()
	b := h.broadcast(tm, h.now)
	h.m.ProcessMessage(node, &b.MsgMNBroadcast)
	_, ok := h.m.Find(tm.op)
	require.True(h.t, ok, "announcement of %v not accepted", tm.op)
	return b
}

// addRecord lists an enabled unit test record announced age seconds ago
// and pinged recently.
func (h *harness) addRecord(i int, age int64) *testMasternode {
	h.t.Helper()
	tm := h.newMasternode(i)
	mn := &Masternode{
		Vin:              tm.vin,
		Addr:             tm.addr,
		PubKeyCollateral: tm.coll.PubKey(),
		PubKeyOperator:   tm.oper.PubKey(),
		SigTime:          h.now - age,
		LastPing: mnwire.MsgMNPing{
			Vin:       tm.vin,
			BlockHash: h.anchor(1),
			SigTime:   h.now - 60,
		},
		ActiveState: StateEnabled,
		Protocol:    h.params.ProtocolVersion,
		UnitTest:    true,
	}
	require.True(h.t, h.m.Add(mn))
	return tm
}

func newTestNode(addr string) *peertest.Node {
	return peertest.NewNode(addr, netparams.RegTestParams.ProtocolVersion)
}
