// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mnsync

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/divitproject/mnd/chainview"
	"github.com/divitproject/mnd/mnpeer"
	"github.com/divitproject/mnd/mnpeer/peertest"
	"github.com/divitproject/mnd/mnwire"
	"github.com/divitproject/mnd/netparams"
	"github.com/divitproject/mnd/spork"
	"github.com/stretchr/testify/require"
)

const testStart = 1600000000

type fakeSporks map[spork.ID]bool

func (s fakeSporks) IsActive(id spork.ID) bool { return s[id] }

type fakeRegistry struct {
	mtx     sync.Mutex
	enabled int
	asked   []string
}

func (r *fakeRegistry) CountEnabled(int) int {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return r.enabled
}

func (r *fakeRegistry) DsegUpdate(node mnpeer.Node) {
	r.mtx.Lock()
	r.asked = append(r.asked, node.Addr())
	r.mtx.Unlock()
}

type fakePayments uint32

func (p fakePayments) GetMinMasternodePaymentsProto() uint32 { return uint32(p) }

type fakeAgent struct {
	calls int
}

func (a *fakeAgent) ManageStatus() { a.calls++ }

type harness struct {
	t        *testing.T
	params   *netparams.Params
	chain    *chainview.MemChain
	sporks   fakeSporks
	registry *fakeRegistry
	network  *peertest.Network
	nodes    []*peertest.Node
	agent    *fakeAgent
	now      int64
	c        *Coordinator
}

// newHarness returns a coordinator on a network that is neither mainnet nor
// regtest, with peers connected and a recent chain tip.
func newHarness(t *testing.T, peers int) *harness {
	t.Helper()
	params := netparams.TestNetParams
	return newHarnessWithParams(t, &params, peers)
}

func newHarnessWithParams(t *testing.T, params *netparams.Params, peers int) *harness {
	t.Helper()

	chain := chainview.NewMemChain()
	chain.AddBlock(time.Unix(testStart-120, 0))
	chain.AddBlock(time.Unix(testStart-60, 0))

	h := &harness{
		t:        t,
		params:   params,
		chain:    chain,
		sporks:   make(fakeSporks),
		registry: &fakeRegistry{enabled: 8},
		network:  peertest.NewNetwork(),
		agent:    &fakeAgent{},
		now:      testStart,
	}
	for i := 0; i < peers; i++ {
		node := peertest.NewNode(fmt.Sprintf("10.0.0.%d:51476", i+1),
			params.ProtocolVersion)
		h.nodes = append(h.nodes, node)
		h.network.Connect(node)
	}
	h.c = New(&Config{
		Params:     params,
		Chain:      chain,
		Registry:   h.registry,
		Payments:   fakePayments(params.ActiveProtocol),
		Sporks:     h.sporks,
		Network:    h.network,
		TimeSource: func() time.Time { return time.Unix(h.now, 0) },
	})
	h.c.SetActiveAgent(h.agent)
	return h
}

// step runs one acting Process call followed by the idle ones.
func (h *harness) step() {
	for i := 0; i < Timeout; i++ {
		h.c.Process()
	}
}

func TestSyncStages(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 3)
	c := h.c
	require.Equal(t, mnwire.SyncInitial, c.RequestedAsset())
	require.Equal(t, "Synchronization pending...", c.GetSyncStatus())

	// Sporks are asked from one new peer per step.
	h.step()
	require.Equal(t, mnwire.SyncSporks, c.RequestedAsset())
	require.Equal(t, []string{mnwire.CmdGetSporks}, h.nodes[0].SentCommands())
	require.Empty(t, h.nodes[1].SentCommands())
	require.Empty(t, h.nodes[2].SentCommands())
	h.step()
	require.Equal(t, mnwire.SyncSporks, c.RequestedAsset())
	h.step()
	require.Equal(t, mnwire.SyncList, c.RequestedAsset())
	require.True(t, c.IsSporkListSynced())
	require.False(t, c.IsMasternodeListSynced())

	// The list is asked from each peer once.
	h.step()
	h.step()
	require.Equal(t, []string{h.nodes[0].Addr(), h.nodes[1].Addr()},
		h.registry.asked)

	// Items keep the stage open until none arrived for a while.
	c.AddedMasternodeList(chainhash.HashH([]byte("mnb")))
	h.now += Timeout * 2
	h.step()
	require.Equal(t, mnwire.SyncList, c.RequestedAsset())
	h.now++
	h.step()
	require.Equal(t, mnwire.SyncMNW, c.RequestedAsset())
	require.True(t, c.IsMasternodeListSynced())
	require.Equal(t, "Synchronizing masternode winners...", c.GetSyncStatus())

	// Votes are asked with 1.25 times the enabled count.
	for _, node := range h.nodes {
		node.Reset()
	}
	h.step()
	sent := h.nodes[0].Sent()
	require.Len(t, sent, 1)
	require.Equal(t, &mnwire.MsgMNGet{CountNeeded: 10}, sent[0])
	h.step()
	c.AddedMasternodeWinner(chainhash.HashH([]byte("mnw")))
	h.now += Timeout*2 + 1
	h.step()
	require.Equal(t, mnwire.SyncBudget, c.RequestedAsset())

	// Nothing comes for the budget; the stage times out and the local
	// masternode is started.
	h.step()
	require.Contains(t, h.nodes[0].SentCommands(), mnwire.CmdBudgetVoteSync)
	require.Zero(t, h.agent.calls)
	h.now += Timeout*5 + 1
	h.step()
	require.True(t, c.IsSynced())
	require.Equal(t, 1, h.agent.calls)
	require.Equal(t, "Synchronization finished", c.GetSyncStatus())

	// Synced stays put while masternodes are enabled.
	h.step()
	require.True(t, c.IsSynced())

	// Losing every masternode starts over.
	h.registry.mtx.Lock()
	h.registry.enabled = 0
	h.registry.mtx.Unlock()
	h.step()
	require.Equal(t, mnwire.SyncSporks, c.RequestedAsset())
}

func TestSyncStageTimeout(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		enforcement bool
		stage       int32
		want        int32
	}{
		{"list without enforcement", false, mnwire.SyncList, mnwire.SyncMNW},
		{"list with enforcement", true, mnwire.SyncList, mnwire.SyncFailed},
		{"votes without enforcement", false, mnwire.SyncMNW, mnwire.SyncBudget},
		{"votes with enforcement", true, mnwire.SyncMNW, mnwire.SyncFailed},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, 2)
			h.sporks[spork.MasternodePaymentEnforcement] = test.enforcement
			for h.c.RequestedAsset() != test.stage {
				h.c.GetNextAsset()
			}

			h.now += Timeout*5 + 1
			h.step()
			require.Equal(t, test.want, h.c.RequestedAsset())
			require.Empty(t, h.registry.asked)
		})
	}
}

func TestSyncFailureRetry(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 2)
	h.sporks[spork.MasternodePaymentEnforcement] = true
	h.c.GetNextAsset()
	h.c.GetNextAsset()
	h.now += Timeout*5 + 1
	h.step()
	require.Equal(t, mnwire.SyncFailed, h.c.RequestedAsset())
	require.Equal(t, "Synchronization failed", h.c.GetSyncStatus())
	stats := h.c.Stats()
	require.Equal(t, h.now, stats.LastFailure)
	require.Equal(t, 1, stats.CountFailures)

	h.now += failureRetry
	h.step()
	require.Equal(t, mnwire.SyncFailed, h.c.RequestedAsset())

	h.now++
	h.step()
	require.Equal(t, mnwire.SyncSporks, h.c.RequestedAsset())
	require.Zero(t, h.c.Stats().CountFailures)
}

// TestSyncWaitsForBlockchain holds every stage past sporks until the chain
// tip is recent.
func TestSyncWaitsForBlockchain(t *testing.T) {
	t.Parallel()

	// The tip is too old but the check runs often enough not to look
	// like a sleep.
	h := newHarness(t, 1)
	h.now += maxTipAge - 40
	h.c.GetNextAsset()
	h.c.GetNextAsset()

	h.step()
	require.Empty(t, h.registry.asked)

	h.chain.AddBlock(time.Unix(h.now, 0))
	h.step()
	require.Equal(t, []string{h.nodes[0].Addr()}, h.registry.asked)
}

func TestSyncSkipsOldPeers(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 1)
	h.nodes[0].SetProtocol(h.params.ActiveProtocol - 1)
	h.c.GetNextAsset()
	h.c.GetNextAsset()
	for i := 0; i < 3; i++ {
		h.step()
	}
	require.Empty(t, h.registry.asked)
	require.Empty(t, h.nodes[0].SentCommands())
}

func TestSyncRegTest(t *testing.T) {
	t.Parallel()

	params := netparams.RegTestParams
	h := newHarnessWithParams(t, &params, 2)
	// Regtest does not wait for the chain.
	h.now += maxTipAge * 2

	for i := 0; i < 3; i++ {
		h.step()
	}
	for _, node := range h.nodes {
		require.Equal(t, []string{mnwire.CmdGetSporks, mnwire.CmdGetSporks,
			mnwire.CmdGetSporks}, node.SentCommands())
		node.Reset()
	}

	h.step()
	require.Len(t, h.registry.asked, 2)

	h.step()
	h.step()
	for _, node := range h.nodes {
		require.Equal(t, []string{mnwire.CmdMNGet, mnwire.CmdBudgetVoteSync,
			mnwire.CmdMNGet, mnwire.CmdBudgetVoteSync}, node.SentCommands())
	}
	require.False(t, h.c.IsSynced())

	h.step()
	require.True(t, h.c.IsSynced())
}

func TestIsBlockchainSynced(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)
	require.True(t, h.c.IsBlockchainSynced())

	// Latched, an old tip does not matter.
	h.now += maxTipAge * 2 / 3
	require.True(t, h.c.IsBlockchainSynced())

	h2 := newHarness(t, 0)
	h2.now += maxTipAge + 61
	require.False(t, h2.c.IsBlockchainSynced())
	h2.chain.SetBusy(true)
	h2.chain.AddBlock(time.Unix(h2.now, 0))
	require.False(t, h2.c.IsBlockchainSynced())
	h2.chain.SetBusy(false)
	require.True(t, h2.c.IsBlockchainSynced())

	empty := New(&Config{
		Params: h.params,
		Chain:  chainview.NewMemChain(),
	})
	require.False(t, empty.IsBlockchainSynced())
}

// TestSleepDetection restarts the sync when the chain check was not called
// for over an hour.
func TestSleepDetection(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 1)
	h.c.GetNextAsset()
	h.c.GetNextAsset()
	h.c.ProcessMessage(h.nodes[0], mnwire.NewMsgSyncStatusCount(mnwire.SyncList, 5))
	require.True(t, h.c.IsBlockchainSynced())

	h.now += sleepDetect + 1
	h.chain.AddBlock(time.Unix(h.now, 0))
	require.True(t, h.c.IsBlockchainSynced())
	require.Equal(t, mnwire.SyncList, h.c.RequestedAsset())
	require.Equal(t, int32(5), h.c.Stats().SumList)

	h.step()
	require.Equal(t, mnwire.SyncSporks, h.c.RequestedAsset())
	require.Zero(t, h.c.Stats().SumList)
}

func TestProcessSyncStatusCount(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 1)
	c := h.c
	node := h.nodes[0]
	ssc := func(item, count int32) {
		c.ProcessMessage(node, mnwire.NewMsgSyncStatusCount(item, count))
	}

	// Counts for other stages are ignored.
	ssc(mnwire.SyncList, 4)
	c.GetNextAsset()
	c.GetNextAsset()
	ssc(mnwire.SyncList, 4)
	ssc(mnwire.SyncList, 6)
	ssc(mnwire.SyncMNW, 3)
	ssc(mnwire.SyncBudgetProp, 1)
	stats := c.Stats()
	require.Equal(t, int32(10), stats.SumList)
	require.Equal(t, int32(2), stats.CountList)
	require.Zero(t, stats.CountWinners)
	require.Zero(t, stats.CountBudgetProp)

	c.GetNextAsset()
	ssc(mnwire.SyncMNW, 3)
	require.Equal(t, int32(3), c.Stats().SumWinners)

	c.GetNextAsset()
	require.False(t, c.IsBudgetPropEmpty())
	ssc(mnwire.SyncBudgetProp, 0)
	ssc(mnwire.SyncBudgetFin, 2)
	require.True(t, c.IsBudgetPropEmpty())
	require.False(t, c.IsBudgetFinEmpty())

	// Other messages are ignored.
	c.ProcessMessage(node, &mnwire.MsgMNGet{CountNeeded: 1})

	c.GetNextAsset()
	ssc(mnwire.SyncBudgetFin, 0)
	require.Equal(t, int32(1), c.Stats().CountBudgetFin)
}

func TestAddedItemThreshold(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)
	c := h.c
	hash := chainhash.HashH([]byte("item"))

	for i := 0; i < Threshold; i++ {
		h.now++
		c.AddedMasternodeList(hash)
		c.AddedMasternodeWinner(hash)
		c.AddedBudgetItem(hash)
	}
	stats := c.Stats()
	require.Equal(t, h.now, stats.LastList)
	require.Equal(t, h.now, stats.LastWinner)
	require.Equal(t, h.now, stats.LastBudgetItem)

	// Counted enough, the last item times stay.
	h.now++
	c.AddedMasternodeList(hash)
	c.AddedMasternodeWinner(hash)
	require.Equal(t, h.now-1, c.Stats().LastList)
	require.Equal(t, h.now-1, c.Stats().LastWinner)

	// Forgotten items count again.
	c.ForgetMasternodeList(hash)
	c.ForgetMasternodeWinner(hash)
	c.AddedMasternodeList(hash)
	c.AddedMasternodeWinner(hash)
	require.Equal(t, h.now, c.Stats().LastList)
	require.Equal(t, h.now, c.Stats().LastWinner)
}

func TestGetNextAssetClearsRequests(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 1)
	node := h.nodes[0]
	node.FulfilledRequest(fulfilledSporks)
	node.FulfilledRequest(fulfilledList)
	node.FulfilledRequest("other")

	h.c.GetNextAsset()
	require.False(t, node.HasFulfilledRequest(fulfilledSporks))
	require.False(t, node.HasFulfilledRequest(fulfilledList))
	require.True(t, node.HasFulfilledRequest("other"))
	require.Zero(t, h.c.RequestedAttempt())

	for _, want := range []int32{mnwire.SyncList, mnwire.SyncMNW,
		mnwire.SyncBudget, mnwire.SyncFinished, mnwire.SyncFinished} {

		h.c.GetNextAsset()
		require.Equal(t, want, h.c.RequestedAsset())
	}
}
