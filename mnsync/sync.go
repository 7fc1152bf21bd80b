// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mnsync

import (
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/divitproject/mnd/chainview"
	"github.com/divitproject/mnd/masternode"
	"github.com/divitproject/mnd/mnpeer"
	"github.com/divitproject/mnd/mnwire"
	"github.com/divitproject/mnd/netparams"
	"github.com/divitproject/mnd/spork"
)

const (
	// Timeout is the number of ticks between sync steps, and the base of
	// the per-stage timeouts in seconds.
	Timeout = 5

	// Threshold is the number of attempts before a stage may finish, and
	// the number of times an item is counted.
	Threshold = 2

	// failureRetry is how long a failed sync waits before starting over.
	failureRetry = 60

	// sleepDetect is the gap between blockchain sync checks after which
	// the node is assumed to have slept and the sync restarts.
	sleepDetect = 60 * 60

	// maxTipAge is how old the chain tip may be for the chain to count as
	// synced.
	maxTipAge = 60 * 60
)

// Per-peer request markers.
const (
	fulfilledSporks  = "getspork"
	fulfilledList    = "fnsync"
	fulfilledWinners = "fnwsync"
	fulfilledBudget  = "busync"
)

// Registry is the masternode list as seen by the coordinator.
// *masternode.Manager implements it.
type Registry interface {
	CountEnabled(protocol int) int
	DsegUpdate(node mnpeer.Node)
}

// PaymentsInfo is the part of the payment ledger the coordinator needs.
// *mnpayments.Payments implements it.
type PaymentsInfo interface {
	GetMinMasternodePaymentsProto() uint32
}

// StatusManager is the local masternode, started once the sync finishes.
// *activemn.ActiveMasternode implements it.
type StatusManager interface {
	ManageStatus()
}

// Config is the configuration for a Coordinator.
type Config struct {
	// Params selects the network rules.
	Params *netparams.Params

	// Chain is used to decide whether the blockchain is synced.
	Chain chainview.Chain

	// Registry is asked for the list and for the enabled count.
	Registry Registry

	// Payments supplies the protocol needed to ask a peer for votes.
	Payments PaymentsInfo

	// Sporks decides whether a stage that times out empty fails.  Nil
	// means no spork is active.
	Sporks masternode.Sporks

	// Network supplies the peers to sync from.
	Network mnpeer.Network

	// TimeSource returns the adjusted network time.  Nil means time.Now.
	TimeSource func() time.Time
}

// Coordinator drives the staged sync of sporks, the masternode list, the
// payment votes and the budget, and tracks how much of each was received.
// It is safe for concurrent access.
//
// The list and the ledger report to it through AddedMasternodeList and
// AddedMasternodeWinner while holding their own locks, so those callbacks
// only touch the statistics and never call out.
type Coordinator struct {
	cfg Config

	// mtx guards the stage and is held for a whole Process step.
	mtx              sync.RWMutex
	active           StatusManager
	tick             int
	requestedAsset   int32
	requestedAttempt int
	assetSyncStarted int64

	// statsMtx guards the fields below.  It is always taken after mtx.
	statsMtx          sync.Mutex
	seenList          map[chainhash.Hash]int
	seenWinners       map[chainhash.Hash]int
	seenBudget        map[chainhash.Hash]int
	lastList          int64
	lastWinner        int64
	lastBudgetItem    int64
	lastFailure       int64
	countFailures     int
	sumList           int32
	sumWinners        int32
	sumBudgetProp     int32
	sumBudgetFin      int32
	countList         int32
	countWinners      int32
	countBudgetProp   int32
	countBudgetFin    int32
	blockchainSynced  bool
	lastBlockchainChk int64
	resetPending      bool
}

// New returns a Coordinator at the initial stage.
func New(cfg *Config) *Coordinator {
	c := &Coordinator{cfg: *cfg}
	c.lastBlockchainChk = c.now()
	c.Reset()
	return c
}

// SetActiveAgent sets the local masternode started when the sync finishes.
func (c *Coordinator) SetActiveAgent(a StatusManager) {
	c.mtx.Lock()
	c.active = a
	c.mtx.Unlock()
}

func (c *Coordinator) now() int64 {
	if c.cfg.TimeSource != nil {
		return c.cfg.TimeSource().Unix()
	}
	return time.Now().Unix()
}

func (c *Coordinator) sporkActive(id spork.ID) bool {
	return c.cfg.Sporks != nil && c.cfg.Sporks.IsActive(id)
}

// Reset starts the sync over.
func (c *Coordinator) Reset() {
	c.mtx.Lock()
	c.reset()
	c.mtx.Unlock()
}

// reset must be called with mtx held.
func (c *Coordinator) reset() {
	c.requestedAsset = mnwire.SyncInitial
	c.requestedAttempt = 0
	c.assetSyncStarted = c.now()

	c.statsMtx.Lock()
	c.seenList = make(map[chainhash.Hash]int)
	c.seenWinners = make(map[chainhash.Hash]int)
	c.seenBudget = make(map[chainhash.Hash]int)
	c.lastList = 0
	c.lastWinner = 0
	c.lastBudgetItem = 0
	c.lastFailure = 0
	c.countFailures = 0
	c.sumList = 0
	c.sumWinners = 0
	c.sumBudgetProp = 0
	c.sumBudgetFin = 0
	c.countList = 0
	c.countWinners = 0
	c.countBudgetProp = 0
	c.countBudgetFin = 0
	c.resetPending = false
	c.statsMtx.Unlock()
}

// added counts hash in seen and reports whether it is still below
// Threshold, in which case the stage's last item time is refreshed.
func added(seen map[chainhash.Hash]int, hash chainhash.Hash) bool {
	if seen[hash] >= Threshold {
		return false
	}
	seen[hash]++
	return true
}

// AddedMasternodeList records an announcement received during the sync.
func (c *Coordinator) AddedMasternodeList(hash chainhash.Hash) {
	c.statsMtx.Lock()
	if added(c.seenList, hash) {
		c.lastList = c.now()
	}
	c.statsMtx.Unlock()
}

// ForgetMasternodeList drops the announcement from the sync records.
func (c *Coordinator) ForgetMasternodeList(hash chainhash.Hash) {
	c.statsMtx.Lock()
	delete(c.seenList, hash)
	c.statsMtx.Unlock()
}

// AddedMasternodeWinner records a payment vote received during the sync.
func (c *Coordinator) AddedMasternodeWinner(hash chainhash.Hash) {
	c.statsMtx.Lock()
	if added(c.seenWinners, hash) {
		c.lastWinner = c.now()
	}
	c.statsMtx.Unlock()
}

// ForgetMasternodeWinner drops the vote from the sync records.
func (c *Coordinator) ForgetMasternodeWinner(hash chainhash.Hash) {
	c.statsMtx.Lock()
	delete(c.seenWinners, hash)
	c.statsMtx.Unlock()
}

// AddedBudgetItem records a budget item received during the sync.  The
// budget subsystem reports its proposals, finalized budgets and votes here.
func (c *Coordinator) AddedBudgetItem(hash chainhash.Hash) {
	c.statsMtx.Lock()
	if added(c.seenBudget, hash) {
		c.lastBudgetItem = c.now()
	}
	c.statsMtx.Unlock()
}

// IsBudgetPropEmpty reports whether the peers that answered have no budget
// proposals.
func (c *Coordinator) IsBudgetPropEmpty() bool {
	c.statsMtx.Lock()
	defer c.statsMtx.Unlock()
	return c.sumBudgetProp == 0 && c.countBudgetProp > 0
}

// IsBudgetFinEmpty reports whether the peers that answered have no
// finalized budgets.
func (c *Coordinator) IsBudgetFinEmpty() bool {
	c.statsMtx.Lock()
	defer c.statsMtx.Unlock()
	return c.sumBudgetFin == 0 && c.countBudgetFin > 0
}

// IsBlockchainSynced reports whether the chain tip is less than an hour
// old.  Once true it stays true until the sync is reset.  A call more than
// an hour after the previous one means the node slept; the sync restarts on
// the next Process step.
func (c *Coordinator) IsBlockchainSynced() bool {
	now := c.now()

	c.statsMtx.Lock()
	defer c.statsMtx.Unlock()

	if now-c.lastBlockchainChk > sleepDetect {
		log.Infof("No sync check for %v, restarting masternode sync",
			time.Duration(now-c.lastBlockchainChk)*time.Second)
		c.resetPending = true
		c.blockchainSynced = false
	}
	c.lastBlockchainChk = now

	if c.blockchainSynced {
		return true
	}

	_, tipTime, err := chainview.TipTime(c.cfg.Chain)
	if err != nil {
		return false
	}
	if tipTime.Unix()+maxTipAge < now {
		return false
	}
	c.blockchainSynced = true
	return true
}

// IsSynced reports whether every stage finished.
func (c *Coordinator) IsSynced() bool {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return c.requestedAsset == mnwire.SyncFinished
}

// IsSporkListSynced reports whether the sporks stage is over.
func (c *Coordinator) IsSporkListSynced() bool {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return c.requestedAsset > mnwire.SyncSporks
}

// IsMasternodeListSynced reports whether the list stage is over.
func (c *Coordinator) IsMasternodeListSynced() bool {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return c.requestedAsset > mnwire.SyncList
}

// RequestedAsset returns the current stage.
func (c *Coordinator) RequestedAsset() int32 {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return c.requestedAsset
}

// RequestedAttempt returns the number of requests made in the current
// stage.
func (c *Coordinator) RequestedAttempt() int {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return c.requestedAttempt
}

// GetSyncStatus describes the current stage.
func (c *Coordinator) GetSyncStatus() string {
	switch c.RequestedAsset() {
	case mnwire.SyncInitial:
		return "Synchronization pending..."
	case mnwire.SyncSporks:
		return "Synchronizing sporks..."
	case mnwire.SyncList:
		return "Synchronizing masternodes..."
	case mnwire.SyncMNW:
		return "Synchronizing masternode winners..."
	case mnwire.SyncBudget:
		return "Synchronizing budgets..."
	case mnwire.SyncFailed:
		return "Synchronization failed"
	case mnwire.SyncFinished:
		return "Synchronization finished"
	}
	return ""
}

// Stats is a snapshot of the sync counters.
type Stats struct {
	RequestedAsset   int32
	RequestedAttempt int
	LastList         int64
	LastWinner       int64
	LastBudgetItem   int64
	LastFailure      int64
	CountFailures    int
	SumList          int32
	SumWinners       int32
	SumBudgetProp    int32
	SumBudgetFin     int32
	CountList        int32
	CountWinners     int32
	CountBudgetProp  int32
	CountBudgetFin   int32
}

// Stats returns a snapshot of the sync counters.
func (c *Coordinator) Stats() Stats {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	c.statsMtx.Lock()
	defer c.statsMtx.Unlock()
	return Stats{
		RequestedAsset:   c.requestedAsset,
		RequestedAttempt: c.requestedAttempt,
		LastList:         c.lastList,
		LastWinner:       c.lastWinner,
		LastBudgetItem:   c.lastBudgetItem,
		LastFailure:      c.lastFailure,
		CountFailures:    c.countFailures,
		SumList:          c.sumList,
		SumWinners:       c.sumWinners,
		SumBudgetProp:    c.sumBudgetProp,
		SumBudgetFin:     c.sumBudgetFin,
		CountList:        c.countList,
		CountWinners:     c.countWinners,
		CountBudgetProp:  c.countBudgetProp,
		CountBudgetFin:   c.countBudgetFin,
	}
}

// ProcessMessage records the item counts peers report with ssc.  Counts for
// a stage other than the current one are ignored, as is everything once
// the sync finished.
func (c *Coordinator) ProcessMessage(node mnpeer.Node, msg wire.Message) {
	ssc, ok := msg.(*mnwire.MsgSyncStatusCount)
	if !ok {
		return
	}

	c.mtx.RLock()
	defer c.mtx.RUnlock()
	if c.requestedAsset >= mnwire.SyncFinished {
		return
	}

	c.statsMtx.Lock()
	defer c.statsMtx.Unlock()
	switch ssc.ItemID {
	case mnwire.SyncList:
		if ssc.ItemID != c.requestedAsset {
			return
		}
		c.sumList += ssc.Count
		c.countList++
	case mnwire.SyncMNW:
		if ssc.ItemID != c.requestedAsset {
			return
		}
		c.sumWinners += ssc.Count
		c.countWinners++
	case mnwire.SyncBudgetProp:
		if c.requestedAsset != mnwire.SyncBudget {
			return
		}
		c.sumBudgetProp += ssc.Count
		c.countBudgetProp++
	case mnwire.SyncBudgetFin:
		if c.requestedAsset != mnwire.SyncBudget {
			return
		}
		c.sumBudgetFin += ssc.Count
		c.countBudgetFin++
	default:
		return
	}
	log.Debugf("ssc - got inventory count %d %d from %s", ssc.ItemID,
		ssc.Count, node.Addr())
}

// clearFulfilledRequests forgets the per-peer request markers.
func (c *Coordinator) clearFulfilledRequests() {
	if c.cfg.Network == nil {
		return
	}
	for _, node := range c.cfg.Network.ConnectedNodes() {
		node.ClearFulfilledRequest(fulfilledSporks)
		node.ClearFulfilledRequest(fulfilledList)
		node.ClearFulfilledRequest(fulfilledWinners)
		node.ClearFulfilledRequest(fulfilledBudget)
	}
}

// getNextAsset moves to the next stage.  It must be called with mtx held.
func (c *Coordinator) getNextAsset() {
	switch c.requestedAsset {
	case mnwire.SyncInitial, mnwire.SyncFailed:
		c.clearFulfilledRequests()
		c.requestedAsset = mnwire.SyncSporks
	case mnwire.SyncSporks:
		c.requestedAsset = mnwire.SyncList
	case mnwire.SyncList:
		c.requestedAsset = mnwire.SyncMNW
	case mnwire.SyncMNW:
		c.requestedAsset = mnwire.SyncBudget
	case mnwire.SyncBudget:
		log.Infof("Masternode sync has finished")
		c.requestedAsset = mnwire.SyncFinished
	}
	c.requestedAttempt = 0
	c.assetSyncStarted = c.now()
}

// GetNextAsset moves to the next stage.
func (c *Coordinator) GetNextAsset() {
	c.mtx.Lock()
	c.getNextAsset()
	c.mtx.Unlock()
}

// fail marks the sync failed.  It must be called with mtx held.
func (c *Coordinator) fail() {
	log.Errorf("Masternode sync has failed, will retry later")
	c.requestedAsset = mnwire.SyncFailed
	c.requestedAttempt = 0
	c.statsMtx.Lock()
	c.lastFailure = c.now()
	c.countFailures++
	c.statsMtx.Unlock()
}

// Process advances the sync.  It is meant to be called every second and
// acts on every Timeout-th call.
func (c *Coordinator) Process() {
	var manageStatus StatusManager
	c.mtx.Lock()
	manageStatus = c.process()
	c.mtx.Unlock()

	// The local masternode checks the sync state, so it runs without the
	// lock.
	if manageStatus != nil {
		manageStatus.ManageStatus()
	}
}

// process runs one sync step with mtx held.  It returns the local
// masternode when it should be started.
func (c *Coordinator) process() StatusManager {
	tick := c.tick
	c.tick++
	if tick%Timeout != 0 {
		return nil
	}

	c.statsMtx.Lock()
	resetPending := c.resetPending
	lastFailure := c.lastFailure
	c.statsMtx.Unlock()
	if resetPending {
		c.reset()
	}

	if c.requestedAsset == mnwire.SyncFinished {
		// Resync if every masternode was lost after sleeping or a sync
		// that went wrong.
		if c.cfg.Registry.CountEnabled(-1) > 0 {
			return nil
		}
		c.reset()
	}

	now := c.now()
	if c.requestedAsset == mnwire.SyncFailed {
		if lastFailure+failureRetry >= now {
			return nil
		}
		c.reset()
	}

	log.Tracef("Process - tick %d requestedAsset %d", tick, c.requestedAsset)

	if c.requestedAsset == mnwire.SyncInitial {
		c.getNextAsset()
	}

	// Sporks are synced but the chain is not, wait until it is close to
	// the tip.
	if !c.cfg.Params.IsRegTest && c.requestedAsset > mnwire.SyncSporks &&
		!c.IsBlockchainSynced() {

		return nil
	}

	var nodes []mnpeer.Node
	if c.cfg.Network != nil {
		nodes = c.cfg.Network.ConnectedNodes()
	}

	if c.cfg.Params.IsRegTest {
		c.processRegTest(nodes)
		return nil
	}

	for _, node := range nodes {
		done, start := c.processNode(node, now)
		if start {
			return c.active
		}
		if done {
			return nil
		}
	}
	return nil
}

// processRegTest asks every peer for everything at once and then declares
// the sync finished.
func (c *Coordinator) processRegTest(nodes []mnpeer.Node) {
	if len(nodes) == 0 {
		return
	}
	for _, node := range nodes {
		switch {
		case c.requestedAttempt <= 2:
			node.QueueMessage(&mnwire.MsgGetSporks{}, nil)
		case c.requestedAttempt < 4:
			c.cfg.Registry.DsegUpdate(node)
		case c.requestedAttempt < 6:
			count := int32(c.cfg.Registry.CountEnabled(-1))
			node.QueueMessage(&mnwire.MsgMNGet{CountNeeded: count}, nil)
			node.QueueMessage(&mnwire.MsgBudgetVoteSync{}, nil)
		}
	}
	if c.requestedAttempt >= 6 {
		c.requestedAsset = mnwire.SyncFinished
	}
	c.requestedAttempt++
}

// stageTimedOut reports whether a stage that received nothing has waited
// long enough.
func (c *Coordinator) stageTimedOut(last, now int64) bool {
	return last == 0 && (c.requestedAttempt >= Threshold*3 ||
		now-c.assetSyncStarted > Timeout*5)
}

// stageDone reports whether a stage stopped receiving items.
func (c *Coordinator) stageDone(last, now int64) bool {
	return last > 0 && last < now-Timeout*2 && c.requestedAttempt >= Threshold
}

// timeoutEmpty handles a list or votes stage that received nothing.  With
// payment enforcement on that is a failure.
func (c *Coordinator) timeoutEmpty() {
	if c.sporkActive(spork.MasternodePaymentEnforcement) {
		c.fail()
		return
	}
	c.getNextAsset()
}

// processNode runs the current stage against node.  done reports that the
// step is over; start reports that the budget stage ended and the local
// masternode should be started.
func (c *Coordinator) processNode(node mnpeer.Node, now int64) (done, start bool) {
	c.statsMtx.Lock()
	lastList, lastWinner, lastBudget := c.lastList, c.lastWinner, c.lastBudgetItem
	c.statsMtx.Unlock()

	if c.requestedAsset == mnwire.SyncSporks {
		if node.HasFulfilledRequest(fulfilledSporks) {
			return false, false
		}
		node.FulfilledRequest(fulfilledSporks)
		node.QueueMessage(&mnwire.MsgGetSporks{}, nil)
		if c.requestedAttempt >= Threshold {
			c.getNextAsset()
		}
		c.requestedAttempt++
		return true, false
	}

	pver := node.ProtocolVersion()
	if pver >= c.cfg.Payments.GetMinMasternodePaymentsProto() {
		switch c.requestedAsset {
		case mnwire.SyncList:
			if c.stageDone(lastList, now) {
				c.getNextAsset()
				return true, false
			}
			if node.HasFulfilledRequest(fulfilledList) {
				return false, false
			}
			node.FulfilledRequest(fulfilledList)

			if c.stageTimedOut(lastList, now) {
				c.timeoutEmpty()
				return true, false
			}
			if c.requestedAttempt >= Threshold*3 {
				return true, false
			}
			c.cfg.Registry.DsegUpdate(node)
			c.requestedAttempt++
			return true, false

		case mnwire.SyncMNW:
			if c.stageDone(lastWinner, now) {
				c.getNextAsset()
				return true, false
			}
			if node.HasFulfilledRequest(fulfilledWinners) {
				return false, false
			}
			node.FulfilledRequest(fulfilledWinners)

			if c.stageTimedOut(lastWinner, now) {
				c.timeoutEmpty()
				return true, false
			}
			if c.requestedAttempt >= Threshold*3 {
				return true, false
			}
			if _, err := c.cfg.Chain.BestHeight(); err != nil {
				return true, false
			}
			count := int32(float64(c.cfg.Registry.CountEnabled(-1)) * 1.25)
			node.QueueMessage(&mnwire.MsgMNGet{CountNeeded: count}, nil)
			c.requestedAttempt++
			return true, false
		}
	}

	if pver >= c.cfg.Params.ActiveProtocol && c.requestedAsset == mnwire.SyncBudget {
		// Stop once no new item arrived for a while, or when nothing came
		// at all since there may be no budgets.
		if c.stageDone(lastBudget, now) || c.stageTimedOut(lastBudget, now) {
			c.getNextAsset()
			return true, true
		}
		if node.HasFulfilledRequest(fulfilledBudget) {
			return false, false
		}
		node.FulfilledRequest(fulfilledBudget)
		if c.requestedAttempt >= Threshold*3 {
			return true, false
		}
		node.QueueMessage(&mnwire.MsgBudgetVoteSync{}, nil)
		c.requestedAttempt++
		return true, false
	}
	return false, false
}
