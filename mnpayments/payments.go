// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mnpayments

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/divitproject/mnd/chainview"
	"github.com/divitproject/mnd/masternode"
	"github.com/divitproject/mnd/mnpeer"
	"github.com/divitproject/mnd/mnwire"
	"github.com/divitproject/mnd/msgsign"
	"github.com/divitproject/mnd/netparams"
	"github.com/divitproject/mnd/spork"
)

const (
	// scoreDepth is how far below the voted height the block used to rank
	// voters and candidates lies.
	scoreDepth = 100

	// maxFutureVote is how far above the tip votes are accepted and synced.
	maxFutureVote = 20

	// minCleanLimit is the least number of heights kept by
	// CleanPaymentList.
	minCleanLimit = 1000

	// fulfilledGet marks a peer that already asked for the votes.
	fulfilledGet = "fnget"
)

// Registry is the masternode list as seen by the payment ledger.
// *masternode.Manager implements it.
type Registry interface {
	Find(op wire.OutPoint) (masternode.Info, bool)
	Size() int
	StableSize() int
	CountEnabled(protocol int) int
	Snapshot() []masternode.Info
	GetRank(op wire.OutPoint, height int32, minProto uint32, onlyActive bool) int
	GetCurrentMasternode(mod int, height int32, minProto uint32) (masternode.Info, bool)
	AskForMN(node mnpeer.Node, vin wire.TxIn)
	MinPaymentsProto() uint32
}

// SyncNotifier receives vote events for sync progress tracking.
// *mnsync.Coordinator implements it.  Implementations must not call back
// into Payments.
type SyncNotifier interface {
	IsBlockchainSynced() bool
	IsSynced() bool
	AddedMasternodeWinner(hash chainhash.Hash)
	ForgetMasternodeWinner(hash chainhash.Hash)
}

// ActiveAgent is the local masternode, if this node runs one.
type ActiveAgent interface {
	// CollateralOutPoint returns the collateral of the running
	// masternode.  The bool is false until the masternode is started.
	CollateralOutPoint() (wire.OutPoint, bool)
}

// Config is the configuration for Payments.
type Config struct {
	// Params selects the network rules.
	Params *netparams.Params

	// Chain answers block queries.
	Chain chainview.Chain

	// Registry is the masternode list votes are checked against.
	Registry Registry

	// Sporks gates payment enforcement.  Nil means no spork is active.
	Sporks masternode.Sporks

	// Network relays accepted votes.  It may be nil.
	Network mnpeer.Network

	// Reward supplies block values and payment shares.
	Reward netparams.RewardSchedule

	// OperatorKey signs the votes of the local masternode.  Nil when this
	// node does not run one.
	OperatorKey *msgsign.Key

	// TimeSource returns the adjusted network time.  Nil means time.Now.
	TimeSource func() time.Time
}

// Payments keeps the payment votes and the resulting per-height tallies.
// It is safe for concurrent access.
type Payments struct {
	cfg Config

	mtx             sync.RWMutex
	notify          SyncNotifier
	active          ActiveAgent
	lastBlockHeight int32

	// votesMtx guards the maps below.  The one-vote-per-height check and
	// the tally insert happen under a single hold.
	votesMtx  sync.Mutex
	votes     map[chainhash.Hash]*Winner
	blocks    map[int32]*BlockPayees
	lastVotes map[wire.OutPoint]int32
}

// New returns an empty ledger.
func New(cfg *Config) *Payments {
	p := &Payments{cfg: *cfg}
	p.reset()
	return p
}

func (p *Payments) reset() {
	p.votes = make(map[chainhash.Hash]*Winner)
	p.blocks = make(map[int32]*BlockPayees)
	p.lastVotes = make(map[wire.OutPoint]int32)
}

// SetSyncNotifier sets the receiver of vote sync events.
func (p *Payments) SetSyncNotifier(n SyncNotifier) {
	p.mtx.Lock()
	p.notify = n
	p.mtx.Unlock()
}

// SetActiveAgent sets the local masternode.
func (p *Payments) SetActiveAgent(a ActiveAgent) {
	p.mtx.Lock()
	p.active = a
	p.mtx.Unlock()
}

func (p *Payments) notifier() SyncNotifier {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	return p.notify
}

func (p *Payments) now() int64 {
	if p.cfg.TimeSource != nil {
		return p.cfg.TimeSource().Unix()
	}
	return time.Now().Unix()
}

func (p *Payments) sporkActive(id spork.ID) bool {
	return p.cfg.Sporks != nil && p.cfg.Sporks.IsActive(id)
}

func (p *Payments) blockchainSynced() bool {
	n := p.notifier()
	return n == nil || n.IsBlockchainSynced()
}

func (p *Payments) synced() bool {
	n := p.notifier()
	return n == nil || n.IsSynced()
}

// GetMinMasternodePaymentsProto returns the lowest protocol version eligible
// for payment.
func (p *Payments) GetMinMasternodePaymentsProto() uint32 {
	return p.cfg.Registry.MinPaymentsProto()
}

// windowSize is 1.25 times the number of enabled masternodes, the number of
// blocks a full payment cycle is expected to take.
func (p *Payments) windowSize() int32 {
	return int32(float64(p.cfg.Registry.CountEnabled(-1)) * 1.25)
}

// Clear drops every vote.
func (p *Payments) Clear() {
	p.votesMtx.Lock()
	p.reset()
	p.votesMtx.Unlock()
}

// canVote reports whether voter has not voted for height yet.
func (p *Payments) canVote(voter wire.OutPoint, height int32) bool {
	last, ok := p.lastVotes[voter]
	return !ok || last != height
}

// CanVote reports whether the masternode with collateral voter may still
// vote for height.
func (p *Payments) CanVote(voter wire.OutPoint, height int32) bool {
	p.votesMtx.Lock()
	defer p.votesMtx.Unlock()
	return p.canVote(voter, height)
}

// AddWinningMasternode tallies a vote that was already validated.  The vote
// is rejected when its score block is unknown, when it was seen before or
// when the voter already voted for the height.
func (p *Payments) AddWinningMasternode(w *Winner) error {
	if _, err := p.cfg.Chain.BlockHash(w.BlockHeight - scoreDepth); err != nil {
		return ruleError(ErrUnknownBlock, fmt.Sprintf("no block at "+
			"height %d to score the vote: %v", w.BlockHeight-scoreDepth, err))
	}

	hash := w.Hash()
	voter := w.voter()

	p.votesMtx.Lock()
	defer p.votesMtx.Unlock()

	if _, ok := p.votes[hash]; ok {
		return ruleError(ErrDuplicateVote, fmt.Sprintf("vote %v already "+
			"tallied", hash))
	}
	if !p.canVote(voter, w.BlockHeight) {
		return ruleError(ErrAlreadyVoted, fmt.Sprintf("masternode %s "+
			"already voted for height %d", mnwire.OutPointShort(&voter),
			w.BlockHeight))
	}
	p.lastVotes[voter] = w.BlockHeight
	p.votes[hash] = w

	payees, ok := p.blocks[w.BlockHeight]
	if !ok {
		payees = &BlockPayees{Height: w.BlockHeight}
		p.blocks[w.BlockHeight] = payees
	}
	payees.AddPayee(w.Payee, 1)
	return nil
}

// isValid checks that the voter is a current masternode ranked among the
// top SignaturesTotal at the score height.  Unknown voters are asked for.
func (p *Payments) isValid(node mnpeer.Node, w *Winner) (masternode.Info, error) {
	voter := w.voter()
	info, ok := p.cfg.Registry.Find(voter)
	if !ok {
		if node != nil {
			p.cfg.Registry.AskForMN(node, w.VinMasternode)
		}
		return info, ruleError(ErrUnknownVoter, fmt.Sprintf("unknown "+
			"masternode %s", voter.Hash))
	}

	active := p.cfg.Params.ActiveProtocol
	if info.Protocol < active {
		return info, ruleError(ErrObsoleteProtocol, fmt.Sprintf("masternode "+
			"protocol too old %d - req %d", info.Protocol, active))
	}

	rank := p.cfg.Registry.GetRank(voter, w.BlockHeight-scoreDepth, active, true)
	if rank < 1 || rank > SignaturesTotal {
		// Masternodes commonly think they are in the top ten by mistake;
		// only the ones far off are worth a log line.
		if rank > SignaturesTotal*2 {
			log.Debugf("Masternode not in the top %d (%d)",
				SignaturesTotal*2, rank)
		}
		return info, ruleError(ErrNotRanked, fmt.Sprintf("masternode %s "+
			"not in the top %d (%d)", voter.Hash, SignaturesTotal, rank))
	}
	return info, nil
}

// ProcessMessage handles the payment messages fnw and fnget.  Other messages
// are ignored.
func (p *Payments) ProcessMessage(node mnpeer.Node, msg wire.Message) {
	if !p.blockchainSynced() {
		return
	}

	switch msg := msg.(type) {
	case *mnwire.MsgMNGet:
		p.handleGet(node, msg)
	case *mnwire.MsgMNWinner:
		w := &Winner{MsgMNWinner: *msg}
		if err := p.handleWinner(node, w); err != nil {
			log.Tracef("fnw - Rejected vote from %s: %v", node.Addr(), err)
		}
	}
}

func (p *Payments) handleGet(node mnpeer.Node, msg *mnwire.MsgMNGet) {
	if p.cfg.Params.IsMainNet && node.HasFulfilledRequest(fulfilledGet) {
		log.Debugf("fnget - peer %d already asked me for the list", node.ID())
		mnpeer.Misbehaving(node, 20, "fnget: repeated request")
		return
	}
	node.FulfilledRequest(fulfilledGet)
	p.Sync(node, msg.CountNeeded)
	log.Debugf("fnget - Sent masternode winners to peer %d", node.ID())
}

// handleWinner validates a vote received from node and, when it is new and
// valid, tallies and relays it.
func (p *Payments) handleWinner(node mnpeer.Node, w *Winner) error {
	if node.ProtocolVersion() < p.cfg.Params.ActiveProtocol {
		return nil
	}

	tip, err := p.cfg.Chain.BestHeight()
	if err != nil {
		return err
	}

	hash := w.Hash()
	p.votesMtx.Lock()
	_, seen := p.votes[hash]
	p.votesMtx.Unlock()
	if seen {
		log.Tracef("fnw - Already seen - %v bestHeight %d", hash, tip)
		if n := p.notifier(); n != nil {
			n.AddedMasternodeWinner(hash)
		}
		return nil
	}

	first := tip - p.windowSize()
	if w.BlockHeight < first || w.BlockHeight > tip+maxFutureVote {
		return ruleError(ErrOutOfRange, fmt.Sprintf("winner out of range - "+
			"FirstBlock %d Height %d bestHeight %d", first, w.BlockHeight,
			tip))
	}

	info, err := p.isValid(node, w)
	if err != nil {
		return err
	}

	voter := w.voter()
	if !p.CanVote(voter, w.BlockHeight) {
		return ruleError(ErrAlreadyVoted, fmt.Sprintf("masternode %s "+
			"already voted for height %d", mnwire.OutPointShort(&voter),
			w.BlockHeight))
	}

	if err := w.VerifySignature(info.PubKeyOperator, p.cfg.Params.MessageMagic); err != nil {
		if p.synced() {
			mnpeer.Misbehaving(node, 20, "fnw: bad signature")
		}
		// It could just be a masternode that is not synced.
		p.cfg.Registry.AskForMN(node, w.VinMasternode)
		return err
	}

	log.Debugf("fnw - winning vote - Addr %s Height %d bestHeight %d - %s",
		PayeeString(w.Payee, &p.cfg.Params.Chain), w.BlockHeight, tip,
		mnwire.OutPointShort(&voter))

	if err := p.AddWinningMasternode(w); err != nil {
		return err
	}
	w.Relay(p.cfg.Network)
	if n := p.notifier(); n != nil {
		n.AddedMasternodeWinner(hash)
	}
	return nil
}

// ProcessBlock casts the local masternode's vote for height when it ranks
// among the top SignaturesTotal voters.  It reports whether a vote was cast.
func (p *Payments) ProcessBlock(height int32) bool {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	if p.cfg.OperatorKey == nil || p.active == nil {
		return false
	}
	op, ok := p.active.CollateralOutPoint()
	if !ok {
		return false
	}

	rank := p.cfg.Registry.GetRank(op, height-scoreDepth,
		p.cfg.Params.ActiveProtocol, true)
	if rank == -1 {
		log.Debugf("ProcessBlock - Unknown Masternode")
		return false
	}
	if rank > SignaturesTotal {
		log.Debugf("ProcessBlock - Masternode not in the top %d (%d)",
			SignaturesTotal, rank)
		return false
	}
	if height <= p.lastBlockHeight {
		return false
	}

	log.Debugf("ProcessBlock Start nHeight %d - vin %s", height, op.Hash)

	// Pay the oldest masternode that still had no payment but whose
	// input is old enough and that was active long enough.
	next, _, ok := p.GetNextMasternodeInQueueForPayment(height, true)
	if !ok {
		log.Debugf("ProcessBlock Failed to find masternode to pay")
		return false
	}
	payee, err := msgsign.PayToPubKeyHashScript(next.PubKeyCollateral)
	if err != nil {
		log.Errorf("ProcessBlock - Bad collateral key for %s: %v",
			next.Vin.PreviousOutPoint.Hash, err)
		return false
	}

	w := NewWinner(op, height, payee)
	log.Debugf("ProcessBlock Winner payee %s nHeight %d",
		PayeeString(payee, &p.cfg.Params.Chain), height)
	if err := w.Sign(p.cfg.OperatorKey, p.cfg.Params.MessageMagic); err != nil {
		log.Errorf("ProcessBlock - %v", err)
		return false
	}
	if err := p.AddWinningMasternode(w); err != nil {
		log.Debugf("ProcessBlock - %v", err)
		return false
	}
	w.Relay(p.cfg.Network)
	p.lastBlockHeight = height
	return true
}

// Sync sends node the inventory of the votes from countNeeded blocks below
// the tip up to maxFutureVote above it, followed by the vote count.
func (p *Payments) Sync(node mnpeer.Node, countNeeded int32) {
	tip, err := p.cfg.Chain.BestHeight()
	if err != nil {
		return
	}
	if window := p.windowSize(); countNeeded > window {
		countNeeded = window
	}

	p.votesMtx.Lock()
	var count int32
	for hash, w := range p.votes {
		if w.BlockHeight >= tip-countNeeded && w.BlockHeight <= tip+maxFutureVote {
			hash := hash
			node.QueueInventory(wire.NewInvVect(
				mnwire.InvTypeMasternodeWinner, &hash))
			count++
		}
	}
	p.votesMtx.Unlock()

	node.QueueMessage(mnwire.NewMsgSyncStatusCount(mnwire.SyncMNW, count), nil)
}

// CleanPaymentList drops the votes for heights older than the larger of
// 1.25 times the list size and minCleanLimit.
func (p *Payments) CleanPaymentList() {
	tip, err := p.cfg.Chain.BestHeight()
	if err != nil {
		return
	}
	limit := int32(float64(p.cfg.Registry.Size()) * 1.25)
	if limit < minCleanLimit {
		limit = minCleanLimit
	}

	var forgotten []chainhash.Hash
	p.votesMtx.Lock()
	for hash, w := range p.votes {
		if tip-w.BlockHeight > limit {
			log.Tracef("CleanPaymentList - Removing old masternode "+
				"payment - block %d", w.BlockHeight)
			forgotten = append(forgotten, hash)
			delete(p.votes, hash)
			delete(p.blocks, w.BlockHeight)
		}
	}
	for voter, height := range p.lastVotes {
		if tip-height > limit {
			delete(p.lastVotes, voter)
		}
	}
	p.votesMtx.Unlock()

	if n := p.notifier(); n != nil {
		for _, hash := range forgotten {
			n.ForgetMasternodeWinner(hash)
		}
	}
}

// GetBlockPayee returns the payee with the most votes at height.
func (p *Payments) GetBlockPayee(height int32) ([]byte, bool) {
	p.votesMtx.Lock()
	defer p.votesMtx.Unlock()
	return p.blockPayee(height)
}

func (p *Payments) blockPayee(height int32) ([]byte, bool) {
	payees, ok := p.blocks[height]
	if !ok {
		return nil, false
	}
	return payees.Payee()
}

// BlockPayees returns a copy of the tally at height.
func (p *Payments) BlockPayees(height int32) (BlockPayees, bool) {
	p.votesMtx.Lock()
	defer p.votesMtx.Unlock()
	payees, ok := p.blocks[height]
	if !ok {
		return BlockPayees{}, false
	}
	return payees.copy(), true
}

// GetRequiredPaymentsString lists the payees voted for height, or
// "Unknown".
func (p *Payments) GetRequiredPaymentsString(height int32) string {
	p.votesMtx.Lock()
	defer p.votesMtx.Unlock()
	payees, ok := p.blocks[height]
	if !ok {
		return "Unknown"
	}
	return payees.RequiredPaymentsString(&p.cfg.Params.Chain)
}

// LookupWinner returns the seen vote with the given hash.
func (p *Payments) LookupWinner(hash *chainhash.Hash) (*mnwire.MsgMNWinner, bool) {
	p.votesMtx.Lock()
	defer p.votesMtx.Unlock()
	w, ok := p.votes[*hash]
	if !ok {
		return nil, false
	}
	msg := w.MsgMNWinner
	return &msg, true
}

// HaveInventory reports whether the vote named by iv was already seen.
func (p *Payments) HaveInventory(iv *wire.InvVect) bool {
	if iv.Type != mnwire.InvTypeMasternodeWinner {
		return false
	}
	p.votesMtx.Lock()
	defer p.votesMtx.Unlock()
	_, ok := p.votes[iv.Hash]
	return ok
}

// GetOldestBlock returns the lowest height with votes, or math.MaxInt32
// when there are none.
func (p *Payments) GetOldestBlock() int32 {
	p.votesMtx.Lock()
	defer p.votesMtx.Unlock()
	oldest := int32(math.MaxInt32)
	for height := range p.blocks {
		if height < oldest {
			oldest = height
		}
	}
	return oldest
}

// GetNewestBlock returns the highest height with votes, or zero.
func (p *Payments) GetNewestBlock() int32 {
	p.votesMtx.Lock()
	defer p.votesMtx.Unlock()
	var newest int32
	for height := range p.blocks {
		if height > newest {
			newest = height
		}
	}
	return newest
}

// String returns the number of votes and of heights voted on.
func (p *Payments) String() string {
	p.votesMtx.Lock()
	defer p.votesMtx.Unlock()
	return fmt.Sprintf("Votes: %d, Blocks: %d", len(p.votes), len(p.blocks))
}

// isRetryable reports whether err is a transient chain condition.
func isRetryable(err error) bool {
	return errors.Is(err, chainview.ErrChainBusy)
}
