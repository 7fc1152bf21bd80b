// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package masternode

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/divitproject/mnd/chainview"
	"github.com/divitproject/mnd/mnpeer"
	"github.com/divitproject/mnd/mnwire"
	"github.com/divitproject/mnd/msgsign"
	"github.com/divitproject/mnd/netparams"
	"github.com/divitproject/mnd/spork"
)

// notEnabledScore is the rank score given to masternodes that are not
// enabled so they sort behind every real score.
const notEnabledScore = 9999

// Sporks reports whether a spork is active.  *spork.Manager implements it.
type Sporks interface {
	IsActive(id spork.ID) bool
}

// SyncNotifier receives list events for sync progress tracking.
// *mnsync.Coordinator implements it.  Implementations must not call back
// into the Manager.
type SyncNotifier interface {
	// IsBlockchainSynced reports whether the chain is close enough to the
	// network tip to validate masternode messages.
	IsBlockchainSynced() bool

	// AddedMasternodeList records that the announcement with hash was
	// received during list sync.
	AddedMasternodeList(hash chainhash.Hash)

	// ForgetMasternodeList drops the announcement from the sync records.
	ForgetMasternodeList(hash chainhash.Hash)
}

// ActiveAgent is the local masternode, if this node runs one.
// *activemn.ActiveMasternode implements it.  Implementations must not call
// back into the Manager.
type ActiveAgent interface {
	// OperatorKey returns the serialized operator public key.
	OperatorKey() []byte

	// CollateralOutPoint returns the collateral of the running
	// masternode.  The bool is false until the masternode is started.
	CollateralOutPoint() (wire.OutPoint, bool)

	// EnableHotColdMasterNode starts the masternode after a remote
	// activation.
	EnableHotColdMasterNode(vin wire.TxIn, addr mnwire.ServiceAddr) bool
}

// Config is the configuration for a Manager.
type Config struct {
	// Params selects the network rules.
	Params *netparams.Params

	// Chain answers block and collateral queries.
	Chain chainview.Chain

	// Sporks gates protocol versions and legacy messages.  Nil means no
	// spork is active.
	Sporks Sporks

	// Network relays accepted announcements and pings.  It may be nil.
	Network mnpeer.Network

	// TimeSource returns the adjusted network time.  Nil means time.Now.
	TimeSource func() time.Time
}

// RankedInfo is a masternode snapshot together with its rank at a height.
type RankedInfo struct {
	Rank int
	Info
}

// Manager owns the masternode list and the gossip state around it.  It is
// safe for concurrent access.
type Manager struct {
	cfg Config

	mtx    sync.RWMutex
	notify SyncNotifier
	active ActiveAgent

	// nodes keeps insertion order, which breaks score ties.
	nodes []*Masternode

	// Peers that asked us for the whole list, keyed by IP.
	askedUsForList map[string]int64

	// Peers we asked for the whole list, keyed by IP.
	weAskedForList map[string]int64

	// Masternodes we asked peers for.
	weAskedForEntry map[wire.OutPoint]int64

	seenBroadcasts map[chainhash.Hash]*Broadcast
	seenPings      map[chainhash.Hash]*Ping

	// Legacy collateral key of each obsee seen, to process it once.
	seenDsee map[wire.OutPoint][]byte

	dsqCount int64
}

// New returns a Manager with an empty list.
func New(cfg *Config) *Manager {
	m := &Manager{cfg: *cfg}
	m.reset()
	return m
}

func (m *Manager) reset() {
	m.nodes = nil
	m.askedUsForList = make(map[string]int64)
	m.weAskedForList = make(map[string]int64)
	m.weAskedForEntry = make(map[wire.OutPoint]int64)
	m.seenBroadcasts = make(map[chainhash.Hash]*Broadcast)
	m.seenPings = make(map[chainhash.Hash]*Ping)
	m.seenDsee = make(map[wire.OutPoint][]byte)
	m.dsqCount = 0
}

// SetSyncNotifier sets the receiver of list sync events.
func (m *Manager) SetSyncNotifier(n SyncNotifier) {
	m.mtx.Lock()
	m.notify = n
	m.mtx.Unlock()
}

// SetActiveAgent sets the local masternode.
func (m *Manager) SetActiveAgent(a ActiveAgent) {
	m.mtx.Lock()
	m.active = a
	m.mtx.Unlock()
}

func (m *Manager) now() int64 {
	if m.cfg.TimeSource != nil {
		return m.cfg.TimeSource().Unix()
	}
	return time.Now().Unix()
}

func (m *Manager) magic() string {
	return m.cfg.Params.MessageMagic
}

func (m *Manager) sporkActive(id spork.ID) bool {
	return m.cfg.Sporks != nil && m.cfg.Sporks.IsActive(id)
}

// minPaymentsProto is the lowest protocol version eligible for payment.
func (m *Manager) minPaymentsProto() uint32 {
	if m.sporkActive(spork.MasternodePayUpdatedNodes) {
		return m.cfg.Params.ActiveProtocol
	}
	return m.cfg.Params.MinPeerProtoBeforeEnforcement
}

// MinPaymentsProto returns the lowest protocol version eligible for payment.
func (m *Manager) MinPaymentsProto() uint32 {
	return m.minPaymentsProto()
}

// Params returns the network parameters the manager runs with.
func (m *Manager) Params() *netparams.Params {
	return m.cfg.Params
}

// blockchainSynced reports whether the chain is usable.  Without a notifier
// it always is.
func (m *Manager) blockchainSynced() bool {
	m.mtx.RLock()
	n := m.notify
	m.mtx.RUnlock()
	return n == nil || n.IsBlockchainSynced()
}

// addedToList reports a masternode seen or updated to the sync notifier.
func (m *Manager) addedToList(hash chainhash.Hash) {
	if m.notify != nil {
		m.notify.AddedMasternodeList(hash)
	}
}

// forgetBroadcast drops a seen announcement so a later copy is processed.
func (m *Manager) forgetBroadcast(hash chainhash.Hash) {
	delete(m.seenBroadcasts, hash)
	if m.notify != nil {
		m.notify.ForgetMasternodeList(hash)
	}
}

// isOwnMasternode reports whether op and pubKeyOperator belong to the
// running local masternode.
func (m *Manager) isOwnMasternode(op wire.OutPoint, pubKeyOperator []byte) bool {
	if m.active == nil {
		return false
	}
	own, ok := m.active.CollateralOutPoint()
	return ok && own == op && bytes.Equal(pubKeyOperator, m.active.OperatorKey())
}

func (m *Manager) find(op wire.OutPoint) *Masternode {
	for _, mn := range m.nodes {
		if mn.OutPoint() == op {
			return mn
		}
	}
	return nil
}

func (m *Manager) add(mn *Masternode) bool {
	if !mn.IsEnabled() || m.find(mn.OutPoint()) != nil {
		return false
	}
	log.Debugf("Adding new masternode %s - %d now",
		mn.Vin.PreviousOutPoint.Hash, len(m.nodes)+1)
	m.nodes = append(m.nodes, mn)
	return true
}

// Add adds mn unless it is not enabled or its collateral is already listed.
func (m *Manager) Add(mn *Masternode) bool {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.add(mn)
}

// forgetNode drops the gossip state kept for a listed masternode.
func (m *Manager) forgetNode(op wire.OutPoint) {
	for hash, b := range m.seenBroadcasts {
		if b.Vin.PreviousOutPoint == op {
			m.forgetBroadcast(hash)
		}
	}
	delete(m.weAskedForEntry, op)
}

func (m *Manager) remove(op wire.OutPoint) {
	for i, mn := range m.nodes {
		if mn.OutPoint() != op {
			continue
		}
		log.Debugf("Removing masternode %s - %d now", op.Hash,
			len(m.nodes)-1)
		copy(m.nodes[i:], m.nodes[i+1:])
		m.nodes[len(m.nodes)-1] = nil
		m.nodes = m.nodes[:len(m.nodes)-1]
		m.forgetNode(op)
		return
	}
}

// Remove drops the masternode with collateral op.
func (m *Manager) Remove(op wire.OutPoint) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.remove(op)
}

// Find returns a snapshot of the masternode with collateral op.
func (m *Manager) Find(op wire.OutPoint) (Info, bool) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	if mn := m.find(op); mn != nil {
		return mn.Info(), true
	}
	return Info{}, false
}

// FindByOperatorKey returns a snapshot of the masternode with the given
// operator key.
func (m *Manager) FindByOperatorKey(pubKey []byte) (Info, bool) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	for _, mn := range m.nodes {
		if bytes.Equal(mn.PubKeyOperator, pubKey) {
			return mn.Info(), true
		}
	}
	return Info{}, false
}

// FindByPayee returns a snapshot of the masternode whose collateral key is
// paid by script.
func (m *Manager) FindByPayee(script []byte) (Info, bool) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	for _, mn := range m.nodes {
		payee, err := msgsign.PayToPubKeyHashScript(mn.PubKeyCollateral)
		if err == nil && bytes.Equal(payee, script) {
			return mn.Info(), true
		}
	}
	return Info{}, false
}

// check runs Check on every masternode.
func (m *Manager) check() {
	now := m.now()
	for _, mn := range m.nodes {
		mn.Check(now, false, m.cfg.Chain)
	}
}

// Check re-evaluates the state of every masternode.
func (m *Manager) Check() {
	m.mtx.Lock()
	m.check()
	m.mtx.Unlock()
}

// CheckAndRemove re-evaluates every masternode, removes the ones that are
// gone or obsolete, and expires the gossip bookkeeping.  With forceExpired
// expired masternodes are removed as well.
func (m *Manager) CheckAndRemove(forceExpired bool) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	m.check()

	now := m.now()
	minProto := m.minPaymentsProto()
	kept := m.nodes[:0]
	for _, mn := range m.nodes {
		if mn.ActiveState == StateRemove ||
			mn.ActiveState == StateOutpointSpent ||
			(forceExpired && mn.ActiveState == StateExpired) ||
			mn.Protocol < minProto {

			log.Debugf("Removing inactive masternode %s - %d now",
				mn.Vin.PreviousOutPoint.Hash, len(m.nodes)-1)
			m.forgetNode(mn.OutPoint())
			continue
		}
		kept = append(kept, mn)
	}
	for i := len(kept); i < len(m.nodes); i++ {
		m.nodes[i] = nil
	}
	m.nodes = kept

	for ip, deadline := range m.askedUsForList {
		if deadline < now {
			delete(m.askedUsForList, ip)
		}
	}
	for ip, deadline := range m.weAskedForList {
		if deadline < now {
			delete(m.weAskedForList, ip)
		}
	}
	for op, deadline := range m.weAskedForEntry {
		if deadline < now {
			delete(m.weAskedForEntry, op)
		}
	}

	cutoff := now - 2*RemovalSeconds
	for hash, b := range m.seenBroadcasts {
		if b.LastPing.SigTime < cutoff {
			m.forgetBroadcast(hash)
		}
	}
	for hash, p := range m.seenPings {
		if p.SigTime < cutoff {
			delete(m.seenPings, hash)
		}
	}
}

// Clear empties the list and all gossip state.
func (m *Manager) Clear() {
	m.mtx.Lock()
	m.reset()
	m.mtx.Unlock()
}

// Size returns the number of listed masternodes.
func (m *Manager) Size() int {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	return len(m.nodes)
}

// CountEnabled returns the number of enabled masternodes running at least
// protocol.  A negative protocol means the payments minimum.
func (m *Manager) CountEnabled(protocol int) int {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.countEnabled(protocol)
}

func (m *Manager) countEnabled(protocol int) int {
	minProto := m.minPaymentsProto()
	if protocol >= 0 {
		minProto = uint32(protocol)
	}
	m.check()
	var count int
	for _, mn := range m.nodes {
		if mn.Protocol < minProto || !mn.IsEnabled() {
			continue
		}
		count++
	}
	return count
}

// tooYoung reports whether mn is excluded from payment while enforcement is
// on.
func (m *Manager) tooYoung(mn *Masternode, now int64) bool {
	return m.sporkActive(spork.MasternodePaymentEnforcement) &&
		now-mn.SigTime < WinnerMinimumAge
}

// StableSize returns the number of enabled masternodes running the active
// protocol.  While payment enforcement is on, masternodes announced less
// than WinnerMinimumAge ago are not counted.
func (m *Manager) StableSize() int {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	now := m.now()
	var count int
	for _, mn := range m.nodes {
		if mn.Protocol < m.cfg.Params.ActiveProtocol || m.tooYoung(mn, now) {
			continue
		}
		mn.Check(now, false, m.cfg.Chain)
		if !mn.IsEnabled() {
			continue
		}
		count++
	}
	return count
}

// Snapshot returns a copy of every listed masternode in list order.
func (m *Manager) Snapshot() []Info {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.check()
	infos := make([]Info, 0, len(m.nodes))
	for _, mn := range m.nodes {
		infos = append(infos, mn.Info())
	}
	return infos
}

// GetRanks returns every masternode running at least minProto ranked by
// score at height.  Masternodes that are not enabled rank last.
func (m *Manager) GetRanks(height int32, minProto uint32) []RankedInfo {
	m.mtx.Lock()
	m.check()
	m.mtx.Unlock()

	m.mtx.RLock()
	defer m.mtx.RUnlock()

	blockHash, err := ScoreBlockHash(m.cfg.Chain, height)
	if err != nil {
		return nil
	}
	scores := make([]scored, 0, len(m.nodes))
	for _, mn := range m.nodes {
		if mn.Protocol < minProto {
			continue
		}
		if !mn.IsEnabled() {
			scores = append(scores, scored{notEnabledScore, mn})
			continue
		}
		score := CompactScore(CalculateScore(mn.OutPoint(), blockHash))
		scores = append(scores, scored{score, mn})
	}
	sortScores(scores)

	ranks := make([]RankedInfo, 0, len(scores))
	for i, s := range scores {
		ranks = append(ranks, RankedInfo{Rank: i + 1, Info: s.mn.Info()})
	}
	return ranks
}

// rankedScores returns the ordered scores used by GetRank and GetByRank.
// The bool is false when the score block is unknown.
func (m *Manager) rankedScores(height int32, minProto uint32, onlyActive bool) ([]scored, bool) {
	if onlyActive {
		m.mtx.Lock()
		m.check()
		m.mtx.Unlock()
	}

	m.mtx.RLock()
	defer m.mtx.RUnlock()

	blockHash, err := ScoreBlockHash(m.cfg.Chain, height)
	if err != nil {
		return nil, false
	}
	now := m.now()
	scores := make([]scored, 0, len(m.nodes))
	for _, mn := range m.nodes {
		if mn.Protocol < minProto || m.tooYoung(mn, now) {
			continue
		}
		if onlyActive && !mn.IsEnabled() {
			continue
		}
		score := CompactScore(CalculateScore(mn.OutPoint(), blockHash))
		scores = append(scores, scored{score, mn})
	}
	sortScores(scores)
	return scores, true
}

// GetRank returns the 1-based rank of the masternode with collateral op at
// height, or -1 when it is not ranked or the block is unknown.
func (m *Manager) GetRank(op wire.OutPoint, height int32, minProto uint32, onlyActive bool) int {
	scores, ok := m.rankedScores(height, minProto, onlyActive)
	if !ok {
		return -1
	}
	for i, s := range scores {
		if s.mn.OutPoint() == op {
			return i + 1
		}
	}
	return -1
}

// GetByRank returns the masternode with the given 1-based rank at height.
func (m *Manager) GetByRank(rank int, height int32, minProto uint32, onlyActive bool) (Info, bool) {
	scores, ok := m.rankedScores(height, minProto, onlyActive)
	if !ok || rank < 1 || rank > len(scores) {
		return Info{}, false
	}
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	return scores[rank-1].mn.Info(), true
}

// GetCurrentMasternode returns the enabled masternode with the highest score
// at height.  mod is accepted for compatibility and not used.
func (m *Manager) GetCurrentMasternode(mod int, height int32, minProto uint32) (Info, bool) {
	m.mtx.Lock()
	m.check()
	m.mtx.Unlock()

	m.mtx.RLock()
	defer m.mtx.RUnlock()

	blockHash, err := ScoreBlockHash(m.cfg.Chain, height)
	if err != nil {
		return Info{}, false
	}
	var (
		best   int64
		winner *Masternode
	)
	for _, mn := range m.nodes {
		if mn.Protocol < minProto || !mn.IsEnabled() {
			continue
		}
		score := CompactScore(CalculateScore(mn.OutPoint(), blockHash))
		if score > best {
			best = score
			winner = mn
		}
	}
	if winner == nil {
		return Info{}, false
	}
	return winner.Info(), true
}

// DsegUpdate asks node for the full list.  On mainnet a public peer is asked
// at most once per DsegSeconds.
func (m *Manager) DsegUpdate(node mnpeer.Node) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	na := node.NA()
	ip := na.IP.String()
	if m.cfg.Params.IsMainNet && !(na.IsRFC1918() || na.IsLocal()) {
		if deadline, ok := m.weAskedForList[ip]; ok && m.now() < deadline {
			log.Debugf("obseg - we already asked peer %d for the list; "+
				"skipping...", node.ID())
			return
		}
	}
	node.QueueMessage(mnwire.NewMsgDseg(mnwire.EmptyTxIn()), nil)
	m.weAskedForList[ip] = m.now() + DsegSeconds
}

func (m *Manager) askForMN(node mnpeer.Node, vin wire.TxIn) {
	op := vin.PreviousOutPoint
	now := m.now()
	if deadline, ok := m.weAskedForEntry[op]; ok && now < deadline {
		// We've asked recently.
		return
	}
	log.Debugf("Asking node %d for missing entry %s", node.ID(), op.Hash)
	node.QueueMessage(mnwire.NewMsgDseg(vin), nil)
	m.weAskedForEntry[op] = now + MinMNPSeconds
}

// AskForMN asks node for the announcement of vin, at most once per
// MinMNPSeconds for each collateral.
func (m *Manager) AskForMN(node mnpeer.Node, vin wire.TxIn) {
	m.mtx.Lock()
	m.askForMN(node, vin)
	m.mtx.Unlock()
}

// UpdateMasternodeList applies an announcement known to be valid, such as
// the one the local masternode just created.
func (m *Manager) UpdateMasternodeList(b *Broadcast) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	hash := b.Hash()
	ping := &Ping{MsgMNPing: b.LastPing}
	m.seenPings[ping.Hash()] = ping
	m.seenBroadcasts[hash] = b
	m.addedToList(hash)

	log.Debugf("Update masternode list, masternode=%s",
		mnwire.OutPointShort(&b.Vin.PreviousOutPoint))

	if mn := m.find(b.Vin.PreviousOutPoint); mn != nil {
		m.updateFromBroadcast(mn, b)
		return
	}
	m.add(newFromBroadcast(b))
}

// UpdateLocalPing applies a ping signed by the local masternode and relays
// it.  ErrPingTooEarly is returned while the previous ping is younger than
// PingSeconds.
func (m *Manager) UpdateLocalPing(p *Ping) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	op := p.Vin.PreviousOutPoint
	mn := m.find(op)
	if mn == nil {
		return ruleError(ErrUnknownMasternode, fmt.Sprintf("masternode "+
			"list doesn't include %s", mnwire.OutPointShort(&op)))
	}
	if mn.IsPingedWithin(PingSeconds, p.SigTime) {
		return ErrPingTooEarly
	}

	// The cached announcement carries an outdated ping.
	if seen, ok := m.seenBroadcasts[mn.broadcast().Hash()]; ok {
		seen.LastPing = p.MsgMNPing
	}
	mn.LastPing = p.MsgMNPing
	m.seenPings[p.Hash()] = p
	p.Relay(m.cfg.Network)
	return nil
}

// updateFromBroadcast applies a newer announcement to mn.  The embedded ping
// is taken only if it validates.
func (m *Manager) updateFromBroadcast(mn *Masternode, b *Broadcast) bool {
	if b.SigTime <= mn.SigTime {
		return false
	}
	mn.PubKeyOperator = b.PubKeyOperator
	mn.PubKeyCollateral = b.PubKeyCollateral
	mn.SigTime = b.SigTime
	mn.Sig = b.Sig
	mn.Protocol = b.Protocol
	mn.Addr = b.Addr
	mn.LastChecked = 0

	ping := &Ping{MsgMNPing: b.LastPing}
	if ping.IsZero() {
		mn.LastPing = ping.MsgMNPing
		return true
	}
	if _, err := ping.checkAndUpdate(m, false, false); err != nil {
		return true
	}
	mn.LastPing = ping.MsgMNPing
	m.seenPings[ping.Hash()] = ping
	return true
}

// LookupBroadcast returns the seen announcement with hash.
func (m *Manager) LookupBroadcast(hash *chainhash.Hash) (*mnwire.MsgMNBroadcast, bool) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	b, ok := m.seenBroadcasts[*hash]
	if !ok {
		return nil, false
	}
	msg := b.MsgMNBroadcast
	return &msg, true
}

// LookupPing returns the seen ping with hash.
func (m *Manager) LookupPing(hash *chainhash.Hash) (*mnwire.MsgMNPing, bool) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	p, ok := m.seenPings[*hash]
	if !ok {
		return nil, false
	}
	msg := p.MsgMNPing
	return &msg, true
}

// HaveInventory reports whether the announcement or ping named by iv was
// already seen.
func (m *Manager) HaveInventory(iv *wire.InvVect) bool {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	switch iv.Type {
	case mnwire.InvTypeMasternodeAnnounce:
		_, ok := m.seenBroadcasts[iv.Hash]
		return ok
	case mnwire.InvTypeMasternodePing:
		_, ok := m.seenPings[iv.Hash]
		return ok
	}
	return false
}

// ProcessMessage handles the masternode list messages: fnb, fnp, obseg and
// the legacy obsee and obseep.  Other messages are ignored.
func (m *Manager) ProcessMessage(node mnpeer.Node, msg wire.Message) {
	if !m.blockchainSynced() {
		return
	}

	switch msg := msg.(type) {
	case *mnwire.MsgMNBroadcast:
		m.handleBroadcast(node, msg)
	case *mnwire.MsgMNPing:
		m.handlePing(node, msg)
	case *mnwire.MsgDseg:
		m.handleDseg(node, msg)
	case *mnwire.MsgDsee:
		m.handleDsee(node, msg)
	case *mnwire.MsgDseep:
		m.handleDseep(node, msg)
	}
}

func (m *Manager) handleBroadcast(node mnpeer.Node, msg *mnwire.MsgMNBroadcast) {
	b := &Broadcast{MsgMNBroadcast: *msg}
	hash := b.Hash()
	short := b.Vin.PreviousOutPoint.Hash.String()

	m.mtx.Lock()
	defer m.mtx.Unlock()

	if _, ok := m.seenBroadcasts[hash]; ok {
		m.addedToList(hash)
		return
	}
	m.seenBroadcasts[hash] = b

	dos, err := b.checkAndUpdate(m)
	if err != nil {
		if errors.Is(err, ErrRetryLater) {
			delete(m.seenBroadcasts, hash)
		}
		log.Debugf("fnb - Rejected masternode entry %s from %s: %v", short,
			node.Addr(), err)
		mnpeer.Misbehaving(node, dos, "fnb: "+err.Error())
		return
	}

	// Make sure the signed collateral pays the announced key.  This is
	// checked once per announcement.
	if err := b.checkCollateralKey(m.cfg.Chain); err != nil {
		if errors.Is(err, ErrRetryLater) {
			delete(m.seenBroadcasts, hash)
			return
		}
		log.Debugf("fnb - Got mismatched pubkey and vin %s: %v", short, err)
		mnpeer.Misbehaving(node, 33, "fnb: "+err.Error())
		return
	}

	dos, err = b.checkInputsAndAdd(m)
	if err != nil {
		log.Debugf("fnb - Rejected masternode entry %s from %s: %v", short,
			node.Addr(), err)
		mnpeer.Misbehaving(node, dos, "fnb: "+err.Error())
		return
	}
	m.addedToList(hash)
}

func (m *Manager) handlePing(node mnpeer.Node, msg *mnwire.MsgMNPing) {
	p := &Ping{MsgMNPing: *msg}
	hash := p.Hash()

	log.Tracef("fnp - Masternode ping, vin: %s", p.Vin.PreviousOutPoint.Hash)

	m.mtx.Lock()
	defer m.mtx.Unlock()

	if _, ok := m.seenPings[hash]; ok {
		return
	}
	m.seenPings[hash] = p

	dos, err := p.checkAndUpdate(m, true, false)
	if err == nil {
		return
	}
	if errors.Is(err, ErrRetryLater) {
		delete(m.seenPings, hash)
	}
	log.Debugf("fnp - Rejected ping from %s: %v", node.Addr(), err)

	if dos > 0 {
		mnpeer.Misbehaving(node, dos, "fnp: "+err.Error())
	} else if m.find(p.Vin.PreviousOutPoint) != nil {
		// Known, no need to ask for the announcement.
		return
	}

	// Something significant is broken or the masternode is unknown.
	m.askForMN(node, p.Vin)
}

func (m *Manager) handleDseg(node mnpeer.Node, msg *mnwire.MsgDseg) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	all := mnwire.IsEmptyTxIn(&msg.Vin)
	if all {
		na := node.NA()
		isLocal := na.IsRFC1918() || na.IsLocal()
		if !isLocal && m.cfg.Params.IsMainNet {
			ip := na.IP.String()
			if deadline, ok := m.askedUsForList[ip]; ok && m.now() < deadline {
				log.Debugf("obseg - peer %s already asked me for the list",
					node.Addr())
				mnpeer.Misbehaving(node, 34, "obseg: list requested again")
				return
			}
			m.askedUsForList[ip] = m.now() + DsegSeconds
		}
	}

	var count int32
	for _, mn := range m.nodes {
		// Local network.
		if mn.Addr.IsRFC1918() || !mn.IsEnabled() {
			continue
		}
		if !all && mn.OutPoint() != msg.Vin.PreviousOutPoint {
			continue
		}

		b := mn.broadcast()
		hash := b.Hash()
		node.QueueInventory(wire.NewInvVect(mnwire.InvTypeMasternodeAnnounce,
			&hash))
		count++
		if _, ok := m.seenBroadcasts[hash]; !ok {
			m.seenBroadcasts[hash] = b
		}

		if !all {
			log.Debugf("obseg - Sent 1 masternode entry to peer %d",
				node.ID())
			return
		}
	}

	if all {
		node.QueueMessage(mnwire.NewMsgSyncStatusCount(mnwire.SyncList,
			count), nil)
		log.Debugf("obseg - Sent %d masternode entries to peer %d", count,
			node.ID())
	}
}

// String returns a summary of the list and the gossip bookkeeping.
func (m *Manager) String() string {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	return fmt.Sprintf("Masternodes: %d, peers who asked us for Masternode "+
		"list: %d, peers we asked for Masternode list: %d, entries in "+
		"Masternode list we asked for: %d, nDsqCount: %d", len(m.nodes),
		len(m.askedUsForList), len(m.weAskedForList),
		len(m.weAskedForEntry), m.dsqCount)
}
