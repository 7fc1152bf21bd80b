// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/divitproject/mnd/activemn"
	"github.com/divitproject/mnd/banscore"
	"github.com/divitproject/mnd/chainview"
	"github.com/divitproject/mnd/database/engine"
	"github.com/divitproject/mnd/internal/version"
	"github.com/divitproject/mnd/masternode"
	"github.com/divitproject/mnd/mnconf"
	"github.com/divitproject/mnd/mnpayments"
	"github.com/divitproject/mnd/mnpeer"
	"github.com/divitproject/mnd/mnsync"
	"github.com/divitproject/mnd/mnwire"
	"github.com/divitproject/mnd/msgsign"
	"github.com/divitproject/mnd/netparams"
	"github.com/divitproject/mnd/spork"
)

const (
	// connectionRetryInterval is the base amount of time to wait in
	// between retries when connecting to persistent peers.  It is adjusted
	// by the number of retries such that there is a retry backoff.
	connectionRetryInterval = time.Second * 5

	// maxConnectionRetryInterval is the longest a persistent peer waits
	// before the next attempt.
	maxConnectionRetryInterval = time.Minute * 5

	// dialTimeout bounds direct outbound dials.
	dialTimeout = time.Second * 30

	// maintenanceSeconds is the interval in ticks of the list and ledger
	// cleanup.
	maintenanceSeconds = 60

	// dumpSeconds is the interval in ticks of the cache file dumps.
	dumpSeconds = 15 * 60

	// paymentVoteLead is how far past the tip the local masternode votes.
	paymentVoteLead = 10

	mnCacheFilename      = "mncache.dat"
	mnPaymentsFilename   = "mnpayments.dat"
	sporkDBDirectoryName = "sporks"
)

// server provides the masternode network service: it accepts and makes peer
// connections, dispatches their messages to the managers and drives the
// periodic work.
type server struct {
	started  int32
	shutdown int32

	cfg    *config
	params *netparams.Params
	chain  chainview.Chain
	db     engine.Engine

	sporks   *spork.Manager
	mnodes   *masternode.Manager
	payments *mnpayments.Payments
	sync     *mnsync.Coordinator
	active   *activemn.ActiveMasternode
	mnConf   *mnconf.Config

	dial    activemn.DialFunc
	banList *banscore.BanList

	peerMtx sync.RWMutex
	peers   map[int32]*mnpeer.Peer

	listeners []net.Listener

	// Only touched by the maintenance handler.
	lastTip         int32
	relayBroadcasts []*masternode.Broadcast

	quit chan struct{}
	wg   sync.WaitGroup
}

// Ensure server implements the mnpeer.Network interface.
var _ mnpeer.Network = (*server)(nil)

// RelayInventory announces iv to every connected peer.  Each peer skips
// inventory it already knows.
func (s *server) RelayInventory(iv *wire.InvVect) {
	s.peerMtx.RLock()
	defer s.peerMtx.RUnlock()
	for _, p := range s.peers {
		if p.Connected() {
			p.QueueInventory(iv)
		}
	}
}

// ConnectedNodes returns the connected peers.
func (s *server) ConnectedNodes() []mnpeer.Node {
	s.peerMtx.RLock()
	defer s.peerMtx.RUnlock()
	nodes := make([]mnpeer.Node, 0, len(s.peers))
	for _, p := range s.peers {
		if p.Connected() {
			nodes = append(nodes, p)
		}
	}
	return nodes
}

// ConnectedCount returns the number of currently connected peers.
func (s *server) ConnectedCount() int {
	s.peerMtx.RLock()
	defer s.peerMtx.RUnlock()
	return len(s.peers)
}

// addPeer tracks a negotiated peer.  Peers finishing negotiation after
// shutdown started are disconnected right away.
func (s *server) addPeer(p *mnpeer.Peer) {
	s.peerMtx.Lock()
	s.peers[p.ID()] = p
	s.peerMtx.Unlock()
	if atomic.LoadInt32(&s.shutdown) != 0 {
		p.Disconnect()
		return
	}
	srvrLog.Debugf("New peer %s", p)
}

func (s *server) removePeer(p *mnpeer.Peer) {
	s.peerMtx.Lock()
	delete(s.peers, p.ID())
	s.peerMtx.Unlock()
	srvrLog.Debugf("Removed peer %s", p)
}

// peerConfig returns the configuration shared by all peers.
func (s *server) peerConfig() *mnpeer.Config {
	return &mnpeer.Config{
		Net:                s.params.Net,
		ProtocolVersion:    s.params.ProtocolVersion,
		MinProtocolVersion: s.params.MinPeerProtoBeforeEnforcement,
		BestHeight: func() int32 {
			height, _ := s.chain.BestHeight()
			return height
		},
		UserAgentVersion: version.String(),
		BanThreshold:     s.cfg.BanThreshold,
		Listeners: mnpeer.MessageListeners{
			OnMessage: func(p *mnpeer.Peer, msg wire.Message) {
				s.handleMessage(p, msg)
			},
			OnBan: s.handleBan,
		},
	}
}

// knownInventoryAdder is implemented by peers that track the inventory they
// were sent.
type knownInventoryAdder interface {
	AddKnownInventory(iv *wire.InvVect)
}

func addKnownInventory(node mnpeer.Node, invType wire.InvType, hash chainhash.Hash) {
	if k, ok := node.(knownInventoryAdder); ok {
		k.AddKnownInventory(wire.NewInvVect(invType, &hash))
	}
}

// handleMessage dispatches a message from node to the manager owning its
// command.
func (s *server) handleMessage(node mnpeer.Node, msg wire.Message) {
	switch m := msg.(type) {
	case *wire.MsgInv:
		s.handleInv(node, m)

	case *wire.MsgGetData:
		s.handleGetData(node, m)

	case *wire.MsgNotFound:

	case *mnwire.MsgMNBroadcast:
		addKnownInventory(node, mnwire.InvTypeMasternodeAnnounce, m.Hash())
		s.mnodes.ProcessMessage(node, m)

	case *mnwire.MsgMNPing:
		addKnownInventory(node, mnwire.InvTypeMasternodePing, m.Hash())
		s.mnodes.ProcessMessage(node, m)

	case *mnwire.MsgDseg, *mnwire.MsgDsee, *mnwire.MsgDseep:
		s.mnodes.ProcessMessage(node, m)

	case *mnwire.MsgMNWinner:
		addKnownInventory(node, mnwire.InvTypeMasternodeWinner, m.Hash())
		s.payments.ProcessMessage(node, m)

	case *mnwire.MsgMNGet:
		s.payments.ProcessMessage(node, m)

	case *mnwire.MsgSyncStatusCount:
		s.sync.ProcessMessage(node, m)

	case *mnwire.MsgSpork:
		addKnownInventory(node, mnwire.InvTypeSpork, m.Hash())
		s.sporks.ProcessMessage(node, m)

	case *mnwire.MsgGetSporks:
		s.sporks.ProcessMessage(node, m)

	case *mnwire.MsgBudgetVoteSync:
		srvrLog.Tracef("Ignoring %s from %s", m.Command(), node.Addr())

	default:
		srvrLog.Tracef("Unhandled %s from %s", msg.Command(), node.Addr())
	}
}

// haveInventory reports whether the inventory is already known.  Inventory
// of other kinds is reported as known so it is never requested.
func (s *server) haveInventory(iv *wire.InvVect) bool {
	switch iv.Type {
	case mnwire.InvTypeSpork:
		_, ok := s.sporks.Lookup(&iv.Hash)
		return ok
	case mnwire.InvTypeMasternodeAnnounce, mnwire.InvTypeMasternodePing:
		return s.mnodes.HaveInventory(iv)
	case mnwire.InvTypeMasternodeWinner:
		return s.payments.HaveInventory(iv)
	}
	return true
}

// handleInv requests the announced masternode data that is not known yet.
func (s *server) handleInv(node mnpeer.Node, msg *wire.MsgInv) {
	getData := wire.NewMsgGetData()
	for _, iv := range msg.InvList {
		if s.haveInventory(iv) {
			continue
		}
		if err := getData.AddInvVect(iv); err != nil {
			break
		}
	}
	if len(getData.InvList) > 0 {
		node.QueueMessage(getData, nil)
	}
}

// lookupInventory returns the message for iv.
func (s *server) lookupInventory(iv *wire.InvVect) (wire.Message, bool) {
	switch iv.Type {
	case mnwire.InvTypeSpork:
		if msg, ok := s.sporks.Lookup(&iv.Hash); ok {
			return msg, true
		}
	case mnwire.InvTypeMasternodeAnnounce:
		if msg, ok := s.mnodes.LookupBroadcast(&iv.Hash); ok {
			return msg, true
		}
	case mnwire.InvTypeMasternodePing:
		if msg, ok := s.mnodes.LookupPing(&iv.Hash); ok {
			return msg, true
		}
	case mnwire.InvTypeMasternodeWinner:
		if msg, ok := s.payments.LookupWinner(&iv.Hash); ok {
			return msg, true
		}
	}
	return nil, false
}

// handleGetData sends the requested masternode data.  Unknown items are
// answered with a single notfound message.
func (s *server) handleGetData(node mnpeer.Node, msg *wire.MsgGetData) {
	notFound := wire.NewMsgNotFound()
	for _, iv := range msg.InvList {
		data, ok := s.lookupInventory(iv)
		if !ok {
			notFound.AddInvVect(iv)
			continue
		}
		node.QueueMessage(data, nil)
	}
	if len(notFound.InvList) > 0 {
		node.QueueMessage(notFound, nil)
	}
}

// handleBan bans the host of a peer whose ban score reached the threshold.
func (s *server) handleBan(p *mnpeer.Peer, reason string) {
	host, _, err := net.SplitHostPort(p.Addr())
	if err != nil {
		srvrLog.Debugf("can't split ban peer %s: %v", p.Addr(), err)
		return
	}
	s.banList.Ban(host, time.Now().Add(s.cfg.BanDuration))
	srvrLog.Infof("Banned peer %s (%s) for %v", host, reason,
		s.cfg.BanDuration)
}

// inboundPeerConnected negotiates with an accepted connection and runs the
// peer until it disconnects.
func (s *server) inboundPeerConnected(conn net.Conn) {
	defer s.wg.Done()

	p, err := mnpeer.NewInboundPeer(s.peerConfig(), conn)
	if err != nil {
		srvrLog.Debugf("Cannot start inbound peer %s: %v",
			conn.RemoteAddr(), err)
		return
	}
	s.addPeer(p)
	p.WaitForDisconnect()
	s.removePeer(p)
}

// listenHandler accepts incoming connections on a given listener.  It must
// be run as a goroutine.
func (s *server) listenHandler(listener net.Listener) {
	defer s.wg.Done()

	srvrLog.Infof("Server listening on %s", listener.Addr())
	for atomic.LoadInt32(&s.shutdown) == 0 {
		conn, err := listener.Accept()
		if err != nil {
			// Only log the error if not forcibly shutting down.
			if atomic.LoadInt32(&s.shutdown) == 0 {
				srvrLog.Errorf("Can't accept connection: %v", err)
			}
			continue
		}

		host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
		if err == nil && s.banList.IsBanned(host, time.Now()) {
			srvrLog.Debugf("Rejecting banned peer %s", host)
			conn.Close()
			continue
		}
		if s.ConnectedCount() >= s.cfg.MaxPeers {
			srvrLog.Infof("Max peers reached [%d] - disconnecting "+
				"peer %s", s.cfg.MaxPeers, conn.RemoteAddr())
			conn.Close()
			continue
		}

		s.wg.Add(1)
		go s.inboundPeerConnected(conn)
	}
	srvrLog.Tracef("Listener handler done for %s", listener.Addr())
}

// connectionHandler keeps a persistent outbound connection to addr, retrying
// with a backoff.  It must be run as a goroutine.
func (s *server) connectionHandler(addr string) {
	defer s.wg.Done()

	retry := connectionRetryInterval
	for {
		conn, err := s.dial("tcp", addr)
		if err == nil {
			var p *mnpeer.Peer
			p, err = mnpeer.NewOutboundPeer(s.peerConfig(), conn, addr)
			if err == nil {
				retry = connectionRetryInterval
				s.addPeer(p)
				p.WaitForDisconnect()
				s.removePeer(p)
			}
		}
		if err != nil {
			srvrLog.Debugf("Failed to connect to %s: %v", addr, err)
		}

		srvrLog.Debugf("Retrying connection to %s in %v", addr, retry)
		select {
		case <-s.quit:
			return
		case <-time.After(retry):
		}
		retry *= 2
		if retry > maxConnectionRetryInterval {
			retry = maxConnectionRetryInterval
		}
	}
}

// localAddr returns the first routable address of the host on the default
// port of the network.
func (s *server) localAddr() (mnwire.ServiceAddr, bool) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return mnwire.ServiceAddr{}, false
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		sa := mnwire.ServiceAddr{IP: ipNet.IP, Port: s.params.DefaultPort}
		if sa.IsRoutable() {
			return sa, true
		}
	}
	return mnwire.ServiceAddr{}, false
}

// checkTip votes for the payee of an upcoming block when the tip moved.
func (s *server) checkTip() {
	height, err := s.chain.BestHeight()
	if err != nil || height == s.lastTip {
		return
	}
	s.lastTip = height
	if s.sync.IsMasternodeListSynced() {
		s.payments.ProcessBlock(height + paymentVoteLead)
	}
}

// relayPendingBroadcasts relays the configured announcements once the list
// is synced.
func (s *server) relayPendingBroadcasts() {
	if len(s.relayBroadcasts) == 0 || !s.sync.IsMasternodeListSynced() {
		return
	}
	for _, b := range s.relayBroadcasts {
		op := b.Vin.PreviousOutPoint
		if _, err := b.CheckAndUpdate(s.mnodes); err != nil {
			srvrLog.Warnf("Not relaying announcement of %s: %v",
				mnwire.OutPointShort(&op), err)
			continue
		}
		s.mnodes.UpdateMasternodeList(b)
		b.Relay(s)
		srvrLog.Infof("Relayed announcement of %s", mnwire.OutPointShort(&op))
	}
	s.relayBroadcasts = nil
}

// maintenanceHandler runs the periodic work of the managers.  It must be run
// as a goroutine.
func (s *server) maintenanceHandler() {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var tick int64
	for {
		select {
		case <-ticker.C:
			s.sync.Process()
			s.checkTip()
			s.relayPendingBroadcasts()

			if !s.sync.IsBlockchainSynced() {
				continue
			}
			tick++

			if s.active != nil && tick%masternode.PingSeconds == 1 {
				s.active.ManageStatus()
			}
			if tick%maintenanceSeconds == 0 {
				s.mnodes.CheckAndRemove(false)
				s.payments.CleanPaymentList()
				s.banList.Prune(time.Now())
			}
			if tick%dumpSeconds == 0 {
				s.dumpCaches()
			}

		case <-s.quit:
			return
		}
	}
}

// dumpCaches writes the masternode list and payment votes to disk.
func (s *server) dumpCaches() {
	path := filepath.Join(s.cfg.DataDir, mnCacheFilename)
	if err := masternode.DumpManager(path, s.mnodes); err != nil {
		srvrLog.Errorf("Failed to dump masternode cache: %v", err)
	}
	path = filepath.Join(s.cfg.DataDir, mnPaymentsFilename)
	if err := mnpayments.DumpPayments(path, s.payments); err != nil {
		srvrLog.Errorf("Failed to dump payment votes: %v", err)
	}
}

// loadCaches restores the masternode list and payment votes.  Failures leave
// the state empty.
func (s *server) loadCaches() {
	path := filepath.Join(s.cfg.DataDir, mnCacheFilename)
	if res, err := masternode.LoadManager(path, s.mnodes, false); err != nil {
		srvrLog.Warnf("Masternode cache not loaded (%v): %v", res, err)
	} else {
		srvrLog.Infof("Loaded masternode cache: %v", s.mnodes)
	}
	path = filepath.Join(s.cfg.DataDir, mnPaymentsFilename)
	if res, err := mnpayments.LoadPayments(path, s.payments, false); err != nil {
		srvrLog.Warnf("Payment votes not loaded (%v): %v", res, err)
	} else {
		srvrLog.Infof("Loaded payment votes: %v", s.payments)
	}
}

// Start begins accepting connections from peers.
func (s *server) Start() {
	// Already started?
	if atomic.AddInt32(&s.started, 1) != 1 {
		return
	}

	srvrLog.Trace("Starting server")

	for _, listener := range s.listeners {
		s.wg.Add(1)
		go s.listenHandler(listener)
	}

	addrs := s.cfg.ConnectPeers
	if len(addrs) == 0 {
		addrs = s.cfg.AddPeers
	}
	for _, addr := range addrs {
		s.wg.Add(1)
		go s.connectionHandler(addr)
	}

	s.wg.Add(1)
	go s.maintenanceHandler()
}

// Stop gracefully shuts down the server by stopping and disconnecting all
// peers and the main listener.
func (s *server) Stop() error {
	// Make sure this only happens once.
	if atomic.AddInt32(&s.shutdown, 1) != 1 {
		srvrLog.Infof("Server is already in the process of shutting down")
		return nil
	}

	srvrLog.Warnf("Server shutting down")

	// Stop all the listeners.  There will not be any if listening is
	// disabled.
	var err error
	for _, listener := range s.listeners {
		if e := listener.Close(); e != nil && err == nil {
			err = e
		}
	}

	close(s.quit)

	s.peerMtx.RLock()
	for _, p := range s.peers {
		p.Disconnect()
	}
	s.peerMtx.RUnlock()
	return err
}

// WaitForShutdown blocks until the main listener and peer handlers are
// stopped, then writes the caches.
func (s *server) WaitForShutdown() {
	s.wg.Wait()
	s.dumpCaches()
}

// parseListeners opens the listeners for the passed addresses.
func parseListeners(addrs []string) ([]net.Listener, error) {
	listeners := make([]net.Listener, 0, len(addrs))
	for _, addr := range addrs {
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			srvrLog.Warnf("Can't listen on %s: %v", addr, err)
			continue
		}
		listeners = append(listeners, listener)
	}
	if len(addrs) > 0 && len(listeners) == 0 {
		return nil, errors.New("no valid listen address")
	}
	return listeners, nil
}

// newServer returns a new mnd server configured to serve the masternode
// network over chain.  db may be nil, in which case sporks are not persisted.
func newServer(cfg *config, params *netparams.Params, chain chainview.Chain,
	db engine.Engine) (*server, error) {

	s := &server{
		cfg:     cfg,
		params:  params,
		chain:   chain,
		db:      db,
		banList: banscore.NewBanList(),
		peers:   make(map[int32]*mnpeer.Peer),
		lastTip: -1,
		quit:    make(chan struct{}),
	}

	s.dial = func(network, addr string) (net.Conn, error) {
		return net.DialTimeout(network, addr, dialTimeout)
	}
	if cfg.Proxy != "" {
		s.dial = activemn.ProxyDialer(cfg.Proxy, cfg.ProxyUser, cfg.ProxyPass)
	}

	s.sporks = spork.New(&spork.Config{
		Params:  params,
		DB:      db,
		Network: s,
		HasTip: func() bool {
			_, err := chain.BestHeight()
			return err == nil
		},
	})
	if cfg.SporkKey != "" {
		if err := s.sporks.SetPrivKey(cfg.SporkKey); err != nil {
			return nil, fmt.Errorf("invalid spork key: %w", err)
		}
	}
	if err := s.sporks.LoadFromDB(); err != nil {
		return nil, err
	}

	var operatorKey *msgsign.Key
	if cfg.Masternode {
		var err error
		operatorKey, err = msgsign.DecodeKey(cfg.MasternodePrivKey)
		if err != nil {
			return nil, fmt.Errorf("invalid masternode key: %w", err)
		}
	}

	s.mnodes = masternode.New(&masternode.Config{
		Params:  params,
		Chain:   chain,
		Sporks:  s.sporks,
		Network: s,
	})
	s.payments = mnpayments.New(&mnpayments.Config{
		Params:      params,
		Chain:       chain,
		Registry:    s.mnodes,
		Sporks:      s.sporks,
		Network:     s,
		Reward:      netparams.DefaultReward,
		OperatorKey: operatorKey,
	})
	s.sync = mnsync.New(&mnsync.Config{
		Params:   params,
		Chain:    chain,
		Registry: s.mnodes,
		Payments: s.payments,
		Sporks:   s.sporks,
		Network:  s,
	})
	s.mnodes.SetSyncNotifier(s.sync)
	s.payments.SetSyncNotifier(s.sync)

	if operatorKey != nil {
		var collateralKey *msgsign.Key
		var collateral wire.OutPoint
		if cfg.CollateralKey != "" {
			var err error
			collateralKey, err = msgsign.DecodeKey(cfg.CollateralKey)
			if err != nil {
				return nil, fmt.Errorf("invalid collateral key: %w", err)
			}
			hash, err := chainhash.NewHashFromStr(cfg.CollateralTx)
			if err != nil {
				return nil, err
			}
			collateral = wire.OutPoint{Hash: *hash, Index: cfg.CollateralIndex}
		}

		s.active = activemn.New(&activemn.Config{
			Params:       params,
			Chain:        chain,
			Registry:     s.mnodes,
			Sync:         s.sync,
			Wallet:       activemn.NewKeyWallet(params, chain, collateralKey, collateral),
			Sporks:       s.sporks,
			Network:      s,
			OperatorKey:  operatorKey,
			ExternalAddr: cfg.MasternodeAddr,
			LocalAddr:    s.localAddr,
			Dial:         s.dial,
		})
		s.mnodes.SetActiveAgent(s.active)
		s.payments.SetActiveAgent(s.active)
		s.sync.SetActiveAgent(s.active)
	}

	if cfg.MNConf != "" {
		mnConf, err := mnconf.Read(cfg.MNConf, params)
		if err != nil {
			return nil, err
		}
		s.mnConf = mnConf
		srvrLog.Infof("Read %d masternodes from %s", mnConf.Count(),
			cfg.MNConf)
	}

	for _, raw := range cfg.RelayBroadcasts {
		b, err := masternode.DecodeBroadcastHex(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid relaybroadcast: %w", err)
		}
		s.relayBroadcasts = append(s.relayBroadcasts, b)
	}

	s.loadCaches()

	if !cfg.DisableListen {
		listeners, err := parseListeners(cfg.Listeners)
		if err != nil {
			return nil, err
		}
		s.listeners = listeners
	}
	return s, nil
}
