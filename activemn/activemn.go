// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package activemn runs the local masternode: it registers the collateral on
// the network with a signed announcement and keeps it alive with pings.
package activemn

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/go-socks/socks"
	"github.com/divitproject/mnd/chainview"
	"github.com/divitproject/mnd/masternode"
	"github.com/divitproject/mnd/mnpeer"
	"github.com/divitproject/mnd/mnwire"
	"github.com/divitproject/mnd/msgsign"
	"github.com/divitproject/mnd/netparams"
	"github.com/divitproject/mnd/spork"
)

// Status is the state of the local masternode.
type Status int

// These constants define the states of the local masternode.
const (
	StatusInitial Status = iota
	StatusSyncInProcess
	StatusInputTooNew
	StatusNotCapable
	StatusStarted
)

// inboundTimeout bounds the connection made to our own address.
const inboundTimeout = 10 * time.Second

// ErrNotStarted is returned by SendPing before the masternode is started.
var ErrNotStarted = errors.New("masternode is not in a running status")

// Registry is the masternode list as seen by the local masternode.
// *masternode.Manager implements it.
type Registry interface {
	Check()
	FindByOperatorKey(pubKey []byte) (masternode.Info, bool)
	UpdateMasternodeList(b *masternode.Broadcast)
	UpdateLocalPing(p *masternode.Ping) error
}

// SyncStatus reports chain sync progress.  *mnsync.Coordinator implements
// it.
type SyncStatus interface {
	IsBlockchainSynced() bool
}

// DialFunc connects to an address.
type DialFunc func(network, addr string) (net.Conn, error)

// ProxyDialer returns a DialFunc that connects through the SOCKS5 proxy at
// addr.
func ProxyDialer(addr, user, pass string) DialFunc {
	proxy := &socks.Proxy{
		Addr:     addr,
		Username: user,
		Password: pass,
	}
	return proxy.Dial
}

func directDial(network, addr string) (net.Conn, error) {
	return net.DialTimeout(network, addr, inboundTimeout)
}

// Config is the configuration for an ActiveMasternode.
type Config struct {
	Params   *netparams.Params
	Chain    chainview.Chain
	Registry Registry
	Sync     SyncStatus
	Wallet   Wallet

	// Sporks decides whether legacy obsee and obseep messages are sent
	// along.  Nil means no spork is active.
	Sporks masternode.Sporks

	// Network relays the announcement and pings.  It may be nil.
	Network mnpeer.Network

	// OperatorKey signs pings and payment votes.  Nil disables the local
	// masternode.
	OperatorKey *msgsign.Key

	// ExternalAddr is the configured service address.  When empty,
	// LocalAddr is asked.
	ExternalAddr string
	LocalAddr    func() (mnwire.ServiceAddr, bool)

	// Dial checks that the service address accepts connections.  Nil
	// dials directly.
	Dial DialFunc

	// TimeSource returns the adjusted network time.  Nil means time.Now.
	TimeSource func() time.Time
}

// ActiveMasternode manages the local masternode.
type ActiveMasternode struct {
	cfg Config

	// manageMtx serializes ManageStatus and SendPing.  It is never taken
	// by the methods the registry calls with its own lock held.
	manageMtx sync.Mutex

	mtx              sync.RWMutex
	status           Status
	notCapableReason string
	vin              wire.TxIn
	service          mnwire.ServiceAddr
}

// New returns an ActiveMasternode in the initial state.
func New(cfg *Config) *ActiveMasternode {
	return &ActiveMasternode{cfg: *cfg, status: StatusInitial}
}

func (a *ActiveMasternode) now() int64 {
	if a.cfg.TimeSource != nil {
		return a.cfg.TimeSource().Unix()
	}
	return time.Now().Unix()
}

func (a *ActiveMasternode) sporkActive(id spork.ID) bool {
	return a.cfg.Sporks != nil && a.cfg.Sporks.IsActive(id)
}

func (a *ActiveMasternode) setStatus(s Status, reason string) {
	a.mtx.Lock()
	a.status = s
	a.notCapableReason = reason
	a.mtx.Unlock()
}

// notCapable records why the masternode could not be started.
func (a *ActiveMasternode) notCapable(format string, args ...interface{}) {
	reason := fmt.Sprintf(format, args...)
	a.setStatus(StatusNotCapable, reason)
	log.Infof("Not capable: %s", reason)
}

// Status returns the current state.
func (a *ActiveMasternode) Status() Status {
	a.mtx.RLock()
	defer a.mtx.RUnlock()
	return a.status
}

// GetStatus returns the current state as a human readable string.
func (a *ActiveMasternode) GetStatus() string {
	a.mtx.RLock()
	defer a.mtx.RUnlock()

	switch a.status {
	case StatusInitial:
		return "Node just started, not yet activated"
	case StatusSyncInProcess:
		return "Sync in progress. Must wait until sync is complete to " +
			"start Masternode"
	case StatusInputTooNew:
		return fmt.Sprintf("Masternode input must have at least %d "+
			"confirmations", masternode.MinConfirmations)
	case StatusNotCapable:
		return "Not capable masternode: " + a.notCapableReason
	case StatusStarted:
		return "Masternode successfully started"
	}
	return "unknown"
}

// OperatorKey returns the serialized operator public key, or nil when the
// node runs no masternode.
func (a *ActiveMasternode) OperatorKey() []byte {
	if a.cfg.OperatorKey == nil {
		return nil
	}
	return a.cfg.OperatorKey.PubKey()
}

// CollateralOutPoint returns the collateral of the started masternode.
func (a *ActiveMasternode) CollateralOutPoint() (wire.OutPoint, bool) {
	a.mtx.RLock()
	defer a.mtx.RUnlock()
	return a.vin.PreviousOutPoint, a.status == StatusStarted
}

// Service returns the address the masternode was started with.
func (a *ActiveMasternode) Service() mnwire.ServiceAddr {
	a.mtx.RLock()
	defer a.mtx.RUnlock()
	return a.service
}

// EnableHotColdMasterNode starts the masternode for an announcement made by
// a remote wallet holding the collateral.
func (a *ActiveMasternode) EnableHotColdMasterNode(vin wire.TxIn, addr mnwire.ServiceAddr) bool {
	if a.cfg.OperatorKey == nil {
		return false
	}

	a.mtx.Lock()
	a.status = StatusStarted
	a.notCapableReason = ""
	a.vin = vin
	a.service = addr
	a.mtx.Unlock()

	log.Infof("Enabled! You may shut down the cold daemon.")
	return true
}

// ManageStatus advances the local masternode: it waits for the chain,
// starts the masternode from the wallet or from a remote activation, and
// pings once started.
func (a *ActiveMasternode) ManageStatus() {
	if a.cfg.OperatorKey == nil {
		return
	}

	a.manageMtx.Lock()
	defer a.manageMtx.Unlock()

	log.Tracef("ManageStatus - Begin")

	// Pings need the right blocks.
	if !a.cfg.Params.IsRegTest && !a.cfg.Sync.IsBlockchainSynced() {
		a.setStatus(StatusSyncInProcess, "")
		log.Infof("%s", a.GetStatus())
		return
	}

	if a.Status() == StatusSyncInProcess {
		a.setStatus(StatusInitial, "")
	}

	if a.Status() == StatusInitial {
		a.cfg.Registry.Check()
		info, ok := a.cfg.Registry.FindByOperatorKey(a.OperatorKey())
		if ok && info.IsEnabled() &&
			info.Protocol == a.cfg.Params.ProtocolVersion {

			a.EnableHotColdMasterNode(info.Vin, info.Addr)
		}
	}

	if a.Status() != StatusStarted {
		a.start()
		return
	}

	if err := a.sendPing(); err != nil {
		log.Infof("Error on ping: %v", err)
	}
}

// serviceAddr returns the address to announce.
func (a *ActiveMasternode) serviceAddr() (mnwire.ServiceAddr, error) {
	if a.cfg.ExternalAddr != "" {
		return mnwire.ParseServiceAddr(a.cfg.ExternalAddr)
	}
	if a.cfg.LocalAddr != nil {
		if addr, ok := a.cfg.LocalAddr(); ok {
			return addr, nil
		}
	}
	return mnwire.ServiceAddr{}, errors.New("can't detect external " +
		"address. Please use the masternodeaddr configuration option")
}

// checkInbound connects to addr the way a peer would.
func (a *ActiveMasternode) checkInbound(addr mnwire.ServiceAddr) error {
	dial := a.cfg.Dial
	if dial == nil {
		dial = directDial
	}
	conn, err := dial("tcp", addr.String())
	if err != nil {
		return err
	}
	return conn.Close()
}

// start registers the wallet's collateral on the network.
func (a *ActiveMasternode) start() {
	a.setStatus(StatusNotCapable, "")

	wallet := a.cfg.Wallet
	if wallet == nil || wallet.IsLocked() {
		a.notCapable("Wallet is locked.")
		return
	}
	balance, err := wallet.Balance()
	if err != nil {
		a.notCapable("Could not get the wallet balance: %v", err)
		return
	}
	if balance == 0 {
		a.notCapable("Hot node, waiting for remote activation.")
		return
	}

	service, err := a.serviceAddr()
	if err != nil {
		a.notCapable("%v", err)
		return
	}
	if err := masternode.CheckDefaultPort(a.cfg.Params, service); err != nil {
		a.notCapable("%v", err)
		return
	}

	log.Infof("Checking inbound connection to '%v'", service)
	if err := a.checkInbound(service); err != nil {
		log.Debugf("Inbound check of %v failed: %v", service, err)
		a.notCapable("Could not connect to %v", service)
		return
	}

	op, key, err := wallet.Collateral(nil)
	if err != nil {
		a.notCapable("%v", err)
		return
	}
	age, err := chainview.InputAge(a.cfg.Chain, op)
	if err != nil {
		a.notCapable("Could not check the collateral age: %v", err)
		return
	}
	if age < masternode.MinConfirmations {
		a.setStatus(StatusInputTooNew, "")
		reason := fmt.Sprintf("%s - %d confirmations", a.GetStatus(), age)
		a.setStatus(StatusInputTooNew, reason)
		log.Infof("%s", reason)
		return
	}

	wallet.LockCoin(op)

	vin := mnwire.NewTxIn(op)
	b, err := a.createBroadcast(vin, service, key)
	if err != nil {
		a.notCapable("Error on Register: %v", err)
		return
	}
	a.relayLegacyAnnounce(vin, service, key)

	log.Infof("Relay broadcast vin = %s", mnwire.TxInString(&vin))
	a.cfg.Registry.UpdateMasternodeList(b)
	b.Relay(a.cfg.Network)

	a.mtx.Lock()
	a.status = StatusStarted
	a.notCapableReason = ""
	a.vin = vin
	a.service = service
	a.mtx.Unlock()

	log.Infof("Is capable master node!")
}

// createBroadcast signs an announcement for vin anchored to the current
// ping anchor.
func (a *ActiveMasternode) createBroadcast(vin wire.TxIn,
	service mnwire.ServiceAddr, collateralKey *msgsign.Key) (*masternode.Broadcast, error) {

	anchor, err := masternode.PingAnchor(a.cfg.Chain)
	if err != nil {
		return nil, fmt.Errorf("no ping anchor: %w", err)
	}
	return masternode.CreateBroadcast(a.cfg.Params, vin, service,
		collateralKey, a.cfg.OperatorKey, anchor, a.now())
}

// CreateBroadcast builds a signed announcement for the masternode at
// service backed by the collateral op, to be relayed by the caller.  Unless
// offline, the chain must be synced.
func (a *ActiveMasternode) CreateBroadcast(service string, op wire.OutPoint,
	offline bool) (*masternode.Broadcast, error) {

	if a.cfg.OperatorKey == nil {
		return nil, errors.New("no masternode operator key")
	}
	if !offline && (a.cfg.Sync == nil || !a.cfg.Sync.IsBlockchainSynced()) {
		return nil, errors.New("sync in progress. Must wait until sync " +
			"is complete to start Masternode")
	}

	addr, err := mnwire.ParseServiceAddr(service)
	if err != nil {
		return nil, fmt.Errorf("invalid masternode address %q: %w",
			service, err)
	}
	if err := masternode.CheckDefaultPort(a.cfg.Params, addr); err != nil {
		return nil, err
	}

	collateral, key, err := a.cfg.Wallet.Collateral(&op)
	if err != nil {
		return nil, fmt.Errorf("could not allocate vin %s for masternode "+
			"%s: %w", mnwire.OutPointShort(&op), service, err)
	}
	return a.createBroadcast(mnwire.NewTxIn(collateral), addr, key)
}

// SendPing signs a ping for the started masternode, applies it to the list
// and relays it.
func (a *ActiveMasternode) SendPing() error {
	a.manageMtx.Lock()
	defer a.manageMtx.Unlock()
	return a.sendPing()
}

func (a *ActiveMasternode) sendPing() error {
	a.mtx.RLock()
	status, vin, service := a.status, a.vin, a.service
	a.mtx.RUnlock()
	if status != StatusStarted {
		return ErrNotStarted
	}

	anchor, err := masternode.PingAnchor(a.cfg.Chain)
	if err != nil {
		return fmt.Errorf("no ping anchor: %w", err)
	}
	now := a.now()
	ping := masternode.NewPing(vin, anchor, now)
	if err := ping.Sign(a.cfg.OperatorKey, a.cfg.Params.MessageMagic, now); err != nil {
		return fmt.Errorf("couldn't sign masternode ping: %w", err)
	}

	log.Debugf("Relay masternode ping vin = %s", mnwire.TxInString(&vin))
	err = a.cfg.Registry.UpdateLocalPing(ping)
	switch {
	case errors.Is(err, masternode.ErrPingTooEarly):
		return errors.New("too early to send masternode ping")
	case masternode.IsErrorCode(err, masternode.ErrUnknownMasternode):
		// We are pinging while the network does not list us.
		reason := "Masternode list doesn't include our masternode, " +
			"shutting down masternode pinging service! " +
			mnwire.TxInString(&vin)
		a.setStatus(StatusNotCapable, reason)
		return errors.New(reason)
	case err != nil:
		return err
	}

	a.relayLegacyPing(vin, service)
	return nil
}

// relayLegacyAnnounce sends obsee to every peer while old-protocol
// masternodes are still paid.
func (a *ActiveMasternode) relayLegacyAnnounce(vin wire.TxIn,
	service mnwire.ServiceAddr, collateralKey *msgsign.Key) {

	if a.cfg.Network == nil || a.sporkActive(spork.MasternodePayUpdatedNodes) {
		return
	}
	msg, err := masternode.NewLegacyDsee(a.cfg.Params, vin, service,
		collateralKey, a.cfg.OperatorKey, a.now())
	if err != nil {
		log.Errorf("Failed to create legacy announcement: %v", err)
		return
	}
	for _, node := range a.cfg.Network.ConnectedNodes() {
		node.QueueMessage(msg, nil)
	}
}

// relayLegacyPing sends obseep to every peer while old-protocol masternodes
// are still paid.
func (a *ActiveMasternode) relayLegacyPing(vin wire.TxIn, service mnwire.ServiceAddr) {
	if a.cfg.Network == nil || a.sporkActive(spork.MasternodePayUpdatedNodes) {
		return
	}
	msg, err := masternode.NewLegacyDseep(a.cfg.Params, vin, service,
		a.cfg.OperatorKey, a.now())
	if err != nil {
		log.Errorf("Failed to create legacy ping: %v", err)
		return
	}
	log.Debugf("obseep - relaying from active mn, %s", mnwire.TxInString(&vin))
	for _, node := range a.cfg.Network.ConnectedNodes() {
		node.QueueMessage(msg, nil)
	}
}
