// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mnpeer

import (
	"container/list"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/davecgh/go-spew/spew"
	"github.com/decred/dcrd/lru"
	"github.com/divitproject/mnd/banscore"
	"github.com/divitproject/mnd/mnwire"
)

const (
	// maxKnownInventory is the maximum number of items to keep in the known
	// inventory cache.
	maxKnownInventory = 1000

	// negotiateTimeout is the duration of inactivity before we timeout a
	// peer that hasn't completed the initial version negotiation.
	negotiateTimeout = 30 * time.Second

	// idleTimeout is the duration of inactivity before we time out a peer.
	idleTimeout = 5 * time.Minute

	// pingInterval is the interval of time to wait in between sending ping
	// messages.
	pingInterval = 2 * time.Minute

	// defaultTrickleInterval is the default duration in between
	// inventory announcements.
	defaultTrickleInterval = 10 * time.Second

	// maxInvTrickleSize is the maximum amount of inventory to send in a
	// single message when trickling inventory to remote peers.
	maxInvTrickleSize = 1000

	// userAgentName is the user agent sent in version messages.
	userAgentName = "mnd"
)

var (
	// nodeCount is the total number of peer connections made since
	// startup and is used to assign an id to a peer.
	nodeCount int32

	// sentNonces houses the unique nonces that are generated when pushing
	// version messages that are used to detect self connections.
	sentNonces = lru.NewCache(50)

	// allowSelfConns is only used to allow the tests to bypass the self
	// connection detecting and disconnect logic since they intentionally
	// do so for testing purposes.
	allowSelfConns bool
)

// MessageListeners defines callback function pointers to invoke with message
// listeners for a peer.  Execution of the callbacks happens on the peer's
// read goroutine, so a slow callback delays the peer's next message.
type MessageListeners struct {
	// OnVersion is invoked when a peer receives a version message.
	OnVersion func(p *Peer, msg *wire.MsgVersion)

	// OnVerAck is invoked when a peer receives a verack message.
	OnVerAck func(p *Peer, msg *wire.MsgVerAck)

	// OnMessage is invoked for every message past the handshake except
	// ping and pong, which the peer answers itself.
	OnMessage func(p *Peer, msg wire.Message)

	// OnBan is invoked once when the ban score of the peer reaches the
	// threshold.  The peer disconnects right after.
	OnBan func(p *Peer, reason string)
}

// Config is the struct to hold configuration options useful to Peer.
type Config struct {
	// Net identifies the network the peer is on.
	Net wire.BitcoinNet

	// ProtocolVersion is the highest protocol version this peer speaks.
	ProtocolVersion uint32

	// MinProtocolVersion is the lowest remote version accepted.
	MinProtocolVersion uint32

	// BestHeight returns the height advertised in version messages.  It
	// may be nil.
	BestHeight func() int32

	// UserAgentVersion is the version part of the user agent.
	UserAgentVersion string

	// BanThreshold is the ban score at which the peer is banned.  Zero
	// selects banscore.BanThreshold.
	BanThreshold uint32

	// TrickleInterval is the duration of the ticker which trickles down
	// the inventory to a peer.  Zero selects the default.
	TrickleInterval time.Duration

	Listeners MessageListeners
}

type writeMsg struct {
	msg  wire.Message
	done chan<- struct{}
}

// Peer is a connected masternode network peer.  It implements the Node
// interface.
type Peer struct {
	// The following variables must only be used atomically.
	bytesReceived uint64
	bytesSent     uint64
	lastRecv      int64
	lastSend      int64
	connected     int32
	banned        int32

	conn    net.Conn
	cfg     Config
	id      int32
	addr    string
	na      mnwire.ServiceAddr
	inbound bool

	flagsMtx        sync.Mutex
	protocolVersion uint32
	versionKnown    bool
	userAgent       string
	startingHeight  int32
	fulfilled       map[string]struct{}

	knownInventory lru.Cache
	banScore       banscore.DynamicBanScore

	writeMsgQueue     chan writeMsg
	writeInvVectQueue chan *wire.InvVect
	write             chan writeMsg
	disconnect        chan struct{}
	disconnectOnce    sync.Once
	wg                sync.WaitGroup
}

// Ensure Peer implements the Node interface.
var _ Node = (*Peer)(nil)

// String returns the peer's address and directionality as a human-readable
// string.
func (p *Peer) String() string {
	dir := "outbound"
	if p.inbound {
		dir = "inbound"
	}
	return fmt.Sprintf("%s (%s)", p.addr, dir)
}

// ID returns the peer id.
func (p *Peer) ID() int32 {
	return p.id
}

// Addr returns the peer address.
func (p *Peer) Addr() string {
	return p.addr
}

// NA returns the peer address in masternode wire form.
func (p *Peer) NA() mnwire.ServiceAddr {
	return p.na
}

// Inbound returns whether the peer is inbound.
func (p *Peer) Inbound() bool {
	return p.inbound
}

// ProtocolVersion returns the negotiated peer protocol version.
func (p *Peer) ProtocolVersion() uint32 {
	p.flagsMtx.Lock()
	defer p.flagsMtx.Unlock()
	return p.protocolVersion
}

// UserAgent returns the user agent of the remote peer.
func (p *Peer) UserAgent() string {
	p.flagsMtx.Lock()
	defer p.flagsMtx.Unlock()
	return p.userAgent
}

// StartingHeight returns the last known height the peer reported during the
// initial negotiation phase.
func (p *Peer) StartingHeight() int32 {
	p.flagsMtx.Lock()
	defer p.flagsMtx.Unlock()
	return p.startingHeight
}

// BytesSent returns the total number of bytes sent by the peer.
func (p *Peer) BytesSent() uint64 {
	return atomic.LoadUint64(&p.bytesSent)
}

// BytesReceived returns the total number of bytes received by the peer.
func (p *Peer) BytesReceived() uint64 {
	return atomic.LoadUint64(&p.bytesReceived)
}

// LastRecv returns the last recv time of the peer.
func (p *Peer) LastRecv() time.Time {
	return time.Unix(atomic.LoadInt64(&p.lastRecv), 0)
}

// HasFulfilledRequest reports whether the named request was made.
func (p *Peer) HasFulfilledRequest(name string) bool {
	p.flagsMtx.Lock()
	defer p.flagsMtx.Unlock()
	_, ok := p.fulfilled[name]
	return ok
}

// FulfilledRequest marks the named request as made.
func (p *Peer) FulfilledRequest(name string) {
	p.flagsMtx.Lock()
	p.fulfilled[name] = struct{}{}
	p.flagsMtx.Unlock()
}

// ClearFulfilledRequest forgets the named request.
func (p *Peer) ClearFulfilledRequest(name string) {
	p.flagsMtx.Lock()
	delete(p.fulfilled, name)
	p.flagsMtx.Unlock()
}

// AddKnownInventory adds the passed inventory to the cache of known
// inventory for the peer.
func (p *Peer) AddKnownInventory(iv *wire.InvVect) {
	p.knownInventory.Add(*iv)
}

// BanScore returns the current ban score.
func (p *Peer) BanScore() uint32 {
	return p.banScore.Int()
}

// AddBanScore increases the persistent and decaying ban score fields by the
// values passed as parameters.  The peer is banned and disconnected once the
// score reaches the threshold.
func (p *Peer) AddBanScore(persistent, transient uint32, reason string) {
	// No warning is logged and no score is calculated if score
	// changes are zero.
	if persistent == 0 && transient == 0 {
		return
	}

	warnThreshold := p.cfg.BanThreshold / 2
	score := p.banScore.Increase(persistent, transient)
	if score > warnThreshold {
		log.Warnf("Misbehaving peer %s: %s -- ban score increased to %d",
			p, reason, score)
		if score >= p.cfg.BanThreshold {
			log.Warnf("Misbehaving peer %s -- banning and disconnecting", p)
			if atomic.AddInt32(&p.banned, 1) == 1 &&
				p.cfg.Listeners.OnBan != nil {

				p.cfg.Listeners.OnBan(p, reason)
			}
			p.Disconnect()
		}
	}
}

// localVersionMsg creates a version message that can be used to send to the
// remote peer.
func (p *Peer) localVersionMsg() (*wire.MsgVersion, error) {
	var height int32
	if p.cfg.BestHeight != nil {
		height = p.cfg.BestHeight()
	}

	theirNA := wire.NewNetAddressIPPort(p.na.IP, p.na.Port, 0)
	ourNA := wire.NewNetAddressIPPort(net.IPv4zero, 0, 0)

	nonce, err := wire.RandomUint64()
	if err != nil {
		return nil, err
	}
	sentNonces.Add(nonce)

	msg := wire.NewMsgVersion(ourNA, theirNA, nonce, height)
	msg.ProtocolVersion = int32(p.cfg.ProtocolVersion)
	if err := msg.AddUserAgent(userAgentName, p.cfg.UserAgentVersion); err != nil {
		return nil, err
	}
	return msg, nil
}

// handleVersionMsg is invoked when a peer receives a version message.
func (p *Peer) handleVersionMsg(msg *wire.MsgVersion) error {
	// Detect self connections.
	if !allowSelfConns && sentNonces.Contains(msg.Nonce) {
		return errors.New("disconnecting peer connected to self")
	}

	remote := uint32(msg.ProtocolVersion)
	if remote < p.cfg.MinProtocolVersion {
		return fmt.Errorf("protocol version must be %d or greater, got %d",
			p.cfg.MinProtocolVersion, remote)
	}

	p.flagsMtx.Lock()
	p.protocolVersion = minUint32(p.cfg.ProtocolVersion, remote)
	p.versionKnown = true
	p.userAgent = msg.UserAgent
	p.startingHeight = msg.LastBlock
	p.flagsMtx.Unlock()

	log.Debugf("Negotiated protocol version %d for peer %s",
		p.ProtocolVersion(), p)
	return nil
}

func minUint32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

// readMessage reads the next message from the peer with logging.
func (p *Peer) readMessage() (wire.Message, error) {
	n, msg, _, err := mnwire.ReadMessageN(p.conn, p.ProtocolVersion(),
		p.cfg.Net)
	atomic.AddUint64(&p.bytesReceived, uint64(n))
	if err != nil {
		return nil, err
	}
	atomic.StoreInt64(&p.lastRecv, time.Now().Unix())

	log.Tracef("%v", newLogClosure(func() string {
		return fmt.Sprintf("Received %v from %s: %s", msg.Command(), p,
			spew.Sdump(msg))
	}))
	return msg, nil
}

// writeMessage sends a message to the peer with logging.
func (p *Peer) writeMessage(msg wire.Message) error {
	log.Tracef("%v", newLogClosure(func() string {
		return fmt.Sprintf("Sending %v to %s: %s", msg.Command(), p,
			spew.Sdump(msg))
	}))

	n, err := mnwire.WriteMessageN(p.conn, msg, p.ProtocolVersion(),
		p.cfg.Net)
	atomic.AddUint64(&p.bytesSent, uint64(n))
	if err == nil {
		atomic.StoreInt64(&p.lastSend, time.Now().Unix())
	}
	return err
}

// shouldHandleReadError returns whether or not the passed error, which is
// expected to have come from reading from the remote peer in the read
// handler, should be logged.
func (p *Peer) shouldHandleReadError(err error) bool {
	// No logging when the peer is being forcibly disconnected.
	if !p.Connected() {
		return false
	}

	// No logging when the remote peer has been disconnected.
	if errors.Is(err, io.EOF) {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && !opErr.Temporary() {
		return false
	}
	return true
}

// readHandler handles all incoming messages for the peer.  It must be run as
// a goroutine.
func (p *Peer) readHandler() {
	defer p.wg.Done()

	idleTimer := time.AfterFunc(idleTimeout, func() {
		log.Warnf("Peer %s no answer for %s -- disconnecting", p,
			idleTimeout)
		p.Disconnect()
	})
	defer idleTimer.Stop()

	for {
		msg, err := p.readMessage()
		idleTimer.Reset(idleTimeout)
		if err != nil {
			if mnwire.IsUnknownCommand(err) {
				log.Tracef("Skipping unknown message from %s: %v", p, err)
				continue
			}

			// Malformed messages cost ban score but keep the
			// connection while it lasts.
			var msgErr *wire.MessageError
			if errors.As(err, &msgErr) && p.Connected() {
				log.Debugf("Invalid message from %s: %v", p, err)
				p.AddBanScore(0, 10, "malformed message")
				if p.Connected() {
					continue
				}
			}
			if p.shouldHandleReadError(err) {
				log.Errorf("Can't read message from %s: %v", p, err)
			}
			p.Disconnect()
			return
		}

		switch msg := msg.(type) {
		case *wire.MsgVersion:
			p.AddBanScore(1, 0, "duplicate version message")
		case *wire.MsgVerAck:
			// Late acknowledgements are harmless.
		case *wire.MsgPing:
			p.QueueMessage(wire.NewMsgPong(msg.Nonce), nil)
		case *wire.MsgPong:
		default:
			if inv, ok := msg.(*wire.MsgInv); ok {
				for _, iv := range inv.InvList {
					p.AddKnownInventory(iv)
				}
			}
			if p.cfg.Listeners.OnMessage != nil {
				p.cfg.Listeners.OnMessage(p, msg)
			}
		}
	}
}

// writeMsgQueueHandler queues outgoing messages without blocking the
// callers of QueueMessage.  It must be run as a goroutine.
func (p *Peer) writeMsgQueueHandler() {
	defer p.wg.Done()

	pending := list.New()
	for {
		var out chan writeMsg
		var next writeMsg
		if elem := pending.Front(); elem != nil {
			out = p.write
			next = elem.Value.(writeMsg)
		}

		select {
		case <-p.disconnect:
			for elem := pending.Front(); elem != nil; elem = elem.Next() {
				if done := elem.Value.(writeMsg).done; done != nil {
					done <- struct{}{}
				}
			}
			return
		case msg := <-p.writeMsgQueue:
			pending.PushBack(msg)
		case out <- next:
			pending.Remove(pending.Front())
		}
	}
}

// writeInvVectQueueHandler trickles queued inventory to the peer in batches.
// It must be run as a goroutine.
func (p *Peer) writeInvVectQueueHandler() {
	defer p.wg.Done()

	trickleTicker := time.NewTicker(p.cfg.TrickleInterval)
	defer trickleTicker.Stop()

	var invVects []*wire.InvVect
	for {
		select {
		case <-p.disconnect:
			return
		case iv := <-p.writeInvVectQueue:
			invVects = append(invVects, iv)
		case <-trickleTicker.C:
			if len(invVects) == 0 {
				continue
			}
			invMsg := wire.NewMsgInvSizeHint(uint(len(invVects)))
			for _, iv := range invVects {
				if p.knownInventory.Contains(*iv) {
					continue
				}
				invMsg.AddInvVect(iv)
				if len(invMsg.InvList) >= maxInvTrickleSize {
					p.QueueMessage(invMsg, nil)
					invMsg = wire.NewMsgInvSizeHint(uint(len(invVects)))
				}
				p.AddKnownInventory(iv)
			}
			invVects = nil

			if len(invMsg.InvList) > 0 {
				p.QueueMessage(invMsg, nil)
			}
		}
	}
}

// writeHandler writes queued messages to the connection.  It must be run as
// a goroutine.
func (p *Peer) writeHandler() {
	defer p.wg.Done()

	for {
		select {
		case <-p.disconnect:
			return
		case msg := <-p.write:
			err := p.writeMessage(msg.msg)
			if msg.done != nil {
				msg.done <- struct{}{}
			}
			if err != nil {
				if p.Connected() && !errors.Is(err, io.EOF) {
					log.Errorf("Failed to send message to %s: %v", p, err)
				}
				p.Disconnect()
				return
			}
		}
	}
}

// pingHandler periodically pings the peer.  It must be run as a goroutine.
func (p *Peer) pingHandler() {
	defer p.wg.Done()

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-p.disconnect:
			return
		case <-pingTicker.C:
			nonce, err := wire.RandomUint64()
			if err != nil {
				log.Errorf("Not sending ping to %s: %v", p, err)
				continue
			}
			p.QueueMessage(wire.NewMsgPing(nonce), nil)
		}
	}
}

// QueueMessage adds the passed message to the peer send queue.  doneChan is
// notified when the message was written or dropped.
//
// This function is safe for concurrent access.
func (p *Peer) QueueMessage(msg wire.Message, doneChan chan<- struct{}) {
	if !p.Connected() {
		if doneChan != nil {
			go func() {
				doneChan <- struct{}{}
			}()
		}
		return
	}
	select {
	case p.writeMsgQueue <- writeMsg{msg: msg, done: doneChan}:
	case <-p.disconnect:
		if doneChan != nil {
			go func() {
				doneChan <- struct{}{}
			}()
		}
	}
}

// QueueInventory adds the passed inventory to the inventory send queue which
// might not be sent right away, rather it is trickled to the peer in batches.
// Inventory that the peer is already known to have is ignored.
//
// This function is safe for concurrent access.
func (p *Peer) QueueInventory(iv *wire.InvVect) {
	// Don't add the inventory to the send queue if the peer is already
	// known to have it.
	if p.knownInventory.Contains(*iv) {
		return
	}
	select {
	case p.writeInvVectQueue <- iv:
	case <-p.disconnect:
	}
}

// Connected returns whether or not the peer is currently connected.
//
// This function is safe for concurrent access.
func (p *Peer) Connected() bool {
	return atomic.LoadInt32(&p.connected) != 0 && !p.isDisconnected()
}

func (p *Peer) isDisconnected() bool {
	select {
	case <-p.disconnect:
		return true
	default:
		return false
	}
}

// Disconnect disconnects the peer by closing the connection.  Calling this
// function when the peer is already disconnected or in the process of
// disconnecting will have no effect.
func (p *Peer) Disconnect() {
	p.disconnectOnce.Do(func() {
		log.Tracef("Disconnecting %s", p)
		close(p.disconnect)
		if p.conn != nil {
			p.conn.Close()
		}
	})
}

// WaitForDisconnect waits until the peer has completely disconnected and all
// resources are cleaned up.
func (p *Peer) WaitForDisconnect() {
	<-p.disconnect
	p.wg.Wait()
}

// negotiateInboundProtocol waits for the version of the remote peer, sends
// ours and exchanges acknowledgements.
func (p *Peer) negotiateInboundProtocol() error {
	if err := p.readRemoteVersion(); err != nil {
		return err
	}
	if err := p.writeLocalVersion(); err != nil {
		return err
	}
	if err := p.readRemoteVerAck(); err != nil {
		return err
	}
	return p.writeMessage(wire.NewMsgVerAck())
}

// negotiateOutboundProtocol sends our version, waits for the remote one and
// exchanges acknowledgements.
func (p *Peer) negotiateOutboundProtocol() error {
	if err := p.writeLocalVersion(); err != nil {
		return err
	}
	if err := p.readRemoteVersion(); err != nil {
		return err
	}
	if err := p.writeMessage(wire.NewMsgVerAck()); err != nil {
		return err
	}
	return p.readRemoteVerAck()
}

func (p *Peer) writeLocalVersion() error {
	msg, err := p.localVersionMsg()
	if err != nil {
		return err
	}
	return p.writeMessage(msg)
}

func (p *Peer) readRemoteVersion() error {
	msg, err := p.readMessage()
	if err != nil {
		return err
	}
	verMsg, ok := msg.(*wire.MsgVersion)
	if !ok {
		return fmt.Errorf("a version message must precede all others, "+
			"got %v", msg.Command())
	}
	if err := p.handleVersionMsg(verMsg); err != nil {
		return err
	}
	if p.cfg.Listeners.OnVersion != nil {
		p.cfg.Listeners.OnVersion(p, verMsg)
	}
	return nil
}

func (p *Peer) readRemoteVerAck() error {
	msg, err := p.readMessage()
	if err != nil {
		return err
	}
	verAck, ok := msg.(*wire.MsgVerAck)
	if !ok {
		return fmt.Errorf("expected verack, got %v", msg.Command())
	}
	if p.cfg.Listeners.OnVerAck != nil {
		p.cfg.Listeners.OnVerAck(p, verAck)
	}
	return nil
}

// newPeerBase returns a new base peer based on the inbound flag.  This is
// used by the NewInboundPeer and NewOutboundPeer functions to perform base
// setup needed by both types of peers.
func newPeerBase(cfg *Config, inbound bool) *Peer {
	p := &Peer{
		cfg:               *cfg,
		id:                atomic.AddInt32(&nodeCount, 1),
		inbound:           inbound,
		protocolVersion:   cfg.ProtocolVersion,
		fulfilled:         make(map[string]struct{}),
		knownInventory:    lru.NewCache(maxKnownInventory),
		writeMsgQueue:     make(chan writeMsg),
		writeInvVectQueue: make(chan *wire.InvVect),
		write:             make(chan writeMsg),
		disconnect:        make(chan struct{}),
	}
	if p.cfg.BanThreshold == 0 {
		p.cfg.BanThreshold = banscore.BanThreshold
	}
	if p.cfg.TrickleInterval == 0 {
		p.cfg.TrickleInterval = defaultTrickleInterval
	}
	return p
}

// parseAddr splits addr into the masternode wire address of the peer.
// Hosts that are not literal IPs, such as onion addresses behind a proxy,
// leave the IP unset.
func parseAddr(addr string) (mnwire.ServiceAddr, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return mnwire.ServiceAddr{}, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return mnwire.ServiceAddr{}, err
	}
	return mnwire.ServiceAddr{IP: net.ParseIP(host), Port: uint16(port)}, nil
}

// NewInboundPeer negotiates the protocol with the remote side of an accepted
// connection and starts the peer.
func NewInboundPeer(cfg *Config, conn net.Conn) (*Peer, error) {
	p := newPeerBase(cfg, true)
	p.addr = conn.RemoteAddr().String()
	na, err := parseAddr(p.addr)
	if err != nil {
		conn.Close()
		return nil, err
	}
	p.na = na

	if err := p.start(conn, p.negotiateInboundProtocol); err != nil {
		conn.Close()
		return nil, err
	}
	return p, nil
}

// NewOutboundPeer negotiates the protocol over a connection made to addr and
// starts the peer.
func NewOutboundPeer(cfg *Config, conn net.Conn, addr string) (*Peer, error) {
	p := newPeerBase(cfg, false)
	p.addr = addr
	na, err := parseAddr(addr)
	if err != nil {
		conn.Close()
		return nil, err
	}
	p.na = na

	if err := p.start(conn, p.negotiateOutboundProtocol); err != nil {
		conn.Close()
		return nil, err
	}
	return p, nil
}

// start runs the negotiation under a timeout and then the peer goroutines.
func (p *Peer) start(conn net.Conn, negotiator func() error) error {
	p.conn = conn

	negotiateErr := make(chan error, 1)
	go func() {
		negotiateErr <- negotiator()
	}()
	select {
	case err := <-negotiateErr:
		if err != nil {
			return err
		}
	case <-time.After(negotiateTimeout):
		return errors.New("protocol negotiation timeout")
	}
	log.Debugf("Connected to %s", p)
	atomic.StoreInt32(&p.connected, 1)

	p.wg.Add(5)
	go p.writeHandler()
	go p.writeMsgQueueHandler()
	go p.writeInvVectQueueHandler()
	go p.readHandler()
	go p.pingHandler()
	return nil
}
