// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package peertest provides in-memory implementations of the mnpeer Node and
// Network interfaces for tests.  They record everything that is sent so
// tests can assert on it.
package peertest

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/btcsuite/btcd/wire"
	"github.com/divitproject/mnd/mnpeer"
	"github.com/divitproject/mnd/mnwire"
)

var nextID int32

// Node is a recording mnpeer.Node.
type Node struct {
	id       int32
	addr     mnwire.ServiceAddr
	inbound  bool
	protocol uint32

	mtx       sync.Mutex
	sent      []wire.Message
	inv       []*wire.InvVect
	banScore  uint32
	reasons   []string
	fulfilled map[string]bool
}

// Ensure Node implements the mnpeer.Node interface.
var _ mnpeer.Node = (*Node)(nil)

// NewNode returns a node with the given address ("ip:port") and protocol
// version.  It panics on a malformed address.
func NewNode(addr string, protocol uint32) *Node {
	sa, err := mnwire.ParseServiceAddr(addr)
	if err != nil {
		panic(fmt.Sprintf("peertest: bad address %q: %v", addr, err))
	}
	return &Node{
		id:        atomic.AddInt32(&nextID, 1),
		addr:      sa,
		protocol:  protocol,
		fulfilled: make(map[string]bool),
	}
}

func (n *Node) ID() int32 { return n.id }
func (n *Node) Addr() string { return n.addr.String() }
func (n *Node) NA() mnwire.ServiceAddr { return n.addr }
func (n *Node) ProtocolVersion() uint32 { return n.protocol }
func (n *Node) Inbound() bool { return n.inbound }
func (n *Node) SetInbound(inbound bool) { n.inbound = inbound }
func (n *Node) SetProtocol(pver uint32) { n.protocol = pver }

func (n *Node) QueueMessage(msg wire.Message, doneChan chan<- struct{}) {
	n.mtx.Lock()
	n.sent = append(n.sent, msg)
	n.mtx.Unlock()
	if doneChan != nil {
		doneChan <- struct{}{}
	}
}

func (n *Node) QueueInventory(iv *wire.InvVect) {
	n.mtx.Lock()
	n.inv = append(n.inv, iv)
	n.mtx.Unlock()
}

func (n *Node) AddBanScore(persistent, transient uint32, reason string) {
	n.mtx.Lock()
	n.banScore += persistent + transient
	n.reasons = append(n.reasons, reason)
	n.mtx.Unlock()
}

func (n *Node) HasFulfilledRequest(name string) bool {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	return n.fulfilled[name]
}

func (n *Node) FulfilledRequest(name string) {
	n.mtx.Lock()
	n.fulfilled[name] = true
	n.mtx.Unlock()
}

func (n *Node) ClearFulfilledRequest(name string) {
	n.mtx.Lock()
	delete(n.fulfilled, name)
	n.mtx.Unlock()
}

// BanScore returns the accumulated misbehaviour score.
func (n *Node) BanScore() uint32 {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	return n.banScore
}

// Sent returns the messages queued so far.
func (n *Node) Sent() []wire.Message {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	return append([]wire.Message(nil), n.sent...)
}

// SentCommands returns the commands of the messages queued so far.
func (n *Node) SentCommands() []string {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	cmds := make([]string, 0, len(n.sent))
	for _, msg := range n.sent {
		cmds = append(cmds, msg.Command())
	}
	return cmds
}

// Inventory returns the inventory vectors queued so far.
func (n *Node) Inventory() []*wire.InvVect {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	return append([]*wire.InvVect(nil), n.inv...)
}

// Reset forgets everything recorded.
func (n *Node) Reset() {
	n.mtx.Lock()
	n.sent = nil
	n.inv = nil
	n.banScore = 0
	n.reasons = nil
	n.mtx.Unlock()
}

// Network is a recording mnpeer.Network.
type Network struct {
	mtx     sync.Mutex
	nodes   []mnpeer.Node
	relayed []*wire.InvVect
}

// Ensure Network implements the mnpeer.Network interface.
var _ mnpeer.Network = (*Network)(nil)

// NewNetwork returns a network connected to nodes.
func NewNetwork(nodes ...mnpeer.Node) *Network {
	return &Network{nodes: nodes}
}

// Connect adds a node.
func (n *Network) Connect(node mnpeer.Node) {
	n.mtx.Lock()
	n.nodes = append(n.nodes, node)
	n.mtx.Unlock()
}

func (n *Network) RelayInventory(iv *wire.InvVect) {
	n.mtx.Lock()
	n.relayed = append(n.relayed, iv)
	nodes := append([]mnpeer.Node(nil), n.nodes...)
	n.mtx.Unlock()
	for _, node := range nodes {
		node.QueueInventory(iv)
	}
}

func (n *Network) ConnectedNodes() []mnpeer.Node {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	return append([]mnpeer.Node(nil), n.nodes...)
}

// Relayed returns the inventory relayed so far.
func (n *Network) Relayed() []*wire.InvVect {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	return append([]*wire.InvVect(nil), n.relayed...)
}

// RelayedOfType returns the relayed inventory of the given type.
func (n *Network) RelayedOfType(t wire.InvType) []*wire.InvVect {
	var out []*wire.InvVect
	for _, iv := range n.Relayed() {
		if iv.Type == t {
			out = append(out, iv)
		}
	}
	return out
}
