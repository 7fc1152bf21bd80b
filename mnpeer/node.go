// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mnpeer

import (
	"github.com/btcsuite/btcd/wire"
	"github.com/divitproject/mnd/mnwire"
)

// Node is the view of a connected peer that the masternode managers use to
// answer requests and report misbehaviour.  *Peer implements it; tests use
// lightweight fakes.
type Node interface {
	// ID returns a unique identifier for the connection.
	ID() int32

	// Addr returns the remote address as host:port.
	Addr() string

	// NA returns the remote address in masternode wire form.
	NA() mnwire.ServiceAddr

	// ProtocolVersion returns the negotiated protocol version.
	ProtocolVersion() uint32

	// Inbound reports whether the remote side initiated the connection.
	Inbound() bool

	// QueueMessage queues msg for sending.  doneChan, when non-nil, is
	// notified once the message is written.
	QueueMessage(msg wire.Message, doneChan chan<- struct{})

	// QueueInventory queues an inventory vector for trickled announcement
	// unless the peer is already known to have it.
	QueueInventory(iv *wire.InvVect)

	// AddBanScore increases the misbehaviour score of the peer.
	AddBanScore(persistent, transient uint32, reason string)

	// HasFulfilledRequest reports whether the named once-per-peer request
	// was already made or answered.
	HasFulfilledRequest(name string) bool

	// FulfilledRequest marks the named request as done.
	FulfilledRequest(name string)

	// ClearFulfilledRequest forgets the named request.
	ClearFulfilledRequest(name string)
}

// Network is the relay side of the transport.
type Network interface {
	// RelayInventory announces iv to every connected peer that does not
	// already know it.
	RelayInventory(iv *wire.InvVect)

	// ConnectedNodes returns the currently connected peers.
	ConnectedNodes() []Node
}

// Misbehaving reports a rejected message with the given DoS score.  Scores of
// zero or less are ignored.
func Misbehaving(n Node, dos int, reason string) {
	if n == nil || dos <= 0 {
		return
	}
	n.AddBanScore(uint32(dos), 0, reason)
}
