// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package mnwire implements the masternode, payment vote and spork messages of
the peer-to-peer protocol on top of btcd's wire package.

Every message implements wire.Message, so the btcd framing (network magic,
command, length and checksum) is reused unchanged.  ReadMessage differs from
wire.ReadMessage only in that it also recognises the commands defined here:

	fnb        masternode announcement
	fnp        masternode ping
	obseg      request the masternode list or a single entry
	fnw        payment vote
	fnget      request payment votes
	ssc        sync status count
	getsporks  request active sporks
	spork      spork update
	fnvs       budget sync request
	obsee      legacy announcement
	obseep     legacy ping

Inputs are serialized as outpoint, script and sequence; addresses as 16 byte
IPv6 followed by a big-endian port.  Integers are little-endian.
*/
package mnwire
