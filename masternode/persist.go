// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package masternode

import (
	"fmt"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/divitproject/mnd/flatdb"
	"github.com/divitproject/mnd/mnwire"
)

const (
	// CacheFileName is the file the list is dumped to in the data
	// directory.
	CacheFileName = "mncache.dat"

	// CacheMagic identifies masternode list dumps.
	CacheMagic = "MasternodeCache"

	// maxCacheEntries bounds every collection read from a dump.
	maxCacheEntries = 1 << 20
)

// readCount reads a collection length.
func readCount(r io.Reader, what string) (uint64, error) {
	n, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return 0, err
	}
	if n > maxCacheEntries {
		return 0, fmt.Errorf("too many %s entries: %d", what, n)
	}
	return n, nil
}

func writeMasternode(w io.Writer, mn *Masternode) error {
	if err := mnwire.WriteTxIn(w, 0, &mn.Vin); err != nil {
		return err
	}
	if err := mnwire.WriteServiceAddr(w, &mn.Addr); err != nil {
		return err
	}
	if err := wire.WriteVarBytes(w, 0, mn.PubKeyCollateral); err != nil {
		return err
	}
	if err := wire.WriteVarBytes(w, 0, mn.PubKeyOperator); err != nil {
		return err
	}
	if err := wire.WriteVarBytes(w, 0, mn.Sig); err != nil {
		return err
	}
	if err := mnwire.WriteInt64(w, mn.SigTime); err != nil {
		return err
	}
	if err := mnwire.WriteInt32(w, int32(mn.Protocol)); err != nil {
		return err
	}
	if err := mnwire.WriteInt32(w, int32(mn.ActiveState)); err != nil {
		return err
	}
	if err := mn.LastPing.BtcEncode(w, 0, wire.BaseEncoding); err != nil {
		return err
	}
	if err := mnwire.WriteInt32(w, mn.CacheInputAge); err != nil {
		return err
	}
	if err := mnwire.WriteInt32(w, mn.CacheInputAgeBlock); err != nil {
		return err
	}
	if err := mnwire.WriteBool(w, mn.UnitTest); err != nil {
		return err
	}
	if err := mnwire.WriteBool(w, mn.AllowFreeTx); err != nil {
		return err
	}
	return mnwire.WriteInt64(w, mn.LastDsq)
}

func readMasternode(r io.Reader) (*Masternode, error) {
	var mn Masternode
	var err error
	if err = mnwire.ReadTxIn(r, 0, &mn.Vin); err != nil {
		return nil, err
	}
	if err = mnwire.ReadServiceAddr(r, &mn.Addr); err != nil {
		return nil, err
	}
	mn.PubKeyCollateral, err = wire.ReadVarBytes(r, 0, mnwire.MaxPubKeySize,
		"collateral pubkey")
	if err != nil {
		return nil, err
	}
	mn.PubKeyOperator, err = wire.ReadVarBytes(r, 0, mnwire.MaxPubKeySize,
		"operator pubkey")
	if err != nil {
		return nil, err
	}
	mn.Sig, err = wire.ReadVarBytes(r, 0, mnwire.MaxSigSize, "signature")
	if err != nil {
		return nil, err
	}
	if mn.SigTime, err = mnwire.ReadInt64(r); err != nil {
		return nil, err
	}
	protocol, err := mnwire.ReadInt32(r)
	if err != nil {
		return nil, err
	}
	mn.Protocol = uint32(protocol)
	state, err := mnwire.ReadInt32(r)
	if err != nil {
		return nil, err
	}
	mn.ActiveState = State(state)
	if err = mn.LastPing.BtcDecode(r, 0, wire.BaseEncoding); err != nil {
		return nil, err
	}
	if mn.CacheInputAge, err = mnwire.ReadInt32(r); err != nil {
		return nil, err
	}
	if mn.CacheInputAgeBlock, err = mnwire.ReadInt32(r); err != nil {
		return nil, err
	}
	if mn.UnitTest, err = mnwire.ReadBool(r); err != nil {
		return nil, err
	}
	if mn.AllowFreeTx, err = mnwire.ReadBool(r); err != nil {
		return nil, err
	}
	if mn.LastDsq, err = mnwire.ReadInt64(r); err != nil {
		return nil, err
	}
	return &mn, nil
}

func writeAddrTimes(w io.Writer, times map[string]int64) error {
	if err := wire.WriteVarInt(w, 0, uint64(len(times))); err != nil {
		return err
	}
	for ip, t := range times {
		if err := wire.WriteVarString(w, 0, ip); err != nil {
			return err
		}
		if err := mnwire.WriteInt64(w, t); err != nil {
			return err
		}
	}
	return nil
}

func readAddrTimes(r io.Reader, what string) (map[string]int64, error) {
	n, err := readCount(r, what)
	if err != nil {
		return nil, err
	}
	times := make(map[string]int64, n)
	for i := uint64(0); i < n; i++ {
		ip, err := wire.ReadVarString(r, 0)
		if err != nil {
			return nil, err
		}
		if times[ip], err = mnwire.ReadInt64(r); err != nil {
			return nil, err
		}
	}
	return times, nil
}

// Serialize writes the list and the gossip bookkeeping to w.
func (m *Manager) Serialize(w io.Writer) error {
	m.mtx.RLock()
	defer m.mtx.RUnlock()

	if err := wire.WriteVarInt(w, 0, uint64(len(m.nodes))); err != nil {
		return err
	}
	for _, mn := range m.nodes {
		if err := writeMasternode(w, mn); err != nil {
			return err
		}
	}

	if err := writeAddrTimes(w, m.askedUsForList); err != nil {
		return err
	}
	if err := writeAddrTimes(w, m.weAskedForList); err != nil {
		return err
	}

	if err := wire.WriteVarInt(w, 0, uint64(len(m.weAskedForEntry))); err != nil {
		return err
	}
	for op, t := range m.weAskedForEntry {
		op := op
		if err := mnwire.WriteOutPoint(w, &op); err != nil {
			return err
		}
		if err := mnwire.WriteInt64(w, t); err != nil {
			return err
		}
	}

	if err := mnwire.WriteInt64(w, m.dsqCount); err != nil {
		return err
	}

	if err := wire.WriteVarInt(w, 0, uint64(len(m.seenBroadcasts))); err != nil {
		return err
	}
	for _, b := range m.seenBroadcasts {
		if err := b.BtcEncode(w, 0, wire.BaseEncoding); err != nil {
			return err
		}
	}

	if err := wire.WriteVarInt(w, 0, uint64(len(m.seenPings))); err != nil {
		return err
	}
	for _, p := range m.seenPings {
		if err := p.BtcEncode(w, 0, wire.BaseEncoding); err != nil {
			return err
		}
	}
	return nil
}

// Deserialize replaces the list and the gossip bookkeeping with the contents
// read from r.  On error the manager is left unchanged.
func (m *Manager) Deserialize(r io.Reader) error {
	n, err := readCount(r, "masternode")
	if err != nil {
		return err
	}
	nodes := make([]*Masternode, 0, n)
	for i := uint64(0); i < n; i++ {
		mn, err := readMasternode(r)
		if err != nil {
			return err
		}
		nodes = append(nodes, mn)
	}

	askedUs, err := readAddrTimes(r, "asked us")
	if err != nil {
		return err
	}
	weAsked, err := readAddrTimes(r, "we asked")
	if err != nil {
		return err
	}

	n, err = readCount(r, "asked entry")
	if err != nil {
		return err
	}
	weAskedEntry := make(map[wire.OutPoint]int64, n)
	for i := uint64(0); i < n; i++ {
		var op wire.OutPoint
		if err := mnwire.ReadOutPoint(r, &op); err != nil {
			return err
		}
		if weAskedEntry[op], err = mnwire.ReadInt64(r); err != nil {
			return err
		}
	}

	dsqCount, err := mnwire.ReadInt64(r)
	if err != nil {
		return err
	}

	n, err = readCount(r, "broadcast")
	if err != nil {
		return err
	}
	seenBroadcasts := make(map[chainhash.Hash]*Broadcast, n)
	for i := uint64(0); i < n; i++ {
		var b Broadcast
		if err := b.BtcDecode(r, 0, wire.BaseEncoding); err != nil {
			return err
		}
		seenBroadcasts[b.Hash()] = &b
	}

	n, err = readCount(r, "ping")
	if err != nil {
		return err
	}
	seenPings := make(map[chainhash.Hash]*Ping, n)
	for i := uint64(0); i < n; i++ {
		var p Ping
		if err := p.BtcDecode(r, 0, wire.BaseEncoding); err != nil {
			return err
		}
		seenPings[p.Hash()] = &p
	}

	m.mtx.Lock()
	m.nodes = nodes
	m.askedUsForList = askedUs
	m.weAskedForList = weAsked
	m.weAskedForEntry = weAskedEntry
	m.dsqCount = dsqCount
	m.seenBroadcasts = seenBroadcasts
	m.seenPings = seenPings
	m.seenDsee = make(map[wire.OutPoint][]byte)
	m.mtx.Unlock()
	return nil
}

// newCacheStore returns the store for the list dump at path.
func newCacheStore(path string, net wire.BitcoinNet) *flatdb.Store {
	return flatdb.New(path, CacheMagic, net)
}

// DumpManager writes the list to the dump file at path.
func DumpManager(path string, m *Manager) error {
	scratch := New(&m.cfg)
	return newCacheStore(path, m.cfg.Params.Net).Dump(m, scratch)
}

// LoadManager reads the dump file at path into m.  Unless dryRun is set,
// stale entries are removed after loading.
func LoadManager(path string, m *Manager, dryRun bool) (flatdb.ReadResult, error) {
	result, err := newCacheStore(path, m.cfg.Params.Net).Read(m)
	if err != nil {
		return result, err
	}
	if !dryRun {
		m.CheckAndRemove(true)
	}
	log.Debugf("Masternode cache loaded: %v", m)
	return result, nil
}
