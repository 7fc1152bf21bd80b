// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package spork tracks sporks: network wide feature flags signed by a
// privileged key.  A spork is active when its value, a unix timestamp, lies
// in the past.
package spork

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/decred/dcrd/lru"
	"github.com/divitproject/mnd/database/engine"
	"github.com/divitproject/mnd/mnpeer"
	"github.com/divitproject/mnd/mnwire"
	"github.com/divitproject/mnd/msgsign"
	"github.com/divitproject/mnd/netparams"
)

// rejectedCacheSize bounds the number of remembered invalid spork hashes.
const rejectedCacheSize = 1000

// Config is the configuration for a spork Manager.
type Config struct {
	// Params selects the spork keys and the key rotation schedule.
	Params *netparams.Params

	// DB persists accepted sporks across restarts.  It may be nil.
	DB engine.Engine

	// Network relays accepted sporks.  It may be nil.
	Network mnpeer.Network

	// HasTip reports whether the chain has a tip.  Sporks are ignored
	// before that.  Nil means always.
	HasTip func() bool

	// TimeSource returns the adjusted network time.  Nil means time.Now.
	TimeSource func() time.Time
}

// Manager holds the active sporks.  It is safe for concurrent access.
type Manager struct {
	cfg   Config
	store *store

	mtx      sync.RWMutex
	sporks   map[chainhash.Hash]*mnwire.MsgSpork
	active   map[ID]*mnwire.MsgSpork
	rejected lru.Cache
	privKey  *btcec.PrivateKey
	compress bool
}

// New returns a Manager with no active sporks.
func New(cfg *Config) *Manager {
	m := &Manager{
		cfg:      *cfg,
		sporks:   make(map[chainhash.Hash]*mnwire.MsgSpork),
		active:   make(map[ID]*mnwire.MsgSpork),
		rejected: lru.NewCache(rejectedCacheSize),
	}
	if cfg.DB != nil {
		m.store = &store{db: cfg.DB}
	}
	return m
}

func (m *Manager) now() time.Time {
	if m.cfg.TimeSource != nil {
		return m.cfg.TimeSource()
	}
	return time.Now()
}

// LoadFromDB restores the sporks accepted in a previous session.
func (m *Manager) LoadFromDB() error {
	if m.store == nil {
		return nil
	}
	m.mtx.Lock()
	defer m.mtx.Unlock()

	for _, id := range KnownIDs() {
		msg, ok, err := m.store.read(id)
		if err != nil {
			return fmt.Errorf("failed to load %v: %w", id, err)
		}
		if !ok {
			log.Debugf("No previous value for %v found in database", id)
			continue
		}
		m.sporks[msg.Hash()] = msg
		m.active[id] = msg

		// Values above a million are timestamps.
		if msg.Value > 1000000 {
			log.Infof("Loaded spork %v with value %d : %v", id,
				msg.Value, time.Unix(msg.Value, 0).UTC())
		} else {
			log.Infof("Loaded spork %v with value %d", id, msg.Value)
		}
	}
	return nil
}

// Value returns the value of the spork, the network value when a signed
// spork has been seen and the default otherwise.  Unknown ids return -1.
func (m *Manager) Value(id ID) int64 {
	m.mtx.RLock()
	msg, ok := m.active[id]
	m.mtx.RUnlock()
	if ok {
		return msg.Value
	}
	v := id.DefaultValue()
	if v == -1 {
		log.Debugf("Unknown spork %d", int32(id))
	}
	return v
}

// IsActive reports whether the spork value lies in the past.
func (m *Manager) IsActive(id ID) bool {
	v := m.Value(id)
	if v == -1 {
		return false
	}
	return v < m.now().Unix()
}

// Lookup returns the spork message with the given hash for serving getdata.
func (m *Manager) Lookup(hash *chainhash.Hash) (*mnwire.MsgSpork, bool) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	msg, ok := m.sporks[*hash]
	return msg, ok
}

// Active returns the active spork messages ordered by id.
func (m *Manager) Active() []*mnwire.MsgSpork {
	m.mtx.RLock()
	defer m.mtx.RUnlock()

	msgs := make([]*mnwire.MsgSpork, 0, len(m.active))
	for _, id := range KnownIDs() {
		if msg, ok := m.active[id]; ok {
			msgs = append(msgs, msg)
		}
	}
	return msgs
}

// ProcessMessage handles the spork and getsporks commands.
func (m *Manager) ProcessMessage(node mnpeer.Node, msg wire.Message) {
	switch msg := msg.(type) {
	case *mnwire.MsgSpork:
		err := m.ProcessSpork(node, msg)
		if err != nil {
			log.Debugf("Rejected spork from %s: %v", node.Addr(), err)
		}

	case *mnwire.MsgGetSporks:
		for _, spork := range m.Active() {
			node.QueueMessage(spork, nil)
		}
	}
}

// ProcessSpork validates a spork received from node and makes it active when
// it is newer than the current one.  A bad signature is scored 100.
func (m *Manager) ProcessSpork(node mnpeer.Node, msg *mnwire.MsgSpork) error {
	if m.cfg.HasTip != nil && !m.cfg.HasTip() {
		return ruleError(ErrNoTip, "chain has no tip")
	}

	id := ID(msg.SporkID)
	if !id.Known() {
		return ruleError(ErrUnknownSpork, fmt.Sprintf("unknown spork %d",
			msg.SporkID))
	}

	hash := msg.Hash()
	if m.rejected.Contains(hash) {
		mnpeer.Misbehaving(node, 100, "invalid spork signature")
		return ruleError(ErrBadSignature, "known invalid spork "+hash.String())
	}

	m.mtx.RLock()
	current, ok := m.active[id]
	m.mtx.RUnlock()
	if ok {
		if current.TimeSigned >= msg.TimeSigned {
			return ruleError(ErrStaleSpork, fmt.Sprintf("seen %v", hash))
		}
		log.Debugf("Got updated spork %v", hash)
	}

	log.Infof("New spork %v ID %d (%v) value %d", hash, msg.SporkID, id,
		msg.Value)

	if (msg.TimeSigned >= m.cfg.Params.EnforceNewSporkKey &&
		!m.CheckSignature(msg, true)) || !m.CheckSignature(msg, false) {

		m.rejected.Add(hash)
		mnpeer.Misbehaving(node, 100, "invalid spork signature")
		return ruleError(ErrBadSignature, "invalid signature on spork "+
			hash.String())
	}

	if err := m.accept(msg); err != nil {
		return err
	}
	m.relay(msg)
	return nil
}

// accept stores msg as the active value for its spork.
func (m *Manager) accept(msg *mnwire.MsgSpork) error {
	m.mtx.Lock()
	// Another message for the same spork may have won the race.
	if current, ok := m.active[ID(msg.SporkID)]; ok &&
		current.TimeSigned >= msg.TimeSigned {

		m.mtx.Unlock()
		return ruleError(ErrStaleSpork, "superseded")
	}
	m.sporks[msg.Hash()] = msg
	m.active[ID(msg.SporkID)] = msg
	m.mtx.Unlock()

	if m.store != nil {
		if err := m.store.write(msg); err != nil {
			log.Errorf("Failed to store spork %v: %v", ID(msg.SporkID), err)
		}
	}
	return nil
}

func (m *Manager) relay(msg *mnwire.MsgSpork) {
	if m.cfg.Network == nil {
		return
	}
	hash := msg.Hash()
	m.cfg.Network.RelayInventory(wire.NewInvVect(mnwire.InvTypeSpork, &hash))
}

func signatureMessage(msg *mnwire.MsgSpork) string {
	return strconv.FormatInt(int64(msg.SporkID), 10) +
		strconv.FormatInt(msg.Value, 10) +
		strconv.FormatInt(msg.TimeSigned, 10)
}

func (m *Manager) verify(hexKey string, msg *mnwire.MsgSpork) bool {
	pub, err := hex.DecodeString(hexKey)
	if err != nil || len(pub) == 0 {
		return false
	}
	return msgsign.Verify(pub, msg.Sig, m.cfg.Params.MessageMagic,
		signatureMessage(msg)) == nil
}

// CheckSignature verifies msg against the spork key.  While the old key is
// still accepted its signatures are valid too, unless checkSigner demands
// the new key and the new key is already enforced.
func (m *Manager) CheckSignature(msg *mnwire.MsgSpork, checkSigner bool) bool {
	params := m.cfg.Params
	now := m.now().Unix()

	validNew := m.verify(params.SporkPubKey, msg)
	if checkSigner && !validNew && now > params.EnforceNewSporkKey {
		return false
	}
	if !validNew && now < params.RejectOldSporkKey {
		return m.verify(params.SporkPubKeyOld, msg)
	}
	return validNew
}

// SetPrivKey installs the spork signing key after checking that it signs
// sporks the network accepts.
func (m *Manager) SetPrivKey(wif string) error {
	key, pub, err := msgsign.KeyFromWIF(wif)
	if err != nil {
		return err
	}
	compress := msgsign.IsCompressedPubKey(pub)

	var probe mnwire.MsgSpork
	if err := m.sign(key, compress, &probe); err != nil {
		return err
	}
	if !m.CheckSignature(&probe, true) {
		return ruleError(ErrBadSignature, "key does not match the "+
			"network spork key")
	}

	m.mtx.Lock()
	m.privKey = key
	m.compress = compress
	m.mtx.Unlock()
	log.Infof("Successfully initialized as spork signer")
	return nil
}

func (m *Manager) sign(key *btcec.PrivateKey, compress bool, msg *mnwire.MsgSpork) error {
	sig, err := msgsign.Sign(key, compress, m.cfg.Params.MessageMagic,
		signatureMessage(msg))
	if err != nil {
		return err
	}
	msg.Sig = sig
	return nil
}

// UpdateSpork signs a new value for the spork with the configured key,
// activates it and relays it.
func (m *Manager) UpdateSpork(id ID, value int64) error {
	if !id.Known() {
		return ruleError(ErrUnknownSpork, fmt.Sprintf("unknown spork %d",
			int32(id)))
	}
	m.mtx.RLock()
	key, compress := m.privKey, m.compress
	m.mtx.RUnlock()
	if key == nil {
		return ruleError(ErrNoSigningKey, "no spork key configured")
	}

	msg := &mnwire.MsgSpork{
		SporkID:    int32(id),
		Value:      value,
		TimeSigned: m.now().Unix(),
	}
	if err := m.sign(key, compress, msg); err != nil {
		return err
	}
	if err := m.accept(msg); err != nil {
		return err
	}
	m.relay(msg)
	return nil
}
