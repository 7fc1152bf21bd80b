// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package masternode

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/divitproject/mnd/chainview"
	"github.com/divitproject/mnd/mnpeer"
	"github.com/divitproject/mnd/mnwire"
	"github.com/divitproject/mnd/msgsign"
)

// PingAnchorDepth is how many blocks below the tip new pings are anchored.
const PingAnchorDepth = 12

// PingAnchor returns the hash of the block a new ping is anchored to.
func PingAnchor(chain chainview.Chain) (chainhash.Hash, error) {
	tip, err := chain.BestHeight()
	if err != nil {
		return chainhash.Hash{}, err
	}
	height := tip - PingAnchorDepth
	if height < 0 {
		height = 0
	}
	return chain.BlockHash(height)
}

// Ping is a masternode liveness proof signed by the operator key.
type Ping struct {
	mnwire.MsgMNPing
}

// NewPing returns an unsigned ping for vin anchored to blockHash.
func NewPing(vin wire.TxIn, blockHash chainhash.Hash, now int64) *Ping {
	return &Ping{MsgMNPing: mnwire.MsgMNPing{
		Vin:       vin,
		BlockHash: blockHash,
		SigTime:   now,
	}}
}

// signatureMessage returns the text the operator signs.
func (p *Ping) signatureMessage() string {
	return mnwire.TxInString(&p.Vin) + p.BlockHash.String() +
		strconv.FormatInt(p.SigTime, 10)
}

// Sign stamps the ping with now and signs it with the operator key.
func (p *Ping) Sign(key *msgsign.Key, magic string, now int64) error {
	p.SigTime = now
	sig, err := key.Sign(magic, p.signatureMessage())
	if err != nil {
		return fmt.Errorf("failed to sign ping: %w", err)
	}
	p.Sig = sig
	return nil
}

// VerifySignature checks the ping against the operator key.
func (p *Ping) VerifySignature(pubKeyOperator []byte, magic string) error {
	err := msgsign.Verify(pubKeyOperator, p.Sig, magic, p.signatureMessage())
	if err != nil {
		return ruleError(ErrBadSignature, fmt.Sprintf("bad masternode "+
			"ping signature %s: %v", mnwire.TxInString(&p.Vin), err))
	}
	return nil
}

// CheckAndUpdate validates the ping against the masternode list and, when it
// is newer than the last accepted ping, applies and relays it.  With
// checkSigTimeOnly only the timestamp and, for known masternodes, the
// signature are checked.  It returns the DoS score to assign to the sender.
func (p *Ping) CheckAndUpdate(m *Manager, requireEnabled, checkSigTimeOnly bool) (int, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return p.checkAndUpdate(m, requireEnabled, checkSigTimeOnly)
}

// checkAndUpdate is CheckAndUpdate with the list lock held.
func (p *Ping) checkAndUpdate(m *Manager, requireEnabled, checkSigTimeOnly bool) (int, error) {
	now := m.now()
	op := p.Vin.PreviousOutPoint
	short := op.Hash.String()

	if p.SigTime > now+MaxFutureDrift {
		return 1, ruleError(ErrFutureSigTime, fmt.Sprintf("ping signature "+
			"rejected, too far into the future %s", short))
	}
	if p.SigTime <= now-MaxFutureDrift {
		return 1, ruleError(ErrPastSigTime, fmt.Sprintf("ping signature "+
			"rejected, too far into the past %s - %d %d", short,
			p.SigTime, now))
	}

	mn := m.find(op)
	if checkSigTimeOnly {
		if mn == nil {
			return 0, nil
		}
		if err := p.VerifySignature(mn.PubKeyOperator, m.magic()); err != nil {
			return 33, err
		}
		return 0, nil
	}

	hash := p.Hash()
	log.Tracef("New ping %v - %v - %d", hash, p.BlockHash, p.SigTime)

	if mn == nil || mn.Protocol < m.minPaymentsProto() {
		return 0, ruleError(ErrUnknownMasternode, fmt.Sprintf("couldn't "+
			"find compatible masternode entry, vin: %s", short))
	}
	if requireEnabled && !mn.IsEnabled() {
		return 0, ruleError(ErrNotEnabled, fmt.Sprintf("masternode %s "+
			"is %v", short, mn.ActiveState))
	}

	// Update only if the last ping is at least MinMNPSeconds-60 older
	// than this one.
	if mn.IsPingedWithin(MinMNPSeconds-60, p.SigTime) {
		return 0, fmt.Errorf("%w, vin: %s", ErrPingTooEarly, short)
	}
	if err := p.VerifySignature(mn.PubKeyOperator, m.magic()); err != nil {
		return 33, err
	}

	anchor, err := m.cfg.Chain.BlockHeight(&p.BlockHash)
	switch {
	case errors.Is(err, chainview.ErrUnknownBlock):
		// We may be behind, so don't punish the sender.
		return 0, fmt.Errorf("%w: masternode %s block hash %v is unknown",
			ErrRetryLater, short, p.BlockHash)
	case err != nil:
		return 0, fmt.Errorf("%w: %v", ErrRetryLater, err)
	}
	tip, err := m.cfg.Chain.BestHeight()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRetryLater, err)
	}
	if anchor < tip-MaxPingAnchorDepth {
		return 0, ruleError(ErrStaleAnchor, fmt.Sprintf("masternode %s "+
			"block hash %v is too old", short, p.BlockHash))
	}

	mn.LastPing = p.MsgMNPing

	// The cached announcement carries an outdated ping.
	if seen, ok := m.seenBroadcasts[mn.broadcast().Hash()]; ok {
		seen.LastPing = p.MsgMNPing
	}

	mn.Check(now, true, m.cfg.Chain)
	if !mn.IsEnabled() {
		return 0, ruleError(ErrNotEnabled, fmt.Sprintf("masternode %s "+
			"is %v after ping", short, mn.ActiveState))
	}

	log.Debugf("Masternode ping accepted, vin: %s", short)
	p.Relay(m.cfg.Network)
	return 0, nil
}

// Relay announces the ping to the network.
func (p *Ping) Relay(network mnpeer.Network) {
	if network == nil {
		return
	}
	hash := p.Hash()
	network.RelayInventory(wire.NewInvVect(mnwire.InvTypeMasternodePing, &hash))
}
