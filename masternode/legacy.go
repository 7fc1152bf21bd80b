// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package masternode

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/divitproject/mnd/chainview"
	"github.com/divitproject/mnd/mnpeer"
	"github.com/divitproject/mnd/mnwire"
	"github.com/divitproject/mnd/msgsign"
	"github.com/divitproject/mnd/netparams"
	"github.com/divitproject/mnd/spork"
)

// The legacy obsee and obseep messages come from masternodes that predate
// signed pings.  They are honoured only while updated nodes are not yet
// required for payment, and they never carry a real ping: accepted entries
// get an unsigned ping anchored PingAnchorDepth blocks below the tip.

// legacyProtocolVersion is the first protocol version whose masternodes must
// announce with fnb.
const legacyProtocolVersion = 70077

// legacyEnabled reports whether legacy messages are still processed.
func (m *Manager) legacyEnabled() bool {
	return !m.sporkActive(spork.MasternodePayUpdatedNodes)
}

// fakePing returns the unsigned ping given to legacy entries.
func (m *Manager) fakePing(vin wire.TxIn) (mnwire.MsgMNPing, error) {
	hash, err := PingAnchor(m.cfg.Chain)
	if err != nil {
		return mnwire.MsgMNPing{}, err
	}
	return mnwire.MsgMNPing{Vin: vin, BlockHash: hash, SigTime: m.now()}, nil
}

// masternodeSeen reports a legacy entry as seen, the same event an
// announcement produces.
func (m *Manager) masternodeSeen(mn *Masternode) {
	m.addedToList(mn.broadcast().Hash())
}

// relayLegacy forwards a legacy message to every connected peer that is
// eligible for payment.
func (m *Manager) relayLegacy(msg wire.Message) {
	if m.cfg.Network == nil {
		return
	}
	minProto := m.minPaymentsProto()
	for _, node := range m.cfg.Network.ConnectedNodes() {
		if node.ProtocolVersion() >= minProto {
			node.QueueMessage(msg, nil)
		}
	}
}

func dseeSignatureMessage(msg *mnwire.MsgDsee) string {
	// Scripts that fail to disassemble still sign their partial text.
	donation, _ := txscript.DisasmString(msg.DonationScript)
	return msg.Addr.String() + strconv.FormatInt(msg.SigTime, 10) +
		string(msg.PubKeyCollateral) + string(msg.PubKeyOperator) +
		strconv.FormatInt(int64(msg.Protocol), 10) + donation +
		strconv.FormatInt(int64(msg.DonationPercentage), 10)
}

func dseepSignatureMessage(addr mnwire.ServiceAddr, msg *mnwire.MsgDseep) string {
	stop := "0"
	if msg.Stop {
		stop = "1"
	}
	return addr.String() + strconv.FormatInt(msg.SigTime, 10) + stop
}

func (m *Manager) handleDsee(node mnpeer.Node, msg *mnwire.MsgDsee) {
	if !m.legacyEnabled() {
		return
	}

	m.mtx.Lock()
	defer m.mtx.Unlock()

	now := m.now()
	op := msg.Vin.PreviousOutPoint
	short := op.Hash.String()

	// The signature may be in the past but not in the future.
	if msg.SigTime > now+MaxFutureDrift {
		log.Debugf("obsee - Signature rejected, too far into the future %s",
			short)
		mnpeer.Misbehaving(node, 1, "obsee: future signature")
		return
	}
	if msg.Protocol < 0 || uint32(msg.Protocol) < m.minPaymentsProto() {
		log.Debugf("obsee - ignoring outdated masternode %s protocol "+
			"version %d", short, msg.Protocol)
		mnpeer.Misbehaving(node, 1, "obsee: outdated protocol")
		return
	}
	if err := checkPubKey(msg.PubKeyCollateral, "collateral"); err != nil {
		mnpeer.Misbehaving(node, 100, "obsee: "+err.Error())
		return
	}
	if err := checkPubKey(msg.PubKeyOperator, "operator"); err != nil {
		mnpeer.Misbehaving(node, 100, "obsee: "+err.Error())
		return
	}
	if len(msg.Vin.SignatureScript) != 0 {
		log.Debugf("obsee - Ignore not empty scriptSig %s", short)
		mnpeer.Misbehaving(node, 100, "obsee: not empty scriptSig")
		return
	}
	err := msgsign.Verify(msg.PubKeyCollateral, msg.Sig, m.magic(),
		dseeSignatureMessage(msg))
	if err != nil {
		log.Debugf("obsee - Got bad masternode address signature %s: %v",
			short, err)
		mnpeer.Misbehaving(node, 100, "obsee: bad signature")
		return
	}
	if checkPort(m.cfg.Params, msg.Addr) != nil {
		return
	}

	// This is where known masternodes are updated by newer entries.
	if mn := m.find(op); mn != nil {
		if msg.Count != -1 || !bytes.Equal(mn.PubKeyCollateral, msg.PubKeyCollateral) ||
			now-mn.lastDsee <= MinMNBSeconds {

			return
		}
		if mn.Protocol > legacyProtocolVersion &&
			msg.SigTime-mn.LastPing.SigTime < MinMNBSeconds {

			return
		}
		if mn.lastDsee >= msg.SigTime {
			return
		}

		log.Debugf("obsee - Got updated entry for %s", short)
		if mn.Protocol < legacyProtocolVersion {
			ping, err := m.fakePing(msg.Vin)
			if err != nil {
				return
			}
			mn.PubKeyOperator = msg.PubKeyOperator
			mn.SigTime = msg.SigTime
			mn.Sig = msg.Sig
			mn.Protocol = uint32(msg.Protocol)
			mn.Addr = msg.Addr
			mn.LastPing = ping
		}
		mn.lastDsee = msg.SigTime
		mn.Check(now, false, m.cfg.Chain)
		if mn.IsEnabled() {
			m.relayLegacy(msg)
			m.masternodeSeen(mn)
		}
		return
	}

	if seen, ok := m.seenDsee[op]; ok && bytes.Equal(seen, msg.PubKeyCollateral) {
		log.Tracef("obsee - already seen this vin %s", op)
		return
	}
	m.seenDsee[op] = msg.PubKeyCollateral

	b := &Broadcast{MsgMNBroadcast: mnwire.MsgMNBroadcast{
		Vin:              msg.Vin,
		PubKeyCollateral: msg.PubKeyCollateral,
	}}
	if err := b.checkCollateralKey(m.cfg.Chain); err != nil {
		if errors.Is(err, ErrRetryLater) {
			delete(m.seenDsee, op)
			return
		}
		log.Debugf("obsee - Got mismatched pubkey and vin %s", short)
		mnpeer.Misbehaving(node, 100, "obsee: mismatched pubkey and vin")
		return
	}

	log.Debugf("obsee - Got NEW OLD masternode entry %s", short)

	utxo, err := m.cfg.Chain.UtxoEntry(op)
	switch {
	case errors.Is(err, chainview.ErrUtxoNotFound):
		log.Debugf("obsee - Rejected masternode entry %s", short)
		return
	case err != nil:
		delete(m.seenDsee, op)
		return
	}
	if utxo.Value != m.cfg.Params.CollateralAmount {
		log.Debugf("obsee - Rejected masternode entry %s: collateral "+
			"value %v", short, utxo.Value)
		return
	}
	if utxo.Confirmations < MinConfirmations {
		log.Debugf("obsee - Input must have at least %d confirmations",
			MinConfirmations)
		mnpeer.Misbehaving(node, 20, "obsee: input too new")
		return
	}

	// The signature must not predate the block in which the collateral
	// reached MinConfirmations.
	confTime, err := m.cfg.Chain.BlockTime(utxo.Height + MinConfirmations - 1)
	if err != nil {
		delete(m.seenDsee, op)
		return
	}
	if confTime.Unix() > msg.SigTime {
		log.Debugf("obsee - Bad sigTime %d for masternode %s (%d conf "+
			"block is at %d)", msg.SigTime, short, MinConfirmations,
			confTime.Unix())
		return
	}

	ping, err := m.fakePing(msg.Vin)
	if err != nil {
		delete(m.seenDsee, op)
		return
	}
	mn := &Masternode{
		Vin:              msg.Vin,
		Addr:             msg.Addr,
		PubKeyCollateral: msg.PubKeyCollateral,
		PubKeyOperator:   msg.PubKeyOperator,
		Sig:              msg.Sig,
		SigTime:          msg.SigTime,
		Protocol:         uint32(msg.Protocol),
		LastPing:         ping,
		AllowFreeTx:      true,
		lastDsee:         msg.SigTime,
	}
	mn.Check(now, true, m.cfg.Chain)

	// Newer masternodes are added by fnb only.
	if mn.Protocol < legacyProtocolVersion {
		log.Debugf("obsee - Accepted OLD masternode entry %d %d",
			msg.Count, msg.Current)
		m.add(mn)
	}
	if mn.IsEnabled() {
		m.relayLegacy(msg)
		m.masternodeSeen(mn)
	}
}

func (m *Manager) handleDseep(node mnpeer.Node, msg *mnwire.MsgDseep) {
	if !m.legacyEnabled() {
		return
	}

	m.mtx.Lock()
	defer m.mtx.Unlock()

	now := m.now()
	op := msg.Vin.PreviousOutPoint
	short := op.Hash.String()

	if msg.SigTime > now+MaxFutureDrift {
		log.Debugf("obseep - Signature rejected, too far into the future %s",
			short)
		mnpeer.Misbehaving(node, 1, "obseep: future signature")
		return
	}
	if msg.SigTime <= now-MaxFutureDrift {
		log.Debugf("obseep - Signature rejected, too far into the past %s "+
			"- %d %d", short, msg.SigTime, now)
		mnpeer.Misbehaving(node, 1, "obseep: past signature")
		return
	}

	if deadline, ok := m.weAskedForEntry[op]; ok && now < deadline {
		// We've asked recently.
		return
	}

	mn := m.find(op)
	if mn == nil || mn.Protocol < m.minPaymentsProto() {
		log.Debugf("obseep - Couldn't find masternode entry %s peer=%d",
			short, node.ID())
		m.askForMN(node, msg.Vin)
		return
	}

	// Take it only if it is newer.
	if msg.SigTime-mn.lastDseep <= MinMNPSeconds {
		return
	}
	err := msgsign.Verify(mn.PubKeyOperator, msg.Sig, m.magic(),
		dseepSignatureMessage(mn.Addr, msg))
	if err != nil {
		log.Debugf("obseep - Got bad masternode address signature %s",
			short)
		return
	}

	if mn.Protocol < legacyProtocolVersion {
		ping, err := m.fakePing(msg.Vin)
		if err != nil {
			return
		}
		mn.LastPing = ping
	}
	mn.lastDseep = msg.SigTime
	mn.Check(now, false, m.cfg.Chain)
	if mn.IsEnabled() {
		log.Debugf("obseep - relaying %s", short)
		m.relayLegacy(msg)
		m.masternodeSeen(mn)
	}
}

// NewLegacyDsee returns the obsee entry an updated masternode sends so that
// old-protocol nodes list it too.  It is signed by the collateral key.
func NewLegacyDsee(params *netparams.Params, vin wire.TxIn,
	addr mnwire.ServiceAddr, collateralKey, operatorKey *msgsign.Key,
	now int64) (*mnwire.MsgDsee, error) {

	msg := &mnwire.MsgDsee{
		Vin:              vin,
		Addr:             addr,
		SigTime:          now,
		PubKeyCollateral: collateralKey.PubKey(),
		PubKeyOperator:   operatorKey.PubKey(),
		Count:            -1,
		Current:          -1,
		LastUpdated:      now,
		Protocol:         int32(params.ProtocolVersion),
	}
	sig, err := collateralKey.Sign(params.MessageMagic, dseeSignatureMessage(msg))
	if err != nil {
		return nil, fmt.Errorf("obsee sign message failed: %w", err)
	}
	msg.Sig = sig
	return msg, nil
}

// NewLegacyDseep returns the obseep ping matching NewLegacyDsee.  It is
// signed by the operator key.
func NewLegacyDseep(params *netparams.Params, vin wire.TxIn,
	addr mnwire.ServiceAddr, operatorKey *msgsign.Key,
	now int64) (*mnwire.MsgDseep, error) {

	msg := &mnwire.MsgDseep{Vin: vin, SigTime: now}
	sig, err := operatorKey.Sign(params.MessageMagic,
		dseepSignatureMessage(addr, msg))
	if err != nil {
		return nil, fmt.Errorf("obseep sign message failed: %w", err)
	}
	msg.Sig = sig
	return msg, nil
}
