// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package masternode

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/divitproject/mnd/chainview"
	"github.com/divitproject/mnd/mnpeer"
	"github.com/divitproject/mnd/mnwire"
	"github.com/divitproject/mnd/msgsign"
	"github.com/divitproject/mnd/netparams"
)

// p2pkhScriptLen is the length of a standard pay-to-pubkey-hash script.
const p2pkhScriptLen = 25

// Broadcast is a masternode announcement signed by the collateral key.
type Broadcast struct {
	mnwire.MsgMNBroadcast
}

// NewBroadcast returns an unsigned announcement.
func NewBroadcast(vin wire.TxIn, addr mnwire.ServiceAddr, pubKeyCollateral,
	pubKeyOperator []byte, protocol uint32) *Broadcast {

	return &Broadcast{MsgMNBroadcast: mnwire.MsgMNBroadcast{
		Vin:              vin,
		Addr:             addr,
		PubKeyCollateral: pubKeyCollateral,
		PubKeyOperator:   pubKeyOperator,
		Protocol:         protocol,
	}}
}

// CreateBroadcast builds a signed announcement for the collateral vin.  The
// embedded ping is anchored to anchor and signed by the operator key; the
// announcement is signed by the collateral key.
func CreateBroadcast(params *netparams.Params, vin wire.TxIn,
	addr mnwire.ServiceAddr, collateralKey, operatorKey *msgsign.Key,
	anchor chainhash.Hash, now int64) (*Broadcast, error) {

	short := vin.PreviousOutPoint.Hash.String()
	log.Debugf("Create broadcast for %s, collateral key %s, operator key %s",
		short, msgsign.KeyID(collateralKey.PubKey()),
		msgsign.KeyID(operatorKey.PubKey()))

	ping := NewPing(vin, anchor, now)
	if err := ping.Sign(operatorKey, params.MessageMagic, now); err != nil {
		return nil, fmt.Errorf("failed to sign ping, masternode=%s: %w",
			short, err)
	}

	b := NewBroadcast(vin, addr, collateralKey.PubKey(), operatorKey.PubKey(),
		params.ProtocolVersion)
	b.LastPing = ping.MsgMNPing
	if err := b.Sign(collateralKey, params.MessageMagic, now); err != nil {
		return nil, fmt.Errorf("failed to sign broadcast, masternode=%s: %w",
			short, err)
	}
	return b, nil
}

// CheckDefaultPort verifies that addr uses the port masternodes must use on
// the network.
func CheckDefaultPort(params *netparams.Params, addr mnwire.ServiceAddr) error {
	if addr.Port != params.DefaultPort {
		return ruleError(ErrBadPort, fmt.Sprintf("invalid port %d for "+
			"masternode %v, only %d is supported on %s", addr.Port, addr,
			params.DefaultPort, params.Name))
	}
	return nil
}

// checkPort applies the relay rule for announced ports: mainnet requires the
// default port and every other network must avoid it.
func checkPort(params *netparams.Params, addr mnwire.ServiceAddr) error {
	if params.IsMainNet {
		return CheckDefaultPort(params, addr)
	}
	if addr.Port == netparams.MainnetDefaultPort {
		return ruleError(ErrBadPort, fmt.Sprintf("masternode %v uses the "+
			"mainnet port", addr))
	}
	return nil
}

// newSignatureMessage is the announcement text signed with key ids.
func (b *Broadcast) newSignatureMessage() string {
	return b.Addr.String() + strconv.FormatInt(b.SigTime, 10) +
		msgsign.KeyID(b.PubKeyCollateral) + msgsign.KeyID(b.PubKeyOperator) +
		strconv.FormatUint(uint64(b.Protocol), 10)
}

// oldSignatureMessage is the legacy announcement text signed with the raw
// serialized keys.
func (b *Broadcast) oldSignatureMessage() string {
	return b.Addr.String() + strconv.FormatInt(b.SigTime, 10) +
		string(b.PubKeyCollateral) + string(b.PubKeyOperator) +
		strconv.FormatUint(uint64(b.Protocol), 10)
}

// Sign stamps the announcement with now and signs it with the collateral key.
func (b *Broadcast) Sign(key *msgsign.Key, magic string, now int64) error {
	b.SigTime = now
	sig, err := key.Sign(magic, b.newSignatureMessage())
	if err != nil {
		return err
	}
	b.Sig = sig
	return nil
}

// EncodeHex returns the hex encoded announcement in wire form.
func (b *Broadcast) EncodeHex() (string, error) {
	var buf bytes.Buffer
	if err := b.BtcEncode(&buf, 0, wire.BaseEncoding); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

// DecodeBroadcastHex decodes an announcement produced by EncodeHex.
func DecodeBroadcastHex(s string) (*Broadcast, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	var b Broadcast
	r := bytes.NewReader(raw)
	if err := b.BtcDecode(r, 0, wire.BaseEncoding); err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%d trailing bytes after announcement", r.Len())
	}
	return &b, nil
}

// VerifySignature checks the announcement against the collateral key.  The
// legacy message form is accepted until the network's cutoff time.
func (b *Broadcast) VerifySignature(params *netparams.Params, now int64) error {
	err := msgsign.Verify(b.PubKeyCollateral, b.Sig, params.MessageMagic,
		b.newSignatureMessage())
	if err == nil {
		return nil
	}
	if params.OldSignatureCutoff == 0 || now < params.OldSignatureCutoff {
		if msgsign.Verify(b.PubKeyCollateral, b.Sig, params.MessageMagic,
			b.oldSignatureMessage()) == nil {

			return nil
		}
	}
	return ruleError(ErrBadSignature, fmt.Sprintf("bad masternode address "+
		"signature for %s: %v", b.Vin.PreviousOutPoint.Hash, err))
}

// checkPubKey verifies that a serialized key parses and yields a standard
// pay-to-pubkey-hash script.
func checkPubKey(pubKey []byte, which string) error {
	if _, err := msgsign.ParsePubKey(pubKey); err != nil {
		return ruleError(ErrBadPubKey, fmt.Sprintf("%s pubkey is "+
			"invalid: %v", which, err))
	}
	script, err := msgsign.PayToPubKeyHashScript(pubKey)
	if err != nil || len(script) != p2pkhScriptLen {
		return ruleError(ErrBadPubKey, fmt.Sprintf("%s pubkey the wrong "+
			"size", which))
	}
	return nil
}

// Relay announces the announcement to the network.
func (b *Broadcast) Relay(network mnpeer.Network) {
	if network == nil {
		return
	}
	hash := b.Hash()
	network.RelayInventory(wire.NewInvVect(mnwire.InvTypeMasternodeAnnounce,
		&hash))
}

// CheckAndUpdate performs the stateless checks of the announcement and, when
// it refreshes a known enabled masternode, applies it.  It returns the DoS
// score to assign to the sender.
func (b *Broadcast) CheckAndUpdate(m *Manager) (int, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return b.checkAndUpdate(m)
}

func (b *Broadcast) checkAndUpdate(m *Manager) (int, error) {
	params := m.cfg.Params
	now := m.now()
	short := b.Vin.PreviousOutPoint.Hash.String()

	// The signature may be in the past but not in the future.
	if b.SigTime > now+MaxFutureDrift {
		return 1, ruleError(ErrFutureSigTime, fmt.Sprintf("announcement "+
			"signature rejected, too far into the future %s", short))
	}

	if b.LastPing.IsZero() {
		return 0, ruleError(ErrUnknownMasternode, fmt.Sprintf("announcement "+
			"%s carries no ping", short))
	}
	ping := Ping{MsgMNPing: b.LastPing}
	if dos, err := ping.checkAndUpdate(m, false, true); err != nil {
		return dos, err
	}

	if b.Protocol < m.minPaymentsProto() {
		return 0, ruleError(ErrObsoleteProtocol, fmt.Sprintf("ignoring "+
			"outdated masternode %s protocol version %d", short, b.Protocol))
	}

	if err := checkPubKey(b.PubKeyCollateral, "collateral"); err != nil {
		return 100, err
	}
	if err := checkPubKey(b.PubKeyOperator, "operator"); err != nil {
		return 100, err
	}

	if len(b.Vin.SignatureScript) != 0 {
		return 0, ruleError(ErrNonEmptyScriptSig, fmt.Sprintf("ignore not "+
			"empty scriptSig %s", short))
	}

	if err := b.VerifySignature(params, now); err != nil {
		// Old masternodes could sign badly; don't ban them.
		if b.Protocol < params.MinPeerProtoBeforeEnforcement {
			return 0, err
		}
		return 100, err
	}

	if err := checkPort(params, b.Addr); err != nil {
		return 0, err
	}

	// This is where known masternodes are updated by newer announcements.
	mn := m.find(b.Vin.PreviousOutPoint)
	if mn == nil {
		return 0, nil
	}

	// Legit duplicates are filtered by the seen cache, so an older or
	// equal announcement is suspicious.
	if mn.SigTime >= b.SigTime {
		return 0, fmt.Errorf("%w: bad sigTime %d for masternode %v %s "+
			"(existing announcement is at %d)", ErrStale, b.SigTime, b.Addr,
			short, mn.SigTime)
	}

	// Not enabled yet or any more, nothing to update.
	if !mn.IsEnabled() {
		return 0, nil
	}

	if bytes.Equal(mn.PubKeyCollateral, b.PubKeyCollateral) &&
		!mn.IsBroadcastedWithin(MinMNBSeconds, now) {

		log.Debugf("Got updated entry for %s", short)
		if m.updateFromBroadcast(mn, b) {
			mn.Check(now, false, m.cfg.Chain)
			if mn.IsEnabled() {
				b.Relay(m.cfg.Network)
			}
		}
		m.addedToList(b.Hash())
	}
	return 0, nil
}

// CheckInputsAndAdd verifies the collateral of a new announcement and adds
// the masternode to the list.  ErrRetryLater means the chain could not
// answer yet and the announcement should be processed again when seen.
func (b *Broadcast) CheckInputsAndAdd(m *Manager) (int, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return b.checkInputsAndAdd(m)
}

func (b *Broadcast) checkInputsAndAdd(m *Manager) (int, error) {
	params := m.cfg.Params
	op := b.Vin.PreviousOutPoint
	short := op.Hash.String()

	// Our own announcement needs no checks.
	if m.isOwnMasternode(op, b.PubKeyOperator) {
		return 0, nil
	}

	if b.LastPing.IsZero() {
		return 0, ruleError(ErrUnknownMasternode, fmt.Sprintf("announcement "+
			"%s carries no ping", short))
	}
	ping := Ping{MsgMNPing: b.LastPing}
	if dos, err := ping.checkAndUpdate(m, false, true); err != nil {
		return dos, err
	}

	if mn := m.find(op); mn != nil {
		if mn.IsEnabled() {
			return 0, nil
		}
		m.remove(op)
	}

	retry := func(err error) (int, error) {
		m.forgetBroadcast(b.Hash())
		return 0, fmt.Errorf("%w: %v", ErrRetryLater, err)
	}

	utxo, err := m.cfg.Chain.UtxoEntry(op)
	switch {
	case errors.Is(err, chainview.ErrUtxoNotFound):
		return 0, ruleError(ErrInvalidCollateral, fmt.Sprintf("collateral "+
			"%s not found", mnwire.OutPointShort(&op)))
	case err != nil:
		return retry(err)
	}
	if utxo.Value != params.CollateralAmount {
		return 33, ruleError(ErrInvalidCollateral, fmt.Sprintf("collateral "+
			"%s has value %v, want %v", mnwire.OutPointShort(&op),
			utxo.Value, params.CollateralAmount))
	}

	if utxo.Confirmations < MinConfirmations {
		// Maybe we missed a few blocks, check again later.
		log.Debugf("Input must have at least %d confirmations",
			MinConfirmations)
		return retry(fmt.Errorf("collateral %s has %d confirmations",
			short, utxo.Confirmations))
	}

	// The signature must not predate the block in which the collateral
	// reached MinConfirmations.
	confTime, err := m.cfg.Chain.BlockTime(utxo.Height + MinConfirmations - 1)
	if err != nil {
		return retry(err)
	}
	if confTime.Unix() > b.SigTime {
		return 0, ruleError(ErrBadSigTime, fmt.Sprintf("bad sigTime %d for "+
			"masternode %s (%d conf block is at %d)", b.SigTime, short,
			MinConfirmations, confTime.Unix()))
	}

	log.Debugf("Got NEW masternode entry - %s - %d", short, b.SigTime)
	m.add(newFromBroadcast(b))

	// A broadcast for our operator key means we were activated remotely.
	if m.active != nil && bytes.Equal(b.PubKeyOperator, m.active.OperatorKey()) &&
		b.Protocol == params.ProtocolVersion {

		m.active.EnableHotColdMasterNode(b.Vin, b.Addr)
	}

	isLocal := (b.Addr.IsRFC1918() || b.Addr.IsLocal()) && !params.IsRegTest
	if !isLocal {
		b.Relay(m.cfg.Network)
	}
	return 0, nil
}

// checkCollateralKey verifies that the collateral output pays the announced
// collateral key.
func (b *Broadcast) checkCollateralKey(chain chainview.Chain) error {
	op := b.Vin.PreviousOutPoint
	utxo, err := chain.UtxoEntry(op)
	switch {
	case errors.Is(err, chainview.ErrUtxoNotFound):
		return ruleError(ErrPubKeyMismatch, fmt.Sprintf("collateral %s "+
			"not found", mnwire.OutPointShort(&op)))
	case err != nil:
		return fmt.Errorf("%w: %v", ErrRetryLater, err)
	}
	script, err := msgsign.PayToPubKeyHashScript(b.PubKeyCollateral)
	if err != nil || !bytes.Equal(script, utxo.PkScript) {
		return ruleError(ErrPubKeyMismatch, fmt.Sprintf("collateral %s "+
			"does not pay the collateral key", mnwire.OutPointShort(&op)))
	}
	return nil
}
