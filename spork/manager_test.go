// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package spork

import (
	"encoding/hex"
	"path/filepath"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/divitproject/mnd/database/engine"
	_ "github.com/divitproject/mnd/database/engine/leveldb"
	"github.com/divitproject/mnd/mnpeer/peertest"
	"github.com/divitproject/mnd/mnwire"
	"github.com/divitproject/mnd/msgsign"
	"github.com/divitproject/mnd/netparams"
	"github.com/stretchr/testify/require"
)

type testKeys struct {
	newKey, oldKey *btcec.PrivateKey
	params         netparams.Params
}

func newTestKeys(t *testing.T) *testKeys {
	t.Helper()
	newKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	oldKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	params := netparams.RegTestParams
	params.SporkPubKey = hex.EncodeToString(newKey.PubKey().SerializeUncompressed())
	params.SporkPubKeyOld = hex.EncodeToString(oldKey.PubKey().SerializeUncompressed())
	params.EnforceNewSporkKey = 2000
	params.RejectOldSporkKey = 3000
	return &testKeys{newKey: newKey, oldKey: oldKey, params: params}
}

func signed(t *testing.T, key *btcec.PrivateKey, id ID, value, timeSigned int64) *mnwire.MsgSpork {
	t.Helper()
	msg := &mnwire.MsgSpork{SporkID: int32(id), Value: value, TimeSigned: timeSigned}
	sig, err := msgsign.Sign(key, false, netparams.RegTestParams.MessageMagic,
		signatureMessage(msg))
	require.NoError(t, err)
	msg.Sig = sig
	return msg
}

func fixedTime(unix int64) func() time.Time {
	return func() time.Time { return time.Unix(unix, 0) }
}

func TestDefaults(t *testing.T) {
	t.Parallel()

	m := New(&Config{Params: &netparams.RegTestParams})
	require.True(t, m.IsActive(SwiftTX))
	require.False(t, m.IsActive(MasternodePaymentEnforcement))
	require.False(t, m.IsActive(MasternodePayUpdatedNodes))
	require.EqualValues(t, 1000, m.Value(MaxValue))
	require.EqualValues(t, -1, m.Value(ID(12345)))
	require.False(t, m.IsActive(ID(12345)))

	id, err := IDByName("SPORK_8_MASTERNODE_PAYMENT_ENFORCEMENT")
	require.NoError(t, err)
	require.Equal(t, MasternodePaymentEnforcement, id)
	_, err = IDByName("SPORK_1")
	require.Error(t, err)
	require.Equal(t, "Unknown", ID(1).String())
	require.Len(t, KnownIDs(), len(sporkInfos))
}

func TestProcessSpork(t *testing.T) {
	t.Parallel()

	keys := newTestKeys(t)
	node := peertest.NewNode("1.2.3.4:51476", 70920)
	net := peertest.NewNetwork(node)
	m := New(&Config{
		Params:     &keys.params,
		Network:    net,
		TimeSource: fixedTime(2500),
	})

	// Valid new key signature activates the spork.
	on := signed(t, keys.newKey, MasternodePaymentEnforcement, 1000, 2100)
	require.NoError(t, m.ProcessSpork(node, on))
	require.True(t, m.IsActive(MasternodePaymentEnforcement))
	require.Len(t, net.RelayedOfType(mnwire.InvTypeSpork), 1)
	hash := on.Hash()
	got, ok := m.Lookup(&hash)
	require.True(t, ok)
	require.Equal(t, on, got)

	// Same or older timestamp is stale and not scored.
	err := m.ProcessSpork(node, signed(t, keys.newKey, MasternodePaymentEnforcement, 5000, 2100))
	require.True(t, IsErrorCode(err, ErrStaleSpork))
	require.Zero(t, node.BanScore())

	// Forged signature costs 100 and is remembered.
	forged := signed(t, keys.oldKey, MasternodePaymentEnforcement, 9999999999, 2200)
	err = m.ProcessSpork(node, forged)
	require.True(t, IsErrorCode(err, ErrBadSignature))
	require.EqualValues(t, 100, node.BanScore())
	err = m.ProcessSpork(node, forged)
	require.True(t, IsErrorCode(err, ErrBadSignature))
	require.EqualValues(t, 200, node.BanScore())
	require.True(t, m.IsActive(MasternodePaymentEnforcement))

	// Unknown ids are ignored without penalty.
	err = m.ProcessSpork(node, signed(t, keys.newKey, ID(10003), 1, 2300))
	require.True(t, IsErrorCode(err, ErrUnknownSpork))
	require.EqualValues(t, 200, node.BanScore())

	// getsporks replays the active set.
	node.Reset()
	m.ProcessMessage(node, &mnwire.MsgGetSporks{})
	require.Equal(t, []string{mnwire.CmdSpork}, node.SentCommands())
}

func TestOldKeyWindow(t *testing.T) {
	t.Parallel()

	keys := newTestKeys(t)
	tests := []struct {
		name       string
		now        int64
		timeSigned int64
		valid      bool
	}{
		// Before enforcement the old key is fine.
		{"before enforcement", 1500, 1500, true},
		// Signed after enforcement, the new key is required.
		{"signed after enforcement", 2500, 2100, false},
		// Signed before enforcement, still inside the old key window.
		{"old message in window", 2500, 1900, true},
		// Window closed.
		{"window closed", 3500, 1900, false},
	}
	for _, test := range tests {
		m := New(&Config{Params: &keys.params, TimeSource: fixedTime(test.now)})
		node := peertest.NewNode("1.2.3.4:51476", 70920)
		err := m.ProcessSpork(node, signed(t, keys.oldKey, SwiftTX, 1, test.timeSigned))
		if test.valid {
			require.NoError(t, err, test.name)
		} else {
			require.Error(t, err, test.name)
			require.EqualValues(t, 100, node.BanScore(), test.name)
		}
	}
}

func TestNoTip(t *testing.T) {
	t.Parallel()

	keys := newTestKeys(t)
	m := New(&Config{
		Params:     &keys.params,
		HasTip:     func() bool { return false },
		TimeSource: fixedTime(2500),
	})
	node := peertest.NewNode("1.2.3.4:51476", 70920)
	err := m.ProcessSpork(node, signed(t, keys.newKey, SwiftTX, 1, 2100))
	require.True(t, IsErrorCode(err, ErrNoTip))
}

func TestUpdateSporkAndReload(t *testing.T) {
	t.Parallel()

	keys := newTestKeys(t)
	db, err := engine.Open("leveldb", filepath.Join(t.TempDir(), "sporks"), true)
	require.NoError(t, err)
	defer db.Close()

	net := peertest.NewNetwork()
	m := New(&Config{
		Params:     &keys.params,
		DB:         db,
		Network:    net,
		TimeSource: fixedTime(2500),
	})

	err = m.UpdateSpork(MasternodePayUpdatedNodes, 1)
	require.True(t, IsErrorCode(err, ErrNoSigningKey))

	wrong, err := btcutil.NewWIF(keys.oldKey, &keys.params.Chain, false)
	require.NoError(t, err)
	require.Error(t, m.SetPrivKey(wrong.String()))

	wif, err := btcutil.NewWIF(keys.newKey, &keys.params.Chain, false)
	require.NoError(t, err)
	require.NoError(t, m.SetPrivKey(wif.String()))
	require.NoError(t, m.UpdateSpork(MasternodePayUpdatedNodes, 1))
	require.True(t, m.IsActive(MasternodePayUpdatedNodes))
	require.Len(t, net.Relayed(), 1)

	reloaded := New(&Config{Params: &keys.params, DB: db, TimeSource: fixedTime(2500)})
	require.False(t, reloaded.IsActive(MasternodePayUpdatedNodes))
	require.NoError(t, reloaded.LoadFromDB())
	require.True(t, reloaded.IsActive(MasternodePayUpdatedNodes))
	require.Len(t, reloaded.Active(), 1)
}
