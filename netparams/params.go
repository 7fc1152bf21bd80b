// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package netparams defines the per-network parameters the masternode
// subsystem depends on: message start bytes, ports, spork keys, collateral
// amount, protocol versions and the reward schedule hooks.
package netparams

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
)

// Network identifiers.
const (
	MainNet wire.BitcoinNet = 0x13fdc403
	TestNet wire.BitcoinNet = 0xba657645
	RegTest wire.BitcoinNet = 0xac7ecfa1
)

// MainnetDefaultPort is the masternode port every mainnet announcement must
// use.  Other networks must use any port except this one.
const MainnetDefaultPort = 9765

// Params defines a network by its parameters.
type Params struct {
	// Chain holds the address encoding parameters (key and script hash
	// prefixes, WIF prefix) used when printing payees and decoding keys.
	Chain chaincfg.Params

	// Name is the human readable network name, also used to namespace the
	// data directory.
	Name string

	// Net is the magic that starts every wire message and every cache file.
	Net wire.BitcoinNet

	// DefaultPort is the peer-to-peer port for the network.
	DefaultPort uint16

	// MessageMagic prefixes every signed message before hashing.
	MessageMagic string

	// SporkPubKey and SporkPubKeyOld are hex encoded uncompressed keys.
	// Sporks signed by the old key are accepted until RejectOldSporkKey.
	SporkPubKey        string
	SporkPubKeyOld     string
	EnforceNewSporkKey int64
	RejectOldSporkKey  int64

	// CollateralAmount is the exact output value that backs a masternode.
	CollateralAmount btcutil.Amount

	// MasternodeCountDrift is added to the registry size when evaluating
	// block payees.
	MasternodeCountDrift int

	// LastPoWBlock is the last proof-of-work height.
	LastPoWBlock int32

	// ProtocolVersion is the protocol this node speaks and signs.
	// ActiveProtocol is the minimum once spork 19 is active, and
	// MinPeerProtoBeforeEnforcement is the minimum before that.
	ProtocolVersion               uint32
	ActiveProtocol                uint32
	MinPeerProtoBeforeEnforcement uint32

	// OldSignatureCutoff is the unix time after which announcements signed
	// with the legacy raw-pubkey message are rejected.  Zero never cuts
	// off.
	OldSignatureCutoff int64

	// IsMainNet and IsRegTest drive the network specific relaxations.
	IsMainNet bool
	IsRegTest bool
}

// IsTestNet reports whether these are the public test network parameters.
func (p *Params) IsTestNet() bool {
	return !p.IsMainNet && !p.IsRegTest
}

func chainParams(base *chaincfg.Params, name string, net wire.BitcoinNet,
	port string, pkh, sh, wif byte) chaincfg.Params {

	params := *base
	params.Name = name
	params.Net = net
	params.DefaultPort = port
	params.PubKeyHashAddrID = pkh
	params.ScriptHashAddrID = sh
	params.PrivateKeyID = wif
	params.DNSSeeds = nil
	return params
}

const (
	protocolVersion     = 70920
	activeProtocol      = 70920
	minProtoBeforeSpork = 70918
	messageMagic        = "DarkNet Signed Message:\n"
)

// MainNetParams defines the network parameters for the main network.
var MainNetParams = Params{
	Chain: chainParams(&chaincfg.MainNetParams, "mainnet", MainNet,
		"9765", 71, 13, 212),
	Name:         "mainnet",
	Net:          MainNet,
	DefaultPort:  MainnetDefaultPort,
	MessageMagic: messageMagic,
	SporkPubKey: "042c1257f8e148675cdb62b86a9a86625c00a2330957d7d2b6a1d9b685c7e070" +
		"5014dfb70bf6358c272da0258481902a813197a6bddfddf86f46c48b4f37de9732",
	SporkPubKeyOld: "04fd2375653a3064623b8a9e179c34a4ffa9ee9afbc13e2218b37f5fa6cbe2f9" +
		"4ef874a216cbfddbcbf06b5951a9011d65dae988fb4469fabcfa29b9c8daf23c7e",
	EnforceNewSporkKey:            1596240000,
	RejectOldSporkKey:             1604188800,
	CollateralAmount:              10000 * btcutil.SatoshiPerBitcoin,
	MasternodeCountDrift:          20,
	LastPoWBlock:                  200,
	ProtocolVersion:               protocolVersion,
	ActiveProtocol:                activeProtocol,
	MinPeerProtoBeforeEnforcement: minProtoBeforeSpork,
	OldSignatureCutoff:            1604188800,
	IsMainNet:                     true,
}

// TestNetParams defines the network parameters for the test network.
var TestNetParams = Params{
	Chain: chainParams(&chaincfg.TestNet3Params, "testnet", TestNet,
		"8763", 139, 19, 239),
	Name:         "testnet",
	Net:          TestNet,
	DefaultPort:  8763,
	MessageMagic: messageMagic,
	SporkPubKey: "0416a999f63f7f20d76e5f2d75d23987902aeb372c44ce275e5f6c07b99155a6" +
		"66ef9c96a6d5cc8232fd4eeb6546caa2b35b4b7f336daedbb337b55392ecf69744",
	SporkPubKeyOld: "04cef2ceafa824fa3e5777989e032cf4d48ab3b5ccb83897c7892dd9fd72e696" +
		"76355e18082e795b67d051b487c6852105db03160e547eeb81b20a608560974cb9",
	EnforceNewSporkKey:            1596240000,
	RejectOldSporkKey:             1601510400,
	CollateralAmount:              10000 * btcutil.SatoshiPerBitcoin,
	MasternodeCountDrift:          4,
	LastPoWBlock:                  200,
	ProtocolVersion:               protocolVersion,
	ActiveProtocol:                activeProtocol,
	MinPeerProtoBeforeEnforcement: minProtoBeforeSpork,
}

// RegTestParams defines the network parameters for the regression test
// network.  The spork keys are left empty; tests install their own.
var RegTestParams = Params{
	Chain: chainParams(&chaincfg.RegressionNetParams, "regtest", RegTest,
		"51476", 139, 19, 239),
	Name:                          "regtest",
	Net:                           RegTest,
	DefaultPort:                   51476,
	MessageMagic:                  messageMagic,
	CollateralAmount:              10000 * btcutil.SatoshiPerBitcoin,
	MasternodeCountDrift:          4,
	LastPoWBlock:                  200,
	ProtocolVersion:               protocolVersion,
	ActiveProtocol:                activeProtocol,
	MinPeerProtoBeforeEnforcement: minProtoBeforeSpork,
	IsRegTest:                     true,
}
