// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/divitproject/mnd/netparams"
	"github.com/stretchr/testify/require"
)

// testArgs returns the arguments pointing mnd at a config file with the given
// contents inside a temporary home.
func testArgs(t *testing.T, contents string, args ...string) []string {
	t.Helper()
	dir := t.TempDir()
	configFile := filepath.Join(dir, "mnd.conf")
	require.NoError(t, os.WriteFile(configFile,
		[]byte("[Application Options]\n"+contents), 0600))
	return append([]string{"-C", configFile, "--datadir",
		filepath.Join(dir, "data"), "--logdir", filepath.Join(dir, "logs")},
		args...)
}

func TestLoadConfigDefaults(t *testing.T) {
	args := testArgs(t, "", "--regtest")
	cfg, params, remaining, err := loadConfigArgs(args)
	require.NoError(t, err)
	require.Empty(t, remaining)
	require.Equal(t, netparams.RegTestParams.Name, params.Name)

	require.Equal(t, "regtest", filepath.Base(cfg.DataDir))
	require.Equal(t, "regtest", filepath.Base(cfg.LogDir))
	require.Equal(t, filepath.Join(cfg.DataDir, "masternode.conf"), cfg.MNConf)
	require.Equal(t, []string{":51476"}, cfg.Listeners)
	require.Equal(t, "localhost:51477", cfg.RPCConnect)
	require.Equal(t, defaultSporkDB, cfg.SporkDB)
	require.Equal(t, defaultMaxPeers, cfg.MaxPeers)
	require.False(t, cfg.DisableListen)
}

func TestLoadConfigPrecedence(t *testing.T) {
	args := testArgs(t, "testnet=1\nmaxpeers=10\nbanduration=1h\n"+
		"addpeer=10.0.0.1\naddpeer=10.0.0.1:8763\n", "--maxpeers=20")
	cfg, params, _, err := loadConfigArgs(args)
	require.NoError(t, err)
	require.Equal(t, "testnet", params.Name)

	// The command line wins over the file.
	require.Equal(t, 20, cfg.MaxPeers)
	require.Equal(t, time.Hour, cfg.BanDuration)

	// Addresses get the network port and duplicates are removed.
	require.Equal(t, []string{"10.0.0.1:8763"}, cfg.AddPeers)
	require.Equal(t, "localhost:51475", cfg.RPCConnect)
}

func TestLoadConfigConnectDisablesListen(t *testing.T) {
	args := testArgs(t, "", "--regtest", "--connect=127.0.0.1")
	cfg, _, _, err := loadConfigArgs(args)
	require.NoError(t, err)
	require.True(t, cfg.DisableListen)
	require.Empty(t, cfg.Listeners)
	require.Equal(t, []string{"127.0.0.1:51476"}, cfg.ConnectPeers)

	// Explicit listeners keep listening enabled.
	args = testArgs(t, "", "--regtest", "--proxy=127.0.0.1:9050",
		"--listen=127.0.0.1")
	cfg, _, _, err = loadConfigArgs(args)
	require.NoError(t, err)
	require.False(t, cfg.DisableListen)
	require.Equal(t, []string{"127.0.0.1:51476"}, cfg.Listeners)
}

func TestLoadConfigMasternode(t *testing.T) {
	const txid = "2bcd3c84c84f87eaa86e4e56834c92927a07f9e18718810b92e0d0324456a67c"
	args := testArgs(t, "", "--regtest", "--masternode",
		"--masternodeprivkey=key", "--masternodeaddr=10.0.0.5",
		"--collateralkey=ckey", "--collateraltx="+txid,
		"--collateralindex=1")
	cfg, _, _, err := loadConfigArgs(args)
	require.NoError(t, err)
	require.Equal(t, "10.0.0.5:51476", cfg.MasternodeAddr)
	require.Equal(t, uint32(1), cfg.CollateralIndex)
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"two networks", []string{"--testnet", "--regtest"}},
		{"bad spork db", []string{"--sporkdb=ffldb"}},
		{"bad profile port", []string{"--profile=80"}},
		{"short ban", []string{"--banduration=100ms"}},
		{"zero ban threshold", []string{"--banthreshold=0"}},
		{"addpeer and connect", []string{"--addpeer=10.0.0.1",
			"--connect=10.0.0.2"}},
		{"masternode without key", []string{"--masternode"}},
		{"collateral without masternode", []string{"--collateralkey=k",
			"--collateraltx=00"}},
		{"collateral key alone", []string{"--masternode",
			"--masternodeprivkey=k", "--collateralkey=k"}},
		{"bad collateral txid", []string{"--masternode",
			"--masternodeprivkey=k", "--collateralkey=k",
			"--collateraltx=xyz"}},
		{"bad debug level", []string{"--debuglevel=loud"}},
		{"unknown option", []string{"--nosuchoption"}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, _, _, err := loadConfigArgs(testArgs(t, "", test.args...))
			require.Error(t, err)
		})
	}
}

func TestLoadConfigBadFile(t *testing.T) {
	_, _, _, err := loadConfigArgs(testArgs(t, "maxpeers=many\n"))
	require.Error(t, err)
}
