// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// mnutil is a collection of offline masternode utilities: it generates
// operator keys, signs announcements for the entries of a masternode.conf
// file and inspects announcements and cache files.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/divitproject/mnd/internal/version"
	"github.com/divitproject/mnd/netparams"
	flags "github.com/jessevdk/go-flags"
)

var (
	mndHomeDir     = btcutil.AppDataDir("mnd", false)
	defaultDataDir = filepath.Join(mndHomeDir, "data")
	defaultRPCCert = filepath.Join(mndHomeDir, "rpc.cert")
)

// globalOptions are the options shared by every command.
type globalOptions struct {
	ShowVersion bool   `short:"V" long:"version" description:"Display version information and exit"`
	TestNet     bool   `long:"testnet" description:"Use the test network"`
	RegTest     bool   `long:"regtest" description:"Use the regression test network"`
	DataDir     string `short:"b" long:"datadir" description:"Base data directory of mnd"`
	Verbose     bool   `short:"v" long:"verbose" description:"Dump the full decoded structures"`
}

var opts = globalOptions{DataDir: defaultDataDir}

// activeParams returns the parameters of the selected network.
func activeParams() (*netparams.Params, error) {
	switch {
	case opts.TestNet && opts.RegTest:
		return nil, errors.New("the testnet and regtest params can't " +
			"be used together -- choose one of the two")
	case opts.TestNet:
		return &netparams.TestNetParams, nil
	case opts.RegTest:
		return &netparams.RegTestParams, nil
	}
	return &netparams.MainNetParams, nil
}

// netDataDir returns the data directory of mnd for the selected network.
func netDataDir(params *netparams.Params) string {
	return filepath.Join(opts.DataDir, params.Name)
}

func newParser() *flags.Parser {
	parser := flags.NewParser(&opts, flags.Default)
	parser.AddCommand("genkey", "Generate a masternode operator key",
		"Generate a new private key in wallet import format suitable as "+
			"masternodeprivkey.", &genKeyCommand{})
	parser.AddCommand("createbroadcast", "Sign a masternode announcement",
		"Sign the announcement of a masternode.conf entry with its "+
			"collateral key and print it hex encoded for --relaybroadcast.",
		&createBroadcastCommand{RPCCert: defaultRPCCert})
	parser.AddCommand("decodebroadcast", "Decode a masternode announcement",
		"Decode a hex encoded announcement and print its contents.",
		&decodeBroadcastCommand{})
	parser.AddCommand("dumpcache", "Print a masternode cache file",
		"Read mncache.dat or mnpayments.dat without modifying it and "+
			"print its contents.", &dumpCacheCommand{})
	return parser
}

func main() {
	parser := newParser()
	parser.SubcommandsOptional = true
	_, err := parser.Parse()
	if err != nil {
		var e *flags.Error
		if !errors.As(err, &e) || e.Type != flags.ErrHelp {
			os.Exit(1)
		}
		os.Exit(0)
	}
	if opts.ShowVersion {
		fmt.Println(filepath.Base(os.Args[0]), "version", version.String())
		return
	}
	if parser.Active == nil {
		parser.WriteHelp(os.Stderr)
		os.Exit(1)
	}
}
