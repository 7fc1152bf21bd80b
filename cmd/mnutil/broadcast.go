// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/divitproject/mnd/activemn"
	"github.com/divitproject/mnd/chainrpc"
	"github.com/divitproject/mnd/chainview"
	"github.com/divitproject/mnd/masternode"
	"github.com/divitproject/mnd/mnconf"
	"github.com/divitproject/mnd/mnwire"
	"github.com/divitproject/mnd/msgsign"
	"github.com/divitproject/mnd/netparams"
	"golang.org/x/crypto/ssh/terminal"
)

// Default chain RPC ports of the full node per network.
var defaultRPCPorts = map[string]string{
	"mainnet": "51473",
	"testnet": "51475",
	"regtest": "51477",
}

// createBroadcastCommand signs the announcement of a masternode.conf entry.
type createBroadcastCommand struct {
	MNConf        string `long:"mnconf" description:"Path to the masternode.conf file (default: masternode.conf in the network data directory)"`
	CollateralKey string `long:"collateralkey" default-mask:"-" description:"Private key in WIF spending the collateral (prompted for when not given)"`

	RPCConnect string `short:"c" long:"rpcconnect" description:"Hostname/IP and port of the full node RPC server"`
	RPCUser    string `short:"u" long:"rpcuser" description:"Username for chain RPC connections"`
	RPCPass    string `short:"P" long:"rpcpass" default-mask:"-" description:"Password for chain RPC connections"`
	RPCCert    string `long:"rpccert" description:"File containing the certificate of the chain RPC server"`
	NoTLS      bool   `long:"notls" description:"Disable TLS for the chain RPC connection"`

	Args struct {
		Alias string `positional-arg-name:"alias" description:"Alias of the masternode.conf entry"`
	} `positional-args:"yes" required:"yes"`
}

// promptSecret reads a secret from the terminal without echoing it.
func promptSecret(what string) (string, error) {
	fmt.Fprintf(os.Stderr, "%s: ", what)
	secret, err := terminal.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprint(os.Stderr, "\n")
	if err != nil {
		return "", fmt.Errorf("unable to read %s: %w", what, err)
	}
	s := strings.TrimSpace(string(secret))
	zero(secret)
	return s, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0x00
	}
}

// Execute satisfies the go-flags Commander interface.
func (c *createBroadcastCommand) Execute(args []string) error {
	params, err := activeParams()
	if err != nil {
		return err
	}

	path := c.MNConf
	if path == "" {
		path = filepath.Join(netDataDir(params), mnconf.DefaultFilename)
	}
	conf, err := mnconf.Read(path, params)
	if err != nil {
		return err
	}
	entry, ok := conf.Find(c.Args.Alias)
	if !ok {
		return fmt.Errorf("no masternode %q in %s", c.Args.Alias, path)
	}

	wif := c.CollateralKey
	if wif == "" {
		wif, err = promptSecret("Collateral key")
		if err != nil {
			return err
		}
	}
	collateralKey, err := msgsign.DecodeKey(wif)
	if err != nil {
		return fmt.Errorf("invalid collateral key: %w", err)
	}

	host := c.RPCConnect
	if host == "" {
		host = "localhost"
	}
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, defaultRPCPorts[params.Name])
	}
	chain, err := chainrpc.New(&chainrpc.Config{
		Host:       host,
		User:       c.RPCUser,
		Pass:       c.RPCPass,
		CertFile:   c.RPCCert,
		DisableTLS: c.NoTLS,
	})
	if err != nil {
		return err
	}
	defer chain.Close()

	b, err := createBroadcast(params, chain, entry, collateralKey, time.Now)
	if err != nil {
		return err
	}
	encoded, err := b.EncodeHex()
	if err != nil {
		return err
	}
	fmt.Println(encoded)
	return nil
}

// createBroadcast signs the announcement of entry, checking the collateral
// against chain.
func createBroadcast(params *netparams.Params, chain chainview.Chain,
	entry *mnconf.Entry, collateralKey *msgsign.Key,
	now func() time.Time) (*masternode.Broadcast, error) {

	op, err := entry.OutPoint()
	if err != nil {
		return nil, err
	}
	operatorKey, err := entry.OperatorKey()
	if err != nil {
		return nil, fmt.Errorf("invalid masternode key: %w", err)
	}
	active := activemn.New(&activemn.Config{
		Params:      params,
		Chain:       chain,
		Wallet:      activemn.NewKeyWallet(params, chain, collateralKey, op),
		OperatorKey: operatorKey,
		TimeSource:  now,
	})
	return active.CreateBroadcast(entry.Addr, op, true)
}

// decodeBroadcastCommand prints a hex encoded announcement.
type decodeBroadcastCommand struct {
	Args struct {
		Hex string `positional-arg-name:"hex" description:"Hex encoded announcement, - reads stdin"`
	} `positional-args:"yes" required:"yes"`
}

// Execute satisfies the go-flags Commander interface.
func (c *decodeBroadcastCommand) Execute(args []string) error {
	params, err := activeParams()
	if err != nil {
		return err
	}
	s := c.Args.Hex
	if s == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return err
		}
		s = string(data)
	}
	return decodeBroadcast(os.Stdout, params, strings.TrimSpace(s),
		time.Now().Unix())
}

// decodeBroadcast writes the decoded announcement and whether its
// signatures verify.
func decodeBroadcast(w io.Writer, params *netparams.Params, s string, now int64) error {
	b, err := masternode.DecodeBroadcastHex(s)
	if err != nil {
		return err
	}
	op := b.Vin.PreviousOutPoint
	fmt.Fprintf(w, "hash:       %v\n", b.Hash())
	fmt.Fprintf(w, "collateral: %v\n", mnwire.OutPointShort(&op))
	fmt.Fprintf(w, "address:    %v\n", b.Addr)
	fmt.Fprintf(w, "sigtime:    %v\n", time.Unix(b.SigTime, 0).UTC())
	fmt.Fprintf(w, "protocol:   %d\n", b.Protocol)

	sigStatus := "valid"
	if err := b.VerifySignature(params, now); err != nil {
		sigStatus = err.Error()
	}
	fmt.Fprintf(w, "signature:  %s\n", sigStatus)

	ping := masternode.Ping{MsgMNPing: b.LastPing}
	pingStatus := "valid"
	if err := ping.VerifySignature(b.PubKeyOperator, params.MessageMagic); err != nil {
		pingStatus = err.Error()
	}
	fmt.Fprintf(w, "ping:       %s\n", pingStatus)

	if opts.Verbose {
		spew.Fdump(w, b.MsgMNBroadcast)
	}
	return nil
}
