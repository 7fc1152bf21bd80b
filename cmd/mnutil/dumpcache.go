// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/davecgh/go-spew/spew"
	"github.com/divitproject/mnd/masternode"
	"github.com/divitproject/mnd/mnpayments"
	"github.com/divitproject/mnd/mnwire"
	"github.com/divitproject/mnd/netparams"
)

const (
	mnCacheFilename    = "mncache.dat"
	mnPaymentsFilename = "mnpayments.dat"
)

var errUnknownCache = errors.New("unknown cache file; expected " +
	mnCacheFilename + " or " + mnPaymentsFilename)

// dumpCacheCommand prints a cache file written by mnd.
type dumpCacheCommand struct {
	Args struct {
		File string `positional-arg-name:"file" description:"mncache.dat, mnpayments.dat or a path to either"`
	} `positional-args:"yes" required:"yes"`
}

// Execute satisfies the go-flags Commander interface.
func (c *dumpCacheCommand) Execute(args []string) error {
	params, err := activeParams()
	if err != nil {
		return err
	}
	path := c.Args.File
	if filepath.Base(path) == path {
		path = filepath.Join(netDataDir(params), path)
	}
	return dumpCache(os.Stdout, params, path)
}

// dumpCache reads the cache file at path without modifying it and writes its
// contents to w.  The kind of cache is taken from the file name.
func dumpCache(w io.Writer, params *netparams.Params, path string) error {
	switch filepath.Base(path) {
	case mnCacheFilename:
		m := masternode.New(&masternode.Config{Params: params})
		result, err := masternode.LoadManager(path, m, true)
		fmt.Fprintf(w, "%s: %v\n", path, result)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, m)
		for _, info := range m.Snapshot() {
			op := info.OutPoint()
			fmt.Fprintf(w, "%-22s %-16s proto %d %s\n", info.Addr,
				info.Status(), info.Protocol, mnwire.OutPointShort(&op))
			if opts.Verbose {
				spew.Fdump(w, info)
			}
		}
		return nil

	case mnPaymentsFilename:
		p := mnpayments.New(&mnpayments.Config{Params: params})
		result, err := mnpayments.LoadPayments(path, p, true)
		fmt.Fprintf(w, "%s: %v\n", path, result)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, p)
		oldest, newest := p.GetOldestBlock(), p.GetNewestBlock()
		for height := oldest; height <= newest; height++ {
			payees, ok := p.BlockPayees(height)
			if !ok {
				continue
			}
			fmt.Fprintf(w, "%d: %s\n", height,
				p.GetRequiredPaymentsString(height))
			if opts.Verbose {
				spew.Fdump(w, payees)
			}
		}
		return nil
	}
	return errUnknownCache
}
