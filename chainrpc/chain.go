// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chainrpc implements the chain view of the masternode subsystem on
// top of the JSON-RPC interface of a full node.
package chainrpc

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
	"github.com/divitproject/mnd/chainview"
)

// rpcClient is the part of rpcclient.Client the chain view uses.
type rpcClient interface {
	GetBlockCount() (int64, error)
	GetBlockHash(blockHeight int64) (*chainhash.Hash, error)
	GetBlockHeaderVerbose(hash *chainhash.Hash) (*btcjson.GetBlockHeaderVerboseResult, error)
	GetTxOut(txHash *chainhash.Hash, index uint32, mempool bool) (*btcjson.GetTxOutResult, error)
	Shutdown()
}

// Config describes the connection to the full node.
type Config struct {
	Host       string
	User       string
	Pass       string
	CertFile   string
	DisableTLS bool

	// Proxy, when set, is the SOCKS5 proxy used to reach Host.
	Proxy     string
	ProxyUser string
	ProxyPass string
}

// header is a cached main chain block header.
type header struct {
	height int32
	time   time.Time
}

// Chain is a chainview.Chain backed by a full node.  RPC failures are
// reported as chainview.ErrChainBusy so callers retry on their next tick.
type Chain struct {
	client rpcClient

	mtx     sync.Mutex
	headers map[chainhash.Hash]header
}

// Ensure Chain implements the chainview.Chain interface.
var _ chainview.Chain = (*Chain)(nil)

// maxCachedHeaders bounds the header cache.  Headers are immutable once
// looked up by hash, so the cache is only ever flushed whole.
const maxCachedHeaders = 4096

// New connects to the full node described by cfg.
func New(cfg *Config) (*Chain, error) {
	var certs []byte
	if !cfg.DisableTLS && cfg.CertFile != "" {
		var err error
		certs, err = os.ReadFile(cfg.CertFile)
		if err != nil {
			return nil, fmt.Errorf("unable to read RPC certificate: %w", err)
		}
	}

	client, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         cfg.Host,
		User:         cfg.User,
		Pass:         cfg.Pass,
		Certificates: certs,
		DisableTLS:   cfg.DisableTLS,
		Proxy:        cfg.Proxy,
		ProxyUser:    cfg.ProxyUser,
		ProxyPass:    cfg.ProxyPass,
		HTTPPostMode: true,
	}, nil)
	if err != nil {
		return nil, err
	}
	log.Infof("Using chain RPC at %s", cfg.Host)
	return newChain(client), nil
}

func newChain(client rpcClient) *Chain {
	return &Chain{
		client:  client,
		headers: make(map[chainhash.Hash]header),
	}
}

// Close shuts down the RPC client.
func (c *Chain) Close() {
	c.client.Shutdown()
}

// convertErr maps RPC errors onto the chainview sentinels.
func convertErr(err error, notFound error) error {
	var rpcErr *btcjson.RPCError
	if errors.As(err, &rpcErr) {
		switch rpcErr.Code {
		case btcjson.ErrRPCBlockNotFound, btcjson.ErrRPCOutOfRange,
			btcjson.ErrRPCInvalidParameter:

			return fmt.Errorf("%w: %v", notFound, rpcErr.Message)
		}
	}
	log.Debugf("Chain RPC failed: %v", err)
	return fmt.Errorf("%w: %v", chainview.ErrChainBusy, err)
}

// BestHeight returns the height of the main chain tip.
func (c *Chain) BestHeight() (int32, error) {
	count, err := c.client.GetBlockCount()
	if err != nil {
		return 0, convertErr(err, chainview.ErrUnknownBlock)
	}
	return int32(count), nil
}

// BlockHash returns the hash of the main chain block at height.
func (c *Chain) BlockHash(height int32) (chainhash.Hash, error) {
	if height < 0 {
		return chainhash.Hash{}, chainview.ErrUnknownBlock
	}
	hash, err := c.client.GetBlockHash(int64(height))
	if err != nil {
		return chainhash.Hash{}, convertErr(err, chainview.ErrUnknownBlock)
	}
	return *hash, nil
}

// header returns the height and time of the block with the given hash.
func (c *Chain) header(hash *chainhash.Hash) (header, error) {
	c.mtx.Lock()
	h, ok := c.headers[*hash]
	c.mtx.Unlock()
	if ok {
		return h, nil
	}

	result, err := c.client.GetBlockHeaderVerbose(hash)
	if err != nil {
		return header{}, convertErr(err, chainview.ErrUnknownBlock)
	}
	h = header{height: result.Height, time: time.Unix(result.Time, 0)}

	c.mtx.Lock()
	if len(c.headers) >= maxCachedHeaders {
		c.headers = make(map[chainhash.Hash]header)
	}
	c.headers[*hash] = h
	c.mtx.Unlock()
	return h, nil
}

// BlockHeight returns the height of a main chain block.  Blocks that were
// reorganized out are not recognized.
func (c *Chain) BlockHeight(hash *chainhash.Hash) (int32, error) {
	h, err := c.header(hash)
	if err != nil {
		return 0, err
	}
	mainHash, err := c.BlockHash(h.height)
	if err != nil {
		return 0, err
	}
	if mainHash != *hash {
		return 0, chainview.ErrUnknownBlock
	}
	return h.height, nil
}

// BlockTime returns the timestamp of the main chain block at height.
func (c *Chain) BlockTime(height int32) (time.Time, error) {
	hash, err := c.BlockHash(height)
	if err != nil {
		return time.Time{}, err
	}
	h, err := c.header(&hash)
	if err != nil {
		return time.Time{}, err
	}
	return h.time, nil
}

// UtxoEntry returns the unspent output at op.  Outputs only in the mempool
// are not considered.
func (c *Chain) UtxoEntry(op wire.OutPoint) (*chainview.Utxo, error) {
	result, err := c.client.GetTxOut(&op.Hash, op.Index, false)
	if err != nil {
		return nil, convertErr(err, chainview.ErrUtxoNotFound)
	}
	if result == nil || result.Confirmations <= 0 {
		return nil, chainview.ErrUtxoNotFound
	}

	value, err := btcutil.NewAmount(result.Value)
	if err != nil {
		return nil, err
	}
	script, err := hex.DecodeString(result.ScriptPubKey.Hex)
	if err != nil {
		return nil, fmt.Errorf("bad script for %v: %w", op, err)
	}

	// The confirmations are relative to the best block of the reply, which
	// may be newer than a separately queried tip.
	bestHash, err := chainhash.NewHashFromStr(result.BestBlock)
	if err != nil {
		return nil, fmt.Errorf("bad best block for %v: %w", op, err)
	}
	best, err := c.header(bestHash)
	if err != nil {
		return nil, err
	}

	confs := int32(result.Confirmations)
	return &chainview.Utxo{
		Value:         value,
		PkScript:      script,
		Height:        best.height - confs + 1,
		Confirmations: confs,
	}, nil
}
