// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package masternode

import (
	"math/big"
	"sort"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/divitproject/mnd/chainview"
)

// hashToBig interprets a hash as a little-endian 256-bit unsigned integer.
func hashToBig(hash *chainhash.Hash) *big.Int {
	var buf [chainhash.HashSize]byte
	for i := 0; i < chainhash.HashSize; i++ {
		buf[i] = hash[chainhash.HashSize-1-i]
	}
	return new(big.Int).SetBytes(buf[:])
}

// bigToHash is the inverse of hashToBig, truncating to 256 bits.
func bigToHash(n *big.Int) chainhash.Hash {
	var buf [chainhash.HashSize]byte
	n.FillBytes(buf[:])
	var hash chainhash.Hash
	for i := 0; i < chainhash.HashSize; i++ {
		hash[i] = buf[chainhash.HashSize-1-i]
	}
	return hash
}

var twoTo256 = new(big.Int).Lsh(big.NewInt(1), 256)

// CalculateScore returns the score of the masternode with collateral op for
// the block whose hash is blockHash.  It is the distance between the hash of
// the block hash alone and the hash of the block hash followed by the
// outpoint hash plus index.
func CalculateScore(op wire.OutPoint, blockHash chainhash.Hash) *big.Int {
	aux := hashToBig(&op.Hash)
	aux.Add(aux, new(big.Int).SetUint64(uint64(op.Index)))
	aux.Mod(aux, twoTo256)
	auxHash := bigToHash(aux)

	hash2 := chainhash.DoubleHashH(blockHash[:])

	var buf [2 * chainhash.HashSize]byte
	copy(buf[:], blockHash[:])
	copy(buf[chainhash.HashSize:], auxHash[:])
	hash3 := chainhash.DoubleHashH(buf[:])

	return new(big.Int).Abs(new(big.Int).Sub(hashToBig(&hash3),
		hashToBig(&hash2)))
}

// CompactScore returns the compact form used to order scores.
func CompactScore(score *big.Int) int64 {
	return int64(blockchain.BigToCompact(score))
}

// ScoreBlockHash returns the block hash that scores are computed from for
// height: the hash of the block before it.  Height zero means the tip, and
// one past the tip is allowed.  The genesis block is never used.
func ScoreBlockHash(chain chainview.Chain, height int32) (chainhash.Hash, error) {
	tip, err := chain.BestHeight()
	if err != nil {
		return chainhash.Hash{}, err
	}
	if height == 0 {
		height = tip
	}
	if tip == 0 || height > tip+1 || height-1 <= 0 {
		return chainhash.Hash{}, chainview.ErrUnknownBlock
	}
	return chain.BlockHash(height - 1)
}

// scored pairs a list entry with its compact score.
type scored struct {
	score int64
	mn    *Masternode
}

// sortScores orders by descending score.  Equal scores keep list order.
func sortScores(scores []scored) {
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].score > scores[j].score
	})
}
