// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package masternode

import (
	"math/big"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/divitproject/mnd/chainview"
	"github.com/stretchr/testify/require"
)

// TestCalculateScore checks that scores are a pure function of the
// collateral and the block hash.
func TestCalculateScore(t *testing.T) {
	t.Parallel()

	op := wire.OutPoint{Hash: chainhash.HashH([]byte("collateral")), Index: 1}
	block := chainhash.HashH([]byte("block"))

	score := CalculateScore(op, block)
	require.Equal(t, 0, score.Cmp(CalculateScore(op, block)))
	require.Equal(t, 1, score.Sign())
	require.LessOrEqual(t, score.BitLen(), 256)

	other := op
	other.Index = 2
	require.NotEqual(t, 0, score.Cmp(CalculateScore(other, block)))
	require.NotEqual(t, 0, score.Cmp(CalculateScore(op,
		chainhash.HashH([]byte("other block")))))

	// The index is added to the little-endian hash, so index 1 of hash h
	// equals index 0 of hash h+1.
	plusOne := new(big.Int).Add(hashToBig(&op.Hash), big.NewInt(1))
	shifted := wire.OutPoint{Hash: bigToHash(plusOne)}
	require.Equal(t, 0, score.Cmp(CalculateScore(shifted, block)))
}

func TestHashBigRoundTrip(t *testing.T) {
	t.Parallel()

	hash := chainhash.HashH([]byte("round trip"))
	require.Equal(t, hash, bigToHash(hashToBig(&hash)))

	var one chainhash.Hash
	one[0] = 1
	require.Equal(t, int64(1), hashToBig(&one).Int64())
}

func TestCompactScoreOrder(t *testing.T) {
	t.Parallel()

	small := new(big.Int).Lsh(big.NewInt(1), 100)
	large := new(big.Int).Lsh(big.NewInt(1), 200)
	require.Greater(t, CompactScore(large), CompactScore(small))
	require.Zero(t, CompactScore(new(big.Int)))
}

func TestScoreBlockHash(t *testing.T) {
	t.Parallel()

	chain := chainview.NewMemChain()
	_, err := ScoreBlockHash(chain, 5)
	require.ErrorIs(t, err, chainview.ErrUnknownBlock)

	var hashes []chainhash.Hash
	for i := 0; i < 10; i++ {
		hashes = append(hashes, chain.AddBlock(time.Unix(int64(i)*60, 0)))
	}

	tests := []struct {
		height int32
		want   int
		err    bool
	}{
		{height: 0, want: 8},
		{height: 5, want: 4},
		{height: 9, want: 8},
		{height: 10, want: 9},
		{height: 11, err: true},
		{height: 1, err: true},
	}
	for _, test := range tests {
		hash, err := ScoreBlockHash(chain, test.height)
		if test.err {
			require.ErrorIs(t, err, chainview.ErrUnknownBlock, "height %d",
				test.height)
			continue
		}
		require.NoError(t, err)
		require.Equal(t, hashes[test.want], hash, "height %d", test.height)
	}

	chain.SetBusy(true)
	_, err = ScoreBlockHash(chain, 5)
	require.ErrorIs(t, err, chainview.ErrChainBusy)
}

func TestSortScoresStable(t *testing.T) {
	t.Parallel()

	a, b, c := &Masternode{}, &Masternode{}, &Masternode{}
	scores := []scored{{1, a}, {5, b}, {1, c}}
	sortScores(scores)
	require.Same(t, b, scores[0].mn)
	require.Same(t, a, scores[1].mn)
	require.Same(t, c, scores[2].mn)
}
