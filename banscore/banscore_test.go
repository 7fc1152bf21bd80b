// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package banscore

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestDynamicBanScoreDecay tests the decaying part of DynamicBanScore.
func TestDynamicBanScoreDecay(t *testing.T) {
	t.Parallel()

	var bs DynamicBanScore
	base := time.Now()

	r := bs.increase(100, 50, base)
	require.EqualValues(t, 150, r)

	tests := []struct {
		name  string
		after time.Duration
		want  uint32
	}{
		{"halflife", time.Minute, 125},
		{"after 7m", 7 * time.Minute, 100},
		{"clock skew", -time.Minute, 100},
	}
	for _, test := range tests {
		require.Equal(t, test.want, bs.int(base.Add(test.after)), test.name)
	}
}

// TestDynamicBanScoreLifetime tests that the transient score disappears after
// Lifetime.
func TestDynamicBanScoreLifetime(t *testing.T) {
	t.Parallel()

	var bs DynamicBanScore
	base := time.Now()

	bs.increase(0, math.MaxUint32, base)

	// 3, not 4 due to precision loss and truncating 3.999...
	require.EqualValues(t, 3, bs.int(base.Add(Lifetime*time.Second)))
	require.EqualValues(t, 0, bs.int(base.Add((Lifetime+1)*time.Second)))
}

// TestDynamicBanScoreReset tests Reset and the persistent part.
func TestDynamicBanScoreReset(t *testing.T) {
	t.Parallel()

	var bs DynamicBanScore
	require.EqualValues(t, 33, bs.Increase(33, 0))
	require.EqualValues(t, 133, bs.Increase(100, 0))
	require.GreaterOrEqual(t, bs.Int(), uint32(BanThreshold))
	require.Contains(t, bs.String(), "persistent 133")

	bs.Reset()
	require.Zero(t, bs.Int())
}

func TestBanList(t *testing.T) {
	t.Parallel()

	now := time.Now()
	bl := NewBanList()
	bl.Ban("1.2.3.4", now.Add(time.Hour))
	bl.Ban("1.2.3.4", now.Add(time.Minute))
	bl.Ban("5.6.7.8", now.Add(time.Minute))

	require.True(t, bl.IsBanned("1.2.3.4", now.Add(30*time.Minute)))
	require.False(t, bl.IsBanned("9.9.9.9", now))
	require.Equal(t, 2, bl.Len())

	bl.Prune(now.Add(2 * time.Minute))
	require.Equal(t, 1, bl.Len())
	require.False(t, bl.IsBanned("5.6.7.8", now))
	require.False(t, bl.IsBanned("1.2.3.4", now.Add(2*time.Hour)))
	require.Zero(t, bl.Len())
}
