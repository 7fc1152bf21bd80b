// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mnconf

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/divitproject/mnd/msgsign"
	"github.com/divitproject/mnd/netparams"
	"github.com/stretchr/testify/require"
)

const testTxid = "2bcd3c84c84f87eaa86e4e56834c92927a07f9e18718810b92e0d0324456a67c"

func testWIF(t *testing.T) (*msgsign.Key, string) {
	t.Helper()
	key, err := msgsign.NewKey()
	require.NoError(t, err)
	wif, err := btcutil.NewWIF(key.Priv, &netparams.TestNetParams.Chain, true)
	require.NoError(t, err)
	return key, wif.String()
}

func writeConf(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFilename)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestReadWritesSample(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sub", DefaultFilename)
	cfg, err := Read(path, &netparams.TestNetParams)
	require.NoError(t, err)
	require.Zero(t, cfg.Count())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, sampleConfig, string(data))

	// The sample only holds comments.
	cfg, err = Read(path, &netparams.TestNetParams)
	require.NoError(t, err)
	require.Empty(t, cfg.Entries())
}

func TestRead(t *testing.T) {
	t.Parallel()

	key, wif := testWIF(t)
	content := fmt.Sprintf(`# comment
mn1 10.0.0.1:8763 %[1]s %[2]s 0

   # indented comment
mn2 10.0.0.2:8763 %[1]s %[2]s 1 DonationAddr:25
mn3 [2001:db8::1]:8763 %[1]s %[2]s 2 OtherAddr
`, wif, testTxid)

	cfg, err := Read(writeConf(t, content), &netparams.TestNetParams)
	require.NoError(t, err)
	require.Equal(t, 3, cfg.Count())

	mn1, ok := cfg.Find("mn1")
	require.True(t, ok)
	require.Equal(t, "10.0.0.1:8763", mn1.Addr)
	require.Empty(t, mn1.DonationAddress)

	op, err := mn1.OutPoint()
	require.NoError(t, err)
	require.Equal(t, testTxid, op.Hash.String())
	require.Equal(t, uint32(0), op.Index)

	opKey, err := mn1.OperatorKey()
	require.NoError(t, err)
	require.Equal(t, key.PubKey(), opKey.PubKey())

	addr, err := mn1.ServiceAddr()
	require.NoError(t, err)
	require.Equal(t, uint16(8763), addr.Port)

	mn2, ok := cfg.Find("mn2")
	require.True(t, ok)
	require.Equal(t, "DonationAddr", mn2.DonationAddress)
	require.Equal(t, 25, mn2.DonationPercent)
	require.Equal(t, fmt.Sprintf("mn2 10.0.0.2:8763 %s %s 1 DonationAddr:25",
		wif, testTxid), mn2.String())

	mn3, ok := cfg.Find("mn3")
	require.True(t, ok)
	require.Equal(t, 100, mn3.DonationPercent)

	_, ok = cfg.Find("mn4")
	require.False(t, ok)
}

func TestReadErrors(t *testing.T) {
	t.Parallel()

	_, wif := testWIF(t)
	tests := []struct {
		name   string
		params *netparams.Params
		line   string
	}{
		{"too few fields", &netparams.TestNetParams,
			"mn1 10.0.0.1:8763 " + wif},
		{"bad index", &netparams.TestNetParams,
			fmt.Sprintf("mn1 10.0.0.1:8763 %s %s x", wif, testTxid)},
		{"bad txid", &netparams.TestNetParams,
			fmt.Sprintf("mn1 10.0.0.1:8763 %s nothex 0", wif)},
		{"bad address", &netparams.TestNetParams,
			fmt.Sprintf("mn1 10.0.0.1 %s %s 0", wif, testTxid)},
		{"mainnet port on testnet", &netparams.TestNetParams,
			fmt.Sprintf("mn1 10.0.0.1:9765 %s %s 0", wif, testTxid)},
		{"wrong mainnet port", &netparams.MainNetParams,
			fmt.Sprintf("mn1 10.0.0.1:8763 %s %s 0", wif, testTxid)},
		{"bad donation", &netparams.TestNetParams,
			fmt.Sprintf("mn1 10.0.0.1:8763 %s %s 0 addr:101", wif, testTxid)},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			content := "# header\n" + test.line + "\n"
			_, err := Read(writeConf(t, content), test.params)
			var lineErr *LineError
			require.ErrorAs(t, err, &lineErr)
			require.Equal(t, 2, lineErr.Line)
		})
	}
}

func TestDuplicateAlias(t *testing.T) {
	t.Parallel()

	_, wif := testWIF(t)
	line := fmt.Sprintf("mn1 10.0.0.1:8763 %s %s 0\n", wif, testTxid)
	_, err := Read(writeConf(t, line+line), &netparams.TestNetParams)
	require.ErrorIs(t, err, ErrDuplicateAlias)

	var cfg Config
	require.NoError(t, cfg.Add(Entry{Alias: "a"}))
	require.ErrorIs(t, cfg.Add(Entry{Alias: "a"}), ErrDuplicateAlias)
	require.Equal(t, 1, cfg.Count())
}
