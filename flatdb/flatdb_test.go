// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package flatdb

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

const testNet = wire.BitcoinNet(0x13fdc403)

type testObject struct {
	Items   []string
	cleared bool
}

func (o *testObject) Serialize(w io.Writer) error {
	if err := wire.WriteVarInt(w, 0, uint64(len(o.Items))); err != nil {
		return err
	}
	for _, item := range o.Items {
		if err := wire.WriteVarString(w, 0, item); err != nil {
			return err
		}
	}
	return nil
}

func (o *testObject) Deserialize(r io.Reader) error {
	n, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return err
	}
	if n > 1000 {
		return errors.New("too many items")
	}
	o.Items = make([]string, 0, n)
	for i := uint64(0); i < n; i++ {
		item, err := wire.ReadVarString(r, 0)
		if err != nil {
			return err
		}
		o.Items = append(o.Items, item)
	}
	return nil
}

func (o *testObject) Clear() {
	o.Items = nil
	o.cleared = true
}

// badObject serializes a body that testObject can not decode.
type badObject struct{}

func (badObject) Serialize(w io.Writer) error {
	_, err := w.Write([]byte{0xff})
	return err
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "mncache.dat")
	store := New(path, "MasternodeCache", testNet)

	in := &testObject{Items: []string{"a", "bb", "ccc"}}
	require.NoError(t, store.Write(in))

	var out testObject
	result, err := store.Read(&out)
	require.NoError(t, err)
	require.Equal(t, Ok, result)
	require.Equal(t, in.Items, out.Items)
}

func TestReadResults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	good := New(filepath.Join(dir, "good.dat"), "MasternodeCache", testNet)
	require.NoError(t, good.Write(&testObject{Items: []string{"x"}}))
	raw, err := os.ReadFile(good.Path())
	require.NoError(t, err)

	writeRaw := func(name string, data []byte) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, data, 0600))
		return path
	}
	flipped := append([]byte(nil), raw...)
	flipped[len(flipped)-40] ^= 0x01

	tests := []struct {
		name  string
		store *Store
		want  ReadResult
	}{
		{"missing", New(filepath.Join(dir, "nope.dat"), "MasternodeCache", testNet), FileError},
		{"short", New(writeRaw("short.dat", raw[:10]), "MasternodeCache", testNet), HashReadError},
		{"corrupt", New(writeRaw("corrupt.dat", flipped), "MasternodeCache", testNet), IncorrectHash},
		{"other magic", New(good.Path(), "MasternodePayments", testNet), IncorrectMagicMessage},
		{"other net", New(good.Path(), "MasternodeCache", wire.BitcoinNet(1)), IncorrectMagicNumber},
	}
	for _, test := range tests {
		var obj testObject
		result, err := test.store.Read(&obj)
		require.Equal(t, test.want, result, test.name)
		require.Error(t, err, test.name)
	}

	bad := New(filepath.Join(dir, "bad.dat"), "MasternodeCache", testNet)
	require.NoError(t, bad.Write(badObject{}))
	obj := testObject{Items: []string{"stale"}}
	result, err := bad.Read(&obj)
	require.Equal(t, IncorrectFormat, result)
	require.Error(t, err)
	require.True(t, obj.cleared)
	require.Nil(t, obj.Items)
}

func TestDump(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "mnpayments.dat")
	store := New(path, "MasternodePayments", testNet)

	// Missing file is created.
	require.NoError(t, store.Dump(&testObject{Items: []string{"1"}}, &testObject{}))

	// Undecodable body with a valid header is replaced.
	require.NoError(t, store.Write(badObject{}))
	require.NoError(t, store.Dump(&testObject{Items: []string{"2"}}, &testObject{}))
	var out testObject
	result, err := store.Read(&out)
	require.NoError(t, err)
	require.Equal(t, Ok, result)
	require.Equal(t, []string{"2"}, out.Items)

	// A file for another network is left alone.
	foreign := New(path, "MasternodePayments", wire.BitcoinNet(1))
	require.Error(t, foreign.Dump(&testObject{Items: []string{"3"}}, &testObject{}))
	result, _ = store.Read(&out)
	require.Equal(t, Ok, result)
	require.Equal(t, []string{"2"}, out.Items)
}

func TestReadResultString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "IncorrectMagicNumber", IncorrectMagicNumber.String())
	require.Equal(t, "Unknown ReadResult (42)", ReadResult(42).String())
}
