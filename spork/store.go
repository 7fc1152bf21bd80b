// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package spork

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/btcsuite/btcd/wire"
	"github.com/divitproject/mnd/database/engine"
	"github.com/divitproject/mnd/mnwire"
)

// sporkKeyPrefix namespaces spork records in the store.
var sporkKeyPrefix = []byte("spork")

func sporkKey(id ID) []byte {
	key := make([]byte, len(sporkKeyPrefix)+4)
	copy(key, sporkKeyPrefix)
	binary.BigEndian.PutUint32(key[len(sporkKeyPrefix):], uint32(id))
	return key
}

// store persists the last accepted message for each spork.
type store struct {
	db engine.Engine
}

func (s *store) write(msg *mnwire.MsgSpork) error {
	var buf bytes.Buffer
	if err := msg.BtcEncode(&buf, 0, wire.BaseEncoding); err != nil {
		return err
	}
	return engine.Update(s.db, func(tx engine.Transaction) error {
		return tx.Put(sporkKey(ID(msg.SporkID)), buf.Bytes())
	})
}

// read returns the stored message for id.  The bool is false when none is
// stored.
func (s *store) read(id ID) (*mnwire.MsgSpork, bool, error) {
	raw, err := engine.Get(s.db, sporkKey(id))
	if errors.Is(err, engine.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var msg mnwire.MsgSpork
	if err := msg.BtcDecode(bytes.NewReader(raw), 0, wire.BaseEncoding); err != nil {
		return nil, false, err
	}
	return &msg, true, nil
}
