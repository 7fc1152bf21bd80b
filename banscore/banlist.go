// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package banscore

import (
	"sync"
	"time"
)

// BanList records banned hosts and when their bans lift.
type BanList struct {
	mtx    sync.Mutex
	banned map[string]time.Time
}

// NewBanList returns an empty ban list.
func NewBanList() *BanList {
	return &BanList{banned: make(map[string]time.Time)}
}

// Ban bans host until the given time.  An existing longer ban is kept.
func (b *BanList) Ban(host string, until time.Time) {
	b.mtx.Lock()
	if cur, ok := b.banned[host]; !ok || until.After(cur) {
		b.banned[host] = until
	}
	b.mtx.Unlock()
}

// IsBanned reports whether host is banned at now.  Expired entries are
// removed as they are encountered.
func (b *BanList) IsBanned(host string, now time.Time) bool {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	until, ok := b.banned[host]
	if !ok {
		return false
	}
	if now.Before(until) {
		return true
	}
	delete(b.banned, host)
	return false
}

// Len returns the number of hosts with a recorded ban, including expired
// ones not yet pruned.
func (b *BanList) Len() int {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	return len(b.banned)
}

// Prune removes every ban that has lifted by now.
func (b *BanList) Prune(now time.Time) {
	b.mtx.Lock()
	for host, until := range b.banned {
		if !now.Before(until) {
			delete(b.banned, host)
		}
	}
	b.mtx.Unlock()
}
