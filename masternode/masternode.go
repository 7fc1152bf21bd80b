// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package masternode

import (
	"errors"

	"github.com/btcsuite/btcd/wire"
	"github.com/divitproject/mnd/chainview"
	"github.com/divitproject/mnd/mnwire"
)

// Timing and depth rules of the masternode list, in seconds unless noted.
const (
	CheckSeconds      = 5
	MinMNBSeconds     = 5 * 60
	MinMNPSeconds     = 10 * 60
	PingSeconds       = 5 * 60
	ExpirationSeconds = 120 * 60
	RemovalSeconds    = 130 * 60

	// DsegSeconds is how long a peer must wait before asking for the full
	// list again.
	DsegSeconds = 3 * 60 * 60

	// MinConfirmations is the collateral depth, in blocks, required
	// before an announcement is accepted.
	MinConfirmations = 15

	// WinnerMinimumAge excludes freshly announced masternodes from the
	// stable size and from ranking while payment enforcement is on.  It
	// must exceed RemovalSeconds.
	WinnerMinimumAge = 8000

	// MaxFutureDrift is how far in the future a signing time may lie.
	MaxFutureDrift = 60 * 60

	// MaxPingAnchorDepth is how many blocks below the tip a ping anchor
	// may be.
	MaxPingAnchorDepth = 24
)

// State is the health of a masternode as seen by this node.
type State int

// Masternode states.
const (
	StatePreEnabled State = iota
	StateEnabled
	StateExpired
	StateOutpointSpent
	StateRemove
	StateWatchdogExpired
	StatePoSeBan
)

var stateStrings = map[State]string{
	StatePreEnabled:      "PRE_ENABLED",
	StateEnabled:         "ENABLED",
	StateExpired:         "EXPIRED",
	StateOutpointSpent:   "OUTPOINT_SPENT",
	StateRemove:          "REMOVE",
	StateWatchdogExpired: "WATCHDOG_EXPIRED",
	StatePoSeBan:         "POSE_BAN",
}

// String returns the status string reported for the state.
func (s State) String() string {
	if str, ok := stateStrings[s]; ok {
		return str
	}
	return "UNKNOWN"
}

// Masternode is an entry of the masternode list.  Entries are owned by the
// Manager; everything outside the package works with Info copies.
type Masternode struct {
	Vin              wire.TxIn
	Addr             mnwire.ServiceAddr
	PubKeyCollateral []byte
	PubKeyOperator   []byte
	Sig              []byte
	SigTime          int64
	LastPing         mnwire.MsgMNPing
	LastChecked      int64
	ActiveState      State
	Protocol         uint32

	CacheInputAge      int32
	CacheInputAgeBlock int32
	LastDsq            int64
	UnitTest           bool
	AllowFreeTx        bool

	// Legacy announcement and ping times.  Not persisted.
	lastDsee  int64
	lastDseep int64
}

// newFromBroadcast returns an enabled entry for the announcement.
func newFromBroadcast(b *Broadcast) *Masternode {
	return &Masternode{
		Vin:              b.Vin,
		Addr:             b.Addr,
		PubKeyCollateral: b.PubKeyCollateral,
		PubKeyOperator:   b.PubKeyOperator,
		Sig:              b.Sig,
		SigTime:          b.SigTime,
		LastPing:         b.LastPing,
		ActiveState:      StateEnabled,
		Protocol:         b.Protocol,
		LastDsq:          b.LastDsq,
		AllowFreeTx:      true,
	}
}

// OutPoint returns the collateral outpoint identifying the masternode.
func (mn *Masternode) OutPoint() wire.OutPoint {
	return mn.Vin.PreviousOutPoint
}

// IsEnabled reports whether the masternode is enabled.
func (mn *Masternode) IsEnabled() bool {
	return mn.ActiveState == StateEnabled
}

// IsPingedWithin reports whether the last ping was signed less than seconds
// before now.  A masternode that was never pinged is not.
func (mn *Masternode) IsPingedWithin(seconds, now int64) bool {
	if mn.LastPing.IsZero() {
		return false
	}
	return now-mn.LastPing.SigTime < seconds
}

// IsBroadcastedWithin reports whether the announcement was signed less than
// seconds before now.
func (mn *Masternode) IsBroadcastedWithin(seconds, now int64) bool {
	return now-mn.SigTime < seconds
}

// Check re-evaluates the state of the masternode.  Evaluation is throttled to
// once per CheckSeconds unless forced.  The collateral is looked up through
// chain when it is not nil; a busy chain leaves the state unchanged.
func (mn *Masternode) Check(now int64, force bool, chain chainview.Chain) {
	if !force && now-mn.LastChecked < CheckSeconds {
		return
	}
	mn.LastChecked = now

	// Once spent, stop doing the checks.
	if mn.ActiveState == StateOutpointSpent {
		return
	}

	if !mn.IsPingedWithin(RemovalSeconds, now) {
		mn.ActiveState = StateRemove
		return
	}
	if !mn.IsPingedWithin(ExpirationSeconds, now) {
		mn.ActiveState = StateExpired
		return
	}
	if mn.LastPing.SigTime-mn.SigTime < MinMNPSeconds {
		mn.ActiveState = StatePreEnabled
		return
	}

	if !mn.UnitTest && chain != nil {
		_, err := chain.UtxoEntry(mn.OutPoint())
		switch {
		case errors.Is(err, chainview.ErrUtxoNotFound):
			log.Debugf("Masternode %v collateral is spent",
				mnwire.OutPointShort(&mn.Vin.PreviousOutPoint))
			mn.ActiveState = StateOutpointSpent
			return
		case err != nil:
			// Try again on the next check.
			mn.LastChecked = 0
			return
		}
	}

	mn.ActiveState = StateEnabled
}

// Info returns a copy of the entry that is safe to keep after the list lock
// is released.
func (mn *Masternode) Info() Info {
	return Info{
		Vin:              mn.Vin,
		Addr:             mn.Addr,
		PubKeyCollateral: append([]byte(nil), mn.PubKeyCollateral...),
		PubKeyOperator:   append([]byte(nil), mn.PubKeyOperator...),
		SigTime:          mn.SigTime,
		LastPing:         mn.LastPing,
		State:            mn.ActiveState,
		Protocol:         mn.Protocol,
	}
}

// broadcast rebuilds the announcement the entry was created from.
func (mn *Masternode) broadcast() *Broadcast {
	return &Broadcast{MsgMNBroadcast: mnwire.MsgMNBroadcast{
		Vin:              mn.Vin,
		Addr:             mn.Addr,
		PubKeyCollateral: mn.PubKeyCollateral,
		PubKeyOperator:   mn.PubKeyOperator,
		Sig:              mn.Sig,
		SigTime:          mn.SigTime,
		Protocol:         mn.Protocol,
		LastPing:         mn.LastPing,
		LastDsq:          mn.LastDsq,
	}}
}

// Info is a snapshot of a masternode list entry.
type Info struct {
	Vin              wire.TxIn
	Addr             mnwire.ServiceAddr
	PubKeyCollateral []byte
	PubKeyOperator   []byte
	SigTime          int64
	LastPing         mnwire.MsgMNPing
	State            State
	Protocol         uint32
}

// OutPoint returns the collateral outpoint.
func (i *Info) OutPoint() wire.OutPoint {
	return i.Vin.PreviousOutPoint
}

// IsEnabled reports whether the masternode was enabled when the snapshot was
// taken.
func (i *Info) IsEnabled() bool {
	return i.State == StateEnabled
}

// IsPingedWithin reports whether the snapshot's last ping was signed less
// than seconds before now.
func (i *Info) IsPingedWithin(seconds, now int64) bool {
	if i.LastPing.IsZero() {
		return false
	}
	return now-i.LastPing.SigTime < seconds
}

// Status returns the state as a status string.
func (i *Info) Status() string {
	return i.State.String()
}
