// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package netparams

import "github.com/btcsuite/btcd/btcutil"

// RewardSchedule supplies the amounts a block pays out.  The consensus engine
// owns the real schedule; the masternode subsystem only consumes it.
type RewardSchedule interface {
	// BlockValue is the total reward created by the block at height.
	BlockValue(height int32) btcutil.Amount

	// MasternodePayment is the share of blockValue owed to the winning
	// masternode.  nodeCount is the registry size plus drift and lets a
	// schedule scale the payment with the network size.
	MasternodePayment(height int32, blockValue btcutil.Amount,
		nodeCount int) btcutil.Amount

	// SecondaryPayment is the share owed to the dual-reward payee.
	SecondaryPayment(height int32, blockValue btcutil.Amount) btcutil.Amount
}

// FlatReward is a RewardSchedule paying a constant block value split by
// fixed percentages.
type FlatReward struct {
	Value           btcutil.Amount
	MasternodeShare int64
	SecondaryShare  int64
}

// BlockValue returns the constant block value.
func (f FlatReward) BlockValue(int32) btcutil.Amount {
	return f.Value
}

// MasternodePayment returns MasternodeShare percent of blockValue.
func (f FlatReward) MasternodePayment(_ int32, blockValue btcutil.Amount,
	_ int) btcutil.Amount {

	return blockValue * btcutil.Amount(f.MasternodeShare) / 100
}

// SecondaryPayment returns SecondaryShare percent of blockValue.
func (f FlatReward) SecondaryPayment(_ int32, blockValue btcutil.Amount) btcutil.Amount {
	return blockValue * btcutil.Amount(f.SecondaryShare) / 100
}

// DefaultReward is used by the daemon when no schedule is configured.
var DefaultReward = FlatReward{
	Value:           25 * btcutil.SatoshiPerBitcoin,
	MasternodeShare: 60,
	SecondaryShare:  10,
}
