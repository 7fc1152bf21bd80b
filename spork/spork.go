// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package spork

import (
	"fmt"
)

// ID identifies a network wide feature flag.
type ID int32

// These constants define the known sporks.  Gaps are ids that were retired.
const (
	SwiftTX                      ID = 10001
	SwiftTXBlockFiltering        ID = 10002
	MaxValue                     ID = 10004
	MasternodeScanning           ID = 10006
	MasternodePaymentEnforcement ID = 10007
	MasternodeBudgetEnforcement  ID = 10008
	EnableSuperblocks            ID = 10012
	NewProtocolEnforcement       ID = 10013
	NewProtocolEnforcement2      ID = 10014
	NewProtocolEnforcement3      ID = 10015
	NewProtocolEnforcement4      ID = 10016
	NewProtocolEnforcement5      ID = 10017
	MasternodePayUpdatedNodes    ID = 10018
	ZerocoinMaintenanceMode      ID = 10019
	MasternodePayUpdatedNodes2   ID = 10020
	RemoveSeesawBlock            ID = 10021
)

const (
	// sporkOn is a timestamp in the past: the spork is active.
	sporkOn = 978307200

	// sporkOff is a timestamp far in the future: the spork is inactive.
	sporkOff = 4070908800
)

type sporkInfo struct {
	name         string
	defaultValue int64
}

var sporkInfos = map[ID]sporkInfo{
	SwiftTX:                      {"SPORK_2_SWIFTTX", sporkOn},
	SwiftTXBlockFiltering:        {"SPORK_3_SWIFTTX_BLOCK_FILTERING", 1424217600},
	MaxValue:                     {"SPORK_5_MAX_VALUE", 1000},
	MasternodeScanning:           {"SPORK_7_MASTERNODE_SCANNING", sporkOn},
	MasternodePaymentEnforcement: {"SPORK_8_MASTERNODE_PAYMENT_ENFORCEMENT", sporkOff},
	MasternodeBudgetEnforcement:  {"SPORK_9_MASTERNODE_BUDGET_ENFORCEMENT", sporkOff},
	EnableSuperblocks:            {"SPORK_13_ENABLE_SUPERBLOCKS", sporkOff},
	NewProtocolEnforcement:       {"SPORK_14_NEW_PROTOCOL_ENFORCEMENT", sporkOff},
	NewProtocolEnforcement2:      {"SPORK_15_NEW_PROTOCOL_ENFORCEMENT_2", sporkOff},
	NewProtocolEnforcement3:      {"SPORK_16_NEW_PROTOCOL_ENFORCEMENT_3", sporkOff},
	NewProtocolEnforcement4:      {"SPORK_17_NEW_PROTOCOL_ENFORCEMENT_4", sporkOff},
	NewProtocolEnforcement5:      {"SPORK_18_NEW_PROTOCOL_ENFORCEMENT_5", sporkOff},
	MasternodePayUpdatedNodes:    {"SPORK_19_MASTERNODE_PAY_UPDATED_NODES", sporkOff},
	ZerocoinMaintenanceMode:      {"SPORK_20_ZEROCOIN_MAINTENANCE_MODE", sporkOff},
	MasternodePayUpdatedNodes2:   {"SPORK_21_MASTERNODE_PAY_UPDATED_NODES", sporkOff},
	RemoveSeesawBlock:            {"SPORK_22_REMOVE_SEESAW_BLOCK", sporkOff},
}

// String returns the spork name, or "Unknown".
func (id ID) String() string {
	if info, ok := sporkInfos[id]; ok {
		return info.name
	}
	return "Unknown"
}

// Known reports whether id names a spork in use.
func (id ID) Known() bool {
	_, ok := sporkInfos[id]
	return ok
}

// DefaultValue returns the value used when no signed spork has been seen, or
// -1 for an unknown id.
func (id ID) DefaultValue() int64 {
	if info, ok := sporkInfos[id]; ok {
		return info.defaultValue
	}
	return -1
}

// IDByName returns the spork with the given name.
func IDByName(name string) (ID, error) {
	for id, info := range sporkInfos {
		if info.name == name {
			return id, nil
		}
	}
	return 0, fmt.Errorf("unknown spork %q", name)
}

// KnownIDs returns all spork ids in ascending order.
func KnownIDs() []ID {
	ids := make([]ID, 0, len(sporkInfos))
	for id := SwiftTX; id <= RemoveSeesawBlock; id++ {
		if id.Known() {
			ids = append(ids, id)
		}
	}
	return ids
}
