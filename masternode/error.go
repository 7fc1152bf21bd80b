// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package masternode

import (
	"errors"
	"fmt"
)

var (
	// ErrRetryLater is returned when a message could not be validated
	// because the chain was busy or incomplete.  The message is not
	// remembered as seen so a later copy is processed again.
	ErrRetryLater = errors.New("retry later")

	// ErrPingTooEarly is returned for a ping that follows the previous
	// accepted ping of the same masternode too closely.
	ErrPingTooEarly = errors.New("ping arrived too early")

	// ErrStale is returned for an announcement that is not newer than the
	// one already applied.
	ErrStale = errors.New("stale announcement")
)

// ErrorCode identifies a kind of error.
type ErrorCode int

// These constants are used to identify a specific RuleError.
const (
	// ErrFutureSigTime indicates a signing time too far in the future.
	ErrFutureSigTime ErrorCode = iota

	// ErrPastSigTime indicates a ping signing time too far in the past.
	ErrPastSigTime

	// ErrObsoleteProtocol indicates a masternode protocol version below the
	// current payments minimum.
	ErrObsoleteProtocol

	// ErrBadPubKey indicates a collateral or operator key that does not
	// parse or does not yield a standard pay-to-pubkey-hash script.
	ErrBadPubKey

	// ErrNonEmptyScriptSig indicates a collateral input carrying a
	// signature script.
	ErrNonEmptyScriptSig

	// ErrBadSignature indicates a signature that does not verify.
	ErrBadSignature

	// ErrBadPort indicates an address port not allowed on the network.
	ErrBadPort

	// ErrUnknownMasternode indicates a message for a masternode that is
	// not in the list.
	ErrUnknownMasternode

	// ErrNotEnabled indicates a masternode that is not enabled.
	ErrNotEnabled

	// ErrPubKeyMismatch indicates a collateral output not paying the
	// announced collateral key.
	ErrPubKeyMismatch

	// ErrInvalidCollateral indicates a collateral output with the wrong
	// value or one that no longer exists.
	ErrInvalidCollateral

	// ErrBadSigTime indicates an announcement signed before its collateral
	// reached the required confirmations.
	ErrBadSigTime

	// ErrStaleAnchor indicates a ping anchored to a block too deep below
	// the tip.
	ErrStaleAnchor
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrFutureSigTime:     "ErrFutureSigTime",
	ErrPastSigTime:       "ErrPastSigTime",
	ErrObsoleteProtocol:  "ErrObsoleteProtocol",
	ErrBadPubKey:         "ErrBadPubKey",
	ErrNonEmptyScriptSig: "ErrNonEmptyScriptSig",
	ErrBadSignature:      "ErrBadSignature",
	ErrBadPort:           "ErrBadPort",
	ErrUnknownMasternode: "ErrUnknownMasternode",
	ErrNotEnabled:        "ErrNotEnabled",
	ErrPubKeyMismatch:    "ErrPubKeyMismatch",
	ErrInvalidCollateral: "ErrInvalidCollateral",
	ErrBadSigTime:        "ErrBadSigTime",
	ErrStaleAnchor:       "ErrStaleAnchor",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// RuleError identifies a masternode message that violates the protocol.
// The accompanying DoS score is returned separately by the validators.
type RuleError struct {
	ErrorCode   ErrorCode // Describes the kind of error
	Description string    // Human readable description of the issue
}

// Error satisfies the error interface and prints human-readable errors.
func (e RuleError) Error() string {
	return e.Description
}

// ruleError creates an RuleError given a set of arguments.
func ruleError(c ErrorCode, desc string) RuleError {
	return RuleError{ErrorCode: c, Description: desc}
}

// IsErrorCode reports whether err is a RuleError with the given code.
func IsErrorCode(err error, c ErrorCode) bool {
	var rerr RuleError
	return errors.As(err, &rerr) && rerr.ErrorCode == c
}
