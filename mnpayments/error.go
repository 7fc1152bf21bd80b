// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mnpayments

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a kind of error.
type ErrorCode int

// These constants are used to identify a specific RuleError.
const (
	// ErrOutOfRange indicates a vote for a height too far from the tip.
	ErrOutOfRange ErrorCode = iota

	// ErrUnknownVoter indicates a vote from a masternode that is not in
	// the list.
	ErrUnknownVoter

	// ErrObsoleteProtocol indicates a voter running a protocol below the
	// active one.
	ErrObsoleteProtocol

	// ErrNotRanked indicates a voter outside the top SignaturesTotal at
	// the score height.
	ErrNotRanked

	// ErrAlreadyVoted indicates a second vote by the same masternode for
	// the same height.
	ErrAlreadyVoted

	// ErrBadSignature indicates a vote signature that does not verify.
	ErrBadSignature

	// ErrDuplicateVote indicates a vote that is already tallied.
	ErrDuplicateVote

	// ErrUnknownBlock indicates a vote whose score block is not known.
	ErrUnknownBlock
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrOutOfRange:       "ErrOutOfRange",
	ErrUnknownVoter:     "ErrUnknownVoter",
	ErrObsoleteProtocol: "ErrObsoleteProtocol",
	ErrNotRanked:        "ErrNotRanked",
	ErrAlreadyVoted:     "ErrAlreadyVoted",
	ErrBadSignature:     "ErrBadSignature",
	ErrDuplicateVote:    "ErrDuplicateVote",
	ErrUnknownBlock:     "ErrUnknownBlock",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// RuleError identifies a payment vote that violates the protocol.
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
