// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package spork

import (
	"fmt"
)

// ErrorCode identifies a kind of error.
type ErrorCode int

// These constants are used to identify a specific RuleError.
const (
	// ErrUnknownSpork indicates a spork id that is not in use.
	ErrUnknownSpork ErrorCode = iota

	// ErrStaleSpork indicates a spork that is not newer than the one
	// already active.
	ErrStaleSpork

	// ErrBadSignature indicates a spork not signed by the spork key.
	ErrBadSignature

	// ErrNoTip indicates the chain has no tip yet.
	ErrNoTip

	// ErrNoSigningKey indicates an update was requested without a spork
	// private key configured.
	ErrNoSigningKey
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrUnknownSpork: "ErrUnknownSpork",
	ErrStaleSpork:   "ErrStaleSpork",
	ErrBadSignature: "ErrBadSignature",
	ErrNoTip:        "ErrNoTip",
	ErrNoSigningKey: "ErrNoSigningKey",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// RuleError identifies a rejected spork.
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
	rerr, ok := err.(RuleError)
	return ok && rerr.ErrorCode == c
}
