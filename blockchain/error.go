// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"fmt"
)

// ErrorCode identifies a kind of consensus rule violation.
type ErrorCode int

// These constants are used to identify a specific RuleError.
const (
	// ErrMalformedBlock indicates a block or one of its transactions
	// failed to deserialize or reserialize canonically.
	ErrMalformedBlock ErrorCode = iota

	// ErrBlockVersion indicates the block's major/minor version pair is
	// not permitted at its height.
	ErrBlockVersion

	// ErrTimestampTooOld indicates the block timestamp is not strictly
	// greater than the median of the preceding check window.
	ErrTimestampTooOld

	// ErrTimestampTooFar indicates the block timestamp is too far past
	// wall clock.
	ErrTimestampTooFar

	// ErrHighHash indicates the proof-of-work hash does not meet the
	// required difficulty.
	ErrHighHash

	// ErrInvalidCoinbase indicates the coinbase transaction is missing,
	// malformed, or declares a wrong block index.
	ErrInvalidCoinbase

	// ErrCoinbaseSum indicates the coinbase output sum does not equal
	// the penalized base reward plus the collected fees.
	ErrCoinbaseSum

	// ErrBlockTooBig indicates the cumulative block size exceeds the
	// current limit or twice the median.
	ErrBlockTooBig

	// ErrTxTooBig indicates a transaction exceeds the size limit.
	ErrTxTooBig

	// ErrTxVersion indicates a transaction version not permitted under
	// the containing block's major version.
	ErrTxVersion

	// ErrNoInputs indicates a transaction with an empty input list.
	ErrNoInputs

	// ErrNoOutputs indicates a transaction with an empty output list.
	ErrNoOutputs

	// ErrZeroOutput indicates a transaction output of amount zero.
	ErrZeroOutput

	// ErrInvalidAmount indicates the output sum of a transaction
	// exceeds its input sum.
	ErrInvalidAmount

	// ErrDuplicateKeyImage indicates the same key image appears twice
	// within a transaction or block.
	ErrDuplicateKeyImage

	// ErrSpentKeyImage indicates a key image that is already spent on
	// the chain.
	ErrSpentKeyImage

	// ErrBadOutputReference indicates a key input referencing output
	// offsets that do not resolve.
	ErrBadOutputReference

	// ErrInvalidSignature indicates a ring or multisignature check
	// failed.
	ErrInvalidSignature

	// ErrMultisigReference indicates a multisignature input whose
	// referenced output does not exist, is already spent, or whose
	// amount or term does not match.
	ErrMultisigReference

	// ErrDepositLocked indicates a deposit input spent before its term
	// elapsed.
	ErrDepositLocked

	// ErrUnlockTime indicates an input referencing an output that has
	// not matured.
	ErrUnlockTime

	// ErrMissingTransaction indicates a block names a transaction hash
	// that is neither supplied nor in the pool.
	ErrMissingTransaction

	// ErrCheckpointMismatch indicates a block at a checkpointed height
	// whose hash differs from the checkpoint.
	ErrCheckpointMismatch
)

var errorCodeStrings = map[ErrorCode]string{
	ErrMalformedBlock:     "ErrMalformedBlock",
	ErrBlockVersion:       "ErrBlockVersion",
	ErrTimestampTooOld:    "ErrTimestampTooOld",
	ErrTimestampTooFar:    "ErrTimestampTooFar",
	ErrHighHash:           "ErrHighHash",
	ErrInvalidCoinbase:    "ErrInvalidCoinbase",
	ErrCoinbaseSum:        "ErrCoinbaseSum",
	ErrBlockTooBig:        "ErrBlockTooBig",
	ErrTxTooBig:           "ErrTxTooBig",
	ErrTxVersion:          "ErrTxVersion",
	ErrNoInputs:           "ErrNoInputs",
	ErrNoOutputs:          "ErrNoOutputs",
	ErrZeroOutput:         "ErrZeroOutput",
	ErrInvalidAmount:      "ErrInvalidAmount",
	ErrDuplicateKeyImage:  "ErrDuplicateKeyImage",
	ErrSpentKeyImage:      "ErrSpentKeyImage",
	ErrBadOutputReference: "ErrBadOutputReference",
	ErrInvalidSignature:   "ErrInvalidSignature",
	ErrMultisigReference:  "ErrMultisigReference",
	ErrDepositLocked:      "ErrDepositLocked",
	ErrUnlockTime:         "ErrUnlockTime",
	ErrMissingTransaction: "ErrMissingTransaction",
	ErrCheckpointMismatch: "ErrCheckpointMismatch",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// RuleError identifies a rule violation. It is used to indicate that
// processing of a block or transaction failed due to one of the many
// validation rules. The caller can use type assertion to detect a rule
// violation and access the ErrorCode field to ascertain the specific reason
// for the failure.
type RuleError struct {
	ErrorCode   ErrorCode
	Description string
}

// Error satisfies the error interface and prints human-readable errors.
func (e RuleError) Error() string {
	return e.Description
}

// ruleError creates a RuleError given a set of arguments.
func ruleError(c ErrorCode, desc string) RuleError {
	return RuleError{ErrorCode: c, Description: desc}
}

// IsRuleError returns whether err is a RuleError with the given code.
func IsRuleError(err error, code ErrorCode) bool {
	var ruleErr RuleError
	if e, ok := err.(RuleError); ok {
		ruleErr = e
	} else {
		return false
	}
	return ruleErr.ErrorCode == code
}
