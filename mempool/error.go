// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"fmt"
)

// RejectCode identifies why a transaction was refused pool admission.
type RejectCode int

// The reject codes of pool admission.
const (
	// RejectDuplicate means the transaction is already pooled.
	RejectDuplicate RejectCode = iota

	// RejectDoubleSpend means a key image or multisignature reference
	// conflicts with the chain or another pooled transaction.
	RejectDoubleSpend

	// RejectFeeTooLow means the fee is below the relay minimum.
	RejectFeeTooLow

	// RejectTooBig means the transaction exceeds the size limit.
	RejectTooBig

	// RejectInvalid means the transaction is structurally invalid.
	RejectInvalid
)

var rejectCodeStrings = map[RejectCode]string{
	RejectDuplicate:   "RejectDuplicate",
	RejectDoubleSpend: "RejectDoubleSpend",
	RejectFeeTooLow:   "RejectFeeTooLow",
	RejectTooBig:      "RejectTooBig",
	RejectInvalid:     "RejectInvalid",
}

// String returns the RejectCode as a human-readable name.
func (c RejectCode) String() string {
	if s, ok := rejectCodeStrings[c]; ok {
		return s
	}
	return fmt.Sprintf("Unknown RejectCode (%d)", int(c))
}

// TxRuleError identifies a pool admission failure.
type TxRuleError struct {
	RejectCode  RejectCode
	Description string
}

// Error satisfies the error interface.
func (e TxRuleError) Error() string {
	return e.Description
}

// txRuleError creates a TxRuleError given a set of arguments.
func txRuleError(c RejectCode, desc string) TxRuleError {
	return TxRuleError{RejectCode: c, Description: desc}
}

// IsRejectCode returns whether err is a TxRuleError with the given code.
func IsRejectCode(err error, code RejectCode) bool {
	e, ok := err.(TxRuleError)
	return ok && e.RejectCode == code
}
