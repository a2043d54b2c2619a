package ir

import (
	"errors"
	"fmt"
)

// ErrorKind is the typed failure a transaction aborts with.
// The string form is what the journal stores and what clients match on.
type ErrorKind string

const (
	// ErrAlreadyInitialized: the slot already holds data at init time.
	ErrAlreadyInitialized ErrorKind = "AlreadyInitialized"

	// ErrInsufficientFunds: the payer cannot cover the allocation.
	ErrInsufficientFunds ErrorKind = "InsufficientFunds"

	// ErrMissingSignature: a required principal did not authorize the call,
	// or its signature failed verification.
	ErrMissingSignature ErrorKind = "MissingSignature"

	// ErrUnauthorized: the signer is not the record's stored owner.
	ErrUnauthorized ErrorKind = "Unauthorized"

	// ErrMalformedRecord: the account is not a record of this program.
	ErrMalformedRecord ErrorKind = "MalformedRecord"

	// ErrNotInitialized: a mutating call referenced an empty slot.
	ErrNotInitialized ErrorKind = "NotInitialized"

	// ErrInvalidInstruction: unknown handler, bad argument bytes, or the
	// wrong account list for the handler.
	ErrInvalidInstruction ErrorKind = "InvalidInstruction"

	// ErrComputeBudgetExceeded: the call ran out of compute units.
	ErrComputeBudgetExceeded ErrorKind = "ComputeBudgetExceeded"

	// ErrInvariantViolation: the runtime's post-execution checks failed.
	ErrInvariantViolation ErrorKind = "InvariantViolation"

	// ErrAlreadyProcessed: a transaction with the same id is already journaled.
	ErrAlreadyProcessed ErrorKind = "AlreadyProcessed"
)

// ProgramError is a failed transaction. Every ProgramError aborts the whole
// call with no account changes.
type ProgramError struct {
	Kind    ErrorKind
	Message string
}

func (e *ProgramError) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewError creates a ProgramError with a formatted message.
func NewError(kind ErrorKind, format string, args ...any) *ProgramError {
	return &ProgramError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the ErrorKind carried by err, or "" if err is not a
// ProgramError. Uses errors.As to handle wrapped errors.
func KindOf(err error) ErrorKind {
	var pe *ProgramError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// IsKind reports whether err is a ProgramError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
