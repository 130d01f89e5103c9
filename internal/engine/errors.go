package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents a failure detected by the ledger runtime rather
// than by a program's own logic.
//
// Runtime errors include:
//   - Transaction rejection: bad signatures, unknown blockhash, replays
//   - Account rule violations: read-only writes, foreign data writes, rent
//   - Builtin program failures: insufficient funds, owner or mint mismatch
//
// The Code doubles as the user-visible error tag.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Details contains additional context (account keys, amounts).
	Details map[string]string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// Transaction-level rejections. Transactions failing these checks are
	// never recorded in the log.
	ErrCodeSanitizeFailure          RuntimeErrorCode = "SanitizeFailure"
	ErrCodeSignatureFailure         RuntimeErrorCode = "SignatureFailure"
	ErrCodeBlockhashNotFound        RuntimeErrorCode = "BlockhashNotFound"
	ErrCodeAlreadyProcessed         RuntimeErrorCode = "AlreadyProcessed"
	ErrCodeMissingRequiredSignature RuntimeErrorCode = "MissingRequiredSignature"

	// Instruction-level failures. These roll back the transaction and are
	// recorded with their tag.
	ErrCodeUnknownProgram              RuntimeErrorCode = "UnknownProgram"
	ErrCodeNotEnoughAccountKeys        RuntimeErrorCode = "NotEnoughAccountKeys"
	ErrCodeInvalidInstructionData      RuntimeErrorCode = "InvalidInstructionData"
	ErrCodeInvalidAccountData          RuntimeErrorCode = "InvalidAccountData"
	ErrCodeAccountNotFound             RuntimeErrorCode = "AccountNotFound"
	ErrCodeAccountAlreadyInUse         RuntimeErrorCode = "AccountAlreadyInUse"
	ErrCodeReadonlyAccount             RuntimeErrorCode = "ReadonlyAccount"
	ErrCodeExternalAccountDataModified RuntimeErrorCode = "ExternalAccountDataModified"
	ErrCodeExternalAccountLamportSpend RuntimeErrorCode = "ExternalAccountLamportSpend"
	ErrCodeInsufficientFundsForRent    RuntimeErrorCode = "InsufficientFundsForRent"
	ErrCodeInsufficientFunds           RuntimeErrorCode = "InsufficientFunds"
	ErrCodeOwnerMismatch               RuntimeErrorCode = "OwnerMismatch"
	ErrCodeMintMismatch                RuntimeErrorCode = "MintMismatch"
	ErrCodeUninitializedAccount        RuntimeErrorCode = "UninitializedAccount"
	ErrCodeArithmeticOverflow          RuntimeErrorCode = "ArithmeticOverflow"
	ErrCodeInvalidSeeds                RuntimeErrorCode = "InvalidSeeds"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Tag returns the user-visible error tag.
func (e *RuntimeError) Tag() string {
	return string(e.Code)
}

// NewRuntimeError creates a RuntimeError with a formatted message.
func NewRuntimeError(code RuntimeErrorCode, format string, args ...any) *RuntimeError {
	return &RuntimeError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// WithDetail returns e with one more detail entry.
func (e *RuntimeError) WithDetail(key, value string) *RuntimeError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// IsRuntimeError reports whether err wraps a RuntimeError with the given code.
// Uses errors.As to handle wrapped errors.
func IsRuntimeError(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// TransactionError identifies the instruction that aborted a transaction.
type TransactionError struct {
	// Index is the position of the failing instruction.
	Index int

	// Err is the instruction's error.
	Err error
}

// Error implements the error interface.
func (e *TransactionError) Error() string {
	return fmt.Sprintf("instruction %d: %v", e.Index, e.Err)
}

// Unwrap returns the instruction's error.
func (e *TransactionError) Unwrap() error {
	return e.Err
}

// TaggedError is implemented by errors that carry a user-visible tag.
// RuntimeError and program errors both satisfy it.
type TaggedError interface {
	error
	Tag() string
}

// ErrorTagInternal is reported for errors that carry no tag.
const ErrorTagInternal = "InternalError"

// ErrorTag returns the tag a caller sees for err, or "" for nil.
func ErrorTag(err error) string {
	if err == nil {
		return ""
	}
	var te TaggedError
	if errors.As(err, &te) {
		return te.Tag()
	}
	return ErrorTagInternal
}
