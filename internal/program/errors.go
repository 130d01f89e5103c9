package program

import "fmt"

// ErrorCode names a program failure. It is also the tag recorded in the
// transaction log.
type ErrorCode string

const (
	CodeAlreadyInitialized     ErrorCode = "AlreadyInitialized"
	CodeUnauthorized           ErrorCode = "Unauthorized"
	CodeInvalidFeeRate         ErrorCode = "InvalidFeeRate"
	CodeFeeDestinationMismatch ErrorCode = "FeeDestinationMismatch"
	CodeArithmeticOverflow     ErrorCode = "ArithmeticOverflow"
	CodeInvalidConfigAccount   ErrorCode = "InvalidConfigAccount"
	CodeInvalidFeeDestination  ErrorCode = "InvalidFeeDestination"
	CodeInvalidMint            ErrorCode = "InvalidMint"
	CodeInvalidInstructionData ErrorCode = "InvalidInstructionData"
)

// Error is a failure raised by the program's own checks.
//
// Number is the custom error number reported to clients; numbering starts
// at 6000 in declaration order.
type Error struct {
	Code    ErrorCode
	Number  uint32
	Message string
}

// Sentinels for errors.Is. Returned errors carry a more specific message
// but compare equal by Code.
var (
	ErrAlreadyInitialized     = &Error{Code: CodeAlreadyInitialized, Number: 6000, Message: "program config already initialized"}
	ErrUnauthorized           = &Error{Code: CodeUnauthorized, Number: 6001, Message: "signer is not the admin"}
	ErrInvalidFeeRate         = &Error{Code: CodeInvalidFeeRate, Number: 6002, Message: "fee basis points must be between 0 and 10000"}
	ErrFeeDestinationMismatch = &Error{Code: CodeFeeDestinationMismatch, Number: 6003, Message: "fee destination does not match config"}
	ErrArithmeticOverflow     = &Error{Code: CodeArithmeticOverflow, Number: 6004, Message: "fee computation overflows"}
	ErrInvalidConfigAccount   = &Error{Code: CodeInvalidConfigAccount, Number: 6005, Message: "invalid program config account"}
	ErrInvalidFeeDestination  = &Error{Code: CodeInvalidFeeDestination, Number: 6006, Message: "fee destination is not a token account"}
	ErrInvalidMint            = &Error{Code: CodeInvalidMint, Number: 6007, Message: "token account holds the wrong mint"}
	ErrInvalidInstructionData = &Error{Code: CodeInvalidInstructionData, Number: 6008, Message: "invalid instruction data"}
)

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Number, e.Message)
}

// Tag returns the tag recorded in the transaction log.
func (e *Error) Tag() string {
	return string(e.Code)
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// withf returns a copy of e whose message is extended with detail.
func (e *Error) withf(format string, args ...any) *Error {
	out := *e
	out.Message = e.Message + ": " + fmt.Sprintf(format, args...)
	return &out
}
