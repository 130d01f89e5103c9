package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/dustin/go-humanize"
	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/roach88/feeledger/internal/engine"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Transaction failed or scenario failed
	ExitCommandError = 2 // Command error (invalid paths, database not found, etc.)
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status  string      `json:"status"`             // "ok" or "error"
	Data    interface{} `json:"data,omitempty"`     // success payload
	Error   *CLIError   `json:"error,omitempty"`    // error details
	TraceID string      `json:"trace_id,omitempty"` // optional trace correlation
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string      `json:"code"`              // "E001", "E002", etc.
	Message string      `json:"message"`           // human-readable message
	Details interface{} `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data interface{}) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	// Human-readable text output
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details interface{}) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	// Human-readable error
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...interface{}) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

func outcome(receipt *engine.Receipt) TxOutcome {
	out := TxOutcome{
		Signature: receipt.Signature.String(),
		Slot:      receipt.Slot,
		Status:    "ok",
		Logs:      receipt.Logs,
	}
	if receipt.Err != nil {
		out.Status = "failed"
		out.ErrorTag = engine.ErrorTag(receipt.Err)
		out.Error = receipt.Err.Error()
	}
	return out
}

// Transaction prints a transaction outcome and passes err through. Failed
// executions are reported in the configured format before the error
// reaches the exit code.
func (f *OutputFormatter) Transaction(receipt *engine.Receipt, err error, data any, text func()) error {
	if receipt == nil {
		return err
	}
	out := outcome(receipt)
	if err != nil {
		if f.Format == "json" {
			_ = f.Error(out.ErrorTag, out.Error, out)
		} else {
			fmt.Fprintf(f.Writer, "✗ %s failed: %s\n", out.Signature, out.ErrorTag)
			f.logs(out.Logs)
		}
		return err
	}

	if f.Format == "json" {
		return f.Success(data)
	}
	text()
	fmt.Fprintf(f.Writer, "  signature: %s (slot %d)\n", out.Signature, out.Slot)
	if f.Verbose {
		f.logs(out.Logs)
	}
	return nil
}

func (f *OutputFormatter) logs(logs []string) {
	for _, line := range logs {
		fmt.Fprintf(f.Writer, "  | %s\n", line)
	}
}

// formatAmount renders a u64 with thousands separators.
func formatAmount(v uint64) string {
	return humanize.BigComma(new(big.Int).SetUint64(v))
}

// formatLamports renders lamports with their SOL value.
func formatLamports(v uint64) string {
	return fmt.Sprintf("%s lamports (%s SOL)", formatAmount(v),
		humanize.FtoaWithDigits(float64(v)/float64(solana.LAMPORTS_PER_SOL), 9))
}
