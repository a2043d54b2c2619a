package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/tally/internal/ir"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Transaction failed, or scenarios failed
	ExitCommandError = 2 // Command error (bad flags, unreadable keypair, database errors, etc.)
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
// Returns ExitSuccess for nil and ExitFailure if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// exitCodeFor maps an execution error: program failures exit 1, anything
// the host could not complete exits 2.
func exitCodeFor(err error) int {
	if ir.KindOf(err) != "" {
		return ExitFailure
	}
	return ExitCommandError
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
	Status  string    `json:"status"`             // "ok" or "error"
	Data    any       `json:"data,omitempty"`     // success payload
	Error   *CLIError `json:"error,omitempty"`    // error details
	TraceID string    `json:"trace_id,omitempty"` // receipt correlation id, when there is one
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // error kind ("Unauthorized", ...) or "CommandError"
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	// Human-readable text output
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{
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

// Receipt outputs a journaled transaction. Failed receipts are reported as
// errors carrying the receipt as details.
func (f *OutputFormatter) Receipt(r ir.Receipt) error {
	if f.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: r, TraceID: r.CorrelationID}
		if !r.OK() {
			resp = CLIResponse{
				Status:  "error",
				Error:   &CLIError{Code: string(r.ErrorKind), Message: r.ErrorMessage, Details: r},
				TraceID: r.CorrelationID,
			}
		}
		return f.encode(resp)
	}

	writeReceiptText(f.Writer, r, true)
	return nil
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

func (f *OutputFormatter) encode(resp CLIResponse) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetEscapeHTML(false)
	return enc.Encode(resp)
}

// writeReceiptText prints one receipt. Logs are included when withLogs is set.
func writeReceiptText(w io.Writer, r ir.Receipt, withLogs bool) {
	fmt.Fprintf(w, "Transaction %s\n", r.ID)
	fmt.Fprintf(w, "  Seq:      %d\n", r.Seq)
	fmt.Fprintf(w, "  Handler:  %s\n", displayHandler(r.Handler))
	fmt.Fprintf(w, "  Status:   %s\n", r.Status)
	if !r.OK() {
		fmt.Fprintf(w, "  Error:    %s\n", r.ErrorMessage)
	}
	fmt.Fprintf(w, "  Compute:  %d units\n", r.ComputeUnits)
	if len(r.Signers) > 0 {
		fmt.Fprintln(w, "  Signers:")
		for _, s := range r.Signers {
			fmt.Fprintf(w, "    %s\n", s)
		}
	}
	if withLogs && len(r.Logs) > 0 {
		fmt.Fprintln(w, "  Logs:")
		for _, l := range r.Logs {
			fmt.Fprintf(w, "    %s\n", l)
		}
	}
}

func displayHandler(h string) string {
	if h == "" {
		return "-"
	}
	return h
}
