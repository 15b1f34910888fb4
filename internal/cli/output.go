package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// Process exit codes.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // a fixture failed, validation found errors, or replay diverged
	ExitCommandError = 2 // the command itself could not do its job
)

// ExitError carries the exit code a command should terminate with.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError returns an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError returns an ExitError caused by err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode maps err to a process exit code. Errors that carry no code
// count as fixture failures.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Response statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// CLIResponse is the envelope every command prints with --format json.
// A failed run still carries its payload in Data.
type CLIResponse struct {
	Status string    `json:"status"`
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError names why a command exited with ExitFailure.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// OutputFormatter writes a command's payload either as a JSON envelope or
// through the command's own text renderer.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

func newFormatter(cmd *cobra.Command, format string) *OutputFormatter {
	return &OutputFormatter{Format: format, Writer: cmd.OutOrStdout()}
}

// Success writes data. In text mode text renders it instead.
func (f *OutputFormatter) Success(data any, text func(io.Writer) error) error {
	if f.Format != "json" {
		return text(f.Writer)
	}
	return f.encode(CLIResponse{Status: StatusOK, Data: data})
}

// Failure writes data tagged with code and returns an ExitFailure error
// carrying message, which the caller returns from the command.
func (f *OutputFormatter) Failure(code, message string, data any, text func(io.Writer) error) error {
	if f.Format != "json" {
		if err := text(f.Writer); err != nil {
			return err
		}
	} else if err := f.encode(CLIResponse{
		Status: StatusError,
		Data:   data,
		Error:  &CLIError{Code: code, Message: message},
	}); err != nil {
		return err
	}
	return NewExitError(ExitFailure, message)
}

func (f *OutputFormatter) encode(resp CLIResponse) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	return nil
}
