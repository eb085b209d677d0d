package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/shamank/snet-custody-go/pkg/faults"
	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	ExitSuccess     = 0 // Successful execution
	ExitFailure     = 1 // Operation failed
	ExitConfigError = 2 // Configuration missing or invalid
	ExitUnknown     = 3 // Outcome unknown; check before retrying
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error { return e.Err }

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error. Errors carrying a fault
// kind map CONFIG to ExitConfigError and OUTCOME_UNKNOWN to ExitUnknown.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	switch faults.KindOf(err) {
	case faults.KindConfig:
		return ExitConfigError
	case faults.KindOutcomeUnknown:
		return ExitUnknown
	}
	return ExitFailure
}

// CLIResponse is the JSON envelope of every command.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the error part of CLIResponse.
type CLIError struct {
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// OutputFormatter handles JSON vs text output.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

func newFormatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
}

// Success prints data.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(CLIResponse{Status: "ok", Data: data})
	}
	switch v := data.(type) {
	case string:
		_, err := fmt.Fprintln(f.Writer, v)
		return err
	case json.RawMessage:
		_, err := fmt.Fprintln(f.Writer, string(v))
		return err
	}
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(f.Writer, string(raw))
	return err
}

// Error prints err with its kind and hint.
func (f *OutputFormatter) Error(err error) {
	e := &CLIError{Kind: string(faults.KindOf(err)), Message: err.Error(), Hint: faults.HintOf(err)}
	if f.Format == "json" {
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		_ = enc.Encode(CLIResponse{Status: "error", Error: e})
		return
	}
	if e.Kind != "" {
		fmt.Fprintf(f.Writer, "Error [%s]: %s\n", e.Kind, e.Message)
	} else {
		fmt.Fprintf(f.Writer, "Error: %s\n", e.Message)
	}
}
