// Package errors provides structured error handling for the stagetrail CLI.
// Errors carry a category, optional details (such as every manifest
// validation error) and actionable remediation steps.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCategory represents the type of error that occurred.
type ErrorCategory int

const (
	// Argument errors are caused by invalid or missing command arguments.
	Argument ErrorCategory = iota
	// Configuration errors are caused by invalid or missing configuration.
	Configuration
	// Manifest errors are problems in the workflow manifest itself.
	Manifest
	// Prerequisite errors occur when a session or stage the command needs is missing.
	Prerequisite
	// Runtime errors occur during command execution, usually in the store.
	Runtime
)

// String returns a human-readable name for the error category.
func (c ErrorCategory) String() string {
	switch c {
	case Argument:
		return "Argument Error"
	case Configuration:
		return "Configuration Error"
	case Manifest:
		return "Manifest Error"
	case Prerequisite:
		return "Prerequisite Error"
	case Runtime:
		return "Runtime Error"
	default:
		return "Error"
	}
}

// CLIError is a structured error with category and remediation guidance.
type CLIError struct {
	Category ErrorCategory
	// Message is a human-readable description of what went wrong.
	Message string
	// Details are listed under the message, one per line.
	Details []string
	// Remediation is a list of actionable steps to resolve the error.
	Remediation []string
	// Usage shows the correct command syntax (optional, for argument errors).
	Usage string
	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *CLIError) Error() string {
	return e.Message
}

// Unwrap exposes Cause to errors.Is and errors.As.
func (e *CLIError) Unwrap() error {
	return e.Cause
}

// New creates a CLIError in the given category.
func New(category ErrorCategory, message string, remediation ...string) *CLIError {
	return &CLIError{Category: category, Message: message, Remediation: remediation}
}

// NewArgumentError creates a new argument error with the given message and remediation steps.
func NewArgumentError(message string, remediation ...string) *CLIError {
	return New(Argument, message, remediation...)
}

// NewArgumentErrorWithUsage creates a new argument error that includes correct usage syntax.
func NewArgumentErrorWithUsage(message, usage string, remediation ...string) *CLIError {
	e := New(Argument, message, remediation...)
	e.Usage = usage
	return e
}

// NewConfigError creates a new configuration error.
func NewConfigError(message string, remediation ...string) *CLIError {
	return New(Configuration, message, remediation...)
}

// NewPrerequisiteError creates a new prerequisite error.
func NewPrerequisiteError(message string, remediation ...string) *CLIError {
	return New(Prerequisite, message, remediation...)
}

// NewRuntimeError creates a new runtime error.
func NewRuntimeError(message string, remediation ...string) *CLIError {
	return New(Runtime, message, remediation...)
}

// Wrap wraps an existing error with a CLIError, preserving the original message.
func Wrap(err error, category ErrorCategory, remediation ...string) *CLIError {
	if err == nil {
		return nil
	}
	e := New(category, err.Error(), remediation...)
	e.Cause = err
	return e
}

// WrapWithMessage wraps an error with a custom message and category.
func WrapWithMessage(err error, category ErrorCategory, message string, remediation ...string) *CLIError {
	if err == nil {
		return nil
	}
	e := New(category, fmt.Sprintf("%s: %v", message, err), remediation...)
	e.Cause = err
	return e
}

// AsCLIError finds a CLIError anywhere in err's chain.
// Returns nil if there is none.
func AsCLIError(err error) *CLIError {
	var cliErr *CLIError
	if stderrors.As(err, &cliErr) {
		return cliErr
	}
	return nil
}

// IsCLIError checks if err's chain contains a CLIError.
func IsCLIError(err error) bool {
	return AsCLIError(err) != nil
}
