package types

import (
	"errors"
	"fmt"
)

const (
	usageErrorFormat     = "usage error: %s"
	directoryErrorFormat = "directory error: %s %q: %v"
	directoryOpenFormat  = "directory error: %s: %v"
	brokerErrorFormat    = "broker error: %s: %v"
	inputErrorFormat     = "input error: %s: %v"
	inputErrorPathFormat = "input error: %s %q: %v"
	closeErrorFormat     = "an unexpected error occurred while closing the %s: %v"
)

// UsageError reports invalid, missing or conflicting caller-supplied arguments.
type UsageError struct {
	Message string
}

// NewUsageError formats a UsageError.
func NewUsageError(format string, arguments ...any) *UsageError {
	return &UsageError{Message: fmt.Sprintf(format, arguments...)}
}

func (usageError *UsageError) Error() string {
	return fmt.Sprintf(usageErrorFormat, usageError.Message)
}

// DirectoryError reports a naming session, lookup or authentication failure.
type DirectoryError struct {
	Operation string
	Name      string
	Err       error
}

func (directoryError *DirectoryError) Error() string {
	if directoryError.Name == "" {
		return fmt.Sprintf(directoryOpenFormat, directoryError.Operation, directoryError.Err)
	}
	return fmt.Sprintf(directoryErrorFormat, directoryError.Operation, directoryError.Name, directoryError.Err)
}

// Unwrap exposes the underlying cause.
func (directoryError *DirectoryError) Unwrap() error {
	return directoryError.Err
}

// BrokerError reports a connection, session, start, stop or send failure.
type BrokerError struct {
	Operation string
	Err       error
}

func (brokerError *BrokerError) Error() string {
	return fmt.Sprintf(brokerErrorFormat, brokerError.Operation, brokerError.Err)
}

// Unwrap exposes the underlying cause.
func (brokerError *BrokerError) Unwrap() error {
	return brokerError.Err
}

// InputError reports a failure obtaining the password or the message body.
type InputError struct {
	Source string
	Path   string
	Err    error
}

func (inputError *InputError) Error() string {
	if inputError.Path != "" {
		return fmt.Sprintf(inputErrorPathFormat, inputError.Source, inputError.Path, inputError.Err)
	}
	return fmt.Sprintf(inputErrorFormat, inputError.Source, inputError.Err)
}

// Unwrap exposes the underlying cause.
func (inputError *InputError) Unwrap() error {
	return inputError.Err
}

// CloseError reports a teardown failure. It is collected, never fatal.
type CloseError struct {
	Resource string
	Err      error
}

func (closeError *CloseError) Error() string {
	return fmt.Sprintf(closeErrorFormat, closeError.Resource, closeError.Err)
}

// Unwrap exposes the underlying cause.
func (closeError *CloseError) Unwrap() error {
	return closeError.Err
}

// ExitCodeFor maps the outcome of the protected workflow to a process exit code.
// Close failures are never passed here.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}
	var usageError *UsageError
	if errors.As(err, &usageError) {
		return ExitCodeUsageError
	}
	return ExitCodeRuntimeError
}
