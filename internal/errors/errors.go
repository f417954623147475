package errors

import (
	"errors"
	"fmt"
)

// IndexError is the structured error type for amanidx.
// Tool layers render it verbatim, so Message must be safe to show an end user.
type IndexError struct {
	// Code is the unique error code (e.g., "ERR_201_FILE_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	Category Category
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *IndexError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *IndexError) Unwrap() error {
	return e.Cause
}

// Is matches by code so errors.Is(err, &IndexError{Code: ...}) works.
func (e *IndexError) Is(target error) bool {
	if t, ok := target.(*IndexError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *IndexError) WithDetail(key, value string) *IndexError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *IndexError) WithSuggestion(suggestion string) *IndexError {
	e.Suggestion = suggestion
	return e
}

// New creates a new IndexError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *IndexError {
	return &IndexError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an IndexError from an existing error.
func Wrap(code string, err error) *IndexError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// FileNotFound returns the data error for a missing workspace file.
func FileNotFound(path string, cause error) *IndexError {
	return New(ErrCodeFileNotFound, "file not found: "+path, cause).WithDetail("path", path)
}

// PathOutsideWorkspace returns the data error for a path that escapes the workspace root.
func PathOutsideWorkspace(path, workspace string) *IndexError {
	return New(ErrCodePathOutsideWorkspace, "path is outside the workspace: "+path, nil).
		WithDetail("path", path).
		WithDetail("workspace", workspace)
}

// As extracts an *IndexError from an error chain.
func As(err error) (*IndexError, bool) {
	var ie *IndexError
	if errors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}

// IsRetryable reports whether any IndexError in the chain is retryable.
func IsRetryable(err error) bool {
	if ie, ok := As(err); ok {
		return ie.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	if ie, ok := As(err); ok {
		return ie.Severity == SeverityFatal
	}
	return false
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code string) bool {
	return errors.Is(err, &IndexError{Code: code})
}

// GetCode extracts the error code, or "" when err is not an IndexError.
func GetCode(err error) string {
	if ie, ok := As(err); ok {
		return ie.Code
	}
	return ""
}
