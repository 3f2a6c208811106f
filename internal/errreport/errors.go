// Package errreport categorizes failures, retries transient ones with
// exponential backoff and keeps a bounded history for diagnostics.
package errreport

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Category groups errors by origin.
type Category string

const (
	CategoryNetwork    Category = "network"
	CategoryRender     Category = "render"
	CategoryAnnotation Category = "annotation"
	CategoryValidation Category = "validation"
	CategoryPermission Category = "permission"
)

// Level is the severity of an error.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Codes used across the engine.
const (
	CodePolicyViolation   = "PolicyViolation"
	CodeDuplicateDetected = "DuplicateDetected"
	CodeInvalidHierarchy  = "InvalidHierarchy"
	CodeStoreUnavailable  = "StoreUnavailable"
	CodeStoreRejected     = "StoreRejected"
	CodeForbidden         = "Forbidden"
	CodeNotFound          = "NotFound"
	CodeCommitFailed      = "CommitFailed"
	CodeLabelRequired     = "LabelRequired"
)

// Error is a categorized error.
type Error struct {
	Category Category
	Level    Level
	Code     string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil && e.Message != "" {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a categorized error wrapping cause (which may be nil).
func New(cat Category, lvl Level, code, msg string, cause error) *Error {
	return &Error{Category: cat, Level: lvl, Code: code, Message: msg, Err: cause}
}

// Network wraps a transport failure.
func Network(msg string, cause error) *Error {
	return New(CategoryNetwork, LevelError, CodeStoreUnavailable, msg, cause)
}

// Validation wraps a non-retriable user-facing warning.
func Validation(code, msg string, cause error) *Error {
	return New(CategoryValidation, LevelWarning, code, msg, cause)
}

// Classify returns the category and level of err. Uncategorized errors are
// treated as annotation errors, except transport and deadline failures which
// count as network errors.
func Classify(err error) (Category, Level) {
	var e *Error
	if errors.As(err, &e) {
		return e.Category, e.Level
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return CategoryNetwork, LevelError
	}
	return CategoryAnnotation, LevelError
}

// Code returns the code carried by err, or "".
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsRetryable reports whether err is worth retrying. Only network errors are,
// and never once the caller's context is done.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	cat, _ := Classify(err)
	return cat == CategoryNetwork
}
