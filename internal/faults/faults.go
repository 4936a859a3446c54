// Package faults defines the error taxonomy shared by the extraction
// pipeline. Failures are classified, not subclassed: components return
// plain errors and callers map them onto a Class for retry decisions
// and for the final report.
package faults

import (
	"context"
	"errors"
	"strings"
)

// Class labels a failure for the report and for retry handling.
type Class string

const (
	ClassNone              Class = ""
	ClassNotFound          Class = "not_found"
	ClassNavigationTimeout Class = "navigation_timeout"
	ClassStabilityTimeout  Class = "stability_timeout"
	ClassTransfer          Class = "transfer_failure"
	ClassRecognition       Class = "recognition_failure"
	ClassSession           Class = "session_unusable"
)

// ErrNotFound is returned by the locator when no strategy matched.
// It is a non-fatal signal: the caller skips the target and continues.
var ErrNotFound = errors.New("element not found")

// ErrSessionUnusable indicates the browser context is wedged and only a
// full recycle can help.
var ErrSessionUnusable = errors.New("browser session unusable")

// IsTimeout reports whether err looks like a hard navigation timeout.
// Rod wraps deadline expiry in context errors, but errors that crossed a
// page.Eval boundary only keep the message, so the text is checked too.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded")
}

// Classify maps an error onto the taxonomy. Unknown errors from a
// navigation path count as session trouble rather than being dropped.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, ErrNotFound):
		return ClassNotFound
	case errors.Is(err, ErrSessionUnusable):
		return ClassSession
	case IsTimeout(err):
		return ClassNavigationTimeout
	default:
		return ClassSession
	}
}
