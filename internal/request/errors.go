package request

import (
	"errors"
	"fmt"
)

// Kind classifies a request failure. These three kinds are the only
// outward-visible error classes from this package.
type Kind string

// Failure classes surfaced to callers.
const (
	KindBlocked     Kind = "blocked"
	KindNotFound    Kind = "not_found"
	KindUnavailable Kind = "unavailable"
)

// Error is a classified request failure. HTTP-library internals are
// wrapped and never leak past this package unclassified.
type Error struct {
	Kind   Kind
	URL    string
	Status int
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("request %s: %s (status=%d): %v", e.Kind, e.URL, e.Status, e.cause)
	}
	return fmt.Sprintf("request %s: %s (status=%d)", e.Kind, e.URL, e.Status)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.cause
}

// KindOf returns the classification of err, if it carries one.
func KindOf(err error) (Kind, bool) {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind, true
	}
	return "", false
}

// StatusOf returns the HTTP status attached to a classified error, or 0.
func StatusOf(err error) int {
	var re *Error
	if errors.As(err, &re) {
		return re.Status
	}
	return 0
}

// IsBlocked reports whether err is a Blocked classification.
func IsBlocked(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindBlocked
}

// IsNotFound reports whether err is a NotFound classification.
func IsNotFound(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindNotFound
}

// IsTransient reports whether err is retry-eligible at the ledger level.
// Blocked and NotFound qualify; Unavailable is terminal for the attempt.
func IsTransient(err error) bool {
	k, ok := KindOf(err)
	return ok && (k == KindBlocked || k == KindNotFound)
}

func isBlockStatus(status int) bool {
	return status == 403 || status == 443
}

func isNotFoundStatus(status int) bool {
	return status == 404
}

// classify converts a terminal status/error pair into the package taxonomy.
func classify(url string, status int, cause error) *Error {
	switch {
	case isBlockStatus(status):
		return &Error{Kind: KindBlocked, URL: url, Status: status, cause: cause}
	case isNotFoundStatus(status):
		return &Error{Kind: KindNotFound, URL: url, Status: status, cause: cause}
	default:
		return &Error{Kind: KindUnavailable, URL: url, Status: status, cause: cause}
	}
}
