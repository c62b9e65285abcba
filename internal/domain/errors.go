package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the domain-level error taxonomy surfaced to users and recorded
// on component statuses. Raw provider errors stay in Details.
type ErrorKind string

const (
	KindInvalidInput        ErrorKind = "invalid_input"
	KindUnsupportedSource   ErrorKind = "unsupported_source"
	KindSSRFBlocked         ErrorKind = "ssrf_blocked"
	KindTooLarge            ErrorKind = "too_large"
	KindInvalidPDF          ErrorKind = "invalid_pdf"
	KindNetwork             ErrorKind = "network"
	KindTimeout             ErrorKind = "timeout"
	KindProviderUnavailable ErrorKind = "provider_unavailable"
	KindNotFound            ErrorKind = "not_found"
	KindParseFailure        ErrorKind = "parse_failure"
	KindConflict            ErrorKind = "conflict"
	KindCancelled           ErrorKind = "cancelled"
	KindInternal            ErrorKind = "internal"
)

// Retryable reports whether the broker may retry a request failing with this
// kind.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindNetwork, KindTimeout, KindProviderUnavailable:
		return true
	}
	return false
}

// Error is the domain error carried across component boundaries.
type Error struct {
	Kind       ErrorKind
	Message    string
	NextAction string
	Details    map[string]any
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a domain error.
func E(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Ef builds a domain error wrapping a cause.
func Ef(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the domain kind from any error, defaulting to internal.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// ErrorInfo is the user-visible serialization of a failure: the domain kind,
// a short stage string, suggested next actions, and preserved raw details.
type ErrorInfo struct {
	Kind       ErrorKind      `json:"error_type"`
	Message    string         `json:"error_message"`
	NextAction string         `json:"next_action,omitempty"`
	Details    map[string]any `json:"error_details,omitempty"`
}

// InfoFrom converts any error into its user-visible form.
func InfoFrom(err error) *ErrorInfo {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		info := &ErrorInfo{Kind: de.Kind, Message: de.Message, NextAction: de.NextAction, Details: de.Details}
		if de.Err != nil {
			if info.Details == nil {
				info.Details = map[string]any{}
			}
			info.Details["cause"] = de.Err.Error()
		}
		return info
	}
	return &ErrorInfo{Kind: KindInternal, Message: err.Error()}
}
