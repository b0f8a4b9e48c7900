// Package errs defines the failure taxonomy shared by every scan stage.
package errs

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind categorizes a failure.
type Kind string

const (
	KindUnknown                  Kind = ""
	KindProviderUnavailable      Kind = "ProviderUnavailable"
	KindProviderThrottled        Kind = "ProviderThrottled"
	KindPartialPage              Kind = "PartialPage"
	KindMetricsUnavailable       Kind = "MetricsUnavailable"
	KindInvalidWindow            Kind = "InvalidWindow"
	KindInvalidRuleConfiguration Kind = "InvalidRuleConfiguration"
	KindPricingDataMissing       Kind = "PricingDataMissing"
	KindInvariantViolation       Kind = "InvariantViolation"
	KindCancelled                Kind = "Cancelled"
	KindTimeout                  Kind = "Timeout"
)

// Retryable reports whether a caller may reasonably re-run the work later.
func (k Kind) Retryable() bool {
	switch k {
	case KindProviderUnavailable, KindProviderThrottled, KindPartialPage, KindTimeout:
		return true
	}
	return false
}

// Sentinels for errors.Is matching by kind.
var (
	ErrProviderUnavailable      = &Error{Kind: KindProviderUnavailable}
	ErrProviderThrottled        = &Error{Kind: KindProviderThrottled}
	ErrPartialPage              = &Error{Kind: KindPartialPage}
	ErrMetricsUnavailable       = &Error{Kind: KindMetricsUnavailable}
	ErrInvalidWindow            = &Error{Kind: KindInvalidWindow}
	ErrInvalidRuleConfiguration = &Error{Kind: KindInvalidRuleConfiguration}
	ErrPricingDataMissing       = &Error{Kind: KindPricingDataMissing}
	ErrInvariantViolation       = &Error{Kind: KindInvariantViolation}
	ErrCancelled                = &Error{Kind: KindCancelled}
	ErrTimeout                  = &Error{Kind: KindTimeout}
)

// Error carries a Kind plus the operation and resource it happened on.
type Error struct {
	Kind     Kind
	Op       string
	Resource string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Resource != "" {
		fmt.Fprintf(&b, " (resource: %s)", e.Resource)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// E builds an *Error.
func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds an *Error with a formatted cause.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// WithResource returns a copy annotated with a resource identifier.
func (e *Error) WithResource(id string) *Error {
	c := *e
	c.Resource = id
	return &c
}

// KindOf extracts the Kind of err. Context errors map to Cancelled and Timeout.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCancelled
	}
	return KindUnknown
}
