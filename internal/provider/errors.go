package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
)

type ErrorKind string

const (
	KindTransientNetwork ErrorKind = "transient_network"
	KindNotFound         ErrorKind = "not_found"
	KindClientError      ErrorKind = "client_error"
	KindServerError      ErrorKind = "server_error"
	KindTimeout          ErrorKind = "timeout"
)

// Error is a classified provider failure.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Detail     string
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("provider %s: %v", e.Kind, e.Cause)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s (HTTP %d): %s", e.Kind, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("provider %s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Cause }

// Kind extracts the classification from err, or "" if err is not a
// provider error.
func Kind(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// IsNXDOMAIN reports whether err was caused by a DNS name that does not
// resolve. A stopped machine's internal hostname disappears from DNS, so
// this is the signature of a suspended or still-booting machine.
func IsNXDOMAIN(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr) && dnsErr.IsNotFound
}

// IsTimeout reports whether err is a deadline or network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pe *Error
	if errors.As(err, &pe) && pe.Kind == KindTimeout {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// classifyTransport maps a transport-level failure from the HTTP client.
func classifyTransport(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Cause: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Cause: err}
	}
	return &Error{Kind: KindTransientNetwork, Cause: err}
}
