// Package dawnerr defines the node's stable-coded structured error
// type. Every typed error surface named in the node's operating
// contract — parse/protocol failures, crypto failures, trust and
// authorization denials, rate limiting, circuit-open rejection,
// transient network errors, handler failures, storage failures — is a
// distinct Code so callers can branch on it without string matching,
// and so the JSON-RPC layer has one place to map an error to a wire
// code.
package dawnerr

import (
	"errors"
	"fmt"
)

// Code identifies the category of a dawnerr.Error.
type Code string

const (
	CodeParse           Code = "PARSE_ERROR"
	CodeProtocol        Code = "PROTOCOL_ERROR"
	CodeCrypto          Code = "CRYPTO_ERROR"
	CodeTrust           Code = "TRUST_ERROR"
	CodeUnauthorized    Code = "UNAUTHORIZED"
	CodeRateLimited     Code = "RATE_LIMITED"
	CodeCircuitOpen     Code = "CIRCUIT_OPEN"
	CodeNetworkTransient Code = "NETWORK_TRANSIENT"
	CodeHandler         Code = "HANDLER_ERROR"
	CodeStorage         Code = "STORAGE_ERROR"
	CodeNotFound        Code = "NOT_FOUND"
	CodeInternal        Code = "INTERNAL_ERROR"
)

// Error is the structured error carried across every package boundary
// in the node. Message is human-readable; Details is machine-readable
// and safe to serialize into an audit event or a JSON-RPC error object.
type Error struct {
	Code    Code
	Message string
	Details map[string]interface{}
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetails attaches a machine-readable key/value pair and returns
// the same error for chaining.
func (e *Error) WithDetails(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New constructs a dawnerr.Error with the given code, message and
// optional wrapped cause.
func New(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Is reports whether err is a *Error of the given code, unwrapping
// as needed.
func Is(err error, code Code) bool {
	var de *Error
	if !errors.As(err, &de) {
		return false
	}
	return de.Code == code
}

// Retryable reports whether a dawnerr.Error of this code is ever worth
// retrying. CircuitOpen, Unauthorized, RateLimited and Crypto errors
// are never retried by internal/retry — retrying them either cannot
// succeed or would mask a security decision.
func Retryable(code Code) bool {
	switch code {
	case CodeNetworkTransient, CodeHandler, CodeStorage:
		return true
	default:
		return false
	}
}
