package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure by how the caller should react to it.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation is caller-fixable and never retried automatically.
	KindValidation
	KindUpstreamAuth
	KindUpstreamTimeout
	// KindUpstreamRejected is a non-2xx answer from a third party.
	KindUpstreamRejected
	// KindVerificationMismatch is a gateway-approved payment that fails a business cross-check.
	KindVerificationMismatch
	// KindIdempotencyConflict means the upstream returned a different order for a reused key.
	KindIdempotencyConflict
	// KindDeclined is a payment the gateway did not approve.
	KindDeclined
	// KindUnavailable covers unreachable upstreams and open circuit breakers.
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUpstreamAuth:
		return "upstream_auth"
	case KindUpstreamTimeout:
		return "upstream_timeout"
	case KindUpstreamRejected:
		return "upstream_rejected"
	case KindVerificationMismatch:
		return "verification_mismatch"
	case KindIdempotencyConflict:
		return "idempotency_conflict"
	case KindDeclined:
		return "declined"
	case KindUnavailable:
		return "unavailable"
	}
	return "unknown"
}

// Kinded is implemented by errors that know their Kind.
type Kinded interface {
	ErrorKind() Kind
}

// Error is the generic classified error.
type Error struct {
	Kind  Kind
	Op    string
	Field string // set for validation errors
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	msg := e.Msg
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s", e.Field, e.Msg)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorKind implements Kinded.
func (e *Error) ErrorKind() Kind { return e.Kind }

// Validation builds a KindValidation error naming the offending field.
func Validation(field, msg string) *Error {
	return &Error{Kind: KindValidation, Field: field, Msg: msg}
}

// New builds a classified error wrapping cause.
func New(kind Kind, op, msg string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: cause}
}

// KindOf returns the Kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var k Kinded
	if errors.As(err, &k) {
		return k.ErrorKind()
	}
	return KindUnknown
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool { return KindOf(err) == kind }

// Retryable reports whether a user-initiated retry of the same operation can succeed.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindUpstreamTimeout, KindUnavailable:
		return true
	}
	return false
}

// HTTPStatus maps a kind to the status code the API answers with.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindUpstreamAuth, KindUpstreamRejected:
		return http.StatusBadGateway
	case KindUpstreamTimeout:
		return http.StatusGatewayTimeout
	case KindVerificationMismatch:
		return http.StatusBadRequest
	case KindIdempotencyConflict:
		return http.StatusConflict
	case KindDeclined:
		return http.StatusPaymentRequired
	case KindUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
