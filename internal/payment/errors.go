package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/imrishuroy/storefront-checkout/internal/apperrors"
)

// Reason is why a payment attempt was not accepted.
type Reason string

const (
	ReasonUnreachable          Reason = "gateway-unreachable"
	ReasonRejected             Reason = "gateway-rejected"
	ReasonNotApproved          Reason = "not-approved"
	ReasonCurrencyMismatch     Reason = "currency-mismatch"
	ReasonAmountMismatch       Reason = "amount-mismatch"
	ReasonInstallmentsMismatch Reason = "installments-mismatch"
	ReasonMissingPaymentID     Reason = "missing-payment-id"
)

// Error is a failed payment attempt. Attempts are final; a retry needs a new card token.
type Error struct {
	Reason Reason
	// Status is the gateway's HTTP status for ReasonRejected.
	Status   int
	Expected string
	Got      string
	Payment  *GatewayPayment
	Details  json.RawMessage
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("payment: ")
	b.WriteString(string(e.Reason))
	if e.Expected != "" || e.Got != "" {
		fmt.Fprintf(&b, " (expected %s, got %s)", e.Expected, e.Got)
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, " status %d", e.Status)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorKind implements apperrors.Kinded.
func (e *Error) ErrorKind() apperrors.Kind {
	switch e.Reason {
	case ReasonUnreachable:
		if errors.Is(e.Err, context.DeadlineExceeded) {
			return apperrors.KindUpstreamTimeout
		}
		return apperrors.KindUnavailable
	case ReasonRejected, ReasonMissingPaymentID:
		return apperrors.KindUpstreamRejected
	case ReasonNotApproved:
		return apperrors.KindDeclined
	case ReasonCurrencyMismatch, ReasonAmountMismatch, ReasonInstallmentsMismatch:
		return apperrors.KindVerificationMismatch
	}
	return apperrors.KindUnknown
}

// HTTPStatus is the status the payment endpoint answers with.
func (e *Error) HTTPStatus() int {
	switch e.Reason {
	case ReasonUnreachable:
		if e.ErrorKind() == apperrors.KindUpstreamTimeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case ReasonRejected:
		if e.Status >= 400 {
			return e.Status
		}
		return http.StatusBadGateway
	case ReasonNotApproved:
		return http.StatusPaymentRequired
	case ReasonCurrencyMismatch, ReasonAmountMismatch, ReasonInstallmentsMismatch:
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}

// Code is the snake_case error code used in API responses.
func (e *Error) Code() string {
	return strings.ReplaceAll(string(e.Reason), "-", "_")
}

// ReasonOf returns the Reason of a payment error in err's chain, or "".
func ReasonOf(err error) Reason {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Reason
	}
	return ""
}
