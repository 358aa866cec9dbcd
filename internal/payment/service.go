package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/imrishuroy/storefront-checkout/internal/apperrors"
	"github.com/imrishuroy/storefront-checkout/internal/orders"
	"github.com/imrishuroy/storefront-checkout/internal/purchase"
)

// OrderCreator commits an order.
type OrderCreator interface {
	Create(ctx context.Context, req orders.CreateRequest) (*orders.OrderRef, error)
}

// CardCheckout is one card purchase: the attempt, what it must match, and
// the draft to commit once it is verified.
type CardCheckout struct {
	Submission Submission
	Expected   Expected
	Draft      purchase.Draft
}

// Result of a verified and committed card purchase.
type Result struct {
	Payment *VerifiedPayment
	Order   *orders.OrderRef
}

// OrderError is a verified payment whose order could not be committed.
type OrderError struct {
	Payment *VerifiedPayment
	Err     error
}

func (e *OrderError) Error() string {
	return fmt.Sprintf("payment %s verified but order creation failed: %v", e.Payment.ID, e.Err)
}

func (e *OrderError) Unwrap() error { return e.Err }

// ErrorKind implements apperrors.Kinded.
func (e *OrderError) ErrorKind() apperrors.Kind {
	if k := apperrors.KindOf(e.Err); k != apperrors.KindUnknown {
		return k
	}
	return apperrors.KindUpstreamRejected
}

// Service runs verify, then commit. Never the other way around.
type Service struct {
	verifier *Verifier
	orders   OrderCreator
	log      zerolog.Logger
}

func NewService(v *Verifier, o OrderCreator, log zerolog.Logger) *Service {
	return &Service{verifier: v, orders: o, log: log.With().Str("component", "card_checkout").Logger()}
}

// PayAndCommit checks the draft, verifies the payment and commits the draft
// keyed by the payment id, so a client retry of the commit can't double charge.
// A draft the committer would reject is refused before the gateway is called.
func (s *Service) PayAndCommit(ctx context.Context, req CardCheckout) (*Result, error) {
	if strings.TrimSpace(req.Submission.ExternalReference) == "" {
		return nil, apperrors.Validation("external_reference", "external_reference is required")
	}

	draft := req.Draft.Clone()
	draft.PaymentMethod = purchase.PaymentGateway
	if err := orders.ValidateDraft(draft); err != nil {
		return nil, err
	}

	vp, err := s.verifier.Verify(ctx, req.Submission, req.Expected)
	if err != nil {
		return nil, err
	}

	ref, err := s.orders.Create(ctx, orders.CreateRequest{Key: vp.ID, Draft: draft, Payment: vp.Metadata()})
	if err != nil {
		s.log.Error().Err(err).Str("payment_id", vp.ID).Str("external_reference", vp.ExternalReference).Msg("order after verified payment failed")
		return &Result{Payment: vp}, &OrderError{Payment: vp, Err: err}
	}
	return &Result{Payment: vp, Order: ref}, nil
}

// ResolveExpected picks the amount a card payment must match. A draft with
// items wins; otherwise the client's expected amount, then the card amount.
// Currency defaults to ARS and installments to 1.
func ResolveExpected(draft *purchase.Draft, clientAmount decimal.NullDecimal, currency string, installments int, card CardData) Expected {
	exp := Expected{Currency: strings.TrimSpace(currency), Installments: installments}
	switch {
	case draft != nil && len(draft.Items) > 0:
		exp.Amount = draft.Total()
		if exp.Currency == "" {
			exp.Currency = draft.CurrencyOrDefault()
		}
	case clientAmount.Valid:
		exp.Amount = clientAmount.Decimal
	default:
		exp.Amount = card.TransactionAmount
	}
	if exp.Currency == "" {
		exp.Currency = purchase.DefaultCurrency
	}
	if exp.Installments <= 0 {
		exp.Installments = 1
	}
	return exp
}
