package payment

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/imrishuroy/storefront-checkout/internal/aws"
	"github.com/imrishuroy/storefront-checkout/internal/orders"
)

// OutcomeVerified is the metric outcome for an accepted payment.
const OutcomeVerified = "approved-verified"

// Expected is what the payment must match to be trusted.
type Expected struct {
	Amount       decimal.Decimal
	Currency     string
	Installments int
}

// VerifiedPayment is a gateway payment that passed every cross-check.
type VerifiedPayment struct {
	ID                string          `json:"id"`
	Status            string          `json:"status"`
	StatusDetail      string          `json:"status_detail"`
	Amount            decimal.Decimal `json:"-"`
	Currency          string          `json:"-"`
	Installments      int             `json:"-"`
	PaymentType       string          `json:"-"`
	PaymentMethod     string          `json:"-"`
	AuthorizationCode string          `json:"-"`
	DateApproved      string          `json:"-"`
	ExternalReference string          `json:"-"`
	Raw               json.RawMessage `json:"-"`
}

// Metadata is the payment block attached to the committed order.
func (v VerifiedPayment) Metadata() *orders.PaymentMetadata {
	return &orders.PaymentMetadata{
		ID:                v.ID,
		Status:            v.Status,
		StatusDetail:      v.StatusDetail,
		Amount:            v.Amount,
		Currency:          v.Currency,
		Installments:      v.Installments,
		PaymentType:       v.PaymentType,
		PaymentMethod:     v.PaymentMethod,
		AuthorizationCode: v.AuthorizationCode,
		DateApproved:      v.DateApproved,
		ExternalReference: v.ExternalReference,
	}
}

// Submitter sends a payment attempt to the gateway.
type Submitter interface {
	Submit(ctx context.Context, s Submission) (*GatewayPayment, error)
}

// Verifier submits a payment and refuses to trust it until every check passes.
type Verifier struct {
	gateway Submitter
	metrics aws.Counter
	log     zerolog.Logger
}

func NewVerifier(gateway Submitter, metrics aws.Counter, log zerolog.Logger) *Verifier {
	if metrics == nil {
		metrics = aws.NopCounter{}
	}
	return &Verifier{gateway: gateway, metrics: metrics, log: log.With().Str("component", "payment_verifier").Logger()}
}

// Verify submits s and cross-checks the gateway's answer against exp.
func (v *Verifier) Verify(ctx context.Context, s Submission, exp Expected) (*VerifiedPayment, error) {
	log := v.log.With().Str("external_reference", s.ExternalReference).Logger()

	p, err := v.gateway.Submit(ctx, s)
	if err == nil {
		err = Check(p, exp)
	}
	if err != nil {
		reason := ReasonOf(err)
		if reason == "" {
			reason = "error"
		}
		ev := log.Warn().Err(err).Str("reason", string(reason))
		if p != nil {
			ev = ev.Str("payment_id", p.ID).Str("status", p.Status).Str("status_detail", p.StatusDetail)
		}
		ev.Msg("payment not accepted")
		v.metrics.Count(ctx, aws.MetricPaymentVerification, string(reason))
		return nil, err
	}

	log.Info().Str("payment_id", p.ID).Msg("payment verified")
	v.metrics.Count(ctx, aws.MetricPaymentVerification, OutcomeVerified)
	return &VerifiedPayment{
		ID:                p.ID,
		Status:            p.Status,
		StatusDetail:      p.StatusDetail,
		Amount:            p.TransactionAmount,
		Currency:          p.CurrencyID,
		Installments:      p.Installments,
		PaymentType:       p.PaymentTypeID,
		PaymentMethod:     p.PaymentMethodID,
		AuthorizationCode: p.AuthorizationCode,
		DateApproved:      p.DateApproved,
		ExternalReference: s.ExternalReference,
		Raw:               p.Raw,
	}, nil
}

// Check applies the acceptance rules in order: payment id, approval,
// currency, amount, installments.
func Check(p *GatewayPayment, exp Expected) error {
	if p == nil || p.ID == "" {
		return &Error{Reason: ReasonMissingPaymentID, Payment: p}
	}
	isCard := p.PaymentTypeID == "credit_card" || p.PaymentTypeID == "debit_card"
	if p.Status != "approved" || p.StatusDetail != "accredited" || !p.Captured || !isCard {
		return &Error{Reason: ReasonNotApproved, Payment: p, Got: p.Status + "/" + p.StatusDetail}
	}
	if p.CurrencyID != exp.Currency {
		return &Error{Reason: ReasonCurrencyMismatch, Payment: p, Expected: exp.Currency, Got: p.CurrencyID}
	}
	if !p.TransactionAmount.Equal(exp.Amount) {
		return &Error{Reason: ReasonAmountMismatch, Payment: p, Expected: exp.Amount.String(), Got: p.TransactionAmount.String()}
	}
	if p.Installments != exp.Installments {
		return &Error{Reason: ReasonInstallmentsMismatch, Payment: p, Expected: strconv.Itoa(exp.Installments), Got: strconv.Itoa(p.Installments)}
	}
	return nil
}
