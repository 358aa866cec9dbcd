package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	DefaultGatewayURL     = "https://api.mercadopago.com"
	defaultGatewayTimeout = 15 * time.Second
)

// GatewayConfig configures the card payment gateway.
type GatewayConfig struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
}

// Identification is the payer's document.
type Identification struct {
	Type   string `json:"type,omitempty"`
	Number string `json:"number,omitempty"`
}

// CardData is a tokenized card as produced by the gateway's browser SDK.
type CardData struct {
	Token             string
	PaymentMethodID   string
	IssuerID          string
	TransactionAmount decimal.Decimal
	Installments      int
	PayerEmail        string
	Identification    *Identification
}

// Submission is one payment attempt.
type Submission struct {
	Card              CardData
	ExternalReference string
	Description       string
	Metadata          map[string]any
}

// GatewayPayment is the gateway's view of a submitted payment.
type GatewayPayment struct {
	ID                string
	Status            string
	StatusDetail      string
	Captured          bool
	CurrencyID        string
	TransactionAmount decimal.Decimal
	Installments      int
	PaymentTypeID     string
	PaymentMethodID   string
	AuthorizationCode string
	DateApproved      string
	Raw               json.RawMessage
}

// GatewayClient submits card payments.
type GatewayClient struct {
	cfg    GatewayConfig
	http   *http.Client
	newKey func() string
}

func NewGatewayClient(cfg GatewayConfig, httpClient *http.Client) *GatewayClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGatewayURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultGatewayTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &GatewayClient{cfg: cfg, http: httpClient, newKey: uuid.NewString}
}

type paymentRequest struct {
	Token             string         `json:"token"`
	TransactionAmount float64        `json:"transaction_amount"`
	Installments      int            `json:"installments"`
	PaymentMethodID   string         `json:"payment_method_id"`
	IssuerID          string         `json:"issuer_id,omitempty"`
	Payer             payer          `json:"payer"`
	Description       string         `json:"description"`
	ExternalReference string         `json:"external_reference"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

type payer struct {
	Email          string          `json:"email"`
	Identification *Identification `json:"identification,omitempty"`
}

type paymentResponse struct {
	ID                any             `json:"id"`
	Status            string          `json:"status"`
	StatusDetail      string          `json:"status_detail"`
	Captured          bool            `json:"captured"`
	CurrencyID        string          `json:"currency_id"`
	TransactionAmount decimal.Decimal `json:"transaction_amount"`
	Installments      int             `json:"installments"`
	PaymentTypeID     string          `json:"payment_type_id"`
	PaymentMethodID   string          `json:"payment_method_id"`
	AuthorizationCode string          `json:"authorization_code"`
	DateApproved      string          `json:"date_approved"`
}

// Submit sends one attempt with a fresh X-Idempotency-Key. Card tokens are
// single use, so a retry is always a new attempt.
func (g *GatewayClient) Submit(ctx context.Context, s Submission) (*GatewayPayment, error) {
	description := s.Description
	if description == "" {
		description = "Compra"
	}
	body, err := json.Marshal(paymentRequest{
		Token:             s.Card.Token,
		TransactionAmount: s.Card.TransactionAmount.InexactFloat64(),
		Installments:      s.Card.Installments,
		PaymentMethodID:   s.Card.PaymentMethodID,
		IssuerID:          s.Card.IssuerID,
		Payer:             payer{Email: s.Card.PayerEmail, Identification: s.Card.Identification},
		Description:       description,
		ExternalReference: s.ExternalReference,
		Metadata:          s.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal payment: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/v1/payments", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build payment request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Idempotency-Key", g.newKey())

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, &Error{Reason: ReasonUnreachable, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &Error{Reason: ReasonUnreachable, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{Reason: ReasonRejected, Status: resp.StatusCode, Details: jsonOrString(raw)}
	}

	var out paymentResponse
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, &Error{Reason: ReasonRejected, Status: http.StatusBadGateway, Details: jsonOrString(raw), Err: err}
	}

	p := &GatewayPayment{
		Status:            out.Status,
		StatusDetail:      out.StatusDetail,
		Captured:          out.Captured,
		CurrencyID:        out.CurrencyID,
		TransactionAmount: out.TransactionAmount,
		Installments:      out.Installments,
		PaymentTypeID:     out.PaymentTypeID,
		PaymentMethodID:   out.PaymentMethodID,
		AuthorizationCode: out.AuthorizationCode,
		DateApproved:      out.DateApproved,
		Raw:               json.RawMessage(raw),
	}
	if out.ID != nil {
		p.ID = strings.TrimSpace(fmt.Sprint(out.ID))
	}
	return p, nil
}

func jsonOrString(b []byte) json.RawMessage {
	if json.Valid(b) {
		return json.RawMessage(b)
	}
	s, _ := json.Marshal(string(b))
	return s
}
