package orders

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/imrishuroy/storefront-checkout/internal/purchase"
)

// EventOrderCommitted is published after every successful commit.
const EventOrderCommitted = "order.committed"

// PaymentMetadata describes a verified gateway payment attached to an order.
type PaymentMetadata struct {
	ID                string
	Status            string
	StatusDetail      string
	Amount            decimal.Decimal
	Currency          string
	Installments      int
	PaymentType       string
	PaymentMethod     string
	AuthorizationCode string
	DateApproved      string
	ExternalReference string
}

// CreateRequest is one commit attempt. Key must stay the same across retries
// of the same logical purchase.
type CreateRequest struct {
	Key     string
	Draft   purchase.Draft
	Payment *PaymentMetadata
}

// ExternalReference is the payment's reference when present, else the key.
func (r CreateRequest) ExternalReference() string {
	if r.Payment != nil && r.Payment.ExternalReference != "" {
		return r.Payment.ExternalReference
	}
	return r.Key
}

// OrderRef identifies an order created upstream.
type OrderRef struct {
	ID       string          `json:"id"`
	PublicID string          `json:"number,omitempty"`
	Key      string          `json:"idempotencyKey"`
	Raw      json.RawMessage `json:"raw,omitempty"`
}

// CommittedEvent is the body of an order.committed message.
type CommittedEvent struct {
	OrderID           string          `json:"order_id"`
	OrderPublicID     string          `json:"order_public_id,omitempty"`
	IdempotencyKey    string          `json:"idempotency_key"`
	ExternalReference string          `json:"external_reference,omitempty"`
	PaymentID         string          `json:"payment_id,omitempty"`
	PaymentMethod     string          `json:"payment_method"`
	Total             decimal.Decimal `json:"total"`
}
