package main

import "github.com/shopspring/decimal"

// WorkerMessage is the order.committed payload sent from API -> SQS -> Worker.
type WorkerMessage struct {
	OrderID           string          `json:"order_id"`
	OrderPublicID     string          `json:"order_public_id,omitempty"`
	IdempotencyKey    string          `json:"idempotency_key"`
	ExternalReference string          `json:"external_reference,omitempty"`
	PaymentID         string          `json:"payment_id,omitempty"`
	PaymentMethod     string          `json:"payment_method"`
	Total             decimal.Decimal `json:"total"`
}

// Reconciliation outcomes reported to metrics.
const (
	OutcomeConfirmed = "confirmed"
	OutcomeRepaired  = "repaired"
	OutcomeMissing   = "missing"
	OutcomeConflict  = "conflict"
	OutcomeError     = "error"
)
