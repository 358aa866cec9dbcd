package idempotency

import "time"

// Status values for ledger entries
const (
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
	StatusFailed     = "FAILED"
)

// IdempotencyRecord is the shape persisted in the idempotency DynamoDB table.
// The key is the external reference of a purchase or the gateway payment id.
type IdempotencyRecord struct {
	IdempotencyKey    string    `dynamodbav:"idempotency_key"` // PK
	Status            string    `dynamodbav:"status"`
	OrderID           string    `dynamodbav:"order_id,omitempty"`
	OrderPublicID     string    `dynamodbav:"order_public_id,omitempty"`
	ExternalReference string    `dynamodbav:"external_reference,omitempty"`
	ResponseBody      string    `dynamodbav:"response_body,omitempty"` // small responses only
	ResponseStatus    int       `dynamodbav:"response_status,omitempty"`
	CreatedAt         time.Time `dynamodbav:"created_at"`
	UpdatedAt         time.Time `dynamodbav:"updated_at"`
	ExpiresAt         int64     `dynamodbav:"expires_at"` // TTL epoch seconds
	Note              string    `dynamodbav:"note,omitempty"`
}

// Completion is what MarkDone records for a committed order.
type Completion struct {
	OrderID        string
	OrderPublicID  string
	ResponseBody   string
	ResponseStatus int
}
