package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/imrishuroy/storefront-checkout/internal/apperrors"
	"github.com/imrishuroy/storefront-checkout/internal/aws"
	"github.com/imrishuroy/storefront-checkout/internal/idempotency"
)

// Platform creates one order upstream, honoring key for deduplication.
type Platform interface {
	CreateOrder(ctx context.Context, key string, payload Payload) (*OrderRef, error)
}

// Ledger records commit attempts by idempotency key.
type Ledger interface {
	CreateIfNotExists(ctx context.Context, key, externalReference string) (bool, error)
	Get(ctx context.Context, key string) (*idempotency.IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, c idempotency.Completion) error
	MarkFailed(ctx context.Context, key, note string) error
}

// EventPublisher fans out committed orders.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload any, attributes map[string]string) error
}

// ConflictError means the ledger already holds a different order for the key.
type ConflictError struct {
	Key      string
	Recorded string
	Returned string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("idempotency key %s already committed as order %s, platform returned %s", e.Key, e.Recorded, e.Returned)
}

// ErrorKind implements apperrors.Kinded.
func (e *ConflictError) ErrorKind() apperrors.Kind { return apperrors.KindIdempotencyConflict }

// Commit outcomes reported to metrics.
const (
	OutcomeCreated    = "created"
	OutcomeValidation = "validation"
	OutcomeUpstream   = "upstream"
	OutcomeConflict   = "conflict"
)

// Committer creates orders exactly once per key, as far as the platform
// honors the key. It never deduplicates on its own.
type Committer struct {
	platform Platform
	ledger   Ledger
	events   EventPublisher
	metrics  aws.Counter
	log      zerolog.Logger
}

type Option func(*Committer)

func WithLedger(l Ledger) Option { return func(c *Committer) { c.ledger = l } }

func WithEvents(p EventPublisher) Option { return func(c *Committer) { c.events = p } }

func WithMetrics(m aws.Counter) Option { return func(c *Committer) { c.metrics = m } }

func WithLogger(l zerolog.Logger) Option { return func(c *Committer) { c.log = l } }

func NewCommitter(p Platform, opts ...Option) *Committer {
	c := &Committer{platform: p, metrics: aws.NopCounter{}, log: zerolog.Nop()}
	for _, o := range opts {
		o(c)
	}
	c.log = c.log.With().Str("component", "order_committer").Logger()
	return c
}

// Create validates req, then commits it upstream with req.Key.
func (c *Committer) Create(ctx context.Context, req CreateRequest) (*OrderRef, error) {
	payload, err := BuildPayload(req)
	if err != nil {
		c.metrics.Count(ctx, aws.MetricOrderCommit, OutcomeValidation)
		return nil, err
	}

	log := c.log.With().
		Str("idempotency_key", req.Key).
		Str("external_reference", req.ExternalReference()).
		Logger()

	tracked := c.begin(ctx, log, req)

	ref, err := c.platform.CreateOrder(ctx, req.Key, payload)
	if err != nil {
		log.Error().Err(err).Str("kind", apperrors.KindOf(err).String()).Msg("order creation failed")
		if tracked {
			if ferr := c.ledger.MarkFailed(ctx, req.Key, err.Error()); ferr != nil {
				log.Warn().Err(ferr).Msg("ledger mark failed")
			}
		}
		c.metrics.Count(ctx, aws.MetricOrderCommit, OutcomeUpstream)
		return nil, err
	}

	if tracked {
		if err := c.finish(ctx, req.Key, ref); err != nil {
			var conflict *ConflictError
			if errors.As(err, &conflict) {
				log.Error().Err(err).Str("order_id", ref.ID).Msg("idempotency conflict")
				c.metrics.Count(ctx, aws.MetricOrderCommit, OutcomeConflict)
				return nil, err
			}
			log.Warn().Err(err).Str("order_id", ref.ID).Msg("ledger finalize failed")
		}
	}

	c.publish(ctx, log, req, ref)
	c.metrics.Count(ctx, aws.MetricOrderCommit, OutcomeCreated)
	log.Info().Str("order_id", ref.ID).Str("order_public_id", ref.PublicID).Msg("order committed")
	return ref, nil
}

// begin opens the ledger entry. It reports whether the ledger is usable for
// this commit; an outage is logged and the commit continues.
func (c *Committer) begin(ctx context.Context, log zerolog.Logger, req CreateRequest) bool {
	if c.ledger == nil {
		return false
	}
	created, err := c.ledger.CreateIfNotExists(ctx, req.Key, req.ExternalReference())
	if err != nil {
		log.Warn().Err(err).Msg("ledger unavailable, committing without it")
		return false
	}
	if !created {
		log.Info().Msg("retrying known idempotency key")
	}
	return true
}

func (c *Committer) finish(ctx context.Context, key string, ref *OrderRef) error {
	body, _ := json.Marshal(ref)
	err := c.ledger.MarkDone(ctx, key, idempotency.Completion{
		OrderID:        ref.ID,
		OrderPublicID:  ref.PublicID,
		ResponseBody:   string(body),
		ResponseStatus: http.StatusCreated,
	})
	if !errors.Is(err, idempotency.ErrConditionFailed) {
		return err
	}
	rec, gerr := c.ledger.Get(ctx, key)
	if gerr != nil {
		return fmt.Errorf("%w (lookup: %v)", err, gerr)
	}
	if rec != nil && rec.OrderID != "" && rec.OrderID != ref.ID {
		return &ConflictError{Key: key, Recorded: rec.OrderID, Returned: ref.ID}
	}
	return err
}

func (c *Committer) publish(ctx context.Context, log zerolog.Logger, req CreateRequest, ref *OrderRef) {
	if c.events == nil {
		return
	}
	ev := CommittedEvent{
		OrderID:           ref.ID,
		OrderPublicID:     ref.PublicID,
		IdempotencyKey:    req.Key,
		ExternalReference: req.ExternalReference(),
		PaymentMethod:     string(req.Draft.PaymentMethod),
		Total:             req.Draft.Total(),
	}
	if req.Payment != nil {
		ev.PaymentID = req.Payment.ID
	}
	attrs := map[string]string{"idempotency_key": req.Key, "order_id": ref.ID}
	if err := c.events.Publish(ctx, EventOrderCommitted, ev, attrs); err != nil {
		log.Warn().Err(err).Str("order_id", ref.ID).Msg("publish order.committed failed")
	}
}
