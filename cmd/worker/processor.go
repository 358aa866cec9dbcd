package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"

	"github.com/imrishuroy/storefront-checkout/internal/aws"
	"github.com/imrishuroy/storefront-checkout/internal/idempotency"
)

// Ledger is the part of the idempotency store the worker needs.
type Ledger interface {
	Get(ctx context.Context, key string) (*idempotency.IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, c idempotency.Completion) error
}

// Processor reconciles committed orders against the idempotency ledger.
type Processor struct {
	ledger  Ledger
	metrics aws.Counter
	log     zerolog.Logger
}

// NewProcessor creates a new worker processor.
func NewProcessor(ledger Ledger, metrics aws.Counter, log zerolog.Logger) *Processor {
	if metrics == nil {
		metrics = aws.NopCounter{}
	}
	return &Processor{ledger: ledger, metrics: metrics, log: log.With().Str("component", "reconciler").Logger()}
}

// Handle receives an SQS batch event and processes each message.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) error {
	p.log.Debug().Int("records", len(ev.Records)).Msg("received SQS batch")
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			// Return error: Lambda will retry. If failed too many times, message goes to DLQ.
			p.log.Error().Err(err).Str("message_id", rec.MessageId).Msg("reconcile failed")
			return err
		}
	}
	return nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var msg WorkerMessage
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
		p.metrics.Count(ctx, aws.MetricOrderReconciled, OutcomeError)
		return fmt.Errorf("invalid message body: %w", err)
	}
	if msg.IdempotencyKey == "" || msg.OrderID == "" {
		p.metrics.Count(ctx, aws.MetricOrderReconciled, OutcomeError)
		return fmt.Errorf("message %s lacks idempotency_key or order_id", rec.MessageId)
	}

	outcome, err := p.reconcile(ctx, msg)
	p.metrics.Count(ctx, aws.MetricOrderReconciled, outcome)
	return err
}

func (p *Processor) reconcile(ctx context.Context, msg WorkerMessage) (string, error) {
	log := p.log.With().
		Str("idempotency_key", msg.IdempotencyKey).
		Str("order_id", msg.OrderID).
		Str("external_reference", msg.ExternalReference).
		Logger()

	rec, err := p.ledger.Get(ctx, msg.IdempotencyKey)
	if err != nil {
		return OutcomeError, fmt.Errorf("failed to fetch ledger record: %w", err)
	}
	if rec == nil {
		return OutcomeMissing, fmt.Errorf("no ledger record for key %s", msg.IdempotencyKey)
	}

	switch rec.Status {
	case idempotency.StatusDone:
		return p.compare(log, msg, rec)

	case idempotency.StatusInProgress, idempotency.StatusFailed:
		// the commit succeeded upstream but its ledger write was lost
		err := p.ledger.MarkDone(ctx, msg.IdempotencyKey, completion(msg))
		if errors.Is(err, idempotency.ErrConditionFailed) {
			again, gerr := p.ledger.Get(ctx, msg.IdempotencyKey)
			if gerr != nil {
				return OutcomeError, fmt.Errorf("failed to re-read ledger record: %w", gerr)
			}
			if again == nil {
				return OutcomeMissing, fmt.Errorf("ledger record for key %s vanished", msg.IdempotencyKey)
			}
			return p.compare(log, msg, again)
		}
		if err != nil {
			return OutcomeError, fmt.Errorf("failed to finalize ledger record: %w", err)
		}
		log.Info().Str("previous_status", rec.Status).Msg("ledger record repaired")
		return OutcomeRepaired, nil
	}
	return OutcomeError, fmt.Errorf("unexpected ledger status for key %s: %s", msg.IdempotencyKey, rec.Status)
}

func (p *Processor) compare(log zerolog.Logger, msg WorkerMessage, rec *idempotency.IdempotencyRecord) (string, error) {
	if rec.OrderID == msg.OrderID {
		log.Debug().Msg("order already reconciled")
		return OutcomeConfirmed, nil
	}
	log.Error().Str("recorded_order_id", rec.OrderID).Msg("idempotency conflict")
	return OutcomeConflict, fmt.Errorf("idempotency key %s recorded order %s, event carries %s", msg.IdempotencyKey, rec.OrderID, msg.OrderID)
}

func completion(msg WorkerMessage) idempotency.Completion {
	body, _ := json.Marshal(map[string]string{"id": msg.OrderID, "number": msg.OrderPublicID, "idempotencyKey": msg.IdempotencyKey})
	return idempotency.Completion{
		OrderID:        msg.OrderID,
		OrderPublicID:  msg.OrderPublicID,
		ResponseBody:   string(body),
		ResponseStatus: http.StatusCreated,
	}
}
