package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-phone-storefront/internal/idempotency"
	"github.com/imrishuroy/go-phone-storefront/internal/orders"
)

// Processor delivers order events from SQS to customers, at most once per event id.
type Processor struct {
	idempStore *idempotency.Store
	deliver    orders.Notifier
	logger     *zap.Logger
}

// NewProcessor creates a worker processor.
func NewProcessor(idempStore *idempotency.Store, deliver orders.Notifier, logger *zap.Logger) *Processor {
	return &Processor{
		idempStore: idempStore,
		deliver:    deliver,
		logger:     logger,
	}
}

// Handle processes a batch and reports the messages that should be retried.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			p.logger.Error("worker error", zap.String("message_id", rec.MessageId), zap.Error(err))
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}
	}
	return resp, nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var ev orders.Event
	if err := json.Unmarshal([]byte(rec.Body), &ev); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}
	if ev.EventID == "" || ev.OrderID == "" {
		return fmt.Errorf("event without id: %s", rec.Body)
	}
	log := p.logger.With(
		zap.String("event_id", ev.EventID),
		zap.String("event", string(ev.Type)),
		zap.String("order_id", ev.OrderID))

	// Step 1: claim the event; SQS delivers at least once
	key := idempotency.ScopedKey(idempotency.ScopeEvent, ev.EventID)
	created, err := p.idempStore.CreateIfNotExists(ctx, key, ev.OrderID)
	if err != nil {
		return fmt.Errorf("claim event: %w", err)
	}
	if !created {
		existing, err := p.idempStore.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("read claim: %w", err)
		}
		status := ""
		if existing != nil {
			status = existing.Status
		}
		log.Info("duplicate delivery skipped", zap.String("claim_status", status))
		return nil
	}

	// Step 2: deliver
	if err := p.deliver.Notify(ctx, ev); err != nil {
		if mfErr := p.idempStore.MarkFailed(ctx, key, err.Error()); mfErr != nil {
			log.Warn("could not release claim", zap.Error(mfErr))
		}
		return fmt.Errorf("deliver: %w", err)
	}

	// Step 3: remember the delivery
	if err := p.idempStore.MarkDone(ctx, key, `{"delivered":true}`, 200); err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	log.Info("event delivered")
	return nil
}
