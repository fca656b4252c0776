package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-phone-storefront/internal/aws"
	"github.com/imrishuroy/go-phone-storefront/internal/config"
	"github.com/imrishuroy/go-phone-storefront/internal/idempotency"
	"github.com/imrishuroy/go-phone-storefront/internal/logger"
	"github.com/imrishuroy/go-phone-storefront/internal/notify"
	"github.com/imrishuroy/go-phone-storefront/internal/orders"
)

const localSampleEvent = `{"event_id":"local-evt-1","type":"order_confirmed","order_id":"local-order-1","full_name":"Local Tester","total_price":22030000}`

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	lg := logger.MustNew(cfg.Stage, cfg.LogLevel)
	defer func() { _ = lg.Sync() }()

	clients, err := aws.NewAWSClients(context.Background(), cfg.AWS())
	if err != nil {
		lg.Fatal("failed to init aws clients", zap.Error(err))
	}

	var deliver orders.Notifier = notify.NewLogSink(lg)
	if cfg.ResendAPIKey != "" {
		deliver = notify.NewMailer(cfg.ResendAPIKey, cfg.EmailFrom, cfg.EmailFromName, lg)
	} else {
		lg.Warn("RESEND_API_KEY not set, order emails are only logged")
	}

	p := NewProcessor(idempotency.NewStore(clients.DynamoDB, cfg.IdempotencyTable, cfg.IdempotencyTTL), deliver, lg)

	// If RUN_LOCAL=true, process a single simulated SQS event and exit.
	if cfg.RunLocal {
		body := os.Getenv("LOCAL_SQS_BODY")
		if body == "" {
			body = localSampleEvent
		}
		resp, err := p.Handle(context.Background(), events.SQSEvent{
			Records: []events.SQSMessage{{MessageId: "local-1", Body: body}},
		})
		if err != nil || len(resp.BatchItemFailures) > 0 {
			lg.Fatal("local handler failed", zap.Error(err), zap.Int("failures", len(resp.BatchItemFailures)))
		}
		return
	}

	lambda.Start(p.Handle)
}
