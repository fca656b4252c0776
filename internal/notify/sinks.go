// Package notify delivers order events: to SQS for the worker, to CloudWatch as
// counters, to the log, and by email from the worker.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-phone-storefront/internal/aws"
	"github.com/imrishuroy/go-phone-storefront/internal/orders"
)

// SQSSink publishes events as JSON to the order events queue.
type SQSSink struct {
	publisher *aws.Publisher
}

// NewSQSSink returns a sink over publisher.
func NewSQSSink(publisher *aws.Publisher) *SQSSink {
	return &SQSSink{publisher: publisher}
}

func (s *SQSSink) Notify(ctx context.Context, ev orders.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return s.publisher.Publish(ctx, aws.Message{
		Body: string(body),
		Attributes: map[string]string{
			"event_type": string(ev.Type),
			"order_id":   ev.OrderID,
		},
		// one group per order keeps an order's events in sequence on FIFO queues
		GroupID: ev.OrderID,
		DedupID: ev.EventID,
	})
}

// MetricsSink counts events per type in CloudWatch.
type MetricsSink struct {
	client    aws.CloudWatchAPI
	namespace string
}

// NewMetricsSink returns a sink writing to namespace.
func NewMetricsSink(client aws.CloudWatchAPI, namespace string) *MetricsSink {
	return &MetricsSink{client: client, namespace: namespace}
}

func (s *MetricsSink) Notify(ctx context.Context, ev orders.Event) error {
	datum := cwtypes.MetricDatum{
		MetricName: aws.String("OrderEvents"),
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String("EventType"), Value: aws.String(string(ev.Type))},
		},
		Unit:  cwtypes.StandardUnitCount,
		Value: floatPtr(1),
	}
	if !ev.OccurredAt.IsZero() {
		datum.Timestamp = &ev.OccurredAt
	}
	_, err := s.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(s.namespace),
		MetricData: []cwtypes.MetricDatum{datum},
	})
	if err != nil {
		return fmt.Errorf("put metric data: %w", err)
	}
	return nil
}

func floatPtr(f float64) *float64 { return &f }

// LogSink writes events to a zap logger.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink returns a sink over logger.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Notify(_ context.Context, ev orders.Event) error {
	s.logger.Info("order event",
		zap.String("event_id", ev.EventID),
		zap.String("event", string(ev.Type)),
		zap.String("order_id", ev.OrderID),
		zap.String("reason", ev.Reason))
	return nil
}

// Fanout sends every event to all sinks, even when some of them fail.
type Fanout []orders.Notifier

func (f Fanout) Notify(ctx context.Context, ev orders.Event) error {
	var errs []error
	for _, n := range f {
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ orders.Notifier = (*SQSSink)(nil)
	_ orders.Notifier = (*MetricsSink)(nil)
	_ orders.Notifier = (*LogSink)(nil)
	_ orders.Notifier = Fanout(nil)
)
