// Package notify tells buyers and admins about paid and cancelled orders. The
// API side publishes events; cmd/notifier consumes and delivers them.
package notify

import (
	"context"
	"time"

	kafkax "github.com/ariefcatur/go-crypto-shop/internal/kafka"
	"github.com/ariefcatur/go-crypto-shop/internal/orders"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"
)

type Publisher interface {
	Publish(ctx context.Context, key, value []byte, headers ...kafka.Header) error
}

// KafkaDispatcher publishes order events to orders.TopicOrderEvents, keyed by
// order id.
type KafkaDispatcher struct {
	Pub      Publisher
	Producer string
	Now      func() time.Time
}

func NewKafkaDispatcher(pub Publisher, producer string) *KafkaDispatcher {
	return &KafkaDispatcher{Pub: pub, Producer: producer}
}

func (d *KafkaDispatcher) OrderPaid(ctx context.Context, n orders.Notice) error {
	return d.publish(ctx, orders.EventOrderPaid, n)
}

func (d *KafkaDispatcher) OrderCancelled(ctx context.Context, n orders.Notice) error {
	return d.publish(ctx, orders.EventOrderCancelled, n)
}

func (d *KafkaDispatcher) publish(ctx context.Context, eventType string, n orders.Notice) error {
	payload, err := kafkax.Marshal(n)
	if err != nil {
		return err
	}
	env := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    d.now(),
		Producer:      d.Producer,
		CorrelationID: n.OrderID,
		Payload:       payload,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		env.TraceID = sc.TraceID().String()
	}
	b, err := kafkax.Marshal(env)
	if err != nil {
		return err
	}
	return d.Pub.Publish(ctx, orders.PartitionKey(n.OrderID), b,
		kafka.Header{Key: "event_type", Value: []byte(eventType)})
}

func (d *KafkaDispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now().UTC()
}

// Direct delivers in-process. Used when no broker is configured.
type Direct struct {
	Deliverer *Deliverer
}

func (d Direct) OrderPaid(ctx context.Context, n orders.Notice) error {
	return d.Deliverer.Deliver(ctx, orders.EventOrderPaid, n)
}

func (d Direct) OrderCancelled(ctx context.Context, n orders.Notice) error {
	return d.Deliverer.Deliver(ctx, orders.EventOrderCancelled, n)
}
