package notify

import (
	"context"

	kafkax "github.com/ariefcatur/go-crypto-shop/internal/kafka"
	"github.com/ariefcatur/go-crypto-shop/internal/logging"
	"github.com/ariefcatur/go-crypto-shop/internal/orders"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Deduper interface {
	First(ctx context.Context, id string) (bool, error)
}

// Handler consumes order.events. Delivery is at most once: every outcome except
// a failed dedup check lets the offset be committed.
type Handler struct {
	Deliverer *Deliverer
	Dedup     Deduper
}

func (h *Handler) Handle(ctx context.Context, m kafka.Message) error {
	log := logging.FromContext(ctx).With(zap.Int64("offset", m.Offset))

	env, err := kafkax.DecodeEnvelope(m.Value)
	if err != nil {
		log.Warn("event_discarded", zap.Error(err))
		return nil
	}
	log = log.With(zap.String("event_id", env.EventID), zap.String("event_type", env.EventType),
		zap.String("order_id", env.CorrelationID))

	if env.EventType != orders.EventOrderPaid && env.EventType != orders.EventOrderCancelled {
		log.Debug("event_ignored")
		return nil
	}
	n, err := kafkax.UnwrapPayload[orders.Notice](env.Payload)
	if err != nil {
		log.Warn("event_discarded", zap.Error(err))
		return nil
	}

	if h.Dedup != nil {
		first, err := h.Dedup.First(ctx, env.EventID)
		if err != nil {
			return err
		}
		if !first {
			log.Info("event_duplicate")
			return nil
		}
	}

	if err := h.Deliverer.Deliver(logging.WithContext(ctx, log), env.EventType, n); err != nil {
		log.Error("notification_delivery_failed", zap.Error(err))
		return nil
	}
	log.Info("notification_delivered")
	return nil
}
