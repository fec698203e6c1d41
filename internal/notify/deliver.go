package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-crypto-shop/internal/config"
	"github.com/ariefcatur/go-crypto-shop/internal/metrics"
	"github.com/ariefcatur/go-crypto-shop/internal/orders"
)

var ErrUnknownEvent = errors.New("unknown event type")

type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Deliverer renders one event into a buyer message plus one alert per admin.
type Deliverer struct {
	Sender  Sender
	Admins  config.AllowList
	Metrics *metrics.Metrics
}

// Deliver attempts every recipient and returns the joined send errors.
func (d *Deliverer) Deliver(ctx context.Context, eventType string, n orders.Notice) error {
	var user, admin string
	switch eventType {
	case orders.EventOrderPaid:
		user, admin = PaidUserMessage(n), PaidAdminMessage(n)
	case orders.EventOrderCancelled:
		user, admin = CancelledUserMessage(n), CancelledAdminMessage(n)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownEvent, eventType)
	}

	var errs []error
	if err := d.send(ctx, n.UserID, user); err != nil {
		errs = append(errs, fmt.Errorf("user %d: %w", n.UserID, err))
	}
	for _, id := range d.Admins.IDs() {
		if err := d.send(ctx, id, admin); err != nil {
			errs = append(errs, fmt.Errorf("admin %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func (d *Deliverer) send(ctx context.Context, chatID int64, text string) error {
	if err := d.Sender.Send(ctx, chatID, text); err != nil {
		d.Metrics.Notification(metrics.ResultFailed)
		return err
	}
	d.Metrics.Notification(metrics.ResultOK)
	return nil
}
