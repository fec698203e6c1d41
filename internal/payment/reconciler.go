// Package payment applies the payment gateway's asynchronous invoice reports to
// the order ledger.
package payment

import (
	"context"
	"errors"
	"time"

	"github.com/ariefcatur/go-crypto-shop/internal/gateway"
	"github.com/ariefcatur/go-crypto-shop/internal/logging"
	"github.com/ariefcatur/go-crypto-shop/internal/metrics"
	"github.com/ariefcatur/go-crypto-shop/internal/orders"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const tracerName = "github.com/ariefcatur/go-crypto-shop/internal/payment"

type Store interface {
	ApplyInvoiceStatus(ctx context.Context, externalID string, in orders.InvoiceStatus, at time.Time) (orders.PaymentOutcome, error)
}

type Verifier interface {
	Verify(fields map[string]string, signature string) error
}

// Dispatcher is told about terminal order transitions. Errors are logged by the
// caller and never undo payment state.
type Dispatcher interface {
	OrderPaid(ctx context.Context, n orders.Notice) error
	OrderCancelled(ctx context.Context, n orders.Notice) error
}

type Invalidator interface {
	Invalidate(ctx context.Context, entity, id, event string)
}

type Result string

const (
	Accepted     Result = "accepted"
	AcceptedNoop Result = "noop"
)

type Reconciler struct {
	Verifier   Verifier
	Store      Store
	Dispatcher Dispatcher
	Cache      Invalidator // optional
	Metrics    *metrics.Metrics
	Now        func() time.Time
}

// Reconcile authenticates one callback and applies it. signature is the value of
// the signature header; when empty the signature field of the payload is used.
// Nothing is read from or written to the store before authentication succeeds.
func (r *Reconciler) Reconcile(ctx context.Context, raw []byte, contentType, signature string) (res Result, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "payment.Reconcile")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.String("result", string(res)))
		span.End()
	}()
	log := logging.FromContext(ctx)

	cb, err := gateway.ParseCallback(raw, contentType)
	if err != nil {
		r.Metrics.Webhook(metrics.WebhookMalformed)
		log.Warn("webhook_malformed", zap.Error(err))
		return "", err
	}
	log = log.With(zap.String("external_invoice_id", cb.InvoiceID))
	span.SetAttributes(attribute.String("invoice.external_id", cb.InvoiceID))

	if signature == "" {
		signature = cb.Signature
	}
	if err := r.Verifier.Verify(cb.Fields, signature); err != nil {
		r.Metrics.Webhook(metrics.WebhookBadSignature)
		log.Warn("webhook_rejected", zap.String("reason", "signature"))
		return "", err
	}

	status, err := gateway.MapStatus(cb.Status)
	if err != nil {
		r.Metrics.Webhook(metrics.WebhookMalformed)
		log.Warn("webhook_unknown_status", zap.String("status", cb.Status))
		return "", err
	}

	out, err := r.Store.ApplyInvoiceStatus(ctx, cb.InvoiceID, status, r.now())
	if errors.Is(err, orders.ErrInvoiceNotFound) {
		r.Metrics.Webhook(metrics.WebhookUnknown)
		log.Info("webhook_unknown_invoice")
		return "", err
	}
	if err != nil {
		r.Metrics.Webhook(metrics.WebhookFailed)
		log.Error("webhook_apply_failed", zap.Error(err))
		return "", err
	}

	log = log.With(
		zap.String("order_id", out.Invoice.OrderID),
		zap.String("from", string(out.Previous)),
		zap.String("reported", string(status)))
	if !out.Changed {
		r.Metrics.Webhook(metrics.WebhookNoop)
		log.Debug("webhook_noop")
		return AcceptedNoop, nil
	}

	r.Metrics.Webhook(metrics.WebhookAccepted)
	log.Info("invoice_status_changed", zap.String("to", string(out.Invoice.Status)))
	if r.Cache != nil {
		r.Cache.Invalidate(ctx, "order", out.Invoice.OrderID, "update")
	}

	if out.OrderNotPending {
		log.Warn("payment_for_inactive_order", zap.String("order_status", string(out.Order.Status)))
	}
	if out.Paid {
		r.Metrics.Granted(out.Granted)
		log.Info("order_paid", zap.Int64("user_id", out.Order.UserID), zap.Int("grants", out.Granted))
		r.notifyPaid(ctx, out)
	}
	return Accepted, nil
}

func (r *Reconciler) notifyPaid(ctx context.Context, out orders.PaymentOutcome) {
	if r.Dispatcher == nil {
		return
	}
	inv := out.Invoice
	// payment is committed; the caller going away must not drop the notice
	err := r.Dispatcher.OrderPaid(context.WithoutCancel(ctx), orders.NoticeFor(out.Order, &inv))
	if err != nil {
		r.Metrics.Notification(metrics.ResultFailed)
		logging.FromContext(ctx).Error("notify_paid_failed", zap.String("order_id", out.Order.ID), zap.Error(err))
		return
	}
	r.Metrics.Notification(metrics.ResultOK)
}

func (r *Reconciler) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now().UTC()
}
