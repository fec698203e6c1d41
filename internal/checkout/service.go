// Package checkout turns a cart into a committed order and a payment invoice.
package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-crypto-shop/internal/logging"
	"github.com/ariefcatur/go-crypto-shop/internal/metrics"
	"github.com/ariefcatur/go-crypto-shop/internal/orders"
	"go.uber.org/zap"
)

type Store interface {
	CreateOrderTx(ctx context.Context, userID int64, items []orders.ItemInput) (orders.Order, error)
	GetOrder(ctx context.Context, id string) (orders.Order, error)
	SaveInvoice(ctx context.Context, inv orders.Invoice) (orders.Invoice, error)
	LatestInvoice(ctx context.Context, orderID string) (orders.Invoice, error)
}

type Provisioner interface {
	Provision(ctx context.Context, o orders.Order) (orders.Invoice, error)
}

// ErrInvoiceUnavailable means the order is committed but has no invoice yet; the
// caller may retry with ResendInvoice.
var ErrInvoiceUnavailable = errors.New("invoice could not be provisioned")

type Service struct {
	Store   Store
	Gateway Provisioner
	Metrics *metrics.Metrics
}

type Placement struct {
	Order   orders.Order    `json:"order"`
	Invoice *orders.Invoice `json:"invoice,omitempty"`
}

// PlaceOrder commits the order (stock reserved in the same transaction) and only
// then calls the gateway. A gateway failure leaves the order pending and is
// returned together with the order.
func (s *Service) PlaceOrder(ctx context.Context, userID int64, items []orders.ItemInput) (Placement, error) {
	log := logging.FromContext(ctx)

	o, err := s.Store.CreateOrderTx(ctx, userID, items)
	if err != nil {
		result := metrics.ResultFailed
		if orders.IsValidation(err) || errors.Is(err, orders.ErrInsufficientStock) || errors.Is(err, orders.ErrUserNotFound) {
			result = metrics.ResultRejected
		}
		s.Metrics.OrderCreated(result)
		log.Info("order_rejected", zap.Int64("user_id", userID), zap.Error(err))
		return Placement{}, err
	}
	s.Metrics.OrderCreated(metrics.ResultOK)
	log.Info("order_created",
		zap.String("order_id", o.ID),
		zap.Int64("user_id", userID),
		zap.String("total", o.TotalPrice.StringFixed(2)),
		zap.Int("items", len(o.Items)))

	inv, err := s.provision(ctx, o)
	if err != nil {
		return Placement{Order: o}, err
	}
	return Placement{Order: o, Invoice: &inv}, nil
}

// ResendInvoice provisions a fresh invoice for a pending order. Stock is not
// touched; it was reserved when the order was committed.
func (s *Service) ResendInvoice(ctx context.Context, orderID string) (Placement, error) {
	o, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		return Placement{}, err
	}
	if o.Status != orders.OrderPending {
		return Placement{Order: o}, fmt.Errorf("%w: order is %s", orders.ErrInvalidTransition, o.Status)
	}
	inv, err := s.provision(ctx, o)
	if err != nil {
		return Placement{Order: o}, err
	}
	return Placement{Order: o, Invoice: &inv}, nil
}

// CurrentInvoice returns the newest invoice of an order, if any.
func (s *Service) CurrentInvoice(ctx context.Context, orderID string) (*orders.Invoice, error) {
	inv, err := s.Store.LatestInvoice(ctx, orderID)
	if errors.Is(err, orders.ErrInvoiceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (s *Service) provision(ctx context.Context, o orders.Order) (orders.Invoice, error) {
	log := logging.FromContext(ctx).With(zap.String("order_id", o.ID))

	inv, err := s.Gateway.Provision(ctx, o)
	if err != nil {
		s.Metrics.InvoiceProvisioned(metrics.ResultFailed)
		log.Warn("invoice_provision_failed", zap.Error(err))
		return orders.Invoice{}, fmt.Errorf("%w: %w", ErrInvoiceUnavailable, err)
	}
	saved, err := s.Store.SaveInvoice(ctx, inv)
	if err != nil {
		s.Metrics.InvoiceProvisioned(metrics.ResultFailed)
		log.Error("invoice_save_failed", zap.String("external_invoice_id", inv.ExternalID), zap.Error(err))
		return orders.Invoice{}, fmt.Errorf("%w: %w", ErrInvoiceUnavailable, err)
	}
	s.Metrics.InvoiceProvisioned(metrics.ResultOK)
	log.Info("invoice_provisioned",
		zap.String("external_invoice_id", saved.ExternalID),
		zap.String("currency", saved.Currency))
	return saved, nil
}
