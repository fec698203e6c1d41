// Package admin holds the catalogue and order operations restricted to the
// allow-listed operators. Both the HTTP admin routes and shopctl go through it.
package admin

import (
	"context"

	"github.com/ariefcatur/go-crypto-shop/internal/logging"
	"github.com/ariefcatur/go-crypto-shop/internal/orders"
	"github.com/ariefcatur/go-crypto-shop/internal/redisx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Store interface {
	CreateProduct(ctx context.Context, p orders.Product) (orders.Product, error)
	UpdatePrice(ctx context.Context, id string, price decimal.Decimal) (orders.Product, error)
	Restock(ctx context.Context, id string, qty int) (orders.Product, error)
	DeactivateProduct(ctx context.Context, id string) error
	CancelOrder(ctx context.Context, id string) (orders.Order, error)
	RefundOrder(ctx context.Context, id string) (orders.Order, error)
}

type Invalidator interface {
	Invalidate(ctx context.Context, entity, id, event string)
}

type CancelNotifier interface {
	OrderCancelled(ctx context.Context, n orders.Notice) error
}

type Service struct {
	Store    Store
	Cache    Invalidator    // optional
	Notifier CancelNotifier // optional
}

func (s *Service) CreateProduct(ctx context.Context, p orders.Product) (orders.Product, error) {
	p, err := s.Store.CreateProduct(ctx, p)
	if err != nil {
		return p, err
	}
	s.invalidate(ctx, redisx.EntityProduct, p.ID, redisx.EventCreate)
	logging.FromContext(ctx).Info("product_created", zap.String("product_id", p.ID), zap.String("price", p.Price.StringFixed(2)))
	return p, nil
}

// UpdatePrice only affects future orders; items keep their own unit price.
func (s *Service) UpdatePrice(ctx context.Context, id string, price decimal.Decimal) (orders.Product, error) {
	p, err := s.Store.UpdatePrice(ctx, id, price)
	if err != nil {
		return p, err
	}
	s.invalidate(ctx, redisx.EntityProduct, id, redisx.EventUpdate)
	logging.FromContext(ctx).Info("product_price_changed", zap.String("product_id", id), zap.String("price", price.StringFixed(2)))
	return p, nil
}

func (s *Service) Restock(ctx context.Context, id string, qty int) (orders.Product, error) {
	p, err := s.Store.Restock(ctx, id, qty)
	if err != nil {
		return p, err
	}
	s.invalidate(ctx, redisx.EntityProduct, id, redisx.EventUpdate)
	logging.FromContext(ctx).Info("product_restocked", zap.String("product_id", id), zap.Int("added", qty), zap.Int("stock", p.Stock))
	return p, nil
}

func (s *Service) DeactivateProduct(ctx context.Context, id string) error {
	if err := s.Store.DeactivateProduct(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, redisx.EntityProduct, id, redisx.EventDelete)
	logging.FromContext(ctx).Info("product_deactivated", zap.String("product_id", id))
	return nil
}

// CancelOrder cancels a pending order, releases its stock and tells the buyer.
// A failed notification is logged only.
func (s *Service) CancelOrder(ctx context.Context, id string) (orders.Order, error) {
	o, err := s.Store.CancelOrder(ctx, id)
	if err != nil {
		return o, err
	}
	s.invalidate(ctx, redisx.EntityOrder, id, redisx.EventUpdate)
	s.invalidate(ctx, redisx.EntityProduct, "", redisx.EventUpdate)
	log := logging.FromContext(ctx).With(zap.String("order_id", id))
	log.Info("order_cancelled", zap.Int("items", len(o.Items)))
	if s.Notifier != nil {
		if err := s.Notifier.OrderCancelled(context.WithoutCancel(ctx), orders.NoticeFor(o, nil)); err != nil {
			log.Error("notify_cancelled_failed", zap.Error(err))
		}
	}
	return o, nil
}

// RefundOrder marks a paid order refunded. Grants and stock stay as they are.
func (s *Service) RefundOrder(ctx context.Context, id string) (orders.Order, error) {
	o, err := s.Store.RefundOrder(ctx, id)
	if err != nil {
		return o, err
	}
	s.invalidate(ctx, redisx.EntityOrder, id, redisx.EventUpdate)
	logging.FromContext(ctx).Info("order_refunded", zap.String("order_id", id))
	return o, nil
}

func (s *Service) invalidate(ctx context.Context, entity, id, event string) {
	if s.Cache != nil {
		s.Cache.Invalidate(ctx, entity, id, event)
	}
}
