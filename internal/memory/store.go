// Package memory is a process-local store with the same observable semantics as
// the Postgres repository. One mutex plays the role of the row locks, so every
// method is atomic. Used for local runs (STORE_DRIVER=memory) and service tests.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ariefcatur/go-crypto-shop/internal/inventory"
	"github.com/ariefcatur/go-crypto-shop/internal/orders"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type grantKey struct {
	userID           int64
	productID, order string
}

type Store struct {
	mu       sync.Mutex
	now      func() time.Time
	users    map[int64]orders.User
	products map[string]orders.Product
	orders   map[string]orders.Order
	invoices map[string]orders.Invoice // by id
	byExt    map[string]string         // external id -> invoice id
	grants   map[grantKey]orders.Grant
	seq      int // insertion order for invoices
	invSeq   map[string]int
}

func NewStore() *Store {
	return &Store{
		now:      func() time.Time { return time.Now().UTC() },
		users:    map[int64]orders.User{},
		products: map[string]orders.Product{},
		orders:   map[string]orders.Order{},
		invoices: map[string]orders.Invoice{},
		byExt:    map[string]string{},
		grants:   map[grantKey]orders.Grant{},
		invSeq:   map[string]int{},
	}
}

func (s *Store) UpsertUser(_ context.Context, u orders.User) (orders.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.users[u.ID]; ok {
		old.Username = u.Username
		s.users[u.ID] = old
		return old, nil
	}
	u.CreatedAt = s.now()
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) ListProducts(_ context.Context) ([]orders.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]orders.Product, 0, len(s.products))
	for _, p := range s.products {
		if p.Active {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b orders.Product) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (orders.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return p, fmt.Errorf("%w: %s", orders.ErrProductNotFound, id)
	}
	return p, nil
}

func (s *Store) CreateOrderTx(_ context.Context, userID int64, items []orders.ItemInput) (orders.Order, error) {
	lines, err := orders.NormalizeItems(items)
	if err != nil {
		return orders.Order{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return orders.Order{}, fmt.Errorf("%w: %d", orders.ErrUserNotFound, userID)
	}
	for _, ln := range lines {
		if p, ok := s.products[ln.ProductID]; !ok || !p.Active {
			return orders.Order{}, fmt.Errorf("%w: %s", orders.ErrProductNotFound, ln.ProductID)
		}
	}
	// cek semua dulu, baru tulis: all-or-nothing tanpa rollback
	for _, ln := range lines {
		p := s.products[ln.ProductID]
		if p.Stock < ln.Qty {
			return orders.Order{}, &inventory.InsufficientStockError{ProductID: p.ID, Requested: ln.Qty, Available: p.Stock}
		}
	}

	now := s.now()
	o := orders.Order{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    orders.OrderPending,
		Items:     make([]orders.OrderItem, 0, len(lines)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, ln := range lines {
		p := s.products[ln.ProductID]
		p.Stock -= ln.Qty
		p.UpdatedAt = now
		s.products[p.ID] = p
		o.Items = append(o.Items, orders.OrderItem{
			ID:          uuid.NewString(),
			OrderID:     o.ID,
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    ln.Qty,
			UnitPrice:   p.Price,
			LineTotal:   orders.LineTotal(p.Price, ln.Qty),
		})
	}
	o.TotalPrice = orders.SumItems(o.Items)
	s.orders[o.ID] = o
	return cloneOrder(o), nil
}

func (s *Store) GetOrder(_ context.Context, id string) (orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return o, fmt.Errorf("%w: %s", orders.ErrOrderNotFound, id)
	}
	return cloneOrder(o), nil
}

func (s *Store) SaveInvoice(_ context.Context, inv orders.Invoice) (orders.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[inv.OrderID]; !ok {
		return inv, fmt.Errorf("%w: %s", orders.ErrOrderNotFound, inv.OrderID)
	}
	if _, dup := s.byExt[inv.ExternalID]; dup {
		return inv, fmt.Errorf("duplicate external invoice id %s", inv.ExternalID)
	}
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	if inv.Status == "" {
		inv.Status = orders.InvoiceNew
	}
	inv.CreatedAt = s.now()
	s.seq++
	s.invSeq[inv.ID] = s.seq
	s.invoices[inv.ID] = inv
	s.byExt[inv.ExternalID] = inv.ID
	return inv, nil
}

func (s *Store) LatestInvoice(_ context.Context, orderID string) (orders.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		best    orders.Invoice
		bestSeq int
	)
	for id, inv := range s.invoices {
		if inv.OrderID == orderID && s.invSeq[id] > bestSeq {
			best, bestSeq = inv, s.invSeq[id]
		}
	}
	if bestSeq == 0 {
		return best, fmt.Errorf("%w: order %s", orders.ErrInvoiceNotFound, orderID)
	}
	return best, nil
}

func (s *Store) InvoiceByExternalID(_ context.Context, externalID string) (orders.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byExt[externalID]
	if !ok {
		return orders.Invoice{}, fmt.Errorf("%w: %s", orders.ErrInvoiceNotFound, externalID)
	}
	return s.invoices[id], nil
}

func (s *Store) ApplyInvoiceStatus(_ context.Context, externalID string, in orders.InvoiceStatus, at time.Time) (orders.PaymentOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out orders.PaymentOutcome
	id, ok := s.byExt[externalID]
	if !ok {
		return out, fmt.Errorf("%w: %s", orders.ErrInvoiceNotFound, externalID)
	}
	inv := s.invoices[id]
	out.Previous = inv.Status
	out.Invoice = inv

	next, changed, paidNow := orders.NextInvoiceStatus(inv.Status, in)
	if !changed {
		return out, nil
	}
	inv.Status = next
	if paidNow {
		paid := at
		inv.PaidAt = &paid
	}
	s.invoices[id] = inv
	out.Invoice = inv
	out.Changed = true

	if !paidNow {
		return out, nil
	}
	o := s.orders[inv.OrderID]
	if o.Status != orders.OrderPending {
		out.OrderNotPending = true
		out.Order = cloneOrder(o)
		return out, nil
	}
	o.Status = orders.OrderPaid
	o.UpdatedAt = s.now()
	s.orders[o.ID] = o
	for _, it := range o.Items {
		k := grantKey{userID: o.UserID, productID: it.ProductID, order: o.ID}
		if _, exists := s.grants[k]; exists {
			continue
		}
		s.grants[k] = orders.Grant{UserID: o.UserID, ProductID: it.ProductID, OrderID: o.ID, GrantedAt: s.now()}
		out.Granted++
	}
	out.Paid = true
	out.Order = cloneOrder(o)
	return out, nil
}

func (s *Store) ListGrants(_ context.Context, userID int64) ([]orders.Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []orders.Grant
	for _, g := range s.grants {
		if g.UserID == userID {
			out = append(out, g)
		}
	}
	slices.SortFunc(out, func(a, b orders.Grant) int {
		return cmp.Or(a.GrantedAt.Compare(b.GrantedAt), cmp.Compare(a.ProductID, b.ProductID))
	})
	return out, nil
}

func (s *Store) CreateProduct(_ context.Context, p orders.Product) (orders.Product, error) {
	if p.Price.IsNegative() {
		return p, orders.ErrInvalidPrice
	}
	if p.Stock < 0 {
		return p, orders.ErrInvalidQuantity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.Active = true
	p.CreatedAt = s.now()
	p.UpdatedAt = p.CreatedAt
	s.products[p.ID] = p
	return p, nil
}

func (s *Store) UpdatePrice(_ context.Context, id string, price decimal.Decimal) (orders.Product, error) {
	if price.IsNegative() {
		return orders.Product{}, orders.ErrInvalidPrice
	}
	return s.mutateProduct(id, func(p *orders.Product) error {
		p.Price = price
		return nil
	})
}

func (s *Store) Restock(_ context.Context, id string, qty int) (orders.Product, error) {
	return s.mutateProduct(id, func(p *orders.Product) error {
		if qty <= 0 {
			return fmt.Errorf("%w: product %s", orders.ErrInvalidQuantity, id)
		}
		p.Stock += qty
		return nil
	})
}

func (s *Store) DeactivateProduct(_ context.Context, id string) error {
	_, err := s.mutateProduct(id, func(p *orders.Product) error {
		p.Active = false
		return nil
	})
	return err
}

func (s *Store) mutateProduct(id string, fn func(*orders.Product) error) (orders.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return p, fmt.Errorf("%w: %s", orders.ErrProductNotFound, id)
	}
	if err := fn(&p); err != nil {
		return orders.Product{}, err
	}
	p.UpdatedAt = s.now()
	s.products[id] = p
	return p, nil
}

func (s *Store) CancelOrder(_ context.Context, id string) (orders.Order, error) {
	return s.setOrderStatus(id, orders.OrderCancelled, true)
}

func (s *Store) RefundOrder(_ context.Context, id string) (orders.Order, error) {
	return s.setOrderStatus(id, orders.OrderRefunded, false)
}

func (s *Store) setOrderStatus(id string, to orders.OrderStatus, release bool) (orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return o, fmt.Errorf("%w: %s", orders.ErrOrderNotFound, id)
	}
	if !orders.CanTransition(o.Status, to) {
		return orders.Order{}, fmt.Errorf("%w: %s -> %s", orders.ErrInvalidTransition, o.Status, to)
	}
	if release {
		for _, it := range o.Items {
			p := s.products[it.ProductID]
			p.Stock += it.Quantity
			s.products[p.ID] = p
		}
	}
	o.Status = to
	o.UpdatedAt = s.now()
	s.orders[id] = o
	return cloneOrder(o), nil
}

func cloneOrder(o orders.Order) orders.Order {
	o.Items = slices.Clone(o.Items)
	if o.Items == nil {
		o.Items = []orders.OrderItem{}
	}
	return o
}
