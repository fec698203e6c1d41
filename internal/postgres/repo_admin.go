package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/ariefcatur/go-crypto-shop/internal/inventory"
	"github.com/ariefcatur/go-crypto-shop/internal/orders"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

func (r *Repo) CreateProduct(ctx context.Context, p orders.Product) (orders.Product, error) {
	if p.Price.IsNegative() {
		return p, orders.ErrInvalidPrice
	}
	if p.Stock < 0 {
		return p, orders.ErrInvalidQuantity
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	err := r.DB.QueryRow(ctx, `
		INSERT INTO products(id, name, description, price, stock, active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		RETURNING active, created_at, updated_at`,
		p.ID, p.Name, p.Description, p.Price, p.Stock).Scan(&p.Active, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// UpdatePrice changes the catalogue price. Existing order items keep their snapshot.
func (r *Repo) UpdatePrice(ctx context.Context, id string, price decimal.Decimal) (orders.Product, error) {
	if price.IsNegative() {
		return orders.Product{}, orders.ErrInvalidPrice
	}
	if _, err := uuid.Parse(id); err != nil {
		return orders.Product{}, fmt.Errorf("%w: %s", orders.ErrProductNotFound, id)
	}
	ct, err := r.DB.Exec(ctx, `UPDATE products SET price = $2, updated_at = now() WHERE id = $1`, id, price)
	if err != nil {
		return orders.Product{}, err
	}
	if ct.RowsAffected() == 0 {
		return orders.Product{}, fmt.Errorf("%w: %s", orders.ErrProductNotFound, id)
	}
	return r.GetProduct(ctx, id)
}

func (r *Repo) Restock(ctx context.Context, id string, qty int) (orders.Product, error) {
	if _, err := uuid.Parse(id); err != nil {
		return orders.Product{}, fmt.Errorf("%w: %s", orders.ErrProductNotFound, id)
	}
	if _, err := inventory.Restock(ctx, r.DB, id, qty); err != nil {
		return orders.Product{}, mapInventoryErr(err, id)
	}
	return r.GetProduct(ctx, id)
}

// DeactivateProduct is the soft delete; past orders and grants keep referencing it.
func (r *Repo) DeactivateProduct(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %s", orders.ErrProductNotFound, id)
	}
	ct, err := r.DB.Exec(ctx, `UPDATE products SET active = FALSE, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", orders.ErrProductNotFound, id)
	}
	return nil
}

// CancelOrder moves a pending order to cancelled and gives its units back, in one
// transaction.
func (r *Repo) CancelOrder(ctx context.Context, id string) (orders.Order, error) {
	return r.setOrderStatus(ctx, id, orders.OrderCancelled, true)
}

// RefundOrder marks a paid order refunded. Grants and stock are left as they are.
func (r *Repo) RefundOrder(ctx context.Context, id string) (orders.Order, error) {
	return r.setOrderStatus(ctx, id, orders.OrderRefunded, false)
}

func (r *Repo) setOrderStatus(ctx context.Context, id string, to orders.OrderStatus, release bool) (orders.Order, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return orders.Order{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := loadOrder(ctx, tx, id, true)
	if err != nil {
		return orders.Order{}, err
	}
	if !orders.CanTransition(o.Status, to) {
		return orders.Order{}, fmt.Errorf("%w: %s -> %s", orders.ErrInvalidTransition, o.Status, to)
	}
	if release {
		// urutan lock sama dengan CreateOrderTx
		items := slices.Clone(o.Items)
		slices.SortFunc(items, func(a, b orders.OrderItem) int { return strings.Compare(a.ProductID, b.ProductID) })
		for _, it := range items {
			if err := inventory.Release(ctx, tx, it.ProductID, it.Quantity); err != nil {
				return orders.Order{}, err
			}
		}
	}
	if err := tx.QueryRow(ctx, `
		UPDATE orders SET status = $2, updated_at = now() WHERE id = $1 RETURNING updated_at`,
		id, string(to)).Scan(&o.UpdatedAt); err != nil {
		return orders.Order{}, err
	}
	o.Status = to
	if err := tx.Commit(ctx); err != nil {
		return orders.Order{}, err
	}
	return o, nil
}

func mapInventoryErr(err error, id string) error {
	switch {
	case errors.Is(err, inventory.ErrUnknownProduct):
		return fmt.Errorf("%w: %s", orders.ErrProductNotFound, id)
	case errors.Is(err, inventory.ErrInvalidQuantity):
		return fmt.Errorf("%w: product %s", orders.ErrInvalidQuantity, id)
	}
	return err
}
