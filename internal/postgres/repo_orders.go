package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-crypto-shop/internal/inventory"
	"github.com/ariefcatur/go-crypto-shop/internal/orders"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// CreateOrderTx validates the items, reserves stock and writes the order with its
// items in one transaction. Any failure rolls the reservations back with it.
func (r *Repo) CreateOrderTx(ctx context.Context, userID int64, items []orders.ItemInput) (orders.Order, error) {
	lines, err := orders.NormalizeItems(items)
	if err != nil {
		return orders.Order{}, err
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return orders.Order{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
		return orders.Order{}, err
	}
	if !exists {
		return orders.Order{}, fmt.Errorf("%w: %d", orders.ErrUserNotFound, userID)
	}

	// snapshot harga & nama (disimpan di order_items); lock baris produk dengan urutan id yang sama di semua tx
	type snapshot struct {
		name  string
		price decimal.Decimal
	}
	snaps := make(map[string]snapshot, len(lines))
	for _, pid := range orders.LockOrder(lines) {
		var s snapshot
		err := tx.QueryRow(ctx, `SELECT name, price FROM products WHERE id = $1 AND active FOR UPDATE`, pid).
			Scan(&s.name, &s.price)
		if errors.Is(err, pgx.ErrNoRows) {
			return orders.Order{}, fmt.Errorf("%w: %s", orders.ErrProductNotFound, pid)
		}
		if err != nil {
			return orders.Order{}, err
		}
		snaps[pid] = s
	}

	qty := make(map[string]int, len(lines))
	for _, ln := range lines {
		qty[ln.ProductID] = ln.Qty
	}
	for _, pid := range orders.LockOrder(lines) {
		if err := inventory.Reserve(ctx, tx, pid, qty[pid]); err != nil {
			return orders.Order{}, mapInventoryErr(err, pid)
		}
	}

	o := orders.Order{
		ID:     uuid.NewString(),
		UserID: userID,
		Status: orders.OrderPending,
		Items:  make([]orders.OrderItem, 0, len(lines)),
	}
	for _, ln := range lines {
		s := snaps[ln.ProductID]
		o.Items = append(o.Items, orders.OrderItem{
			ID:          uuid.NewString(),
			OrderID:     o.ID,
			ProductID:   ln.ProductID,
			ProductName: s.name,
			Quantity:    ln.Qty,
			UnitPrice:   s.price,
			LineTotal:   orders.LineTotal(s.price, ln.Qty),
		})
	}
	o.TotalPrice = orders.SumItems(o.Items)

	err = tx.QueryRow(ctx, `
		INSERT INTO orders(id, user_id, total_price, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`,
		o.ID, o.UserID, o.TotalPrice, string(o.Status)).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return orders.Order{}, err
	}

	for i, it := range o.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(id, order_id, product_id, product_name, quantity, unit_price, line_total, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			it.ID, it.OrderID, it.ProductID, it.ProductName, it.Quantity, it.UnitPrice, it.LineTotal, i,
		); err != nil {
			return orders.Order{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return orders.Order{}, err
	}
	return o, nil
}
