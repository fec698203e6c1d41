package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-crypto-shop/internal/fulfillment"
	"github.com/ariefcatur/go-crypto-shop/internal/orders"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repo is the relational store. Every multi-row write runs in one transaction.
type Repo struct{ DB *pgxpool.Pool }

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *Repo) UpsertUser(ctx context.Context, u orders.User) (orders.User, error) {
	err := r.DB.QueryRow(ctx, `
		INSERT INTO users(id, username) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET username = EXCLUDED.username
		RETURNING id, username, created_at`, u.ID, u.Username).
		Scan(&u.ID, &u.Username, &u.CreatedAt)
	return u, err
}

func (r *Repo) ListProducts(ctx context.Context) ([]orders.Product, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, name, description, price, stock, active, created_at, updated_at
		FROM products WHERE active ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []orders.Product
	for rows.Next() {
		var p orders.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repo) GetProduct(ctx context.Context, id string) (orders.Product, error) {
	return getProduct(ctx, r.DB, id)
}

func getProduct(ctx context.Context, q querier, id string) (orders.Product, error) {
	var p orders.Product
	if _, err := uuid.Parse(id); err != nil {
		return p, fmt.Errorf("%w: %s", orders.ErrProductNotFound, id)
	}
	err := q.QueryRow(ctx, `
		SELECT id, name, description, price, stock, active, created_at, updated_at
		FROM products WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return p, fmt.Errorf("%w: %s", orders.ErrProductNotFound, id)
	}
	return p, err
}

func (r *Repo) GetOrder(ctx context.Context, id string) (orders.Order, error) {
	return loadOrder(ctx, r.DB, id, false)
}

// loadOrder reads an order with its items. forUpdate locks the order row and must
// only be used on a transaction.
func loadOrder(ctx context.Context, q querier, id string, forUpdate bool) (orders.Order, error) {
	var o orders.Order
	if _, err := uuid.Parse(id); err != nil {
		return o, fmt.Errorf("%w: %s", orders.ErrOrderNotFound, id)
	}
	sql := `SELECT id, user_id, total_price, status, created_at, updated_at FROM orders WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	var status string
	err := q.QueryRow(ctx, sql, id).Scan(&o.ID, &o.UserID, &o.TotalPrice, &status, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return o, fmt.Errorf("%w: %s", orders.ErrOrderNotFound, id)
	}
	if err != nil {
		return o, err
	}
	o.Status = orders.OrderStatus(status)

	rows, err := q.Query(ctx, `
		SELECT id, order_id, product_id, product_name, quantity, unit_price, line_total
		FROM order_items
		WHERE order_id = $1 ORDER BY position`, id)
	if err != nil {
		return o, err
	}
	defer rows.Close()
	o.Items = []orders.OrderItem{}
	for rows.Next() {
		var it orders.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity, &it.UnitPrice, &it.LineTotal); err != nil {
			return o, err
		}
		o.Items = append(o.Items, it)
	}
	return o, rows.Err()
}

func (r *Repo) ListGrants(ctx context.Context, userID int64) ([]orders.Grant, error) {
	return fulfillment.ListByUser(ctx, r.DB, userID)
}
