// Package fulfillment records which digital products a user has paid for.
package fulfillment

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-crypto-shop/internal/orders"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Grant inserts the (user, product, order) grant unless it exists. granted is
// false for a repeat call, which is not an error.
func Grant(ctx context.Context, db DB, userID int64, productID, orderID string) (granted bool, err error) {
	ct, err := db.Exec(ctx, `
		INSERT INTO purchased_product_grants(user_id, product_id, order_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, product_id, order_id) DO NOTHING`,
		userID, productID, orderID)
	if err != nil {
		return false, fmt.Errorf("grant %s/%s: %w", productID, orderID, err)
	}
	return ct.RowsAffected() == 1, nil
}

// GrantOrder grants every item of a paid order and returns how many rows were new.
// An order without items grants nothing.
func GrantOrder(ctx context.Context, db DB, o orders.Order) (int, error) {
	n := 0
	for _, it := range o.Items {
		ok, err := Grant(ctx, db, o.UserID, it.ProductID, o.ID)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

func ListByUser(ctx context.Context, db DB, userID int64) ([]orders.Grant, error) {
	rows, err := db.Query(ctx, `
		SELECT user_id, product_id, order_id, granted_at
		FROM purchased_product_grants WHERE user_id = $1
		ORDER BY granted_at, product_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []orders.Grant
	for rows.Next() {
		var g orders.Grant
		if err := rows.Scan(&g.UserID, &g.ProductID, &g.OrderID, &g.GrantedAt); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
