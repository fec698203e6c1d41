// Package inventory is the stock ledger. Every write is a single conditional
// statement executed on the caller's transaction, so a reservation is undone by
// rolling that transaction back.
package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("quantity must be greater than zero")
	ErrUnknownProduct    = errors.New("unknown product")
)

// InsufficientStockError carries what was asked for and what was visible when the
// reservation failed.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// DB is satisfied by pgx.Tx, *pgx.Conn and *pgxpool.Pool.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Reserve decrements stock by qty only if enough is left. The affected-row count
// is the success signal; on failure nothing is written.
func Reserve(ctx context.Context, db DB, productID string, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	ct, err := db.Exec(ctx, `
		UPDATE products SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND active AND stock >= $2`, productID, qty)
	if err != nil {
		return fmt.Errorf("reserve %s: %w", productID, err)
	}
	if ct.RowsAffected() == 1 {
		return nil
	}

	var available int
	err = db.QueryRow(ctx, `SELECT stock FROM products WHERE id = $1 AND active`, productID).Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrUnknownProduct, productID)
	}
	if err != nil {
		return fmt.Errorf("read stock %s: %w", productID, err)
	}
	return &InsufficientStockError{ProductID: productID, Requested: qty, Available: available}
}

// Release returns previously reserved units, e.g. when a pending order is cancelled.
// Inactive products still get their units back.
func Release(ctx context.Context, db DB, productID string, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	ct, err := db.Exec(ctx, `UPDATE products SET stock = stock + $2, updated_at = now() WHERE id = $1`, productID, qty)
	if err != nil {
		return fmt.Errorf("release %s: %w", productID, err)
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("%w: %s", ErrUnknownProduct, productID)
	}
	return nil
}

// Restock adds units from an admin and returns the new level.
func Restock(ctx context.Context, db DB, productID string, qty int) (int, error) {
	if qty <= 0 {
		return 0, ErrInvalidQuantity
	}
	var stock int
	err := db.QueryRow(ctx, `
		UPDATE products SET stock = stock + $2, updated_at = now()
		WHERE id = $1 RETURNING stock`, productID, qty).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrUnknownProduct, productID)
	}
	if err != nil {
		return 0, fmt.Errorf("restock %s: %w", productID, err)
	}
	return stock, nil
}
