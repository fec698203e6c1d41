package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-crypto-shop/internal/fulfillment"
	"github.com/ariefcatur/go-crypto-shop/internal/orders"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const invoiceColumns = `id, order_id, external_invoice_id, currency, crypto_amount, usd_amount,
	status, payment_url, qr_code, created_at, paid_at, expires_at`

func scanInvoice(row pgx.Row) (orders.Invoice, error) {
	var inv orders.Invoice
	var status string
	err := row.Scan(&inv.ID, &inv.OrderID, &inv.ExternalID, &inv.Currency, &inv.CryptoAmount, &inv.USDAmount,
		&status, &inv.PaymentURL, &inv.QRCode, &inv.CreatedAt, &inv.PaidAt, &inv.ExpiresAt)
	inv.Status = orders.InvoiceStatus(status)
	return inv, err
}

// SaveInvoice stores a freshly provisioned invoice. A resend inserts another row;
// the newest row is the current one.
func (r *Repo) SaveInvoice(ctx context.Context, inv orders.Invoice) (orders.Invoice, error) {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	if inv.Status == "" {
		inv.Status = orders.InvoiceNew
	}
	return scanInvoice(r.DB.QueryRow(ctx, `
		INSERT INTO invoices(id, order_id, external_invoice_id, currency, crypto_amount, usd_amount,
			status, payment_url, qr_code, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+invoiceColumns,
		inv.ID, inv.OrderID, inv.ExternalID, inv.Currency, inv.CryptoAmount, inv.USDAmount,
		string(inv.Status), inv.PaymentURL, inv.QRCode, inv.ExpiresAt))
}

func (r *Repo) LatestInvoice(ctx context.Context, orderID string) (orders.Invoice, error) {
	if _, err := uuid.Parse(orderID); err != nil {
		return orders.Invoice{}, fmt.Errorf("%w: order %s", orders.ErrInvoiceNotFound, orderID)
	}
	inv, err := scanInvoice(r.DB.QueryRow(ctx, `
		SELECT `+invoiceColumns+` FROM invoices
		WHERE order_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return inv, fmt.Errorf("%w: order %s", orders.ErrInvoiceNotFound, orderID)
	}
	return inv, err
}

func (r *Repo) InvoiceByExternalID(ctx context.Context, externalID string) (orders.Invoice, error) {
	inv, err := scanInvoice(r.DB.QueryRow(ctx, `
		SELECT `+invoiceColumns+` FROM invoices WHERE external_invoice_id = $1`, externalID))
	if errors.Is(err, pgx.ErrNoRows) {
		return inv, fmt.Errorf("%w: %s", orders.ErrInvoiceNotFound, externalID)
	}
	return inv, err
}

// ApplyInvoiceStatus is the reconciliation transaction. The invoice row lock taken
// by SELECT ... FOR UPDATE serialises duplicate deliveries: the second one waits,
// then reads the already-stored status and becomes a no-op. Only the call that moves
// the invoice into completed marks the order paid and writes the grants, all before
// the single commit.
func (r *Repo) ApplyInvoiceStatus(ctx context.Context, externalID string, in orders.InvoiceStatus, at time.Time) (orders.PaymentOutcome, error) {
	var out orders.PaymentOutcome

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return out, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	inv, err := scanInvoice(tx.QueryRow(ctx, `
		SELECT `+invoiceColumns+` FROM invoices WHERE external_invoice_id = $1 FOR UPDATE`, externalID))
	if errors.Is(err, pgx.ErrNoRows) {
		return out, fmt.Errorf("%w: %s", orders.ErrInvoiceNotFound, externalID)
	}
	if err != nil {
		return out, err
	}
	out.Previous = inv.Status
	out.Invoice = inv

	next, changed, paidNow := orders.NextInvoiceStatus(inv.Status, in)
	if !changed {
		return out, tx.Commit(ctx)
	}

	var paidAt *time.Time
	if paidNow {
		paidAt = &at
	}
	// compare-and-set on the status we just read under lock
	ct, err := tx.Exec(ctx, `
		UPDATE invoices SET status = $2, paid_at = COALESCE($3, paid_at), updated_at = now()
		WHERE id = $1 AND status = $4`,
		inv.ID, string(next), paidAt, string(inv.Status))
	if err != nil {
		return out, err
	}
	if ct.RowsAffected() != 1 {
		return out, tx.Commit(ctx)
	}
	out.Changed = true
	out.Invoice.Status = next
	if paidNow {
		out.Invoice.PaidAt = paidAt
	}

	if paidNow {
		ct, err := tx.Exec(ctx, `
			UPDATE orders SET status = 'paid', updated_at = now()
			WHERE id = $1 AND status = 'pending'`, inv.OrderID)
		if err != nil {
			return out, err
		}
		if ct.RowsAffected() == 1 {
			o, err := loadOrder(ctx, tx, inv.OrderID, false)
			if err != nil {
				return out, err
			}
			n, err := fulfillment.GrantOrder(ctx, tx, o)
			if err != nil {
				return out, err
			}
			out.Paid = true
			out.Order = o
			out.Granted = n
		} else {
			out.OrderNotPending = true
			if out.Order, err = loadOrder(ctx, tx, inv.OrderID, false); err != nil {
				return out, err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return orders.PaymentOutcome{}, err
	}
	return out, nil
}
