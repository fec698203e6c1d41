package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Active      bool            `json:"active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type Order struct {
	ID         string          `json:"id"`
	UserID     int64           `json:"user_id"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Status     OrderStatus     `json:"status"` // lihat status.go
	Items      []OrderItem     `json:"items"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// OrderItem is immutable once written; UnitPrice is the product price at order time.
type OrderItem struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"order_id"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name,omitempty"` // join, tidak disimpan
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

type Invoice struct {
	ID           string          `json:"id"`
	OrderID      string          `json:"order_id"`
	ExternalID   string          `json:"external_invoice_id"`
	Currency     string          `json:"currency"`
	CryptoAmount decimal.Decimal `json:"crypto_amount"`
	USDAmount    decimal.Decimal `json:"usd_amount"`
	Status       InvoiceStatus   `json:"status"`
	PaymentURL   string          `json:"payment_url"`
	QRCode       string          `json:"qr_code,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	PaidAt       *time.Time      `json:"paid_at,omitempty"`
	ExpiresAt    *time.Time      `json:"expires_at,omitempty"`
}

type Grant struct {
	UserID    int64     `json:"user_id"`
	ProductID string    `json:"product_id"`
	OrderID   string    `json:"order_id"`
	GrantedAt time.Time `json:"granted_at"`
}

type ItemInput struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

// PaymentOutcome describes what one reconciliation call changed.
type PaymentOutcome struct {
	Invoice  Invoice
	Previous InvoiceStatus
	// Changed is false when the delivery was a redelivery or a regression.
	Changed bool
	// Paid is true only for the call that moved the order from pending to paid.
	Paid bool
	// OrderNotPending: invoice completed but the order had already left pending.
	OrderNotPending bool
	Order           Order
	Granted         int
}

// LineTotal computes unit price times quantity.
func LineTotal(unit decimal.Decimal, qty int) decimal.Decimal {
	return unit.Mul(decimal.NewFromInt(int64(qty)))
}

// SumItems is the order total for the given items.
func SumItems(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.LineTotal)
	}
	return total
}
