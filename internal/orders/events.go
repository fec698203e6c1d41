package orders

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderPaid      = "OrderPaid"
	EventOrderCancelled = "OrderCancelled"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // salah satu const di atas
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"` // e.g., "shop-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

type NoticeItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Qty       int             `json:"qty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Notice is the payload handed to the notification boundary for a terminal order
// transition.
type Notice struct {
	OrderID    string          `json:"order_id"`
	UserID     int64           `json:"user_id"`
	Status     OrderStatus     `json:"status"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Items      []NoticeItem    `json:"items"`
	InvoiceID  string          `json:"invoice_id,omitempty"`
	Currency   string          `json:"currency,omitempty"`
	Amount     decimal.Decimal `json:"crypto_amount"`
}

func NoticeFor(o Order, inv *Invoice) Notice {
	n := Notice{
		OrderID:    o.ID,
		UserID:     o.UserID,
		Status:     o.Status,
		TotalPrice: o.TotalPrice,
		Items:      make([]NoticeItem, 0, len(o.Items)),
	}
	for _, it := range o.Items {
		n.Items = append(n.Items, NoticeItem{
			ProductID: it.ProductID,
			Name:      it.ProductName,
			Qty:       it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}
	if inv != nil {
		n.InvoiceID = inv.ExternalID
		n.Currency = inv.Currency
		n.Amount = inv.CryptoAmount
	}
	return n
}
