package notify

import (
	"fmt"
	"strings"

	"github.com/ariefcatur/go-crypto-shop/internal/orders"
)

func PaidUserMessage(n orders.Notice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Payment received for order %s.\n", n.OrderID)
	fmt.Fprintf(&b, "Total: $%s USD", n.TotalPrice.StringFixed(2))
	if n.Currency != "" && !n.Amount.IsZero() {
		fmt.Fprintf(&b, " (paid %s %s)", n.Amount.String(), n.Currency)
	}
	b.WriteString("\n")
	writeItems(&b, n.Items)
	b.WriteString("Your purchases are now available.")
	return b.String()
}

func PaidAdminMessage(n orders.Notice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New paid order %s from user %d: $%s USD, %d item(s).\n",
		n.OrderID, n.UserID, n.TotalPrice.StringFixed(2), len(n.Items))
	if n.InvoiceID != "" {
		fmt.Fprintf(&b, "Invoice: %s\n", n.InvoiceID)
	}
	writeItems(&b, n.Items)
	return strings.TrimRight(b.String(), "\n")
}

func CancelledUserMessage(n orders.Notice) string {
	return fmt.Sprintf("Order %s was cancelled. No payment will be taken for it.", n.OrderID)
}

func CancelledAdminMessage(n orders.Notice) string {
	return fmt.Sprintf("Order %s of user %d was cancelled ($%s USD); stock released.",
		n.OrderID, n.UserID, n.TotalPrice.StringFixed(2))
}

func writeItems(b *strings.Builder, items []orders.NoticeItem) {
	for _, it := range items {
		name := it.Name
		if name == "" {
			name = it.ProductID
		}
		fmt.Fprintf(b, "- %s x%d @ $%s\n", name, it.Qty, it.UnitPrice.StringFixed(2))
	}
}
