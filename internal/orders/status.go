package orders

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPaid      OrderStatus = "paid"
	OrderCancelled OrderStatus = "cancelled"
	OrderRefunded  OrderStatus = "refunded"
)

var validNext = map[OrderStatus]map[OrderStatus]bool{
	OrderPending:   {OrderPaid: true, OrderCancelled: true},
	OrderPaid:      {OrderRefunded: true},
	OrderCancelled: {},
	OrderRefunded:  {},
}

func CanTransition(from, to OrderStatus) bool {
	return validNext[from][to]
}

// Final reports whether no order transition leaves s.
func (s OrderStatus) Final() bool {
	next, ok := validNext[s]
	return ok && len(next) == 0
}

type InvoiceStatus string

const (
	InvoiceNew       InvoiceStatus = "new"
	InvoicePending   InvoiceStatus = "pending"
	InvoiceCompleted InvoiceStatus = "completed"
	InvoiceExpired   InvoiceStatus = "expired"
	InvoiceCancelled InvoiceStatus = "cancelled"
)

var invoiceRank = map[InvoiceStatus]int{
	InvoiceNew:       0,
	InvoicePending:   1,
	InvoiceExpired:   2,
	InvoiceCancelled: 2,
	InvoiceCompleted: 3,
}

func (s InvoiceStatus) Valid() bool {
	_, ok := invoiceRank[s]
	return ok
}

// Terminal reports whether no non-paying status may follow s.
func (s InvoiceStatus) Terminal() bool { return invoiceRank[s] >= 2 }

// NextInvoiceStatus is the invoice state machine. It returns the status to store,
// whether it differs from cur, and whether this step is the first move into
// completed (the only step allowed to pay the order).
//
// completed absorbs everything. A completed report is honoured from any other
// state, including expired/cancelled, since the money has arrived. expired and
// cancelled absorb every other report; otherwise only forward moves apply.
func NextInvoiceStatus(cur, in InvoiceStatus) (next InvoiceStatus, changed, paidNow bool) {
	if cur == InvoiceCompleted || cur == in || !in.Valid() {
		return cur, false, false
	}
	if in == InvoiceCompleted {
		return InvoiceCompleted, true, true
	}
	if cur.Terminal() || invoiceRank[in] <= invoiceRank[cur] {
		return cur, false, false
	}
	return in, true, false
}
