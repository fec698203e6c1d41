package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-crypto-shop/internal/orders"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// testRepo connects to TEST_POSTGRES_DSN, migrates and empties every table.
func testRepo(t *testing.T) *Repo {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	db, err := Connect(ctx, dsn, 20)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(db.Close)
	if _, err := Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := db.Exec(ctx, `TRUNCATE purchased_product_grants, invoices, order_items, orders, products, users`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	r := &Repo{DB: db}
	if _, err := r.UpsertUser(ctx, orders.User{ID: 1, Username: "alice"}); err != nil {
		t.Fatal(err)
	}
	return r
}

func mustProduct(t *testing.T, r *Repo, price string, stock int) orders.Product {
	t.Helper()
	p, err := r.CreateProduct(context.Background(), orders.Product{
		Name: "p-" + uuid.NewString()[:8], Price: decimal.RequireFromString(price), Stock: stock,
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	return p
}

func TestPGConcurrentOrdersNeverOversell(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()
	p := mustProduct(t, r, "9.99", 5)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok, short int
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.CreateOrderTx(ctx, 1, []orders.ItemInput{{ProductID: p.ID, Qty: 1}})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, orders.ErrInsufficientStock):
				short++
			default:
				t.Errorf("unexpected: %v", err)
			}
		}()
	}
	wg.Wait()

	got, _ := r.GetProduct(ctx, p.ID)
	if ok != 5 || short != 7 || got.Stock != 0 {
		t.Fatalf("ok %d short %d stock %d", ok, short, got.Stock)
	}
}

func TestPGOppositeItemOrderDoesNotDeadlock(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()
	a := mustProduct(t, r, "1", 100)
	b := mustProduct(t, r, "2", 100)

	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		items := []orders.ItemInput{{ProductID: a.ID, Qty: 1}, {ProductID: b.ID, Qty: 1}}
		if i%2 == 1 {
			items[0], items[1] = items[1], items[0]
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.CreateOrderTx(ctx, 1, items); err != nil {
				t.Errorf("CreateOrderTx: %v", err)
			}
		}()
	}
	wg.Wait()

	ga, _ := r.GetProduct(ctx, a.ID)
	gb, _ := r.GetProduct(ctx, b.ID)
	if ga.Stock != 80 || gb.Stock != 80 {
		t.Fatalf("stock a %d b %d", ga.Stock, gb.Stock)
	}
}

func TestPGCreateOrderIsAtomic(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()
	a := mustProduct(t, r, "5", 10)
	b := mustProduct(t, r, "5", 1)

	_, err := r.CreateOrderTx(ctx, 1, []orders.ItemInput{{ProductID: a.ID, Qty: 3}, {ProductID: b.ID, Qty: 2}})
	if !errors.Is(err, orders.ErrInsufficientStock) {
		t.Fatalf("err = %v", err)
	}
	ga, _ := r.GetProduct(ctx, a.ID)
	if ga.Stock != 10 {
		t.Errorf("stock of a = %d, reservation not rolled back", ga.Stock)
	}
	var n int
	if err := r.DB.QueryRow(ctx, `SELECT count(*) FROM orders`).Scan(&n); err != nil || n != 0 {
		t.Errorf("orders = %d, %v", n, err)
	}

	if _, err := r.CreateOrderTx(ctx, 2, []orders.ItemInput{{ProductID: a.ID, Qty: 1}}); !errors.Is(err, orders.ErrUserNotFound) {
		t.Errorf("unknown user: %v", err)
	}
}

func TestPGOrderKeepsPriceSnapshot(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()
	p := mustProduct(t, r, "25.00", 5)

	o, err := r.CreateOrderTx(ctx, 1, []orders.ItemInput{{ProductID: p.ID, Qty: 2}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.UpdatePrice(ctx, p.ID, decimal.RequireFromString("40")); err != nil {
		t.Fatal(err)
	}
	if _, err := r.DB.Exec(ctx, `UPDATE products SET name = 'renamed' WHERE id = $1`, p.ID); err != nil {
		t.Fatal(err)
	}
	got, err := r.GetOrder(ctx, o.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.TotalPrice.Equal(decimal.RequireFromString("50")) || !got.Items[0].UnitPrice.Equal(decimal.RequireFromString("25")) {
		t.Errorf("total %s unit %s", got.TotalPrice, got.Items[0].UnitPrice)
	}
	if got.Items[0].ProductName != p.Name {
		t.Errorf("product name = %q", got.Items[0].ProductName)
	}
}

func TestPGDuplicateWebhooksPayOnce(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()
	a := mustProduct(t, r, "30", 5)
	b := mustProduct(t, r, "40", 5)
	o, err := r.CreateOrderTx(ctx, 1, []orders.ItemInput{{ProductID: a.ID, Qty: 2}, {ProductID: b.ID, Qty: 1}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.SaveInvoice(ctx, orders.Invoice{OrderID: o.ID, ExternalID: "tx-race", USDAmount: o.TotalPrice, Currency: "BTC"}); err != nil {
		t.Fatal(err)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		paid int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := r.ApplyInvoiceStatus(ctx, "tx-race", orders.InvoiceCompleted, time.Now().UTC())
			if err != nil {
				t.Errorf("apply: %v", err)
				return
			}
			if out.Paid {
				mu.Lock()
				paid++
				mu.Unlock()
				if out.Granted != 2 {
					t.Errorf("granted = %d", out.Granted)
				}
			}
		}()
	}
	wg.Wait()

	if paid != 1 {
		t.Fatalf("paid transitions = %d", paid)
	}
	grants, err := r.ListGrants(ctx, 1)
	if err != nil || len(grants) != 2 {
		t.Fatalf("grants = %d, %v", len(grants), err)
	}
	got, _ := r.GetOrder(ctx, o.ID)
	inv, _ := r.InvoiceByExternalID(ctx, "tx-race")
	if got.Status != orders.OrderPaid || inv.Status != orders.InvoiceCompleted || inv.PaidAt == nil {
		t.Errorf("order %s invoice %s", got.Status, inv.Status)
	}

	out, err := r.ApplyInvoiceStatus(ctx, "tx-race", orders.InvoicePending, time.Now())
	if err != nil || out.Changed {
		t.Errorf("regression applied: %+v, %v", out, err)
	}
	if _, err := r.ApplyInvoiceStatus(ctx, "tx-missing", orders.InvoiceCompleted, time.Now()); !errors.Is(err, orders.ErrInvoiceNotFound) {
		t.Errorf("missing invoice: %v", err)
	}
}

func TestPGCancelReleasesStockAndLatePaymentGrantsNothing(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()
	p := mustProduct(t, r, "5", 3)
	o, err := r.CreateOrderTx(ctx, 1, []orders.ItemInput{{ProductID: p.ID, Qty: 3}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.SaveInvoice(ctx, orders.Invoice{OrderID: o.ID, ExternalID: "tx-late"}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.CancelOrder(ctx, o.ID); err != nil {
		t.Fatal(err)
	}
	if got, _ := r.GetProduct(ctx, p.ID); got.Stock != 3 {
		t.Errorf("stock = %d, want 3", got.Stock)
	}

	out, err := r.ApplyInvoiceStatus(ctx, "tx-late", orders.InvoiceCompleted, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if out.Paid || !out.OrderNotPending || !out.Changed {
		t.Errorf("outcome = %+v", out)
	}
	if g, _ := r.ListGrants(ctx, 1); len(g) != 0 {
		t.Errorf("grants = %d", len(g))
	}
	if _, err := r.RefundOrder(ctx, o.ID); !errors.Is(err, orders.ErrInvalidTransition) {
		t.Errorf("refund cancelled: %v", err)
	}
}
