package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ariefcatur/go-crypto-shop/internal/orders"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeDB behaves like the primary key on (user_id, product_id, order_id).
type fakeDB struct {
	rows map[string]bool
	fail bool
}

func (f *fakeDB) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	if f.fail {
		return pgconn.CommandTag{}, errors.New("connection reset")
	}
	k := fmt.Sprint(args...)
	if f.rows[k] {
		return pgconn.NewCommandTag("INSERT 0 0"), nil
	}
	f.rows[k] = true
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not used")
}

func TestGrantIsInsertOrIgnore(t *testing.T) {
	db := &fakeDB{rows: map[string]bool{}}
	ctx := context.Background()

	first, err := Grant(ctx, db, 1, "p", "o")
	if err != nil || !first {
		t.Fatalf("first = %v, %v", first, err)
	}
	again, err := Grant(ctx, db, 1, "p", "o")
	if err != nil || again {
		t.Fatalf("repeat = %v, %v", again, err)
	}
	other, _ := Grant(ctx, db, 1, "p", "o2")
	if !other {
		t.Error("same product from another order is a separate grant")
	}
}

func TestGrantOrder(t *testing.T) {
	db := &fakeDB{rows: map[string]bool{}}
	ctx := context.Background()
	o := orders.Order{ID: "o1", UserID: 9, Items: []orders.OrderItem{{ProductID: "a"}, {ProductID: "b"}}}

	if n, err := GrantOrder(ctx, db, o); err != nil || n != 2 {
		t.Fatalf("first = %d, %v", n, err)
	}
	if n, err := GrantOrder(ctx, db, o); err != nil || n != 0 {
		t.Fatalf("repeat = %d, %v", n, err)
	}
	if n, err := GrantOrder(ctx, db, orders.Order{ID: "empty", UserID: 9}); err != nil || n != 0 {
		t.Fatalf("item-less order = %d, %v", n, err)
	}

	db.fail = true
	if _, err := GrantOrder(ctx, db, orders.Order{ID: "o2", UserID: 9, Items: []orders.OrderItem{{ProductID: "a"}}}); err == nil {
		t.Error("database error swallowed")
	}
}
