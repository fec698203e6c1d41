package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ariefcatur/go-crypto-shop/internal/config"
	"github.com/ariefcatur/go-crypto-shop/internal/orders"
	"github.com/shopspring/decimal"
)

func testOrder() orders.Order {
	return orders.Order{ID: "5f0c7e1a-7c55-4a7c-8a0b-1f4f3c2b1a00", UserID: 7, TotalPrice: decimal.RequireFromString("100")}
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(config.GatewayConfig{
		BaseURL:     srv.URL + "/",
		APIKey:      "key-123",
		Currency:    "BTC",
		Timeout:     2 * time.Second,
		CallbackURL: "https://shop.example/webhooks/payment",
	}, nil)
}

func TestProvisionMapsInvoice(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/invoices/new" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("api_key") != "key-123" || q.Get("source_amount") != "100.00" || q.Get("source_currency") != "USD" {
			t.Errorf("query = %v", q)
		}
		if q.Get("order_number") != testOrder().ID || q.Get("callback_url") != "https://shop.example/webhooks/payment" {
			t.Errorf("query = %v", q)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","data":{"txn_id":"tx-1","invoice_url":"https://pay/tx-1",
			"amount":"0.00251","currency":"BTC","qr_code":"data:image/png;base64,AA","expire_utc":1760000000,"source_amount":"100.00"}}`))
	})

	inv, err := c.Provision(context.Background(), testOrder())
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if inv.ExternalID != "tx-1" || inv.PaymentURL != "https://pay/tx-1" || inv.Status != orders.InvoiceNew {
		t.Errorf("invoice = %+v", inv)
	}
	if !inv.USDAmount.Equal(testOrder().TotalPrice) || !inv.CryptoAmount.Equal(decimal.RequireFromString("0.00251")) {
		t.Errorf("amounts = %s / %s", inv.USDAmount, inv.CryptoAmount)
	}
	if inv.ExpiresAt == nil || inv.ExpiresAt.Unix() != 1760000000 {
		t.Errorf("ExpiresAt = %v", inv.ExpiresAt)
	}
	if inv.OrderID != testOrder().ID || inv.QRCode == "" {
		t.Errorf("invoice = %+v", inv)
	}
}

func TestProvisionMinimalResponseFallsBackToConfiguredCurrency(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"success","data":{"txn_id":"tx-2","invoice_url":"https://pay/tx-2"}}`))
	})
	inv, err := c.Provision(context.Background(), testOrder())
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if inv.Currency != "BTC" || !inv.CryptoAmount.IsZero() || inv.ExpiresAt != nil {
		t.Errorf("invoice = %+v", inv)
	}
}

func TestProvisionErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		apiErr bool
	}{
		{name: "api error", status: 422, body: `{"status":"error","data":{"name":"ValidationError","message":"amount too small","code":3}}`, apiErr: true},
		{name: "server error", status: 502, body: `<html>bad gateway</html>`},
		{name: "success with 500", status: 500, body: `{"status":"success","data":{"txn_id":"x","invoice_url":"y"}}`},
		{name: "missing txn id", status: 200, body: `{"status":"success","data":{"invoice_url":"y"}}`},
		{name: "amount mismatch", status: 200, body: `{"status":"success","data":{"txn_id":"x","invoice_url":"y","source_amount":"99.99"}}`},
		{name: "bad crypto amount", status: 200, body: `{"status":"success","data":{"txn_id":"x","invoice_url":"y","amount":"lots"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.Provision(context.Background(), testOrder())
			if !errors.Is(err, ErrGateway) {
				t.Fatalf("err = %v, want ErrGateway", err)
			}
			var ae *APIError
			if errors.As(err, &ae) != tt.apiErr {
				t.Errorf("APIError match = %v, want %v (err %v)", !tt.apiErr, tt.apiErr, err)
			}
		})
	}
}

func TestProvisionTimeoutDoesNotLeakAPIKey(t *testing.T) {
	block := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-block
	})
	defer close(block)
	c.HTTP.Timeout = 50 * time.Millisecond

	_, err := c.Provision(context.Background(), testOrder())
	if !errors.Is(err, ErrGateway) {
		t.Fatalf("err = %v, want ErrGateway", err)
	}
	if strings.Contains(err.Error(), "key-123") {
		t.Errorf("error leaks api key: %v", err)
	}
}
