package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ariefcatur/go-crypto-shop/internal/config"
	"github.com/ariefcatur/go-crypto-shop/internal/metrics"
	"github.com/ariefcatur/go-crypto-shop/internal/orders"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/ariefcatur/go-crypto-shop/internal/gateway"

var ErrGateway = errors.New("payment gateway error")

// APIError is a well-formed error answer from the gateway.
type APIError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("payment gateway: %s (%s, code %d)", e.Message, e.Name, e.Code)
}

func (e *APIError) Unwrap() error { return ErrGateway }

// Client provisions invoices. It never retries; the caller owns retry policy.
type Client struct {
	BaseURL     string
	APIKey      string
	Currency    string
	CallbackURL string
	SuccessURL  string
	FailURL     string
	HTTP        *http.Client
	Metrics     *metrics.Metrics
}

func NewClient(cfg config.GatewayConfig, m *metrics.Metrics) *Client {
	return &Client{
		BaseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		APIKey:      cfg.APIKey,
		Currency:    cfg.Currency,
		CallbackURL: cfg.CallbackURL,
		SuccessURL:  cfg.SuccessURL,
		FailURL:     cfg.FailURL,
		HTTP:        &http.Client{Timeout: cfg.Timeout},
		Metrics:     m,
	}
}

type apiEnvelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

type invoiceData struct {
	TxnID        string     `json:"txn_id"`
	InvoiceURL   string     `json:"invoice_url"`
	Amount       flexString `json:"amount"`
	Currency     string     `json:"currency"`
	QRCode       string     `json:"qr_code"`
	ExpireUTC    flexString `json:"expire_utc"`
	SourceAmount flexString `json:"source_amount"`
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(b)
	return nil
}

// Provision asks the gateway for an invoice over the order's USD total and maps
// the answer to a new invoice record. Nothing is persisted here.
func (c *Client) Provision(ctx context.Context, o orders.Order) (inv orders.Invoice, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "gateway.Provision",
		trace.WithAttributes(attribute.String("order.id", o.ID)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	q := url.Values{}
	q.Set("api_key", c.APIKey)
	q.Set("order_number", o.ID)
	q.Set("order_name", "Order "+o.ID)
	q.Set("source_currency", "USD")
	q.Set("source_amount", o.TotalPrice.StringFixed(2))
	if c.Currency != "" {
		q.Set("currency", c.Currency)
	}
	if c.CallbackURL != "" {
		q.Set("callback_url", c.CallbackURL)
	}
	if c.SuccessURL != "" {
		q.Set("success_callback_url", c.SuccessURL)
	}
	if c.FailURL != "" {
		q.Set("fail_callback_url", c.FailURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/invoices/new?"+q.Encode(), nil)
	if err != nil {
		return inv, fmt.Errorf("%w: build request: %v", ErrGateway, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.HTTP.Do(req)
	c.Metrics.ObserveGateway(start)
	if err != nil {
		// url.Error would echo the api_key in the query string
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return inv, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return inv, fmt.Errorf("%w: read body: %v", ErrGateway, err)
	}

	var env apiEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return inv, fmt.Errorf("%w: http %d: undecodable body", ErrGateway, resp.StatusCode)
	}
	if env.Status != "success" {
		apiErr := &APIError{}
		if err := json.Unmarshal(env.Data, apiErr); err != nil || apiErr.Message == "" {
			return inv, fmt.Errorf("%w: http %d: status %q", ErrGateway, resp.StatusCode, env.Status)
		}
		return inv, apiErr
	}
	if resp.StatusCode/100 != 2 {
		return inv, fmt.Errorf("%w: http %d", ErrGateway, resp.StatusCode)
	}

	var d invoiceData
	if err := json.Unmarshal(env.Data, &d); err != nil {
		return inv, fmt.Errorf("%w: decode invoice: %v", ErrGateway, err)
	}
	return c.toInvoice(o, d)
}

func (c *Client) toInvoice(o orders.Order, d invoiceData) (orders.Invoice, error) {
	if d.TxnID == "" || d.InvoiceURL == "" {
		return orders.Invoice{}, fmt.Errorf("%w: response without txn_id or invoice_url", ErrGateway)
	}
	if d.SourceAmount != "" {
		src, err := decimal.NewFromString(string(d.SourceAmount))
		if err != nil || !src.Equal(o.TotalPrice) {
			return orders.Invoice{}, fmt.Errorf("%w: invoice amount %s does not match order total %s",
				ErrGateway, d.SourceAmount, o.TotalPrice.StringFixed(2))
		}
	}

	inv := orders.Invoice{
		OrderID:    o.ID,
		ExternalID: d.TxnID,
		Currency:   d.Currency,
		USDAmount:  o.TotalPrice,
		Status:     orders.InvoiceNew,
		PaymentURL: d.InvoiceURL,
		QRCode:     d.QRCode,
	}
	if inv.Currency == "" {
		inv.Currency = c.Currency
	}
	if d.Amount != "" {
		amt, err := decimal.NewFromString(string(d.Amount))
		if err != nil {
			return orders.Invoice{}, fmt.Errorf("%w: bad amount %q", ErrGateway, d.Amount)
		}
		inv.CryptoAmount = amt
	}
	if d.ExpireUTC != "" {
		sec, err := strconv.ParseInt(string(d.ExpireUTC), 10, 64)
		if err == nil && sec > 0 {
			exp := time.Unix(sec, 0).UTC()
			inv.ExpiresAt = &exp
		}
	}
	return inv, nil
}
