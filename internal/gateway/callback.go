package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/ariefcatur/go-crypto-shop/internal/orders"
)

// Callback field names as sent by the gateway.
const (
	FieldInvoiceID             = "txn_id"
	FieldStatus                = "status"
	FieldAmount                = "amount"
	FieldCurrency              = "currency"
	FieldSourceAmount          = "source_amount"
	FieldSourceCurrency        = "source_currency"
	FieldConfirmations         = "confirmations"
	FieldExpectedConfirmations = "expected_confirmations"
	FieldOrderNumber           = "order_number"
	FieldSignature             = "verify_hash"
)

var (
	ErrMalformedPayload = errors.New("malformed callback payload")
	ErrUnknownStatus    = errors.New("unknown gateway status")
)

// Callback is one parsed status notification. Fields keeps every value exactly as
// received, since the signature covers all of them.
type Callback struct {
	Fields map[string]string

	InvoiceID             string
	Status                string
	Amount                string
	Currency              string
	SourceAmount          string
	SourceCurrency        string
	Confirmations         string
	ExpectedConfirmations string
	OrderNumber           string
	Signature             string
}

// ParseCallback accepts a form-encoded body or a flat JSON object. Nested JSON
// values are kept as their compact JSON text.
func ParseCallback(raw []byte, contentType string) (Callback, error) {
	var (
		fields map[string]string
		err    error
	)
	trimmed := bytes.TrimSpace(raw)
	if strings.Contains(contentType, "json") || (len(trimmed) > 0 && trimmed[0] == '{') {
		fields, err = parseJSONFields(trimmed)
	} else {
		fields, err = parseFormFields(string(trimmed))
	}
	if err != nil {
		return Callback{}, err
	}

	cb := Callback{
		Fields:                fields,
		InvoiceID:             fields[FieldInvoiceID],
		Status:                fields[FieldStatus],
		Amount:                fields[FieldAmount],
		Currency:              fields[FieldCurrency],
		SourceAmount:          fields[FieldSourceAmount],
		SourceCurrency:        fields[FieldSourceCurrency],
		Confirmations:         fields[FieldConfirmations],
		ExpectedConfirmations: fields[FieldExpectedConfirmations],
		OrderNumber:           fields[FieldOrderNumber],
		Signature:             fields[FieldSignature],
	}
	if cb.InvoiceID == "" || cb.Status == "" {
		return Callback{}, fmt.Errorf("%w: %s and %s are required", ErrMalformedPayload, FieldInvoiceID, FieldStatus)
	}
	return cb, nil
}

func parseFormFields(body string) (map[string]string, error) {
	vals, err := url.ParseQuery(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	out := make(map[string]string, len(vals))
	for k, v := range vals {
		if len(v) != 1 {
			return nil, fmt.Errorf("%w: field %s repeated", ErrMalformedPayload, k)
		}
		out[k] = v[0]
	}
	return out, nil
}

func parseJSONFields(body []byte) (map[string]string, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	out := make(map[string]string, len(obj))
	for k, v := range obj {
		v = bytes.TrimSpace(v)
		switch {
		case len(v) > 0 && v[0] == '"':
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				return nil, fmt.Errorf("%w: field %s: %v", ErrMalformedPayload, k, err)
			}
			out[k] = s
		case bytes.Equal(v, []byte("null")):
			out[k] = ""
		case len(v) > 0 && (v[0] == '{' || v[0] == '['):
			var buf bytes.Buffer
			if err := json.Compact(&buf, v); err != nil {
				return nil, fmt.Errorf("%w: field %s: %v", ErrMalformedPayload, k, err)
			}
			out[k] = buf.String()
		default:
			// numbers and booleans keep their literal text
			out[k] = string(v)
		}
	}
	return out, nil
}

var statusMap = map[string]orders.InvoiceStatus{
	"new":                 orders.InvoiceNew,
	"pending":             orders.InvoicePending,
	"pending internal":    orders.InvoicePending,
	"completed":           orders.InvoiceCompleted,
	"mismatch":            orders.InvoiceCompleted, // overpaid
	"expired":             orders.InvoiceExpired,
	"cancelled":           orders.InvoiceCancelled,
	"cancelled duplicate": orders.InvoiceCancelled,
	"error":               orders.InvoiceCancelled,
}

// MapStatus translates the gateway's status vocabulary to invoice statuses.
func MapStatus(external string) (orders.InvoiceStatus, error) {
	s, ok := statusMap[strings.ToLower(strings.TrimSpace(external))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, external)
	}
	return s, nil
}
