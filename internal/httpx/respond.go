package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ariefcatur/go-crypto-shop/internal/checkout"
	"github.com/ariefcatur/go-crypto-shop/internal/gateway"
	"github.com/ariefcatur/go-crypto-shop/internal/inventory"
	"github.com/ariefcatur/go-crypto-shop/internal/logging"
	"github.com/ariefcatur/go-crypto-shop/internal/orders"
	"go.uber.org/zap"
)

type errorBody struct {
	Error     string `json:"error"`
	ProductID string `json:"product_id,omitempty"`
	Requested int    `json:"requested,omitempty"`
	Available *int   `json:"available,omitempty"`
	OrderID   string `json:"order_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, gateway.ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, gateway.ErrMalformedPayload), errors.Is(err, gateway.ErrUnknownStatus):
		return http.StatusBadRequest
	case errors.Is(err, orders.ErrInsufficientStock), errors.Is(err, orders.ErrInvalidTransition):
		return http.StatusConflict
	case orders.IsValidation(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, orders.ErrUserNotFound), errors.Is(err, orders.ErrOrderNotFound), errors.Is(err, orders.ErrInvoiceNotFound):
		return http.StatusNotFound
	case errors.Is(err, checkout.ErrInvoiceUnavailable), errors.Is(err, gateway.ErrGateway):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeError maps domain errors to status codes. Server errors are logged and
// answered without internals.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	body := errorBody{Error: err.Error()}
	var ise *inventory.InsufficientStockError
	if errors.As(err, &ise) {
		body.ProductID, body.Requested = ise.ProductID, ise.Requested
		body.Available = &ise.Available
	}
	switch {
	case code == http.StatusBadGateway:
		logging.FromContext(r.Context()).Warn("upstream_failed", zap.Error(err))
		body.Error = "payment gateway unavailable"
	case code >= 500:
		logging.FromContext(r.Context()).Error("request_failed", zap.Error(err))
		body.Error = "internal error"
	}
	writeJSON(w, code, body)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}
