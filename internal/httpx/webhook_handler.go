package httpx

import (
	"io"
	"net/http"

	"github.com/ariefcatur/go-crypto-shop/internal/payment"
	"github.com/go-chi/chi/v5"
)

const maxWebhookBody = 64 << 10

type WebhookHandler struct {
	Reconciler *payment.Reconciler
}

func (h *WebhookHandler) Register(r chi.Router) {
	r.Post("/webhooks/payment", h.payment)
	r.Get("/payment/success", landing("Payment received. You can return to the chat."))
	r.Get("/payment/fail", landing("Payment was not completed. You can request a new invoice from the chat."))
}

// payment answers 200 with an empty body for every accepted delivery, including
// redeliveries, so the gateway stops retrying.
func (h *WebhookHandler) payment(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		badRequest(w, "unreadable body")
		return
	}
	if _, err := h.Reconciler.Reconcile(r.Context(), body, r.Header.Get("Content-Type"), r.Header.Get("X-Signature")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func landing(msg string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(msg))
	}
}
