package httpx

import (
	"crypto/hmac"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/ariefcatur/go-crypto-shop/internal/admin"
	"github.com/ariefcatur/go-crypto-shop/internal/config"
	"github.com/ariefcatur/go-crypto-shop/internal/logging"
	"github.com/ariefcatur/go-crypto-shop/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const headerAdminID = "X-Admin-ID"

// AdminHandler serves /admin. Callers prove access with the shared ADMIN_TOKEN as a
// bearer token; X-Admin-ID names which allow-listed admin is acting. An empty Token
// disables the routes.
type AdminHandler struct {
	Admin  *admin.Service
	Admins config.AllowList
	Token  string
}

type CreateProductReq struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
}

type PriceReq struct {
	Price decimal.Decimal `json:"price"`
}

type RestockReq struct {
	Qty int `json:"qty"`
}

func (h *AdminHandler) Register(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(h.requireAdmin)
		r.Post("/products", h.createProduct)
		r.Patch("/products/{id}/price", h.updatePrice)
		r.Post("/products/{id}/restock", h.restock)
		r.Delete("/products/{id}", h.deactivate)
		r.Post("/orders/{id}/cancel", h.cancelOrder)
		r.Post("/orders/{id}/refund", h.refundOrder)
	})
}

func (h *AdminHandler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.tokenOK(r) {
			logging.FromContext(r.Context()).Warn("admin_unauthenticated", zap.String("remote", r.RemoteAddr))
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
			return
		}
		raw := r.Header.Get(headerAdminID)
		if raw == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing " + headerAdminID})
			return
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || !h.Admins.Contains(id) {
			logging.FromContext(r.Context()).Warn("admin_denied", zap.String("admin_id", raw))
			writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden"})
			return
		}
		log := logging.FromContext(r.Context()).With(zap.Int64("admin_id", id))
		next.ServeHTTP(w, r.WithContext(logging.WithContext(r.Context(), log)))
	})
}

func (h *AdminHandler) tokenOK(r *http.Request) bool {
	if h.Token == "" {
		return false
	}
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return hmac.Equal([]byte(got), []byte(h.Token))
}

func (h *AdminHandler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "name is required"})
		return
	}
	p, err := h.Admin.CreateProduct(r.Context(), orders.Product{
		Name: req.Name, Description: req.Description, Price: req.Price, Stock: req.Stock,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *AdminHandler) updatePrice(w http.ResponseWriter, r *http.Request) {
	var req PriceReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	p, err := h.Admin.UpdatePrice(r.Context(), chi.URLParam(r, "id"), req.Price)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *AdminHandler) restock(w http.ResponseWriter, r *http.Request) {
	var req RestockReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	p, err := h.Admin.Restock(r.Context(), chi.URLParam(r, "id"), req.Qty)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *AdminHandler) deactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.Admin.DeactivateProduct(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Admin.CancelOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *AdminHandler) refundOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Admin.RefundOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
