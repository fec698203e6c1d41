package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ariefcatur/go-crypto-shop/internal/checkout"
	"github.com/ariefcatur/go-crypto-shop/internal/orders"
	"github.com/ariefcatur/go-crypto-shop/internal/redisx"
	"github.com/go-chi/chi/v5"
)

// Store is the read side the storefront handlers need next to checkout.
type Store interface {
	UpsertUser(ctx context.Context, u orders.User) (orders.User, error)
	ListProducts(ctx context.Context) ([]orders.Product, error)
	GetOrder(ctx context.Context, id string) (orders.Order, error)
	ListGrants(ctx context.Context, userID int64) ([]orders.Grant, error)
}

type OrdersHandler struct {
	Store    Store
	Checkout *checkout.Service
	Cache    *redisx.Cache // nil = tanpa cache
}

type CreateOrderReq struct {
	UserID int64              `json:"user_id"`
	Items  []orders.ItemInput `json:"items"`
}

type UpsertUserReq struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Post("/orders/{id}/invoice", h.resendInvoice)
	r.Get("/products", h.listProducts)
	r.Post("/users", h.upsertUser)
	r.Get("/users/{id}/purchases", h.listPurchases)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}

	// timeout mencakup call ke gateway
	ctx, cancel := context.WithTimeout(r.Context(), 12*time.Second)
	defer cancel()

	pl, err := h.Checkout.PlaceOrder(ctx, req.UserID, req.Items)
	if pl.Order.ID != "" {
		// stok berubah, daftar produk di cache jadi basi
		h.Cache.Invalidate(ctx, redisx.EntityProduct, "", redisx.EventUpdate)
	}
	if err != nil {
		if errors.Is(err, checkout.ErrInvoiceUnavailable) {
			writeJSON(w, http.StatusBadGateway, errorBody{Error: "payment gateway unavailable", OrderID: pl.Order.ID})
			return
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, pl)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 1) coba cache
	var view checkout.Placement
	if h.Cache.OrderView(ctx, orderID, &view) {
		writeJSON(w, http.StatusOK, view)
		return
	}

	// 2) fallback DB
	o, err := h.Store.GetOrder(ctx, orderID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	inv, err := h.Checkout.CurrentInvoice(ctx, orderID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	view = checkout.Placement{Order: o, Invoice: inv}
	if ttl, ok := orderViewTTL(view); ok {
		h.Cache.PutOrderView(ctx, orderID, view, ttl)
	}
	writeJSON(w, http.StatusOK, view)
}

// orderViewTTL decides how long a freshly read view may be cached. A webhook can
// commit and invalidate between our read and our write, so a view that can still
// change is either not cached (pending) or cached briefly.
func orderViewTTL(v checkout.Placement) (time.Duration, bool) {
	if v.Order.Status == orders.OrderPending {
		return 0, false
	}
	settled := v.Invoice == nil || v.Invoice.Status == orders.InvoiceCompleted
	if v.Order.Status.Final() && settled {
		return redisx.TTLOrderView, true
	}
	return redisx.TTLOrderViewLive, true
}

func (h *OrdersHandler) resendInvoice(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 12*time.Second)
	defer cancel()

	pl, err := h.Checkout.ResendInvoice(ctx, orderID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.Cache.Invalidate(ctx, redisx.EntityOrder, orderID, redisx.EventUpdate)
	writeJSON(w, http.StatusCreated, pl)
}

func (h *OrdersHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	var ps []orders.Product
	if h.Cache.Products(ctx, &ps) {
		writeJSON(w, http.StatusOK, ps)
		return
	}
	ps, err := h.Store.ListProducts(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.Cache.PutProducts(ctx, ps)
	writeJSON(w, http.StatusOK, ps)
}

func (h *OrdersHandler) upsertUser(w http.ResponseWriter, r *http.Request) {
	var req UpsertUserReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	if req.ID <= 0 {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "id must be a positive integer"})
		return
	}
	u, err := h.Store.UpsertUser(r.Context(), orders.User{ID: req.ID, Username: req.Username})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *OrdersHandler) listPurchases(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		badRequest(w, "invalid user id")
		return
	}
	gs, err := h.Store.ListGrants(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if gs == nil {
		gs = []orders.Grant{}
	}
	writeJSON(w, http.StatusOK, gs)
}
