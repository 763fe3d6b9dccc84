package httpx

import (
	"context"
	"encoding/json"
	"github.com/SatriaFarel/BookPoint/internal/logger"
	"github.com/SatriaFarel/BookPoint/internal/orders"
	"github.com/SatriaFarel/BookPoint/internal/redisx"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"net/http"
	"strings"
	"time"
)

// Cache is the optional Redis side of the API. A nil Cache disables
// caching; the database stays the source of truth, idempotency keys
// included.
type Cache interface {
	SetOrderStatus(ctx context.Context, orderID string, e redisx.StatusEntry) error
	OrderStatus(ctx context.Context, orderID string) (redisx.StatusEntry, bool, error)
	SellerSummary(ctx context.Context, sellerID string) (orders.SellerSummary, bool, error)
	PutSellerSummary(ctx context.Context, s orders.SellerSummary) error
	InvalidateSeller(ctx context.Context, sellerID string) error
	CheckoutFor(ctx context.Context, customerID, key string) (string, bool, error)
	RememberCheckout(ctx context.Context, customerID, key, orderID string) error
}

type OrdersHandler struct {
	Orders  *orders.Service
	Sweeper *orders.Sweeper
	Cache   Cache
	// Limiter throttles checkout per client IP when set.
	Limiter *RateLimiter
}

type CheckoutResp struct {
	OrderID    string        `json:"order_id"`
	Status     orders.Status `json:"status"`
	TotalPrice int64         `json:"total_price"`
	Idempotent bool          `json:"idempotent"`
}

type ShipmentReq struct {
	Carrier        string `json:"carrier"`
	TrackingNumber string `json:"tracking_number"`
}

type RejectResp struct {
	Order  orders.Order `json:"order"`
	Notice string       `json:"notice"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		if h.Limiter != nil {
			r.Use(h.Limiter.Middleware)
		}
		r.Post("/orders", h.checkout)
	})
	r.Post("/orders/sweep", h.sweep)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getStatus)
	r.Get("/orders/{id}/invoice", h.getInvoice)
	r.Post("/orders/{id}/approve", h.approve)
	r.Post("/orders/{id}/reject", h.reject)
	r.Post("/orders/{id}/shipment", h.shipment)
	r.Post("/orders/{id}/confirm", h.confirm)
	r.Get("/customers/{id}/orders", h.customerOrders)
}

func (h *OrdersHandler) checkout(w http.ResponseWriter, r *http.Request) {
	var req orders.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	log := logger.FromContext(ctx)

	// Redis only short-cuts retries; PlaceOrder claims the key in the
	// database either way.
	req.IdempotencyKey = strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if req.IdempotencyKey != "" && h.Cache != nil {
		if id, ok, err := h.Cache.CheckoutFor(ctx, req.CustomerID, req.IdempotencyKey); err != nil {
			log.Warn("idempotency lookup", zap.Error(err))
		} else if ok {
			if o, err := h.Orders.Order(ctx, id); err == nil && o.CustomerID == req.CustomerID {
				writeJSON(w, http.StatusOK, CheckoutResp{OrderID: o.ID, Status: o.Status, TotalPrice: o.TotalPrice, Idempotent: true})
				return
			}
		}
	}

	o, replayed, err := h.Orders.PlaceOrder(ctx, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if req.IdempotencyKey != "" && h.Cache != nil {
		if err := h.Cache.RememberCheckout(ctx, req.CustomerID, req.IdempotencyKey, o.ID); err != nil {
			log.Warn("remember idempotency key", zap.Error(err))
		}
	}
	resp := CheckoutResp{OrderID: o.ID, Status: o.Status, TotalPrice: o.TotalPrice, Idempotent: replayed}
	if replayed {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	h.refreshCache(ctx, o)
	writeJSON(w, http.StatusCreated, resp)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.Order(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// getStatus answers from the status cache first and falls back to the
// database, refilling the cache.
func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if h.Cache != nil {
		if e, ok, err := h.Cache.OrderStatus(ctx, id); err == nil && ok {
			writeJSON(w, http.StatusOK, e)
			return
		}
	}
	o, err := h.Orders.Order(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	e := redisx.StatusEntry{Status: o.Status, UpdatedAt: o.UpdatedAt}
	if h.Cache != nil {
		_ = h.Cache.SetOrderStatus(ctx, id, e)
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *OrdersHandler) getInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.Orders.Invoice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *OrdersHandler) approve(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.Approve(r.Context(), chi.URLParam(r, "id"))
	h.respondTransition(w, r, o, err)
}

func (h *OrdersHandler) reject(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.Reject(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.refreshCache(r.Context(), o)
	writeJSON(w, http.StatusOK, RejectResp{Order: o, Notice: orders.RefundNotice})
}

func (h *OrdersHandler) shipment(w http.ResponseWriter, r *http.Request) {
	var req ShipmentReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	o, err := h.Orders.RecordShipment(r.Context(), chi.URLParam(r, "id"), req.Carrier, req.TrackingNumber)
	h.respondTransition(w, r, o, err)
}

func (h *OrdersHandler) confirm(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.ConfirmReceipt(r.Context(), chi.URLParam(r, "id"))
	h.respondTransition(w, r, o, err)
}

func (h *OrdersHandler) sweep(w http.ResponseWriter, r *http.Request) {
	if h.Sweeper == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "sweeper not configured"})
		return
	}
	res, err := h.Sweeper.Run(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *OrdersHandler) customerOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.Orders.CustomerOrders(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *OrdersHandler) respondTransition(w http.ResponseWriter, r *http.Request, o orders.Order, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.refreshCache(r.Context(), o)
	writeJSON(w, http.StatusOK, o)
}

// refreshCache writes the new status through and drops the seller summary.
// Cache failures are logged only.
func (h *OrdersHandler) refreshCache(ctx context.Context, o orders.Order) {
	if h.Cache == nil {
		return
	}
	log := logger.FromContext(ctx)
	if err := h.Cache.SetOrderStatus(ctx, o.ID, redisx.StatusEntry{Status: o.Status, UpdatedAt: o.UpdatedAt}); err != nil {
		log.Warn("cache order status", zap.String("order_id", o.ID), zap.Error(err))
	}
	if err := h.Cache.InvalidateSeller(ctx, o.SellerID); err != nil {
		log.Warn("invalidate seller summary", zap.String("seller_id", o.SellerID), zap.Error(err))
	}
}
