package httpx

import (
	"github.com/SatriaFarel/BookPoint/internal/logger"
	"github.com/SatriaFarel/BookPoint/internal/orders"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"net/http"
	"strconv"
)

type SellersHandler struct {
	Settlement *orders.Settlement
	Orders     *orders.Service
	Cache      Cache
}

type SellerOrder struct {
	orders.Order
	Quantity int `json:"quantity"`
}

type SellerOrdersPage struct {
	Data  []SellerOrder `json:"data"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
	Total int           `json:"total"`
}

func (h *SellersHandler) Register(r chi.Router) {
	r.Get("/sellers/{id}/summary", h.summary)
	r.Get("/sellers/{id}/orders", h.sellerOrders)
	r.Get("/sellers/{id}/sales", h.sales)
}

func (h *SellersHandler) summary(w http.ResponseWriter, r *http.Request) {
	sellerID := chi.URLParam(r, "id")
	ctx := r.Context()

	if h.Cache != nil {
		if s, ok, err := h.Cache.SellerSummary(ctx, sellerID); err == nil && ok {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	s, err := h.Settlement.SellerSummary(ctx, sellerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if h.Cache != nil {
		if err := h.Cache.PutSellerSummary(ctx, s); err != nil {
			logger.FromContext(ctx).Warn("cache seller summary", zap.String("seller_id", sellerID), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *SellersHandler) sellerOrders(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		badRequest(w, "page must be a positive integer")
		return
	}
	limit, err := queryInt(r, "limit", 10)
	if err != nil {
		badRequest(w, "limit must be a positive integer")
		return
	}
	if limit > 100 {
		limit = 100
	}

	list, total, err := h.Orders.SellerOrders(r.Context(), chi.URLParam(r, "id"), page, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := SellerOrdersPage{Data: make([]SellerOrder, 0, len(list)), Page: page, Limit: limit, Total: total}
	for _, o := range list {
		out.Data = append(out.Data, SellerOrder{Order: o, Quantity: o.Quantity()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *SellersHandler) sales(w http.ResponseWriter, r *http.Request) {
	rep, err := h.Settlement.SalesReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, strconv.ErrSyntax
	}
	return n, nil
}
