package httpx

import (
	"encoding/json"
	"errors"
	"github.com/SatriaFarel/BookPoint/internal/logger"
	"github.com/SatriaFarel/BookPoint/internal/orders"
	"go.uber.org/zap"
	"net/http"
)

type errorBody struct {
	Error  string        `json:"error"`
	Reason orders.Reason `json:"reason,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to status codes. Anything unrecognised is a
// 500 and is logged with the request logger.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ce *orders.CheckoutError
	switch {
	case errors.As(err, &ce):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error(), Reason: ce.Reason})
	case errors.Is(err, orders.ErrInvalidCheckout):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error()})
	case errors.Is(err, orders.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, orders.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	default:
		logger.FromContext(r.Context()).Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}
