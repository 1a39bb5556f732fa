package api

import (
	"net/http"

	"sigserver/internal/feerate"
)

func (h *RestHandler) handleFeerate(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		return methodNotAllowed(w, "GET, POST")
	}
	if h.Feerates == nil {
		return &apiError{Status: http.StatusServiceUnavailable, Message: "feerate cache unavailable"}
	}
	txType, err := feerate.ParseTxType(r.PathValue("type"))
	if err != nil {
		return errorFor(err)
	}
	rate, err := h.Feerates.Get(r.Context(), txType, r.PathValue("txid"))
	if err != nil {
		return errorFor(err)
	}
	writeJSON(w, http.StatusOK, feerateResponse{Feerate: rate.InexactFloat64()})
	return nil
}
