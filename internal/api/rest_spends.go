package api

import (
	"net/http"
	"strings"

	"sigserver/internal/spend"
)

func (h *RestHandler) requireSpends() *apiError {
	if h.Spends == nil {
		return &apiError{Status: http.StatusServiceUnavailable, Message: "spend coordinator unavailable"}
	}
	return nil
}

func (h *RestHandler) handleRequestSpend(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodPost {
		return methodNotAllowed(w, "POST")
	}
	if err := h.requireSpends(); err != nil {
		return err
	}

	var request spendRequest
	if apiErr := decodeJSONBody(w, r, &request); apiErr != nil {
		return apiErr
	}
	txid := strings.TrimSpace(request.VaultTxid)
	if txid == "" {
		return &apiError{Status: http.StatusBadRequest, Message: "missing vault_txid"}
	}

	destinations := spend.DestinationsFromMap(request.Addresses)
	if h.AddressParams != nil {
		if err := spend.ValidateDestinations(destinations, h.AddressParams); err != nil {
			return &apiError{Status: http.StatusBadRequest, Message: err.Error()}
		}
	}

	h.Spends.Propose(txid, destinations)
	writeJSON(w, http.StatusCreated, successResponse{Success: true})
	return nil
}

func (h *RestHandler) handleAcceptSpend(w http.ResponseWriter, r *http.Request) *apiError {
	return h.vote(w, r, true)
}

func (h *RestHandler) handleRefuseSpend(w http.ResponseWriter, r *http.Request) *apiError {
	return h.vote(w, r, false)
}

func (h *RestHandler) vote(w http.ResponseWriter, r *http.Request, accepted bool) *apiError {
	if r.Method != http.MethodPost {
		return methodNotAllowed(w, "POST")
	}
	if err := h.requireSpends(); err != nil {
		return err
	}
	party, apiErr := parseParty(r.PathValue("party"))
	if apiErr != nil {
		return apiErr
	}
	if err := h.Spends.VoteAt(r.PathValue("txid"), r.PathValue("address"), party, accepted); err != nil {
		return errorFor(err)
	}
	writeJSON(w, http.StatusCreated, successResponse{Success: true})
	return nil
}

func (h *RestHandler) handleSpendAccepted(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	if err := h.requireSpends(); err != nil {
		return err
	}
	status, err := h.Spends.Status(r.PathValue("txid"))
	if err != nil {
		return errorFor(err)
	}
	writeJSON(w, http.StatusOK, spendAcceptedResponse{Accepted: status.Accepted()})
	return nil
}

func (h *RestHandler) handleSpendRequests(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	if err := h.requireSpends(); err != nil {
		return err
	}
	proposals := h.Spends.Proposals()
	response := make(map[string]map[string]int64, len(proposals))
	for txid, destinations := range proposals {
		response[txid] = spend.DestinationsToMap(destinations)
	}
	writeJSON(w, http.StatusOK, response)
	return nil
}
