package api

import (
	"net/http"
	"time"

	"sigserver/internal/version"
)

func (h *RestHandler) handleStatus(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}

	versionInfo := version.GetVersionInfo()
	response := statusResponse{
		Version:          versionInfo.Version,
		Major:            versionInfo.Major,
		Minor:            versionInfo.Minor,
		Patch:            versionInfo.Patch,
		Built:            versionInfo.Built,
		GitCommit:        versionInfo.GitCommit,
		ServerTime:       time.Now().UTC(),
		SpendSubscribers: h.SpendEvents.SubscriberCount(),
	}
	if h.Signatures != nil {
		response.SignatureSets = h.Signatures.Len()
	}
	if h.Feerates != nil {
		response.CachedFeerates = h.Feerates.Len()
		if mock, ok := h.Feerates.Mock(); ok {
			value := mock.String()
			response.FeerateMock = &value
		}
	}
	if h.Spends != nil {
		response.SpendProposals = len(h.Spends.Proposals())
	}
	writeJSON(w, http.StatusOK, response)
	return nil
}

func (h *RestHandler) handleMetrics(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := h.Registry.WritePrometheus(w); err != nil {
		h.Logger.Warn("metrics write failed", map[string]string{
			"error": err.Error(),
		})
	}
	return nil
}
