package api

import (
	"net/http"
	"strconv"
	"strings"
)

func (h *RestHandler) handleSignature(w http.ResponseWriter, r *http.Request) *apiError {
	if h.Signatures == nil {
		return &apiError{Status: http.StatusServiceUnavailable, Message: "signature store unavailable"}
	}
	txid := r.PathValue("txid")
	party, apiErr := parseParty(r.PathValue("party"))
	if apiErr != nil {
		return apiErr
	}

	switch r.Method {
	case http.MethodGet:
		sig, err := h.Signatures.Get(txid, party)
		if err != nil {
			return errorFor(err)
		}
		writeJSON(w, http.StatusOK, signatureResponse{Sig: sig})
		return nil
	case http.MethodPost:
		sig, apiErr := readSignature(w, r)
		if apiErr != nil {
			return apiErr
		}
		stored, err := h.Signatures.Put(txid, party, sig)
		if err != nil {
			return errorFor(err)
		}
		h.Registry.IncSignatureStored()
		h.Logger.Info("signature stored", map[string]string{
			"sigserver.category": "signature",
			"txid":               txid,
			"party":              strconv.Itoa(party),
		})
		writeJSON(w, http.StatusCreated, signatureResponse{Sig: stored})
		return nil
	default:
		return methodNotAllowed(w, "GET, POST")
	}
}

// readSignature accepts the share either as form field "sig" or as a JSON body.
func readSignature(w http.ResponseWriter, r *http.Request) (string, *apiError) {
	var sig string
	if isJSONRequest(r) {
		var request signatureRequest
		if apiErr := decodeJSONBody(w, r, &request); apiErr != nil {
			return "", apiErr
		}
		sig = request.Sig
	} else {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
		if err := r.ParseForm(); err != nil {
			return "", &apiError{Status: http.StatusBadRequest, Message: "invalid form body"}
		}
		sig = r.PostForm.Get("sig")
	}
	if strings.TrimSpace(sig) == "" {
		return "", &apiError{Status: http.StatusBadRequest, Message: "missing signature"}
	}
	return sig, nil
}

func (h *RestHandler) handleSignatureSet(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	if h.Signatures == nil {
		return &apiError{Status: http.StatusServiceUnavailable, Message: "signature store unavailable"}
	}
	txid := r.PathValue("txid")
	set, ok := h.Signatures.Slots(txid)
	if !ok {
		return &apiError{Status: http.StatusNotFound, Message: "no signatures for txid"}
	}
	writeJSON(w, http.StatusOK, signatureSetResponse{
		Txid:     txid,
		Sigs:     set[:],
		Complete: set.Count() == len(set),
	})
	return nil
}
