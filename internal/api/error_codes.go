package api

import (
	"errors"
	"net/http"

	"sigserver/internal/feerate"
	"sigserver/internal/signature"
	"sigserver/internal/spend"
)

const codeOracleUnavailable = "oracle_unavailable"

func errorCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusBadGateway:
		return codeOracleUnavailable
	case http.StatusServiceUnavailable:
		return "service_unavailable"
	default:
		if status >= http.StatusInternalServerError {
			return "internal_error"
		}
	}
	return ""
}

// errorFor maps core errors onto HTTP statuses.
func errorFor(err error) *apiError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, signature.ErrNotFound), errors.Is(err, spend.ErrNotFound):
		return &apiError{Status: http.StatusNotFound, Message: err.Error()}
	case errors.Is(err, signature.ErrInvalidParty), errors.Is(err, feerate.ErrInvalidTxType):
		return &apiError{Status: http.StatusBadRequest, Message: err.Error()}
	case errors.Is(err, feerate.ErrOracle):
		return &apiError{Status: http.StatusBadGateway, Message: err.Error(), Code: codeOracleUnavailable}
	default:
		return &apiError{Status: http.StatusInternalServerError, Message: err.Error()}
	}
}
