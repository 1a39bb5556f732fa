package api

import (
	"net/http"
	"strings"

	"sigserver/internal/logging"
)

// handleLogStream pushes new log entries over a websocket, filtered by the
// same level and category parameters as /api/logs.
func (h *RestHandler) handleLogStream(w http.ResponseWriter, r *http.Request) {
	if !requireWSToken(w, r, h.AuthToken, h.Logger) {
		return
	}
	if h.Logger == nil {
		writeWSError(w, r, h.Logger, wsError{
			Status:  http.StatusServiceUnavailable,
			Message: "log stream unavailable",
		})
		return
	}

	query := r.URL.Query()
	var minLevel logging.Level
	if raw := strings.TrimSpace(query.Get("level")); raw != "" {
		level, ok := logging.ParseLevel(raw)
		if !ok {
			writeWSError(w, r, h.Logger, wsError{
				Status:  http.StatusBadRequest,
				Message: "invalid log level",
			})
			return
		}
		minLevel = level
	}

	output, cancel := h.Logger.Subscribe(minLevel, strings.TrimSpace(query.Get("category")))
	defer cancel()

	serveWSStream(w, r, wsStreamConfig[logging.LogEntry]{
		AllowedOrigins: h.AllowedOrigins,
		Output:         output,
		Logger:         h.Logger,
	})
}
