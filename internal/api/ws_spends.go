package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"sigserver/internal/spend"

	"github.com/gorilla/websocket"
)

// handleSpendStream pushes spend events over a websocket. Optional query
// parameters: txid restricts the stream to one proposal, history=N replays
// the last N retained events first.
func (h *RestHandler) handleSpendStream(w http.ResponseWriter, r *http.Request) {
	if !requireWSToken(w, r, h.AuthToken, h.Logger) {
		return
	}
	if h.SpendEvents == nil {
		writeWSError(w, r, h.Logger, wsError{
			Status:  http.StatusServiceUnavailable,
			Message: "spend events unavailable",
		})
		return
	}

	query := r.URL.Query()
	txid := strings.TrimSpace(query.Get("txid"))
	replay := 0
	if raw := strings.TrimSpace(query.Get("history")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeWSError(w, r, h.Logger, wsError{
				Status:  http.StatusBadRequest,
				Message: "invalid history",
			})
			return
		}
		replay = parsed
	}

	matches := func(evt spend.Event) bool {
		return txid == "" || evt.Txid == txid
	}
	output, cancel := h.SpendEvents.SubscribeFiltered(matches)
	defer cancel()

	var backlog []spend.Event
	if replay > 0 {
		for _, evt := range h.SpendEvents.History(0) {
			if matches(evt) {
				backlog = append(backlog, evt)
			}
		}
		if len(backlog) > replay {
			backlog = backlog[len(backlog)-replay:]
		}
	}

	serveWSStream(w, r, wsStreamConfig[spend.Event]{
		AllowedOrigins: h.AllowedOrigins,
		Output:         output,
		Logger:         h.Logger,
		PreWrite: func(conn *websocket.Conn) error {
			for _, evt := range backlog {
				if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
					return err
				}
				if err := conn.WriteJSON(evt); err != nil {
					return err
				}
			}
			return nil
		},
	})
}
