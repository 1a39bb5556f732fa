package api

import (
	"net/http"

	"sigserver/internal/event"
	"sigserver/internal/feerate"
	"sigserver/internal/logging"
	"sigserver/internal/metrics"
	"sigserver/internal/otel"
	"sigserver/internal/signature"
	"sigserver/internal/spend"

	"github.com/btcsuite/btcd/chaincfg"
)

type Options struct {
	Signatures     *signature.Store
	Feerates       *feerate.Cache
	Spends         *spend.Coordinator
	SpendEvents    *event.Bus[spend.Event]
	Logger         *logging.Logger
	Registry       *metrics.Registry
	AuthToken      string
	AllowedOrigins []string
	// AddressParams enables destination address checks on /requestspend.
	AddressParams *chaincfg.Params
}

func RegisterRoutes(mux *http.ServeMux, opts Options) {
	registry := opts.Registry
	if registry == nil {
		registry = metrics.Default
	}
	rest := &RestHandler{
		Signatures:     opts.Signatures,
		Feerates:       opts.Feerates,
		Spends:         opts.Spends,
		SpendEvents:    opts.SpendEvents,
		Logger:         opts.Logger,
		Registry:       registry,
		AuthToken:      opts.AuthToken,
		AllowedOrigins: opts.AllowedOrigins,
		AddressParams:  opts.AddressParams,
	}
	wrap := func(route string, handler http.Handler) http.Handler {
		return requestMiddleware(opts.Logger, registry, route, otel.HTTPMiddleware(route, handler))
	}
	token := opts.AuthToken

	mux.Handle("/sig/{txid}/{party}", wrap("/sig", restHandler(token, rest.handleSignature)))
	mux.Handle("/sigs/{txid}", wrap("/sigs", restHandler(token, rest.handleSignatureSet)))
	mux.Handle("/feerate/{type}/{txid}", wrap("/feerate", restHandler(token, rest.handleFeerate)))
	mux.Handle("/requestspend", wrap("/requestspend", restHandler(token, rest.handleRequestSpend)))
	mux.Handle("/acceptspend/{txid}/{address}/{party}", wrap("/acceptspend", restHandler(token, rest.handleAcceptSpend)))
	mux.Handle("/refusespend/{txid}/{address}/{party}", wrap("/refusespend", restHandler(token, rest.handleRefuseSpend)))
	mux.Handle("/spendaccepted/{txid}", wrap("/spendaccepted", restHandler(token, rest.handleSpendAccepted)))
	mux.Handle("/spendrequests", wrap("/spendrequests", restHandler(token, rest.handleSpendRequests)))
	mux.Handle("/ws/spends", wrap("/ws/spends", http.HandlerFunc(rest.handleSpendStream)))

	mux.Handle("/api/status", wrap("/api/status", restHandler(token, rest.handleStatus)))
	mux.Handle("/api/logs", wrap("/api/logs", restHandler(token, rest.handleLogs)))
	mux.Handle("/ws/logs", wrap("/ws/logs", http.HandlerFunc(rest.handleLogStream)))
	mux.Handle("/metrics", wrap("/metrics", restHandler(token, rest.handleMetrics)))
}

// RestHandler serves the coordinator's HTTP surface.
type RestHandler struct {
	Signatures     *signature.Store
	Feerates       *feerate.Cache
	Spends         *spend.Coordinator
	SpendEvents    *event.Bus[spend.Event]
	Logger         *logging.Logger
	Registry       *metrics.Registry
	AuthToken      string
	AllowedOrigins []string
	AddressParams  *chaincfg.Params
}
