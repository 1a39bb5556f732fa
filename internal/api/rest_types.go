package api

import (
	"time"

	"sigserver/internal/logging"
)

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

type signatureRequest struct {
	Sig string `json:"sig"`
}

type signatureResponse struct {
	Sig string `json:"sig"`
}

type signatureSetResponse struct {
	Txid     string    `json:"txid"`
	Sigs     []*string `json:"sigs"`
	Complete bool      `json:"complete"`
}

type feerateResponse struct {
	Feerate float64 `json:"feerate"`
}

type spendRequest struct {
	VaultTxid string           `json:"vault_txid"`
	Addresses map[string]int64 `json:"addresses"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type spendAcceptedResponse struct {
	Accepted *bool `json:"accepted"`
}

type statusResponse struct {
	Version          string    `json:"version"`
	Major            int       `json:"major"`
	Minor            int       `json:"minor"`
	Patch            int       `json:"patch"`
	Built            string    `json:"built"`
	GitCommit        string    `json:"git_commit,omitempty"`
	ServerTime       time.Time `json:"server_time"`
	SignatureSets    int       `json:"signature_sets"`
	CachedFeerates   int       `json:"cached_feerates"`
	FeerateMock      *string   `json:"feerate_mock"`
	SpendProposals   int       `json:"spend_proposals"`
	SpendSubscribers int       `json:"spend_subscribers"`
}

type logQuery struct {
	Limit    int
	Level    logging.Level
	Category string
	Since    *time.Time
}
