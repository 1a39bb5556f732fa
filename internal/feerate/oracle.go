package feerate

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

type EstimateMode string

const (
	ModeConservative EstimateMode = "CONSERVATIVE"
	ModeEconomical   EstimateMode = "ECONOMICAL"
)

var ErrOracle = errors.New("feerate oracle failure")

// ErrNoEstimate is returned by oracles whose response lacks a usable rate.
var ErrNoEstimate = errors.New("could not estimate fees")

// Oracle estimates a fee rate for confirmation within target blocks.
type Oracle interface {
	EstimateFeerate(ctx context.Context, target int, mode EstimateMode) (decimal.Decimal, error)
}

type OracleFunc func(ctx context.Context, target int, mode EstimateMode) (decimal.Decimal, error)

func (f OracleFunc) EstimateFeerate(ctx context.Context, target int, mode EstimateMode) (decimal.Decimal, error) {
	return f(ctx, target, mode)
}

// UnavailableOracle fails every estimate. It backs the cache when no fee
// estimation backend is configured so that only the mock rate can be served.
type UnavailableOracle struct{}

var errOracleDisabled = errors.New("no fee estimation backend configured")

func (UnavailableOracle) EstimateFeerate(ctx context.Context, target int, mode EstimateMode) (decimal.Decimal, error) {
	return decimal.Zero, errOracleDisabled
}
