package feerate

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

type TxType string

const (
	TxUnvault   TxType = "unvault"
	TxCancel    TxType = "cancel"
	TxSpend     TxType = "spend"
	TxEmergency TxType = "emergency"
)

var ErrInvalidTxType = errors.New("unsupported transaction type")

// ParseTxType accepts only the exact lowercase names; case and surrounding
// whitespace are not normalized.
func ParseTxType(value string) (TxType, error) {
	txType := TxType(value)
	if !txType.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidTxType, value)
	}
	return txType, nil
}

func (t TxType) Valid() bool {
	switch t {
	case TxUnvault, TxCancel, TxSpend, TxEmergency:
		return true
	default:
		return false
	}
}

// Policy describes how the oracle is queried for a transaction class.
type Policy struct {
	Target     int
	Mode       EstimateMode
	Multiplier decimal.Decimal
}

// PolicyFor returns the estimation policy for t. Emergency and cancel
// transactions are priced well above the estimate so they confirm quickly.
func PolicyFor(t TxType) Policy {
	switch t {
	case TxEmergency:
		return Policy{Target: 2, Mode: ModeConservative, Multiplier: decimal.NewFromInt(10)}
	case TxCancel:
		return Policy{Target: 2, Mode: ModeConservative, Multiplier: decimal.NewFromInt(5)}
	default:
		return Policy{Target: 3, Mode: ModeConservative, Multiplier: decimal.NewFromInt(1)}
	}
}
