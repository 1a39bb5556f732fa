package spend

import (
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// Destination is one output of a proposed spend.
type Destination struct {
	Address string         `json:"address"`
	Amount  btcutil.Amount `json:"amount"`
}

// DestinationsFromMap converts the wire form (address -> satoshis) into a
// slice ordered by address.
func DestinationsFromMap(addresses map[string]int64) []Destination {
	destinations := make([]Destination, 0, len(addresses))
	for address, amount := range addresses {
		destinations = append(destinations, Destination{Address: address, Amount: btcutil.Amount(amount)})
	}
	sort.Slice(destinations, func(i, j int) bool {
		return destinations[i].Address < destinations[j].Address
	})
	return destinations
}

// DestinationsToMap is the inverse of DestinationsFromMap. Repeated addresses
// are summed.
func DestinationsToMap(destinations []Destination) map[string]int64 {
	out := make(map[string]int64, len(destinations))
	for _, destination := range destinations {
		out[destination.Address] += int64(destination.Amount)
	}
	return out
}

// ValidateDestinations checks that every address decodes for params and
// every amount is positive.
func ValidateDestinations(destinations []Destination, params *chaincfg.Params) error {
	if len(destinations) == 0 {
		return fmt.Errorf("no destinations")
	}
	for _, destination := range destinations {
		addr, err := btcutil.DecodeAddress(destination.Address, params)
		if err != nil {
			return fmt.Errorf("invalid address %q: %w", destination.Address, err)
		}
		if !addr.IsForNet(params) {
			return fmt.Errorf("address %q is not for network %s", destination.Address, params.Name)
		}
		if destination.Amount <= 0 || destination.Amount > btcutil.MaxSatoshi {
			return fmt.Errorf("invalid amount %d for %q", int64(destination.Amount), destination.Address)
		}
	}
	return nil
}

func cloneDestinations(destinations []Destination) []Destination {
	if destinations == nil {
		return []Destination{}
	}
	out := make([]Destination, len(destinations))
	copy(out, destinations)
	return out
}
