package payout

import (
	"fmt"
	"math"

	"github.com/btcsuite/btcutil"
)

// Satoshis converts a source-currency amount into the payout currency's
// smallest unit: floor(amount x rate x 1e8). The floor (never a round)
// guarantees the provider is never asked to pay out more than the converted
// value. Non-finite or non-positive inputs are rejected before any
// arithmetic.
func Satoshis(amount, rate float64) (int64, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, fmt.Errorf("payout: amount is not finite")
	}
	if amount <= 0 {
		return 0, fmt.Errorf("payout: amount must be positive, got %v", amount)
	}
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate <= 0 {
		return 0, fmt.Errorf("payout: invalid conversion rate %v", rate)
	}

	sats := math.Floor(amount * rate * btcutil.SatoshiPerBitcoin)
	if sats < 0 || sats > math.MaxInt64 {
		return 0, fmt.Errorf("payout: converted amount out of range")
	}
	return int64(sats), nil
}
