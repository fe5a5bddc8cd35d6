package engine

import "math"

// Sizer converts free cash into a lot size using the configured allocation
// fraction and leverage.
type Sizer struct {
	allocation float64
	leverage   float64
}

// NewSizer creates a Sizer.
//
//   - allocation: fraction of free cash reserved as margin per entry
//     (e.g. 0.25 for 25%).
//   - leverage: multiplier applied to the reserved margin to obtain buying
//     power (1 for a cash account).
func NewSizer(allocation, leverage float64) *Sizer {
	return &Sizer{
		allocation: allocation,
		leverage:   leverage,
	}
}

// Size returns the margin to reserve and the whole number of shares that
// the leveraged buying power covers at price. ok is false when the buying
// power does not cover a single share.
func (s *Sizer) Size(freeCash, price float64) (margin float64, shares int64, ok bool) {
	margin = freeCash * s.allocation
	power := margin * s.leverage
	if power < price {
		return margin, 0, false
	}
	return margin, int64(math.Floor(power / price)), true
}
