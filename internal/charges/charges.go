// Package charges converts a fill into its transaction cost breakdown.
package charges

import (
	"fmt"

	"tradesim/internal/domain"
)

// BrokerageCap is the per-order brokerage ceiling in account currency.
const BrokerageCap = 20.0

// Rate keys expected for every side. Values are percentages.
const (
	KeyBrokerage   = "BROKERAGE"
	KeySTT         = "STT"
	KeyTransaction = "TRANSACTION"
	KeySEBI        = "SEBI"
	KeyGST         = "GST"
	KeyStamp       = "STAMP"
)

var requiredKeys = []string{KeyBrokerage, KeySTT, KeyTransaction, KeySEBI, KeyGST, KeyStamp}

// Schedule maps a side ("BUY", "SELL") to its rate table.
type Schedule map[string]map[string]float64

// rates is the validated rate table for one side, stored as fractions.
type rates struct {
	brokerage   float64
	stt         float64
	transaction float64
	sebi        float64
	gst         float64
	stamp       float64
}

// Calculator computes charges from a validated schedule.
type Calculator struct {
	sides map[domain.Side]rates
}

// New validates the schedule and returns a Calculator. Both sides must be
// present with every rate key.
func New(s Schedule) (*Calculator, error) {
	c := &Calculator{sides: make(map[domain.Side]rates, 2)}
	for _, side := range []domain.Side{domain.SideBuy, domain.SideSell} {
		table, ok := s[string(side)]
		if !ok {
			return nil, &domain.ConfigError{Field: "charges." + string(side), Msg: "missing rate table"}
		}
		for _, k := range requiredKeys {
			if _, ok := table[k]; !ok {
				return nil, &domain.ConfigError{Field: fmt.Sprintf("charges.%s.%s", side, k), Msg: "missing rate"}
			}
		}
		c.sides[side] = rates{
			brokerage:   table[KeyBrokerage] / 100,
			stt:         table[KeySTT] / 100,
			transaction: table[KeyTransaction] / 100,
			sebi:        table[KeySEBI] / 100,
			gst:         table[KeyGST] / 100,
			stamp:       table[KeyStamp] / 100,
		}
	}
	return c, nil
}

// Compute returns the charges for filling qty shares at price on side.
func (c *Calculator) Compute(price float64, qty int64, side domain.Side) (domain.Charges, error) {
	r, ok := c.sides[side]
	if !ok {
		return domain.Charges{}, &domain.ConfigError{Field: "charges." + string(side), Msg: "missing rate table"}
	}

	turnover := price * float64(qty)
	ch := domain.Charges{
		Brokerage:         min(turnover*r.brokerage, BrokerageCap),
		STT:               turnover * r.stt,
		TransactionCharge: turnover * r.transaction,
		SEBICharge:        turnover * r.sebi,
	}
	ch.GST = (ch.Brokerage + ch.TransactionCharge + ch.SEBICharge) * r.gst
	if side == domain.SideBuy {
		ch.StampDuty = turnover * r.stamp
	}
	ch.Total = ch.Brokerage + ch.STT + ch.TransactionCharge + ch.SEBICharge + ch.GST + ch.StampDuty
	return ch, nil
}
