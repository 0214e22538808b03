package pricing

import (
	"github.com/noah-isme/kasir-pos/internal/cart"
	"github.com/noah-isme/kasir-pos/internal/money"
	"github.com/noah-isme/kasir-pos/internal/rates"
)

// Totals aggregates computed pricing components in base minor units.
type Totals struct {
	Subtotal money.Amount `json:"subtotal"`
	Tax      money.Amount `json:"tax"`
	Total    money.Amount `json:"total"`
}

// Result carries base totals together with their display-currency figures.
type Result struct {
	Totals
	Currency        string  `json:"currency"`
	SubtotalDisplay float64 `json:"subtotalDisplay"`
	TaxDisplay      float64 `json:"taxDisplay"`
	TotalDisplay    float64 `json:"totalDisplay"`
}

// Compute calculates cart totals for the given tax rate in basis points.
// Tax is rounded half-up once on the aggregate subtotal, never per line, so
// many small lines cannot accumulate rounding drift.
func Compute(lines []cart.Line, taxBps int) Totals {
	var subtotal money.Amount
	for _, l := range lines {
		if l.Quantity <= 0 {
			continue
		}
		subtotal += money.Amount(l.Quantity) * l.UnitPriceBase
	}
	if taxBps < 0 {
		taxBps = 0
	}
	tax := (subtotal*money.Amount(taxBps) + 5000) / 10000
	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Total:    subtotal + tax,
	}
}

// ToDisplay converts each figure into the display currency independently, so
// every number is individually convertible and roundable. It does not derive
// parts back from a converted total.
func ToDisplay(t Totals, currency string, table rates.Table) Result {
	return Result{
		Totals:          t,
		Currency:        currency,
		SubtotalDisplay: table.Convert(t.Subtotal, currency),
		TaxDisplay:      table.Convert(t.Tax, currency),
		TotalDisplay:    table.Convert(t.Total, currency),
	}
}
