package pricing_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kasir-pos/internal/cart"
	"github.com/noah-isme/kasir-pos/internal/catalog"
	"github.com/noah-isme/kasir-pos/internal/money"
	"github.com/noah-isme/kasir-pos/internal/pricing"
	"github.com/noah-isme/kasir-pos/internal/rates"
)

func TestComputeSpecExample(t *testing.T) {
	lines := []cart.Line{{ProductID: 1, Name: "Bayam", UnitPriceBase: 10000, Quantity: 2}}
	totals := pricing.Compute(lines, 1000)
	require.EqualValues(t, 20000, totals.Subtotal)
	require.EqualValues(t, 2000, totals.Tax)
	require.EqualValues(t, 22000, totals.Total)
}

func TestComputeEmptyCart(t *testing.T) {
	totals := pricing.Compute(nil, 1000)
	require.Zero(t, totals.Subtotal)
	require.Zero(t, totals.Tax)
	require.Zero(t, totals.Total)
}

func TestComputeAggregateRoundingHalfUp(t *testing.T) {
	// 3 lines of 33 minor units each: subtotal 99, 10% tax = 9.9 → 10.
	// Per-line rounding would have given 3*round(3.3) = 9.
	lines := []cart.Line{
		{ProductID: 1, UnitPriceBase: 33, Quantity: 1},
		{ProductID: 2, UnitPriceBase: 33, Quantity: 1},
		{ProductID: 3, UnitPriceBase: 33, Quantity: 1},
	}
	totals := pricing.Compute(lines, 1000)
	require.EqualValues(t, 99, totals.Subtotal)
	require.EqualValues(t, 10, totals.Tax)
	require.EqualValues(t, 109, totals.Total)
}

func TestComputeIgnoresNonPositiveQuantities(t *testing.T) {
	lines := []cart.Line{
		{ProductID: 1, UnitPriceBase: 100, Quantity: 2},
		{ProductID: 2, UnitPriceBase: 999, Quantity: 0},
	}
	totals := pricing.Compute(lines, 0)
	require.EqualValues(t, 200, totals.Subtotal)
	require.Zero(t, totals.Tax)
}

func TestComputeIsMonotonicUnderAdds(t *testing.T) {
	c := cart.New()
	prev := pricing.Compute(c.Lines(), 1000)
	items := []catalog.Product{
		{ID: 1, Title: "A", UnitPriceBase: 137},
		{ID: 2, Title: "B", UnitPriceBase: 9999},
		{ID: 1, Title: "A", UnitPriceBase: 137},
		{ID: 3, Title: "C", UnitPriceBase: 1},
	}
	for _, p := range items {
		require.NoError(t, c.AddItem(p, 1))
		cur := pricing.Compute(c.Lines(), 1000)
		require.GreaterOrEqual(t, cur.Subtotal, prev.Subtotal)
		require.GreaterOrEqual(t, cur.Tax, prev.Tax)
		require.GreaterOrEqual(t, cur.Total, prev.Total)
		prev = cur
	}
}

func TestToDisplayConvertsEachFigureIndependently(t *testing.T) {
	table := rates.Load(map[string]float64{"USD": 0.000065}, "IDR")
	totals := pricing.Totals{Subtotal: 20000, Tax: 2000, Total: 22000}

	res := pricing.ToDisplay(totals, "USD", table)
	require.Equal(t, "USD", res.Currency)
	require.InDelta(t, 1.3, res.SubtotalDisplay, 1e-9)
	require.InDelta(t, 0.13, res.TaxDisplay, 1e-9)
	require.InDelta(t, 1.43, money.Round2(res.TotalDisplay), 1e-9)
}

func TestToDisplayUnknownCurrencyDegradesToBase(t *testing.T) {
	table := rates.Load(map[string]float64{"USD": 0.000065}, "IDR")
	totals := pricing.Totals{Subtotal: 20000, Tax: 2000, Total: 22000}

	res := pricing.ToDisplay(totals, "XYZ", table)
	require.Equal(t, 22000.0, res.TotalDisplay)
}
