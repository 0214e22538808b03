package rates

import (
	"math"
	"sort"
)

// Table maps currency codes to conversion factors from the base currency.
// A table is built once per refresh and read-only afterwards.
type Table struct {
	base    string
	factors map[string]float64
}

// Load normalizes raw rate data into a Table. Entries with non-positive or
// non-finite factors are dropped rather than failing the whole table, so a
// single bad rate never blocks checkout for other currencies. The base
// currency is always pinned to factor 1.
func Load(raw map[string]float64, base string) Table {
	factors := make(map[string]float64, len(raw)+1)
	for code, factor := range raw {
		if code == "" {
			continue
		}
		if factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
			continue
		}
		factors[code] = factor
	}
	factors[base] = 1
	return Table{base: base, factors: factors}
}

// Empty returns a table containing only the base currency.
func Empty(base string) Table {
	return Load(nil, base)
}

// Base returns the base currency code.
func (t Table) Base() string { return t.base }

// Convert converts an amount in base minor units to the target currency.
// Unknown currencies convert with factor 1, degrading to a base-equivalent
// display instead of failing.
func (t Table) Convert(amountBase int64, target string) float64 {
	factor, ok := t.factors[target]
	if !ok {
		factor = 1
	}
	return float64(amountBase) * factor
}

// Factor returns the conversion factor for a currency and whether it is known.
func (t Table) Factor(code string) (float64, bool) {
	factor, ok := t.factors[code]
	return factor, ok
}

// Known reports whether the currency code has a rate in the table.
func (t Table) Known(code string) bool {
	_, ok := t.factors[code]
	return ok
}

// Currencies lists all selectable currency codes in sorted order. The base
// currency is always present.
func (t Table) Currencies() []string {
	out := make([]string, 0, len(t.factors))
	for code := range t.factors {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of currencies in the table.
func (t Table) Len() int { return len(t.factors) }
