package money

import (
	"math"
	"strconv"
	"strings"
)

// Amount is a monetary value in minor units of the base currency.
type Amount = int64

// RoundHalfUp rounds x to the nearest integer minor unit, halves away from zero.
func RoundHalfUp(x float64) Amount {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return Amount(math.Round(x))
}

// Round2 rounds x to two decimal places, halves away from zero.
func Round2(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return math.Round(x*100) / 100
}

// Format renders a display-currency amount with grouped thousands and at most
// two decimal places.
func Format(x float64) string {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return "0"
	}
	rounded := Round2(x)
	neg := rounded < 0
	if neg {
		rounded = -rounded
	}
	whole := int64(rounded)
	frac := math.Round((rounded - float64(whole)) * 100)

	digits := strconv.FormatInt(whole, 10)
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(d)
	}
	if frac > 0 {
		b.WriteByte(',')
		cents := strconv.FormatInt(int64(frac), 10)
		if len(cents) == 1 {
			b.WriteByte('0')
		}
		b.WriteString(cents)
	}
	return b.String()
}
