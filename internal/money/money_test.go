package money_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kasir-pos/internal/money"
)

func TestRoundHalfUp(t *testing.T) {
	cases := []struct {
		in   float64
		want int64
	}{
		{0, 0},
		{1.4, 1},
		{1.5, 2},
		{2.5, 3},
		{-1.5, -2},
		{15999.6, 16000},
		{math.NaN(), 0},
		{math.Inf(1), 0},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, money.RoundHalfUp(tc.in), "RoundHalfUp(%v)", tc.in)
	}
}

func TestRound2(t *testing.T) {
	require.InDelta(t, 1.43, money.Round2(1.4299999), 1e-9)
	require.InDelta(t, 1.43, money.Round2(1.425), 1e-9)
	require.InDelta(t, -1.43, money.Round2(-1.425), 1e-9)
	require.Equal(t, 0.0, money.Round2(math.NaN()))
}

func TestFormat(t *testing.T) {
	require.Equal(t, "22.000", money.Format(22000))
	require.Equal(t, "1.234.567", money.Format(1234567))
	require.Equal(t, "1,43", money.Format(1.43))
	require.Equal(t, "0", money.Format(0))
	require.Equal(t, "-5.000", money.Format(-5000))
	require.Equal(t, "12,05", money.Format(12.05))
}
