package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/mtfbacktest/pkg/market"
)

var testStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// closeFrame builds a frame with open/high/low equal to close.
func closeFrame(t *testing.T, tf string, closes []float64) *market.Frame {
	t.Helper()
	timeframe := market.MustParseTimeframe(tf)
	bars := make([]market.Bar, len(closes))
	for i, c := range closes {
		bars[i] = market.Bar{
			Timestamp: testStart.Add(time.Duration(i) * timeframe.Duration()),
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			Volume:    1,
		}
	}
	f, err := market.FromBars("BTCUSDT", timeframe, bars)
	require.NoError(t, err)
	return f
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// withLevels adds flat support and resistance columns.
func withLevels(t *testing.T, f *market.Frame, support, resistance float64) *market.Frame {
	t.Helper()
	require.NoError(t, f.SetColumn(market.ColumnSupport, constant(f.Len(), support)))
	require.NoError(t, f.SetColumn(market.ColumnResistance, constant(f.Len(), resistance)))
	return f
}
