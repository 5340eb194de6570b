package signal

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contactkeval/option-income-scanner/internal/data"
	"github.com/contactkeval/option-income-scanner/internal/scan/engine"
	"github.com/contactkeval/option-income-scanner/internal/scan/strategy"
)

// barsEndingAt builds n-1 closes alternating 100/102 followed by last.
func barsEndingAt(n int, last float64) []data.Bar {
	start := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	bars := make([]data.Bar, n)
	for i := range bars {
		c := 100.0
		if i%2 == 1 {
			c = 102
		}
		if i == n-1 {
			c = last
		}
		bars[i] = data.Bar{Date: start.AddDate(0, 0, i), Close: c}
	}
	return bars
}

func TestBollinger(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = float64(i + 1)
	}
	b, points, err := Bollinger(closes, 20, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, points)
	assert.InDelta(t, 10.5, b.Middle, 1e-9)
	assert.InDelta(t, 10.5+2*math.Sqrt(35), b.Upper, 1e-9)
	assert.InDelta(t, 10.5-2*math.Sqrt(35), b.Lower, 1e-9)

	_, _, err = Bollinger(closes[:5], 20, 2)
	assert.ErrorIs(t, err, ErrNotEnoughData)
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name    string
		bars    []data.Bar
		verdict Verdict
		reason  string
	}{
		{"near lower band", barsEndingAt(50, 90), Good, "price is near the bottom band"},
		{"inside bands", barsEndingAt(50, 101), Wait, "price is in the middle"},
		{"near upper band", barsEndingAt(50, 110), Not, "price is near the top band"},
		{"short history", barsEndingAt(40, 90), Wait, "not enough history yet"},
		{"no data", barsEndingAt(10, 90), Wait, "not enough data"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Evaluate("T", tt.bars, Config{})
			assert.Equal(t, tt.verdict, s.Verdict)
			assert.Equal(t, tt.reason, s.Reason)
		})
	}
}

func TestWithEarnings(t *testing.T) {
	good := Evaluate("T", barsEndingAt(50, 90), Config{})
	require.Equal(t, Good, good.Verdict)

	e := &engine.Earnings{Date: time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC), BeforeExpiry: true}
	csp := strategy.Config{Variant: strategy.CashSecuredPut, PutMode: strategy.PutOTM}

	s := WithEarnings(good, csp, e)
	assert.Equal(t, Wait, s.Verdict)
	assert.Equal(t, "earnings is coming up: 2024-08-01", s.Reason)

	assert.Equal(t, Good, WithEarnings(good, strategy.Config{Variant: strategy.DeepITMCall}, e).Verdict, "calls are not overridden")
	assert.Equal(t, Good, WithEarnings(good, csp, &engine.Earnings{Date: e.Date}).Verdict, "earnings after expiry")
	assert.Equal(t, Good, WithEarnings(good, csp, nil).Verdict)
}

func TestForTicker(t *testing.T) {
	prov := data.NewSyntheticProvider(map[string]float64{"SPY": 450})
	asOf := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

	s, err := ForTicker(context.Background(), prov, "SPY", asOf, Config{})
	require.NoError(t, err)
	assert.Equal(t, "SPY", s.Ticker)
	assert.Greater(t, s.Points, DefaultMinHistory)
	require.NotNil(t, s.Bands)
	assert.Less(t, s.Bands.Lower, s.Bands.Upper)
	assert.Contains(t, []Verdict{Good, Wait, Not}, s.Verdict)
}
