package pricing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// referenceNormCDF is the Abramowitz & Stegun 26.2.17 approximation
// (absolute error < 7.5e-8), independent of math.Erf.
func referenceNormCDF(x float64) float64 {
	const (
		p  = 0.2316419
		b1 = 0.319381530
		b2 = -0.356563782
		b3 = 1.781477937
		b4 = -1.821255978
		b5 = 1.330274429
	)
	if x < 0 {
		return 1 - referenceNormCDF(-x)
	}
	t := 1 / (1 + p*x)
	poly := t * (b1 + t*(b2+t*(b3+t*(b4+t*b5))))
	return 1 - NormPDF(x)*poly
}

func TestNormCDFMatchesReference(t *testing.T) {
	for _, x := range []float64{-4, -2.5, -1, -0.3, 0, 0.25, 0.48, 1, 1.96, 3.5} {
		assert.InDelta(t, referenceNormCDF(x), NormCDF(x), 1e-6, "x=%v", x)
	}
	assert.Equal(t, 0.5, NormCDF(0))
}

func TestProbabilityOfProfitShortPut(t *testing.T) {
	S, K, sigma, days := 50.0, 48.0, 0.40, 14

	tt := 14.0 / 365.0
	d2 := (math.Log(S/K) - 0.5*sigma*sigma*tt) / (sigma * math.Sqrt(tt))
	want := 1 - referenceNormCDF(d2)

	got := ProbabilityOfProfit(S, K, days, sigma, ShortPut)
	assert.InDelta(t, want, got, 1e-6)
	assert.InDelta(t, 0.3149, got, 1e-3)
	assert.InDelta(t, d2, D2(S, K, days, sigma), 1e-12)
}

func TestProbabilityOfProfitShortCall(t *testing.T) {
	got := ProbabilityOfProfit(50, 48, 14, 0.40, ShortCall)
	assert.InDelta(t, NormCDF(D2(50, 48, 14, 0.40)), got, 1e-12)
	assert.InDelta(t, 1, got+ProbabilityOfProfit(50, 48, 14, 0.40, ShortPut), 1e-12)
}

func TestProbabilityOfProfitDegenerate(t *testing.T) {
	cases := []struct {
		name  string
		sigma float64
		days  int
	}{
		{"zero vol", 0, 14},
		{"negative vol", -0.2, 14},
		{"zero days", 0.3, 0},
		{"negative days", 0.3, -5},
		{"NaN vol", math.NaN(), 14},
		{"infinite vol", math.Inf(1), 14},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, 0.5, ProbabilityOfProfit(50, 48, tc.days, tc.sigma, ShortPut))
			assert.Equal(t, 0.5, ProbabilityOfProfit(120, 10, tc.days, tc.sigma, ShortCall))
			assert.Equal(t, 0.5, ProbabilityITM(50, 48, tc.days, tc.sigma))
		})
	}
}

func TestProbabilityOfProfitBounded(t *testing.T) {
	for _, S := range []float64{1, 10, 50, 500} {
		for _, K := range []float64{0.5, 9, 50, 800} {
			for _, sigma := range []float64{0.01, 0.3, 2.5} {
				for _, days := range []int{1, 7, 45, 365} {
					for _, side := range []Side{ShortCall, ShortPut} {
						p := ProbabilityOfProfit(S, K, days, sigma, side)
						assert.GreaterOrEqual(t, p, 0.0)
						assert.LessOrEqual(t, p, 1.0)
					}
				}
			}
		}
	}
}

func TestBlackScholesPutCallParity(t *testing.T) {
	S, K, T, r, sigma := 100.0, 100.0, 45.0/365.0, 0.03, 0.25

	call := BlackScholesPrice(true, S, K, T, r, sigma)
	put := BlackScholesPrice(false, S, K, T, r, sigma)

	assert.Greater(t, call, 0.0)
	assert.InDelta(t, S-K*math.Exp(-r*T), call-put, 1e-9)
}

func TestBlackScholesIntrinsicFallback(t *testing.T) {
	assert.Equal(t, 10.0, BlackScholesPrice(true, 110, 100, 0, 0.02, 0.3))
	assert.Equal(t, 5.0, BlackScholesPrice(false, 95, 100, 0.1, 0.02, 0))
}
