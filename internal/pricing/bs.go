package pricing

import (
	"math"
)

// Side identifies the short option position whose profit probability is estimated.
type Side int

const (
	ShortCall Side = iota
	ShortPut
)

// DegenerateProbability is returned when volatility or time to expiry is not
// positive: maximal uncertainty rather than an error.
const DegenerateProbability = 0.5

const sqrt2Pi = 2.5066282746310002

// D2 returns the Black-Scholes d2 term under zero drift:
//
//	t  = max(days, 1) / 365
//	d2 = (ln(S/K) - 0.5*sigma^2*t) / (sigma*sqrt(t))
//
// Callers must ensure S, K, sigma and days are positive.
func D2(S, K float64, days int, sigma float64) float64 {
	t := float64(max(days, 1)) / 365
	return (math.Log(S/K) - 0.5*sigma*sigma*t) / (sigma * math.Sqrt(t))
}

// ProbabilityITM estimates the probability that the underlying finishes beyond
// the strike in the call direction, N(d2). Degenerate input yields 0.5.
func ProbabilityITM(S, K float64, days int, sigma float64) float64 {
	if degenerate(S, K, days, sigma) {
		return DegenerateProbability
	}
	return NormCDF(D2(S, K, days, sigma))
}

// ProbabilityOfProfit estimates the chance a short option expires worthless.
//
// A short put profits when the price stays above the strike (1 - N(d2)); a
// short call profits when it stays below (N(d2), following the dashboards this
// scanner replaces). The estimate assumes a zero-drift lognormal price process
// and ignores dividends, early assignment and volatility skew. It is a rough
// ranking aid, not a calibrated forecast.
//
// Returns exactly 0.5 when sigma <= 0 or days <= 0, and when any input is
// NaN or infinite.
func ProbabilityOfProfit(S, K float64, days int, sigma float64, side Side) float64 {
	if degenerate(S, K, days, sigma) {
		return DegenerateProbability
	}
	p := NormCDF(D2(S, K, days, sigma))
	if side == ShortPut {
		p = 1 - p
	}
	return math.Min(1, math.Max(0, p))
}

// degenerate reports inputs N(d2) is undefined for. The negated comparisons
// also reject NaN.
func degenerate(S, K float64, days int, sigma float64) bool {
	if days <= 0 || !(sigma > 0) || !(S > 0) || !(K > 0) {
		return true
	}
	return math.IsInf(sigma, 1) || math.IsInf(S, 1) || math.IsInf(K, 1)
}

// BlackScholesPrice calculates the price of a European option using the Black-Scholes model.
//
// Parameters:
//   - isCall: true for call option, false for put option
//   - S: spot price of the underlying asset
//   - K: strike price of the option
//   - T: time to expiry in years
//   - r: risk-free interest rate (annual)
//   - sigma: volatility of the underlying asset (annual, as a decimal)
//
// If time to expiry or volatility is zero or negative the intrinsic value is returned.
func BlackScholesPrice(
	isCall bool,
	S float64, // spot
	K float64, // strike
	T float64, // time to expiry in years
	r float64, // risk-free rate
	sigma float64, // volatility
) float64 {

	if !(T > 0) || !(sigma > 0) {
		if isCall {
			return math.Max(0, S-K)
		}
		return math.Max(0, K-S)
	}

	d1 := (math.Log(S/K) + (r+0.5*sigma*sigma)*T) / (sigma * math.Sqrt(T))
	d2 := d1 - sigma*math.Sqrt(T)

	if isCall {
		return S*NormCDF(d1) - K*math.Exp(-r*T)*NormCDF(d2)
	}
	return K*math.Exp(-r*T)*NormCDF(-d2) - S*NormCDF(-d1)
}

// NormPDF is the standard normal density exp(-x²/2)/sqrt(2π).
func NormPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / sqrt2Pi
}

// NormCDF computes the cumulative distribution function of the standard normal
// distribution using the error function.
func NormCDF(x float64) float64 {
	return 0.5 * (1.0 + math.Erf(x/math.Sqrt2))
}
