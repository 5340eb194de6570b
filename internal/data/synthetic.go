package data

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/contactkeval/option-income-scanner/internal/pricing"
)

// synthDataProvider implements Provider with deterministic synthetic data:
// the same ticker always yields the same price, volatility and chain, which
// keeps offline scans and tests reproducible.
type synthDataProvider struct {
	prices map[string]float64 // optional price overrides; 0 means "no price"
	rate   float64
	now    func() time.Time
}

// NewSyntheticProvider returns a provider pricing its chains with
// Black-Scholes. prices may pin the underlying price of selected tickers.
func NewSyntheticProvider(prices map[string]float64) Provider {
	p := make(map[string]float64, len(prices))
	for k, v := range prices {
		p[strings.ToUpper(k)] = v
	}
	return &synthDataProvider{prices: p, rate: 0.04, now: time.Now}
}

func (synthDataProv *synthDataProvider) seed(ticker string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.ToUpper(ticker)))
	return h.Sum64()
}

func (synthDataProv *synthDataProvider) price(ticker string) (float64, error) {
	if ticker == "" {
		return 0, ErrNoPrice
	}
	if p, ok := synthDataProv.prices[strings.ToUpper(ticker)]; ok {
		if p <= 0 {
			return 0, fmt.Errorf("%s: %w", ticker, ErrNoPrice)
		}
		return p, nil
	}
	s := synthDataProv.seed(ticker)
	return math.Round((20+float64(s%28000)/100)*100) / 100, nil
}

// volatility is an annualised IV in [0.20, 0.60).
func (synthDataProv *synthDataProvider) volatility(ticker string) float64 {
	return 0.20 + float64(synthDataProv.seed(ticker)%40)/100
}

func (synthDataProv *synthDataProvider) GetQuote(ctx context.Context, ticker string) (Quote, error) {
	if err := ctx.Err(); err != nil {
		return Quote{}, err
	}
	p, err := synthDataProv.price(ticker)
	if err != nil {
		return Quote{}, err
	}
	return Quote{Ticker: strings.ToUpper(ticker), Price: p, AsOf: synthDataProv.now()}, nil
}

// GetExpirations lists the next eight weekly Friday expirations.
func (synthDataProv *synthDataProvider) GetExpirations(ctx context.Context, ticker string, asOf time.Time) ([]time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := synthDataProv.price(ticker); err != nil {
		return nil, err
	}
	d := DateOnly(asOf)
	for d.Weekday() != time.Friday {
		d = d.AddDate(0, 0, 1)
	}
	out := make([]time.Time, 0, 8)
	for i := 0; i < 8; i++ {
		out = append(out, d.AddDate(0, 0, 7*i))
	}
	return out, nil
}

func (synthDataProv *synthDataProvider) GetChain(ctx context.Context, ticker string, expiry time.Time) (*Chain, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	S, err := synthDataProv.price(ticker)
	if err != nil {
		return nil, err
	}
	sigma := synthDataProv.volatility(ticker)
	days := DaysBetween(synthDataProv.now(), expiry)
	T := float64(max(days, 1)) / 365
	step := strikeStep(S)
	oiBase := int64(synthDataProv.seed(ticker) % 500)

	chain := &Chain{Underlying: strings.ToUpper(ticker), Expiration: DateOnly(expiry)}
	lo := math.Floor(S*0.7/step) * step
	hi := math.Ceil(S*1.3/step) * step
	for i, K := 0, lo; K <= hi+1e-9; i, K = i+1, K+step {
		K = math.Round(K*100) / 100
		for _, t := range []OptionType{Call, Put} {
			mid := pricing.BlackScholesPrice(t == Call, S, K, T, synthDataProv.rate, sigma)
			if mid < 0.01 {
				continue
			}
			chain.add(OptionContract{
				Underlying:        chain.Underlying,
				Expiration:        chain.Expiration,
				Type:              t,
				Strike:            K,
				Bid:               roundCents(mid * 0.97),
				Ask:               roundCents(mid * 1.03),
				LastPrice:         roundCents(mid),
				ImpliedVolatility: sigma,
				OpenInterest:      oiBase + int64(50*(i%7)),
			})
		}
	}
	if chain.Empty() {
		return nil, fmt.Errorf("%s %s: %w", ticker, expiry.Format(DateLayout), ErrNoOptions)
	}
	return chain, nil
}

// GetBars generates a seeded random walk ending near the current price.
func (synthDataProv *synthDataProvider) GetBars(ctx context.Context, ticker string, fromDate, toDate time.Time) ([]Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	price, err := synthDataProv.price(ticker)
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(int64(synthDataProv.seed(ticker))))
	var out []Bar
	for cur := DateOnly(fromDate); !cur.After(toDate); cur = cur.AddDate(0, 0, 1) {
		if cur.Weekday() == time.Saturday || cur.Weekday() == time.Sunday {
			continue
		}
		delta := rng.NormFloat64() * 0.01 * price
		open := price
		close := math.Max(0.01, price+delta)
		high := math.Max(open, close) + math.Abs(rng.NormFloat64()*0.003*price)
		low := math.Max(0.01, math.Min(open, close)-math.Abs(rng.NormFloat64()*0.003*price))
		out = append(out, Bar{Date: cur, Open: open, High: high, Low: low, Close: close, Volume: float64(1000 + rng.Intn(5000))})
		price = close
	}
	return out, nil
}

// strikeStep mimics listed strike spacing.
func strikeStep(price float64) float64 {
	switch {
	case price < 25:
		return 0.5
	case price < 100:
		return 1
	case price < 250:
		return 2.5
	default:
		return 5
	}
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
