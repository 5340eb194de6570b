// Package signal computes the Bollinger band "simple signal" shown next to a
// selected scan result: whether now is a good moment to sell premium.
package signal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/contactkeval/option-income-scanner/internal/data"
	"github.com/contactkeval/option-income-scanner/internal/logger"
	"github.com/contactkeval/option-income-scanner/internal/scan/engine"
	"github.com/contactkeval/option-income-scanner/internal/scan/strategy"
)

type Verdict string

const (
	Good Verdict = "GOOD"
	Wait Verdict = "WAIT"
	Not  Verdict = "NOT"
)

// Defaults for Config.
const (
	DefaultPeriod     = 20
	DefaultWidth      = 2.0
	DefaultMinHistory = 30
	DefaultLookback   = 183 * 24 * time.Hour
)

// Closes within 1% of a band count as touching it.
const bandTolerance = 0.01

var ErrNotEnoughData = errors.New("not enough data")

type Config struct {
	Period     int           // moving average window
	Width      float64       // band half-width in standard deviations
	MinHistory int           // complete band points required for a verdict
	Lookback   time.Duration // history requested from the provider
}

func (c Config) withDefaults() Config {
	if c.Period <= 1 {
		c.Period = DefaultPeriod
	}
	if c.Width <= 0 {
		c.Width = DefaultWidth
	}
	if c.MinHistory <= 0 {
		c.MinHistory = DefaultMinHistory
	}
	if c.Lookback <= 0 {
		c.Lookback = DefaultLookback
	}
	return c
}

type Bands struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

type Signal struct {
	Ticker  string    `json:"ticker"`
	Verdict Verdict   `json:"verdict"`
	Reason  string    `json:"reason"`
	Action  string    `json:"action"`
	Close   float64   `json:"close,omitempty"`
	Bands   *Bands    `json:"bands,omitempty"`
	Points  int       `json:"points"`
	AsOf    time.Time `json:"as_of"`
}

// Bollinger returns the bands over the last period closes and the number of
// complete band points available in closes. The standard deviation is the
// sample deviation.
func Bollinger(closes []float64, period int, width float64) (Bands, int, error) {
	if period < 2 || len(closes) < period {
		return Bands{}, 0, fmt.Errorf("%w: %d closes for a %d period band", ErrNotEnoughData, len(closes), period)
	}
	window := stats.Float64Data(closes[len(closes)-period:])

	mean, err := stats.Mean(window)
	if err != nil {
		return Bands{}, 0, fmt.Errorf("failed to calculate mean: %v", err)
	}
	sd, err := stats.StandardDeviationSample(window)
	if err != nil {
		return Bands{}, 0, fmt.Errorf("failed to calculate the standard deviation: %v", err)
	}
	return Bands{
		Upper:  mean + width*sd,
		Middle: mean,
		Lower:  mean - width*sd,
	}, len(closes) - period + 1, nil
}

// Evaluate classifies the last close against its bands.
func Evaluate(ticker string, bars []data.Bar, cfg Config) Signal {
	cfg = cfg.withDefaults()
	s := Signal{Ticker: ticker, Verdict: Wait, Reason: "not enough data", Action: "wait"}

	closes := make([]float64, 0, len(bars))
	for _, b := range bars {
		if b.Close > 0 {
			closes = append(closes, b.Close)
			s.AsOf = b.Date
		}
	}
	bands, points, err := Bollinger(closes, cfg.Period, cfg.Width)
	if err != nil {
		return s
	}
	last := closes[len(closes)-1]
	s.Close, s.Bands, s.Points = last, &bands, points

	switch {
	case last <= bands.Lower*(1+bandTolerance):
		s.Verdict, s.Reason, s.Action = Good, "price is near the bottom band", "sell a put below the current price"
	case last < bands.Upper*(1-bandTolerance):
		s.Verdict, s.Reason, s.Action = Wait, "price is in the middle", "wait for price to move lower"
	default:
		s.Verdict, s.Reason, s.Action = Not, "price is near the top band", "wait (or use covered calls)"
	}
	if points < cfg.MinHistory {
		s.Verdict, s.Reason, s.Action = Wait, "not enough history yet", "wait for more data"
	}
	return s
}

// WithEarnings turns a cash-secured put signal into a wait when earnings
// fall on or before the option's expiry.
func WithEarnings(s Signal, cfg strategy.Config, e *engine.Earnings) Signal {
	if cfg.Variant != strategy.CashSecuredPut || e == nil || !e.BeforeExpiry {
		return s
	}
	s.Verdict = Wait
	s.Reason = "earnings is coming up: " + e.Date.Format(data.DateLayout)
	s.Action = "wait until earnings passes"
	return s
}

// ForTicker fetches daily bars up to asOf and evaluates them.
func ForTicker(ctx context.Context, prov data.Provider, ticker string, asOf time.Time, cfg Config) (Signal, error) {
	cfg = cfg.withDefaults()
	bars, err := prov.GetBars(ctx, ticker, asOf.Add(-cfg.Lookback), asOf)
	if err != nil {
		return Signal{}, fmt.Errorf("bars for %s: %w", ticker, err)
	}
	s := Evaluate(ticker, bars, cfg)
	logger.Debugf("event=signal ticker=%s verdict=%s points=%d", ticker, s.Verdict, s.Points)
	return s, nil
}
