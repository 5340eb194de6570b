// Package data defines the market data Provider contract used by the scanner
// and its implementations (synthetic, Massive REST, Polygon SDK, local CSV and
// a caching decorator).
//
// Any retry, backoff or caching policy belongs to a Provider implementation;
// the evaluation pipeline only ever sees Quote, Chain and typed errors.
package data

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// DateLayout is the wire format of expiration and bar dates.
const DateLayout = "2006-01-02"

// Typed errors let the batch scanner map provider failures to reasons
// without string matching.
var (
	ErrNoPrice   = errors.New("no price available")
	ErrNoOptions = errors.New("no options available")
)

// OptionType is the side of an option contract.
type OptionType string

const (
	Call OptionType = "call"
	Put  OptionType = "put"
)

// ParseOptionType accepts "call"/"put" and the single-letter C/P forms.
func ParseOptionType(s string) (OptionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "call", "c":
		return Call, nil
	case "put", "p":
		return Put, nil
	}
	return "", fmt.Errorf("unknown option type %q", s)
}

// Provider supplies market data. Implementations must be safe for
// concurrent use; the scanner calls them from many workers at once.
type Provider interface {
	// GetQuote returns the latest underlying price. A missing or zero price
	// is reported as ErrNoPrice.
	GetQuote(ctx context.Context, ticker string) (Quote, error)
	// GetExpirations returns the sorted, unique expirations listed for ticker
	// on or after asOf.
	GetExpirations(ctx context.Context, ticker string, asOf time.Time) ([]time.Time, error)
	// GetChain returns calls and puts for one expiration.
	GetChain(ctx context.Context, ticker string, expiry time.Time) (*Chain, error)
	// GetBars returns daily bars in ascending date order.
	GetBars(ctx context.Context, ticker string, fromDate, toDate time.Time) ([]Bar, error)
}

// Quote is the current underlying price.
type Quote struct {
	Ticker string    `json:"ticker"`
	Price  float64   `json:"price"`
	AsOf   time.Time `json:"as_of"`
}

// OptionContract is one row of an option chain.
type OptionContract struct {
	Underlying        string     `json:"underlying"`
	Expiration        time.Time  `json:"expiration"`
	Type              OptionType `json:"type"`
	Strike            float64    `json:"strike"`
	Bid               float64    `json:"bid"`
	Ask               float64    `json:"ask"`
	LastPrice         float64    `json:"last_price"`
	ImpliedVolatility float64    `json:"implied_volatility"`
	OpenInterest      int64      `json:"open_interest"`
}

// Symbol returns the OCC-style contract symbol.
func (c OptionContract) Symbol() string {
	return OptionSymbolFromParts(c.Underlying, c.Expiration, string(c.Type), c.Strike)
}

// Chain holds both sides of the option chain for one expiration.
type Chain struct {
	Underlying string           `json:"underlying"`
	Expiration time.Time        `json:"expiration"`
	Calls      []OptionContract `json:"calls"`
	Puts       []OptionContract `json:"puts"`
}

// Empty reports whether the chain has no rows on either side.
func (c *Chain) Empty() bool {
	return c == nil || (len(c.Calls) == 0 && len(c.Puts) == 0)
}

// Side returns the calls or puts of the chain.
func (c *Chain) Side(t OptionType) []OptionContract {
	if c == nil {
		return nil
	}
	if t == Put {
		return c.Puts
	}
	return c.Calls
}

// add files a contract on the right side of the chain.
func (c *Chain) add(oc OptionContract) {
	if oc.Type == Put {
		c.Puts = append(c.Puts, oc)
		return
	}
	c.Calls = append(c.Calls, oc)
}

// sortByStrike orders both sides by ascending strike.
func (c *Chain) sortByStrike() {
	sort.Slice(c.Calls, func(i, j int) bool { return c.Calls[i].Strike < c.Calls[j].Strike })
	sort.Slice(c.Puts, func(i, j int) bool { return c.Puts[i].Strike < c.Puts[j].Strike })
}

// Bar simplified OHLC
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// --------------------------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------------------------

// OptionSymbolFromParts: OCC-like formatter (best-effort)
func OptionSymbolFromParts(underlying string, expiryDate time.Time, optionType string, strike float64) string {
	// OCC: <root><YYMMDD><C|P><strike*1000 padded to 8 digits>
	expDt := expiryDate.UTC().Format("060102")
	optType := "C"
	if strings.ToLower(optionType) == "put" || strings.ToLower(optionType) == "p" {
		optType = "P"
	}
	strikeInt := int(math.Round(strike * 1000))
	strFmt := fmt.Sprintf("%08d", strikeInt)
	return fmt.Sprintf("O:%s%s%s%s", strings.ToUpper(underlying), expDt, optType, strFmt)
}

// DateOnly truncates t to midnight UTC of its calendar date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween counts calendar days from asOf to expiry (negative when expired).
func DaysBetween(asOf, expiry time.Time) int {
	return int(math.Round(DateOnly(expiry).Sub(DateOnly(asOf)).Hours() / 24))
}

// uniqueSortedDates de-duplicates by calendar date, drops dates before asOf
// and sorts ascending.
func uniqueSortedDates(dates []time.Time, asOf time.Time) []time.Time {
	floor := DateOnly(asOf)
	seen := make(map[string]time.Time, len(dates))
	for _, d := range dates {
		d = DateOnly(d)
		if !asOf.IsZero() && d.Before(floor) {
			continue
		}
		seen[d.Format(DateLayout)] = d
	}
	out := make([]time.Time, 0, len(seen))
	for _, d := range seen {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
