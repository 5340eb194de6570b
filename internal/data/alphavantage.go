package data

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/contactkeval/option-income-scanner/internal/logger"
)

// DefaultAlphaVantageBaseURL is the Alpha Vantage query endpoint root.
const DefaultAlphaVantageBaseURL = "https://www.alphavantage.co"

// EarningsSource reports the next scheduled earnings date of a ticker.
type EarningsSource interface {
	// NextEarnings returns the first earnings date on or after asOf; ok is
	// false when none is scheduled.
	NextEarnings(ctx context.Context, ticker string, asOf time.Time) (date time.Time, ok bool, err error)
}

// FundamentalsSource reports company fundamentals.
type FundamentalsSource interface {
	Fundamentals(ctx context.Context, ticker string) (Fundamentals, error)
}

// Fundamentals is the subset of a company overview the scanner uses.
type Fundamentals struct {
	Ticker  string  `json:"ticker"`
	Name    string  `json:"name"`
	Sector  string  `json:"sector"`
	EPS     float64 `json:"eps"`
	PERatio float64 `json:"pe_ratio"`
}

// Healthy reports positive trailing earnings.
func (f Fundamentals) Healthy() bool {
	return f.EPS > 0
}

// StaticEarnings is an EarningsSource backed by a fixed ticker → date table.
type StaticEarnings map[string]time.Time

func (s StaticEarnings) NextEarnings(_ context.Context, ticker string, asOf time.Time) (time.Time, bool, error) {
	d, ok := s[strings.ToUpper(ticker)]
	if !ok || DateOnly(d).Before(DateOnly(asOf)) {
		return time.Time{}, false, nil
	}
	return DateOnly(d), true, nil
}

// ParseStaticEarnings builds a StaticEarnings table from "YYYY-MM-DD" strings.
func ParseStaticEarnings(raw map[string]string) (StaticEarnings, error) {
	out := make(StaticEarnings, len(raw))
	for ticker, s := range raw {
		d, err := time.Parse(DateLayout, strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("earnings date for %s: %w", ticker, err)
		}
		out[strings.ToUpper(ticker)] = d
	}
	return out, nil
}

// AlphaVantage queries the Alpha Vantage EARNINGS_CALENDAR and OVERVIEW
// functions. It implements EarningsSource and FundamentalsSource.
type AlphaVantage struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

// NewAlphaVantage returns a client; an empty baseURL selects the public API.
func NewAlphaVantage(apiKey, baseURL string) *AlphaVantage {
	if baseURL == "" {
		baseURL = DefaultAlphaVantageBaseURL
	}
	return &AlphaVantage{
		APIKey:  apiKey,
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type earningsCalendarRow struct {
	Symbol           string `csv:"symbol"`
	Name             string `csv:"name"`
	ReportDate       string `csv:"reportDate"`
	FiscalDateEnding string `csv:"fiscalDateEnding"`
	Estimate         string `csv:"estimate"`
	Currency         string `csv:"currency"`
}

// NextEarnings reads the three-month earnings calendar, which Alpha Vantage
// serves as CSV.
func (av *AlphaVantage) NextEarnings(ctx context.Context, ticker string, asOf time.Time) (time.Time, bool, error) {
	body, err := av.query(ctx, url.Values{
		"function": {"EARNINGS_CALENDAR"},
		"symbol":   {ticker},
		"horizon":  {"3month"},
	})
	if err != nil {
		return time.Time{}, false, err
	}
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '{' {
		return time.Time{}, false, fmt.Errorf("earnings calendar %s: %s", ticker, avMessage(trimmed))
	}

	var rows []*earningsCalendarRow
	if err := gocsv.UnmarshalBytes(body, &rows); err != nil {
		return time.Time{}, false, fmt.Errorf("earnings calendar %s: %w", ticker, err)
	}

	var dates []time.Time
	for _, r := range rows {
		if !strings.EqualFold(r.Symbol, ticker) {
			continue
		}
		if d, err := time.Parse(DateLayout, r.ReportDate); err == nil {
			dates = append(dates, d)
		}
	}
	dates = uniqueSortedDates(dates, asOf)
	if len(dates) == 0 {
		return time.Time{}, false, nil
	}
	logger.Debugf("event=earnings_found ticker=%s date=%s", ticker, dates[0].Format(DateLayout))
	return dates[0], true, nil
}

// Fundamentals reads the company OVERVIEW. Numeric fields reported as
// "None" or "-" decode as zero.
func (av *AlphaVantage) Fundamentals(ctx context.Context, ticker string) (Fundamentals, error) {
	body, err := av.query(ctx, url.Values{
		"function": {"OVERVIEW"},
		"symbol":   {ticker},
	})
	if err != nil {
		return Fundamentals{}, err
	}

	var ov struct {
		Symbol  string `json:"Symbol"`
		Name    string `json:"Name"`
		Sector  string `json:"Sector"`
		EPS     string `json:"EPS"`
		PERatio string `json:"PERatio"`
	}
	if err := json.Unmarshal(body, &ov); err != nil {
		return Fundamentals{}, fmt.Errorf("overview %s: decode: %w", ticker, err)
	}
	if ov.Symbol == "" {
		return Fundamentals{}, fmt.Errorf("overview %s: %s", ticker, avMessage(body))
	}
	return Fundamentals{
		Ticker:  ov.Symbol,
		Name:    ov.Name,
		Sector:  ov.Sector,
		EPS:     parseAVNumber(ov.EPS),
		PERatio: parseAVNumber(ov.PERatio),
	}, nil
}

func (av *AlphaVantage) query(ctx context.Context, params url.Values) ([]byte, error) {
	if av.APIKey == "" {
		return nil, fmt.Errorf("missing ALPHAVANTAGE_API_KEY")
	}
	params.Set("apikey", av.APIKey)
	reqURL := av.BaseURL + "/query?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := av.Client.Do(req)
	if err != nil {
		return nil, redactURLError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("alphavantage %s status=%d", params.Get("function"), resp.StatusCode)
	}
	return body, nil
}

// avMessage extracts the Note/Information/Error Message text Alpha Vantage
// returns instead of data when throttled or misconfigured.
func avMessage(body []byte) string {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return "unexpected response"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return "empty response"
}

func parseAVNumber(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}
