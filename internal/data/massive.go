// Package data provides market data provider implementations.
//
// This file contains a Massive-backed Provider implementation that retrieves
// last trades, option expirations, option chain snapshots and daily bars via
// Massive HTTP APIs.
//
// Design notes:
//   - Uses raw HTTP calls instead of the official Massive SDK
//   - Supports pagination (next_url) and rate-limit retries with exponential backoff
//   - Every request honours the caller's context, so scan timeouts cut retries short
//   - Logging is verbose at Debug/Trace levels for diagnostics
package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/contactkeval/option-income-scanner/internal/logger"
)

// DefaultMassiveBaseURL is the root endpoint for Massive APIs.
const DefaultMassiveBaseURL = "https://api.massive.com"

// massiveDataProvider implements the Provider interface using Massive APIs.
type massiveDataProvider struct {
	// APIKey used for authenticating requests with Massive.
	APIKey string

	// Client is the HTTP client used to make API requests.
	Client *http.Client

	// BaseURL is the root endpoint for Massive APIs
	// (e.g., https://api.massive.com).
	BaseURL string

	// newBackOff builds the retry policy for one request.
	newBackOff func() backoff.BackOff
}

// massiveContract represents a single option contract
// returned by Massive's contracts reference endpoint.
type massiveContract struct {
	ContractType     string  `json:"contract_type"`
	ExpiryDate       string  `json:"expiration_date"`
	StrikePrice      float64 `json:"strike_price"`
	Ticker           string  `json:"ticker"`
	UnderlyingTicker string  `json:"underlying_ticker"`
}

// massiveContractsResp models the paginated response
// returned by Massive's option contracts API.
type massiveContractsResp struct {
	Results   []massiveContract `json:"results"`
	Status    string            `json:"status"`
	RequestID string            `json:"request_id"`
	NextURL   string            `json:"next_url"`
}

// massiveSnapshot is one contract of the option chain snapshot endpoint.
type massiveSnapshot struct {
	Details struct {
		ContractType   string  `json:"contract_type"`
		ExpirationDate string  `json:"expiration_date"`
		StrikePrice    float64 `json:"strike_price"`
		Ticker         string  `json:"ticker"`
	} `json:"details"`
	LastQuote struct {
		Bid float64 `json:"bid"`
		Ask float64 `json:"ask"`
	} `json:"last_quote"`
	LastTrade struct {
		Price float64 `json:"price"`
	} `json:"last_trade"`
	Day struct {
		Close float64 `json:"close"`
	} `json:"day"`
	ImpliedVolatility float64 `json:"implied_volatility"`
	OpenInterest      float64 `json:"open_interest"`
}

type massiveSnapshotResp struct {
	Results []massiveSnapshot `json:"results"`
	Status  string            `json:"status"`
	NextURL string            `json:"next_url"`
}

// massiveStatusError carries a non-2xx response.
type massiveStatusError struct {
	StatusCode int
	Message    string
}

func (e *massiveStatusError) Error() string {
	return fmt.Sprintf("massive returned status %d: %s", e.StatusCode, e.Message)
}

// NewMassiveDataProvider constructs a Massive-backed data provider.
//
// It initializes an HTTP client with sensible defaults for:
//   - timeouts
//   - connection pooling
//   - HTTP/2 support
//   - gzip decompression
//
// An empty baseURL selects DefaultMassiveBaseURL.
func NewMassiveDataProvider(apiKey, baseURL string) *massiveDataProvider {
	logger.Infof("event=provider_init provider=massive")

	if baseURL == "" {
		baseURL = DefaultMassiveBaseURL
	}
	return &massiveDataProvider{
		APIKey: apiKey,
		Client: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
				DisableCompression:    false, // must be false to enable gzip auto-decompression
				ForceAttemptHTTP2:     true,
				MaxIdleConns:          100,
				IdleConnTimeout:       90 * time.Second,
			},
		},
		BaseURL:    strings.TrimRight(baseURL, "/"),
		newBackOff: defaultMassiveBackOff,
	}
}

func defaultMassiveBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 0 // bounded by retries and the request context
	return backoff.WithMaxRetries(b, 5)
}

// GetQuote returns the price of the last trade of ticker.
//
// A 404 or a zero price is reported as ErrNoPrice.
func (massiveDataProv *massiveDataProvider) GetQuote(ctx context.Context, ticker string) (Quote, error) {
	reqURL := fmt.Sprintf("%s/v2/last/trade/%s", massiveDataProv.BaseURL, url.PathEscape(ticker))

	var body struct {
		Status  string `json:"status"`
		Results struct {
			Price     float64 `json:"p"`
			Timestamp int64   `json:"t"` // SIP timestamp, epoch nanos
		} `json:"results"`
	}
	if err := massiveDataProv.getJSON(ctx, reqURL, &body); err != nil {
		var se *massiveStatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return Quote{}, fmt.Errorf("%s: %w", ticker, ErrNoPrice)
		}
		return Quote{}, fmt.Errorf("last trade %s: %w", ticker, err)
	}
	if body.Results.Price <= 0 {
		return Quote{}, fmt.Errorf("%s: %w", ticker, ErrNoPrice)
	}

	asOf := time.Now().UTC()
	if body.Results.Timestamp > 0 {
		asOf = time.Unix(0, body.Results.Timestamp).UTC()
	}
	logger.Tracef("event=quote ticker=%s price=%.2f", ticker, body.Results.Price)
	return Quote{Ticker: ticker, Price: body.Results.Price, AsOf: asOf}, nil
}

// GetExpirations pages through the contracts reference endpoint and returns
// the unique expirations on or after asOf.
func (massiveDataProv *massiveDataProvider) GetExpirations(ctx context.Context, ticker string, asOf time.Time) ([]time.Time, error) {
	u, err := url.Parse(massiveDataProv.BaseURL + "/v3/reference/options/contracts")
	if err != nil {
		return nil, err
	}

	query := u.Query()
	query.Set("underlying_ticker", ticker)
	query.Set("expiration_date.gte", asOf.Format(DateLayout))
	query.Set("limit", "1000")
	u.RawQuery = query.Encode()

	var dates []time.Time
	for reqURL := u.String(); reqURL != ""; {
		logger.Debugf("event=contracts_request url=%s", redactKey(reqURL))

		var page massiveContractsResp
		if err := massiveDataProv.getJSON(ctx, reqURL, &page); err != nil {
			return nil, fmt.Errorf("contracts %s: %w", ticker, err)
		}
		logger.Tracef("event=contracts_page ticker=%s count=%d", ticker, len(page.Results))

		for _, c := range page.Results {
			t, err := time.Parse(DateLayout, c.ExpiryDate)
			if err != nil {
				continue // skip malformed expiry dates
			}
			dates = append(dates, t)
		}
		reqURL = massiveDataProv.nextPage(page.NextURL)
	}

	return uniqueSortedDates(dates, asOf), nil
}

// GetChain fetches the option chain snapshot of one expiration.
func (massiveDataProv *massiveDataProvider) GetChain(ctx context.Context, ticker string, expiry time.Time) (*Chain, error) {
	u, err := url.Parse(fmt.Sprintf("%s/v3/snapshot/options/%s", massiveDataProv.BaseURL, url.PathEscape(ticker)))
	if err != nil {
		return nil, err
	}
	query := u.Query()
	query.Set("expiration_date", expiry.Format(DateLayout))
	query.Set("limit", "250")
	u.RawQuery = query.Encode()

	chain := &Chain{Underlying: ticker, Expiration: DateOnly(expiry)}
	for reqURL := u.String(); reqURL != ""; {
		logger.Debugf("event=chain_request url=%s", redactKey(reqURL))

		var page massiveSnapshotResp
		if err := massiveDataProv.getJSON(ctx, reqURL, &page); err != nil {
			return nil, fmt.Errorf("chain %s %s: %w", ticker, expiry.Format(DateLayout), err)
		}

		for _, s := range page.Results {
			typ, err := ParseOptionType(s.Details.ContractType)
			if err != nil || s.Details.StrikePrice <= 0 {
				continue
			}
			last := s.LastTrade.Price
			if last <= 0 {
				last = s.Day.Close
			}
			chain.add(OptionContract{
				Underlying:        ticker,
				Expiration:        chain.Expiration,
				Type:              typ,
				Strike:            s.Details.StrikePrice,
				Bid:               s.LastQuote.Bid,
				Ask:               s.LastQuote.Ask,
				LastPrice:         last,
				ImpliedVolatility: s.ImpliedVolatility,
				OpenInterest:      int64(s.OpenInterest),
			})
		}
		reqURL = massiveDataProv.nextPage(page.NextURL)
	}

	chain.sortByStrike()
	logger.Tracef("event=chain_fetched ticker=%s expiry=%s calls=%d puts=%d",
		ticker, expiry.Format(DateLayout), len(chain.Calls), len(chain.Puts))
	return chain, nil
}

// GetBars retrieves daily OHLCV bars for the given symbol and date range.
func (massiveDataProv *massiveDataProvider) GetBars(ctx context.Context, ticker string, fromDate, toDate time.Time) ([]Bar, error) {
	const maxLimit = 50000

	logger.Debugf("event=bars_request ticker=%s from=%s to=%s",
		ticker, fromDate.Format(DateLayout), toDate.Format(DateLayout))

	reqURL := fmt.Sprintf(
		"%s/v2/aggs/ticker/%s/range/1/day/%s/%s?adjusted=true&sort=asc&limit=%d",
		massiveDataProv.BaseURL,
		url.PathEscape(ticker),
		fromDate.Format(DateLayout),
		toDate.Format(DateLayout),
		maxLimit,
	)

	// Massive/POLYGON style response model
	var body struct {
		Ticker  string `json:"ticker"`
		Results []struct {
			Open      float64 `json:"o"`
			Close     float64 `json:"c"`
			High      float64 `json:"h"`
			Low       float64 `json:"l"`
			Volume    float64 `json:"v"`
			Timestamp int64   `json:"t"` // epoch millis
		} `json:"results"`
		Status string `json:"status"`
	}
	if err := massiveDataProv.getJSON(ctx, reqURL, &body); err != nil {
		return nil, fmt.Errorf("bars %s: %w", ticker, err)
	}

	out := make([]Bar, 0, len(body.Results))
	for _, r := range body.Results {
		out = append(out, Bar{
			Date:   DateOnly(time.UnixMilli(r.Timestamp).UTC()),
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		})
	}
	logger.Tracef("event=bars_received ticker=%s count=%d", ticker, len(out))
	return out, nil
}

// nextPage returns the cursor URL without any apiKey parameter; the key only
// travels in the Authorization header.
func (massiveDataProv *massiveDataProvider) nextPage(next string) string {
	if next == "" {
		return ""
	}
	u, err := url.Parse(next)
	if err != nil {
		return ""
	}
	q := u.Query()
	if q.Has("apiKey") {
		q.Del("apiKey")
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// getJSON performs a GET and decodes a JSON body into out.
func (massiveDataProv *massiveDataProvider) getJSON(ctx context.Context, reqURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+massiveDataProv.APIKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "option-income-scanner/1.0")

	resp, err := massiveDataProv.processGetRequest(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return fmt.Errorf("empty response body")
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

// processGetRequest executes an HTTP GET request with rate-limit handling.
//
// Behavior:
//   - Retries HTTP 429, 5xx and transport timeouts with exponential backoff
//   - Fails fast on other transport errors (refused or unresolvable hosts)
//   - Stops retrying once ctx is done
//   - Returns immediately on success (<400)
//   - Returns a *massiveStatusError for other status codes
func (massiveDataProv *massiveDataProvider) processGetRequest(ctx context.Context, req *http.Request) (*http.Response, error) {
	newBackOff := massiveDataProv.newBackOff
	if newBackOff == nil {
		newBackOff = defaultMassiveBackOff
	}

	var resp *http.Response
	op := func() error {
		r, err := massiveDataProv.Client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			err = redactURLError(err)
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				logger.Infof("event=massive_retry err=%v", err)
				return err
			}
			return backoff.Permanent(err)
		}
		if r.StatusCode < 400 {
			resp = r
			return nil
		}

		body, _ := io.ReadAll(r.Body)
		r.Body.Close()
		var dbg struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		_ = json.Unmarshal(body, &dbg)
		if dbg.Message == "" {
			dbg.Message = dbg.Error
		}
		statusErr := &massiveStatusError{StatusCode: r.StatusCode, Message: dbg.Message}

		if r.StatusCode == http.StatusTooManyRequests || r.StatusCode >= 500 {
			logger.Infof("event=massive_retry status=%d", r.StatusCode)
			return statusErr
		}
		logger.Errorf("event=massive_error status=%d message=%s", r.StatusCode, dbg.Message)
		return backoff.Permanent(statusErr)
	}

	if err := backoff.Retry(op, backoff.WithContext(newBackOff(), ctx)); err != nil {
		return nil, err
	}
	return resp, nil
}

// redactKey hides API keys (apiKey or apikey) in logged URLs.
func redactKey(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	changed := false
	for _, k := range []string{"apiKey", "apikey"} {
		if q.Get(k) != "" {
			q.Set(k, "REDACTED")
			changed = true
		}
	}
	if changed {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// redactURLError scrubs the request URL that *url.Error embeds in its text,
// since transport errors end up in scan failure details.
func redactURLError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		ue.URL = redactKey(ue.URL)
	}
	return err
}
