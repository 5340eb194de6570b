package data

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	tradeDate  = time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	expiryDate = time.Date(2025, 1, 17, 0, 0, 0, 0, time.UTC)
)

func newTestMassive(srv *httptest.Server) *massiveDataProvider {
	return &massiveDataProvider{
		APIKey:  "test",
		Client:  srv.Client(),
		BaseURL: srv.URL, // IMPORTANT
		newBackOff: func() backoff.BackOff {
			return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 3)
		},
	}
}

func TestMassiveProvider_GetBars_HTTPError(t *testing.T) {
	// fake server returning 400
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"bad request"}`))
	}))
	defer srv.Close()

	_, err := newTestMassive(srv).GetBars(context.Background(), "AAPL", tradeDate.AddDate(0, 0, -5), tradeDate)
	require.Error(t, err)

	var se *massiveStatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.Equal(t, "bad request", se.Message)
}

func TestMassiveProvider_GetBars(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/aggs/ticker/AAPL/range/1/day/2025-01-01/2025-01-03", r.URL.Path)
		w.Write([]byte(`{"ticker":"AAPL","status":"OK","results":[
			{"t":1735689600000,"o":1,"h":2,"l":0.5,"c":1.5,"v":100},
			{"t":1735776000000,"o":1.5,"h":2.5,"l":1,"c":2,"v":200}]}`))
	}))
	defer srv.Close()

	bars, err := newTestMassive(srv).GetBars(context.Background(), "AAPL",
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), bars[0].Date)
	assert.Equal(t, 2.0, bars[1].Close)
	assert.Equal(t, 200.0, bars[1].Volume)
}

func TestMassiveProvider_RetriesRateLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"status":"OK","results":{"p":581.39,"t":1735830000000000000}}`))
	}))
	defer srv.Close()

	q, err := newTestMassive(srv).GetQuote(context.Background(), "SPY")
	require.NoError(t, err)
	assert.Equal(t, 581.39, q.Price)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestMassiveProvider_RateLimitExhausted(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestMassive(srv).GetQuote(context.Background(), "SPY")
	require.Error(t, err)
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls), "first attempt plus three retries")
}

func TestMassiveProvider_QuoteNoPrice(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{"not found", http.StatusNotFound, `{"message":"not found"}`},
		{"zero price", http.StatusOK, `{"status":"OK","results":{"p":0}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := newTestMassive(srv).GetQuote(context.Background(), "ZZZZ")
			assert.ErrorIs(t, err, ErrNoPrice)
		})
	}
}

func TestMassiveProvider_ExpirationsPagination(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.False(t, r.URL.Query().Has("apiKey"), "key travels only in the header")
		assert.Equal(t, "Bearer test", r.Header.Get("Authorization"))
		if r.URL.Query().Get("cursor") == "" {
			assert.Equal(t, "F", r.URL.Query().Get("underlying_ticker"))
			w.Write([]byte(`{"status":"OK","results":[
				{"contract_type":"call","expiration_date":"2025-01-24","strike_price":12},
				{"contract_type":"put","expiration_date":"2025-01-17","strike_price":12}],
				"next_url":"` + srv.URL + `/v3/reference/options/contracts?cursor=p2&apiKey=test"}`))
			return
		}
		w.Write([]byte(`{"status":"OK","results":[
			{"contract_type":"call","expiration_date":"2025-01-17","strike_price":13},
			{"contract_type":"call","expiration_date":"2024-12-20","strike_price":13},
			{"contract_type":"call","expiration_date":"garbage","strike_price":13}]}`))
	}))
	defer srv.Close()

	dates, err := newTestMassive(srv).GetExpirations(context.Background(), "F", tradeDate)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{expiryDate, expiryDate.AddDate(0, 0, 7)}, dates)
}

func TestMassiveProvider_GetChain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/snapshot/options/F", r.URL.Path)
		assert.Equal(t, "2025-01-17", r.URL.Query().Get("expiration_date"))
		w.Write([]byte(`{"status":"OK","results":[
			{"details":{"contract_type":"call","expiration_date":"2025-01-17","strike_price":13,"ticker":"O:F250117C00013000"},
			 "last_quote":{"bid":0.10,"ask":0.14},"day":{"close":0.11},"implied_volatility":0.42,"open_interest":1500},
			{"details":{"contract_type":"call","expiration_date":"2025-01-17","strike_price":11},
			 "last_quote":{"bid":0,"ask":0},"last_trade":{"price":1.25},"day":{"close":1.2},"open_interest":20},
			{"details":{"contract_type":"put","expiration_date":"2025-01-17","strike_price":12},
			 "last_quote":{"bid":0.3,"ask":0.34},"implied_volatility":0.38,"open_interest":900},
			{"details":{"contract_type":"warrant","strike_price":12}}]}`))
	}))
	defer srv.Close()

	chain, err := newTestMassive(srv).GetChain(context.Background(), "F", expiryDate)
	require.NoError(t, err)
	require.Len(t, chain.Calls, 2)
	require.Len(t, chain.Puts, 1)

	assert.Equal(t, 11.0, chain.Calls[0].Strike, "sorted by strike")
	assert.Equal(t, 1.25, chain.Calls[0].LastPrice)
	assert.Equal(t, 0.11, chain.Calls[1].LastPrice, "day close when no last trade")
	assert.Equal(t, int64(1500), chain.Calls[1].OpenInterest)
	assert.Equal(t, "O:F250117C00013000", chain.Calls[1].Symbol())
	assert.Equal(t, Put, chain.Puts[0].Type)
}

func TestMassiveProvider_ContextCancelStopsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := newTestMassive(srv)
	p.newBackOff = func() backoff.BackOff { return backoff.NewConstantBackOff(time.Hour) }

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := p.GetQuote(ctx, "SPY")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestMassiveProvider_TransportErrorHidesKey(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	deadURL := srv.URL
	srv.Close()

	p := newTestMassive(srv)
	p.APIKey = "SUPERSECRETKEY"
	p.BaseURL = deadURL
	p.newBackOff = func() backoff.BackOff { return backoff.NewConstantBackOff(time.Hour) }

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := p.GetQuote(ctx, "AAPL")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "SUPERSECRETKEY")
	assert.NotErrorIs(t, err, context.DeadlineExceeded, "refused connections are not retried")
}

func TestRedactKey(t *testing.T) {
	assert.Equal(t, "https://x/v3?apiKey=REDACTED&limit=1", redactKey("https://x/v3?apiKey=secret&limit=1"))
	assert.Equal(t, "https://x/query?apikey=REDACTED&function=OVERVIEW", redactKey("https://x/query?apikey=secret&function=OVERVIEW"))

	err := redactURLError(&url.Error{Op: "Get", URL: "https://x/query?apikey=secret", Err: errors.New("dial tcp: refused")})
	assert.NotContains(t, err.Error(), "secret")
}
