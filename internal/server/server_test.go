package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contactkeval/option-income-scanner/internal/data"
	"github.com/contactkeval/option-income-scanner/internal/scan"
	"github.com/contactkeval/option-income-scanner/internal/scan/engine"
	"github.com/contactkeval/option-income-scanner/internal/scan/strategy"
	"github.com/contactkeval/option-income-scanner/internal/signal"
	"github.com/contactkeval/option-income-scanner/internal/tradelog"
)

var (
	asOf   = time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	expiry = time.Date(2025, 1, 17, 0, 0, 0, 0, time.UTC)
)

// stubProvider quotes every ticker at 100 with a single 90 strike call and
// borrows synthetic bars. "NONE" has no price.
type stubProvider struct {
	data.Provider
}

func (stubProvider) GetQuote(_ context.Context, ticker string) (data.Quote, error) {
	if ticker == "NONE" {
		return data.Quote{}, data.ErrNoPrice
	}
	return data.Quote{Ticker: ticker, Price: 100, AsOf: asOf}, nil
}

func (stubProvider) GetExpirations(context.Context, string, time.Time) ([]time.Time, error) {
	return []time.Time{expiry}, nil
}

func (stubProvider) GetChain(_ context.Context, ticker string, exp time.Time) (*data.Chain, error) {
	return &data.Chain{Underlying: ticker, Expiration: exp, Calls: []data.OptionContract{{
		Underlying: ticker, Expiration: exp, Type: data.Call, Strike: 90, Bid: 11, Ask: 11.4, ImpliedVolatility: 0.3, OpenInterest: 100,
	}}}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	prov := stubProvider{Provider: data.NewSyntheticProvider(map[string]float64{"NONE": 0})}
	scanner, err := scan.NewScanner(prov, scan.Config{
		Strategy: strategy.Config{Variant: strategy.DeepITMCall, CushionPercent: 10},
		Account:  engine.Account{Capital: 100000, IncomeGoal: 200},
	}, scan.WithClock(func() time.Time { return asOf }))
	require.NoError(t, err)

	clock := func() time.Time { return asOf }
	return New(scanner, tradelog.NewStore(clock), WithClock(clock), WithUniverse([]string{"F", "T"}))
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestServer(t).Handler(), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestScanAndResults(t *testing.T) {
	h := newTestServer(t).Handler()

	rec := do(t, h, http.MethodGet, "/api/v1/results", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/scan", `{"tickers":["f","none"],"watchlist":"ko"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp scanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Summary.Tickers)
	assert.Equal(t, 2, resp.Summary.Results)
	assert.Equal(t, 1, resp.Report.Histogram[scan.ReasonNoPrice])
	assert.Equal(t, "2 of 3 tickers qualified", resp.Summary.Message)

	rec = do(t, h, http.MethodGet, "/api/v1/results", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Report.Results, 2)
}

func TestScanDefaultUniverse(t *testing.T) {
	h := newTestServer(t).Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/scan", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp scanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Summary.Tickers)

	rec = do(t, h, http.MethodPost, "/api/v1/scan", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTrades(t *testing.T) {
	h := newTestServer(t).Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/trades", `{"ticker":"F"}`)
	assert.Equal(t, http.StatusConflict, rec.Code, "no scan yet")

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/v1/scan", `{"tickers":["F"]}`).Code)

	rec = do(t, h, http.MethodPost, "/api/v1/trades", `{"ticker":"f","signal":"GOOD"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var entry tradelog.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
	assert.Equal(t, "F", entry.Ticker)
	assert.Equal(t, "240", entry.Income.String())
	assert.NotEmpty(t, entry.ID)

	rec = do(t, h, http.MethodPost, "/api/v1/trades", `{"ticker":"t","strike":"17","expiry":"2025-01-17","income":"12.5"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/api/v1/trades", `{"ticker":"KO"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/trades", `{"ticker":"X","strike":"0","income":"1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/trades", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list tradesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Entries, 2)
	assert.Equal(t, "252.5", list.TotalIncome.String())
	require.Len(t, list.Cumulative, 2)
	assert.Equal(t, "252.5", list.Cumulative[1].Cumulative.String())
}

func TestSignal(t *testing.T) {
	h := newTestServer(t).Handler()

	rec := do(t, h, http.MethodGet, "/api/v1/signal/spy", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sig signal.Signal
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sig))
	assert.Equal(t, "SPY", sig.Ticker)
	assert.NotEmpty(t, sig.Verdict)

	rec = do(t, h, http.MethodGet, "/api/v1/signal/none", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestZstdMiddleware(t *testing.T) {
	h := newTestServer(t).Handler()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Accept-Encoding", "gzip, zstd")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "zstd", rec.Header().Get("Content-Encoding"))
	dec, err := zstd.NewReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer dec.Close()
	body, err := io.ReadAll(dec)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
}
