// Package server exposes scans, band signals and the trade log over REST.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/contactkeval/option-income-scanner/internal/data"
	"github.com/contactkeval/option-income-scanner/internal/logger"
	"github.com/contactkeval/option-income-scanner/internal/report"
	"github.com/contactkeval/option-income-scanner/internal/scan"
	"github.com/contactkeval/option-income-scanner/internal/signal"
	"github.com/contactkeval/option-income-scanner/internal/tradelog"
	"github.com/contactkeval/option-income-scanner/internal/universe"
)

// Server holds the most recent scan report; every other piece of state lives
// in the scanner or the trade log it was given.
type Server struct {
	scanner  *scan.Scanner
	trades   *tradelog.Store
	universe []string
	signals  signal.Config
	now      func() time.Time

	mu   sync.RWMutex
	last *scan.Report
}

type Option func(*Server)

// WithUniverse sets the tickers scanned when a request names none.
func WithUniverse(tickers []string) Option {
	return func(s *Server) { s.universe = tickers }
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

func WithSignalConfig(cfg signal.Config) Option {
	return func(s *Server) { s.signals = cfg }
}

func New(scanner *scan.Scanner, trades *tradelog.Store, opts ...Option) *Server {
	s := &Server{
		scanner:  scanner,
		trades:   trades,
		universe: universe.DefaultWatchlist,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router registers the routes without middleware.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.health).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/scan", s.runScan).Methods(http.MethodPost)
	api.HandleFunc("/results", s.results).Methods(http.MethodGet)
	api.HandleFunc("/signal/{ticker}", s.bandSignal).Methods(http.MethodGet)
	api.HandleFunc("/trades", s.logTrade).Methods(http.MethodPost)
	api.HandleFunc("/trades", s.listTrades).Methods(http.MethodGet)
	return r
}

// Handler is the router behind the zstd middleware.
func (s *Server) Handler() http.Handler {
	return ZstdMiddleware(s.Router())
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type scanRequest struct {
	Tickers   []string `json:"tickers"`
	Watchlist string   `json:"watchlist"`
}

type scanResponse struct {
	Summary report.Summary `json:"summary"`
	Report  *scan.Report   `json:"report"`
}

func (s *Server) runScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid scan request: "+err.Error(), http.StatusBadRequest)
			return
		}
	}
	tickers := universe.Parse(strings.Join(append(req.Tickers, req.Watchlist), " "))
	if len(tickers) == 0 {
		tickers = s.universe
	}

	logger.Infof("event=scan_requested tickers=%d remote=%s", len(tickers), r.RemoteAddr)
	rep, err := s.scanner.Run(r.Context(), tickers)
	if err != nil {
		http.Error(w, "scan cancelled: "+err.Error(), http.StatusServiceUnavailable)
		return
	}

	s.mu.Lock()
	s.last = rep
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, scanResponse{Summary: report.Summarize(rep), Report: rep})
}

func (s *Server) lastReport() *scan.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

func (s *Server) results(w http.ResponseWriter, _ *http.Request) {
	rep := s.lastReport()
	if rep == nil {
		http.Error(w, "no scan has run yet", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, scanResponse{Summary: report.Summarize(rep), Report: rep})
}

func (s *Server) bandSignal(w http.ResponseWriter, r *http.Request) {
	ticker := strings.ToUpper(mux.Vars(r)["ticker"])

	sig, err := signal.ForTicker(r.Context(), s.scanner.Provider(), ticker, s.now(), s.signals)
	switch {
	case errors.Is(err, data.ErrNoPrice):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	if rep := s.lastReport(); rep != nil {
		if res, ok := rep.Result(ticker); ok {
			sig = signal.WithEarnings(sig, s.scanner.Config().Strategy, res.Earnings)
		}
	}
	writeJSON(w, http.StatusOK, sig)
}

// tradeRequest logs either the last scan result for Ticker (when Income is
// omitted) or a manual entry.
type tradeRequest struct {
	Ticker   string           `json:"ticker"`
	Signal   string           `json:"signal"`
	Strategy string           `json:"strategy"`
	Strike   decimal.Decimal  `json:"strike"`
	Expiry   string           `json:"expiry"`
	Income   *decimal.Decimal `json:"income"`
}

func (s *Server) logTrade(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid trade: "+err.Error(), http.StatusBadRequest)
		return
	}
	ticker := strings.ToUpper(strings.TrimSpace(req.Ticker))

	var (
		entry tradelog.Entry
		err   error
	)
	if req.Income == nil {
		rep := s.lastReport()
		if rep == nil {
			http.Error(w, "no scan has run yet", http.StatusConflict)
			return
		}
		res, ok := rep.Result(ticker)
		if !ok {
			http.Error(w, fmt.Sprintf("no scan result for %s", ticker), http.StatusNotFound)
			return
		}
		entry, err = s.trades.LogResult(res, req.Signal)
	} else {
		var expiry time.Time
		if req.Expiry != "" {
			if expiry, err = time.Parse(data.DateLayout, req.Expiry); err != nil {
				http.Error(w, "invalid expiry date", http.StatusBadRequest)
				return
			}
		}
		entry, err = s.trades.Append(tradelog.Entry{
			Ticker:   ticker,
			Strategy: req.Strategy,
			Strike:   req.Strike,
			Expiry:   expiry,
			Income:   *req.Income,
			Signal:   req.Signal,
		})
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	logger.Infof("event=trade_logged id=%s ticker=%s income=%s", entry.ID, entry.Ticker, entry.Income)
	writeJSON(w, http.StatusCreated, entry)
}

type tradesResponse struct {
	Entries     []tradelog.Entry `json:"entries"`
	TotalIncome decimal.Decimal  `json:"total_income"`
	Cumulative  []tradelog.Point `json:"cumulative"`
}

func (s *Server) listTrades(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, tradesResponse{
		Entries:     s.trades.Entries(),
		TotalIncome: s.trades.TotalIncome(),
		Cumulative:  s.trades.Cumulative(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("event=response_encode_failed err=%v", err)
	}
}
