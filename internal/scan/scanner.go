// Package scan fans the per-ticker evaluation pipeline out over a ticker
// universe and aggregates the outcomes into a Report.
//
// Concurrency model:
//   - A bounded worker pool (errgroup with SetLimit) runs one task per ticker
//   - The configuration is copied by value when Run starts
//   - Every task has its own timeout and sends one immutable outcome to a
//     single collector goroutine; no task writes shared state
//   - A cancelled scan still accounts for every ticker (reason "cancelled")
package scan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/contactkeval/option-income-scanner/internal/data"
	"github.com/contactkeval/option-income-scanner/internal/logger"
	"github.com/contactkeval/option-income-scanner/internal/scan/engine"
	"github.com/contactkeval/option-income-scanner/internal/scan/strategy"
)

// Defaults applied to zero-valued Options.
const (
	DefaultWorkers        = 10
	DefaultTaskTimeout    = 10 * time.Second
	DefaultMaxExpirations = 2
	DefaultMaxDTE         = 60
)

var (
	errOutOfRange = errors.New("price out of range")
	errUnhealthy  = errors.New("fundamentals unhealthy")

	// ErrInvalidOptions reports inconsistent scan options.
	ErrInvalidOptions = errors.New("invalid scan options")
)

// Options controls which tickers and expirations are examined and how the
// work is scheduled.
type Options struct {
	MinPrice       float64       `json:"min_price"`
	MaxPrice       float64       `json:"max_price"` // 0 means unbounded
	MinDTE         int           `json:"min_dte"`
	MaxDTE         int           `json:"max_dte"`
	MaxExpirations int           `json:"max_expirations"`
	Workers        int           `json:"workers"`
	TaskTimeout    time.Duration `json:"task_timeout"`
	RequireHealthy bool          `json:"require_healthy"`
}

// Config is everything one scan is evaluated under.
type Config struct {
	Strategy strategy.Config    `json:"strategy"`
	Account  engine.Account     `json:"account"`
	Options  Options            `json:"options"`
	Grades   []engine.GradeRule `json:"grades,omitempty"`
}

// WithDefaults fills zero-valued scheduling options.
func (c Config) WithDefaults() Config {
	if c.Options.Workers <= 0 {
		c.Options.Workers = DefaultWorkers
	}
	if c.Options.TaskTimeout <= 0 {
		c.Options.TaskTimeout = DefaultTaskTimeout
	}
	if c.Options.MaxExpirations <= 0 {
		c.Options.MaxExpirations = DefaultMaxExpirations
	}
	if c.Options.MaxDTE <= 0 {
		c.Options.MaxDTE = DefaultMaxDTE
	}
	if c.Strategy.Variant == strategy.CashSecuredPut && c.Strategy.PutMode == "" {
		c.Strategy.PutMode = strategy.PutOTM
	}
	return c
}

// Validate checks the whole configuration, joining every problem found.
func (c Config) Validate() error {
	var errs []error
	if err := c.Strategy.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Account.Validate(); err != nil {
		errs = append(errs, err)
	}
	o := c.Options
	if o.MinPrice < 0 || (o.MaxPrice > 0 && o.MinPrice > o.MaxPrice) {
		errs = append(errs, fmt.Errorf("%w: price range [%v, %v]", ErrInvalidOptions, o.MinPrice, o.MaxPrice))
	}
	if o.MinDTE < 0 || o.MaxDTE < o.MinDTE {
		errs = append(errs, fmt.Errorf("%w: dte range [%d, %d]", ErrInvalidOptions, o.MinDTE, o.MaxDTE))
	}
	if _, err := engine.NewGrader(c.Grades); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Scanner runs scans against one Provider.
type Scanner struct {
	prov         data.Provider
	cfg          Config
	grader       *engine.Grader
	earnings     data.EarningsSource
	fundamentals data.FundamentalsSource
	now          func() time.Time
}

// Option customises a Scanner.
type Option func(*Scanner)

// WithEarnings annotates results with the next earnings date from src.
func WithEarnings(src data.EarningsSource) Option {
	return func(s *Scanner) { s.earnings = src }
}

// WithFundamentals sets the source used when Options.RequireHealthy is set.
func WithFundamentals(src data.FundamentalsSource) Option {
	return func(s *Scanner) { s.fundamentals = src }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scanner) { s.now = now }
}

// NewScanner validates cfg (after defaults) and returns a Scanner.
func NewScanner(prov data.Provider, cfg Config, opts ...Option) (*Scanner, error) {
	if prov == nil {
		return nil, fmt.Errorf("%w: nil provider", ErrInvalidOptions)
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	grader, err := engine.NewGrader(cfg.Grades)
	if err != nil {
		return nil, err
	}
	s := &Scanner{prov: prov, cfg: cfg, grader: grader, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns a copy of the scanner configuration.
func (s *Scanner) Config() Config {
	return s.cfg
}

// Provider returns the market data provider the scanner reads from.
func (s *Scanner) Provider() data.Provider {
	return s.prov
}

// outcome is what one task hands to the collector.
type outcome struct {
	result  *engine.ScanResult
	failure Failure
}

// Run scans tickers and returns the aggregated report. The report is always
// complete: when ctx is cancelled the unfinished tickers are recorded as
// cancelled and ctx.Err() is returned alongside the report.
func (s *Scanner) Run(ctx context.Context, tickers []string) (*Report, error) {
	cfg := s.cfg // copy-on-start: every task sees the same rules
	asOf := s.now()

	report := newReport(cfg.Strategy.Name(), len(tickers), asOf)
	logger.Infof("event=scan_started strategy=%q tickers=%d workers=%d timeout=%s",
		report.Strategy, len(tickers), cfg.Options.Workers, cfg.Options.TaskTimeout)

	outcomes := make(chan outcome, len(tickers))
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for o := range outcomes {
			report.add(o)
		}
	}()

	var g errgroup.Group
	g.SetLimit(cfg.Options.Workers)
	for _, ticker := range tickers {
		ticker := ticker
		if ctx.Err() != nil {
			outcomes <- failed(ticker, ReasonCancelled, ctx.Err().Error())
			continue
		}
		g.Go(func() error {
			outcomes <- s.runTask(ctx, cfg, asOf, ticker)
			return nil
		})
	}
	_ = g.Wait()
	close(outcomes)
	<-collected

	report.finish(s.now())
	logger.Infof("event=scan_finished results=%d failures=%d histogram=%v elapsed=%s",
		len(report.Results), len(report.Failures), report.Histogram, report.FinishedAt.Sub(report.StartedAt))
	return report, ctx.Err()
}

// runTask evaluates one ticker under its own deadline. A provider that
// ignores its context still cannot hold the task past the deadline.
func (s *Scanner) runTask(ctx context.Context, cfg Config, asOf time.Time, ticker string) outcome {
	if ctx.Err() != nil {
		return failed(ticker, ReasonCancelled, ctx.Err().Error())
	}
	tctx, cancel := context.WithTimeout(ctx, cfg.Options.TaskTimeout)
	defer cancel()

	type taskResult struct {
		res engine.ScanResult
		err error
	}
	done := make(chan taskResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("event=task_panic ticker=%s panic=%v", ticker, r)
				done <- taskResult{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		res, err := s.scanTicker(tctx, cfg, asOf, ticker)
		done <- taskResult{res: res, err: err}
	}()

	select {
	case tr := <-done:
		if tr.err == nil {
			logger.Debugf("event=ticker_matched ticker=%s strike=%.2f roi=%.2f", ticker, tr.res.Strike, tr.res.ROIPercent)
			return outcome{result: &tr.res}
		}
		return s.classify(ctx, ticker, tr.err)
	case <-tctx.Done():
		return s.classify(ctx, ticker, tctx.Err())
	}
}

// classify maps a task error to a failure reason.
func (s *Scanner) classify(parent context.Context, ticker string, err error) outcome {
	var reason Reason
	switch {
	case parent.Err() != nil:
		reason = ReasonCancelled
	case errors.Is(err, context.DeadlineExceeded):
		reason = ReasonTimeout
	case errors.Is(err, data.ErrNoPrice):
		reason = ReasonNoPrice
	case errors.Is(err, errOutOfRange):
		reason = ReasonOutOfRange
	case errors.Is(err, errUnhealthy):
		reason = ReasonUnhealthy
	case errors.Is(err, data.ErrNoOptions):
		reason = ReasonNoOptions
	case errors.Is(err, engine.ErrNoQualifyingContract):
		reason = ReasonNoMatch
	default:
		reason = ReasonError
	}
	logger.Debugf("event=ticker_skipped ticker=%s reason=%s err=%v", ticker, reason, err)
	return failed(ticker, reason, err.Error())
}

func failed(ticker string, reason Reason, detail string) outcome {
	return outcome{failure: Failure{Ticker: ticker, Reason: reason, Detail: detail}}
}

// scanTicker is the sequential per-ticker work: quote, filters, expirations,
// chains, pipeline and annotations.
func (s *Scanner) scanTicker(ctx context.Context, cfg Config, asOf time.Time, ticker string) (engine.ScanResult, error) {
	quote, err := s.prov.GetQuote(ctx, ticker)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return engine.ScanResult{}, ctxErr
		}
		if errors.Is(err, data.ErrNoPrice) {
			return engine.ScanResult{}, err
		}
		return engine.ScanResult{}, fmt.Errorf("%w: %v", data.ErrNoPrice, err)
	}
	if !(quote.Price > 0) {
		return engine.ScanResult{}, fmt.Errorf("%s: %w", ticker, data.ErrNoPrice)
	}
	if quote.Ticker == "" {
		quote.Ticker = ticker
	}

	o := cfg.Options
	if quote.Price < o.MinPrice || (o.MaxPrice > 0 && quote.Price > o.MaxPrice) {
		return engine.ScanResult{}, fmt.Errorf("%w: %.2f not in [%.2f, %.2f]", errOutOfRange, quote.Price, o.MinPrice, o.MaxPrice)
	}

	if o.RequireHealthy && s.fundamentals != nil {
		f, err := s.fundamentals.Fundamentals(ctx, ticker)
		switch {
		case err != nil:
			logger.Debugf("event=fundamentals_unavailable ticker=%s err=%v", ticker, err)
		case !f.Healthy():
			return engine.ScanResult{}, fmt.Errorf("%w: eps %.2f", errUnhealthy, f.EPS)
		}
	}

	expirations, err := s.expirations(ctx, cfg, asOf, ticker)
	if err != nil {
		return engine.ScanResult{}, err
	}

	chains := make([]*data.Chain, 0, len(expirations))
	var chainErr error
	for _, exp := range expirations {
		chain, err := s.prov.GetChain(ctx, ticker, exp)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return engine.ScanResult{}, ctxErr
			}
			chainErr = err
			logger.Debugf("event=chain_unavailable ticker=%s expiry=%s err=%v", ticker, exp.Format(data.DateLayout), err)
			continue
		}
		chains = append(chains, chain)
	}
	if len(chains) == 0 {
		return engine.ScanResult{}, fmt.Errorf("%s: %w: %v", ticker, data.ErrNoOptions, chainErr)
	}

	res, err := engine.EvaluateTicker(quote, chains, cfg.Strategy, cfg.Account, engine.Options{AsOf: asOf, Grader: s.grader})
	if err != nil {
		return engine.ScanResult{}, err
	}
	res.Ticker = strings.ToUpper(ticker)
	s.annotateEarnings(ctx, asOf, &res)
	return res, nil
}

// expirations lists the expirations inside the DTE window, nearest first,
// capped at MaxExpirations.
func (s *Scanner) expirations(ctx context.Context, cfg Config, asOf time.Time, ticker string) ([]time.Time, error) {
	all, err := s.prov.GetExpirations(ctx, ticker, asOf)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, data.ErrNoOptions) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", data.ErrNoOptions, err)
	}

	var out []time.Time
	for _, exp := range all {
		dte := data.DaysBetween(asOf, exp)
		if dte < cfg.Options.MinDTE || dte > cfg.Options.MaxDTE {
			continue
		}
		out = append(out, exp)
		if len(out) == cfg.Options.MaxExpirations {
			break
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: %w: none of %d expirations within %d-%d days",
			ticker, data.ErrNoOptions, len(all), cfg.Options.MinDTE, cfg.Options.MaxDTE)
	}
	return out, nil
}

// annotateEarnings flags an earnings report due on or before expiry.
// Lookup failures leave the result unannotated.
func (s *Scanner) annotateEarnings(ctx context.Context, asOf time.Time, res *engine.ScanResult) {
	if s.earnings == nil {
		return
	}
	d, ok, err := s.earnings.NextEarnings(ctx, res.Ticker, asOf)
	if err != nil {
		logger.Debugf("event=earnings_unavailable ticker=%s err=%v", res.Ticker, err)
		return
	}
	if !ok {
		return
	}
	res.Earnings = &engine.Earnings{Date: d, BeforeExpiry: !data.DateOnly(d).After(data.DateOnly(res.Expiration))}
}
