package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/contactkeval/option-income-scanner/internal/data"
	"github.com/contactkeval/option-income-scanner/internal/logger"
	"github.com/contactkeval/option-income-scanner/internal/scan/strategy"
)

// Options tunes EvaluateTicker.
type Options struct {
	AsOf   time.Time // reference date for days to expiry; zero means now
	Grader *Grader   // nil uses DefaultGradeRules
}

// Rank keeps the single best candidate: highest ROI, then higher cushion,
// then earlier expiration, then lower strike.
func Rank(candidates []ScanResult) (ScanResult, bool) {
	if len(candidates) == 0 {
		return ScanResult{}, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if outranks(c, best) {
			best = c
		}
	}
	return best, true
}

func outranks(a, b ScanResult) bool {
	if a.ROIPercent != b.ROIPercent {
		return a.ROIPercent > b.ROIPercent
	}
	if a.CushionPercent != b.CushionPercent {
		return a.CushionPercent > b.CushionPercent
	}
	if !a.Expiration.Equal(b.Expiration) {
		return a.Expiration.Before(b.Expiration)
	}
	return a.Strike < b.Strike
}

// NewScanResult combines an evaluation and its sizing.
func NewScanResult(ev Evaluation, s Sizing) ScanResult {
	return ScanResult{
		Ticker:                ev.Ticker,
		Strategy:              ev.Config.Name(),
		Expiration:            ev.Contract.Expiration,
		DaysToExpiry:          ev.DaysToExpiry,
		Symbol:                ev.Contract.Symbol(),
		Price:                 ev.Price,
		Strike:                ev.Contract.Strike,
		Premium:               ev.Premium,
		Intrinsic:             ev.Intrinsic,
		Extrinsic:             ev.Extrinsic,
		JuicePerContract:      ev.JuicePerContract,
		ContractsNeeded:       s.ContractsNeeded,
		TotalJuice:            s.TotalJuice,
		CollateralPerContract: s.CollateralPerContract,
		TotalCollateral:       s.TotalCollateral,
		CushionPercent:        ev.CushionPercent,
		ROIPercent:            s.ROIPercent,
		UpsidePercent:         ev.UpsidePercent,
		TotalReturnPercent:    s.ROIPercent + ev.UpsidePercent,
		ProbabilityOfProfit:   ev.ProbabilityOfProfit,
		OpenInterest:          ev.Contract.OpenInterest,
		ImpliedVolatility:     ev.Contract.ImpliedVolatility,
	}
}

// EvaluateTicker runs the per-ticker pipeline over the given chains:
// select one contract per expiration, evaluate it, size it, rank the
// survivors and grade the winner.
//
// Errors:
//   - data.ErrNoOptions when every chain is empty
//   - ErrNoQualifyingContract when every candidate was filtered; the wrapped
//     detail names the last rejection (for example ErrCapitalExceeded)
func EvaluateTicker(quote data.Quote, chains []*data.Chain, cfg strategy.Config, acct Account, opts Options) (ScanResult, error) {
	asOf := opts.AsOf
	if asOf.IsZero() {
		asOf = time.Now()
	}
	if !(quote.Price > 0) {
		return ScanResult{}, fmt.Errorf("%s: %w", quote.Ticker, data.ErrNoPrice)
	}

	optType := strategy.Side(cfg.Variant)
	var (
		candidates []ScanResult
		lastErr    error
		nonEmpty   int
	)
	for _, chain := range chains {
		if chain.Empty() {
			continue
		}
		nonEmpty++

		contract, ok := strategy.Select(chain.Side(optType), quote.Price, cfg)
		if !ok {
			lastErr = fmt.Errorf("%w: expiry %s", ErrNoAdmissibleStrike, chain.Expiration.Format(data.DateLayout))
			continue
		}
		if contract.Underlying == "" {
			contract.Underlying = quote.Ticker
		}
		if contract.Expiration.IsZero() {
			contract.Expiration = chain.Expiration
		}

		ev, err := Evaluate(quote, contract, cfg, asOf)
		if err != nil {
			lastErr = err
			logger.Tracef("event=candidate_rejected ticker=%s strike=%.2f err=%v", quote.Ticker, contract.Strike, err)
			continue
		}
		sz, err := Size(ev, acct)
		if err != nil {
			lastErr = err
			logger.Tracef("event=candidate_rejected ticker=%s strike=%.2f err=%v", quote.Ticker, contract.Strike, err)
			continue
		}
		candidates = append(candidates, NewScanResult(ev, sz))
	}

	if nonEmpty == 0 {
		return ScanResult{}, fmt.Errorf("%s: %w", quote.Ticker, data.ErrNoOptions)
	}
	best, ok := Rank(candidates)
	if !ok {
		if lastErr == nil {
			lastErr = errors.New("no candidates")
		}
		return ScanResult{}, fmt.Errorf("%w: %w", ErrNoQualifyingContract, lastErr)
	}
	best.Grade = opts.Grader.Grade(best)
	return best, nil
}
