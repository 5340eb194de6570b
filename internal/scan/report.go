package scan

import (
	"sort"
	"time"

	"github.com/contactkeval/option-income-scanner/internal/scan/engine"
)

// Reason classifies why a ticker produced no result.
type Reason string

const (
	ReasonNoPrice    Reason = "no_price"
	ReasonOutOfRange Reason = "out_of_range"
	ReasonUnhealthy  Reason = "unhealthy"
	ReasonNoOptions  Reason = "no_options"
	ReasonNoMatch    Reason = "no_match"
	ReasonTimeout    Reason = "timeout"
	ReasonCancelled  Reason = "cancelled"
	ReasonError      Reason = "error"
)

// dataReasons are failures caused by missing or unreachable data rather than
// by the strategy filters.
var dataReasons = map[Reason]bool{
	ReasonNoPrice:   true,
	ReasonNoOptions: true,
	ReasonTimeout:   true,
	ReasonCancelled: true,
	ReasonError:     true,
}

// Failure records a ticker that produced no result.
type Failure struct {
	Ticker string `json:"ticker"`
	Reason Reason `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

// Report is the outcome of one scan. Every requested ticker appears exactly
// once, either in Results or in Failures.
type Report struct {
	Strategy   string              `json:"strategy"`
	Tickers    int                 `json:"tickers"`
	Results    []engine.ScanResult `json:"results"`
	Failures   []Failure           `json:"failures"`
	Histogram  map[Reason]int      `json:"histogram"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
}

func newReport(strategy string, tickers int, startedAt time.Time) *Report {
	return &Report{
		Strategy:  strategy,
		Tickers:   tickers,
		Results:   []engine.ScanResult{},
		Failures:  []Failure{},
		Histogram: map[Reason]int{},
		StartedAt: startedAt,
	}
}

func (r *Report) add(o outcome) {
	if o.result != nil {
		r.Results = append(r.Results, *o.result)
		return
	}
	r.Failures = append(r.Failures, o.failure)
	r.Histogram[o.failure.Reason]++
}

// finish orders results by ROI descending (ticker breaks ties) and failures
// by ticker.
func (r *Report) finish(at time.Time) {
	sort.SliceStable(r.Results, func(i, j int) bool {
		if r.Results[i].ROIPercent != r.Results[j].ROIPercent {
			return r.Results[i].ROIPercent > r.Results[j].ROIPercent
		}
		return r.Results[i].Ticker < r.Results[j].Ticker
	})
	sort.SliceStable(r.Failures, func(i, j int) bool { return r.Failures[i].Ticker < r.Failures[j].Ticker })
	r.FinishedAt = at
}

// Accounted is the number of tickers with a recorded outcome.
func (r *Report) Accounted() int {
	return len(r.Results) + len(r.Failures)
}

// AllFailed reports that nothing was returned because no ticker produced
// usable data.
func (r *Report) AllFailed() bool {
	if len(r.Results) > 0 || len(r.Failures) == 0 {
		return false
	}
	for _, f := range r.Failures {
		if !dataReasons[f.Reason] {
			return false
		}
	}
	return true
}

// NothingQualified reports that nothing was returned although at least one
// ticker had data that the strategy filters rejected.
func (r *Report) NothingQualified() bool {
	return len(r.Results) == 0 && len(r.Failures) > 0 && !r.AllFailed()
}

// Result returns the result for ticker, if any.
func (r *Report) Result(ticker string) (engine.ScanResult, bool) {
	for _, res := range r.Results {
		if res.Ticker == ticker {
			return res, true
		}
	}
	return engine.ScanResult{}, false
}
