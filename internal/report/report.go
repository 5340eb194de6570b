// Package report writes scan reports as JSON, CSV and console tables.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/contactkeval/option-income-scanner/internal/data"
	"github.com/contactkeval/option-income-scanner/internal/logger"
	"github.com/contactkeval/option-income-scanner/internal/scan"
	"github.com/contactkeval/option-income-scanner/internal/scan/engine"
)

const (
	JSONFile = "results.json"
	CSVFile  = "results.csv"
)

// Summary is the one-line outcome of a scan.
type Summary struct {
	Strategy  string              `json:"strategy"`
	Tickers   int                 `json:"tickers"`
	Results   int                 `json:"results"`
	Failures  int                 `json:"failures"`
	Histogram map[scan.Reason]int `json:"histogram"`
	Message   string              `json:"message"`
}

// Summarize tells apart the two empty outcomes: nothing had data, or data was
// there but nothing met the filters.
func Summarize(rep *scan.Report) Summary {
	s := Summary{
		Strategy:  rep.Strategy,
		Tickers:   rep.Tickers,
		Results:   len(rep.Results),
		Failures:  len(rep.Failures),
		Histogram: rep.Histogram,
	}
	switch {
	case rep.Tickers == 0:
		s.Message = "no tickers scanned"
	case len(rep.Results) > 0:
		s.Message = fmt.Sprintf("%d of %d tickers qualified", len(rep.Results), rep.Tickers)
	case rep.AllFailed():
		s.Message = "no results: no ticker returned usable data"
	default:
		s.Message = "no results: no contract met the strategy filters"
	}
	return s
}

// WriteJSON writes the full report to outdir/results.json.
func WriteJSON(rep *scan.Report, outdir string) error {
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(outdir, JSONFile)
	if err := os.WriteFile(path, b, 0644); err != nil {
		return err
	}
	logger.Infof("event=report_written format=json path=%s", path)
	return nil
}

// csvRow is the flat CSV shape of a result.
type csvRow struct {
	Ticker           string  `csv:"ticker"`
	Strategy         string  `csv:"strategy"`
	Symbol           string  `csv:"symbol"`
	Expiration       string  `csv:"expiration"`
	DaysToExpiry     int     `csv:"dte"`
	Price            float64 `csv:"price"`
	Strike           float64 `csv:"strike"`
	Premium          float64 `csv:"premium"`
	Extrinsic        float64 `csv:"extrinsic"`
	JuicePerContract float64 `csv:"juice_per_contract"`
	Contracts        int     `csv:"contracts"`
	TotalJuice       float64 `csv:"total_juice"`
	TotalCollateral  float64 `csv:"total_collateral"`
	CushionPercent   float64 `csv:"cushion_pct"`
	ROIPercent       float64 `csv:"roi_pct"`
	UpsidePercent    float64 `csv:"upside_pct"`
	TotalReturn      float64 `csv:"total_return_pct"`
	POP              float64 `csv:"pop"`
	OpenInterest     int64   `csv:"open_interest"`
	Grade            string  `csv:"grade"`
	Earnings         string  `csv:"earnings"`
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func toRows(results []engine.ScanResult) []*csvRow {
	rows := make([]*csvRow, 0, len(results))
	for _, r := range results {
		rows = append(rows, &csvRow{
			Ticker:           r.Ticker,
			Strategy:         r.Strategy,
			Symbol:           r.Symbol,
			Expiration:       r.Expiration.Format(data.DateLayout),
			DaysToExpiry:     r.DaysToExpiry,
			Price:            round2(r.Price),
			Strike:           r.Strike,
			Premium:          round2(r.Premium),
			Extrinsic:        round2(r.Extrinsic),
			JuicePerContract: round2(r.JuicePerContract),
			Contracts:        r.ContractsNeeded,
			TotalJuice:       round2(r.TotalJuice),
			TotalCollateral:  round2(r.TotalCollateral),
			CushionPercent:   round2(r.CushionPercent),
			ROIPercent:       round2(r.ROIPercent),
			UpsidePercent:    round2(r.UpsidePercent),
			TotalReturn:      round2(r.TotalReturnPercent),
			POP:              round2(r.ProbabilityOfProfit),
			OpenInterest:     r.OpenInterest,
			Grade:            r.Grade,
			Earnings:         earningsLabel(r.Earnings),
		})
	}
	return rows
}

// MarshalCSV writes results as CSV with a header row.
func MarshalCSV(results []engine.ScanResult, w io.Writer) error {
	rows := toRows(results)
	return gocsv.Marshal(&rows, w)
}

// WriteCSV writes results to outdir/results.csv.
func WriteCSV(results []engine.ScanResult, outdir string) error {
	path := filepath.Join(outdir, CSVFile)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	rows := toRows(results)
	if err := gocsv.MarshalFile(&rows, f); err != nil {
		return fmt.Errorf("error marshalling file: %v", err)
	}
	logger.Infof("event=report_written format=csv path=%s rows=%d", path, len(rows))
	return nil
}

func earningsLabel(e *engine.Earnings) string {
	switch {
	case e == nil:
		return ""
	case e.BeforeExpiry:
		return "before expiry " + e.Date.Format(data.DateLayout)
	default:
		return e.Date.Format(data.DateLayout)
	}
}

// RenderTable prints results and the failure histogram for a terminal.
func RenderTable(w io.Writer, rep *scan.Report) {
	p := message.NewPrinter(language.English)
	money := func(v float64) string { return p.Sprintf("$%.2f", v) }
	pct := func(v float64) string { return fmt.Sprintf("%.2f%%", v) }

	fmt.Fprintf(w, "%s\n", rep.Strategy)
	if len(rep.Results) > 0 {
		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"Ticker", "Expiry", "DTE", "Price", "Strike", "Premium", "Juice/ct", "Contracts", "Income", "Collateral", "Cushion", "ROI", "Total", "POP", "Grade", "Earnings"})
		table.SetAutoFormatHeaders(false)
		table.SetAlignment(tablewriter.ALIGN_RIGHT)
		for _, r := range rep.Results {
			table.Append([]string{
				r.Ticker,
				r.Expiration.Format(data.DateLayout),
				fmt.Sprintf("%d", r.DaysToExpiry),
				money(r.Price),
				p.Sprintf("%.2f", r.Strike),
				money(r.Premium),
				money(r.JuicePerContract),
				fmt.Sprintf("%d", r.ContractsNeeded),
				money(r.TotalJuice),
				money(r.TotalCollateral),
				pct(r.CushionPercent),
				pct(r.ROIPercent),
				pct(r.TotalReturnPercent),
				fmt.Sprintf("%.0f%%", r.ProbabilityOfProfit*100),
				r.Grade,
				earningsLabel(r.Earnings),
			})
		}
		table.Render()
	}

	s := Summarize(rep)
	fmt.Fprintln(w, s.Message)
	if len(rep.Histogram) > 0 {
		parts := make([]string, 0, len(rep.Histogram))
		for _, reason := range []scan.Reason{
			scan.ReasonNoPrice, scan.ReasonOutOfRange, scan.ReasonUnhealthy, scan.ReasonNoOptions,
			scan.ReasonNoMatch, scan.ReasonTimeout, scan.ReasonCancelled, scan.ReasonError,
		} {
			if n := rep.Histogram[reason]; n > 0 {
				parts = append(parts, fmt.Sprintf("%s=%d", reason, n))
			}
		}
		fmt.Fprintf(w, "skipped: %s\n", strings.Join(parts, " "))
	}
}
