// Package testutil holds golden-file helpers and fixtures shared by package
// tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/contactkeval/option-income-scanner/internal/data"
	"github.com/contactkeval/option-income-scanner/internal/scan"
	"github.com/contactkeval/option-income-scanner/internal/scan/engine"
)

var Update = flag.Bool(
	"update",
	false,
	"update golden files",
)

//
// --- Golden file helpers ---
//

func writeGolden(t *testing.T, name string, v any) {
	t.Helper()
	path := filepath.Join("testdata", name+".golden")

	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create testdata dir: %v", err)
	}
	if err := os.WriteFile(path, b, 0644); err != nil {
		t.Fatalf("failed to write golden file: %v", err)
	}
}

func loadGolden(t *testing.T, name string) []byte {
	t.Helper()
	path := filepath.Join("testdata", name+".golden")

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read golden file: %v", err)
	}
	return bytes.TrimRight(b, "\n")
}

// CompareWithGolden marshals v as indented JSON and compares it with
// testdata/<name>.golden. Run tests with -update to rewrite the file.
func CompareWithGolden(t *testing.T, name string, v any) {
	t.Helper()

	actual, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		t.Fatalf("failed to marshal actual JSON: %v", err)
	}

	if *Update {
		writeGolden(t, name, v)
		return
	}

	expected := loadGolden(t, name)

	if !bytes.Equal(expected, actual) {
		t.Fatalf("golden mismatch for %s\nexpected:\n%s\nactual:\n%s",
			name, string(expected), string(actual))
	}
}

//
// --- Fixtures ---
//

var (
	AsOf   = time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	Expiry = time.Date(2025, 1, 17, 0, 0, 0, 0, time.UTC)
)

// Result is a plausible deep ITM covered call result at price 100, strike 90.
func Result(ticker string, roi float64) engine.ScanResult {
	c := data.OptionContract{Underlying: ticker, Expiration: Expiry, Type: data.Call, Strike: 90}
	return engine.ScanResult{
		Ticker:                ticker,
		Strategy:              "Deep ITM Covered Call",
		Expiration:            Expiry,
		DaysToExpiry:          15,
		Symbol:                c.Symbol(),
		Price:                 100,
		Strike:                90,
		Premium:               11.2,
		Intrinsic:             10,
		Extrinsic:             1.2,
		JuicePerContract:      roi * 100,
		ContractsNeeded:       2,
		TotalJuice:            roi * 200,
		CollateralPerContract: 10000,
		TotalCollateral:       20000,
		CushionPercent:        10,
		ROIPercent:            roi,
		TotalReturnPercent:    roi,
		ProbabilityOfProfit:   0.8,
		OpenInterest:          100,
		Grade:                 "B",
	}
}

// Report builds a finished report from results and failures.
func Report(results []engine.ScanResult, failures ...scan.Failure) *scan.Report {
	rep := &scan.Report{
		Strategy:   "Deep ITM Covered Call",
		Tickers:    len(results) + len(failures),
		Results:    append([]engine.ScanResult{}, results...),
		Failures:   append([]scan.Failure{}, failures...),
		Histogram:  map[scan.Reason]int{},
		StartedAt:  AsOf,
		FinishedAt: AsOf.Add(time.Second),
	}
	for _, f := range failures {
		rep.Histogram[f.Reason]++
	}
	return rep
}
