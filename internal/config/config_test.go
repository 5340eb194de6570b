package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contactkeval/option-income-scanner/internal/data"
	"github.com/contactkeval/option-income-scanner/internal/scan/strategy"
)

const sampleYAML = `
strategy:
  name: csp
  cushionPercent: 5
  putMode: itm
  minOpenInterest: 25
account:
  capital: 50000
  incomeGoal: 300
scan:
  priceRange: [10, 250]
  dteRange: [7, 45]
  maxExpirations: 3
  workers: 6
  taskTimeout: 3s
grades:
  - grade: A
    when: roi_pct > 2
earnings:
  aapl: "2025-01-30"
provider:
  name: csv
  dir: testdata
  cacheTTL: 1m
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scanner.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfiguration(t *testing.T) {
	cfg, err := LoadConfiguration(writeConfig(t, sampleYAML))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	sc, err := cfg.ScannerConfig()
	require.NoError(t, err)
	assert.Equal(t, strategy.CashSecuredPut, sc.Strategy.Variant)
	assert.Equal(t, strategy.PutITM, sc.Strategy.PutMode)
	assert.Equal(t, int64(25), sc.Strategy.MinOpenInterest)
	assert.Equal(t, 50000.0, sc.Account.Capital)
	assert.Equal(t, 30, sc.Account.GoalPeriodDays, "default")
	assert.Equal(t, 10.0, sc.Options.MinPrice)
	assert.Equal(t, 250.0, sc.Options.MaxPrice)
	assert.Equal(t, 7, sc.Options.MinDTE)
	assert.Equal(t, 45, sc.Options.MaxDTE)
	assert.Equal(t, 3, sc.Options.MaxExpirations)
	assert.Equal(t, 6, sc.Options.Workers)
	assert.Equal(t, 3*time.Second, sc.Options.TaskTimeout)
	require.Len(t, sc.Grades, 1)
	assert.Equal(t, "roi_pct > 2", sc.Grades[0].When)

	pc := cfg.ProviderConfig()
	assert.Equal(t, "csv", pc.Name)
	assert.Equal(t, time.Minute, pc.CacheTTL)

	table, err := cfg.EarningsTable()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 30, 0, 0, 0, 0, time.UTC), table["AAPL"])

	earnings, fundamentals, err := cfg.Sources()
	require.NoError(t, err)
	assert.IsType(t, data.StaticEarnings{}, earnings)
	assert.Nil(t, fundamentals)
}

func TestLoadConfigurationEnvOverride(t *testing.T) {
	t.Setenv("SCANNER_ACCOUNT_CAPITAL", "75000")
	t.Setenv("SCANNER_SCAN_TASKTIMEOUT", "250ms")
	t.Setenv("ALPHAVANTAGE_API_KEY", "demo")

	cfg, err := LoadConfiguration(writeConfig(t, sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, 75000.0, cfg.Account.Capital)
	assert.Equal(t, 250*time.Millisecond, cfg.Scan.TaskTimeout)
	assert.Equal(t, "demo", cfg.AlphaVantage.APIKey)

	_, fundamentals, err := cfg.Sources()
	require.NoError(t, err)
	assert.IsType(t, &data.AlphaVantage{}, fundamentals)
}

func TestLoadConfigurationDefaults(t *testing.T) {
	cfg, err := LoadConfiguration("")
	require.NoError(t, err)

	assert.Equal(t, "synthetic", cfg.Provider.Name)
	assert.Equal(t, "table", cfg.Output.Format)
	sc, err := cfg.ScannerConfig()
	require.NoError(t, err)
	assert.Equal(t, strategy.DeepITMCall, sc.Strategy.Variant)
	assert.Equal(t, 10, sc.Options.Workers)
	assert.Equal(t, 60, sc.Options.MaxDTE)

	// capital and income goal have no sensible default
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestLoadConfigurationMissingFile(t *testing.T) {
	_, err := LoadConfiguration(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Configuration {
		cfg, err := LoadConfiguration(writeConfig(t, sampleYAML))
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *Configuration)
		wantErr error
	}{
		{"unknown strategy", func(c *Configuration) { c.Strategy.Name = "strangle" }, strategy.ErrUnknownVariant},
		{"bad put mode", func(c *Configuration) { c.Strategy.PutMode = "atm" }, strategy.ErrUnknownPutMode},
		{"cushion too wide", func(c *Configuration) { c.Strategy.CushionPercent = 75 }, strategy.ErrCushionOutOfRange},
		{"short price range", func(c *Configuration) { c.Scan.PriceRange = []float64{5} }, ErrInvalidConfig},
		{"bad earnings date", func(c *Configuration) { c.Earnings = map[string]string{"x": "soon"} }, ErrInvalidConfig},
		{"polygon without key", func(c *Configuration) { c.Provider = Provider{Name: "polygon"} }, ErrInvalidConfig},
		{"unknown provider", func(c *Configuration) { c.Provider.Name = "bloomberg" }, ErrInvalidConfig},
		{"bad verbosity", func(c *Configuration) { c.Logging.Verbosity = "loud" }, ErrInvalidConfig},
		{"bad output", func(c *Configuration) { c.Output.Format = "xml" }, ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
