// Package config loads the scanner configuration from a YAML file with
// SCANNER_* environment overrides and converts it into the values the
// engine, scanner and providers take.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/contactkeval/option-income-scanner/internal/data"
	"github.com/contactkeval/option-income-scanner/internal/logger"
	"github.com/contactkeval/option-income-scanner/internal/scan"
	"github.com/contactkeval/option-income-scanner/internal/scan/engine"
	"github.com/contactkeval/option-income-scanner/internal/scan/strategy"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// EnvPrefix prefixes environment overrides, e.g. SCANNER_ACCOUNT_CAPITAL.
const EnvPrefix = "SCANNER"

type Strategy struct {
	Name            string  `mapstructure:"name"`
	CushionPercent  float64 `mapstructure:"cushionPercent"`
	PutMode         string  `mapstructure:"putMode"`
	MinOpenInterest int64   `mapstructure:"minOpenInterest"`
}

type Account struct {
	Capital        float64 `mapstructure:"capital"`
	IncomeGoal     float64 `mapstructure:"incomeGoal"`
	GoalPeriodDays int     `mapstructure:"goalPeriodDays"`
}

type Scan struct {
	PriceRange     []float64     `mapstructure:"priceRange"`
	DTERange       []int         `mapstructure:"dteRange"`
	MaxExpirations int           `mapstructure:"maxExpirations"`
	Workers        int           `mapstructure:"workers"`
	TaskTimeout    time.Duration `mapstructure:"taskTimeout"`
	RequireHealthy bool          `mapstructure:"requireHealthy"`
}

type Provider struct {
	Name     string        `mapstructure:"name"`
	APIKey   string        `mapstructure:"apiKey"`
	BaseURL  string        `mapstructure:"baseURL"`
	Dir      string        `mapstructure:"dir"`
	CacheTTL time.Duration `mapstructure:"cacheTTL"`
}

type AlphaVantage struct {
	APIKey  string `mapstructure:"apiKey"`
	BaseURL string `mapstructure:"baseURL"`
}

type Universe struct {
	File    string   `mapstructure:"file"`
	Group   string   `mapstructure:"group"`
	Tickers []string `mapstructure:"tickers"`
}

type Logging struct {
	Verbosity string `mapstructure:"verbosity"`
	Format    string `mapstructure:"format"`
}

type Output struct {
	ReportDir string `mapstructure:"reportDir"`
	Format    string `mapstructure:"format"` // table | json | csv
}

type Server struct {
	Addr string `mapstructure:"addr"`
}

// Configuration mirrors the YAML file.
type Configuration struct {
	Strategy     Strategy           `mapstructure:"strategy"`
	Account      Account            `mapstructure:"account"`
	Scan         Scan               `mapstructure:"scan"`
	Grades       []engine.GradeRule `mapstructure:"grades"`
	Earnings     map[string]string  `mapstructure:"earnings"`
	Provider     Provider           `mapstructure:"provider"`
	AlphaVantage AlphaVantage       `mapstructure:"alphaVantage"`
	Universe     Universe           `mapstructure:"universe"`
	Logging      Logging            `mapstructure:"logging"`
	Output       Output             `mapstructure:"output"`
	Server       Server             `mapstructure:"server"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("strategy.name", string(strategy.DeepITMCall))
	v.SetDefault("strategy.cushionPercent", 10.0)
	v.SetDefault("strategy.putMode", string(strategy.PutOTM))
	v.SetDefault("strategy.minOpenInterest", 0)
	v.SetDefault("account.capital", 0.0)
	v.SetDefault("account.incomeGoal", 0.0)
	v.SetDefault("account.goalPeriodDays", 30)
	v.SetDefault("scan.priceRange", []float64{0, 0})
	v.SetDefault("scan.dteRange", []int{0, scan.DefaultMaxDTE})
	v.SetDefault("scan.maxExpirations", scan.DefaultMaxExpirations)
	v.SetDefault("scan.workers", scan.DefaultWorkers)
	v.SetDefault("scan.taskTimeout", scan.DefaultTaskTimeout)
	v.SetDefault("scan.requireHealthy", false)
	v.SetDefault("provider.name", "synthetic")
	v.SetDefault("provider.apiKey", "")
	v.SetDefault("provider.baseURL", "")
	v.SetDefault("provider.dir", "")
	v.SetDefault("provider.cacheTTL", 5*time.Minute)
	v.SetDefault("alphaVantage.apiKey", "")
	v.SetDefault("alphaVantage.baseURL", data.DefaultAlphaVantageBaseURL)
	v.SetDefault("universe.file", "")
	v.SetDefault("universe.group", "")
	v.SetDefault("universe.tickers", []string{})
	v.SetDefault("logging.verbosity", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("output.reportDir", "reports")
	v.SetDefault("output.format", "table")
	v.SetDefault("server.addr", ":8080")
}

// LoadConfiguration reads configPath (YAML). An empty path yields the
// defaults plus environment overrides. Provider API keys fall back to
// POLYGON_API_KEY / MASSIVE_API_KEY and ALPHAVANTAGE_API_KEY.
func LoadConfiguration(configPath string) (*Configuration, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file, %s", err)
		}
	}

	var configuration Configuration
	if err := v.Unmarshal(&configuration); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %s", err)
	}

	if configuration.Provider.APIKey == "" {
		switch strings.ToLower(configuration.Provider.Name) {
		case "polygon":
			configuration.Provider.APIKey = os.Getenv("POLYGON_API_KEY")
		case "massive":
			configuration.Provider.APIKey = firstNonEmpty(os.Getenv("MASSIVE_API_KEY"), os.Getenv("POLYGON_API_KEY"))
		}
	}
	if configuration.AlphaVantage.APIKey == "" {
		configuration.AlphaVantage.APIKey = os.Getenv("ALPHAVANTAGE_API_KEY")
	}

	logger.Debugf("event=config_loaded path=%q strategy=%s provider=%s", configPath, configuration.Strategy.Name, configuration.Provider.Name)
	return &configuration, nil
}

func firstNonEmpty(values ...string) string {
	for _, s := range values {
		if s != "" {
			return s
		}
	}
	return ""
}

// Validate checks every section and reports all problems at once.
func (c *Configuration) Validate() error {
	var errs []error

	sc, err := c.ScannerConfig()
	if err != nil {
		errs = append(errs, err)
	} else if err := sc.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(c.Scan.PriceRange) != 2 {
		errs = append(errs, fmt.Errorf("scan.priceRange needs [min, max], got %v", c.Scan.PriceRange))
	}
	if len(c.Scan.DTERange) != 2 {
		errs = append(errs, fmt.Errorf("scan.dteRange needs [min, max], got %v", c.Scan.DTERange))
	}
	if _, err := c.EarningsTable(); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Provider.Name) {
	case "", "synthetic":
	case "massive", "polygon":
		if c.Provider.APIKey == "" {
			errs = append(errs, fmt.Errorf("provider %s needs an API key", c.Provider.Name))
		}
	case "csv":
		if c.Provider.Dir == "" {
			errs = append(errs, errors.New("provider csv needs provider.dir"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown provider %q", c.Provider.Name))
	}
	if _, err := logger.ParseVerbosity(c.Logging.Verbosity); err != nil {
		errs = append(errs, err)
	}
	switch c.Output.Format {
	case "", "table", "json", "csv":
	default:
		errs = append(errs, fmt.Errorf("unknown output format %q", c.Output.Format))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// StrategyConfig converts the strategy section.
func (c *Configuration) StrategyConfig() (strategy.Config, error) {
	variant, err := strategy.ParseVariant(c.Strategy.Name)
	if err != nil {
		return strategy.Config{}, err
	}
	cfg := strategy.Config{
		Variant:         variant,
		CushionPercent:  c.Strategy.CushionPercent,
		MinOpenInterest: c.Strategy.MinOpenInterest,
	}
	if variant == strategy.CashSecuredPut {
		if cfg.PutMode, err = strategy.ParsePutMode(c.Strategy.PutMode); err != nil {
			return strategy.Config{}, err
		}
	}
	return cfg, nil
}

func (c *Configuration) AccountConfig() engine.Account {
	return engine.Account{
		Capital:        c.Account.Capital,
		IncomeGoal:     c.Account.IncomeGoal,
		GoalPeriodDays: c.Account.GoalPeriodDays,
	}
}

func (c *Configuration) ScanOptions() scan.Options {
	o := scan.Options{
		MaxExpirations: c.Scan.MaxExpirations,
		Workers:        c.Scan.Workers,
		TaskTimeout:    c.Scan.TaskTimeout,
		RequireHealthy: c.Scan.RequireHealthy,
	}
	if len(c.Scan.PriceRange) == 2 {
		o.MinPrice, o.MaxPrice = c.Scan.PriceRange[0], c.Scan.PriceRange[1]
	}
	if len(c.Scan.DTERange) == 2 {
		o.MinDTE, o.MaxDTE = c.Scan.DTERange[0], c.Scan.DTERange[1]
	}
	return o
}

// ScannerConfig assembles the immutable per-scan configuration.
func (c *Configuration) ScannerConfig() (scan.Config, error) {
	sc, err := c.StrategyConfig()
	if err != nil {
		return scan.Config{}, err
	}
	return scan.Config{
		Strategy: sc,
		Account:  c.AccountConfig(),
		Options:  c.ScanOptions(),
		Grades:   c.Grades,
	}.WithDefaults(), nil
}

func (c *Configuration) ProviderConfig() data.ProviderConfig {
	return data.ProviderConfig{
		Name:     c.Provider.Name,
		APIKey:   c.Provider.APIKey,
		BaseURL:  c.Provider.BaseURL,
		Dir:      c.Provider.Dir,
		CacheTTL: c.Provider.CacheTTL,
	}
}

// EarningsTable parses the static earnings section.
func (c *Configuration) EarningsTable() (data.StaticEarnings, error) {
	return data.ParseStaticEarnings(c.Earnings)
}

// Sources returns the earnings and fundamentals sources. The static table
// wins over Alpha Vantage for earnings; fundamentals need an API key.
func (c *Configuration) Sources() (data.EarningsSource, data.FundamentalsSource, error) {
	table, err := c.EarningsTable()
	if err != nil {
		return nil, nil, err
	}
	var av *data.AlphaVantage
	if c.AlphaVantage.APIKey != "" {
		av = data.NewAlphaVantage(c.AlphaVantage.APIKey, c.AlphaVantage.BaseURL)
	}

	var earnings data.EarningsSource
	switch {
	case len(table) > 0:
		earnings = table
	case av != nil:
		earnings = av
	}
	var fundamentals data.FundamentalsSource
	if av != nil {
		fundamentals = av
	}
	return earnings, fundamentals, nil
}

// ScannerOptions returns the scan.Option set implied by the configuration.
func (c *Configuration) ScannerOptions() ([]scan.Option, error) {
	earnings, fundamentals, err := c.Sources()
	if err != nil {
		return nil, err
	}
	var opts []scan.Option
	if earnings != nil {
		opts = append(opts, scan.WithEarnings(earnings))
	}
	if fundamentals != nil {
		opts = append(opts, scan.WithFundamentals(fundamentals))
	}
	return opts, nil
}
