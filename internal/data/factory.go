package data

import (
	"fmt"
	"strings"
	"time"
)

// ProviderConfig selects and parameterises a Provider.
type ProviderConfig struct {
	Name     string // synthetic | massive | polygon | csv
	APIKey   string
	BaseURL  string
	Dir      string // csv fixtures directory
	CacheTTL time.Duration
}

// NewProvider builds the configured provider. The csv provider falls back to
// synthetic data for tickers without fixtures. A positive CacheTTL wraps the
// result in the caching decorator.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	var p Provider
	switch strings.ToLower(cfg.Name) {
	case "", "synthetic":
		p = NewSyntheticProvider(nil)
	case "massive":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("massive provider requires an API key")
		}
		p = NewMassiveDataProvider(cfg.APIKey, cfg.BaseURL)
	case "polygon":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("polygon provider requires an API key")
		}
		p = NewPolygonDataProvider(cfg.APIKey)
	case "csv":
		if cfg.Dir == "" {
			return nil, fmt.Errorf("csv provider requires a directory")
		}
		p = NewLocalFileDataProvider(cfg.Dir, NewSyntheticProvider(nil))
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Name)
	}
	return NewCachedProvider(p, cfg.CacheTTL), nil
}
