// Package strategy defines the income strategy variants and the strike
// selection rules applied to one side of an option chain.
//
// Responsibilities:
//   - Parse and validate a strategy configuration
//   - Decide which chain side a variant trades (calls or puts)
//   - Decide which strikes are admissible and pick one per expiration
//   - Decide how premium is counted as income (the juice policy)
//
// Design notes:
//   - Every function here is pure; nothing reads the clock or a provider
//   - An empty admissible set is a normal outcome, reported as ok=false
package strategy

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/contactkeval/option-income-scanner/internal/data"
)

//
// ==========================
// Error taxonomy
// ==========================
//

// Typed errors allow callers and tests to detect failure categories
// without string matching.
var (
	ErrUnknownVariant    = errors.New("unknown strategy variant")
	ErrUnknownPutMode    = errors.New("unknown put mode")
	ErrCushionOutOfRange = errors.New("cushion percent out of range")
	ErrNegativeMinOI     = errors.New("min open interest must not be negative")
)

// MaxCushionPercent bounds Config.CushionPercent.
const MaxCushionPercent = 50

//
// ==========================
// Domain Types
// ==========================
//

// Variant names an income strategy.
type Variant string

const (
	DeepITMCall     Variant = "deep_itm_call"
	StandardOTMCall Variant = "otm_call"
	ATMCall         Variant = "atm_call"
	CashSecuredPut  Variant = "cash_secured_put"
)

// PutMode chooses which side of the price a cash-secured put is sold.
type PutMode string

const (
	PutOTM PutMode = "otm" // strike at or below price
	PutITM PutMode = "itm" // strike at least cushion% above price
)

// JuicePolicy decides how much of the premium counts as income.
type JuicePolicy int

const (
	FullPremium   JuicePolicy = iota // the whole premium
	ExtrinsicOnly                    // premium minus intrinsic value
)

func (p JuicePolicy) String() string {
	if p == ExtrinsicOnly {
		return "extrinsic_only"
	}
	return "full_premium"
}

// Config is the per-scan strategy configuration. It is a plain value and is
// copied into every scan task.
type Config struct {
	Variant         Variant `json:"variant"`
	CushionPercent  float64 `json:"cushion_percent"`
	PutMode         PutMode `json:"put_mode,omitempty"`
	MinOpenInterest int64   `json:"min_open_interest,omitempty"`
}

var variantAliases = map[string]Variant{
	"deep_itm_call":             DeepITMCall,
	"deep_itm":                  DeepITMCall,
	"deep itm covered call":     DeepITMCall,
	"otm_call":                  StandardOTMCall,
	"standard_otm_call":         StandardOTMCall,
	"otm":                       StandardOTMCall,
	"standard otm covered call": StandardOTMCall,
	"atm_call":                  ATMCall,
	"atm":                       ATMCall,
	"atm covered call":          ATMCall,
	"cash_secured_put":          CashSecuredPut,
	"csp":                       CashSecuredPut,
	"put":                       CashSecuredPut,
	"cash secured put":          CashSecuredPut,
}

// ParseVariant accepts the canonical names, short aliases and the dashboard
// labels ("Deep ITM Covered Call", ...), case-insensitively.
func ParseVariant(s string) (Variant, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if v, ok := variantAliases[key]; ok {
		return v, nil
	}
	if v, ok := variantAliases[strings.ReplaceAll(key, "-", "_")]; ok {
		return v, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownVariant, s)
}

// ParsePutMode accepts "otm" and "itm"; empty means OTM.
func ParsePutMode(s string) (PutMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "otm":
		return PutOTM, nil
	case "itm":
		return PutITM, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPutMode, s)
}

// Validate checks the configuration, joining every problem found.
func (c Config) Validate() error {
	var errs []error
	switch c.Variant {
	case DeepITMCall, StandardOTMCall, ATMCall, CashSecuredPut:
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownVariant, c.Variant))
	}
	if c.Variant == CashSecuredPut && c.PutMode != PutOTM && c.PutMode != PutITM {
		errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownPutMode, c.PutMode))
	}
	if math.IsNaN(c.CushionPercent) || c.CushionPercent < 0 || c.CushionPercent > MaxCushionPercent {
		errs = append(errs, fmt.Errorf("%w: %v not in [0,%d]", ErrCushionOutOfRange, c.CushionPercent, MaxCushionPercent))
	}
	if c.MinOpenInterest < 0 {
		errs = append(errs, ErrNegativeMinOI)
	}
	return errors.Join(errs...)
}

// Name is the display label of the configured strategy.
func (c Config) Name() string {
	switch c.Variant {
	case DeepITMCall:
		return "Deep ITM Covered Call"
	case StandardOTMCall:
		return "Standard OTM Covered Call"
	case ATMCall:
		return "ATM Covered Call"
	case CashSecuredPut:
		if c.PutMode == PutITM {
			return "Cash Secured Put (ITM)"
		}
		return "Cash Secured Put (OTM)"
	}
	return string(c.Variant)
}

// IsPut reports whether the strategy sells puts.
func (c Config) IsPut() bool {
	return c.Variant == CashSecuredPut
}

//
// ==========================
// Rules
// ==========================
//

// Side returns the chain side a variant trades.
func Side(v Variant) data.OptionType {
	if v == CashSecuredPut {
		return data.Put
	}
	return data.Call
}

// PolicyFor returns the juice policy of cfg. Strategies that sell
// in-the-money by construction only count extrinsic value as income.
func PolicyFor(cfg Config) JuicePolicy {
	if ITMByConstruction(cfg) {
		return ExtrinsicOnly
	}
	return FullPremium
}

// ITMByConstruction reports whether every admissible strike is in the money.
func ITMByConstruction(cfg Config) bool {
	return cfg.Variant == DeepITMCall || (cfg.Variant == CashSecuredPut && cfg.PutMode == PutITM)
}

// Admissible reports whether strike passes the variant's filter at price.
func Admissible(strike, price float64, cfg Config) bool {
	if strike <= 0 || price <= 0 {
		return false
	}
	switch cfg.Variant {
	case DeepITMCall:
		return strike <= price*(1-cfg.CushionPercent/100)
	case StandardOTMCall:
		return strike > price
	case ATMCall:
		return true
	case CashSecuredPut:
		if cfg.PutMode == PutITM {
			return strike >= price*(1+cfg.CushionPercent/100)
		}
		return strike <= price
	}
	return false
}

// Select picks one contract from side:
//
//	DeepITMCall       highest admissible strike
//	StandardOTMCall   lowest strike above price
//	ATMCall           strike closest to price, ties to the lower strike
//	CashSecuredPut    OTM: highest strike at or below price
//	                  ITM: lowest strike at or above the cushion floor
//
// ok is false when no strike is admissible.
func Select(side []data.OptionContract, price float64, cfg Config) (data.OptionContract, bool) {
	var (
		best  data.OptionContract
		found bool
	)
	for _, c := range side {
		if !Admissible(c.Strike, price, cfg) {
			continue
		}
		if !found || better(c, best, price, cfg) {
			best, found = c, true
		}
	}
	return best, found
}

// better reports whether a should replace the current pick b.
func better(a, b data.OptionContract, price float64, cfg Config) bool {
	switch cfg.Variant {
	case DeepITMCall:
		return a.Strike > b.Strike
	case ATMCall:
		da, db := math.Abs(a.Strike-price), math.Abs(b.Strike-price)
		if da != db {
			return da < db
		}
		return a.Strike < b.Strike
	case CashSecuredPut:
		if cfg.PutMode == PutITM {
			return a.Strike < b.Strike
		}
		return a.Strike > b.Strike
	default: // StandardOTMCall
		return a.Strike < b.Strike
	}
}
