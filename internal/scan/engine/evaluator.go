package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/contactkeval/option-income-scanner/internal/data"
	"github.com/contactkeval/option-income-scanner/internal/pricing"
	"github.com/contactkeval/option-income-scanner/internal/scan/strategy"
)

// Evaluation is the per-contract economics before sizing.
type Evaluation struct {
	Ticker       string
	Config       strategy.Config
	Contract     data.OptionContract
	Price        float64
	DaysToExpiry int

	Premium          float64 // per share
	Intrinsic        float64 // per share
	Extrinsic        float64 // per share
	Policy           strategy.JuicePolicy
	JuicePerShare    float64
	JuicePerContract float64

	CushionPercent      float64
	UpsidePercent       float64
	ProbabilityOfProfit float64
}

// Premium returns the mid of bid and ask when an ask is quoted, else the
// last traded price, else 0.
func Premium(c data.OptionContract) float64 {
	if c.Ask > 0 {
		return (math.Max(c.Bid, 0) + c.Ask) / 2
	}
	if c.LastPrice > 0 {
		return c.LastPrice
	}
	return 0
}

// Intrinsic returns the per-share intrinsic value of c at price.
func Intrinsic(c data.OptionContract, price float64) float64 {
	if c.Type == data.Put {
		return math.Max(c.Strike-price, 0)
	}
	return math.Max(price-c.Strike, 0)
}

// Cushion returns the non-negative percentage distance between price and
// strike in the direction that would breach the strategy.
func Cushion(strike, price float64, cfg strategy.Config) float64 {
	if price <= 0 {
		return 0
	}
	if cfg.Variant == strategy.CashSecuredPut && cfg.PutMode == strategy.PutITM {
		return math.Max((strike-price)/price*100, 0)
	}
	return math.Max((price-strike)/price*100, 0)
}

// Evaluate computes premium, intrinsic/extrinsic split, juice, cushion,
// upside and probability of profit for one candidate contract.
//
// Rejections:
//   - ErrNoLiquidQuote    premium <= 0
//   - ErrLowOpenInterest  open interest below cfg.MinOpenInterest (when > 0)
//   - ErrNoTimeValue      in-the-money candidate with extrinsic <= MinExtrinsic
func Evaluate(quote data.Quote, contract data.OptionContract, cfg strategy.Config, asOf time.Time) (Evaluation, error) {
	price := quote.Price
	if !(price > 0) {
		return Evaluation{}, fmt.Errorf("%s: %w", quote.Ticker, data.ErrNoPrice)
	}

	premium := Premium(contract)
	if premium <= 0 {
		return Evaluation{}, fmt.Errorf("%w: strike %.2f bid %.2f ask %.2f last %.2f",
			ErrNoLiquidQuote, contract.Strike, contract.Bid, contract.Ask, contract.LastPrice)
	}
	if cfg.MinOpenInterest > 0 && contract.OpenInterest < cfg.MinOpenInterest {
		return Evaluation{}, fmt.Errorf("%w: strike %.2f open interest %d < %d",
			ErrLowOpenInterest, contract.Strike, contract.OpenInterest, cfg.MinOpenInterest)
	}

	intrinsic := Intrinsic(contract, price)
	extrinsic := math.Max(premium-intrinsic, 0)
	if (strategy.ITMByConstruction(cfg) || intrinsic > 0) && extrinsic <= MinExtrinsic {
		return Evaluation{}, fmt.Errorf("%w: strike %.2f extrinsic %.2f", ErrNoTimeValue, contract.Strike, extrinsic)
	}

	policy := strategy.PolicyFor(cfg)
	juice := premium
	if policy == strategy.ExtrinsicOnly {
		juice = extrinsic
	}

	upside := 0.0
	if contract.Type == data.Call && contract.Strike > price {
		upside = (contract.Strike - price) / price * 100
	}

	side := pricing.ShortCall
	if contract.Type == data.Put {
		side = pricing.ShortPut
	}
	days := data.DaysBetween(asOf, contract.Expiration)

	return Evaluation{
		Ticker:              quote.Ticker,
		Config:              cfg,
		Contract:            contract,
		Price:               price,
		DaysToExpiry:        days,
		Premium:             premium,
		Intrinsic:           intrinsic,
		Extrinsic:           extrinsic,
		Policy:              policy,
		JuicePerShare:       juice,
		JuicePerContract:    juice * ContractMultiplier,
		CushionPercent:      Cushion(contract.Strike, price, cfg),
		UpsidePercent:       upside,
		ProbabilityOfProfit: pricing.ProbabilityOfProfit(price, contract.Strike, days, contract.ImpliedVolatility, side),
	}, nil
}
