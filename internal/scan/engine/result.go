// Package engine turns one ticker's quote and option chains into at most one
// ranked income candidate.
//
// Responsibilities:
//   - Evaluate a selected contract (premium, intrinsic/extrinsic, juice, cushion, POP)
//   - Size the position against the account (contracts, collateral, ROI)
//   - Rank the candidates of all examined expirations and grade the winner
//
// Design notes:
//   - The pipeline is a pure function of (Quote, Chains, Config, Account)
//   - Candidate rejections are typed errors; the batch scanner maps them to reasons
package engine

import (
	"errors"
	"fmt"
	"time"
)

//
// ==========================
// Error taxonomy
// ==========================
//

// Typed errors allow callers and tests to detect failure categories
// without string matching.
var (
	ErrNoQualifyingContract = errors.New("no qualifying contract")
	ErrCapitalExceeded      = errors.New("capital exceeded")
	ErrNoLiquidQuote        = errors.New("no liquid quote")
	ErrLowOpenInterest      = errors.New("open interest below minimum")
	ErrNoTimeValue          = errors.New("no time value")
	ErrNoAdmissibleStrike   = errors.New("no admissible strike")
	ErrInvalidAccount       = errors.New("invalid account")
)

// ContractMultiplier is the number of shares per equity option contract.
const ContractMultiplier = 100

// MinExtrinsic is the per-share time value at or below which an
// in-the-money candidate is rejected.
const MinExtrinsic = 0.05

//
// ==========================
// Domain Types
// ==========================
//

// Account holds the capital constraint and the income target.
type Account struct {
	Capital        float64 `json:"capital"`
	IncomeGoal     float64 `json:"income_goal"`
	GoalPeriodDays int     `json:"goal_period_days,omitempty"` // informational
}

// Validate rejects non-positive capital or income goal.
func (a Account) Validate() error {
	var errs []error
	if !(a.Capital > 0) {
		errs = append(errs, fmt.Errorf("%w: capital must be > 0, got %v", ErrInvalidAccount, a.Capital))
	}
	if !(a.IncomeGoal > 0) {
		errs = append(errs, fmt.Errorf("%w: income goal must be > 0, got %v", ErrInvalidAccount, a.IncomeGoal))
	}
	if a.GoalPeriodDays < 0 {
		errs = append(errs, fmt.Errorf("%w: goal period must not be negative", ErrInvalidAccount))
	}
	return errors.Join(errs...)
}

// Earnings flags an upcoming earnings report.
type Earnings struct {
	Date         time.Time `json:"date"`
	BeforeExpiry bool      `json:"before_expiry"`
}

// ScanResult is the best candidate of one ticker. It is built once per scan
// and never mutated afterwards.
type ScanResult struct {
	Ticker                string    `json:"ticker"`
	Strategy              string    `json:"strategy"`
	Expiration            time.Time `json:"expiration"`
	DaysToExpiry          int       `json:"days_to_expiry"`
	Symbol                string    `json:"symbol"`
	Price                 float64   `json:"price"`
	Strike                float64   `json:"strike"`
	Premium               float64   `json:"premium"`
	Intrinsic             float64   `json:"intrinsic"`
	Extrinsic             float64   `json:"extrinsic"`
	JuicePerContract      float64   `json:"juice_per_contract"`
	ContractsNeeded       int       `json:"contracts_needed"`
	TotalJuice            float64   `json:"total_juice"`
	CollateralPerContract float64   `json:"collateral_per_contract"`
	TotalCollateral       float64   `json:"total_collateral"`
	CushionPercent        float64   `json:"cushion_pct"`
	ROIPercent            float64   `json:"roi_pct"`
	UpsidePercent         float64   `json:"upside_pct"`
	TotalReturnPercent    float64   `json:"total_return_pct"`
	ProbabilityOfProfit   float64   `json:"pop"`
	OpenInterest          int64     `json:"open_interest"`
	ImpliedVolatility     float64   `json:"implied_volatility"`
	Grade                 string    `json:"grade"`
	Earnings              *Earnings `json:"earnings,omitempty"`
}
