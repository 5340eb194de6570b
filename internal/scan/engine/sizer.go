package engine

import (
	"fmt"
	"math"
)

// Sizing is the capital-constrained position for one evaluation.
type Sizing struct {
	CollateralPerContract float64
	ContractsNeeded       int
	TotalJuice            float64
	TotalCollateral       float64
	ROIPercent            float64
}

// contractsEpsilon absorbs float noise in goal/juice so an exact multiple
// does not round up to an extra contract.
const contractsEpsilon = 1e-9

// Size computes how many contracts reach the income goal and the collateral
// they tie up. Covered calls are collateralised by the shares (price*100),
// cash-secured puts by the assignment cash (strike*100).
//
// The position is never down-sized: when the total collateral exceeds the
// account capital the candidate is rejected with ErrCapitalExceeded.
func Size(ev Evaluation, acct Account) (Sizing, error) {
	if !(ev.JuicePerContract > 0) {
		return Sizing{}, fmt.Errorf("%w: juice per contract %.2f", ErrNoTimeValue, ev.JuicePerContract)
	}

	perContract := ev.Price * ContractMultiplier
	if ev.Config.IsPut() {
		perContract = ev.Contract.Strike * ContractMultiplier
	}

	// needed stays a float until capital bounds it; a huge goal/juice ratio
	// would overflow int.
	needed := math.Max(1, math.Ceil(acct.IncomeGoal/ev.JuicePerContract-contractsEpsilon))
	total := perContract * needed
	if !(total <= acct.Capital) {
		return Sizing{}, fmt.Errorf("%w: need $%.0f, have $%.0f", ErrCapitalExceeded, total, acct.Capital)
	}
	contracts := int(needed)

	s := Sizing{
		CollateralPerContract: perContract,
		ContractsNeeded:       contracts,
		TotalJuice:            ev.JuicePerContract * needed,
		TotalCollateral:       total,
		ROIPercent:            ev.JuicePerContract / perContract * 100,
	}
	return s, nil
}
