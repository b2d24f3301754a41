package loans

import "math/big"

// Params groups the governance controlled knobs of the loan controller.
type Params struct {
	// MinRequiredScore is the eligibility threshold checked against the
	// reputation oracle on every loan request.
	MinRequiredScore uint64
	// BaseLoanAmount is the base used when asking the oracle for a
	// borrower's maximum loan amount.
	BaseLoanAmount *big.Int
	// BaseInterestRateBps is the starting interest rate before the score
	// discount is applied, expressed in basis points.
	BaseInterestRateBps uint64
}

// Clone returns a deep copy of the parameter set.
func (p Params) Clone() Params {
	clone := p
	if p.BaseLoanAmount != nil {
		clone.BaseLoanAmount = new(big.Int).Set(p.BaseLoanAmount)
	} else {
		clone.BaseLoanAmount = big.NewInt(0)
	}
	return clone
}

// DefaultParams provides a conservative starting configuration.
func DefaultParams() Params {
	return Params{
		MinRequiredScore:    300,
		BaseLoanAmount:      big.NewInt(1000),
		BaseInterestRateBps: 800,
	}
}
