package loans

import (
	"fmt"
	"math/big"
)

// Status is the lifecycle state of a loan. Repaid and Defaulted are terminal:
// no transition leaves them.
type Status uint8

const (
	StatusActive Status = iota
	StatusRepaid
	StatusDefaulted
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusRepaid, StatusDefaulted:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status admits no further transition.
func (s Status) Terminal() bool {
	return s == StatusRepaid || s == StatusDefaulted
}

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusRepaid:
		return "repaid"
	case StatusDefaulted:
		return "defaulted"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Loan is the persisted record of one authorized loan. Ids are assigned from
// a global counter starting at zero. Once the status turns terminal the
// record is never mutated again.
type Loan struct {
	ID              uint64
	Borrower        [20]byte
	Principal       *big.Int
	Token           string
	InterestRateBps uint64
	CreatedAt       uint64
	DueAt           uint64
	Status          Status
	RepaymentAmount *big.Int
}

// Clone returns a deep copy so callers can mutate safely.
func (l *Loan) Clone() *Loan {
	if l == nil {
		return nil
	}
	clone := *l
	if l.Principal != nil {
		clone.Principal = new(big.Int).Set(l.Principal)
	} else {
		clone.Principal = big.NewInt(0)
	}
	if l.RepaymentAmount != nil {
		clone.RepaymentAmount = new(big.Int).Set(l.RepaymentAmount)
	} else {
		clone.RepaymentAmount = big.NewInt(0)
	}
	return &clone
}
