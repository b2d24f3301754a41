package loans

import (
	"fmt"

	"lendnet/core/types"
)

const (
	// TypeRequested is emitted when a loan is created and disbursed.
	TypeRequested = "loans.requested"
	// TypeRepaid is emitted when a loan is fully repaid.
	TypeRepaid = "loans.repaid"
	// TypeDefaulted is emitted when an overdue loan is settled as defaulted.
	TypeDefaulted = "loans.defaulted"
)

// Requested captures a newly created loan.
type Requested struct {
	Loan *Loan
}

// EventType returns the canonical event identifier.
func (Requested) EventType() string { return TypeRequested }

// Event converts the payload into a ledger event.
func (r Requested) Event() *types.Event {
	return &types.Event{
		Type:       TypeRequested,
		Attributes: loanAttributes(r.Loan),
	}
}

// Repaid captures a completed repayment.
type Repaid struct {
	Loan   *Loan
	OnTime bool
}

// EventType returns the canonical event identifier.
func (Repaid) EventType() string { return TypeRepaid }

// Event converts the payload into a ledger event.
func (r Repaid) Event() *types.Event {
	attrs := loanAttributes(r.Loan)
	attrs["onTime"] = fmt.Sprintf("%t", r.OnTime)
	return &types.Event{Type: TypeRepaid, Attributes: attrs}
}

// Defaulted captures an overdue loan settled as defaulted.
type Defaulted struct {
	Loan *Loan
}

// EventType returns the canonical event identifier.
func (Defaulted) EventType() string { return TypeDefaulted }

// Event converts the payload into a ledger event.
func (d Defaulted) Event() *types.Event {
	return &types.Event{Type: TypeDefaulted, Attributes: loanAttributes(d.Loan)}
}

func loanAttributes(loan *Loan) map[string]string {
	if loan == nil {
		return map[string]string{}
	}
	attrs := map[string]string{
		"loanId":   fmt.Sprintf("%d", loan.ID),
		"borrower": fmt.Sprintf("%x", loan.Borrower),
		"token":    loan.Token,
		"rateBps":  fmt.Sprintf("%d", loan.InterestRateBps),
		"dueAt":    fmt.Sprintf("%d", loan.DueAt),
		"status":   loan.Status.String(),
	}
	if loan.Principal != nil {
		attrs["principal"] = loan.Principal.String()
	}
	if loan.RepaymentAmount != nil {
		attrs["repayment"] = loan.RepaymentAmount.String()
	}
	return attrs
}
