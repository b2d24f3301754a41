package pool

import (
	"encoding/hex"
	"math/big"

	"lendnet/core/types"
)

const (
	EventTypeFundsProvided     = "pool.fundsProvided"
	EventTypeFundsWithdrawn    = "pool.fundsWithdrawn"
	EventTypeLoanFunded        = "pool.loanFunded"
	EventTypeRepaymentReceived = "pool.repaymentReceived"
)

type FundsProvided struct {
	Provider [20]byte
	Token    string
	Amount   *big.Int
}

func (FundsProvided) EventType() string { return EventTypeFundsProvided }

func (e FundsProvided) Event() *types.Event {
	return &types.Event{
		Type: EventTypeFundsProvided,
		Attributes: map[string]string{
			"provider": hex.EncodeToString(e.Provider[:]),
			"token":    e.Token,
			"amount":   formatAmount(e.Amount),
		},
	}
}

type FundsWithdrawn struct {
	Provider [20]byte
	Token    string
	Amount   *big.Int
}

func (FundsWithdrawn) EventType() string { return EventTypeFundsWithdrawn }

func (e FundsWithdrawn) Event() *types.Event {
	return &types.Event{
		Type: EventTypeFundsWithdrawn,
		Attributes: map[string]string{
			"provider": hex.EncodeToString(e.Provider[:]),
			"token":    e.Token,
			"amount":   formatAmount(e.Amount),
		},
	}
}

type LoanFunded struct {
	Token  string
	Amount *big.Int
}

func (LoanFunded) EventType() string { return EventTypeLoanFunded }

func (e LoanFunded) Event() *types.Event {
	return &types.Event{
		Type: EventTypeLoanFunded,
		Attributes: map[string]string{
			"token":  e.Token,
			"amount": formatAmount(e.Amount),
		},
	}
}

type RepaymentReceived struct {
	Token  string
	Amount *big.Int
}

func (RepaymentReceived) EventType() string { return EventTypeRepaymentReceived }

func (e RepaymentReceived) Event() *types.Event {
	return &types.Event{
		Type: EventTypeRepaymentReceived,
		Attributes: map[string]string{
			"token":  e.Token,
			"amount": formatAmount(e.Amount),
		},
	}
}

func formatAmount(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}
