package token

import (
	"encoding/hex"
	"math/big"

	"lendnet/core/types"
)

const (
	EventTypeTransfer = "token.transfer"
	EventTypeApprove  = "token.approve"
	EventTypeMint     = "token.mint"
	EventTypeBurn     = "token.burn"
)

// Transferred carries the net amount credited to the recipient plus the fee
// routed to the owner.
type Transferred struct {
	From   [20]byte
	To     [20]byte
	Amount *big.Int
	Fee    *big.Int
}

func (Transferred) EventType() string { return EventTypeTransfer }

func (e Transferred) Event() *types.Event {
	return &types.Event{
		Type: EventTypeTransfer,
		Attributes: map[string]string{
			"from":   hex.EncodeToString(e.From[:]),
			"to":     hex.EncodeToString(e.To[:]),
			"amount": formatAmount(e.Amount),
			"fee":    formatAmount(e.Fee),
		},
	}
}

type Approved struct {
	Owner   [20]byte
	Spender [20]byte
	Amount  *big.Int
}

func (Approved) EventType() string { return EventTypeApprove }

func (e Approved) Event() *types.Event {
	return &types.Event{
		Type: EventTypeApprove,
		Attributes: map[string]string{
			"owner":   hex.EncodeToString(e.Owner[:]),
			"spender": hex.EncodeToString(e.Spender[:]),
			"amount":  formatAmount(e.Amount),
		},
	}
}

type Minted struct {
	To     [20]byte
	Amount *big.Int
}

func (Minted) EventType() string { return EventTypeMint }

func (e Minted) Event() *types.Event {
	return &types.Event{
		Type: EventTypeMint,
		Attributes: map[string]string{
			"to":     hex.EncodeToString(e.To[:]),
			"amount": formatAmount(e.Amount),
		},
	}
}

type Burned struct {
	From   [20]byte
	Amount *big.Int
}

func (Burned) EventType() string { return EventTypeBurn }

func (e Burned) Event() *types.Event {
	return &types.Event{
		Type: EventTypeBurn,
		Attributes: map[string]string{
			"from":   hex.EncodeToString(e.From[:]),
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
