package debtnft

import (
	"encoding/hex"
	"strconv"

	"lendnet/core/types"
)

const (
	EventTypeMinted      = "debtnft.minted"
	EventTypeTransferred = "debtnft.transferred"
	EventTypeBurned      = "debtnft.burned"
)

type Minted struct {
	Position *Position
	Holder   [20]byte
}

func (Minted) EventType() string { return EventTypeMinted }

func (e Minted) Event() *types.Event {
	attrs := make(map[string]string)
	if e.Position != nil {
		attrs["loanId"] = strconv.FormatUint(e.Position.LoanID, 10)
		attrs["borrower"] = hex.EncodeToString(e.Position.Borrower[:])
		attrs["principal"] = e.Position.Principal.String()
		attrs["token"] = e.Position.Token
		attrs["interestRateBps"] = strconv.FormatUint(e.Position.InterestRateBps, 10)
		attrs["dueTimestamp"] = strconv.FormatUint(e.Position.DueTimestamp, 10)
	}
	attrs["holder"] = hex.EncodeToString(e.Holder[:])
	return &types.Event{Type: EventTypeMinted, Attributes: attrs}
}

type Transferred struct {
	LoanID uint64
	From   [20]byte
	To     [20]byte
}

func (Transferred) EventType() string { return EventTypeTransferred }

func (e Transferred) Event() *types.Event {
	return &types.Event{
		Type: EventTypeTransferred,
		Attributes: map[string]string{
			"loanId": strconv.FormatUint(e.LoanID, 10),
			"from":   hex.EncodeToString(e.From[:]),
			"to":     hex.EncodeToString(e.To[:]),
		},
	}
}

type Burned struct {
	LoanID uint64
	Holder [20]byte
}

func (Burned) EventType() string { return EventTypeBurned }

func (e Burned) Event() *types.Event {
	return &types.Event{
		Type: EventTypeBurned,
		Attributes: map[string]string{
			"loanId": strconv.FormatUint(e.LoanID, 10),
			"holder": hex.EncodeToString(e.Holder[:]),
		},
	}
}
