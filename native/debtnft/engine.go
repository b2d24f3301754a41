package debtnft

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"lendnet/core/events"
)

var (
	// ErrNilState marks calls issued before the engine was wired to state.
	ErrNilState = errors.New("debtnft engine: state not configured")
	// ErrPositionExists marks a mint for a loan id that already has a
	// position token.
	ErrPositionExists = errors.New("debtnft engine: position already exists")
	// ErrPositionNotFound marks lookups and burns of unknown positions.
	ErrPositionNotFound = errors.New("debtnft engine: position not found")
	// ErrNotHolder marks transfers or burns from anyone but the current
	// holder.
	ErrNotHolder = errors.New("debtnft engine: caller does not hold the position")
	// ErrInvalidAmount marks mints with a non-positive principal.
	ErrInvalidAmount = errors.New("debtnft engine: principal must be positive")
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

var (
	positionPrefix = []byte("debtnft/position/")
	holderPrefix   = []byte("debtnft/holder/")
)

func positionKey(loanID uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", positionPrefix, loanID))
}

func holderKey(loanID uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", holderPrefix, loanID))
}

// Position is the metadata snapshot carried by one debt position token. The
// token's identity is the loan id; the snapshot is taken at mint time and
// never updated, the live lifecycle lives in the loan record.
type Position struct {
	LoanID          uint64
	Borrower        [20]byte
	Principal       *big.Int
	Token           string
	InterestRateBps uint64
	DueTimestamp    uint64
	MintedAt        uint64
}

// Clone returns a deep copy so callers can mutate safely.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := *p
	if p.Principal != nil {
		clone.Principal = new(big.Int).Set(p.Principal)
	} else {
		clone.Principal = big.NewInt(0)
	}
	return &clone
}

// Engine is the non-fungible ledger of loan positions. Exactly one position
// exists per loan id; it is minted when the loan is created and destroyed
// when the loan settles.
type Engine struct {
	state   engineState
	emitter events.Emitter
	nowFn   func() uint64
}

// NewEngine constructs a debt position engine.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the clock. Primarily intended for tests.
func (e *Engine) SetNowFunc(now func() uint64) {
	if e == nil {
		return
	}
	if now == nil {
		e.nowFn = func() uint64 { return uint64(time.Now().Unix()) }
		return
	}
	e.nowFn = now
}

// CreatePosition mints the position token for a loan. The loan id must not
// already carry a position; the borrower becomes the initial holder.
func (e *Engine) CreatePosition(loanID uint64, borrower [20]byte, principal *big.Int, token string, rateBps uint64, dueTimestamp uint64) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if principal == nil || principal.Sign() <= 0 {
		return ErrInvalidAmount
	}
	exists, err := e.state.KVGet(positionKey(loanID), nil)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: loan %d", ErrPositionExists, loanID)
	}
	position := &Position{
		LoanID:          loanID,
		Borrower:        borrower,
		Principal:       new(big.Int).Set(principal),
		Token:           token,
		InterestRateBps: rateBps,
		DueTimestamp:    dueTimestamp,
		MintedAt:        e.nowFn(),
	}
	if err := e.state.KVPut(positionKey(loanID), position); err != nil {
		return err
	}
	if err := e.state.KVPut(holderKey(loanID), borrower); err != nil {
		return err
	}
	e.emit(Minted{Position: position, Holder: borrower})
	return nil
}

// TransferPosition moves the position token to a new holder. Only the current
// holder may transfer.
func (e *Engine) TransferPosition(caller, to [20]byte, loanID uint64) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	holder, err := e.HolderOf(loanID)
	if err != nil {
		return err
	}
	if holder != caller {
		return ErrNotHolder
	}
	if err := e.state.KVPut(holderKey(loanID), to); err != nil {
		return err
	}
	e.emit(Transferred{LoanID: loanID, From: caller, To: to})
	return nil
}

// BurnPosition destroys the position token. Whoever holds the position may
// burn it.
func (e *Engine) BurnPosition(caller [20]byte, loanID uint64) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	holder, err := e.HolderOf(loanID)
	if err != nil {
		return err
	}
	if holder != caller {
		return ErrNotHolder
	}
	return e.destroy(loanID, holder)
}

// SettlePosition destroys the position token on behalf of the loan
// controller when a loan reaches a terminal status. It bypasses the holder
// check: settlement is a module capability, not a holder right.
func (e *Engine) SettlePosition(loanID uint64) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	holder, err := e.HolderOf(loanID)
	if err != nil {
		return err
	}
	return e.destroy(loanID, holder)
}

func (e *Engine) destroy(loanID uint64, holder [20]byte) error {
	if err := e.state.KVDelete(positionKey(loanID)); err != nil {
		return err
	}
	if err := e.state.KVDelete(holderKey(loanID)); err != nil {
		return err
	}
	e.emit(Burned{LoanID: loanID, Holder: holder})
	return nil
}

// Position returns the metadata snapshot for a loan id.
func (e *Engine) Position(loanID uint64) (*Position, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	var position Position
	ok, err := e.state.KVGet(positionKey(loanID), &position)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: loan %d", ErrPositionNotFound, loanID)
	}
	if position.Principal == nil {
		position.Principal = big.NewInt(0)
	}
	return &position, nil
}

// HolderOf returns the current holder of the position token.
func (e *Engine) HolderOf(loanID uint64) ([20]byte, error) {
	if e == nil || e.state == nil {
		return [20]byte{}, ErrNilState
	}
	var holder [20]byte
	ok, err := e.state.KVGet(holderKey(loanID), &holder)
	if err != nil {
		return [20]byte{}, err
	}
	if !ok {
		return [20]byte{}, fmt.Errorf("%w: loan %d", ErrPositionNotFound, loanID)
	}
	return holder, nil
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(evt)
}
