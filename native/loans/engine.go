package loans

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"lendnet/core/events"
	nativecommon "lendnet/native/common"
)

var (
	// ErrNilState marks calls issued before the engine was wired to state.
	ErrNilState = errors.New("loan engine: state not configured")
	// ErrCollaborators marks calls issued before the collaborator modules
	// were wired.
	ErrCollaborators = errors.New("loan engine: collaborators not configured")
	// ErrScoreTooLow is returned when the borrower fails the oracle
	// eligibility gate.
	ErrScoreTooLow = errors.New("loan engine: reputation score too low")
	// ErrAmountExceedsLimit is returned when the requested principal is
	// above the oracle-derived maximum.
	ErrAmountExceedsLimit = errors.New("loan engine: amount exceeds allowed maximum")
	// ErrInvalidAmount marks non-positive principals.
	ErrInvalidAmount = errors.New("loan engine: amount must be positive")
	// ErrInvalidDuration marks zero-day loan terms.
	ErrInvalidDuration = errors.New("loan engine: duration must be positive")
	// ErrLoanNotFound marks lookups of unknown loan ids.
	ErrLoanNotFound = errors.New("loan engine: loan not found")
	// ErrUnauthorized marks repayments from anyone but the borrower.
	ErrUnauthorized = errors.New("loan engine: caller is not the borrower")
	// ErrLoanAlreadyRepaid marks transitions attempted on a terminal loan.
	ErrLoanAlreadyRepaid = errors.New("loan engine: loan is not active")
	// ErrInvalidRepaymentAmount marks repayments that do not match the owed
	// amount exactly; partial and overpayment are unsupported.
	ErrInvalidRepaymentAmount = errors.New("loan engine: repayment must match owed amount exactly")
	// ErrLoanNotOverdue marks settlement attempts on loans still within
	// their term.
	ErrLoanNotOverdue = errors.New("loan engine: loan is not overdue")
)

var basisPoints = big.NewInt(10_000)

const (
	moduleName    = "loans"
	secondsPerDay = 86_400
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppendUint64(key []byte, value uint64) error
	KVGetUint64List(key []byte) ([]uint64, error)
}

var (
	loanPrefix   = []byte("loans/loan/")
	indexPrefix  = []byte("loans/index/")
	onTimePrefix = []byte("loans/ontime/")
	counterKey   = []byte("loans/counter")
)

func loanKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", loanPrefix, id))
}

func indexKey(borrower [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", indexPrefix, borrower))
}

func onTimeKey(borrower [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", onTimePrefix, borrower))
}

// ScoreSource is the reputation oracle capability consumed by the controller.
type ScoreSource interface {
	UserScore(subject [20]byte) (uint64, error)
	EligibleForLoan(subject [20]byte, required uint64) (bool, error)
	MaxLoanAmount(subject [20]byte, base *big.Int) (*big.Int, error)
}

// LiquiditySource is the pool capability consumed by the controller.
type LiquiditySource interface {
	FundLoan(token string, amount *big.Int) error
	ReceiveLoanRepayment(token string, amount *big.Int) error
}

// PositionRegistry is the debt position token capability consumed by the
// controller.
type PositionRegistry interface {
	CreatePosition(loanID uint64, borrower [20]byte, principal *big.Int, token string, rateBps uint64, dueTimestamp uint64) error
	SettlePosition(loanID uint64) error
}

// FundsMover abstracts the host environment's value transfer primitive:
// disburse moves loan principal to the borrower, collect pulls the repayment
// back.
type FundsMover interface {
	Disburse(to [20]byte, token string, amount *big.Int) error
	Collect(from [20]byte, token string, amount *big.Int) error
}

// RepaymentRecorder is notified after a successful repayment so an external
// process (e.g. the score oracle operator) can react. The controller itself
// never writes scores.
type RepaymentRecorder interface {
	LoanRepaid(borrower [20]byte, loanID uint64, onTime bool)
}

// Engine orchestrates the loan lifecycle: request, scoring, terms,
// disbursement, repayment and overdue settlement. All cross-module effects go
// through the collaborator interfaces; the enclosing call's transaction makes
// the sequence atomic.
type Engine struct {
	state     engineState
	oracle    ScoreSource
	liquidity LiquiditySource
	positions PositionRegistry
	funds     FundsMover
	recorder  RepaymentRecorder
	params    Params
	emitter   events.Emitter
	pauses    nativecommon.PauseView
	nowFn     func() uint64
}

// NewEngine constructs a loan controller with the provided parameters.
func NewEngine(params Params) *Engine {
	return &Engine{
		params:  params.Clone(),
		emitter: events.NoopEmitter{},
		nowFn:   func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetCollaborators wires the oracle, pool, position registry and funds mover
// the controller depends on.
func (e *Engine) SetCollaborators(oracle ScoreSource, liquidity LiquiditySource, positions PositionRegistry, funds FundsMover) {
	if e == nil {
		return
	}
	e.oracle = oracle
	e.liquidity = liquidity
	e.positions = positions
	e.funds = funds
}

// SetRepaymentRecorder wires the optional repayment notification hook.
func (e *Engine) SetRepaymentRecorder(recorder RepaymentRecorder) {
	if e == nil {
		return
	}
	e.recorder = recorder
}

// SetPauses wires the module pause registry.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

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

// Params returns a copy of the configured parameters.
func (e *Engine) Params() Params {
	return e.params.Clone()
}

// RequestLoan runs the request pipeline: eligibility gate, oracle-derived
// amount cap, risk-priced terms, id allocation, persistence, liquidity
// reservation, disbursement and position mint. It returns the new loan id.
func (e *Engine) RequestLoan(caller [20]byte, amount *big.Int, token string, durationDays uint64) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, ErrNilState
	}
	if e.oracle == nil || e.liquidity == nil || e.positions == nil || e.funds == nil {
		return 0, ErrCollaborators
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return 0, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return 0, ErrInvalidAmount
	}
	if durationDays == 0 {
		return 0, ErrInvalidDuration
	}

	eligible, err := e.oracle.EligibleForLoan(caller, e.params.MinRequiredScore)
	if err != nil {
		return 0, err
	}
	if !eligible {
		return 0, ErrScoreTooLow
	}

	maxAmount, err := e.oracle.MaxLoanAmount(caller, e.params.BaseLoanAmount)
	if err != nil {
		return 0, err
	}
	if amount.Cmp(maxAmount) > 0 {
		return 0, fmt.Errorf("%w: requested %s, maximum %s", ErrAmountExceedsLimit, amount, maxAmount)
	}

	score, err := e.oracle.UserScore(caller)
	if err != nil {
		return 0, err
	}
	rateBps := InterestRate(score, e.params.BaseInterestRateBps)

	interest := new(big.Int).Mul(amount, new(big.Int).SetUint64(rateBps))
	interest.Quo(interest, basisPoints)
	repayment := new(big.Int).Add(amount, interest)

	loanID, err := e.nextLoanID()
	if err != nil {
		return 0, err
	}

	now := e.nowFn()
	loan := &Loan{
		ID:              loanID,
		Borrower:        caller,
		Principal:       new(big.Int).Set(amount),
		Token:           token,
		InterestRateBps: rateBps,
		CreatedAt:       now,
		DueAt:           now + durationDays*secondsPerDay,
		Status:          StatusActive,
		RepaymentAmount: repayment,
	}
	if err := e.state.KVPut(loanKey(loanID), loan); err != nil {
		return 0, err
	}
	if err := e.state.KVAppendUint64(indexKey(caller), loanID); err != nil {
		return 0, err
	}

	if err := e.liquidity.FundLoan(token, amount); err != nil {
		return 0, err
	}
	if err := e.funds.Disburse(caller, token, amount); err != nil {
		return 0, err
	}
	if err := e.positions.CreatePosition(loanID, caller, amount, token, rateBps, loan.DueAt); err != nil {
		return 0, err
	}

	e.emit(Requested{Loan: loan})
	return loanID, nil
}

// RepayLoan settles an active loan. The paid amount must match the owed
// repayment amount exactly; partial and overpayment are rejected. On-time
// repayments bump the borrower's counter and notify the recorder.
func (e *Engine) RepayLoan(caller [20]byte, loanID uint64, amount *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if e.liquidity == nil || e.positions == nil || e.funds == nil {
		return ErrCollaborators
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}

	loan, err := e.loadLoan(loanID)
	if err != nil {
		return err
	}
	if loan.Borrower != caller {
		return ErrUnauthorized
	}
	if loan.Status != StatusActive {
		return fmt.Errorf("%w: status %s", ErrLoanAlreadyRepaid, loan.Status)
	}
	if amount == nil || amount.Cmp(loan.RepaymentAmount) != 0 {
		return fmt.Errorf("%w: owed %s", ErrInvalidRepaymentAmount, loan.RepaymentAmount)
	}

	if err := e.funds.Collect(caller, loan.Token, amount); err != nil {
		return err
	}
	if err := e.liquidity.ReceiveLoanRepayment(loan.Token, amount); err != nil {
		return err
	}
	if err := e.positions.SettlePosition(loanID); err != nil {
		return err
	}

	loan.Status = StatusRepaid
	if err := e.state.KVPut(loanKey(loanID), loan); err != nil {
		return err
	}

	now := e.nowFn()
	onTime := now <= loan.DueAt
	if onTime {
		count, err := e.OnTimePayments(caller)
		if err != nil {
			return err
		}
		if err := e.state.KVPut(onTimeKey(caller), count+1); err != nil {
			return err
		}
	}
	if e.recorder != nil {
		e.recorder.LoanRepaid(caller, loanID, onTime)
	}

	e.emit(Repaid{Loan: loan, OnTime: onTime})
	return nil
}

// IsLoanOverdue reports whether an active loan has passed its due timestamp.
// It is a pure query: observing an overdue loan does not transition it.
func (e *Engine) IsLoanOverdue(loanID uint64) (bool, error) {
	if e == nil || e.state == nil {
		return false, ErrNilState
	}
	loan, err := e.loadLoan(loanID)
	if err != nil {
		return false, err
	}
	return loan.Status == StatusActive && e.nowFn() > loan.DueAt, nil
}

// SettleOverdueLoan transitions an overdue active loan to Defaulted and
// destroys its debt position. Anyone may trigger settlement; the guard is the
// loan's own state, not the caller.
func (e *Engine) SettleOverdueLoan(loanID uint64) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if e.positions == nil {
		return ErrCollaborators
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}

	loan, err := e.loadLoan(loanID)
	if err != nil {
		return err
	}
	if loan.Status != StatusActive {
		return fmt.Errorf("%w: status %s", ErrLoanAlreadyRepaid, loan.Status)
	}
	if e.nowFn() <= loan.DueAt {
		return ErrLoanNotOverdue
	}

	if err := e.positions.SettlePosition(loanID); err != nil {
		return err
	}
	loan.Status = StatusDefaulted
	if err := e.state.KVPut(loanKey(loanID), loan); err != nil {
		return err
	}
	e.emit(Defaulted{Loan: loan})
	return nil
}

// Loan returns a copy of the stored loan record.
func (e *Engine) Loan(loanID uint64) (*Loan, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	loan, err := e.loadLoan(loanID)
	if err != nil {
		return nil, err
	}
	return loan.Clone(), nil
}

// BorrowerLoans returns the loan ids ever requested by the borrower, in
// request order.
func (e *Engine) BorrowerLoans(borrower [20]byte) ([]uint64, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	return e.state.KVGetUint64List(indexKey(borrower))
}

// OnTimePayments returns the borrower's on-time repayment counter.
func (e *Engine) OnTimePayments(borrower [20]byte) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, ErrNilState
	}
	var count uint64
	ok, err := e.state.KVGet(onTimeKey(borrower), &count)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return count, nil
}

func (e *Engine) loadLoan(loanID uint64) (*Loan, error) {
	var loan Loan
	ok, err := e.state.KVGet(loanKey(loanID), &loan)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrLoanNotFound, loanID)
	}
	if loan.Principal == nil {
		loan.Principal = big.NewInt(0)
	}
	if loan.RepaymentAmount == nil {
		loan.RepaymentAmount = big.NewInt(0)
	}
	return &loan, nil
}

// nextLoanID reads the global counter, persists its successor and returns the
// current value. The first allocated id is zero.
func (e *Engine) nextLoanID() (uint64, error) {
	var counter uint64
	if _, err := e.state.KVGet(counterKey, &counter); err != nil {
		return 0, err
	}
	if err := e.state.KVPut(counterKey, counter+1); err != nil {
		return 0, err
	}
	return counter, nil
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(evt)
}
