package token

import (
	"errors"
	"fmt"
	"math/big"

	"lendnet/core/events"
	nativecommon "lendnet/native/common"
)

var (
	// ErrNilState marks calls issued before the engine was wired to state.
	ErrNilState = errors.New("token engine: state not configured")
	// ErrPaused is returned by user-facing operations while the token is
	// paused.
	ErrPaused = errors.New("token engine: token is paused")
	// ErrUnauthorized marks owner-only calls from non-owner addresses.
	ErrUnauthorized = errors.New("token engine: caller is not the owner")
	// ErrInvalidAmount marks non-positive amounts.
	ErrInvalidAmount = errors.New("token engine: amount must be positive")
	// ErrInsufficientFunds marks debits that exceed the payer's balance.
	ErrInsufficientFunds = errors.New("token engine: insufficient funds")
	// ErrInsufficientAllowance marks TransferFrom calls beyond the approved
	// amount.
	ErrInsufficientAllowance = errors.New("token engine: insufficient allowance")
	// ErrInvalidFee marks fee configuration above 100%.
	ErrInvalidFee = errors.New("token engine: fee exceeds 10000 bps")
	// ErrAlreadyClaimed is returned when PublicMint finds a nonzero balance.
	ErrAlreadyClaimed = errors.New("token engine: public mint already claimed")
)

var basisPoints = big.NewInt(10_000)

const moduleName = "token"

// DefaultFaucetAmount is the fixed amount handed out by PublicMint.
var DefaultFaucetAmount = big.NewInt(10)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var (
	balancePrefix   = []byte("token/balance/")
	allowancePrefix = []byte("token/allowance/")
	supplyKey       = []byte("token/supply")
	feeBpsKey       = []byte("token/feeBps")
	pausedKey       = []byte("token/paused")
)

func balanceKey(owner [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", balancePrefix, owner))
}

func allowanceKey(owner, spender [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x/%x", allowancePrefix, owner, spender))
}

// Engine implements the fungible liquidity token ledger: balances,
// allowances, fee-on-transfer, mint/burn and the pause switch. The supply
// invariant totalSupply == sum(balances) holds after every operation because
// every balance mutation flows through credit/debit paired with a supply
// update only in mint/burn.
type Engine struct {
	state        engineState
	owner        [20]byte
	faucetAmount *big.Int
	emitter      events.Emitter
	pauses       nativecommon.PauseView
}

// NewEngine constructs a token engine owned by the provided address. A nil
// faucetAmount falls back to DefaultFaucetAmount.
func NewEngine(owner [20]byte, faucetAmount *big.Int) *Engine {
	amount := DefaultFaucetAmount
	if faucetAmount != nil && faucetAmount.Sign() > 0 {
		amount = new(big.Int).Set(faucetAmount)
	}
	return &Engine{
		owner:        owner,
		faucetAmount: amount,
		emitter:      events.NoopEmitter{},
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

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

// Owner returns the owner address configured at construction.
func (e *Engine) Owner() [20]byte { return e.owner }

// Transfer moves amount from caller to recipient. The configured fee is
// carved out of the transferred amount and credited to the owner: the caller
// is debited the full amount while the recipient receives amount minus fee.
func (e *Engine) Transfer(caller, to [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := e.requireUnpaused(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return e.performTransfer(caller, to, amount)
}

// TransferFrom moves amount from the approved owner account to the recipient.
// The allowance is reduced by the full amount before funds move.
func (e *Engine) TransferFrom(caller, from, to [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := e.requireUnpaused(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	allowance, err := e.Allowance(from, caller)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	remaining := new(big.Int).Sub(allowance, amount)
	if err := e.state.KVPut(allowanceKey(from, caller), remaining); err != nil {
		return err
	}
	return e.performTransfer(from, to, amount)
}

// performTransfer is the single mutation path shared by Transfer and
// TransferFrom. The fee is amount * feeBps / 10000, so fee <= amount holds by
// construction and the recipient credit can never go negative.
func (e *Engine) performTransfer(from, to [20]byte, amount *big.Int) error {
	feeBps, err := e.FeePercentage()
	if err != nil {
		return err
	}
	fee := new(big.Int)
	if feeBps > 0 {
		fee.Mul(amount, new(big.Int).SetUint64(feeBps))
		fee.Quo(fee, basisPoints)
	}
	net := new(big.Int).Sub(amount, fee)

	if err := e.debit(from, amount); err != nil {
		return err
	}
	if err := e.credit(to, net); err != nil {
		return err
	}
	if fee.Sign() > 0 {
		if err := e.credit(e.owner, fee); err != nil {
			return err
		}
	}
	e.emit(Transferred{From: from, To: to, Amount: net, Fee: fee})
	return nil
}

// Approve overwrites the allowance granted to spender. There are no
// increase/decrease primitives; the stored value is replaced unconditionally.
func (e *Engine) Approve(caller, spender [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := e.requireUnpaused(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if err := e.state.KVPut(allowanceKey(caller, spender), amount); err != nil {
		return err
	}
	e.emit(Approved{Owner: caller, Spender: spender, Amount: amount})
	return nil
}

// Allowance returns the amount spender may move from owner's balance.
func (e *Engine) Allowance(owner, spender [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	allowance := new(big.Int)
	ok, err := e.state.KVGet(allowanceKey(owner, spender), allowance)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return allowance, nil
}

// Mint creates amount units on the recipient's balance. Owner-only. A zero
// amount is a no-op.
func (e *Engine) Mint(caller, to [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if caller != e.owner {
		return ErrUnauthorized
	}
	return e.mint(to, amount)
}

func (e *Engine) mint(to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	if err := e.credit(to, amount); err != nil {
		return err
	}
	supply, err := e.TotalSupply()
	if err != nil {
		return err
	}
	if err := e.state.KVPut(supplyKey, new(big.Int).Add(supply, amount)); err != nil {
		return err
	}
	e.emit(Minted{To: to, Amount: amount})
	return nil
}

// Burn destroys amount units from the target balance. Owner-only.
func (e *Engine) Burn(caller, from [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if caller != e.owner {
		return ErrUnauthorized
	}
	return e.burn(from, amount)
}

// BurnOwn destroys amount units from the caller's own balance.
func (e *Engine) BurnOwn(caller [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	return e.burn(caller, amount)
}

func (e *Engine) burn(from [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if err := e.debit(from, amount); err != nil {
		return err
	}
	supply, err := e.TotalSupply()
	if err != nil {
		return err
	}
	if err := e.state.KVPut(supplyKey, new(big.Int).Sub(supply, amount)); err != nil {
		return err
	}
	e.emit(Burned{From: from, Amount: amount})
	return nil
}

// PublicMint hands the fixed faucet amount to the caller. The claim gate is
// the caller's current balance being zero, not a persistent flag: an address
// that spends or burns its balance back to zero becomes eligible again.
func (e *Engine) PublicMint(caller [20]byte) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := e.requireUnpaused(); err != nil {
		return err
	}
	balance, err := e.BalanceOf(caller)
	if err != nil {
		return err
	}
	if balance.Sign() != 0 {
		return ErrAlreadyClaimed
	}
	return e.mint(caller, e.faucetAmount)
}

// Pause halts transfers, approvals and public minting. Owner-only.
func (e *Engine) Pause(caller [20]byte) error {
	return e.setPaused(caller, true)
}

// Unpause re-enables the gated operations. Owner-only.
func (e *Engine) Unpause(caller [20]byte) error {
	return e.setPaused(caller, false)
}

func (e *Engine) setPaused(caller [20]byte, paused bool) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if caller != e.owner {
		return ErrUnauthorized
	}
	return e.state.KVPut(pausedKey, paused)
}

// Paused reports whether the token is currently paused.
func (e *Engine) Paused() (bool, error) {
	if e == nil || e.state == nil {
		return false, ErrNilState
	}
	var paused bool
	ok, err := e.state.KVGet(pausedKey, &paused)
	if err != nil {
		return false, err
	}
	return ok && paused, nil
}

// SetFeePercentage configures the transfer fee in basis points. Owner-only.
func (e *Engine) SetFeePercentage(caller [20]byte, bps uint64) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if caller != e.owner {
		return ErrUnauthorized
	}
	if bps > 10_000 {
		return ErrInvalidFee
	}
	return e.state.KVPut(feeBpsKey, bps)
}

// FeePercentage returns the configured transfer fee in basis points.
func (e *Engine) FeePercentage() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, ErrNilState
	}
	var bps uint64
	ok, err := e.state.KVGet(feeBpsKey, &bps)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return bps, nil
}

// BalanceOf returns the balance held by owner.
func (e *Engine) BalanceOf(owner [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	balance := new(big.Int)
	ok, err := e.state.KVGet(balanceKey(owner), balance)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return balance, nil
}

// TotalSupply returns the current total supply.
func (e *Engine) TotalSupply() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	supply := new(big.Int)
	ok, err := e.state.KVGet(supplyKey, supply)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return supply, nil
}

// MoveFunds transfers between two accounts without fees or the pause gate.
// It backs the host environment's transfer_value primitive used for loan
// disbursement and repayment settlement; it is not exposed as a ledger entry
// point.
func (e *Engine) MoveFunds(from, to [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if err := e.debit(from, amount); err != nil {
		return err
	}
	return e.credit(to, amount)
}

// credit and debit are sequential read-modify-write steps, so aliased
// accounts (from == to, recipient == owner) stay consistent.
func (e *Engine) credit(account [20]byte, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	balance, err := e.BalanceOf(account)
	if err != nil {
		return err
	}
	return e.state.KVPut(balanceKey(account), new(big.Int).Add(balance, amount))
}

func (e *Engine) debit(account [20]byte, amount *big.Int) error {
	balance, err := e.BalanceOf(account)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	return e.state.KVPut(balanceKey(account), new(big.Int).Sub(balance, amount))
}

func (e *Engine) requireUnpaused() error {
	paused, err := e.Paused()
	if err != nil {
		return err
	}
	if paused {
		return ErrPaused
	}
	return nil
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(evt)
}
