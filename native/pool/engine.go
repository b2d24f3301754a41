package pool

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"lendnet/core/events"
	nativecommon "lendnet/native/common"
)

var (
	// ErrNilState marks calls issued before the engine was wired to state.
	ErrNilState = errors.New("pool engine: state not configured")
	// ErrInvalidAmount marks non-positive amounts.
	ErrInvalidAmount = errors.New("pool engine: amount must be positive")
	// ErrInvalidToken marks unsupported token identifiers.
	ErrInvalidToken = errors.New("pool engine: unsupported token")
	// ErrInsufficientLiquidity marks withdrawals or fundings beyond the
	// pooled amount.
	ErrInsufficientLiquidity = errors.New("pool engine: insufficient liquidity")
)

const moduleName = "pool"

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var (
	totalPrefix    = []byte("pool/total/")
	providerPrefix = []byte("pool/provider/")
)

func totalKey(token string) []byte {
	return []byte(fmt.Sprintf("%s%s", totalPrefix, token))
}

func providerKey(provider [20]byte, token string) []byte {
	return []byte(fmt.Sprintf("%s%x/%s", providerPrefix, provider, token))
}

// ProviderFunds is the stored bookkeeping for one provider and token.
type ProviderFunds struct {
	Amount             *big.Int
	LastYieldTimestamp uint64
}

// Clone returns a deep copy so callers can mutate safely.
func (p *ProviderFunds) Clone() *ProviderFunds {
	if p == nil {
		return nil
	}
	clone := *p
	if p.Amount != nil {
		clone.Amount = new(big.Int).Set(p.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}

// YieldModel computes the yield accrued on a provider position since the last
// accrual. The protocol treats yield as a collaborator concern; the default
// model accrues nothing.
type YieldModel interface {
	Accrued(amount *big.Int, lastYield, now uint64) *big.Int
}

type noYield struct{}

func (noYield) Accrued(*big.Int, uint64, uint64) *big.Int { return big.NewInt(0) }

// Engine aggregates provider deposits per token and supplies liquidity to the
// loan controller. There is no netting across tokens: every total is tracked
// per token symbol.
type Engine struct {
	state   engineState
	tokens  map[string]struct{}
	yield   YieldModel
	emitter events.Emitter
	pauses  nativecommon.PauseView
	nowFn   func() uint64
}

// NewEngine constructs a pool engine accepting the provided token symbols.
func NewEngine(supported []string) *Engine {
	tokens := make(map[string]struct{}, len(supported))
	for _, symbol := range supported {
		normalized := strings.ToUpper(strings.TrimSpace(symbol))
		if normalized != "" {
			tokens[normalized] = struct{}{}
		}
	}
	return &Engine{
		tokens:  tokens,
		yield:   noYield{},
		emitter: events.NoopEmitter{},
		nowFn:   func() uint64 { return uint64(time.Now().Unix()) },
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

// SetYieldModel overrides the yield accrual model. Passing nil restores the
// zero-yield default.
func (e *Engine) SetYieldModel(model YieldModel) {
	if e == nil {
		return
	}
	if model == nil {
		e.yield = noYield{}
		return
	}
	e.yield = model
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

// NormalizeToken validates the symbol against the supported set and returns
// the canonical uppercase form.
func (e *Engine) NormalizeToken(symbol string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	if _, ok := e.tokens[normalized]; !ok {
		return "", fmt.Errorf("%w: %s", ErrInvalidToken, symbol)
	}
	return normalized, nil
}

// ProvideFunds records a deposit from provider, increasing both the provider
// stake and the pooled total for the token.
func (e *Engine) ProvideFunds(provider [20]byte, tokenSymbol string, amount *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	symbol, err := e.NormalizeToken(tokenSymbol)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	funds, err := e.providerFunds(provider, symbol)
	if err != nil {
		return err
	}
	funds.Amount = new(big.Int).Add(funds.Amount, amount)
	funds.LastYieldTimestamp = e.nowFn()
	if err := e.state.KVPut(providerKey(provider, symbol), funds); err != nil {
		return err
	}

	total, err := e.TotalLiquidity(symbol)
	if err != nil {
		return err
	}
	if err := e.state.KVPut(totalKey(symbol), new(big.Int).Add(total, amount)); err != nil {
		return err
	}
	e.emit(FundsProvided{Provider: provider, Token: symbol, Amount: amount})
	return nil
}

// WithdrawFunds releases part of the provider's stake back to them.
func (e *Engine) WithdrawFunds(provider [20]byte, tokenSymbol string, amount *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	symbol, err := e.NormalizeToken(tokenSymbol)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	funds, err := e.providerFunds(provider, symbol)
	if err != nil {
		return err
	}
	if funds.Amount.Cmp(amount) < 0 {
		return ErrInsufficientLiquidity
	}
	total, err := e.TotalLiquidity(symbol)
	if err != nil {
		return err
	}
	if total.Cmp(amount) < 0 {
		return ErrInsufficientLiquidity
	}

	funds.Amount = new(big.Int).Sub(funds.Amount, amount)
	if err := e.state.KVPut(providerKey(provider, symbol), funds); err != nil {
		return err
	}
	if err := e.state.KVPut(totalKey(symbol), new(big.Int).Sub(total, amount)); err != nil {
		return err
	}
	e.emit(FundsWithdrawn{Provider: provider, Token: symbol, Amount: amount})
	return nil
}

// FundLoan reserves liquidity for a disbursement. Controller-facing.
func (e *Engine) FundLoan(tokenSymbol string, amount *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	symbol, err := e.NormalizeToken(tokenSymbol)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	total, err := e.TotalLiquidity(symbol)
	if err != nil {
		return err
	}
	if total.Cmp(amount) < 0 {
		return ErrInsufficientLiquidity
	}
	if err := e.state.KVPut(totalKey(symbol), new(big.Int).Sub(total, amount)); err != nil {
		return err
	}
	e.emit(LoanFunded{Token: symbol, Amount: amount})
	return nil
}

// ReceiveLoanRepayment credits an incoming repayment back into the pool.
func (e *Engine) ReceiveLoanRepayment(tokenSymbol string, amount *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	symbol, err := e.NormalizeToken(tokenSymbol)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	total, err := e.TotalLiquidity(symbol)
	if err != nil {
		return err
	}
	if err := e.state.KVPut(totalKey(symbol), new(big.Int).Add(total, amount)); err != nil {
		return err
	}
	e.emit(RepaymentReceived{Token: symbol, Amount: amount})
	return nil
}

// AccrueYield applies the yield model to a provider position and stamps the
// accrual timestamp. With the default model this only refreshes the stamp.
func (e *Engine) AccrueYield(provider [20]byte, tokenSymbol string) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	symbol, err := e.NormalizeToken(tokenSymbol)
	if err != nil {
		return err
	}
	funds, err := e.providerFunds(provider, symbol)
	if err != nil {
		return err
	}
	now := e.nowFn()
	accrued := e.yield.Accrued(funds.Amount, funds.LastYieldTimestamp, now)
	if accrued != nil && accrued.Sign() > 0 {
		funds.Amount = new(big.Int).Add(funds.Amount, accrued)
		total, err := e.TotalLiquidity(symbol)
		if err != nil {
			return err
		}
		if err := e.state.KVPut(totalKey(symbol), new(big.Int).Add(total, accrued)); err != nil {
			return err
		}
	}
	funds.LastYieldTimestamp = now
	return e.state.KVPut(providerKey(provider, symbol), funds)
}

// TotalLiquidity returns the pooled amount for the token.
func (e *Engine) TotalLiquidity(tokenSymbol string) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	symbol, err := e.NormalizeToken(tokenSymbol)
	if err != nil {
		return nil, err
	}
	total := new(big.Int)
	ok, err := e.state.KVGet(totalKey(symbol), total)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return total, nil
}

// ProviderPosition returns the stored bookkeeping for a provider and token.
func (e *Engine) ProviderPosition(provider [20]byte, tokenSymbol string) (*ProviderFunds, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	symbol, err := e.NormalizeToken(tokenSymbol)
	if err != nil {
		return nil, err
	}
	return e.providerFunds(provider, symbol)
}

func (e *Engine) providerFunds(provider [20]byte, symbol string) (*ProviderFunds, error) {
	var funds ProviderFunds
	ok, err := e.state.KVGet(providerKey(provider, symbol), &funds)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &ProviderFunds{Amount: big.NewInt(0)}, nil
	}
	if funds.Amount == nil {
		funds.Amount = big.NewInt(0)
	}
	return &funds, nil
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(evt)
}
