package core

import (
	"errors"
	"log/slog"
	"math/big"
	"sync"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"lendnet/core/events"
	"lendnet/core/state"
	"lendnet/core/types"
	"lendnet/crypto"
	nativecommon "lendnet/native/common"
	"lendnet/native/debtnft"
	"lendnet/native/loans"
	"lendnet/native/oracle"
	"lendnet/native/pool"
	"lendnet/native/token"
	"lendnet/observability"
	"lendnet/storage"
)

// ErrUnauthorized marks administrative calls from anyone but the owner.
var ErrUnauthorized = errors.New("node: caller is not the owner")

// Config carries the protocol parameters the node is constructed with.
type Config struct {
	Oracle       crypto.Address
	Owner        crypto.Address
	MinScore     uint64
	MaxScore     uint64
	LoanParams   loans.Params
	TokenSymbol  string
	FaucetAmount *big.Int
}

// Node is the ledger composition root. It owns the storage backend, wires the
// native engines together and runs every entry point inside a write-buffering
// transaction: on success the buffered writes and events are committed, on any
// error both are dropped. Calls are serialised by a single mutex.
type Node struct {
	mu sync.Mutex

	db      storage.Database
	log     *slog.Logger
	metrics *observability.LedgerMetrics

	pauses    *nativecommon.Pauses
	oracle    *oracle.Engine
	token     *token.Engine
	pool      *pool.Engine
	positions *debtnft.Engine
	loans     *loans.Engine

	owner      [20]byte
	tokenLabel string

	committed []*types.Event
}

// vault is the ledger-internal account holding pooled liquidity. It has no
// known private key; only the node can move funds in and out of it.
var vault = moduleAccount("pool/vault")

func moduleAccount(label string) [20]byte {
	hash := ethcrypto.Keccak256([]byte("lendnet/module/" + label))
	var out [20]byte
	copy(out[:], hash[12:])
	return out
}

// vaultMover adapts the token engine's internal transfer primitive to the loan
// controller's disburse/collect seam. Moves are fee and pause exempt.
type vaultMover struct {
	token *token.Engine
}

func (v vaultMover) Disburse(to [20]byte, _ string, amount *big.Int) error {
	return v.token.MoveFunds(vault, to, amount)
}

func (v vaultMover) Collect(from [20]byte, _ string, amount *big.Int) error {
	return v.token.MoveFunds(from, vault, amount)
}

// repaymentLogger surfaces repayment outcomes to the operator log so the
// oracle operator can adjust scores off-ledger.
type repaymentLogger struct {
	log *slog.Logger
}

func (r repaymentLogger) LoanRepaid(borrower [20]byte, loanID uint64, onTime bool) {
	if r.log == nil {
		return
	}
	r.log.Info("loan repaid",
		"borrower", crypto.AddressFromArray(borrower).String(),
		"loanId", loanID,
		"onTime", onTime)
}

// NewNode constructs a node over the provided storage backend.
func NewNode(db storage.Database, cfg Config, logger *slog.Logger) (*Node, error) {
	if logger == nil {
		logger = slog.Default()
	}

	oracleEng, err := oracle.NewEngine(cfg.Oracle.Array(), cfg.MinScore, cfg.MaxScore)
	if err != nil {
		return nil, err
	}
	tokenEng := token.NewEngine(cfg.Owner.Array(), cfg.FaucetAmount)
	poolEng := pool.NewEngine([]string{cfg.TokenSymbol})
	positionEng := debtnft.NewEngine()
	loanEng := loans.NewEngine(cfg.LoanParams)

	pauses := nativecommon.NewPauses(nil)
	oracleEng.SetPauses(pauses)
	poolEng.SetPauses(pauses)
	loanEng.SetPauses(pauses)

	loanEng.SetCollaborators(oracleEng, poolEng, positionEng, vaultMover{token: tokenEng})
	loanEng.SetRepaymentRecorder(repaymentLogger{log: logger})

	n := &Node{
		db:         db,
		log:        logger,
		metrics:    observability.Ledger(),
		pauses:     pauses,
		oracle:     oracleEng,
		token:      tokenEng,
		pool:       poolEng,
		positions:  positionEng,
		loans:      loanEng,
		owner:      cfg.Owner.Array(),
		tokenLabel: cfg.TokenSymbol,
	}
	return n, nil
}

// SetNowFunc overrides the clock on all time-dependent engines. Primarily
// intended for tests.
func (n *Node) SetNowFunc(now func() uint64) {
	n.pool.SetNowFunc(now)
	n.positions.SetNowFunc(now)
	n.loans.SetNowFunc(now)
}

// Events returns the events committed so far, in commit order.
func (n *Node) Events() []*types.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*types.Event, len(n.committed))
	copy(out, n.committed)
	return out
}

// bind points every engine at the per-call state overlay and event recorder.
func (n *Node) bind(mgr *state.Manager, recorder *events.Recorder) {
	n.pauses.SetState(mgr)
	n.oracle.SetState(mgr)
	n.oracle.SetEmitter(recorder)
	n.token.SetState(mgr)
	n.token.SetEmitter(recorder)
	n.pool.SetState(mgr)
	n.pool.SetEmitter(recorder)
	n.positions.SetState(mgr)
	n.positions.SetEmitter(recorder)
	n.loans.SetState(mgr)
	n.loans.SetEmitter(recorder)
}

// execute runs fn inside a fresh transaction. State writes and emitted events
// become visible only when fn returns nil.
func (n *Node) execute(module, operation string, fn func() error) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	start := time.Now()
	tx := state.NewTx(n.db)
	recorder := &events.Recorder{}
	n.bind(state.NewManager(tx), recorder)

	err := fn()
	if err != nil {
		tx.Discard()
	} else if err = tx.Commit(); err == nil {
		n.committed = append(n.committed, recorder.Events()...)
	}
	n.metrics.Observe(module, operation, err, time.Since(start))

	if err != nil {
		n.log.Warn("ledger call rolled back", "module", module, "operation", operation, "err", err)
	} else {
		n.log.Debug("ledger call committed", "module", module, "operation", operation)
	}
	return err
}

// SetModulePaused toggles the pause flag for a native module. Owner only.
func (n *Node) SetModulePaused(caller crypto.Address, module string, paused bool) error {
	return n.execute("common", "setModulePaused", func() error {
		if caller.Array() != n.owner {
			return ErrUnauthorized
		}
		return n.pauses.SetPaused(module, paused)
	})
}

// --- Reputation oracle ---

// UpdateScore sets a subject's reputation score. Oracle address only.
func (n *Node) UpdateScore(caller, subject crypto.Address, score uint64) error {
	return n.execute("oracle", "updateScore", func() error {
		return n.oracle.UpdateScore(caller.Array(), subject.Array(), score)
	})
}

// UserScore returns the subject's current score.
func (n *Node) UserScore(subject crypto.Address) (uint64, error) {
	var score uint64
	err := n.execute("oracle", "userScore", func() error {
		var inner error
		score, inner = n.oracle.UserScore(subject.Array())
		return inner
	})
	return score, err
}

// EligibleForLoan reports whether the subject meets the required score.
func (n *Node) EligibleForLoan(subject crypto.Address, required uint64) (bool, error) {
	var ok bool
	err := n.execute("oracle", "eligibleForLoan", func() error {
		var inner error
		ok, inner = n.oracle.EligibleForLoan(subject.Array(), required)
		return inner
	})
	return ok, err
}

// MaxLoanAmount returns the subject's score-derived borrowing cap.
func (n *Node) MaxLoanAmount(subject crypto.Address, base *big.Int) (*big.Int, error) {
	var amount *big.Int
	err := n.execute("oracle", "maxLoanAmount", func() error {
		var inner error
		amount, inner = n.oracle.MaxLoanAmount(subject.Array(), base)
		return inner
	})
	return amount, err
}

// --- Liquidity token ---

// Transfer moves tokens between accounts, applying the configured fee.
func (n *Node) Transfer(caller, to crypto.Address, amount *big.Int) error {
	return n.execute("token", "transfer", func() error {
		return n.token.Transfer(caller.Array(), to.Array(), amount)
	})
}

// TransferFrom spends a previously granted allowance.
func (n *Node) TransferFrom(caller, from, to crypto.Address, amount *big.Int) error {
	return n.execute("token", "transferFrom", func() error {
		return n.token.TransferFrom(caller.Array(), from.Array(), to.Array(), amount)
	})
}

// Approve grants a spending allowance. The new value overwrites the old one.
func (n *Node) Approve(caller, spender crypto.Address, amount *big.Int) error {
	return n.execute("token", "approve", func() error {
		return n.token.Approve(caller.Array(), spender.Array(), amount)
	})
}

// Allowance returns the remaining allowance from owner to spender.
func (n *Node) Allowance(owner, spender crypto.Address) (*big.Int, error) {
	var amount *big.Int
	err := n.execute("token", "allowance", func() error {
		var inner error
		amount, inner = n.token.Allowance(owner.Array(), spender.Array())
		return inner
	})
	return amount, err
}

// MintTokens creates new supply. Owner only.
func (n *Node) MintTokens(caller, to crypto.Address, amount *big.Int) error {
	return n.execute("token", "mint", func() error {
		return n.token.Mint(caller.Array(), to.Array(), amount)
	})
}

// BurnTokens destroys supply from an account. Owner only.
func (n *Node) BurnTokens(caller, from crypto.Address, amount *big.Int) error {
	return n.execute("token", "burn", func() error {
		return n.token.Burn(caller.Array(), from.Array(), amount)
	})
}

// BurnOwnTokens destroys supply from the caller's own balance.
func (n *Node) BurnOwnTokens(caller crypto.Address, amount *big.Int) error {
	return n.execute("token", "burnOwn", func() error {
		return n.token.BurnOwn(caller.Array(), amount)
	})
}

// ClaimFaucet mints the faucet amount to callers with a zero balance.
func (n *Node) ClaimFaucet(caller crypto.Address) error {
	return n.execute("token", "publicMint", func() error {
		return n.token.PublicMint(caller.Array())
	})
}

// PauseToken halts user token movement. Owner only.
func (n *Node) PauseToken(caller crypto.Address) error {
	return n.execute("token", "pause", func() error {
		return n.token.Pause(caller.Array())
	})
}

// UnpauseToken resumes user token movement. Owner only.
func (n *Node) UnpauseToken(caller crypto.Address) error {
	return n.execute("token", "unpause", func() error {
		return n.token.Unpause(caller.Array())
	})
}

// SetTransferFee updates the transfer fee in basis points. Owner only.
func (n *Node) SetTransferFee(caller crypto.Address, bps uint64) error {
	return n.execute("token", "setFeePercentage", func() error {
		return n.token.SetFeePercentage(caller.Array(), bps)
	})
}

// BalanceOf returns the account's token balance.
func (n *Node) BalanceOf(account crypto.Address) (*big.Int, error) {
	var amount *big.Int
	err := n.execute("token", "balanceOf", func() error {
		var inner error
		amount, inner = n.token.BalanceOf(account.Array())
		return inner
	})
	return amount, err
}

// TotalSupply returns the token's total supply.
func (n *Node) TotalSupply() (*big.Int, error) {
	var amount *big.Int
	err := n.execute("token", "totalSupply", func() error {
		var inner error
		amount, inner = n.token.TotalSupply()
		return inner
	})
	return amount, err
}

// --- Liquidity pool ---

// ProvideLiquidity moves tokens from the provider into the vault and records
// the deposit in the pool ledger.
func (n *Node) ProvideLiquidity(caller crypto.Address, tokenSymbol string, amount *big.Int) error {
	return n.execute("pool", "provideFunds", func() error {
		if err := n.pool.ProvideFunds(caller.Array(), tokenSymbol, amount); err != nil {
			return err
		}
		return n.token.MoveFunds(caller.Array(), vault, amount)
	})
}

// WithdrawLiquidity returns deposited tokens from the vault to the provider.
func (n *Node) WithdrawLiquidity(caller crypto.Address, tokenSymbol string, amount *big.Int) error {
	return n.execute("pool", "withdrawFunds", func() error {
		if err := n.pool.WithdrawFunds(caller.Array(), tokenSymbol, amount); err != nil {
			return err
		}
		return n.token.MoveFunds(vault, caller.Array(), amount)
	})
}

// AccrueYield refreshes the caller's yield position.
func (n *Node) AccrueYield(caller crypto.Address, tokenSymbol string) error {
	return n.execute("pool", "accrueYield", func() error {
		return n.pool.AccrueYield(caller.Array(), tokenSymbol)
	})
}

// TotalLiquidity returns the pool's total liquidity for the token.
func (n *Node) TotalLiquidity(tokenSymbol string) (*big.Int, error) {
	var amount *big.Int
	err := n.execute("pool", "totalLiquidity", func() error {
		var inner error
		amount, inner = n.pool.TotalLiquidity(tokenSymbol)
		return inner
	})
	return amount, err
}

// ProviderPosition returns the caller's recorded pool deposit.
func (n *Node) ProviderPosition(provider crypto.Address, tokenSymbol string) (*pool.ProviderFunds, error) {
	var funds *pool.ProviderFunds
	err := n.execute("pool", "providerPosition", func() error {
		var inner error
		funds, inner = n.pool.ProviderPosition(provider.Array(), tokenSymbol)
		return inner
	})
	return funds, err
}

// --- Loan controller ---

// RequestLoan creates, funds and disburses a new loan for the caller.
func (n *Node) RequestLoan(caller crypto.Address, amount *big.Int, durationDays uint64) (uint64, error) {
	var id uint64
	err := n.execute("loans", "requestLoan", func() error {
		var inner error
		id, inner = n.loans.RequestLoan(caller.Array(), amount, n.tokenLabel, durationDays)
		return inner
	})
	return id, err
}

// RepayLoan settles an active loan with an exact repayment.
func (n *Node) RepayLoan(caller crypto.Address, loanID uint64, amount *big.Int) error {
	return n.execute("loans", "repayLoan", func() error {
		return n.loans.RepayLoan(caller.Array(), loanID, amount)
	})
}

// IsLoanOverdue reports whether the loan is active and past due.
func (n *Node) IsLoanOverdue(loanID uint64) (bool, error) {
	var overdue bool
	err := n.execute("loans", "isLoanOverdue", func() error {
		var inner error
		overdue, inner = n.loans.IsLoanOverdue(loanID)
		return inner
	})
	return overdue, err
}

// SettleOverdueLoan transitions an overdue loan to defaulted.
func (n *Node) SettleOverdueLoan(loanID uint64) error {
	return n.execute("loans", "settleOverdueLoan", func() error {
		return n.loans.SettleOverdueLoan(loanID)
	})
}

// Loan returns the stored loan record.
func (n *Node) Loan(loanID uint64) (*loans.Loan, error) {
	var loan *loans.Loan
	err := n.execute("loans", "getLoan", func() error {
		var inner error
		loan, inner = n.loans.Loan(loanID)
		return inner
	})
	return loan, err
}

// BorrowerLoans returns the borrower's loan ids in request order.
func (n *Node) BorrowerLoans(borrower crypto.Address) ([]uint64, error) {
	var ids []uint64
	err := n.execute("loans", "borrowerLoans", func() error {
		var inner error
		ids, inner = n.loans.BorrowerLoans(borrower.Array())
		return inner
	})
	return ids, err
}

// OnTimePayments returns the borrower's on-time repayment counter.
func (n *Node) OnTimePayments(borrower crypto.Address) (uint64, error) {
	var count uint64
	err := n.execute("loans", "onTimePayments", func() error {
		var inner error
		count, inner = n.loans.OnTimePayments(borrower.Array())
		return inner
	})
	return count, err
}

// --- Debt positions ---

// TransferPosition moves a debt position to a new holder.
func (n *Node) TransferPosition(caller, to crypto.Address, loanID uint64) error {
	return n.execute("debtnft", "transferPosition", func() error {
		return n.positions.TransferPosition(caller.Array(), to.Array(), loanID)
	})
}

// BurnPosition destroys a debt position held by the caller.
func (n *Node) BurnPosition(caller crypto.Address, loanID uint64) error {
	return n.execute("debtnft", "burnPosition", func() error {
		return n.positions.BurnPosition(caller.Array(), loanID)
	})
}

// Position returns the stored debt position.
func (n *Node) Position(loanID uint64) (*debtnft.Position, error) {
	var position *debtnft.Position
	err := n.execute("debtnft", "getPosition", func() error {
		var inner error
		position, inner = n.positions.Position(loanID)
		return inner
	})
	return position, err
}

// PositionHolder returns the current holder of a debt position.
func (n *Node) PositionHolder(loanID uint64) (crypto.Address, error) {
	var holder [20]byte
	err := n.execute("debtnft", "holderOf", func() error {
		var inner error
		holder, inner = n.positions.HolderOf(loanID)
		return inner
	})
	if err != nil {
		return crypto.Address{}, err
	}
	return crypto.AddressFromArray(holder), nil
}
