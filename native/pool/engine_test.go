package pool_test

import (
	"errors"
	"math/big"
	"testing"

	"lendnet/core/state"
	nativecommon "lendnet/native/common"
	"lendnet/native/pool"
	"lendnet/storage"
)

var provider = addr(0x0F)

func addr(b byte) [20]byte {
	var out [20]byte
	for i := range out {
		out[i] = b
	}
	return out
}

func newTestEngine(t *testing.T) *pool.Engine {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	eng := pool.NewEngine([]string{"LND"})
	eng.SetState(state.NewManager(db))
	eng.SetNowFunc(func() uint64 { return 1_700_000_000 })
	return eng
}

func TestProvideAndWithdrawFunds(t *testing.T) {
	eng := newTestEngine(t)

	if err := eng.ProvideFunds(provider, "lnd", big.NewInt(5000)); err != nil {
		t.Fatalf("ProvideFunds: %v", err)
	}
	total, err := eng.TotalLiquidity("LND")
	if err != nil {
		t.Fatalf("TotalLiquidity: %v", err)
	}
	if total.Cmp(big.NewInt(5000)) != 0 {
		t.Fatalf("unexpected total: %s", total)
	}

	position, err := eng.ProviderPosition(provider, "LND")
	if err != nil {
		t.Fatalf("ProviderPosition: %v", err)
	}
	if position.Amount.Cmp(big.NewInt(5000)) != 0 {
		t.Fatalf("unexpected provider amount: %s", position.Amount)
	}
	if position.LastYieldTimestamp != 1_700_000_000 {
		t.Fatalf("yield timestamp not stamped: %d", position.LastYieldTimestamp)
	}

	if err := eng.WithdrawFunds(provider, "LND", big.NewInt(6000)); err != pool.ErrInsufficientLiquidity {
		t.Fatalf("expected ErrInsufficientLiquidity, got %v", err)
	}
	if err := eng.WithdrawFunds(provider, "LND", big.NewInt(2000)); err != nil {
		t.Fatalf("WithdrawFunds: %v", err)
	}
	total, err = eng.TotalLiquidity("LND")
	if err != nil {
		t.Fatalf("TotalLiquidity: %v", err)
	}
	if total.Cmp(big.NewInt(3000)) != 0 {
		t.Fatalf("unexpected total after withdraw: %s", total)
	}
}

func TestFundLoanAndRepayment(t *testing.T) {
	eng := newTestEngine(t)
	if err := eng.ProvideFunds(provider, "LND", big.NewInt(1000)); err != nil {
		t.Fatalf("ProvideFunds: %v", err)
	}

	if err := eng.FundLoan("LND", big.NewInt(1500)); err != pool.ErrInsufficientLiquidity {
		t.Fatalf("expected ErrInsufficientLiquidity, got %v", err)
	}
	if err := eng.FundLoan("LND", big.NewInt(800)); err != nil {
		t.Fatalf("FundLoan: %v", err)
	}
	total, err := eng.TotalLiquidity("LND")
	if err != nil {
		t.Fatalf("TotalLiquidity: %v", err)
	}
	if total.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("unexpected total after funding: %s", total)
	}

	if err := eng.ReceiveLoanRepayment("LND", big.NewInt(850)); err != nil {
		t.Fatalf("ReceiveLoanRepayment: %v", err)
	}
	total, err = eng.TotalLiquidity("LND")
	if err != nil {
		t.Fatalf("TotalLiquidity: %v", err)
	}
	if total.Cmp(big.NewInt(1050)) != 0 {
		t.Fatalf("unexpected total after repayment: %s", total)
	}
}

func TestUnsupportedToken(t *testing.T) {
	eng := newTestEngine(t)
	err := eng.ProvideFunds(provider, "DOGE", big.NewInt(10))
	if err == nil {
		t.Fatalf("expected unsupported token error")
	}
}

type pausedView struct{}

func (pausedView) IsPaused(string) bool { return true }

func TestPauseGatesEveryMutator(t *testing.T) {
	eng := newTestEngine(t)
	if err := eng.ProvideFunds(provider, "LND", big.NewInt(1000)); err != nil {
		t.Fatalf("ProvideFunds: %v", err)
	}

	eng.SetPauses(pausedView{})
	mutators := map[string]func() error{
		"ProvideFunds":         func() error { return eng.ProvideFunds(provider, "LND", big.NewInt(10)) },
		"WithdrawFunds":        func() error { return eng.WithdrawFunds(provider, "LND", big.NewInt(10)) },
		"FundLoan":             func() error { return eng.FundLoan("LND", big.NewInt(10)) },
		"ReceiveLoanRepayment": func() error { return eng.ReceiveLoanRepayment("LND", big.NewInt(10)) },
	}
	for name, call := range mutators {
		if err := call(); !errors.Is(err, nativecommon.ErrModulePaused) {
			t.Fatalf("%s: expected ErrModulePaused, got %v", name, err)
		}
	}
	total, err := eng.TotalLiquidity("LND")
	if err != nil {
		t.Fatalf("TotalLiquidity: %v", err)
	}
	if total.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("paused mutator touched state: %s", total)
	}
}

type flatYield struct{ amount int64 }

func (f flatYield) Accrued(*big.Int, uint64, uint64) *big.Int { return big.NewInt(f.amount) }

func TestAccrueYield(t *testing.T) {
	eng := newTestEngine(t)
	if err := eng.ProvideFunds(provider, "LND", big.NewInt(1000)); err != nil {
		t.Fatalf("ProvideFunds: %v", err)
	}

	// Default model accrues nothing but refreshes the stamp.
	eng.SetNowFunc(func() uint64 { return 1_700_000_100 })
	if err := eng.AccrueYield(provider, "LND"); err != nil {
		t.Fatalf("AccrueYield: %v", err)
	}
	position, err := eng.ProviderPosition(provider, "LND")
	if err != nil {
		t.Fatalf("ProviderPosition: %v", err)
	}
	if position.Amount.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("zero-yield model changed the amount: %s", position.Amount)
	}
	if position.LastYieldTimestamp != 1_700_000_100 {
		t.Fatalf("stamp not refreshed: %d", position.LastYieldTimestamp)
	}

	eng.SetYieldModel(flatYield{amount: 50})
	if err := eng.AccrueYield(provider, "LND"); err != nil {
		t.Fatalf("AccrueYield: %v", err)
	}
	position, err = eng.ProviderPosition(provider, "LND")
	if err != nil {
		t.Fatalf("ProviderPosition: %v", err)
	}
	if position.Amount.Cmp(big.NewInt(1050)) != 0 {
		t.Fatalf("yield not applied: %s", position.Amount)
	}
	total, err := eng.TotalLiquidity("LND")
	if err != nil {
		t.Fatalf("TotalLiquidity: %v", err)
	}
	if total.Cmp(big.NewInt(1050)) != 0 {
		t.Fatalf("yield not reflected in total: %s", total)
	}
}
