package core

import (
	"errors"
	"math/big"
	"testing"

	"lendnet/crypto"
	"lendnet/native/loans"
	"lendnet/native/pool"
	"lendnet/storage"
)

var (
	oracleAddr = testAddr(0x01)
	ownerAddr  = testAddr(0x02)
	provider   = testAddr(0x10)
	borrower   = testAddr(0x20)
)

func testAddr(b byte) crypto.Address {
	var raw [20]byte
	for i := range raw {
		raw[i] = b
	}
	return crypto.AddressFromArray(raw)
}

func newTestNode(t *testing.T) *Node {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)

	node, err := NewNode(db, Config{
		Oracle:       oracleAddr,
		Owner:        ownerAddr,
		MinScore:     0,
		MaxScore:     1000,
		LoanParams:   loans.DefaultParams(),
		TokenSymbol:  "LND",
		FaucetAmount: big.NewInt(10),
	}, nil)
	if err != nil {
		t.Fatalf("NewNode: %v", err)
	}
	now := uint64(1_700_000_000)
	node.SetNowFunc(func() uint64 { return now })
	return node
}

func TestNodeLoanLifecycle(t *testing.T) {
	node := newTestNode(t)

	if err := node.MintTokens(ownerAddr, provider, big.NewInt(10_000)); err != nil {
		t.Fatalf("MintTokens: %v", err)
	}
	if err := node.ProvideLiquidity(provider, "LND", big.NewInt(5_000)); err != nil {
		t.Fatalf("ProvideLiquidity: %v", err)
	}
	total, err := node.TotalLiquidity("LND")
	if err != nil {
		t.Fatalf("TotalLiquidity: %v", err)
	}
	if total.Cmp(big.NewInt(5_000)) != 0 {
		t.Fatalf("unexpected pool total: %s", total)
	}

	if err := node.UpdateScore(oracleAddr, borrower, 500); err != nil {
		t.Fatalf("UpdateScore: %v", err)
	}

	id, err := node.RequestLoan(borrower, big.NewInt(1_000), 30)
	if err != nil {
		t.Fatalf("RequestLoan: %v", err)
	}
	if id != 0 {
		t.Fatalf("first loan id should be 0, got %d", id)
	}

	balance, err := node.BalanceOf(borrower)
	if err != nil {
		t.Fatalf("BalanceOf: %v", err)
	}
	if balance.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("principal not disbursed: %s", balance)
	}
	total, err = node.TotalLiquidity("LND")
	if err != nil {
		t.Fatalf("TotalLiquidity: %v", err)
	}
	if total.Cmp(big.NewInt(4_000)) != 0 {
		t.Fatalf("pool not debited: %s", total)
	}
	holder, err := node.PositionHolder(id)
	if err != nil {
		t.Fatalf("PositionHolder: %v", err)
	}
	if holder.Array() != borrower.Array() {
		t.Fatalf("unexpected position holder: %s", holder)
	}

	// Score 500 prices the loan at 480 bps: owed 1048.
	if err := node.MintTokens(ownerAddr, borrower, big.NewInt(48)); err != nil {
		t.Fatalf("MintTokens: %v", err)
	}
	if err := node.RepayLoan(borrower, id, big.NewInt(1_048)); err != nil {
		t.Fatalf("RepayLoan: %v", err)
	}

	loan, err := node.Loan(id)
	if err != nil {
		t.Fatalf("Loan: %v", err)
	}
	if loan.Status != loans.StatusRepaid {
		t.Fatalf("unexpected status: %s", loan.Status)
	}
	total, err = node.TotalLiquidity("LND")
	if err != nil {
		t.Fatalf("TotalLiquidity: %v", err)
	}
	if total.Cmp(big.NewInt(5_048)) != 0 {
		t.Fatalf("repayment not credited to pool: %s", total)
	}
	count, err := node.OnTimePayments(borrower)
	if err != nil {
		t.Fatalf("OnTimePayments: %v", err)
	}
	if count != 1 {
		t.Fatalf("unexpected on-time count: %d", count)
	}
	if _, err := node.Position(id); err == nil {
		t.Fatalf("position should be destroyed after repayment")
	}
}

func TestNodeRollsBackFailedCalls(t *testing.T) {
	node := newTestNode(t)

	if err := node.MintTokens(ownerAddr, provider, big.NewInt(2_000)); err != nil {
		t.Fatalf("MintTokens: %v", err)
	}
	if err := node.ProvideLiquidity(provider, "LND", big.NewInt(1_000)); err != nil {
		t.Fatalf("ProvideLiquidity: %v", err)
	}
	if err := node.UpdateScore(oracleAddr, borrower, 1000); err != nil {
		t.Fatalf("UpdateScore: %v", err)
	}

	committed := len(node.Events())

	// Score 1000 allows up to 2000, but the pool only holds 1000. The call
	// fails inside the pool step, after the loan record was written to the
	// overlay; nothing of it may survive.
	if _, err := node.RequestLoan(borrower, big.NewInt(1_500), 30); !errors.Is(err, pool.ErrInsufficientLiquidity) {
		t.Fatalf("expected ErrInsufficientLiquidity, got %v", err)
	}

	balance, err := node.BalanceOf(borrower)
	if err != nil {
		t.Fatalf("BalanceOf: %v", err)
	}
	if balance.Sign() != 0 {
		t.Fatalf("failed request disbursed funds: %s", balance)
	}
	ids, err := node.BorrowerLoans(borrower)
	if err != nil {
		t.Fatalf("BorrowerLoans: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("failed request left an index entry: %v", ids)
	}
	if got := len(node.Events()); got != committed {
		t.Fatalf("failed request leaked events: %d -> %d", committed, got)
	}

	// The allocated counter must have been rolled back too.
	id, err := node.RequestLoan(borrower, big.NewInt(500), 30)
	if err != nil {
		t.Fatalf("RequestLoan: %v", err)
	}
	if id != 0 {
		t.Fatalf("loan id should restart at 0 after rollback, got %d", id)
	}
}

func TestNodeOverdueSettlement(t *testing.T) {
	node := newTestNode(t)

	if err := node.MintTokens(ownerAddr, provider, big.NewInt(5_000)); err != nil {
		t.Fatalf("MintTokens: %v", err)
	}
	if err := node.ProvideLiquidity(provider, "LND", big.NewInt(5_000)); err != nil {
		t.Fatalf("ProvideLiquidity: %v", err)
	}
	if err := node.UpdateScore(oracleAddr, borrower, 500); err != nil {
		t.Fatalf("UpdateScore: %v", err)
	}

	now := uint64(1_700_000_000)
	node.SetNowFunc(func() uint64 { return now })

	id, err := node.RequestLoan(borrower, big.NewInt(1_000), 1)
	if err != nil {
		t.Fatalf("RequestLoan: %v", err)
	}

	now += 86_401
	overdue, err := node.IsLoanOverdue(id)
	if err != nil || !overdue {
		t.Fatalf("expected overdue loan: %v %v", overdue, err)
	}
	if err := node.SettleOverdueLoan(id); err != nil {
		t.Fatalf("SettleOverdueLoan: %v", err)
	}
	loan, err := node.Loan(id)
	if err != nil {
		t.Fatalf("Loan: %v", err)
	}
	if loan.Status != loans.StatusDefaulted {
		t.Fatalf("unexpected status: %s", loan.Status)
	}
}

func TestNodeModulePause(t *testing.T) {
	node := newTestNode(t)

	if err := node.SetModulePaused(borrower, "loans", true); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := node.SetModulePaused(ownerAddr, "loans", true); err != nil {
		t.Fatalf("SetModulePaused: %v", err)
	}
	if err := node.UpdateScore(oracleAddr, borrower, 1000); err != nil {
		t.Fatalf("UpdateScore: %v", err)
	}
	if _, err := node.RequestLoan(borrower, big.NewInt(10), 7); err == nil {
		t.Fatalf("paused module accepted a loan request")
	}
	if err := node.SetModulePaused(ownerAddr, "loans", false); err != nil {
		t.Fatalf("SetModulePaused: %v", err)
	}
}
