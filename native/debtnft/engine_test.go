package debtnft_test

import (
	"errors"
	"math/big"
	"testing"

	"lendnet/core/state"
	"lendnet/native/debtnft"
	"lendnet/storage"
)

var (
	borrower = addr(0xB0)
	buyer    = addr(0xB1)
)

func addr(b byte) [20]byte {
	var out [20]byte
	for i := range out {
		out[i] = b
	}
	return out
}

func newTestEngine(t *testing.T) *debtnft.Engine {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	eng := debtnft.NewEngine()
	eng.SetState(state.NewManager(db))
	eng.SetNowFunc(func() uint64 { return 1_700_000_000 })
	return eng
}

func TestCreatePositionRoundTrip(t *testing.T) {
	eng := newTestEngine(t)

	err := eng.CreatePosition(0, borrower, big.NewInt(1000), "LND", 640, 1_700_086_400)
	if err != nil {
		t.Fatalf("CreatePosition: %v", err)
	}

	position, err := eng.Position(0)
	if err != nil {
		t.Fatalf("Position: %v", err)
	}
	if position.LoanID != 0 || position.Borrower != borrower {
		t.Fatalf("unexpected position identity: %+v", position)
	}
	if position.Principal.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("unexpected principal: %s", position.Principal)
	}
	if position.Token != "LND" || position.InterestRateBps != 640 {
		t.Fatalf("unexpected terms: %+v", position)
	}
	if position.DueTimestamp != 1_700_086_400 || position.MintedAt != 1_700_000_000 {
		t.Fatalf("unexpected timestamps: %+v", position)
	}

	holder, err := eng.HolderOf(0)
	if err != nil {
		t.Fatalf("HolderOf: %v", err)
	}
	if holder != borrower {
		t.Fatalf("borrower is not the initial holder")
	}
}

func TestCreatePositionUniqueness(t *testing.T) {
	eng := newTestEngine(t)
	if err := eng.CreatePosition(7, borrower, big.NewInt(500), "LND", 100, 1); err != nil {
		t.Fatalf("CreatePosition: %v", err)
	}
	err := eng.CreatePosition(7, buyer, big.NewInt(900), "LND", 200, 2)
	if !errors.Is(err, debtnft.ErrPositionExists) {
		t.Fatalf("expected ErrPositionExists, got %v", err)
	}
}

func TestTransferAndBurnHolderChecks(t *testing.T) {
	eng := newTestEngine(t)
	if err := eng.CreatePosition(1, borrower, big.NewInt(500), "LND", 100, 1); err != nil {
		t.Fatalf("CreatePosition: %v", err)
	}

	if err := eng.TransferPosition(buyer, buyer, 1); !errors.Is(err, debtnft.ErrNotHolder) {
		t.Fatalf("expected ErrNotHolder, got %v", err)
	}
	if err := eng.TransferPosition(borrower, buyer, 1); err != nil {
		t.Fatalf("TransferPosition: %v", err)
	}
	holder, err := eng.HolderOf(1)
	if err != nil {
		t.Fatalf("HolderOf: %v", err)
	}
	if holder != buyer {
		t.Fatalf("transfer did not move the position")
	}

	if err := eng.BurnPosition(borrower, 1); !errors.Is(err, debtnft.ErrNotHolder) {
		t.Fatalf("old holder must not burn, got %v", err)
	}
	if err := eng.BurnPosition(buyer, 1); err != nil {
		t.Fatalf("BurnPosition: %v", err)
	}
	if _, err := eng.Position(1); !errors.Is(err, debtnft.ErrPositionNotFound) {
		t.Fatalf("expected ErrPositionNotFound after burn, got %v", err)
	}
}

func TestSettlePositionBypassesHolder(t *testing.T) {
	eng := newTestEngine(t)
	if err := eng.CreatePosition(2, borrower, big.NewInt(500), "LND", 100, 1); err != nil {
		t.Fatalf("CreatePosition: %v", err)
	}
	if err := eng.TransferPosition(borrower, buyer, 2); err != nil {
		t.Fatalf("TransferPosition: %v", err)
	}
	if err := eng.SettlePosition(2); err != nil {
		t.Fatalf("SettlePosition: %v", err)
	}
	if _, err := eng.HolderOf(2); !errors.Is(err, debtnft.ErrPositionNotFound) {
		t.Fatalf("expected position gone after settlement, got %v", err)
	}
}

func TestUnknownPosition(t *testing.T) {
	eng := newTestEngine(t)
	if _, err := eng.Position(99); !errors.Is(err, debtnft.ErrPositionNotFound) {
		t.Fatalf("expected ErrPositionNotFound, got %v", err)
	}
	if err := eng.BurnPosition(borrower, 99); !errors.Is(err, debtnft.ErrPositionNotFound) {
		t.Fatalf("expected ErrPositionNotFound, got %v", err)
	}
}
