package state

import (
	"math/big"
	"testing"

	"lendnet/storage"
)

type sampleRecord struct {
	Owner  [20]byte
	Amount *big.Int
	Flag   bool
}

func TestManagerRoundTrip(t *testing.T) {
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	mgr := NewManager(db)

	var owner [20]byte
	owner[0] = 0xAB
	in := sampleRecord{Owner: owner, Amount: big.NewInt(12345), Flag: true}
	if err := mgr.KVPut([]byte("sample/1"), &in); err != nil {
		t.Fatalf("KVPut: %v", err)
	}

	var out sampleRecord
	ok, err := mgr.KVGet([]byte("sample/1"), &out)
	if err != nil {
		t.Fatalf("KVGet: %v", err)
	}
	if !ok {
		t.Fatalf("expected record to exist")
	}
	if out.Owner != owner || out.Amount.Cmp(in.Amount) != 0 || !out.Flag {
		t.Fatalf("round trip mismatch: %+v", out)
	}

	ok, err = mgr.KVGet([]byte("sample/absent"), &out)
	if err != nil {
		t.Fatalf("KVGet absent: %v", err)
	}
	if ok {
		t.Fatalf("absent key reported as present")
	}

	if err := mgr.KVDelete([]byte("sample/1")); err != nil {
		t.Fatalf("KVDelete: %v", err)
	}
	ok, err = mgr.KVGet([]byte("sample/1"), &out)
	if err != nil {
		t.Fatalf("KVGet after delete: %v", err)
	}
	if ok {
		t.Fatalf("deleted key reported as present")
	}
}

func TestManagerUint64List(t *testing.T) {
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	mgr := NewManager(db)

	key := []byte("index/loans")
	list, err := mgr.KVGetUint64List(key)
	if err != nil {
		t.Fatalf("KVGetUint64List: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list, got %v", list)
	}

	for _, id := range []uint64{0, 1, 1, 7} {
		if err := mgr.KVAppendUint64(key, id); err != nil {
			t.Fatalf("KVAppendUint64(%d): %v", id, err)
		}
	}
	list, err = mgr.KVGetUint64List(key)
	if err != nil {
		t.Fatalf("KVGetUint64List: %v", err)
	}
	if len(list) != 3 || list[0] != 0 || list[1] != 1 || list[2] != 7 {
		t.Fatalf("unexpected list: %v", list)
	}
}

func TestTxCommitAndDiscard(t *testing.T) {
	db := storage.NewMemDB()
	t.Cleanup(db.Close)

	tx := NewTx(db)
	mgr := NewManager(tx)
	if err := mgr.KVPut([]byte("k"), uint64(42)); err != nil {
		t.Fatalf("KVPut: %v", err)
	}

	// The write must not be visible through the backing database yet.
	var val uint64
	ok, err := NewManager(db).KVGet([]byte("k"), &val)
	if err != nil {
		t.Fatalf("KVGet: %v", err)
	}
	if ok {
		t.Fatalf("uncommitted write leaked to the backing store")
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	ok, err = NewManager(db).KVGet([]byte("k"), &val)
	if err != nil {
		t.Fatalf("KVGet after commit: %v", err)
	}
	if !ok || val != 42 {
		t.Fatalf("unexpected committed value: ok=%v val=%d", ok, val)
	}

	// Discarded writes and deletes must leave the store untouched.
	tx = NewTx(db)
	mgr = NewManager(tx)
	if err := mgr.KVPut([]byte("k"), uint64(99)); err != nil {
		t.Fatalf("KVPut: %v", err)
	}
	if err := mgr.KVDelete([]byte("k")); err != nil {
		t.Fatalf("KVDelete: %v", err)
	}
	tx.Discard()

	ok, err = NewManager(db).KVGet([]byte("k"), &val)
	if err != nil {
		t.Fatalf("KVGet after discard: %v", err)
	}
	if !ok || val != 42 {
		t.Fatalf("discard mutated the backing store: ok=%v val=%d", ok, val)
	}
}

func TestTxDeleteVisibility(t *testing.T) {
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	if err := NewManager(db).KVPut([]byte("k"), uint64(1)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	tx := NewTx(db)
	mgr := NewManager(tx)
	if err := mgr.KVDelete([]byte("k")); err != nil {
		t.Fatalf("KVDelete: %v", err)
	}
	var val uint64
	ok, err := mgr.KVGet([]byte("k"), &val)
	if err != nil {
		t.Fatalf("KVGet: %v", err)
	}
	if ok {
		t.Fatalf("delete not visible inside the transaction")
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	ok, err = NewManager(db).KVGet([]byte("k"), &val)
	if err != nil {
		t.Fatalf("KVGet after commit: %v", err)
	}
	if ok {
		t.Fatalf("committed delete did not reach the backing store")
	}
}
