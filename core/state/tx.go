package state

import "lendnet/storage"

// Tx is a write-buffering overlay over a backing database. Reads consult the
// overlay first, writes and deletes stay in memory until Commit flushes them
// to the underlying store. Discard drops everything, which gives each ledger
// entry point its all-or-nothing semantics: the node runs every call against
// a fresh Tx and commits only on success.
//
// Tx is not safe for concurrent use; the node serialises calls.
type Tx struct {
	db      storage.Database
	writes  map[string][]byte
	deletes map[string]struct{}
}

// NewTx creates an overlay transaction over the provided database.
func NewTx(db storage.Database) *Tx {
	return &Tx{
		db:      db,
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
}

// Put buffers a key-value write.
func (tx *Tx) Put(key []byte, value []byte) error {
	buf := make([]byte, len(value))
	copy(buf, value)
	tx.writes[string(key)] = buf
	delete(tx.deletes, string(key))
	return nil
}

// Get returns the buffered value when present, otherwise reads through to the
// backing database. Deleted keys report as missing.
func (tx *Tx) Get(key []byte) ([]byte, error) {
	if _, gone := tx.deletes[string(key)]; gone {
		return nil, nil
	}
	if value, ok := tx.writes[string(key)]; ok {
		buf := make([]byte, len(value))
		copy(buf, value)
		return buf, nil
	}
	return tx.db.Get(key)
}

// Delete buffers a key removal.
func (tx *Tx) Delete(key []byte) error {
	delete(tx.writes, string(key))
	tx.deletes[string(key)] = struct{}{}
	return nil
}

// Close satisfies storage.Database; committing and discarding are explicit.
func (tx *Tx) Close() {}

// Commit flushes all buffered mutations to the backing database. The overlay
// is reset afterwards so an accidental reuse starts clean.
func (tx *Tx) Commit() error {
	for key := range tx.deletes {
		if err := tx.db.Delete([]byte(key)); err != nil {
			return err
		}
	}
	for key, value := range tx.writes {
		if err := tx.db.Put([]byte(key), value); err != nil {
			return err
		}
	}
	tx.reset()
	return nil
}

// Discard drops all buffered mutations without touching the backing database.
func (tx *Tx) Discard() {
	tx.reset()
}

func (tx *Tx) reset() {
	tx.writes = make(map[string][]byte)
	tx.deletes = make(map[string]struct{})
}
