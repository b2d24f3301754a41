package state

import (
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"lendnet/storage"
)

// Manager provides a typed key-value view over the backing database. Values
// are RLP encoded and keys are hashed with keccak256 before hitting storage so
// logical key layout stays independent of backend key size limits.
//
// Persisted types must therefore stay within RLP's vocabulary: unsigned
// integers, byte arrays, strings, big.Int and structs/slices thereof.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database. The
// database may be a node-level backend or a per-call Tx overlay.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// KVPut stores the provided value under the supplied key using RLP encoding.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.db.Put(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.db.Get(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the value stored under the supplied key.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	return m.db.Delete(kvKey(key))
}

// KVAppendUint64 appends the provided value to the uint64 list stored under
// the supplied key. Duplicate values are ignored to keep indexes
// deterministic.
func (m *Manager) KVAppendUint64(key []byte, value uint64) error {
	list, err := m.KVGetUint64List(key)
	if err != nil {
		return err
	}
	for _, existing := range list {
		if existing == value {
			return nil
		}
	}
	list = append(list, value)
	return m.KVPut(key, list)
}

// KVGetUint64List retrieves the uint64 list stored under the provided key. A
// missing key yields an empty slice.
func (m *Manager) KVGetUint64List(key []byte) ([]uint64, error) {
	var list []uint64
	ok, err := m.KVGet(key, &list)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []uint64{}, nil
	}
	return list, nil
}
