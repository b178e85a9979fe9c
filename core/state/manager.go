package state

import (
	"bytes"
	"fmt"
	"reflect"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"veritynet/storage"
)

// Manager provides typed key-value access to the node's state. Writes are
// buffered in an explicit transaction and flushed on Commit, so an
// operation that fails part-way leaves no trace in the database.
type Manager struct {
	db      storage.Database
	overlay map[string][]byte
	order   []string
	open    bool
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// Begin opens a write transaction. Opening a second transaction before the
// first is committed or aborted is a programming error.
func (m *Manager) Begin() error {
	if m.open {
		return fmt.Errorf("state: transaction already open")
	}
	m.open = true
	m.overlay = make(map[string][]byte)
	m.order = nil
	return nil
}

// Commit flushes the buffered writes to the database in write order.
func (m *Manager) Commit() error {
	if !m.open {
		return fmt.Errorf("state: no open transaction")
	}
	for _, key := range m.order {
		if err := m.db.Put([]byte(key), m.overlay[key]); err != nil {
			m.reset()
			return fmt.Errorf("state: commit: %w", err)
		}
	}
	m.reset()
	return nil
}

// Abort discards the buffered writes.
func (m *Manager) Abort() {
	m.reset()
}

// InTransaction reports whether a write transaction is currently open.
func (m *Manager) InTransaction() bool {
	return m.open
}

func (m *Manager) reset() {
	m.open = false
	m.overlay = nil
	m.order = nil
}

func (m *Manager) rawPut(key, value []byte) error {
	if !m.open {
		return m.db.Put(key, value)
	}
	sk := string(key)
	if _, seen := m.overlay[sk]; !seen {
		m.order = append(m.order, sk)
	}
	buf := make([]byte, len(value))
	copy(buf, value)
	m.overlay[sk] = buf
	return nil
}

func (m *Manager) rawGet(key []byte) ([]byte, bool, error) {
	if m.open {
		if value, ok := m.overlay[string(key)]; ok {
			return value, true, nil
		}
	}
	value, err := m.db.Get(key)
	if err != nil {
		if err == storage.ErrKeyNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	return value, true, nil
}

// KVPut encodes the supplied value with RLP and stores it under the hashed
// key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.rawPut(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, found, err := m.rawGet(kvKey(key))
	if err != nil {
		return false, err
	}
	if !found || len(data) == 0 {
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

// KVAppend appends the provided value to the RLP-encoded byte slice list stored
// under the supplied key. Duplicate values are ignored to keep the index
// deterministic.
func (m *Manager) KVAppend(key []byte, value []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	hashed := kvKey(key)
	data, found, err := m.rawGet(hashed)
	if err != nil {
		return err
	}
	var list [][]byte
	if found && len(data) > 0 {
		if err := rlp.DecodeBytes(data, &list); err != nil {
			return err
		}
	}
	for _, existing := range list {
		if bytes.Equal(existing, value) {
			return nil
		}
	}
	list = append(list, append([]byte(nil), value...))
	encoded, err := rlp.EncodeToBytes(list)
	if err != nil {
		return err
	}
	return m.rawPut(hashed, encoded)
}

// KVGetList decodes the RLP list stored under the supplied key into the
// provided slice pointer. A missing key yields an empty slice.
func (m *Manager) KVGetList(key []byte, out interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	data, found, err := m.rawGet(kvKey(key))
	if err != nil {
		return err
	}
	if !found || len(data) == 0 {
		val := reflect.ValueOf(out)
		if val.Kind() != reflect.Ptr || val.IsNil() {
			return fmt.Errorf("kv: destination must be a non-nil pointer")
		}
		elem := val.Elem()
		if elem.Kind() != reflect.Slice {
			return fmt.Errorf("kv: destination must point to a slice")
		}
		elem.Set(reflect.MakeSlice(elem.Type(), 0, 0))
		return nil
	}
	return rlp.DecodeBytes(data, out)
}

// NextID increments the named monotonic counter and returns its new value.
// Counters start at 1 so the zero id can mean "unset" everywhere.
func (m *Manager) NextID(name string) (uint64, error) {
	if name == "" {
		return 0, fmt.Errorf("state: counter name must not be empty")
	}
	key := []byte("counter/" + name)
	var current uint64
	found, err := m.KVGet(key, &current)
	if err != nil {
		return 0, err
	}
	next := current + 1
	if found && next == 0 {
		return 0, fmt.Errorf("state: counter %q overflowed", name)
	}
	if err := m.KVPut(key, next); err != nil {
		return 0, err
	}
	return next, nil
}
