// Package storage implements the minimal key-value interface consumed by
// the core (design §6): Put, Get, Delete, PrefixScan, plus the compare-
// and-swap PutIf primitive the token ledger requires for atomic balance
// updates. Two production backends are provided (LevelDB and Badger),
// following this codebase's own DBManager convention of supporting
// multiple storage engines behind one interface, plus an in-memory
// implementation for tests and embedded use.
package storage

import "errors"

// ErrCASMismatch is returned by PutIf when the expected value does not
// match the current stored value.
var ErrCASMismatch = errors.New("storage: compare-and-swap mismatch")

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("storage: key not found")

// KVStore is the storage interface consumed by the registry and the token
// ledger.
type KVStore interface {
	Put(key, value []byte) error
	Get(key []byte) ([]byte, error)
	Delete(key []byte) error
	PrefixScan(prefix []byte) (map[string][]byte, error)

	// PutIf performs an atomic compare-and-swap: it writes newValue only if
	// the current value under key equals expected (nil expected means "key
	// must not currently exist"). It returns ErrCASMismatch otherwise. The
	// token ledger relies on this for read-balance-then-write atomicity.
	PutIf(key, expected, newValue []byte) error

	Close() error
}

// Type identifies a storage engine kind.
type Type string

const (
	LevelDB Type = "leveldb"
	Badger  Type = "badger"
	Memory  Type = "memory"
)

// Open constructs a KVStore of the given type rooted at dir (ignored for
// Memory).
func Open(t Type, dir string) (KVStore, error) {
	switch t {
	case LevelDB:
		return NewLevelDBStore(dir)
	case Badger:
		return NewBadgerStore(dir)
	case Memory, "":
		return NewMemoryStore(), nil
	default:
		return nil, errors.New("storage: unknown backend type " + string(t))
	}
}
