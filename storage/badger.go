package storage

import (
	"bytes"
	"os"
	"sync"

	"github.com/dgraph-io/badger"

	"github.com/a2afabric/core/internal/log"
)

// badgerStore is a KVStore backed by Badger, mirroring this codebase's own
// badgerDB wrapper: directory auto-creation and a mutex-guarded CAS path
// (Badger's own transaction conflict detection is not relied upon here so
// that PutIf behaves identically across backends).
type badgerStore struct {
	mu     sync.Mutex
	db     *badger.DB
	logger log.Logger
}

func NewBadgerStore(dir string) (KVStore, error) {
	logger := log.NewModuleLogger("storage/badger").New("dir", dir)
	if fi, err := os.Stat(dir); err == nil {
		if !fi.IsDir() {
			return nil, os.ErrInvalid
		}
	} else if os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	} else {
		return nil, err
	}
	opts := badger.DefaultOptions
	opts.Dir = dir
	opts.ValueDir = dir
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	logger.Info("opened badger store")
	return &badgerStore{db: db, logger: logger}, nil
}

func (s *badgerStore) Put(key, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

func (s *badgerStore) Get(key []byte) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		v, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err == badger.ErrKeyNotFound {
		return nil, ErrNotFound
	}
	return out, err
}

func (s *badgerStore) Delete(key []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

func (s *badgerStore) PrefixScan(prefix []byte) (map[string][]byte, error) {
	out := make(map[string][]byte)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out[string(item.Key())] = v
		}
		return nil
	})
	return out, err
}

func (s *badgerStore) PutIf(key, expected, newValue []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.Get(key)
	exists := true
	if err == ErrNotFound {
		exists = false
	} else if err != nil {
		return err
	}
	if expected == nil {
		if exists {
			return ErrCASMismatch
		}
	} else {
		if !exists || !bytes.Equal(cur, expected) {
			return ErrCASMismatch
		}
	}
	return s.Put(key, newValue)
}

func (s *badgerStore) Close() error {
	s.logger.Info("closing badger store")
	return s.db.Close()
}
