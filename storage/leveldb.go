package storage

import (
	"bytes"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/a2afabric/core/internal/log"
)

// levelDBStore is a KVStore backed by goleveldb, modeled on this codebase's
// own levelDB wrapper (open-with-recovery, a single mutex guarding CAS).
type levelDBStore struct {
	mu     sync.Mutex
	db     *leveldb.DB
	logger log.Logger
}

// NewLevelDBStore opens (creating if necessary) a LevelDB database at dir,
// recovering from corruption the way this codebase's NewLDBDatabase does.
func NewLevelDBStore(dir string) (KVStore, error) {
	logger := log.NewModuleLogger("storage/leveldb").New("dir", dir)
	db, err := leveldb.OpenFile(dir, nil)
	if _, corrupted := err.(*errors.ErrCorrupted); corrupted {
		db, err = leveldb.RecoverFile(dir, nil)
	}
	if err != nil {
		return nil, err
	}
	logger.Info("opened leveldb store")
	return &levelDBStore{db: db, logger: logger}, nil
}

func (s *levelDBStore) Put(key, value []byte) error {
	return s.db.Put(key, value, nil)
}

func (s *levelDBStore) Get(key []byte) ([]byte, error) {
	v, err := s.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	}
	return v, err
}

func (s *levelDBStore) Delete(key []byte) error {
	return s.db.Delete(key, nil)
}

func (s *levelDBStore) PrefixScan(prefix []byte) (map[string][]byte, error) {
	out := make(map[string][]byte)
	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()
	for iter.Next() {
		out[string(iter.Key())] = append([]byte{}, iter.Value()...)
	}
	return out, iter.Error()
}

func (s *levelDBStore) PutIf(key, expected, newValue []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.db.Get(key, nil)
	exists := true
	if err == leveldb.ErrNotFound {
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
	return s.db.Put(key, newValue, nil)
}

func (s *levelDBStore) Close() error {
	s.logger.Info("closing leveldb store")
	return s.db.Close()
}
