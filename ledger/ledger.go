// Package ledger implements token balance accounting over storage.KVStore,
// using its PutIf compare-and-swap primitive for atomic debit/credit exactly
// as design §6 requires ("the ledger requires a compare-and-swap put_if").
package ledger

import (
	"encoding/binary"
	"sync"

	"github.com/a2afabric/core/internal/errs"
	"github.com/a2afabric/core/storage"
)

const keyPrefix = "ledger/balance/"

func balanceKey(account, token string) []byte {
	return []byte(keyPrefix + token + "/" + account)
}

func encode(balance uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, balance)
	return b
}

func decode(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// Ledger tracks per-account, per-token balances with CAS-based updates so
// concurrent transfers cannot lose an update (design §8 conservation-of-
// tokens invariant: total supply is unchanged by any transfer).
type Ledger struct {
	// mu is one lock for the whole ledger: it serializes every
	// read-modify-write around PutIf, across all accounts, so concurrent
	// updates through this Ledger wait for one another; PutIf alone
	// guarantees atomicity but not forward progress under contention.
	mu    sync.Mutex
	store storage.KVStore
}

// New constructs a Ledger backed by store.
func New(store storage.KVStore) *Ledger {
	return &Ledger{store: store}
}

// Balance returns account's balance in token, 0 if the account has never
// been credited.
func (l *Ledger) Balance(account, token string) (uint64, error) {
	v, err := l.store.Get(balanceKey(account, token))
	if err == storage.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, errs.Wrap(errs.Internal, err, "read balance")
	}
	return decode(v), nil
}

// Credit atomically adds amount to account's balance in token.
func (l *Ledger) Credit(account, token string, amount uint64) error {
	return l.adjust(account, token, func(cur uint64) (uint64, error) {
		return cur + amount, nil
	})
}

// Debit atomically subtracts amount from account's balance in token,
// failing with InsufficientFunds if the balance is too low.
func (l *Ledger) Debit(account, token string, amount uint64) error {
	return l.adjust(account, token, func(cur uint64) (uint64, error) {
		if cur < amount {
			return 0, errs.New(errs.InsufficientFunds, "account %s has %d %s, needs %d", account, cur, token, amount)
		}
		return cur - amount, nil
	})
}

// Transfer atomically debits from and credits to the same amount of token,
// rolling back the debit if the credit side cannot be applied.
func (l *Ledger) Transfer(from, to, token string, amount uint64) error {
	if err := l.Debit(from, token, amount); err != nil {
		return err
	}
	if err := l.Credit(to, token, amount); err != nil {
		// roll back the debit: credit it back to `from`.
		if rbErr := l.Credit(from, token, amount); rbErr != nil {
			return errs.Wrap(errs.Internal, rbErr, "transfer rollback failed after credit error %v", err)
		}
		return err
	}
	return nil
}

// adjust performs a CAS-retry loop: read current value, compute the new
// value, and PutIf(old, new), retrying if another writer raced ahead.
func (l *Ledger) adjust(account, token string, f func(cur uint64) (uint64, error)) error {
	key := balanceKey(account, token)
	l.mu.Lock()
	defer l.mu.Unlock()

	for {
		cur, err := l.store.Get(key)
		var curVal uint64
		var expected []byte
		switch err {
		case nil:
			curVal = decode(cur)
			expected = cur
		case storage.ErrNotFound:
			curVal = 0
			expected = nil
		default:
			return errs.Wrap(errs.Internal, err, "read balance for adjust")
		}

		next, err := f(curVal)
		if err != nil {
			return err
		}

		putErr := l.store.PutIf(key, expected, encode(next))
		if putErr == nil {
			return nil
		}
		if putErr == storage.ErrCASMismatch {
			continue
		}
		return errs.Wrap(errs.Internal, putErr, "write balance")
	}
}
