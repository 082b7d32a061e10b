package ledger

import (
	"context"
	"sync"

	"github.com/jmerrifield20/debenture/internal/bond"
	"github.com/shopspring/decimal"
)

// MemoryStore is an in-memory, thread-safe Store implementation.
// Update holds the write lock for the whole transaction, so calls are
// totally ordered.
type MemoryStore struct {
	mu       sync.RWMutex
	entries  map[Key]Entry
	balances map[bond.Address]decimal.Decimal
	receipts []*Receipt
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:  make(map[Key]Entry),
		balances: make(map[bond.Address]decimal.Decimal),
	}
}

// Update implements Store.
func (s *MemoryStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := newMemTx(s, false)
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// View implements Store.
func (s *MemoryStore) View(_ context.Context, fn func(tx Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(newMemTx(s, true))
}

// Receipts implements Store.
func (s *MemoryStore) Receipts(_ context.Context, investor bond.Address, limit int) ([]*Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit = receiptLimit(limit)
	var out []*Receipt
	for i := len(s.receipts) - 1; i >= 0 && len(out) < limit; i-- {
		if r := s.receipts[i]; r.Investor == investor {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

// memTx stages writes over a MemoryStore. A nil entry pointer in the staged
// map marks a deletion.
type memTx struct {
	s        *MemoryStore
	readOnly bool
	entries  map[Key]*Entry
	balances map[bond.Address]decimal.Decimal
	receipts []*Receipt
}

func newMemTx(s *MemoryStore, readOnly bool) *memTx {
	return &memTx{
		s:        s,
		readOnly: readOnly,
		entries:  make(map[Key]*Entry),
		balances: make(map[bond.Address]decimal.Decimal),
	}
}

func (tx *memTx) Entry(_ context.Context, key Key) (Entry, bool, error) {
	if staged, ok := tx.entries[key]; ok {
		if staged == nil {
			return Entry{}, false, nil
		}
		return *staged, true, nil
	}
	e, ok := tx.s.entries[key]
	return e, ok, nil
}

func (tx *memTx) PutEntry(_ context.Context, key Key, e Entry) error {
	if tx.readOnly {
		return ErrReadOnly
	}
	tx.entries[key] = &e
	return nil
}

func (tx *memTx) DeleteEntry(_ context.Context, key Key) error {
	if tx.readOnly {
		return ErrReadOnly
	}
	tx.entries[key] = nil
	return nil
}

func (tx *memTx) Balance(_ context.Context, investor bond.Address) (decimal.Decimal, error) {
	if b, ok := tx.balances[investor]; ok {
		return b, nil
	}
	return tx.s.balances[investor], nil
}

func (tx *memTx) PutBalance(_ context.Context, investor bond.Address, amount decimal.Decimal) error {
	if tx.readOnly {
		return ErrReadOnly
	}
	tx.balances[investor] = amount
	return nil
}

func (tx *memTx) AppendReceipt(_ context.Context, r *Receipt) error {
	if tx.readOnly {
		return ErrReadOnly
	}
	cp := *r
	tx.receipts = append(tx.receipts, &cp)
	return nil
}

// commit applies the staged writes. Caller must hold s.mu.
func (tx *memTx) commit() {
	for k, e := range tx.entries {
		if e == nil {
			delete(tx.s.entries, k)
			continue
		}
		tx.s.entries[k] = *e
	}
	for a, b := range tx.balances {
		tx.s.balances[a] = b
	}
	tx.s.receipts = append(tx.s.receipts, tx.receipts...)
}
