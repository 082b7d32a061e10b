package ledger_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/debenture/internal/bond"
	"github.com/jmerrifield20/debenture/internal/ledger"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ctx = context.Background()

var errBoom = errors.New("boom")

func stores(t *testing.T) map[string]ledger.Store {
	t.Helper()
	sq, err := ledger.OpenSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { sq.Close() })
	return map[string]ledger.Store{
		"memory": ledger.NewMemoryStore(),
		"sqlite": sq,
	}
}

var key = ledger.Key{Investor: "GINVESTOR", BondID: 7}

func TestStore_missingKeysReadAsZero(t *testing.T) {
	for name, s := range stores(t) {
		err := s.View(ctx, func(tx ledger.Tx) error {
			e, ok, err := tx.Entry(ctx, key)
			if err != nil {
				return err
			}
			if ok || e.PaymentsMade != 0 || !e.LastSettlement.IsZero() {
				t.Errorf("%s: expected missing entry, got ok=%v %+v", name, ok, e)
			}
			bal, err := tx.Balance(ctx, key.Investor)
			if err != nil {
				return err
			}
			if !bal.IsZero() {
				t.Errorf("%s: balance: got %s, want 0", name, bal)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
	}
}

func TestStore_updateCommits(t *testing.T) {
	settled := time.Unix(1_700_000_000, 0).UTC()
	for name, s := range stores(t) {
		err := s.Update(ctx, func(tx ledger.Tx) error {
			if err := tx.PutEntry(ctx, key, ledger.Entry{PaymentsMade: 3, LastSettlement: settled}); err != nil {
				return err
			}
			return tx.PutBalance(ctx, key.Investor, decimal.RequireFromString("311.625"))
		})
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}

		_ = s.View(ctx, func(tx ledger.Tx) error {
			e, ok, _ := tx.Entry(ctx, key)
			if !ok || e.PaymentsMade != 3 || !e.LastSettlement.Equal(settled) {
				t.Errorf("%s: entry: got ok=%v %+v", name, ok, e)
			}
			bal, _ := tx.Balance(ctx, key.Investor)
			if bal.String() != "311.625" {
				t.Errorf("%s: balance: got %s, want 311.625", name, bal)
			}
			return nil
		})
	}
}

func TestStore_concurrentUpdatesSerialize(t *testing.T) {
	const writers = 20
	one := decimal.NewFromInt(1)
	for name, s := range stores(t) {
		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- s.Update(ctx, func(tx ledger.Tx) error {
					bal, err := tx.Balance(ctx, key.Investor)
					if err != nil {
						return err
					}
					return tx.PutBalance(ctx, key.Investor, bal.Add(one))
				})
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatalf("%s: %v", name, err)
			}
		}

		_ = s.View(ctx, func(tx ledger.Tx) error {
			bal, _ := tx.Balance(ctx, key.Investor)
			if bal.String() != "20" {
				t.Errorf("%s: balance: got %s, want 20 (lost update)", name, bal)
			}
			return nil
		})
	}
}

func TestStore_failedUpdateLeavesNoTrace(t *testing.T) {
	for name, s := range stores(t) {
		err := s.Update(ctx, func(tx ledger.Tx) error {
			_ = tx.PutEntry(ctx, key, ledger.Entry{PaymentsMade: 1})
			_ = tx.PutBalance(ctx, key.Investor, decimal.NewFromInt(100))
			_ = tx.AppendReceipt(ctx, &ledger.Receipt{ID: uuid.New(), Investor: key.Investor, Amount: decimal.NewFromInt(100)})
			return errBoom
		})
		if !errors.Is(err, errBoom) {
			t.Fatalf("%s: expected errBoom, got %v", name, err)
		}

		_ = s.View(ctx, func(tx ledger.Tx) error {
			if _, ok, _ := tx.Entry(ctx, key); ok {
				t.Errorf("%s: entry should not exist after rollback", name)
			}
			if bal, _ := tx.Balance(ctx, key.Investor); !bal.IsZero() {
				t.Errorf("%s: balance should be zero after rollback, got %s", name, bal)
			}
			return nil
		})
		receipts, err := s.Receipts(ctx, key.Investor, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(receipts) != 0 {
			t.Errorf("%s: expected no receipts after rollback, got %d", name, len(receipts))
		}
	}
}

func TestStore_stagedWritesVisibleInsideTx(t *testing.T) {
	for name, s := range stores(t) {
		_ = s.Update(ctx, func(tx ledger.Tx) error {
			_ = tx.PutEntry(ctx, key, ledger.Entry{PaymentsMade: 2})
			if e, ok, _ := tx.Entry(ctx, key); !ok || e.PaymentsMade != 2 {
				t.Errorf("%s: staged put not visible: ok=%v %+v", name, ok, e)
			}
			_ = tx.DeleteEntry(ctx, key)
			if _, ok, _ := tx.Entry(ctx, key); ok {
				t.Errorf("%s: staged delete not visible", name)
			}
			return nil
		})
	}
}

func TestStore_viewIsReadOnly(t *testing.T) {
	for name, s := range stores(t) {
		err := s.View(ctx, func(tx ledger.Tx) error {
			return tx.PutEntry(ctx, key, ledger.Entry{PaymentsMade: 1})
		})
		if !errors.Is(err, ledger.ErrReadOnly) {
			t.Errorf("%s: expected ErrReadOnly, got %v", name, err)
		}
	}
}

func TestStore_receiptsNewestFirst(t *testing.T) {
	for name, s := range stores(t) {
		base := time.Unix(1_700_000_000, 0).UTC()
		for i := 1; i <= 3; i++ {
			r := &ledger.Receipt{
				ID:        uuid.New(),
				Investor:  key.Investor,
				BondID:    bond.ID(i),
				Kind:      ledger.KindSettlement,
				Periods:   1,
				Amount:    decimal.NewFromInt(int64(i)),
				Index:     bond.IndexScale,
				TaxRate:   decimal.RequireFromString("0.225"),
				CreatedAt: base.Add(time.Duration(i) * time.Hour),
			}
			if err := s.Update(ctx, func(tx ledger.Tx) error { return tx.AppendReceipt(ctx, r) }); err != nil {
				t.Fatalf("%s: %v", name, err)
			}
		}

		got, err := s.Receipts(ctx, key.Investor, 2)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if len(got) != 2 {
			t.Fatalf("%s: expected 2 receipts, got %d", name, len(got))
		}
		if got[0].BondID != 3 || got[1].BondID != 2 {
			t.Errorf("%s: expected bonds [3 2], got [%d %d]", name, got[0].BondID, got[1].BondID)
		}
		if got[0].TaxRate.String() != "0.225" {
			t.Errorf("%s: tax rate: got %s", name, got[0].TaxRate)
		}

		other, _ := s.Receipts(ctx, "GOTHER", 10)
		if len(other) != 0 {
			t.Errorf("%s: expected no receipts for other investor, got %d", name, len(other))
		}
	}
}

func TestContextWithTx(t *testing.T) {
	if _, ok := ledger.TxFromContext(ctx); ok {
		t.Fatal("plain context must not carry a transaction")
	}
	s := ledger.NewMemoryStore()
	err := s.Update(ctx, func(tx ledger.Tx) error {
		got, ok := ledger.TxFromContext(ledger.ContextWithTx(ctx, tx))
		if !ok || got != tx {
			t.Errorf("TxFromContext: got %v, %v", got, ok)
		}
		if _, ok := ledger.PgxTxFromContext(ledger.ContextWithTx(ctx, tx)); ok {
			t.Error("memory transaction must not expose a pgx transaction")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}
