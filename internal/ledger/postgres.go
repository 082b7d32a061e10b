package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/debenture/internal/bond"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// advisoryLockKey serialises every Update across all service instances
// sharing the database.
const advisoryLockKey = int64(2_044_170_311)

// PostgresStore persists the ledger to PostgreSQL. The schema lives in
// migrations/001_amortization.up.sql.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore creates a PostgresStore backed by the given connection pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

// Update implements Store.
// It takes a transaction-scoped advisory lock, runs fn, and commits only
// when fn succeeds. The lock is released on commit or rollback.
func (s *PostgresStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return fmt.Errorf("acquire advisory lock: %w", err)
	}

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}
	s.logger.Debug("ledger tx committed")
	return nil
}

// View implements Store.
func (s *PostgresStore) View(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck
	return fn(&pgTx{tx: tx, readOnly: true})
}

// Receipts implements Store.
func (s *PostgresStore) Receipts(ctx context.Context, investor bond.Address, limit int) ([]*Receipt, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, investor, bond_id, kind, periods, amount::text, index_value, tax_rate::text, created_at
		 FROM payout_receipts WHERE investor = $1
		 ORDER BY created_at DESC, id DESC LIMIT $2`,
		string(investor), receiptLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("query receipts: %w", err)
	}
	defer rows.Close()

	var out []*Receipt
	for rows.Next() {
		var (
			r               Receipt
			inv, kind       string
			bondID          int64
			amount, taxRate string
		)
		if err := rows.Scan(&r.ID, &inv, &bondID, &kind, &r.Periods, &amount, &r.Index, &taxRate, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan receipt: %w", err)
		}
		r.Investor = bond.Address(inv)
		r.BondID = bond.ID(bondID)
		r.Kind = ReceiptKind(kind)
		if r.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse receipt amount: %w", err)
		}
		if r.TaxRate, err = decimal.NewFromString(taxRate); err != nil {
			return nil, fmt.Errorf("parse receipt tax rate: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// PgxTxFromContext returns the pgx transaction behind the ledger transaction
// carried by ctx. It reports false outside a PostgresStore transaction.
func PgxTxFromContext(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := TxFromContext(ctx)
	if !ok {
		return nil, false
	}
	t, ok := tx.(*pgTx)
	if !ok {
		return nil, false
	}
	return t.tx, true
}

type pgTx struct {
	tx       pgx.Tx
	readOnly bool
}

func (t *pgTx) Entry(ctx context.Context, key Key) (Entry, bool, error) {
	var e Entry
	err := t.tx.QueryRow(ctx,
		`SELECT payments_made, last_settlement FROM amortization_entries
		 WHERE investor = $1 AND bond_id = $2`,
		string(key.Investor), int64(key.BondID),
	).Scan(&e.PaymentsMade, &e.LastSettlement)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("get entry: %w", err)
	}
	e.LastSettlement = e.LastSettlement.UTC()
	return e, true, nil
}

func (t *pgTx) PutEntry(ctx context.Context, key Key, e Entry) error {
	if t.readOnly {
		return ErrReadOnly
	}
	_, err := t.tx.Exec(ctx,
		`INSERT INTO amortization_entries (investor, bond_id, payments_made, last_settlement, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (investor, bond_id) DO UPDATE
		 SET payments_made = EXCLUDED.payments_made,
		     last_settlement = EXCLUDED.last_settlement,
		     updated_at = EXCLUDED.updated_at`,
		string(key.Investor), int64(key.BondID), e.PaymentsMade, e.LastSettlement, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("put entry: %w", err)
	}
	return nil
}

func (t *pgTx) DeleteEntry(ctx context.Context, key Key) error {
	if t.readOnly {
		return ErrReadOnly
	}
	if _, err := t.tx.Exec(ctx,
		`DELETE FROM amortization_entries WHERE investor = $1 AND bond_id = $2`,
		string(key.Investor), int64(key.BondID),
	); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

func (t *pgTx) Balance(ctx context.Context, investor bond.Address) (decimal.Decimal, error) {
	var raw string
	err := t.tx.QueryRow(ctx,
		`SELECT balance::text FROM investor_balances WHERE investor = $1`, string(investor),
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("get balance: %w", err)
	}
	return decimal.NewFromString(raw)
}

func (t *pgTx) PutBalance(ctx context.Context, investor bond.Address, amount decimal.Decimal) error {
	if t.readOnly {
		return ErrReadOnly
	}
	if _, err := t.tx.Exec(ctx,
		`INSERT INTO investor_balances (investor, balance) VALUES ($1, $2::numeric)
		 ON CONFLICT (investor) DO UPDATE SET balance = EXCLUDED.balance`,
		string(investor), amount.String(),
	); err != nil {
		return fmt.Errorf("put balance: %w", err)
	}
	return nil
}

func (t *pgTx) AppendReceipt(ctx context.Context, r *Receipt) error {
	if t.readOnly {
		return ErrReadOnly
	}
	if _, err := t.tx.Exec(ctx,
		`INSERT INTO payout_receipts (id, investor, bond_id, kind, periods, amount, index_value, tax_rate, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8::numeric, $9)`,
		r.ID, string(r.Investor), int64(r.BondID), string(r.Kind), r.Periods,
		r.Amount.String(), r.Index, r.TaxRate.String(), r.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert receipt: %w", err)
	}
	return nil
}
