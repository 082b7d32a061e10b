package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/debenture/internal/bond"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS amortization_entries (
	investor        TEXT    NOT NULL,
	bond_id         INTEGER NOT NULL,
	payments_made   INTEGER NOT NULL,
	last_settlement INTEGER NOT NULL,
	PRIMARY KEY (investor, bond_id)
);
CREATE TABLE IF NOT EXISTS investor_balances (
	investor TEXT PRIMARY KEY,
	balance  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS payout_receipts (
	id          TEXT PRIMARY KEY,
	seq         INTEGER NOT NULL,
	investor    TEXT    NOT NULL,
	bond_id     INTEGER NOT NULL,
	kind        TEXT    NOT NULL,
	periods     INTEGER NOT NULL,
	amount      TEXT    NOT NULL,
	index_value INTEGER NOT NULL,
	tax_rate    TEXT    NOT NULL,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS payout_receipts_investor ON payout_receipts (investor, seq);
`

// SQLiteStore persists the ledger to an embedded SQLite database. A single
// connection is kept open, so transactions never interleave.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// OpenSQLiteStore opens (creating if needed) the database at path and applies
// the schema.
func OpenSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Update implements Store. The transaction begins deferred; calls are
// serialized by the single pooled connection, which Update holds until
// commit or rollback. fn must not call back into the store.
func (s *SQLiteStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(&sqlTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}
	s.logger.Debug("ledger tx committed")
	return nil
}

// View implements Store.
func (s *SQLiteStore) View(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck
	return fn(&sqlTx{tx: tx, readOnly: true})
}

// Receipts implements Store.
func (s *SQLiteStore) Receipts(ctx context.Context, investor bond.Address, limit int) ([]*Receipt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, investor, bond_id, kind, periods, amount, index_value, tax_rate, created_at
		 FROM payout_receipts WHERE investor = ? ORDER BY seq DESC LIMIT ?`,
		string(investor), receiptLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("query receipts: %w", err)
	}
	defer rows.Close()

	var out []*Receipt
	for rows.Next() {
		var (
			r                      Receipt
			id, inv, kind          string
			amount, taxRate        string
			bondID, createdAtEpoch int64
		)
		if err := rows.Scan(&id, &inv, &bondID, &kind, &r.Periods, &amount, &r.Index, &taxRate, &createdAtEpoch); err != nil {
			return nil, fmt.Errorf("scan receipt: %w", err)
		}
		if r.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse receipt id: %w", err)
		}
		if r.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse receipt amount: %w", err)
		}
		if r.TaxRate, err = decimal.NewFromString(taxRate); err != nil {
			return nil, fmt.Errorf("parse receipt tax rate: %w", err)
		}
		r.Investor = bond.Address(inv)
		r.BondID = bond.ID(bondID)
		r.Kind = ReceiptKind(kind)
		r.CreatedAt = time.Unix(createdAtEpoch, 0).UTC()
		out = append(out, &r)
	}
	return out, rows.Err()
}

type sqlTx struct {
	tx       *sql.Tx
	readOnly bool
}

func (t *sqlTx) Entry(ctx context.Context, key Key) (Entry, bool, error) {
	var (
		e     Entry
		epoch int64
	)
	err := t.tx.QueryRowContext(ctx,
		`SELECT payments_made, last_settlement FROM amortization_entries WHERE investor = ? AND bond_id = ?`,
		string(key.Investor), int64(key.BondID),
	).Scan(&e.PaymentsMade, &epoch)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("get entry: %w", err)
	}
	e.LastSettlement = time.Unix(epoch, 0).UTC()
	return e, true, nil
}

func (t *sqlTx) PutEntry(ctx context.Context, key Key, e Entry) error {
	if t.readOnly {
		return ErrReadOnly
	}
	if _, err := t.tx.ExecContext(ctx,
		`INSERT INTO amortization_entries (investor, bond_id, payments_made, last_settlement)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (investor, bond_id) DO UPDATE
		 SET payments_made = excluded.payments_made, last_settlement = excluded.last_settlement`,
		string(key.Investor), int64(key.BondID), e.PaymentsMade, e.LastSettlement.Unix(),
	); err != nil {
		return fmt.Errorf("put entry: %w", err)
	}
	return nil
}

func (t *sqlTx) DeleteEntry(ctx context.Context, key Key) error {
	if t.readOnly {
		return ErrReadOnly
	}
	if _, err := t.tx.ExecContext(ctx,
		`DELETE FROM amortization_entries WHERE investor = ? AND bond_id = ?`,
		string(key.Investor), int64(key.BondID),
	); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

func (t *sqlTx) Balance(ctx context.Context, investor bond.Address) (decimal.Decimal, error) {
	var raw string
	err := t.tx.QueryRowContext(ctx,
		`SELECT balance FROM investor_balances WHERE investor = ?`, string(investor),
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("get balance: %w", err)
	}
	return decimal.NewFromString(raw)
}

func (t *sqlTx) PutBalance(ctx context.Context, investor bond.Address, amount decimal.Decimal) error {
	if t.readOnly {
		return ErrReadOnly
	}
	if _, err := t.tx.ExecContext(ctx,
		`INSERT INTO investor_balances (investor, balance) VALUES (?, ?)
		 ON CONFLICT (investor) DO UPDATE SET balance = excluded.balance`,
		string(investor), amount.String(),
	); err != nil {
		return fmt.Errorf("put balance: %w", err)
	}
	return nil
}

func (t *sqlTx) AppendReceipt(ctx context.Context, r *Receipt) error {
	if t.readOnly {
		return ErrReadOnly
	}
	if _, err := t.tx.ExecContext(ctx,
		`INSERT INTO payout_receipts (id, seq, investor, bond_id, kind, periods, amount, index_value, tax_rate, created_at)
		 VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM payout_receipts), ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID.String(), string(r.Investor), int64(r.BondID), string(r.Kind), r.Periods,
		r.Amount.String(), r.Index, r.TaxRate.String(), r.CreatedAt.Unix(),
	); err != nil {
		return fmt.Errorf("insert receipt: %w", err)
	}
	return nil
}
