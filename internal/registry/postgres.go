package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/debenture/internal/bond"
	"github.com/jmerrifield20/debenture/internal/ledger"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRegistry is a Registry backed by PostgreSQL.
type PostgresRegistry struct {
	db *pgxpool.Pool
}

// NewPostgresRegistry creates a new PostgresRegistry.
func NewPostgresRegistry(db *pgxpool.Pool) *PostgresRegistry {
	return &PostgresRegistry{db: db}
}

// conn joins the ledger transaction carried by ctx, so owner reads and
// writes commit or roll back together with the schedule entries.
func (r *PostgresRegistry) conn(ctx context.Context) querier {
	if tx, ok := ledger.PgxTxFromContext(ctx); ok {
		return tx
	}
	return r.db
}

// Bond implements bond.TermsProvider.
func (r *PostgresRegistry) Bond(ctx context.Context, id bond.ID) (*bond.Bond, error) {
	query := `
		SELECT id, denomination, interest_rate, frequency, issue_date, maturity_date, status
		FROM bonds WHERE id = $1`

	var (
		b      bond.Bond
		rawID  int64
		status string
	)
	err := r.db.QueryRow(ctx, query, int64(id)).Scan(
		&rawID, &b.Denomination, &b.InterestRate, &b.Frequency,
		&b.IssueDate, &b.MaturityDate, &status,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, bond.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query bond: %w", err)
	}
	b.ID = bond.ID(rawID)
	b.Status = bond.Status(status)
	b.IssueDate = b.IssueDate.UTC()
	b.MaturityDate = b.MaturityDate.UTC()
	return &b, nil
}

// InvestorOf implements bond.TermsProvider. Inside a ledger transaction
// context the read sees that transaction's writes.
func (r *PostgresRegistry) InvestorOf(ctx context.Context, id bond.ID) (bond.Address, error) {
	var investor string
	err := r.conn(ctx).QueryRow(ctx, `SELECT investor FROM bonds WHERE id = $1`, int64(id)).Scan(&investor)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", bond.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query investor: %w", err)
	}
	return bond.Address(investor), nil
}

// Institution implements bond.TermsProvider. An unset institution reads as
// the zero address, which no caller can match.
func (r *PostgresRegistry) Institution(ctx context.Context) (bond.Address, error) {
	var value string
	err := r.db.QueryRow(ctx, `SELECT value FROM registry_settings WHERE key = $1`, institutionKey).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query institution: %w", err)
	}
	return bond.Address(value), nil
}

// BondIDs implements bond.Lister.
func (r *PostgresRegistry) BondIDs(ctx context.Context) ([]bond.ID, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM bonds WHERE status = $1 ORDER BY id`, string(bond.StatusIssued))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []bond.ID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, bond.ID(id))
	}
	return ids, rows.Err()
}

// Put implements Registry.
func (r *PostgresRegistry) Put(ctx context.Context, b *bond.Bond, investor bond.Address) error {
	if err := b.Validate(); err != nil {
		return err
	}
	status := b.Status
	if status == "" {
		status = bond.StatusIssued
	}
	query := `
		INSERT INTO bonds (id, denomination, interest_rate, frequency, issue_date, maturity_date, status, investor)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			denomination  = EXCLUDED.denomination,
			interest_rate = EXCLUDED.interest_rate,
			frequency     = EXCLUDED.frequency,
			issue_date    = EXCLUDED.issue_date,
			maturity_date = EXCLUDED.maturity_date,
			status        = EXCLUDED.status,
			investor      = EXCLUDED.investor`
	_, err := r.db.Exec(ctx, query,
		int64(b.ID), b.Denomination, b.InterestRate, b.Frequency,
		b.IssueDate, b.MaturityDate, string(status), string(investor),
	)
	return err
}

// SetInvestor implements Registry. Inside a ledger transaction context the
// update is part of that transaction.
func (r *PostgresRegistry) SetInvestor(ctx context.Context, id bond.ID, investor bond.Address) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE bonds SET investor = $2 WHERE id = $1`, int64(id), string(investor))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return bond.ErrNotFound
	}
	return nil
}

// SetInstitution implements Registry.
func (r *PostgresRegistry) SetInstitution(ctx context.Context, institution bond.Address) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO registry_settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		institutionKey, string(institution),
	)
	return err
}
