package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/debenture/internal/bond"
	"github.com/shopspring/decimal"
)

// ErrReadOnly is returned when a write is attempted inside a View.
var ErrReadOnly = errors.New("ledger: write in read-only transaction")

// Key addresses the schedule state of one bond held by one investor.
type Key struct {
	Investor bond.Address
	BondID   bond.ID
}

// Entry is the persisted schedule state for a Key.
type Entry struct {
	PaymentsMade   int64     `json:"payments_made"`
	LastSettlement time.Time `json:"last_settlement"`
}

// ReceiptKind names the operation that produced a payout.
type ReceiptKind string

const (
	KindSettlement ReceiptKind = "settlement"
	KindRedemption ReceiptKind = "redemption"
)

// Receipt is a journal record of one credited payout.
type Receipt struct {
	ID        uuid.UUID       `json:"id"`
	Investor  bond.Address    `json:"investor"`
	BondID    bond.ID         `json:"bond_id"`
	Kind      ReceiptKind     `json:"kind"`
	Periods   int64           `json:"periods"`
	Amount    decimal.Decimal `json:"amount"`
	Index     int64           `json:"index"`
	TaxRate   decimal.Decimal `json:"tax_rate"`
	CreatedAt time.Time       `json:"created_at"`
}

// Tx is the view of the ledger available inside a transaction. Reads of
// missing keys return zero values; writes are only visible to the rest of the
// transaction until it commits.
type Tx interface {
	// Entry returns the entry for key and whether it exists.
	Entry(ctx context.Context, key Key) (Entry, bool, error)
	PutEntry(ctx context.Context, key Key, e Entry) error
	DeleteEntry(ctx context.Context, key Key) error

	// Balance returns the credited payout of investor, zero when unknown.
	Balance(ctx context.Context, investor bond.Address) (decimal.Decimal, error)
	PutBalance(ctx context.Context, investor bond.Address, amount decimal.Decimal) error

	AppendReceipt(ctx context.Context, r *Receipt) error
}

// Store is the persistent keyed state of the amortization core. MemoryStore,
// PostgresStore and SQLiteStore implement it.
type Store interface {
	// Update runs fn in a serialized read-write transaction. Every write made
	// through tx is committed if and only if fn returns nil.
	Update(ctx context.Context, fn func(tx Tx) error) error

	// View runs fn in a read-only transaction.
	View(ctx context.Context, fn func(tx Tx) error) error

	// Receipts lists the most recent payouts of investor, newest first.
	Receipts(ctx context.Context, investor bond.Address, limit int) ([]*Receipt, error)
}

type txKey struct{}

// ContextWithTx returns a copy of ctx carrying tx. Collaborators that share
// the ledger's database use it to run their statements inside tx.
func ContextWithTx(ctx context.Context, tx Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFromContext returns the transaction carried by ctx, if any.
func TxFromContext(ctx context.Context) (Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(Tx)
	return tx, ok
}

const defaultReceiptLimit = 50

func receiptLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return defaultReceiptLimit
	}
	return limit
}
