// Package bond holds the economic terms of a tokenized debenture and the
// read-only collaborator contracts the amortization core depends on: the
// registry that knows bond terms and investors-of-record, and the inflation
// index oracle.
package bond

import (
	"context"
	"errors"
	"strings"
	"time"
)

// IndexScale is the fixed-point scale of every inflation index value.
// A neutral (no inflation) index is exactly IndexScale.
const IndexScale int64 = 1_000_000

// ErrNotFound is returned by a TermsProvider when no bond has the given id.
var ErrNotFound = errors.New("bond not found")

// ID identifies a single issued bond (the registry's issue number).
type ID uint64

// Address identifies an institution or investor account.
type Address string

// IsZero reports whether a is the null address: empty, or made only of zero
// digits with an optional 0x prefix.
func (a Address) IsZero() bool {
	s := strings.TrimPrefix(strings.TrimSpace(string(a)), "0x")
	return strings.Trim(s, "0") == ""
}

func (a Address) String() string { return string(a) }

// Status is the registry-side lifecycle of a bond.
type Status string

const (
	StatusIssued   Status = "issued"
	StatusMatured  Status = "matured"
	StatusRedeemed Status = "redeemed"
)

// Bond carries the immutable terms of an issued debenture.
type Bond struct {
	ID           ID        `json:"id"`
	Denomination int64     `json:"denomination"`  // face value, minor units
	InterestRate int64     `json:"interest_rate"` // whole percent per period
	Frequency    int64     `json:"frequency"`     // number of scheduled periods
	IssueDate    time.Time `json:"issue_date"`
	MaturityDate time.Time `json:"maturity_date"`
	Status       Status    `json:"status"`
}

// Validate checks the structural invariants of the terms.
func (b *Bond) Validate() error {
	if b.Frequency <= 0 {
		return errors.New("frequency must be positive")
	}
	if !b.MaturityDate.After(b.IssueDate) {
		return errors.New("maturity date must be after issue date")
	}
	if b.Denomination < 0 {
		return errors.New("denomination must not be negative")
	}
	if b.PeriodDuration() <= 0 {
		return errors.New("term too short for the number of periods")
	}
	return nil
}

// PeriodDuration is the time between two scheduled payments, computed in
// whole seconds with the remainder dropped.
func (b *Bond) PeriodDuration() time.Duration {
	term := b.MaturityDate.Unix() - b.IssueDate.Unix()
	return time.Duration(term/b.Frequency) * time.Second
}

// PrincipalPerPeriod is the face value repaid each period. The remainder of
// the integer division is never paid.
func (b *Bond) PrincipalPerPeriod() int64 {
	return b.Denomination / b.Frequency
}

// TermsProvider is the read-only view of the bond registry.
type TermsProvider interface {
	// Bond returns the terms of id, or ErrNotFound.
	Bond(ctx context.Context, id ID) (*Bond, error)
	// InvestorOf returns the current investor-of-record. A zero Address means
	// the bond has no owner.
	InvestorOf(ctx context.Context, id ID) (Address, error)
	// Institution returns the issuing institution allowed to trigger payouts.
	Institution(ctx context.Context) (Address, error)
}

// Lister is implemented by registries that can enumerate issued bonds.
type Lister interface {
	BondIDs(ctx context.Context) ([]ID, error)
}

// IndexOracle supplies the inflation index, scaled by IndexScale.
type IndexOracle interface {
	// Accumulated returns the current point-in-time accumulated index.
	Accumulated(ctx context.Context) (int64, error)
	// Factor returns the index ratio between two instants.
	Factor(ctx context.Context, from, to time.Time) (int64, error)
}
