// Package registry stores issued bonds, their investors-of-record and the
// issuing institution. It is the system's implementation of
// bond.TermsProvider.
//
// Two implementations are provided:
//   - MemoryRegistry: in-process, for tests and single-node demos.
//   - PostgresRegistry: durable, backed by the bonds and registry_settings tables.
package registry

import (
	"context"

	"github.com/jmerrifield20/debenture/internal/bond"
)

// Registry is the read/write view of the bond registry used by the daemon.
type Registry interface {
	bond.TermsProvider
	bond.Lister

	// Put creates or replaces the terms of b and records investor as its holder.
	Put(ctx context.Context, b *bond.Bond, investor bond.Address) error
	// SetInvestor changes the investor-of-record of an existing bond.
	SetInvestor(ctx context.Context, id bond.ID, investor bond.Address) error
	// SetInstitution records the address allowed to trigger payouts.
	SetInstitution(ctx context.Context, institution bond.Address) error
}

const institutionKey = "institution"
