package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/jmerrifield20/debenture/internal/bond"
)

// MemoryRegistry is an in-memory, thread-safe Registry.
type MemoryRegistry struct {
	mu          sync.RWMutex
	bonds       map[bond.ID]bond.Bond
	investors   map[bond.ID]bond.Address
	institution bond.Address
}

// NewMemoryRegistry creates an empty MemoryRegistry.
func NewMemoryRegistry(institution bond.Address) *MemoryRegistry {
	return &MemoryRegistry{
		bonds:       make(map[bond.ID]bond.Bond),
		investors:   make(map[bond.ID]bond.Address),
		institution: institution,
	}
}

// Bond implements bond.TermsProvider. The returned value is a copy.
func (r *MemoryRegistry) Bond(_ context.Context, id bond.ID) (*bond.Bond, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bonds[id]
	if !ok {
		return nil, bond.ErrNotFound
	}
	return &b, nil
}

// InvestorOf implements bond.TermsProvider.
func (r *MemoryRegistry) InvestorOf(_ context.Context, id bond.ID) (bond.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.bonds[id]; !ok {
		return "", bond.ErrNotFound
	}
	return r.investors[id], nil
}

// Institution implements bond.TermsProvider.
func (r *MemoryRegistry) Institution(context.Context) (bond.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.institution, nil
}

// BondIDs implements bond.Lister. Only bonds still in the issued state are
// listed, in ascending order.
func (r *MemoryRegistry) BondIDs(context.Context) ([]bond.ID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]bond.ID, 0, len(r.bonds))
	for id, b := range r.bonds {
		if b.Status == bond.StatusIssued || b.Status == "" {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Put implements Registry.
func (r *MemoryRegistry) Put(_ context.Context, b *bond.Bond, investor bond.Address) error {
	if err := b.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bonds[b.ID] = *b
	r.investors[b.ID] = investor
	return nil
}

// SetInvestor implements Registry.
func (r *MemoryRegistry) SetInvestor(_ context.Context, id bond.ID, investor bond.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bonds[id]; !ok {
		return bond.ErrNotFound
	}
	r.investors[id] = investor
	return nil
}

// SetInstitution implements Registry.
func (r *MemoryRegistry) SetInstitution(_ context.Context, institution bond.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.institution = institution
	return nil
}
