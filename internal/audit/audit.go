// Package audit keeps a hash-chained, append-only trail of committed
// payouts and ownership transfers.
//
// The chain begins with a genesis entry whose Hash equals GenesisHash (64 hex
// zeros). Every later entry records the SHA-256 of its predecessor, so any
// rewrite of history is detected by Verify.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/jmerrifield20/debenture/internal/bond"
)

// GenesisHash is the hash of the genesis entry and the trust anchor of the
// chain.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

const (
	genesisEvent = "genesis"
	systemActor  = "debenture-system"
)

// Entry is a single audit record.
type Entry struct {
	Index     int          `json:"index"`
	Timestamp time.Time    `json:"timestamp"`
	Event     string       `json:"event"`   // payout.settled, payout.redeemed, ledger.transferred
	BondID    bond.ID      `json:"bond_id"` // zero for genesis
	Subject   bond.Address `json:"subject"` // investor credited, or the buyer of a transfer
	DataHash  string       `json:"data_hash"`
	PrevHash  string       `json:"prev_hash"`
	Hash      string       `json:"hash"`
}

// Log is the append-only audit chain. MemoryLog and PostgresLog implement it.
type Log interface {
	// Append adds an entry chained to the tail. payload is JSON-marshalled
	// and its SHA-256 stored as DataHash.
	Append(ctx context.Context, event string, bondID bond.ID, subject bond.Address, payload any) (*Entry, error)

	// Get returns the entry at the zero-based index.
	Get(ctx context.Context, index int) (*Entry, error)

	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]*Entry, error)

	// Len returns the number of entries including genesis.
	Len(ctx context.Context) (int, error)

	// Verify walks the chain and returns nil if it is intact.
	Verify(ctx context.Context) error

	// Root returns the hash of the chain tip.
	Root(ctx context.Context) (string, error)
}

// hashEntry computes the SHA-256 over an entry's fields. Never called on
// genesis.
func hashEntry(e *Entry) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%s|%d|%s|%s|%s",
		e.Index, e.Timestamp.Format(time.RFC3339Nano),
		e.Event, e.BondID, e.Subject, e.DataHash, e.PrevHash,
	)
	return hex.EncodeToString(h.Sum(nil))
}

func sha256Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// verifyLink checks curr against its predecessor (nil for genesis).
func verifyLink(prev, curr *Entry) error {
	if prev == nil {
		if curr.Hash != GenesisHash {
			return fmt.Errorf("genesis entry has wrong hash: got %q", curr.Hash)
		}
		return nil
	}
	if curr.PrevHash != prev.Hash {
		return fmt.Errorf("hash chain broken at index %d", curr.Index)
	}
	if curr.Hash != hashEntry(curr) {
		return fmt.Errorf("entry %d has invalid hash", curr.Index)
	}
	return nil
}

func recentLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 50
	}
	return limit
}
