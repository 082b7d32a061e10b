package audit_test

import (
	"context"
	"testing"

	"github.com/jmerrifield20/debenture/internal/amortization"
	"github.com/jmerrifield20/debenture/internal/audit"
	"github.com/jmerrifield20/debenture/internal/bond"
	"go.uber.org/zap"
)

var ctx = context.Background()

func TestNewMemoryLog_genesisEntry(t *testing.T) {
	l := audit.NewMemoryLog()

	n, err := l.Len(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 genesis entry, got %d", n)
	}

	entry, err := l.Get(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if entry.Event != "genesis" || entry.Hash != audit.GenesisHash {
		t.Errorf("genesis = %+v", entry)
	}
	if root, _ := l.Root(ctx); root != audit.GenesisHash {
		t.Errorf("Root() on genesis-only: got %q", root)
	}
	if err := l.Verify(ctx); err != nil {
		t.Errorf("Verify() on genesis-only chain: %v", err)
	}
}

func TestAppend_chainsCorrectly(t *testing.T) {
	l := audit.NewMemoryLog()

	e1, err := l.Append(ctx, amortization.EventSettled, 1, "0xALICE", map[string]string{"amount": "311.625"})
	if err != nil {
		t.Fatal(err)
	}
	e2, err := l.Append(ctx, amortization.EventTransferred, 1, "0xBOB", nil)
	if err != nil {
		t.Fatal(err)
	}

	if e2.PrevHash != e1.Hash {
		t.Errorf("chain broken: e2.PrevHash=%q, want %q", e2.PrevHash, e1.Hash)
	}
	if e1.Index != 1 || e2.Index != 2 {
		t.Errorf("indexes = %d, %d", e1.Index, e2.Index)
	}
	if root, _ := l.Root(ctx); root != e2.Hash {
		t.Errorf("Root() = %q, want %q", root, e2.Hash)
	}
	if err := l.Verify(ctx); err != nil {
		t.Errorf("Verify() on valid chain: %v", err)
	}

	recent, _ := l.Recent(ctx, 2)
	if len(recent) != 2 || recent[0].Index != 2 || recent[1].Index != 1 {
		t.Errorf("Recent = %+v", recent)
	}
}

func TestGet_returnsCopy(t *testing.T) {
	l := audit.NewMemoryLog()
	_, _ = l.Append(ctx, amortization.EventSettled, 1, "0xALICE", nil)

	e, _ := l.Get(ctx, 1)
	e.Subject = "0xMALLORY"

	if err := l.Verify(ctx); err != nil {
		t.Errorf("mutating a returned entry must not affect the chain: %v", err)
	}
}

func TestRecorder_appendsEngineEvents(t *testing.T) {
	l := audit.NewMemoryLog()
	var n amortization.Notifier = audit.NewRecorder(l, zap.NewNop())

	n.Dispatch(ctx, amortization.EventRedeemed, map[string]string{"bond_id": "7", "investor": "0xALICE"})
	n.Dispatch(ctx, amortization.EventTransferred, map[string]string{"bond_id": "7", "from": "0xALICE", "to": "0xBOB"})

	redeemed, _ := l.Get(ctx, 1)
	if redeemed.BondID != bond.ID(7) || redeemed.Subject != "0xALICE" || redeemed.Event != amortization.EventRedeemed {
		t.Errorf("redeem entry = %+v", redeemed)
	}
	moved, _ := l.Get(ctx, 2)
	if moved.Subject != "0xBOB" {
		t.Errorf("transfer subject = %q, want buyer", moved.Subject)
	}
}
