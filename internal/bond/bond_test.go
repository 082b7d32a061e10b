package bond_test

import (
	"testing"
	"time"

	"github.com/jmerrifield20/debenture/internal/bond"
)

func TestDerivedTerms(t *testing.T) {
	issue := time.Unix(1_700_000_000, 0).UTC()
	b := &bond.Bond{
		Denomination: 1205,
		InterestRate: 5,
		Frequency:    12,
		IssueDate:    issue,
		MaturityDate: issue.Add(360*24*time.Hour + 7*time.Second),
	}

	if got := b.PrincipalPerPeriod(); got != 100 {
		t.Errorf("PrincipalPerPeriod: got %d, want 100 (remainder dropped)", got)
	}
	if got, want := b.PeriodDuration(), 30*24*time.Hour; got != want {
		t.Errorf("PeriodDuration: got %s, want %s", got, want)
	}
	if err := b.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestValidate_rejectsBadTerms(t *testing.T) {
	issue := time.Unix(1_700_000_000, 0).UTC()
	cases := map[string]bond.Bond{
		"zero frequency":     {Frequency: 0, IssueDate: issue, MaturityDate: issue.Add(time.Hour)},
		"maturity not after": {Frequency: 1, IssueDate: issue, MaturityDate: issue},
		"sub-second periods": {Frequency: 10, IssueDate: issue, MaturityDate: issue.Add(5 * time.Second)},
	}
	for name, b := range cases {
		b := b
		if err := b.Validate(); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestAddress_IsZero(t *testing.T) {
	for _, a := range []bond.Address{"", "0x", "0x0000", "000", "  "} {
		if !a.IsZero() {
			t.Errorf("%q should be zero", a)
		}
	}
	for _, a := range []bond.Address{"GINVESTOR", "0x01", "10"} {
		if a.IsZero() {
			t.Errorf("%q should not be zero", a)
		}
	}
}
