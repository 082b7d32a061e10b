package amortization

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestWithholdingRate(t *testing.T) {
	issue := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		held time.Duration
		want string
	}{
		{0, "0.225"},
		{180*day - time.Second, "0.225"},
		{180 * day, "0.2"},
		{360 * day, "0.2"},
		{360*day + time.Second, "0.175"},
		{720 * day, "0.175"},
		{720*day + time.Second, "0.15"},
		{3000 * day, "0.15"},
	}
	for _, tt := range tests {
		if got := WithholdingRate(issue, issue.Add(tt.held)); got.String() != tt.want {
			t.Errorf("held %s: got %s, want %s", tt.held, got, tt.want)
		}
	}
}

func TestNetOfTax(t *testing.T) {
	got := netOfTax(decimal.NewFromInt(5), decimal.RequireFromString("0.225"))
	if got.String() != "3.875" {
		t.Errorf("got %s, want 3.875", got)
	}
}
