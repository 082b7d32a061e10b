package main

import (
	"context"
	"testing"
	"time"

	"github.com/jmerrifield20/debenture/internal/bond"
	"github.com/jmerrifield20/debenture/internal/registry"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func TestSeedBonds(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("bonds", []map[string]any{{
		"id":            7,
		"denomination":  1200,
		"interest_rate": 5,
		"frequency":     12,
		"issue_date":    "2024-01-01",
		"maturity_date": "2024-12-26T00:00:00Z",
		"investor":      "0xALICE",
	}})

	reg := registry.NewMemoryRegistry("0xBANK")
	if err := seedBonds(context.Background(), reg, zap.NewNop()); err != nil {
		t.Fatalf("seedBonds: %v", err)
	}

	b, err := reg.Bond(context.Background(), 7)
	if err != nil {
		t.Fatalf("Bond: %v", err)
	}
	if !b.IssueDate.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) || b.Frequency != 12 {
		t.Errorf("bond = %+v", b)
	}
	if inv, _ := reg.InvestorOf(context.Background(), 7); inv != bond.Address("0xALICE") {
		t.Errorf("investor = %q", inv)
	}
}

func TestSeedBonds_badDate(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("bonds", []map[string]any{{"id": 1, "frequency": 1, "issue_date": "yesterday", "maturity_date": "2024-01-02"}})

	if err := seedBonds(context.Background(), registry.NewMemoryRegistry("0xBANK"), zap.NewNop()); err == nil {
		t.Fatal("expected error for unparseable issue_date")
	}
}

func TestContainsWildcard(t *testing.T) {
	if !containsWildcard([]string{"http://a", " * "}) {
		t.Error("wildcard not detected")
	}
	if containsWildcard([]string{"http://a"}) {
		t.Error("false wildcard")
	}
}

func TestCheckAuthSettings(t *testing.T) {
	tests := []struct {
		name        string
		secret      string
		marketToken string
		openMode    bool
		wantErr     bool
	}{
		{"all credentials", "s3cret", "tok", false, false},
		{"missing jwt secret", "", "tok", false, true},
		{"missing market token", "s3cret", "", false, true},
		{"nothing configured", "", "", false, true},
		{"explicit open mode", "", "", true, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := checkAuthSettings(tc.secret, tc.marketToken, tc.openMode)
			if (err != nil) != tc.wantErr {
				t.Errorf("checkAuthSettings() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
