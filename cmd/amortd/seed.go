package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jmerrifield20/debenture/internal/bond"
	"github.com/jmerrifield20/debenture/internal/registry"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// seedBond is one entry of the "bonds" config list.
type seedBond struct {
	ID           uint64 `mapstructure:"id"`
	Denomination int64  `mapstructure:"denomination"`
	InterestRate int64  `mapstructure:"interest_rate"`
	Frequency    int64  `mapstructure:"frequency"`
	IssueDate    string `mapstructure:"issue_date"`
	MaturityDate string `mapstructure:"maturity_date"`
	Investor     string `mapstructure:"investor"`
}

func (s seedBond) toBond() (*bond.Bond, error) {
	issue, err := parseDate(s.IssueDate)
	if err != nil {
		return nil, fmt.Errorf("bond %d issue_date: %w", s.ID, err)
	}
	maturity, err := parseDate(s.MaturityDate)
	if err != nil {
		return nil, fmt.Errorf("bond %d maturity_date: %w", s.ID, err)
	}
	return &bond.Bond{
		ID:           bond.ID(s.ID),
		Denomination: s.Denomination,
		InterestRate: s.InterestRate,
		Frequency:    s.Frequency,
		IssueDate:    issue,
		MaturityDate: maturity,
		Status:       bond.StatusIssued,
	}, nil
}

// parseDate accepts RFC 3339 timestamps or plain dates (midnight UTC).
func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	return time.Parse("2006-01-02", raw)
}

// seedBonds registers the bonds listed in config. Existing bonds with the
// same id are overwritten.
func seedBonds(ctx context.Context, reg registry.Registry, logger *zap.Logger) error {
	var seeds []seedBond
	if err := viper.UnmarshalKey("bonds", &seeds); err != nil {
		return fmt.Errorf("decode bonds: %w", err)
	}
	for _, s := range seeds {
		b, err := s.toBond()
		if err != nil {
			return err
		}
		if err := reg.Put(ctx, b, bond.Address(s.Investor)); err != nil {
			return fmt.Errorf("register bond %d: %w", s.ID, err)
		}
		logger.Info("bond registered",
			zap.Uint64("bond_id", s.ID),
			zap.String("investor", s.Investor),
			zap.Int64("frequency", s.Frequency),
		)
	}
	return nil
}
