// Package oracle provides the inflation index sources consumed by the
// amortization engine. Values are fixed-point, scaled by bond.IndexScale.
package oracle

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Info is a reporting snapshot of an index source.
type Info struct {
	Accumulated int64           `json:"accumulated"`
	Monthly     decimal.Decimal `json:"monthly_value"`
	LastUpdate  time.Time       `json:"last_update"`
	IsUpdated   bool            `json:"is_updated"`
}

// Reporter is implemented by oracles that can describe their current state.
type Reporter interface {
	Info(ctx context.Context) (*Info, error)
}
