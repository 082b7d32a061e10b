package oracle

import (
	"context"
	"time"

	"github.com/jmerrifield20/debenture/internal/bond"
	"github.com/shopspring/decimal"
)

// Static is an oracle that always reports the same accumulated index and a
// neutral factor. It backs tests and deployments without an index feed.
type Static struct {
	accumulated int64
	factor      int64
	since       time.Time
}

// NewStatic returns a Static oracle. A non-positive accumulated value means
// no inflation.
func NewStatic(accumulated int64) *Static {
	if accumulated <= 0 {
		accumulated = bond.IndexScale
	}
	return &Static{accumulated: accumulated, factor: bond.IndexScale, since: time.Now().UTC()}
}

// WithFactor sets the value returned by Factor.
func (s *Static) WithFactor(factor int64) *Static {
	s.factor = factor
	return s
}

// Accumulated implements bond.IndexOracle.
func (s *Static) Accumulated(context.Context) (int64, error) { return s.accumulated, nil }

// Factor implements bond.IndexOracle.
func (s *Static) Factor(context.Context, time.Time, time.Time) (int64, error) { return s.factor, nil }

// Info implements Reporter.
func (s *Static) Info(context.Context) (*Info, error) {
	return &Info{
		Accumulated: s.accumulated,
		Monthly:     decimal.Zero,
		LastUpdate:  s.since,
		IsUpdated:   true,
	}, nil
}
