package amortization_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmerrifield20/debenture/internal/amortization"
	"github.com/jmerrifield20/debenture/internal/bond"
	"github.com/jmerrifield20/debenture/internal/ledger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	institution = bond.Address("0xINSTITUTION")
	alice       = bond.Address("0xALICE")
	bob         = bond.Address("0xBOB")
	day         = 24 * time.Hour
)

var issue = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// ── fakes ─────────────────────────────────────────────────────────────────

type fakeTerms struct {
	bonds     map[bond.ID]*bond.Bond
	investors map[bond.ID]bond.Address
	err       error
}

func (f *fakeTerms) Bond(_ context.Context, id bond.ID) (*bond.Bond, error) {
	if f.err != nil {
		return nil, f.err
	}
	b, ok := f.bonds[id]
	if !ok {
		return nil, bond.ErrNotFound
	}
	return b, nil
}

func (f *fakeTerms) InvestorOf(_ context.Context, id bond.ID) (bond.Address, error) {
	if _, ok := f.bonds[id]; !ok {
		return "", bond.ErrNotFound
	}
	return f.investors[id], nil
}

func (f *fakeTerms) Institution(context.Context) (bond.Address, error) {
	return institution, nil
}

type fakeOracle struct {
	accumulated int64
	factor      int64
	err         error
	calls       int
}

func (f *fakeOracle) Accumulated(context.Context) (int64, error) {
	f.calls++
	return f.accumulated, f.err
}

func (f *fakeOracle) Factor(context.Context, time.Time, time.Time) (int64, error) {
	f.calls++
	return f.factor, f.err
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type recordedEvent struct {
	eventType string
	payload   map[string]string
}

type fakeNotifier struct{ events []recordedEvent }

func (n *fakeNotifier) Dispatch(_ context.Context, eventType string, payload map[string]string) {
	n.events = append(n.events, recordedEvent{eventType, payload})
}

type fakeMetrics struct {
	payouts    int
	rejections map[string]int
}

func (m *fakeMetrics) ObservePayout(ledger.ReceiptKind, int64, decimal.Decimal) { m.payouts++ }

func (m *fakeMetrics) ObserveRejection(_ string, reason string) {
	if m.rejections == nil {
		m.rejections = map[string]int{}
	}
	m.rejections[reason]++
}

// ownerBook records new owners into the fake terms, or fails with err.
type ownerBook struct {
	terms *fakeTerms
	err   error
}

func (o *ownerBook) SetInvestor(_ context.Context, id bond.ID, investor bond.Address) error {
	if o.err != nil {
		return o.err
	}
	o.terms.investors[id] = investor
	return nil
}

// ── harness ───────────────────────────────────────────────────────────────

type harness struct {
	engine *amortization.Engine
	terms  *fakeTerms
	oracle *fakeOracle
	store  *ledger.MemoryStore
	clock  *manualClock
	notify *fakeNotifier
	stats  *fakeMetrics
}

// newHarness registers bond 1: 1200 face value over 12 periods of 30 days at
// 5% per period, held by alice.
func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		terms: &fakeTerms{
			bonds: map[bond.ID]*bond.Bond{
				1: {
					ID:           1,
					Denomination: 1200,
					InterestRate: 5,
					Frequency:    12,
					IssueDate:    issue,
					MaturityDate: issue.Add(360 * day),
					Status:       bond.StatusIssued,
				},
			},
			investors: map[bond.ID]bond.Address{1: alice},
		},
		oracle: &fakeOracle{accumulated: bond.IndexScale, factor: bond.IndexScale},
		store:  ledger.NewMemoryStore(),
		clock:  &manualClock{now: issue},
		notify: &fakeNotifier{},
		stats:  &fakeMetrics{},
	}
	h.engine = amortization.NewEngine(h.terms, h.oracle, h.store, h.clock, zap.NewNop())
	h.engine.SetNotifier(h.notify)
	h.engine.SetMetrics(h.stats)
	return h
}

func (h *harness) entry(t *testing.T, investor bond.Address) (ledger.Entry, bool) {
	t.Helper()
	e, ok, err := h.engine.Entry(context.Background(), investor, 1)
	require.NoError(t, err)
	return e, ok
}

func (h *harness) balance(t *testing.T, investor bond.Address) string {
	t.Helper()
	b, err := h.engine.Balance(context.Background(), investor)
	require.NoError(t, err)
	return b.String()
}

// ── settle ────────────────────────────────────────────────────────────────

func TestSettle_threePeriodCatchUp(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.clock.Set(issue.Add(90*day + 5*time.Hour))

	s, err := h.engine.Settle(ctx, 1, institution)
	require.NoError(t, err)

	assert.Equal(t, int64(3), s.Periods)
	assert.Equal(t, "311.625", s.Amount.String())
	assert.Equal(t, int64(3), s.PaymentsMade)
	assert.Equal(t, int64(1200), s.RemainingPrincipal)
	assert.Equal(t, "0.225", s.TaxRate.String())
	assert.True(t, s.LastSettlement.Equal(issue.Add(90*day)), "last settlement must advance by whole periods, got %s", s.LastSettlement)

	e, ok := h.entry(t, alice)
	require.True(t, ok)
	assert.Equal(t, int64(3), e.PaymentsMade)
	assert.True(t, e.LastSettlement.Equal(issue.Add(90*day)))
	assert.Equal(t, "311.625", h.balance(t, alice))
	assert.Equal(t, 1, h.oracle.calls, "one index read per batch")

	receipts, err := h.engine.Receipts(ctx, alice, 10)
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	assert.Equal(t, s.ReceiptID, receipts[0].ID)
	assert.Equal(t, ledger.KindSettlement, receipts[0].Kind)

	require.Len(t, h.notify.events, 1)
	assert.Equal(t, amortization.EventSettled, h.notify.events[0].eventType)
	assert.Equal(t, "311.625", h.notify.events[0].payload["amount"])
	assert.Equal(t, 1, h.stats.payouts)
}

func TestSettle_appliesIndexCorrection(t *testing.T) {
	h := newHarness(t)
	h.oracle.accumulated = 1_050_000
	h.clock.Set(issue.Add(30 * day))

	s, err := h.engine.Settle(context.Background(), 1, institution)
	require.NoError(t, err)
	// correction 105, gross 5.25, net 4.06875
	assert.Equal(t, "109.06875", s.Amount.String())
	assert.Equal(t, int64(1_050_000), s.Index)
}

func TestSettle_noPeriodElapsedLeavesStateUntouched(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.clock.Set(issue.Add(30*day - time.Second))
	_, err := h.engine.Settle(ctx, 1, institution)
	assert.ErrorIs(t, err, amortization.ErrNoPeriodElapsed)

	_, ok := h.entry(t, alice)
	assert.False(t, ok, "a rejected call must not create the entry")
	assert.Equal(t, "0", h.balance(t, alice))

	h.clock.Set(issue.Add(30 * day))
	_, err = h.engine.Settle(ctx, 1, institution)
	require.NoError(t, err)

	// Immediately again: the next period has not started.
	_, err = h.engine.Settle(ctx, 1, institution)
	assert.ErrorIs(t, err, amortization.ErrNoPeriodElapsed)
	e, _ := h.entry(t, alice)
	assert.Equal(t, int64(1), e.PaymentsMade)
	assert.Equal(t, "103.875", h.balance(t, alice))
	assert.Equal(t, 2, h.stats.rejections["no_period_elapsed"])
}

func TestSettle_batchIsCappedAtFrequency(t *testing.T) {
	h := newHarness(t)
	h.clock.Set(issue.Add(5000 * day))

	s, err := h.engine.Settle(context.Background(), 1, institution)
	require.NoError(t, err)
	assert.Equal(t, int64(12), s.Periods)
	assert.Equal(t, int64(12), s.PaymentsMade)
	assert.True(t, s.LastSettlement.Equal(issue.Add(360*day)))

	_, err = h.engine.Settle(context.Background(), 1, institution)
	assert.ErrorIs(t, err, amortization.ErrAlreadyFullyAmortized)
	assert.True(t, amortization.IsPermanent(err))
}

func TestSettle_taxTierBoundary(t *testing.T) {
	tests := []struct {
		name    string
		at      time.Duration
		periods int64
		rate    string
		amount  string
	}{
		// 60-day periods; net interest is 5 × (1 − rate) per period.
		{"one second before day 180", 180*day - time.Second, 2, "0.225", "207.75"},
		{"exactly day 180", 180 * day, 3, "0.2", "312"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.terms.bonds[1].MaturityDate = issue.Add(720 * day)
			h.clock.Set(issue.Add(tt.at))

			s, err := h.engine.Settle(context.Background(), 1, institution)
			require.NoError(t, err)
			assert.Equal(t, tt.periods, s.Periods)
			assert.Equal(t, tt.rate, s.TaxRate.String())
			assert.Equal(t, tt.amount, s.Amount.String())
		})
	}
}

func TestSettle_paymentsMadeIsMonotonic(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	steps := []time.Duration{10 * day, 25 * day, 31 * day, 1 * day, 95 * day, 40 * day, 200 * day, 30 * day}

	var (
		prev int64
		now  = issue
	)
	for _, step := range steps {
		now = now.Add(step)
		h.clock.Set(now)
		_, err := h.engine.Settle(ctx, 1, institution)
		if err != nil && !errors.Is(err, amortization.ErrNoPeriodElapsed) && !errors.Is(err, amortization.ErrAlreadyFullyAmortized) {
			t.Fatalf("unexpected error at %s: %v", now, err)
		}
		got, err := h.engine.PaymentsMade(ctx, alice, 1)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, got, prev)
		assert.LessOrEqual(t, got, int64(12))
		prev = got
	}
	assert.Equal(t, int64(12), prev)
	assert.Equal(t, "1248.125", h.balance(t, alice))
}

func TestSettle_preconditionOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("unauthorized before bond lookup", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.engine.Settle(ctx, 99, alice)
		assert.ErrorIs(t, err, amortization.ErrUnauthorized)
	})
	t.Run("zero caller is unauthorized", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.engine.Settle(ctx, 1, "0x0000")
		assert.ErrorIs(t, err, amortization.ErrUnauthorized)
	})
	t.Run("unknown bond", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.engine.Settle(ctx, 99, institution)
		assert.ErrorIs(t, err, amortization.ErrBondNotFound)
	})
	t.Run("bond without investor", func(t *testing.T) {
		h := newHarness(t)
		h.terms.investors[1] = ""
		_, err := h.engine.Settle(ctx, 1, institution)
		assert.ErrorIs(t, err, amortization.ErrInvalidInvestor)
	})
	t.Run("degenerate terms", func(t *testing.T) {
		h := newHarness(t)
		h.terms.bonds[1].Frequency = 0
		_, err := h.engine.Settle(ctx, 1, institution)
		assert.ErrorIs(t, err, amortization.ErrInvalidTerms)
	})
	t.Run("registry failure is internal", func(t *testing.T) {
		h := newHarness(t)
		h.terms.err = errors.New("registry down")
		_, err := h.engine.Settle(ctx, 1, institution)
		require.Error(t, err)
		assert.Equal(t, "internal", amortization.Reason(err))
	})
}

func TestSettle_oracleFailureAborts(t *testing.T) {
	h := newHarness(t)
	h.oracle.err = errors.New("oracle unavailable")
	h.clock.Set(issue.Add(60 * day))

	_, err := h.engine.Settle(context.Background(), 1, institution)
	require.Error(t, err)

	_, ok := h.entry(t, alice)
	assert.False(t, ok)
	assert.Equal(t, "0", h.balance(t, alice))
	assert.Empty(t, h.notify.events)
}

// ── redeem ────────────────────────────────────────────────────────────────

func TestRedeemEarly_proRataPayout(t *testing.T) {
	h := newHarness(t)
	h.clock.Set(issue.Add(15 * day))

	s, err := h.engine.RedeemEarly(context.Background(), 1, institution)
	require.NoError(t, err)
	// half a period at 5% on 1200 = 30, net of 22.5% = 23.25
	assert.Equal(t, "1223.25", s.Amount.String())
	assert.Equal(t, int64(12), s.PaymentsMade)
	assert.Equal(t, int64(12), s.Periods)
	assert.Equal(t, ledger.KindRedemption, s.Kind)
	assert.Equal(t, "1223.25", h.balance(t, alice))
}

func TestRedeemEarly_withIndexFactor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.clock.Set(issue.Add(30 * day))
	_, err := h.engine.Settle(ctx, 1, institution)
	require.NoError(t, err)

	h.oracle.factor = 1_010_000
	h.clock.Set(issue.Add(45 * day))
	s, err := h.engine.RedeemEarly(ctx, 1, institution)
	require.NoError(t, err)

	// remaining 1100, correction 1, pct 2.5 → due 27.525, net 21.331875
	assert.Equal(t, int64(1100), s.RemainingPrincipal)
	assert.Equal(t, "1122.331875", s.Amount.String())
	assert.Equal(t, int64(11), s.Periods)
}

func TestRedeemEarly_isTerminal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.clock.Set(issue.Add(95 * day))
	_, err := h.engine.Settle(ctx, 1, institution)
	require.NoError(t, err)

	h.clock.Set(issue.Add(100 * day))
	_, err = h.engine.RedeemEarly(ctx, 1, institution)
	require.NoError(t, err)

	e, _ := h.entry(t, alice)
	assert.Equal(t, int64(12), e.PaymentsMade)
	balance := h.balance(t, alice)

	h.clock.Set(issue.Add(400 * day))
	_, err = h.engine.Settle(ctx, 1, institution)
	assert.ErrorIs(t, err, amortization.ErrAlreadyFullyAmortized)
	_, err = h.engine.RedeemEarly(ctx, 1, institution)
	assert.ErrorIs(t, err, amortization.ErrAlreadyFullyAmortized)
	assert.Equal(t, balance, h.balance(t, alice))
}

func TestRedeemEarly_requiresElapsedTime(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.RedeemEarly(ctx, 1, institution)
	assert.ErrorIs(t, err, amortization.ErrInvalidRedemptionTime)

	h.clock.Set(issue.Add(30 * day))
	_, err = h.engine.Settle(ctx, 1, institution)
	require.NoError(t, err)
	_, err = h.engine.RedeemEarly(ctx, 1, institution)
	assert.ErrorIs(t, err, amortization.ErrInvalidRedemptionTime)

	e, _ := h.entry(t, alice)
	assert.Equal(t, int64(1), e.PaymentsMade)
}

func TestRedeemEarly_oracleFailureAborts(t *testing.T) {
	h := newHarness(t)
	h.oracle.err = errors.New("oracle unavailable")
	h.clock.Set(issue.Add(10 * day))

	_, err := h.engine.RedeemEarly(context.Background(), 1, institution)
	require.Error(t, err)
	_, ok := h.entry(t, alice)
	assert.False(t, ok)
}

// ── transfer ──────────────────────────────────────────────────────────────

func TestTransferState_movesEntryAndResetsClock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.clock.Set(issue.Add(95 * day))
	_, err := h.engine.Settle(ctx, 1, institution)
	require.NoError(t, err)
	balance := h.balance(t, alice)

	sale := issue.Add(110 * day)
	h.clock.Set(sale)
	moved, err := h.engine.TransferState(ctx, 1, alice, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(3), moved.PaymentsMade)

	_, ok := h.entry(t, alice)
	assert.False(t, ok, "seller entry must be removed")
	last, err := h.engine.LastSettlement(ctx, alice, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), last.Unix())

	e, ok := h.entry(t, bob)
	require.True(t, ok)
	assert.Equal(t, int64(3), e.PaymentsMade)
	assert.True(t, e.LastSettlement.Equal(sale))

	assert.Equal(t, balance, h.balance(t, alice), "no payout at transfer")
	assert.Equal(t, "0", h.balance(t, bob))

	// The new holder's next period is measured from the sale.
	h.terms.investors[1] = bob
	h.clock.Set(sale.Add(30*day - time.Second))
	_, err = h.engine.Settle(ctx, 1, institution)
	assert.ErrorIs(t, err, amortization.ErrNoPeriodElapsed)
	h.clock.Set(sale.Add(30 * day))
	s, err := h.engine.Settle(ctx, 1, institution)
	require.NoError(t, err)
	assert.Equal(t, bob, s.Investor)
	assert.Equal(t, int64(4), s.PaymentsMade)
}

func TestTransferState_unknownSellerStartsFresh(t *testing.T) {
	h := newHarness(t)
	h.clock.Set(issue.Add(5 * day))

	moved, err := h.engine.TransferState(context.Background(), 1, alice, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(0), moved.PaymentsMade)
	assert.True(t, moved.LastSettlement.Equal(issue.Add(5*day)))
}

func TestTransferState_rejectsBadAddresses(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, tc := range []struct{ from, to bond.Address }{
		{alice, ""},
		{"", bob},
		{alice, alice},
	} {
		_, err := h.engine.TransferState(ctx, 1, tc.from, tc.to)
		assert.ErrorIs(t, err, amortization.ErrInvalidInvestor, "from=%q to=%q", tc.from, tc.to)
	}
}

func TestTransferState_completedScheduleStaysCompleted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.clock.Set(issue.Add(100 * day))
	_, err := h.engine.RedeemEarly(ctx, 1, institution)
	require.NoError(t, err)

	h.clock.Set(issue.Add(120 * day))
	moved, err := h.engine.TransferState(ctx, 1, alice, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(12), moved.PaymentsMade)
	h.terms.investors[1] = bob

	n, err := h.engine.PaymentsMade(ctx, bob, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)

	h.clock.Set(issue.Add(300 * day))
	_, err = h.engine.Settle(ctx, 1, institution)
	assert.ErrorIs(t, err, amortization.ErrAlreadyFullyAmortized)
	_, err = h.engine.RedeemEarly(ctx, 1, institution)
	assert.ErrorIs(t, err, amortization.ErrAlreadyFullyAmortized)
	assert.Equal(t, "0", h.balance(t, bob))
}

func TestTransferOwnership_movesEntryAndOwner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owners := &ownerBook{terms: h.terms}
	h.clock.Set(issue.Add(95 * day))
	_, err := h.engine.Settle(ctx, 1, institution)
	require.NoError(t, err)

	h.clock.Set(issue.Add(110 * day))
	moved, err := h.engine.TransferOwnership(ctx, 1, alice, bob, owners)
	require.NoError(t, err)
	assert.Equal(t, int64(3), moved.PaymentsMade)
	assert.Equal(t, bob, h.terms.investors[1])

	_, ok := h.entry(t, alice)
	assert.False(t, ok)
	require.Len(t, h.notify.events, 2)
	assert.Equal(t, amortization.EventTransferred, h.notify.events[1].eventType)
}

func TestTransferOwnership_rejectsSellerWhoIsNotOwner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owners := &ownerBook{terms: h.terms}
	h.clock.Set(issue.Add(95 * day))
	_, err := h.engine.Settle(ctx, 1, institution)
	require.NoError(t, err)

	_, err = h.engine.TransferOwnership(ctx, 1, bob, alice, owners)
	assert.ErrorIs(t, err, amortization.ErrNotInvestorOfRecord)
	assert.Equal(t, "not_investor_of_record", amortization.Reason(err))
	e, ok := h.entry(t, alice)
	require.True(t, ok)
	assert.Equal(t, int64(3), e.PaymentsMade)
	assert.Equal(t, alice, h.terms.investors[1])

	_, err = h.engine.TransferOwnership(ctx, 42, alice, bob, owners)
	assert.ErrorIs(t, err, amortization.ErrBondNotFound)
}

func TestTransferOwnership_failedOwnerUpdateKeepsSellerSchedule(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owners := &ownerBook{terms: h.terms, err: errors.New("registry unavailable")}
	h.clock.Set(issue.Add(95 * day))
	first, err := h.engine.Settle(ctx, 1, institution)
	require.NoError(t, err)
	require.Equal(t, "311.625", first.Amount.String())

	_, err = h.engine.TransferOwnership(ctx, 1, alice, bob, owners)
	require.Error(t, err)

	e, ok := h.entry(t, alice)
	require.True(t, ok, "seller entry must survive a failed transfer")
	assert.Equal(t, int64(3), e.PaymentsMade)
	_, ok = h.entry(t, bob)
	assert.False(t, ok)

	// The seller is still the owner and must not be paid the same periods again.
	_, err = h.engine.Settle(ctx, 1, institution)
	assert.ErrorIs(t, err, amortization.ErrNoPeriodElapsed)
	assert.Equal(t, "311.625", h.balance(t, alice))
}

// ── queries ───────────────────────────────────────────────────────────────

func TestSchedule(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.clock.Set(issue.Add(10 * day))

	s, err := h.engine.Schedule(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, alice, s.Investor)
	assert.Equal(t, int64(0), s.PaymentsMade)
	assert.Equal(t, 30*day, s.PeriodDuration)
	require.NotNil(t, s.NextDue)
	assert.True(t, s.NextDue.Equal(issue.Add(30*day)))
	assert.Equal(t, 20*day, s.TimeLeft)

	h.clock.Set(issue.Add(400 * day))
	_, err = h.engine.Settle(ctx, 1, institution)
	require.NoError(t, err)
	s, err = h.engine.Schedule(ctx, 1)
	require.NoError(t, err)
	assert.True(t, s.Completed)
	assert.Nil(t, s.NextDue)

	_, err = h.engine.Schedule(ctx, 42)
	assert.ErrorIs(t, err, amortization.ErrBondNotFound)
}

func TestPaymentsMade_defaultsToZero(t *testing.T) {
	h := newHarness(t)
	n, err := h.engine.PaymentsMade(context.Background(), bob, 1)
	require.NoError(t, err)
	assert.Zero(t, n)
}
