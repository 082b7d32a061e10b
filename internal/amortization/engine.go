// Package amortization pays scheduled principal-plus-interest installments
// and early-redemption payoffs for tokenized bonds, and moves per-holder
// schedule state when a bond changes hands.
//
// Every entry point runs as one ledger transaction: either the schedule
// entry, the investor balance and the payout receipt are all written, or
// nothing is.
package amortization

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/debenture/internal/bond"
	"github.com/jmerrifield20/debenture/internal/ledger"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Event types passed to the Notifier after a successful commit.
const (
	EventSettled     = "payout.settled"
	EventRedeemed    = "payout.redeemed"
	EventTransferred = "ledger.transferred"
)

// payoutScale is the number of decimal places kept on a redemption payout.
// Settlement payouts are exact and never need rounding.
const payoutScale = 6

var (
	hundred    = decimal.NewFromInt(100)
	indexScale = decimal.NewFromInt(bond.IndexScale)
)

// Notifier receives committed payout and transfer events.
// *webhooks.Dispatcher satisfies this interface.
type Notifier interface {
	Dispatch(ctx context.Context, eventType string, payload map[string]string)
}

// Notifiers fans an event out to each notifier in order.
type Notifiers []Notifier

// Dispatch implements Notifier.
func (ns Notifiers) Dispatch(ctx context.Context, eventType string, payload map[string]string) {
	for _, n := range ns {
		n.Dispatch(ctx, eventType, payload)
	}
}

// Metrics records engine outcomes. *handler.EngineMetrics satisfies it.
type Metrics interface {
	ObservePayout(kind ledger.ReceiptKind, periods int64, amount decimal.Decimal)
	ObserveRejection(op string, reason string)
}

// Settlement describes one committed payout.
type Settlement struct {
	ReceiptID      uuid.UUID          `json:"receipt_id"`
	Kind           ledger.ReceiptKind `json:"kind"`
	BondID         bond.ID            `json:"bond_id"`
	Investor       bond.Address       `json:"investor"`
	Periods        int64              `json:"periods"`
	Amount         decimal.Decimal    `json:"amount"`
	PaymentsMade   int64              `json:"payments_made"`
	Frequency      int64              `json:"frequency"`
	LastSettlement time.Time          `json:"last_settlement"`
	Index          int64              `json:"index"`
	TaxRate        decimal.Decimal    `json:"tax_rate"`
	SettledAt      time.Time          `json:"settled_at"`

	// RemainingPrincipal is the face value still outstanding before this
	// payout. Scheduled settlement reports it but does not pay from it.
	RemainingPrincipal int64 `json:"remaining_principal"`
}

// Schedule is the amortization position of a bond's current investor.
type Schedule struct {
	BondID         bond.ID       `json:"bond_id"`
	Investor       bond.Address  `json:"investor"`
	PaymentsMade   int64         `json:"payments_made"`
	Frequency      int64         `json:"frequency"`
	LastSettlement time.Time     `json:"last_settlement"`
	PeriodDuration time.Duration `json:"period_duration"`
	Completed      bool          `json:"completed"`
	NextDue        *time.Time    `json:"next_due,omitempty"`
	TimeLeft       time.Duration `json:"time_left"`
}

// Engine computes and applies scheduled settlements, early redemptions and
// ownership transfers.
type Engine struct {
	terms    bond.TermsProvider
	oracle   bond.IndexOracle
	store    ledger.Store
	clock    Clock
	notifier Notifier // nil = no notifications
	metrics  Metrics  // nil = no metrics
	logger   *zap.Logger
}

// NewEngine creates an Engine. A nil clock falls back to SystemClock.
func NewEngine(terms bond.TermsProvider, oracle bond.IndexOracle, store ledger.Store, clock Clock, logger *zap.Logger) *Engine {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Engine{
		terms:  terms,
		oracle: oracle,
		store:  store,
		clock:  clock,
		logger: logger,
	}
}

// SetNotifier configures where committed events are dispatched.
func (e *Engine) SetNotifier(n Notifier) {
	e.notifier = n
}

// SetMetrics configures the outcome recorder.
func (e *Engine) SetMetrics(m Metrics) {
	e.metrics = m
}

// position is the resolved, authorized context of a payout call.
type position struct {
	investor bond.Address
	key      ledger.Key
}

// authorize runs the checks shared by Settle and RedeemEarly that do not
// depend on ledger state: the caller must be the institution and the bond
// must exist with sane terms.
func (e *Engine) authorize(ctx context.Context, bondID bond.ID, caller bond.Address) (*bond.Bond, error) {
	institution, err := e.terms.Institution(ctx)
	if err != nil {
		return nil, fmt.Errorf("lookup institution: %w", err)
	}
	if caller.IsZero() || caller != institution {
		return nil, ErrUnauthorized
	}

	b, err := e.terms.Bond(ctx, bondID)
	if errors.Is(err, bond.ErrNotFound) {
		return nil, ErrBondNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup bond %d: %w", bondID, err)
	}
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTerms, err)
	}
	return b, nil
}

// locate resolves the investor-of-record inside tx, so the owner cannot
// change between the lookup and the entry write.
func (e *Engine) locate(ctx context.Context, tx ledger.Tx, bondID bond.ID) (*position, error) {
	investor, err := e.terms.InvestorOf(ledger.ContextWithTx(ctx, tx), bondID)
	if errors.Is(err, bond.ErrNotFound) {
		return nil, ErrBondNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup investor of bond %d: %w", bondID, err)
	}
	if investor.IsZero() {
		return nil, ErrInvalidInvestor
	}
	return &position{
		investor: investor,
		key:      ledger.Key{Investor: investor, BondID: bondID},
	}, nil
}

// loadEntry returns the stored entry for key, or the lazily created default
// anchored at the issue date.
func loadEntry(ctx context.Context, tx ledger.Tx, key ledger.Key, b *bond.Bond) (ledger.Entry, error) {
	entry, ok, err := tx.Entry(ctx, key)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("read ledger entry: %w", err)
	}
	if !ok {
		entry = ledger.Entry{PaymentsMade: 0, LastSettlement: b.IssueDate}
	}
	return entry, nil
}

// credit adds amount to the investor balance and journals the receipt.
func credit(ctx context.Context, tx ledger.Tx, r *ledger.Receipt) error {
	balance, err := tx.Balance(ctx, r.Investor)
	if err != nil {
		return fmt.Errorf("read balance: %w", err)
	}
	if err := tx.PutBalance(ctx, r.Investor, balance.Add(r.Amount)); err != nil {
		return err
	}
	return tx.AppendReceipt(ctx, r)
}

// Settle pays every scheduled period that has fully elapsed since the last
// settlement of the bond's current investor.
func (e *Engine) Settle(ctx context.Context, bondID bond.ID, caller bond.Address) (*Settlement, error) {
	s, err := e.settle(ctx, bondID, caller)
	if err != nil {
		e.reject("settle", bondID, caller, err)
		return nil, err
	}
	e.committed(ctx, EventSettled, s)
	return s, nil
}

func (e *Engine) settle(ctx context.Context, bondID bond.ID, caller bond.Address) (*Settlement, error) {
	b, err := e.authorize(ctx, bondID, caller)
	if err != nil {
		return nil, err
	}
	now := e.clock.Now()

	var out *Settlement
	err = e.store.Update(ctx, func(tx ledger.Tx) error {
		pos, err := e.locate(ctx, tx, bondID)
		if err != nil {
			return err
		}
		entry, err := loadEntry(ctx, tx, pos.key, b)
		if err != nil {
			return err
		}
		if entry.PaymentsMade >= b.Frequency {
			return ErrAlreadyFullyAmortized
		}

		periodDuration := b.PeriodDuration()
		periods := int64(now.Sub(entry.LastSettlement) / periodDuration)
		if remaining := b.Frequency - entry.PaymentsMade; periods > remaining {
			periods = remaining
		}
		if periods <= 0 {
			return ErrNoPeriodElapsed
		}

		index, err := e.oracle.Accumulated(ctx)
		if err != nil {
			return fmt.Errorf("query accumulated index: %w", err)
		}
		taxRate := WithholdingRate(b.IssueDate, now)

		total := decimal.Zero
		for i := entry.PaymentsMade; i < entry.PaymentsMade+periods; i++ {
			total = total.Add(remuneration(b, index, taxRate))
		}

		updated := ledger.Entry{
			PaymentsMade:   entry.PaymentsMade + periods,
			LastSettlement: entry.LastSettlement.Add(time.Duration(periods) * periodDuration),
		}
		if err := tx.PutEntry(ctx, pos.key, updated); err != nil {
			return err
		}

		receipt := &ledger.Receipt{
			ID:        uuid.New(),
			Investor:  pos.investor,
			BondID:    bondID,
			Kind:      ledger.KindSettlement,
			Periods:   periods,
			Amount:    total,
			Index:     index,
			TaxRate:   taxRate,
			CreatedAt: now,
		}
		if err := credit(ctx, tx, receipt); err != nil {
			return err
		}

		out = &Settlement{
			ReceiptID:          receipt.ID,
			Kind:               receipt.Kind,
			BondID:             bondID,
			Investor:           pos.investor,
			Periods:            periods,
			Amount:             total,
			PaymentsMade:       updated.PaymentsMade,
			Frequency:          b.Frequency,
			LastSettlement:     updated.LastSettlement,
			Index:              index,
			TaxRate:            taxRate,
			SettledAt:          now,
			RemainingPrincipal: b.Denomination - entry.PaymentsMade*b.PrincipalPerPeriod(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// remuneration is the payout of a single scheduled period: the
// index-corrected principal share plus its interest net of withholding.
// The same accumulated index is applied to every period of a batch.
func remuneration(b *bond.Bond, index int64, taxRate decimal.Decimal) decimal.Decimal {
	principal := decimal.NewFromInt(b.PrincipalPerPeriod())
	correction := principal.Mul(decimal.NewFromInt(index)).Div(indexScale)
	gross := correction.Mul(decimal.NewFromInt(b.InterestRate)).Div(hundred)
	return correction.Add(netOfTax(gross, taxRate))
}

// RedeemEarly pays off the remaining principal plus pro-rata interest for
// the partial period and closes the schedule. It is terminal: afterwards
// every Settle and RedeemEarly for the same holder fails with
// ErrAlreadyFullyAmortized.
func (e *Engine) RedeemEarly(ctx context.Context, bondID bond.ID, caller bond.Address) (*Settlement, error) {
	s, err := e.redeem(ctx, bondID, caller)
	if err != nil {
		e.reject("redeem", bondID, caller, err)
		return nil, err
	}
	e.committed(ctx, EventRedeemed, s)
	return s, nil
}

func (e *Engine) redeem(ctx context.Context, bondID bond.ID, caller bond.Address) (*Settlement, error) {
	b, err := e.authorize(ctx, bondID, caller)
	if err != nil {
		return nil, err
	}
	now := e.clock.Now()

	var out *Settlement
	err = e.store.Update(ctx, func(tx ledger.Tx) error {
		pos, err := e.locate(ctx, tx, bondID)
		if err != nil {
			return err
		}
		entry, err := loadEntry(ctx, tx, pos.key, b)
		if err != nil {
			return err
		}
		if entry.PaymentsMade >= b.Frequency {
			return ErrAlreadyFullyAmortized
		}
		if !now.After(entry.LastSettlement) {
			return ErrInvalidRedemptionTime
		}

		factor, err := e.oracle.Factor(ctx, entry.LastSettlement, now)
		if err != nil {
			return fmt.Errorf("query index factor: %w", err)
		}
		taxRate := WithholdingRate(b.IssueDate, now)
		remaining := b.Denomination - entry.PaymentsMade*b.PrincipalPerPeriod()
		amount := redemptionPayout(b, remaining, now.Sub(entry.LastSettlement), factor, taxRate)

		updated := ledger.Entry{PaymentsMade: b.Frequency, LastSettlement: entry.LastSettlement}
		if err := tx.PutEntry(ctx, pos.key, updated); err != nil {
			return err
		}

		receipt := &ledger.Receipt{
			ID:        uuid.New(),
			Investor:  pos.investor,
			BondID:    bondID,
			Kind:      ledger.KindRedemption,
			Periods:   b.Frequency - entry.PaymentsMade,
			Amount:    amount,
			Index:     factor,
			TaxRate:   taxRate,
			CreatedAt: now,
		}
		if err := credit(ctx, tx, receipt); err != nil {
			return err
		}

		out = &Settlement{
			ReceiptID:          receipt.ID,
			Kind:               receipt.Kind,
			BondID:             bondID,
			Investor:           pos.investor,
			Periods:            receipt.Periods,
			Amount:             amount,
			PaymentsMade:       updated.PaymentsMade,
			Frequency:          b.Frequency,
			LastSettlement:     updated.LastSettlement,
			Index:              factor,
			TaxRate:            taxRate,
			SettledAt:          now,
			RemainingPrincipal: remaining,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// redemptionPayout computes remaining principal + index correction of one
// period's principal + interest for the held fraction of the current period,
// net of withholding. The result is truncated to payoutScale places.
func redemptionPayout(b *bond.Bond, remaining int64, elapsed time.Duration, factor int64, taxRate decimal.Decimal) decimal.Decimal {
	principal := decimal.NewFromInt(b.PrincipalPerPeriod())
	correction := principal.Mul(decimal.NewFromInt(factor)).Div(indexScale).Sub(principal)

	elapsedSecs := decimal.NewFromInt(int64(elapsed / time.Second))
	periodSecs := decimal.NewFromInt(int64(b.PeriodDuration() / time.Second))
	proportionalPct := elapsedSecs.Mul(decimal.NewFromInt(b.InterestRate)).Div(periodSecs)

	base := decimal.NewFromInt(remaining).Add(correction)
	due := base.Mul(proportionalPct).Div(hundred)

	return base.Add(netOfTax(due, taxRate)).Truncate(payoutScale)
}

// OwnerRecorder records the investor-of-record of a bond.
// registry.MemoryRegistry and registry.PostgresRegistry satisfy it.
type OwnerRecorder interface {
	SetInvestor(ctx context.Context, id bond.ID, investor bond.Address) error
}

// TransferState moves the schedule entry of bondID from the seller to the
// buyer after a completed sale. The buyer keeps the seller's payment count
// but its settlement clock restarts at the transfer time; nothing is paid.
// The investor-of-record is left to the caller; use TransferOwnership to
// change both together.
func (e *Engine) TransferState(ctx context.Context, bondID bond.ID, from, to bond.Address) (*ledger.Entry, error) {
	if from.IsZero() || to.IsZero() || from == to {
		e.reject("transfer", bondID, from, ErrInvalidInvestor)
		return nil, ErrInvalidInvestor
	}
	now := e.clock.Now()

	var moved ledger.Entry
	err := e.store.Update(ctx, func(tx ledger.Tx) error {
		var err error
		moved, err = moveEntry(ctx, tx, bondID, from, to, now)
		return err
	})
	if err != nil {
		e.reject("transfer", bondID, from, err)
		return nil, err
	}
	e.transferred(ctx, bondID, from, to, moved)
	return &moved, nil
}

// TransferOwnership records "to" as the investor-of-record of bondID and
// moves the seller's schedule entry to it in one ledger transaction. The
// seller must be the current investor-of-record, read inside the same
// transaction.
//
// A PostgresRegistry on the ledger's database joins the transaction. Any
// other recorder is set back to the seller when the transaction fails after
// the owner was recorded.
func (e *Engine) TransferOwnership(ctx context.Context, bondID bond.ID, from, to bond.Address, owners OwnerRecorder) (*ledger.Entry, error) {
	if from.IsZero() || to.IsZero() || from == to {
		e.reject("transfer", bondID, from, ErrInvalidInvestor)
		return nil, ErrInvalidInvestor
	}
	now := e.clock.Now()

	var (
		moved    ledger.Entry
		recorded bool
	)
	err := e.store.Update(ctx, func(tx ledger.Tx) error {
		txCtx := ledger.ContextWithTx(ctx, tx)
		owner, err := e.terms.InvestorOf(txCtx, bondID)
		if errors.Is(err, bond.ErrNotFound) {
			return ErrBondNotFound
		}
		if err != nil {
			return fmt.Errorf("lookup investor of bond %d: %w", bondID, err)
		}
		if owner != from {
			return ErrNotInvestorOfRecord
		}

		moved, err = moveEntry(ctx, tx, bondID, from, to, now)
		if err != nil {
			return err
		}
		if err := owners.SetInvestor(txCtx, bondID, to); err != nil {
			return fmt.Errorf("record investor of record: %w", err)
		}
		recorded = true
		return nil
	})
	if err != nil {
		if recorded {
			if rerr := owners.SetInvestor(context.WithoutCancel(ctx), bondID, from); rerr != nil {
				e.logger.Error("restore investor of record after failed transfer",
					zap.Uint64("bond_id", uint64(bondID)),
					zap.String("from", from.String()),
					zap.Error(rerr),
				)
			}
		}
		e.reject("transfer", bondID, from, err)
		return nil, err
	}
	e.transferred(ctx, bondID, from, to, moved)
	return &moved, nil
}

// moveEntry writes the seller's payment count under the buyer's key, anchored
// at now, and deletes the seller's entry.
func moveEntry(ctx context.Context, tx ledger.Tx, bondID bond.ID, from, to bond.Address, now time.Time) (ledger.Entry, error) {
	fromKey := ledger.Key{Investor: from, BondID: bondID}
	toKey := ledger.Key{Investor: to, BondID: bondID}

	prev, _, err := tx.Entry(ctx, fromKey)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("read seller entry: %w", err)
	}
	moved := ledger.Entry{PaymentsMade: prev.PaymentsMade, LastSettlement: now}
	if err := tx.PutEntry(ctx, toKey, moved); err != nil {
		return ledger.Entry{}, err
	}
	if err := tx.DeleteEntry(ctx, fromKey); err != nil {
		return ledger.Entry{}, err
	}
	return moved, nil
}

func (e *Engine) transferred(ctx context.Context, bondID bond.ID, from, to bond.Address, moved ledger.Entry) {
	e.logger.Info("amortization state transferred",
		zap.Uint64("bond_id", uint64(bondID)),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.Int64("payments_made", moved.PaymentsMade),
	)
	if e.notifier != nil {
		e.notifier.Dispatch(ctx, EventTransferred, map[string]string{
			"bond_id":         strconv.FormatUint(uint64(bondID), 10),
			"from":            from.String(),
			"to":              to.String(),
			"payments_made":   strconv.FormatInt(moved.PaymentsMade, 10),
			"last_settlement": strconv.FormatInt(moved.LastSettlement.Unix(), 10),
		})
	}
}

// PaymentsMade returns how many periods have been paid to investor for
// bondID; zero when no entry exists.
func (e *Engine) PaymentsMade(ctx context.Context, investor bond.Address, bondID bond.ID) (int64, error) {
	entry, _, err := e.entry(ctx, investor, bondID)
	return entry.PaymentsMade, err
}

// LastSettlement returns the timestamp the schedule of investor for bondID
// was last settled up to; the Unix epoch when no entry exists.
func (e *Engine) LastSettlement(ctx context.Context, investor bond.Address, bondID bond.ID) (time.Time, error) {
	entry, found, err := e.entry(ctx, investor, bondID)
	if err != nil {
		return time.Time{}, err
	}
	if !found {
		return time.Unix(0, 0).UTC(), nil
	}
	return entry.LastSettlement, nil
}

// Entry returns the raw ledger entry and whether it exists.
func (e *Engine) Entry(ctx context.Context, investor bond.Address, bondID bond.ID) (ledger.Entry, bool, error) {
	return e.entry(ctx, investor, bondID)
}

func (e *Engine) entry(ctx context.Context, investor bond.Address, bondID bond.ID) (ledger.Entry, bool, error) {
	var (
		entry ledger.Entry
		found bool
	)
	err := e.store.View(ctx, func(tx ledger.Tx) error {
		var err error
		entry, found, err = tx.Entry(ctx, ledger.Key{Investor: investor, BondID: bondID})
		return err
	})
	if err != nil {
		return ledger.Entry{}, false, fmt.Errorf("read ledger entry: %w", err)
	}
	return entry, found, nil
}

// Balance returns the total payout credited to investor.
func (e *Engine) Balance(ctx context.Context, investor bond.Address) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := e.store.View(ctx, func(tx ledger.Tx) error {
		var err error
		balance, err = tx.Balance(ctx, investor)
		return err
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("read balance: %w", err)
	}
	return balance, nil
}

// Receipts lists the latest payouts credited to investor.
func (e *Engine) Receipts(ctx context.Context, investor bond.Address, limit int) ([]*ledger.Receipt, error) {
	return e.store.Receipts(ctx, investor, limit)
}

// Schedule reports the position of the bond's current investor: payments
// made, the anchor of the next period, and how long until it is due.
func (e *Engine) Schedule(ctx context.Context, bondID bond.ID) (*Schedule, error) {
	b, err := e.terms.Bond(ctx, bondID)
	if errors.Is(err, bond.ErrNotFound) {
		return nil, ErrBondNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup bond %d: %w", bondID, err)
	}
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTerms, err)
	}
	investor, err := e.terms.InvestorOf(ctx, bondID)
	if err != nil {
		return nil, fmt.Errorf("lookup investor of bond %d: %w", bondID, err)
	}
	if investor.IsZero() {
		return nil, ErrInvalidInvestor
	}

	entry, found, err := e.entry(ctx, investor, bondID)
	if err != nil {
		return nil, err
	}
	if !found {
		entry.LastSettlement = b.IssueDate
	}

	sched := &Schedule{
		BondID:         bondID,
		Investor:       investor,
		PaymentsMade:   entry.PaymentsMade,
		Frequency:      b.Frequency,
		LastSettlement: entry.LastSettlement,
		PeriodDuration: b.PeriodDuration(),
		Completed:      entry.PaymentsMade >= b.Frequency,
	}
	if !sched.Completed {
		next := entry.LastSettlement.Add(sched.PeriodDuration)
		sched.NextDue = &next
		if left := next.Sub(e.clock.Now()); left > 0 {
			sched.TimeLeft = left
		}
	}
	return sched, nil
}

func (e *Engine) committed(ctx context.Context, event string, s *Settlement) {
	e.logger.Info("payout credited",
		zap.String("kind", string(s.Kind)),
		zap.Uint64("bond_id", uint64(s.BondID)),
		zap.String("investor", s.Investor.String()),
		zap.Int64("periods", s.Periods),
		zap.String("amount", s.Amount.String()),
		zap.Int64("payments_made", s.PaymentsMade),
	)
	if e.metrics != nil {
		e.metrics.ObservePayout(s.Kind, s.Periods, s.Amount)
	}
	if e.notifier != nil {
		e.notifier.Dispatch(ctx, event, map[string]string{
			"receipt_id":      s.ReceiptID.String(),
			"bond_id":         strconv.FormatUint(uint64(s.BondID), 10),
			"investor":        s.Investor.String(),
			"periods":         strconv.FormatInt(s.Periods, 10),
			"amount":          s.Amount.String(),
			"payments_made":   strconv.FormatInt(s.PaymentsMade, 10),
			"last_settlement": strconv.FormatInt(s.LastSettlement.Unix(), 10),
		})
	}
}

func (e *Engine) reject(op string, bondID bond.ID, caller bond.Address, err error) {
	reason := Reason(err)
	if reason == "internal" {
		e.logger.Error("amortization call failed",
			zap.String("op", op),
			zap.Uint64("bond_id", uint64(bondID)),
			zap.Error(err),
		)
	} else {
		e.logger.Debug("amortization call rejected",
			zap.String("op", op),
			zap.Uint64("bond_id", uint64(bondID)),
			zap.String("caller", caller.String()),
			zap.String("reason", reason),
		)
	}
	if e.metrics != nil {
		e.metrics.ObserveRejection(op, reason)
	}
}
