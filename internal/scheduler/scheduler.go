// Package scheduler runs the settlement bot: on a cron schedule it settles
// every issued bond as the issuing institution, skipping bonds with nothing
// due.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmerrifield20/debenture/internal/amortization"
	"github.com/jmerrifield20/debenture/internal/bond"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// maxErrors bounds the error history kept in Status.
const maxErrors = 20

// Settler is the part of the engine the bot drives.
type Settler interface {
	Settle(ctx context.Context, bondID bond.ID, caller bond.Address) (*amortization.Settlement, error)
}

// Status is a snapshot of the bot for reporting.
type Status struct {
	Running       bool       `json:"is_running"`
	Spec          string     `json:"spec"`
	LastExecution *time.Time `json:"last_execution,omitempty"`
	NextExecution *time.Time `json:"next_execution,omitempty"`
	CurrentCycle  string     `json:"current_cycle"`
	LastSettled   int        `json:"last_settled"`
	Errors        []string   `json:"errors"`
}

// Bot periodically settles every due bond.
type Bot struct {
	cron        *cron.Cron
	entry       cron.EntryID
	spec        string
	settler     Settler
	bonds       bond.Lister
	institution bond.Address
	timeout     time.Duration
	onRun       func(failed bool) // nil = not recorded
	logger      *zap.Logger

	runMu sync.Mutex // one cycle at a time

	mu      sync.RWMutex
	running bool
	cycle   string
	last    *time.Time
	settled int
	errs    []string
}

// New creates a Bot. spec is a standard five-field cron expression or a
// descriptor such as "@every 1h".
func New(spec string, settler Settler, bonds bond.Lister, institution bond.Address, logger *zap.Logger) (*Bot, error) {
	if institution.IsZero() {
		return nil, errors.New("scheduler: institution address is required")
	}
	b := &Bot{
		cron:        cron.New(),
		spec:        spec,
		settler:     settler,
		bonds:       bonds,
		institution: institution,
		timeout:     5 * time.Minute,
		logger:      logger.With(zap.String("component", "scheduler")),
		cycle:       "idle",
	}
	id, err := b.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		defer cancel()
		if _, err := b.RunOnce(ctx); err != nil {
			b.logger.Error("settlement cycle failed", zap.Error(err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("scheduler: invalid spec %q: %w", spec, err)
	}
	b.entry = id
	return b, nil
}

// SetRunRecorder configures a hook called after every cycle.
func (b *Bot) SetRunRecorder(fn func(failed bool)) {
	b.onRun = fn
}

// Start starts the cron loop.
func (b *Bot) Start() {
	b.cron.Start()
	b.mu.Lock()
	b.running = true
	b.mu.Unlock()
	b.logger.Info("settlement bot started", zap.String("spec", b.spec))
}

// Stop stops the cron loop and waits for a running cycle to finish.
func (b *Bot) Stop() {
	ctx := b.cron.Stop()
	<-ctx.Done()
	b.mu.Lock()
	b.running = false
	b.mu.Unlock()
	b.logger.Info("settlement bot stopped")
}

// RunOnce settles every listed bond and returns how many payouts were made.
// Bonds with nothing due are skipped; other failures are collected and
// returned together after the whole list was attempted.
func (b *Bot) RunOnce(ctx context.Context) (int, error) {
	b.runMu.Lock()
	defer b.runMu.Unlock()

	started := time.Now().UTC()
	b.setCycle(fmt.Sprintf("settling since %s", started.Format(time.RFC3339)))

	ids, err := b.bonds.BondIDs(ctx)
	if err != nil {
		err = fmt.Errorf("list bonds: %w", err)
		b.finish(started, 0, []error{err})
		return 0, err
	}

	var (
		settled int
		errs    []error
	)
	for _, id := range ids {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		s, err := b.settler.Settle(ctx, id, b.institution)
		switch {
		case err == nil:
			settled++
			b.logger.Debug("bond settled",
				zap.Uint64("bond_id", uint64(id)),
				zap.Int64("periods", s.Periods),
				zap.String("amount", s.Amount.String()),
			)
		case skippable(err):
		default:
			errs = append(errs, fmt.Errorf("bond %d: %w", id, err))
		}
	}

	b.finish(started, settled, errs)
	b.logger.Info("settlement cycle finished",
		zap.Int("bonds", len(ids)),
		zap.Int("settled", settled),
		zap.Int("errors", len(errs)),
	)
	return settled, errors.Join(errs...)
}

// skippable reports rejections that only mean there is nothing to do.
func skippable(err error) bool {
	return errors.Is(err, amortization.ErrNoPeriodElapsed) ||
		errors.Is(err, amortization.ErrAlreadyFullyAmortized) ||
		errors.Is(err, amortization.ErrInvalidInvestor)
}

func (b *Bot) setCycle(c string) {
	b.mu.Lock()
	b.cycle = c
	b.mu.Unlock()
}

func (b *Bot) finish(started time.Time, settled int, errs []error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.last = &started
	b.settled = settled
	b.cycle = "idle"
	for _, err := range errs {
		b.errs = append(b.errs, err.Error())
	}
	if over := len(b.errs) - maxErrors; over > 0 {
		b.errs = b.errs[over:]
	}
	if b.onRun != nil {
		b.onRun(len(errs) > 0)
	}
}

// Status returns a snapshot of the bot.
func (b *Bot) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()

	st := Status{
		Running:      b.running,
		Spec:         b.spec,
		CurrentCycle: b.cycle,
		LastSettled:  b.settled,
		Errors:       append([]string{}, b.errs...),
	}
	if b.last != nil {
		last := *b.last
		st.LastExecution = &last
	}
	if b.running {
		if next := b.cron.Entry(b.entry).Next; !next.IsZero() {
			st.NextExecution = &next
		}
	}
	return st
}
