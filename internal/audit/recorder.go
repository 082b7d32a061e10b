package audit

import (
	"context"
	"strconv"

	"github.com/jmerrifield20/debenture/internal/bond"
	"go.uber.org/zap"
)

// Recorder appends committed engine events to a Log. It satisfies
// amortization.Notifier.
type Recorder struct {
	log    Log
	logger *zap.Logger
}

// NewRecorder creates a Recorder writing to log.
func NewRecorder(log Log, logger *zap.Logger) *Recorder {
	return &Recorder{log: log, logger: logger}
}

// Dispatch records the event synchronously. The subject is the credited
// investor, or the buyer for transfers. Failures are logged, not returned:
// the ledger change has already committed.
func (r *Recorder) Dispatch(ctx context.Context, eventType string, payload map[string]string) {
	id, _ := strconv.ParseUint(payload["bond_id"], 10, 64)
	subject := payload["investor"]
	if subject == "" {
		subject = payload["to"]
	}
	if _, err := r.log.Append(context.WithoutCancel(ctx), eventType, bond.ID(id), bond.Address(subject), payload); err != nil {
		r.logger.Error("audit append failed",
			zap.String("event", eventType),
			zap.Uint64("bond_id", id),
			zap.Error(err),
		)
	}
}
