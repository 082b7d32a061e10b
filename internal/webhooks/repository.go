package webhooks

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DeliveryLog persists delivery attempts.
type DeliveryLog interface {
	RecordDelivery(ctx context.Context, d *WebhookDelivery) error
	Recent(ctx context.Context, limit int) ([]*WebhookDelivery, error)
}

const (
	defaultRecent = 50
	memoryLogCap  = 1000
)

func recentLimit(limit int) int {
	if limit <= 0 || limit > memoryLogCap {
		return defaultRecent
	}
	return limit
}

// MemoryLog keeps the latest deliveries in a bounded slice.
type MemoryLog struct {
	mu         sync.RWMutex
	deliveries []*WebhookDelivery
}

// NewMemoryLog creates an empty MemoryLog.
func NewMemoryLog() *MemoryLog { return &MemoryLog{} }

// RecordDelivery implements DeliveryLog.
func (l *MemoryLog) RecordDelivery(_ context.Context, d *WebhookDelivery) error {
	stamp(d)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deliveries = append(l.deliveries, d)
	if over := len(l.deliveries) - memoryLogCap; over > 0 {
		l.deliveries = l.deliveries[over:]
	}
	return nil
}

// Recent implements DeliveryLog, newest first.
func (l *MemoryLog) Recent(_ context.Context, limit int) ([]*WebhookDelivery, error) {
	limit = recentLimit(limit)
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*WebhookDelivery, 0, limit)
	for i := len(l.deliveries) - 1; i >= 0 && len(out) < limit; i-- {
		d := *l.deliveries[i]
		out = append(out, &d)
	}
	return out, nil
}

// Repository is a DeliveryLog backed by the webhook_deliveries table.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new webhook Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// RecordDelivery implements DeliveryLog.
func (r *Repository) RecordDelivery(ctx context.Context, d *WebhookDelivery) error {
	stamp(d)
	query := `INSERT INTO webhook_deliveries (id, event_id, event_type, url, status_code, attempt, success, error_message, delivered_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.Exec(ctx, query,
		d.ID, d.EventID, d.EventType, d.URL,
		d.StatusCode, d.Attempt, d.Success, d.ErrorMessage, d.DeliveredAt,
	)
	return err
}

// Recent implements DeliveryLog.
func (r *Repository) Recent(ctx context.Context, limit int) ([]*WebhookDelivery, error) {
	query := `SELECT id, event_id, event_type, url, status_code, attempt, success, error_message, delivered_at
	          FROM webhook_deliveries ORDER BY delivered_at DESC LIMIT $1`
	rows, err := r.db.Query(ctx, query, recentLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*WebhookDelivery
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.EventID, &d.EventType, &d.URL, &d.StatusCode,
			&d.Attempt, &d.Success, &d.ErrorMessage, &d.DeliveredAt); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

func stamp(d *WebhookDelivery) {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.DeliveredAt.IsZero() {
		d.DeliveredAt = time.Now().UTC()
	}
}
