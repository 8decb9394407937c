package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/glowgrid/spa-booking-engine/pkg/logging"
)

// Entry is a pending outcome event awaiting delivery.
type Entry struct {
	ID        uuid.UUID
	Type      string
	Payload   json.RawMessage
	CreatedAt time.Time
}

// DeliveryHandler emits events to downstream transports.
type DeliveryHandler interface {
	Handle(ctx context.Context, entry Entry) error
}

// DB is the slice of pgxpool.Pool the store needs; pgxmock satisfies it.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// OutboxStore persists events for reliable, at-least-once delivery. The
// booking engine enqueues after its transaction commits; the outbox worker
// publishes, keeping slow I/O out of booking critical sections.
type OutboxStore struct {
	db DB
}

func NewOutboxStore(db DB) *OutboxStore {
	if db == nil {
		panic("events: db required")
	}
	return &OutboxStore{db: db}
}

// Enqueue inserts a pending event. Implements the booking engine's
// Notifier contract.
func (s *OutboxStore) Enqueue(ctx context.Context, eventType string, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("events: marshal payload: %w", err)
	}
	id := uuid.New()
	_, err = s.db.Exec(ctx, `
		INSERT INTO notification_outbox (id, event_type, payload, created_at)
		VALUES ($1, $2, $3, now())
	`, id, eventType, data)
	if err != nil {
		return fmt.Errorf("events: insert outbox: %w", err)
	}
	return nil
}

func (s *OutboxStore) FetchPending(ctx context.Context, limit int32) ([]Entry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, event_type, payload, created_at
		FROM notification_outbox
		WHERE delivered_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("events: fetch pending: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var payload []byte
		if err := rows.Scan(&entry.ID, &entry.Type, &payload, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("events: scan outbox: %w", err)
		}
		entry.Payload = append([]byte(nil), payload...)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *OutboxStore) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	ct, err := s.db.Exec(ctx, `
		UPDATE notification_outbox
		SET delivered_at = now()
		WHERE id = $1 AND delivered_at IS NULL
	`, id)
	if err != nil {
		return false, fmt.Errorf("events: mark delivered: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// Deliverer polls the outbox and invokes the handler.
type Deliverer struct {
	store     *OutboxStore
	handler   DeliveryHandler
	logger    *logging.Logger
	batchSize int32
	interval  time.Duration
}

func NewDeliverer(store *OutboxStore, handler DeliveryHandler, logger *logging.Logger) *Deliverer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Deliverer{
		store:     store,
		handler:   handler,
		logger:    logger,
		batchSize: 25,
		interval:  2 * time.Second,
	}
}

func (d *Deliverer) WithBatchSize(size int32) *Deliverer {
	if size > 0 {
		d.batchSize = size
	}
	return d
}

func (d *Deliverer) WithInterval(interval time.Duration) *Deliverer {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

// Start blocks until ctx is done, delivering pending events each tick.
func (d *Deliverer) Start(ctx context.Context) {
	if d.store == nil || d.handler == nil {
		return
	}
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.DeliverBatch(ctx)
		}
	}
}

// DeliverBatch drains one batch. A failed handler leaves the entry pending
// for the next tick; a lost MarkDelivered race means another worker got it.
func (d *Deliverer) DeliverBatch(ctx context.Context) {
	entries, err := d.store.FetchPending(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("outbox fetch failed", "error", err)
		return
	}

	for _, entry := range entries {
		if err := d.handler.Handle(ctx, entry); err != nil {
			d.logger.Warn("outbox delivery failed", "event_id", entry.ID.String(), "event_type", entry.Type, "error", err)
			continue
		}
		delivered, err := d.store.MarkDelivered(ctx, entry.ID)
		if err != nil {
			d.logger.Error("outbox mark-delivered failed", "event_id", entry.ID.String(), "error", err)
			continue
		}
		if !delivered {
			d.logger.Debug("outbox entry already delivered elsewhere", "event_id", entry.ID.String())
		}
	}
}
