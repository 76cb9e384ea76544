package payments

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/infest-events/registration/internal/models"
)

// EventLog records every webhook delivery for audit. Record reports whether
// the (provider, event id) pair was seen for the first time.
type EventLog interface {
	Record(ctx context.Context, ev *models.PaymentEvent) (bool, error)
}

// PostgresEventLog stores events in payment_events.
type PostgresEventLog struct {
	pool *pgxpool.Pool
}

func NewPostgresEventLog(pool *pgxpool.Pool) *PostgresEventLog {
	return &PostgresEventLog{pool: pool}
}

func (l *PostgresEventLog) Record(ctx context.Context, ev *models.PaymentEvent) (bool, error) {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	tag, err := l.pool.Exec(ctx, `
		INSERT INTO payment_events (id, provider, event_id, event_type, payment_id, registration_id, signature_valid, payload, received_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9)
		ON CONFLICT (provider, event_id) DO NOTHING`,
		ev.ID, ev.Provider, ev.EventID, ev.EventType, ev.PaymentID, ev.RegistrationID,
		ev.SignatureValid, []byte(ev.Payload), ev.ReceivedAt,
	)
	if err != nil {
		return false, fmt.Errorf("record payment event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// InMemoryEventLog keeps events in memory.
type InMemoryEventLog struct {
	mu     sync.Mutex
	seen   map[string]struct{}
	events []models.PaymentEvent
}

func NewInMemoryEventLog() *InMemoryEventLog {
	return &InMemoryEventLog{seen: make(map[string]struct{})}
}

func (l *InMemoryEventLog) Record(_ context.Context, ev *models.PaymentEvent) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := ev.Provider + "/" + ev.EventID
	if _, ok := l.seen[key]; ok {
		return false, nil
	}
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	l.seen[key] = struct{}{}
	l.events = append(l.events, *ev)
	return true, nil
}

// Events returns a copy of everything recorded so far.
func (l *InMemoryEventLog) Events() []models.PaymentEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.PaymentEvent, len(l.events))
	copy(out, l.events)
	return out
}
