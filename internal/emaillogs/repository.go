// Package emaillogs keeps the delivery history of confirmation emails so the
// desk can see why an attendee never got their ticket.
package emaillogs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/infest-events/registration/internal/models"
)

// Log is the persistence contract shared by the Postgres and in-memory logs.
type Log interface {
	RecordDelivery(ctx context.Context, entry *models.EmailLog) error
	ListByRegistration(ctx context.Context, registrationID string) ([]*models.EmailLog, error)
}

// Repository handles email_logs persistence.
type Repository struct {
	pool *pgxpool.Pool
}

var _ Log = (*Repository)(nil)

// NewRepository creates an email logs repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// RecordDelivery inserts one attempt.
func (r *Repository) RecordDelivery(ctx context.Context, entry *models.EmailLog) error {
	prepare(entry)
	const q = `INSERT INTO email_logs (id, registration_id, ticket_id, email_type, recipient_email, subject, status, sent_at, error_message, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, NULLIF($6, ''), $7, $8, NULLIF($9, ''), $10)`
	_, err := r.pool.Exec(ctx, q,
		entry.ID, entry.RegistrationID, entry.TicketID, entry.EmailType, entry.RecipientEmail,
		entry.Subject, entry.Status, entry.SentAt, entry.ErrorMessage, entry.CreatedAt,
	)
	return err
}

// ListByRegistration returns attempts for a registration, newest first.
func (r *Repository) ListByRegistration(ctx context.Context, registrationID string) ([]*models.EmailLog, error) {
	const q = `SELECT id, registration_id, COALESCE(ticket_id, ''), email_type, recipient_email, subject, status, sent_at, error_message, created_at
		FROM email_logs
		WHERE registration_id = $1
		ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, registrationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.EmailLog
	for rows.Next() {
		var el models.EmailLog
		var subject, errMsg *string
		if err := rows.Scan(&el.ID, &el.RegistrationID, &el.TicketID, &el.EmailType, &el.RecipientEmail, &subject, &el.Status, &el.SentAt, &errMsg, &el.CreatedAt); err != nil {
			return nil, err
		}
		if subject != nil {
			el.Subject = *subject
		}
		if errMsg != nil {
			el.ErrorMessage = *errMsg
		}
		list = append(list, &el)
	}
	return list, rows.Err()
}

// InMemory keeps delivery history in process memory.
type InMemory struct {
	mu      sync.Mutex
	entries []models.EmailLog
}

var _ Log = (*InMemory)(nil)

func NewInMemory() *InMemory {
	return &InMemory{}
}

func (m *InMemory) RecordDelivery(_ context.Context, entry *models.EmailLog) error {
	prepare(entry)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *InMemory) ListByRegistration(_ context.Context, registrationID string) ([]*models.EmailLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []*models.EmailLog
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].RegistrationID == registrationID {
			e := m.entries[i]
			list = append(list, &e)
		}
	}
	return list, nil
}

func prepare(entry *models.EmailLog) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.EmailType == "" {
		entry.EmailType = models.EmailTypeConfirmation
	}
}
