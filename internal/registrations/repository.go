package registrations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/infest-events/registration/internal/models"
)

const (
	uniqueViolation     = "23505"
	constraintTicketID  = "registrations_ticket_id_key"
	registrationColumns = `id, COALESCE(ticket_id, ''), name, email, phone, whatsapp, college, year, department, events,
		payment_mode, payment_status, COALESCE(payment_id, ''), paid_at, COALESCE(payment_url, ''),
		attended, attended_at, confirmation_sent, confirmation_sent_at, created_at, updated_at`
)

// Repository is the PostgreSQL-backed Store.
type Repository struct {
	pool *pgxpool.Pool
}

var _ Store = (*Repository)(nil)

// NewRepository creates a registrations repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert creates a registration. Email and ticket id are unique.
func (r *Repository) Insert(ctx context.Context, reg *models.Registration) error {
	const q = `INSERT INTO registrations (id, ticket_id, name, email, phone, whatsapp, college, year, department, events, payment_mode, payment_status)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`
	err := r.pool.QueryRow(ctx, q,
		reg.ID, reg.TicketID, reg.Name, reg.Email, reg.Phone, reg.WhatsApp, reg.College, reg.Year, reg.Department,
		reg.Events, string(reg.PaymentMode), string(reg.PaymentStatus),
	).Scan(&reg.CreatedAt, &reg.UpdatedAt)
	if err != nil {
		return translateWriteError(err)
	}
	return nil
}

// FindByID returns a registration by its id.
func (r *Repository) FindByID(ctx context.Context, id string) (*models.Registration, error) {
	return r.findOne(ctx, `SELECT `+registrationColumns+` FROM registrations WHERE id = $1`, id)
}

// FindByEmail returns the registration for a normalized email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.Registration, error) {
	return r.findOne(ctx, `SELECT `+registrationColumns+` FROM registrations WHERE email = $1`, email)
}

// FindByTicket returns the registration holding ticketID.
func (r *Repository) FindByTicket(ctx context.Context, ticketID string) (*models.Registration, error) {
	return r.findOne(ctx, `SELECT `+registrationColumns+` FROM registrations WHERE ticket_id = $1`, ticketID)
}

// Transition is a single conditional UPDATE; the WHERE clause carries the expected status.
func (r *Repository) Transition(ctx context.Context, id string, expected models.PaymentStatus, t Transition) (*models.Registration, error) {
	const q = `UPDATE registrations SET
			payment_status = $3,
			payment_id = COALESCE(payment_id, NULLIF($4, '')),
			ticket_id = COALESCE(ticket_id, NULLIF($5, '')),
			paid_at = CASE WHEN $6::boolean THEN COALESCE(paid_at, $7) ELSE paid_at END,
			updated_at = $7
		WHERE id = $1 AND payment_status = $2
		RETURNING ` + registrationColumns
	reg, err := scanRegistration(r.pool.QueryRow(ctx, q,
		id, string(expected), string(t.Status), t.PaymentID, t.TicketID, t.Status.IsPaid(), t.At,
	))
	if err == nil {
		return reg, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, translateWriteError(err)
	}
	return nil, r.missOrRace(ctx, id)
}

// ClaimConfirmation flips confirmation_sent only if it is still false.
func (r *Repository) ClaimConfirmation(ctx context.Context, id string, at time.Time) (bool, error) {
	const q = `UPDATE registrations SET confirmation_sent = TRUE, confirmation_sent_at = $2, updated_at = $2
		WHERE id = $1 AND confirmation_sent = FALSE`
	tag, err := r.pool.Exec(ctx, q, id, at)
	if err != nil {
		return false, fmt.Errorf("claim confirmation: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if err := r.missOrRace(ctx, id); errors.Is(err, ErrNotFound) {
		return false, err
	}
	return false, nil
}

// ReleaseConfirmation clears a claim after a failed send.
func (r *Repository) ReleaseConfirmation(ctx context.Context, id string) error {
	const q = `UPDATE registrations SET confirmation_sent = FALSE, confirmation_sent_at = NULL, updated_at = NOW() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("release confirmation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("id %s: %w", id, ErrNotFound)
	}
	return nil
}

// SetPaymentURL keeps the first checkout URL written for a registration.
func (r *Repository) SetPaymentURL(ctx context.Context, id, url string) (string, error) {
	const q = `UPDATE registrations SET payment_url = COALESCE(payment_url, NULLIF($2, ''))
		WHERE id = $1
		RETURNING COALESCE(payment_url, '')`
	var stored string
	err := r.pool.QueryRow(ctx, q, id, url).Scan(&stored)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("id %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("set payment url: %w", err)
	}
	return stored, nil
}

// MarkAttended sets attended for the ticket holder, keeping the first check-in time.
func (r *Repository) MarkAttended(ctx context.Context, ticketID string, at time.Time) (*models.Registration, error) {
	const q = `UPDATE registrations SET
			attended = TRUE,
			attended_at = COALESCE(attended_at, $2),
			updated_at = CASE WHEN attended THEN updated_at ELSE $2 END
		WHERE ticket_id = $1
		RETURNING ` + registrationColumns
	reg, err := scanRegistration(r.pool.QueryRow(ctx, q, ticketID, at))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("ticket %s: %w", ticketID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("mark attended: %w", err)
	}
	return reg, nil
}

func (r *Repository) findOne(ctx context.Context, q string, arg string) (*models.Registration, error) {
	reg, err := scanRegistration(r.pool.QueryRow(ctx, q, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", arg, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query registration: %w", err)
	}
	return reg, nil
}

// missOrRace tells a missing row apart from a row whose guard no longer matched.
func (r *Repository) missOrRace(ctx context.Context, id string) error {
	var status string
	err := r.pool.QueryRow(ctx, `SELECT payment_status FROM registrations WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("id %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("query registration: %w", err)
	}
	return fmt.Errorf("id %s is %s: %w", id, status, ErrAlreadyTransitioned)
}

func scanRegistration(row pgx.Row) (*models.Registration, error) {
	var (
		reg          models.Registration
		mode, status string
	)
	err := row.Scan(
		&reg.ID, &reg.TicketID, &reg.Name, &reg.Email, &reg.Phone, &reg.WhatsApp, &reg.College, &reg.Year, &reg.Department, &reg.Events,
		&mode, &status, &reg.PaymentID, &reg.PaidAt, &reg.PaymentURL,
		&reg.Attended, &reg.AttendedAt, &reg.ConfirmationSent, &reg.ConfirmationSentAt, &reg.CreatedAt, &reg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	reg.PaymentMode = models.PaymentMode(mode)
	reg.PaymentStatus = models.PaymentStatus(status)
	return &reg, nil
}

func translateWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		switch pgErr.ConstraintName {
		case constraintTicketID:
			return fmt.Errorf("%s: %w", pgErr.Detail, ErrTicketCollision)
		default:
			return fmt.Errorf("%s: %w", pgErr.Detail, ErrDuplicate)
		}
	}
	return fmt.Errorf("write registration: %w", err)
}

// Stats aggregates counts for the desk dashboard in two queries.
func (r *Repository) Stats(ctx context.Context) (*models.RegistrationStats, error) {
	stats := models.NewRegistrationStats()

	const byGroup = `SELECT payment_mode, payment_status, COUNT(*),
			COUNT(*) FILTER (WHERE attended),
			COUNT(*) FILTER (WHERE payment_status IN ('paid', 'completed') AND NOT confirmation_sent)
		FROM registrations
		GROUP BY payment_mode, payment_status`
	rows, err := r.pool.Query(ctx, byGroup)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	for rows.Next() {
		var mode, status string
		var n, attended, pending int
		if err := rows.Scan(&mode, &status, &n, &attended, &pending); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		addGroup(stats, mode, status, n, attended, pending)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}

	const byEvent = `SELECT e, COUNT(*) FROM registrations, unnest(events) AS e GROUP BY e`
	rows, err = r.pool.Query(ctx, byEvent)
	if err != nil {
		return nil, fmt.Errorf("query event stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var event string
		var n int
		if err := rows.Scan(&event, &n); err != nil {
			return nil, fmt.Errorf("scan event stats: %w", err)
		}
		stats.ByEvent[event] = n
	}
	return stats, rows.Err()
}

func addGroup(stats *models.RegistrationStats, mode, status string, n, attended, pending int) {
	stats.Total += n
	stats.ByMode[mode] += n
	stats.ByStatus[status] += n
	stats.Attended += attended
	stats.ConfirmationsPending += pending
	if models.PaymentStatus(status).IsPaid() {
		stats.Paid += n
	}
}
