package registrations

import (
	"context"
	"errors"
	"time"

	"github.com/infest-events/registration/internal/models"
)

var (
	// ErrNotFound is returned when no registration matches the lookup key.
	ErrNotFound = errors.New("registration not found")
	// ErrDuplicate is returned by Insert when the email is already registered.
	ErrDuplicate = errors.New("registration already exists")
	// ErrAlreadyTransitioned is returned by Transition when the stored status no
	// longer matches the expected one. Callers treat it as a lost race.
	ErrAlreadyTransitioned = errors.New("registration already transitioned")
	// ErrTicketCollision is returned when a ticket id is already held by another registration.
	ErrTicketCollision = errors.New("ticket id already assigned")
)

// Transition is the set of fields written by a compare-and-set status change.
// PaymentID and TicketID are only written when the stored value is empty.
type Transition struct {
	Status    models.PaymentStatus
	PaymentID string
	TicketID  string
	At        time.Time
}

// Store is the registration persistence contract.
//
// Error contract: lookups return ErrNotFound on a miss, Insert returns
// ErrDuplicate or ErrTicketCollision on a unique violation, and anything else
// is an infrastructure failure the caller may retry.
type Store interface {
	Insert(ctx context.Context, reg *models.Registration) error
	FindByID(ctx context.Context, id string) (*models.Registration, error)
	FindByEmail(ctx context.Context, email string) (*models.Registration, error)
	FindByTicket(ctx context.Context, ticketID string) (*models.Registration, error)

	// Transition applies t only if the stored payment_status equals expected,
	// as one atomic operation against the backing store.
	Transition(ctx context.Context, id string, expected models.PaymentStatus, t Transition) (*models.Registration, error)

	// ClaimConfirmation flips confirmation_sent false->true and reports whether
	// this caller won. ReleaseConfirmation undoes a claim after a failed send.
	ClaimConfirmation(ctx context.Context, id string, at time.Time) (bool, error)
	ReleaseConfirmation(ctx context.Context, id string) error

	// SetPaymentURL stores the checkout URL unless one is already set and
	// returns whichever URL the registration holds afterwards.
	SetPaymentURL(ctx context.Context, id, url string) (string, error)

	// MarkAttended records check-in. It is idempotent and keeps the first timestamp.
	MarkAttended(ctx context.Context, ticketID string, at time.Time) (*models.Registration, error)

	// Stats aggregates counts for the desk dashboard.
	Stats(ctx context.Context) (*models.RegistrationStats, error)
}
