// Package payments reconciles registrations against gateway payment events.
//
// Two entry points drive the same transition: the registrant's browser
// posting a confirmation after checkout, and the gateway's asynchronous
// webhook. Either may arrive first, late, twice, or concurrently with the
// other. The only synchronisation is the store's compare-and-set Transition;
// whoever wins it dispatches the confirmation, everyone else is a no-op.
package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/infest-events/registration/internal/confirmation"
	"github.com/infest-events/registration/internal/metrics"
	"github.com/infest-events/registration/internal/models"
	"github.com/infest-events/registration/internal/registrations"
)

const (
	maxTransitionAttempts = 3
	enqueueTimeout        = 5 * time.Second
)

var (
	// ErrUpstreamUnavailable wraps store failures. Callers may retry.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrInvalidStatus is an update whose target status the reconciler does not accept.
	ErrInvalidStatus = errors.New("invalid payment status")
	// ErrMissingKey is an update with neither registration id nor ticket id.
	ErrMissingKey = errors.New("registration_id or ticket_id required")
)

// Source identifies which entry point produced an update.
type Source string

const (
	SourceClient  Source = "client"
	SourceWebhook Source = "webhook"
	SourceDesk    Source = "desk"
)

// Outcome of one Apply call.
type Outcome string

const (
	OutcomeTransitioned Outcome = "transitioned"
	OutcomeNoop         Outcome = "noop"
)

// Update is one payment observation.
type Update struct {
	RegistrationID string
	TicketID       string
	PaymentID      string
	Status         models.PaymentStatus
	Source         Source
}

// Result reports what Apply did. EmailSent is only ever true for the caller
// that won the transition and delivered the confirmation.
type Result struct {
	Registration *models.Registration
	Outcome      Outcome
	EmailSent    bool
}

// Dispatcher sends the confirmation for a freshly paid registration.
type Dispatcher interface {
	Dispatch(ctx context.Context, reg *models.Registration) (bool, error)
}

// TicketIssuer issues ticket ids for registrations that do not have one yet.
type TicketIssuer interface {
	NewTicketID() string
}

// StatusNotifier is told about every committed transition.
type StatusNotifier interface {
	PaymentStatusChanged(reg *models.Registration)
}

// RetryQueue schedules a later confirmation attempt.
type RetryQueue interface {
	EnqueueConfirmation(ctx context.Context, registrationID string) error
}

// Reconciler is the payment state machine.
type Reconciler struct {
	store      registrations.Store
	ids        TicketIssuer
	dispatcher Dispatcher
	notifier   StatusNotifier
	retries    RetryQueue
	metrics    *metrics.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// ReconcilerOption configures optional collaborators.
type ReconcilerOption func(*Reconciler)

// WithNotifier publishes committed transitions.
func WithNotifier(n StatusNotifier) ReconcilerOption {
	return func(r *Reconciler) { r.notifier = n }
}

// WithRetryQueue enqueues a confirmation retry when the first send fails.
func WithRetryQueue(q RetryQueue) ReconcilerOption {
	return func(r *Reconciler) { r.retries = q }
}

// WithMetrics records transition outcomes.
func WithMetrics(m *metrics.Metrics) ReconcilerOption {
	return func(r *Reconciler) { r.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) { r.now = now }
}

// NewReconciler creates a reconciler.
func NewReconciler(store registrations.Store, ids TicketIssuer, dispatcher Dispatcher, logger *zap.Logger, opts ...ReconcilerOption) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Reconciler{
		store:      store,
		ids:        ids,
		dispatcher: dispatcher,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Apply reconciles one payment observation. It is idempotent: repeating an
// update, or racing it against an equivalent update from the other entry
// point, yields exactly one transition and one confirmation.
//
// Errors: registrations.ErrNotFound when no registration matches,
// ErrUpstreamUnavailable for store failures, ErrInvalidStatus/ErrMissingKey
// for bad input. Confirmation failures are not errors; see Result.EmailSent.
func (r *Reconciler) Apply(ctx context.Context, u Update) (*Result, error) {
	if u.RegistrationID == "" && u.TicketID == "" {
		return nil, ErrMissingKey
	}
	if u.Status != models.PaymentStatusFailed && !u.Status.IsPaid() {
		return nil, fmt.Errorf("%q: %w", u.Status, ErrInvalidStatus)
	}

	reg, err := r.lookup(ctx, u)
	if errors.Is(err, registrations.ErrNotFound) {
		r.metrics.PaymentTransition(string(u.Source), "not_found")
		r.logger.Warn("payment for unknown registration",
			zap.String("registration_id", u.RegistrationID),
			zap.String("ticket_id", u.TicketID),
			zap.String("payment_id", u.PaymentID),
			zap.String("source", string(u.Source)),
		)
		return nil, err
	}
	if err != nil {
		r.metrics.PaymentTransition(string(u.Source), "error")
		return nil, fmt.Errorf("lookup registration: %v: %w", err, ErrUpstreamUnavailable)
	}

	if u.Status == models.PaymentStatusFailed {
		return r.fail(ctx, reg, u)
	}
	return r.pay(ctx, reg, u)
}

func (r *Reconciler) lookup(ctx context.Context, u Update) (*models.Registration, error) {
	if u.RegistrationID != "" {
		return r.store.FindByID(ctx, u.RegistrationID)
	}
	return r.store.FindByTicket(ctx, u.TicketID)
}

// pay moves pending (or failed, when a later attempt captured) to paid.
func (r *Reconciler) pay(ctx context.Context, reg *models.Registration, u Update) (*Result, error) {
	for attempt := 1; ; attempt++ {
		if reg.PaymentStatus.IsPaid() {
			return r.noop(reg, u), nil
		}
		ticketID := reg.TicketID
		if ticketID == "" {
			ticketID = r.ids.NewTicketID()
		}
		updated, err := r.store.Transition(ctx, reg.ID, reg.PaymentStatus, registrations.Transition{
			Status:    models.PaymentStatusPaid,
			PaymentID: u.PaymentID,
			TicketID:  ticketID,
			At:        r.now(),
		})
		switch {
		case err == nil:
			return r.transitioned(ctx, updated, u), nil
		case errors.Is(err, registrations.ErrAlreadyTransitioned):
			current, ferr := r.store.FindByID(ctx, reg.ID)
			if ferr != nil {
				return nil, fmt.Errorf("reread after lost race: %v: %w", ferr, ErrUpstreamUnavailable)
			}
			if attempt >= maxTransitionAttempts {
				return r.noop(current, u), nil
			}
			reg = current
		case errors.Is(err, registrations.ErrTicketCollision) && attempt < maxTransitionAttempts:
			r.logger.Warn("ticket id collision, reissuing", zap.String("ticket_id", ticketID))
		case errors.Is(err, registrations.ErrNotFound):
			return nil, err
		default:
			r.metrics.PaymentTransition(string(u.Source), "error")
			return nil, fmt.Errorf("transition to paid: %v: %w", err, ErrUpstreamUnavailable)
		}
	}
}

// fail moves pending to failed. Anything else is left alone.
func (r *Reconciler) fail(ctx context.Context, reg *models.Registration, u Update) (*Result, error) {
	if reg.PaymentStatus != models.PaymentStatusPending {
		return r.noop(reg, u), nil
	}
	updated, err := r.store.Transition(ctx, reg.ID, models.PaymentStatusPending, registrations.Transition{
		Status: models.PaymentStatusFailed,
		At:     r.now(),
	})
	switch {
	case err == nil:
		r.metrics.PaymentTransition(string(u.Source), "failed")
		r.logger.Info("payment marked failed", zap.String("registration_id", reg.ID), zap.String("source", string(u.Source)))
		r.notify(updated)
		return &Result{Registration: updated, Outcome: OutcomeTransitioned}, nil
	case errors.Is(err, registrations.ErrAlreadyTransitioned):
		current, ferr := r.store.FindByID(ctx, reg.ID)
		if ferr != nil {
			return nil, fmt.Errorf("reread after lost race: %v: %w", ferr, ErrUpstreamUnavailable)
		}
		return r.noop(current, u), nil
	case errors.Is(err, registrations.ErrNotFound):
		return nil, err
	default:
		r.metrics.PaymentTransition(string(u.Source), "error")
		return nil, fmt.Errorf("transition to failed: %v: %w", err, ErrUpstreamUnavailable)
	}
}

func (r *Reconciler) noop(reg *models.Registration, u Update) *Result {
	r.metrics.PaymentTransition(string(u.Source), "noop")
	r.logger.Info("payment already reconciled",
		zap.String("registration_id", reg.ID),
		zap.String("payment_status", string(reg.PaymentStatus)),
		zap.String("payment_id", u.PaymentID),
		zap.String("source", string(u.Source)),
	)
	return &Result{Registration: reg, Outcome: OutcomeNoop}
}

// transitioned runs only for the caller that won the compare-and-set.
func (r *Reconciler) transitioned(ctx context.Context, reg *models.Registration, u Update) *Result {
	r.metrics.PaymentTransition(string(u.Source), "transitioned")
	r.logger.Info("payment reconciled",
		zap.String("registration_id", reg.ID),
		zap.String("ticket_id", reg.TicketID),
		zap.String("payment_id", reg.PaymentID),
		zap.String("source", string(u.Source)),
	)
	r.notify(reg)

	sent, err := r.dispatcher.Dispatch(ctx, reg)
	if err != nil && !errors.Is(err, confirmation.ErrAlreadySent) {
		r.logger.Warn("confirmation not sent", zap.String("registration_id", reg.ID), zap.Error(err))
		r.scheduleRetry(ctx, reg.ID, err)
	}
	if sent {
		reg.ConfirmationSent = true
	}
	return &Result{Registration: reg, Outcome: OutcomeTransitioned, EmailSent: sent}
}

func (r *Reconciler) scheduleRetry(ctx context.Context, id string, cause error) {
	if r.retries == nil || errors.Is(cause, confirmation.ErrMailDisabled) {
		return
	}
	qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), enqueueTimeout)
	defer cancel()
	if err := r.retries.EnqueueConfirmation(qctx, id); err != nil {
		r.logger.Error("enqueue confirmation retry failed", zap.String("registration_id", id), zap.Error(err))
	}
}

func (r *Reconciler) notify(reg *models.Registration) {
	if r.notifier != nil {
		r.notifier.PaymentStatusChanged(reg)
	}
}
