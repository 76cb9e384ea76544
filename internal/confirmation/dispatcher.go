// Package confirmation renders ticket QR codes and sends the confirmation email.
package confirmation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/infest-events/registration/internal/metrics"
	"github.com/infest-events/registration/internal/models"
)

// DefaultSendTimeout bounds one SMTP conversation.
const DefaultSendTimeout = 15 * time.Second

const releaseTimeout = 5 * time.Second

var (
	// ErrAlreadySent means another caller holds or completed the confirmation.
	ErrAlreadySent = errors.New("confirmation already sent")
	// ErrNoTicket means the registration has not been issued a ticket yet.
	ErrNoTicket = errors.New("registration has no ticket id")
)

// Claimer is the compare-and-set on the registration's confirmation_sent flag.
type Claimer interface {
	ClaimConfirmation(ctx context.Context, id string, at time.Time) (bool, error)
	ReleaseConfirmation(ctx context.Context, id string) error
}

// Config holds dispatcher settings.
type Config struct {
	EventName   string
	SendTimeout time.Duration
}

// DeliveryLog records each send attempt.
type DeliveryLog interface {
	RecordDelivery(ctx context.Context, entry *models.EmailLog) error
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDeliveryLog records sent and failed attempts.
func WithDeliveryLog(l DeliveryLog) DispatcherOption {
	return func(d *Dispatcher) { d.deliveries = l }
}

// Dispatcher produces the confirmation artifact for a finalized registration
// at most once: the confirmation_sent claim is taken before sending and given
// back only if the send fails.
type Dispatcher struct {
	claims   Claimer
	renderer Renderer
	mailer   Mailer
	cfg      Config
	metrics  *metrics.Metrics
	logger   *zap.Logger

	deliveries DeliveryLog
}

// NewDispatcher creates a dispatcher. m may be nil.
func NewDispatcher(claims Claimer, renderer Renderer, mailer Mailer, cfg Config, m *metrics.Metrics, logger *zap.Logger, opts ...DispatcherOption) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	if cfg.EventName == "" {
		cfg.EventName = "INFEST 2K25"
	}
	d := &Dispatcher{claims: claims, renderer: renderer, mailer: mailer, cfg: cfg, metrics: m, logger: logger}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch sends the confirmation for reg. It returns true only when this call
// delivered the email. A false return with a nil error never happens: either
// the email went out, or err says why not (ErrAlreadySent, ErrNoTicket, or a
// render/transport failure after which the claim was released).
func (d *Dispatcher) Dispatch(ctx context.Context, reg *models.Registration) (bool, error) {
	if reg.TicketID == "" {
		return false, ErrNoTicket
	}
	won, err := d.claims.ClaimConfirmation(ctx, reg.ID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("claim confirmation: %w", err)
	}
	if !won {
		d.metrics.ConfirmationDispatched("skipped", 0)
		return false, ErrAlreadySent
	}

	start := time.Now()
	if err := d.send(ctx, reg); err != nil {
		d.metrics.ConfirmationDispatched("failed", time.Since(start).Seconds())
		d.release(ctx, reg.ID)
		d.record(ctx, reg, err)
		return false, err
	}
	d.metrics.ConfirmationDispatched("sent", time.Since(start).Seconds())
	d.record(ctx, reg, nil)
	d.logger.Info("confirmation sent", zap.String("registration_id", reg.ID), zap.String("ticket_id", reg.TicketID))
	return true, nil
}

func (d *Dispatcher) send(ctx context.Context, reg *models.Registration) error {
	png, err := d.renderer.Render(reg.TicketID)
	if err != nil {
		return err
	}
	body, err := renderBody(d.cfg.EventName, reg)
	if err != nil {
		return err
	}
	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()
	return d.mailer.Send(sendCtx, Message{
		To:      reg.Email,
		Subject: Subject(d.cfg.EventName),
		HTML:    body,
		Inline:  []Inline{{Name: QRFileName(reg.TicketID), Data: png}},
	})
}

// release runs detached from ctx, which may be the one that just expired.
func (d *Dispatcher) release(ctx context.Context, id string) {
	relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := d.claims.ReleaseConfirmation(relCtx, id); err != nil {
		d.logger.Error("release confirmation claim failed", zap.String("registration_id", id), zap.Error(err))
	}
}

func (d *Dispatcher) record(ctx context.Context, reg *models.Registration, sendErr error) {
	if d.deliveries == nil {
		return
	}
	now := time.Now().UTC()
	entry := &models.EmailLog{
		RegistrationID: reg.ID,
		TicketID:       reg.TicketID,
		EmailType:      models.EmailTypeConfirmation,
		RecipientEmail: reg.Email,
		Subject:        Subject(d.cfg.EventName),
		Status:         models.EmailLogStatusSent,
		SentAt:         &now,
		CreatedAt:      now,
	}
	if sendErr != nil {
		entry.Status = models.EmailLogStatusFailed
		entry.SentAt = nil
		entry.ErrorMessage = sendErr.Error()
	}
	logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := d.deliveries.RecordDelivery(logCtx, entry); err != nil {
		d.logger.Warn("record email delivery failed", zap.String("registration_id", reg.ID), zap.Error(err))
	}
}
