package registrations

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/infest-events/registration/internal/metrics"
	"github.com/infest-events/registration/internal/models"
)

// DefaultMaxEvents caps how many events one registrant may pick.
const DefaultMaxEvents = 3

const maxTicketAttempts = 3

// IDGenerator issues registration and ticket identifiers.
type IDGenerator interface {
	NewRegistrationID() string
	NewTicketID() string
}

// CheckoutProvider returns the gateway-hosted checkout URL for an online registration.
type CheckoutProvider interface {
	CheckoutURL(ctx context.Context, reg *models.Registration) (string, error)
}

// QRProvider returns a displayable reference (URL or data URI) to the ticket QR.
type QRProvider interface {
	QRCode(ctx context.Context, ticketID string) (string, error)
}

// ValidationError is a malformed or missing registrant field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Reason
}

// RegisterInput is a registrant's form submission.
type RegisterInput struct {
	Name        string
	Email       string
	Phone       string
	WhatsApp    string
	College     string
	Year        string
	Department  string
	Events      []string
	PaymentMode string
}

// RegisterResult is what the registrant gets back.
type RegisterResult struct {
	Registration *models.Registration
	// Duplicate is set when the email was already registered; Registration is the original.
	Duplicate  bool
	QRCode     string
	PaymentURL string
}

// Service turns form submissions into stored registrations.
type Service struct {
	store     Store
	ids       IDGenerator
	checkout  CheckoutProvider
	qr        QRProvider
	maxEvents int
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithMaxEvents overrides DefaultMaxEvents.
func WithMaxEvents(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxEvents = n
		}
	}
}

// WithMetrics records registration outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates the registration service. checkout and qr may be nil.
func NewService(store Store, ids IDGenerator, checkout CheckoutProvider, qr QRProvider, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:     store,
		ids:       ids,
		checkout:  checkout,
		qr:        qr,
		maxEvents: DefaultMaxEvents,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register validates and stores a submission.
//
// Identity is the normalized email: a second submission returns the original
// registration untouched. Offline registrations get their ticket id now;
// online ones get it when payment is reconciled.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	reg, err := s.normalize(in)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.FindByEmail(ctx, reg.Email)
	switch {
	case err == nil:
		return s.duplicate(ctx, existing), nil
	case !errors.Is(err, ErrNotFound):
		return nil, fmt.Errorf("lookup by email: %w", err)
	}

	reg.ID = s.ids.NewRegistrationID()
	reg.PaymentStatus = models.PaymentStatusPending

	for attempt := 1; ; attempt++ {
		if reg.PaymentMode == models.PaymentModeOffline {
			reg.TicketID = s.ids.NewTicketID()
		}
		err = s.store.Insert(ctx, reg)
		if errors.Is(err, ErrTicketCollision) && attempt < maxTicketAttempts {
			s.logger.Warn("ticket id collision, reissuing", zap.String("ticket_id", reg.TicketID))
			continue
		}
		break
	}
	if errors.Is(err, ErrDuplicate) {
		// lost a race with a concurrent submission for the same email
		existing, findErr := s.store.FindByEmail(ctx, reg.Email)
		if findErr != nil {
			return nil, fmt.Errorf("lookup after duplicate insert: %w", findErr)
		}
		return s.duplicate(ctx, existing), nil
	}
	if err != nil {
		return nil, fmt.Errorf("insert registration: %w", err)
	}

	s.metrics.RegistrationRecorded(string(reg.PaymentMode), "created")
	s.logger.Info("registration created",
		zap.String("registration_id", reg.ID),
		zap.String("payment_mode", string(reg.PaymentMode)),
		zap.String("ticket_id", reg.TicketID),
	)
	return s.result(ctx, reg, false), nil
}

func (s *Service) duplicate(ctx context.Context, reg *models.Registration) *RegisterResult {
	s.metrics.RegistrationRecorded(string(reg.PaymentMode), "duplicate")
	s.logger.Info("duplicate registration", zap.String("registration_id", reg.ID))
	return s.result(ctx, reg, true)
}

func (s *Service) result(ctx context.Context, reg *models.Registration, duplicate bool) *RegisterResult {
	res := &RegisterResult{Registration: reg, Duplicate: duplicate}
	if reg.TicketID != "" && s.qr != nil {
		qr, err := s.qr.QRCode(ctx, reg.TicketID)
		if err != nil {
			s.logger.Warn("render qr failed", zap.String("ticket_id", reg.TicketID), zap.Error(err))
		}
		res.QRCode = qr
	}
	if reg.PaymentMode == models.PaymentModeOnline && reg.PaymentStatus == models.PaymentStatusPending {
		res.PaymentURL = s.paymentURL(ctx, reg)
	}
	return res
}

// paymentURL hands out one checkout per registration. Payment links are
// keyed by registration id at the gateway, so a second link cannot be made.
func (s *Service) paymentURL(ctx context.Context, reg *models.Registration) string {
	if reg.PaymentURL != "" || s.checkout == nil {
		return reg.PaymentURL
	}
	url, err := s.checkout.CheckoutURL(ctx, reg)
	if err != nil {
		s.logger.Error("checkout url failed", zap.String("registration_id", reg.ID), zap.Error(err))
		// a concurrent submission may have created and stored it
		if stored, findErr := s.store.FindByID(ctx, reg.ID); findErr == nil {
			return stored.PaymentURL
		}
		return ""
	}
	if url == "" {
		return ""
	}
	stored, err := s.store.SetPaymentURL(ctx, reg.ID, url)
	if err != nil {
		s.logger.Warn("store payment url failed", zap.String("registration_id", reg.ID), zap.Error(err))
		return url
	}
	reg.PaymentURL = stored
	return stored
}

func (s *Service) normalize(in RegisterInput) (*models.Registration, error) {
	reg := &models.Registration{
		Name:        strings.TrimSpace(in.Name),
		Email:       NormalizeEmail(in.Email),
		Phone:       strings.TrimSpace(in.Phone),
		WhatsApp:    strings.TrimSpace(in.WhatsApp),
		College:     strings.TrimSpace(in.College),
		Year:        strings.TrimSpace(in.Year),
		Department:  strings.TrimSpace(in.Department),
		PaymentMode: models.PaymentMode(strings.ToLower(strings.TrimSpace(in.PaymentMode))),
	}
	switch {
	case reg.Name == "":
		return nil, &ValidationError{Field: "name", Reason: "required"}
	case !isValidEmail(reg.Email):
		return nil, &ValidationError{Field: "email", Reason: "invalid address"}
	case reg.Phone == "":
		return nil, &ValidationError{Field: "phone", Reason: "required"}
	case !reg.PaymentMode.Valid():
		return nil, &ValidationError{Field: "payment_mode", Reason: "must be online or offline"}
	}

	seen := make(map[string]struct{}, len(in.Events))
	for _, e := range in.Events {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		reg.Events = append(reg.Events, e)
	}
	if len(reg.Events) == 0 {
		return nil, &ValidationError{Field: "events", Reason: "select at least one event"}
	}
	if len(reg.Events) > s.maxEvents {
		return nil, &ValidationError{Field: "events", Reason: fmt.Sprintf("at most %d events", s.maxEvents)}
	}
	return reg, nil
}

// NormalizeEmail is the dedup key form of an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// fieldRules uses the same rule set as the handler's binding tags.
var fieldRules = validator.New()

func isValidEmail(email string) bool {
	return fieldRules.Var(email, "required,email") == nil
}
