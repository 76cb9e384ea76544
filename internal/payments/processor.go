package payments

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/infest-events/registration/internal/metrics"
	"github.com/infest-events/registration/internal/models"
	"github.com/infest-events/registration/internal/registrations"
)

var (
	// ErrSignatureInvalid is a webhook or client signature that does not verify.
	ErrSignatureInvalid = errors.New("signature invalid")
	// ErrMalformedPayload is a webhook body that cannot be acted on. It is
	// acknowledged, never retried.
	ErrMalformedPayload = errors.New("malformed payload")
)

// Delivery is one raw webhook request.
type Delivery struct {
	Body      []byte
	Signature string
	EventID   string
}

// WebhookOutcome is what the handler reports back to the gateway.
type WebhookOutcome struct {
	Status         string
	Reason         string
	EventType      string
	RegistrationID string
	Result         *Result
}

const (
	webhookSuccess = "success"
	webhookIgnored = "ignored"
	webhookError   = "error"
)

// WebhookProcessor verifies, audits and applies gateway webhooks.
type WebhookProcessor struct {
	secret     string
	reconciler *Reconciler
	events     EventLog
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewWebhookProcessor creates a processor. events and m may be nil.
func NewWebhookProcessor(secret string, reconciler *Reconciler, events EventLog, m *metrics.Metrics, logger *zap.Logger) *WebhookProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookProcessor{secret: secret, reconciler: reconciler, events: events, metrics: m, logger: logger}
}

// Process handles one delivery. The returned error is non-nil only for
// ErrSignatureInvalid and ErrUpstreamUnavailable; every other case is an
// acknowledged outcome so the gateway stops redelivering.
func (p *WebhookProcessor) Process(ctx context.Context, d Delivery) (*WebhookOutcome, error) {
	if !ValidSignature(d.Body, d.Signature, p.secret) {
		p.metrics.WebhookEvent("signature_invalid")
		p.logger.Warn("webhook signature mismatch", zap.Int("body_bytes", len(d.Body)))
		return nil, ErrSignatureInvalid
	}

	payload, err := ParseWebhook(d.Body)
	if err != nil {
		p.metrics.WebhookEvent("malformed")
		p.logger.Warn("malformed webhook", zap.Error(err))
		return &WebhookOutcome{Status: webhookError, Reason: ErrMalformedPayload.Error()}, nil
	}

	regID, found := ExtractRegistrationID(payload)
	p.audit(ctx, d, payload, regID)

	out := &WebhookOutcome{EventType: payload.Event, RegistrationID: regID}
	if payload.Event != EventPaymentCaptured {
		p.metrics.WebhookEvent("ignored_event")
		p.logger.Info("webhook event ignored", zap.String("event", payload.Event))
		out.Status, out.Reason = webhookIgnored, "event not handled"
		return out, nil
	}
	if !found {
		p.metrics.WebhookEvent("no_registration_id")
		p.logger.Warn("webhook without registration id",
			zap.String("event", payload.Event),
			zap.String("payment_id", payload.PaymentID()),
		)
		out.Status, out.Reason = webhookIgnored, "registration_id not found in payload"
		return out, nil
	}

	res, err := p.reconciler.Apply(ctx, Update{
		RegistrationID: regID,
		PaymentID:      payload.PaymentID(),
		Status:         models.PaymentStatusPaid,
		Source:         SourceWebhook,
	})
	switch {
	case errors.Is(err, registrations.ErrNotFound):
		p.metrics.WebhookEvent("unknown_registration")
		out.Status, out.Reason = webhookIgnored, "registration not found"
		return out, nil
	case err != nil:
		p.metrics.WebhookEvent("upstream_error")
		p.logger.Error("webhook reconcile failed", zap.String("registration_id", regID), zap.Error(err))
		return nil, err
	}
	p.metrics.WebhookEvent(string(res.Outcome))
	out.Status, out.Result = webhookSuccess, res
	return out, nil
}

// audit records the delivery. A failure here is logged and does not block
// reconciliation; a redelivery of a recorded event is still reconciled.
func (p *WebhookProcessor) audit(ctx context.Context, d Delivery, payload *WebhookPayload, regID string) {
	if p.events == nil {
		return
	}
	eventID := d.EventID
	if eventID == "" {
		eventID = payload.PaymentID() + ":" + payload.Event
	}
	first, err := p.events.Record(ctx, &models.PaymentEvent{
		Provider:       models.PaymentProviderRazorpay,
		EventID:        eventID,
		EventType:      payload.Event,
		PaymentID:      payload.PaymentID(),
		RegistrationID: regID,
		SignatureValid: true,
		Payload:        d.Body,
		ReceivedAt:     time.Now().UTC(),
	})
	if err != nil {
		p.logger.Warn("payment event audit failed", zap.String("event_id", eventID), zap.Error(err))
		return
	}
	if !first {
		p.logger.Info("webhook redelivery", zap.String("event_id", eventID), zap.String("event", payload.Event))
	}
}
