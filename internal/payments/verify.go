package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/infest-events/registration/internal/models"
)

// ErrPaymentNotCaptured is a client confirmation for a payment the gateway
// has not settled.
var ErrPaymentNotCaptured = errors.New("payment not captured")

// PaymentFetcher loads a payment from the gateway.
type PaymentFetcher interface {
	FetchPayment(ctx context.Context, paymentID string) (*GatewayPayment, error)
}

// ClientConfirmation is what the browser posts after checkout.
type ClientConfirmation struct {
	PaymentID         string
	OrderID           string
	PaymentLinkID     string
	PaymentLinkRef    string
	PaymentLinkStatus string
	Signature         string
	Status            models.PaymentStatus
}

// ClientVerifier checks a client confirmation before it reaches the
// reconciler. A supplied signature must always verify; in strict mode a
// signature is mandatory and the payment must be settled at the gateway.
type ClientVerifier struct {
	keySecret string
	strict    bool
	fetcher   PaymentFetcher
}

// NewClientVerifier creates a verifier. fetcher may be nil.
func NewClientVerifier(keySecret string, strict bool, fetcher PaymentFetcher) *ClientVerifier {
	return &ClientVerifier{keySecret: keySecret, strict: strict, fetcher: fetcher}
}

// Verify returns nil when c may be applied.
func (v *ClientVerifier) Verify(ctx context.Context, c ClientConfirmation) error {
	if v == nil || c.Status == models.PaymentStatusFailed {
		return nil
	}
	if c.Signature == "" {
		if v.strict {
			return fmt.Errorf("missing signature: %w", ErrSignatureInvalid)
		}
		return nil
	}

	var payload []byte
	switch {
	case c.PaymentLinkID != "":
		payload = paymentLinkSignaturePayload(c.PaymentLinkID, c.PaymentLinkRef, c.PaymentLinkStatus, c.PaymentID)
	case c.OrderID != "":
		payload = orderSignaturePayload(c.OrderID, c.PaymentID)
	default:
		return fmt.Errorf("signature without order_id or payment_link_id: %w", ErrSignatureInvalid)
	}
	if !ValidSignature(payload, c.Signature, v.keySecret) {
		return ErrSignatureInvalid
	}

	if !v.strict || v.fetcher == nil {
		return nil
	}
	p, err := v.fetcher.FetchPayment(ctx, c.PaymentID)
	if err != nil {
		return fmt.Errorf("%v: %w", err, ErrUpstreamUnavailable)
	}
	if !p.Settled() {
		return fmt.Errorf("gateway status %q: %w", p.Status, ErrPaymentNotCaptured)
	}
	if c.OrderID != "" && p.OrderID != "" && p.OrderID != c.OrderID {
		return fmt.Errorf("payment belongs to order %s: %w", p.OrderID, ErrSignatureInvalid)
	}
	return nil
}
