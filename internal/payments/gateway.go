package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	razorpay "github.com/razorpay/razorpay-go"

	"github.com/infest-events/registration/internal/models"
)

// Gateway payment states that count as settled.
const (
	gatewayStatusCaptured   = "captured"
	gatewayStatusAuthorized = "authorized"
)

const paymentLinkTTL = 7 * 24 * time.Hour

// PaymentLink is a hosted checkout page for one registration.
type PaymentLink struct {
	ID       string
	ShortURL string
}

// GatewayPayment is the subset of a gateway payment the server checks.
type GatewayPayment struct {
	ID      string
	Status  string
	OrderID string
	Amount  int64
	Notes   map[string]string
}

// Settled reports whether the payment was captured or authorized.
func (p *GatewayPayment) Settled() bool {
	return p.Status == gatewayStatusCaptured || p.Status == gatewayStatusAuthorized
}

// GatewayConfig holds Razorpay credentials and the ticket price.
type GatewayConfig struct {
	KeyID       string
	KeySecret   string
	AmountPaise int64
	Currency    string
	CallbackURL string
	EventName   string
}

// Gateway talks to the Razorpay API.
type Gateway struct {
	client *razorpay.Client
	cfg    GatewayConfig
}

// NewGateway creates a Razorpay API client.
func NewGateway(cfg GatewayConfig) *Gateway {
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	return &Gateway{client: razorpay.NewClient(cfg.KeyID, cfg.KeySecret), cfg: cfg}
}

// CreatePaymentLink creates a hosted payment link that carries the
// registration id in notes, reference_id and description so any of the
// webhook extractors can find it.
func (g *Gateway) CreatePaymentLink(ctx context.Context, reg *models.Registration) (*PaymentLink, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data := map[string]interface{}{
		"amount":       g.cfg.AmountPaise,
		"currency":     g.cfg.Currency,
		"reference_id": reg.ID,
		"description":  fmt.Sprintf("%s registration_id=%s", g.cfg.EventName, reg.ID),
		"expire_by":    time.Now().Add(paymentLinkTTL).Unix(),
		"customer": map[string]interface{}{
			"name":    reg.Name,
			"email":   reg.Email,
			"contact": reg.Phone,
		},
		"notify": map[string]interface{}{"sms": false, "email": false},
		"notes":  map[string]interface{}{"registration_id": reg.ID},
	}
	if g.cfg.CallbackURL != "" {
		data["callback_url"] = g.cfg.CallbackURL
		data["callback_method"] = "get"
	}
	body, err := g.client.PaymentLink.Create(data, nil)
	if err == nil {
		if link := linkFrom(body); link.ShortURL != "" {
			return link, nil
		}
		err = errors.New("response has no short_url")
	}
	// reference_id is unique per account: an earlier request may already own the link.
	if existing, findErr := g.findPaymentLink(reg.ID); findErr == nil && existing != nil {
		return existing, nil
	}
	return nil, fmt.Errorf("create payment link: %w", err)
}

// findPaymentLink returns the still-payable link created for referenceID, if any.
func (g *Gateway) findPaymentLink(referenceID string) (*PaymentLink, error) {
	body, err := g.client.PaymentLink.All(map[string]interface{}{"reference_id": referenceID}, nil)
	if err != nil {
		return nil, fmt.Errorf("list payment links: %w", err)
	}
	items, _ := body["payment_links"].([]interface{})
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok || stringField(m, "reference_id") != referenceID {
			continue
		}
		if status := stringField(m, "status"); status != "created" && status != "partially_paid" {
			continue
		}
		if link := linkFrom(m); link.ShortURL != "" {
			return link, nil
		}
	}
	return nil, nil
}

func linkFrom(body map[string]interface{}) *PaymentLink {
	return &PaymentLink{ID: stringField(body, "id"), ShortURL: stringField(body, "short_url")}
}

// FetchPayment loads a payment by id.
func (g *Gateway) FetchPayment(ctx context.Context, paymentID string) (*GatewayPayment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	body, err := g.client.Payment.Fetch(paymentID, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch payment %s: %w", paymentID, err)
	}
	p := &GatewayPayment{
		ID:      stringField(body, "id"),
		Status:  stringField(body, "status"),
		OrderID: stringField(body, "order_id"),
		Notes:   map[string]string{},
	}
	if amount, ok := body["amount"].(float64); ok {
		p.Amount = int64(amount)
	}
	// notes is an object when set and an empty array when not.
	if notes, ok := body["notes"].(map[string]interface{}); ok {
		for k, v := range notes {
			if s, ok := v.(string); ok {
				p.Notes[k] = s
			}
		}
	}
	return p, nil
}

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}
