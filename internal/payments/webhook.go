package payments

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// EventPaymentCaptured is the only webhook event that moves a registration to paid.
const EventPaymentCaptured = "payment.captured"

// Notes is the gateway's free-form key/value bag. The gateway serialises an
// empty bag as [] instead of {}, so both forms decode to an empty map.
type Notes map[string]string

func (n *Notes) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || trimmed[0] == '[' {
		*n = Notes{}
		return nil
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return fmt.Errorf("notes: %w", err)
	}
	out := make(Notes, len(raw))
	for k, v := range raw {
		switch tv := v.(type) {
		case string:
			out[k] = tv
		case nil:
		default:
			out[k] = fmt.Sprint(tv)
		}
	}
	*n = out
	return nil
}

// PaymentEntity is the payment object inside a webhook.
type PaymentEntity struct {
	ID          string `json:"id"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Status      string `json:"status"`
	OrderID     string `json:"order_id"`
	Description string `json:"description"`
	Email       string `json:"email"`
	Contact     string `json:"contact"`
	Notes       Notes  `json:"notes"`
}

// PaymentLinkEntity is present when the payment was made through a hosted link.
type PaymentLinkEntity struct {
	ID          string `json:"id"`
	ShortURL    string `json:"short_url"`
	CallbackURL string `json:"callback_url"`
	ReferenceID string `json:"reference_id"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Notes       Notes  `json:"notes"`
}

// OrderEntity is present for order-based checkouts.
type OrderEntity struct {
	ID      string `json:"id"`
	Receipt string `json:"receipt"`
	Notes   Notes  `json:"notes"`
}

// WebhookPayload is the envelope of every gateway webhook.
type WebhookPayload struct {
	Entity    string   `json:"entity"`
	AccountID string   `json:"account_id"`
	Event     string   `json:"event"`
	Contains  []string `json:"contains"`
	CreatedAt int64    `json:"created_at"`
	Payload   struct {
		Payment *struct {
			Entity PaymentEntity `json:"entity"`
		} `json:"payment"`
		PaymentLink *struct {
			Entity PaymentLinkEntity `json:"entity"`
		} `json:"payment_link"`
		Order *struct {
			Entity OrderEntity `json:"entity"`
		} `json:"order"`
	} `json:"payload"`
}

// ParseWebhook decodes a raw webhook body.
func ParseWebhook(body []byte) (*WebhookPayload, error) {
	var p WebhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode webhook: %w", err)
	}
	if p.Event == "" {
		return nil, fmt.Errorf("decode webhook: missing event")
	}
	return &p, nil
}

// Payment returns the payment entity, or nil.
func (p *WebhookPayload) Payment() *PaymentEntity {
	if p.Payload.Payment == nil {
		return nil
	}
	return &p.Payload.Payment.Entity
}

// PaymentLink returns the payment link entity, or nil.
func (p *WebhookPayload) PaymentLink() *PaymentLinkEntity {
	if p.Payload.PaymentLink == nil {
		return nil
	}
	return &p.Payload.PaymentLink.Entity
}

// Order returns the order entity, or nil.
func (p *WebhookPayload) Order() *OrderEntity {
	if p.Payload.Order == nil {
		return nil
	}
	return &p.Payload.Order.Entity
}

// PaymentID returns the payment id, or "".
func (p *WebhookPayload) PaymentID() string {
	if pay := p.Payment(); pay != nil {
		return pay.ID
	}
	return ""
}

func (p *WebhookPayload) allNotes() []Notes {
	var out []Notes
	if pay := p.Payment(); pay != nil {
		out = append(out, pay.Notes)
	}
	if link := p.PaymentLink(); link != nil {
		out = append(out, link.Notes)
	}
	if order := p.Order(); order != nil {
		out = append(out, order.Notes)
	}
	return out
}

// Extractor pulls a registration id out of a webhook, if this strategy can find one.
type Extractor func(*WebhookPayload) (string, bool)

// Extractors are tried in order; the first hit wins.
var Extractors = []Extractor{
	FromNotes,
	FromCustomFields,
	FromDescription,
	FromURL,
}

// ExtractRegistrationID runs Extractors in order.
func ExtractRegistrationID(p *WebhookPayload) (string, bool) {
	for _, extract := range Extractors {
		if id, ok := extract(p); ok {
			return id, true
		}
	}
	return "", false
}

// FromNotes reads notes.registration_id from the payment, link or order.
func FromNotes(p *WebhookPayload) (string, bool) {
	for _, n := range p.allNotes() {
		if id := strings.TrimSpace(n["registration_id"]); id != "" {
			return id, true
		}
	}
	return "", false
}

// FromCustomFields matches hosted-page custom fields whose label normalises to
// "registrationid" (e.g. "Registration ID", "registration-id"), then falls back
// to the payment link reference id.
func FromCustomFields(p *WebhookPayload) (string, bool) {
	for _, n := range p.allNotes() {
		for k, v := range n {
			if normalizeLabel(k) == "registrationid" && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v), true
			}
		}
	}
	if link := p.PaymentLink(); link != nil && link.ReferenceID != "" {
		return link.ReferenceID, true
	}
	return "", false
}

var descriptionToken = regexp.MustCompile(`registration_id=([A-Za-z0-9_-]+)`)

// FromDescription finds a registration_id=<id> token in a free-text description.
func FromDescription(p *WebhookPayload) (string, bool) {
	var texts []string
	if pay := p.Payment(); pay != nil {
		texts = append(texts, pay.Description)
	}
	if link := p.PaymentLink(); link != nil {
		texts = append(texts, link.Description)
	}
	for _, t := range texts {
		if m := descriptionToken.FindStringSubmatch(t); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// FromURL reads the registration_id query parameter of the link's callback or short URL.
func FromURL(p *WebhookPayload) (string, bool) {
	link := p.PaymentLink()
	if link == nil {
		return "", false
	}
	for _, raw := range []string{link.CallbackURL, link.ShortURL} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		if id := strings.TrimSpace(u.Query().Get("registration_id")); id != "" {
			return id, true
		}
	}
	return "", false
}

func normalizeLabel(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
