package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PaymentProviderRazorpay is the only gateway wired today.
const PaymentProviderRazorpay = "razorpay"

// PaymentEvent is a raw gateway webhook kept for audit. Rows are insert-only.
type PaymentEvent struct {
	ID             uuid.UUID       `json:"id"`
	Provider       string          `json:"provider"`
	EventID        string          `json:"event_id"`
	EventType      string          `json:"event_type"`
	PaymentID      string          `json:"payment_id,omitempty"`
	RegistrationID string          `json:"registration_id,omitempty"`
	SignatureValid bool            `json:"signature_valid"`
	Payload        json.RawMessage `json:"payload"`
	ReceivedAt     time.Time       `json:"received_at"`
}
