package models

import (
	"time"

	"github.com/google/uuid"
)

// EmailType of a delivery attempt.
const (
	EmailTypeConfirmation = "registration_confirmation"
)

// EmailLogStatus for delivery.
const (
	EmailLogStatusSent    = "sent"
	EmailLogStatusFailed  = "failed"
	EmailLogStatusSkipped = "skipped"
)

// EmailLog records one confirmation delivery attempt.
type EmailLog struct {
	ID             uuid.UUID  `json:"id"`
	RegistrationID string     `json:"registration_id"`
	TicketID       string     `json:"ticket_id,omitempty"`
	EmailType      string     `json:"email_type"`
	RecipientEmail string     `json:"recipient_email"`
	Subject        string     `json:"subject,omitempty"`
	Status         string     `json:"status"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
