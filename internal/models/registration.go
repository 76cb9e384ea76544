package models

import (
	"time"
)

// PaymentMode is how the registrant intends to pay.
type PaymentMode string

const (
	PaymentModeOnline  PaymentMode = "online"
	PaymentModeOffline PaymentMode = "offline"
)

// Valid reports whether m is a known payment mode.
func (m PaymentMode) Valid() bool {
	return m == PaymentModeOnline || m == PaymentModeOffline
}

// PaymentStatus of a registration. Only the payment reconciler mutates it.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusPaid      PaymentStatus = "paid"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// IsPaid reports whether s is a terminal paid state.
func (s PaymentStatus) IsPaid() bool {
	return s == PaymentStatusPaid || s == PaymentStatusCompleted
}

// Valid reports whether s is a known status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusCompleted, PaymentStatusFailed:
		return true
	}
	return false
}

// Registration is one registrant's submission plus its payment and attendance state.
// Identity and contact fields never change after creation.
type Registration struct {
	ID         string   `json:"registration_id"`
	TicketID   string   `json:"ticket_id,omitempty"`
	Name       string   `json:"name"`
	Email      string   `json:"email"`
	Phone      string   `json:"phone"`
	WhatsApp   string   `json:"whatsapp,omitempty"`
	College    string   `json:"college,omitempty"`
	Year       string   `json:"year,omitempty"`
	Department string   `json:"department,omitempty"`
	Events     []string `json:"events"`

	PaymentMode   PaymentMode   `json:"payment_mode"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	PaymentID     string        `json:"payment_id,omitempty"`
	PaidAt        *time.Time    `json:"paid_at,omitempty"`
	// PaymentURL is the checkout handed out at first submission, reused for duplicates.
	PaymentURL string `json:"-"`

	Attended   bool       `json:"attended"`
	AttendedAt *time.Time `json:"attended_at,omitempty"`

	ConfirmationSent   bool       `json:"confirmation_sent"`
	ConfirmationSentAt *time.Time `json:"confirmation_sent_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (r *Registration) Clone() *Registration {
	if r == nil {
		return nil
	}
	c := *r
	c.Events = append([]string(nil), r.Events...)
	c.PaidAt = cloneTime(r.PaidAt)
	c.AttendedAt = cloneTime(r.AttendedAt)
	c.ConfirmationSentAt = cloneTime(r.ConfirmationSentAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
