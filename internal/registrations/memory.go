package registrations

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/infest-events/registration/internal/models"
)

// InMemoryStore keeps registrations in process memory, for tests and local runs.
// Every method holds the lock for the whole read-check-write so Transition is atomic.
type InMemoryStore struct {
	mu       sync.RWMutex
	byID     map[string]*models.Registration
	byEmail  map[string]string
	byTicket map[string]string
}

// NewInMemoryStore constructs an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:     make(map[string]*models.Registration),
		byEmail:  make(map[string]string),
		byTicket: make(map[string]string),
	}
}

func (s *InMemoryStore) Insert(_ context.Context, reg *models.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[reg.Email]; ok {
		return fmt.Errorf("email %s: %w", reg.Email, ErrDuplicate)
	}
	if _, ok := s.byID[reg.ID]; ok {
		return fmt.Errorf("id %s: %w", reg.ID, ErrDuplicate)
	}
	if reg.TicketID != "" {
		if _, ok := s.byTicket[reg.TicketID]; ok {
			return fmt.Errorf("ticket %s: %w", reg.TicketID, ErrTicketCollision)
		}
	}

	now := time.Now().UTC()
	reg.CreatedAt, reg.UpdatedAt = now, now
	stored := reg.Clone()
	s.byID[reg.ID] = stored
	s.byEmail[reg.Email] = reg.ID
	if reg.TicketID != "" {
		s.byTicket[reg.TicketID] = reg.ID
	}
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id string) (*models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if reg, ok := s.byID[id]; ok {
		return reg.Clone(), nil
	}
	return nil, fmt.Errorf("id %s: %w", id, ErrNotFound)
}

func (s *InMemoryStore) FindByEmail(_ context.Context, email string) (*models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.byEmail[email]; ok {
		return s.byID[id].Clone(), nil
	}
	return nil, fmt.Errorf("email %s: %w", email, ErrNotFound)
}

func (s *InMemoryStore) FindByTicket(_ context.Context, ticketID string) (*models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.byTicket[ticketID]; ok {
		return s.byID[id].Clone(), nil
	}
	return nil, fmt.Errorf("ticket %s: %w", ticketID, ErrNotFound)
}

func (s *InMemoryStore) Transition(_ context.Context, id string, expected models.PaymentStatus, t Transition) (*models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("id %s: %w", id, ErrNotFound)
	}
	if reg.PaymentStatus != expected {
		return nil, fmt.Errorf("id %s is %s, expected %s: %w", id, reg.PaymentStatus, expected, ErrAlreadyTransitioned)
	}
	if reg.TicketID == "" && t.TicketID != "" {
		if owner, taken := s.byTicket[t.TicketID]; taken && owner != id {
			return nil, fmt.Errorf("ticket %s: %w", t.TicketID, ErrTicketCollision)
		}
		reg.TicketID = t.TicketID
		s.byTicket[t.TicketID] = id
	}
	if reg.PaymentID == "" {
		reg.PaymentID = t.PaymentID
	}
	reg.PaymentStatus = t.Status
	if t.Status.IsPaid() && reg.PaidAt == nil {
		at := t.At
		reg.PaidAt = &at
	}
	reg.UpdatedAt = t.At
	return reg.Clone(), nil
}

func (s *InMemoryStore) ClaimConfirmation(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.byID[id]
	if !ok {
		return false, fmt.Errorf("id %s: %w", id, ErrNotFound)
	}
	if reg.ConfirmationSent {
		return false, nil
	}
	reg.ConfirmationSent = true
	reg.ConfirmationSentAt = &at
	return true, nil
}

func (s *InMemoryStore) ReleaseConfirmation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("id %s: %w", id, ErrNotFound)
	}
	reg.ConfirmationSent = false
	reg.ConfirmationSentAt = nil
	return nil
}

func (s *InMemoryStore) SetPaymentURL(_ context.Context, id, url string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.byID[id]
	if !ok {
		return "", fmt.Errorf("id %s: %w", id, ErrNotFound)
	}
	if reg.PaymentURL == "" {
		reg.PaymentURL = url
	}
	return reg.PaymentURL, nil
}

func (s *InMemoryStore) MarkAttended(_ context.Context, ticketID string, at time.Time) (*models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byTicket[ticketID]
	if !ok {
		return nil, fmt.Errorf("ticket %s: %w", ticketID, ErrNotFound)
	}
	reg := s.byID[id]
	if !reg.Attended {
		reg.Attended = true
		reg.AttendedAt = &at
		reg.UpdatedAt = at
	}
	return reg.Clone(), nil
}

func (s *InMemoryStore) Stats(_ context.Context) (*models.RegistrationStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := models.NewRegistrationStats()
	for _, reg := range s.byID {
		pending := 0
		if reg.PaymentStatus.IsPaid() && !reg.ConfirmationSent {
			pending = 1
		}
		attended := 0
		if reg.Attended {
			attended = 1
		}
		addGroup(stats, string(reg.PaymentMode), string(reg.PaymentStatus), 1, attended, pending)
		for _, e := range reg.Events {
			stats.ByEvent[e]++
		}
	}
	return stats, nil
}
