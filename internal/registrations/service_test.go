package registrations

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/infest-events/registration/internal/models"
)

type sequenceIDs struct {
	mu      sync.Mutex
	n       int
	tickets []string
}

func (s *sequenceIDs) NewRegistrationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("reg-%d", s.n)
}

func (s *sequenceIDs) NewTicketID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tickets) > 0 {
		t := s.tickets[0]
		s.tickets = s.tickets[1:]
		return t
	}
	s.n++
	return fmt.Sprintf("INF25-T%d", s.n)
}

type stubCheckout struct {
	url string
	err error
}

func (c stubCheckout) CheckoutURL(_ context.Context, reg *models.Registration) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	return c.url + "?registration_id=" + reg.ID, nil
}

type stubQR struct{}

func (stubQR) QRCode(_ context.Context, ticketID string) (string, error) {
	return "data:image/png;base64," + ticketID, nil
}

func validInput(mode string) RegisterInput {
	return RegisterInput{
		Name:        "Asha Rao",
		Email:       "Asha@Example.com",
		Phone:       "9876543210",
		College:     "GEC",
		Events:      []string{"hackathon", "quiz"},
		PaymentMode: mode,
	}
}

func newTestService(store Store, ids IDGenerator) *Service {
	return NewService(store, ids, stubCheckout{url: "https://pay.example/infest"}, stubQR{}, nil)
}

func TestRegisterOfflineIssuesTicketImmediately(t *testing.T) {
	store := NewInMemoryStore()
	svc := newTestService(store, &sequenceIDs{})

	res, err := svc.Register(context.Background(), validInput("offline"))
	require.NoError(t, err)

	reg := res.Registration
	assert.False(t, res.Duplicate)
	assert.Equal(t, "asha@example.com", reg.Email)
	assert.Equal(t, models.PaymentStatusPending, reg.PaymentStatus)
	assert.NotEmpty(t, reg.TicketID)
	assert.Equal(t, "data:image/png;base64,"+reg.TicketID, res.QRCode)
	assert.Empty(t, res.PaymentURL)

	stored, err := store.FindByTicket(context.Background(), reg.TicketID)
	require.NoError(t, err)
	assert.Equal(t, reg.ID, stored.ID)
}

func TestRegisterOnlineReturnsCheckoutWithoutTicket(t *testing.T) {
	svc := newTestService(NewInMemoryStore(), &sequenceIDs{})

	res, err := svc.Register(context.Background(), validInput("online"))
	require.NoError(t, err)
	assert.Empty(t, res.Registration.TicketID)
	assert.Empty(t, res.QRCode)
	assert.Equal(t, "https://pay.example/infest?registration_id="+res.Registration.ID, res.PaymentURL)
}

func TestRegisterCheckoutFailureStillRegisters(t *testing.T) {
	store := NewInMemoryStore()
	svc := NewService(store, &sequenceIDs{}, stubCheckout{err: errors.New("gateway down")}, stubQR{}, nil)

	res, err := svc.Register(context.Background(), validInput("online"))
	require.NoError(t, err)
	assert.Empty(t, res.PaymentURL)
	_, err = store.FindByID(context.Background(), res.Registration.ID)
	assert.NoError(t, err)
}

func TestRegisterDuplicateEmailReturnsOriginal(t *testing.T) {
	svc := newTestService(NewInMemoryStore(), &sequenceIDs{})
	ctx := context.Background()

	first, err := svc.Register(ctx, validInput("offline"))
	require.NoError(t, err)

	again := validInput("online")
	again.Email = "  asha@EXAMPLE.com "
	again.Name = "Someone Else"
	second, err := svc.Register(ctx, again)
	require.NoError(t, err)

	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Registration.ID, second.Registration.ID)
	assert.Equal(t, first.Registration.TicketID, second.Registration.TicketID)
	assert.Equal(t, "Asha Rao", second.Registration.Name)
	assert.Equal(t, models.PaymentModeOffline, second.Registration.PaymentMode)
}

func TestRegisterConcurrentSameEmailStoresOne(t *testing.T) {
	store := NewInMemoryStore()
	svc := newTestService(store, &sequenceIDs{})

	var g errgroup.Group
	ids := make([]string, 12)
	for i := range ids {
		i := i
		g.Go(func() error {
			res, err := svc.Register(context.Background(), validInput("online"))
			if err != nil {
				return err
			}
			ids[i] = res.Registration.ID
			return nil
		})
	}
	require.NoError(t, g.Wait())
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestRegisterRetriesTicketCollision(t *testing.T) {
	store := NewInMemoryStore()
	require.NoError(t, store.Insert(context.Background(), &models.Registration{
		ID: "existing", Email: "other@example.com", TicketID: "INF25-DUP",
	}))
	svc := newTestService(store, &sequenceIDs{tickets: []string{"INF25-DUP", "INF25-NEW"}})

	res, err := svc.Register(context.Background(), validInput("offline"))
	require.NoError(t, err)
	assert.Equal(t, "INF25-NEW", res.Registration.TicketID)
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestService(NewInMemoryStore(), &sequenceIDs{})

	tests := []struct {
		name  string
		edit  func(*RegisterInput)
		field string
	}{
		{"missing name", func(in *RegisterInput) { in.Name = "  " }, "name"},
		{"bad email", func(in *RegisterInput) { in.Email = "asha-at-example" }, "email"},
		{"email with two ats", func(in *RegisterInput) { in.Email = "asha@@example.com" }, "email"},
		{"email with space", func(in *RegisterInput) { in.Email = "asha rao@example.com" }, "email"},
		{"missing phone", func(in *RegisterInput) { in.Phone = "" }, "phone"},
		{"unknown mode", func(in *RegisterInput) { in.PaymentMode = "cash" }, "payment_mode"},
		{"no events", func(in *RegisterInput) { in.Events = []string{" ", ""} }, "events"},
		{"too many events", func(in *RegisterInput) { in.Events = []string{"a", "b", "c", "d"} }, "events"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput("offline")
			tt.edit(&in)
			_, err := svc.Register(context.Background(), in)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestRegisterDeduplicatesEvents(t *testing.T) {
	svc := newTestService(NewInMemoryStore(), &sequenceIDs{})
	in := validInput("offline")
	in.Events = []string{"quiz", "quiz ", "hackathon", "quiz", "debate"}

	res, err := svc.Register(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []string{"quiz", "hackathon", "debate"}, res.Registration.Events)
}

func TestWithMaxEventsRaisesLimit(t *testing.T) {
	svc := NewService(NewInMemoryStore(), &sequenceIDs{}, nil, nil, nil, WithMaxEvents(5))
	in := validInput("offline")
	in.Events = []string{"a", "b", "c", "d", "e"}

	res, err := svc.Register(context.Background(), in)
	require.NoError(t, err)
	assert.Len(t, res.Registration.Events, 5)
	assert.Empty(t, res.QRCode)
}

// onceCheckout mimics hosted payment links: one link per registration id.
// With lookup set, a repeat request resolves to the existing link.
type onceCheckout struct {
	mu     sync.Mutex
	made   map[string]bool
	lookup bool
	calls  int
}

func (c *onceCheckout) CheckoutURL(_ context.Context, reg *models.Registration) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.made[reg.ID] {
		if c.lookup {
			return "https://rzp.io/i/" + reg.ID, nil
		}
		return "", errors.New("reference_id already exists")
	}
	c.made[reg.ID] = true
	return "https://rzp.io/i/" + reg.ID, nil
}

func TestRegisterDuplicateReusesPaymentLink(t *testing.T) {
	store := NewInMemoryStore()
	links := &onceCheckout{made: map[string]bool{}}
	svc := NewService(store, &sequenceIDs{}, links, stubQR{}, nil)
	ctx := context.Background()

	first, err := svc.Register(ctx, validInput("online"))
	require.NoError(t, err)
	require.NotEmpty(t, first.PaymentURL)

	second, err := svc.Register(ctx, validInput("online"))
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.PaymentURL, second.PaymentURL)
	assert.Equal(t, 1, links.calls)

	stored, err := store.FindByID(ctx, first.Registration.ID)
	require.NoError(t, err)
	assert.Equal(t, first.PaymentURL, stored.PaymentURL)
}

func TestRegisterConcurrentDuplicatesShareOneLink(t *testing.T) {
	store := NewInMemoryStore()
	links := &onceCheckout{made: map[string]bool{}, lookup: true}
	svc := NewService(store, &sequenceIDs{}, links, stubQR{}, nil)

	var g errgroup.Group
	urls := make([]string, 8)
	for i := range urls {
		g.Go(func() error {
			res, err := svc.Register(context.Background(), validInput("online"))
			if err != nil {
				return err
			}
			urls[i] = res.PaymentURL
			return nil
		})
	}
	require.NoError(t, g.Wait())
	for _, u := range urls {
		assert.Equal(t, urls[0], u)
	}
	assert.NotEmpty(t, urls[0])

	reg, err := store.FindByEmail(context.Background(), "asha@example.com")
	require.NoError(t, err)
	assert.Equal(t, urls[0], reg.PaymentURL)
}

func TestRegisterRetriesCheckoutWhenNoneStored(t *testing.T) {
	store := NewInMemoryStore()
	svc := NewService(store, &sequenceIDs{}, stubCheckout{err: errors.New("gateway down")}, stubQR{}, nil)
	ctx := context.Background()

	first, err := svc.Register(ctx, validInput("online"))
	require.NoError(t, err)
	require.Empty(t, first.PaymentURL)

	svc.checkout = stubCheckout{url: "https://pay.example/infest"}
	second, err := svc.Register(ctx, validInput("online"))
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/infest?registration_id="+first.Registration.ID, second.PaymentURL)
}
