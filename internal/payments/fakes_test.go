package payments

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/infest-events/registration/internal/confirmation"
	"github.com/infest-events/registration/internal/ids"
	"github.com/infest-events/registration/internal/models"
	"github.com/infest-events/registration/internal/registrations"
)

const (
	testWebhookSecret = "whsec_test"
	testKeySecret     = "key_secret_test"
)

type countingMailer struct {
	sent atomic.Int32
	err  error
	mu   sync.Mutex
	to   []string
}

func (m *countingMailer) Send(_ context.Context, msg confirmation.Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent.Inc()
	m.mu.Lock()
	m.to = append(m.to, msg.To)
	m.mu.Unlock()
	return nil
}

type staticRenderer struct{}

func (staticRenderer) Render(content string) ([]byte, error) {
	return []byte("png:" + content), nil
}

type recordingQueue struct {
	mu  sync.Mutex
	ids []string
}

func (q *recordingQueue) EnqueueConfirmation(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, id)
	return nil
}

func (q *recordingQueue) enqueued() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.ids...)
}

type recordingNotifier struct {
	mu      sync.Mutex
	changes []models.PaymentStatus
}

func (n *recordingNotifier) PaymentStatusChanged(reg *models.Registration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, reg.PaymentStatus)
}

// flakyStore fails reads while down is set.
type flakyStore struct {
	*registrations.InMemoryStore
	down atomic.Bool
}

var errStoreDown = errors.New("connection refused")

func (s *flakyStore) FindByID(ctx context.Context, id string) (*models.Registration, error) {
	if s.down.Load() {
		return nil, errStoreDown
	}
	return s.InMemoryStore.FindByID(ctx, id)
}

// harness wires a reconciler over in-memory collaborators.
type harness struct {
	store      *flakyStore
	ids        *ids.Generator
	mailer     *countingMailer
	queue      *recordingQueue
	notifier   *recordingNotifier
	events     *InMemoryEventLog
	reconciler *Reconciler
	webhooks   *WebhookProcessor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gen, err := ids.NewGenerator(1, ids.DefaultTicketPrefix)
	require.NoError(t, err)

	h := &harness{
		store:    &flakyStore{InMemoryStore: registrations.NewInMemoryStore()},
		ids:      gen,
		mailer:   &countingMailer{},
		queue:    &recordingQueue{},
		notifier: &recordingNotifier{},
		events:   NewInMemoryEventLog(),
	}
	dispatcher := confirmation.NewDispatcher(h.store, staticRenderer{}, h.mailer, confirmation.Config{}, nil, nil)
	h.reconciler = NewReconciler(h.store, gen, dispatcher, nil,
		WithRetryQueue(h.queue),
		WithNotifier(h.notifier),
	)
	h.webhooks = NewWebhookProcessor(testWebhookSecret, h.reconciler, h.events, nil, nil)
	return h
}

func (h *harness) seed(t *testing.T, mode models.PaymentMode) *models.Registration {
	t.Helper()
	n := h.ids.NewRegistrationID()
	reg := &models.Registration{
		ID:            n,
		Name:          "Asha",
		Email:         fmt.Sprintf("asha+%s@example.com", n),
		Phone:         "9876543210",
		Events:        []string{"hackathon"},
		PaymentMode:   mode,
		PaymentStatus: models.PaymentStatusPending,
	}
	if mode == models.PaymentModeOffline {
		reg.TicketID = h.ids.NewTicketID()
	}
	require.NoError(t, h.store.Insert(context.Background(), reg))
	return reg
}

func capturedWebhook(registrationID, paymentID string) []byte {
	return []byte(fmt.Sprintf(`{
		"entity": "event",
		"event": "payment.captured",
		"contains": ["payment"],
		"payload": {"payment": {"entity": {
			"id": %q, "amount": 20000, "currency": "INR", "status": "captured",
			"notes": {"registration_id": %q}
		}}}
	}`, paymentID, registrationID))
}
