package confirmation

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/atomic"

	"github.com/infest-events/registration/internal/models"
)

type recordingMailer struct {
	mu    sync.Mutex
	sent  []Message
	calls atomic.Int32
	err   error
	block bool
}

func (m *recordingMailer) Send(ctx context.Context, msg Message) error {
	m.calls.Inc()
	if m.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.sent...)
}

type failingRenderer struct{}

func (failingRenderer) Render(string) ([]byte, error) { return nil, errors.New("renderer down") }

type memoryArtifactStore struct {
	urls map[string][]byte
	err  error
}

func (s *memoryArtifactStore) StoreQR(_ context.Context, ticketID string, png []byte) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if s.urls == nil {
		s.urls = make(map[string][]byte)
	}
	s.urls[ticketID] = png
	return "https://cdn.example.com/qr/" + ticketID + ".png", nil
}

type deliveryRecorder struct {
	mu      sync.Mutex
	entries []models.EmailLog
}

func (r *deliveryRecorder) RecordDelivery(_ context.Context, entry *models.EmailLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *entry)
	return nil
}
