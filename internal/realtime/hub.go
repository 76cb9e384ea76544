// Package realtime pushes payment-status changes to the registrant's browser
// over a websocket while it waits on the payment return page.
package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/infest-events/registration/internal/models"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30 * time.Second
	PongWait     = 60 * time.Second

	// EventPaymentStatus carries a StatusEvent.
	EventPaymentStatus = "payment_status"
)

// StatusEvent is the payload of EventPaymentStatus.
type StatusEvent struct {
	RegistrationID   string               `json:"registration_id"`
	TicketID         string               `json:"ticket_id,omitempty"`
	PaymentStatus    models.PaymentStatus `json:"payment_status"`
	ConfirmationSent bool                 `json:"confirmation_sent"`
	At               time.Time            `json:"at"`
}

// NewStatusEvent snapshots reg.
func NewStatusEvent(reg *models.Registration) StatusEvent {
	return StatusEvent{
		RegistrationID:   reg.ID,
		TicketID:         reg.TicketID,
		PaymentStatus:    reg.PaymentStatus,
		ConfirmationSent: reg.ConfirmationSent,
		At:               time.Now().UTC(),
	}
}

// Publisher fans an event out to every instance.
type Publisher interface {
	PublishRegistrationEvent(registrationID, event string, payload []byte) error
}

// Subscriber receives events published by any instance for one registration.
type Subscriber interface {
	SubscribeRegistration(registrationID string, handler func(event string, payload []byte)) (cancel func(), err error)
}

// Hub maintains registration_id -> set of connections.
// With Redis, events are published only and the subscription delivers them
// locally, so every instance (this one included) broadcasts exactly once.
type Hub struct {
	rooms       map[string]map[string]*Client
	subs        map[string]func()
	subscribing map[string]bool
	mu          sync.RWMutex
	logger      *zap.Logger
	pub         Publisher
	sub         Subscriber
}

// NewHub creates a hub. pub and sub may be nil for a single instance.
func NewHub(logger *zap.Logger, pub Publisher, sub Subscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		rooms:       make(map[string]map[string]*Client),
		subs:        make(map[string]func()),
		subscribing: make(map[string]bool),
		logger:      logger,
		pub:         pub,
		sub:         sub,
	}
}

// Register adds a client to its registration room. The first client starts
// the Redis subscription, outside the lock so broadcasts are never held up by
// a Redis round trip.
func (h *Hub) Register(c *Client) {
	id := c.RegistrationID
	h.mu.Lock()
	room, ok := h.rooms[id]
	if !ok {
		room = make(map[string]*Client)
		h.rooms[id] = room
	}
	room[c.ID] = c
	start := h.sub != nil && h.subs[id] == nil && !h.subscribing[id]
	if start {
		h.subscribing[id] = true
	}
	h.mu.Unlock()
	h.logger.Debug("status watcher joined", zap.String("client_id", c.ID), zap.String("registration_id", id))

	if start {
		h.subscribe(id)
	}
}

func (h *Hub) subscribe(id string) {
	cancel, err := h.sub.SubscribeRegistration(id, func(event string, payload []byte) {
		h.Broadcast(id, event, json.RawMessage(payload))
	})

	h.mu.Lock()
	delete(h.subscribing, id)
	if err != nil {
		h.mu.Unlock()
		h.logger.Warn("redis subscribe failed", zap.String("registration_id", id), zap.Error(err))
		return
	}
	if len(h.rooms[id]) == 0 {
		// every watcher left while the subscription was being set up
		h.mu.Unlock()
		cancel()
		return
	}
	h.subs[id] = cancel
	h.mu.Unlock()
}

// Unregister removes a client. The last client cancels the Redis subscription.
func (h *Hub) Unregister(c *Client) {
	var cancel func()
	h.mu.Lock()
	if m, ok := h.rooms[c.RegistrationID]; ok {
		delete(m, c.ID)
		if len(m) == 0 {
			delete(h.rooms, c.RegistrationID)
			cancel = h.subs[c.RegistrationID]
			delete(h.subs, c.RegistrationID)
		}
	}
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	h.logger.Debug("status watcher left", zap.String("client_id", c.ID), zap.String("registration_id", c.RegistrationID))
}

// Broadcast sends to local clients only. Slow clients drop the message.
func (h *Hub) Broadcast(registrationID, event string, payload interface{}) {
	data, err := encode(payload)
	if err != nil {
		return
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[registrationID] {
		select {
		case c.send <- msg:
		default:
		}
	}
}

// Publish delivers an event to watchers on every instance.
func (h *Hub) Publish(registrationID, event string, payload interface{}) {
	data, err := encode(payload)
	if err != nil {
		return
	}
	if h.pub != nil {
		perr := h.pub.PublishRegistrationEvent(registrationID, event, data)
		if perr == nil {
			return
		}
		h.logger.Warn("redis publish failed, broadcasting locally", zap.String("registration_id", registrationID), zap.Error(perr))
	}
	h.Broadcast(registrationID, event, json.RawMessage(data))
}

// PaymentStatusChanged publishes the new status of reg.
func (h *Hub) PaymentStatusChanged(reg *models.Registration) {
	h.Publish(reg.ID, EventPaymentStatus, NewStatusEvent(reg))
}

// Watchers returns the number of local connections for a registration.
func (h *Hub) Watchers(registrationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[registrationID])
}

func encode(payload interface{}) ([]byte, error) {
	switch v := payload.(type) {
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	default:
		return json.Marshal(payload)
	}
}
