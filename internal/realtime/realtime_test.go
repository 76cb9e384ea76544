package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infest-events/registration/internal/models"
	"github.com/infest-events/registration/internal/registrations"
)

// loopback is an in-process stand-in for Redis pub/sub.
type loopback struct {
	mu        sync.Mutex
	handlers  map[string]func(string, []byte)
	published int
	fail      bool
}

func newLoopback() *loopback {
	return &loopback{handlers: map[string]func(string, []byte){}}
}

func (l *loopback) PublishRegistrationEvent(id, event string, payload []byte) error {
	l.mu.Lock()
	if l.fail {
		l.mu.Unlock()
		return errors.New("redis down")
	}
	l.published++
	h := l.handlers[id]
	l.mu.Unlock()
	if h != nil {
		h(event, payload)
	}
	return nil
}

func (l *loopback) SubscribeRegistration(id string, handler func(string, []byte)) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[id] = handler
	return func() {
		l.mu.Lock()
		delete(l.handlers, id)
		l.mu.Unlock()
	}, nil
}

func testClient(h *Hub, regID string) *Client {
	return &Client{ID: regID + "-watcher", RegistrationID: regID, hub: h, send: make(chan WSMessage, sendBuffer)}
}

func receive(t *testing.T, c *Client) StatusEvent {
	t.Helper()
	select {
	case msg := <-c.send:
		require.Equal(t, EventPaymentStatus, msg.Event)
		var ev StatusEvent
		require.NoError(t, json.Unmarshal(msg.Data, &ev))
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
		return StatusEvent{}
	}
}

func TestHubDeliversOnlyToMatchingRegistration(t *testing.T) {
	h := NewHub(nil, nil, nil)
	a, b := testClient(h, "reg-a"), testClient(h, "reg-b")
	h.Register(a)
	h.Register(b)

	h.PaymentStatusChanged(&models.Registration{ID: "reg-a", TicketID: "INF25-X", PaymentStatus: models.PaymentStatusPaid})

	ev := receive(t, a)
	assert.Equal(t, "INF25-X", ev.TicketID)
	assert.Equal(t, models.PaymentStatusPaid, ev.PaymentStatus)
	assert.Empty(t, b.send)

	h.Unregister(a)
	assert.Zero(t, h.Watchers("reg-a"))
	assert.Equal(t, 1, h.Watchers("reg-b"))
}

func TestHubThroughPubSubDeliversOnce(t *testing.T) {
	bus := newLoopback()
	h := NewHub(nil, bus, bus)
	c := testClient(h, "reg-a")
	h.Register(c)

	h.PaymentStatusChanged(&models.Registration{ID: "reg-a", PaymentStatus: models.PaymentStatusPaid})
	receive(t, c)
	assert.Empty(t, c.send)
	assert.Equal(t, 1, bus.published)

	h.Unregister(c)
	assert.Empty(t, bus.handlers)
}

func TestHubFallsBackWhenPublishFails(t *testing.T) {
	bus := newLoopback()
	bus.fail = true
	h := NewHub(nil, bus, bus)
	c := testClient(h, "reg-a")
	h.Register(c)

	h.PaymentStatusChanged(&models.Registration{ID: "reg-a", PaymentStatus: models.PaymentStatusFailed})
	assert.Equal(t, models.PaymentStatusFailed, receive(t, c).PaymentStatus)
}

func TestServeWs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := registrations.NewInMemoryStore()
	ctx := context.Background()
	reg := &models.Registration{ID: "reg-ws", Email: "ws@example.com", PaymentMode: models.PaymentModeOnline, PaymentStatus: models.PaymentStatusPending}
	require.NoError(t, store.Insert(ctx, reg))

	hub := NewHub(nil, nil, nil)
	r := gin.New()
	r.GET("/ws/registration/:registration_id", ServeWs(hub, store.FindByID, NewUpgrader("*"), nil))
	srv := httptest.NewServer(r)
	defer srv.Close()
	base := "ws" + strings.TrimPrefix(srv.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(base+"/ws/registration/missing", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(base+"/ws/registration/reg-ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	var ev StatusEvent
	require.NoError(t, json.Unmarshal(msg.Data, &ev))
	assert.Equal(t, models.PaymentStatusPending, ev.PaymentStatus)

	require.Eventually(t, func() bool { return hub.Watchers("reg-ws") == 1 }, time.Second, 10*time.Millisecond)
	hub.PaymentStatusChanged(&models.Registration{ID: "reg-ws", TicketID: "INF25-WS", PaymentStatus: models.PaymentStatusPaid})

	require.NoError(t, conn.ReadJSON(&msg))
	require.NoError(t, json.Unmarshal(msg.Data, &ev))
	assert.Equal(t, models.PaymentStatusPaid, ev.PaymentStatus)
	assert.Equal(t, "INF25-WS", ev.TicketID)

	require.NoError(t, conn.WriteJSON(WSMessage{Event: eventRefresh}))
	require.NoError(t, conn.ReadJSON(&msg))
	require.NoError(t, json.Unmarshal(msg.Data, &ev))
	assert.Equal(t, models.PaymentStatusPending, ev.PaymentStatus)
}

// gatedBus blocks SubscribeRegistration until release is closed.
type gatedBus struct {
	*loopback
	entered chan struct{}
	release chan struct{}
}

func (g *gatedBus) SubscribeRegistration(id string, handler func(string, []byte)) (func(), error) {
	g.entered <- struct{}{}
	<-g.release
	return g.loopback.SubscribeRegistration(id, handler)
}

func TestHubBroadcastNotBlockedBySlowSubscribe(t *testing.T) {
	bus := &gatedBus{loopback: newLoopback(), entered: make(chan struct{}, 1), release: make(chan struct{})}
	h := NewHub(nil, nil, bus)

	done := make(chan struct{})
	go func() {
		h.Register(testClient(h, "reg-slow"))
		close(done)
	}()
	<-bus.entered

	// a room whose subscription is already live
	fast := testClient(h, "reg-fast")
	h.mu.Lock()
	h.rooms["reg-fast"] = map[string]*Client{fast.ID: fast}
	h.mu.Unlock()

	delivered := make(chan struct{})
	go func() {
		h.Broadcast("reg-fast", EventPaymentStatus, NewStatusEvent(&models.Registration{ID: "reg-fast", PaymentStatus: models.PaymentStatusPaid}))
		close(delivered)
	}()
	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("broadcast waited on a pending subscribe")
	}
	assert.Equal(t, models.PaymentStatusPaid, receive(t, fast).PaymentStatus)

	close(bus.release)
	<-done
}

func TestHubCancelsSubscriptionWhenRoomEmptiesDuringSetup(t *testing.T) {
	bus := &gatedBus{loopback: newLoopback(), entered: make(chan struct{}, 1), release: make(chan struct{})}
	h := NewHub(nil, nil, bus)
	c := testClient(h, "reg-a")

	done := make(chan struct{})
	go func() {
		h.Register(c)
		close(done)
	}()
	<-bus.entered
	h.Unregister(c)
	close(bus.release)
	<-done

	bus.mu.Lock()
	defer bus.mu.Unlock()
	assert.Empty(t, bus.handlers)
	assert.Zero(t, h.Watchers("reg-a"))
}
