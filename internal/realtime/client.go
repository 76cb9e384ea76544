package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/infest-events/registration/internal/models"
	"github.com/infest-events/registration/internal/registrations"
	"github.com/infest-events/registration/pkg/response"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 16

	eventRefresh = "refresh"
)

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Lookup loads the registration a watcher subscribes to.
type Lookup func(ctx context.Context, id string) (*models.Registration, error)

// Client is one browser watching one registration.
type Client struct {
	ID             string
	RegistrationID string
	hub            *Hub
	lookup         Lookup
	conn           *websocket.Conn
	send           chan WSMessage
	done           chan struct{}
	logger         *zap.Logger
}

// NewUpgrader accepts websocket upgrades from allowedOrigins ("*" or a comma-separated list).
func NewUpgrader(allowedOrigins string) *websocket.Upgrader {
	allowed := map[string]bool{}
	for _, o := range strings.Split(allowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			allowed[o] = true
		}
	}
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(allowed) == 0 || allowed["*"] || allowed[origin] {
				return true
			}
			u, err := url.Parse(origin)
			return err == nil && u.Host == r.Host
		},
	}
}

// ServeWs handles GET /ws/registration/:registration_id. The first message is
// the current status; later messages follow every committed transition.
func ServeWs(hub *Hub, lookup Lookup, upgrader *websocket.Upgrader, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		id := c.Param("registration_id")
		reg, err := lookup(c.Request.Context(), id)
		if errors.Is(err, registrations.ErrNotFound) {
			response.NotFound(c, "registration not found")
			return
		}
		if err != nil {
			response.ServiceUnavailable(c, "temporarily unavailable, retry")
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			ID:             uuid.NewString(),
			RegistrationID: reg.ID,
			hub:            hub,
			lookup:         lookup,
			conn:           conn,
			send:           make(chan WSMessage, sendBuffer),
			done:           make(chan struct{}),
			logger:         logger,
		}
		hub.Register(client)
		client.push(NewStatusEvent(reg))
		go client.writePump()
		client.readPump()
	}
}

func (c *Client) push(ev StatusEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	select {
	case c.send <- WSMessage{Event: EventPaymentStatus, Data: data}:
	default:
	}
}

// readPump only serves refresh requests; watchers never publish.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		close(c.done)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait))

		if msg.Event != eventRefresh {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		reg, err := c.lookup(ctx, c.RegistrationID)
		cancel()
		if err != nil {
			c.logger.Warn("status refresh failed", zap.String("registration_id", c.RegistrationID), zap.Error(err))
			continue
		}
		c.push(NewStatusEvent(reg))
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
