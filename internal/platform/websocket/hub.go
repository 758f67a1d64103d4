// Package websocket pushes triage events to connected staff clients. Each
// client listens on topics within its own tenant: its caregiver inbox by
// default, plus any form or tenant-wide feed it subscribes to.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/healthdesk/triage/internal/platform/auth"
	"github.com/healthdesk/triage/internal/platform/db"
)

const (
	EventResponseScored    = "response.scored"
	EventAppointmentRouted = "appointment.routed"

	// TopicAll carries every event of a tenant.
	TopicAll = "triage"

	sendBuffer = 256
)

func CaregiverTopic(id uuid.UUID) string { return "caregiver:" + id.String() }

func FormTopic(id uuid.UUID) string { return "form:" + id.String() }

// Event is one notification as sent to clients. Tenant scopes delivery and
// never leaves the server.
type Event struct {
	Type       string          `json:"type"`
	Topic      string          `json:"topic"`
	ResourceID string          `json:"resource_id,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Data       json.RawMessage `json:"data,omitempty"`
	Tenant     string          `json:"-"`
}

// NewEvent stamps an event and marshals payload into its data.
func NewEvent(typ, topic, resourceID string, payload interface{}) (Event, error) {
	ev := Event{Type: typ, Topic: topic, ResourceID: resourceID, Timestamp: time.Now().UTC()}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Event{}, err
		}
		ev.Data = data
	}
	return ev, nil
}

// ClientMessage is an inbound subscribe or unsubscribe request.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is a single connection. UserID and Roles come from the caller's
// identity and decide which topics it may join.
type Client struct {
	ID     string
	Tenant string
	UserID string
	Roles  []string
	Topics []string
	Send   chan []byte
	conn   Conn
}

// CanSubscribe reports whether the client may listen on topic. Admins may
// join anything; other staff only their own caregiver inbox and form feeds.
func (c *Client) CanSubscribe(topic string) bool {
	for _, r := range c.Roles {
		if r == auth.RoleAdmin {
			return true
		}
	}
	switch {
	case strings.HasPrefix(topic, "caregiver:"):
		return topic == "caregiver:"+c.UserID
	case strings.HasPrefix(topic, "form:"):
		_, err := uuid.Parse(strings.TrimPrefix(topic, "form:"))
		return err == nil
	}
	return false
}

// Hub tracks clients and their subscriptions, keyed by tenant and topic.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
	all     map[*Client]struct{}
	logger  zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
		logger:  logger,
	}
}

func key(tenant, topic string) string { return tenant + "/" + topic }

// Register adds a client and subscribes it to the permitted subset of its
// initial topics.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}
	initial := client.Topics
	client.Topics = nil
	h.subscribeLocked(client, initial)
}

// Unregister removes a client from every topic and closes its Send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	h.unsubscribeLocked(client, client.Topics)
	delete(h.all, client)
	close(client.Send)
}

// Subscribe adds topics to a registered client and returns the ones it was
// refused.
func (h *Hub) Subscribe(client *Client, topics []string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.subscribeLocked(client, topics)
}

func (h *Hub) subscribeLocked(client *Client, topics []string) []string {
	var denied []string
	for _, topic := range topics {
		if !client.CanSubscribe(topic) {
			denied = append(denied, topic)
			continue
		}
		k := key(client.Tenant, topic)
		if h.clients[k] == nil {
			h.clients[k] = make(map[*Client]struct{})
		}
		if _, dup := h.clients[k][client]; dup {
			continue
		}
		h.clients[k][client] = struct{}{}
		client.Topics = append(client.Topics, topic)
	}
	return denied
}

func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(client, topics)
}

func (h *Hub) unsubscribeLocked(client *Client, topics []string) {
	removeSet := make(map[string]struct{}, len(topics))
	for _, topic := range topics {
		removeSet[topic] = struct{}{}
		k := key(client.Tenant, topic)
		if subscribers, ok := h.clients[k]; ok {
			delete(subscribers, client)
			if len(subscribers) == 0 {
				delete(h.clients, k)
			}
		}
	}

	remaining := make([]string, 0, len(client.Topics))
	for _, t := range client.Topics {
		if _, rm := removeSet[t]; !rm {
			remaining = append(remaining, t)
		}
	}
	client.Topics = remaining
}

// ProcessMessage dispatches an inbound message. It returns the topics a
// subscribe request was refused.
func (h *Hub) ProcessMessage(client *Client, msg ClientMessage) []string {
	switch msg.Action {
	case "subscribe":
		return h.Subscribe(client, msg.Topics)
	case "unsubscribe":
		h.Unsubscribe(client, msg.Topics)
	}
	return nil
}

// Broadcast delivers event to subscribers of its topic and of TopicAll in
// the event's tenant. Slow clients drop events rather than block.
func (h *Hub) Broadcast(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("type", event.Type).Msg("failed to marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[*Client]struct{})
	for _, topic := range []string{event.Topic, TopicAll} {
		for client := range h.clients[key(event.Tenant, topic)] {
			if _, dup := seen[client]; dup {
				continue
			}
			seen[client] = struct{}{}
			select {
			case client.Send <- data:
			default:
				h.logger.Warn().Str("client", client.ID).Str("type", event.Type).Msg("client buffer full; event dropped")
			}
		}
	}
}

// Publish broadcasts event within the tenant carried by ctx.
func (h *Hub) Publish(ctx context.Context, event Event) error {
	if event.Tenant == "" {
		event.Tenant = db.TenantFromContext(ctx)
	}
	h.Broadcast(event)
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// TopicCount returns the number of clients on topic within tenant.
func (h *Hub) TopicCount(tenant, topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[key(tenant, topic)])
}

// Handler upgrades staff requests to WebSocket connections on the hub.
type Handler struct {
	hub      *Hub
	upgrader gorillawebsocket.Upgrader
	logger   zerolog.Logger
}

// NewHandler accepts upgrades from the given origins; "*" allows any.
func NewHandler(hub *Hub, allowedOrigins []string, logger zerolog.Logger) *Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.TrimSpace(o)] = true
	}
	return &Handler{
		hub: hub,
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed["*"] || allowed[origin]
			},
		},
		logger: logger,
	}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	staff := api.Group("", auth.RequireRole(auth.StaffRoles...))
	staff.GET("/events/ws", h.Connect)
}

// Connect upgrades the request, registers the caller on its caregiver
// inbox and starts the read and write pumps.
func (h *Handler) Connect(c echo.Context) error {
	ctx := c.Request().Context()
	userID := auth.UserIDFromContext(ctx)

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := &Client{
		ID:     uuid.New().String(),
		Tenant: db.TenantFromContext(ctx),
		UserID: userID,
		Roles:  auth.RolesFromContext(ctx),
		Send:   make(chan []byte, sendBuffer),
		conn:   &gorillaConn{ws},
	}
	if id, err := uuid.Parse(userID); err == nil {
		client.Topics = []string{CaregiverTopic(id)}
	}
	h.hub.Register(client)
	h.logger.Debug().Str("client", client.ID).Str("user_id", userID).Msg("event stream connected")

	go h.writePump(client)
	go h.readPump(client)
	return nil
}

func (h *Handler) readPump(client *Client) {
	defer func() {
		h.hub.Unregister(client)
		client.conn.Close()
	}()

	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if denied := h.hub.ProcessMessage(client, msg); len(denied) > 0 {
			h.logger.Warn().Str("client", client.ID).Strs("topics", denied).Msg("subscription refused")
		}
	}
}

func (h *Handler) writePump(client *Client) {
	defer client.conn.Close()

	for message := range client.Send {
		if err := client.conn.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
			return
		}
	}
}

type gorillaConn struct {
	conn *gorillawebsocket.Conn
}

func (a *gorillaConn) ReadMessage() (int, []byte, error) { return a.conn.ReadMessage() }

func (a *gorillaConn) WriteMessage(messageType int, data []byte) error {
	return a.conn.WriteMessage(messageType, data)
}

func (a *gorillaConn) Close() error { return a.conn.Close() }
