package websocket

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ammar1510/chatty/internal/logger"
	"github.com/ammar1510/chatty/internal/metrics"
	"github.com/ammar1510/chatty/internal/presence"
)

var log = logger.New("websocket")

// Mirror receives every presence snapshot after it is broadcast.
// It must not block.
type Mirror interface {
	Publish(online []uuid.UUID)
}

type notification struct {
	userID uuid.UUID
	event  string
	msg    []byte
	result chan bool
}

type directMsg struct {
	client *Client
	msg    []byte
}

// Manager owns every open connection and the presence directory. All state
// below is touched only by the Run goroutine; everything else talks to it
// through the channels.
type Manager struct {
	clients   map[*Client]struct{}
	directory *presence.Directory[*Client]

	register   chan *Client
	unregister chan *Client
	notify     chan notification
	direct     chan directMsg
	online     chan chan []uuid.UUID
	done       chan struct{}

	mirror         Mirror
	allowedOrigins map[string]bool
	allowAll       bool
}

// Option configures a Manager
type Option func(*Manager)

// WithAllowedOrigins restricts the browser origins that may open a socket.
// "*" allows every origin. Requests without an Origin header are always allowed.
func WithAllowedOrigins(origins []string) Option {
	return func(m *Manager) {
		for _, o := range origins {
			if o == "*" {
				m.allowAll = true
			}
			m.allowedOrigins[o] = true
		}
	}
}

// WithMirror copies presence snapshots somewhere else, e.g. Redis
func WithMirror(mirror Mirror) Option {
	return func(m *Manager) {
		m.mirror = mirror
	}
}

// NewManager creates a new websocket manager
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		clients:        make(map[*Client]struct{}),
		directory:      presence.NewDirectory[*Client](),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		notify:         make(chan notification),
		direct:         make(chan directMsg),
		online:         make(chan chan []uuid.UUID),
		done:           make(chan struct{}),
		allowedOrigins: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(m)
	}
	if len(m.allowedOrigins) == 0 {
		m.allowAll = true
	}
	return m
}

// Run serializes every change to the connection set until ctx is done
func (m *Manager) Run(ctx context.Context) {
	defer func() {
		for client := range m.clients {
			m.drop(client)
		}
		close(m.done)
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info("Websocket manager stopping")
			return

		case client := <-m.register:
			m.clients[client] = struct{}{}
			metrics.Connections.Inc()
			if prev, replaced := m.directory.Register(client.ID, client); replaced {
				log.Debug("User %s reconnected; connection %p no longer routable", client.ID, prev)
			}
			log.Info("Client connected: %s", client.ID)
			m.broadcastOnline()

		case client := <-m.unregister:
			if _, ok := m.clients[client]; !ok {
				continue
			}
			m.drop(client)
			log.Info("Client disconnected: %s", client.ID)
			m.broadcastOnline()

		case n := <-m.notify:
			n.result <- m.push(n.userID, n.event, n.msg)

		case d := <-m.direct:
			if _, ok := m.clients[d.client]; ok && !m.enqueue(d.client, d.msg) {
				m.broadcastOnline()
			}

		case reply := <-m.online:
			reply <- m.directory.Online()
		}
	}
}

// drop forgets client and closes its send channel. It reports whether the
// presence directory changed.
func (m *Manager) drop(client *Client) bool {
	delete(m.clients, client)
	close(client.Send)
	metrics.Connections.Dec()
	return m.directory.Unregister(client.ID, client)
}

// enqueue never blocks; a client whose buffer is full is disconnected
func (m *Manager) enqueue(client *Client, msg []byte) bool {
	select {
	case client.Send <- msg:
		return true
	default:
		log.Warn("Send buffer full for client %s, disconnecting", client.ID)
		m.drop(client)
		return false
	}
}

// broadcastOnline sends the presence snapshot to every open connection. If a
// slow client is dropped along the way the snapshot changed, so it goes again.
func (m *Manager) broadcastOnline() {
	for {
		online := m.directory.Online()
		metrics.OnlineUsers.Set(float64(len(online)))

		msg, err := Encode(EventOnlineUsers, online)
		if err != nil {
			log.Error("Failed to encode presence snapshot: %v", err)
			return
		}

		changed := false
		for client := range m.clients {
			select {
			case client.Send <- msg:
			default:
				log.Warn("Send buffer full for client %s, disconnecting", client.ID)
				if m.drop(client) {
					changed = true
				}
			}
		}
		if !changed {
			if m.mirror != nil {
				m.mirror.Publish(online)
			}
			return
		}
	}
}

func (m *Manager) push(userID uuid.UUID, event string, msg []byte) bool {
	client, ok := m.directory.Lookup(userID)
	if !ok {
		metrics.Pushes.WithLabelValues(event, "offline").Inc()
		log.Debug("User %s not connected, dropping %s", userID, event)
		return false
	}
	if !m.enqueue(client, msg) {
		metrics.Pushes.WithLabelValues(event, "dropped").Inc()
		m.broadcastOnline()
		return false
	}
	metrics.Pushes.WithLabelValues(event, "delivered").Inc()
	return true
}

// Notify pushes event to userID if they have a live connection. It reports
// whether the event was queued; an offline recipient is not an error.
func (m *Manager) Notify(userID uuid.UUID, event string, payload interface{}) bool {
	msg, err := Encode(event, payload)
	if err != nil {
		log.Error("Failed to encode %s: %v", event, err)
		return false
	}

	n := notification{userID: userID, event: event, msg: msg, result: make(chan bool, 1)}
	select {
	case m.notify <- n:
	case <-m.done:
		return false
	}
	return <-n.result
}

// Online returns the users currently in the presence directory
func (m *Manager) Online() []uuid.UUID {
	reply := make(chan []uuid.UUID, 1)
	select {
	case m.online <- reply:
	case <-m.done:
		return nil
	}
	return <-reply
}

func (m *Manager) sendDirect(client *Client, msg []byte) {
	select {
	case m.direct <- directMsg{client: client, msg: msg}:
	case <-m.done:
	}
}

func (m *Manager) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || m.allowAll {
		return true
	}
	if !m.allowedOrigins[origin] {
		log.Warn("Rejected websocket origin %s", origin)
		return false
	}
	return true
}

// HandleWebSocket upgrades an authenticated request. The userId query
// parameter, when present, must match the session.
func (m *Manager) HandleWebSocket(c *gin.Context) {
	// Get user ID from context (set by auth middleware)
	userID, exists := c.Get("userID")
	if !exists {
		log.Warn("No userID in context, rejecting connection from %s", c.Request.RemoteAddr)
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
		return
	}

	userUUID, ok := userID.(uuid.UUID)
	if !ok {
		log.Error("Invalid UUID in context from %s", c.Request.RemoteAddr)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Invalid user identification"})
		return
	}

	if q := c.Query("userId"); q != "" && q != userUUID.String() {
		log.Warn("userId %s does not match session %s", q, userUUID)
		c.JSON(http.StatusForbidden, gin.H{"message": "userId does not match session"})
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     m.checkOrigin,
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("Failed to upgrade connection: %v", err)
		return
	}

	client := newClient(userUUID, conn)

	select {
	case m.register <- client:
	case <-m.done:
		conn.Close()
		return
	}

	go client.readPump(m)
	go client.writePump()
	log.Debug("Client %s connected and ready", client.ID)
}
