package websocket

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256

	// 60 frames a minute with room for short bursts
	relayRate  = rate.Limit(1)
	relayBurst = 10
)

// Client represents a connected websocket client
type Client struct {
	ID      uuid.UUID
	Socket  *websocket.Conn
	Send    chan []byte
	limiter *rate.Limiter
}

func newClient(id uuid.UUID, conn *websocket.Conn) *Client {
	return &Client{
		ID:      id,
		Socket:  conn,
		Send:    make(chan []byte, sendBuffer),
		limiter: rate.NewLimiter(relayRate, relayBurst),
	}
}

func (c *Client) replyError(m *Manager, message string) {
	msg, err := Encode(EventError, ErrorPayload{Message: message})
	if err != nil {
		return
	}
	m.sendDirect(c, msg)
}

// readPump handles client to server relays until the socket closes
func (c *Client) readPump(m *Manager) {
	defer func() {
		select {
		case m.unregister <- c:
		case <-m.done:
		}
		c.Socket.Close()
	}()

	c.Socket.SetReadLimit(maxMessageSize)
	c.Socket.SetReadDeadline(time.Now().Add(pongWait))
	c.Socket.SetPongHandler(func(string) error {
		c.Socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error("Error reading from client %s: %v", c.ID, err)
			} else {
				log.Debug("Client %s closed connection: %v", c.ID, err)
			}
			return
		}

		if !c.limiter.Allow() {
			log.Warn("Rate limit exceeded for client %s", c.ID)
			c.replyError(m, "Rate limit exceeded")
			continue
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			log.Debug("Invalid frame from client %s: %v", c.ID, err)
			c.replyError(m, "Invalid message format")
			continue
		}

		c.relay(m, env)
	}
}

// relay forwards a friend request notice to the other party. The payload is
// passed through untouched.
func (c *Client) relay(m *Manager, env Envelope) {
	var target relayTarget
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &target); err != nil {
			c.replyError(m, "Invalid payload")
			return
		}
	}

	var (
		to  uuid.UUID
		out string
	)
	switch env.Event {
	case EventSendFriendRequest:
		to, out = target.ReceiverID, EventNewFriendRequest
	case EventAcceptFriendRequest:
		to, out = target.SenderID, EventFriendRequestAccepted
	case EventRejectFriendRequest:
		to, out = target.SenderID, EventFriendRequestRejected
	default:
		log.Warn("Unknown event '%s' from client %s", env.Event, c.ID)
		c.replyError(m, "Unknown event")
		return
	}

	if to == uuid.Nil {
		c.replyError(m, "Missing recipient")
		return
	}

	log.Debug("Relaying %s from %s to %s", out, c.ID, to)
	m.Notify(to, out, env.Data)
}

// writePump writes queued frames and keeps the connection alive with pings
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Socket.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The manager closed the channel
				c.Socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Socket.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
