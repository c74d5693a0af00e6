package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	chatws "github.com/ammar1510/chatty/internal/websocket"
)

const writeWait = 10 * time.Second

// ErrSocketClosed is returned by Relay after Close or a read failure
var ErrSocketClosed = errors.New("chatclient: socket closed")

// Socket is an open event connection. Frames are decoded into Events until
// the connection fails or Close is called.
type Socket struct {
	conn   *websocket.Conn
	events chan chatws.Envelope

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// Dial opens the event socket for the session user. Refused handshakes
// (401/403) fail at once; anything else is retried with backoff until ctx ends.
func (c *Client) Dial(ctx context.Context) (*Socket, error) {
	me, err := c.requireMe()
	if err != nil {
		return nil, err
	}

	u := *c.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path += "/api/ws"
	u.RawQuery = url.Values{"userId": {me}}.Encode()

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.conf.Timeout,
		Jar:              c.jar,
	}
	header := http.Header{}
	if token := c.bearer(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	var conn *websocket.Conn
	operation := func() error {
		cn, resp, err := dialer.DialContext(ctx, u.String(), header)
		if err != nil {
			if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
				return backoff.Permanent(readAPIError(resp))
			}
			log.Debug("Dial %s failed: %v", u.Host, err)
			return err
		}
		conn = cn
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = c.conf.RetryMaxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}

	s := &Socket{
		conn:   conn,
		events: make(chan chatws.Envelope, 64),
		done:   make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

// Events yields every decoded frame. The channel closes with the connection.
func (s *Socket) Events() <-chan chatws.Envelope {
	return s.events
}

func (s *Socket) readLoop() {
	defer close(s.events)
	defer s.Close()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("Socket read failed: %v", err)
			}
			return
		}

		var env chatws.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Warn("Dropping undecodable frame: %v", err)
			continue
		}
		select {
		case s.events <- env:
		case <-s.done:
			return
		}
	}
}

// Relay sends a client to server event such as sendFriendRequest
func (s *Socket) Relay(event string, payload interface{}) error {
	select {
	case <-s.done:
		return ErrSocketClosed
	default:
	}

	msg, err := chatws.Encode(event, payload)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, msg)
}

// Close ends the connection. It is safe to call more than once.
func (s *Socket) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.writeMu.Lock()
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}
