package websocket

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Server to client events
const (
	EventOnlineUsers           = "getOnlineUsers"
	EventNewMessage            = "newMessage"
	EventDeleteMessage         = "deleteMessage"
	EventNewFriendRequest      = "newFriendRequest"
	EventFriendRequestAccepted = "friendRequestAccepted"
	EventFriendRequestRejected = "friendRequestRejected"
	EventError                 = "error"
)

// Client to server relays
const (
	EventSendFriendRequest   = "sendFriendRequest"
	EventAcceptFriendRequest = "acceptFriendRequest"
	EventRejectFriendRequest = "rejectFriendRequest"
)

// Envelope is the frame format in both directions
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// relayTarget is the part of a relay payload that picks the recipient
type relayTarget struct {
	ReceiverID uuid.UUID `json:"receiverId"`
	SenderID   uuid.UUID `json:"senderId"`
}

// ErrorPayload is sent back to a client whose frame could not be handled
type ErrorPayload struct {
	Message string `json:"message"`
}

// Encode wraps payload in an Envelope
func Encode(event string, payload interface{}) ([]byte, error) {
	var data json.RawMessage
	switch p := payload.(type) {
	case nil:
	case json.RawMessage:
		data = p
	default:
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		data = b
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}
