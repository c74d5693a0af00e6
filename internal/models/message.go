package models

import (
	"time"

	"github.com/google/uuid"
)

// Message represents a chat message between two users
type Message struct {
	ID         uuid.UUID   `json:"id"`
	SenderID   uuid.UUID   `json:"senderId"`
	ReceiverID uuid.UUID   `json:"receiverId"`
	Text       string      `json:"text,omitempty"`
	Image      string      `json:"image,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
	HiddenFor  []uuid.UUID `json:"hiddenFor"`
}

// MessageRequest is the structure for message creation requests
type MessageRequest struct {
	Text  string `json:"text"`
	Image string `json:"image"`
}

// ClearChatRequest is the body of POST /messages/clear-chat
type ClearChatRequest struct {
	UserID     uuid.UUID `json:"userId" binding:"required"`
	ChatUserID uuid.UUID `json:"chatUserId" binding:"required"`
}

// Involves reports whether id is the sender or the receiver of m.
func (m *Message) Involves(id uuid.UUID) bool {
	return m.SenderID == id || m.ReceiverID == id
}

// Counterpart returns the party of m that is not id.
func (m *Message) Counterpart(id uuid.UUID) uuid.UUID {
	if m.SenderID == id {
		return m.ReceiverID
	}
	return m.SenderID
}

// HiddenForUser reports whether m is suppressed for viewer.
func (m *Message) HiddenForUser(viewer uuid.UUID) bool {
	for _, id := range m.HiddenFor {
		if id == viewer {
			return true
		}
	}
	return false
}
