package models

import (
	"time"

	"github.com/google/uuid"
)

// FriendRequestStatus is the state of a request row. Rejected requests are
// deleted instead of getting a terminal status.
type FriendRequestStatus string

const (
	StatusPending  FriendRequestStatus = "pending"
	StatusAccepted FriendRequestStatus = "accepted"
)

// FriendRequest is a request from SenderID to ReceiverID
type FriendRequest struct {
	ID         uuid.UUID           `json:"id"`
	SenderID   uuid.UUID           `json:"senderId"`
	ReceiverID uuid.UUID           `json:"receiverId"`
	Status     FriendRequestStatus `json:"status"`
	CreatedAt  time.Time           `json:"createdAt"`
	UpdatedAt  time.Time           `json:"updatedAt"`
}

// FriendRequestView is a pending request with the sender hydrated.
type FriendRequestView struct {
	FriendRequest
	Sender PublicUser `json:"sender"`
}

// SendFriendRequest is the body of POST /friends/send
type SendFriendRequest struct {
	Email string `json:"email" binding:"required"`
}

// FriendRequestAction is the body of POST /friends/accept and /friends/reject
type FriendRequestAction struct {
	RequestID string `json:"requestId" binding:"required"`
}
