package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ammar1510/chatty/internal/apperr"
	"github.com/ammar1510/chatty/internal/database"
	"github.com/ammar1510/chatty/internal/models"
	"github.com/ammar1510/chatty/internal/storage"
	"github.com/ammar1510/chatty/internal/websocket"
)

var (
	ErrEmptyMessage     = apperr.Validation("Message must contain text or an image")
	ErrMessageNotFound  = apperr.NotFound("Message not found")
	ErrReceiverNotFound = apperr.NotFound("Receiver not found")
	ErrNotParticipant   = apperr.Forbidden("You can only delete messages from your own conversations")
)

// MessageService handles peer messages. Conversations with the bot never
// reach it; they go through BotService.
type MessageService struct {
	db       database.DBInterface
	images   storage.ImageStore
	notifier Notifier
	now      Clock
}

func NewMessageService(db database.DBInterface, images storage.ImageStore, notifier Notifier) *MessageService {
	return &MessageService{db: db, images: images, notifier: notifier, now: time.Now}
}

// Sidebar returns the caller's friends, which are the users they can chat with
func (s *MessageService) Sidebar(ctx context.Context, userID uuid.UUID) ([]*models.User, error) {
	if _, err := s.db.GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return nil, apperr.NotFound("User not found")
		}
		return nil, internal("sidebar user", err)
	}
	friends, err := s.db.GetFriends(ctx, userID)
	if err != nil {
		return nil, internal("sidebar friends", err)
	}
	return friends, nil
}

// Send stores a message and pushes it to the receiver. An image data URL is
// uploaded first and the hosted URL is stored.
func (s *MessageService) Send(ctx context.Context, senderID, receiverID uuid.UUID, req models.MessageRequest) (*models.Message, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" && req.Image == "" {
		return nil, ErrEmptyMessage
	}

	if _, err := s.db.GetUserByID(ctx, receiverID); err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return nil, ErrReceiverNotFound
		}
		return nil, internal("send receiver lookup", err)
	}

	msg := &models.Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       text,
		CreatedAt:  s.now(),
	}
	if req.Image != "" {
		url, err := uploadImage(ctx, s.images, storage.FolderMessages, req.Image)
		if err != nil {
			return nil, err
		}
		msg.Image = url
	}

	if err := s.db.CreateMessage(ctx, msg); err != nil {
		return nil, internal("create message", err)
	}

	if !s.notifier.Notify(receiverID, websocket.EventNewMessage, msg) {
		log.Debug("Receiver %s offline, message %s stored only", receiverID, msg.ID)
	}
	return msg, nil
}

// ListBetween returns the conversation of a and b as viewer sees it, oldest first
func (s *MessageService) ListBetween(ctx context.Context, a, b, viewer uuid.UUID) ([]*models.Message, error) {
	msgs, err := s.db.GetConversation(ctx, a, b, viewer)
	if err != nil {
		return nil, internal("list messages", err)
	}
	return msgs, nil
}

// HideForUser clears the conversation with other for userID only. Running it
// twice changes nothing.
func (s *MessageService) HideForUser(ctx context.Context, userID, other uuid.UUID) (int64, error) {
	n, err := s.db.HideConversation(ctx, userID, other)
	if err != nil {
		return 0, internal("hide conversation", err)
	}
	log.Debug("Hid %d messages with %s for %s", n, other, userID)
	return n, nil
}

// Delete removes a message for both sides. Only a participant may delete it;
// the other participant is told by a deleteMessage event.
func (s *MessageService) Delete(ctx context.Context, messageID, callerID uuid.UUID) error {
	msg, err := s.db.GetMessageByID(ctx, messageID)
	if errors.Is(err, database.ErrMessageNotFound) {
		return ErrMessageNotFound
	}
	if err != nil {
		return internal("delete lookup", err)
	}
	if !msg.Involves(callerID) {
		return ErrNotParticipant
	}

	if _, err := s.db.DeleteMessage(ctx, messageID); err != nil {
		if errors.Is(err, database.ErrMessageNotFound) {
			return ErrMessageNotFound
		}
		return internal("delete message", err)
	}

	s.notifier.Notify(msg.Counterpart(callerID), websocket.EventDeleteMessage, messageID.String())
	return nil
}
