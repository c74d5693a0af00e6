package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ammar1510/chatty/internal/models"
	"github.com/ammar1510/chatty/internal/services"
)

// MessageHandler handles message-related routes. A peer id of AI_BOT is
// served by the bot service instead of the message store.
type MessageHandler struct {
	Messages *services.MessageService
	Bots     *services.BotService
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(messages *services.MessageService, bots *services.BotService) *MessageHandler {
	return &MessageHandler{Messages: messages, Bots: bots}
}

// GetUsers returns the sidebar: the caller's friends
func (h *MessageHandler) GetUsers(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	friends, err := h.Messages.Sidebar(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]models.UserResponse, 0, len(friends))
	for _, f := range friends {
		out = append(out, f.Response())
	}
	c.JSON(http.StatusOK, out)
}

// GetConversation returns the visible history between the caller and :id
func (h *MessageHandler) GetConversation(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	if c.Param("id") == models.BotID {
		history, err := h.Bots.History(c.Request.Context(), userID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, history)
		return
	}

	peerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "Invalid user ID")
		return
	}

	messages, err := h.Messages.ListBetween(c.Request.Context(), userID, peerID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

// SendMessage handles the creation of a new message to :id
func (h *MessageHandler) SendMessage(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req models.MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	if c.Param("id") == models.BotID {
		exchange, err := h.Bots.Converse(c.Request.Context(), userID, req.Text)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, exchange.BotTurn)
		return
	}

	receiverID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "Invalid user ID")
		return
	}

	message, err := h.Messages.Send(c.Request.Context(), userID, receiverID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, message)
}

// ClearChat hides the conversation with chatUserId for the caller only
func (h *MessageHandler) ClearChat(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req models.ClearChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request parameters")
		return
	}
	if req.UserID != userID {
		c.JSON(http.StatusForbidden, gin.H{"message": "You can only clear your own chats"})
		return
	}

	if _, err := h.Messages.HideForUser(c.Request.Context(), userID, req.ChatUserID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Chat cleared for this user only"})
}

// DeleteMessage removes a message for both participants
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	messageID, err := uuid.Parse(c.Param("messageId"))
	if err != nil {
		badRequest(c, "Message ID is required")
		return
	}

	if err := h.Messages.Delete(c.Request.Context(), messageID, userID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Message deleted successfully"})
}
