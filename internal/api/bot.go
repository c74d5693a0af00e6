package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ammar1510/chatty/internal/models"
	"github.com/ammar1510/chatty/internal/services"
)

// BotHandler handles /bot routes
type BotHandler struct {
	Bots *services.BotService
}

func NewBotHandler(bots *services.BotService) *BotHandler {
	return &BotHandler{Bots: bots}
}

// ownSender checks that the senderId named by the client is the session user
func ownSender(c *gin.Context, senderID string) (uuid.UUID, bool) {
	userID, ok := requireUser(c)
	if !ok {
		return uuid.Nil, false
	}
	if senderID == "" {
		badRequest(c, "Sender ID is required")
		return uuid.Nil, false
	}
	if senderID != userID.String() {
		c.JSON(http.StatusForbidden, gin.H{"message": "senderId does not match session"})
		return uuid.Nil, false
	}
	return userID, true
}

// Chat sends text to the bot and returns its reply
func (h *BotHandler) Chat(c *gin.Context) {
	var req models.BotChatRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SenderID == "" || req.Text == "" {
		badRequest(c, "Sender ID and message text are required")
		return
	}
	userID, ok := ownSender(c, req.SenderID)
	if !ok {
		return
	}

	exchange, err := h.Bots.Converse(c.Request.Context(), userID, req.Text)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.BotChatResponse{
		SenderID:    req.SenderID,
		Text:        exchange.UserTurn.Message,
		Reply:       exchange.BotTurn.Message,
		CreatedAt:   exchange.CreatedAt,
		ExchangeID:  exchange.ID,
		UserMessage: exchange.UserTurn,
		BotMessage:  exchange.BotTurn,
	})
}

// GetMessages returns the caller's bot conversation
func (h *BotHandler) GetMessages(c *gin.Context) {
	userID, ok := ownSender(c, c.Param("senderId"))
	if !ok {
		return
	}

	history, err := h.Bots.History(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

// ClearChat deletes the caller's bot conversation
func (h *BotHandler) ClearChat(c *gin.Context) {
	var req struct {
		SenderID string `json:"senderId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "User ID is required")
		return
	}
	userID, ok := ownSender(c, req.SenderID)
	if !ok {
		return
	}

	if _, err := h.Bots.Clear(c.Request.Context(), userID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Bot chat cleared successfully"})
}
