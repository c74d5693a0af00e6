package models

import (
	"time"

	"github.com/google/uuid"
)

// BotID is the reserved identifier of the AI chat participant. It is not a
// uuid, so it can never collide with a real user or enter the presence directory.
const BotID = "AI_BOT"

// BotFallbackReply is returned whenever the generator fails or returns nothing.
const BotFallbackReply = "Sorry, I am unable to respond at the moment."

// Turn tags which side of an exchange a BotMessage row represents.
type Turn string

const (
	TurnUser Turn = "user"
	TurnBot  Turn = "bot"
)

// BotMessage is one directional row of a bot exchange.
type BotMessage struct {
	ID         uuid.UUID `json:"id"`
	ExchangeID uuid.UUID `json:"exchangeId"`
	Turn       Turn      `json:"turn"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Message    string    `json:"message"`
	Reply      string    `json:"reply"`
	CreatedAt  time.Time `json:"createdAt"`
}

// BotExchange is a user prompt plus the bot reply, stored as two rows.
type BotExchange struct {
	ID        uuid.UUID   `json:"exchangeId"`
	UserTurn  *BotMessage `json:"userMessage"`
	BotTurn   *BotMessage `json:"botMessage"`
	CreatedAt time.Time   `json:"createdAt"`
}

// NewBotExchange builds both rows of an exchange from one prompt/reply pair.
func NewBotExchange(userID uuid.UUID, text, reply string, now time.Time) *BotExchange {
	exchangeID := uuid.New()
	user := userID.String()
	return &BotExchange{
		ID:        exchangeID,
		CreatedAt: now,
		UserTurn: &BotMessage{
			ID:         uuid.New(),
			ExchangeID: exchangeID,
			Turn:       TurnUser,
			SenderID:   user,
			ReceiverID: BotID,
			Message:    text,
			Reply:      reply,
			CreatedAt:  now,
		},
		BotTurn: &BotMessage{
			ID:         uuid.New(),
			ExchangeID: exchangeID,
			Turn:       TurnBot,
			SenderID:   BotID,
			ReceiverID: user,
			Message:    reply,
			Reply:      text,
			CreatedAt:  now,
		},
	}
}

// BotChatRequest is the body of POST /bot/chat
type BotChatRequest struct {
	SenderID string `json:"senderId"`
	Text     string `json:"text"`
}

// BotChatResponse keeps the original flat fields alongside both stored rows.
type BotChatResponse struct {
	SenderID    string      `json:"senderId"`
	Text        string      `json:"text"`
	Reply       string      `json:"reply"`
	CreatedAt   time.Time   `json:"createdAt"`
	ExchangeID  uuid.UUID   `json:"exchangeId"`
	UserMessage *BotMessage `json:"userMessage"`
	BotMessage  *BotMessage `json:"botMessage"`
}
