package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ammar1510/chatty/internal/apperr"
	"github.com/ammar1510/chatty/internal/bot"
	"github.com/ammar1510/chatty/internal/database"
	"github.com/ammar1510/chatty/internal/metrics"
	"github.com/ammar1510/chatty/internal/models"
)

var ErrBotTextRequired = apperr.Validation("Sender ID and message text are required")

// BotService stores conversations with the AI participant. It never touches
// the realtime bus; replies go back in the HTTP response.
type BotService struct {
	db  database.BotStore
	gen bot.Generator
	now Clock
}

func NewBotService(db database.BotStore, gen bot.Generator) *BotService {
	return &BotService{db: db, gen: gen, now: time.Now}
}

// Converse asks the generator for a reply to text and stores the exchange as
// two rows. A failed or empty generation is replaced by the fallback reply.
func (s *BotService) Converse(ctx context.Context, userID uuid.UUID, text string) (*models.BotExchange, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrBotTextRequired
	}

	reply, err := s.gen.Generate(ctx, text)
	if err != nil || strings.TrimSpace(reply) == "" {
		if err != nil {
			log.Warn("Bot generation failed for %s: %v", userID, err)
		}
		reply = models.BotFallbackReply
		metrics.BotReplies.WithLabelValues("fallback").Inc()
	} else {
		metrics.BotReplies.WithLabelValues("generated").Inc()
	}

	exchange := models.NewBotExchange(userID, text, reply, s.now())
	if err := s.db.CreateBotExchange(ctx, exchange); err != nil {
		return nil, internal("store bot exchange", err)
	}
	return exchange, nil
}

// History returns both directions of userID's bot conversation, oldest first
func (s *BotService) History(ctx context.Context, userID uuid.UUID) ([]*models.BotMessage, error) {
	msgs, err := s.db.GetBotConversation(ctx, userID.String())
	if err != nil {
		return nil, internal("bot history", err)
	}
	return msgs, nil
}

// Clear deletes userID's bot conversation
func (s *BotService) Clear(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := s.db.DeleteBotConversation(ctx, userID.String())
	if err != nil {
		return 0, internal("clear bot chat", err)
	}
	log.Info("Cleared %d bot messages for %s", n, userID)
	return n, nil
}
