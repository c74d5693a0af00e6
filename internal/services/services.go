// Package services holds the account, messaging, friend graph and bot
// operations. Handlers call these; these call the store and push events.
package services

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ammar1510/chatty/internal/apperr"
	"github.com/ammar1510/chatty/internal/logger"
)

var log = logger.New("services")

// Notifier pushes a realtime event to a user. It reports false when the user
// has no live connection; that is never an error.
type Notifier interface {
	Notify(userID uuid.UUID, event string, payload interface{}) bool
}

// Clock returns the current time. Tests replace it to move past expiries.
type Clock func() time.Time

// internal logs the real cause and returns the generic 500 error
func internal(op string, err error) error {
	log.Error("%s: %v", op, err)
	return apperr.Wrap(apperr.KindInternal, "Internal server error", err)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
