package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ammar1510/chatty/internal/models"
)

var (
	ErrUserNotFound          = errors.New("user not found")
	ErrUserAlreadyExists     = errors.New("user already exists")
	ErrMessageNotFound       = errors.New("message not found")
	ErrFriendRequestNotFound = errors.New("friend request not found")
	ErrFriendRequestExists   = errors.New("friend request already exists")
)

// UserStore persists accounts and the friend relation
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByVerificationCode(ctx context.Context, code string, now time.Time) (*models.User, error)
	GetUserByResetToken(ctx context.Context, token string, now time.Time) (*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
	// DeleteUnverifiedUser removes the account only if it is still unverified
	// and its verification window closed before now.
	DeleteUnverifiedUser(ctx context.Context, email string, now time.Time) (bool, error)
	DeleteExpiredUnverifiedUsers(ctx context.Context, now time.Time) (int64, error)
	SearchUsersByEmail(ctx context.Context, fragment string, excludeUserID uuid.UUID) ([]*models.User, error)

	GetFriends(ctx context.Context, userID uuid.UUID) ([]*models.User, error)
	AreFriends(ctx context.Context, userID, otherID uuid.UUID) (bool, error)
	// AddFriendship inserts both directions; existing rows are left as is.
	AddFriendship(ctx context.Context, userID, otherID uuid.UUID) error
	RemoveFriendship(ctx context.Context, userID, otherID uuid.UUID) error
}

// MessageStore persists peer messages and their per-viewer hidden set
type MessageStore interface {
	CreateMessage(ctx context.Context, msg *models.Message) error
	GetMessageByID(ctx context.Context, id uuid.UUID) (*models.Message, error)
	// GetConversation returns messages between a and b not hidden for viewer, oldest first.
	GetConversation(ctx context.Context, a, b, viewer uuid.UUID) ([]*models.Message, error)
	HideConversation(ctx context.Context, viewer, other uuid.UUID) (int64, error)
	DeleteMessage(ctx context.Context, id uuid.UUID) (*models.Message, error)
}

// BotStore persists bot exchanges
type BotStore interface {
	CreateBotExchange(ctx context.Context, exchange *models.BotExchange) error
	GetBotConversation(ctx context.Context, userID string) ([]*models.BotMessage, error)
	DeleteBotConversation(ctx context.Context, userID string) (int64, error)
}

// FriendRequestStore persists friend requests
type FriendRequestStore interface {
	CreateFriendRequest(ctx context.Context, req *models.FriendRequest) error
	GetFriendRequest(ctx context.Context, id uuid.UUID) (*models.FriendRequest, error)
	FindFriendRequest(ctx context.Context, senderID, receiverID uuid.UUID) (*models.FriendRequest, error)
	ListPendingRequests(ctx context.Context, receiverID uuid.UUID) ([]*models.FriendRequest, error)
	UpdateFriendRequestStatus(ctx context.Context, id uuid.UUID, status models.FriendRequestStatus) error
	DeleteFriendRequest(ctx context.Context, id uuid.UUID) error
	DeleteFriendRequestsBetween(ctx context.Context, a, b uuid.UUID) (int64, error)
}

// DBInterface is everything the services need from storage
type DBInterface interface {
	UserStore
	MessageStore
	BotStore
	FriendRequestStore

	Ping(ctx context.Context) error
	Close() error
}

type DatabaseType string

const (
	PostgreSQL DatabaseType = "postgres"
	Memory     DatabaseType = "memory"
)

func NewDatabase(dbType DatabaseType, connStr string) (DBInterface, error) {
	switch dbType {
	case PostgreSQL:
		return NewPostgresDB(connStr)
	case Memory:
		return NewMemoryDB(), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
}
