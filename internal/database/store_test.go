package database

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammar1510/chatty/internal/models"
)

// storeSuite runs the same behavioural checks against every DBInterface implementation
func storeSuite(t *testing.T, newDB func(t *testing.T) DBInterface) {
	t.Run("users", func(t *testing.T) { testUsers(t, newDB(t)) })
	t.Run("unverified sweep", func(t *testing.T) { testUnverifiedSweep(t, newDB(t)) })
	t.Run("search", func(t *testing.T) { testSearch(t, newDB(t)) })
	t.Run("friends", func(t *testing.T) { testFriends(t, newDB(t)) })
	t.Run("messages", func(t *testing.T) { testMessages(t, newDB(t)) })
	t.Run("bot exchanges", func(t *testing.T) { testBotExchanges(t, newDB(t)) })
	t.Run("friend requests", func(t *testing.T) { testFriendRequests(t, newDB(t)) })
}

func createTestUser(t *testing.T, db DBInterface, email string) *models.User {
	t.Helper()
	user := &models.User{
		Email:        email,
		FullName:     "User " + email,
		PasswordHash: "hash",
		IsVerified:   true,
	}
	require.NoError(t, db.CreateUser(context.Background(), user))
	return user
}

func testUsers(t *testing.T, db DBInterface) {
	ctx := context.Background()

	user := createTestUser(t, db, "alice@example.com")
	assert.NotEqual(t, uuid.Nil, user.ID)

	err := db.CreateUser(ctx, &models.User{Email: "alice@example.com", FullName: "Dup", PasswordHash: "x"})
	assert.ErrorIs(t, err, ErrUserAlreadyExists)

	got, err := db.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, "hash", got.PasswordHash)

	_, err = db.GetUserByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrUserNotFound)

	got.About = "hello"
	expires := time.Now().Add(time.Hour)
	got.ResetToken = "token123"
	got.ResetExpiresAt = &expires
	require.NoError(t, db.UpdateUser(ctx, got))

	byToken, err := db.GetUserByResetToken(ctx, "token123", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "hello", byToken.About)

	_, err = db.GetUserByResetToken(ctx, "token123", expires.Add(time.Second))
	assert.ErrorIs(t, err, ErrUserNotFound)

	err = db.UpdateUser(ctx, &models.User{ID: uuid.New(), Email: "ghost@example.com"})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func testUnverifiedSweep(t *testing.T, db DBInterface) {
	ctx := context.Background()
	now := time.Now()
	expires := now.Add(15 * time.Minute)

	pending := &models.User{
		Email:                 "pending@example.com",
		FullName:              "Pending",
		PasswordHash:          "hash",
		VerificationCode:      "123456",
		VerificationExpiresAt: &expires,
	}
	require.NoError(t, db.CreateUser(ctx, pending))
	verified := createTestUser(t, db, "verified@example.com")

	got, err := db.GetUserByVerificationCode(ctx, "123456", now)
	require.NoError(t, err)
	assert.Equal(t, pending.ID, got.ID)

	_, err = db.GetUserByVerificationCode(ctx, "123456", expires.Add(time.Second))
	assert.ErrorIs(t, err, ErrUserNotFound)

	// Window still open
	deleted, err := db.DeleteUnverifiedUser(ctx, "pending@example.com", now)
	require.NoError(t, err)
	assert.False(t, deleted)

	// Verified accounts are never swept
	deleted, err = db.DeleteUnverifiedUser(ctx, verified.Email, expires.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, deleted)

	n, err := db.DeleteExpiredUnverifiedUsers(ctx, expires.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = db.GetUserByEmail(ctx, "pending@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = db.GetUserByEmail(ctx, verified.Email)
	assert.NoError(t, err)
}

func testSearch(t *testing.T, db DBInterface) {
	ctx := context.Background()
	me := createTestUser(t, db, "me@chat.io")
	createTestUser(t, db, "bob@chat.io")
	createTestUser(t, db, "carol@other.io")
	createTestUser(t, db, "under_score@chat.io")

	users, err := db.SearchUsersByEmail(ctx, "CHAT", me.ID)
	require.NoError(t, err)
	emails := make([]string, 0, len(users))
	for _, u := range users {
		emails = append(emails, u.Email)
	}
	assert.Equal(t, []string{"bob@chat.io", "under_score@chat.io"}, emails)

	// LIKE wildcards in the fragment match literally
	users, err = db.SearchUsersByEmail(ctx, "_", me.ID)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "under_score@chat.io", users[0].Email)
}

func testFriends(t *testing.T, db DBInterface) {
	ctx := context.Background()
	a := createTestUser(t, db, "a@example.com")
	b := createTestUser(t, db, "b@example.com")

	require.NoError(t, db.AddFriendship(ctx, a.ID, b.ID))
	require.NoError(t, db.AddFriendship(ctx, b.ID, a.ID))

	for _, pair := range [][2]uuid.UUID{{a.ID, b.ID}, {b.ID, a.ID}} {
		ok, err := db.AreFriends(ctx, pair[0], pair[1])
		require.NoError(t, err)
		assert.True(t, ok)
	}

	friends, err := db.GetFriends(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, friends, 1)
	assert.Equal(t, b.ID, friends[0].ID)

	require.NoError(t, db.RemoveFriendship(ctx, b.ID, a.ID))
	ok, err := db.AreFriends(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func testMessages(t *testing.T, db DBInterface) {
	ctx := context.Background()
	a := createTestUser(t, db, "ma@example.com")
	b := createTestUser(t, db, "mb@example.com")
	c := createTestUser(t, db, "mc@example.com")

	base := time.Now().Add(-time.Minute).Truncate(time.Millisecond)
	first := &models.Message{SenderID: a.ID, ReceiverID: b.ID, Text: "hi", CreatedAt: base}
	second := &models.Message{SenderID: b.ID, ReceiverID: a.ID, Image: "https://img/x.png", CreatedAt: base.Add(time.Second)}
	other := &models.Message{SenderID: a.ID, ReceiverID: c.ID, Text: "elsewhere", CreatedAt: base}
	for _, m := range []*models.Message{second, first, other} {
		require.NoError(t, db.CreateMessage(ctx, m))
	}

	conv, err := db.GetConversation(ctx, b.ID, a.ID, a.ID)
	require.NoError(t, err)
	require.Len(t, conv, 2)
	assert.Equal(t, first.ID, conv[0].ID)
	assert.Equal(t, second.ID, conv[1].ID)
	assert.Empty(t, conv[0].HiddenFor)

	n, err := db.HideConversation(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// Hiding again adds nothing
	n, err = db.HideConversation(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	conv, err = db.GetConversation(ctx, a.ID, b.ID, a.ID)
	require.NoError(t, err)
	assert.Empty(t, conv)

	conv, err = db.GetConversation(ctx, a.ID, b.ID, b.ID)
	require.NoError(t, err)
	require.Len(t, conv, 2)
	assert.Equal(t, []uuid.UUID{a.ID}, conv[0].HiddenFor)

	deleted, err := db.DeleteMessage(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, deleted.SenderID)

	_, err = db.GetMessageByID(ctx, first.ID)
	assert.ErrorIs(t, err, ErrMessageNotFound)
	_, err = db.DeleteMessage(ctx, first.ID)
	assert.ErrorIs(t, err, ErrMessageNotFound)

	got, err := db.GetMessageByID(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, "elsewhere", got.Text)
}

func testBotExchanges(t *testing.T, db DBInterface) {
	ctx := context.Background()
	user := uuid.New()
	other := uuid.New()

	base := time.Now().Truncate(time.Millisecond)
	first := models.NewBotExchange(user, "hello", "hi there", base)
	second := models.NewBotExchange(user, "how are you", models.BotFallbackReply, base.Add(time.Second))
	unrelated := models.NewBotExchange(other, "x", "y", base)
	for _, ex := range []*models.BotExchange{second, first, unrelated} {
		require.NoError(t, db.CreateBotExchange(ctx, ex))
	}

	conv, err := db.GetBotConversation(ctx, user.String())
	require.NoError(t, err)
	require.Len(t, conv, 4)

	assert.Equal(t, models.TurnUser, conv[0].Turn)
	assert.Equal(t, "hello", conv[0].Message)
	assert.Equal(t, models.TurnBot, conv[1].Turn)
	assert.Equal(t, "hi there", conv[1].Message)
	assert.Equal(t, models.BotID, conv[1].SenderID)
	assert.Equal(t, first.ID, conv[1].ExchangeID)
	assert.Equal(t, second.ID, conv[2].ExchangeID)

	n, err := db.DeleteBotConversation(ctx, user.String())
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	conv, err = db.GetBotConversation(ctx, other.String())
	require.NoError(t, err)
	assert.Len(t, conv, 2)
}

func testFriendRequests(t *testing.T, db DBInterface) {
	ctx := context.Background()
	a := createTestUser(t, db, "ra@example.com")
	b := createTestUser(t, db, "rb@example.com")

	req := &models.FriendRequest{SenderID: a.ID, ReceiverID: b.ID}
	require.NoError(t, db.CreateFriendRequest(ctx, req))
	assert.Equal(t, models.StatusPending, req.Status)

	err := db.CreateFriendRequest(ctx, &models.FriendRequest{SenderID: a.ID, ReceiverID: b.ID})
	assert.ErrorIs(t, err, ErrFriendRequestExists)

	// The reverse direction is a different pair
	reverse := &models.FriendRequest{SenderID: b.ID, ReceiverID: a.ID}
	require.NoError(t, db.CreateFriendRequest(ctx, reverse))

	pending, err := db.ListPendingRequests(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, req.ID, pending[0].ID)

	require.NoError(t, db.UpdateFriendRequestStatus(ctx, req.ID, models.StatusAccepted))
	pending, err = db.ListPendingRequests(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)

	found, err := db.FindFriendRequest(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, found.Status)

	require.NoError(t, db.DeleteFriendRequest(ctx, reverse.ID))
	assert.ErrorIs(t, db.DeleteFriendRequest(ctx, reverse.ID), ErrFriendRequestNotFound)

	n, err := db.DeleteFriendRequestsBetween(ctx, b.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = db.GetFriendRequest(ctx, req.ID)
	assert.ErrorIs(t, err, ErrFriendRequestNotFound)
	assert.ErrorIs(t, db.UpdateFriendRequestStatus(ctx, req.ID, models.StatusAccepted), ErrFriendRequestNotFound)
}
