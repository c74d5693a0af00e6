package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammar1510/chatty/internal/apperr"
	"github.com/ammar1510/chatty/internal/database"
	"github.com/ammar1510/chatty/internal/models"
	"github.com/ammar1510/chatty/internal/websocket"
)

func newFriendFixture(t *testing.T) (*FriendService, *database.MemoryDB, *models.User, *models.User, *fakeNotifier) {
	t.Helper()
	db := database.NewMemoryDB()
	a := createUser(t, db, "alice@example.com", "secret1")
	b := createUser(t, db, "bob@example.com", "secret1")
	notifier := newFakeNotifier(a.ID, b.ID)
	return NewFriendService(db, notifier), db, a, b, notifier
}

func areFriends(t *testing.T, db database.DBInterface, a, b uuid.UUID) bool {
	t.Helper()
	ab, err := db.AreFriends(context.Background(), a, b)
	require.NoError(t, err)
	ba, err := db.AreFriends(context.Background(), b, a)
	require.NoError(t, err)
	require.Equal(t, ab, ba, "friendship must be symmetric")
	return ab
}

func TestFriendRequestValidation(t *testing.T) {
	svc, _, a, _, _ := newFriendFixture(t)
	ctx := context.Background()

	_, err := svc.Request(ctx, a.ID, "ghost@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = svc.Request(ctx, a.ID, "ALICE@example.com")
	assert.ErrorIs(t, err, ErrSelfRequest)

	_, err = svc.Request(ctx, a.ID, "")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestFriendRequestLifecycle(t *testing.T) {
	svc, db, a, b, notifier := newFriendFixture(t)
	ctx := context.Background()

	req, err := svc.Request(ctx, a.ID, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, req.Status)

	pushes := notifier.events(b.ID)
	require.Len(t, pushes, 1)
	assert.Equal(t, websocket.EventNewFriendRequest, pushes[0].event)

	_, err = svc.Request(ctx, a.ID, "bob@example.com")
	assert.ErrorIs(t, err, ErrRequestAlreadySent)

	pending, err := svc.Pending(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, a.ID, pending[0].Sender.ID)
	assert.Equal(t, "alice@example.com", pending[0].Sender.Email)

	// Only the receiver accepts
	assert.ErrorIs(t, svc.Accept(ctx, a.ID, req.ID), ErrNotRequestReceiver)

	require.NoError(t, svc.Accept(ctx, b.ID, req.ID))
	assert.True(t, areFriends(t, db, a.ID, b.ID))

	aPush := notifier.events(a.ID)
	require.Len(t, aPush, 1)
	assert.Equal(t, websocket.EventFriendRequestAccepted, aPush[0].event)
	assert.Equal(t, b.ID, aPush[0].payload.(models.PublicUser).ID)

	bPush := notifier.events(b.ID)
	require.Len(t, bPush, 2)
	assert.Equal(t, a.ID, bPush[1].payload.(models.PublicUser).ID)

	// Accepting again changes nothing
	require.NoError(t, svc.Accept(ctx, b.ID, req.ID))
	friends, err := svc.Friends(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, friends, 1)
	assert.Equal(t, b.ID, friends[0].ID)

	pending, err = svc.Pending(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = svc.Request(ctx, a.ID, "bob@example.com")
	assert.ErrorIs(t, err, ErrAlreadyFriends)
	_, err = svc.Request(ctx, b.ID, "alice@example.com")
	assert.ErrorIs(t, err, ErrAlreadyFriends)
}

func TestRejectThenRequestAgain(t *testing.T) {
	svc, db, a, b, _ := newFriendFixture(t)
	ctx := context.Background()
	outsider := createUser(t, db, "carol@example.com", "secret1")

	req, err := svc.Request(ctx, a.ID, "bob@example.com")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Reject(ctx, outsider.ID, req.ID), ErrNotRequestParty)
	require.NoError(t, svc.Reject(ctx, b.ID, req.ID))
	assert.ErrorIs(t, svc.Reject(ctx, b.ID, req.ID), ErrRequestNotFound)
	assert.ErrorIs(t, svc.Accept(ctx, b.ID, req.ID), ErrRequestNotFound)
	assert.False(t, areFriends(t, db, a.ID, b.ID))

	again, err := svc.Request(ctx, a.ID, "bob@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, req.ID, again.ID)
}

func TestRemoveFriend(t *testing.T) {
	svc, db, a, b, _ := newFriendFixture(t)
	ctx := context.Background()

	req, err := svc.Request(ctx, a.ID, "bob@example.com")
	require.NoError(t, err)
	require.NoError(t, svc.Accept(ctx, b.ID, req.ID))

	require.NoError(t, svc.Remove(ctx, b.ID, a.ID))
	assert.False(t, areFriends(t, db, a.ID, b.ID))

	_, err = db.GetFriendRequest(ctx, req.ID)
	assert.ErrorIs(t, err, database.ErrFriendRequestNotFound)

	// Removing twice is fine
	require.NoError(t, svc.Remove(ctx, b.ID, a.ID))

	// Either side can start over
	_, err = svc.Request(ctx, b.ID, "alice@example.com")
	require.NoError(t, err)
}

func TestSearchUsers(t *testing.T) {
	svc, db, a, _, _ := newFriendFixture(t)
	ctx := context.Background()
	createUser(t, db, "bobby@other.org", "secret1")

	_, err := svc.Search(ctx, "  ", a.ID)
	assert.ErrorIs(t, err, ErrSearchQueryRequired)

	users, err := svc.Search(ctx, "BOB", a.ID)
	require.NoError(t, err)
	emails := make([]string, 0, len(users))
	for _, u := range users {
		emails = append(emails, u.Email)
	}
	assert.ElementsMatch(t, []string{"bob@example.com", "bobby@other.org"}, emails)

	// The caller never finds themselves
	users, err = svc.Search(ctx, "alice", a.ID)
	require.NoError(t, err)
	assert.Empty(t, users)
}
