package database

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ammar1510/chatty/internal/models"
)

type friendPair struct {
	user, friend uuid.UUID
}

type requestPair struct {
	sender, receiver uuid.UUID
}

// MemoryDB keeps everything in process. It is used by DB_TYPE=memory and by
// tests; every value handed out is a copy.
type MemoryDB struct {
	mu sync.RWMutex

	users    map[uuid.UUID]*models.User
	friends  map[friendPair]time.Time
	messages map[uuid.UUID]*models.Message
	hidden   map[uuid.UUID]map[uuid.UUID]struct{}
	bot      []*models.BotMessage
	requests map[uuid.UUID]*models.FriendRequest
	byPair   map[requestPair]uuid.UUID
}

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		users:    make(map[uuid.UUID]*models.User),
		friends:  make(map[friendPair]time.Time),
		messages: make(map[uuid.UUID]*models.Message),
		hidden:   make(map[uuid.UUID]map[uuid.UUID]struct{}),
		requests: make(map[uuid.UUID]*models.FriendRequest),
		byPair:   make(map[requestPair]uuid.UUID),
	}
}

func (db *MemoryDB) Ping(ctx context.Context) error { return ctx.Err() }

func (db *MemoryDB) Close() error { return nil }

func copyUser(u *models.User) *models.User {
	c := *u
	if u.VerificationExpiresAt != nil {
		t := *u.VerificationExpiresAt
		c.VerificationExpiresAt = &t
	}
	if u.ResetExpiresAt != nil {
		t := *u.ResetExpiresAt
		c.ResetExpiresAt = &t
	}
	return &c
}

func (db *MemoryDB) emailTaken(email string, except uuid.UUID) bool {
	for _, u := range db.users {
		if u.Email == email && u.ID != except {
			return true
		}
	}
	return false
}

func (db *MemoryDB) CreateUser(ctx context.Context, user *models.User) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if _, ok := db.users[user.ID]; ok || db.emailTaken(user.Email, uuid.Nil) {
		return ErrUserAlreadyExists
	}
	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	db.users[user.ID] = copyUser(user)
	return nil
}

func (db *MemoryDB) findUser(match func(*models.User) bool) (*models.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	for _, u := range db.users {
		if match(u) {
			return copyUser(u), nil
		}
	}
	return nil, ErrUserNotFound
}

func (db *MemoryDB) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	u, ok := db.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return copyUser(u), nil
}

func (db *MemoryDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return db.findUser(func(u *models.User) bool { return u.Email == email })
}

func (db *MemoryDB) GetUserByVerificationCode(ctx context.Context, code string, now time.Time) (*models.User, error) {
	return db.findUser(func(u *models.User) bool {
		return !u.IsVerified && u.VerificationCode != "" && u.VerificationCode == code &&
			u.VerificationExpiresAt != nil && u.VerificationExpiresAt.After(now)
	})
}

func (db *MemoryDB) GetUserByResetToken(ctx context.Context, token string, now time.Time) (*models.User, error) {
	return db.findUser(func(u *models.User) bool {
		return u.ResetToken != "" && u.ResetToken == token &&
			u.ResetExpiresAt != nil && u.ResetExpiresAt.After(now)
	})
}

func (db *MemoryDB) UpdateUser(ctx context.Context, user *models.User) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.users[user.ID]; !ok {
		return ErrUserNotFound
	}
	if db.emailTaken(user.Email, user.ID) {
		return ErrUserAlreadyExists
	}
	user.UpdatedAt = time.Now()
	db.users[user.ID] = copyUser(user)
	return nil
}

func expiredUnverified(u *models.User, now time.Time) bool {
	return !u.IsVerified && u.VerificationExpiresAt != nil && !u.VerificationExpiresAt.After(now)
}

// deleteUserLocked drops a user and every row that references it, matching
// the ON DELETE CASCADE constraints of the SQL schema.
func (db *MemoryDB) deleteUserLocked(id uuid.UUID) {
	delete(db.users, id)
	for p := range db.friends {
		if p.user == id || p.friend == id {
			delete(db.friends, p)
		}
	}
	for p, reqID := range db.byPair {
		if p.sender == id || p.receiver == id {
			delete(db.byPair, p)
			delete(db.requests, reqID)
		}
	}
	for msgID, m := range db.messages {
		if m.Involves(id) {
			delete(db.messages, msgID)
			delete(db.hidden, msgID)
		}
	}
}

func (db *MemoryDB) DeleteUnverifiedUser(ctx context.Context, email string, now time.Time) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for id, u := range db.users {
		if u.Email == email && expiredUnverified(u, now) {
			db.deleteUserLocked(id)
			return true, nil
		}
	}
	return false, nil
}

func (db *MemoryDB) DeleteExpiredUnverifiedUsers(ctx context.Context, now time.Time) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var n int64
	for id, u := range db.users {
		if expiredUnverified(u, now) {
			db.deleteUserLocked(id)
			n++
		}
	}
	return n, nil
}

func sortUsersByEmail(users []*models.User) {
	sort.Slice(users, func(i, j int) bool { return users[i].Email < users[j].Email })
}

func (db *MemoryDB) SearchUsersByEmail(ctx context.Context, fragment string, excludeUserID uuid.UUID) ([]*models.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	needle := strings.ToLower(fragment)
	users := []*models.User{}
	for _, u := range db.users {
		if u.ID != excludeUserID && strings.Contains(strings.ToLower(u.Email), needle) {
			users = append(users, copyUser(u))
		}
	}
	sortUsersByEmail(users)
	if len(users) > 50 {
		users = users[:50]
	}
	return users, nil
}

func (db *MemoryDB) GetFriends(ctx context.Context, userID uuid.UUID) ([]*models.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	type entry struct {
		user  *models.User
		since time.Time
	}
	var entries []entry
	for p, since := range db.friends {
		if p.user != userID {
			continue
		}
		if u, ok := db.users[p.friend]; ok {
			entries = append(entries, entry{copyUser(u), since})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].since.Before(entries[j].since) })

	users := make([]*models.User, 0, len(entries))
	for _, e := range entries {
		users = append(users, e.user)
	}
	return users, nil
}

func (db *MemoryDB) AreFriends(ctx context.Context, userID, otherID uuid.UUID) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	_, ok := db.friends[friendPair{userID, otherID}]
	return ok, nil
}

func (db *MemoryDB) AddFriendship(ctx context.Context, userID, otherID uuid.UUID) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	now := time.Now()
	for _, p := range []friendPair{{userID, otherID}, {otherID, userID}} {
		if _, ok := db.friends[p]; !ok {
			db.friends[p] = now
		}
	}
	return nil
}

func (db *MemoryDB) RemoveFriendship(ctx context.Context, userID, otherID uuid.UUID) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	delete(db.friends, friendPair{userID, otherID})
	delete(db.friends, friendPair{otherID, userID})
	return nil
}

func (db *MemoryDB) messageLocked(m *models.Message) *models.Message {
	c := *m
	c.HiddenFor = make([]uuid.UUID, 0, len(db.hidden[m.ID]))
	for id := range db.hidden[m.ID] {
		c.HiddenFor = append(c.HiddenFor, id)
	}
	sort.Slice(c.HiddenFor, func(i, j int) bool { return c.HiddenFor[i].String() < c.HiddenFor[j].String() })
	return &c
}

func (db *MemoryDB) CreateMessage(ctx context.Context, msg *models.Message) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	msg.HiddenFor = []uuid.UUID{}

	stored := *msg
	stored.HiddenFor = nil
	db.messages[msg.ID] = &stored
	return nil
}

func (db *MemoryDB) GetMessageByID(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	m, ok := db.messages[id]
	if !ok {
		return nil, ErrMessageNotFound
	}
	return db.messageLocked(m), nil
}

func between(m *models.Message, a, b uuid.UUID) bool {
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}

func (db *MemoryDB) GetConversation(ctx context.Context, a, b, viewer uuid.UUID) ([]*models.Message, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	messages := []*models.Message{}
	for _, m := range db.messages {
		if !between(m, a, b) {
			continue
		}
		if _, hidden := db.hidden[m.ID][viewer]; hidden {
			continue
		}
		messages = append(messages, db.messageLocked(m))
	}
	sort.Slice(messages, func(i, j int) bool {
		if messages[i].CreatedAt.Equal(messages[j].CreatedAt) {
			return messages[i].ID.String() < messages[j].ID.String()
		}
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	return messages, nil
}

func (db *MemoryDB) HideConversation(ctx context.Context, viewer, other uuid.UUID) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var n int64
	for id, m := range db.messages {
		if !between(m, viewer, other) {
			continue
		}
		set, ok := db.hidden[id]
		if !ok {
			set = make(map[uuid.UUID]struct{})
			db.hidden[id] = set
		}
		if _, already := set[viewer]; !already {
			set[viewer] = struct{}{}
			n++
		}
	}
	return n, nil
}

func (db *MemoryDB) DeleteMessage(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	m, ok := db.messages[id]
	if !ok {
		return nil, ErrMessageNotFound
	}
	delete(db.messages, id)
	delete(db.hidden, id)

	c := *m
	c.HiddenFor = []uuid.UUID{}
	return &c, nil
}

func (db *MemoryDB) CreateBotExchange(ctx context.Context, exchange *models.BotExchange) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	user, bot := *exchange.UserTurn, *exchange.BotTurn
	db.bot = append(db.bot, &user, &bot)
	return nil
}

func turnRank(t models.Turn) int {
	if t == models.TurnUser {
		return 0
	}
	return 1
}

func (db *MemoryDB) GetBotConversation(ctx context.Context, userID string) ([]*models.BotMessage, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	messages := []*models.BotMessage{}
	for _, m := range db.bot {
		if m.SenderID == userID || m.ReceiverID == userID {
			c := *m
			messages = append(messages, &c)
		}
	}
	sort.SliceStable(messages, func(i, j int) bool {
		if messages[i].CreatedAt.Equal(messages[j].CreatedAt) {
			return turnRank(messages[i].Turn) < turnRank(messages[j].Turn)
		}
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	return messages, nil
}

func (db *MemoryDB) DeleteBotConversation(ctx context.Context, userID string) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	kept := db.bot[:0]
	var n int64
	for _, m := range db.bot {
		if m.SenderID == userID || m.ReceiverID == userID {
			n++
			continue
		}
		kept = append(kept, m)
	}
	db.bot = kept
	return n, nil
}

func (db *MemoryDB) CreateFriendRequest(ctx context.Context, req *models.FriendRequest) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	pair := requestPair{req.SenderID, req.ReceiverID}
	if _, ok := db.byPair[pair]; ok {
		return ErrFriendRequestExists
	}
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	now := time.Now()
	req.CreatedAt = now
	req.UpdatedAt = now
	if req.Status == "" {
		req.Status = models.StatusPending
	}

	c := *req
	db.requests[req.ID] = &c
	db.byPair[pair] = req.ID
	return nil
}

func (db *MemoryDB) GetFriendRequest(ctx context.Context, id uuid.UUID) (*models.FriendRequest, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	req, ok := db.requests[id]
	if !ok {
		return nil, ErrFriendRequestNotFound
	}
	c := *req
	return &c, nil
}

func (db *MemoryDB) FindFriendRequest(ctx context.Context, senderID, receiverID uuid.UUID) (*models.FriendRequest, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	id, ok := db.byPair[requestPair{senderID, receiverID}]
	if !ok {
		return nil, ErrFriendRequestNotFound
	}
	c := *db.requests[id]
	return &c, nil
}

func (db *MemoryDB) ListPendingRequests(ctx context.Context, receiverID uuid.UUID) ([]*models.FriendRequest, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	requests := []*models.FriendRequest{}
	for _, req := range db.requests {
		if req.ReceiverID == receiverID && req.Status == models.StatusPending {
			c := *req
			requests = append(requests, &c)
		}
	}
	sort.Slice(requests, func(i, j int) bool { return requests[i].CreatedAt.Before(requests[j].CreatedAt) })
	return requests, nil
}

func (db *MemoryDB) UpdateFriendRequestStatus(ctx context.Context, id uuid.UUID, status models.FriendRequestStatus) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	req, ok := db.requests[id]
	if !ok {
		return ErrFriendRequestNotFound
	}
	req.Status = status
	req.UpdatedAt = time.Now()
	return nil
}

func (db *MemoryDB) DeleteFriendRequest(ctx context.Context, id uuid.UUID) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	req, ok := db.requests[id]
	if !ok {
		return ErrFriendRequestNotFound
	}
	delete(db.requests, id)
	delete(db.byPair, requestPair{req.SenderID, req.ReceiverID})
	return nil
}

func (db *MemoryDB) DeleteFriendRequestsBetween(ctx context.Context, a, b uuid.UUID) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var n int64
	for _, pair := range []requestPair{{a, b}, {b, a}} {
		if id, ok := db.byPair[pair]; ok {
			delete(db.byPair, pair)
			delete(db.requests, id)
			n++
		}
	}
	return n, nil
}
