package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ammar1510/chatty/internal/auth"
	"github.com/ammar1510/chatty/internal/database"
	"github.com/ammar1510/chatty/internal/models"
)

type pushed struct {
	userID  uuid.UUID
	event   string
	payload interface{}
}

// fakeNotifier records pushes; users in online receive them
type fakeNotifier struct {
	mu     sync.Mutex
	online map[uuid.UUID]bool
	pushes []pushed
}

func newFakeNotifier(online ...uuid.UUID) *fakeNotifier {
	n := &fakeNotifier{online: make(map[uuid.UUID]bool)}
	for _, id := range online {
		n.online[id] = true
	}
	return n
}

func (n *fakeNotifier) Notify(userID uuid.UUID, event string, payload interface{}) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.online[userID] {
		return false
	}
	n.pushes = append(n.pushes, pushed{userID: userID, event: event, payload: payload})
	return true
}

func (n *fakeNotifier) events(userID uuid.UUID) []pushed {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []pushed
	for _, p := range n.pushes {
		if p.userID == userID {
			out = append(out, p)
		}
	}
	return out
}

// fakeMailer keeps the last code and link per recipient
type fakeMailer struct {
	mu        sync.Mutex
	err       error
	codes     map[string]string
	links     map[string]string
	successes []string
}

func newFakeMailer() *fakeMailer {
	return &fakeMailer{codes: make(map[string]string), links: make(map[string]string)}
}

func (m *fakeMailer) SendVerificationCode(_ context.Context, to, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.codes[to] = code
	return nil
}

func (m *fakeMailer) SendPasswordReset(_ context.Context, to, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.links[to] = link
	return nil
}

func (m *fakeMailer) SendPasswordResetSuccess(_ context.Context, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.successes = append(m.successes, to)
	return nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeTimer struct {
	delay   time.Duration
	fire    func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type failingImages struct{ err error }

func (f failingImages) UploadDataURL(context.Context, string, string) (string, error) {
	return "", f.err
}

type generatorFunc func(ctx context.Context, prompt string) (string, error)

func (f generatorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

func createUser(t *testing.T, db database.DBInterface, email, password string) *models.User {
	t.Helper()
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	user := &models.User{Email: email, FullName: "User " + email, PasswordHash: hash, IsVerified: true}
	require.NoError(t, db.CreateUser(context.Background(), user))
	return user
}

const pngDataURL = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNk+M9QDwADhgGAWjR9awAAAABJRU5ErkJggg=="
