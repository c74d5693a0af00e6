// Package chatclient is a Go client for the chat API: an HTTP client for the
// REST routes, a socket for pushed events, and a Store that keeps the
// selected conversation in sync with both.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ammar1510/chatty/internal/logger"
	"github.com/ammar1510/chatty/internal/models"
)

var log = logger.New("chatclient")

// ErrNotLoggedIn is returned by calls that need the session user
var ErrNotLoggedIn = errors.New("chatclient: not logged in")

// APIError is a non-2xx answer from the server
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chatclient: %d %s", e.Status, e.Message)
}

// Config controls the HTTP client
type Config struct {
	BaseURL         string
	Timeout         time.Duration
	RetryMaxElapsed time.Duration
	MaxIdleConns    int
	IdleConnTimeout time.Duration
}

// Contact is one sidebar entry. The bot has a non-uuid ID.
type Contact struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	FullName   string `json:"fullName"`
	ProfilePic string `json:"profilePic"`
	About      string `json:"about"`
}

// BotContact is merged at the top of every contact list
var BotContact = Contact{ID: models.BotID, FullName: "AI Assistant", About: "Ask me anything"}

// Client talks to one server. The session is kept both in the cookie jar
// and as a bearer token for the socket handshake.
type Client struct {
	base *url.URL
	http *http.Client
	jar  http.CookieJar
	conf Config

	mu    sync.RWMutex
	token string
	me    *models.UserResponse
}

// New builds a client for conf.BaseURL
func New(conf Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(conf.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("chatclient: parse base url: %w", err)
	}
	if conf.Timeout == 0 {
		conf.Timeout = 15 * time.Second
	}
	if conf.RetryMaxElapsed == 0 {
		conf.RetryMaxElapsed = 10 * time.Second
	}
	if conf.MaxIdleConns == 0 {
		conf.MaxIdleConns = 10
	}
	if conf.IdleConnTimeout == 0 {
		conf.IdleConnTimeout = 90 * time.Second
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	tr := &http.Transport{
		DialContext:     (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		MaxIdleConns:    conf.MaxIdleConns,
		IdleConnTimeout: conf.IdleConnTimeout,
	}
	return &Client{
		base: base,
		jar:  jar,
		conf: conf,
		http: &http.Client{Transport: tr, Timeout: conf.Timeout, Jar: jar},
	}, nil
}

// Me returns the session user's id, or "" before Login/Check
func (c *Client) Me() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.me == nil {
		return ""
	}
	return c.me.ID.String()
}

func (c *Client) setSession(user *models.UserResponse, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.me = user
	if token != "" {
		c.token = token
	}
}

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) requireMe() (string, error) {
	if id := c.Me(); id != "" {
		return id, nil
	}
	return "", ErrNotLoggedIn
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token := c.bearer(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// do sends one request and decodes a 2xx body into out. GETs are retried
// with exponential backoff on transport errors and 5xx answers.
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("chatclient: encode %s %s: %w", method, path, err)
		}
		body = b
	}

	var resp *http.Response
	operation := func() error {
		req, err := c.newRequest(ctx, method, path, body)
		if err != nil {
			return backoff.Permanent(err)
		}
		r, err := c.http.Do(req)
		if err != nil {
			return err
		}
		if r.StatusCode >= 500 && method == http.MethodGet {
			apiErr := readAPIError(r)
			log.Debug("Retrying %s %s after %d", method, path, r.StatusCode)
			return apiErr
		}
		resp = r
		return nil
	}

	if method == http.MethodGet {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 100 * time.Millisecond
		b.MaxElapsedTime = c.conf.RetryMaxElapsed
		if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
			return err
		}
	} else if err := operation(); err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readAPIError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("chatclient: decode %s %s: %w", method, path, err)
	}
	return nil
}

func readAPIError(r *http.Response) *APIError {
	defer r.Body.Close()
	var body struct {
		Message string `json:"message"`
	}
	data, _ := io.ReadAll(r.Body)
	if err := json.Unmarshal(data, &body); err != nil || body.Message == "" {
		body.Message = http.StatusText(r.StatusCode)
	}
	return &APIError{Status: r.StatusCode, Message: body.Message}
}

// Signup registers an unverified account; the code arrives by email.
func (c *Client) Signup(ctx context.Context, in models.UserSignup) error {
	return c.do(ctx, http.MethodPost, "/api/auth/signup", in, nil)
}

func (c *Client) VerifyEmail(ctx context.Context, code string) error {
	return c.do(ctx, http.MethodPost, "/api/auth/verify-email", models.VerifyEmailRequest{Code: code}, nil)
}

// Login opens a session and remembers the user and token
func (c *Client) Login(ctx context.Context, email, password string) (*models.UserResponse, error) {
	var resp models.LoginResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", models.UserLogin{Email: email, Password: password}, &resp); err != nil {
		return nil, err
	}
	user := resp.UserResponse
	c.setSession(&user, resp.Token)
	return &user, nil
}

func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
	c.mu.Lock()
	c.me, c.token = nil, ""
	c.mu.Unlock()
	return err
}

// Check asks the server who the session belongs to
func (c *Client) Check(ctx context.Context) (*models.UserResponse, error) {
	var user models.UserResponse
	if err := c.do(ctx, http.MethodGet, "/api/auth/check", nil, &user); err != nil {
		return nil, err
	}
	c.setSession(&user, "")
	return &user, nil
}

func (c *Client) UpdateProfile(ctx context.Context, update models.ProfileUpdate) (*models.UserResponse, error) {
	var user models.UserResponse
	if err := c.do(ctx, http.MethodPut, "/api/auth/update-profile", update, &user); err != nil {
		return nil, err
	}
	c.setSession(&user, "")
	return &user, nil
}

func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/api/auth/request-password-reset", models.PasswordResetRequest{Email: email}, nil)
}

func (c *Client) ResetPassword(ctx context.Context, token, newPassword string) error {
	return c.do(ctx, http.MethodPut, "/api/auth/reset-password", models.ResetPasswordRequest{Token: token, NewPassword: newPassword}, nil)
}

// Users returns the sidebar: the bot first, then friends, deduped by id.
func (c *Client) Users(ctx context.Context) ([]Contact, error) {
	var users []models.UserResponse
	if err := c.do(ctx, http.MethodGet, "/api/messages/users", nil, &users); err != nil {
		return nil, err
	}
	out := []Contact{BotContact}
	seen := map[string]bool{BotContact.ID: true}
	for _, u := range users {
		id := u.ID.String()
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, Contact{ID: id, Email: u.Email, FullName: u.FullName, ProfilePic: u.ProfilePic, About: u.About})
	}
	return out, nil
}

// Conversation fetches the visible history with peer. The bot peer reads the
// session user's bot exchanges.
func (c *Client) Conversation(ctx context.Context, peer string) ([]Item, error) {
	if peer == models.BotID {
		me, err := c.requireMe()
		if err != nil {
			return nil, err
		}
		var rows []models.BotMessage
		if err := c.do(ctx, http.MethodGet, "/api/bot/messages/"+url.PathEscape(me), nil, &rows); err != nil {
			return nil, err
		}
		items := make([]Item, 0, len(rows))
		for i := range rows {
			items = append(items, itemFromBot(&rows[i]))
		}
		return items, nil
	}

	var msgs []models.Message
	if err := c.do(ctx, http.MethodGet, "/api/messages/"+url.PathEscape(peer), nil, &msgs); err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(msgs))
	for i := range msgs {
		items = append(items, itemFromMessage(&msgs[i]))
	}
	return items, nil
}

// SendMessage sends to a peer and returns the stored message
func (c *Client) SendMessage(ctx context.Context, peer, text, image string) (Item, error) {
	var msg models.Message
	if err := c.do(ctx, http.MethodPost, "/api/messages/send/"+url.PathEscape(peer), models.MessageRequest{Text: text, Image: image}, &msg); err != nil {
		return Item{}, err
	}
	return itemFromMessage(&msg), nil
}

// ChatWithBot returns both rows of the stored exchange
func (c *Client) ChatWithBot(ctx context.Context, text string) ([]Item, error) {
	me, err := c.requireMe()
	if err != nil {
		return nil, err
	}
	var resp models.BotChatResponse
	if err := c.do(ctx, http.MethodPost, "/api/bot/chat", models.BotChatRequest{SenderID: me, Text: text}, &resp); err != nil {
		return nil, err
	}
	var items []Item
	for _, row := range []*models.BotMessage{resp.UserMessage, resp.BotMessage} {
		if row != nil {
			items = append(items, itemFromBot(row))
		}
	}
	return items, nil
}

// ClearChat hides the conversation with peer for the session user. For the
// bot the exchange rows are deleted.
func (c *Client) ClearChat(ctx context.Context, peer string) error {
	me, err := c.requireMe()
	if err != nil {
		return err
	}
	if peer == models.BotID {
		return c.do(ctx, http.MethodDelete, "/api/bot/clear-bot-chat", map[string]string{"senderId": me}, nil)
	}
	body := map[string]string{"userId": me, "chatUserId": peer}
	return c.do(ctx, http.MethodPost, "/api/messages/clear-chat", body, nil)
}

func (c *Client) DeleteMessage(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/messages/delete/"+url.PathEscape(id), nil, nil)
}

func (c *Client) SendFriendRequest(ctx context.Context, email string) (*models.FriendRequest, error) {
	var resp struct {
		FriendRequest models.FriendRequest `json:"friendRequest"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/friends/send", models.SendFriendRequest{Email: email}, &resp); err != nil {
		return nil, err
	}
	return &resp.FriendRequest, nil
}

func (c *Client) AcceptFriendRequest(ctx context.Context, requestID string) error {
	return c.do(ctx, http.MethodPost, "/api/friends/accept", models.FriendRequestAction{RequestID: requestID}, nil)
}

func (c *Client) RejectFriendRequest(ctx context.Context, requestID string) error {
	return c.do(ctx, http.MethodPost, "/api/friends/reject", models.FriendRequestAction{RequestID: requestID}, nil)
}

func (c *Client) FriendRequests(ctx context.Context) ([]models.FriendRequestView, error) {
	var views []models.FriendRequestView
	err := c.do(ctx, http.MethodGet, "/api/friends/requests", nil, &views)
	return views, err
}

func (c *Client) SearchUsers(ctx context.Context, email string) ([]models.PublicUser, error) {
	var users []models.PublicUser
	err := c.do(ctx, http.MethodGet, "/api/friends/search?email="+url.QueryEscape(email), nil, &users)
	return users, err
}

func (c *Client) Friends(ctx context.Context) ([]models.PublicUser, error) {
	var users []models.PublicUser
	err := c.do(ctx, http.MethodGet, "/api/friends/list", nil, &users)
	return users, err
}

func (c *Client) RemoveFriend(ctx context.Context, friendID string) error {
	return c.do(ctx, http.MethodDelete, "/api/friends/delete/"+url.PathEscape(friendID), nil, nil)
}
