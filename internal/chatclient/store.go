package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ammar1510/chatty/internal/models"
	chatws "github.com/ammar1510/chatty/internal/websocket"
)

// Status is the load state of the selected conversation
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

// localPrefix marks optimistic items. Server ids are uuids, so they never
// share it.
const localPrefix = "local_"

var (
	ErrNoConversation = errors.New("chatclient: no conversation selected")
	ErrEmptyMessage   = errors.New("chatclient: message text or image is required")
	ErrBotTextOnly    = errors.New("chatclient: the bot only accepts text")
)

// Item is one entry of a conversation, from either the peer or the bot store
type Item struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Text       string    `json:"text,omitempty"`
	Image      string    `json:"image,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	Pending    bool      `json:"pending,omitempty"`
}

func itemFromMessage(m *models.Message) Item {
	return Item{
		ID:         m.ID.String(),
		SenderID:   m.SenderID.String(),
		ReceiverID: m.ReceiverID.String(),
		Text:       m.Text,
		Image:      m.Image,
		CreatedAt:  m.CreatedAt,
	}
}

func itemFromBot(b *models.BotMessage) Item {
	return Item{
		ID:         b.ID.String(),
		SenderID:   b.SenderID,
		ReceiverID: b.ReceiverID,
		Text:       b.Message,
		CreatedAt:  b.CreatedAt,
	}
}

// Backend is the part of Client the Store needs
type Backend interface {
	Me() string
	Conversation(ctx context.Context, peer string) ([]Item, error)
	SendMessage(ctx context.Context, peer, text, image string) (Item, error)
	ChatWithBot(ctx context.Context, text string) ([]Item, error)
}

// Store holds the selected conversation and the presence snapshot. It merges
// fetched history, its own sends, and pushed events into one list ordered by
// creation time with no duplicate ids.
type Store struct {
	backend Backend
	now     func() time.Time

	mu       sync.Mutex
	selected string
	status   Status
	err      error
	gen      uint64
	items    []Item
	deleted  map[string]bool
	online   map[string]bool
	seq      uint64
	onChange func()
}

// NewStore creates an idle store
func NewStore(backend Backend) *Store {
	return &Store{
		backend: backend,
		now:     time.Now,
		status:  StatusIdle,
		online:  make(map[string]bool),
	}
}

// OnChange registers fn to run after every state change. fn runs without
// the store lock held.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *Store) changed() {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Select switches to peer and loads its full history, replacing the list.
// Items pushed or sent while the fetch is in flight are kept and merged into
// the result. A response that arrives after another Select is discarded.
func (s *Store) Select(ctx context.Context, peer string) error {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.selected = peer
	s.status = StatusLoading
	s.err = nil
	s.items = nil
	s.deleted = make(map[string]bool)
	s.mu.Unlock()
	s.changed()

	items, err := s.backend.Conversation(ctx, peer)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		log.Debug("Discarding stale history for %s", peer)
		return nil
	}
	if err != nil {
		s.status = StatusError
		s.err = err
		s.deleted = nil
		s.mu.Unlock()
		s.changed()
		return err
	}

	// Pushes and own sends that landed while loading go on top of the
	// fetched history; deletes seen meanwhile win over both.
	early := s.items
	s.items = nil
	for _, it := range items {
		if !s.deleted[it.ID] {
			s.merge(it)
		}
	}
	s.merge(early...)
	s.deleted = nil
	s.status = StatusReady
	s.mu.Unlock()
	s.changed()
	return nil
}

// Send posts to the selected conversation. Bot sends show the user's text at
// once under a local id and swap it for the stored rows when the reply
// arrives; peer sends appear only after the server accepts them.
func (s *Store) Send(ctx context.Context, text, image string) error {
	text = strings.TrimSpace(text)
	if text == "" && image == "" {
		return ErrEmptyMessage
	}

	s.mu.Lock()
	peer, gen := s.selected, s.gen
	if peer == "" {
		s.mu.Unlock()
		return ErrNoConversation
	}
	if peer != models.BotID {
		s.mu.Unlock()
		item, err := s.backend.SendMessage(ctx, peer, text, image)
		if err != nil {
			return err
		}
		s.mu.Lock()
		if gen == s.gen {
			s.merge(item)
		}
		s.mu.Unlock()
		s.changed()
		return nil
	}

	if image != "" {
		s.mu.Unlock()
		return ErrBotTextOnly
	}
	s.seq++
	localID := fmt.Sprintf("%s%d", localPrefix, s.seq)
	s.merge(Item{
		ID:         localID,
		SenderID:   s.backend.Me(),
		ReceiverID: models.BotID,
		Text:       text,
		CreatedAt:  s.now(),
		Pending:    true,
	})
	s.mu.Unlock()
	s.changed()

	rows, err := s.backend.ChatWithBot(ctx, text)

	s.mu.Lock()
	s.remove(localID)
	if err == nil && gen == s.gen {
		s.merge(rows...)
	}
	s.mu.Unlock()
	s.changed()
	return err
}

// Apply folds one pushed event into the state
func (s *Store) Apply(env chatws.Envelope) {
	switch env.Event {
	case chatws.EventOnlineUsers:
		var ids []string
		if err := json.Unmarshal(env.Data, &ids); err != nil {
			log.Warn("Bad presence snapshot: %v", err)
			return
		}
		online := make(map[string]bool, len(ids))
		for _, id := range ids {
			online[id] = true
		}
		s.mu.Lock()
		s.online = online
		s.mu.Unlock()

	case chatws.EventNewMessage:
		var msg models.Message
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			log.Warn("Bad newMessage payload: %v", err)
			return
		}
		item := itemFromMessage(&msg)
		s.mu.Lock()
		if !s.inSelected(item) {
			s.mu.Unlock()
			return
		}
		s.merge(item)
		s.mu.Unlock()

	case chatws.EventDeleteMessage:
		var id string
		if err := json.Unmarshal(env.Data, &id); err != nil {
			log.Warn("Bad deleteMessage payload: %v", err)
			return
		}
		s.mu.Lock()
		if s.status == StatusLoading {
			s.deleted[id] = true
		}
		removed := s.remove(id)
		s.mu.Unlock()
		if !removed {
			return
		}

	default:
		return
	}
	s.changed()
}

// Run applies events until the channel closes or ctx ends
func (s *Store) Run(ctx context.Context, events <-chan chatws.Envelope) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-events:
			if !ok {
				return ErrSocketClosed
			}
			s.Apply(env)
		}
	}
}

// inSelected reports whether item belongs to the open peer conversation,
// including one whose history is still loading
func (s *Store) inSelected(item Item) bool {
	if s.selected == "" || s.selected == models.BotID {
		return false
	}
	if s.status != StatusReady && s.status != StatusLoading {
		return false
	}
	me := s.backend.Me()
	return (item.SenderID == s.selected && item.ReceiverID == me) ||
		(item.SenderID == me && item.ReceiverID == s.selected)
}

// merge inserts or replaces by id and keeps the list ordered. Caller holds mu.
func (s *Store) merge(items ...Item) {
	for _, it := range items {
		replaced := false
		for i := range s.items {
			if s.items[i].ID == it.ID {
				s.items[i] = it
				replaced = true
				break
			}
		}
		if !replaced {
			s.items = append(s.items, it)
		}
	}
	sort.SliceStable(s.items, func(i, j int) bool {
		return s.items[i].CreatedAt.Before(s.items[j].CreatedAt)
	})
}

// remove drops id and reports whether it was present. Caller holds mu.
func (s *Store) remove(id string) bool {
	for i := range s.items {
		if s.items[i].ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return true
		}
	}
	return false
}

// Messages returns a copy of the current list
func (s *Store) Messages() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Item, len(s.items))
	copy(out, s.items)
	return out
}

// Status returns the load state and, in StatusError, the failure
func (s *Store) Status() (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.err
}

func (s *Store) Selected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// IsOnline reports presence from the last snapshot. The bot is always online.
func (s *Store) IsOnline(id string) bool {
	if id == models.BotID {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online[id]
}
