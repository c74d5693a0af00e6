package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ammar1510/chatty/internal/logger"
)

var log = logger.New("presence")

// RedisMirror copies every presence snapshot into Redis: the online set under
// <prefix>:presence:online and a JSON message on <prefix>:presence:events.
// Other processes can read it but nothing here routes through Redis.
type RedisMirror struct {
	client  *redis.Client
	prefix  string
	pending chan []uuid.UUID
	write   func(ctx context.Context, online []uuid.UUID) error
}

// Snapshot is the payload published on the events channel
type Snapshot struct {
	Online []uuid.UUID `json:"online"`
	At     time.Time   `json:"at"`
}

func NewRedisMirror(ctx context.Context, addr, password string, db int, prefix string) (*RedisMirror, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	m := newMirror(prefix)
	m.client = client
	m.write = m.writeRedis
	return m, nil
}

func newMirror(prefix string) *RedisMirror {
	return &RedisMirror{
		prefix:  prefix,
		pending: make(chan []uuid.UUID, 1),
	}
}

func (m *RedisMirror) OnlineKey() string     { return m.prefix + ":presence:online" }
func (m *RedisMirror) EventsChannel() string { return m.prefix + ":presence:events" }

// Publish queues online for writing. It never blocks: if a snapshot is
// already waiting it is replaced, since only the latest one matters.
func (m *RedisMirror) Publish(online []uuid.UUID) {
	ids := append([]uuid.UUID(nil), online...)
	for {
		select {
		case m.pending <- ids:
			return
		default:
		}
		select {
		case <-m.pending:
		default:
		}
	}
}

// Run writes queued snapshots until ctx is done.
func (m *RedisMirror) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ids := <-m.pending:
			wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := m.write(wctx, ids); err != nil {
				log.Warn("Failed to mirror presence snapshot: %v", err)
			}
			cancel()
		}
	}
}

func (m *RedisMirror) writeRedis(ctx context.Context, online []uuid.UUID) error {
	payload, err := json.Marshal(Snapshot{Online: online, At: time.Now().UTC()})
	if err != nil {
		return err
	}

	members := make([]interface{}, 0, len(online))
	for _, id := range online {
		members = append(members, id.String())
	}

	pipe := m.client.TxPipeline()
	pipe.Del(ctx, m.OnlineKey())
	if len(members) > 0 {
		pipe.SAdd(ctx, m.OnlineKey(), members...)
	}
	pipe.Publish(ctx, m.EventsChannel(), payload)
	_, err = pipe.Exec(ctx)
	return err
}

// Close clears the online set and closes the client.
func (m *RedisMirror) Close() error {
	if m.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = m.client.Del(ctx, m.OnlineKey()).Err()
	return m.client.Close()
}
