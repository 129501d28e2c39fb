package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/dialog"
)

// Store hands out Redis-backed sessions with distributed locking, so
// multiple controller processes can serve the same session concurrently
// (duplicate deliveries, horizontal scaling).
//
// Per session it keeps three keys: the session document (JSON snapshot), a
// lock record (hash with owner and deadline) and a FIFO wait queue (list).
// User data lives in one hash per user with JSON-encoded fields, merged
// per key on save.
type Store struct {
	client *backend.Client
	prefix string

	lockTTL     time.Duration
	retryDelay  time.Duration
	retryJitter time.Duration

	router dialog.ResponseRouter
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithPrefix sets the key prefix for all documents.
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// WithLockTTL sets the absolute lock expiry. Expiry guarantees liveness when
// a holder crashes mid-turn.
func WithLockTTL(ttl time.Duration) Option {
	return func(s *Store) { s.lockTTL = ttl }
}

// WithRetryDelay sets the fixed base delay and the jitter bound between lock
// acquisition attempts. Jitter breaks synchronized retry storms across
// competing instances.
func WithRetryDelay(base, jitter time.Duration) Option {
	return func(s *Store) {
		s.retryDelay = base
		s.retryJitter = jitter
	}
}

// WithResponseRouter installs a custom delivery hook on sessions.
func WithResponseRouter(router dialog.ResponseRouter) Option {
	return func(s *Store) { s.router = router }
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Store with its own Redis client.
func New(address, password string, db int, opts ...Option) *Store {
	client := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(client, opts...)
}

// NewFromClient creates a Store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client:      client,
		prefix:      "parley:",
		lockTTL:     30 * time.Second,
		retryDelay:  50 * time.Millisecond,
		retryJitter: 50 * time.Millisecond,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Session creates a handle for the (user, conversation) pair, reserving the
// session document on first contact and merging any seed into the user hash.
// Handles are independent; state is hydrated from Redis on every Load.
func (s *Store) Session(ctx context.Context, userID, conversationID string, seed map[string]any) (dialog.Session, error) {
	sess := &Session{
		MemorySession: dialog.NewMemorySession(userID, conversationID, nil),
		store:         s,
	}
	sess.SetResponseRouter(s.router)
	sess.SetLogger(s.logger)

	blank, err := json.Marshal(sess.MemorySession.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("marshal blank session: %w", err)
	}
	if err := s.client.SetNX(ctx, s.sessionKey(userID, conversationID), blank, 0).Err(); err != nil {
		return nil, fmt.Errorf("reserve session document: %w", err)
	}

	if len(seed) > 0 {
		if err := s.mergeUserData(ctx, userID, seed); err != nil {
			return nil, err
		}
	}
	return sess, nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) sessionKey(userID, conversationID string) string {
	return s.prefix + "session:" + userID + ":" + conversationID
}

func (s *Store) lockKey(userID, conversationID string) string {
	return s.prefix + "lock:" + userID + ":" + conversationID
}

func (s *Store) queueKey(userID, conversationID string) string {
	return s.prefix + "queue:" + userID + ":" + conversationID
}

func (s *Store) userKey(userID string) string {
	return s.prefix + "user:" + userID
}

// acquireScript implements the conditional lock grab. The lock is granted
// when the requester already owns it (a retried delivery of the same
// message), when it has expired (any contender may take it, even ahead of
// queued waiters; an accepted fairness trade-off), or when there is no owner
// and the requester is at the head of the queue (or the queue is empty). On
// failure the requester is appended to the queue once.
var acquireScript = backend.NewScript(`
local owner = redis.call("HGET", KEYS[1], "owner")
local deadline = tonumber(redis.call("HGET", KEYS[1], "deadline") or "0")
local head = redis.call("LINDEX", KEYS[2], 0)
local now = tonumber(ARGV[2])

local function grant()
	redis.call("HSET", KEYS[1], "owner", ARGV[1], "deadline", ARGV[3])
	redis.call("LREM", KEYS[2], 0, ARGV[1])
	return 1
end

if owner == ARGV[1] then
	return grant()
end
if owner and owner ~= "" and deadline > 0 and deadline < now then
	return grant()
end
if (not owner or owner == "") and (not head or head == ARGV[1]) then
	return grant()
end
if ARGV[4] == "1" then
	redis.call("RPUSH", KEYS[2], ARGV[1])
end
return 0
`)

// releaseScript persists the session document and releases the lock, but
// only while the caller still owns it. A lost lock makes the save a silent
// no-op: the next holder already took over after expiry.
var releaseScript = backend.NewScript(`
if redis.call("HGET", KEYS[1], "owner") == ARGV[1] then
	redis.call("SET", KEYS[2], ARGV[2])
	redis.call("HSET", KEYS[1], "owner", "", "deadline", ARGV[3])
	return 1
end
return 0
`)

// tryAcquire makes one conditional attempt to take the session lock for the
// message id, enqueueing it on failure when enqueue is set.
func (s *Store) tryAcquire(ctx context.Context, userID, conversationID, messageID string, enqueue bool) (bool, error) {
	now := time.Now()
	flag := "0"
	if enqueue {
		flag = "1"
	}
	granted, err := acquireScript.Run(ctx, s.client,
		[]string{s.lockKey(userID, conversationID), s.queueKey(userID, conversationID)},
		messageID,
		now.UnixMilli(),
		now.Add(s.lockTTL).UnixMilli(),
		flag,
	).Int()
	if err != nil {
		return false, fmt.Errorf("acquire session lock: %w", err)
	}
	return granted == 1, nil
}

// acquire blocks until the lock is granted or the context is canceled,
// retrying with the fixed base delay plus jitter.
func (s *Store) acquire(ctx context.Context, userID, conversationID, messageID string) error {
	queued := false
	for {
		granted, err := s.tryAcquire(ctx, userID, conversationID, messageID, !queued)
		if err != nil {
			return err
		}
		if granted {
			return nil
		}
		queued = true

		delay := s.retryDelay
		if s.retryJitter > 0 {
			delay += time.Duration(rand.Int63n(int64(s.retryJitter)))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// release writes the snapshot and frees the lock if messageID still owns it.
func (s *Store) release(ctx context.Context, userID, conversationID, messageID string, snapshot []byte) (bool, error) {
	now := time.Now()
	released, err := releaseScript.Run(ctx, s.client,
		[]string{s.lockKey(userID, conversationID), s.sessionKey(userID, conversationID)},
		messageID,
		snapshot,
		now.Add(s.lockTTL).UnixMilli(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("release session lock: %w", err)
	}
	return released == 1, nil
}

// loadUserData reads the user hash, decoding each field from JSON.
func (s *Store) loadUserData(ctx context.Context, userID string) (map[string]any, error) {
	fields, err := s.client.HGetAll(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load user data: %w", err)
	}
	data := make(map[string]any, len(fields))
	for key, raw := range fields {
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			return nil, fmt.Errorf("decode user data field %q: %w", key, err)
		}
		data[key] = value
	}
	return data, nil
}

// mergeUserData writes each key individually: last write wins per key, never
// wholesale replacement, and no lock is held (user data is read-mostly and
// shared across conversations).
func (s *Store) mergeUserData(ctx context.Context, userID string, data map[string]any) error {
	if len(data) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for key, value := range data {
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode user data field %q: %w", key, err)
		}
		pipe.HSet(ctx, s.userKey(userID), key, raw)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("merge user data: %w", err)
	}
	return nil
}
