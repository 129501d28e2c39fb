package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/parley/pkg/dialog"
	"github.com/aretw0/parley/pkg/domain"
)

// Session is the distributed variant of dialog.Session. It reuses the
// in-memory layout for everything that happens during a turn and overrides
// Load/Save with the lock-guarded persistence protocol.
//
// Lock identity is the message id, not the process: retried deliveries of
// the same message never self-deadlock, and expiry keeps the session live if
// a holder crashes mid-turn.
type Session struct {
	*dialog.MemorySession

	store *Store
}

// Load acquires the session lock for the message id (queueing FIFO behind
// other contenders and retrying with jittered backoff), then hydrates the
// session and user-data documents.
func (s *Session) Load(ctx context.Context, messageID string) error {
	if err := s.store.acquire(ctx, s.UserID(), s.ConversationID(), messageID); err != nil {
		return err
	}

	raw, err := s.store.client.Get(ctx, s.store.sessionKey(s.UserID(), s.ConversationID())).Result()
	if errors.Is(err, backend.Nil) {
		// Reserved on first contact, so an absent document means it was
		// evicted out from under us.
		return fmt.Errorf("%w: %s/%s", domain.ErrSessionNotFound, s.UserID(), s.ConversationID())
	}
	if err != nil {
		return fmt.Errorf("load session document: %w", err)
	}
	var snap domain.Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return fmt.Errorf("decode session document: %w", err)
	}
	s.Hydrate(&snap)

	userData, err := s.store.loadUserData(ctx, s.UserID())
	if err != nil {
		return err
	}
	s.SetUserData(userData)
	return nil
}

// Save persists the session document and releases the lock in one atomic
// step, but only while the message id still owns the lock; otherwise the
// session write is a silent no-op. The user-data merge is written either
// way: it is lock-free and last-write-wins per key.
func (s *Session) Save(ctx context.Context, messageID string) error {
	if err := s.store.mergeUserData(ctx, s.UserID(), s.UserData()); err != nil {
		return err
	}

	snapshot, err := json.Marshal(s.Snapshot())
	if err != nil {
		return fmt.Errorf("encode session document: %w", err)
	}

	released, err := s.store.release(ctx, s.UserID(), s.ConversationID(), messageID, snapshot)
	if err != nil {
		return err
	}
	if !released {
		s.store.logger.Warn("lock lost before save, session write skipped",
			"user_id", s.UserID(),
			"conversation_id", s.ConversationID(),
			"message_id", messageID,
		)
	}
	return nil
}
