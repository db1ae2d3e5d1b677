package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"friction-gate/internal/domain"
	"github.com/redis/go-redis/v9"
)

// maxUpdateRetries bounds optimistic retries when concurrent verifications
// race on the same session key.
const maxUpdateRetries = 16

// ErrContention is returned when Update keeps losing the WATCH race.
var ErrContention = errors.New("gate session update contended")

// SessionStore keeps gate sessions as JSON documents in Redis so any
// instance can verify a session created by another.
// Sessions expire with their key TTL; ttl <= 0 keeps them until deleted.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	// go-redis treats -1 as KEEPTTL.
	if ttl < 0 {
		ttl = 0
	}
	return &SessionStore{client: client, ttl: ttl}
}

func (s *SessionStore) Create(ctx context.Context, id string, session domain.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.key(id), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if !ok {
		return domain.ErrDuplicateSession
	}
	return nil
}

func (s *SessionStore) Read(ctx context.Context, id string) (domain.Session, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("read session: %w", err)
	}
	return decodeSession(raw)
}

// Write replaces an existing session, keeping its remaining TTL.
func (s *SessionStore) Write(ctx context.Context, id string, session domain.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	err = s.client.SetArgs(ctx, s.key(id), data, redis.SetArgs{Mode: "XX", KeepTTL: true}).Err()
	if errors.Is(err, redis.Nil) {
		return domain.ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// Update runs fn inside a WATCH/MULTI transaction on the session key and
// retries when another writer got there first. fn may run more than once.
func (s *SessionStore) Update(ctx context.Context, id string, fn func(*domain.Session) error) (domain.Session, error) {
	key := s.key(id)
	var updated domain.Session

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return domain.ErrSessionNotFound
		}
		if err != nil {
			return err
		}
		session, err := decodeSession(raw)
		if err != nil {
			return err
		}
		if err := fn(&session); err != nil {
			return err
		}
		data, err := json.Marshal(session)
		if err != nil {
			return fmt.Errorf("encode session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetArgs(ctx, key, data, redis.SetArgs{KeepTTL: true})
			return nil
		})
		if err != nil {
			return err
		}
		updated = session
		return nil
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return domain.Session{}, err
		}
		return updated, nil
	}
	return domain.Session{}, ErrContention
}

func (s *SessionStore) key(id string) string {
	return "gate:session:" + id
}

func decodeSession(raw []byte) (domain.Session, error) {
	var session domain.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return domain.Session{}, fmt.Errorf("decode session: %w", err)
	}
	return session, nil
}
