// Package redis implements session.Store on Redis. Sessions are stored as
// JSON blobs under a namespaced key with an optional TTL, matching the cache
// semantics of short-lived commerce conversations.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sokoflow/sokoflow/runtime/session"
)

const (
	keyPrefix = "session:"
	storeName = "session-redis"
)

type (
	// Options configures the Redis session store.
	Options struct {
		// Client is the connected Redis client. Required.
		Client *redis.Client
		// TTL expires idle sessions. Zero keeps them forever.
		TTL time.Duration
	}

	// Store implements session.Store backed by Redis strings.
	Store struct {
		rdb *redis.Client
		ttl time.Duration
	}
)

// New returns a session store backed by Redis.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	return &Store{rdb: opts.Client, ttl: opts.TTL}, nil
}

// Name identifies the store for health reporting.
func (s *Store) Name() string { return storeName }

// Ping reports whether the backing server is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Load implements session.Store.
func (s *Store) Load(ctx context.Context, key string) (*session.Session, error) {
	if key == "" {
		return nil, errors.New("session key is required")
	}
	payload, err := s.rdb.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, session.ErrNotFound
		}
		return nil, err
	}
	var sess session.Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// Save implements session.Store. Each save refreshes the TTL: a session stays
// alive as long as the conversation does.
func (s *Store) Save(ctx context.Context, sess *session.Session) error {
	if sess == nil {
		return errors.New("session is required")
	}
	payload, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, keyPrefix+sess.Key(), payload, s.ttl).Err()
}

// Delete implements session.Store. Deleting an absent key is a no-op.
func (s *Store) Delete(ctx context.Context, key string) error {
	if key == "" {
		return errors.New("session key is required")
	}
	return s.rdb.Del(ctx, keyPrefix+key).Err()
}
