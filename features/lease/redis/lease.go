// Package redis implements the orchestrator's per-key lease on Redis so
// multiple processes serialize handling for the same session. Acquisition is
// SET NX with an expiry; release is a compare-and-delete script so a lease
// that expired and was re-acquired by another process is never released by
// the original holder.
package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "lease:"

// releaseScript deletes the lease only when the stored token still belongs to
// the caller.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

type (
	// Options configures the Redis lease.
	Options struct {
		// Client is the connected Redis client. Required.
		Client *redis.Client
		// TTL caps how long a crashed holder can block a key. Defaults to 60s.
		TTL time.Duration
		// RetryInterval spaces acquisition attempts while the key is held
		// elsewhere. Defaults to 100ms.
		RetryInterval time.Duration
	}

	// Lease implements orchestrator.Lease across processes.
	Lease struct {
		rdb      *redis.Client
		ttl      time.Duration
		interval time.Duration
	}
)

// New returns a distributed lease backed by Redis.
func New(opts Options) (*Lease, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	interval := opts.RetryInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &Lease{rdb: opts.Client, ttl: ttl, interval: interval}, nil
}

// Acquire blocks until the key is exclusively held or the context is done.
// The returned function releases the lease; releasing an already expired
// lease is a no-op.
func (l *Lease) Acquire(ctx context.Context, key string) (func(), error) {
	redisKey := keyPrefix + key
	token := uuid.NewString()
	for {
		ok, err := l.rdb.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		select {
		case <-time.After(l.interval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	release := func() {
		// Release outlives the request context so the lease is not leaked
		// until TTL when the caller's context is already canceled.
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(rctx, l.rdb, []string{redisKey}, token).Err()
	}
	return release, nil
}
