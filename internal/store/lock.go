package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lock is a Redis-based distributed lock. The sweep takes one lock per
// tenant so overlapping timer ticks never double-sweep, and one short-lived
// lock per rule so two instances never process the same rule concurrently.
type Lock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

// AcquireLock attempts to acquire the lock. It returns nil (and no error)
// when another holder already owns the key.
func AcquireLock(ctx context.Context, client *redis.Client, key string, ttl time.Duration) (*Lock, error) {
	token := uuid.New().String()

	acquired, err := client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return nil, nil
	}

	return &Lock{
		client: client,
		key:    key,
		token:  token,
		ttl:    ttl,
	}, nil
}

// Release deletes the lock only when this holder still owns it. The
// check-and-delete runs as a Lua script so an expired lock re-acquired by
// another holder is never released by the first.
func (l *Lock) Release(ctx context.Context) error {
	script := `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`
	_, err := l.client.Eval(ctx, script, []string{l.key}, l.token).Result()
	return err
}

// Extend renews the lock TTL for long pipelines; it fails when the lock has
// expired and been taken by someone else
func (l *Lock) Extend(ctx context.Context, ttl time.Duration) error {
	script := `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`
	result, err := l.client.Eval(ctx, script, []string{l.key}, l.token, ttl.Milliseconds()).Result()
	if err != nil {
		return err
	}
	if result == int64(0) {
		return fmt.Errorf("lock no longer owned by this holder")
	}
	l.ttl = ttl
	return nil
}

// Key returns the lock's Redis key
func (l *Lock) Key() string {
	return l.key
}
