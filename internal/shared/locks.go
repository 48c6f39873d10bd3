package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// PlanRunLockKey builds the redis key serialising plan generation against
// concurrent rule application.
func PlanRunLockKey() string {
	return "cashplan:plan:run:lock"
}

// RunLock is a best-effort distributed mutex backed by redis SET NX.
type RunLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	token  string
}

// NewRunLock constructs a lock for the given key with an expiry guarding
// against crashed holders.
func NewRunLock(client *redis.Client, key string, ttl time.Duration) *RunLock {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RunLock{client: client, key: key, ttl: ttl}
}

// Acquire takes the lock or returns ErrLockHeld when another holder owns it.
func (l *RunLock) Acquire(ctx context.Context, token string) error {
	if l == nil || l.client == nil {
		return nil
	}
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("shared: acquire lock %s: %w", l.key, err)
	}
	if !ok {
		return ErrLockHeld
	}
	l.token = token
	return nil
}

// Release frees the lock when still owned by the given token.
func (l *RunLock) Release(ctx context.Context) error {
	if l == nil || l.client == nil || l.token == "" {
		return nil
	}
	const script = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`
	if err := l.client.Eval(ctx, script, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("shared: release lock %s: %w", l.key, err)
	}
	l.token = ""
	return nil
}
