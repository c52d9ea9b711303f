package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when the critical section is already occupied.
var ErrLockHeld = errors.New("lock already held")

// SettlementLockKey builds redis keys for per-employee settlement critical sections.
func SettlementLockKey(employeeID int64) string {
	return fmt.Sprintf("payroll:employee:%d:settle", employeeID)
}

// Locker provides non-reentrant critical sections backed by Redis.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLocker returns a Locker. The TTL bounds how long a crashed holder can
// keep a section occupied.
func NewLocker(client *redis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Locker{client: client, ttl: ttl}
}

// Acquire takes the lock for key, failing with ErrLockHeld when occupied.
// The returned release function is safe to call on every exit path; it only
// removes the lock when this holder still owns it.
func (l *Locker) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("shared: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	release := func() {
		// Compare-and-delete so an expired lock taken over by another
		// holder is never removed by the previous one.
		const script = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`
		_ = l.client.Eval(context.WithoutCancel(ctx), script, []string{key}, token).Err()
	}
	return release, nil
}
