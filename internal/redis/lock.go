package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("agenda lock not acquired")
)

// Locker guards the critical section of a booking mutation. The lock key
// covers one professional's agenda for one calendar day, which is the unit
// the overlap check runs against.
type Locker interface {
	WithAgendaLock(ctx context.Context, professionalID uuid.UUID, day time.Time, fn func(ctx context.Context) error) error
}

type redisAgendaLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisAgendaLocker creates a locker backed by a per professional/day Redis key.
func NewRedisAgendaLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisAgendaLocker{
		client: client,
		ttl:    ttl,
	}
}

func (l *redisAgendaLocker) WithAgendaLock(ctx context.Context, professionalID uuid.UUID, day time.Time, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("lock:agenda:%s:%s", professionalID.String(), day.Format("2006-01-02"))
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire agenda lock: %w", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		_ = l.release(ctx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisAgendaLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release agenda lock: %w", err)
	}
	return nil
}
