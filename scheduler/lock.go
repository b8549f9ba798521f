package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Lock is a SETNX-style distributed lock backing the one-active-plan
// invariant across concurrent orchestrator replicas: two replicas must
// never plan the same repository simultaneously (spec §4.3).
type Lock struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewLock creates a Lock. ttl bounds how long a holder can keep the lock
// without renewing, so a crashed holder doesn't wedge planning forever.
func NewLock(client *redis.Client, prefix string, ttl time.Duration, logger *zap.Logger) *Lock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Lock{client: client, prefix: prefix, ttl: ttl, logger: logger.With(zap.String("component", "plan_lock"))}
}

func (l *Lock) key(repository, team string) string {
	return fmt.Sprintf("%s:plan-lock:%s:%s", l.prefix, repository, team)
}

// TryAcquire attempts to take the lock for (repository, team) and returns a
// token identifying this holder, or ok=false if another holder has it.
func (l *Lock) TryAcquire(ctx context.Context, repository, team string) (token string, ok bool, err error) {
	token = uuid.NewString()
	ok, err = l.client.SetNX(ctx, l.key(repository, team), token, l.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire plan lock: %w", err)
	}
	return token, ok, nil
}

// Release drops the lock for (repository, team), but only if token still
// matches the current holder — a lock whose TTL already expired and was
// reacquired by someone else must not be released out from under them.
func (l *Lock) Release(ctx context.Context, repository, team, token string) error {
	const script = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`
	if err := l.client.Eval(ctx, script, []string{l.key(repository, team)}, token).Err(); err != nil {
		return fmt.Errorf("release plan lock: %w", err)
	}
	return nil
}
