// Package cluster holds the cross-host collaborators: a redis distributed
// lock and a redis snapshot store with optimistic versioning. Neither is
// used inside actor turns for single-instance state — the runtime's
// per-key serialization covers that. The lock guards only windows where
// two hosts could both believe they own a key, such as actor migration.
package cluster

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"quorum"
)

const lockKeyPrefix = "quorum:lock:"

// releaseScript deletes the lock only when it still carries our token, so
// an expired lock reacquired by another host is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Locker struct {
	client *redis.Client
	log    *zap.Logger
}

func NewLocker(client *redis.Client, log *zap.Logger) *Locker {
	return &Locker{client: client, log: log}
}

// LockHandle identifies one acquisition; only its holder can release it.
type LockHandle struct {
	Key   string
	token string
}

// TryAcquire polls for the lock until acquireTimeout elapses. The lock
// auto-expires after ttl so a crashed holder cannot deadlock the key.
// Timing out is a retryable LockTimeout failure, not fatal.
func (l *Locker) TryAcquire(ctx context.Context, key string, ttl, acquireTimeout time.Duration) (*LockHandle, error) {
	token := uuid.Must(uuid.NewRandom()).String()
	deadline := time.Now().Add(acquireTimeout)
	for {
		ok, err := l.client.SetNX(ctx, lockKeyPrefix+key, token, ttl).Result()
		if err != nil {
			return nil, quorum.Infrastructuref(err, "lock backend unreachable for %s", key)
		}
		if ok {
			return &LockHandle{Key: key, token: token}, nil
		}
		if time.Now().After(deadline) {
			return nil, quorum.LockTimeoutf("lock %s not acquired within %s", key, acquireTimeout)
		}
		select {
		case <-ctx.Done():
			return nil, quorum.Infrastructuref(ctx.Err(), "lock acquisition for %s abandoned", key)
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (l *Locker) Release(ctx context.Context, h *LockHandle) error {
	if h == nil {
		return quorum.Validationf("nil lock handle")
	}
	n, err := releaseScript.Run(ctx, l.client, []string{lockKeyPrefix + h.Key}, h.token).Int()
	if err != nil {
		return quorum.Infrastructuref(err, "lock backend unreachable for %s", h.Key)
	}
	if n == 0 {
		l.log.Warn("lock already expired or taken over", zap.String("key", h.Key))
	}
	return nil
}
