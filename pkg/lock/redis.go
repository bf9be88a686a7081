package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fystack/plinko-engine/pkg/common/logger"
	"github.com/fystack/plinko-engine/pkg/infra"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultPollInterval = 25 * time.Millisecond

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker is a single-instance Redis lock (SET NX PX with a random token).
type RedisLocker struct {
	client       infra.RedisClient
	prefix       string
	pollInterval time.Duration
}

func NewRedisLocker(client infra.RedisClient, prefix string) *RedisLocker {
	return &RedisLocker{client: client, prefix: prefix, pollInterval: defaultPollInterval}
}

func (l *RedisLocker) key(k string) string {
	if l.prefix == "" {
		return "lock:" + k
	}
	return l.prefix + ":lock:" + k
}

// Lock polls until the key is acquired or ctx is done. The lock expires after
// ttl even if the holder never releases it.
func (l *RedisLocker) Lock(ctx context.Context, key string, ttl time.Duration) (Unlock, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("lock ttl must be positive")
	}
	k := l.key(key)
	token := uuid.NewString()

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()
	for {
		ok, err := l.client.GetClient().SetNX(ctx, k, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", k, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %w", ErrNotAcquired, k, ctx.Err())
		case <-ticker.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.client.GetClient(), []string{k}, token).Err(); err != nil {
				logger.Warn("Failed to release lock", "key", k, "error", err)
			}
		})
	}, nil
}
