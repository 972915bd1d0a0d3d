package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/sma-exam-api/pkg/config"
)

// NewRedis returns a configured Redis client.
func NewRedis(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

// releaseScript deletes the lease key only when it is still held by the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Leaser hands out short-lived exclusive leases so that a periodic task runs
// on one process per cycle even when several API replicas are deployed.
type Leaser struct {
	client redis.Cmdable
	prefix string
}

// NewLeaser builds a leaser storing keys under prefix.
func NewLeaser(client redis.Cmdable, prefix string) *Leaser {
	if prefix == "" {
		prefix = "lease:"
	}
	return &Leaser{client: client, prefix: prefix}
}

// Acquire tries to take the named lease for ttl. It returns a release func and
// true when the lease was obtained.
func (l *Leaser) Acquire(ctx context.Context, name string, ttl time.Duration) (func(context.Context), bool, error) {
	if l == nil || l.client == nil {
		return func(context.Context) {}, true, nil
	}
	key := l.prefix + name
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lease %s: %w", name, err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func(ctx context.Context) {
		_ = releaseScript.Run(ctx, l.client, []string{key}, token).Err()
	}
	return release, true, nil
}
