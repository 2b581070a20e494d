package lease

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLeaser stores leases in Redis so every instance sees them.
type RedisLeaser struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisLeaser creates a leaser on client. Optional key prefix (e.g. "medassist:").
func NewRedisLeaser(client redis.UniversalClient, prefix string) *RedisLeaser {
	if prefix != "" && !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return &RedisLeaser{client: client, prefix: prefix}
}

// OpenRedisLeaser connects to the Redis URL and verifies the connection.
func OpenRedisLeaser(ctx context.Context, url, prefix string) (*RedisLeaser, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisLeaser(client, prefix), nil
}

func (r *RedisLeaser) key(k string) string {
	return r.prefix + "lease:" + k
}

// Acquire takes the lease with SET NX PX.
func (r *RedisLeaser) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	token := uuid.NewString()
	k := r.key(key)
	ok, err := r.client.SetNX(ctx, k, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lease acquire: %w", err)
	}
	if !ok {
		return nil, ErrHeld
	}
	return &redisLease{client: r.client, key: k, token: token}, nil
}

// Close closes the underlying client.
func (r *RedisLeaser) Close() error {
	return r.client.Close()
}

type redisLease struct {
	client redis.UniversalClient
	key    string
	token  string
}

func (l *redisLease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("redis lease release: %w", err)
	}
	return nil
}
