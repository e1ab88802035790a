package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the remote tier.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// redisTier is the distributed tier. All errors bubble up to the facade,
// which swallows and logs them.
type redisTier struct {
	client *redis.Client
	prefix string
}

// NewRedisTier connects and pings the server. A failed ping is an error:
// the facade then runs local-only.
func NewRedisTier(cfg RedisConfig) (Tier, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache: redis ping failed: %w", err)
	}

	return &redisTier{client: rdb, prefix: cfg.Prefix}, nil
}

func (r *redisTier) key(k string) string {
	if r.prefix == "" {
		return k
	}
	return r.prefix + ":" + k
}

func (r *redisTier) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, r.key(key)).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (r *redisTier) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, r.key(key), value, ttl).Err()
}

func (r *redisTier) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}

func (r *redisTier) Clear(ctx context.Context, pattern string) (int, error) {
	if pattern == "" {
		pattern = "*"
	}
	var removed int
	iter := r.client.Scan(ctx, 0, r.key(pattern), 200).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, iter.Err()
}

func (r *redisTier) Stats(ctx context.Context) TierStats {
	st := TierStats{Driver: "redis"}

	keys, err := r.client.DBSize(ctx).Result()
	if err != nil {
		return st
	}
	st.Keys = keys
	st.Available = true

	info, err := r.client.Info(ctx, "stats").Result()
	if err != nil {
		return st
	}
	for _, line := range strings.Split(info, "\r\n") {
		if strings.HasPrefix(line, "keyspace_hits:") {
			fmt.Sscanf(strings.TrimPrefix(line, "keyspace_hits:"), "%d", &st.Hits)
		}
		if strings.HasPrefix(line, "keyspace_misses:") {
			fmt.Sscanf(strings.TrimPrefix(line, "keyspace_misses:"), "%d", &st.Misses)
		}
	}
	return st
}
