package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/wateroflife/pkg/cryptox"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "wol:session:"

// RedisStore shares session state between instances. Session ids are
// fingerprinted before use as keys so the raw cookie value never reaches
// redis.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient parses url and checks the server answers.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("session: invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("session: ping redis: %w", err)
	}
	return client, nil
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func redisKey(sessionID, key string) string {
	return redisKeyPrefix + cryptox.FingerprintToken(sessionID) + ":" + key
}

func (s *RedisStore) Put(ctx context.Context, sessionID, key, value string) error {
	if sessionID == "" {
		return errors.New("session: empty session id")
	}
	return s.client.Set(ctx, redisKey(sessionID, key), value, s.ttl).Err()
}

// Take uses GETDEL, which is atomic on the server.
func (s *RedisStore) Take(ctx context.Context, sessionID, key string) (string, error) {
	if sessionID == "" {
		return "", ErrNotFound
	}
	v, err := s.client.GetDel(ctx, redisKey(sessionID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
