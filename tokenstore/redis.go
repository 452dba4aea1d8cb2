package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/keysai/go-auth"
	goredis "github.com/redis/go-redis/v9"
)

// DefaultKey is the redis key used when none is given.
const DefaultKey = "auth:session:token"

// Redis stores the token under a single key with an optional TTL.
type Redis struct {
	client goredis.Cmdable
	key    string
	ttl    time.Duration
}

var _ auth.TokenStore = (*Redis)(nil)

// NewRedis wraps client. A zero ttl keeps the token until cleared.
func NewRedis(client goredis.Cmdable, key string, ttl time.Duration) *Redis {
	if key == "" {
		key = DefaultKey
	}
	return &Redis{client: client, key: key, ttl: ttl}
}

// Dial connects to redis and checks the connection.
func Dial(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("tokenstore: redis ping: %w", err)
	}

	return client, nil
}

// Load returns the stored token, or "" when the key is missing.
func (r *Redis) Load(ctx context.Context) (string, error) {
	token, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("tokenstore: redis get: %w", err)
	}
	return token, nil
}

func (r *Redis) Save(ctx context.Context, token string) error {
	if err := r.client.Set(ctx, r.key, token, r.ttl).Err(); err != nil {
		return fmt.Errorf("tokenstore: redis set: %w", err)
	}
	return nil
}

func (r *Redis) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("tokenstore: redis del: %w", err)
	}
	return nil
}
