package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

const sessionPrefix = "conversation:"

// NewRedisClient parses redisURL and verifies the connection
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis URL is required for the redis session backend")
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// RedisSessionStore keeps session summaries in Redis. Each read refreshes the
// key's TTL so active sessions stay alive.
type RedisSessionStore struct {
	client     *redis.Client
	ttl        time.Duration
	maxHistory int
}

// NewRedisSessionStore creates a store over client. A ttl of zero keeps keys forever.
func NewRedisSessionStore(client *redis.Client, ttl time.Duration, maxHistory int) *RedisSessionStore {
	return &RedisSessionStore{client: client, ttl: ttl, maxHistory: maxHistory}
}

func (r *RedisSessionStore) key(sessionID string) string {
	return sessionPrefix + sessionID
}

// Get returns the session history; unknown sessions are empty
func (r *RedisSessionStore) Get(ctx context.Context, sessionID string) ([]string, error) {
	var cmd *redis.StringCmd
	if r.ttl > 0 {
		cmd = r.client.GetEx(ctx, r.key(sessionID), r.ttl)
	} else {
		cmd = r.client.Get(ctx, r.key(sessionID))
	}

	data, err := cmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session data: %w", err)
	}

	var history []string
	if err := sonic.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session data: %w", err)
	}
	if history == nil {
		history = []string{}
	}
	return history, nil
}

// Put replaces the session history
func (r *RedisSessionStore) Put(ctx context.Context, sessionID string, history []string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID cannot be empty")
	}

	data, err := sonic.Marshal(trimHistory(history, r.maxHistory))
	if err != nil {
		return fmt.Errorf("failed to marshal session data: %w", err)
	}
	if err := r.client.Set(ctx, r.key(sessionID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set session data: %w", err)
	}
	return nil
}

// Delete removes a session
func (r *RedisSessionStore) Delete(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, r.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (r *RedisSessionStore) Close() error {
	return r.client.Close()
}
