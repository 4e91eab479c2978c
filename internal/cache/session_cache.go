package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"github.com/jonathanjthomas/GDG-RAG-Demo/internal/app"
)

const defaultSessionTTL = 2 * time.Hour

// RedisSessionCache stores sessions and ingest job statuses as JSON with a
// sliding TTL. An expired key is an ended session.
type RedisSessionCache struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewRedisSessionCache(client *redisv9.Client, ttl time.Duration) *RedisSessionCache {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &RedisSessionCache{client: client, ttl: ttl}
}

func (c *RedisSessionCache) Get(ctx context.Context, id string) (*app.SessionState, error) {
	var state app.SessionState
	ok, err := c.getJSON(ctx, c.sessionKey(id), &state)
	if err != nil || !ok {
		return nil, err
	}
	// reading counts as activity
	if err := c.client.Expire(ctx, c.sessionKey(id), c.ttl).Err(); err != nil {
		return nil, fmt.Errorf("redis refresh session ttl failed: %w", err)
	}
	return &state, nil
}

func (c *RedisSessionCache) Save(ctx context.Context, state app.SessionState) error {
	return c.setJSON(ctx, c.sessionKey(state.ID), state)
}

func (c *RedisSessionCache) Delete(ctx context.Context, id string) error {
	if err := c.client.Del(ctx, c.sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("redis delete session failed: %w", err)
	}
	return nil
}

func (c *RedisSessionCache) SaveJob(ctx context.Context, status app.JobStatus) error {
	return c.setJSON(ctx, c.jobKey(status.ID), status)
}

func (c *RedisSessionCache) GetJob(ctx context.Context, id string) (*app.JobStatus, error) {
	var status app.JobStatus
	ok, err := c.getJSON(ctx, c.jobKey(id), &status)
	if err != nil || !ok {
		return nil, err
	}
	return &status, nil
}

func (c *RedisSessionCache) getJSON(ctx context.Context, key string, out interface{}) (bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redisv9.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s failed: %w", key, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("unmarshal cached %s failed: %w", key, err)
	}
	return true, nil
}

func (c *RedisSessionCache) setJSON(ctx context.Context, key string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s failed: %w", key, err)
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s failed: %w", key, err)
	}
	return nil
}

func (c *RedisSessionCache) sessionKey(id string) string {
	return fmt.Sprintf("vault:session:%s", id)
}

func (c *RedisSessionCache) jobKey(id string) string {
	return fmt.Sprintf("vault:ingest:job:%s", id)
}
