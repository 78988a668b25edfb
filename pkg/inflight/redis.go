// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package inflight

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisConfig configures the Redis tracker.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	PoolSize int           `mapstructure:"pool_size"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// DefaultRedisConfig returns sensible defaults.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:     "localhost:6379",
		PoolSize: 10,
		Prefix:   "zapload:inflight:",
		TTL:      DefaultTTL,
	}
}

// Redis shares the in-flight list between API replicas. Each entry is a JSON
// string under Prefix+uploadID with a TTL.
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(cfg RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return NewRedisWithClient(client, cfg), nil
}

// NewRedisWithClient creates a tracker with an existing Redis client.
func NewRedisWithClient(client redis.UniversalClient, cfg RedisConfig) *Redis {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultRedisConfig().Prefix
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	return &Redis{client: client, prefix: cfg.Prefix, ttl: cfg.TTL}
}

func (r *Redis) Track(ctx context.Context, e Entry) error {
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now().UTC()
	}
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	return r.client.Set(ctx, r.prefix+e.UploadID, b, r.ttl).Err()
}

func (r *Redis) Forget(ctx context.Context, uploadID string) error {
	return r.client.Del(ctx, r.prefix+uploadID).Err()
}

func (r *Redis) List(ctx context.Context) ([]Entry, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan in-flight uploads: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load in-flight uploads: %w", err)
	}

	out := make([]Entry, 0, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			// expired between SCAN and MGET
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			log.Warn().Err(err).Str("key", keys[i]).Msg("skipping malformed in-flight entry")
			continue
		}
		out = append(out, e)
	}
	sortEntries(out)
	return out, nil
}

// Ping checks the Redis connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
