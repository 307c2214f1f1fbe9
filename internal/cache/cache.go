package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sweetshop/apiserver/config"
	"github.com/sweetshop/apiserver/types"
)

const catalogueKey = "sweetshop:catalogue"

// Catalogue caches the full sweet listing. Every write to the inventory
// invalidates it.
type Catalogue interface {
	Get(ctx context.Context) ([]types.Sweet, bool, error)
	Set(ctx context.Context, sweets []types.Sweet) error
	Invalidate(ctx context.Context) error
}

// RedisCatalogue stores the listing as a single JSON value with a TTL.
type RedisCatalogue struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCatalogue connects to redis and pings it once.
func NewRedisCatalogue(ctx context.Context, cfg config.RedisConfig) (*RedisCatalogue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisCatalogue{client: client, ttl: cfg.CacheTTL}, nil
}

func (c *RedisCatalogue) Get(ctx context.Context) ([]types.Sweet, bool, error) {
	raw, err := c.client.Get(ctx, catalogueKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var sweets []types.Sweet
	if err := json.Unmarshal(raw, &sweets); err != nil {
		return nil, false, fmt.Errorf("decode cached catalogue: %w", err)
	}
	return sweets, true, nil
}

func (c *RedisCatalogue) Set(ctx context.Context, sweets []types.Sweet) error {
	raw, err := json.Marshal(sweets)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, catalogueKey, raw, c.ttl).Err()
}

func (c *RedisCatalogue) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, catalogueKey).Err()
}

func (c *RedisCatalogue) Close() error {
	return c.client.Close()
}

// Noop never holds anything; it is used when no redis address is configured.
type Noop struct{}

func (Noop) Get(context.Context) ([]types.Sweet, bool, error) {
	return nil, false, nil
}

func (Noop) Set(context.Context, []types.Sweet) error {
	return nil
}

func (Noop) Invalidate(context.Context) error {
	return nil
}
