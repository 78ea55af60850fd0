package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dingsen2/micronutrient-radar/internal/domain"
)

const redisKeyPrefix = "nutrient_profile:"

// RedisCache is a NutrientCache backed by Redis.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisCache connects to the Redis server at url (redis://...).
// A zero ttl keeps entries until evicted.
func NewRedisCache(url string, ttl time.Duration, logger *slog.Logger) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisCache{
		client: redis.NewClient(opts),
		ttl:    ttl,
		logger: logger.With(slog.String("component", "nutrient_cache"), slog.String("backend", "redis")),
	}, nil
}

var _ NutrientCache = (*RedisCache)(nil)

// Ping checks the connection.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Get implements NutrientCache.Get.
func (c *RedisCache) Get(ctx context.Context, description string) (*domain.NutrientProfile, error) {
	data, err := c.client.Get(ctx, redisKeyPrefix+Key(description)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile from redis: %w", err)
	}

	var profile domain.NutrientProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached profile: %w", err)
	}
	return &profile, nil
}

// Set implements NutrientCache.Set.
func (c *RedisCache) Set(ctx context.Context, profile *domain.NutrientProfile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	if err := c.client.Set(ctx, redisKeyPrefix+Key(profile.FoodName), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save profile to redis: %w", err)
	}
	c.logger.Debug("profile cached", slog.String("food_name", Key(profile.FoodName)))
	return nil
}

// Close releases the client's connections.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
