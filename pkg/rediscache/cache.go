package rediscache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/qwamber/qwala-go/pkg/qwala"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "qwala:link:"

var ErrCacheMiss = errors.New("cache miss")

// Cache stores shortLinkID -> longLink pairs.
type Cache struct {
	client redis.Cmdable
}

var _ qwala.LinkCache = (*Cache)(nil)

func New(client redis.Cmdable) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Get(ctx context.Context, shortLinkID string) (string, error) {
	longLink, err := c.client.Get(ctx, c.key(shortLinkID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrCacheMiss
		}
		return "", fmt.Errorf("failed to get link: %w", err)
	}

	return longLink, nil
}

func (c *Cache) Set(ctx context.Context, shortLinkID, longLink string, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.key(shortLinkID), longLink, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set link: %w", err)
	}
	return nil
}

func (c *Cache) Delete(ctx context.Context, shortLinkID string) error {
	return c.client.Del(ctx, c.key(shortLinkID)).Err()
}

func (c *Cache) key(shortLinkID string) string {
	return keyPrefix + shortLinkID
}
