package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	*redis.Client
}

func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

// AcquireLock takes a best-effort advisory lock. Returns false when another
// holder already owns the key.
func (c *Client) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.SetNX(ctx, key, 1, ttl).Result()
}

// ReleaseLock drops an advisory lock early. Expiry handles the crash case.
func (c *Client) ReleaseLock(ctx context.Context, key string) error {
	return c.Del(ctx, key).Err()
}

// DeviceChannel is the realtime channel a device listens on.
func DeviceChannel(deviceUUID string) string {
	return fmt.Sprintf("device:%s", deviceUUID)
}

// UserChannel is the realtime channel a user's companion apps listen on.
func UserChannel(userUUID string) string {
	return fmt.Sprintf("user:%s", userUUID)
}

// RefreshLockKey guards a provider token refresh for one stored token.
func RefreshLockKey(tokenID string) string {
	return fmt.Sprintf("refresh-lock:%s", tokenID)
}
