package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/onurcolak/broadcast-dispatch-service/environments"
	"github.com/onurcolak/broadcast-dispatch-service/pkg/logger"
)

// ErrEmpty is returned by BlockingPop when the wait timed out.
var ErrEmpty = errors.New("list is empty")

type Client struct {
	client valkey.Client
}

func NewRedisClient(cfg environments.RedisConfig) (*Client, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)},
		Password:    cfg.Password,
		SelectDB:    cfg.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Valkey client: %w", err)
	}

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Infof("Connected to Redis (via Valkey client)")

	return &Client{client: client}, nil
}

// Push prepends value to the list stored at key.
func (c *Client) Push(ctx context.Context, key, value string) error {
	if err := c.client.Do(ctx, c.client.B().Lpush().Key(key).Element(value).Build()).Error(); err != nil {
		return fmt.Errorf("failed to push to %s: %w", key, err)
	}
	return nil
}

// BlockingPop removes the last element of key, waiting up to timeout.
func (c *Client) BlockingPop(ctx context.Context, key string, timeout time.Duration) (string, error) {
	result := c.client.Do(ctx, c.client.B().Brpop().Key(key).Timeout(timeout.Seconds()).Build())
	if err := result.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return "", ErrEmpty
		}
		return "", fmt.Errorf("failed to pop from %s: %w", key, err)
	}

	pair, err := result.AsStrSlice()
	if err != nil {
		return "", fmt.Errorf("failed to read pop result: %w", err)
	}
	if len(pair) != 2 {
		return "", fmt.Errorf("unexpected pop reply with %d elements", len(pair))
	}

	return pair[1], nil
}

// Len reports the length of the list stored at key.
func (c *Client) Len(ctx context.Context, key string) (int64, error) {
	n, err := c.client.Do(ctx, c.client.B().Llen().Key(key).Build()).AsInt64()
	if err != nil {
		return 0, fmt.Errorf("failed to get length of %s: %w", key, err)
	}
	return n, nil
}

func (c *Client) Close() error {
	c.client.Close()
	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Do(ctx, c.client.B().Ping().Build()).Error()
}
