package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "notifications:"

// Channel returns the pub/sub channel a user's devices subscribe to.
func Channel(userID int64) string {
	return fmt.Sprintf("%s%d", channelPrefix, userID)
}

// RedisNotifier publishes notifications on a per-user Redis channel.
type RedisNotifier struct {
	cache   *redis.Client
	timeout time.Duration
}

// NewRedisNotifier constructs a notifier backed by Redis pub/sub.
func NewRedisNotifier(cache *redis.Client) *RedisNotifier {
	return &RedisNotifier{cache: cache, timeout: 2 * time.Second}
}

// Send publishes the JSON-encoded message to the recipient's channel.
func (n *RedisNotifier) Send(ctx context.Context, message Message) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()

	if err := n.cache.Publish(ctx, Channel(message.UserID), payload).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}
