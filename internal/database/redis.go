package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ConnectRedis parses the URL and waits up to pingTimeout for the server to answer.
// The client backs the draft mirror, the auto-submit latch and question change pub/sub.
func ConnectRedis(ctx context.Context, url string, pingTimeout time.Duration) (*redis.Client, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url must not be empty")
	}

	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if options.ClientName == "" {
		options.ClientName = "quiz-api"
	}

	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := PingRedis(client)(pingCtx); err != nil {
		_ = client.Close()
		return nil, err
	}

	return client, nil
}

// PingRedis returns a probe for the health endpoint.
func PingRedis(client *redis.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if client == nil {
			return fmt.Errorf("redis not configured")
		}
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("unable to connect to redis: %w", err)
		}
		return nil
	}
}
