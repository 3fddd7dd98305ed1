// Package redis creates the client used by the slot guard cache.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const connectionTimeout = 2 * time.Second

// NewClient creates a Redis client and verifies the connection.
func NewClient(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if pingErr := client.Ping(ctx).Err(); pingErr != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", pingErr)
	}
	return client, nil
}

// CheckConnection tests whether Redis is reachable.
func CheckConnection(ctx context.Context, client *redis.Client) error {
	if client == nil {
		return errors.New("redis client is nil")
	}
	pingCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()
	return client.Ping(pingCtx).Err()
}
