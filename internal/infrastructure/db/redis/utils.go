package redisdb

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const maxRetries = 5

func newClient(config []interface{}) (*redis.Client, error) {
	if len(config) != 1 {
		return nil, fmt.Errorf("invalid config")
	}
	url, ok := config[0].(string)
	if !ok {
		return nil, fmt.Errorf("invalid redis url")
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}
