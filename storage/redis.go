package storage

import (
	"context"
	"fmt"

	"github.com/oneclickdz/ocpay-reconciler/config"
	"github.com/redis/go-redis/v9"
)

// RedisClient holds the shared redis connection
var RedisClient *redis.Client

// InitializeRedis initializes the Redis client
func InitializeRedis() error {
	conf := config.RedisConfig()

	RedisClient = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", conf.Host, conf.Port),
		Password: conf.Password,
		DB:       conf.DB,
	})

	if err := RedisClient.Ping(context.Background()).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return nil
}
