package database

import (
	"context"
	"log"
	"scormhub/config"

	"github.com/redis/go-redis/v9"
)

// Redis is the global Redis client. Job progress, the ingest queue, terminal
// results and the websocket watcher registry all live here so that the HTTP
// process and the ingest workers share no in-process mutable state.
var Redis *redis.Client

// ConnectRedis establishes the Redis connection and pings it once
func ConnectRedis() {
	Redis = redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisDB,
	})

	if err := Redis.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
}
