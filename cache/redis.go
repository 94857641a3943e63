package cache

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Connect builds the shared Redis client. The cache is an optimization
// everywhere it is used, so a failed ping is logged rather than fatal.
func Connect(addr, password string) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("redis unavailable at %s: %v (continuing, durable store covers reads)", addr, err)
	} else {
		log.Println("redis connected")
	}

	return rdb
}
