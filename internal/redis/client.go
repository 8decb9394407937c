// Package redisclient owns the engine's redis connection, shared by the
// per-provider booking lock, the license verification cache and outbox
// event publishing.
package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options configures the shared client. Zero pool values fall back to
// defaults sized for the engine's small connection fan-out.
type Options struct {
	Addr         string
	Username     string
	Password     string
	PoolSize     int
	MinIdleConns int
}

// NewClient dials redis and verifies the connection with a bounded ping
// so misconfiguration fails at startup, not on the first booking.
func NewClient(opts Options) (*redis.Client, error) {
	if opts.PoolSize <= 0 {
		opts.PoolSize = 10
	}
	if opts.MinIdleConns <= 0 {
		opts.MinIdleConns = 1
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Username:     opts.Username,
		Password:     opts.Password,
		DB:           0,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     opts.PoolSize,
		MinIdleConns: opts.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return rdb, nil
}
