// Package redisprefs persists UI preferences in Redis so the theme flag
// survives restarts and is shared across runtime replicas.
package redisprefs

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/CryptoStream-Network/stream_layer/internal/stores"
	"github.com/CryptoStream-Network/stream_layer/pkg/logger"
)

const darkModeKey = "stream_layer:prefs:dark_mode"

// Store is a UIStore backed by Redis.
type Store struct {
	client *redis.Client
	log    *logger.Logger
}

var _ stores.UIStore = (*Store)(nil)

// Options configure the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, opts Options, log *logger.Logger) (*Store, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}
	if log == nil {
		log = logger.NewDefault("redisprefs")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	return &Store{client: client, log: log}, nil
}

// DarkMode reads the theme flag. A missing key reports the light default.
func (s *Store) DarkMode(ctx context.Context) (bool, error) {
	val, err := s.client.Get(ctx, darkModeKey).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read dark mode flag: %w", err)
	}
	return val == "1", nil
}

// SetDarkMode persists the theme flag.
func (s *Store) SetDarkMode(ctx context.Context, enabled bool) error {
	val := "0"
	if enabled {
		val = "1"
	}
	if err := s.client.Set(ctx, darkModeKey, val, 0).Err(); err != nil {
		return fmt.Errorf("persist dark mode flag: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (s *Store) Close() error { return s.client.Close() }
