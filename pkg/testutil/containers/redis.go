//go:build integration

package containers

import (
	"context"
	"testing"
	"time"

	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"carepay/internal/platform/config"
	redisclient "carepay/internal/platform/redis"
)

// RedisContainer is a throwaway Redis reached through the same client constructor
// the processes use, so pool and timeout settings are exercised too.
type RedisContainer struct {
	URL   string
	Redis *redisclient.Client
}

// NewRedisContainer starts Redis and connects to it. The container is terminated
// when the test finishes.
func NewRedisContainer(t *testing.T) *RedisContainer {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	url, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get redis connection string: %v", err)
	}

	rc, err := redisclient.New(ctx, config.RedisConfig{
		URL:          url,
		PoolSize:     4,
		MinIdleConns: 1,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err != nil {
		t.Fatalf("failed to connect to redis: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })

	return &RedisContainer{URL: url, Redis: rc}
}
