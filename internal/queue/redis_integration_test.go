//go:build integration

package queue

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"carepay/pkg/testutil/containers"
)

func TestRedisQueueContract(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	redis := containers.NewRedisContainer(t)
	require.NoError(t, redis.Redis.Health(context.Background()))
	visibility := 300 * time.Millisecond

	runQueueContract(t, func(t *testing.T) (Queue, func()) {
		q := NewRedisQueue(redis.Redis.Client, "test-"+uuid.NewString(), visibility, 10*time.Millisecond)
		return q, func() { time.Sleep(visibility + 100*time.Millisecond) }
	})
}
