package queue

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// queueHarness builds a fresh queue and a function that lets its visibility window
// elapse.
type queueHarness func(t *testing.T) (q Queue, expire func())

func testJob() Job {
	return Job{
		DocumentID:   uuid.NewString(),
		PatientID:    uuid.NewString(),
		DocumentType: "passport",
		TenantID:     uuid.NewString(),
	}
}

func runQueueContract(t *testing.T, newQueue queueHarness) {
	ctx := context.Background()

	t.Run("enqueued job is received with its body", func(t *testing.T) {
		q, _ := newQueue(t)
		job := testJob()
		_, err := q.Enqueue(ctx, job)
		require.NoError(t, err)

		msgs, err := q.Receive(ctx, 10, 50*time.Millisecond)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, 1, msgs[0].Receives)

		parsed, err := DecodeJob(msgs[0].Body)
		require.NoError(t, err)
		assert.Equal(t, job.DocumentID, parsed.DocumentID.String())
	})

	t.Run("received message is invisible until deleted or expired", func(t *testing.T) {
		q, _ := newQueue(t)
		_, err := q.Enqueue(ctx, testJob())
		require.NoError(t, err)

		first, err := q.Receive(ctx, 10, 50*time.Millisecond)
		require.NoError(t, err)
		require.Len(t, first, 1)

		second, err := q.Receive(ctx, 10, 50*time.Millisecond)
		require.NoError(t, err)
		assert.Empty(t, second)
	})

	t.Run("deleted message is never redelivered", func(t *testing.T) {
		q, expire := newQueue(t)
		_, err := q.Enqueue(ctx, testJob())
		require.NoError(t, err)

		msgs, err := q.Receive(ctx, 1, 50*time.Millisecond)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		require.NoError(t, q.Delete(ctx, msgs[0].Receipt))

		expire()
		again, err := q.Receive(ctx, 1, 50*time.Millisecond)
		require.NoError(t, err)
		assert.Empty(t, again)
	})

	t.Run("undeleted message is redelivered after the visibility timeout", func(t *testing.T) {
		q, expire := newQueue(t)
		_, err := q.Enqueue(ctx, testJob())
		require.NoError(t, err)

		first, err := q.Receive(ctx, 1, 50*time.Millisecond)
		require.NoError(t, err)
		require.Len(t, first, 1)

		expire()
		second, err := q.Receive(ctx, 1, 50*time.Millisecond)
		require.NoError(t, err)
		require.Len(t, second, 1)
		assert.Equal(t, first[0].ID, second[0].ID)
		assert.Equal(t, 2, second[0].Receives)

		t.Run("the superseded receipt no longer deletes", func(t *testing.T) {
			assert.ErrorIs(t, q.Delete(ctx, first[0].Receipt), ErrReceiptExpired)
			require.NoError(t, q.Delete(ctx, second[0].Receipt))
		})
	})

	t.Run("receive returns at most max messages", func(t *testing.T) {
		q, _ := newQueue(t)
		for i := 0; i < 5; i++ {
			_, err := q.Enqueue(ctx, testJob())
			require.NoError(t, err)
		}
		msgs, err := q.Receive(ctx, 3, 50*time.Millisecond)
		require.NoError(t, err)
		assert.Len(t, msgs, 3)
	})

	t.Run("empty queue returns after the wait", func(t *testing.T) {
		q, _ := newQueue(t)
		start := time.Now()
		msgs, err := q.Receive(ctx, 1, 100*time.Millisecond)
		require.NoError(t, err)
		assert.Empty(t, msgs)
		assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
	})
}
