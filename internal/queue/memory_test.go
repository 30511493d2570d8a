package queue

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryQueueContract(t *testing.T) {
	runQueueContract(t, func(t *testing.T) (Queue, func()) {
		clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
		q := NewMemoryQueue(5*time.Minute, WithClock(clock.Now))
		return q, func() { clock.Advance(5*time.Minute + time.Second) }
	})
}

func TestMemoryQueueWakesWaitingReceiver(t *testing.T) {
	q := NewMemoryQueue(time.Minute)
	ctx := context.Background()

	got := make(chan []Message, 1)
	go func() {
		msgs, _ := q.Receive(ctx, 1, 5*time.Second)
		got <- msgs
	}()

	time.Sleep(20 * time.Millisecond)
	_, err := q.Enqueue(ctx, testJob())
	require.NoError(t, err)

	select {
	case msgs := <-got:
		assert.Len(t, msgs, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("receiver was not woken by enqueue")
	}
}

func TestMemoryQueueReceiveHonorsCancellation(t *testing.T) {
	q := NewMemoryQueue(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Receive(ctx, 1, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDecodeJob(t *testing.T) {
	t.Run("rejects malformed bodies", func(t *testing.T) {
		for _, body := range []string{
			`not json`,
			`{"document_id":"x","patient_id":"x","document_type":"passport","tenant_id":"x"}`,
			`{"document_id":"6f1c7a3e-9a51-4a8f-8a53-0d1f4f0b8c11","patient_id":"6f1c7a3e-9a51-4a8f-8a53-0d1f4f0b8c12","document_type":"library_card","tenant_id":"6f1c7a3e-9a51-4a8f-8a53-0d1f4f0b8c13"}`,
		} {
			_, err := DecodeJob([]byte(body))
			assert.Error(t, err, body)
		}
	})

	t.Run("carries the reverify flag and request time", func(t *testing.T) {
		requestedAt := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
		job := testJob()
		job.Reverify = true
		job.RequestedAt = requestedAt
		q := NewMemoryQueue(time.Minute)
		_, err := q.Enqueue(context.Background(), job)
		require.NoError(t, err)
		msgs, err := q.Receive(context.Background(), 1, 10*time.Millisecond)
		require.NoError(t, err)
		parsed, err := DecodeJob(msgs[0].Body)
		require.NoError(t, err)
		assert.True(t, parsed.Reverify)
		assert.True(t, requestedAt.Equal(parsed.ReverifyRequestedAt()))
	})

	t.Run("reverify without a request time is malformed", func(t *testing.T) {
		job := testJob()
		job.Reverify = true
		body, err := json.Marshal(job)
		require.NoError(t, err)
		_, err = DecodeJob(body)
		assert.Error(t, err)
	})

	t.Run("first verification has no reverify cutoff", func(t *testing.T) {
		job := testJob()
		job.RequestedAt = time.Now()
		body, err := json.Marshal(job)
		require.NoError(t, err)
		parsed, err := DecodeJob(body)
		require.NoError(t, err)
		assert.True(t, parsed.ReverifyRequestedAt().IsZero())
	})
}
