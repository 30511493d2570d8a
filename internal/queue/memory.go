package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryMessage struct {
	id       string
	body     []byte
	receives int
	deadline time.Time
}

// MemoryQueue implements Queue in process memory with the same visibility
// semantics as the Redis backend. The clock is injectable for tests.
type MemoryQueue struct {
	mu                sync.Mutex
	visibilityTimeout time.Duration
	now               func() time.Time
	pending           []string
	inflight          map[string]*memoryMessage
	messages          map[string]*memoryMessage
	notify            chan struct{}
}

type MemoryOption func(*MemoryQueue)

// WithClock overrides the clock used for visibility deadlines.
func WithClock(now func() time.Time) MemoryOption {
	return func(q *MemoryQueue) { q.now = now }
}

func NewMemoryQueue(visibilityTimeout time.Duration, opts ...MemoryOption) *MemoryQueue {
	q := &MemoryQueue{
		visibilityTimeout: visibilityTimeout,
		now:               time.Now,
		inflight:          make(map[string]*memoryMessage),
		messages:          make(map[string]*memoryMessage),
		notify:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job Job) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	body, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("encode job: %w", err)
	}
	msgID := uuid.NewString()
	q.mu.Lock()
	q.messages[msgID] = &memoryMessage{id: msgID, body: body}
	q.pending = append(q.pending, msgID)
	q.wake()
	q.mu.Unlock()
	return msgID, nil
}

// wake releases waiting receivers. Callers hold q.mu.
func (q *MemoryQueue) wake() {
	close(q.notify)
	q.notify = make(chan struct{})
}

func (q *MemoryQueue) Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error) {
	if max <= 0 {
		max = 1
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		q.mu.Lock()
		msgs := q.receiveLocked(max)
		notify := q.notify
		q.mu.Unlock()
		if len(msgs) > 0 {
			return msgs, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, nil
		case <-notify:
		}
	}
}

func (q *MemoryQueue) receiveLocked(max int) []Message {
	now := q.now()
	for msgID, m := range q.inflight {
		if !now.Before(m.deadline) {
			delete(q.inflight, msgID)
			q.pending = append(q.pending, msgID)
		}
	}
	var out []Message
	for len(out) < max && len(q.pending) > 0 {
		msgID := q.pending[0]
		q.pending = q.pending[1:]
		m, ok := q.messages[msgID]
		if !ok {
			continue
		}
		m.receives++
		m.deadline = now.Add(q.visibilityTimeout)
		q.inflight[msgID] = m
		out = append(out, Message{
			ID:       msgID,
			Body:     append([]byte(nil), m.body...),
			Receipt:  msgID + ":" + strconv.FormatInt(m.deadline.UnixNano(), 10),
			Receives: m.receives,
		})
	}
	return out
}

func (q *MemoryQueue) Delete(_ context.Context, receipt string) error {
	msgID, deadline, ok := strings.Cut(receipt, ":")
	if !ok {
		return fmt.Errorf("malformed receipt %q", receipt)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	m, inflight := q.inflight[msgID]
	if !inflight || strconv.FormatInt(m.deadline.UnixNano(), 10) != deadline {
		return ErrReceiptExpired
	}
	delete(q.inflight, msgID)
	delete(q.messages, msgID)
	return nil
}

// Depth reports pending and in-flight message counts.
func (q *MemoryQueue) Depth(context.Context) (pending, inflight int64, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.pending)), int64(len(q.inflight)), nil
}

// Jobs decodes every undeleted message, pending or in flight. Test helper.
func (q *MemoryQueue) Jobs() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Job, 0, len(q.messages))
	for _, m := range q.messages {
		var j Job
		if err := json.Unmarshal(m.body, &j); err == nil {
			out = append(out, j)
		}
	}
	return out
}
