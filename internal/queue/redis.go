package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// receiveScript returns expired in-flight messages to pending, then moves up to
// ARGV[2] messages into flight with a deadline computed from the server clock.
// Reply: deadline_ms followed by (id, body, receives) triples.
var receiveScript = redis.NewScript(`
local t = redis.call('TIME')
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)
local deadline = now + tonumber(ARGV[1])

local expired = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', now)
for _, id in ipairs(expired) do
  redis.call('ZREM', KEYS[2], id)
  redis.call('RPUSH', KEYS[1], id)
end

local out = {tostring(deadline)}
for i = 1, tonumber(ARGV[2]) do
  local id = redis.call('RPOP', KEYS[1])
  if not id then break end
  local key = ARGV[3] .. id
  local body = redis.call('HGET', key, 'body')
  if body then
    local n = redis.call('HINCRBY', key, 'receives', 1)
    redis.call('ZADD', KEYS[2], deadline, id)
    table.insert(out, id)
    table.insert(out, body)
    table.insert(out, tostring(n))
  end
end
return out
`)

// deleteScript removes a message only while the caller's receipt is current.
var deleteScript = redis.NewScript(`
local score = redis.call('ZSCORE', KEYS[1], ARGV[1])
if not score or tonumber(score) ~= tonumber(ARGV[2]) then
  return 0
end
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('DEL', ARGV[3] .. ARGV[1])
return 1
`)

// RedisQueue implements Queue on a Redis list (pending) and sorted set (in flight,
// scored by visibility deadline). Keys share a hash tag so the scripts stay on one
// cluster slot.
type RedisQueue struct {
	client            redis.UniversalClient
	visibilityTimeout time.Duration
	pollInterval      time.Duration
	pendingKey        string
	inflightKey       string
	messagePrefix     string
}

func NewRedisQueue(client redis.UniversalClient, name string, visibilityTimeout, pollInterval time.Duration) *RedisQueue {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	base := "queue:{" + name + "}"
	return &RedisQueue{
		client:            client,
		visibilityTimeout: visibilityTimeout,
		pollInterval:      pollInterval,
		pendingKey:        base + ":pending",
		inflightKey:       base + ":inflight",
		messagePrefix:     base + ":msg:",
	}
}

func (q *RedisQueue) Enqueue(ctx context.Context, job Job) (string, error) {
	body, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("encode job: %w", err)
	}
	msgID := uuid.NewString()
	_, err = q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, q.messagePrefix+msgID, "body", body, "receives", 0)
		p.LPush(ctx, q.pendingKey, msgID)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	return msgID, nil
}

func (q *RedisQueue) Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error) {
	if max <= 0 {
		max = 1
	}
	deadline := time.Now().Add(wait)
	for {
		msgs, err := q.receiveOnce(ctx, max)
		if err != nil || len(msgs) > 0 {
			return msgs, err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		timer := time.NewTimer(min(q.pollInterval, remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (q *RedisQueue) receiveOnce(ctx context.Context, max int) ([]Message, error) {
	reply, err := receiveScript.Run(ctx, q.client,
		[]string{q.pendingKey, q.inflightKey},
		q.visibilityTimeout.Milliseconds(), max, q.messagePrefix,
	).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("receive jobs: %w", err)
	}
	if len(reply) < 1 || (len(reply)-1)%3 != 0 {
		return nil, fmt.Errorf("receive jobs: malformed reply of %d elements", len(reply))
	}
	deadline := reply[0]
	msgs := make([]Message, 0, (len(reply)-1)/3)
	for i := 1; i < len(reply); i += 3 {
		receives, _ := strconv.Atoi(reply[i+2])
		msgs = append(msgs, Message{
			ID:       reply[i],
			Body:     []byte(reply[i+1]),
			Receipt:  reply[i] + ":" + deadline,
			Receives: receives,
		})
	}
	return msgs, nil
}

func (q *RedisQueue) Delete(ctx context.Context, receipt string) error {
	msgID, deadline, ok := strings.Cut(receipt, ":")
	if !ok || msgID == "" || deadline == "" {
		return fmt.Errorf("malformed receipt %q", receipt)
	}
	n, err := deleteScript.Run(ctx, q.client, []string{q.inflightKey}, msgID, deadline, q.messagePrefix).Int()
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if n == 0 {
		return ErrReceiptExpired
	}
	return nil
}

// Depth reports pending and in-flight message counts.
func (q *RedisQueue) Depth(ctx context.Context) (pending, inflight int64, err error) {
	pipe := q.client.Pipeline()
	p := pipe.LLen(ctx, q.pendingKey)
	f := pipe.ZCard(ctx, q.inflightKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, fmt.Errorf("queue depth: %w", err)
	}
	return p.Val(), f.Val(), nil
}
