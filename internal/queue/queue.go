// Package queue is the durable, at-least-once verification job channel.
//
// A received message is hidden from other consumers for the visibility timeout. If it
// is not deleted within that window it becomes visible again and is redelivered; that
// redelivery is the only retry mechanism.
package queue

import (
	"context"
	"errors"
	"time"
)

// ErrReceiptExpired reports a delete with a receipt whose visibility window has been
// superseded by a later delivery. The newer holder will finish the work.
var ErrReceiptExpired = errors.New("queue receipt expired")

// Message is one delivery of a job.
type Message struct {
	ID      string
	Body    []byte
	Receipt string
	// Receives counts deliveries including this one.
	Receives int
}

// Queue is the verification queue port.
type Queue interface {
	Enqueue(ctx context.Context, job Job) (string, error)
	// Receive long-polls for up to max messages, waiting at most wait when empty.
	Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error)
	Delete(ctx context.Context, receipt string) error
}
