package events

import (
	"context"
	"log/slog"
	"sync"
)

// Publisher emits events to the bus. Publish returns only once the event is
// durably accepted, or with an error.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// LogPublisher writes events to the structured log. Used when no broker is
// configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, e Event) error {
	p.logger.InfoContext(ctx, "domain event",
		"event_type", string(e.EventType),
		"event_id", e.EventID,
		"tenant_id", e.TenantID,
		"document_id", e.DocumentID,
		"document_type", e.DocumentType,
		"status", e.Status,
		"verification_status", e.VerificationStatus,
	)
	return nil
}

// Recorder keeps published events in memory. An error set with FailWith is
// returned by every Publish until cleared.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns recorded events of one type.
func (r *Recorder) OfType(t Type) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.EventType == t {
			out = append(out, e)
		}
	}
	return out
}
