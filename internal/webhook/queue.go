package webhook

import (
	"context"

	"github.com/blackroad-os/edge-router/pkg/models"
)

// Queue is the bounded channel that decouples webhook HTTP responses from
// signal-bus publish/audit-append work (spec.md §4.4, §5 backpressure:
// "webhook queue has a fixed-size bounded channel (default 1024)").
type Queue struct {
	ch chan models.Signal
}

// NewQueue constructs a queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Queue{ch: make(chan models.Signal, capacity)}
}

// TryEnqueue attempts a non-blocking send. It reports false when the
// queue is full, which the caller must turn into a 503 queue_full
// response.
func (q *Queue) TryEnqueue(s models.Signal) bool {
	select {
	case q.ch <- s:
		return true
	default:
		return false
	}
}

// Run drains the queue until ctx is cancelled, invoking publish for each
// dequeued signal.
func (q *Queue) Run(ctx context.Context, publish func(models.Signal)) {
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-q.ch:
			publish(s)
		}
	}
}
