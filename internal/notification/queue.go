package notification

import (
	"context"
	"time"

	"auction-engine/internal/bg"
)

// InlineQueue dispatches in-process on a bg.Runner
type InlineQueue struct {
	dispatcher *Dispatcher
	runner     bg.Runner
	timeout    time.Duration
}

// NewInlineQueue creates a queue that hands each request to runner
func NewInlineQueue(d *Dispatcher, runner bg.Runner, timeout time.Duration) *InlineQueue {
	return &InlineQueue{dispatcher: d, runner: runner, timeout: timeout}
}

// Enqueue dispatches req detached from the caller's cancellation
func (q *InlineQueue) Enqueue(ctx context.Context, req Request) {
	detached := context.WithoutCancel(ctx)
	q.runner.Do(func() {
		ctx, cancel := context.WithTimeout(detached, q.timeout)
		defer cancel()
		q.dispatcher.NotifyUser(ctx, req)
	})
}
