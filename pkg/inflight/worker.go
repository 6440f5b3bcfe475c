package inflight

import (
	"context"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

type workerKey struct{}

// NewWorkerID returns an opaque identifier for a request worker
func NewWorkerID() string {
	id, err := gonanoid.New()
	if err != nil {
		return ""
	}
	return "w-" + id
}

// WithWorker marks ctx as executing on the given worker. The gateway assigns
// one worker per connection, so requests that share a connection share a
// worker.
func WithWorker(ctx context.Context, workerID string) context.Context {
	return context.WithValue(ctx, workerKey{}, workerID)
}

// WorkerFromContext returns the worker recorded in ctx, or "" if none
func WorkerFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(workerKey{}).(string); ok {
		return id
	}
	return ""
}
