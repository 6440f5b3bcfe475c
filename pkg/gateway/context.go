package gateway

import (
	"context"

	"github.com/harun/knife/internal/tracing"
	"github.com/harun/knife/pkg/inflight"
)

// requestContext builds the context a request is served with. workerID
// identifies the goroutine serving the request; interrupting a request from
// the worker serving it is refused.
func requestContext(parent context.Context, workerID, traceID string, req *RPCRequest) context.Context {
	ctx := tracing.NewRequestContext(parent, traceID, req.ID, req.Method)
	return inflight.WithWorker(ctx, workerID)
}
