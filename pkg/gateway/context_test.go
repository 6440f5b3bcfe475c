package gateway

import (
	"context"
	"testing"

	"github.com/harun/knife/internal/tracing"
	"github.com/harun/knife/pkg/inflight"
	"github.com/stretchr/testify/assert"
)

func TestRequestContext(t *testing.T) {
	req := &RPCRequest{ID: "5", Method: "code.run"}

	ctx := requestContext(context.Background(), "conn-1", "trace-abc", req)
	r := tracing.FromContext(ctx)
	assert.Equal(t, "trace-abc", r.TraceID)
	assert.Equal(t, "5", r.RequestID)
	assert.Equal(t, "code.run", r.Method)
	assert.Equal(t, "conn-1", inflight.WorkerFromContext(ctx))

	ctx = requestContext(context.Background(), "conn-2", "", req)
	assert.NotEmpty(t, tracing.TraceID(ctx))
	assert.NotEqual(t, "trace-abc", tracing.TraceID(ctx))
}
