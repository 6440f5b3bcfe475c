package tracing

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Request is the tracing state of one RPC request
type Request struct {
	TraceID   string
	RequestID string
	Method    string
	Session   string
}

type requestKey struct{}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// FromContext returns the tracing state carried by ctx
func FromContext(ctx context.Context) Request {
	if ctx == nil {
		return Request{}
	}
	r, _ := ctx.Value(requestKey{}).(Request)
	return r
}

func update(ctx context.Context, set func(*Request)) context.Context {
	r := FromContext(ctx)
	set(&r)
	return context.WithValue(ctx, requestKey{}, r)
}

// NewRequestContext starts the tracing state of a request. An empty traceID
// keeps the one already in ctx, or generates one.
func NewRequestContext(ctx context.Context, traceID, requestID, method string) context.Context {
	return update(ctx, func(r *Request) {
		switch {
		case traceID != "":
			r.TraceID = traceID
		case r.TraceID == "":
			r.TraceID = NewTraceID()
		}
		r.RequestID = requestID
		r.Method = method
	})
}

// WithTraceID sets the trace ID
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return update(ctx, func(r *Request) { r.TraceID = traceID })
}

// WithMethod sets the RPC method name
func WithMethod(ctx context.Context, method string) context.Context {
	return update(ctx, func(r *Request) { r.Method = method })
}

// WithSession sets the session name
func WithSession(ctx context.Context, session string) context.Context {
	return update(ctx, func(r *Request) { r.Session = session })
}

// TraceID returns the trace ID carried by ctx
func TraceID(ctx context.Context) string {
	return FromContext(ctx).TraceID
}

// Logger returns base annotated with the request fields of ctx and, when a
// span is recording, its span ID
func Logger(ctx context.Context, base zerolog.Logger) zerolog.Logger {
	if ctx == nil {
		return base
	}

	r := FromContext(ctx)
	lc := base.With()
	if r.TraceID != "" {
		lc = lc.Str("trace_id", r.TraceID)
	}
	if r.RequestID != "" {
		lc = lc.Str("request_id", r.RequestID)
	}
	if r.Method != "" {
		lc = lc.Str("method", r.Method)
	}
	if r.Session != "" {
		lc = lc.Str("session", r.Session)
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		lc = lc.Str("span_id", sc.SpanID().String())
	}
	return lc.Logger()
}
