package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
)

const protocolVersion = "2.0"

// Router dispatches decoded requests to the handler registered for their
// method. A method name is registered once.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]RequestHandler
}

// NewRouter creates an empty router
func NewRouter() *Router {
	return &Router{handlers: make(map[string]RequestHandler)}
}

// Handle registers h under name
func (r *Router) Handle(name string, h RequestHandler) error {
	switch {
	case name == "":
		return errors.New("method name is required")
	case h == nil:
		return fmt.Errorf("method %s: nil handler", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.handlers[name]; dup {
		return fmt.Errorf("method %s already registered", name)
	}
	r.handlers[name] = h
	return nil
}

// Methods returns the registered method names in order
func (r *Router) Methods() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	r.mu.RUnlock()

	slices.Sort(names)
	return names
}

func (r *Router) handler(name string) (RequestHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Dispatch serves req with its method's handler
func (r *Router) Dispatch(ctx context.Context, req *RPCRequest) *RPCResponse {
	h, ok := r.handler(req.Method)
	if !ok {
		return failure(req, rpcErrorf(MethodNotFound, "method not found: %s", req.Method))
	}

	result, err := h(ctx, req.Params)
	if err != nil {
		return failure(req, err)
	}
	return &RPCResponse{ID: req.ID, numericID: req.numericID, JSONRPC: protocolVersion, Result: result}
}

// DecodeRequest parses one JSON-RPC message. A missing version is taken
// as 2.0; any other version is rejected.
func DecodeRequest(data []byte) (*RPCRequest, error) {
	var req RPCRequest
	if err := json.Unmarshal(data, &req); err != nil {
		if errors.Is(err, errInvalidID) {
			return nil, rpcErrorf(InvalidRequest, "invalid request: %v", err)
		}
		return nil, &RPCError{Code: ParseError, Message: "parse error", Data: err.Error()}
	}

	switch {
	case req.ID == "":
		return nil, rpcErrorf(InvalidRequest, "invalid request: missing id")
	case req.Method == "":
		return &req, rpcErrorf(InvalidRequest, "invalid request: missing method")
	case req.JSONRPC == "":
		req.JSONRPC = protocolVersion
	case req.JSONRPC != protocolVersion:
		return &req, rpcErrorf(InvalidRequest, "invalid request: unsupported jsonrpc version %q", req.JSONRPC)
	}
	return &req, nil
}

func rpcErrorf(code int, format string, args ...interface{}) *RPCError {
	return &RPCError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// failure builds the error response to req, which may be nil when the
// message could not be decoded
func failure(req *RPCRequest, err error) *RPCResponse {
	resp := &RPCResponse{JSONRPC: protocolVersion, Error: toRPCError(err)}
	if req != nil {
		resp.ID, resp.numericID = req.ID, req.numericID
	}
	return resp
}

// toRPCError maps an error onto the wire. Errors exposing Code keep their
// code and errors exposing Data keep their data; the rest are internal.
func toRPCError(err error) *RPCError {
	var (
		wire  *RPCError
		coded interface{ Code() int }
		data  interface{ Data() interface{} }
	)
	if errors.As(err, &wire) {
		return wire
	}

	out := &RPCError{Code: InternalError, Message: err.Error()}
	if errors.As(err, &coded) {
		out.Code = coded.Code()
	}
	if errors.As(err, &data) {
		out.Data = data.Data()
	}
	return out
}
