package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/harun/knife/pkg/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echo(_ context.Context, params map[string]interface{}) (interface{}, error) {
	return params["input"], nil
}

func TestRouter_Handle(t *testing.T) {
	r := NewRouter()

	require.NoError(t, r.Handle("test.echo", echo))

	err := r.Handle("test.echo", echo)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")

	assert.Error(t, r.Handle("", echo))
	assert.Error(t, r.Handle("test.nil", nil))

	assert.Equal(t, []string{"test.echo"}, r.Methods())
}

func TestRouter_Methods(t *testing.T) {
	r := NewRouter()
	assert.Empty(t, r.Methods())

	for _, name := range []string{"session.open", "code.exec", "request.status"} {
		require.NoError(t, r.Handle(name, echo))
	}
	assert.Equal(t, []string{"code.exec", "request.status", "session.open"}, r.Methods())
}

func TestDecodeRequest(t *testing.T) {
	req, err := DecodeRequest([]byte(`{"id":"1","method":"code.exec","params":{"code":"1"}}`))
	require.NoError(t, err)
	assert.Equal(t, "1", req.ID)
	assert.Equal(t, "code.exec", req.Method)
	assert.Equal(t, "1", req.Params["code"])
	assert.Equal(t, "2.0", req.JSONRPC)

	tests := []struct {
		name  string
		data  string
		code  int
		msg   string
		hasID bool
	}{
		{"malformed", `{nope}`, ParseError, "parse error", false},
		{"missing id", `{"method":"code.exec"}`, InvalidRequest, "missing id", false},
		{"missing method", `{"id":"1"}`, InvalidRequest, "missing method", true},
		{"wrong version", `{"id":"1","method":"code.exec","jsonrpc":"1.0"}`, InvalidRequest, "unsupported jsonrpc version", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := DecodeRequest([]byte(tt.data))

			var rpcErr *RPCError
			require.True(t, errors.As(err, &rpcErr))
			assert.Equal(t, tt.code, rpcErr.Code)
			assert.Contains(t, rpcErr.Message, tt.msg)
			if tt.hasID {
				require.NotNil(t, req)
				assert.Equal(t, "1", req.ID)
			}
		})
	}
}

func TestRouter_Dispatch(t *testing.T) {
	r := NewRouter()
	ctx := context.Background()

	type key struct{}
	require.NoError(t, r.Handle("test.echo", echo))
	require.NoError(t, r.Handle("test.ctx", func(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
		return ctx.Value(key{}), nil
	}))
	require.NoError(t, r.Handle("test.fail", func(context.Context, map[string]interface{}) (interface{}, error) {
		return nil, fmt.Errorf("engine unavailable")
	}))

	t.Run("result", func(t *testing.T) {
		resp := r.Dispatch(ctx, &RPCRequest{ID: "1", Method: "test.echo", Params: map[string]interface{}{"input": "hello"}})
		assert.Equal(t, "1", resp.ID)
		assert.Equal(t, "2.0", resp.JSONRPC)
		assert.Nil(t, resp.Error)
		assert.Equal(t, "hello", resp.Result)
	})

	t.Run("context reaches handler", func(t *testing.T) {
		resp := r.Dispatch(context.WithValue(ctx, key{}, "conn-1"), &RPCRequest{ID: "2", Method: "test.ctx"})
		assert.Equal(t, "conn-1", resp.Result)
	})

	t.Run("unknown method", func(t *testing.T) {
		resp := r.Dispatch(ctx, &RPCRequest{ID: "3", Method: "nope"})
		assert.Equal(t, "3", resp.ID)
		assert.Nil(t, resp.Result)
		require.NotNil(t, resp.Error)
		assert.Equal(t, MethodNotFound, resp.Error.Code)
		assert.Equal(t, "method not found: nope", resp.Error.Message)
	})

	t.Run("handler error", func(t *testing.T) {
		resp := r.Dispatch(ctx, &RPCRequest{ID: "4", Method: "test.fail"})
		require.NotNil(t, resp.Error)
		assert.Equal(t, InternalError, resp.Error.Code)
		assert.Equal(t, "engine unavailable", resp.Error.Message)
	})
}

func TestToRPCError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		data interface{}
	}{
		{"plain", fmt.Errorf("boom"), InternalError, nil},
		{"wire", &RPCError{Code: ParseError, Message: "x"}, ParseError, nil},
		{"validation", &service.ValidationError{Message: "bad"}, InvalidParams, nil},
		{"not found", &service.NotFoundError{Message: "missing"}, service.CodeNotFound, nil},
		{"wrapped not found", fmt.Errorf("lookup: %w", &service.NotFoundError{Message: "missing"}), service.CodeNotFound, nil},
		{"ambiguous", &service.AmbiguousError{Match: "ls", Matches: []int{0, 1}}, service.CodeAmbiguous, map[string]interface{}{"matches": []int{0, 1}}},
		{"out of range", &service.OutOfRangeError{Index: 5, Length: 2}, service.CodeOutOfRange, map[string]interface{}{"index": 5, "length": 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rpcErr := toRPCError(tt.err)
			assert.Equal(t, tt.code, rpcErr.Code)
			assert.Equal(t, tt.err.Error(), rpcErr.Message)
			assert.Equal(t, tt.data, rpcErr.Data)
		})
	}
}

func TestDecodeRequest_NumericID(t *testing.T) {
	r := NewRouter()
	require.NoError(t, r.Handle("test.echo", echo))

	req, err := DecodeRequest([]byte(`{"jsonrpc":"2.0","id":7,"method":"test.echo","params":{"input":"hi"}}`))
	require.NoError(t, err)
	assert.Equal(t, "7", req.ID)

	data, err := json.Marshal(r.Dispatch(context.Background(), req))
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":7,"result":"hi"}`, string(data))

	data, err = json.Marshal(r.Dispatch(context.Background(), &RPCRequest{ID: "7", Method: "test.echo"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":"7"}`, string(data))

	req, err = DecodeRequest([]byte(`{"id":1.5e3,"method":"nope"}`))
	require.NoError(t, err)
	data, err = json.Marshal(r.Dispatch(context.Background(), req))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"id":1.5e3`)

	_, err = DecodeRequest([]byte(`{"id":true,"method":"test.echo"}`))
	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, InvalidRequest, rpcErr.Code)
	assert.Contains(t, rpcErr.Message, "id must be a string or a number")
}
