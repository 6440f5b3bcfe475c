package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
)

// RPCRequest represents a JSON-RPC 2.0 request. A numeric id is kept in
// its decimal text form and echoed back as a number.
type RPCRequest struct {
	ID      string                 `json:"id"`
	Method  string                 `json:"method"`
	Params  map[string]interface{} `json:"params,omitempty"`
	JSONRPC string                 `json:"jsonrpc"`

	numericID bool
}

// UnmarshalJSON accepts a string or a number as id
func (r *RPCRequest) UnmarshalJSON(data []byte) error {
	type plain RPCRequest
	var w struct {
		plain
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	id, numeric, err := decodeID(w.ID)
	if err != nil {
		return err
	}
	*r = RPCRequest(w.plain)
	r.ID, r.numericID = id, numeric
	return nil
}

func decodeID(raw json.RawMessage) (string, bool, error) {
	raw = bytes.TrimSpace(raw)
	switch {
	case len(raw) == 0 || string(raw) == "null":
		return "", false, nil
	case raw[0] == '"':
		var s string
		err := json.Unmarshal(raw, &s)
		return s, false, err
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", false, errInvalidID
	}
	return n.String(), true, nil
}

// RPCResponse represents a JSON-RPC 2.0 response
type RPCResponse struct {
	ID      string      `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
	JSONRPC string      `json:"jsonrpc"`

	numericID bool
}

// MarshalJSON writes the id in the form the request used
func (r RPCResponse) MarshalJSON() ([]byte, error) {
	type plain RPCResponse
	w := struct {
		plain
		ID json.RawMessage `json:"id"`
	}{plain: plain(r)}

	if r.numericID {
		w.ID = json.RawMessage(r.ID)
	} else {
		id, err := json.Marshal(r.ID)
		if err != nil {
			return nil, err
		}
		w.ID = id
	}
	return json.Marshal(w)
}

// RPCError represents a JSON-RPC 2.0 error
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error implements the error interface
func (e *RPCError) Error() string {
	return e.Message
}

// ConnInfo represents information about a connected client
type ConnInfo struct {
	ID           string    `json:"id"`
	ConnectedAt  time.Time `json:"connectedAt"`
	LastActivity time.Time `json:"lastActivity"`
	IPAddress    string    `json:"ipAddress"`
	Requests     int64     `json:"requests"`
	Idle         bool      `json:"idle"`
}

// RequestHandler is a function that handles RPC requests
type RequestHandler func(ctx context.Context, params map[string]interface{}) (interface{}, error)

var errInvalidID = errors.New("id must be a string or a number")

// RPC error codes
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

// Conn represents a connected WebSocket client. Its requests are served
// one at a time by the goroutine reading the connection, so the connection
// id doubles as the worker id of those requests.
type Conn struct {
	ID           string
	Conn         *websocket.Conn
	ConnectedAt  time.Time
	LastActivity time.Time
	IPAddress    string
	Requests     int64
}
