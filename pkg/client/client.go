// Package client is the JSON-RPC client of a knife server.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/knife/pkg/gateway"
	"github.com/rs/zerolog/log"
)

// ErrConnectionBroken is returned by calls on a connection whose previous
// call was abandoned mid-flight
var ErrConnectionBroken = errors.New("connection is no longer usable")

type request struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type response struct {
	ID     string            `json:"id"`
	Result json.RawMessage   `json:"result,omitempty"`
	Error  *gateway.RPCError `json:"error,omitempty"`
}

// Client is one WebSocket connection to a server. Calls on a client are
// serialized, matching the server which serves a connection sequentially.
type Client struct {
	url  string
	conn *websocket.Conn

	mu     sync.Mutex
	nextID uint64
	broken error
}

// URL converts an endpoint to the WebSocket URL of the server. Endpoints are
// HOST:PORT or ws:// and wss:// URLs.
func URL(endpoint string) (string, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", fmt.Errorf("empty endpoint")
	}
	if strings.HasPrefix(endpoint, "ws://") || strings.HasPrefix(endpoint, "wss://") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
		}
		if u.Path == "" || u.Path == "/" {
			u.Path = "/ws"
		}
		return u.String(), nil
	}
	return (&url.URL{Scheme: "ws", Host: endpoint, Path: "/ws"}).String(), nil
}

// Dial connects to the server at endpoint
func Dial(ctx context.Context, endpoint string) (*Client, error) {
	u, err := URL(endpoint)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", u, err)
	}

	log.Debug().Str("url", u).Msg("Connected")
	return &Client{url: u, conn: conn}, nil
}

// Close closes the connection
func (c *Client) Close() error {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}

// Call invokes method and decodes the result into out, which may be nil.
// Server errors are returned as *gateway.RPCError. When ctx is done before
// the response arrives the call is abandoned, the connection becomes
// unusable and the context error is returned.
func (c *Client) Call(ctx context.Context, method string, params, out interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broken != nil {
		return fmt.Errorf("%w: %v", ErrConnectionBroken, c.broken)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", method, context.Cause(ctx))
	}

	c.nextID++
	id := strconv.FormatUint(c.nextID, 10)

	deadline, _ := ctx.Deadline()
	_ = c.conn.SetWriteDeadline(deadline)
	_ = c.conn.SetReadDeadline(deadline)
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
		_ = c.conn.SetWriteDeadline(time.Now())
	})
	defer stop()

	fail := func(err error) error {
		if ctx.Err() != nil {
			c.broken = context.Cause(ctx)
			return fmt.Errorf("%s: %w", method, context.Cause(ctx))
		}
		c.broken = err
		return fmt.Errorf("%s: %w", method, err)
	}

	if err := c.conn.WriteJSON(request{JSONRPC: "2.0", ID: id, Method: method, Params: params}); err != nil {
		return fail(err)
	}

	for {
		var resp response
		if err := c.conn.ReadJSON(&resp); err != nil {
			return fail(err)
		}
		if resp.ID != id {
			log.Debug().Str("id", resp.ID).Str("want", id).Msg("Discarding stale response")
			continue
		}
		if resp.Error != nil {
			return resp.Error
		}
		if out == nil || len(resp.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("%s: failed to decode result: %w", method, err)
		}
		return nil
	}
}
