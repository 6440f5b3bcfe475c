package client

import (
	"context"
	"errors"

	"github.com/harun/knife/pkg/engine"
	"github.com/harun/knife/pkg/inflight"
	"github.com/harun/knife/pkg/sandbox"
	"github.com/harun/knife/pkg/service"
	"github.com/harun/knife/pkg/session"
)

// AttachOptions selects the resource to attach. Exactly one of Index and
// Match must be set.
type AttachOptions struct {
	Index          *int
	Match          string
	IncludeUnnamed bool
}

// Validate checks the selector without contacting the server
func (o AttachOptions) Validate() error {
	switch {
	case o.Index != nil && o.Match != "":
		return errors.New("index and match are mutually exclusive")
	case o.Index == nil && o.Match == "":
		return errors.New("attach requires index or match")
	}
	return nil
}

// OpenSession creates or returns the named session
func (c *Client) OpenSession(ctx context.Context, name string) (string, error) {
	var out string
	err := c.Call(ctx, "session.open", service.SessionOpenParams{Name: name}, &out)
	return out, err
}

// ListSessions returns the open session names
func (c *Client) ListSessions(ctx context.Context) ([]string, error) {
	var out []string
	err := c.Call(ctx, "session.list", nil, &out)
	return out, err
}

// CloseSession removes the named session. It reports whether it existed.
func (c *Client) CloseSession(ctx context.Context, name string) (bool, error) {
	var out bool
	err := c.Call(ctx, "session.close", service.SessionOpenParams{Name: name}, &out)
	return out, err
}

// ResetSession clears the session namespace, optionally dropping its resource
func (c *Client) ResetSession(ctx context.Context, name string, keepResource bool) error {
	return c.Call(ctx, "session.reset", service.SessionResetParams{Name: name, KeepResource: &keepResource}, nil)
}

// ListResources enumerates attachable resources
func (c *Client) ListResources(ctx context.Context, sess string, includeUnnamed, full bool) ([]service.ResourceInfo, error) {
	var out []service.ResourceInfo
	err := c.Call(ctx, "resource.list", service.ResourceListParams{
		Session:        sess,
		IncludeUnnamed: includeUnnamed,
		Full:           full,
	}, &out)
	return out, err
}

// AttachResource binds a discovered resource to the session
func (c *Client) AttachResource(ctx context.Context, sess string, opts AttachOptions) (*service.ResourceInfo, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	params := service.ResourceAttachParams{
		Session:        sess,
		Index:          opts.Index,
		IncludeUnnamed: opts.IncludeUnnamed,
	}
	if opts.Match != "" {
		params.Match = &opts.Match
	}

	var out service.ResourceInfo
	if err := c.Call(ctx, "resource.attach", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ResourceStatus describes the bound resource
func (c *Client) ResourceStatus(ctx context.Context, sess string) (*service.ResourceStatus, error) {
	var out service.ResourceStatus
	if err := c.Call(ctx, "resource.status", service.SessionParams{Session: sess}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LoadResource opens path and binds it to the session as an owned resource
func (c *Client) LoadResource(ctx context.Context, sess, path string, updateAnalysis bool, options map[string]any) (*service.ResourceInfo, error) {
	var out service.ResourceInfo
	err := c.Call(ctx, "resource.load", service.ResourceLoadParams{
		Session:        sess,
		Path:           path,
		UpdateAnalysis: &updateAnalysis,
		Options:        options,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DetachResource unbinds the session resource
func (c *Client) DetachResource(ctx context.Context, sess string, force bool) (session.DetachOutcome, error) {
	var out session.DetachOutcome
	err := c.Call(ctx, "resource.detach", service.ResourceDetachParams{Session: sess, Force: force}, &out)
	return out, err
}

// RunCode executes code in the session namespace
func (c *Client) RunCode(ctx context.Context, sess, code string, argv []string) (sandbox.Result, error) {
	var out sandbox.Result
	err := c.Call(ctx, "code.run", service.CodeRunParams{Session: sess, Code: code, Argv: argv}, &out)
	return out, err
}

// RunRootCode executes code in the shared root namespace
func (c *Client) RunRootCode(ctx context.Context, code string, argv []string) (sandbox.Result, error) {
	var out sandbox.Result
	err := c.Call(ctx, "root.run_code", service.RootRunParams{Code: code, Argv: argv}, &out)
	return out, err
}

// ResetRoot replaces the root namespace
func (c *Client) ResetRoot(ctx context.Context) error {
	return c.Call(ctx, "root.reset", nil, nil)
}

// ListOperations returns the operation catalog
func (c *Client) ListOperations(ctx context.Context) ([]engine.OperationInfo, error) {
	var out []engine.OperationInfo
	err := c.Call(ctx, "operation.list", nil, &out)
	return out, err
}

// CallOperation dispatches a catalog operation against the session resource
func (c *Client) CallOperation(ctx context.Context, sess, name string, params map[string]any) (sandbox.Result, error) {
	var out sandbox.Result
	err := c.Call(ctx, "operation.call", service.OperationCallParams{Session: sess, Name: name, Params: params}, &out)
	return out, err
}

// RequestStatus reports the active request, if any
func (c *Client) RequestStatus(ctx context.Context) (service.RequestStatus, error) {
	var out service.RequestStatus
	err := c.Call(ctx, "request.status", nil, &out)
	return out, err
}

// Interrupt asks the server to cancel the active request
func (c *Client) Interrupt(ctx context.Context) (inflight.Outcome, error) {
	var out inflight.Outcome
	err := c.Call(ctx, "request.interrupt", nil, &out)
	return out, err
}

// Ping returns server status
func (c *Client) Ping(ctx context.Context) (service.Ping, error) {
	var out service.Ping
	err := c.Call(ctx, "server.ping", nil, &out)
	return out, err
}
