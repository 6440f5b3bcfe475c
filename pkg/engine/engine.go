// Package engine defines the contracts between the coordination layer and
// the analysis engine it serializes access to.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Handle is an analysis target produced by an engine. Identity is the value
// returned by ID; two handles with the same ID refer to the same target.
type Handle interface {
	ID() string
	Close() error
}

// Info describes a handle
type Info struct {
	Filename      string `json:"filename"`
	ViewType      string `json:"view_type"`
	Arch          string `json:"arch"`
	AnalysisState string `json:"analysis_state"`
	Start         uint64 `json:"start"`
	Length        uint64 `json:"length"`
	Repr          string `json:"repr"`
	StartHex      string `json:"start_hex"`
	LengthHex     string `json:"length_hex"`
}

// Normalize fills the derived fields of info
func Normalize(info Info) Info {
	info.StartHex = fmt.Sprintf("0x%x", info.Start)
	info.LengthHex = fmt.Sprintf("0x%x", info.Length)
	if strings.TrimSpace(info.Filename) == "" {
		info.Filename = info.Repr
	}
	return info
}

// LoadOptions controls Engine.Load
type LoadOptions struct {
	// UpdateAnalysis runs analysis eagerly before returning
	UpdateAnalysis bool `json:"update_analysis"`

	// Options are engine-specific settings
	Options map[string]any `json:"options,omitempty"`
}

// Discovered is a handle found by engine discovery. Handles found through
// several channels appear once per channel until merged with Dedupe.
type Discovered struct {
	Handle   Handle
	Filename string
	Repr     string
	Source   string
}

// Engine is the external analysis engine. Implementations are not required
// to be safe for concurrent use; callers serialize access.
type Engine interface {
	// Name identifies the engine
	Name() string

	// Load opens the target at path
	Load(ctx context.Context, path string, opts LoadOptions) (Handle, error)

	// Discover enumerates targets opened outside any session
	Discover(ctx context.Context) ([]Discovered, error)

	// Describe returns the full description of h
	Describe(h Handle) (Info, error)
}

// OperationInfo describes one catalog operation
type OperationInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Params      json.RawMessage `json:"params,omitempty"`
}

// Catalog dispatches named domain operations against a handle
type Catalog interface {
	// List returns the available operations sorted by name
	List() []OperationInfo

	// Dispatch runs operation name against h
	Dispatch(ctx context.Context, h Handle, name string, params map[string]any) (any, error)
}
