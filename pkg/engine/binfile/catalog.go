package binfile

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/harun/knife/pkg/engine"
	"github.com/xeipuuv/gojsonschema"
)

// ParamDef describes one operation parameter
type ParamDef struct {
	Name        string
	Type        string
	Description string
	Required    bool
	Default     any
}

type operation struct {
	name        string
	description string
	params      []ParamDef
	schema      *gojsonschema.Schema
	schemaJSON  json.RawMessage
	run         func(ctx context.Context, f *File, p params) (any, error)
}

// Catalog implements engine.Catalog for executable files
type Catalog struct {
	ops             map[string]*operation
	minStringLength int
}

// NewCatalog creates the operation catalog. minStringLength is the default
// for strings.like when the caller does not pass min_length.
func NewCatalog(minStringLength int) (*Catalog, error) {
	if minStringLength <= 0 {
		minStringLength = 4
	}
	c := &Catalog{
		ops:             make(map[string]*operation),
		minStringLength: minStringLength,
	}

	limit := ParamDef{Name: "limit", Type: "integer", Description: "Maximum number of entries (0 = all)", Default: 0}
	offset := ParamDef{Name: "offset", Type: "integer", Description: "Entries to skip", Default: 0}
	pattern := ParamDef{Name: "pattern", Type: "string", Description: "Case-insensitive substring", Required: true}

	defs := []*operation{
		{
			name:        "binary.summary",
			description: "Format, architecture, entry point and table sizes",
			run:         c.summary,
		},
		{
			name:        "sections.list",
			description: "List sections with address and size",
			params:      []ParamDef{offset, limit},
			run:         c.sections,
		},
		{
			name:        "symbols.list",
			description: "List symbols ordered by address",
			params:      []ParamDef{offset, limit},
			run:         c.symbols,
		},
		{
			name:        "symbols.like",
			description: "Find symbols whose name contains pattern",
			params:      []ParamDef{pattern, limit},
			run:         c.symbolsLike,
		},
		{
			name:        "imports.list",
			description: "List imported libraries and symbols",
			params:      []ParamDef{offset, limit},
			run:         c.imports,
		},
		{
			name:        "strings.like",
			description: "Find printable strings containing pattern",
			params: []ParamDef{pattern, limit, {
				Name: "min_length", Type: "integer", Description: "Minimum string length",
			}},
			run: c.stringsLike,
		},
	}

	for _, op := range defs {
		schemaMap := generateSchema(op.params)
		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap))
		if err != nil {
			return nil, fmt.Errorf("invalid schema for %s: %w", op.name, err)
		}
		raw, err := json.Marshal(schemaMap)
		if err != nil {
			return nil, err
		}
		op.schema = schema
		op.schemaJSON = raw
		c.ops[op.name] = op
	}

	return c, nil
}

func generateSchema(defs []ParamDef) map[string]interface{} {
	schemaMap := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           make(map[string]interface{}),
	}

	properties := schemaMap["properties"].(map[string]interface{})
	required := []string{}

	for _, param := range defs {
		paramSchema := map[string]interface{}{
			"type":        param.Type,
			"description": param.Description,
		}
		if param.Type == "integer" {
			paramSchema["minimum"] = 0
		}
		if param.Default != nil {
			paramSchema["default"] = param.Default
		}
		properties[param.Name] = paramSchema

		if param.Required {
			required = append(required, param.Name)
		}
	}

	if len(required) > 0 {
		schemaMap["required"] = required
	}
	return schemaMap
}

// List returns the available operations sorted by name
func (c *Catalog) List() []engine.OperationInfo {
	out := make([]engine.OperationInfo, 0, len(c.ops))
	for _, op := range c.ops {
		out = append(out, engine.OperationInfo{
			Name:        op.name,
			Description: op.description,
			Params:      op.schemaJSON,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Dispatch validates params and runs operation name against h
func (c *Catalog) Dispatch(ctx context.Context, h engine.Handle, name string, raw map[string]any) (any, error) {
	op, ok := c.ops[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", engine.ErrUnknownOperation, name)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	if err := validateParameters(op.schema, raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", engine.ErrInvalidParams, name, err)
	}

	if h == nil {
		return nil, engine.ErrNoResource
	}
	f, ok := h.(*File)
	if !ok {
		return nil, engine.ErrForeignHandle
	}
	if err := f.checkOpen(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, context.Cause(ctx)
	}

	return op.run(ctx, f, params(raw))
}

func validateParameters(schema *gojsonschema.Schema, p map[string]interface{}) error {
	result, err := schema.Validate(gojsonschema.NewGoLoader(p))
	if err != nil {
		return err
	}

	if !result.Valid() {
		errs := []string{}
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return fmt.Errorf("validation errors: %v", errs)
	}
	return nil
}

type params map[string]any

func (p params) intParam(name string, def int) int {
	switch v := p[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return def
}

func (p params) stringParam(name string) string {
	s, _ := p[name].(string)
	return s
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// Summary is the result of binary.summary
type Summary struct {
	Path          string `json:"path"`
	Format        string `json:"format"`
	Arch          string `json:"arch"`
	Entry         uint64 `json:"entry"`
	EntryHex      string `json:"entry_hex"`
	Size          int64  `json:"size"`
	Sections      int    `json:"sections"`
	Symbols       int    `json:"symbols"`
	Imports       int    `json:"imports"`
	AnalysisState string `json:"analysis_state"`
}

func (c *Catalog) summary(ctx context.Context, f *File, p params) (any, error) {
	info := f.Info()
	return Summary{
		Path:          f.path,
		Format:        f.format,
		Arch:          f.arch,
		Entry:         f.entry,
		EntryHex:      fmt.Sprintf("0x%x", f.entry),
		Size:          f.size,
		Sections:      len(f.sections),
		Symbols:       len(f.symbols),
		Imports:       len(f.imports),
		AnalysisState: info.AnalysisState,
	}, nil
}

func (c *Catalog) sections(ctx context.Context, f *File, p params) (any, error) {
	return page(f.sections, p.intParam("offset", 0), p.intParam("limit", 0)), nil
}

func (c *Catalog) symbols(ctx context.Context, f *File, p params) (any, error) {
	return page(f.symbols, p.intParam("offset", 0), p.intParam("limit", 0)), nil
}

func (c *Catalog) symbolsLike(ctx context.Context, f *File, p params) (any, error) {
	needle := strings.ToLower(p.stringParam("pattern"))
	limit := p.intParam("limit", 0)

	out := []Symbol{}
	for _, s := range f.symbols {
		if strings.Contains(strings.ToLower(s.Name), needle) {
			out = append(out, s)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (c *Catalog) imports(ctx context.Context, f *File, p params) (any, error) {
	return page(f.imports, p.intParam("offset", 0), p.intParam("limit", 0)), nil
}

func (c *Catalog) stringsLike(ctx context.Context, f *File, p params) (any, error) {
	minLen := p.intParam("min_length", c.minStringLength)
	if minLen <= 0 {
		minLen = c.minStringLength
	}
	strs, err := f.Strings(ctx, minLen)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(p.stringParam("pattern"))
	limit := p.intParam("limit", 0)
	out := []StringRef{}
	for _, s := range strs {
		if strings.Contains(strings.ToLower(s.Value), needle) {
			out = append(out, s)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}
