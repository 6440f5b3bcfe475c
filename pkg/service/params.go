package service

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/xeipuuv/gojsonschema"
)

// SessionOpenParams are the parameters of session.open, session.close
type SessionOpenParams struct {
	Name string `json:"name" jsonschema:"minLength=1,description=Session name"`
}

// SessionResetParams are the parameters of session.reset
type SessionResetParams struct {
	Name         string `json:"name" jsonschema:"minLength=1"`
	KeepResource *bool  `json:"keep_resource,omitempty" jsonschema:"description=Keep the bound resource (default true)"`
}

// ResourceListParams are the parameters of resource.list
type ResourceListParams struct {
	Session        string `json:"session" jsonschema:"minLength=1"`
	IncludeUnnamed bool   `json:"include_unnamed,omitempty"`
	Full           bool   `json:"full,omitempty" jsonschema:"description=Include the full description of each entry"`
}

// ResourceAttachParams are the parameters of resource.attach
type ResourceAttachParams struct {
	Session        string  `json:"session" jsonschema:"minLength=1"`
	Index          *int    `json:"index,omitempty" jsonschema:"description=Position in the cached listing"`
	Match          *string `json:"match,omitempty" jsonschema:"description=Case-insensitive substring of filename or repr"`
	IncludeUnnamed bool    `json:"include_unnamed,omitempty"`
}

// SessionParams are the parameters of methods that only name a session
type SessionParams struct {
	Session string `json:"session" jsonschema:"minLength=1"`
}

// ResourceLoadParams are the parameters of resource.load
type ResourceLoadParams struct {
	Session        string         `json:"session" jsonschema:"minLength=1"`
	Path           string         `json:"path" jsonschema:"minLength=1"`
	UpdateAnalysis *bool          `json:"update_analysis,omitempty" jsonschema:"description=Run analysis before returning (default true)"`
	Options        map[string]any `json:"options,omitempty"`
}

// ResourceDetachParams are the parameters of resource.detach
type ResourceDetachParams struct {
	Session string `json:"session" jsonschema:"minLength=1"`
	Force   bool   `json:"force,omitempty" jsonschema:"description=Close the resource even when borrowed"`
}

// CodeRunParams are the parameters of code.run
type CodeRunParams struct {
	Session       string   `json:"session" jsonschema:"minLength=1"`
	Code          string   `json:"code"`
	Argv          []string `json:"argv,omitempty"`
	CaptureOutput *bool    `json:"capture_output,omitempty" jsonschema:"description=Capture output into the result (default true)"`
}

// RootRunParams are the parameters of root.run_code
type RootRunParams struct {
	Code          string   `json:"code"`
	Argv          []string `json:"argv,omitempty"`
	CaptureOutput *bool    `json:"capture_output,omitempty"`
}

// OperationCallParams are the parameters of operation.call
type OperationCallParams struct {
	Session string         `json:"session" jsonschema:"minLength=1"`
	Name    string         `json:"name" jsonschema:"minLength=1"`
	Params  map[string]any `json:"params,omitempty"`
}

// NoParams is the parameter type of methods without parameters
type NoParams struct{}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// paramSchema validates and decodes one parameter type
type paramSchema struct {
	raw    json.RawMessage
	schema *gojsonschema.Schema
}

func reflectSchema(v any) (*paramSchema, error) {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.Reflect(v)
	s.Version = ""

	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return &paramSchema{raw: raw, schema: schema}, nil
}

// decode validates params and unmarshals them into out
func (p *paramSchema) decode(params map[string]interface{}, out any) error {
	if params == nil {
		params = map[string]interface{}{}
	}

	result, err := p.schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return &ValidationError{Message: fmt.Sprintf("invalid params: %v", err)}
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return &ValidationError{Message: "invalid params: " + strings.Join(msgs, "; ")}
	}

	data, err := json.Marshal(params)
	if err != nil {
		return &ValidationError{Message: fmt.Sprintf("invalid params: %v", err)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &ValidationError{Message: fmt.Sprintf("invalid params: %v", err)}
	}
	return nil
}
