package schema

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/santhosh-tekuri/jsonschema/v5"

	rterrors "github.com/drblury/asyncflow/internal/runtime/errors"
	"github.com/drblury/asyncflow/internal/runtime/jsoncodec"
)

const schemaURLBase = "https://asyncflow.local/schemas/"

// JSONSchemaHandler validates against JSON Schema and AsyncAPI schema formats.
// Compiled schemas are cached by location and content.
type JSONSchemaHandler struct {
	cache sync.Map
	seq   atomic.Uint64
}

func NewJSONSchemaHandler() *JSONSchemaHandler {
	return &JSONSchemaHandler{}
}

func (h *JSONSchemaHandler) Supports(format string) bool {
	switch mt := mediaType(format); {
	case mt == "":
		return true
	case strings.HasPrefix(mt, "application/vnd.aai.asyncapi"):
		return true
	case mt == "application/schema+json", mt == "application/schema+yaml", mt == "application/json":
		return true
	}
	return false
}

func (h *JSONSchemaHandler) Validate(ctx context.Context, instance any, def Definition) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	compiled, err := h.compile(def)
	if err != nil {
		return Result{}, err
	}

	value, err := jsoncodec.Normalize(instance)
	if err != nil {
		return Result{Violations: []rterrors.Violation{{Message: "instance is not valid JSON: " + err.Error()}}}, nil
	}
	if err := compiled.Validate(value); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return Result{Violations: flatten(ve, nil)}, nil
		}
		return Result{}, fmt.Errorf("validate against %s: %w", def.Location, err)
	}
	return Result{Valid: true}, nil
}

func (h *JSONSchemaHandler) compile(def Definition) (*jsonschema.Schema, error) {
	body := def.Body
	if obj, ok := body.(map[string]any); ok && len(def.Definitions) > 0 {
		if _, own := obj["components"]; !own {
			withDefs := make(map[string]any, len(obj)+1)
			for k, v := range obj {
				withDefs[k] = v
			}
			withDefs["components"] = map[string]any{"schemas": def.Definitions}
			body = withDefs
		}
	}
	data, err := jsoncodec.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode schema %s: %w", def.Location, err)
	}

	key := cacheKey(def, data)
	if cached, ok := h.cache.Load(key); ok {
		return cached.(*jsonschema.Schema), nil
	}

	url := fmt.Sprintf("%s%d.json", schemaURLBase, h.seq.Add(1))
	compiler := jsonschema.NewCompiler()
	compiler.Draft = draftFor(def.Format)
	if err := compiler.AddResource(url, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("add schema resource %s: %w", def.Location, err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", def.Location, err)
	}
	actual, _ := h.cache.LoadOrStore(key, compiled)
	return actual.(*jsonschema.Schema), nil
}

// draftFor maps a format to a JSON Schema draft. AsyncAPI schemas are a
// superset of draft 07.
func draftFor(format string) *jsonschema.Draft {
	lower := strings.ToLower(format)
	switch {
	case strings.Contains(lower, "draft-04"):
		return jsonschema.Draft4
	case strings.Contains(lower, "draft-06"):
		return jsonschema.Draft6
	case strings.Contains(lower, "2019-09"):
		return jsonschema.Draft2019
	case strings.Contains(lower, "2020-12"):
		return jsonschema.Draft2020
	}
	return jsonschema.Draft7
}

func flatten(ve *jsonschema.ValidationError, out []rterrors.Violation) []rterrors.Violation {
	if len(ve.Causes) == 0 {
		return append(out, rterrors.Violation{Field: ve.InstanceLocation, Message: ve.Message})
	}
	for _, cause := range ve.Causes {
		out = flatten(cause, out)
	}
	return out
}
