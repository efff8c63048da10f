package schema

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing/fstest"

	"github.com/jacoelho/xsd"

	rterrors "github.com/drblury/asyncflow/internal/runtime/errors"
)

const xsdFile = "schema.xsd"

// XMLSchemaHandler validates XML instances against an XSD schema. A schema
// body that is not XSD text only triggers a well-formedness check.
// Compiled schemas are cached by location and content.
type XMLSchemaHandler struct {
	cache sync.Map
}

func NewXMLSchemaHandler() *XMLSchemaHandler {
	return &XMLSchemaHandler{}
}

func (h *XMLSchemaHandler) Supports(format string) bool {
	switch mediaType(format) {
	case "application/xml", "text/xml", "application/xsd+xml", "application/xml-schema":
		return true
	}
	return false
}

func (h *XMLSchemaHandler) Validate(ctx context.Context, instance any, def Definition) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	var data []byte
	switch typed := instance.(type) {
	case []byte:
		data = typed
	case json.RawMessage:
		data = typed
	case string:
		data = []byte(typed)
	default:
		return invalid("/", fmt.Sprintf("instance of type %T is not an XML document", instance)), nil
	}

	text, ok := def.Body.(string)
	if !ok {
		if err := wellFormed(data); err != nil {
			return invalid("/", "malformed XML: "+err.Error()), nil
		}
		return Result{Valid: true}, nil
	}

	compiled, err := h.compile(def, text)
	if err != nil {
		return Result{}, err
	}
	if err := compiled.Validate(bytes.NewReader(data)); err != nil {
		return invalid("/", err.Error()), nil
	}
	return Result{Valid: true}, nil
}

func (h *XMLSchemaHandler) compile(def Definition, text string) (*xsd.Schema, error) {
	key := cacheKey(def, []byte(text))
	if cached, ok := h.cache.Load(key); ok {
		return cached.(*xsd.Schema), nil
	}
	fsys := fstest.MapFS{xsdFile: &fstest.MapFile{Data: []byte(text)}}
	compiled, err := xsd.Load(fsys, xsdFile)
	if err != nil {
		return nil, fmt.Errorf("parse xml schema %s: %w", def.Location, err)
	}
	actual, _ := h.cache.LoadOrStore(key, compiled)
	return actual.(*xsd.Schema), nil
}

// wellFormed reads the whole input and requires a document element.
func wellFormed(data []byte) error {
	dec := xml.NewDecoder(bytes.NewReader(data))
	hasRoot := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if _, ok := tok.(xml.StartElement); ok {
			hasRoot = true
		}
	}
	if !hasRoot {
		return errors.New("no root element")
	}
	return nil
}

func invalid(field, msg string) Result {
	return Result{Violations: []rterrors.Violation{{Field: field, Message: msg}}}
}
