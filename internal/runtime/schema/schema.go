// Package schema validates message payloads and headers against the schemas
// declared by a document. Handlers are selected by schema format.
package schema

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"

	rterrors "github.com/drblury/asyncflow/internal/runtime/errors"
)

// Definition is a schema ready for validation.
type Definition struct {
	// Format is the declared schemaFormat. Empty means the document default.
	Format string
	Body   any
	// Location is the pointer the schema was declared at. Handlers use it as a
	// cache key.
	Location string
	// Definitions holds the document's components.schemas so that local
	// "#/components/schemas/..." references inside Body resolve.
	Definitions map[string]any
}

// Result is the outcome of a validation. A failed validation is not an error.
type Result struct {
	Valid      bool
	Violations []rterrors.Violation
}

// Err returns nil for a valid result and a ValidationError otherwise.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	return rterrors.NewValidationError(r.Violations...)
}

// Handler validates instances for the schema formats it supports.
type Handler interface {
	Supports(format string) bool
	Validate(ctx context.Context, instance any, schema Definition) (Result, error)
}

// UnsupportedFormatError is returned when no handler supports a schema format.
type UnsupportedFormatError struct {
	Format string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("asyncflow: no schema handler supports format %q", e.Format)
}

func (e *UnsupportedFormatError) Is(target error) bool { return target == rterrors.ErrValidation }

// Registry holds handlers in registration order and returns the first one
// supporting a format.
type Registry struct {
	mu       sync.RWMutex
	handlers []Handler
}

// NewRegistry creates a registry with the given handlers.
func NewRegistry(handlers ...Handler) *Registry {
	r := &Registry{}
	for _, h := range handlers {
		r.Add(h)
	}
	return r
}

// NewDefaultRegistry returns a registry with the JSON Schema and XML handlers.
func NewDefaultRegistry() *Registry {
	return NewRegistry(NewJSONSchemaHandler(), NewXMLSchemaHandler())
}

// Add appends a handler. Nil handlers are ignored.
func (r *Registry) Add(h Handler) {
	if h == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, h)
}

// Handler returns the first handler supporting format.
func (r *Registry) Handler(format string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, h := range r.handlers {
		if h.Supports(format) {
			return h, nil
		}
	}
	return nil, &UnsupportedFormatError{Format: format}
}

// Validate validates instance with the handler matching the schema format.
func (r *Registry) Validate(ctx context.Context, instance any, def Definition) (Result, error) {
	h, err := r.Handler(def.Format)
	if err != nil {
		return Result{}, err
	}
	return h.Validate(ctx, instance, def)
}

// mediaType returns the lowercased format without parameters.
func mediaType(format string) string {
	base, _, _ := strings.Cut(format, ";")
	return strings.ToLower(strings.TrimSpace(base))
}

// cacheKey identifies a compiled schema. The content digest keeps schemas
// declared at the same location by different documents apart when one
// registry is shared.
func cacheKey(def Definition, body []byte) string {
	return def.Format + "|" + def.Location + "|" + strconv.FormatUint(xxhash.Sum64(body), 16)
}
