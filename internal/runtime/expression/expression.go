// Package expression evaluates runtime expressions of the form
// "$message.payload#/a/b" and "$message.header#/name" against an outbound or
// inbound message.
package expression

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/drblury/asyncflow/internal/runtime/document"
	rterrors "github.com/drblury/asyncflow/internal/runtime/errors"
	"github.com/drblury/asyncflow/internal/runtime/jsoncodec"
	"github.com/drblury/asyncflow/internal/runtime/metadata"
)

// Source selects the part of the message an expression reads from.
type Source string

const (
	SourceHeader  Source = "header"
	SourcePayload Source = "payload"
)

const messagePrefix = "$message."

// Expression is a parsed runtime expression.
type Expression struct {
	Source Source
	// Path holds the unescaped pointer segments. Empty selects the whole source.
	Path []string
	// HasPointer is set when the expression carried a "#" fragment.
	HasPointer bool
}

// Parse parses a runtime expression. Only the grammar is checked.
func Parse(expr string) (Expression, error) {
	rest, ok := strings.CutPrefix(expr, messagePrefix)
	if !ok {
		return Expression{}, invalid(expr, "must start with "+messagePrefix)
	}

	source, pointer, hasPointer := strings.Cut(rest, "#")
	e := Expression{Source: Source(source), HasPointer: hasPointer}
	switch e.Source {
	case SourceHeader, SourcePayload:
	default:
		return Expression{}, invalid(expr, fmt.Sprintf("unknown source %q", source))
	}

	if !hasPointer || pointer == "" {
		return e, nil
	}
	if !strings.HasPrefix(pointer, "/") {
		return Expression{}, invalid(expr, "pointer must start with /")
	}
	for _, seg := range strings.Split(pointer[1:], "/") {
		e.Path = append(e.Path, document.UnescapePointerToken(seg))
	}
	return e, nil
}

// MustParse is like Parse but panics on a malformed expression.
func MustParse(expr string) Expression {
	e, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return e
}

func (e Expression) String() string {
	var b strings.Builder
	b.WriteString(messagePrefix)
	b.WriteString(string(e.Source))
	if e.HasPointer || len(e.Path) > 0 {
		b.WriteByte('#')
	}
	for _, seg := range e.Path {
		b.WriteByte('/')
		b.WriteString(document.EscapePointerToken(seg))
	}
	return b.String()
}

// Evaluate parses expr and evaluates it. See Expression.Evaluate.
func Evaluate(expr string, payload any, headers map[string]any) (string, bool, error) {
	e, err := Parse(expr)
	if err != nil {
		return "", false, err
	}
	return e.Evaluate(payload, headers)
}

// Evaluate returns the text of the addressed value and true. Crossing into a
// non-object, a missing key or a null value returns false without an error.
func (e Expression) Evaluate(payload any, headers map[string]any) (string, bool, error) {
	var root any = payload
	if e.Source == SourceHeader {
		root = headers
	}

	if raw, ok := rawJSON(root); ok {
		return e.evaluateRaw(raw)
	}

	tree, err := jsoncodec.Normalize(root)
	if err != nil {
		return "", false, fmt.Errorf("normalise %s: %w", e.Source, err)
	}
	for _, seg := range e.Path {
		obj, isObject := tree.(map[string]any)
		if !isObject {
			return "", false, nil
		}
		next, found := obj[seg]
		if !found {
			return "", false, nil
		}
		tree = next
	}
	if tree == nil {
		return "", false, nil
	}
	text, err := metadata.Text(tree)
	if err != nil {
		return "", false, err
	}
	return text, true, nil
}

func (e Expression) evaluateRaw(raw []byte) (string, bool, error) {
	if !gjson.ValidBytes(raw) {
		if len(e.Path) == 0 && len(raw) > 0 {
			return string(raw), true, nil
		}
		return "", false, nil
	}

	result := gjson.ParseBytes(raw)
	for _, seg := range e.Path {
		if !result.IsObject() {
			return "", false, nil
		}
		result = result.Get(gjson.Escape(seg))
		if !result.Exists() {
			return "", false, nil
		}
	}
	if result.Type == gjson.Null {
		return "", false, nil
	}
	switch result.Type {
	case gjson.String:
		return result.Str, true, nil
	case gjson.Number:
		return result.Raw, true, nil
	}
	text, err := metadata.Text(result.Value())
	if err != nil {
		return "", false, err
	}
	return text, true, nil
}

// rawJSON reports payloads that are already encoded and can be queried
// without decoding them in full.
func rawJSON(v any) ([]byte, bool) {
	switch typed := v.(type) {
	case json.RawMessage:
		return typed, true
	case []byte:
		return typed, true
	case proto.Message:
		data, err := protojson.Marshal(typed)
		if err != nil {
			return nil, false
		}
		return data, true
	}
	return nil, false
}

func invalid(expr, reason string) error {
	return fmt.Errorf("%w %q: %s", rterrors.ErrInvalidExpression, expr, reason)
}
