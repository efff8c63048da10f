// Package reference resolves local JSON pointer references against a loaded
// document. Entities are looked up by key on every call; nothing is cached and
// the document is never modified.
package reference

import (
	"fmt"
	"strconv"

	"github.com/ohler55/ojg/jp"

	"github.com/drblury/asyncflow/internal/runtime/document"
	rterrors "github.com/drblury/asyncflow/internal/runtime/errors"
)

// Kind names the entity type a reference is expected to designate.
type Kind string

const (
	KindServer         Kind = "server"
	KindServerVariable Kind = "server variable"
	KindChannel        Kind = "channel"
	KindOperation      Kind = "operation"
	KindMessage        Kind = "message"
	KindSchema         Kind = "schema"
	KindParameter      Kind = "parameter"
	KindCorrelationID  Kind = "correlation id"
	KindBindings       Kind = "bindings"
	KindBinding        Kind = "binding"
	KindMessageTrait   Kind = "message trait"
	KindOperationTrait Kind = "operation trait"
	KindReply          Kind = "reply"
	KindReplyAddress   Kind = "reply address"
	// KindAny accepts whatever entity the pointer designates.
	KindAny Kind = "entity"
)

// MaxDepth bounds the number of reference hops followed by a single call.
const MaxDepth = 16

type refHolder interface {
	GetRef() string
}

// Resolver dereferences pointer strings into document entities.
type Resolver struct {
	doc *document.Document
}

// New returns a resolver over doc.
func New(doc *document.Document) *Resolver {
	return &Resolver{doc: doc}
}

// Document returns the document the resolver reads from.
func (r *Resolver) Document() *document.Document {
	return r.doc
}

// Resolve returns the entity designated by ref. References that point at other
// references are followed until a concrete entity of the requested kind is
// reached. A missing segment, a kind mismatch, a cycle or a chain longer than
// MaxDepth yields a NotFoundError.
func (r *Resolver) Resolve(ref string, kind Kind) (any, error) {
	return r.resolve(ref, kind, 0)
}

func (r *Resolver) resolve(ref string, kind Kind, hops int) (any, error) {
	seen := make(map[string]struct{})
	current := ref
	for ; hops < MaxDepth; hops++ {
		if _, loop := seen[current]; loop {
			return nil, notFound(kind, ref, "reference cycle through "+current)
		}
		seen[current] = struct{}{}

		target, err := r.lookup(current, kind, hops)
		if err != nil {
			return nil, err
		}
		next := refOf(target)
		if next == "" {
			return target, nil
		}
		current = next
	}
	return nil, notFound(kind, ref, fmt.Sprintf("reference chain longer than %d hops", MaxDepth))
}

func (r *Resolver) lookup(ref string, kind Kind, hops int) (any, error) {
	if r == nil || r.doc == nil {
		return nil, rterrors.ErrDocumentRequired
	}
	segments, ok := document.SplitPointer(ref)
	if !ok || len(segments) < 2 {
		return nil, notFound(kind, ref, "only local \"#/...\" pointers are supported")
	}

	var (
		target any
		found  bool
		err    error
	)
	if segments[0] == "components" {
		target, found, err = r.walk(r.doc.Components, segments[1:], hops)
	} else {
		target, found, err = r.walk(rootView{r.doc}, segments, hops)
		if err == nil && !found {
			target, found, err = r.walk(r.doc.Components, segments, hops)
		}
	}
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, notFound(kind, ref, "")
	}
	if _, isRef := target.(document.Reference); isRef {
		return target, nil
	}
	if actual := kindOf(target); kind != KindAny && actual != kind {
		return nil, notFound(kind, ref, "pointer designates a "+string(actual))
	}
	return target, nil
}

// walk descends from start along segments. A reference met before the last
// segment is resolved first so pointers may cross reusable definitions.
func (r *Resolver) walk(start any, segments []string, hops int) (any, bool, error) {
	current := start
	for i, seg := range segments {
		if ref, ok := current.(document.Reference); ok {
			resolved, err := r.resolve(ref.Ref, KindAny, hops+1)
			if err != nil {
				return nil, false, err
			}
			current = resolved
		}
		if holder, ok := current.(refHolder); ok && holder.GetRef() != "" {
			resolved, err := r.resolve(holder.GetRef(), kindOf(current), hops+1)
			if err != nil {
				return nil, false, err
			}
			current = resolved
		}
		if schema, ok := current.(*document.Schema); ok {
			return schemaTail(schema, segments[i:])
		}
		next, ok := step(current, seg)
		if !ok {
			return nil, false, nil
		}
		current = next
	}
	return current, true, nil
}

type rootView struct {
	doc *document.Document
}

func step(current any, seg string) (any, bool) {
	switch node := current.(type) {
	case rootView:
		switch seg {
		case "servers":
			return nonEmpty(node.doc.Servers)
		case "channels":
			return nonEmpty(node.doc.Channels)
		case "operations":
			return nonEmpty(node.doc.Operations)
		}
	case *document.Components:
		return componentsSection(node, seg)
	case map[string]*document.Server:
		return entry(node, seg)
	case map[string]*document.ServerVariable:
		return entry(node, seg)
	case map[string]*document.Channel:
		return entry(node, seg)
	case map[string]*document.Operation:
		return entry(node, seg)
	case map[string]*document.Message:
		return entry(node, seg)
	case map[string]*document.Schema:
		return entry(node, seg)
	case map[string]*document.Parameter:
		return entry(node, seg)
	case map[string]*document.CorrelationID:
		return entry(node, seg)
	case map[string]*document.OperationReply:
		return entry(node, seg)
	case map[string]*document.OperationReplyAddress:
		return entry(node, seg)
	case map[string]*document.Bindings:
		return entry(node, seg)
	case map[string]*document.MessageTrait:
		return entry(node, seg)
	case map[string]*document.OperationTrait:
		return entry(node, seg)
	case *document.Server:
		switch seg {
		case "variables":
			return nonEmpty(node.Variables)
		case "bindings":
			return present(node.Bindings)
		}
	case *document.Channel:
		switch seg {
		case "messages":
			return nonEmpty(node.Messages)
		case "parameters":
			return nonEmpty(node.Parameters)
		case "servers":
			return node.Servers, node.Servers != nil
		case "bindings":
			return present(node.Bindings)
		}
	case *document.Operation:
		switch seg {
		case "channel":
			return node.Channel, !node.Channel.IsZero()
		case "messages":
			return node.Messages, node.Messages != nil
		case "reply":
			return present(node.Reply)
		case "bindings":
			return present(node.Bindings)
		case "traits":
			return node.Traits, node.Traits != nil
		}
	case *document.OperationReply:
		switch seg {
		case "address":
			return present(node.Address)
		case "channel":
			if node.Channel == nil {
				return nil, false
			}
			return *node.Channel, true
		case "messages":
			return node.Messages, node.Messages != nil
		}
	case *document.Message:
		switch seg {
		case "payload":
			return present(node.Payload)
		case "headers":
			return present(node.Headers)
		case "correlationId":
			return present(node.CorrelationID)
		case "bindings":
			return present(node.Bindings)
		case "traits":
			return node.Traits, node.Traits != nil
		}
	case *document.Bindings:
		for i := range node.Items {
			if node.Items[i].Name == seg {
				return &node.Items[i], true
			}
		}
	case []document.Reference:
		if i, ok := index(seg, len(node)); ok {
			return node[i], true
		}
	case []*document.MessageTrait:
		if i, ok := index(seg, len(node)); ok && node[i] != nil {
			return node[i], true
		}
	case []*document.OperationTrait:
		if i, ok := index(seg, len(node)); ok && node[i] != nil {
			return node[i], true
		}
	}
	return nil, false
}

func componentsSection(c *document.Components, seg string) (any, bool) {
	if c == nil {
		return nil, false
	}
	switch seg {
	case "servers":
		return nonEmpty(c.Servers)
	case "serverVariables":
		return nonEmpty(c.ServerVariables)
	case "channels":
		return nonEmpty(c.Channels)
	case "operations":
		return nonEmpty(c.Operations)
	case "messages":
		return nonEmpty(c.Messages)
	case "schemas":
		return nonEmpty(c.Schemas)
	case "parameters":
		return nonEmpty(c.Parameters)
	case "correlationIds":
		return nonEmpty(c.CorrelationIDs)
	case "replies":
		return nonEmpty(c.Replies)
	case "replyAddresses":
		return nonEmpty(c.ReplyAddresses)
	case "serverBindings":
		return nonEmpty(c.ServerBindings)
	case "channelBindings":
		return nonEmpty(c.ChannelBindings)
	case "operationBindings":
		return nonEmpty(c.OperationBindings)
	case "messageBindings":
		return nonEmpty(c.MessageBindings)
	case "messageTraits":
		return nonEmpty(c.MessageTraits)
	case "operationTraits":
		return nonEmpty(c.OperationTraits)
	}
	return nil, false
}

// schemaTail walks the remaining segments inside a schema body and wraps the
// result as a schema of the same format.
func schemaTail(schema *document.Schema, segments []string) (any, bool, error) {
	value := schema.Body
	for _, seg := range segments {
		x := jp.R()
		if _, isList := value.([]any); isList {
			i, err := strconv.Atoi(seg)
			if err != nil {
				return nil, false, nil
			}
			x = x.N(i)
		} else {
			x = x.C(seg)
		}
		results := x.Get(value)
		if len(results) == 0 || results[0] == nil {
			return nil, false, nil
		}
		value = results[0]
	}

	location := schema.Location
	if location != "" {
		location += document.Pointer(segments...)[1:]
	}
	wrapped := &document.Schema{Format: schema.Format, Body: value, Location: location}
	if obj, ok := value.(map[string]any); ok && len(obj) == 1 {
		if ref, ok := obj["$ref"].(string); ok {
			wrapped.Body = nil
			wrapped.Ref = ref
		}
	}
	return wrapped, true, nil
}

func entry[T any](m map[string]*T, key string) (any, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func nonEmpty[T any](m map[string]*T) (any, bool) {
	return m, m != nil
}

func present[T any](v *T) (any, bool) {
	if v == nil {
		return nil, false
	}
	return v, true
}

func index(seg string, n int) (int, bool) {
	i, err := strconv.Atoi(seg)
	if err != nil || i < 0 || i >= n {
		return 0, false
	}
	return i, true
}

func refOf(v any) string {
	switch t := v.(type) {
	case document.Reference:
		return t.Ref
	case refHolder:
		return t.GetRef()
	}
	return ""
}

func kindOf(v any) Kind {
	switch v.(type) {
	case *document.Server:
		return KindServer
	case *document.ServerVariable:
		return KindServerVariable
	case *document.Channel:
		return KindChannel
	case *document.Operation:
		return KindOperation
	case *document.Message:
		return KindMessage
	case *document.Schema:
		return KindSchema
	case *document.Parameter:
		return KindParameter
	case *document.CorrelationID:
		return KindCorrelationID
	case *document.Bindings:
		return KindBindings
	case *document.Binding:
		return KindBinding
	case *document.MessageTrait:
		return KindMessageTrait
	case *document.OperationTrait:
		return KindOperationTrait
	case *document.OperationReply:
		return KindReply
	case *document.OperationReplyAddress:
		return KindReplyAddress
	}
	return KindAny
}

func notFound(kind Kind, ref, detail string) error {
	err := rterrors.NewNotFoundError(string(kind), ref)
	err.Detail = detail
	return err
}
