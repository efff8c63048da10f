// Package binding selects the protocol-specific binding variant that applies to
// the active wire protocol.
package binding

import (
	"github.com/drblury/asyncflow/internal/runtime/document"
	"github.com/drblury/asyncflow/internal/runtime/reference"
)

// Set groups the four bindings handed to a protocol handler. A nil entry means
// the transport defaults apply.
type Set struct {
	Server    *document.Binding
	Channel   *document.Binding
	Operation *document.Binding
	Message   *document.Binding
}

// Resolver picks binding variants by protocol.
type Resolver struct {
	refs *reference.Resolver
}

// New returns a binding Resolver backed by refs.
func New(refs *reference.Resolver) *Resolver {
	return &Resolver{refs: refs}
}

// Resolve dereferences bindings when it is a reference and returns a copy of the
// first variant supporting protocol (case-insensitive). It returns nil without
// an error when no variant matches. A dangling reference is an error.
func (r *Resolver) Resolve(bindings *document.Bindings, protocol string) (*document.Binding, error) {
	if bindings == nil {
		return nil, nil
	}
	if bindings.Ref != "" {
		resolved, err := r.refs.Bindings(bindings.Ref)
		if err != nil {
			return nil, err
		}
		bindings = resolved
	}
	for i := range bindings.Items {
		if bindings.Items[i].Supports(protocol) {
			return bindings.Items[i].Clone(), nil
		}
	}
	return nil, nil
}

func (r *Resolver) ForServer(server *document.Server, protocol string) (*document.Binding, error) {
	if server == nil {
		return nil, nil
	}
	return r.Resolve(server.Bindings, protocol)
}

func (r *Resolver) ForChannel(ch *document.Channel, protocol string) (*document.Binding, error) {
	if ch == nil {
		return nil, nil
	}
	return r.Resolve(ch.Bindings, protocol)
}

// ForOperation resolves the operation bindings. Pass the operation after its
// traits were applied so that its own variants override trait variants.
func (r *Resolver) ForOperation(op *document.Operation, protocol string) (*document.Binding, error) {
	if op == nil {
		return nil, nil
	}
	return r.Resolve(op.Bindings, protocol)
}

func (r *Resolver) ForMessage(msg *document.Message, protocol string) (*document.Binding, error) {
	if msg == nil {
		return nil, nil
	}
	return r.Resolve(msg.Bindings, protocol)
}

// ResolveSet resolves all four bindings, stopping at the first error.
func (r *Resolver) ResolveSet(protocol string, server *document.Server, ch *document.Channel, op *document.Operation, msg *document.Message) (Set, error) {
	var (
		set Set
		err error
	)
	if set.Server, err = r.ForServer(server, protocol); err != nil {
		return Set{}, err
	}
	if set.Channel, err = r.ForChannel(ch, protocol); err != nil {
		return Set{}, err
	}
	if set.Operation, err = r.ForOperation(op, protocol); err != nil {
		return Set{}, err
	}
	if set.Message, err = r.ForMessage(msg, protocol); err != nil {
		return Set{}, err
	}
	return set, nil
}
