// Package operation locates operations by id, checks that their action allows
// the requested verb and resolves the channel and server they use.
package operation

import (
	"sort"
	"strings"

	"github.com/drblury/asyncflow/internal/runtime/document"
	rterrors "github.com/drblury/asyncflow/internal/runtime/errors"
	"github.com/drblury/asyncflow/internal/runtime/reference"
)

// Verb is the client side call being made.
type Verb string

const (
	VerbPublish   Verb = "publish"
	VerbSubscribe Verb = "subscribe"
)

// RequiredAction returns the operation action that allows the verb. Publishing
// targets operations the application receives, subscribing targets operations
// the application sends.
func (v Verb) RequiredAction() document.Action {
	if v == VerbSubscribe {
		return document.ActionSend
	}
	return document.ActionReceive
}

// Resolved is the outcome of Resolve. Operation has its traits applied.
type Resolved struct {
	ID        string
	Operation *document.Operation
	Channel   *document.Channel
	// ChannelName is the channel key when the channel reference names one.
	ChannelName string
}

// Resolver resolves operations.
type Resolver struct {
	refs *reference.Resolver
}

// New returns an operation Resolver.
func New(refs *reference.Resolver) *Resolver {
	return &Resolver{refs: refs}
}

// Resolve looks operationID up in the document operations, then in the
// components operations, and validates its action against verb.
func (r *Resolver) Resolve(operationID string, verb Verb) (*Resolved, error) {
	if operationID == "" {
		return nil, rterrors.ErrOperationIDRequired
	}
	doc := r.refs.Document()
	if doc == nil {
		return nil, rterrors.ErrDocumentRequired
	}

	op := doc.Operations[operationID]
	if op == nil && doc.Components != nil {
		op = doc.Components.Operations[operationID]
	}
	if op == nil {
		return nil, rterrors.NewNotFoundError("operation", operationID)
	}

	effective, err := r.refs.EffectiveOperation(op)
	if err != nil {
		return nil, err
	}
	if effective.Action != verb.RequiredAction() {
		return nil, &rterrors.ActionMismatchError{
			OperationID: operationID,
			Action:      string(effective.Action),
			Verb:        string(verb),
		}
	}

	if effective.Channel.IsZero() {
		nf := rterrors.NewNotFoundError("channel", operationID)
		nf.Detail = "operation declares no channel"
		return nil, nf
	}
	ch, err := r.refs.Channel(effective.Channel.Ref)
	if err != nil {
		return nil, err
	}

	return &Resolved{
		ID:          operationID,
		Operation:   effective,
		Channel:     ch,
		ChannelName: channelName(effective.Channel.Ref),
	}, nil
}

// IDs returns every operation id of the document, top level first, each group
// sorted.
func (r *Resolver) IDs() []string {
	doc := r.refs.Document()
	if doc == nil {
		return nil
	}
	ids := sortedKeys(doc.Operations)
	if doc.Components != nil {
		for _, id := range sortedKeys(doc.Components.Operations) {
			if _, shadowed := doc.Operations[id]; !shadowed {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// ResolveServer picks the server for a channel. Candidates are the servers the
// channel lists, or every document server when it lists none. A preferred name
// restricts the candidates; otherwise the first candidate by name wins.
func (r *Resolver) ResolveServer(ch *document.Channel, preferred string) (string, *document.Server, error) {
	doc := r.refs.Document()
	if doc == nil {
		return "", nil, rterrors.ErrDocumentRequired
	}

	candidates := map[string]string{}
	if ch != nil && len(ch.Servers) > 0 {
		for _, ref := range ch.Servers {
			candidates[serverName(ref.Ref)] = ref.Ref
		}
	} else {
		for name := range doc.Servers {
			candidates[name] = document.Pointer("servers", name)
		}
	}

	if preferred != "" {
		ref, ok := candidates[preferred]
		if !ok {
			nf := rterrors.NewNotFoundError("server", preferred)
			if len(candidates) > 0 {
				nf.Detail = "channel is not available on this server"
			}
			return "", nil, nf
		}
		server, err := r.refs.Server(ref)
		return preferred, server, err
	}

	names := sortedKeys(candidates)
	if len(names) == 0 {
		nf := rterrors.NewNotFoundError("server", "")
		nf.Detail = "document declares no servers"
		return "", nil, nf
	}
	server, err := r.refs.Server(candidates[names[0]])
	if err != nil {
		return "", nil, err
	}
	return names[0], server, nil
}

func channelName(ref string) string {
	segments, ok := document.SplitPointer(ref)
	if !ok || len(segments) < 2 {
		return ""
	}
	return segments[len(segments)-1]
}

func serverName(ref string) string {
	if segments, ok := document.SplitPointer(ref); ok && len(segments) > 0 {
		return segments[len(segments)-1]
	}
	return strings.TrimPrefix(ref, "#/")
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
