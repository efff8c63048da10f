// Package disambiguation picks the single message definition of an operation
// that matches the outbound data.
package disambiguation

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/drblury/asyncflow/internal/runtime/document"
	rterrors "github.com/drblury/asyncflow/internal/runtime/errors"
	"github.com/drblury/asyncflow/internal/runtime/expression"
	"github.com/drblury/asyncflow/internal/runtime/logging"
	"github.com/drblury/asyncflow/internal/runtime/operation"
	"github.com/drblury/asyncflow/internal/runtime/reference"
	"github.com/drblury/asyncflow/internal/runtime/schema"
)

// Candidate is a dereferenced message definition with its traits applied.
type Candidate struct {
	// Name is the message key, taken from the last segment of its reference.
	Name    string
	Message *document.Message
}

// Selector validates candidates against their schemas and correlation id.
type Selector struct {
	refs    *reference.Resolver
	schemas *schema.Registry
	logger  logging.ServiceLogger
}

// New returns a Selector. A nil registry uses the default schema handlers.
func New(refs *reference.Resolver, schemas *schema.Registry, logger logging.ServiceLogger) *Selector {
	if schemas == nil {
		schemas = schema.NewDefaultRegistry()
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Selector{refs: refs, schemas: schemas, logger: logger}
}

// Candidates returns the operation's declared messages, or every message of its
// channel when the operation declares none.
func (s *Selector) Candidates(resolved *operation.Resolved) ([]Candidate, error) {
	var raw []Candidate
	if len(resolved.Operation.Messages) > 0 {
		for _, ref := range resolved.Operation.Messages {
			msg, err := s.refs.Message(ref.Ref)
			if err != nil {
				return nil, err
			}
			raw = append(raw, Candidate{Name: messageName(ref.Ref, msg), Message: msg})
		}
	} else {
		names := make([]string, 0, len(resolved.Channel.Messages))
		for name := range resolved.Channel.Messages {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			raw = append(raw, Candidate{Name: name, Message: resolved.Channel.Messages[name]})
		}
	}

	out := make([]Candidate, 0, len(raw))
	for _, c := range raw {
		effective, err := s.refs.EffectiveMessage(c.Message)
		if err != nil {
			return nil, err
		}
		out = append(out, Candidate{Name: c.Name, Message: effective})
	}
	return out, nil
}

// Select returns the only candidate whose payload schema, header schema and
// correlation id all accept the outbound data. No match or several matches
// yield an AmbiguousMessageError listing why each candidate was rejected.
func (s *Selector) Select(ctx context.Context, resolved *operation.Resolved, payload any, headers map[string]any) (Candidate, error) {
	candidates, err := s.Candidates(resolved)
	if err != nil {
		return Candidate{}, err
	}

	var (
		matches    []Candidate
		rejections []rterrors.Rejection
	)
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return Candidate{}, err
		}
		reason := s.check(ctx, c.Message, payload, headers)
		if err := ctx.Err(); err != nil {
			return Candidate{}, err
		}
		if reason != nil {
			s.logger.Debug("Message candidate rejected", logging.LogFields{
				"operation": resolved.ID,
				"message":   c.Name,
				"reason":    reason.Error(),
			})
			rejections = append(rejections, rterrors.Rejection{Message: c.Name, Reason: reason})
			continue
		}
		matches = append(matches, c)
	}

	if len(matches) == 1 {
		return matches[0], nil
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m.Name)
	}
	return Candidate{}, &rterrors.AmbiguousMessageError{
		OperationID: resolved.ID,
		Matches:     names,
		Rejections:  rejections,
	}
}

// check returns why a candidate does not match, or nil when it does.
func (s *Selector) check(ctx context.Context, msg *document.Message, payload any, headers map[string]any) error {
	if err := s.validate(ctx, "payload", msg.Payload, payload); err != nil {
		return err
	}
	var headerInstance any = headers
	if headers == nil {
		headerInstance = map[string]any{}
	}
	if err := s.validate(ctx, "headers", msg.Headers, headerInstance); err != nil {
		return err
	}
	if msg.CorrelationID != nil && msg.CorrelationID.Location != "" {
		value, found, err := expression.Evaluate(msg.CorrelationID.Location, payload, headers)
		if err != nil {
			return fmt.Errorf("correlation id: %w", err)
		}
		if !found || strings.TrimSpace(value) == "" {
			return fmt.Errorf("correlation id %s has no value", msg.CorrelationID.Location)
		}
	}
	return nil
}

func (s *Selector) validate(ctx context.Context, part string, sch *document.Schema, instance any) error {
	if sch == nil || sch.Body == nil {
		return nil
	}
	doc := s.refs.Document()
	format := sch.Format
	if format == "" {
		format = document.DefaultSchemaFormat(doc.AsyncAPI)
	}
	res, err := s.schemas.Validate(ctx, instance, schema.Definition{
		Format:      format,
		Body:        sch.Body,
		Location:    sch.Location,
		Definitions: doc.SchemaDefinitions(),
	})
	if err != nil {
		return fmt.Errorf("%s schema: %w", part, err)
	}
	if !res.Valid {
		return fmt.Errorf("%s: %w", part, res.Err())
	}
	return nil
}

func messageName(ref string, msg *document.Message) string {
	if segments, ok := document.SplitPointer(ref); ok && len(segments) > 0 {
		return segments[len(segments)-1]
	}
	if msg != nil {
		return msg.Name
	}
	return ref
}
