package reference

import "github.com/drblury/asyncflow/internal/runtime/document"

func resolveAs[T any](r *Resolver, ref string, kind Kind) (T, error) {
	var zero T
	v, err := r.Resolve(ref, kind)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, notFound(kind, ref, "")
	}
	return typed, nil
}

func (r *Resolver) Server(ref string) (*document.Server, error) {
	return resolveAs[*document.Server](r, ref, KindServer)
}

func (r *Resolver) ServerVariable(ref string) (*document.ServerVariable, error) {
	return resolveAs[*document.ServerVariable](r, ref, KindServerVariable)
}

func (r *Resolver) Channel(ref string) (*document.Channel, error) {
	return resolveAs[*document.Channel](r, ref, KindChannel)
}

func (r *Resolver) Operation(ref string) (*document.Operation, error) {
	return resolveAs[*document.Operation](r, ref, KindOperation)
}

func (r *Resolver) Message(ref string) (*document.Message, error) {
	return resolveAs[*document.Message](r, ref, KindMessage)
}

func (r *Resolver) Schema(ref string) (*document.Schema, error) {
	return resolveAs[*document.Schema](r, ref, KindSchema)
}

func (r *Resolver) Parameter(ref string) (*document.Parameter, error) {
	return resolveAs[*document.Parameter](r, ref, KindParameter)
}

func (r *Resolver) CorrelationID(ref string) (*document.CorrelationID, error) {
	return resolveAs[*document.CorrelationID](r, ref, KindCorrelationID)
}

func (r *Resolver) Bindings(ref string) (*document.Bindings, error) {
	return resolveAs[*document.Bindings](r, ref, KindBindings)
}

func (r *Resolver) MessageTrait(ref string) (*document.MessageTrait, error) {
	return resolveAs[*document.MessageTrait](r, ref, KindMessageTrait)
}

func (r *Resolver) OperationTrait(ref string) (*document.OperationTrait, error) {
	return resolveAs[*document.OperationTrait](r, ref, KindOperationTrait)
}

func (r *Resolver) Reply(ref string) (*document.OperationReply, error) {
	return resolveAs[*document.OperationReply](r, ref, KindReply)
}

func (r *Resolver) ReplyAddress(ref string) (*document.OperationReplyAddress, error) {
	return resolveAs[*document.OperationReplyAddress](r, ref, KindReplyAddress)
}

// deref returns v itself when it carries no reference, otherwise the entity the
// reference designates. A nil v stays nil.
func deref[T interface {
	*E
	GetRef() string
}, E any](r *Resolver, v T, kind Kind) (T, error) {
	if v == nil || v.GetRef() == "" {
		return v, nil
	}
	return resolveAs[T](r, v.GetRef(), kind)
}

// derefSchema dereferences a schema. A multi-format wrapper whose schema is a
// reference passes its declared format on to a target that declares none.
func (r *Resolver) derefSchema(s *document.Schema) (*document.Schema, error) {
	target, err := deref(r, s, KindSchema)
	if err != nil || target == nil || target == s {
		return target, err
	}
	if s.Format != "" && target.Format == "" {
		withFormat := *target
		withFormat.Format = s.Format
		return &withFormat, nil
	}
	return target, nil
}

// EffectiveMessage dereferences msg, its traits, headers, payload, correlation
// id and bindings, then folds the traits into a single message.
func (r *Resolver) EffectiveMessage(msg *document.Message) (*document.Message, error) {
	msg, err := deref(r, msg, KindMessage)
	if err != nil || msg == nil {
		return msg, err
	}
	base := *msg
	if base.Bindings, err = deref(r, base.Bindings, KindBindings); err != nil {
		return nil, err
	}

	traits := make([]*document.MessageTrait, 0, len(msg.Traits))
	for _, t := range msg.Traits {
		resolved, err := deref(r, t, KindMessageTrait)
		if err != nil {
			return nil, err
		}
		if resolved != nil && resolved.Bindings != nil && resolved.Bindings.Ref != "" {
			withBindings := *resolved
			if withBindings.Bindings, err = deref(r, resolved.Bindings, KindBindings); err != nil {
				return nil, err
			}
			resolved = &withBindings
		}
		traits = append(traits, resolved)
	}
	merged := base.ApplyTraits(traits...)

	if merged.Payload, err = r.derefSchema(merged.Payload); err != nil {
		return nil, err
	}
	if merged.Headers, err = r.derefSchema(merged.Headers); err != nil {
		return nil, err
	}
	if merged.CorrelationID, err = deref(r, merged.CorrelationID, KindCorrelationID); err != nil {
		return nil, err
	}
	return merged, nil
}

// EffectiveOperation dereferences op, its traits and their bindings, then
// folds the traits in.
func (r *Resolver) EffectiveOperation(op *document.Operation) (*document.Operation, error) {
	op, err := deref(r, op, KindOperation)
	if err != nil || op == nil {
		return op, err
	}
	base := *op
	if base.Bindings, err = deref(r, base.Bindings, KindBindings); err != nil {
		return nil, err
	}

	traits := make([]*document.OperationTrait, 0, len(op.Traits))
	for _, t := range op.Traits {
		resolved, err := deref(r, t, KindOperationTrait)
		if err != nil {
			return nil, err
		}
		if resolved != nil && resolved.Bindings != nil && resolved.Bindings.Ref != "" {
			withBindings := *resolved
			if withBindings.Bindings, err = deref(r, resolved.Bindings, KindBindings); err != nil {
				return nil, err
			}
			resolved = &withBindings
		}
		traits = append(traits, resolved)
	}
	return base.ApplyTraits(traits...), nil
}
