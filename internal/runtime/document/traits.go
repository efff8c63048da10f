package document

// ApplyTraits returns a copy of the message with the given traits merged in.
// Fields set on the message win; among traits the first one that sets a field
// wins. Binding variants are merged by key. The receiver is not modified.
func (m *Message) ApplyTraits(traits ...*MessageTrait) *Message {
	if m == nil {
		return nil
	}
	merged := *m
	merged.Traits = nil
	for _, t := range traits {
		if t == nil {
			continue
		}
		merged.Name = firstNonEmpty(merged.Name, t.Name)
		merged.Title = firstNonEmpty(merged.Title, t.Title)
		merged.Summary = firstNonEmpty(merged.Summary, t.Summary)
		merged.ContentType = firstNonEmpty(merged.ContentType, t.ContentType)
		if merged.Headers == nil {
			merged.Headers = t.Headers
		}
		if merged.CorrelationID == nil {
			merged.CorrelationID = t.CorrelationID
		}
		merged.Bindings = mergeBindings(merged.Bindings, t.Bindings)
	}
	return &merged
}

// ApplyTraits returns a copy of the operation with the given traits merged in,
// following the same precedence as Message.ApplyTraits.
func (o *Operation) ApplyTraits(traits ...*OperationTrait) *Operation {
	if o == nil {
		return nil
	}
	merged := *o
	merged.Traits = nil
	for _, t := range traits {
		if t == nil {
			continue
		}
		merged.Title = firstNonEmpty(merged.Title, t.Title)
		merged.Summary = firstNonEmpty(merged.Summary, t.Summary)
		merged.Description = firstNonEmpty(merged.Description, t.Description)
		merged.Bindings = mergeBindings(merged.Bindings, t.Bindings)
	}
	return &merged
}

// mergeBindings adds the variants of extra whose key is missing from base.
// Unresolved references are left to the caller: a base reference wins, an
// extra reference is only taken when base is empty.
func mergeBindings(base, extra *Bindings) *Bindings {
	switch {
	case extra == nil:
		return base
	case base == nil:
		return extra
	case base.Ref != "" || extra.Ref != "":
		return base
	}
	merged := &Bindings{Items: append([]Binding(nil), base.Items...)}
	for _, candidate := range extra.Items {
		exists := false
		for _, b := range base.Items {
			if b.Name == candidate.Name {
				exists = true
				break
			}
		}
		if !exists {
			merged.Items = append(merged.Items, candidate)
		}
	}
	return merged
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
