package document

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Schema is a payload or header schema together with its declared format.
type Schema struct {
	Ref string
	// Format is the declared schemaFormat. Empty means the document default.
	Format string
	// Body is the schema itself as a generic tree.
	Body any
	// Location is the JSON pointer the schema was declared at.
	Location string
}

func (s *Schema) GetRef() string { return s.Ref }

// UnmarshalYAML unwraps multi-format schema objects and detects plain
// reference wrappers.
func (s *Schema) UnmarshalYAML(value *yaml.Node) error {
	var raw any
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		s.Body = raw
		return nil
	}
	if format, ok := obj["schemaFormat"].(string); ok {
		if inner, has := obj["schema"]; has {
			s.Format = format
			if ref := onlyRef(inner); ref != "" {
				s.Ref = ref
				return nil
			}
			s.Body = inner
			return nil
		}
	}
	if ref := onlyRef(obj); ref != "" {
		s.Ref = ref
		return nil
	}
	s.Body = obj
	return nil
}

func onlyRef(v any) string {
	obj, ok := v.(map[string]any)
	if !ok || len(obj) != 1 {
		return ""
	}
	ref, _ := obj["$ref"].(string)
	return ref
}

const (
	// FormatAsyncAPIPrefix prefixes the AsyncAPI schema format ids.
	FormatAsyncAPIPrefix = "application/vnd.aai.asyncapi"
)

// DefaultSchemaFormat returns the schema format implied by a document version.
func DefaultSchemaFormat(asyncapiVersion string) string {
	if asyncapiVersion == "" {
		return FormatAsyncAPIPrefix + "+json"
	}
	return FormatAsyncAPIPrefix + "+json;version=" + asyncapiVersion
}
