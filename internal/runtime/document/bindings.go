package document

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/drblury/asyncflow/internal/runtime/jsoncodec"
)

// protocolFamilies lists the protocol ids a binding key applies to. Keys not
// listed here apply to themselves only.
var protocolFamilies = map[string][]string{
	"amqp":   {"amqp", "amqps"},
	"http":   {"http", "https"},
	"ws":     {"ws", "wss"},
	"mqtt":   {"mqtt", "secure-mqtt"},
	"mqtt5":  {"mqtt5", "secure-mqtt5"},
	"kafka":  {"kafka", "kafka-secure"},
	"pulsar": {"pulsar", "pulsar+ssl"},
	"stomp":  {"stomp", "stomps"},
	"redis":  {"redis", "rediss"},
}

// ProtocolFamily returns the protocol ids covered by a binding key.
func ProtocolFamily(key string) []string {
	if family, ok := protocolFamilies[strings.ToLower(key)]; ok {
		out := make([]string, len(family))
		copy(out, family)
		return out
	}
	return []string{key}
}

// Bindings is an ordered set of protocol-specific binding variants, or a
// reference to a reusable set.
type Bindings struct {
	Ref   string
	Items []Binding
}

func (b *Bindings) GetRef() string { return b.Ref }

// Binding is a protocol-specific configuration overlay.
type Binding struct {
	// Name is the binding key as written in the document, e.g. "amqp".
	Name       string
	Protocols  []string
	Properties map[string]any
}

// Supports reports whether the binding applies to protocol, compared
// case-insensitively.
func (b Binding) Supports(protocol string) bool {
	for _, p := range b.Protocols {
		if strings.EqualFold(p, protocol) {
			return true
		}
	}
	return false
}

// Version returns the declared bindingVersion, if any.
func (b Binding) Version() string {
	v, _ := b.Properties["bindingVersion"].(string)
	return v
}

// Get returns a top-level property.
func (b Binding) Get(key string) (any, bool) {
	v, ok := b.Properties[key]
	return v, ok
}

// StringValue returns a top-level property as text, or an empty string.
func (b Binding) StringValue(key string) string {
	v, _ := b.Properties[key].(string)
	return v
}

// Decode decodes the binding properties into a typed struct using JSON tags.
func (b Binding) Decode(into any) error {
	data, err := jsoncodec.Marshal(b.Properties)
	if err != nil {
		return fmt.Errorf("encode %s binding: %w", b.Name, err)
	}
	if err := jsoncodec.Unmarshal(data, into); err != nil {
		return fmt.Errorf("decode %s binding: %w", b.Name, err)
	}
	return nil
}

// Clone returns a copy whose top-level maps and slices are not shared.
func (b *Binding) Clone() *Binding {
	if b == nil {
		return nil
	}
	cloned := &Binding{
		Name:       b.Name,
		Protocols:  append([]string(nil), b.Protocols...),
		Properties: make(map[string]any, len(b.Properties)),
	}
	for k, v := range b.Properties {
		cloned.Properties[k] = v
	}
	return cloned
}

// UnmarshalYAML converts the AsyncAPI "protocol -> object" map into the
// ordered variant list. Keys are sorted to keep the order deterministic.
func (b *Bindings) UnmarshalYAML(value *yaml.Node) error {
	var raw map[string]any
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("bindings: %w", err)
	}
	if ref, ok := raw["$ref"].(string); ok {
		b.Ref = ref
		return nil
	}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		props, _ := raw[key].(map[string]any)
		if props == nil {
			props = map[string]any{}
		}
		b.Items = append(b.Items, Binding{
			Name:       key,
			Protocols:  ProtocolFamily(key),
			Properties: props,
		})
	}
	return nil
}

// NewBindings builds a bindings set from explicit variants.
func NewBindings(items ...Binding) *Bindings {
	return &Bindings{Items: items}
}
