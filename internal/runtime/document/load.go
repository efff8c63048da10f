package document

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/drblury/asyncflow/internal/runtime/jsoncodec"
)

// ErrVersionRequired is returned when the document has no asyncapi field.
var ErrVersionRequired = errors.New("asyncflow: document has no asyncapi version")

// LoadFile reads and loads a JSON or YAML document from disk.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document %s: %w", path, err)
	}
	return Load(data)
}

// Load parses a JSON or YAML AsyncAPI 2.x or 3.x document. Version 2 documents
// are rewritten into the version 3 shape. Only the syntax is checked: references
// and schemas are validated when they are used.
func Load(data []byte) (*Document, error) {
	tree, err := decodeTree(data)
	if err != nil {
		return nil, err
	}

	version, _ := tree["asyncapi"].(string)
	if version == "" {
		return nil, ErrVersionRequired
	}
	if strings.HasPrefix(version, "2.") {
		tree = normalizeV2(tree)
	}

	var node yaml.Node
	if err := node.Encode(tree); err != nil {
		return nil, fmt.Errorf("encode document tree: %w", err)
	}
	doc := &Document{}
	if err := node.Decode(doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	doc.Raw = tree
	annotateSchemaLocations(doc)
	return doc, nil
}

func decodeTree(data []byte) (map[string]any, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("asyncflow: document is empty")
	}

	var raw any
	if trimmed[0] == '{' {
		if err := jsoncodec.Unmarshal(trimmed, &raw); err != nil {
			return nil, fmt.Errorf("parse json document: %w", err)
		}
	} else if err := yaml.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("parse yaml document: %w", err)
	}

	tree, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("asyncflow: document root must be an object, got %T", raw)
	}
	return tree, nil
}

func annotateSchemaLocations(doc *Document) {
	for name, ch := range doc.Channels {
		annotateChannel(ch, "channels", name)
	}
	if doc.Components == nil {
		return
	}
	c := doc.Components
	for name, s := range c.Schemas {
		setLocation(s, Pointer("components", "schemas", name))
	}
	for name, m := range c.Messages {
		annotateMessage(m, "components", "messages", name)
	}
	for name, ch := range c.Channels {
		annotateChannel(ch, "components", "channels", name)
	}
	for name, t := range c.MessageTraits {
		if t != nil {
			setLocation(t.Headers, Pointer("components", "messageTraits", name, "headers"))
		}
	}
}

func annotateChannel(ch *Channel, path ...string) {
	if ch == nil {
		return
	}
	for name, m := range ch.Messages {
		annotateMessage(m, append(append([]string{}, path...), "messages", name)...)
	}
}

func annotateMessage(m *Message, path ...string) {
	if m == nil {
		return
	}
	setLocation(m.Payload, Pointer(append(append([]string{}, path...), "payload")...))
	setLocation(m.Headers, Pointer(append(append([]string{}, path...), "headers")...))
}

func setLocation(s *Schema, location string) {
	if s != nil && s.Ref == "" {
		s.Location = location
	}
}

// normalizeV2 rewrites a 2.x tree into the 3.x shape: publish and subscribe
// operations move from channels to the operations map, server urls are split
// into host and pathname and oneOf message lists become message references.
func normalizeV2(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		out[k] = v
	}

	if servers, ok := raw["servers"].(map[string]any); ok {
		converted := make(map[string]any, len(servers))
		for name, s := range servers {
			converted[name] = normalizeV2Server(s)
		}
		out["servers"] = converted
	}

	channels, _ := raw["channels"].(map[string]any)
	convertedChannels := make(map[string]any, len(channels))
	operations := map[string]any{}
	for _, key := range sortedKeys(channels) {
		ch, _ := channels[key].(map[string]any)
		if ch == nil {
			continue
		}
		convertedChannels[key] = normalizeV2Channel(key, ch, operations)
	}
	out["channels"] = convertedChannels
	out["operations"] = operations

	if components, ok := raw["components"].(map[string]any); ok {
		out["components"] = normalizeV2Components(components)
	}
	return out
}

func normalizeV2Server(s any) any {
	server, ok := s.(map[string]any)
	if !ok {
		return s
	}
	converted := copyWithout(server, "url")
	if rawURL, ok := server["url"].(string); ok {
		host, path := splitServerURL(rawURL)
		converted["host"] = host
		if path != "" {
			converted["pathname"] = path
		}
	}
	return converted
}

func splitServerURL(rawURL string) (host, path string) {
	if i := strings.Index(rawURL, "://"); i >= 0 {
		rawURL = rawURL[i+3:]
	}
	if i := strings.Index(rawURL, "/"); i >= 0 {
		return rawURL[:i], rawURL[i:]
	}
	return rawURL, ""
}

func normalizeV2Channel(key string, ch map[string]any, operations map[string]any) map[string]any {
	converted := copyWithout(ch, "publish", "subscribe", "parameters", "servers")
	converted["address"] = key

	if params, ok := ch["parameters"].(map[string]any); ok {
		convertedParams := make(map[string]any, len(params))
		for name, p := range params {
			convertedParams[name] = normalizeV2Parameter(p)
		}
		converted["parameters"] = convertedParams
	}

	if servers, ok := ch["servers"].([]any); ok {
		refs := make([]any, 0, len(servers))
		for _, s := range servers {
			if name, ok := s.(string); ok {
				refs = append(refs, map[string]any{"$ref": Pointer("servers", name)})
			}
		}
		converted["servers"] = refs
	}

	messages := map[string]any{}
	for _, verb := range []struct {
		name   string
		action Action
	}{
		{"publish", ActionReceive},
		{"subscribe", ActionSend},
	} {
		op, ok := ch[verb.name].(map[string]any)
		if !ok {
			continue
		}
		id, _ := op["operationId"].(string)
		if id == "" {
			id = key + "." + verb.name
		}
		converted := copyWithout(op, "operationId", "message")
		converted["action"] = string(verb.action)
		converted["channel"] = map[string]any{"$ref": Pointer("channels", key)}

		var refs []any
		for i, m := range v2MessageList(op["message"]) {
			name := v2MessageName(m, id, i, messages)
			messages[name] = normalizeV2Message(m)
			refs = append(refs, map[string]any{"$ref": Pointer("channels", key, "messages", name)})
		}
		if len(refs) > 0 {
			converted["messages"] = refs
		}
		operations[id] = converted
	}
	if len(messages) > 0 {
		converted["messages"] = messages
	}
	return converted
}

func normalizeV2Parameter(p any) any {
	param, ok := p.(map[string]any)
	if !ok {
		return p
	}
	if _, isRef := param["$ref"]; isRef {
		return param
	}
	converted := copyWithout(param, "schema")
	if schema, ok := param["schema"].(map[string]any); ok {
		if def, has := schema["default"]; has {
			converted["default"] = fmt.Sprint(def)
		}
		if enum, ok := schema["enum"].([]any); ok {
			values := make([]any, 0, len(enum))
			for _, e := range enum {
				values = append(values, fmt.Sprint(e))
			}
			converted["enum"] = values
		}
	}
	return converted
}

func v2MessageList(m any) []any {
	obj, ok := m.(map[string]any)
	if !ok {
		return nil
	}
	if oneOf, ok := obj["oneOf"].([]any); ok {
		return oneOf
	}
	return []any{obj}
}

func v2MessageName(m any, operationID string, index int, taken map[string]any) string {
	var name string
	if obj, ok := m.(map[string]any); ok {
		if ref, ok := obj["$ref"].(string); ok {
			if segments, ok := SplitPointer(ref); ok && len(segments) > 0 {
				name = segments[len(segments)-1]
			}
		}
		if name == "" {
			name, _ = obj["messageId"].(string)
		}
		if name == "" {
			name, _ = obj["name"].(string)
		}
	}
	if name == "" {
		name = fmt.Sprintf("%sMessage%d", operationID, index)
	}
	if existing, exists := taken[name]; exists && !reflect.DeepEqual(existing, normalizeV2Message(m)) {
		name = fmt.Sprintf("%s%d", name, index)
	}
	return name
}

func normalizeV2Message(m any) any {
	msg, ok := m.(map[string]any)
	if !ok {
		return m
	}
	if _, isRef := msg["$ref"]; isRef {
		return msg
	}
	converted := copyWithout(msg, "messageId", "schemaFormat")
	if format, ok := msg["schemaFormat"].(string); ok {
		if payload, has := msg["payload"]; has {
			converted["payload"] = map[string]any{"schemaFormat": format, "schema": payload}
		}
	}
	return converted
}

func normalizeV2Components(components map[string]any) map[string]any {
	converted := make(map[string]any, len(components))
	for k, v := range components {
		converted[k] = v
	}
	if messages, ok := components["messages"].(map[string]any); ok {
		out := make(map[string]any, len(messages))
		for name, m := range messages {
			out[name] = normalizeV2Message(m)
		}
		converted["messages"] = out
	}
	if params, ok := components["parameters"].(map[string]any); ok {
		out := make(map[string]any, len(params))
		for name, p := range params {
			out[name] = normalizeV2Parameter(p)
		}
		converted["parameters"] = out
	}
	return converted
}

func copyWithout(in map[string]any, skip ...string) map[string]any {
	out := make(map[string]any, len(in))
outer:
	for k, v := range in {
		for _, s := range skip {
			if k == s {
				continue outer
			}
		}
		out[k] = v
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
