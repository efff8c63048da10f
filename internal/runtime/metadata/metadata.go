// Package metadata converts message headers into the flat string metadata
// carried by transports.
package metadata

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/drblury/asyncflow/internal/runtime/jsoncodec"
)

// Reserved metadata keys written by the protocol handlers.
const (
	// KeyCorrelationID carries the correlation id evaluated from the message definition.
	KeyCorrelationID = "correlation_id"
	// KeyContentType carries the content type of the encoded payload.
	KeyContentType = "content_type"
	// KeyMessageName identifies the message definition selected for the payload.
	KeyMessageName = "asyncflow_message"
	// KeyOperationID identifies the operation the message was dispatched for.
	KeyOperationID = "asyncflow_operation"
	// KeyReplyTo carries the reply address of request/reply operations.
	KeyReplyTo = "reply_to"
)

// Metadata represents the headers carried alongside a message.
type Metadata map[string]string

func (m Metadata) cloneWithExtra(extra int) Metadata {
	size := len(m) + extra
	if size <= 0 {
		return Metadata{}
	}

	cloned := make(Metadata, size)
	for k, v := range m {
		cloned[k] = v
	}
	return cloned
}

// Clone returns a shallow copy of the metadata map.
func (m Metadata) Clone() Metadata {
	return m.cloneWithExtra(0)
}

// With returns a cloned metadata map containing the provided key/value pair.
// Empty values are skipped.
func (m Metadata) With(key, value string) Metadata {
	cloned := m.cloneWithExtra(1)
	if value != "" {
		cloned[key] = value
	}
	return cloned
}

// Keys returns the metadata keys in sorted order.
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FromHeaders flattens structured message headers. Strings are kept verbatim,
// scalars use their textual form and everything else is JSON encoded.
func FromHeaders(headers map[string]any) (Metadata, error) {
	md := make(Metadata, len(headers))
	for k, v := range headers {
		text, err := Text(v)
		if err != nil {
			return nil, fmt.Errorf("encode header %q: %w", k, err)
		}
		md[k] = text
	}
	return md, nil
}

// ToHeaders exposes metadata as the structured header map used by runtime
// expressions.
func (m Metadata) ToHeaders() map[string]any {
	headers := make(map[string]any, len(m))
	for k, v := range m {
		headers[k] = v
	}
	return headers
}

// Text renders a header or expression value as text.
func Text(v any) (string, error) {
	switch typed := v.(type) {
	case nil:
		return "", nil
	case string:
		return typed, nil
	case []byte:
		return string(typed), nil
	case bool:
		return strconv.FormatBool(typed), nil
	case json.Number:
		return typed.String(), nil
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(typed), 'f', -1, 32), nil
	case int:
		return strconv.Itoa(typed), nil
	case int64:
		return strconv.FormatInt(typed, 10), nil
	case int32:
		return strconv.FormatInt(int64(typed), 10), nil
	case uint:
		return strconv.FormatUint(uint64(typed), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(typed), 10), nil
	case uint64:
		return strconv.FormatUint(typed, 10), nil
	case fmt.Stringer:
		return typed.String(), nil
	default:
		data, err := jsoncodec.Marshal(typed)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}
