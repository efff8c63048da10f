// Package jsoncodec is the JSON codec shared by document loading, runtime
// expressions, schema validation and payload encoding.
package jsoncodec

import (
	"encoding/json"
	"io"
	"strconv"

	"github.com/bytedance/sonic"
)

var defaultConfig = sonic.ConfigStd

// treeConfig decodes numbers as json.Number so that integers beyond 2^53
// keep their digits.
var treeConfig = sonic.Config{
	EscapeHTML:       true,
	SortMapKeys:      true,
	CompactMarshaler: true,
	CopyString:       true,
	ValidateString:   true,
	UseNumber:        true,
}.Froze()

func Marshal(v any) ([]byte, error) {
	return defaultConfig.Marshal(v)
}

func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return defaultConfig.MarshalIndent(v, prefix, indent)
}

func Unmarshal(data []byte, v any) error {
	return defaultConfig.Unmarshal(data, v)
}

func Encode(w io.Writer, v any) error {
	return defaultConfig.NewEncoder(w).Encode(v)
}

func Decode(r io.Reader, v any) error {
	return defaultConfig.NewDecoder(r).Decode(v)
}

// Valid reports whether data is a syntactically valid JSON document.
func Valid(data []byte) bool {
	return defaultConfig.Valid(data)
}

// Normalize converts v into the generic JSON tree (map[string]any, []any,
// string, json.Number, bool, nil). Raw JSON ([]byte, json.RawMessage) is
// decoded, values that already are generic trees are returned as is.
func Normalize(v any) (any, error) {
	if n, ok := integer(v); ok {
		return n, nil
	}
	switch typed := v.(type) {
	case nil, string, bool, float64, json.Number:
		return typed, nil
	case json.RawMessage:
		return decodeGeneric(typed)
	case []byte:
		return decodeGeneric(typed)
	case map[string]any:
		if isGeneric(typed) {
			return typed, nil
		}
	}
	data, err := Marshal(v)
	if err != nil {
		return nil, err
	}
	return decodeGeneric(data)
}

// integer returns Go integers as json.Number without a float round trip.
func integer(v any) (json.Number, bool) {
	switch n := v.(type) {
	case int:
		return json.Number(strconv.FormatInt(int64(n), 10)), true
	case int8:
		return json.Number(strconv.FormatInt(int64(n), 10)), true
	case int16:
		return json.Number(strconv.FormatInt(int64(n), 10)), true
	case int32:
		return json.Number(strconv.FormatInt(int64(n), 10)), true
	case int64:
		return json.Number(strconv.FormatInt(n, 10)), true
	case uint:
		return json.Number(strconv.FormatUint(uint64(n), 10)), true
	case uint8:
		return json.Number(strconv.FormatUint(uint64(n), 10)), true
	case uint16:
		return json.Number(strconv.FormatUint(uint64(n), 10)), true
	case uint32:
		return json.Number(strconv.FormatUint(uint64(n), 10)), true
	case uint64:
		return json.Number(strconv.FormatUint(n, 10)), true
	}
	return "", false
}

func decodeGeneric(data []byte) (any, error) {
	var out any
	if err := treeConfig.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func isGeneric(v any) bool {
	switch typed := v.(type) {
	case nil, string, bool, float64, json.Number:
		return true
	case map[string]any:
		for _, item := range typed {
			if !isGeneric(item) {
				return false
			}
		}
		return true
	case []any:
		for _, item := range typed {
			if !isGeneric(item) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
