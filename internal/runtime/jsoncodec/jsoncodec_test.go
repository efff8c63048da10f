package jsoncodec

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPayload struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func TestMarshalAndUnmarshal(t *testing.T) {
	in := testPayload{ID: 42, Name: "asyncflow"}
	data, err := Marshal(in)
	require.NoError(t, err)

	var out testPayload
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, in, out)

	indented, err := MarshalIndent(in, "", "  ")
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(indented), "\n  \"id\""))
}

func TestEncodeDecode(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, testPayload{ID: 1, Name: "x"}))

	var out testPayload
	require.NoError(t, Decode(&buf, &out))
	assert.Equal(t, 1, out.ID)
}

func TestValid(t *testing.T) {
	assert.True(t, Valid([]byte(`{"a":1}`)))
	assert.False(t, Valid([]byte(`{not json}`)))
}

func TestNormalize(t *testing.T) {
	t.Run("struct becomes generic map", func(t *testing.T) {
		out, err := Normalize(testPayload{ID: 7, Name: "n"})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"id": json.Number("7"), "name": "n"}, out)
	})

	t.Run("raw json is decoded", func(t *testing.T) {
		out, err := Normalize(json.RawMessage(`{"a":{"b":42}}`))
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"a": map[string]any{"b": json.Number("42")}}, out)
	})

	t.Run("generic map is returned unchanged", func(t *testing.T) {
		in := map[string]any{"a": "b", "n": []any{1.0}}
		out, err := Normalize(in)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	})

	t.Run("map with typed values is converted", func(t *testing.T) {
		out, err := Normalize(map[string]any{"n": 3})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"n": json.Number("3")}, out)
	})

	t.Run("large integers keep their digits", func(t *testing.T) {
		out, err := Normalize(map[string]any{"id": int64(9007199254740993)})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"id": json.Number("9007199254740993")}, out)

		out, err = Normalize([]byte(`{"id":9007199254740993}`))
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"id": json.Number("9007199254740993")}, out)

		out, err = Normalize(uint64(18446744073709551615))
		require.NoError(t, err)
		assert.Equal(t, json.Number("18446744073709551615"), out)
	})

	t.Run("invalid raw json fails", func(t *testing.T) {
		_, err := Normalize([]byte(`{`))
		assert.Error(t, err)
	})
}
