package params

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/asyncflow/internal/runtime/document"
	"github.com/drblury/asyncflow/internal/runtime/expression"
	"github.com/drblury/asyncflow/internal/runtime/logging"
	"github.com/drblury/asyncflow/internal/runtime/reference"
)

const fixture = `
asyncapi: 3.0.0
info:
  title: Items
  version: 1.0.0
servers:
  s1:
    host: '{env}.example.com:{port}'
    pathname: /{basePath}
    protocol: http
    variables:
      env:
        enum: [prod, staging]
      port:
        default: '443'
        enum: ['443', '8443']
      basePath:
        $ref: '#/components/serverVariables/basePath'
channels:
  c1:
    address: /items/{id}
    parameters:
      id:
        location: $message.payload#/id
  c2:
    address: tenants/{tenant}/orders/{region}/{unknown}
    parameters:
      tenant:
        $ref: '#/components/parameters/tenant'
      region:
        default: eu
        enum: [eu, us]
  c3:
    address: users/{userId}
    parameters:
      userId:
        $ref: '#/components/parameters/missing'
components:
  serverVariables:
    basePath:
      default: v1
  parameters:
    tenant:
      location: $message.header#/tenant
      default: public
`

type harness struct {
	doc *document.Document
	out *bytes.Buffer
	ip  *Interpolator
}

func newHarness(t *testing.T) harness {
	t.Helper()
	doc, err := document.Load([]byte(fixture))
	require.NoError(t, err)

	var buf bytes.Buffer
	logger := logging.NewSlogServiceLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	return harness{doc: doc, out: &buf, ip: New(reference.New(doc), logger)}
}

func TestChannelAddressFromPayload(t *testing.T) {
	h := newHarness(t)

	address, values := h.ip.ChannelAddress(h.doc.Channels["c1"], map[string]any{"id": "42"}, nil)
	assert.Equal(t, "/items/42", address)
	assert.Equal(t, map[string]string{"id": "42"}, values)
	assert.Empty(t, h.out.String())
}

func TestChannelAddressKeepsLargeIntegers(t *testing.T) {
	h := newHarness(t)

	address, _ := h.ip.ChannelAddress(h.doc.Channels["c1"], map[string]any{"id": int64(9007199254740993)}, nil)
	assert.Equal(t, "/items/9007199254740993", address)

	address, _ = h.ip.ChannelAddress(h.doc.Channels["c1"], []byte(`{"id":9007199254740993}`), nil)
	assert.Equal(t, "/items/9007199254740993", address)
}

func TestChannelAddressLeavesUnresolvedPlaceholders(t *testing.T) {
	h := newHarness(t)

	address, values := h.ip.ChannelAddress(h.doc.Channels["c1"], map[string]any{"other": 1}, nil)
	assert.Equal(t, "/items/{id}", address)
	assert.Empty(t, values)
	assert.Contains(t, h.out.String(), "Dropping channel parameter")
	assert.Contains(t, h.out.String(), "parameter=id")
}

func TestChannelAddressPrecedence(t *testing.T) {
	h := newHarness(t)
	ch := h.doc.Channels["c2"]

	address, values := h.ip.ChannelAddress(ch, nil, map[string]any{"tenant": "acme"})
	assert.Equal(t, "tenants/acme/orders/eu/{unknown}", address)
	assert.Equal(t, map[string]string{"tenant": "acme", "region": "eu"}, values)
	assert.Contains(t, h.out.String(), "no parameter definition")

	address, _ = h.ip.ChannelAddress(ch, nil, nil)
	assert.Equal(t, "tenants/public/orders/eu/{unknown}", address)
}

func TestChannelAddressDropsDanglingReference(t *testing.T) {
	h := newHarness(t)

	address, values := h.ip.ChannelAddress(h.doc.Channels["c3"], map[string]any{"userId": "u1"}, nil)
	assert.Equal(t, "users/{userId}", address)
	assert.Empty(t, values)
	assert.Contains(t, h.out.String(), "dangling reference")
}

func TestChannelAddressRejectsValuesOutsideEnum(t *testing.T) {
	h := newHarness(t)
	addr := "{region}"
	ch := &document.Channel{
		Address: &addr,
		Parameters: map[string]*document.Parameter{
			"region": {Location: "$message.payload#/region", Enum: []string{"eu", "us"}},
		},
	}

	address, values := h.ip.ChannelAddress(ch, map[string]any{"region": "apac"}, nil)
	assert.Equal(t, "{region}", address)
	assert.Empty(t, values)
	assert.Contains(t, h.out.String(), "value not in enum")
}

func TestChannelAddressWithoutAddress(t *testing.T) {
	h := newHarness(t)
	address, values := h.ip.ChannelAddress(&document.Channel{}, nil, nil)
	assert.Empty(t, address)
	assert.Empty(t, values)
}

func TestAssignedAddress(t *testing.T) {
	h := newHarness(t)
	ch := h.doc.Channels["c2"]

	address, values := h.ip.AssignedAddress(ch, map[string]string{"tenant": "acme", "region": "us"})
	assert.Equal(t, "tenants/acme/orders/us/{unknown}", address)
	assert.Equal(t, map[string]string{"tenant": "acme", "region": "us"}, values)

	address, values = h.ip.AssignedAddress(ch, nil)
	assert.Equal(t, "tenants/public/orders/eu/{unknown}", address)
	assert.Equal(t, map[string]string{"tenant": "public", "region": "eu"}, values)
}

func TestAssignedAddressKeepsUnassignedPlaceholders(t *testing.T) {
	h := newHarness(t)

	address, values := h.ip.AssignedAddress(h.doc.Channels["c1"], map[string]string{"id": " "})
	assert.Equal(t, "/items/{id}", address)
	assert.Empty(t, values)
	assert.Contains(t, h.out.String(), "reason=\"no value\"")

	address, _ = h.ip.AssignedAddress(h.doc.Channels["c2"], map[string]string{"region": "apac"})
	assert.Equal(t, "tenants/public/orders/{region}/{unknown}", address)
	assert.Contains(t, h.out.String(), "value not in enum")
}

func TestServerVariables(t *testing.T) {
	h := newHarness(t)
	server := h.doc.Servers["s1"]

	host, path := h.ip.Server(server, nil)
	assert.Equal(t, "prod.example.com:443", host)
	assert.Equal(t, "/v1", path)

	host, _ = h.ip.Server(server, map[string]string{"env": "staging", "port": "8443"})
	assert.Equal(t, "staging.example.com:8443", host)

	host, _ = h.ip.Server(server, map[string]string{"env": "dev"})
	assert.Equal(t, "{env}.example.com:443", host)
	assert.Contains(t, h.out.String(), "Dropping server variable")

	host, path = h.ip.Server(nil, nil)
	assert.Empty(t, host)
	assert.Empty(t, path)
}

func TestInterpolate(t *testing.T) {
	tests := []struct {
		name     string
		template string
		values   map[string]string
		want     string
	}{
		{name: "single", template: "/items/{id}", values: map[string]string{"id": "42"}, want: "/items/42"},
		{name: "repeated", template: "{a}.{a}", values: map[string]string{"a": "x"}, want: "x.x"},
		{name: "unknown kept", template: "{a}/{b}", values: map[string]string{"a": "x"}, want: "x/{b}"},
		{name: "no rescan", template: "{a}/{b}", values: map[string]string{"a": "{b}", "b": "y"}, want: "{b}/y"},
		{name: "unterminated", template: "{a}/{b", values: map[string]string{"a": "x"}, want: "x/{b"},
		{name: "no values", template: "{a}", want: "{a}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Interpolate(tt.template, tt.values))
		})
	}
}

func TestExtract(t *testing.T) {
	values, ok := Extract("tenants/{tenant}/orders.{region}", "tenants/acme/orders.eu")
	require.True(t, ok)
	assert.Equal(t, map[string]string{"tenant": "acme", "region": "eu"}, values)

	_, ok = Extract("tenants/{tenant}", "users/acme")
	assert.False(t, ok)

	values, ok = Extract("static", "static")
	require.True(t, ok)
	assert.Empty(t, values)
}

func TestInterpolateExtractRoundTrip(t *testing.T) {
	h := newHarness(t)
	ch := h.doc.Channels["c1"]
	payloads := []map[string]any{{"id": "42"}, {"id": "a.b"}, {"id": 7}, {"id": int64(9007199254740993)}}

	for _, payload := range payloads {
		address, _ := h.ip.ChannelAddress(ch, payload, nil)
		extracted, ok := Extract(ch.AddressTemplate(), address)
		require.True(t, ok)

		for name, p := range ch.Parameters {
			want, found, err := expression.Evaluate(p.Location, payload, nil)
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, want, extracted[name])
		}
	}
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, Placeholders("x/{a}/{b}"))
	assert.Empty(t, Placeholders("plain"))
}
