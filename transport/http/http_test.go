package http

import (
	"context"
	"io"
	nethttp "net/http"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/asyncflow/internal/runtime/document"
	"github.com/drblury/asyncflow/transport"
	"github.com/drblury/asyncflow/transport/transporttest"
)

func TestRegistered(t *testing.T) {
	assert.True(t, transport.DefaultRegistry.Has(TransportName))
	assert.Equal(t, transport.HTTPCapabilities, Capabilities())
	assert.False(t, Capabilities().SupportsSubscribe)
}

func TestPublishBuildsRequest(t *testing.T) {
	original := PublisherFactory
	defer func() { PublisherFactory = original }()

	pub := &transporttest.Publisher{}
	var marshal http.MarshalMessageFunc
	PublisherFactory = func(config http.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
		marshal = config.MarshalMessageFunc
		return pub, nil
	}

	h, err := Build(context.Background(), &transporttest.Config{}, watermill.NopLogger{})
	require.NoError(t, err)

	_, err = h.Publish(context.Background(), transport.NewOperationContext(transport.ContextParams{
		Protocol: "https",
		Host:     "api.example.com",
		Path:     "/v1/",
		Channel:  "/orders/42",
		Payload:  map[string]any{"id": 42},
		OperationBinding: &document.Binding{
			Name:       "http",
			Protocols:  []string{"http", "https"},
			Properties: map[string]any{"method": "put"},
		},
	}))
	require.NoError(t, err)
	require.Equal(t, []string{"https://api.example.com/v1/orders/42"}, pub.Topics)
	require.NotNil(t, marshal)

	req, err := marshal(pub.Topics[0], pub.Messages[0])
	require.NoError(t, err)
	assert.Equal(t, nethttp.MethodPut, req.Method)
	assert.Equal(t, "https://api.example.com/v1/orders/42", req.URL.String())
	body, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":42}`, string(body))
}

func TestSubscribeUnsupported(t *testing.T) {
	h := New(&transporttest.Config{HTTPPublisherURL: "http://localhost:8080"}, nil)
	_, err := h.Subscribe(context.Background(), transport.NewOperationContext(transport.ContextParams{Channel: "x"}))
	require.ErrorIs(t, err, transport.ErrSubscribeUnsupported)
}

func TestTargetURL(t *testing.T) {
	cfg := &transporttest.Config{HTTPPublisherURL: "http://localhost:8080/"}
	assert.Equal(t, "http://localhost:8080/orders", TargetURL(transport.NewOperationContext(transport.ContextParams{Channel: "orders"}), cfg))
	assert.Equal(t, "http://h", TargetURL(transport.NewOperationContext(transport.ContextParams{Host: "h"}), cfg))
	assert.Empty(t, TargetURL(transport.NewOperationContext(transport.ContextParams{Channel: "orders"}), &transporttest.Config{}))

	h := New(&transporttest.Config{}, nil)
	_, err := h.Publish(context.Background(), transport.NewOperationContext(transport.ContextParams{Channel: "x"}))
	require.ErrorIs(t, err, ErrNoTargetURL)
}

func TestMethod(t *testing.T) {
	assert.Equal(t, nethttp.MethodPost, Method(transport.NewOperationContext(transport.ContextParams{})))
}
