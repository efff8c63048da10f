package transport

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/drblury/asyncflow/internal/runtime/document"
	rterrors "github.com/drblury/asyncflow/internal/runtime/errors"
	"github.com/drblury/asyncflow/internal/runtime/metadata"
)

type mockConfig struct{}

func (mockConfig) GetKafkaBrokers() []string     { return nil }
func (mockConfig) GetKafkaConsumerGroup() string { return "" }
func (mockConfig) GetRabbitMQURL() string        { return "" }
func (mockConfig) GetNATSURL() string            { return "" }
func (mockConfig) GetHTTPPublisherURL() string   { return "" }
func (mockConfig) GetAWSRegion() string          { return "" }
func (mockConfig) GetAWSAccountID() string       { return "" }
func (mockConfig) GetAWSAccessKeyID() string     { return "" }
func (mockConfig) GetAWSSecretAccessKey() string { return "" }
func (mockConfig) GetAWSEndpoint() string        { return "" }

type stubHandler struct {
	caps   Capabilities
	closed bool
}

func (s *stubHandler) Supports(protocol, version string) bool { return s.caps.Serves(protocol, version) }
func (s *stubHandler) Publish(context.Context, OperationContext) (Result, error) {
	return Result{MessageID: s.caps.Name}, nil
}
func (s *stubHandler) Subscribe(context.Context, OperationContext) (Result, error) {
	return Result{}, nil
}
func (s *stubHandler) Capabilities() Capabilities { return s.caps }
func (s *stubHandler) Close() error {
	s.closed = true
	return nil
}

type recordingPublisher struct {
	topics   []string
	messages []*message.Message
	closed   bool
}

func (r *recordingPublisher) Publish(topic string, messages ...*message.Message) error {
	r.topics = append(r.topics, topic)
	r.messages = append(r.messages, messages...)
	return nil
}

func (r *recordingPublisher) Close() error {
	r.closed = true
	return nil
}

func TestOperationContextIsImmutable(t *testing.T) {
	headers := map[string]any{"a": "1"}
	parameters := map[string]string{"id": "42"}
	binding := &document.Binding{Name: "kafka", Protocols: []string{"kafka"}, Properties: map[string]any{"key": "k"}}

	oc := NewOperationContext(ContextParams{
		OperationID:    "sendOrder",
		Verb:           VerbPublish,
		Headers:        headers,
		Parameters:     parameters,
		ChannelBinding: binding,
	})

	headers["a"] = "changed"
	parameters["id"] = "changed"
	binding.Properties["key"] = "changed"
	assert.Equal(t, "1", oc.Headers()["a"])
	assert.Equal(t, "42", oc.Parameters()["id"])
	assert.Equal(t, "k", oc.ChannelBinding().StringValue("key"))

	oc.Headers()["a"] = "mutated"
	oc.Parameters()["id"] = "mutated"
	oc.ChannelBinding().Properties["key"] = "mutated"
	assert.Equal(t, "1", oc.Headers()["a"])
	assert.Equal(t, "42", oc.Parameters()["id"])
	assert.Equal(t, "k", oc.ChannelBinding().StringValue("key"))

	assert.Nil(t, oc.ServerBinding())
	assert.Equal(t, "sendOrder", oc.Params().OperationID)
	assert.Equal(t, VerbPublish, oc.Verb())
}

func TestMessageDecode(t *testing.T) {
	msg := &Message{Payload: []byte(`{"id":7}`)}
	var out struct {
		ID int `json:"id"`
	}
	require.NoError(t, msg.Decode(&out))
	assert.Equal(t, 7, out.ID)
}

func TestCapabilitiesServes(t *testing.T) {
	assert.True(t, AMQPCapabilities.Serves("AMQPS", ""))
	assert.True(t, AMQPCapabilities.Serves("amqp", "0.9.1"))
	assert.False(t, AMQPCapabilities.Serves("amqp", "1.0"))
	assert.True(t, KafkaCapabilities.Serves("kafka-secure", "3.5"))
	assert.False(t, HTTPCapabilities.Serves("ws", ""))
	assert.True(t, AMQPCapabilities.SupportsReliableDelivery())
	assert.False(t, NATSCapabilities.SupportsReliableDelivery())
}

func TestRegistryHandlerFirstMatch(t *testing.T) {
	reg := NewRegistry()
	first := &stubHandler{caps: Capabilities{Name: "first", Protocols: []string{"kafka"}}}
	second := &stubHandler{caps: Capabilities{Name: "second", Protocols: []string{"kafka", "nats"}}}
	reg.Add(first)
	reg.Add(second)
	reg.Add(nil)

	h, err := reg.Handler("KAFKA", "")
	require.NoError(t, err)
	assert.Same(t, first, h)

	h, err = reg.Handler("nats", "2.10")
	require.NoError(t, err)
	assert.Same(t, second, h)

	_, err = reg.Handler("mqtt", "5")
	require.ErrorIs(t, err, rterrors.ErrUnsupportedProtocol)
	var unsupported *rterrors.UnsupportedProtocolError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "mqtt", unsupported.Protocol)
	assert.Equal(t, "5", unsupported.Version)

	assert.Equal(t, []string{"kafka", "nats"}, reg.Protocols())

	require.NoError(t, reg.Close())
	assert.True(t, first.closed)
	assert.True(t, second.closed)
}

func TestRegistryBuild(t *testing.T) {
	reg := NewRegistry()
	manual := &stubHandler{caps: Capabilities{Name: "manual", Protocols: []string{"kafka"}}}
	reg.Add(manual)
	reg.Register("kafka", func(context.Context, Config, watermill.LoggerAdapter) (ProtocolHandler, error) {
		return &stubHandler{caps: KafkaCapabilities}, nil
	}, KafkaCapabilities)
	reg.Register("nats", func(context.Context, Config, watermill.LoggerAdapter) (ProtocolHandler, error) {
		return &stubHandler{caps: Capabilities{Name: "old"}}, nil
	}, NATSCapabilities)
	reg.Register("nats", func(context.Context, Config, watermill.LoggerAdapter) (ProtocolHandler, error) {
		return &stubHandler{caps: NATSCapabilities}, nil
	}, NATSCapabilities)

	assert.Equal(t, []string{"kafka", "nats"}, reg.Names())
	assert.True(t, reg.Has("nats"))
	assert.False(t, reg.Has("sqs"))
	assert.Equal(t, "nats", reg.GetCapabilities("nats").Name)
	assert.Equal(t, Capabilities{Name: "unknown"}, reg.GetCapabilities("unknown"))

	built, err := reg.Build(context.Background(), mockConfig{}, nil)
	require.NoError(t, err)

	h, err := built.Handler("kafka", "")
	require.NoError(t, err)
	assert.Same(t, manual, h)

	h, err = built.Handler("nats", "")
	require.NoError(t, err)
	res, err := h.Publish(context.Background(), OperationContext{})
	require.NoError(t, err)
	assert.Equal(t, "nats", res.MessageID)

	_, err = reg.Handler("nats", "")
	assert.ErrorIs(t, err, rterrors.ErrUnsupportedProtocol)
}

func TestRegistryBuildErrors(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Build(context.Background(), nil, nil)
	require.ErrorIs(t, err, rterrors.ErrConfigRequired)

	reg.Register("broken", func(context.Context, Config, watermill.LoggerAdapter) (ProtocolHandler, error) {
		return nil, errors.New("boom")
	}, Capabilities{})
	_, err = reg.Build(context.Background(), mockConfig{}, watermill.NopLogger{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "build broken handler")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = reg.Build(ctx, mockConfig{}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEncodePayload(t *testing.T) {
	data, ct, err := EncodePayload(map[string]any{"a": 1}, "")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(data))
	assert.Equal(t, ContentTypeJSON, ct)

	data, ct, err = EncodePayload(json.RawMessage(`{"b":2}`), "")
	require.NoError(t, err)
	assert.Equal(t, `{"b":2}`, string(data))
	assert.Equal(t, ContentTypeJSON, ct)

	data, ct, err = EncodePayload([]byte{1, 2}, "")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, data)
	assert.Equal(t, ContentTypeBinary, ct)

	data, ct, err = EncodePayload("hello", "text/csv")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, "text/csv", ct)

	data, ct, err = EncodePayload(nil, "")
	require.NoError(t, err)
	assert.Empty(t, data)
	assert.Empty(t, ct)
}

func TestEncodeProtoPayload(t *testing.T) {
	payload, err := structpb.NewStruct(map[string]any{"id": "o-1"})
	require.NoError(t, err)

	data, ct, err := EncodePayload(payload, "")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"o-1"}`, string(data))
	assert.Equal(t, ContentTypeJSON, ct)

	data, ct, err = EncodePayload(payload, ContentTypeProtobuf)
	require.NoError(t, err)
	assert.Equal(t, ContentTypeProtobuf, ct)
	decoded := &structpb.Struct{}
	require.NoError(t, proto.Unmarshal(data, decoded))
	assert.Equal(t, "o-1", decoded.Fields["id"].GetStringValue())
}

func TestNewWatermillMessage(t *testing.T) {
	oc := NewOperationContext(ContextParams{
		OperationID:   "sendOrder",
		Payload:       map[string]any{"id": 1},
		Headers:       map[string]any{"tenant": "acme", "attempt": 2},
		CorrelationID: "corr-1",
		MessageName:   "OrderPlaced",
		ReplyAddress:  "replies",
	})

	msg, err := NewWatermillMessage(oc)
	require.NoError(t, err)
	assert.NotEmpty(t, msg.UUID)
	assert.Equal(t, "acme", msg.Metadata.Get("tenant"))
	assert.Equal(t, "2", msg.Metadata.Get("attempt"))
	assert.Equal(t, "corr-1", msg.Metadata.Get(metadata.KeyCorrelationID))
	assert.Equal(t, ContentTypeJSON, msg.Metadata.Get(metadata.KeyContentType))
	assert.Equal(t, "OrderPlaced", msg.Metadata.Get(metadata.KeyMessageName))
	assert.Equal(t, "sendOrder", msg.Metadata.Get(metadata.KeyOperationID))
	assert.Equal(t, "replies", msg.Metadata.Get(metadata.KeyReplyTo))

	converted := FromWatermillMessage(msg, "orders")
	assert.Equal(t, msg.UUID, converted.ID)
	assert.Equal(t, "corr-1", converted.CorrelationID)
	assert.Equal(t, "orders", converted.Channel)
	assert.WithinDuration(t, time.Now(), converted.SentAt, time.Minute)

	foreign := FromWatermillMessage(message.NewMessage(watermill.NewUUID(), nil), "orders")
	assert.True(t, foreign.SentAt.IsZero())
}

func TestWatermillHandlerPublishCachesPublisherPerEndpoint(t *testing.T) {
	created := map[string]*recordingPublisher{}
	h := NewWatermillHandler(WatermillConfig{
		Capabilities: KafkaCapabilities,
		NewPublisher: func(endpoint string, _ OperationContext) (message.Publisher, error) {
			pub := &recordingPublisher{}
			created[endpoint] = pub
			return pub, nil
		},
	})
	assert.True(t, h.Supports("kafka", ""))
	assert.Equal(t, KafkaCapabilities, h.Capabilities())

	ctx := context.Background()
	for _, host := range []string{"broker-a:9092", "broker-a:9092", "broker-b:9092"} {
		res, err := h.Publish(ctx, NewOperationContext(ContextParams{Host: host, Channel: "orders", Payload: "x"}))
		require.NoError(t, err)
		assert.NotEmpty(t, res.MessageID)
	}
	require.Len(t, created, 2)
	assert.Equal(t, []string{"orders", "orders"}, created["broker-a:9092"].topics)

	require.NoError(t, h.Close())
	assert.True(t, created["broker-a:9092"].closed)
	assert.True(t, created["broker-b:9092"].closed)
}

func TestWatermillHandlerErrors(t *testing.T) {
	h := NewWatermillHandler(WatermillConfig{
		Capabilities: HTTPCapabilities,
		NewPublisher: func(string, OperationContext) (message.Publisher, error) {
			return nil, errors.New("dial failed")
		},
	})

	_, err := h.Publish(context.Background(), NewOperationContext(ContextParams{Channel: "x"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dial failed")

	_, err = h.Subscribe(context.Background(), NewOperationContext(ContextParams{Channel: "x"}))
	require.ErrorIs(t, err, ErrSubscribeUnsupported)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = h.Publish(ctx, NewOperationContext(ContextParams{}))
	require.ErrorIs(t, err, context.Canceled)
}

func TestWatermillHandlerRoundTrip(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	h := NewWatermillHandler(WatermillConfig{
		Capabilities:  ChannelCapabilities,
		NewPublisher:  func(string, OperationContext) (message.Publisher, error) { return pubSub, nil },
		NewSubscriber: func(string, OperationContext) (message.Subscriber, error) { return pubSub, nil },
	})
	defer h.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := h.Subscribe(ctx, NewOperationContext(ContextParams{
		ChannelTemplate: "orders.{region}",
		Channel:         "orders.eu",
	}))
	require.NoError(t, err)

	pubRes, err := h.Publish(ctx, NewOperationContext(ContextParams{
		Channel:       "orders.eu",
		Payload:       map[string]any{"id": "o-1"},
		CorrelationID: "c-1",
	}))
	require.NoError(t, err)

	select {
	case msg := <-res.Messages:
		require.NotNil(t, msg)
		assert.Equal(t, pubRes.MessageID, msg.ID)
		assert.Equal(t, "c-1", msg.CorrelationID)
		assert.Equal(t, map[string]string{"region": "eu"}, msg.Parameters)
		var body map[string]string
		require.NoError(t, msg.Decode(&body))
		assert.Equal(t, "o-1", body["id"])
	case <-ctx.Done():
		t.Fatal("timed out waiting for message")
	}

	require.NoError(t, res.Close())
	for range res.Messages {
	}
}

func TestBindingString(t *testing.T) {
	b := &document.Binding{Properties: map[string]any{
		"topic":      "orders",
		"groupId":    map[string]any{"type": "string", "enum": []any{"billing", "audit"}},
		"clientId":   map[string]any{"type": "string", "const": "svc"},
		"exchange":   map[string]any{"name": "events", "durable": true},
		"partitions": 3,
		"list":       []any{"a"},
	}}

	assert.Equal(t, "orders", BindingString(b, "topic"))
	assert.Equal(t, "billing", BindingString(b, "groupId"))
	assert.Equal(t, "svc", BindingString(b, "clientId"))
	assert.Equal(t, "events", BindingString(b, "exchange", "name"))
	assert.Equal(t, "true", BindingString(b, "exchange", "durable"))
	assert.Equal(t, "3", BindingString(b, "partitions"))
	assert.Empty(t, BindingString(b, "list"))
	assert.Empty(t, BindingString(b, "topic", "nested"))
	assert.Empty(t, BindingString(b, "missing"))
	assert.Empty(t, BindingString(nil, "topic"))
	assert.Empty(t, BindingString(b))
}
