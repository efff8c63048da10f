package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/asyncflow/internal/runtime/document"
	"github.com/drblury/asyncflow/transport"
	"github.com/drblury/asyncflow/transport/transporttest"
)

func TestRegistered(t *testing.T) {
	assert.True(t, transport.DefaultRegistry.Has(TransportName))
	caps := transport.GetCapabilities(TransportName)
	assert.Equal(t, "kafka", caps.Name)
	assert.True(t, caps.SupportsPartitioning)
	assert.Equal(t, transport.KafkaCapabilities, Capabilities())
}

func TestPublishAndSubscribe(t *testing.T) {
	originalPub, originalSub := PublisherFactory, SubscriberFactory
	defer func() {
		PublisherFactory = originalPub
		SubscriberFactory = originalSub
	}()

	pub := &transporttest.Publisher{}
	sub := &transporttest.Subscriber{}
	var pubConfig kafka.PublisherConfig
	var subConfig kafka.SubscriberConfig
	PublisherFactory = func(cfg kafka.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
		pubConfig = cfg
		return pub, nil
	}
	SubscriberFactory = func(cfg kafka.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		subConfig = cfg
		return sub, nil
	}

	h, err := Build(context.Background(), &transporttest.Config{
		KafkaBrokers:       []string{"fallback:9092"},
		KafkaConsumerGroup: "default-group",
	}, watermill.NopLogger{})
	require.NoError(t, err)

	_, err = h.Publish(context.Background(), transport.NewOperationContext(transport.ContextParams{
		Host:    "a:9092, b:9092",
		Channel: "orders.eu",
		ChannelBinding: &document.Binding{
			Name:       "kafka",
			Protocols:  []string{"kafka"},
			Properties: map[string]any{"topic": "orders"},
		},
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"a:9092", "b:9092"}, pubConfig.Brokers)
	assert.NotNil(t, pubConfig.Marshaler)
	assert.Equal(t, []string{"orders"}, pub.Topics)

	res, err := h.Subscribe(context.Background(), transport.NewOperationContext(transport.ContextParams{
		Verb:    transport.VerbSubscribe,
		Channel: "orders.eu",
		OperationBinding: &document.Binding{
			Name:       "kafka",
			Protocols:  []string{"kafka"},
			Properties: map[string]any{"groupId": "billing"},
		},
	}))
	require.NoError(t, err)
	require.NoError(t, res.Close())
	assert.Equal(t, []string{"fallback:9092"}, subConfig.Brokers)
	assert.Equal(t, "billing", subConfig.ConsumerGroup)
}

func TestErrors(t *testing.T) {
	originalPub := PublisherFactory
	defer func() { PublisherFactory = originalPub }()

	h := New(&transporttest.Config{}, nil)
	_, err := h.Publish(context.Background(), transport.NewOperationContext(transport.ContextParams{Channel: "x"}))
	require.ErrorIs(t, err, ErrNoBrokers)

	PublisherFactory = func(cfg kafka.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
		return nil, errors.New("publisher error")
	}
	_, err = h.Publish(context.Background(), transport.NewOperationContext(transport.ContextParams{Host: "k:9092", Channel: "x"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publisher error")
}

func TestBrokers(t *testing.T) {
	cfg := &transporttest.Config{KafkaBrokers: []string{"cfg:9092"}}
	assert.Equal(t, []string{"a:9092"}, Brokers("a:9092", cfg))
	assert.Equal(t, []string{"a:9092", "b:9092"}, Brokers("a:9092,,b:9092", cfg))
	assert.Equal(t, []string{"cfg:9092"}, Brokers(" ", cfg))
	assert.Empty(t, Brokers("", nil))
}

func TestConsumerGroup(t *testing.T) {
	cfg := &transporttest.Config{KafkaConsumerGroup: "cfg-group"}
	oc := transport.NewOperationContext(transport.ContextParams{})
	assert.Equal(t, "cfg-group", ConsumerGroup(oc, cfg))
	assert.Empty(t, ConsumerGroup(oc, nil))
}
