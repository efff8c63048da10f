// Package kafka provides the Apache Kafka protocol handler for asyncflow.
package kafka

import (
	"context"
	"errors"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/asyncflow/transport"
)

// TransportName is the name used to register this handler.
const TransportName = "kafka"

// ErrNoBrokers is returned when neither the server nor the config names a broker.
var ErrNoBrokers = errors.New("kafka: no brokers configured")

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg kafka.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return kafka.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg kafka.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return kafka.NewSubscriber(cfg, logger)
}

func init() {
	transport.Register(TransportName, Build, transport.KafkaCapabilities)
}

// Build creates the Kafka handler.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.ProtocolHandler, error) {
	return New(cfg, logger), nil
}

// New returns a Kafka handler. The channel binding's "topic" names the topic,
// defaulting to the channel address. Subscribers join the consumer group
// named by the operation binding's "groupId", else the configured group.
func New(cfg transport.Config, logger watermill.LoggerAdapter) *transport.WatermillHandler {
	return transport.NewWatermillHandler(transport.WatermillConfig{
		Capabilities: transport.KafkaCapabilities,
		Logger:       logger,
		Endpoint: func(oc transport.OperationContext) (string, error) {
			brokers := Brokers(oc.Host(), cfg)
			if len(brokers) == 0 {
				return "", ErrNoBrokers
			}
			endpoint := strings.Join(brokers, ",")
			if oc.Verb() == transport.VerbSubscribe {
				endpoint += "#" + ConsumerGroup(oc, cfg)
			}
			return endpoint, nil
		},
		Topic: Topic,
		NewPublisher: func(endpoint string, _ transport.OperationContext) (message.Publisher, error) {
			return PublisherFactory(kafka.PublisherConfig{
				Brokers:   strings.Split(endpoint, ","),
				Marshaler: kafka.DefaultMarshaler{},
			}, logger)
		},
		NewSubscriber: func(endpoint string, _ transport.OperationContext) (message.Subscriber, error) {
			brokers, group, _ := strings.Cut(endpoint, "#")
			return SubscriberFactory(kafka.SubscriberConfig{
				Brokers:       strings.Split(brokers, ","),
				Unmarshaler:   kafka.DefaultMarshaler{},
				ConsumerGroup: group,
			}, logger)
		},
	})
}

// Brokers returns the server host as a broker list, or the configured brokers
// when host is empty. A host may list several brokers separated by commas.
func Brokers(host string, cfg transport.Config) []string {
	var brokers []string
	for _, b := range strings.Split(host, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) > 0 || cfg == nil {
		return brokers
	}
	return cfg.GetKafkaBrokers()
}

// ConsumerGroup returns the consumer group a subscription joins.
func ConsumerGroup(oc transport.OperationContext, cfg transport.Config) string {
	if group := transport.BindingString(oc.OperationBinding(), "groupId"); group != "" {
		return group
	}
	if cfg == nil {
		return ""
	}
	return cfg.GetKafkaConsumerGroup()
}

// Topic returns the channel binding topic, or the channel address.
func Topic(oc transport.OperationContext) string {
	if topic := transport.BindingString(oc.ChannelBinding(), "topic"); topic != "" {
		return topic
	}
	return oc.Channel()
}

// Capabilities returns the capabilities of this handler.
func Capabilities() transport.Capabilities {
	return transport.KafkaCapabilities
}
