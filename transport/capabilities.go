package transport

import "strings"

// Capabilities describes the features supported by a protocol handler.
// Use this to introspect what operations are available at runtime.
type Capabilities struct {
	// Name is the human-readable name of the handler.
	Name string

	// Protocols lists the AsyncAPI server protocols the handler serves.
	Protocols []string

	// Versions restricts the protocol versions served. Empty means any.
	Versions []string

	// SupportsSubscribe indicates the handler can receive messages.
	SupportsSubscribe bool

	// SupportsOrdering indicates the transport guarantees message ordering.
	// When true, messages within a partition/stream are delivered in order.
	SupportsOrdering bool

	// SupportsTracing indicates the transport propagates tracing headers natively.
	SupportsTracing bool

	// SupportsAck indicates the transport supports explicit message acknowledgment.
	SupportsAck bool

	// SupportsNack indicates the transport supports negative acknowledgment (redelivery).
	SupportsNack bool

	// SupportsPartitioning indicates the transport supports message partitioning.
	SupportsPartitioning bool

	// MaxMessageSize is the maximum message size in bytes (0 = unlimited/unknown).
	MaxMessageSize int64
}

// Serves reports whether protocol and version are within the capabilities.
// Protocols compare case-insensitively; an empty version always matches.
func (c Capabilities) Serves(protocol, version string) bool {
	if !containsFold(c.Protocols, protocol) {
		return false
	}
	return version == "" || len(c.Versions) == 0 || containsFold(c.Versions, version)
}

// SupportsReliableDelivery returns true if the transport supports at-least-once
// delivery semantics (ack + nack).
func (c Capabilities) SupportsReliableDelivery() bool {
	return c.SupportsAck && c.SupportsNack
}

func containsFold(values []string, v string) bool {
	for _, candidate := range values {
		if strings.EqualFold(candidate, v) {
			return true
		}
	}
	return false
}

// Predefined capability sets for the built-in handlers.
var (
	// ChannelCapabilities for the in-memory Go channel handler.
	ChannelCapabilities = Capabilities{
		Name:              "channel",
		Protocols:         []string{"channel", "gochannel"},
		SupportsSubscribe: true,
		SupportsOrdering:  true,
		SupportsAck:       true,
		SupportsNack:      true,
	}

	// KafkaCapabilities for Apache Kafka.
	KafkaCapabilities = Capabilities{
		Name:                 "kafka",
		Protocols:            []string{"kafka", "kafka-secure"},
		SupportsSubscribe:    true,
		SupportsOrdering:     true,
		SupportsTracing:      true,
		SupportsAck:          true,
		SupportsPartitioning: true,
		MaxMessageSize:       1048576, // Default 1MB
	}

	// AMQPCapabilities for RabbitMQ and other AMQP 0-9-1 brokers.
	AMQPCapabilities = Capabilities{
		Name:              "amqp",
		Protocols:         []string{"amqp", "amqps"},
		Versions:          []string{"0.9.1", "0-9-1"},
		SupportsSubscribe: true,
		SupportsOrdering:  true,
		SupportsTracing:   true,
		SupportsAck:       true,
		SupportsNack:      true,
	}

	// NATSCapabilities for NATS Core.
	NATSCapabilities = Capabilities{
		Name:              "nats",
		Protocols:         []string{"nats"},
		SupportsSubscribe: true,
		SupportsTracing:   true,
		MaxMessageSize:    1048576, // Default 1MB
	}

	// SNSCapabilities for AWS SNS topics with SQS-backed subscriptions.
	SNSCapabilities = Capabilities{
		Name:              "sns",
		Protocols:         []string{"sns"},
		SupportsSubscribe: true,
		SupportsTracing:   true,
		SupportsAck:       true,
		SupportsNack:      true,
		MaxMessageSize:    262144, // 256KB
	}

	// SQSCapabilities for AWS SQS queues.
	SQSCapabilities = Capabilities{
		Name:              "sqs",
		Protocols:         []string{"sqs"},
		SupportsSubscribe: true,
		SupportsOrdering:  true,
		SupportsTracing:   true,
		SupportsAck:       true,
		SupportsNack:      true,
		MaxMessageSize:    262144, // 256KB
	}

	// HTTPCapabilities for HTTP publishing. Subscriptions are not supported.
	HTTPCapabilities = Capabilities{
		Name:            "http",
		Protocols:       []string{"http", "https"},
		SupportsTracing: true,
	}
)

// GetCapabilities returns the capabilities registered under name in the
// default registry.
func GetCapabilities(name string) Capabilities {
	return DefaultRegistry.GetCapabilities(name)
}
