// Package transport defines the contract between the asyncflow client and the
// protocol handlers that move bytes over a concrete broker. Each protocol
// adapter (kafka, amqp, nats, ...) lives in its own sub-package and registers
// a Builder with the transport registry.
package transport

import (
	"context"
	"maps"
	"time"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/drblury/asyncflow/internal/runtime/document"
	"github.com/drblury/asyncflow/internal/runtime/jsoncodec"
)

// Verb is the direction of a dispatch.
type Verb string

const (
	VerbPublish   Verb = "publish"
	VerbSubscribe Verb = "subscribe"
)

// ProtocolHandler sends and receives messages for one or more protocols.
type ProtocolHandler interface {
	// Supports reports whether the handler serves protocol at version. An
	// empty version means the document did not declare one.
	Supports(protocol, version string) bool
	Publish(ctx context.Context, oc OperationContext) (Result, error)
	Subscribe(ctx context.Context, oc OperationContext) (Result, error)
}

// Builder creates a protocol handler from config.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (ProtocolHandler, error)

// Config provides the broker settings protocol handlers may fall back to when
// the AsyncAPI server does not carry them.
type Config interface {
	// Kafka
	GetKafkaBrokers() []string
	GetKafkaConsumerGroup() string

	// AMQP
	GetRabbitMQURL() string

	// NATS
	GetNATSURL() string

	// HTTP
	GetHTTPPublisherURL() string

	// AWS
	GetAWSRegion() string
	GetAWSAccountID() string
	GetAWSAccessKeyID() string
	GetAWSSecretAccessKey() string
	GetAWSEndpoint() string
}

// CapabilitiesProvider is implemented by handlers that can report their capabilities.
type CapabilitiesProvider interface {
	Capabilities() Capabilities
}

// Result is returned by a handler. Publish fills MessageID; Subscribe fills
// Messages and Close.
type Result struct {
	MessageID string
	Messages  <-chan *Message
	// Close stops the subscription and closes Messages.
	Close func() error
}

// Message is an inbound message delivered by a subscription.
type Message struct {
	ID            string
	Payload       []byte
	Headers       map[string]string
	CorrelationID string
	// Channel is the concrete channel address the message arrived on.
	Channel string
	// Parameters holds channel parameter values recovered from Channel.
	Parameters map[string]string
	// SentAt is the creation time embedded in ID. Zero when the sender did
	// not use a ULID message id.
	SentAt time.Time
}

// Decode unmarshals a JSON payload into v.
func (m *Message) Decode(v any) error {
	return jsoncodec.Unmarshal(m.Payload, v)
}

// ContextParams carries the values used to build an OperationContext.
type ContextParams struct {
	OperationID     string
	Verb            Verb
	ServerName      string
	Protocol        string
	ProtocolVersion string
	Host            string
	Path            string
	Channel         string
	// ChannelTemplate is the unresolved channel address.
	ChannelTemplate  string
	Parameters       map[string]string
	Payload          any
	Headers          map[string]any
	ContentType      string
	CorrelationID    string
	MessageName      string
	ReplyAddress     string
	ServerBinding    *document.Binding
	ChannelBinding   *document.Binding
	OperationBinding *document.Binding
	MessageBinding   *document.Binding
}

// OperationContext is the fully resolved, immutable description of a single
// dispatch handed to a protocol handler. Accessors return copies of maps and
// bindings.
type OperationContext struct {
	p ContextParams
}

// NewOperationContext copies p into an OperationContext.
func NewOperationContext(p ContextParams) OperationContext {
	p.Parameters = maps.Clone(p.Parameters)
	p.Headers = maps.Clone(p.Headers)
	p.ServerBinding = p.ServerBinding.Clone()
	p.ChannelBinding = p.ChannelBinding.Clone()
	p.OperationBinding = p.OperationBinding.Clone()
	p.MessageBinding = p.MessageBinding.Clone()
	return OperationContext{p: p}
}

func (c OperationContext) OperationID() string     { return c.p.OperationID }
func (c OperationContext) Verb() Verb              { return c.p.Verb }
func (c OperationContext) ServerName() string      { return c.p.ServerName }
func (c OperationContext) Protocol() string        { return c.p.Protocol }
func (c OperationContext) ProtocolVersion() string { return c.p.ProtocolVersion }
func (c OperationContext) Host() string            { return c.p.Host }
func (c OperationContext) Path() string            { return c.p.Path }
func (c OperationContext) Channel() string         { return c.p.Channel }
func (c OperationContext) ChannelTemplate() string { return c.p.ChannelTemplate }
func (c OperationContext) Payload() any            { return c.p.Payload }
func (c OperationContext) ContentType() string     { return c.p.ContentType }
func (c OperationContext) CorrelationID() string   { return c.p.CorrelationID }
func (c OperationContext) MessageName() string     { return c.p.MessageName }
func (c OperationContext) ReplyAddress() string    { return c.p.ReplyAddress }

func (c OperationContext) Parameters() map[string]string { return maps.Clone(c.p.Parameters) }
func (c OperationContext) Headers() map[string]any       { return maps.Clone(c.p.Headers) }

func (c OperationContext) ServerBinding() *document.Binding    { return c.p.ServerBinding.Clone() }
func (c OperationContext) ChannelBinding() *document.Binding   { return c.p.ChannelBinding.Clone() }
func (c OperationContext) OperationBinding() *document.Binding { return c.p.OperationBinding.Clone() }
func (c OperationContext) MessageBinding() *document.Binding   { return c.p.MessageBinding.Clone() }

// Params returns a copy of the values the context was built from.
func (c OperationContext) Params() ContextParams {
	return NewOperationContext(c.p).p
}
