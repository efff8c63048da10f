// Package nats provides the NATS Core protocol handler for asyncflow.
package nats

import (
	"context"
	"errors"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	nc "github.com/nats-io/nats.go"

	"github.com/drblury/asyncflow/transport"
)

// TransportName is the name used to register this handler.
const TransportName = "nats"

// ClientName identifies asyncflow connections on the NATS server.
const ClientName = "asyncflow"

// ErrNoServerURL is returned when neither the server nor the config names a NATS server.
var ErrNoServerURL = errors.New("nats: no server URL configured")

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg nats.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return nats.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg nats.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return nats.NewSubscriber(cfg, logger)
}

func init() {
	transport.Register(TransportName, Build, transport.NATSCapabilities)
}

// Build creates the NATS handler.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.ProtocolHandler, error) {
	return New(cfg, logger), nil
}

// New returns a NATS Core handler. Subjects are channel addresses; the
// operation binding's "queue" joins subscribers to a queue group.
func New(cfg transport.Config, logger watermill.LoggerAdapter) *transport.WatermillHandler {
	marshaler := &nats.NATSMarshaler{}
	options := []nc.Option{nc.Name(ClientName)}

	return transport.NewWatermillHandler(transport.WatermillConfig{
		Capabilities: transport.NATSCapabilities,
		Logger:       logger,
		Endpoint: func(oc transport.OperationContext) (string, error) {
			serverURL := ServerURL(oc.Host(), cfg)
			if serverURL == "" {
				return "", ErrNoServerURL
			}
			if oc.Verb() == transport.VerbSubscribe {
				serverURL += "#" + transport.BindingString(oc.OperationBinding(), "queue")
			}
			return serverURL, nil
		},
		NewPublisher: func(endpoint string, _ transport.OperationContext) (message.Publisher, error) {
			return PublisherFactory(nats.PublisherConfig{
				URL:         endpoint,
				NatsOptions: options,
				Marshaler:   marshaler,
				JetStream:   nats.JetStreamConfig{Disabled: true},
			}, logger)
		},
		NewSubscriber: func(endpoint string, _ transport.OperationContext) (message.Subscriber, error) {
			serverURL, queue, _ := strings.Cut(endpoint, "#")
			return SubscriberFactory(nats.SubscriberConfig{
				URL:              serverURL,
				QueueGroupPrefix: queue,
				NatsOptions:      options,
				Unmarshaler:      marshaler,
				JetStream:        nats.JetStreamConfig{Disabled: true},
			}, logger)
		},
	})
}

// ServerURL returns nats://host, or the configured URL when host is empty.
func ServerURL(host string, cfg transport.Config) string {
	host = strings.TrimSpace(host)
	if host == "" {
		if cfg == nil {
			return ""
		}
		return cfg.GetNATSURL()
	}
	if strings.Contains(host, "://") {
		return host
	}
	return "nats://" + host
}

// Capabilities returns the capabilities of this handler.
func Capabilities() transport.Capabilities {
	return transport.NATSCapabilities
}
