// Package channel provides an in-memory protocol handler backed by Go
// channels. Documents select it with the "channel" or "gochannel" server
// protocol, which makes it useful for tests and local development.
package channel

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/asyncflow/transport"
)

// TransportName is the name used to register this handler.
const TransportName = "channel"

// Factory allows overriding the Pub/Sub creation for testing.
var Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
	pubSub := gochannel.NewGoChannel(cfg, logger)
	return pubSub, pubSub
}

func init() {
	transport.Register(TransportName, Build, transport.ChannelCapabilities)
}

// Build creates the in-memory handler.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.ProtocolHandler, error) {
	return New(logger), nil
}

// New returns a handler whose publishers and subscribers share one in-memory
// Pub/Sub, regardless of the server host.
func New(logger watermill.LoggerAdapter) *transport.WatermillHandler {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	pubSub := sync.OnceValues(func() (message.Publisher, message.Subscriber) {
		return Factory(gochannel.Config{OutputChannelBuffer: 64}, logger)
	})
	return transport.NewWatermillHandler(transport.WatermillConfig{
		Capabilities: transport.ChannelCapabilities,
		Logger:       logger,
		Endpoint: func(transport.OperationContext) (string, error) {
			return TransportName, nil
		},
		NewPublisher: func(string, transport.OperationContext) (message.Publisher, error) {
			pub, _ := pubSub()
			return pub, nil
		},
		NewSubscriber: func(string, transport.OperationContext) (message.Subscriber, error) {
			_, sub := pubSub()
			return sub, nil
		},
	})
}

// Capabilities returns the capabilities of this handler.
func Capabilities() transport.Capabilities {
	return transport.ChannelCapabilities
}
