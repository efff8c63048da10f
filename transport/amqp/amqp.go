// Package amqp provides the AMQP 0-9-1 (RabbitMQ) protocol handler for asyncflow.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/asyncflow/transport"
)

// TransportName is the name used to register this handler.
const TransportName = "amqp"

const (
	modePubSub = "pubsub"
	modeQueue  = "queue"
)

// ErrNoBrokerURL is returned when neither the server nor the config names a broker.
var ErrNoBrokerURL = errors.New("amqp: no broker URL configured")

// ConnectionFactory allows overriding the connection creation for testing.
var ConnectionFactory = func(cfg amqp.ConnectionConfig, logger watermill.LoggerAdapter) (*amqp.ConnectionWrapper, error) {
	return amqp.NewConnection(cfg, logger)
}

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Publisher, error) {
	return amqp.NewPublisherWithConnection(cfg, logger, conn)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Subscriber, error) {
	return amqp.NewSubscriberWithConnection(cfg, logger, conn)
}

func init() {
	transport.Register(TransportName, Build, transport.AMQPCapabilities)
}

// Handler publishes and subscribes over AMQP, sharing one connection per
// broker URL between publishers and subscribers.
type Handler struct {
	*transport.WatermillHandler

	cfg    transport.Config
	logger watermill.LoggerAdapter

	mu          sync.Mutex
	connections map[string]*amqp.ConnectionWrapper
}

// Build creates the AMQP handler.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.ProtocolHandler, error) {
	return New(cfg, logger), nil
}

// New returns an AMQP handler. The channel binding selects the topology:
// "is: queue" uses a durable queue named by queue.name, anything else a
// durable fanout exchange named by exchange.name. Both default to the channel
// address.
func New(cfg transport.Config, logger watermill.LoggerAdapter) *Handler {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	h := &Handler{cfg: cfg, logger: logger, connections: make(map[string]*amqp.ConnectionWrapper)}
	h.WatermillHandler = transport.NewWatermillHandler(transport.WatermillConfig{
		Capabilities: transport.AMQPCapabilities,
		Logger:       logger,
		Endpoint: func(oc transport.OperationContext) (string, error) {
			brokerURL, err := BrokerURL(oc, cfg)
			if err != nil {
				return "", err
			}
			return brokerURL + "#" + mode(oc), nil
		},
		Topic: Topic,
		NewPublisher: func(endpoint string, _ transport.OperationContext) (message.Publisher, error) {
			amqpConfig, conn, err := h.prepare(endpoint)
			if err != nil {
				return nil, err
			}
			return PublisherFactory(amqpConfig, logger, conn)
		},
		NewSubscriber: func(endpoint string, _ transport.OperationContext) (message.Subscriber, error) {
			amqpConfig, conn, err := h.prepare(endpoint)
			if err != nil {
				return nil, err
			}
			return SubscriberFactory(amqpConfig, logger, conn)
		},
	})
	return h
}

func (h *Handler) prepare(endpoint string) (amqp.Config, *amqp.ConnectionWrapper, error) {
	brokerURL, topology, _ := strings.Cut(endpoint, "#")
	conn, err := h.connection(brokerURL)
	if err != nil {
		return amqp.Config{}, nil, err
	}
	if topology == modeQueue {
		return amqp.NewDurableQueueConfig(brokerURL), conn, nil
	}
	return amqp.NewDurablePubSubConfig(brokerURL, amqp.GenerateQueueNameTopicName), conn, nil
}

func (h *Handler) connection(brokerURL string) (*amqp.ConnectionWrapper, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conn, ok := h.connections[brokerURL]; ok {
		return conn, nil
	}
	conn, err := ConnectionFactory(amqp.ConnectionConfig{
		AmqpURI:   brokerURL,
		Reconnect: amqp.DefaultReconnectConfig(),
	}, h.logger)
	if err != nil {
		return nil, fmt.Errorf("connect to amqp broker: %w", err)
	}
	h.connections[brokerURL] = conn
	return conn, nil
}

// Close closes publishers, subscribers and the shared connections.
func (h *Handler) Close() error {
	errs := []error{h.WatermillHandler.Close()}

	h.mu.Lock()
	defer h.mu.Unlock()
	for brokerURL, conn := range h.connections {
		errs = append(errs, conn.Close())
		delete(h.connections, brokerURL)
	}
	return errors.Join(errs...)
}

// BrokerURL builds protocol://host/vhost from the operation context. When the
// configured URL points at the same host its credentials are reused; without
// a host the configured URL is used as is.
func BrokerURL(oc transport.OperationContext, cfg transport.Config) (string, error) {
	var configured string
	if cfg != nil {
		configured = cfg.GetRabbitMQURL()
	}
	if oc.Host() == "" {
		if configured == "" {
			return "", ErrNoBrokerURL
		}
		return configured, nil
	}

	scheme := strings.ToLower(oc.Protocol())
	if scheme == "" {
		scheme = "amqp"
	}
	u := &url.URL{Scheme: scheme, Host: oc.Host(), Path: "/" + strings.TrimPrefix(oc.Path(), "/")}
	if parsed, err := url.Parse(configured); err == nil && configured != "" && parsed.Host == oc.Host() {
		u.User = parsed.User
	}
	return u.String(), nil
}

// Topic returns the exchange or queue name for oc.
func Topic(oc transport.OperationContext) string {
	binding := oc.ChannelBinding()
	var name string
	if mode(oc) == modeQueue {
		name = transport.BindingString(binding, "queue", "name")
	} else {
		name = transport.BindingString(binding, "exchange", "name")
	}
	if name != "" {
		return name
	}
	return oc.Channel()
}

func mode(oc transport.OperationContext) string {
	if strings.EqualFold(transport.BindingString(oc.ChannelBinding(), "is"), modeQueue) {
		return modeQueue
	}
	return modePubSub
}

// Capabilities returns the capabilities of this handler.
func Capabilities() transport.Capabilities {
	return transport.AMQPCapabilities
}
