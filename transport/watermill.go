package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/asyncflow/internal/runtime/params"
)

// ErrSubscribeUnsupported is returned by handlers that can only publish.
var ErrSubscribeUnsupported = errors.New("asyncflow: protocol handler does not support subscribe")

// WatermillConfig describes how a WatermillHandler maps an operation context
// onto Watermill publishers and subscribers.
type WatermillConfig struct {
	Capabilities Capabilities

	// Endpoint derives the connection identity, e.g. a broker URL. Publishers
	// and subscribers are created once per endpoint and reused.
	Endpoint func(oc OperationContext) (string, error)

	// Topic derives the destination name. Defaults to the channel address.
	Topic func(oc OperationContext) string

	NewPublisher func(endpoint string, oc OperationContext) (message.Publisher, error)
	// NewSubscriber may be nil for publish-only protocols.
	NewSubscriber func(endpoint string, oc OperationContext) (message.Subscriber, error)

	Logger watermill.LoggerAdapter
}

// WatermillHandler is a ProtocolHandler backed by Watermill.
type WatermillHandler struct {
	cfg    WatermillConfig
	logger watermill.LoggerAdapter

	mu          sync.Mutex
	publishers  map[string]message.Publisher
	subscribers map[string]message.Subscriber
}

// NewWatermillHandler creates a handler from cfg.
func NewWatermillHandler(cfg WatermillConfig) *WatermillHandler {
	logger := cfg.Logger
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	if cfg.Topic == nil {
		cfg.Topic = func(oc OperationContext) string { return oc.Channel() }
	}
	if cfg.Endpoint == nil {
		cfg.Endpoint = func(oc OperationContext) (string, error) { return oc.Host(), nil }
	}
	return &WatermillHandler{
		cfg:         cfg,
		logger:      logger.With(watermill.LogFields{"handler": cfg.Capabilities.Name}),
		publishers:  make(map[string]message.Publisher),
		subscribers: make(map[string]message.Subscriber),
	}
}

// Supports reports whether the capabilities serve protocol at version.
func (h *WatermillHandler) Supports(protocol, version string) bool {
	return h.cfg.Capabilities.Serves(protocol, version)
}

// Capabilities returns the capabilities of this handler.
func (h *WatermillHandler) Capabilities() Capabilities {
	return h.cfg.Capabilities
}

// Publish encodes the payload and publishes it to the topic derived from oc.
func (h *WatermillHandler) Publish(ctx context.Context, oc OperationContext) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	msg, err := NewWatermillMessage(oc)
	if err != nil {
		return Result{}, err
	}
	msg.SetContext(ctx)

	pub, err := h.publisher(oc)
	if err != nil {
		return Result{}, err
	}
	topic := h.cfg.Topic(oc)
	if err := pub.Publish(topic, msg); err != nil {
		return Result{}, fmt.Errorf("publish to %s: %w", topic, err)
	}
	h.logger.Debug("Message published", watermill.LogFields{
		"topic":      topic,
		"message_id": msg.UUID,
		"operation":  oc.OperationID(),
	})
	return Result{MessageID: msg.UUID}, nil
}

// Subscribe consumes the topic derived from oc until ctx is done or Close is
// called. Messages are acknowledged once handed to the consumer.
func (h *WatermillHandler) Subscribe(ctx context.Context, oc OperationContext) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if h.cfg.NewSubscriber == nil {
		return Result{}, fmt.Errorf("%w: %s", ErrSubscribeUnsupported, h.cfg.Capabilities.Name)
	}
	sub, err := h.subscriber(oc)
	if err != nil {
		return Result{}, err
	}

	topic := h.cfg.Topic(oc)
	subCtx, cancel := context.WithCancel(ctx)
	in, err := sub.Subscribe(subCtx, topic)
	if err != nil {
		cancel()
		return Result{}, fmt.Errorf("subscribe to %s: %w", topic, err)
	}

	out := make(chan *Message)
	go h.pump(subCtx, in, out, oc, topic)

	return Result{
		Messages: out,
		Close: func() error {
			cancel()
			return nil
		},
	}, nil
}

func (h *WatermillHandler) pump(ctx context.Context, in <-chan *message.Message, out chan<- *Message, oc OperationContext, topic string) {
	defer close(out)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			converted := FromWatermillMessage(msg, topic)
			converted.Parameters = channelParameters(oc, topic)
			select {
			case out <- converted:
				msg.Ack()
			case <-ctx.Done():
				msg.Nack()
				return
			}
		}
	}
}

// Close closes every cached publisher and subscriber.
func (h *WatermillHandler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var errs []error
	for endpoint, pub := range h.publishers {
		errs = append(errs, pub.Close())
		delete(h.publishers, endpoint)
	}
	for endpoint, sub := range h.subscribers {
		errs = append(errs, sub.Close())
		delete(h.subscribers, endpoint)
	}
	return errors.Join(errs...)
}

func (h *WatermillHandler) publisher(oc OperationContext) (message.Publisher, error) {
	endpoint, err := h.cfg.Endpoint(oc)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if pub, ok := h.publishers[endpoint]; ok {
		return pub, nil
	}
	pub, err := h.cfg.NewPublisher(endpoint, oc)
	if err != nil {
		return nil, fmt.Errorf("create %s publisher for %q: %w", h.cfg.Capabilities.Name, endpoint, err)
	}
	h.publishers[endpoint] = pub
	h.logger.Info("Created publisher", watermill.LogFields{"endpoint": endpoint})
	return pub, nil
}

func (h *WatermillHandler) subscriber(oc OperationContext) (message.Subscriber, error) {
	endpoint, err := h.cfg.Endpoint(oc)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subscribers[endpoint]; ok {
		return sub, nil
	}
	sub, err := h.cfg.NewSubscriber(endpoint, oc)
	if err != nil {
		return nil, fmt.Errorf("create %s subscriber for %q: %w", h.cfg.Capabilities.Name, endpoint, err)
	}
	h.subscribers[endpoint] = sub
	h.logger.Info("Created subscriber", watermill.LogFields{"endpoint": endpoint})
	return sub, nil
}

// channelParameters recovers parameter values from the concrete channel,
// falling back to the values the subscription was resolved with.
func channelParameters(oc OperationContext, channel string) map[string]string {
	if values, ok := params.Extract(oc.ChannelTemplate(), channel); ok && len(values) > 0 {
		return values
	}
	return oc.Parameters()
}
