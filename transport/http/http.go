// Package http provides the HTTP protocol handler for asyncflow. It publishes
// messages as HTTP requests; subscriptions are not supported.
package http

import (
	"context"
	"errors"
	nethttp "net/http"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/asyncflow/transport"
)

// TransportName is the name used to register this handler.
const TransportName = "http"

// ErrNoTargetURL is returned when neither the server nor the config names a target.
var ErrNoTargetURL = errors.New("http: no target URL configured")

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(config http.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return http.NewPublisher(config, logger)
}

func init() {
	transport.Register(TransportName, Build, transport.HTTPCapabilities)
}

// Build creates the HTTP handler.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.ProtocolHandler, error) {
	return New(cfg, logger), nil
}

// New returns a publish-only handler. The request method comes from the
// operation binding's "method" (POST by default); one publisher is kept per
// method.
func New(cfg transport.Config, logger watermill.LoggerAdapter) *transport.WatermillHandler {
	return transport.NewWatermillHandler(transport.WatermillConfig{
		Capabilities: transport.HTTPCapabilities,
		Logger:       logger,
		Endpoint: func(oc transport.OperationContext) (string, error) {
			if TargetURL(oc, cfg) == "" {
				return "", ErrNoTargetURL
			}
			return Method(oc), nil
		},
		Topic: func(oc transport.OperationContext) string {
			return TargetURL(oc, cfg)
		},
		NewPublisher: func(method string, _ transport.OperationContext) (message.Publisher, error) {
			return PublisherFactory(http.PublisherConfig{
				MarshalMessageFunc: func(url string, msg *message.Message) (*nethttp.Request, error) {
					req, err := http.DefaultMarshalMessageFunc(url, msg)
					if err != nil {
						return nil, err
					}
					req.Method = method
					return req, nil
				},
			}, logger)
		},
	})
}

// TargetURL joins the server URL and the channel address. Without a server
// host the configured publisher URL is used as base.
func TargetURL(oc transport.OperationContext, cfg transport.Config) string {
	var base string
	if oc.Host() != "" {
		scheme := strings.ToLower(oc.Protocol())
		if scheme == "" {
			scheme = "http"
		}
		base = scheme + "://" + oc.Host()
		if path := strings.Trim(oc.Path(), "/"); path != "" {
			base += "/" + path
		}
	} else if cfg != nil {
		base = cfg.GetHTTPPublisherURL()
	}
	if base == "" {
		return ""
	}
	channel := strings.TrimPrefix(oc.Channel(), "/")
	if channel == "" {
		return base
	}
	return strings.TrimSuffix(base, "/") + "/" + channel
}

// Method returns the upper-cased request method for oc.
func Method(oc transport.OperationContext) string {
	if method := transport.BindingString(oc.OperationBinding(), "method"); method != "" {
		return strings.ToUpper(method)
	}
	return nethttp.MethodPost
}

// Capabilities returns the capabilities of this handler.
func Capabilities() transport.Capabilities {
	return transport.HTTPCapabilities
}
