package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/asyncflow/internal/runtime/binding"
	configpkg "github.com/drblury/asyncflow/internal/runtime/config"
	"github.com/drblury/asyncflow/internal/runtime/disambiguation"
	"github.com/drblury/asyncflow/internal/runtime/document"
	rterrors "github.com/drblury/asyncflow/internal/runtime/errors"
	"github.com/drblury/asyncflow/internal/runtime/expression"
	loggingpkg "github.com/drblury/asyncflow/internal/runtime/logging"
	"github.com/drblury/asyncflow/internal/runtime/operation"
	"github.com/drblury/asyncflow/internal/runtime/params"
	"github.com/drblury/asyncflow/internal/runtime/reference"
	"github.com/drblury/asyncflow/internal/runtime/schema"
	"github.com/drblury/asyncflow/internal/runtime/telemetry"
	"github.com/drblury/asyncflow/transport"
)

// ClientDependencies holds the optional collaborators that the Client can use.
// Leave fields nil to use the defaults.
type ClientDependencies struct {
	// Registry supplies the protocol handlers. When nil, every handler
	// registered with transport.DefaultRegistry is built from the config.
	Registry *transport.Registry
	// Schemas validates message candidates. Defaults to the JSON Schema and
	// XML handlers.
	Schemas *schema.Registry
	// MetricsRegisterer receives the dispatch collectors. When nil, metrics are
	// recorded only if the config enables them, on the default registerer.
	MetricsRegisterer prometheus.Registerer
	// TracerProvider overrides the global OpenTelemetry provider.
	TracerProvider trace.TracerProvider
	Hooks          DispatchHooks
}

// PublishRequest describes an outbound message.
type PublishRequest struct {
	OperationID string
	Payload     any
	Headers     map[string]any
	// Server selects a document server by name. Empty uses the configured
	// default server, then the first server of the channel by name.
	Server          string
	ServerVariables map[string]string
}

// SubscribeRequest describes a subscription.
type SubscribeRequest struct {
	OperationID     string
	Server          string
	ServerVariables map[string]string
	// Parameters assigns channel parameters. Unassigned parameters use their
	// declared default.
	Parameters map[string]string
}

// Client resolves AsyncAPI operations and dispatches them to protocol handlers.
type Client struct {
	Doc    *document.Document
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	refs       *reference.Resolver
	operations *operation.Resolver
	params     *params.Interpolator
	bindings   *binding.Resolver
	selector   *disambiguation.Selector

	registry     *transport.Registry
	ownsRegistry bool

	metrics *telemetry.DispatchMetrics
	tracer  *telemetry.Tracer
	hooks   DispatchHooks
}

// NewClient constructs a Client for doc. The configuration is validated and,
// unless deps supplies a registry, the registered protocol handlers are built.
func NewClient(doc *document.Document, conf *configpkg.Config, log loggingpkg.ServiceLogger, deps ClientDependencies) (*Client, error) {
	if doc == nil {
		return nil, rterrors.ErrDocumentRequired
	}
	if conf == nil {
		return nil, rterrors.ErrConfigRequired
	}
	if log == nil {
		return nil, rterrors.ErrLoggerRequired
	}
	if err := conf.Validate(); err != nil {
		return nil, rterrors.NewConfigValidationError(err)
	}

	log.Info("Creating asyncflow client", loggingpkg.LogFields{
		"document": doc.Info.Title,
		"asyncapi": doc.AsyncAPI,
		"config":   conf,
	})

	refs := reference.New(doc)
	c := &Client{
		Doc:        doc,
		Conf:       conf,
		Logger:     log,
		refs:       refs,
		operations: operation.New(refs),
		params:     params.New(refs, log),
		bindings:   binding.New(refs),
		selector:   disambiguation.New(refs, deps.Schemas, log),
		registry:   deps.Registry,
		hooks:      deps.Hooks,
	}

	if c.registry == nil {
		built, err := transport.Build(context.Background(), conf, loggingpkg.NewWatermillAdapter(log))
		if err != nil {
			return nil, err
		}
		c.registry = built
		c.ownsRegistry = true
	}

	if deps.MetricsRegisterer != nil || conf.MetricsEnabled {
		c.metrics = telemetry.NewDispatchMetrics(deps.MetricsRegisterer, conf.MetricsNamespace)
		if err := c.metrics.Register(); err != nil {
			return nil, fmt.Errorf("register dispatch metrics: %w", err)
		}
	}

	if deps.TracerProvider != nil {
		c.tracer = telemetry.NewTracerFromProvider(deps.TracerProvider)
	} else {
		c.tracer = telemetry.NewTracer(conf.TracingEnabled)
	}

	return c, nil
}

// MustNewClient is like NewClient but panics on error.
func MustNewClient(doc *document.Document, conf *configpkg.Config, log loggingpkg.ServiceLogger, deps ClientDependencies) *Client {
	c, err := NewClient(doc, conf, log, deps)
	if err != nil {
		panic(err)
	}
	return c
}

// Publish resolves the operation, selects the message that matches the payload
// and hands the message to the protocol handler of the target server.
func (c *Client) Publish(ctx context.Context, req PublishRequest) (transport.Result, error) {
	return c.dispatch(ctx, dispatchRequest{
		verb:            transport.VerbPublish,
		operationID:     req.OperationID,
		server:          req.Server,
		serverVariables: req.ServerVariables,
		payload:         req.Payload,
		headers:         req.Headers,
	})
}

// Subscribe resolves the operation and starts a subscription on the protocol
// handler of the target server. Call Result.Close to stop it.
func (c *Client) Subscribe(ctx context.Context, req SubscribeRequest) (transport.Result, error) {
	return c.dispatch(ctx, dispatchRequest{
		verb:            transport.VerbSubscribe,
		operationID:     req.OperationID,
		server:          req.Server,
		serverVariables: req.ServerVariables,
		parameters:      req.Parameters,
	})
}

// ResolvePublish returns the operation context Publish would hand to a
// protocol handler, without dispatching.
func (c *Client) ResolvePublish(ctx context.Context, req PublishRequest) (transport.OperationContext, error) {
	return c.resolve(ctx, dispatchRequest{
		verb:            transport.VerbPublish,
		operationID:     req.OperationID,
		server:          req.Server,
		serverVariables: req.ServerVariables,
		payload:         req.Payload,
		headers:         req.Headers,
	}, nil)
}

// ResolveSubscribe returns the operation context Subscribe would hand to a
// protocol handler, without dispatching.
func (c *Client) ResolveSubscribe(ctx context.Context, req SubscribeRequest) (transport.OperationContext, error) {
	return c.resolve(ctx, dispatchRequest{
		verb:            transport.VerbSubscribe,
		operationID:     req.OperationID,
		server:          req.Server,
		serverVariables: req.ServerVariables,
		parameters:      req.Parameters,
	}, nil)
}

// Operations returns the ids of every operation in the document.
func (c *Client) Operations() []string {
	return c.operations.IDs()
}

// Registry returns the protocol handler registry.
func (c *Client) Registry() *transport.Registry {
	return c.registry
}

// Metrics returns the dispatch counters, or a zero snapshot when metrics are
// disabled.
func (c *Client) Metrics() telemetry.Snapshot {
	if c.metrics == nil {
		return telemetry.Snapshot{}
	}
	return c.metrics.Snapshot()
}

// Close closes the protocol handlers built by NewClient. A registry supplied
// through ClientDependencies is left to its owner.
func (c *Client) Close() error {
	if !c.ownsRegistry {
		return nil
	}
	return c.registry.Close()
}

type dispatchRequest struct {
	verb            transport.Verb
	operationID     string
	server          string
	serverVariables map[string]string
	payload         any
	headers         map[string]any
	parameters      map[string]string
}

func (c *Client) dispatch(ctx context.Context, req dispatchRequest) (res transport.Result, err error) {
	dc := DispatchContext{
		OperationID: req.operationID,
		Verb:        req.verb,
		Context:     ctx,
		StartedAt:   time.Now(),
	}
	ctx, span := c.tracer.Start(ctx, string(req.verb), req.operationID)
	defer func() {
		dc.Duration = time.Since(dc.StartedAt)
		telemetry.End(span, err)
		if c.metrics != nil {
			c.metrics.RecordDispatch(string(req.verb), req.operationID, dc.Protocol, dc.Duration, err)
		}
		c.hooks.finish(dc, err)
	}()

	oc, err := c.resolve(ctx, req, &dc)
	if err != nil {
		return transport.Result{}, err
	}
	telemetry.Annotate(span, oc.Protocol(), oc.Channel(), oc.MessageName())

	handler, err := c.registry.Handler(dc.Protocol, oc.ProtocolVersion())
	if err != nil {
		return transport.Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return transport.Result{}, err
	}

	c.hooks.start(dc)
	if req.verb == transport.VerbSubscribe {
		return handler.Subscribe(ctx, oc)
	}
	return handler.Publish(ctx, oc)
}

// resolve runs every resolution stage and builds the operation context. When
// dc is not nil it is filled as stages complete.
func (c *Client) resolve(ctx context.Context, req dispatchRequest, dc *DispatchContext) (transport.OperationContext, error) {
	if dc == nil {
		dc = &DispatchContext{}
	}
	if err := ctx.Err(); err != nil {
		return transport.OperationContext{}, err
	}

	resolved, err := c.operations.Resolve(req.operationID, operation.Verb(req.verb))
	if err != nil {
		return transport.OperationContext{}, err
	}
	if err := ctx.Err(); err != nil {
		return transport.OperationContext{}, err
	}

	preferred := req.server
	if preferred == "" {
		preferred = c.defaultServer(resolved.Channel)
	}
	serverName, server, err := c.operations.ResolveServer(resolved.Channel, preferred)
	if err != nil {
		return transport.OperationContext{}, err
	}
	if server == nil {
		return transport.OperationContext{}, rterrors.NewNotFoundError("server", serverName)
	}
	dc.ServerName = serverName
	dc.Protocol = c.Conf.HandlerProtocol(server.Protocol)
	host, path := c.params.Server(server, req.serverVariables)
	if err := ctx.Err(); err != nil {
		return transport.OperationContext{}, err
	}

	p := transport.ContextParams{
		OperationID:     resolved.ID,
		Verb:            req.verb,
		ServerName:      serverName,
		Protocol:        server.Protocol,
		ProtocolVersion: server.ProtocolVersion,
		Host:            host,
		Path:            path,
		ChannelTemplate: resolved.Channel.AddressTemplate(),
		Payload:         req.payload,
		Headers:         req.headers,
		ContentType:     c.Doc.DefaultContentType,
	}

	var msg *document.Message
	if req.verb == transport.VerbPublish {
		candidate, err := c.selector.Select(ctx, resolved, req.payload, req.headers)
		if err != nil {
			return transport.OperationContext{}, err
		}
		msg = candidate.Message
		p.MessageName = candidate.Name
		if msg.ContentType != "" {
			p.ContentType = msg.ContentType
		}
		if p.CorrelationID, err = c.correlationID(msg, req.payload, req.headers); err != nil {
			return transport.OperationContext{}, err
		}
		if p.ReplyAddress, err = c.replyAddress(resolved.Operation, req.payload, req.headers); err != nil {
			return transport.OperationContext{}, err
		}
		p.Channel, p.Parameters = c.params.ChannelAddress(resolved.Channel, req.payload, req.headers)
	} else {
		p.Channel, p.Parameters = c.params.AssignedAddress(resolved.Channel, req.parameters)
	}
	dc.Channel = p.Channel
	dc.MessageName = p.MessageName
	dc.CorrelationID = p.CorrelationID
	if err := ctx.Err(); err != nil {
		return transport.OperationContext{}, err
	}

	set, err := c.bindings.ResolveSet(server.Protocol, server, resolved.Channel, resolved.Operation, msg)
	if err != nil {
		return transport.OperationContext{}, err
	}
	p.ServerBinding = set.Server
	p.ChannelBinding = set.Channel
	p.OperationBinding = set.Operation
	p.MessageBinding = set.Message
	if err := ctx.Err(); err != nil {
		return transport.OperationContext{}, err
	}

	c.Logger.Debug("Operation resolved", loggingpkg.LogFields{
		"operation": resolved.ID,
		"verb":      string(req.verb),
		"server":    serverName,
		"protocol":  server.Protocol,
		"channel":   p.Channel,
		"message":   p.MessageName,
	})
	return transport.NewOperationContext(p), nil
}

// defaultServer returns the configured default server when the channel is
// available on it.
func (c *Client) defaultServer(ch *document.Channel) string {
	name := c.Conf.DefaultServer
	if name == "" {
		return ""
	}
	if ch == nil || len(ch.Servers) == 0 {
		if _, ok := c.Doc.Servers[name]; ok {
			return name
		}
		return ""
	}
	for _, ref := range ch.Servers {
		if ref.Ref == document.Pointer("servers", name) {
			return name
		}
	}
	return ""
}

func (c *Client) correlationID(msg *document.Message, payload any, headers map[string]any) (string, error) {
	if msg == nil || msg.CorrelationID == nil || msg.CorrelationID.Location == "" {
		return "", nil
	}
	value, _, err := expression.Evaluate(msg.CorrelationID.Location, payload, headers)
	if err != nil {
		return "", fmt.Errorf("correlation id: %w", err)
	}
	return value, nil
}

// replyAddress evaluates the reply address location of a request/reply
// operation. Without a location, a reply channel with a static address is used.
func (c *Client) replyAddress(op *document.Operation, payload any, headers map[string]any) (string, error) {
	if op == nil || op.Reply == nil {
		return "", nil
	}
	reply := op.Reply
	if reply.Ref != "" {
		resolved, err := c.refs.Reply(reply.Ref)
		if err != nil {
			return "", err
		}
		reply = resolved
	}

	if address := reply.Address; address != nil {
		if address.Ref != "" {
			resolved, err := c.refs.ReplyAddress(address.Ref)
			if err != nil {
				return "", err
			}
			address = resolved
		}
		if address.Location != "" {
			value, _, err := expression.Evaluate(address.Location, payload, headers)
			if err != nil {
				return "", fmt.Errorf("reply address: %w", err)
			}
			return value, nil
		}
	}

	if reply.Channel != nil && !reply.Channel.IsZero() {
		ch, err := c.refs.Channel(reply.Channel.Ref)
		if err != nil {
			return "", err
		}
		if template := ch.AddressTemplate(); len(params.Placeholders(template)) == 0 {
			return template, nil
		}
	}
	return "", nil
}
