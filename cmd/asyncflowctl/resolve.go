package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	runtimepkg "github.com/drblury/asyncflow/internal/runtime"
	"github.com/drblury/asyncflow/internal/runtime/document"
	"github.com/drblury/asyncflow/internal/runtime/jsoncodec"
	"github.com/drblury/asyncflow/transport"
)

type resolveOptions struct {
	verb        string
	server      string
	payload     string
	payloadFile string
	headers     map[string]string
	variables   map[string]string
	parameters  map[string]string
}

// contextView is the printed form of an operation context.
type contextView struct {
	Operation       string                    `yaml:"operation"`
	Verb            string                    `yaml:"verb"`
	Server          string                    `yaml:"server"`
	Protocol        string                    `yaml:"protocol"`
	ProtocolVersion string                    `yaml:"protocolVersion,omitempty"`
	Handler         string                    `yaml:"handler"`
	Host            string                    `yaml:"host"`
	Path            string                    `yaml:"path,omitempty"`
	Channel         string                    `yaml:"channel"`
	Parameters      map[string]string         `yaml:"parameters,omitempty"`
	Message         string                    `yaml:"message,omitempty"`
	ContentType     string                    `yaml:"contentType,omitempty"`
	CorrelationID   string                    `yaml:"correlationId,omitempty"`
	ReplyAddress    string                    `yaml:"replyAddress,omitempty"`
	Bindings        map[string]map[string]any `yaml:"bindings,omitempty"`
}

func newResolveCmd(global *globalOptions) *cobra.Command {
	opts := &resolveOptions{}
	cmd := &cobra.Command{
		Use:   "resolve <operationId>",
		Short: "Print the operation context a publish or subscribe would dispatch",
		Long: `Resolve an operation without dispatching it.

The command runs every resolution stage of the client: operation and action,
server and variables, channel address and parameters, message selection,
correlation id, reply address and bindings.

Examples:
  asyncflowctl resolve placeOrder --payload '{"id":"o-1","type":"created"}'
  asyncflowctl resolve watchOrders --verb subscribe --param region=eu
  asyncflowctl resolve placeOrder --server production --var env=staging --payload-file order.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd, global, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.verb, "verb", string(transport.VerbPublish), "publish or subscribe")
	cmd.Flags().StringVar(&opts.server, "server", "", "server name (defaults to the configured or first server)")
	cmd.Flags().StringVar(&opts.payload, "payload", "", "JSON payload used for message selection")
	cmd.Flags().StringVar(&opts.payloadFile, "payload-file", "", "file holding the JSON payload")
	cmd.Flags().StringToStringVar(&opts.headers, "header", nil, "message header key=value")
	cmd.Flags().StringToStringVar(&opts.variables, "var", nil, "server variable key=value")
	cmd.Flags().StringToStringVar(&opts.parameters, "param", nil, "channel parameter key=value (subscribe)")
	return cmd
}

func runResolve(cmd *cobra.Command, global *globalOptions, opts *resolveOptions, operationID string) error {
	doc, conf, err := global.load()
	if err != nil {
		return err
	}
	client, err := runtimepkg.NewClient(doc, conf, global.logger(cmd.ErrOrStderr()), runtimepkg.ClientDependencies{
		Registry: transport.NewRegistry(),
	})
	if err != nil {
		return err
	}

	var oc transport.OperationContext
	switch transport.Verb(opts.verb) {
	case transport.VerbPublish:
		payload, err := opts.decodePayload()
		if err != nil {
			return err
		}
		headers := make(map[string]any, len(opts.headers))
		for k, v := range opts.headers {
			headers[k] = v
		}
		oc, err = client.ResolvePublish(cmd.Context(), runtimepkg.PublishRequest{
			OperationID:     operationID,
			Payload:         payload,
			Headers:         headers,
			Server:          opts.server,
			ServerVariables: opts.variables,
		})
		if err != nil {
			return err
		}
	case transport.VerbSubscribe:
		oc, err = client.ResolveSubscribe(cmd.Context(), runtimepkg.SubscribeRequest{
			OperationID:     operationID,
			Server:          opts.server,
			ServerVariables: opts.variables,
			Parameters:      opts.parameters,
		})
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown verb %q: use publish or subscribe", opts.verb)
	}

	out, err := yaml.Marshal(newContextView(oc, conf.HandlerProtocol(oc.Protocol())))
	if err != nil {
		return fmt.Errorf("render operation context: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}

func (o *resolveOptions) decodePayload() (any, error) {
	raw := []byte(o.payload)
	if o.payloadFile != "" {
		data, err := os.ReadFile(o.payloadFile)
		if err != nil {
			return nil, fmt.Errorf("read payload: %w", err)
		}
		raw = data
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var payload any
	if err := jsoncodec.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return payload, nil
}

func newContextView(oc transport.OperationContext, handlerProtocol string) contextView {
	view := contextView{
		Operation:       oc.OperationID(),
		Verb:            string(oc.Verb()),
		Server:          oc.ServerName(),
		Protocol:        oc.Protocol(),
		ProtocolVersion: oc.ProtocolVersion(),
		Handler:         handlerName(handlerProtocol, oc.ProtocolVersion()),
		Host:            oc.Host(),
		Path:            oc.Path(),
		Channel:         oc.Channel(),
		Parameters:      oc.Parameters(),
		Message:         oc.MessageName(),
		ContentType:     oc.ContentType(),
		CorrelationID:   oc.CorrelationID(),
		ReplyAddress:    oc.ReplyAddress(),
	}
	for scope, b := range map[string]*document.Binding{
		"server":    oc.ServerBinding(),
		"channel":   oc.ChannelBinding(),
		"operation": oc.OperationBinding(),
		"message":   oc.MessageBinding(),
	} {
		if b == nil {
			continue
		}
		if view.Bindings == nil {
			view.Bindings = make(map[string]map[string]any)
		}
		view.Bindings[scope] = b.Properties
	}
	return view
}

// handlerName returns the registered handler serving protocol, or "none".
func handlerName(protocol, version string) string {
	for _, name := range transport.DefaultRegistry.Names() {
		if transport.GetCapabilities(name).Serves(protocol, version) {
			return name
		}
	}
	return "none"
}
